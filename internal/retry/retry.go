// Package retry wraps fallible network operations with bounded exponential
// backoff. The same policy is applied at both network call sites (remote
// query and chip download) so their worst-case latency stays predictable.
package retry

import (
	"context"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/dataplus22/geochip/internal/metrics"
)

// Policy describes a bounded exponential backoff schedule.
type Policy struct {
	// MaxAttempts is the total number of tries, including the first.
	MaxAttempts int

	// InitialDelay is the wait before the second attempt.
	InitialDelay time.Duration

	// Multiplier scales the delay after each failed attempt.
	Multiplier float64
}

// DefaultPolicy matches the production schedule: 10 attempts, 2s initial
// delay, doubling each time.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts:  10,
		InitialDelay: 2 * time.Second,
		Multiplier:   2,
	}
}

// Permanent marks err as non-retryable; Do returns it immediately.
func Permanent(err error) error {
	return backoff.Permanent(err)
}

// Do runs op under the policy, sleeping between attempts. It returns nil on
// the first success, the last error once attempts are exhausted, or the
// context error if ctx is cancelled during a backoff sleep. name labels the
// operation in retry logs.
func (p Policy) Do(ctx context.Context, name string, op func() error) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.InitialDelay
	b.Multiplier = p.Multiplier
	b.RandomizationFactor = 0
	b.MaxInterval = time.Hour
	b.MaxElapsedTime = 0 // bounded by attempt count, not wall clock
	b.Reset()

	attempts := uint64(1)
	if p.MaxAttempts > 1 {
		attempts = uint64(p.MaxAttempts)
	}

	attempt := 0
	wrapped := func() error {
		attempt++
		return op()
	}

	notify := func(err error, wait time.Duration) {
		metrics.Get().IncRetryAttempts(name)
		slog.Warn("operation failed, retrying",
			"op", name,
			"attempt", attempt,
			"max_attempts", p.MaxAttempts,
			"wait", wait,
			"error", err,
		)
	}

	return backoff.RetryNotify(wrapped,
		backoff.WithContext(backoff.WithMaxRetries(b, attempts-1), ctx),
		notify,
	)
}
