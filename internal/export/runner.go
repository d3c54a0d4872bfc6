package export

import (
	"context"
	"sync"
	"time"

	"github.com/dataplus22/geochip/internal/logging"
)

// DefaultPacing is the delay between tasks in serial mode, giving the
// remote service room to breathe.
const DefaultPacing = time.Second

// Counts aggregates task outcomes.
type Counts struct {
	Downloaded int
	Skipped    int
	Failed     int
}

func (c *Counts) add(o Outcome) {
	switch o.Status {
	case StatusDownloaded:
		c.Downloaded++
	case StatusSkipped:
		c.Skipped++
	case StatusFailed:
		c.Failed++
	}
}

// Runner fans export tasks out across a worker pool, or runs them serially
// with pacing. A task failure is already absorbed into its Outcome; the
// runner never aborts on one.
type Runner struct {
	Exporter *Exporter

	// Parallel selects the worker pool; false runs tasks one at a time.
	Parallel bool

	// Workers is the pool size in parallel mode.
	Workers int

	// Pacing is the inter-task delay in serial mode. Zero means
	// DefaultPacing.
	Pacing time.Duration
}

// Run executes all tasks and returns the aggregated counts. It returns when
// every dispatched task has settled or the context is cancelled; cancelled
// but undispatched tasks are simply not run.
func (r *Runner) Run(ctx context.Context, tasks []Task) Counts {
	if r.Parallel {
		return r.runParallel(ctx, tasks)
	}
	return r.runSerial(ctx, tasks)
}

func (r *Runner) runParallel(ctx context.Context, tasks []Task) Counts {
	log := logging.Component("runner")
	workers := r.Workers
	if workers < 1 {
		workers = 1
	}
	if workers > len(tasks) {
		workers = len(tasks)
	}
	log.Info("starting parallel export", "tasks", len(tasks), "workers", workers)

	jobs := make(chan Task)
	results := make(chan Outcome)

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			wlog := logging.WorkerLogger(id)
			for task := range jobs {
				wlog.Debug("task start", "chip", task.FileName)
				results <- r.Exporter.Export(ctx, task)
			}
		}(w)
	}

	// Feed jobs; stop feeding on cancellation but keep draining results
	// for the tasks already dispatched.
	go func() {
		defer close(jobs)
		for _, task := range tasks {
			select {
			case jobs <- task:
			case <-ctx.Done():
				return
			}
		}
	}()

	go func() {
		wg.Wait()
		close(results)
	}()

	var counts Counts
	done := 0
	for o := range results {
		counts.add(o)
		done++
		log.Info("progress", "done", done, "total", len(tasks), "status", o.Status.String())
	}
	return counts
}

func (r *Runner) runSerial(ctx context.Context, tasks []Task) Counts {
	log := logging.Component("runner")
	pacing := r.Pacing
	if pacing <= 0 {
		pacing = DefaultPacing
	}
	log.Info("starting serial export", "tasks", len(tasks), "pacing", pacing)

	var counts Counts
	for i, task := range tasks {
		if ctx.Err() != nil {
			log.Warn("run cancelled", "remaining", len(tasks)-i)
			break
		}

		counts.add(r.Exporter.Export(ctx, task))
		log.Info("progress", "done", i+1, "total", len(tasks))

		if i < len(tasks)-1 {
			select {
			case <-ctx.Done():
			case <-time.After(pacing):
			}
		}
	}
	return counts
}
