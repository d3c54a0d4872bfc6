// Package metrics provides Prometheus metrics for the chip exporter.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for an export run.
type Metrics struct {
	// Chip outcome metrics
	ChipsDownloaded *prometheus.CounterVec
	ChipsSkipped    *prometheus.CounterVec
	ChipsFailed     *prometheus.CounterVec
	ChipsResumed    *prometheus.CounterVec

	// Timing metrics
	QueryDuration    *prometheus.HistogramVec
	DownloadDuration *prometheus.HistogramVec

	// Size metrics
	ChipBytes *prometheus.HistogramVec

	// Pipeline metrics
	InFlightTasks prometheus.Gauge

	// Error metrics
	RetryAttempts *prometheus.CounterVec
}

var defaultMetrics *Metrics

// Init initializes the metrics package with global metrics.
// Call this once at startup.
func Init(namespace string) *Metrics {
	if namespace == "" {
		namespace = "geochip"
	}

	m := &Metrics{
		ChipsDownloaded: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "chips_downloaded_total",
				Help:      "Total number of chips downloaded successfully",
			},
			[]string{"dataset", "band_group"},
		),
		ChipsSkipped: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "chips_skipped_total",
				Help:      "Total number of chips skipped (required bands missing)",
			},
			[]string{"dataset", "band_group"},
		),
		ChipsFailed: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "chips_failed_total",
				Help:      "Total number of chips that failed after all retries",
			},
			[]string{"dataset", "band_group"},
		),
		ChipsResumed: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "chips_resumed_total",
				Help:      "Total number of coordinates excluded by the resume filter",
			},
			[]string{"dataset"},
		),
		QueryDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "query_duration_seconds",
				Help:      "Time to resolve a composite query against the imagery service",
				Buckets:   prometheus.ExponentialBuckets(0.1, 2, 10), // 0.1s to ~100s
			},
			[]string{"dataset"},
		),
		DownloadDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "download_duration_seconds",
				Help:      "Time to download a rendered chip",
				Buckets:   prometheus.ExponentialBuckets(0.1, 2, 12), // 0.1s to ~400s
			},
			[]string{"dataset"},
		),
		ChipBytes: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "chip_bytes",
				Help:      "Size of downloaded chips in bytes",
				Buckets:   prometheus.ExponentialBuckets(1024, 2, 15), // 1KB to ~32MB
			},
			[]string{"dataset"},
		),
		InFlightTasks: promauto.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "in_flight_tasks",
				Help:      "Number of export tasks currently being processed",
			},
		),
		RetryAttempts: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "retry_attempts_total",
				Help:      "Total number of retry attempts",
			},
			[]string{"operation"},
		),
	}

	defaultMetrics = m
	return m
}

// Get returns the global metrics instance.
// Returns nil if Init has not been called; all recording methods are nil-safe
// so metrics stay optional.
func Get() *Metrics {
	return defaultMetrics
}

// StartServer starts an HTTP server for Prometheus metrics scraping.
// Blocks until the server exits.
func StartServer(address string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	return http.ListenAndServe(address, mux)
}

// IncDownloaded increments the downloaded chips counter.
func (m *Metrics) IncDownloaded(dataset, bandGroup string) {
	if m == nil {
		return
	}
	m.ChipsDownloaded.WithLabelValues(dataset, bandGroup).Inc()
}

// IncSkipped increments the skipped chips counter.
func (m *Metrics) IncSkipped(dataset, bandGroup string) {
	if m == nil {
		return
	}
	m.ChipsSkipped.WithLabelValues(dataset, bandGroup).Inc()
}

// IncFailed increments the failed chips counter.
func (m *Metrics) IncFailed(dataset, bandGroup string) {
	if m == nil {
		return
	}
	m.ChipsFailed.WithLabelValues(dataset, bandGroup).Inc()
}

// AddResumed adds to the resume-filtered coordinates counter.
func (m *Metrics) AddResumed(dataset string, count float64) {
	if m == nil {
		return
	}
	m.ChipsResumed.WithLabelValues(dataset).Add(count)
}

// ObserveQueryDuration records the composite query time.
func (m *Metrics) ObserveQueryDuration(dataset string, seconds float64) {
	if m == nil {
		return
	}
	m.QueryDuration.WithLabelValues(dataset).Observe(seconds)
}

// ObserveDownloadDuration records the chip download time.
func (m *Metrics) ObserveDownloadDuration(dataset string, seconds float64) {
	if m == nil {
		return
	}
	m.DownloadDuration.WithLabelValues(dataset).Observe(seconds)
}

// ObserveChipBytes records the size of a downloaded chip.
func (m *Metrics) ObserveChipBytes(dataset string, bytes float64) {
	if m == nil {
		return
	}
	m.ChipBytes.WithLabelValues(dataset).Observe(bytes)
}

// AddInFlight adjusts the in-flight task gauge.
func (m *Metrics) AddInFlight(delta float64) {
	if m == nil {
		return
	}
	m.InFlightTasks.Add(delta)
}

// IncRetryAttempts increments the retry attempts counter.
func (m *Metrics) IncRetryAttempts(operation string) {
	if m == nil {
		return
	}
	m.RetryAttempts.WithLabelValues(operation).Inc()
}
