package pipeline

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics are the run counters exported on /metrics. Pass a nil registerer
// to get working but unregistered collectors (used in tests).
type Metrics struct {
	LogsProcessed   prometheus.Counter
	LogsFailed      prometheus.Counter
	LogsSkipped     prometheus.Counter
	FetchRetries    prometheus.Counter
	ProcessDuration prometheus.Histogram
}

// NewMetrics builds and registers the pipeline collectors.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		LogsProcessed: f.NewCounter(prometheus.CounterOpts{
			Namespace: "prophet",
			Subsystem: "pipeline",
			Name:      "logs_processed_total",
			Help:      "Logs fully extracted and appended to the summary store.",
		}),
		LogsFailed: f.NewCounter(prometheus.CounterOpts{
			Namespace: "prophet",
			Subsystem: "pipeline",
			Name:      "logs_failed_total",
			Help:      "Logs abandoned after corruption, data-quality, or exhausted retries.",
		}),
		LogsSkipped: f.NewCounter(prometheus.CounterOpts{
			Namespace: "prophet",
			Subsystem: "pipeline",
			Name:      "logs_skipped_total",
			Help:      "Logs skipped because a summary row already existed.",
		}),
		FetchRetries: f.NewCounter(prometheus.CounterOpts{
			Namespace: "prophet",
			Subsystem: "pipeline",
			Name:      "fetch_retries_total",
			Help:      "Transient fetch failures that triggered a retry.",
		}),
		ProcessDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: "prophet",
			Subsystem: "pipeline",
			Name:      "log_process_duration_seconds",
			Help:      "Wall time to fetch, decode, and extract one log.",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 12),
		}),
	}
}
