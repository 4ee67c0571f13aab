// Package metrics defines the Prometheus collectors exported by the dispatcher.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Job outcome labels for JobsProcessed.
const (
	StatusSucceeded = "succeeded"
	StatusRetried   = "retried"
	StatusFailed    = "failed"
	StatusDropped   = "dropped"
)

var (
	// JobsSubmitted counts work items accepted by the dispatch channel.
	JobsSubmitted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "herald_jobs_submitted_total",
		Help: "Total number of jobs submitted to the dispatcher.",
	}, []string{"job"})

	// JobsProcessed counts handler outcomes per job name.
	JobsProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "herald_jobs_processed_total",
		Help: "Total number of jobs processed by the worker, by outcome.",
	}, []string{"job", "status"})

	// JobDuration measures handler execution time.
	JobDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "herald_job_duration_seconds",
		Help:    "Duration of job handler invocations in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"job"})

	// QueueDepth reports the number of items waiting in the dispatch channel.
	QueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "herald_queue_depth",
		Help: "Number of jobs waiting in the dispatch channel.",
	})

	// WorkersRunning reports the number of live worker goroutines.
	WorkersRunning = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "herald_worker_running",
		Help: "Number of dispatcher workers currently running.",
	})
)

// IncrementSubmitted records an accepted submission.
func IncrementSubmitted(job string) {
	JobsSubmitted.WithLabelValues(job).Inc()
}

// RecordOutcome records the outcome of one handler invocation or lookup.
func RecordOutcome(job, status string) {
	JobsProcessed.WithLabelValues(job, status).Inc()
}

// ObserveDuration records how long a handler ran.
func ObserveDuration(job string, d time.Duration) {
	JobDuration.WithLabelValues(job).Observe(d.Seconds())
}

// SetQueueDepth publishes the current channel length.
func SetQueueDepth(n int) {
	QueueDepth.Set(float64(n))
}
