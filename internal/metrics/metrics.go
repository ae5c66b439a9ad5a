// Package metrics exposes job-store counters to Prometheus.
//
// All methods are safe on a nil *Collector, which records nothing.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "jobstore"

// Collector holds the job-store metrics and the registry they live in.
type Collector struct {
	registry *prometheus.Registry

	jobsCreated       *prometheus.CounterVec
	chunksSubmitted   *prometheus.CounterVec
	items             *prometheus.CounterVec
	jobsCompleted     prometheus.Counter
	retention         *prometheus.CounterVec
	partitionDuration prometheus.Histogram
	dispatchFailures  prometheus.Counter
}

// NewCollector creates a Collector with its own registry, including Go runtime and process metrics.
func NewCollector() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		jobsCreated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "jobs_created_total",
			Help:      "Jobs created, by outcome (created, rejected, failed)",
		}, []string{"outcome"}),
		chunksSubmitted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "chunks_submitted_total",
			Help:      "Chunk results submitted, by chunk type and outcome (accepted, duplicate, conflict, rejected)",
		}, []string{"type", "outcome"}),
		items: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "items_total",
			Help:      "Item outcomes recorded, by phase and status",
		}, []string{"phase", "status"}),
		jobsCompleted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "jobs_completed_total",
			Help:      "Jobs whose phases all became done",
		}),
		retention: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "retention_total",
			Help:      "Retention actions, by action (purged, compacted, failed)",
		}, []string{"action"}),
		partitionDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "partitioning_duration_seconds",
			Help:      "Time spent partitioning the data file of a job",
			Buckets:   prometheus.ExponentialBuckets(0.01, 4, 8),
		}),
		dispatchFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dispatch_failures_total",
			Help:      "Chunks that could not be published to the broker",
		}),
	}

	c.registry.MustRegister(
		c.jobsCreated,
		c.chunksSubmitted,
		c.items,
		c.jobsCompleted,
		c.retention,
		c.partitionDuration,
		c.dispatchFailures,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return c
}

// RecordJobCreated counts a job creation attempt.
func (c *Collector) RecordJobCreated(outcome string) {
	if c == nil {
		return
	}
	c.jobsCreated.WithLabelValues(outcome).Inc()
}

// RecordChunkSubmitted counts a chunk submission.
func (c *Collector) RecordChunkSubmitted(chunkType, outcome string) {
	if c == nil {
		return
	}
	c.chunksSubmitted.WithLabelValues(chunkType, outcome).Inc()
}

// RecordItems adds item outcomes of one phase.
func (c *Collector) RecordItems(phase string, succeeded, failed, ignored int) {
	if c == nil {
		return
	}
	c.items.WithLabelValues(phase, "SUCCESS").Add(float64(succeeded))
	c.items.WithLabelValues(phase, "FAILURE").Add(float64(failed))
	c.items.WithLabelValues(phase, "IGNORE").Add(float64(ignored))
}

// RecordJobCompleted counts a job reaching completion.
func (c *Collector) RecordJobCompleted() {
	if c == nil {
		return
	}
	c.jobsCompleted.Inc()
}

// RecordRetention counts retention actions.
func (c *Collector) RecordRetention(action string, n int) {
	if c == nil || n == 0 {
		return
	}
	c.retention.WithLabelValues(action).Add(float64(n))
}

// ObservePartitioning records how long partitioning took.
func (c *Collector) ObservePartitioning(seconds float64) {
	if c == nil {
		return
	}
	c.partitionDuration.Observe(seconds)
}

// RecordDispatchFailure counts a failed publish.
func (c *Collector) RecordDispatchFailure() {
	if c == nil {
		return
	}
	c.dispatchFailures.Inc()
}

// Registry returns the registry holding the metrics.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{Registry: c.registry})
}
