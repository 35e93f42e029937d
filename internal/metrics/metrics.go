// Package metrics exposes scheduler instrumentation as prometheus series.
// Collectors register on a private registry injected where they are needed,
// so parallel tests never fight over process-global state.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Collector bundles the build scheduler's instruments.
type Collector struct {
	registry *prometheus.Registry

	jobsTotal   *prometheus.CounterVec
	jobsRunning prometheus.Gauge
	jobDuration prometheus.Histogram
	poolWait    *prometheus.HistogramVec
}

// NewCollector creates a Collector with its own registry.
func NewCollector() *Collector {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Collector{
		registry: reg,
		jobsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "corpusmill",
			Name:      "jobs_total",
			Help:      "Jobs by terminal status.",
		}, []string{"status"}),
		jobsRunning: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "corpusmill",
			Name:      "jobs_running",
			Help:      "Jobs currently executing.",
		}),
		jobDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "corpusmill",
			Name:      "job_duration_seconds",
			Help:      "Wall time of executed jobs.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 4, 10),
		}),
		poolWait: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "corpusmill",
			Name:      "pool_wait_seconds",
			Help:      "Time jobs spent waiting for resource pool capacity.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 4, 12),
		}, []string{"pool"}),
	}
}

// JobStarted marks one job entering execution.
func (c *Collector) JobStarted() {
	c.jobsRunning.Inc()
}

// JobFinished records a terminal status. Executed jobs also record their
// duration; skipped jobs pass executed=false and only count.
func (c *Collector) JobFinished(status string, seconds float64, executed bool) {
	c.jobsTotal.WithLabelValues(status).Inc()
	if executed {
		c.jobsRunning.Dec()
		c.jobDuration.Observe(seconds)
	}
}

// PoolWaited records how long a job waited to enter a resource pool.
func (c *Collector) PoolWaited(pool string, seconds float64) {
	c.poolWait.WithLabelValues(pool).Observe(seconds)
}

// Registry exposes the backing registry for exposition and tests.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}
