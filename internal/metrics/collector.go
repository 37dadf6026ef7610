package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// DefaultNamespace is used when NewCollector is given an empty namespace.
const DefaultNamespace = "extract"

// parseDurationBuckets are tuned for selector evaluation, which is usually
// sub-millisecond and bounded by the engine timeout.
var parseDurationBuckets = []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5}

// Collector records engine and worker metrics.
type Collector struct {
	registry *prometheus.Registry

	parsesTotal    *prometheus.CounterVec
	parseDuration  *prometheus.HistogramVec
	errorsTotal    *prometheus.CounterVec
	cacheHits      *prometheus.CounterVec
	cacheMisses    *prometheus.CounterVec
	cacheEvictions *prometheus.CounterVec
	cacheEntries   *prometheus.GaugeVec
	jobsTotal      *prometheus.CounterVec
	jobDuration    *prometheus.HistogramVec
}

// NewCollector creates a collector and registers its metrics with registry.
// A nil registry creates a new one.
func NewCollector(namespace string, registry *prometheus.Registry) *Collector {
	if registry == nil {
		registry = prometheus.NewRegistry()
	}
	if namespace == "" {
		namespace = DefaultNamespace
	}

	c := &Collector{
		registry: registry,
		parsesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "rule_parses_total",
				Help:      "Total number of rule evaluations",
			},
			[]string{"outcome"},
		),
		parseDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "rule_parse_duration_seconds",
				Help:      "Rule evaluation latency in seconds",
				Buckets:   parseDurationBuckets,
			},
			[]string{"outcome"},
		),
		errorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "rule_errors_total",
				Help:      "Total number of rule evaluation failures",
			},
			[]string{"code"},
		),
		cacheHits: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "cache_hits_total",
				Help:      "Total number of cache hits",
			},
			[]string{"cache"},
		),
		cacheMisses: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "cache_misses_total",
				Help:      "Total number of cache misses",
			},
			[]string{"cache"},
		),
		cacheEvictions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "cache_evictions_total",
				Help:      "Total number of cache evictions",
			},
			[]string{"cache"},
		),
		cacheEntries: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "cache_entries",
				Help:      "Current number of entries in cache",
			},
			[]string{"cache"},
		),
		jobsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "jobs_total",
				Help:      "Total number of processed extraction jobs",
			},
			[]string{"type", "outcome"},
		),
		jobDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "job_duration_seconds",
				Help:      "Extraction job latency in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"type"},
		),
	}

	registry.MustRegister(
		c.parsesTotal,
		c.parseDuration,
		c.errorsTotal,
		c.cacheHits,
		c.cacheMisses,
		c.cacheEvictions,
		c.cacheEntries,
		c.jobsTotal,
		c.jobDuration,
	)
	return c
}

// RecordParse records one rule evaluation.
func (c *Collector) RecordParse(outcome string, duration time.Duration) {
	c.parsesTotal.WithLabelValues(outcome).Inc()
	c.parseDuration.WithLabelValues(outcome).Observe(duration.Seconds())
}

// RecordError records a failure by error code.
func (c *Collector) RecordError(code string) {
	c.errorsTotal.WithLabelValues(code).Inc()
}

// RecordCacheHit records a cache hit.
func (c *Collector) RecordCacheHit(cache string) {
	c.cacheHits.WithLabelValues(cache).Inc()
}

// RecordCacheMiss records a cache miss.
func (c *Collector) RecordCacheMiss(cache string) {
	c.cacheMisses.WithLabelValues(cache).Inc()
}

// RecordCacheEviction records an eviction.
func (c *Collector) RecordCacheEviction(cache string) {
	c.cacheEvictions.WithLabelValues(cache).Inc()
}

// SetCacheSize updates the current size of a cache.
func (c *Collector) SetCacheSize(cache string, size int) {
	c.cacheEntries.WithLabelValues(cache).Set(float64(size))
}

// RecordJob records a processed worker job.
//
// Parameters:
//   - jobType: "parse", "batch" or "array"
//   - outcome: "success", "failure" or "invalid"
//   - duration: processing time
func (c *Collector) RecordJob(jobType, outcome string, duration time.Duration) {
	c.jobsTotal.WithLabelValues(jobType, outcome).Inc()
	c.jobDuration.WithLabelValues(jobType).Observe(duration.Seconds())
}

// Registry returns the Prometheus registry used by this collector.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}
