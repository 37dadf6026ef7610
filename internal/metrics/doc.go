// Package metrics provides Prometheus metrics for the extraction engine and
// worker.
//
// Metrics:
//   - <ns>_rule_parses_total: rule evaluations by outcome
//   - <ns>_rule_parse_duration_seconds: rule evaluation latency
//   - <ns>_rule_errors_total: evaluation failures by error code
//   - <ns>_cache_hits_total, <ns>_cache_misses_total: lookups by cache
//   - <ns>_cache_evictions_total: evictions by cache
//   - <ns>_cache_entries: current entries by cache
//   - <ns>_jobs_total, <ns>_job_duration_seconds: worker jobs by type and outcome
//
// The Collector satisfies rule.Recorder:
//
//	collector := metrics.NewCollector("extract", registry)
//	opts := rule.DefaultOptions()
//	opts.Recorder = collector
//	engine, err := rule.NewEngine(opts, logger)
//
// Expose the registry with promhttp:
//
//	http.Handle("/metrics", promhttp.HandlerFor(collector.Registry(), promhttp.HandlerOpts{}))
package metrics
