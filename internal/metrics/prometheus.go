package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	// Reconciliation metrics
	PassesTotal      *prometheus.CounterVec
	PassDuration     *prometheus.HistogramVec
	OperationsTotal  *prometheus.CounterVec
	FetchErrorsTotal *prometheus.CounterVec

	// Scheduler metrics
	TaskRunsTotal      *prometheus.CounterVec
	TaskCoalescedTotal *prometheus.CounterVec

	// Cache metrics
	CacheHits   *prometheus.CounterVec
	CacheMisses *prometheus.CounterVec

	// Process and gateway metrics
	ProcessCPUPercent  prometheus.Gauge
	ProcessMemoryBytes prometheus.Gauge
	ShardsConnected    prometheus.Gauge

	// HTTP admin metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
}

// NewMetrics creates and registers Prometheus metrics on reg
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		PassesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dmserv_reconcile_passes_total",
				Help: "Total number of per-guild reconciliation passes",
			},
			[]string{"task", "result"},
		),

		PassDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "dmserv_reconcile_pass_duration_seconds",
				Help:    "Duration of per-guild reconciliation passes",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"task"},
		),

		OperationsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dmserv_reconcile_operations_total",
				Help: "Total number of change operations applied",
			},
			[]string{"resource", "op", "status"},
		),

		FetchErrorsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dmserv_fetch_errors_total",
				Help: "Total number of failed reads from remote APIs",
			},
			[]string{"source", "detail"},
		),

		TaskRunsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dmserv_task_runs_total",
				Help: "Total number of scheduled task runs",
			},
			[]string{"task", "status"},
		),

		TaskCoalescedTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dmserv_task_coalesced_total",
				Help: "Total number of task triggers dropped while a run was in progress",
			},
			[]string{"task"},
		),

		CacheHits: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dmserv_cache_hits_total",
				Help: "Total number of cache hits",
			},
			[]string{"cache_type"},
		),

		CacheMisses: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dmserv_cache_misses_total",
				Help: "Total number of cache misses",
			},
			[]string{"cache_type"},
		),

		ProcessCPUPercent: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "dmserv_process_cpu_percent",
				Help: "Process CPU usage per core over the last stats interval",
			},
		),

		ProcessMemoryBytes: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "dmserv_process_memory_bytes",
				Help: "Process resident memory",
			},
		),

		ShardsConnected: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "dmserv_shards_connected",
				Help: "Number of connected gateway shards",
			},
		),

		HTTPRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dmserv_http_requests_total",
				Help: "Total number of admin HTTP requests",
			},
			[]string{"method", "route", "status"},
		),

		HTTPRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "dmserv_http_request_duration_seconds",
				Help:    "Duration of admin HTTP requests",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
	}
}

// RecordPass records one per-guild pass
func (m *Metrics) RecordPass(task, result string, duration float64) {
	m.PassesTotal.WithLabelValues(task, result).Inc()
	m.PassDuration.WithLabelValues(task).Observe(duration)
}

// RecordOperation records one applied change operation
func (m *Metrics) RecordOperation(resource, op, status string) {
	m.OperationsTotal.WithLabelValues(resource, op, status).Inc()
}

// RecordFetchError records a failed remote read
func (m *Metrics) RecordFetchError(source, detail string) {
	m.FetchErrorsTotal.WithLabelValues(source, detail).Inc()
}

// RecordTaskRun records one scheduled task run
func (m *Metrics) RecordTaskRun(task, status string) {
	m.TaskRunsTotal.WithLabelValues(task, status).Inc()
}

// RecordTaskCoalesced records a trigger dropped because the task was busy
func (m *Metrics) RecordTaskCoalesced(task string) {
	m.TaskCoalescedTotal.WithLabelValues(task).Inc()
}

// RecordCacheHit records a cache hit
func (m *Metrics) RecordCacheHit(cacheType string) {
	m.CacheHits.WithLabelValues(cacheType).Inc()
}

// RecordCacheMiss records a cache miss
func (m *Metrics) RecordCacheMiss(cacheType string) {
	m.CacheMisses.WithLabelValues(cacheType).Inc()
}

// UpdateProcessUsage sets the process usage gauges
func (m *Metrics) UpdateProcessUsage(cpuPercent float64, memBytes uint64) {
	m.ProcessCPUPercent.Set(cpuPercent)
	m.ProcessMemoryBytes.Set(float64(memBytes))
}

// UpdateShardsConnected sets the connected shard gauge
func (m *Metrics) UpdateShardsConnected(count int) {
	m.ShardsConnected.Set(float64(count))
}

// RecordHTTPRequest records one admin HTTP request
func (m *Metrics) RecordHTTPRequest(method, route, status string, duration float64) {
	m.HTTPRequestsTotal.WithLabelValues(method, route, status).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, route).Observe(duration)
}
