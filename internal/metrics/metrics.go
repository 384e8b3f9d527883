// Package metrics provides Prometheus instrumentation for boki.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// HTTP metrics (gateway's /function/<func_name> surface).
var (
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "boki_http_requests_total",
		Help: "Total number of HTTP requests.",
	}, []string{"method", "path", "status"})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "boki_http_request_duration_seconds",
		Help:    "HTTP request duration in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path"})
)

// RPC metrics (gateway's per-function gRPC surface).
var (
	RPCRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "boki_rpc_requests_total",
		Help: "Total number of gRPC requests.",
	}, []string{"service", "method", "code"})

	RPCRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "boki_rpc_request_duration_seconds",
		Help:    "gRPC request duration in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"service", "method"})
)

// Dispatcher metrics, purely advisory — never consulted for dispatch
// decisions.
var (
	FuncCallsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "boki_func_calls_total",
		Help: "Total number of function calls dispatched, by outcome.",
	}, []string{"func_name", "outcome"}) // outcome: complete, failed, timeout, discarded

	FuncCallQueueingDelay = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "boki_func_call_queueing_delay_seconds",
		Help:    "Time a call spent in pending_func_calls before dispatch.",
		Buckets: prometheus.DefBuckets,
	}, []string{"func_name"})

	FuncCallEndToEndLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "boki_func_call_latency_seconds",
		Help:    "End-to-end latency from request arrival to response write.",
		Buckets: prometheus.DefBuckets,
	}, []string{"func_name"})

	FuncCallInterArrival = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "boki_func_call_inter_arrival_seconds",
		Help:    "Time between consecutive call arrivals for the same function.",
		Buckets: prometheus.DefBuckets,
	}, []string{"func_name"})

	FuncCallDispatchOverhead = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "boki_func_call_dispatch_overhead_seconds",
		Help:    "Time spent encoding and handing a call off to its engine node, excluding queueing delay.",
		Buckets: prometheus.DefBuckets,
	}, []string{"func_name"})

	PendingFuncCalls = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "boki_pending_func_calls",
		Help: "Number of func calls currently queued awaiting a capable engine node.",
	})

	ActiveEngineNodes = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "boki_active_engine_nodes",
		Help: "Number of engine nodes currently registered with the gateway.",
	})
)

// Shared-log / storage metrics.
var (
	ActiveLogSpaces = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "boki_active_logspaces",
		Help: "Number of logspaces currently held open by this storage node.",
	})

	LogEntriesAppended = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "boki_log_entries_appended_total",
		Help: "Total number of log entries written to the KV backend.",
	}, []string{"logspace_id"})

	LogReadsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "boki_log_reads_total",
		Help: "Total number of READ-AT requests served, by source.",
	}, []string{"source"}) // source: memory, db, future_hold

	CurrentView = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "boki_current_view",
		Help: "The view id this storage node currently considers active.",
	})
)
