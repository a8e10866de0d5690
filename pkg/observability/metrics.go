// Package observability provides Prometheus metrics and HTTP middleware
// for monitoring codeloop.
package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// LLMBuckets defines histogram buckets suited for LLM inference latencies,
// ranging from 100ms to 120s.
var LLMBuckets = []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120}

// SandboxBuckets covers sandbox executions from 1ms up to the largest
// sensible timeout.
var SandboxBuckets = []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10, 30}

var (
	// RequestsTotal counts HTTP requests served by the MCP endpoint by
	// method and status class.
	RequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "codeloop_http_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "status"},
	)

	// RequestDuration records HTTP request duration in seconds.
	RequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "codeloop_http_request_duration_seconds",
			Help:    "HTTP request duration",
			Buckets: LLMBuckets,
		},
		[]string{"method"},
	)

	// SandboxExecutionsTotal counts pool executions by outcome
	// (success, runtime_error, timeout, memory_limit, canceled, worker_failure).
	SandboxExecutionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "codeloop_sandbox_executions_total",
			Help: "Sandbox executions",
		},
		[]string{"outcome"},
	)

	// SandboxExecutionSeconds records the time from dispatch to result.
	SandboxExecutionSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "codeloop_sandbox_execution_seconds",
			Help:    "Sandbox execution latency",
			Buckets: SandboxBuckets,
		},
	)

	// SandboxWorkerRestartsTotal counts workers replaced after a failure.
	SandboxWorkerRestartsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "codeloop_sandbox_worker_restarts_total",
			Help: "Sandbox worker restarts",
		},
	)

	// SandboxBusyWorkers tracks workers currently executing a request.
	SandboxBusyWorkers = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "codeloop_sandbox_busy_workers",
			Help: "Busy sandbox workers",
		},
	)

	// ProviderRequestsTotal counts requests sent to the model backend.
	ProviderRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "codeloop_provider_requests_total",
			Help: "Provider requests",
		},
		[]string{"provider", "model", "status"},
	)

	// ProviderLatency records model backend latency in seconds.
	ProviderLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "codeloop_provider_latency_seconds",
			Help:    "Provider latency",
			Buckets: LLMBuckets,
		},
		[]string{"provider", "model"},
	)

	// ProviderTokensTotal counts tokens processed by direction (input/output).
	ProviderTokensTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "codeloop_provider_tokens_total",
			Help: "Token count",
		},
		[]string{"provider", "model", "direction"},
	)

	// ToolCallsTotal counts tool calls by name and outcome.
	ToolCallsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "codeloop_tool_calls_total",
			Help: "Tool calls",
		},
		[]string{"tool", "status"},
	)
)

func init() {
	prometheus.MustRegister(
		RequestsTotal,
		RequestDuration,
		SandboxExecutionsTotal,
		SandboxExecutionSeconds,
		SandboxWorkerRestartsTotal,
		SandboxBusyWorkers,
		ProviderRequestsTotal,
		ProviderLatency,
		ProviderTokensTotal,
		ToolCallsTotal,
	)
}

// Handler returns the HTTP handler exposing the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
