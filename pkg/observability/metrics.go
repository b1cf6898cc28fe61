// Package observability provides Prometheus metrics and HTTP middleware
// for monitoring aiengine.
package observability

import "github.com/prometheus/client_golang/prometheus"

// LLMBuckets defines histogram buckets suited for LLM inference latencies,
// ranging from 100ms to 120s.
var LLMBuckets = []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120}

var (
	// RequestsTotal counts all HTTP requests by method, status class, and kind.
	RequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "aiengine_requests_total",
			Help: "Total requests",
		},
		[]string{"method", "status", "kind"},
	)

	// RequestDuration records HTTP request duration in seconds.
	RequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "aiengine_request_duration_seconds",
			Help:    "Request duration",
			Buckets: LLMBuckets,
		},
		[]string{"method", "kind"},
	)

	// StreamingConnections tracks the number of active SSE streaming connections.
	StreamingConnections = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "aiengine_streaming_connections_active",
			Help: "Active streaming connections",
		},
	)

	// ProviderRequestsTotal counts requests sent to AI backends.
	ProviderRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "aiengine_provider_requests_total",
			Help: "Provider requests",
		},
		[]string{"provider", "model", "status"},
	)

	// ProviderLatency records backend latency in seconds.
	ProviderLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "aiengine_provider_latency_seconds",
			Help:    "Provider latency",
			Buckets: LLMBuckets,
		},
		[]string{"provider", "model"},
	)

	// ProviderTokensTotal counts tokens processed by direction (input/output).
	ProviderTokensTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "aiengine_provider_tokens_total",
			Help: "Token count",
		},
		[]string{"provider", "model", "direction"},
	)

	// ToolExecutionsTotal counts function executions by name and outcome.
	ToolExecutionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "aiengine_tool_executions_total",
			Help: "Tool executions",
		},
		[]string{"tool_name", "status"},
	)

	// FallbacksTotal counts fast-path queries retried on the default model.
	FallbacksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "aiengine_fallbacks_total",
			Help: "Fast model fallbacks",
		},
		[]string{"env", "model"},
	)

	// FeedbackTurnsTotal counts feedback loop turns by outcome.
	FeedbackTurnsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "aiengine_feedback_turns_total",
			Help: "Function-call feedback turns",
		},
		[]string{"outcome"},
	)

	// ContinuityLookupsTotal counts continuation token lookups by result
	// (hit, miss, expired, mismatch).
	ContinuityLookupsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "aiengine_continuity_lookups_total",
			Help: "Continuation token lookups",
		},
		[]string{"result"},
	)

	// RateLimitRejectedTotal counts requests rejected by the rate limiter.
	RateLimitRejectedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "aiengine_ratelimit_rejected_total",
			Help: "Requests rejected by rate limiting",
		},
		[]string{"tier"},
	)

	// EventsTotal counts streaming events pushed to callers.
	EventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "aiengine_events_total",
			Help: "Streaming events",
		},
		[]string{"type", "subtype"},
	)
)

func init() {
	prometheus.MustRegister(
		RequestsTotal,
		RequestDuration,
		StreamingConnections,
		ProviderRequestsTotal,
		ProviderLatency,
		ProviderTokensTotal,
		ToolExecutionsTotal,
		FallbacksTotal,
		FeedbackTurnsTotal,
		ContinuityLookupsTotal,
		RateLimitRejectedTotal,
		EventsTotal,
	)
}
