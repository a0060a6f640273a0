package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nisa_http_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "nisa_http_request_duration_seconds",
			Help:    "HTTP request duration",
			Buckets: []float64{.005, .01, .05, .1, .5, 1, 5, 15, 60},
		},
		[]string{"method", "path"},
	)

	// Turn metrics
	TurnsStarted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nisa_turns_started_total",
			Help: "Total generation turns started",
		},
		[]string{"surface"}, // "chat" or "embed"
	)

	TurnsFailed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nisa_turns_failed_total",
			Help: "Total generation turns that ended in a streamed fallback",
		},
		[]string{"surface"},
	)

	TokensUsed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nisa_tokens_used_total",
			Help: "Total prompt plus completion tokens consumed",
		},
		[]string{"surface"},
	)

	ToolInvocations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nisa_tool_invocations_total",
			Help: "Total tool invocations",
		},
		[]string{"tool"},
	)

	// Resume metrics
	ResumeRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nisa_resume_requests_total",
			Help: "Total resume requests by outcome",
		},
		[]string{"outcome"}, // "live", "replay", "synthesized", "empty"
	)

	// Finalizer metrics
	FinalizerFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "nisa_finalizer_failures_total",
			Help: "Assistant messages that streamed to the client but failed to persist",
		},
	)

	// Embed gate metrics
	GateRejections = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nisa_gate_rejections_total",
			Help: "Embedded turns rejected by the token-budget gate",
		},
		[]string{"mode"},
	)
)
