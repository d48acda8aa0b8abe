package metrics

import "github.com/prometheus/client_golang/prometheus"

// Chat completion Prometheus metrics.
var (
	CompletionRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "questor",
			Name:      "completion_requests_total",
			Help:      "Total number of chat completion requests",
		},
		[]string{"provider", "model", "status"},
	)

	CompletionRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "questor",
			Name:      "completion_request_duration_seconds",
			Help:      "Chat completion request duration in seconds",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		},
		[]string{"provider", "model"},
	)

	CompletionTokensTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "questor",
			Name:      "completion_tokens_total",
			Help:      "Total completion tokens consumed",
		},
		[]string{"provider", "model", "type"},
	)

	RoutingRoundsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "questor",
			Name:      "routing_rounds_total",
			Help:      "Total routing rounds executed, by terminating condition",
		},
		[]string{"outcome"}, // "completed" / "handoff" / "round_cap" / "error"
	)
)

var completionMetricsRegistered bool

// RegisterCompletionMetrics registers Prometheus completion and routing metrics.
// Must be called once from main.
func RegisterCompletionMetrics() {
	if completionMetricsRegistered {
		return
	}
	prometheus.MustRegister(CompletionRequestsTotal)
	prometheus.MustRegister(CompletionRequestDuration)
	prometheus.MustRegister(CompletionTokensTotal)
	prometheus.MustRegister(RoutingRoundsTotal)
	completionMetricsRegistered = true
}
