// Package metrics provides Prometheus instrumentation for essay generation.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Generation outcomes.
const (
	OutcomeSuccess   = "success"
	OutcomeEmpty     = "empty"
	OutcomeExhausted = "exhausted"
	OutcomeFailed    = "failed"
)

var (
	// GenerationLatency tracks end-to-end latency of one generate call, retries included.
	GenerationLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "essay_generation_latency_seconds",
			Help:    "End-to-end generation latency in seconds, including retries and backoff waits.",
			Buckets: []float64{1, 2.5, 5, 10, 20, 30, 60, 120, 300},
		},
		[]string{"provider", "model"},
	)

	// GenerationsTotal counts terminal generate outcomes.
	GenerationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "essay_generations_total",
			Help: "Total number of generate calls by terminal outcome.",
		},
		[]string{"provider", "model", "outcome"},
	)

	// AttemptsTotal counts individual provider calls.
	AttemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "essay_provider_attempts_total",
			Help: "Total number of provider calls by result: ok, empty, rate_limited, error.",
		},
		[]string{"provider", "result"},
	)

	// TokenUsageTotal tracks the total number of tokens consumed.
	TokenUsageTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "essay_token_usage_total",
			Help: "Total number of tokens consumed.",
		},
		[]string{"provider", "model", "direction"}, // direction: "input" or "output"
	)

	// BackoffSeconds exposes the current backoff per provider; 0 when clear.
	BackoffSeconds = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "essay_provider_backoff_seconds",
			Help: "Current rate-limit backoff per provider in seconds.",
		},
		[]string{"provider"},
	)

	// ActiveGenerations tracks the number of in-flight generate calls.
	ActiveGenerations = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "essay_active_generations",
			Help: "Number of currently in-flight generate calls.",
		},
	)

	// BatchTasksTotal counts batch tasks by status.
	BatchTasksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "essay_batch_tasks_total",
			Help: "Total number of batch tasks by status.",
		},
		[]string{"status"}, // "succeeded", "failed"
	)
)

// RecordTokens adds the token usage of one successful call.
func RecordTokens(provider, model string, input, output int) {
	if input > 0 {
		TokenUsageTotal.WithLabelValues(provider, model, "input").Add(float64(input))
	}
	if output > 0 {
		TokenUsageTotal.WithLabelValues(provider, model, "output").Add(float64(output))
	}
}
