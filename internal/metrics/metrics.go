// Package metrics exposes the Prometheus counters/histograms for the
// collaboration gateway, grounded on the teacher's llm/health_check_metrics.go
// package-level registration idiom, narrowed to the five things worth
// graphing for a ten-workflow-mode orchestrator: provider call volume,
// provider latency, token/cost spend, circuit breaker trips, and the
// number of connected gateway sessions.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	providerCallsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "agentflow",
			Name:      "provider_calls_total",
			Help:      "Total provider calls by provider and outcome.",
		},
		[]string{"provider", "phase", "status"},
	)
	providerCallDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "agentflow",
			Name:      "provider_call_duration_seconds",
			Help:      "Provider call latency in seconds.",
			Buckets:   []float64{0.25, 0.5, 1, 2, 5, 10, 20, 45, 90},
		},
		[]string{"provider", "phase"},
	)
	tokensUsedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "agentflow",
			Name:      "tokens_used_total",
			Help:      "Tokens consumed by provider and direction.",
		},
		[]string{"provider", "direction"},
	)
	costUSDTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "agentflow",
			Name:      "cost_usd_total",
			Help:      "Accumulated USD cost by provider.",
		},
		[]string{"provider"},
	)
	breakerTripsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "agentflow",
			Name:      "breaker_trips_total",
			Help:      "Circuit breaker open transitions by provider.",
		},
		[]string{"provider"},
	)
	activeSessions = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "agentflow",
			Name:      "active_sessions",
			Help:      "Number of currently connected gateway sessions.",
		},
	)
)

func init() {
	prometheus.MustRegister(
		providerCallsTotal,
		providerCallDuration,
		tokensUsedTotal,
		costUSDTotal,
		breakerTripsTotal,
		activeSessions,
	)
}

// ObserveProviderCall records one completed provider call's outcome and
// latency, called from the workflow engine's callAgent.
func ObserveProviderCall(provider, phase string, ok bool, dur time.Duration) {
	status := "ok"
	if !ok {
		status = "error"
	}
	providerCallsTotal.WithLabelValues(provider, phase, status).Inc()
	providerCallDuration.WithLabelValues(provider, phase).Observe(dur.Seconds())
}

// RecordUsage records token and cost counters for one completed call.
func RecordUsage(provider string, inputTokens, outputTokens int, costUSD float64) {
	tokensUsedTotal.WithLabelValues(provider, "input").Add(float64(inputTokens))
	tokensUsedTotal.WithLabelValues(provider, "output").Add(float64(outputTokens))
	costUSDTotal.WithLabelValues(provider).Add(costUSD)
}

// RecordBreakerTrip increments the trip counter when a provider's circuit
// breaker opens.
func RecordBreakerTrip(provider string) {
	breakerTripsTotal.WithLabelValues(provider).Inc()
}

// SessionOpened/SessionClosed track the live WebSocket session gauge.
func SessionOpened() { activeSessions.Inc() }
func SessionClosed() { activeSessions.Dec() }
