// Package metrics exposes Prometheus instrumentation for the autoplay engine.
//
// Metrics:
//   - autoplay_adapter_fetch_total{adapter,outcome}: candidate adapter calls
//   - autoplay_adapter_fetch_duration_seconds{adapter}: adapter latency
//   - autoplay_adapter_breaker_state{adapter}: 0=closed, 1=half-open, 2=open
//   - autoplay_sessions_active: live session actors
//   - autoplay_transitions_total{from,to}: state machine transitions
//   - autoplay_fallback_attempts_total{outcome}: fallback resolver runs
//   - autoplay_recommendation_cycles_total{outcome}: drain cycles
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	AdapterFetches = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "autoplay_adapter_fetch_total",
			Help: "Candidate adapter fetches by outcome (ok, empty, error, unavailable, skipped)",
		},
		[]string{"adapter", "outcome"},
	)

	AdapterDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "autoplay_adapter_fetch_duration_seconds",
			Help:    "Candidate adapter fetch latency",
			Buckets: []float64{.05, .1, .25, .5, 1, 2, 5},
		},
		[]string{"adapter"},
	)

	AdapterBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "autoplay_adapter_breaker_state",
			Help: "Circuit breaker state per adapter (0=closed, 1=half-open, 2=open)",
		},
		[]string{"adapter"},
	)

	SessionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "autoplay_sessions_active",
			Help: "Number of live playback sessions",
		},
	)

	Transitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "autoplay_transitions_total",
			Help: "Playback session state transitions",
		},
		[]string{"from", "to"},
	)

	FallbackAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "autoplay_fallback_attempts_total",
			Help: "Fallback resolver runs by outcome (replaced, exhausted)",
		},
		[]string{"outcome"},
	)

	RecommendationCycles = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "autoplay_recommendation_cycles_total",
			Help: "Queue drain cycles by outcome (selected, no_candidates, no_recommendation, panic, error)",
		},
		[]string{"outcome"},
	)
)
