package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	GateDecision = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "subtranslate_gate_decision_total",
			Help: "Gate decisions on protected routes (allow/challenge)",
		},
		[]string{"action"},
	)
	VerifyOutcome = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "subtranslate_turnstile_verify_total",
			Help: "Turnstile verification attempts by outcome",
		},
		[]string{"outcome"}, // success|rejected|missing_token|upstream_error|rate_limited
	)
	VerifyDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "subtranslate_turnstile_siteverify_seconds",
			Help:    "Latency of the outbound siteverify call",
			Buckets: []float64{0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
		},
	)
	TrustIssued = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "subtranslate_trust_cookie_issued_total",
			Help: "Trust cookies issued after a successful challenge",
		},
	)
	ThemeUpdates = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "subtranslate_theme_update_total",
			Help: "Theme preference updates",
		},
		[]string{"theme"}, // system|light|dark|invalid
	)
	RateLimitHits = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "subtranslate_rate_limit_hits_total",
			Help: "Requests rejected by a per-IP limiter",
		},
		[]string{"endpoint"},
	)
	HTTPResponses = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "subtranslate_http_responses_total",
			Help: "HTTP responses by status class",
		},
		[]string{"class"},
	)
	BreakerState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "subtranslate_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=open, 2=half-open)",
		},
		[]string{"name"},
	)
	BreakerTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "subtranslate_breaker_transitions_total",
			Help: "Circuit breaker state transitions",
		},
		[]string{"name", "from", "to"},
	)
	BuildInfo = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name:        "subtranslate_build_info",
			Help:        "Build info gauge with const labels",
			ConstLabels: prometheus.Labels{"version": "0.1.0"},
		},
	)
)

func MustRegister() {
	prometheus.MustRegister(
		GateDecision, VerifyOutcome, VerifyDuration, TrustIssued, ThemeUpdates,
		RateLimitHits, HTTPResponses, BreakerState, BreakerTransitions, BuildInfo,
	)
	BuildInfo.Set(1)
}
