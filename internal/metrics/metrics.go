package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	RequestCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "focus_monitor_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "focus_monitor_request_duration_seconds",
			Help: "HTTP request duration in seconds",
		},
		[]string{"method", "endpoint"},
	)

	Evaluations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "focus_monitor_evaluations_total",
			Help: "Classifier evaluations by resulting state",
		},
		[]string{"state"},
	)

	Actions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "focus_monitor_actions_total",
			Help: "Corrective actions by text source (model or fallback)",
		},
		[]string{"source"},
	)

	ParseResults = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "focus_monitor_parse_results_total",
			Help: "Perception results by parse source",
		},
		[]string{"source"},
	)

	FocusScore = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "focus_monitor_focus_score",
			Help: "Most recent focus score",
		},
	)

	SamplingActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "focus_monitor_sampling_active",
			Help: "1 while the sampling loop is active",
		},
	)

	TickDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "focus_monitor_tick_duration_seconds",
			Help:    "Duration of one capture-analyze-evaluate tick",
			Buckets: prometheus.ExponentialBuckets(0.25, 2, 10),
		},
	)

	TickErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "focus_monitor_tick_errors_total",
			Help: "Sampling tick failures by stage",
		},
		[]string{"stage"},
	)

	WebsocketClients = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "focus_monitor_websocket_clients",
			Help: "Connected status stream clients",
		},
	)
)

// ObserveEvaluation records one classifier outcome.
func ObserveEvaluation(state string, score int, actionSource string) {
	Evaluations.WithLabelValues(state).Inc()
	FocusScore.Set(float64(score))
	if actionSource != "" {
		Actions.WithLabelValues(actionSource).Inc()
	}
}

// SetSampling mirrors the sampling flag.
func SetSampling(active bool) {
	if active {
		SamplingActive.Set(1)
		return
	}
	SamplingActive.Set(0)
}
