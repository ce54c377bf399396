package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the engine module.
type Metrics struct {
	// Events processed by category
	EventsProcessed *prometheus.CounterVec

	// Rule evaluations by match result
	Evaluations *prometheus.CounterVec

	// Full event processing latency
	ProcessLatency prometheus.Histogram
}

// New creates a new Metrics instance with all engine metrics registered.
func New() *Metrics {
	return &Metrics{
		EventsProcessed: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "payhook_engine_events_total",
			Help: "Total events processed by callback category",
		}, []string{"category"}),

		Evaluations: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "payhook_engine_evaluations_total",
			Help: "Total rule evaluations by match result",
		}, []string{"matched"}),

		ProcessLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "payhook_engine_process_duration_seconds",
			Help:    "Duration of processing one event across all candidate rules",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		}),
	}
}

// IncrementEvents records one processed event.
func (m *Metrics) IncrementEvents(category string) {
	if m != nil {
		m.EventsProcessed.WithLabelValues(category).Inc()
	}
}

// IncrementEvaluations records one rule evaluation.
func (m *Metrics) IncrementEvaluations(matched bool) {
	if m != nil {
		label := "false"
		if matched {
			label = "true"
		}
		m.Evaluations.WithLabelValues(label).Inc()
	}
}

// ObserveProcessLatency records the total processing duration.
func (m *Metrics) ObserveProcessLatency(d time.Duration) {
	if m != nil {
		m.ProcessLatency.Observe(d.Seconds())
	}
}
