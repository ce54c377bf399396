package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the dispatch module.
type Metrics struct {
	// Dispatch outcomes by action type and status
	Outcomes *prometheus.CounterVec

	// Retry attempts beyond the first, by action type
	Retries *prometheus.CounterVec

	// End-to-end dispatch latency including retries
	DispatchLatency prometheus.Histogram
}

// New creates a new Metrics instance with all dispatch metrics registered.
func New() *Metrics {
	return &Metrics{
		Outcomes: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "payhook_dispatch_outcomes_total",
			Help: "Total dispatch outcomes by action type and status",
		}, []string{"action", "status"}),

		Retries: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "payhook_dispatch_retries_total",
			Help: "Total retried provider calls by action type",
		}, []string{"action"}),

		DispatchLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "payhook_dispatch_duration_seconds",
			Help:    "Duration of dispatch including rendering and retries",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}),
	}
}

// IncrementOutcome records a dispatch outcome.
func (m *Metrics) IncrementOutcome(action, status string) {
	if m != nil {
		m.Outcomes.WithLabelValues(action, status).Inc()
	}
}

// IncrementRetries records a retried provider call.
func (m *Metrics) IncrementRetries(action string) {
	if m != nil {
		m.Retries.WithLabelValues(action).Inc()
	}
}

// ObserveDispatchLatency records the total dispatch duration.
func (m *Metrics) ObserveDispatchLatency(d time.Duration) {
	if m != nil {
		m.DispatchLatency.Observe(d.Seconds())
	}
}
