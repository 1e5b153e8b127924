package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the retention module.
type Metrics struct {
	// State transitions applied, by target state
	Transitions *prometheus.CounterVec

	// Pass outcomes (completed, interrupted, failed)
	PassOutcome *prometheus.CounterVec

	// Entries left untouched because of a hold
	HeldSkipped prometheus.Counter

	// Full pass duration
	PassDuration prometheus.Histogram
}

// New creates a Metrics instance with all retention metrics registered.
func New() *Metrics {
	return &Metrics{
		Transitions: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "ledgerd_retention_transitions_total",
			Help: "Total retention state transitions by target state",
		}, []string{"state"}),

		PassOutcome: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "ledgerd_retention_passes_total",
			Help: "Total retention passes by outcome",
		}, []string{"outcome"}),

		HeldSkipped: promauto.NewCounter(prometheus.CounterOpts{
			Name: "ledgerd_retention_held_skipped_total",
			Help: "Total entries skipped because of a legal hold",
		}),

		PassDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "ledgerd_retention_pass_duration_seconds",
			Help:    "Duration of a full retention pass across all tenants",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 15, 60},
		}),
	}
}

// IncrementTransition records a state transition.
func (m *Metrics) IncrementTransition(state string) {
	if m != nil {
		m.Transitions.WithLabelValues(state).Inc()
	}
}

// IncrementPass records a pass outcome.
func (m *Metrics) IncrementPass(outcome string) {
	if m != nil {
		m.PassOutcome.WithLabelValues(outcome).Inc()
	}
}

// IncrementHeldSkipped records a legal-hold skip.
func (m *Metrics) IncrementHeldSkipped() {
	if m != nil {
		m.HeldSkipped.Inc()
	}
}

// ObservePassDuration records a pass duration.
func (m *Metrics) ObservePassDuration(d time.Duration) {
	if m != nil {
		m.PassDuration.Observe(d.Seconds())
	}
}
