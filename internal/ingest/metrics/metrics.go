package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the ingestion module.
type Metrics struct {
	// Receipt outcomes by status (accepted, duplicate, dead_lettered)
	ReceiptOutcome *prometheus.CounterVec

	// Dead-lettered receipts by reason
	DeadLettered *prometheus.CounterVec

	// Receipts stored with an unresolved parent link
	OrphansDetected prometheus.Counter

	// Per-receipt ingestion latency
	IngestLatency prometheus.Histogram

	// Verification outcomes by failed check ("" for valid)
	VerifyOutcome *prometheus.CounterVec
}

// New creates a Metrics instance with all ingestion metrics registered.
func New() *Metrics {
	return &Metrics{
		ReceiptOutcome: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "ledgerd_ingest_receipts_total",
			Help: "Total receipts processed by ingestion outcome",
		}, []string{"outcome"}),

		DeadLettered: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "ledgerd_ingest_dead_letter_total",
			Help: "Total receipts routed to the dead-letter queue by reason",
		}, []string{"reason"}),

		OrphansDetected: promauto.NewCounter(prometheus.CounterOpts{
			Name: "ledgerd_ingest_orphans_total",
			Help: "Total receipts ingested with an unresolved parent reference",
		}),

		IngestLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "ledgerd_ingest_duration_seconds",
			Help:    "Duration of single receipt ingestion including verification",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}),

		VerifyOutcome: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "ledgerd_verify_outcomes_total",
			Help: "Total receipt verifications by failed check (valid when empty)",
		}, []string{"failed_check"}),
	}
}

// IncrementOutcome records an ingestion outcome.
func (m *Metrics) IncrementOutcome(outcome string) {
	if m != nil {
		m.ReceiptOutcome.WithLabelValues(outcome).Inc()
	}
}

// IncrementDeadLettered records a DLQ routing.
func (m *Metrics) IncrementDeadLettered(reason string) {
	if m != nil {
		m.DeadLettered.WithLabelValues(reason).Inc()
	}
}

// IncrementOrphans records an orphaned ingest.
func (m *Metrics) IncrementOrphans() {
	if m != nil {
		m.OrphansDetected.Inc()
	}
}

// ObserveIngestLatency records a single receipt's ingestion duration.
func (m *Metrics) ObserveIngestLatency(d time.Duration) {
	if m != nil {
		m.IngestLatency.Observe(d.Seconds())
	}
}

// IncrementVerify records a verification outcome.
func (m *Metrics) IncrementVerify(failedCheck string) {
	if m != nil {
		m.VerifyOutcome.WithLabelValues(failedCheck).Inc()
	}
}
