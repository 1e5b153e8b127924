// Package metrics exposes Prometheus collectors for the governance service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	PolicyLookups    *prometheus.CounterVec
	LegalHoldChanges *prometheus.CounterVec
}

func New() *Metrics {
	return &Metrics{
		PolicyLookups: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "ledgerd_tenant_policy_lookups_total",
			Help: "Governance policy resolutions by source.",
		}, []string{"source"}),
		LegalHoldChanges: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "ledgerd_tenant_legal_hold_changes_total",
			Help: "Legal hold transitions by new state.",
		}, []string{"state"}),
	}
}

func (m *Metrics) IncrementPolicyLookup(source string) {
	if m == nil {
		return
	}
	m.PolicyLookups.WithLabelValues(source).Inc()
}

func (m *Metrics) IncrementLegalHoldChange(held bool) {
	if m == nil {
		return
	}
	state := "released"
	if held {
		state = "held"
	}
	m.LegalHoldChanges.WithLabelValues(state).Inc()
}
