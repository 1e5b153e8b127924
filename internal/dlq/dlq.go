// Package dlq holds receipts that failed validation. Dead-lettered records
// are retained for forensic review rather than dropped; retention defaults
// to 30 days and is overridable per tenant by the governance collaborator.
package dlq

import (
	"context"
	"encoding/json"
	"time"
)

// Entry is one dead-lettered record with enough context to review it.
type Entry struct {
	ID         string          `json:"id"`
	TenantID   string          `json:"tenant_id"`
	Reason     string          `json:"reason"`
	Payload    json.RawMessage `json:"payload"`
	ReceivedAt time.Time       `json:"received_at"`
}

// Store persists dead-lettered records with a bounded retention window.
type Store interface {
	Push(ctx context.Context, entry Entry) error
	List(ctx context.Context, tenantID string) ([]Entry, error)
}

// RetentionPolicy resolves the DLQ retention window for a tenant.
type RetentionPolicy interface {
	Window(tenantID string) time.Duration
}

// StaticRetention is a RetentionPolicy with a default window plus explicit
// per-tenant overrides.
type StaticRetention struct {
	Default   time.Duration
	Overrides map[string]time.Duration
}

func (p StaticRetention) Window(tenantID string) time.Duration {
	if window, ok := p.Overrides[tenantID]; ok {
		return window
	}
	return p.Default
}
