// Package ledger defines the evidence ledger entry: a stored receipt plus
// the indexing metadata the pipeline derives at ingestion time. The ledger
// is append-only; indexing metadata may be updated in place, the receipt
// payload may not.
package ledger

import (
	"context"
	"time"

	"ledgerd/internal/receipt/models"
)

// RetentionState tracks where an entry sits in its retention lifecycle.
type RetentionState string

const (
	RetentionActive   RetentionState = "active"
	RetentionArchived RetentionState = "archived"
	RetentionExpired  RetentionState = "expired"
)

// Entry is a DecisionReceipt plus derived indexing metadata.
type Entry struct {
	Receipt  models.DecisionReceipt `json:"receipt"`
	TenantID string                 `json:"tenant_id"`
	// PayloadHash is the canonical hash of the receipt body recorded at
	// ingestion; verification recomputes it to detect index tampering.
	PayloadHash    string         `json:"payload_hash,omitempty"`
	IngestedAt     time.Time      `json:"ingested_at"`
	RetentionState RetentionState `json:"retention_state"`
	LegalHold      bool           `json:"legal_hold"`
	// Orphaned is true when parent_receipt_id did not resolve at ingestion
	// time. Chain traversal re-checks; late-arriving parents heal the link.
	Orphaned bool `json:"orphaned"`
}

// Store indexes ledger entries for lookup, traversal and retention.
// Implementations must treat the receipt payload as immutable: only the
// derived metadata columns ever change.
type Store interface {
	// Insert adds a new entry. Returns sentinel.ErrConflict when the
	// receipt_id is already stored.
	Insert(ctx context.Context, entry Entry) error

	// Get returns the entry for a receipt ID, or sentinel.ErrNotFound.
	Get(ctx context.Context, receiptID string) (Entry, error)

	// Exists reports whether a receipt ID is stored.
	Exists(ctx context.Context, receiptID string) (bool, error)

	// Children returns entries whose receipts name the given ID as parent.
	Children(ctx context.Context, receiptID string) ([]Entry, error)

	// Tenants lists the distinct tenants holding entries.
	Tenants(ctx context.Context) ([]string, error)

	// ActiveByTenant returns the tenant's entries still in the active
	// retention state.
	ActiveByTenant(ctx context.Context, tenantID string) ([]Entry, error)

	// SetRetentionState updates an entry's retention state in place.
	SetRetentionState(ctx context.Context, receiptID string, state RetentionState) error

	// SetLegalHold updates the legal-hold marker on all of a tenant's
	// entries. Held entries are never transitioned or deleted.
	SetLegalHold(ctx context.Context, tenantID string, hold bool) error
}
