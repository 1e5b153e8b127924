package models

import (
	"time"

	dErrors "ledgerd/pkg/domain-errors"
)

// Tenant is the governance record for one tenant: retention policy,
// dead-letter window, and legal-hold status.
//
// Invariants:
//   - ID is non-empty; Name is at most 128 characters
//   - RetentionMaxAgeDays and RetentionExpireDays are non-negative
//   - RetentionExpireDays, when set, is not shorter than RetentionMaxAgeDays
//   - a held tenant's receipts never leave the active retention state
type Tenant struct {
	ID   string `json:"id"`
	Name string `json:"name"`

	// RetentionMaxAgeDays archives receipts older than this many days.
	// Zero falls back to the service default.
	RetentionMaxAgeDays int `json:"retention_max_age_days"`

	// RetentionExpireDays expires archived receipts. Zero means never.
	RetentionExpireDays int `json:"retention_expire_days"`

	// DLQRetention overrides the dead-letter window. Zero falls back to the
	// service default.
	DLQRetention time.Duration `json:"dlq_retention"`

	LegalHold bool `json:"legal_hold"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (t *Tenant) Validate() error {
	if t.ID == "" {
		return dErrors.New(dErrors.CodeInvariantViolation, "tenant id cannot be empty")
	}
	if len(t.Name) > 128 {
		return dErrors.New(dErrors.CodeInvariantViolation, "tenant name must be 128 characters or less")
	}
	if t.RetentionMaxAgeDays < 0 || t.RetentionExpireDays < 0 {
		return dErrors.New(dErrors.CodeInvariantViolation, "retention windows cannot be negative")
	}
	if t.RetentionExpireDays > 0 && t.RetentionExpireDays < t.RetentionMaxAgeDays {
		return dErrors.New(dErrors.CodeInvariantViolation, "expiry cannot precede archival")
	}
	return nil
}

// ApplyLegalHold flips the hold flag and tracks when it changed.
func (t *Tenant) ApplyLegalHold(held bool, now time.Time) {
	t.LegalHold = held
	t.UpdatedAt = now
}

func New(id, name string, now time.Time) (*Tenant, error) {
	t := &Tenant{
		ID:        id,
		Name:      name,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := t.Validate(); err != nil {
		return nil, err
	}
	return t, nil
}
