// Package models defines the DecisionReceipt, the unit of evidence every
// policy-gated decision leaves behind. Receipts are immutable once written;
// corrections are new receipts referencing the old one.
package models

import (
	"fmt"
	"time"

	"ledgerd/pkg/canonical"
)

// EvaluationPoint names the gate in the delivery pipeline that produced a
// receipt.
type EvaluationPoint string

const (
	PointPreCommit  EvaluationPoint = "pre-commit"
	PointPreMerge   EvaluationPoint = "pre-merge"
	PointPreDeploy  EvaluationPoint = "pre-deploy"
	PointPostDeploy EvaluationPoint = "post-deploy"
)

// Valid reports whether the evaluation point is one of the known gates.
func (p EvaluationPoint) Valid() bool {
	switch p {
	case PointPreCommit, PointPreMerge, PointPreDeploy, PointPostDeploy:
		return true
	}
	return false
}

// DecisionStatus is the outcome of a gate evaluation.
type DecisionStatus string

const (
	StatusPass      DecisionStatus = "pass"
	StatusWarn      DecisionStatus = "warn"
	StatusSoftBlock DecisionStatus = "soft_block"
	StatusHardBlock DecisionStatus = "hard_block"
)

// Valid reports whether the status is a known outcome.
func (d DecisionStatus) Valid() bool {
	switch d {
	case StatusPass, StatusWarn, StatusSoftBlock, StatusHardBlock:
		return true
	}
	return false
}

// Decision captures the gate outcome and its justification.
type Decision struct {
	Status    DecisionStatus `json:"status"`
	Rationale string         `json:"rationale,omitempty"`
	Badges    []string       `json:"badges,omitempty"`
}

// EvidenceHandle points at supporting material stored outside the ledger.
type EvidenceHandle struct {
	URL         string     `json:"url"`
	Type        string     `json:"type"`
	Description string     `json:"description,omitempty"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty"`
}

// Actor identifies who or what invoked the gate. Inputs carry derived
// attributes only, never raw source or secrets.
type Actor struct {
	RepoID             string `json:"repo_id"`
	MachineFingerprint string `json:"machine_fingerprint,omitempty"`
	Type               string `json:"type,omitempty"`
}

// DecisionReceipt is the cryptographically verifiable record of one gate
// decision, chained to the policy snapshots that produced it.
type DecisionReceipt struct {
	ReceiptID            string           `json:"receipt_id"`
	GateID               string           `json:"gate_id"`
	EvaluationPoint      EvaluationPoint  `json:"evaluation_point"`
	PolicyVersionIDs     []string         `json:"policy_version_ids"`
	CombinedSnapshotHash string           `json:"combined_snapshot_hash,omitempty"`
	TimestampUTC         time.Time        `json:"timestamp_utc"`
	TimestampMonotonic   int64            `json:"timestamp_monotonic"`
	Inputs               map[string]any   `json:"inputs,omitempty"`
	Decision             Decision         `json:"decision"`
	EvidenceHandles      []EvidenceHandle `json:"evidence_handles,omitempty"`
	Actor                Actor            `json:"actor"`
	ParentReceiptID      string           `json:"parent_receipt_id,omitempty"`
	Degraded             bool             `json:"degraded"`
	KID                  string           `json:"kid"`
	Signature            string           `json:"signature,omitempty"`
}

// SigningBytes returns the canonical encoding of the receipt with the
// signature field excluded; this is the exact input that gets signed and the
// exact input verifiers recompute.
func (r DecisionReceipt) SigningBytes() ([]byte, error) {
	body := r
	body.Signature = ""
	return canonical.Encode(body)
}

// Validate enforces the required-field schema at the ingestion boundary.
// Shape varies per evaluation point only in optional fields; the required
// core is common to all four gates.
func (r DecisionReceipt) Validate() error {
	if r.ReceiptID == "" {
		return fmt.Errorf("receipt_id is required")
	}
	if r.GateID == "" {
		return fmt.Errorf("gate_id is required")
	}
	if !r.EvaluationPoint.Valid() {
		return fmt.Errorf("unknown evaluation_point %q", r.EvaluationPoint)
	}
	if r.TimestampUTC.IsZero() {
		return fmt.Errorf("timestamp_utc is required")
	}
	if !r.Decision.Status.Valid() {
		return fmt.Errorf("unknown decision status %q", r.Decision.Status)
	}
	if r.Actor.RepoID == "" {
		return fmt.Errorf("actor.repo_id is required")
	}
	if r.KID == "" {
		return fmt.Errorf("kid is required")
	}
	if r.Signature == "" {
		return fmt.Errorf("signature is required")
	}
	if !r.Degraded && (len(r.PolicyVersionIDs) == 0 || r.CombinedSnapshotHash == "") {
		return fmt.Errorf("non-degraded receipt must reference policy snapshots")
	}
	return nil
}
