package models

import (
	"time"

	"ledgerd/pkg/canonical"
)

// Snapshot is a signed, content-addressed policy document produced by the
// policy registry. A snapshot is never mutated once cached; a changed policy
// is a new snapshot with a new hash.
type Snapshot struct {
	PolicyID     string         `json:"policy_id"`
	Version      string         `json:"version"`
	SnapshotHash string         `json:"snapshot_hash"`
	Content      map[string]any `json:"content"`
	KID          string         `json:"kid"`
	Signature    string         `json:"signature"`
	IssuedAt     time.Time      `json:"issued_at"`
}

// VersionID formats the snapshot's identity the way receipts reference it.
func (s Snapshot) VersionID() string {
	return s.PolicyID + "-" + s.Version
}

// SigningBytes returns the canonical encoding of the snapshot with the
// signature field excluded; this is the exact input the registry key signs.
func (s Snapshot) SigningBytes() ([]byte, error) {
	body := struct {
		PolicyID     string         `json:"policy_id"`
		Version      string         `json:"version"`
		SnapshotHash string         `json:"snapshot_hash"`
		Content      map[string]any `json:"content"`
		KID          string         `json:"kid"`
		IssuedAt     time.Time      `json:"issued_at"`
	}{
		PolicyID:     s.PolicyID,
		Version:      s.Version,
		SnapshotHash: s.SnapshotHash,
		Content:      s.Content,
		KID:          s.KID,
		IssuedAt:     s.IssuedAt,
	}
	return canonical.Encode(body)
}
