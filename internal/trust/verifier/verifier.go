// Package verifier admits or rejects policy snapshots before they may be
// cached or used for evaluation. Verification needs only a synced trust
// store, never a live network call, so edge planes can verify offline.
package verifier

import (
	"crypto/ed25519"
	"encoding/base64"
	"errors"
	"fmt"

	"ledgerd/internal/policy/models"
	"ledgerd/internal/trust"
	"ledgerd/pkg/canonical"
	"ledgerd/pkg/platform/sentinel"
)

// Verifier checks snapshot signature, hash integrity and revocation status
// against an explicitly passed trust store. It is stateless and safe for
// concurrent use.
type Verifier struct {
	store *trust.Store
}

// New constructs a verifier over the given trust store.
func New(store *trust.Store) *Verifier {
	return &Verifier{store: store}
}

// Verify admits a snapshot or rejects it outright; there is no partial
// trust. Checks run in fixed order: key resolution, revocation, hash
// integrity, signature.
func (v *Verifier) Verify(snapshot models.Snapshot) error {
	key, err := v.store.GetKey(snapshot.KID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return fmt.Errorf("snapshot %s kid %s: %w", snapshot.VersionID(), snapshot.KID, trust.ErrUnknownKey)
		}
		return err
	}

	if v.store.IsRevoked(snapshot.KID) {
		return fmt.Errorf("snapshot %s kid %s: %w", snapshot.VersionID(), snapshot.KID, trust.ErrRevokedKey)
	}

	hash, err := canonical.Hash(snapshot.Content)
	if err != nil {
		return fmt.Errorf("hash snapshot content: %w", err)
	}
	if hash != snapshot.SnapshotHash {
		return fmt.Errorf("snapshot %s: %w", snapshot.VersionID(), trust.ErrHashMismatch)
	}

	sig, err := base64.StdEncoding.DecodeString(snapshot.Signature)
	if err != nil {
		return fmt.Errorf("snapshot %s: %w", snapshot.VersionID(), trust.ErrInvalidSignature)
	}
	body, err := snapshot.SigningBytes()
	if err != nil {
		return fmt.Errorf("canonicalize snapshot: %w", err)
	}
	if !ed25519.Verify(ed25519.PublicKey(key.PublicKey), body, sig) {
		return fmt.Errorf("snapshot %s: %w", snapshot.VersionID(), trust.ErrInvalidSignature)
	}

	return nil
}
