package receipt

import (
	"crypto/ed25519"
	"encoding/base64"
	"fmt"
	"time"

	"ledgerd/internal/receipt/models"
	"ledgerd/internal/trust"
)

// Signer signs receipt bodies with an Ed25519 key registered in the trust
// store. Ed25519 is deterministic: signing the same body twice yields the
// same signature, which keeps receipts reproducible.
type Signer struct {
	kid  string
	priv ed25519.PrivateKey
}

// NewSigner constructs a signer for the given key.
func NewSigner(kid string, priv ed25519.PrivateKey) *Signer {
	return &Signer{kid: kid, priv: priv}
}

// KID returns the key identifier receipts are stamped with.
func (s *Signer) KID() string {
	return s.kid
}

// Sign computes the signature over the receipt's canonical bytes with the
// signature field excluded.
func (s *Signer) Sign(r models.DecisionReceipt) (string, error) {
	body, err := r.SigningBytes()
	if err != nil {
		return "", fmt.Errorf("canonicalize receipt: %w", err)
	}
	return base64.StdEncoding.EncodeToString(ed25519.Sign(s.priv, body)), nil
}

// VerifySignature recomputes a stored receipt's signature against the key
// named by its KID. Used by the verification endpoints and by ingestion.
// Key resolution is time-aware: the key must have been valid at the receipt's
// timestamp, so rotated-out keys still verify the receipts they signed while
// receipts claiming a timestamp outside the key's window are rejected.
func VerifySignature(store *trust.Store, r models.DecisionReceipt) error {
	key, err := store.GetKey(r.KID)
	if err != nil {
		return fmt.Errorf("receipt %s kid %s: %w", r.ReceiptID, r.KID, trust.ErrUnknownKey)
	}
	if !key.ValidAt(r.TimestampUTC) {
		return fmt.Errorf("receipt %s: kid %s not valid at %s: %w",
			r.ReceiptID, r.KID, r.TimestampUTC.Format(time.RFC3339), trust.ErrUnknownKey)
	}
	sig, err := base64.StdEncoding.DecodeString(r.Signature)
	if err != nil {
		return fmt.Errorf("receipt %s: %w", r.ReceiptID, trust.ErrInvalidSignature)
	}
	body, err := r.SigningBytes()
	if err != nil {
		return fmt.Errorf("canonicalize receipt: %w", err)
	}
	if !ed25519.Verify(ed25519.PublicKey(key.PublicKey), body, sig) {
		return fmt.Errorf("receipt %s: %w", r.ReceiptID, trust.ErrInvalidSignature)
	}
	return nil
}
