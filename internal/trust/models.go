package trust

import (
	"time"

	"ledgerd/pkg/canonical"
)

// Algorithm names a signature scheme for a verification key.
type Algorithm string

const (
	AlgorithmEd25519 Algorithm = "ed25519"
)

// Key is a public verification key. Keys are immutable once issued; rotation
// supersedes a key with a new KID, it never mutates the old one.
type Key struct {
	KID       string    `json:"kid"`
	PublicKey []byte    `json:"public_key"`
	Algorithm Algorithm `json:"algorithm"`
	NotBefore time.Time `json:"not_before"`
	NotAfter  time.Time `json:"not_after"`
}

// ValidAt reports whether t falls inside the key's validity window. Expired
// keys stay resolvable for historical verification; callers decide whether
// the window matters for their operation.
func (k Key) ValidAt(t time.Time) bool {
	if !k.NotBefore.IsZero() && t.Before(k.NotBefore) {
		return false
	}
	if !k.NotAfter.IsZero() && t.After(k.NotAfter) {
		return false
	}
	return true
}

// KeySet is the distributable key set document. Like the CRL it is signed by
// the anchor, so a consuming plane can verify it against the anchor key
// before accepting any key it carries.
type KeySet struct {
	Keys      []Key     `json:"keys"`
	IssuedAt  time.Time `json:"issued_at"`
	Signature string    `json:"signature"`
}

// SigningBytes returns the canonical encoding of the key set with the
// signature field excluded; this is the exact input the anchor key signs.
func (k KeySet) SigningBytes() ([]byte, error) {
	body := struct {
		Keys     []Key     `json:"keys"`
		IssuedAt time.Time `json:"issued_at"`
	}{
		Keys:     k.Keys,
		IssuedAt: k.IssuedAt,
	}
	return canonical.Encode(body)
}

// RevocationList is the current set of keys that must no longer be trusted.
// It replaces the previous list wholesale on update; there is no partial
// patching, which rules out split-brain revocation state.
type RevocationList struct {
	RevokedKIDs []string  `json:"revoked_kids"`
	IssuedAt    time.Time `json:"issued_at"`
	Signature   string    `json:"signature"`
}

// SigningBytes returns the canonical encoding of the list with the signature
// field excluded; this is the exact input the anchor key signs.
func (c RevocationList) SigningBytes() ([]byte, error) {
	body := struct {
		RevokedKIDs []string  `json:"revoked_kids"`
		IssuedAt    time.Time `json:"issued_at"`
	}{
		RevokedKIDs: c.RevokedKIDs,
		IssuedAt:    c.IssuedAt,
	}
	return canonical.Encode(body)
}
