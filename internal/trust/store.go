// Package trust owns the verification keys and revocation state shared by
// the policy verifier and receipt signature checks.
package trust

import (
	"bytes"
	"crypto/ed25519"
	"encoding/base64"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"ledgerd/pkg/platform/sentinel"
)

// Trust failure taxonomy. These are always fatal to the specific operation
// and never silently downgraded.
var (
	ErrUnknownKey       = errors.New("unknown key")
	ErrRevokedKey       = errors.New("revoked key")
	ErrHashMismatch     = errors.New("hash mismatch")
	ErrInvalidSignature = errors.New("invalid signature")
)

// index is the immutable read view of the store. Updates build a new index
// and swap the pointer, so concurrent readers never observe a partially
// updated key set.
type index struct {
	keys    map[string]Key
	revoked map[string]struct{}
	crl     RevocationList
	keyset  KeySet
}

// Store holds public verification keys and the current revocation list.
// Read-mostly: reads are lock-free against an atomic snapshot; writers are
// serialized against each other.
type Store struct {
	anchor ed25519.PublicKey

	writeMu sync.Mutex
	idx     atomic.Pointer[index]
}

// NewStore constructs a trust store. The anchor key authenticates incoming
// revocation lists; a CRL is never accepted on say-so.
func NewStore(anchor ed25519.PublicKey) *Store {
	s := &Store{anchor: anchor}
	s.idx.Store(&index{
		keys:    map[string]Key{},
		revoked: map[string]struct{}{},
	})
	return s
}

// AddKey appends a verification key. Keys are append-only: re-registering an
// existing KID is a conflict, and nothing ever deletes a key, so receipts
// signed under rotated-out keys stay verifiable.
func (s *Store) AddKey(key Key) error {
	if err := validateKey(key); err != nil {
		return err
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	cur := s.idx.Load()
	if _, exists := cur.keys[key.KID]; exists {
		return fmt.Errorf("key %s: %w", key.KID, sentinel.ErrConflict)
	}
	next := cur.clone()
	next.keys[key.KID] = key
	s.idx.Store(next)
	return nil
}

// GetKey resolves a key by KID.
func (s *Store) GetKey(kid string) (Key, error) {
	key, ok := s.idx.Load().keys[kid]
	if !ok {
		return Key{}, fmt.Errorf("key %s: %w", kid, sentinel.ErrNotFound)
	}
	return key, nil
}

// IsRevoked reports whether the KID appears on the current revocation list.
func (s *Store) IsRevoked(kid string) bool {
	_, revoked := s.idx.Load().revoked[kid]
	return revoked
}

// CRL returns the current revocation list for trust-sync consumers.
func (s *Store) CRL() RevocationList {
	return s.idx.Load().crl
}

// KeySet returns the current anchor-signed key set document for trust-sync
// consumers. Empty until a signed set has been installed.
func (s *Store) KeySet() KeySet {
	return s.idx.Load().keyset
}

// ReplaceKeySet installs a new key set document after verifying its
// signature against the anchor. New keys are registered; a KID already known
// must carry identical material, which keeps the key log append-only. Stale
// documents (issued at or before the current one) are rejected like stale
// CRLs.
func (s *Store) ReplaceKeySet(ks KeySet) error {
	sig, err := base64.StdEncoding.DecodeString(ks.Signature)
	if err != nil {
		return fmt.Errorf("decode key set signature: %w", ErrInvalidSignature)
	}
	body, err := ks.SigningBytes()
	if err != nil {
		return fmt.Errorf("canonicalize key set: %w", err)
	}
	if !ed25519.Verify(s.anchor, body, sig) {
		return fmt.Errorf("key set rejected: %w", ErrInvalidSignature)
	}
	for _, key := range ks.Keys {
		if err := validateKey(key); err != nil {
			return err
		}
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	cur := s.idx.Load()
	if !cur.keyset.IssuedAt.IsZero() && !ks.IssuedAt.After(cur.keyset.IssuedAt) {
		return fmt.Errorf("key set issued_at not newer than current: %w", sentinel.ErrInvalidState)
	}

	next := cur.clone()
	for _, key := range ks.Keys {
		if existing, ok := next.keys[key.KID]; ok {
			if !bytes.Equal(existing.PublicKey, key.PublicKey) {
				return fmt.Errorf("key %s material changed: %w", key.KID, sentinel.ErrConflict)
			}
			continue
		}
		next.keys[key.KID] = key
	}
	next.keyset = ks
	s.idx.Store(next)
	return nil
}

// ReplaceCRL swaps in a new revocation list after verifying its signature
// against the anchor key. Stale lists (issued at or before the current one)
// are rejected so a replayed old CRL cannot roll back revocations.
func (s *Store) ReplaceCRL(crl RevocationList) error {
	sig, err := base64.StdEncoding.DecodeString(crl.Signature)
	if err != nil {
		return fmt.Errorf("decode crl signature: %w", ErrInvalidSignature)
	}
	body, err := crl.SigningBytes()
	if err != nil {
		return fmt.Errorf("canonicalize crl: %w", err)
	}
	if !ed25519.Verify(s.anchor, body, sig) {
		return fmt.Errorf("crl rejected: %w", ErrInvalidSignature)
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	cur := s.idx.Load()
	if !cur.crl.IssuedAt.IsZero() && !crl.IssuedAt.After(cur.crl.IssuedAt) {
		return fmt.Errorf("crl issued_at not newer than current: %w", sentinel.ErrInvalidState)
	}

	next := cur.clone()
	next.crl = crl
	next.revoked = make(map[string]struct{}, len(crl.RevokedKIDs))
	for _, kid := range crl.RevokedKIDs {
		next.revoked[kid] = struct{}{}
	}
	s.idx.Store(next)
	return nil
}

func validateKey(key Key) error {
	if key.KID == "" {
		return fmt.Errorf("key id is required")
	}
	if key.Algorithm != AlgorithmEd25519 {
		return fmt.Errorf("unsupported algorithm %q", key.Algorithm)
	}
	if len(key.PublicKey) != ed25519.PublicKeySize {
		return fmt.Errorf("invalid ed25519 public key size: %d", len(key.PublicKey))
	}
	return nil
}

func (i *index) clone() *index {
	next := &index{
		keys:    make(map[string]Key, len(i.keys)),
		revoked: make(map[string]struct{}, len(i.revoked)),
		crl:     i.crl,
		keyset:  i.keyset,
	}
	for kid, key := range i.keys {
		next.keys[kid] = key
	}
	for kid := range i.revoked {
		next.revoked[kid] = struct{}{}
	}
	return next
}
