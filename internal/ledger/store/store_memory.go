package store

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"ledgerd/internal/ledger"
	"ledgerd/pkg/platform/sentinel"
)

// MemoryStore is the in-memory ledger index used in tests and single-node
// deployments. PostgresStore is the durable implementation.
type MemoryStore struct {
	mu       sync.RWMutex
	entries  map[string]ledger.Entry
	children map[string][]string
}

// NewMemory constructs an empty in-memory index.
func NewMemory() *MemoryStore {
	return &MemoryStore{
		entries:  make(map[string]ledger.Entry),
		children: make(map[string][]string),
	}
}

func (s *MemoryStore) Insert(_ context.Context, entry ledger.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := entry.Receipt.ReceiptID
	if _, exists := s.entries[id]; exists {
		return fmt.Errorf("receipt %s: %w", id, sentinel.ErrConflict)
	}
	s.entries[id] = entry
	if parent := entry.Receipt.ParentReceiptID; parent != "" {
		s.children[parent] = append(s.children[parent], id)
	}
	return nil
}

func (s *MemoryStore) Get(_ context.Context, receiptID string) (ledger.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entry, ok := s.entries[receiptID]
	if !ok {
		return ledger.Entry{}, fmt.Errorf("receipt %s: %w", receiptID, sentinel.ErrNotFound)
	}
	return entry, nil
}

func (s *MemoryStore) Exists(_ context.Context, receiptID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.entries[receiptID]
	return ok, nil
}

func (s *MemoryStore) Children(_ context.Context, receiptID string) ([]ledger.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := s.children[receiptID]
	out := make([]ledger.Entry, 0, len(ids))
	for _, id := range ids {
		out = append(out, s.entries[id])
	}
	return out, nil
}

func (s *MemoryStore) Tenants(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	seen := map[string]struct{}{}
	for _, entry := range s.entries {
		seen[entry.TenantID] = struct{}{}
	}
	out := make([]string, 0, len(seen))
	for tenant := range seen {
		out = append(out, tenant)
	}
	sort.Strings(out)
	return out, nil
}

func (s *MemoryStore) ActiveByTenant(_ context.Context, tenantID string) ([]ledger.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []ledger.Entry
	for _, entry := range s.entries {
		if entry.TenantID == tenantID && entry.RetentionState == ledger.RetentionActive {
			out = append(out, entry)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Receipt.ReceiptID < out[j].Receipt.ReceiptID
	})
	return out, nil
}

func (s *MemoryStore) SetRetentionState(_ context.Context, receiptID string, state ledger.RetentionState) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.entries[receiptID]
	if !ok {
		return fmt.Errorf("receipt %s: %w", receiptID, sentinel.ErrNotFound)
	}
	entry.RetentionState = state
	s.entries[receiptID] = entry
	return nil
}

func (s *MemoryStore) SetLegalHold(_ context.Context, tenantID string, hold bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, entry := range s.entries {
		if entry.TenantID == tenantID {
			entry.LegalHold = hold
			s.entries[id] = entry
		}
	}
	return nil
}
