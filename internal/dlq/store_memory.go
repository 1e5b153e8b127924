package dlq

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryStore is the in-memory DLQ used in tests and single-node
// deployments. Expiry is applied lazily on read.
type MemoryStore struct {
	retention RetentionPolicy

	mu      sync.RWMutex
	entries map[string][]Entry
}

// NewMemory constructs an empty in-memory DLQ.
func NewMemory(retention RetentionPolicy) *MemoryStore {
	return &MemoryStore{
		retention: retention,
		entries:   make(map[string][]Entry),
	}
}

func (s *MemoryStore) Push(_ context.Context, entry Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[entry.TenantID] = append(s.entries[entry.TenantID], entry)
	return nil
}

func (s *MemoryStore) List(_ context.Context, tenantID string) ([]Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cutoff := time.Now().Add(-s.retention.Window(tenantID))
	var out []Entry
	for _, entry := range s.entries[tenantID] {
		if entry.ReceivedAt.After(cutoff) {
			out = append(out, entry)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].ReceivedAt.Before(out[j].ReceivedAt)
	})
	return out, nil
}
