package store

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"ledgerd/internal/tenant/models"
	"ledgerd/pkg/platform/sentinel"
)

// MemoryStore keeps governance records in memory for tests and single-node
// development.
type MemoryStore struct {
	mu      sync.RWMutex
	tenants map[string]models.Tenant
}

func NewMemory() *MemoryStore {
	return &MemoryStore{tenants: make(map[string]models.Tenant)}
}

func (s *MemoryStore) Upsert(_ context.Context, tenant models.Tenant) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tenants[tenant.ID] = tenant
	return nil
}

func (s *MemoryStore) Get(_ context.Context, tenantID string) (models.Tenant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	tenant, ok := s.tenants[tenantID]
	if !ok {
		return models.Tenant{}, fmt.Errorf("tenant %s: %w", tenantID, sentinel.ErrNotFound)
	}
	return tenant, nil
}

func (s *MemoryStore) List(_ context.Context) ([]models.Tenant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.Tenant, 0, len(s.tenants))
	for _, tenant := range s.tenants {
		out = append(out, tenant)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}
