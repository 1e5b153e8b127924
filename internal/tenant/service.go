// Package tenant resolves governance policy: how long a tenant's receipts
// stay active, how long dead-lettered records are kept, and whether the
// tenant is under legal hold. The retention engine and the DLQ consult it
// instead of reading config directly.
package tenant

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"ledgerd/internal/ledger"
	"ledgerd/internal/retention"
	"ledgerd/internal/tenant/metrics"
	"ledgerd/internal/tenant/models"
	"ledgerd/internal/tenant/store"
	audit "ledgerd/pkg/platform/audit"
	"ledgerd/pkg/platform/audit/publisher"
	"ledgerd/pkg/platform/sentinel"
)

// Defaults apply to tenants without a governance record, and to record
// fields left at zero.
type Defaults struct {
	Retention    retention.TenantPolicy
	DLQRetention time.Duration
}

// Service fronts the governance store with an in-memory snapshot so the
// retention pass and DLQ writes resolve policy without a round trip.
// Records are few and change rarely; Load refreshes the snapshot.
type Service struct {
	store    store.Store
	index    ledger.Store
	defaults Defaults
	audit    *publisher.Publisher
	logger   *slog.Logger
	metrics  *metrics.Metrics

	mu      sync.RWMutex
	tenants map[string]models.Tenant
}

func NewService(
	st store.Store,
	index ledger.Store,
	defaults Defaults,
	auditPub *publisher.Publisher,
	logger *slog.Logger,
	m *metrics.Metrics,
) *Service {
	return &Service{
		store:    st,
		index:    index,
		defaults: defaults,
		audit:    auditPub,
		logger:   logger,
		metrics:  m,
		tenants:  make(map[string]models.Tenant),
	}
}

// Load replaces the snapshot with the store's current records.
func (s *Service) Load(ctx context.Context) error {
	records, err := s.store.List(ctx)
	if err != nil {
		return fmt.Errorf("load governance records: %w", err)
	}
	snapshot := make(map[string]models.Tenant, len(records))
	for _, record := range records {
		snapshot[record.ID] = record
	}
	s.mu.Lock()
	s.tenants = snapshot
	s.mu.Unlock()
	return nil
}

// Upsert validates and persists a governance record, then updates the
// snapshot.
func (s *Service) Upsert(ctx context.Context, tenant models.Tenant) error {
	if err := tenant.Validate(); err != nil {
		return err
	}
	if err := s.store.Upsert(ctx, tenant); err != nil {
		return err
	}
	s.mu.Lock()
	s.tenants[tenant.ID] = tenant
	s.mu.Unlock()
	return nil
}

// Get returns the governance record, or sentinel.ErrNotFound.
func (s *Service) Get(ctx context.Context, tenantID string) (models.Tenant, error) {
	return s.store.Get(ctx, tenantID)
}

// SetLegalHold flips the hold flag on the governance record and cascades
// the marker to the tenant's ledger entries so the retention pass skips
// them even between snapshot refreshes.
func (s *Service) SetLegalHold(ctx context.Context, tenantID string, held bool) error {
	tenant, err := s.store.Get(ctx, tenantID)
	if errors.Is(err, sentinel.ErrNotFound) {
		created, nerr := models.New(tenantID, "", time.Now().UTC())
		if nerr != nil {
			return nerr
		}
		tenant = *created
	} else if err != nil {
		return err
	}

	tenant.ApplyLegalHold(held, time.Now().UTC())
	if err := s.store.Upsert(ctx, tenant); err != nil {
		return err
	}
	if err := s.index.SetLegalHold(ctx, tenantID, held); err != nil {
		return fmt.Errorf("cascade legal hold to ledger: %w", err)
	}

	s.mu.Lock()
	s.tenants[tenantID] = tenant
	s.mu.Unlock()

	s.metrics.IncrementLegalHoldChange(held)
	if s.audit != nil {
		event := audit.NewEvent(audit.EventLegalHoldChanged)
		event.TenantID = tenantID
		event.Decision = "released"
		if held {
			event.Decision = "held"
		}
		if err := s.audit.Emit(ctx, event); err != nil {
			s.logger.WarnContext(ctx, "audit emit failed", "action", event.Action, "error", err)
		}
	}
	s.logger.InfoContext(ctx, "legal hold changed", "tenant_id", tenantID, "held", held)
	return nil
}

// For resolves the retention policy for a tenant. Zero fields in the
// governance record fall back to the defaults.
func (s *Service) For(tenantID string) retention.TenantPolicy {
	s.mu.RLock()
	tenant, ok := s.tenants[tenantID]
	s.mu.RUnlock()
	if !ok {
		s.metrics.IncrementPolicyLookup("default")
		return s.defaults.Retention
	}
	s.metrics.IncrementPolicyLookup("override")

	policy := s.defaults.Retention
	if tenant.RetentionMaxAgeDays > 0 {
		policy.MaxAgeDays = tenant.RetentionMaxAgeDays
	}
	if tenant.RetentionExpireDays > 0 {
		policy.ExpireAfterDays = tenant.RetentionExpireDays
	}
	return policy
}

// LegalHold reports whether the tenant is under legal hold.
func (s *Service) LegalHold(tenantID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.tenants[tenantID].LegalHold
}

// Window resolves the dead-letter retention window for a tenant.
func (s *Service) Window(tenantID string) time.Duration {
	s.mu.RLock()
	tenant, ok := s.tenants[tenantID]
	s.mu.RUnlock()
	if !ok || tenant.DLQRetention <= 0 {
		return s.defaults.DLQRetention
	}
	return tenant.DLQRetention
}
