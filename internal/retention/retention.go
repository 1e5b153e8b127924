// Package retention ages ledger entries out of the active state on a
// recurring background pass. The pass mutates only ledger-side metadata; the
// receipt payload is immutable. Legal holds always win over age.
package retention

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"ledgerd/internal/ledger"
	"ledgerd/internal/retention/metrics"
	audit "ledgerd/pkg/platform/audit"
	"ledgerd/pkg/platform/audit/publisher"
)

// TenantPolicy decides when a tenant's receipts leave the active state.
// ExpireAfterDays of zero means entries archive but never expire.
type TenantPolicy struct {
	MaxAgeDays      int
	ExpireAfterDays int
}

// PolicySource resolves retention policy and legal-hold status per tenant.
// Backed by the external governance collaborator in production and by static
// config otherwise.
type PolicySource interface {
	For(tenantID string) TenantPolicy
	LegalHold(tenantID string) bool
}

// StaticPolicies is a PolicySource from configuration.
type StaticPolicies struct {
	Default          TenantPolicy
	Overrides        map[string]TenantPolicy
	LegalHoldTenants map[string]struct{}
}

func (p StaticPolicies) For(tenantID string) TenantPolicy {
	if policy, ok := p.Overrides[tenantID]; ok {
		return policy
	}
	return p.Default
}

func (p StaticPolicies) LegalHold(tenantID string) bool {
	_, held := p.LegalHoldTenants[tenantID]
	return held
}

// Engine runs the retention pass.
type Engine struct {
	index    ledger.Store
	policies PolicySource
	interval time.Duration
	audit    *publisher.Publisher
	logger   *slog.Logger
	metrics  *metrics.Metrics

	// now is swappable in tests.
	now func() time.Time
}

// NewEngine constructs a retention engine. Interval zero disables the
// background loop; Pass can still be invoked directly.
func NewEngine(
	index ledger.Store,
	policies PolicySource,
	interval time.Duration,
	auditPub *publisher.Publisher,
	logger *slog.Logger,
	m *metrics.Metrics,
) *Engine {
	return &Engine{
		index:    index,
		policies: policies,
		interval: interval,
		audit:    auditPub,
		logger:   logger,
		metrics:  m,
		now:      time.Now,
	}
}

// Run executes passes on the configured interval until the context is
// cancelled. An interrupted pass is logged and resumed by the next tick; the
// pass is re-entrant, so a resume never double-applies a transition.
func (e *Engine) Run(ctx context.Context) {
	if e.interval <= 0 {
		return
	}
	ticker := time.NewTicker(e.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := e.Pass(ctx); err != nil {
				if errors.Is(err, context.Canceled) {
					e.logger.Warn("retention pass interrupted, resuming next tick")
					e.metrics.IncrementPass("interrupted")
					return
				}
				e.logger.Error("retention pass failed", "error", err)
				e.metrics.IncrementPass("failed")
			}
		}
	}
}

// Pass sweeps every tenant's active entries once. Running it twice in a row
// produces the same end state: each entry transitions at most once, and held
// entries never transition at all.
func (e *Engine) Pass(ctx context.Context) error {
	start := e.now()
	defer func() { e.metrics.ObservePassDuration(time.Since(start)) }()

	tenants, err := e.index.Tenants(ctx)
	if err != nil {
		return err
	}

	transitions := 0
	for _, tenantID := range tenants {
		if err := ctx.Err(); err != nil {
			return err
		}

		if e.policies.LegalHold(tenantID) {
			e.logger.Debug("tenant under legal hold, skipping", "tenant_id", tenantID)
			e.emitAudit(ctx, audit.EventLegalHoldSkipped, tenantID, "", "")
			continue
		}

		applied, err := e.sweepTenant(ctx, tenantID)
		if err != nil {
			return err
		}
		transitions += applied
	}

	e.logger.Info("retention pass completed",
		"tenants", len(tenants),
		"transitions", transitions,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	e.metrics.IncrementPass("completed")
	return nil
}

func (e *Engine) sweepTenant(ctx context.Context, tenantID string) (int, error) {
	policy := e.policies.For(tenantID)
	if policy.MaxAgeDays <= 0 {
		return 0, nil
	}

	entries, err := e.index.ActiveByTenant(ctx, tenantID)
	if err != nil {
		return 0, err
	}

	now := e.now().UTC()
	applied := 0
	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return applied, err
		}
		if entry.LegalHold {
			e.metrics.IncrementHeldSkipped()
			continue
		}

		target, ok := targetState(policy, now.Sub(entry.Receipt.TimestampUTC))
		if !ok {
			continue
		}

		receiptID := entry.Receipt.ReceiptID
		if err := e.index.SetRetentionState(ctx, receiptID, target); err != nil {
			return applied, err
		}
		applied++
		e.metrics.IncrementTransition(string(target))
		e.emitAudit(ctx, audit.EventRetentionTransition, tenantID, receiptID, string(target))
	}
	return applied, nil
}

// targetState picks the state an active entry of the given age should move
// to, or ok=false when it stays active. Ages are compared as durations so an
// entry transitions the moment it crosses the threshold, not a full day
// later.
func targetState(policy TenantPolicy, age time.Duration) (ledger.RetentionState, bool) {
	if policy.ExpireAfterDays > 0 && age > days(policy.ExpireAfterDays) {
		return ledger.RetentionExpired, true
	}
	if age > days(policy.MaxAgeDays) {
		return ledger.RetentionArchived, true
	}
	return "", false
}

func days(n int) time.Duration {
	return time.Duration(n) * 24 * time.Hour
}

func (e *Engine) emitAudit(ctx context.Context, action audit.AuditEvent, tenantID, receiptID, reason string) {
	if e.audit == nil {
		return
	}
	event := audit.NewEvent(action)
	event.TenantID = tenantID
	event.ReceiptID = receiptID
	event.Reason = reason
	if err := e.audit.Emit(ctx, event); err != nil {
		e.logger.Error("audit emit failed", "action", action, "error", err)
	}
}
