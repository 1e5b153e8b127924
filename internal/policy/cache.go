package policy

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"ledgerd/internal/policy/models"
	"ledgerd/pkg/platform/sentinel"
)

// Verifier admits or rejects a snapshot. Satisfied by the trust verifier.
type Verifier interface {
	Verify(snapshot models.Snapshot) error
}

// Cache holds the last verified snapshot per policy. Refresh failures fall
// back to the cached copy (bounded staleness) so decisions stay available
// while the registry is unreachable. Verification failures never fall back:
// an inadmissible snapshot is rejected outright and the cache keeps its
// previous state.
type Cache struct {
	client   RegistryClient
	verifier Verifier
	logger   *slog.Logger
	timeout  time.Duration

	mu        sync.RWMutex
	snapshots map[string]models.Snapshot
}

// NewCache constructs a snapshot cache. timeout bounds each registry call.
func NewCache(client RegistryClient, verifier Verifier, logger *slog.Logger, timeout time.Duration) *Cache {
	return &Cache{
		client:    client,
		verifier:  verifier,
		logger:    logger,
		timeout:   timeout,
		snapshots: make(map[string]models.Snapshot),
	}
}

// Refresh fetches, verifies and caches the current snapshot for a policy.
// On a fetch failure the last verified snapshot is returned instead; on a
// verification failure the error is surfaced and nothing is cached.
func (c *Cache) Refresh(ctx context.Context, policyID string) (models.Snapshot, error) {
	fetchCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	snap, err := c.client.FetchSnapshot(fetchCtx, policyID)
	if err != nil {
		if cached, ok := c.Get(policyID); ok {
			c.logger.WarnContext(ctx, "registry unreachable, serving cached snapshot",
				"policy_id", policyID,
				"cached_version", cached.Version,
				"error", err,
			)
			return cached, nil
		}
		return models.Snapshot{}, fmt.Errorf("refresh %s with empty cache: %w", policyID, sentinel.ErrUnavailable)
	}

	if err := c.verifier.Verify(snap); err != nil {
		c.logger.ErrorContext(ctx, "snapshot rejected by trust verifier",
			"policy_id", policyID,
			"version", snap.Version,
			"kid", snap.KID,
			"error", err,
		)
		return models.Snapshot{}, err
	}

	c.mu.Lock()
	c.snapshots[policyID] = snap
	c.mu.Unlock()
	return snap, nil
}

// Get returns the cached verified snapshot for a policy, if any.
func (c *Cache) Get(policyID string) (models.Snapshot, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	snap, ok := c.snapshots[policyID]
	return snap, ok
}

// ActiveSet returns the cached snapshots for the requested policies.
// Policies with no verified snapshot are simply absent from the result; the
// receipt generator degrades gracefully on an empty set.
func (c *Cache) ActiveSet(policyIDs []string) []models.Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]models.Snapshot, 0, len(policyIDs))
	for _, id := range policyIDs {
		if snap, ok := c.snapshots[id]; ok {
			out = append(out, snap)
		}
	}
	return out
}
