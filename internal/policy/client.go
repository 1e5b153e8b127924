// Package policy fetches and caches verified policy snapshots for the
// decision planes. Only snapshots admitted by the trust verifier are ever
// cached; an unreachable registry degrades to the last verified snapshot
// rather than to failure.
package policy

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"ledgerd/internal/policy/models"
)

// RegistryClient retrieves policy snapshots from the external policy
// registry.
type RegistryClient interface {
	FetchSnapshot(ctx context.Context, policyID string) (models.Snapshot, error)
}

// HTTPRegistryClient talks to the policy registry over HTTP.
type HTTPRegistryClient struct {
	baseURL string
	client  *http.Client
}

// NewHTTPRegistryClient constructs a registry client. The http.Client's
// timeout bounds every snapshot fetch.
func NewHTTPRegistryClient(baseURL string, client *http.Client) *HTTPRegistryClient {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPRegistryClient{baseURL: baseURL, client: client}
}

func (c *HTTPRegistryClient) FetchSnapshot(ctx context.Context, policyID string) (models.Snapshot, error) {
	endpoint := fmt.Sprintf("%s/policies/%s/snapshot", c.baseURL, url.PathEscape(policyID))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return models.Snapshot{}, fmt.Errorf("build registry request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return models.Snapshot{}, fmt.Errorf("fetch snapshot %s: %w", policyID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return models.Snapshot{}, fmt.Errorf("fetch snapshot %s: registry returned %d", policyID, resp.StatusCode)
	}

	var snap models.Snapshot
	if err := json.NewDecoder(resp.Body).Decode(&snap); err != nil {
		return models.Snapshot{}, fmt.Errorf("decode snapshot %s: %w", policyID, err)
	}
	return snap, nil
}
