package handler

import (
	"time"

	"ledgerd/internal/chain"
	"ledgerd/internal/ingest"
	"ledgerd/internal/ledger"
	"ledgerd/internal/receipt/models"
)

// BatchResponse reports per-item outcomes plus the overall batch status.
type BatchResponse struct {
	Status  ingest.BatchStatus `json:"status"`
	Results []ingest.Result    `json:"results"`
}

// VerifyRangeResponse carries per-receipt outcomes plus a count summary.
type VerifyRangeResponse struct {
	Results []ingest.VerifyResult `json:"results"`
	Summary map[string]int        `json:"summary"`
}

// ChainEntry is one link in a traversal response.
type ChainEntry struct {
	Receipt        models.DecisionReceipt `json:"receipt"`
	IngestedAt     time.Time              `json:"ingested_at"`
	RetentionState ledger.RetentionState  `json:"retention_state"`
	Orphaned       bool                   `json:"orphaned"`
}

// ChainResponse is an upward traversal: the receipt's ancestry from itself
// to its root, with cycle and orphan boundaries reported explicitly.
type ChainResponse struct {
	Entries    []ChainEntry `json:"entries"`
	CycleAt    string       `json:"cycle_at,omitempty"`
	OrphanedAt string       `json:"orphaned_at,omitempty"`
}

// ChainDownResponse lists descendants level by level.
type ChainDownResponse struct {
	Levels [][]ChainEntry `json:"levels"`
}

func toChainEntries(entries []ledger.Entry, tenantID string) []ChainEntry {
	out := make([]ChainEntry, 0, len(entries))
	for _, e := range entries {
		if e.TenantID != tenantID {
			continue
		}
		out = append(out, ChainEntry{
			Receipt:        e.Receipt,
			IngestedAt:     e.IngestedAt.UTC(),
			RetentionState: e.RetentionState,
			Orphaned:       e.Orphaned,
		})
	}
	return out
}

// FromTraversal converts a chain result, hiding entries that belong to other
// tenants.
func FromTraversal(result chain.Result, tenantID string) ChainResponse {
	return ChainResponse{
		Entries:    toChainEntries(result.Entries, tenantID),
		CycleAt:    result.CycleAt,
		OrphanedAt: result.OrphanedAt,
	}
}
