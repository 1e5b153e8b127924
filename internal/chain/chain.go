// Package chain walks parent/child links between receipts for audit queries
// (pre-commit → pre-merge → pre-deploy). Producers are distributed and
// untrusted, so the graph may contain cycles and dangling parents; traversal
// guards against both instead of assuming a well-formed forest.
package chain

import (
	"context"
	"errors"
	"fmt"

	"ledgerd/internal/ledger"
	"ledgerd/pkg/platform/sentinel"
)

// Result is a finite upward traversal. Traversal halts on a rootless
// receipt, on a cycle (reported, never looped), or on an unresolved parent
// (reported as orphaned, not an error).
type Result struct {
	Entries []ledger.Entry `json:"entries"`
	// CycleAt names the receipt whose parent pointer closed a cycle.
	CycleAt string `json:"cycle_at,omitempty"`
	// OrphanedAt names the receipt whose parent could not be resolved.
	OrphanedAt string `json:"orphaned_at,omitempty"`
}

// Engine traverses the ledger index.
type Engine struct {
	store ledger.Store
}

// New constructs a traversal engine over the ledger index.
func New(store ledger.Store) *Engine {
	return &Engine{store: store}
}

// TraverseUp follows parent links from the given receipt to its root.
// The starting receipt must exist; everything upstream is best-effort.
func (e *Engine) TraverseUp(ctx context.Context, receiptID string) (Result, error) {
	entry, err := e.store.Get(ctx, receiptID)
	if err != nil {
		return Result{}, fmt.Errorf("traverse up from %s: %w", receiptID, err)
	}

	result := Result{Entries: []ledger.Entry{entry}}
	visited := map[string]struct{}{receiptID: {}}

	current := entry
	for current.Receipt.ParentReceiptID != "" {
		parentID := current.Receipt.ParentReceiptID

		if _, seen := visited[parentID]; seen {
			result.CycleAt = current.Receipt.ReceiptID
			return result, nil
		}

		parent, err := e.store.Get(ctx, parentID)
		if err != nil {
			if errors.Is(err, sentinel.ErrNotFound) {
				result.OrphanedAt = current.Receipt.ReceiptID
				return result, nil
			}
			return Result{}, fmt.Errorf("resolve parent %s: %w", parentID, err)
		}

		visited[parentID] = struct{}{}
		result.Entries = append(result.Entries, parent)
		current = parent
	}
	return result, nil
}

// TraverseDown returns the receipt's descendants level by level: index 0
// holds the direct children, index 1 their children, and so on. A visited
// set keeps adversarial cycles from recursing forever.
func (e *Engine) TraverseDown(ctx context.Context, receiptID string) ([][]ledger.Entry, error) {
	if _, err := e.store.Get(ctx, receiptID); err != nil {
		return nil, fmt.Errorf("traverse down from %s: %w", receiptID, err)
	}

	var levels [][]ledger.Entry
	visited := map[string]struct{}{receiptID: {}}
	frontier := []string{receiptID}

	for len(frontier) > 0 {
		var level []ledger.Entry
		var next []string
		for _, id := range frontier {
			children, err := e.store.Children(ctx, id)
			if err != nil {
				return nil, fmt.Errorf("resolve children of %s: %w", id, err)
			}
			for _, child := range children {
				childID := child.Receipt.ReceiptID
				if _, seen := visited[childID]; seen {
					continue
				}
				visited[childID] = struct{}{}
				level = append(level, child)
				next = append(next, childID)
			}
		}
		if len(level) > 0 {
			levels = append(levels, level)
		}
		frontier = next
	}
	return levels, nil
}
