// Package receipt constructs Decision Receipts at decision time and appends
// them to the durable ledger.
package receipt

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	policymodels "ledgerd/internal/policy/models"
	"ledgerd/internal/receipt/models"
	"ledgerd/pkg/canonical"
)

// Appender persists a finished receipt. Satisfied by the ledger segment
// writer.
type Appender interface {
	Append(ctx context.Context, r models.DecisionReceipt) error
}

// Input carries the evaluation result a gate hands to the generator.
type Input struct {
	GateID          string
	EvaluationPoint models.EvaluationPoint
	Inputs          map[string]any
	Decision        models.Decision
	EvidenceHandles []models.EvidenceHandle
	Actor           models.Actor
	ParentReceiptID string
}

// Generator assembles, signs and appends receipts. The snapshots passed to
// Generate must already have been admitted by the trust verifier; the
// generator does not re-verify them.
type Generator struct {
	signer   *Signer
	appender Appender
	start    time.Time
}

// NewGenerator constructs a receipt generator.
func NewGenerator(signer *Signer, appender Appender) *Generator {
	return &Generator{
		signer:   signer,
		appender: appender,
		start:    time.Now(),
	}
}

// Generate builds a receipt from an evaluation result and the active policy
// snapshots for the gate, then appends it to the ledger. With zero snapshots
// the receipt is still produced, flagged degraded, so evidence survives
// policy plumbing outages.
func (g *Generator) Generate(ctx context.Context, in Input, snapshots []policymodels.Snapshot) (models.DecisionReceipt, error) {
	now := time.Now().UTC()

	r := models.DecisionReceipt{
		ReceiptID:            uuid.NewString(),
		GateID:               in.GateID,
		EvaluationPoint:      in.EvaluationPoint,
		PolicyVersionIDs:     versionIDs(snapshots),
		CombinedSnapshotHash: CombinedSnapshotHash(snapshots),
		TimestampUTC:         now,
		TimestampMonotonic:   time.Since(g.start).Nanoseconds(),
		Inputs:               in.Inputs,
		Decision:             in.Decision,
		EvidenceHandles:      in.EvidenceHandles,
		Actor:                in.Actor,
		ParentReceiptID:      in.ParentReceiptID,
		Degraded:             len(snapshots) == 0,
		KID:                  g.signer.KID(),
	}

	sig, err := g.signer.Sign(r)
	if err != nil {
		return models.DecisionReceipt{}, err
	}
	r.Signature = sig

	if err := g.appender.Append(ctx, r); err != nil {
		return models.DecisionReceipt{}, fmt.Errorf("append receipt %s: %w", r.ReceiptID, err)
	}
	return r, nil
}

// versionIDs formats and sorts the snapshots' (policy_id, version) pairs.
// Sorting makes the result independent of caller-supplied ordering; two
// gates referencing the same snapshots always produce the same list.
func versionIDs(snapshots []policymodels.Snapshot) []string {
	ids := make([]string, 0, len(snapshots))
	for _, snap := range snapshots {
		ids = append(ids, snap.VersionID())
	}
	sort.Strings(ids)
	return ids
}

// CombinedSnapshotHash fingerprints the full snapshot set by hashing the
// sorted concatenation of the individual snapshot hashes. Empty set yields
// the empty string, paired with degraded=true on the receipt.
func CombinedSnapshotHash(snapshots []policymodels.Snapshot) string {
	if len(snapshots) == 0 {
		return ""
	}
	hashes := make([]string, 0, len(snapshots))
	for _, snap := range snapshots {
		hashes = append(hashes, snap.SnapshotHash)
	}
	sort.Strings(hashes)
	return canonical.HashBytes([]byte(strings.Join(hashes, "")))
}
