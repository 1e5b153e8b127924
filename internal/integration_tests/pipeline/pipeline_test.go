// Package pipeline exercises the full evidence flow in memory: policy
// snapshot admission, receipt generation, ingestion, verification, and chain
// traversal, the way a gate and the ledger interact in production.
package pipeline

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"ledgerd/internal/chain"
	"ledgerd/internal/dlq"
	"ledgerd/internal/ingest"
	"ledgerd/internal/ledger/segment"
	"ledgerd/internal/ledger/store"
	"ledgerd/internal/platform/logger"
	policymodels "ledgerd/internal/policy/models"
	"ledgerd/internal/receipt"
	"ledgerd/internal/receipt/models"
	"ledgerd/internal/trust"
	"ledgerd/internal/trust/verifier"
	"ledgerd/pkg/canonical"
)

type PipelineSuite struct {
	suite.Suite
	ctx context.Context

	trust     *trust.Store
	verifier  *verifier.Verifier
	signer    *receipt.Signer
	generator *receipt.Generator
	index     *store.MemoryStore
	segments  *segment.Writer
	service   *ingest.Service
	chains    *chain.Engine

	registryPriv ed25519.PrivateKey
}

func TestPipelineSuite(t *testing.T) {
	suite.Run(t, new(PipelineSuite))
}

func (s *PipelineSuite) SetupTest() {
	s.ctx = context.Background()

	anchorPub, _, err := ed25519.GenerateKey(rand.Reader)
	s.Require().NoError(err)
	s.trust = trust.NewStore(anchorPub)
	s.verifier = verifier.New(s.trust)

	registryPub, registryPriv, err := ed25519.GenerateKey(rand.Reader)
	s.Require().NoError(err)
	s.registryPriv = registryPriv
	s.Require().NoError(s.trust.AddKey(trust.Key{
		KID:       "registry-key",
		PublicKey: registryPub,
		Algorithm: trust.AlgorithmEd25519,
	}))

	gatePub, gatePriv, err := ed25519.GenerateKey(rand.Reader)
	s.Require().NoError(err)
	s.Require().NoError(s.trust.AddKey(trust.Key{
		KID:       "gate-key",
		PublicKey: gatePub,
		Algorithm: trust.AlgorithmEd25519,
	}))
	s.signer = receipt.NewSigner("gate-key", gatePriv)

	s.segments = segment.NewWriter(s.T().TempDir())
	appender := segment.ActorAppender{W: s.segments}
	s.generator = receipt.NewGenerator(s.signer, appender)

	s.index = store.NewMemory()
	s.service = ingest.NewService(
		s.trust,
		s.index,
		appender,
		dlq.NewMemory(dlq.StaticRetention{Default: time.Hour}),
		nil,
		logger.New(),
		nil,
	)
	s.chains = chain.New(s.index)
}

func (s *PipelineSuite) snapshot(policyID, version string) policymodels.Snapshot {
	content := map[string]any{"rules": []any{"no-secrets", "signed-commits"}, "policy": policyID}
	hash, err := canonical.Hash(content)
	s.Require().NoError(err)

	snap := policymodels.Snapshot{
		PolicyID:     policyID,
		Version:      version,
		SnapshotHash: hash,
		Content:      content,
		KID:          "registry-key",
		IssuedAt:     time.Now().UTC(),
	}
	body, err := snap.SigningBytes()
	s.Require().NoError(err)
	snap.Signature = base64.StdEncoding.EncodeToString(ed25519.Sign(s.registryPriv, body))
	return snap
}

func (s *PipelineSuite) generate(point models.EvaluationPoint, parentID string, snaps []policymodels.Snapshot) models.DecisionReceipt {
	r, err := s.generator.Generate(s.ctx, receipt.Input{
		GateID:          "gate-1",
		EvaluationPoint: point,
		Decision:        models.Decision{Status: models.StatusPass},
		Actor:           models.Actor{RepoID: "acme/repo"},
		ParentReceiptID: parentID,
	}, snaps)
	s.Require().NoError(err)
	return r
}

func (s *PipelineSuite) ingest(r models.DecisionReceipt) ingest.Result {
	raw, err := json.Marshal(r)
	s.Require().NoError(err)
	return s.service.Ingest(s.ctx, "acme", raw)
}

func (s *PipelineSuite) TestMismatchedSnapshotRejectedBeforeGeneration() {
	snap := s.snapshot("sec-policy", "v3")
	snap.SnapshotHash = "sha256:deadbeefdeadbeefdeadbeefdeadbeefdeadbeefdeadbeefdeadbeefdeadbeef"
	body, err := snap.SigningBytes()
	s.Require().NoError(err)
	snap.Signature = base64.StdEncoding.EncodeToString(ed25519.Sign(s.registryPriv, body))

	err = s.verifier.Verify(snap)
	s.ErrorIs(err, trust.ErrHashMismatch)
}

func (s *PipelineSuite) TestDecisionToLedgerRoundTrip() {
	snap := s.snapshot("sec-policy", "v3")
	s.Require().NoError(s.verifier.Verify(snap))

	generated := s.generate(models.PointPreMerge, "", []policymodels.Snapshot{snap})
	s.False(generated.Degraded)
	s.Contains(generated.PolicyVersionIDs, "sec-policy-v3")

	result := s.ingest(generated)
	s.True(result.Accepted)

	verified, err := s.service.Verify(s.ctx, "acme", generated.ReceiptID)
	s.Require().NoError(err)
	s.True(verified.Valid)
}

func (s *PipelineSuite) TestDegradedFlowSurvivesPolicyOutage() {
	generated := s.generate(models.PointPreCommit, "", nil)
	s.True(generated.Degraded)
	s.Empty(generated.CombinedSnapshotHash)

	result := s.ingest(generated)
	s.True(result.Accepted)
}

func (s *PipelineSuite) TestChainAcrossEvaluationPoints() {
	snaps := []policymodels.Snapshot{s.snapshot("sec-policy", "v3")}

	commit := s.generate(models.PointPreCommit, "", snaps)
	merge := s.generate(models.PointPreMerge, commit.ReceiptID, snaps)
	deploy := s.generate(models.PointPreDeploy, merge.ReceiptID, snaps)

	for _, r := range []models.DecisionReceipt{commit, merge, deploy} {
		s.Require().True(s.ingest(r).Accepted)
	}

	result, err := s.chains.TraverseUp(s.ctx, deploy.ReceiptID)
	s.Require().NoError(err)
	s.Require().Len(result.Entries, 3)
	s.Equal(commit.ReceiptID, result.Entries[2].Receipt.ReceiptID)
	s.Empty(result.OrphanedAt)
}

func (s *PipelineSuite) TestOutOfOrderArrivalHeals() {
	snaps := []policymodels.Snapshot{s.snapshot("sec-policy", "v3")}
	commit := s.generate(models.PointPreCommit, "", snaps)
	merge := s.generate(models.PointPreMerge, commit.ReceiptID, snaps)

	// Child arrives first: orphaned but ingested.
	result := s.ingest(merge)
	s.True(result.Accepted)
	s.True(result.Orphaned)

	// Parent arrives later; traversal now resolves the full chain.
	s.Require().True(s.ingest(commit).Accepted)

	up, err := s.chains.TraverseUp(s.ctx, merge.ReceiptID)
	s.Require().NoError(err)
	s.Len(up.Entries, 2)
	s.Empty(up.OrphanedAt)
}

func (s *PipelineSuite) TestTamperedReceiptNeverReachesLedger() {
	generated := s.generate(models.PointPreMerge, "", nil)
	generated.Decision.Status = models.StatusHardBlock

	result := s.ingest(generated)
	s.False(result.Accepted)
	s.Equal(ingest.ReasonInvalidSignature, result.Reason)

	exists, err := s.index.Exists(s.ctx, generated.ReceiptID)
	s.Require().NoError(err)
	s.False(exists)
}

func (s *PipelineSuite) TestSegmentHoldsGeneratedReceipts() {
	generated := s.generate(models.PointPreMerge, "", nil)
	s.Require().True(s.ingest(generated).Accepted)

	ts := generated.TimestampUTC
	receipts, err := s.segments.Read("acme/repo", models.PointPreMerge, ts.Year(), ts.Month())
	s.Require().NoError(err)

	// Generation appends once and ingestion appends once; both lines carry
	// the same receipt ID.
	s.Require().NotEmpty(receipts)
	for _, r := range receipts {
		s.Equal(generated.ReceiptID, r.ReceiptID)
	}
}
