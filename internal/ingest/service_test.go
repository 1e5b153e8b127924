package ingest

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"ledgerd/internal/dlq"
	"ledgerd/internal/ledger"
	"ledgerd/internal/ledger/segment"
	"ledgerd/internal/ledger/store"
	"ledgerd/pkg/canonical"
	"ledgerd/internal/receipt"
	"ledgerd/internal/receipt/models"
	"ledgerd/internal/trust"
	audit "ledgerd/pkg/platform/audit"
	"ledgerd/internal/platform/logger"
	"ledgerd/pkg/platform/audit/publisher"
	auditmemory "ledgerd/pkg/platform/audit/store/memory"
)

type ServiceSuite struct {
	suite.Suite
	ctx context.Context

	trust      *trust.Store
	index      *store.MemoryStore
	deadQueue  *dlq.MemoryStore
	auditStore *auditmemory.InMemoryStore
	auditPub   *publisher.Publisher
	service    *Service

	signer     *receipt.Signer
	anchorPriv ed25519.PrivateKey
}

func TestServiceSuite(t *testing.T) {
	suite.Run(t, new(ServiceSuite))
}

func (s *ServiceSuite) SetupTest() {
	s.ctx = context.Background()

	anchorPub, anchorPriv, err := ed25519.GenerateKey(rand.Reader)
	s.Require().NoError(err)
	s.anchorPriv = anchorPriv
	s.trust = trust.NewStore(anchorPub)

	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	s.Require().NoError(err)
	s.Require().NoError(s.trust.AddKey(trust.Key{
		KID:       "k1",
		PublicKey: pub,
		Algorithm: trust.AlgorithmEd25519,
	}))
	s.signer = receipt.NewSigner("k1", priv)

	s.index = store.NewMemory()
	s.deadQueue = dlq.NewMemory(dlq.StaticRetention{Default: 30 * 24 * time.Hour})
	s.auditStore = auditmemory.NewInMemoryStore()
	s.auditPub = publisher.NewPublisher(s.auditStore)

	segments := segment.ActorAppender{W: segment.NewWriter(s.T().TempDir())}
	s.service = NewService(s.trust, s.index, segments, s.deadQueue, s.auditPub, logger.New(), nil)
}

func (s *ServiceSuite) signedReceipt(receiptID, parentID string) models.DecisionReceipt {
	r := models.DecisionReceipt{
		ReceiptID:       receiptID,
		GateID:          "gate-1",
		EvaluationPoint: models.PointPreMerge,
		TimestampUTC:    time.Now().UTC().Truncate(time.Second),
		Decision:        models.Decision{Status: models.StatusPass},
		Actor:           models.Actor{RepoID: "acme/repo"},
		ParentReceiptID: parentID,
		Degraded:        true,
		KID:             s.signer.KID(),
	}
	sig, err := s.signer.Sign(r)
	s.Require().NoError(err)
	r.Signature = sig
	return r
}

func (s *ServiceSuite) rawReceipt(r models.DecisionReceipt) json.RawMessage {
	raw, err := json.Marshal(r)
	s.Require().NoError(err)
	return raw
}

func (s *ServiceSuite) TestIngestValidReceipt() {
	r := s.signedReceipt("r1", "")

	result := s.service.Ingest(s.ctx, "acme", s.rawReceipt(r))

	s.True(result.Accepted)
	s.False(result.Orphaned)
	s.Empty(result.Reason)

	entry, err := s.index.Get(s.ctx, "r1")
	s.Require().NoError(err)
	s.Equal("acme", entry.TenantID)
	s.False(entry.IngestedAt.IsZero())

	events, err := s.auditStore.ListByTenant(s.ctx, "acme")
	s.Require().NoError(err)
	s.Require().Len(events, 1)
	s.Equal(string(audit.EventReceiptIngested), events[0].Action)
}

func (s *ServiceSuite) TestIngestMalformedPayload() {
	result := s.service.Ingest(s.ctx, "acme", json.RawMessage(`{"receipt_id": 123}`))

	s.False(result.Accepted)
	s.Equal(ReasonSchemaInvalid, result.Reason)

	dead, err := s.deadQueue.List(s.ctx, "acme")
	s.Require().NoError(err)
	s.Require().Len(dead, 1)
	s.Equal(ReasonSchemaInvalid, dead[0].Reason)
}

func (s *ServiceSuite) TestIngestMissingRequiredFields() {
	r := s.signedReceipt("r1", "")
	r.GateID = ""

	result := s.service.Ingest(s.ctx, "acme", s.rawReceipt(r))

	s.False(result.Accepted)
	s.Equal(ReasonSchemaInvalid, result.Reason)

	exists, err := s.index.Exists(s.ctx, "r1")
	s.Require().NoError(err)
	s.False(exists)
}

func (s *ServiceSuite) TestIngestTamperedReceipt() {
	r := s.signedReceipt("r1", "")
	r.Decision.Status = models.StatusHardBlock // invalidates signature

	result := s.service.Ingest(s.ctx, "acme", s.rawReceipt(r))

	s.False(result.Accepted)
	s.Equal(ReasonInvalidSignature, result.Reason)

	dead, err := s.deadQueue.List(s.ctx, "acme")
	s.Require().NoError(err)
	s.Require().Len(dead, 1)
}

func (s *ServiceSuite) TestIngestUnknownKey() {
	r := s.signedReceipt("r1", "")
	r.KID = "ghost"

	result := s.service.Ingest(s.ctx, "acme", s.rawReceipt(r))

	s.False(result.Accepted)
	s.Equal(ReasonUnknownKey, result.Reason)
}

func (s *ServiceSuite) TestIngestRevokedKey() {
	crl := trust.RevocationList{
		RevokedKIDs: []string{"k1"},
		IssuedAt:    time.Now().UTC(),
	}
	body, err := crl.SigningBytes()
	s.Require().NoError(err)
	crl.Signature = base64.StdEncoding.EncodeToString(ed25519.Sign(s.anchorPriv, body))
	s.Require().NoError(s.trust.ReplaceCRL(crl))

	result := s.service.Ingest(s.ctx, "acme", s.rawReceipt(s.signedReceipt("r1", "")))

	s.False(result.Accepted)
	s.Equal(ReasonRevokedKey, result.Reason)
}

// rotatedSigner registers a key whose validity window ended a day ago and
// returns a signer for it.
func (s *ServiceSuite) rotatedSigner(kid string) *receipt.Signer {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	s.Require().NoError(err)
	s.Require().NoError(s.trust.AddKey(trust.Key{
		KID:       kid,
		PublicKey: pub,
		Algorithm: trust.AlgorithmEd25519,
		NotBefore: time.Now().Add(-48 * time.Hour),
		NotAfter:  time.Now().Add(-24 * time.Hour),
	}))
	return receipt.NewSigner(kid, priv)
}

func (s *ServiceSuite) receiptSignedAt(signer *receipt.Signer, receiptID string, ts time.Time) models.DecisionReceipt {
	r := models.DecisionReceipt{
		ReceiptID:       receiptID,
		GateID:          "gate-1",
		EvaluationPoint: models.PointPreMerge,
		TimestampUTC:    ts.UTC().Truncate(time.Second),
		Decision:        models.Decision{Status: models.StatusPass},
		Actor:           models.Actor{RepoID: "acme/repo"},
		Degraded:        true,
		KID:             signer.KID(),
	}
	sig, err := signer.Sign(r)
	s.Require().NoError(err)
	r.Signature = sig
	return r
}

func (s *ServiceSuite) TestIngestKeyOutsideValidityWindow() {
	signer := s.rotatedSigner("k-rotated")
	r := s.receiptSignedAt(signer, "r1", time.Now())

	result := s.service.Ingest(s.ctx, "acme", s.rawReceipt(r))

	s.False(result.Accepted)
	s.Equal(ReasonUnknownKey, result.Reason)
}

func (s *ServiceSuite) TestIngestHistoricalReceiptUnderRotatedKey() {
	signer := s.rotatedSigner("k-rotated")
	r := s.receiptSignedAt(signer, "r1", time.Now().Add(-36*time.Hour))

	result := s.service.Ingest(s.ctx, "acme", s.rawReceipt(r))

	s.True(result.Accepted, "receipts timestamped inside the key's window stay verifiable")
}

func (s *ServiceSuite) TestIngestOrphanWarnsButIngests() {
	r := s.signedReceipt("child", "never-arrived")

	result := s.service.Ingest(s.ctx, "acme", s.rawReceipt(r))

	s.True(result.Accepted)
	s.True(result.Orphaned)

	entry, err := s.index.Get(s.ctx, "child")
	s.Require().NoError(err)
	s.True(entry.Orphaned)
}

func (s *ServiceSuite) TestIngestIdempotent() {
	raw := s.rawReceipt(s.signedReceipt("r1", ""))

	first := s.service.Ingest(s.ctx, "acme", raw)
	second := s.service.Ingest(s.ctx, "acme", raw)

	s.True(first.Accepted)
	s.True(second.Accepted)
	s.True(second.Duplicate)

	entries, err := s.index.ActiveByTenant(s.ctx, "acme")
	s.Require().NoError(err)
	s.Len(entries, 1)
}

func (s *ServiceSuite) TestIngestBatchPartial() {
	raws := []json.RawMessage{
		s.rawReceipt(s.signedReceipt("r1", "")),
		json.RawMessage(`not even json`),
		s.rawReceipt(s.signedReceipt("r2", "r1")),
	}

	status, results := s.service.IngestBatch(s.ctx, "acme", raws)

	s.Equal(BatchPartial, status)
	s.Require().Len(results, 3)
	s.True(results[0].Accepted)
	s.False(results[1].Accepted)
	s.Equal(ReasonSchemaInvalid, results[1].Reason)
	s.True(results[2].Accepted)
	s.False(results[2].Orphaned, "parent r1 arrived earlier in the batch")
}

func (s *ServiceSuite) TestIngestBatchComplete() {
	raws := []json.RawMessage{
		s.rawReceipt(s.signedReceipt("r1", "")),
		s.rawReceipt(s.signedReceipt("r2", "")),
	}

	status, results := s.service.IngestBatch(s.ctx, "acme", raws)

	s.Equal(BatchComplete, status)
	s.Len(results, 2)
}

func (s *ServiceSuite) TestVerifyStoredReceipt() {
	s.service.Ingest(s.ctx, "acme", s.rawReceipt(s.signedReceipt("r1", "")))

	result, err := s.service.Verify(s.ctx, "acme", "r1")
	s.Require().NoError(err)
	s.True(result.HashValid)
	s.True(result.SignatureValid)
	s.True(result.Valid)
	s.Equal("k1", result.KID)
}

// insertEntry bypasses ingestion so tests can plant index states the service
// would normally refuse to store.
func (s *ServiceSuite) insertEntry(r models.DecisionReceipt, payloadHash string) {
	s.Require().NoError(s.index.Insert(s.ctx, ledger.Entry{
		Receipt:        r,
		TenantID:       "acme",
		PayloadHash:    payloadHash,
		IngestedAt:     time.Now().UTC(),
		RetentionState: ledger.RetentionActive,
	}))
}

func (s *ServiceSuite) TestVerifyDetectsPayloadTampering() {
	r := s.signedReceipt("r1", "")
	body, err := r.SigningBytes()
	s.Require().NoError(err)
	recorded := canonical.HashBytes(body)

	r.Decision.Rationale = "edited after ingestion"
	s.insertEntry(r, recorded)

	result, err := s.service.Verify(s.ctx, "acme", "r1")
	s.Require().NoError(err)
	s.False(result.HashValid)
	s.False(result.SignatureValid)
	s.False(result.Valid)
	s.Equal(ReasonHashMismatch, result.FailedCheck)
}

func (s *ServiceSuite) TestVerifyReportsChecksIndependently() {
	r := s.signedReceipt("r1", "")
	r.Signature = base64.StdEncoding.EncodeToString(make([]byte, 64))
	body, err := r.SigningBytes()
	s.Require().NoError(err)
	s.insertEntry(r, canonical.HashBytes(body))

	result, err := s.service.Verify(s.ctx, "acme", "r1")
	s.Require().NoError(err)
	s.True(result.HashValid, "stored payload matches the recorded hash")
	s.False(result.SignatureValid)
	s.False(result.Valid)
	s.Equal(ReasonInvalidSignature, result.FailedCheck)
}

func (s *ServiceSuite) TestVerifyIsolatesTenants() {
	s.service.Ingest(s.ctx, "acme", s.rawReceipt(s.signedReceipt("r1", "")))

	_, err := s.service.Verify(s.ctx, "globex", "r1")
	s.Require().Error(err)
	s.Contains(err.Error(), "not found")
}

func (s *ServiceSuite) TestVerifyRangePreservesOrder() {
	s.service.Ingest(s.ctx, "acme", s.rawReceipt(s.signedReceipt("r1", "")))
	s.service.Ingest(s.ctx, "acme", s.rawReceipt(s.signedReceipt("r2", "")))

	results, err := s.service.VerifyRange(s.ctx, "acme", []string{"r2", "ghost", "r1"})
	s.Require().NoError(err)
	s.Require().Len(results, 3)
	s.Equal("r2", results[0].ReceiptID)
	s.True(results[0].Valid)
	s.Equal("not_found", results[1].FailedCheck)
	s.Equal("r1", results[2].ReceiptID)

	summary := VerifySummary(results)
	s.Equal(2, summary["valid"])
	s.Equal(1, summary["not_found"])
}
