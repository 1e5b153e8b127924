// Package ingest receives receipts from distributed producers, validates them
// against the trust store, and persists them to the ledger. Invalid receipts
// go to the dead-letter queue, never into the ledger and never dropped.
package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"ledgerd/internal/dlq"
	"ledgerd/internal/ingest/metrics"
	"ledgerd/internal/ledger"
	"ledgerd/internal/receipt"
	"ledgerd/internal/receipt/models"
	"ledgerd/internal/trust"
	"ledgerd/pkg/canonical"
	audit "ledgerd/pkg/platform/audit"
	"ledgerd/pkg/platform/audit/publisher"
	"ledgerd/pkg/platform/sentinel"
	"ledgerd/pkg/requestcontext"
)

// Dead-letter reasons. Verification failures name the check that failed so
// forensic review can distinguish a stale key from a tampered payload.
const (
	ReasonSchemaInvalid    = "schema_invalid"
	ReasonUnknownKey       = "unknown_key"
	ReasonRevokedKey       = "revoked_key"
	ReasonHashMismatch     = "hash_mismatch"
	ReasonInvalidSignature = "invalid_signature"
)

// Appender persists a receipt to the physical ledger segments.
type Appender interface {
	Append(ctx context.Context, r models.DecisionReceipt) error
}

// Result is the per-receipt ingestion outcome. Duplicates are accepted
// no-ops, not errors; dead-lettered receipts carry the reason.
type Result struct {
	ReceiptID string `json:"receipt_id,omitempty"`
	Accepted  bool   `json:"accepted"`
	Duplicate bool   `json:"duplicate,omitempty"`
	Orphaned  bool   `json:"orphaned,omitempty"`
	Reason    string `json:"reason,omitempty"`
}

// BatchStatus summarizes a batch: complete when every item was accepted,
// partial otherwise. A batch never aborts all-or-nothing.
type BatchStatus string

const (
	BatchComplete BatchStatus = "complete"
	BatchPartial  BatchStatus = "partial"
)

// Service validates and persists incoming receipts.
type Service struct {
	trust       *trust.Store
	index       ledger.Store
	segments    Appender
	deadLetters dlq.Store
	audit       *publisher.Publisher
	logger      *slog.Logger
	metrics     *metrics.Metrics
}

// NewService constructs the ingestion service.
func NewService(
	trustStore *trust.Store,
	index ledger.Store,
	segments Appender,
	deadLetters dlq.Store,
	auditPub *publisher.Publisher,
	logger *slog.Logger,
	m *metrics.Metrics,
) *Service {
	return &Service{
		trust:       trustStore,
		index:       index,
		segments:    segments,
		deadLetters: deadLetters,
		audit:       auditPub,
		logger:      logger,
		metrics:     m,
	}
}

// Ingest processes one raw receipt payload for a tenant. Schema and signature
// failures are routed to the DLQ; an unresolved parent is a warning, not a
// rejection. Re-ingesting a stored receipt_id is a no-op.
func (s *Service) Ingest(ctx context.Context, tenantID string, raw json.RawMessage) Result {
	start := time.Now()
	defer func() { s.metrics.ObserveIngestLatency(time.Since(start)) }()

	var r models.DecisionReceipt
	if err := json.Unmarshal(raw, &r); err != nil {
		return s.deadLetter(ctx, tenantID, "", raw, ReasonSchemaInvalid, err)
	}
	if err := r.Validate(); err != nil {
		return s.deadLetter(ctx, tenantID, r.ReceiptID, raw, ReasonSchemaInvalid, err)
	}

	if err := s.verifyTrust(r); err != nil {
		reason := trustFailureReason(err)
		s.emitAudit(ctx, audit.EventTrustVerificationFailed, tenantID, r.ReceiptID, reason)
		return s.deadLetter(ctx, tenantID, r.ReceiptID, raw, reason, err)
	}

	orphaned := false
	if r.ParentReceiptID != "" {
		exists, err := s.index.Exists(ctx, r.ParentReceiptID)
		if err != nil {
			s.logger.ErrorContext(ctx, "parent lookup failed",
				"receipt_id", r.ReceiptID,
				"parent_receipt_id", r.ParentReceiptID,
				"error", err,
			)
		}
		if err == nil && !exists {
			orphaned = true
			s.logger.WarnContext(ctx, "parent receipt not found, ingesting as orphaned",
				"receipt_id", r.ReceiptID,
				"parent_receipt_id", r.ParentReceiptID,
				"tenant_id", tenantID,
			)
			s.metrics.IncrementOrphans()
			s.emitAudit(ctx, audit.EventOrphanDetected, tenantID, r.ReceiptID, r.ParentReceiptID)
		}
	}

	body, err := r.SigningBytes()
	if err != nil {
		return s.deadLetter(ctx, tenantID, r.ReceiptID, raw, ReasonSchemaInvalid, err)
	}

	entry := ledger.Entry{
		Receipt:        r,
		TenantID:       tenantID,
		PayloadHash:    canonical.HashBytes(body),
		IngestedAt:     time.Now().UTC(),
		RetentionState: ledger.RetentionActive,
		Orphaned:       orphaned,
	}
	if err := s.index.Insert(ctx, entry); err != nil {
		if errors.Is(err, sentinel.ErrConflict) {
			s.metrics.IncrementOutcome("duplicate")
			return Result{ReceiptID: r.ReceiptID, Accepted: true, Duplicate: true}
		}
		s.logger.ErrorContext(ctx, "ledger insert failed",
			"receipt_id", r.ReceiptID,
			"tenant_id", tenantID,
			"error", err,
		)
		return Result{ReceiptID: r.ReceiptID, Reason: "storage_error"}
	}

	if err := s.segments.Append(ctx, r); err != nil {
		// The index entry stands; the segment line is retried by the writer
		// before this surfaces. Log loudly rather than failing the ingest.
		s.logger.ErrorContext(ctx, "segment append failed",
			"receipt_id", r.ReceiptID,
			"error", err,
		)
	}

	s.metrics.IncrementOutcome("accepted")
	s.emitAudit(ctx, audit.EventReceiptIngested, tenantID, r.ReceiptID, "")
	return Result{ReceiptID: r.ReceiptID, Accepted: true, Orphaned: orphaned}
}

// IngestBatch processes receipts independently: one bad item never aborts the
// rest. Idempotent per receipt_id.
func (s *Service) IngestBatch(ctx context.Context, tenantID string, raws []json.RawMessage) (BatchStatus, []Result) {
	results := make([]Result, 0, len(raws))
	status := BatchComplete
	for _, raw := range raws {
		result := s.Ingest(ctx, tenantID, raw)
		if !result.Accepted {
			status = BatchPartial
		}
		results = append(results, result)
	}
	return status, results
}

func (s *Service) verifyTrust(r models.DecisionReceipt) error {
	if s.trust.IsRevoked(r.KID) {
		return trust.ErrRevokedKey
	}
	return receipt.VerifySignature(s.trust, r)
}

func (s *Service) deadLetter(ctx context.Context, tenantID, receiptID string, raw json.RawMessage, reason string, cause error) Result {
	entry := dlq.Entry{
		ID:         uuid.New().String(),
		TenantID:   tenantID,
		Reason:     reason,
		Payload:    raw,
		ReceivedAt: time.Now().UTC(),
	}
	if err := s.deadLetters.Push(ctx, entry); err != nil {
		s.logger.ErrorContext(ctx, "dead-letter push failed",
			"receipt_id", receiptID,
			"reason", reason,
			"error", err,
		)
	}
	s.logger.WarnContext(ctx, "receipt dead-lettered",
		"receipt_id", receiptID,
		"tenant_id", tenantID,
		"reason", reason,
		"error", cause,
	)
	s.metrics.IncrementOutcome("dead_lettered")
	s.metrics.IncrementDeadLettered(reason)
	s.emitAudit(ctx, audit.EventReceiptDeadLettered, tenantID, receiptID, reason)
	return Result{ReceiptID: receiptID, Reason: reason}
}

func (s *Service) emitAudit(ctx context.Context, action audit.AuditEvent, tenantID, receiptID, reason string) {
	if s.audit == nil {
		return
	}
	event := audit.NewEvent(action)
	event.TenantID = tenantID
	event.ReceiptID = receiptID
	event.Reason = reason
	event.RequestID = requestcontext.RequestID(ctx)
	if err := s.audit.Emit(ctx, event); err != nil {
		s.logger.ErrorContext(ctx, "audit emit failed", "action", action, "error", err)
	}
}

func trustFailureReason(err error) string {
	switch {
	case errors.Is(err, trust.ErrUnknownKey):
		return ReasonUnknownKey
	case errors.Is(err, trust.ErrRevokedKey):
		return ReasonRevokedKey
	case errors.Is(err, trust.ErrHashMismatch):
		return ReasonHashMismatch
	default:
		return ReasonInvalidSignature
	}
}
