package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"ledgerd/internal/chain"
	"ledgerd/internal/ingest"
	"ledgerd/internal/ledger"
	"ledgerd/internal/ratelimit"
	dErrors "ledgerd/pkg/domain-errors"
	"ledgerd/pkg/platform/httputil"
	"ledgerd/pkg/platform/middleware/auth"
	pstrings "ledgerd/pkg/platform/strings"
	"ledgerd/pkg/requestcontext"
)

const (
	batchMaxItems      = 500
	verifyRangeMaxIDs  = 1000
	chainDirectionUp   = "up"
	chainDirectionDown = "down"
)

// Service defines the ingestion and verification operations the handler
// exposes.
type Service interface {
	Ingest(ctx context.Context, tenantID string, raw json.RawMessage) ingest.Result
	IngestBatch(ctx context.Context, tenantID string, raws []json.RawMessage) (ingest.BatchStatus, []ingest.Result)
	Verify(ctx context.Context, tenantID, receiptID string) (ingest.VerifyResult, error)
	VerifyRange(ctx context.Context, tenantID string, receiptIDs []string) ([]ingest.VerifyResult, error)
	Owns(ctx context.Context, tenantID, receiptID string) error
}

// Traverser walks parent/child links between stored receipts.
type Traverser interface {
	TraverseUp(ctx context.Context, receiptID string) (chain.Result, error)
	TraverseDown(ctx context.Context, receiptID string) ([][]ledger.Entry, error)
}

// Handler wires evidence endpoints to the ingestion service.
type Handler struct {
	service Service
	chains  Traverser
	limiter *ratelimit.SlidingWindowLimiter
	logger  *slog.Logger
}

// New constructs the evidence handler. The limiter bounds bulk verification
// per tenant.
func New(service Service, chains Traverser, limiter *ratelimit.SlidingWindowLimiter, logger *slog.Logger) *Handler {
	return &Handler{
		service: service,
		chains:  chains,
		limiter: limiter,
		logger:  logger,
	}
}

// Register mounts evidence endpoints on the router. Writes require
// evidence:write, reads evidence:read; RequireAuth must already have run.
func (h *Handler) Register(r chi.Router) {
	write := auth.RequirePermission(auth.PermEvidenceWrite, h.logger)
	read := auth.RequirePermission(auth.PermEvidenceRead, h.logger)

	r.With(write).Post("/receipts", h.HandleIngest)
	r.With(write).Post("/receipts/batch", h.HandleIngestBatch)
	r.With(read).Post("/receipts/verify_range", h.HandleVerifyRange)
	r.With(read).Get("/receipts/{receiptID}/verify", h.HandleVerify)
	r.With(read).Get("/receipts/{receiptID}/chain", h.HandleChain)
}

// HandleIngest handles POST /receipts.
func (h *Handler) HandleIngest(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID, ok := h.requireTenant(w, ctx)
	if !ok {
		return
	}

	raw, err := readBody(r)
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}

	result := h.service.Ingest(ctx, tenantID, raw)
	status := http.StatusAccepted
	if !result.Accepted {
		status = http.StatusUnprocessableEntity
	}
	httputil.WriteJSON(w, status, result)
}

// HandleIngestBatch handles POST /receipts/batch.
func (h *Handler) HandleIngestBatch(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	start := time.Now()

	tenantID, ok := h.requireTenant(w, ctx)
	if !ok {
		return
	}

	req, ok := httputil.Decode[BatchRequest](w, r)
	if !ok {
		return
	}
	if len(req.Receipts) == 0 {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "receipts must not be empty"))
		return
	}
	if len(req.Receipts) > batchMaxItems {
		httputil.WriteError(w, dErrors.New(dErrors.CodeValidation, "batch exceeds maximum size"))
		return
	}

	status, results := h.service.IngestBatch(ctx, tenantID, req.Receipts)

	h.logger.InfoContext(ctx, "batch ingested",
		"request_id", requestID,
		"tenant_id", tenantID,
		"items", len(req.Receipts),
		"status", status,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	httputil.WriteJSON(w, http.StatusOK, BatchResponse{Status: status, Results: results})
}

// HandleVerify handles GET /receipts/{receiptID}/verify.
func (h *Handler) HandleVerify(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID, ok := h.requireTenant(w, ctx)
	if !ok {
		return
	}

	receiptID := chi.URLParam(r, "receiptID")
	result, err := h.service.Verify(ctx, tenantID, receiptID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, result)
}

// HandleVerifyRange handles POST /receipts/verify_range. Cost scales with
// the number of receipts, so the per-tenant limiter charges per ID.
func (h *Handler) HandleVerifyRange(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	tenantID, ok := h.requireTenant(w, ctx)
	if !ok {
		return
	}

	req, ok := httputil.Decode[VerifyRangeRequest](w, r)
	if !ok {
		return
	}
	req.ReceiptIDs = pstrings.DedupeAndTrim(req.ReceiptIDs)
	if len(req.ReceiptIDs) == 0 {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "receipt_ids must not be empty"))
		return
	}
	if len(req.ReceiptIDs) > verifyRangeMaxIDs {
		httputil.WriteError(w, dErrors.New(dErrors.CodeValidation, "verify_range exceeds maximum size"))
		return
	}

	if h.limiter != nil {
		allowed, err := h.limiter.AllowN(ctx, tenantID, len(req.ReceiptIDs))
		if err != nil {
			httputil.WriteError(w, err)
			return
		}
		if !allowed.Allowed {
			httputil.WriteError(w, dErrors.New(dErrors.CodeRateLimited, "verification rate limit exceeded"))
			return
		}
	}

	results, err := h.service.VerifyRange(ctx, tenantID, req.ReceiptIDs)
	if err != nil {
		h.logger.ErrorContext(ctx, "bulk verification failed",
			"request_id", requestID,
			"tenant_id", tenantID,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, VerifyRangeResponse{
		Results: results,
		Summary: ingest.VerifySummary(results),
	})
}

// HandleChain handles GET /receipts/{receiptID}/chain. Direction defaults to
// "up" (ancestry); "down" returns descendants level by level.
func (h *Handler) HandleChain(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID, ok := h.requireTenant(w, ctx)
	if !ok {
		return
	}

	receiptID := chi.URLParam(r, "receiptID")
	direction := r.URL.Query().Get("direction")
	if direction == "" {
		direction = chainDirectionUp
	}

	// Confirm the start receipt belongs to the caller before traversing so
	// receipt IDs cannot be probed across tenants.
	if err := h.service.Owns(ctx, tenantID, receiptID); err != nil {
		httputil.WriteError(w, err)
		return
	}

	switch direction {
	case chainDirectionUp:
		result, err := h.chains.TraverseUp(ctx, receiptID)
		if err != nil {
			httputil.WriteError(w, dErrors.Wrap(dErrors.CodeInternal, "traversal failed", err))
			return
		}
		httputil.WriteJSON(w, http.StatusOK, FromTraversal(result, tenantID))
	case chainDirectionDown:
		levels, err := h.chains.TraverseDown(ctx, receiptID)
		if err != nil {
			httputil.WriteError(w, dErrors.Wrap(dErrors.CodeInternal, "traversal failed", err))
			return
		}
		resp := ChainDownResponse{Levels: make([][]ChainEntry, 0, len(levels))}
		for _, level := range levels {
			resp.Levels = append(resp.Levels, toChainEntries(level, tenantID))
		}
		httputil.WriteJSON(w, http.StatusOK, resp)
	default:
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "direction must be up or down"))
	}
}

func (h *Handler) requireTenant(w http.ResponseWriter, ctx context.Context) (string, bool) {
	tenantID := requestcontext.TenantID(ctx)
	if tenantID == "" {
		httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "authentication required"))
		return "", false
	}
	return tenantID, true
}

func readBody(r *http.Request) (json.RawMessage, error) {
	var raw json.RawMessage
	if err := json.NewDecoder(r.Body).Decode(&raw); err != nil {
		return nil, err
	}
	return raw, nil
}
