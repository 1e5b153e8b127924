package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"ledgerd/internal/policy"
	"ledgerd/internal/trust"
	dErrors "ledgerd/pkg/domain-errors"
	"ledgerd/pkg/platform/httputil"
	"ledgerd/pkg/platform/sentinel"
)

// Handler proxies verified policy snapshots to decision planes. Planes sync
// from here instead of the registry so every snapshot they see has passed
// trust verification, and an unreachable registry degrades to the cached
// copy.
type Handler struct {
	cache  *policy.Cache
	logger *slog.Logger
}

func New(cache *policy.Cache, logger *slog.Logger) *Handler {
	return &Handler{cache: cache, logger: logger}
}

// Register mounts policy endpoints on the router.
func (h *Handler) Register(r chi.Router) {
	r.Get("/policies/{policyID}/snapshot", h.HandleSnapshot)
}

// HandleSnapshot handles GET /policies/{policyID}/snapshot.
func (h *Handler) HandleSnapshot(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	policyID := chi.URLParam(r, "policyID")

	snap, err := h.cache.Refresh(ctx, policyID)
	switch {
	case err == nil:
		httputil.WriteJSON(w, http.StatusOK, snap)
	case errors.Is(err, trust.ErrUnknownKey),
		errors.Is(err, trust.ErrRevokedKey),
		errors.Is(err, trust.ErrHashMismatch),
		errors.Is(err, trust.ErrInvalidSignature):
		httputil.WriteError(w, dErrors.New(dErrors.CodeValidation, "snapshot failed trust verification"))
	case errors.Is(err, sentinel.ErrUnavailable):
		httputil.WriteError(w, dErrors.New(dErrors.CodeTimeout, "policy registry unreachable"))
	default:
		h.logger.ErrorContext(ctx, "snapshot refresh failed", "policy_id", policyID, "error", err)
		httputil.WriteError(w, err)
	}
}
