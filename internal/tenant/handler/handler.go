package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"ledgerd/internal/retention"
	dErrors "ledgerd/pkg/domain-errors"
	"ledgerd/pkg/platform/httputil"
	"ledgerd/pkg/requestcontext"
)

// Policies resolves the caller's effective governance policy.
type Policies interface {
	For(tenantID string) retention.TenantPolicy
	LegalHold(tenantID string) bool
	Window(tenantID string) time.Duration
}

// Handler exposes a tenant's own effective governance policy. Mutations go
// through the governance collaborator, not this API.
type Handler struct {
	policies Policies
	logger   *slog.Logger
}

func New(policies Policies, logger *slog.Logger) *Handler {
	return &Handler{policies: policies, logger: logger}
}

// Register mounts governance endpoints on the router.
func (h *Handler) Register(r chi.Router) {
	r.Get("/tenant/policy", h.HandlePolicy)
}

// PolicyResponse is the caller's effective policy after defaults are applied.
type PolicyResponse struct {
	TenantID        string `json:"tenant_id"`
	MaxAgeDays      int    `json:"max_age_days"`
	ExpireAfterDays int    `json:"expire_after_days"`
	DLQRetention    string `json:"dlq_retention"`
	LegalHold       bool   `json:"legal_hold"`
}

// HandlePolicy handles GET /tenant/policy.
func (h *Handler) HandlePolicy(w http.ResponseWriter, r *http.Request) {
	tenantID := requestcontext.TenantID(r.Context())
	if tenantID == "" {
		httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "missing tenant"))
		return
	}

	policy := h.policies.For(tenantID)
	httputil.WriteJSON(w, http.StatusOK, PolicyResponse{
		TenantID:        tenantID,
		MaxAgeDays:      policy.MaxAgeDays,
		ExpireAfterDays: policy.ExpireAfterDays,
		DLQRetention:    h.policies.Window(tenantID).String(),
		LegalHold:       h.policies.LegalHold(tenantID),
	})
}
