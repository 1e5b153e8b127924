package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"ledgerd/internal/trust"
	"ledgerd/pkg/platform/httputil"
)

// Handler exposes the trust store to producers syncing keys and revocations.
type Handler struct {
	store  *trust.Store
	logger *slog.Logger
}

// New constructs a trust handler.
func New(store *trust.Store, logger *slog.Logger) *Handler {
	return &Handler{store: store, logger: logger}
}

// Register mounts trust endpoints on the router.
func (h *Handler) Register(r chi.Router) {
	r.Get("/trust/keys", h.HandleKeys)
	r.Get("/trust/crl", h.HandleCRL)
}

// HandleKeys handles GET /trust/keys. It relays the anchor-signed key set
// document verbatim so the consuming plane can verify the signature against
// the anchor before accepting any key.
func (h *Handler) HandleKeys(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, h.store.KeySet())
}

// HandleCRL handles GET /trust/crl. The CRL carries its own anchor
// signature, verifiable the same way.
func (h *Handler) HandleCRL(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, h.store.CRL())
}
