// Package httptransport assembles the HTTP surface: middleware chain, public
// endpoints, and the authenticated evidence API. Handlers stay in their
// modules; this package only wires them.
package httptransport

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	ingesthandler "ledgerd/internal/ingest/handler"
	policyhandler "ledgerd/internal/policy/handler"
	tenanthandler "ledgerd/internal/tenant/handler"
	trusthandler "ledgerd/internal/trust/handler"
	"ledgerd/pkg/platform/httputil"
	"ledgerd/pkg/platform/middleware/auth"
	"ledgerd/pkg/platform/middleware/metadata"
	"ledgerd/pkg/platform/middleware/requestid"
	"ledgerd/pkg/platform/middleware/requesttime"
)

// Deps are the wired handlers and the token validator guarding the evidence
// API.
type Deps struct {
	Ingest *ingesthandler.Handler
	Trust  *trusthandler.Handler
	Tenant *tenanthandler.Handler

	// Policy is optional; nil when no registry is configured.
	Policy *policyhandler.Handler

	Validator auth.JWTValidator
	Logger    *slog.Logger
}

// NewRouter builds the full route tree.
func NewRouter(deps Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(requestid.Middleware)
	r.Use(requesttime.Middleware)
	r.Use(metadata.ClientMetadata)

	r.Get("/healthz", handleHealth)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Group(func(api chi.Router) {
		api.Use(auth.RequireAuth(deps.Validator, deps.Logger))

		deps.Ingest.Register(api)

		// Trust sync, governance, and policy reads need read access only.
		api.With(auth.RequirePermission(auth.PermEvidenceRead, deps.Logger)).
			Group(func(read chi.Router) {
				deps.Trust.Register(read)
				deps.Tenant.Register(read)
				if deps.Policy != nil {
					deps.Policy.Register(read)
				}
			})
	})

	return r
}

func handleHealth(w http.ResponseWriter, _ *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
