package auth

import (
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"ledgerd/pkg/requestcontext"
)

// Evidence permissions enforced at the ingestion/query boundary. The
// identity collaborator grants them; core algorithms never check them.
const (
	PermEvidenceRead   = "evidence:read"
	PermEvidenceWrite  = "evidence:write"
	PermEvidenceExport = "evidence:export"
)

// JWTValidator defines the interface for validating JWT tokens.
type JWTValidator interface {
	ValidateToken(tokenString string) (*JWTClaims, error)
}

// JWTClaims represents the claims we expect from the JWT validator.
type JWTClaims struct {
	TenantID    string
	ActorID     string
	Permissions []string
}

// writeJSONError writes a JSON error response with the given status code and error details.
func writeJSONError(w http.ResponseWriter, status int, errCode, errDesc string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(fmt.Appendf(nil, `{"error":"%s","error_description":"%s"}`, errCode, errDesc))
}

// RequireAuth validates the bearer token and scopes the request context to
// the token's tenant, actor and permissions.
func RequireAuth(validator JWTValidator, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			const bearerPrefix = "Bearer "
			after, ok := strings.CutPrefix(authHeader, bearerPrefix)
			if !ok {
				ctx := r.Context()
				logger.WarnContext(ctx, "unauthorized access - missing token",
					"request_id", requestcontext.RequestID(ctx),
				)
				writeJSONError(w, http.StatusUnauthorized, "unauthorized", "Missing or invalid Authorization header")
				return
			}

			claims, err := validator.ValidateToken(after)
			if err != nil {
				ctx := r.Context()
				logger.WarnContext(ctx, "unauthorized access - invalid token",
					"error", err,
					"request_id", requestcontext.RequestID(ctx),
				)
				writeJSONError(w, http.StatusUnauthorized, "unauthorized", "Invalid or expired token")
				return
			}

			ctx := r.Context()
			ctx = requestcontext.WithTenantID(ctx, claims.TenantID)
			ctx = requestcontext.WithActor(ctx, claims.ActorID)
			ctx = requestcontext.WithPermissions(ctx, claims.Permissions)

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequirePermission gates a route on a single evidence permission. Must run
// after RequireAuth.
func RequirePermission(perm string, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			if !requestcontext.HasPermission(ctx, perm) {
				logger.WarnContext(ctx, "forbidden - missing permission",
					"permission", perm,
					"tenant_id", requestcontext.TenantID(ctx),
					"request_id", requestcontext.RequestID(ctx),
				)
				writeJSONError(w, http.StatusForbidden, "forbidden", "Missing required permission")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
