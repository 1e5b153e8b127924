package testutil

import (
	"net/http"

	"ledgerd/pkg/requestcontext"
)

// WithTenant scopes a request to a tenant, simulating what the auth
// middleware does for authenticated requests.
func WithTenant(req *http.Request, tenantID string) *http.Request {
	ctx := requestcontext.WithTenantID(req.Context(), tenantID)
	return req.WithContext(ctx)
}

// WithAuth scopes a request to a tenant with the given permissions, the
// typical state of an authenticated evidence API request.
func WithAuth(req *http.Request, tenantID string, perms ...string) *http.Request {
	ctx := req.Context()
	ctx = requestcontext.WithTenantID(ctx, tenantID)
	ctx = requestcontext.WithPermissions(ctx, perms)
	return req.WithContext(ctx)
}
