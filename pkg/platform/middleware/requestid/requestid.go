// Package requestid assigns each request a correlation ID, honoring one
// supplied by the caller so producer-side retries stay traceable end to end.
package requestid

import (
	"net/http"

	"github.com/google/uuid"

	"ledgerd/pkg/requestcontext"
)

// Header carries the correlation ID on requests and responses.
const Header = "X-Request-ID"

// Middleware injects a request ID into the context and echoes it on the
// response.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get(Header)
		if requestID == "" {
			requestID = uuid.NewString()
		}
		w.Header().Set(Header, requestID)
		ctx := requestcontext.WithRequestID(r.Context(), requestID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
