package httptransport

import (
	"context"
	"net/http"
	"time"

	"veriflow/pkg/requestcontext"
)

// userAgentMiddleware pins the caller's User-Agent into the request
// context so device capability checks downstream see the real browser,
// not this service's own client string.
func userAgentMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := requestcontext.WithUserAgent(r.Context(), r.UserAgent())
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func timeoutMiddleware(timeout time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, cancel := context.WithTimeout(r.Context(), timeout)
			defer cancel()
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
