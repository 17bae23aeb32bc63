package gate

import (
	"context"
	"net/http"
	"strconv"

	"github.com/MrEthical07/goAssist/session"
)

type identityContextKey struct{}

// IdentityFromContext returns the identity stored by [Middleware].
func IdentityFromContext(ctx context.Context) (session.Identity, bool) {
	id, ok := ctx.Value(identityContextKey{}).(session.Identity)
	return id, ok
}

// MiddlewareOptions configures [Middleware].
type MiddlewareOptions struct {
	// LoginPath receives denied requests as a 303 redirect. Empty means 401.
	LoginPath string
	// RetryAfterSeconds is sent with 503 while loading. Defaults to 1.
	RetryAfterSeconds int
}

// Middleware guards next with g: loading answers 503, denied redirects to
// LoginPath or answers 401, allowed passes through with the identity in the
// request context.
func Middleware(g *Gate, opts MiddlewareOptions) func(http.Handler) http.Handler {
	retryAfter := opts.RetryAfterSeconds
	if retryAfter <= 0 {
		retryAfter = 1
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if g == nil {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			switch g.Status() {
			case StatusLoading:
				w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
				http.Error(w, "session loading", http.StatusServiceUnavailable)
				return
			case StatusDenied:
				if opts.LoginPath != "" {
					http.Redirect(w, r, opts.LoginPath, http.StatusSeeOther)
					return
				}
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			ctx := r.Context()
			if id, ok := g.Identity(); ok {
				ctx = context.WithValue(ctx, identityContextKey{}, id)
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
