package auth

import (
	"log/slog"
	"net/http"

	"github.com/brubru/aiengine/pkg/api"
	"github.com/brubru/aiengine/pkg/observability"
	"github.com/brubru/aiengine/pkg/storage"
	"github.com/brubru/aiengine/pkg/transport"
)

// DefaultBypassPaths skip authentication.
var DefaultBypassPaths = []string{"/healthz"}

// Middleware authenticates every request outside bypass with chain and,
// when limiter is not nil, enforces its budget. Admitted requests carry
// the identity and its storage scope in their context.
func Middleware(chain *Chain, limiter RateLimiter, bypass []string) func(http.Handler) http.Handler {
	skip := make(map[string]bool, len(bypass))
	for _, p := range bypass {
		skip[p] = true
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if skip[r.URL.Path] {
				next.ServeHTTP(w, r)
				return
			}

			res := chain.Authenticate(r.Context(), r)
			if res.Decision != Yes || res.Identity == nil {
				slog.Warn("authentication failed",
					"path", r.URL.Path, "remote_addr", r.RemoteAddr, "error", res.Err)
				transport.WriteAPIError(w, api.NewAuthenticationError("authentication required"))
				return
			}
			id := res.Identity
			if id.Subject == "" {
				slog.Error("authenticator returned an identity without subject")
				transport.WriteAPIError(w, api.NewServerError("internal authentication error"))
				return
			}

			if limiter != nil {
				if err := limiter.Allow(r.Context(), id); err != nil {
					slog.Warn("rate limit exceeded", "subject", id.Subject, "tier", id.ServiceTier)
					observability.RateLimitRejectedTotal.WithLabelValues(tierLabel(id)).Inc()
					transport.WriteAPIError(w, api.NewRateLimitError("rate limit exceeded"))
					return
				}
			}

			slog.Debug("authenticated", "subject", id.Subject, "scope", id.Scope, "path", r.URL.Path)
			ctx := WithIdentity(r.Context(), id)
			if id.Scope != "" {
				ctx = storage.WithScope(ctx, id.Scope)
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func tierLabel(id *Identity) string {
	if id.ServiceTier == "" {
		return "default"
	}
	return id.ServiceTier
}
