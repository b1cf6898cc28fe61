package main

import (
	"log/slog"
	"net/http"

	"github.com/brubru/aiengine/pkg/auth"
	"github.com/brubru/aiengine/pkg/auth/apikey"
	"github.com/brubru/aiengine/pkg/auth/jwt"
	"github.com/brubru/aiengine/pkg/config"
)

// authMiddleware builds the authentication middleware of the serve
// command. Type "none" admits every caller as anonymous, still subject to
// the rate limits.
func authMiddleware(cfg config.AuthConfig) func(http.Handler) http.Handler {
	chain := &auth.Chain{Default: auth.No}
	switch cfg.Type {
	case "apikey":
		chain.Authenticators = append(chain.Authenticators, apikey.New(cfg.APIKeys))
	case "jwt":
		chain.Authenticators = append(chain.Authenticators, jwt.New(cfg.JWT, nil))
	default:
		chain.Default = auth.Yes
	}

	var limiter auth.RateLimiter
	if cfg.RateLimit.DefaultRPM > 0 || len(cfg.RateLimit.Tiers) > 0 {
		limiter = auth.NewLimiter(cfg.RateLimit.Tiers, cfg.RateLimit.DefaultRPM)
	}

	slog.Info("authentication configured", "type", cfg.Type, "rate_limited", limiter != nil)
	return auth.Middleware(chain, limiter, auth.DefaultBypassPaths)
}
