// Package apikey authenticates bearer tokens against a static set of API
// keys. Keys are kept as SHA-256 hashes and compared in constant time.
package apikey

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"net/http"

	"github.com/brubru/aiengine/pkg/auth"
	"github.com/brubru/aiengine/pkg/config"
)

type entry struct {
	hash     [32]byte
	identity auth.Identity
}

// Authenticator validates bearer tokens against configured keys.
type Authenticator struct {
	keys []entry
}

// New creates an authenticator for keys. Plaintext keys are not retained.
func New(keys []config.APIKeyConfig) *Authenticator {
	a := &Authenticator{keys: make([]entry, 0, len(keys))}
	for _, k := range keys {
		a.keys = append(a.keys, entry{
			hash: sha256.Sum256([]byte(k.Key)),
			identity: auth.Identity{
				Subject:     k.Subject,
				ServiceTier: k.ServiceTier,
				Scope:       k.Scope,
			},
		})
	}
	return a
}

// Authenticate abstains without bearer credentials, says Yes for a known
// key and No for any other bearer token.
func (a *Authenticator) Authenticate(_ context.Context, r *http.Request) auth.Result {
	token, ok := auth.BearerToken(r)
	if !ok {
		return auth.Result{Decision: auth.Abstain}
	}
	if token == "" {
		return auth.Result{Decision: auth.No, Err: auth.ErrUnauthenticated}
	}

	h := sha256.Sum256([]byte(token))
	for _, e := range a.keys {
		if subtle.ConstantTimeCompare(h[:], e.hash[:]) == 1 {
			id := e.identity
			return auth.Result{Decision: auth.Yes, Identity: &id}
		}
	}
	return auth.Result{Decision: auth.No, Err: auth.ErrUnauthenticated}
}
