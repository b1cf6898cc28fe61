package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"
)

// Decision is the vote of an authenticator.
type Decision int

const (
	// Yes means the credentials are valid; the chain stops.
	Yes Decision = iota

	// No means the credentials are invalid; the request is rejected.
	No

	// Abstain passes the request to the next authenticator.
	Abstain
)

// Result is the outcome of one authentication attempt.
type Result struct {
	Decision Decision
	Identity *Identity // set when Decision is Yes
	Err      error     // set when Decision is No
}

// Identity is an authenticated caller.
type Identity struct {
	Subject     string
	ServiceTier string

	// Scope is the storage scope of the caller's discussions and usage.
	// Empty means the unscoped space.
	Scope string
}

// Authenticator votes on the credentials of a request.
type Authenticator interface {
	Authenticate(ctx context.Context, r *http.Request) Result
}

var (
	ErrUnauthenticated = errors.New("authentication required")
	ErrTooManyRequests = errors.New("rate limit exceeded")
)

// anonymous is the identity granted when every authenticator abstains and
// the default decision is Yes.
var anonymous = Identity{Subject: "anonymous", ServiceTier: "default"}

// Chain evaluates authenticators left to right and stops at the first Yes
// or No.
type Chain struct {
	Authenticators []Authenticator

	// Default applies when all authenticators abstain: Yes admits the
	// caller as anonymous, anything else rejects it.
	Default Decision
}

// Authenticate runs the chain.
func (c *Chain) Authenticate(ctx context.Context, r *http.Request) Result {
	for _, a := range c.Authenticators {
		if res := a.Authenticate(ctx, r); res.Decision != Abstain {
			return res
		}
	}
	if c.Default == Yes {
		id := anonymous
		return Result{Decision: Yes, Identity: &id}
	}
	return Result{Decision: No, Err: ErrUnauthenticated}
}

// BearerToken returns the token of an "Authorization: Bearer" header. ok
// is false when the request carries no bearer credentials at all.
func BearerToken(r *http.Request) (token string, ok bool) {
	return strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
}
