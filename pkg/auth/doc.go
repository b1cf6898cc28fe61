// Package auth authenticates HTTP callers of the query service.
//
// Authenticators vote on each request: Yes (identity found), No
// (credentials present but invalid) or Abstain (credentials of another
// kind). A Chain asks its authenticators in order and falls back to a
// default decision when all abstain.
//
// The middleware stores the identity in the request context and selects
// the storage scope of the identity, so discussions and usage of one
// caller are invisible to others.
package auth
