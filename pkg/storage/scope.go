package storage

import "context"

// scopeKey is a private type for the scope context key.
type scopeKey struct{}

// WithScope returns a context carrying the storage scope. Discussions saved
// under one scope are invisible from another; the empty scope is the
// default partition.
func WithScope(ctx context.Context, scope string) context.Context {
	return context.WithValue(ctx, scopeKey{}, scope)
}

// ScopeFrom extracts the storage scope from the context. Returns an empty
// string if no scope is set.
func ScopeFrom(ctx context.Context) string {
	if v, ok := ctx.Value(scopeKey{}).(string); ok {
		return v
	}
	return ""
}
