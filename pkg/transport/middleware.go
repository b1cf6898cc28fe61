package transport

import "slices"

// Middleware decorates a QueryHandler.
type Middleware func(QueryHandler) QueryHandler

// Chain composes middlewares so that the first one sees the query first:
// Chain(a, b)(h) is a(b(h)).
func Chain(middlewares ...Middleware) Middleware {
	return func(h QueryHandler) QueryHandler {
		for _, mw := range slices.Backward(middlewares) {
			h = mw(h)
		}
		return h
	}
}
