package transport

import (
	"context"
	"sync"
)

// InFlightRegistry maps the request IDs of running queries to their cancel
// functions so a query can be stopped while its backend call is running.
// Each entry remembers the scope of the caller that started it; only a
// caller of the same scope may cancel it.
type InFlightRegistry struct {
	mu      sync.Mutex
	queries map[string]inflightQuery
}

type inflightQuery struct {
	scope  string
	cancel context.CancelFunc
}

func NewInFlightRegistry() *InFlightRegistry {
	return &InFlightRegistry{queries: make(map[string]inflightQuery)}
}

func (r *InFlightRegistry) Register(id, scope string, cancel context.CancelFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.queries[id] = inflightQuery{scope: scope, cancel: cancel}
}

// Cancel stops the query id started in scope. It reports false when no
// such query is running, including when it belongs to another scope.
func (r *InFlightRegistry) Cancel(id, scope string) bool {
	r.mu.Lock()
	q, ok := r.queries[id]
	if ok && q.scope == scope {
		delete(r.queries, id)
	}
	r.mu.Unlock()

	if !ok || q.scope != scope {
		return false
	}
	q.cancel()
	return true
}

// CancelAll stops every running query and returns how many there were.
func (r *InFlightRegistry) CancelAll() int {
	r.mu.Lock()
	queries := r.queries
	r.queries = make(map[string]inflightQuery)
	r.mu.Unlock()

	for _, q := range queries {
		q.cancel()
	}
	return len(queries)
}

func (r *InFlightRegistry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.queries)
}

// Remove forgets a finished query without cancelling it.
func (r *InFlightRegistry) Remove(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.queries, id)
}
