package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/brubru/aiengine/pkg/api"
	"github.com/brubru/aiengine/pkg/event"
	"github.com/brubru/aiengine/pkg/observability"
	"github.com/brubru/aiengine/pkg/query"
	"github.com/brubru/aiengine/pkg/storage"
	"github.com/brubru/aiengine/pkg/transport"
)

// Adapter serves the query API over HTTP.
//
//	POST   /v1/query                    run a query (JSON reply or SSE stream)
//	DELETE /v1/query/{id}               cancel a running query by request ID
//	GET    /v1/discussions/{chatId}     read a stored discussion (?botId=&scope=)
//	DELETE /v1/discussions/{chatId}     delete a stored discussion (?botId=&scope=)
//	GET    /healthz                     liveness
type Adapter struct {
	handler     transport.QueryHandler
	discussions storage.DiscussionStore // nil when nothing is persisted
	inflight    *transport.InFlightRegistry
	mux         *http.ServeMux
	config      Config
}

// Config holds configuration for the HTTP adapter.
type Config struct {
	MaxBodySize int64

	// HTTPMiddleware wraps the routes, inside request ID and metrics
	// handling. Authentication plugs in here.
	HTTPMiddleware []func(http.Handler) http.Handler
}

// DefaultConfig returns the default adapter configuration.
func DefaultConfig() Config {
	return Config{MaxBodySize: 10 << 20}
}

// NewAdapter creates an HTTP adapter. discussions is optional; without it
// the discussion endpoints answer 501. Middleware is applied to handler in
// the given order.
func NewAdapter(handler transport.QueryHandler, discussions storage.DiscussionStore, cfg Config, middlewares ...transport.Middleware) *Adapter {
	if len(middlewares) > 0 {
		handler = transport.Chain(middlewares...)(handler)
	}
	if cfg.MaxBodySize <= 0 {
		cfg.MaxBodySize = DefaultConfig().MaxBodySize
	}

	a := &Adapter{
		handler:     handler,
		discussions: discussions,
		inflight:    transport.NewInFlightRegistry(),
		mux:         http.NewServeMux(),
		config:      cfg,
	}

	a.mux.HandleFunc("POST /v1/query", a.handleQuery)
	a.mux.HandleFunc("DELETE /v1/query/{id}", a.handleCancelQuery)
	a.mux.HandleFunc("GET /v1/discussions/{chatId}", a.handleGetDiscussion)
	a.mux.HandleFunc("DELETE /v1/discussions/{chatId}", a.handleDeleteDiscussion)
	a.mux.HandleFunc("GET /healthz", a.handleHealth)

	return a
}

// Handler returns the http.Handler for this adapter, with request metrics
// and X-Request-ID propagation.
func (a *Adapter) Handler() http.Handler {
	var h http.Handler = a.mux
	for i := len(a.config.HTTPMiddleware) - 1; i >= 0; i-- {
		h = a.config.HTTPMiddleware[i](h)
	}
	return observability.MetricsMiddleware(requestIDMiddleware(h))
}

// requestIDMiddleware assigns every request an ID, taken from the
// X-Request-ID header when the client sent one, and echoes it back.
func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if id == "" {
			id = transport.NewRequestID()
		}
		w.Header().Set("X-Request-ID", id)
		next.ServeHTTP(w, r.WithContext(transport.ContextWithRequestID(r.Context(), id)))
	})
}

// handleQuery handles POST /v1/query.
func (a *Adapter) handleQuery(w http.ResponseWriter, r *http.Request) {
	ct := r.Header.Get("Content-Type")
	if ct != "" && ct != "application/json" {
		transport.WriteErrorResponse(w,
			api.NewValidationError("content_type", "Content-Type must be application/json"),
			http.StatusUnsupportedMediaType,
		)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, a.config.MaxBodySize)

	var req transport.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			transport.WriteErrorResponse(w,
				api.NewValidationError("body", fmt.Sprintf("request body too large (max %d bytes)", a.config.MaxBodySize)),
				http.StatusRequestEntityTooLarge,
			)
			return
		}
		transport.WriteErrorResponse(w,
			api.NewValidationError("body", "invalid JSON: "+err.Error()),
			http.StatusBadRequest,
		)
		return
	}

	kind := req.Kind
	if kind == "" {
		kind = query.KindText
	}
	w.Header().Set(observability.KindHeader, string(kind))

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	id := transport.RequestIDFromContext(ctx)
	a.inflight.Register(id, storage.ScopeFrom(r.Context()), cancel)
	defer a.inflight.Remove(id)

	rw := newResponseWriter(w)
	if err := a.handler.HandleQuery(ctx, &req, rw); err != nil {
		a.writeHandlerError(w, rw, err)
	}
}

// handleCancelQuery handles DELETE /v1/query/{id}. Cancelling a query also
// cancels its backend call. An authenticated caller only sees the queries
// of its own scope.
func (a *Adapter) handleCancelQuery(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if !a.inflight.Cancel(id, storage.ScopeFrom(r.Context())) {
		transport.WriteAPIError(w, api.NewNotFoundError("no running query "+id))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// CancelQueries stops every running query and returns their number.
func (a *Adapter) CancelQueries() int {
	return a.inflight.CancelAll()
}

// handleGetDiscussion handles GET /v1/discussions/{chatId}.
func (a *Adapter) handleGetDiscussion(w http.ResponseWriter, r *http.Request) {
	if a.discussions == nil {
		a.writeNoStore(w, "discussion retrieval")
		return
	}
	chatID := r.PathValue("chatId")
	d, err := a.discussions.GetDiscussion(discussionContext(r), r.URL.Query().Get("botId"), chatID)
	if err != nil {
		a.writeStoreError(w, chatID, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(d)
}

// handleDeleteDiscussion handles DELETE /v1/discussions/{chatId}.
func (a *Adapter) handleDeleteDiscussion(w http.ResponseWriter, r *http.Request) {
	if a.discussions == nil {
		a.writeNoStore(w, "discussion deletion")
		return
	}
	chatID := r.PathValue("chatId")
	if err := a.discussions.DeleteDiscussion(discussionContext(r), r.URL.Query().Get("botId"), chatID); err != nil {
		a.writeStoreError(w, chatID, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// discussionContext scopes the request context to the scope query
// parameter unless an authenticated scope is already set.
func discussionContext(r *http.Request) context.Context {
	if storage.ScopeFrom(r.Context()) != "" {
		return r.Context()
	}
	return storage.WithScope(r.Context(), r.URL.Query().Get("scope"))
}

func (a *Adapter) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{"status": "ok", "running": a.inflight.Len()})
}

func (a *Adapter) writeNoStore(w http.ResponseWriter, what string) {
	transport.WriteErrorResponse(w,
		api.NewValidationError("", what+" is not available (no store configured)"),
		http.StatusNotImplemented,
	)
}

func (a *Adapter) writeStoreError(w http.ResponseWriter, chatID string, err error) {
	if errors.Is(err, storage.ErrNotFound) {
		transport.WriteAPIError(w, api.NewNotFoundError("discussion "+chatID+" not found"))
		return
	}
	transport.WriteAPIError(w, api.AsAPIError(err))
}

// writeHandlerError reports a handler error. Once streaming has started it
// becomes an error event, unless a terminal event was already sent.
// Otherwise a JSON error response is written.
func (a *Adapter) writeHandlerError(w http.ResponseWriter, rw *responseWriter, err error) {
	apiErr := api.AsAPIError(err)
	if errors.Is(err, context.Canceled) {
		apiErr = api.NewServerError("the query was cancelled")
	}

	switch {
	case rw.completed():
		slog.Debug("handler error after the response was completed", "error", err)
	case rw.streaming():
		if perr := rw.Push(context.Background(), event.Error(apiErr.Message)); perr != nil {
			slog.Debug("error event not delivered", "error", perr)
		}
	default:
		transport.WriteAPIError(w, apiErr)
	}
}
