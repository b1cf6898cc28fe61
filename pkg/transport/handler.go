package transport

import (
	"context"

	"github.com/brubru/aiengine/pkg/event"
	"github.com/brubru/aiengine/pkg/query"
	"github.com/brubru/aiengine/pkg/reply"
)

// Request is a query submitted by a remote caller.
type Request struct {
	// Kind selects the query constructor. Empty means text.
	Kind    query.Kind `json:"kind,omitempty"`
	Message string     `json:"message"`

	// Params are injected into the query. Keys may be snake_case or
	// camelCase.
	Params map[string]any `json:"params,omitempty"`

	// Stream asks for the event stream instead of a single reply.
	Stream bool `json:"stream,omitempty"`

	// Feedback runs the function-call feedback loop instead of a single
	// turn.
	Feedback bool `json:"feedback,omitempty"`
}

// Query builds the query described by the request.
func (r *Request) Query() (*query.Query, error) {
	kind := r.Kind
	if kind == "" {
		kind = query.KindText
	}
	q, err := query.New(kind, r.Message)
	if err != nil {
		return nil, err
	}
	if err := q.Inject(r.Params); err != nil {
		return nil, err
	}
	return q, nil
}

// QueryHandler runs a request and writes the result (streaming events or a
// complete reply) to the ResponseWriter.
type QueryHandler interface {
	HandleQuery(ctx context.Context, req *Request, w ResponseWriter) error
}

// QueryHandlerFunc is an adapter that allows using an ordinary function
// as a QueryHandler.
type QueryHandlerFunc func(ctx context.Context, req *Request, w ResponseWriter) error

// HandleQuery calls f(ctx, req, w).
func (f QueryHandlerFunc) HandleQuery(ctx context.Context, req *Request, w ResponseWriter) error {
	return f(ctx, req, w)
}

// ResponseWriter abstracts streaming and non-streaming output for the
// handler. Push sends one event of a streaming response; WriteReply sends a
// complete reply. The two are mutually exclusive on a single writer, and no
// event is accepted after a terminal (error or end) event.
type ResponseWriter interface {
	event.Sink

	// WriteReply sends a complete non-streaming reply.
	WriteReply(ctx context.Context, r *reply.Reply) error

	// Flush ensures buffered data is sent to the client. Returns an error
	// if the client has disconnected.
	Flush() error
}
