package engine

import (
	"context"

	"github.com/brubru/aiengine/pkg/event"
	"github.com/brubru/aiengine/pkg/reply"
	"github.com/brubru/aiengine/pkg/storage"
	"github.com/brubru/aiengine/pkg/transport"
)

var _ transport.QueryHandler = (*Engine)(nil)

// HandleQuery runs a transport request. Streaming requests receive every
// event on w, ending with the end or error event; other requests receive
// the final reply only.
func (e *Engine) HandleQuery(ctx context.Context, req *transport.Request, w transport.ResponseWriter) error {
	q, err := req.Query()
	if err != nil {
		return err
	}
	// An authenticated caller cannot reach another scope.
	if scope := storage.ScopeFrom(ctx); scope != "" {
		q.Scope = scope
	}

	var sink event.Sink
	if req.Stream {
		sink = w
	}

	var r *reply.Reply
	if req.Feedback {
		out, err := e.RunWithFeedback(ctx, q, sink)
		if err != nil {
			return err
		}
		r = out.Reply
	} else {
		r, err = e.Execute(ctx, q, sink)
		if err != nil {
			return err
		}
	}

	if req.Stream {
		return w.Flush()
	}
	return w.WriteReply(ctx, r)
}
