package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/brubru/aiengine/pkg/api"
	"github.com/brubru/aiengine/pkg/continuity"
	"github.com/brubru/aiengine/pkg/debug"
	"github.com/brubru/aiengine/pkg/event"
	"github.com/brubru/aiengine/pkg/messages"
	"github.com/brubru/aiengine/pkg/observability"
	"github.com/brubru/aiengine/pkg/provider"
	"github.com/brubru/aiengine/pkg/query"
	"github.com/brubru/aiengine/pkg/reply"
	"github.com/brubru/aiengine/pkg/storage"
)

// runText runs a completion turn: message building, the backend call,
// reply normalization and continuation token bookkeeping.
func (e *Engine) runText(ctx context.Context, p provider.Provider, q *query.Query, disc *storage.Discussion, sink event.Sink) (*reply.Reply, error) {
	caps := p.Capabilities()
	key := discussionKey(q)
	token := e.continuationToken(q, caps.Protocol, key, disc)

	payload, err := e.builder.Build(ctx, q, caps.Protocol, token)
	if err != nil {
		return nil, err
	}
	resp, streamed, err := e.complete(ctx, p, q, payload, sink)
	if err != nil && payload.Incremental && api.IsType(err, api.ErrorTypeProvider) && ctx.Err() == nil {
		// The backend may have dropped the referenced response; replay the
		// whole history once.
		slog.Warn("continuation token rejected, replaying the history",
			"env", q.EnvID, "token", token, "error", err)
		observability.ContinuityLookupsTotal.WithLabelValues("rejected").Inc()
		if key != "" {
			e.continuity.Forget(key)
		}
		payload, err = e.builder.Build(ctx, q, caps.Protocol, "")
		if err != nil {
			return nil, err
		}
		resp, streamed, err = e.complete(ctx, p, q, payload, sink)
	}
	if err != nil {
		return nil, err
	}

	n := reply.Normalizer{Blobs: e.blobs, Options: e.opts}
	r, err := n.Normalize(ctx, q, resp.Choices, resp.RawMessage)
	if err != nil {
		return nil, err
	}
	r.SetUsage(resp.Usage, resp.Accuracy)

	var rec *continuity.Record
	if caps.Protocol == provider.ProtocolResponses && resp.ID != "" {
		r.ID = resp.ID
		if key != "" {
			stored := e.continuity.Store(key, resp.ID, time.Time{})
			rec = &stored
		}
	}
	e.saveDiscussion(ctx, q, disc, r, resp.RawMessage, rec)

	if !streamed && r.Result != "" {
		if err := push(ctx, sink, event.Content(r.Result)); err != nil {
			return nil, err
		}
	}
	for _, calls := range [][]api.ToolCall{r.NeedFeedbacks, r.NeedClientActions} {
		for _, c := range calls {
			if err := push(ctx, sink, event.ToolCall(c.Name, c.Arguments)); err != nil {
				return nil, err
			}
		}
	}
	return r, nil
}

// continuationToken returns the token the turn may reference, or "" for a
// full replay. An explicit previousResponseId wins over the token stored
// for the discussion.
func (e *Engine) continuationToken(q *query.Query, protocol provider.Protocol, key string, disc *storage.Discussion) string {
	if protocol != provider.ProtocolResponses || q.HistoryStrategy == query.HistoryStatelessReplay {
		return ""
	}

	token := q.PreviousResponseID
	if token == "" && key != "" {
		var extra map[string]any
		if disc != nil {
			extra = disc.Extra
		}
		token, _ = e.continuity.Retrieve(key, extra)
	}
	if token == "" {
		observability.ContinuityLookupsTotal.WithLabelValues("miss").Inc()
		return ""
	}
	if !e.continuity.Validate(token, string(protocol)) {
		observability.ContinuityLookupsTotal.WithLabelValues("mismatch").Inc()
		debug.Log(debug.CategoryContinuity, "token does not match the protocol", "token", token, "protocol", protocol)
		return ""
	}
	observability.ContinuityLookupsTotal.WithLabelValues("hit").Inc()
	return token
}

// complete sends the request, streaming it when a sink listens and the
// backend can stream. streamed reports whether the content was already
// pushed as deltas.
func (e *Engine) complete(ctx context.Context, p provider.Provider, q *query.Query, payload *messages.Payload, sink event.Sink) (resp *provider.Response, streamed bool, err error) {
	caps := p.Capabilities()
	req := buildRequest(q, payload, caps)
	if apiErr := provider.ValidateCapabilities(caps, req); apiErr != nil {
		return nil, false, apiErr
	}
	debug.Dump(debug.CategoryProviders, "provider request", req)

	if err := push(ctx, sink, event.RequestSent()); err != nil {
		return nil, false, err
	}
	start := time.Now()

	if sink == nil || !caps.Streaming {
		resp, err = e.call(p, q.Model, func() (*provider.Response, error) {
			return p.Complete(ctx, req)
		})
	} else {
		req.Stream = true
		streamed = true
		resp, err = e.call(p, q.Model, func() (*provider.Response, error) {
			return e.stream(ctx, p, req, sink)
		})
	}
	if err != nil {
		return nil, streamed, err
	}
	if err := push(ctx, sink, event.ResponseCompleted()); err != nil {
		return nil, streamed, err
	}
	if err := push(ctx, sink, event.RequestCompleted(time.Since(start))); err != nil {
		return nil, streamed, err
	}
	return resp, streamed, nil
}

// stream runs a streaming request and forwards the deltas to sink. A sink
// that refuses an event cancels the backend call.
func (e *Engine) stream(ctx context.Context, p provider.Provider, req *provider.Request, sink event.Sink) (*provider.Response, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	ch, err := p.Stream(ctx, req)
	if err != nil {
		return nil, err
	}

	f := &forwarder{sink: sink, names: make(map[int]string)}
	resp, err := provider.Collect(ctx, ch, func(ev provider.Event) error {
		return f.forward(ctx, ev)
	})
	if err != nil {
		if f.sinkErr != nil {
			return nil, fmt.Errorf("event consumer gone: %w", f.sinkErr)
		}
		return nil, err
	}
	return resp, nil
}
