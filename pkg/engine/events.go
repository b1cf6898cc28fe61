package engine

import (
	"context"
	"log/slog"

	"github.com/brubru/aiengine/pkg/event"
	"github.com/brubru/aiengine/pkg/observability"
	"github.com/brubru/aiengine/pkg/provider"
	"github.com/brubru/aiengine/pkg/reply"
)

// observedSink counts every event the consumer accepted.
type observedSink struct {
	next event.Sink
}

func (s observedSink) Push(ctx context.Context, e event.Event) error {
	if err := s.next.Push(ctx, e); err != nil {
		return err
	}
	observability.EventsTotal.WithLabelValues(string(e.Type()), string(e.Subtype())).Inc()
	return nil
}

func observe(sink event.Sink) event.Sink {
	if sink == nil {
		return nil
	}
	if _, ok := sink.(observedSink); ok {
		return sink
	}
	return observedSink{next: sink}
}

// push is a nil-safe Sink.Push.
func push(ctx context.Context, sink event.Sink, e event.Event) error {
	if sink == nil {
		return nil
	}
	return sink.Push(ctx, e)
}

// fail reports err as the terminal event. The consumer may already be
// gone, so the push error is only logged.
func fail(ctx context.Context, sink event.Sink, err error) {
	if sink == nil {
		return
	}
	if perr := sink.Push(ctx, event.Error(err.Error())); perr != nil {
		slog.Debug("error event not delivered", "error", perr)
	}
}

// finish sends the end event carrying the reply.
func finish(ctx context.Context, sink event.Sink, r *reply.Reply) {
	if sink == nil {
		return
	}
	if err := sink.Push(ctx, event.End(r)); err != nil {
		slog.Debug("end event not delivered", "error", err)
	}
}

// forwarder maps streaming provider events onto caller events.
type forwarder struct {
	sink    event.Sink
	names   map[int]string
	started bool
	sinkErr error
}

func (f *forwarder) forward(ctx context.Context, ev provider.Event) error {
	var out []event.Event
	if !f.started {
		f.started = true
		out = append(out, event.GeneratingResponse())
	}

	switch ev.Type {
	case provider.EventTextDelta:
		if ev.Delta != "" {
			out = append(out, event.Content(ev.Delta))
		}
	case provider.EventReasoningDelta:
		if ev.Delta != "" {
			out = append(out, event.Thinking(ev.Delta))
		}
	case provider.EventToolCallDelta:
		if ev.FunctionName != "" {
			f.names[ev.ToolCallIndex] = ev.FunctionName
		}
		if ev.Delta != "" {
			out = append(out, event.ToolArgs(f.names[ev.ToolCallIndex], ev.Delta))
		}
	case provider.EventDone:
		out = append(out, event.StreamCompleted())
	}

	for _, e := range out {
		if err := f.sink.Push(ctx, e); err != nil {
			f.sinkErr = err
			return err
		}
	}
	return nil
}
