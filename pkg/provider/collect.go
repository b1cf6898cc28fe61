package provider

import (
	"context"
	"sort"
	"strings"

	"github.com/brubru/aiengine/pkg/api"
	"github.com/brubru/aiengine/pkg/reply"
)

type toolCallBuffer struct {
	id   string
	name string
	args strings.Builder
	done bool
}

// Collect drains a provider stream into a complete Response. Each event is
// passed to onEvent first; an error from onEvent (typically a disconnected
// consumer) stops collection and is returned. Remaining events are drained
// in the background so the provider goroutine can exit.
func Collect(ctx context.Context, ch <-chan Event, onEvent func(Event) error) (*Response, error) {
	var (
		text    strings.Builder
		calls   = map[int]*toolCallBuffer{}
		resp    = &Response{Accuracy: api.AccuracyNone}
		sawDone bool
	)

	abort := func(err error) (*Response, error) {
		go func() {
			for range ch {
			}
		}()
		return nil, err
	}

loop:
	for {
		var ev Event
		var ok bool
		select {
		case <-ctx.Done():
			return abort(ctx.Err())
		case ev, ok = <-ch:
		}
		if !ok {
			break loop
		}

		if onEvent != nil {
			if err := onEvent(ev); err != nil {
				return abort(err)
			}
		}

		if ev.Usage != nil {
			resp.Usage = *ev.Usage
			resp.Accuracy = api.AccuracyTokens
		}
		if ev.ResponseID != "" {
			resp.ID = ev.ResponseID
		}

		switch ev.Type {
		case EventTextDelta:
			text.WriteString(ev.Delta)

		case EventToolCallDelta:
			buf := calls[ev.ToolCallIndex]
			if buf == nil {
				buf = &toolCallBuffer{}
				calls[ev.ToolCallIndex] = buf
			}
			if ev.ToolCallID != "" {
				buf.id = ev.ToolCallID
			}
			if ev.FunctionName != "" {
				buf.name = ev.FunctionName
			}
			if !buf.done {
				buf.args.WriteString(ev.Delta)
			}

		case EventToolCallDone:
			buf := calls[ev.ToolCallIndex]
			if buf == nil {
				buf = &toolCallBuffer{}
				calls[ev.ToolCallIndex] = buf
			}
			if ev.ToolCallID != "" {
				buf.id = ev.ToolCallID
			}
			if ev.FunctionName != "" {
				buf.name = ev.FunctionName
			}
			if ev.Delta != "" {
				buf.args.Reset()
				buf.args.WriteString(ev.Delta)
			}
			buf.done = true

		case EventError:
			return abort(ev.Err)

		case EventDone:
			sawDone = true
		}
	}

	if !sawDone && ctx.Err() != nil {
		return nil, ctx.Err()
	}

	indexes := make([]int, 0, len(calls))
	for idx := range calls {
		indexes = append(indexes, idx)
	}
	sort.Ints(indexes)

	var toolCalls []reply.ChoiceToolCall
	for _, idx := range indexes {
		buf := calls[idx]
		toolCalls = append(toolCalls, reply.ChoiceToolCall{
			ID:   buf.id,
			Type: "function",
			Function: reply.ChoiceFunctionRef{
				Name:      buf.name,
				Arguments: buf.args.String(),
			},
		})
	}

	msg := &reply.ChoiceMessage{Role: api.RoleAssistant, ToolCalls: toolCalls}
	if content := text.String(); content != "" || len(toolCalls) == 0 {
		msg.Content = &content
	}
	raw := msg.ToAPIMessage()
	resp.RawMessage = &raw
	resp.Choices = []reply.Choice{{Message: msg}}
	return resp, nil
}
