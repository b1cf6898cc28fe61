package responses

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"strings"

	"github.com/brubru/aiengine/pkg/api"
	"github.com/brubru/aiengine/pkg/provider"
)

// streamState remembers the call id and name of function_call items, which
// argument delta events only reference by output index.
type streamState struct {
	calls map[int]callRef
}

type callRef struct {
	id   string
	name string
}

// parseSSEStream reads Responses API SSE events from the reader and maps
// them to provider events sent to the channel. The channel is closed when
// the stream ends (response.completed/failed) or an error occurs.
func parseSSEStream(ctx context.Context, r io.Reader, ch chan<- provider.Event) {
	defer close(ch)

	send := func(ev provider.Event) bool {
		select {
		case ch <- ev:
			return true
		case <-ctx.Done():
			return false
		}
	}

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 8*1024*1024)
	state := &streamState{calls: make(map[int]callRef)}
	var currentEvent string

	for scanner.Scan() {
		if ctx.Err() != nil {
			return
		}
		line := scanner.Text()

		// SSE format: "event: <type>" followed by "data: <json>"
		if rest, ok := strings.CutPrefix(line, "event:"); ok {
			currentEvent = strings.TrimSpace(rest)
			continue
		}

		rest, ok := strings.CutPrefix(line, "data:")
		if !ok {
			if err := provider.CheckStreamError(line); err != nil {
				send(provider.Event{Type: provider.EventError, Err: err})
				return
			}
			continue
		}
		data := strings.TrimSpace(rest)
		if data == "[DONE]" {
			send(provider.Event{Type: provider.EventDone})
			return
		}

		eventType := currentEvent
		currentEvent = ""
		if eventType == "" {
			// Some backends only carry the type inside the payload.
			var typed struct {
				Type string `json:"type"`
			}
			if json.Unmarshal([]byte(data), &typed) == nil {
				eventType = typed.Type
			}
		}
		if eventType != eventError && eventType != eventResponseFailed {
			if err := provider.CheckStreamError(data); err != nil {
				send(provider.Event{Type: provider.EventError, Err: err})
				return
			}
		}

		ev, terminal, emit := state.handleSSEEvent(eventType, []byte(data))
		if emit && !send(ev) {
			return
		}
		if terminal {
			return
		}
	}

	if err := scanner.Err(); err != nil {
		if ctx.Err() != nil {
			return
		}
		send(provider.Event{
			Type: provider.EventError,
			Err:  api.NewProviderError("connection_error", "SSE stream read error: "+err.Error(), err),
		})
		return
	}

	// Stream ended without a terminal event.
	send(provider.Event{Type: provider.EventDone})
}

// handleSSEEvent processes a single SSE event. It returns the event to emit,
// whether the stream is over, and whether there is anything to emit.
func (s *streamState) handleSSEEvent(eventType string, data []byte) (provider.Event, bool, bool) {
	switch eventType {
	case eventResponseCreated:
		var d responseEnvelope
		if err := json.Unmarshal(data, &d); err != nil || d.Response.ID == "" {
			return provider.Event{}, false, false
		}
		return provider.Event{Type: provider.EventResponseID, ResponseID: d.Response.ID}, false, true

	case eventTextDelta:
		var d textDeltaData
		if err := json.Unmarshal(data, &d); err != nil {
			slog.Debug("failed to parse text delta", "error", err)
			return provider.Event{}, false, false
		}
		return provider.Event{Type: provider.EventTextDelta, Delta: d.Delta}, false, true

	case eventReasoningDelta:
		var d textDeltaData
		if err := json.Unmarshal(data, &d); err != nil {
			slog.Debug("failed to parse reasoning delta", "error", err)
			return provider.Event{}, false, false
		}
		return provider.Event{Type: provider.EventReasoningDelta, Delta: d.Delta}, false, true

	case eventOutputItemAdded:
		var d outputItemData
		if err := json.Unmarshal(data, &d); err != nil {
			slog.Debug("failed to parse output item", "error", err)
			return provider.Event{}, false, false
		}
		if d.Item.Type != "function_call" {
			return provider.Event{}, false, false
		}
		s.calls[d.OutputIndex] = callRef{id: d.Item.CallID, name: d.Item.Name}
		return provider.Event{
			Type:          provider.EventToolCallDelta,
			ToolCallIndex: d.OutputIndex,
			ToolCallID:    d.Item.CallID,
			FunctionName:  d.Item.Name,
			Delta:         d.Item.Arguments,
		}, false, true

	case eventFuncCallArgsDelta:
		var d funcCallArgsDeltaData
		if err := json.Unmarshal(data, &d); err != nil {
			slog.Debug("failed to parse function call args delta", "error", err)
			return provider.Event{}, false, false
		}
		ref := s.calls[d.OutputIndex]
		return provider.Event{
			Type:          provider.EventToolCallDelta,
			Delta:         d.Delta,
			ToolCallIndex: d.OutputIndex,
			ToolCallID:    ref.id,
			FunctionName:  ref.name,
		}, false, true

	case eventFuncCallArgsDone:
		var d funcCallArgsDoneData
		if err := json.Unmarshal(data, &d); err != nil {
			slog.Debug("failed to parse function call args done", "error", err)
			return provider.Event{}, false, false
		}
		ref := s.calls[d.OutputIndex]
		return provider.Event{
			Type:          provider.EventToolCallDone,
			ToolCallIndex: d.OutputIndex,
			ToolCallID:    ref.id,
			FunctionName:  ref.name,
			Delta:         d.Arguments,
		}, false, true

	case eventResponseCompleted, eventResponseIncomplete:
		ev := provider.Event{Type: provider.EventDone}
		var d responseEnvelope
		if err := json.Unmarshal(data, &d); err != nil {
			slog.Debug("failed to parse response completed", "error", err)
			return ev, true, true
		}
		ev.ResponseID = d.Response.ID
		if d.Response.Usage != nil {
			usage := translateUsage(d.Response.Usage)
			ev.Usage = &usage
		}
		return ev, true, true

	case eventResponseFailed, eventError:
		return provider.Event{Type: provider.EventError, Err: failureError(data)}, true, true

	case eventResponseInProgress, eventOutputItemDone, eventContentPartAdded,
		eventContentPartDone, eventTextDone, eventReasoningDone:
		// Lifecycle events that don't carry data needed by the engine.
		return provider.Event{}, false, false

	default:
		slog.Debug("unknown SSE event type, skipping", "event", eventType)
		return provider.Event{}, false, false
	}
}

// failureError extracts the error carried by response.failed or error events.
func failureError(data []byte) error {
	var failed responseEnvelope
	if json.Unmarshal(data, &failed) == nil && failed.Response.Error != nil && failed.Response.Error.Message != "" {
		e := failed.Response.Error
		return api.NewProviderError(firstNonEmpty(e.Code, "response_failed"), e.Message, nil)
	}
	var top responsesError
	if json.Unmarshal(data, &top) == nil && top.Message != "" {
		return api.NewProviderError(firstNonEmpty(top.Code, "stream_error"), top.Message, nil)
	}
	return api.NewProviderError("response_failed", "backend response failed", nil)
}
