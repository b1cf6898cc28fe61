package openaicompat

import (
	"context"
	"strings"
	"testing"

	"github.com/brubru/aiengine/pkg/api"
	"github.com/brubru/aiengine/pkg/provider"
)

// collectEvents runs ParseSSEStream and returns all events.
func collectEvents(t *testing.T, sseData string) []provider.Event {
	t.Helper()
	ch := make(chan provider.Event, 64)

	go func() {
		defer close(ch)
		ParseSSEStream(context.Background(), strings.NewReader(sseData), ch)
	}()

	var events []provider.Event
	for ev := range ch {
		events = append(events, ev)
	}
	return events
}

func assertEvent(t *testing.T, ev provider.Event, wantType provider.EventType, wantDelta string) {
	t.Helper()
	if ev.Type != wantType {
		t.Errorf("event type = %d, want %d", ev.Type, wantType)
	}
	if ev.Delta != wantDelta {
		t.Errorf("event delta = %q, want %q", ev.Delta, wantDelta)
	}
}

func TestParseSSEStream_TextDeltas(t *testing.T) {
	sseData := `data: {"id":"chatcmpl-1","object":"chat.completion.chunk","model":"gpt-4","choices":[{"index":0,"delta":{"role":"assistant"},"finish_reason":null}]}

data: {"id":"chatcmpl-1","object":"chat.completion.chunk","model":"gpt-4","choices":[{"index":0,"delta":{"content":"Hello"},"finish_reason":null}]}

data: {"id":"chatcmpl-1","object":"chat.completion.chunk","model":"gpt-4","choices":[{"index":0,"delta":{"content":" world"},"finish_reason":null}]}

data: {"id":"chatcmpl-1","object":"chat.completion.chunk","model":"gpt-4","choices":[{"index":0,"delta":{},"finish_reason":"stop"}]}

data: {"id":"chatcmpl-1","object":"chat.completion.chunk","model":"gpt-4","choices":[],"usage":{"prompt_tokens":5,"completion_tokens":2,"total_tokens":7}}

data: [DONE]
`
	events := collectEvents(t, sseData)
	if len(events) != 3 {
		t.Fatalf("expected 3 events, got %d: %+v", len(events), events)
	}

	assertEvent(t, events[0], provider.EventTextDelta, "Hello")
	assertEvent(t, events[1], provider.EventTextDelta, " world")
	assertEvent(t, events[2], provider.EventDone, "")

	if events[2].Usage == nil || events[2].Usage.TotalTokens != 7 {
		t.Errorf("done usage = %+v, want total 7", events[2].Usage)
	}
}

func TestParseSSEStream_ToolCalls(t *testing.T) {
	sseData := `data: {"id":"c","choices":[{"index":0,"delta":{"role":"assistant","tool_calls":[{"index":0,"id":"call_1","type":"function","function":{"name":"get_weather","arguments":""}}]},"finish_reason":null}]}

data: {"id":"c","choices":[{"index":0,"delta":{"tool_calls":[{"index":0,"function":{"arguments":"{\"city\":"}}]},"finish_reason":null}]}

data: {"id":"c","choices":[{"index":0,"delta":{"tool_calls":[{"index":1,"id":"call_2","type":"function","function":{"name":"get_time","arguments":"{}"}}]},"finish_reason":null}]}

data: {"id":"c","choices":[{"index":0,"delta":{"tool_calls":[{"index":0,"function":{"arguments":"\"Paris\"}"}}]},"finish_reason":null}]}

data: {"id":"c","choices":[{"index":0,"delta":{},"finish_reason":"tool_calls"}]}

data: [DONE]
`
	events := collectEvents(t, sseData)

	var done []provider.Event
	for _, ev := range events {
		if ev.Type == provider.EventToolCallDone {
			done = append(done, ev)
		}
	}
	if len(done) != 2 {
		t.Fatalf("expected 2 tool call done events, got %d", len(done))
	}
	if done[0].ToolCallID != "call_1" || done[0].FunctionName != "get_weather" {
		t.Errorf("first call = %+v", done[0])
	}
	if done[0].Delta != `{"city":"Paris"}` {
		t.Errorf("first call args = %q", done[0].Delta)
	}
	if done[1].ToolCallID != "call_2" || done[1].Delta != "{}" {
		t.Errorf("second call = %+v", done[1])
	}
	if last := events[len(events)-1]; last.Type != provider.EventDone {
		t.Errorf("last event type = %d, want EventDone", last.Type)
	}

	resp, err := provider.Collect(context.Background(), feedEvents(events), nil)
	if err != nil {
		t.Fatal(err)
	}
	calls := resp.Choices[0].Message.ToolCalls
	if len(calls) != 2 || calls[0].Function.Arguments != `{"city":"Paris"}` {
		t.Errorf("collected calls = %+v", calls)
	}
}

func TestParseSSEStream_Reasoning(t *testing.T) {
	sseData := `data: {"choices":[{"index":0,"delta":{"reasoning_content":"thinking"},"finish_reason":null}]}

data: {"choices":[{"index":0,"delta":{"content":"answer"},"finish_reason":null}]}

data: [DONE]
`
	events := collectEvents(t, sseData)
	if len(events) != 3 {
		t.Fatalf("expected 3 events, got %d", len(events))
	}
	assertEvent(t, events[0], provider.EventReasoningDelta, "thinking")
	assertEvent(t, events[1], provider.EventTextDelta, "answer")
}

func TestParseSSEStream_ErrorPayload(t *testing.T) {
	sseData := `data: {"choices":[{"index":0,"delta":{"content":"par"},"finish_reason":null}]}

data: {"error":{"message":"Rate limit reached","code":"rate_limit_exceeded","type":"requests"}}

data: {"choices":[{"index":0,"delta":{"content":"never"},"finish_reason":null}]}
`
	events := collectEvents(t, sseData)
	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %d: %+v", len(events), events)
	}
	if events[1].Type != provider.EventError {
		t.Fatalf("second event type = %d, want EventError", events[1].Type)
	}
	if !api.IsType(events[1].Err, api.ErrorTypeProvider) {
		t.Errorf("error = %v, want provider error", events[1].Err)
	}
	if !strings.Contains(events[1].Err.Error(), "Rate limit reached") {
		t.Errorf("error = %q", events[1].Err.Error())
	}
}

func TestParseSSEStream_BareErrorBody(t *testing.T) {
	events := collectEvents(t, `{"error":{"message":"Invalid API key","code":"invalid_api_key"}}`)
	if len(events) != 1 || events[0].Type != provider.EventError {
		t.Fatalf("events = %+v, want one error", events)
	}
}

func TestParseSSEStream_MalformedChunkSkipped(t *testing.T) {
	sseData := `data: {not json

data: {"choices":[{"index":0,"delta":{"content":"ok"},"finish_reason":null}]}

data: [DONE]
`
	events := collectEvents(t, sseData)
	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(events))
	}
	assertEvent(t, events[0], provider.EventTextDelta, "ok")
}

func TestParseSSEStream_EOFWithoutDone(t *testing.T) {
	sseData := `data: {"choices":[{"index":0,"delta":{"content":"cut"},"finish_reason":null}]}
`
	events := collectEvents(t, sseData)
	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(events))
	}
	if events[1].Type != provider.EventDone {
		t.Errorf("last event type = %d, want EventDone", events[1].Type)
	}
}

func feedEvents(events []provider.Event) <-chan provider.Event {
	ch := make(chan provider.Event, len(events))
	for _, ev := range events {
		ch <- ev
	}
	close(ch)
	return ch
}
