package provider

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/brubru/aiengine/pkg/api"
)

func TestCheckStreamError(t *testing.T) {
	tests := []struct {
		name    string
		data    string
		wantErr bool
		wantMsg string
	}{
		{"plain chunk", `data: {"choices":[{"delta":{"content":"hi"}}]}`, false, ""},
		{"not json", `data: error happened`, false, ""},
		{"openai style", `data: {"error":{"message":"Rate limit","code":"rate_limit_exceeded","type":"requests"}}`, true, "Error: Rate limit (rate_limit_exceeded) (requests)"},
		{"google style", `[{"error":{"code":400,"message":"Bad key","status":"INVALID_ARGUMENT"}}]`, true, "Error: Bad key (400) (INVALID_ARGUMENT)"},
		{"typed error", `{"type":"error","message":"Overloaded"}`, true, "Error: Overloaded (error)"},
		{"string error", `{"error":"boom"}`, true, "Error: boom"},
		{"error without message", `{"error":{"code":"x"}}`, true, "Unknown error in stream."},
		{"content mentioning error", `{"choices":[{"delta":{"content":"no error here"}}]}`, false, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := CheckStreamError(tt.data)
			if !tt.wantErr {
				if err != nil {
					t.Errorf("unexpected error: %v", err)
				}
				return
			}
			if err == nil {
				t.Fatal("expected error, got nil")
			}
			apiErr := api.AsAPIError(err)
			if apiErr.Type != api.ErrorTypeProvider {
				t.Errorf("type = %q", apiErr.Type)
			}
			if apiErr.Message != tt.wantMsg {
				t.Errorf("message = %q, want %q", apiErr.Message, tt.wantMsg)
			}
		})
	}
}

func feed(events ...Event) <-chan Event {
	ch := make(chan Event, len(events))
	for _, ev := range events {
		ch <- ev
	}
	close(ch)
	return ch
}

func TestCollectText(t *testing.T) {
	var seen int
	resp, err := Collect(context.Background(), feed(
		Event{Type: EventResponseID, ResponseID: "resp_123"},
		Event{Type: EventTextDelta, Delta: "Bon"},
		Event{Type: EventTextDelta, Delta: "jour"},
		Event{Type: EventDone, Usage: &api.Usage{PromptTokens: 3, CompletionTokens: 2, TotalTokens: 5}},
	), func(Event) error { seen++; return nil })
	if err != nil {
		t.Fatal(err)
	}
	if seen != 4 {
		t.Errorf("onEvent called %d times, want 4", seen)
	}
	if resp.ID != "resp_123" {
		t.Errorf("ID = %q", resp.ID)
	}
	if got := *resp.Choices[0].Message.Content; got != "Bonjour" {
		t.Errorf("content = %q", got)
	}
	if resp.Usage.TotalTokens != 5 || resp.Accuracy != api.AccuracyTokens {
		t.Errorf("usage = %+v accuracy = %q", resp.Usage, resp.Accuracy)
	}
}

func TestCollectToolCalls(t *testing.T) {
	resp, err := Collect(context.Background(), feed(
		Event{Type: EventToolCallDelta, ToolCallIndex: 1, ToolCallID: "call_b", FunctionName: "second", Delta: `{"b":`},
		Event{Type: EventToolCallDelta, ToolCallIndex: 0, ToolCallID: "call_a", FunctionName: "first", Delta: `{"a":1}`},
		Event{Type: EventToolCallDelta, ToolCallIndex: 1, Delta: `2}`},
		Event{Type: EventToolCallDone, ToolCallIndex: 1, Delta: `{"b":2}`},
		Event{Type: EventDone},
	), nil)
	if err != nil {
		t.Fatal(err)
	}
	msg := resp.Choices[0].Message
	if msg.Content != nil {
		t.Errorf("content = %q, want nil", *msg.Content)
	}
	if len(msg.ToolCalls) != 2 {
		t.Fatalf("tool calls = %d, want 2", len(msg.ToolCalls))
	}
	if msg.ToolCalls[0].ID != "call_a" || msg.ToolCalls[1].ID != "call_b" {
		t.Errorf("order = %s, %s", msg.ToolCalls[0].ID, msg.ToolCalls[1].ID)
	}
	if msg.ToolCalls[1].Function.Arguments != `{"b":2}` {
		t.Errorf("arguments = %v", msg.ToolCalls[1].Function.Arguments)
	}
	if resp.RawMessage == nil || len(resp.RawMessage.ToolCalls) != 2 {
		t.Errorf("raw message = %+v", resp.RawMessage)
	}
}

func TestCollectStopsOnError(t *testing.T) {
	boom := errors.New("backend failed")
	_, err := Collect(context.Background(), feed(
		Event{Type: EventTextDelta, Delta: "partial"},
		Event{Type: EventError, Err: boom},
	), nil)
	if !errors.Is(err, boom) {
		t.Errorf("err = %v, want %v", err, boom)
	}
}

func TestCollectStopsWhenConsumerGone(t *testing.T) {
	gone := errors.New("client disconnected")
	_, err := Collect(context.Background(), feed(
		Event{Type: EventTextDelta, Delta: "a"},
		Event{Type: EventTextDelta, Delta: "b"},
	), func(Event) error { return gone })
	if !errors.Is(err, gone) {
		t.Errorf("err = %v, want %v", err, gone)
	}
}

func TestCollectCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	ch := make(chan Event)
	_, err := Collect(ctx, ch, nil)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
	close(ch)
}

func TestFunctionTools(t *testing.T) {
	f, err := api.NewFunction("get_weather", "Weather for a city", []api.Parameter{
		api.NewParameter("city", "City name", "string", true),
	})
	if err != nil {
		t.Fatal(err)
	}
	tools := FunctionTools([]*api.Function{f, nil})
	if len(tools) != 1 {
		t.Fatalf("got %d tools, want 1", len(tools))
	}
	if tools[0].Type != "function" || tools[0].Function.Name != "get_weather" {
		t.Errorf("tool = %+v", tools[0])
	}
	if !strings.Contains(string(tools[0].Function.Parameters), `"city"`) {
		t.Errorf("parameters = %s", tools[0].Function.Parameters)
	}
}
