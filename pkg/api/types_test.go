package api

import (
	"encoding/json"
	"testing"
)

func TestMessageText(t *testing.T) {
	tests := []struct {
		name string
		msg  Message
		want string
	}{
		{"string", Message{Role: RoleUser, Content: "hi"}, "hi"},
		{"nil", Message{Role: RoleAssistant}, ""},
		{
			"parts",
			Message{Role: RoleUser, Content: []any{
				map[string]any{"type": "text", "text": "a"},
				map[string]any{"type": "image_url", "image_url": map[string]any{"url": "x"}},
				map[string]any{"type": "text", "text": "b"},
			}},
			"a\nb",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.msg.Text(); got != tt.want {
				t.Errorf("Text() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestToolCallCloneIsIndependent(t *testing.T) {
	orig := ToolCall{
		ToolID: "call_1",
		Type:   ToolCallTypeTool,
		Name:   "get_weather",
		Arguments: map[string]any{
			"city":  "Paris",
			"units": []any{"c"},
		},
		RawMessage: &Message{
			Role:      RoleAssistant,
			ToolCalls: []MessageToolCall{{ID: "call_1", Type: "function"}},
		},
	}

	cp := orig.Clone()
	cp.Arguments["city"] = "Lyon"
	cp.Arguments["units"].([]any)[0] = "f"
	cp.RawMessage.ToolCalls[0].ID = "changed"

	if orig.Arguments["city"] != "Paris" {
		t.Errorf("original arguments mutated: %v", orig.Arguments)
	}
	if orig.Arguments["units"].([]any)[0] != "c" {
		t.Errorf("nested slice shared between copies")
	}
	if orig.RawMessage.ToolCalls[0].ID != "call_1" {
		t.Errorf("raw message shared between copies")
	}
}

func TestToolCallIsClientSide(t *testing.T) {
	tests := []struct {
		name string
		fn   *Function
		want bool
	}{
		{"unresolved", nil, false},
		{"server", &Function{Target: TargetServer}, false},
		{"js", &Function{Target: TargetJS}, true},
		{"client", &Function{Target: TargetClient}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := ToolCall{Function: tt.fn}
			if got := c.IsClientSide(); got != tt.want {
				t.Errorf("IsClientSide() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestFunctionResultContent(t *testing.T) {
	tests := []struct {
		name string
		r    FunctionResult
		want string
	}{
		{"failure", NewFunctionFailure("c1", "f", "timeout"), "Error: timeout"},
		{"string", NewFunctionSuccess("c1", "f", "sunny"), "sunny"},
		{"object", NewFunctionSuccess("c1", "f", map[string]any{"temp": 21}), `{"temp":21}`},
		{"nil", NewFunctionSuccess("c1", "f", nil), ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.r.Content(); got != tt.want {
				t.Errorf("Content() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestMaxAccuracyIsMonotonic(t *testing.T) {
	tests := []struct {
		a, b, want UsageAccuracy
	}{
		{AccuracyNone, AccuracyEstimated, AccuracyEstimated},
		{AccuracyTokens, AccuracyEstimated, AccuracyTokens},
		{AccuracyPrice, AccuracyTokens, AccuracyPrice},
		{AccuracyFull, AccuracyNone, AccuracyFull},
		{"", AccuracyNone, AccuracyNone},
		{AccuracyEstimated, "bogus", AccuracyEstimated},
	}
	for _, tt := range tests {
		t.Run(string(tt.a)+"+"+string(tt.b), func(t *testing.T) {
			if got := MaxAccuracy(tt.a, tt.b); got != tt.want {
				t.Errorf("MaxAccuracy(%q, %q) = %q, want %q", tt.a, tt.b, got, tt.want)
			}
		})
	}
}

func TestUsageJSONKeepsNullPrice(t *testing.T) {
	data, err := json.Marshal(Usage{PromptTokens: 1, CompletionTokens: 2, TotalTokens: 3})
	if err != nil {
		t.Fatal(err)
	}
	want := `{"prompt_tokens":1,"completion_tokens":2,"total_tokens":3,"price":null}`
	if string(data) != want {
		t.Errorf("got %s, want %s", data, want)
	}
}

func TestModelInfoHasTag(t *testing.T) {
	m := ModelInfo{Model: "gpt-4.1", Tags: []string{"core", "functions", "vision"}}
	if !m.HasTag("vision") {
		t.Error("expected vision tag")
	}
	if m.HasTag("image") {
		t.Error("unexpected image tag")
	}
}
