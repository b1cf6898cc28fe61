package api

import (
	"encoding/json"
	"strings"
)

// Message roles.
const (
	RoleSystem    = "system"
	RoleDeveloper = "developer"
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// ---------------------------------------------------------------------------
// Messages
// ---------------------------------------------------------------------------

// Message is one role-tagged entry of a conversation history. Content is
// either a string or a list of provider content parts.
type Message struct {
	Role       string            `json:"role"`
	Content    any               `json:"content"`
	ToolCalls  []MessageToolCall `json:"tool_calls,omitempty"`
	ToolCallID string            `json:"tool_call_id,omitempty"`
	Name       string            `json:"name,omitempty"`
}

// MessageToolCall is a tool invocation recorded on an assistant message,
// in Chat Completions shape.
type MessageToolCall struct {
	ID       string          `json:"id"`
	Type     string          `json:"type"`
	Function MessageFunction `json:"function"`
}

// MessageFunction is the function part of a MessageToolCall. Arguments is
// the raw JSON string produced by the model.
type MessageFunction struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// Text returns the textual content of the message. For content part lists,
// the text of every part carrying one is joined with newlines.
func (m Message) Text() string {
	switch c := m.Content.(type) {
	case nil:
		return ""
	case string:
		return c
	case []any:
		var parts []string
		for _, p := range c {
			if pm, ok := p.(map[string]any); ok {
				if s, ok := pm["text"].(string); ok {
					parts = append(parts, s)
				}
			}
		}
		return strings.Join(parts, "\n")
	default:
		return ""
	}
}

// Clone returns a deep copy of the message.
func (m Message) Clone() Message {
	out := m
	out.Content = deepCopy(m.Content)
	if m.ToolCalls != nil {
		out.ToolCalls = make([]MessageToolCall, len(m.ToolCalls))
		copy(out.ToolCalls, m.ToolCalls)
	}
	return out
}

// ---------------------------------------------------------------------------
// Tool calls and results
// ---------------------------------------------------------------------------

// Tool call types.
const (
	ToolCallTypeTool     = "tool_call"
	ToolCallTypeFunction = "function_call"
)

// ToolCall is a function invocation requested by a model that still needs to
// be executed, either on the server or by the client.
type ToolCall struct {
	// ToolID is the provider-assigned call ID. It is empty for legacy
	// single function_call replies.
	ToolID    string         `json:"toolId,omitempty"`
	Type      string         `json:"type"`
	Mode      string         `json:"mode,omitempty"`
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`

	// RawMessage is the assistant message that carried the call.
	RawMessage *Message `json:"rawMessage,omitempty"`

	// Function is the registered function matching Name, nil when the
	// model called something that was never registered.
	Function *Function `json:"function,omitempty"`
}

// Clone returns a deep copy of the call. The resolved Function is shared,
// it describes the registration and is never mutated.
func (c ToolCall) Clone() ToolCall {
	out := c
	if c.Arguments != nil {
		out.Arguments = deepCopy(c.Arguments).(map[string]any)
	}
	if c.RawMessage != nil {
		raw := c.RawMessage.Clone()
		out.RawMessage = &raw
	}
	return out
}

// IsClientSide reports whether the call must be executed by the client.
func (c ToolCall) IsClientSide() bool {
	return c.Function != nil && c.Function.IsClientSide()
}

// FunctionResult is the outcome of executing a ToolCall.
type FunctionResult struct {
	CallID  string `json:"callId"`
	Name    string `json:"name"`
	Success bool   `json:"success"`
	Value   any    `json:"value,omitempty"`
	Error   string `json:"error,omitempty"`
}

// NewFunctionSuccess builds a successful result.
func NewFunctionSuccess(callID, name string, value any) FunctionResult {
	return FunctionResult{CallID: callID, Name: name, Success: true, Value: value}
}

// NewFunctionFailure builds a failed result carrying msg.
func NewFunctionFailure(callID, name, msg string) FunctionResult {
	return FunctionResult{CallID: callID, Name: name, Success: false, Error: msg}
}

// Content renders the result as the string sent back to the model.
func (r FunctionResult) Content() string {
	if !r.Success {
		return "Error: " + r.Error
	}
	switch v := r.Value.(type) {
	case nil:
		return ""
	case string:
		return v
	default:
		data, err := json.Marshal(v)
		if err != nil {
			return "Error: " + err.Error()
		}
		return string(data)
	}
}

// ---------------------------------------------------------------------------
// Usage
// ---------------------------------------------------------------------------

// Usage holds token counts and pricing for one reply.
type Usage struct {
	PromptTokens     int      `json:"prompt_tokens"`
	CompletionTokens int      `json:"completion_tokens"`
	TotalTokens      int      `json:"total_tokens"`
	Price            *float64 `json:"price"`
	Images           int      `json:"images,omitempty"`
	Seconds          float64  `json:"seconds,omitempty"`
}

// UsageAccuracy describes how trustworthy a Usage value is.
type UsageAccuracy string

const (
	AccuracyNone      UsageAccuracy = "none"
	AccuracyEstimated UsageAccuracy = "estimated"
	AccuracyTokens    UsageAccuracy = "tokens"
	AccuracyPrice     UsageAccuracy = "price"
	AccuracyFull      UsageAccuracy = "full"
)

var accuracyRank = map[UsageAccuracy]int{
	AccuracyNone:      0,
	AccuracyEstimated: 1,
	AccuracyTokens:    2,
	AccuracyPrice:     3,
	AccuracyFull:      4,
}

// Rank returns the ordinal of the accuracy tier. Unknown tiers rank as none.
func (a UsageAccuracy) Rank() int {
	return accuracyRank[a]
}

// MaxAccuracy returns the more precise of a and b.
func MaxAccuracy(a, b UsageAccuracy) UsageAccuracy {
	if b.Rank() > a.Rank() {
		return b
	}
	if a == "" {
		return AccuracyNone
	}
	return a
}

// ---------------------------------------------------------------------------
// Models
// ---------------------------------------------------------------------------

// Resolution is an image size supported by a model.
type Resolution struct {
	Name  string `json:"name" yaml:"name" toml:"name"`
	Label string `json:"label,omitempty" yaml:"label" toml:"label"`
}

// ModelInfo describes a model known to an environment.
type ModelInfo struct {
	Model       string       `json:"model" yaml:"model" toml:"model"`
	Name        string       `json:"name,omitempty" yaml:"name" toml:"name"`
	Family      string       `json:"family,omitempty" yaml:"family" toml:"family"`
	Features    []string     `json:"features,omitempty" yaml:"features" toml:"features"`
	Tags        []string     `json:"tags,omitempty" yaml:"tags" toml:"tags"`
	Resolutions []Resolution `json:"resolutions,omitempty" yaml:"resolutions" toml:"resolutions"`
}

// HasTag reports whether the model carries the given tag (e.g. "functions", "vision").
func (m ModelInfo) HasTag(tag string) bool {
	for _, t := range m.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

// deepCopy copies JSON-shaped values (maps, slices, scalars).
func deepCopy(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[k] = deepCopy(val)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = deepCopy(val)
		}
		return out
	case []map[string]any:
		out := make([]map[string]any, len(t))
		for i, val := range t {
			out[i] = deepCopy(val).(map[string]any)
		}
		return out
	default:
		return v
	}
}
