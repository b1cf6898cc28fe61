package reply

import (
	"encoding/json"

	"github.com/brubru/aiengine/pkg/api"
)

// Choice is one raw output item from a provider. Exactly one of its shapes
// is expected to be set: a chat message, a plain text completion, an image
// URL, inline image bytes, or an embedding vector.
type Choice struct {
	Message *ChoiceMessage `json:"message,omitempty"`

	// Text is either a string or an object carrying the text under "value".
	Text any `json:"text,omitempty"`

	URL       string    `json:"url,omitempty"`
	B64JSON   string    `json:"b64_json,omitempty"`
	Embedding []float64 `json:"embedding,omitempty"`

	FinishReason string `json:"finish_reason,omitempty"`

	// RawMessage, when set, is the provider message recorded on tool calls
	// instead of Message.
	RawMessage *api.Message `json:"-"`
}

// ChoiceMessage is a chat message as returned by a provider.
type ChoiceMessage struct {
	Role         string             `json:"role,omitempty"`
	Content      *string            `json:"content,omitempty"`
	ToolCalls    []ChoiceToolCall   `json:"tool_calls,omitempty"`
	FunctionCall *ChoiceFunctionRef `json:"function_call,omitempty"`
}

// ChoiceToolCall is one entry of a message's tool_calls list.
type ChoiceToolCall struct {
	ID       string            `json:"id"`
	Type     string            `json:"type"`
	Function ChoiceFunctionRef `json:"function"`
}

// ChoiceFunctionRef names a function and its arguments. Arguments is a JSON
// string or an already decoded object; some providers use Args instead.
type ChoiceFunctionRef struct {
	Name      string `json:"name"`
	Arguments any    `json:"arguments,omitempty"`
	Args      any    `json:"args,omitempty"`
}

// TextChoice builds a choice carrying assistant text.
func TextChoice(content string) Choice {
	return Choice{Message: &ChoiceMessage{Role: api.RoleAssistant, Content: &content}}
}

// ToAPIMessage converts the provider message into a history entry.
func (m *ChoiceMessage) ToAPIMessage() api.Message {
	out := api.Message{Role: m.Role}
	if out.Role == "" {
		out.Role = api.RoleAssistant
	}
	if m.Content != nil {
		out.Content = *m.Content
	}
	for _, tc := range m.ToolCalls {
		out.ToolCalls = append(out.ToolCalls, api.MessageToolCall{
			ID:   tc.ID,
			Type: tc.Type,
			Function: api.MessageFunction{
				Name:      tc.Function.Name,
				Arguments: argumentsString(tc.Function.Arguments),
			},
		})
	}
	return out
}

func argumentsString(v any) string {
	switch a := v.(type) {
	case nil:
		return "{}"
	case string:
		return a
	default:
		data, err := json.Marshal(a)
		if err != nil {
			return "{}"
		}
		return string(data)
	}
}
