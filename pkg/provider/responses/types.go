// Package responses implements a Provider adapter for backends that support
// the OpenAI Responses API (/responses). Conversation state lives on the
// backend: each turn sends only incremental input items plus the
// previous_response_id issued by the prior turn.
package responses

import (
	"encoding/json"

	"github.com/brubru/aiengine/pkg/provider"
)

// --- Request types ---

// responsesRequest is the wire format for POST /responses.
type responsesRequest struct {
	Model              string               `json:"model"`
	Instructions       string               `json:"instructions,omitempty"`
	Input              []provider.Item      `json:"input"`
	PreviousResponseID string               `json:"previous_response_id,omitempty"`
	Tools              []responsesTool      `json:"tools,omitempty"`
	ToolChoice         any                  `json:"tool_choice,omitempty"`
	Store              bool                 `json:"store"`
	Stream             bool                 `json:"stream,omitempty"`
	Temperature        *float64             `json:"temperature,omitempty"`
	MaxOutputTokens    *int                 `json:"max_output_tokens,omitempty"`
	User               string               `json:"user,omitempty"`
	Text               *responsesTextConfig `json:"text,omitempty"`
	Reasoning          *responsesReasoning  `json:"reasoning,omitempty"`

	extra map[string]any
}

// MarshalJSON merges provider-specific extra parameters into the body.
func (r responsesRequest) MarshalJSON() ([]byte, error) {
	type plain responsesRequest
	data, err := json.Marshal(plain(r))
	if err != nil || len(r.extra) == 0 {
		return data, err
	}
	var merged map[string]any
	if err := json.Unmarshal(data, &merged); err != nil {
		return nil, err
	}
	for k, v := range r.extra {
		if _, exists := merged[k]; !exists {
			merged[k] = v
		}
	}
	return json.Marshal(merged)
}

// responsesTextConfig carries the text output format and verbosity.
type responsesTextConfig struct {
	Format    *responsesTextFormat `json:"format,omitempty"`
	Verbosity string               `json:"verbosity,omitempty"`
}

type responsesTextFormat struct {
	Type string `json:"type"`
}

type responsesReasoning struct {
	Effort string `json:"effort,omitempty"`
}

// responsesTool is a tool definition in the Responses API format. Function
// tools are flat (name/parameters at the top level); built-in tools only
// carry a type.
type responsesTool struct {
	Type        string          `json:"type"`
	Name        string          `json:"name,omitempty"`
	Description string          `json:"description,omitempty"`
	Parameters  json.RawMessage `json:"parameters,omitempty"`
}

// --- Response types ---

// responsesResponse is the wire format returned by POST /responses (non-streaming).
type responsesResponse struct {
	ID        string          `json:"id"`
	Object    string          `json:"object"`
	CreatedAt int64           `json:"created_at"`
	Status    string          `json:"status"`
	Model     string          `json:"model"`
	Output    []responsesItem `json:"output"`
	Usage     *responsesUsage `json:"usage,omitempty"`
	Error     *responsesError `json:"error,omitempty"`
}

// responsesItem represents an output item (message, function_call,
// image_generation_call, reasoning...).
type responsesItem struct {
	ID        string                 `json:"id"`
	Type      string                 `json:"type"`
	Status    string                 `json:"status,omitempty"`
	Role      string                 `json:"role,omitempty"`
	Content   []responsesContentPart `json:"content,omitempty"`
	CallID    string                 `json:"call_id,omitempty"`
	Name      string                 `json:"name,omitempty"`
	Arguments string                 `json:"arguments,omitempty"`

	// Result holds the base64 image of an image_generation_call.
	Result string `json:"result,omitempty"`
}

// responsesContentPart is a content part within a message item.
type responsesContentPart struct {
	Type string `json:"type"` // "output_text", "refusal"
	Text string `json:"text,omitempty"`
}

// responsesUsage holds token usage from the backend.
type responsesUsage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
	TotalTokens  int `json:"total_tokens"`
}

// responsesError is the error format in Responses API responses.
type responsesError struct {
	Type    string `json:"type"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Common SSE event type strings from the Responses API.
const (
	eventResponseCreated    = "response.created"
	eventResponseInProgress = "response.in_progress"
	eventResponseCompleted  = "response.completed"
	eventResponseIncomplete = "response.incomplete"
	eventResponseFailed     = "response.failed"
	eventError              = "error"
	eventOutputItemAdded    = "response.output_item.added"
	eventOutputItemDone     = "response.output_item.done"
	eventContentPartAdded   = "response.content_part.added"
	eventContentPartDone    = "response.content_part.done"
	eventTextDelta          = "response.output_text.delta"
	eventTextDone           = "response.output_text.done"
	eventFuncCallArgsDelta  = "response.function_call_arguments.delta"
	eventFuncCallArgsDone   = "response.function_call_arguments.done"
	eventReasoningDelta     = "response.reasoning_summary_text.delta"
	eventReasoningDone      = "response.reasoning_summary_text.done"
)

// textDeltaData is the data payload for text and reasoning delta events.
type textDeltaData struct {
	Delta string `json:"delta"`
}

// outputItemData is the payload for response.output_item.added/done.
type outputItemData struct {
	OutputIndex int           `json:"output_index"`
	Item        responsesItem `json:"item"`
}

// funcCallArgsDeltaData is the payload for response.function_call_arguments.delta events.
type funcCallArgsDeltaData struct {
	Delta       string `json:"delta"`
	ItemID      string `json:"item_id,omitempty"`
	OutputIndex int    `json:"output_index"`
}

// funcCallArgsDoneData is the payload for response.function_call_arguments.done events.
type funcCallArgsDoneData struct {
	Arguments   string `json:"arguments"`
	ItemID      string `json:"item_id,omitempty"`
	OutputIndex int    `json:"output_index"`
}

// responseEnvelope wraps the full response in lifecycle events.
type responseEnvelope struct {
	Response responsesResponse `json:"response"`
}
