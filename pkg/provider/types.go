package provider

import (
	"encoding/json"

	"github.com/brubru/aiengine/pkg/api"
	"github.com/brubru/aiengine/pkg/reply"
)

// Protocol identifies the wire protocol an adapter speaks.
type Protocol string

const (
	// ProtocolChatCompletions requires the full history on every turn.
	ProtocolChatCompletions Protocol = "chat_completions"

	// ProtocolResponses accepts a previous_response_id continuation token
	// and only incremental input.
	ProtocolResponses Protocol = "responses_api"
)

// Capabilities declares what a backend supports. Used by the engine for
// early request validation.
type Capabilities struct {
	Protocol Protocol

	Streaming     bool
	ToolCalling   bool
	Vision        bool
	Images        bool
	Embeddings    bool
	Transcription bool
}

// Request is the backend-facing request. Exactly one of Messages (Chat
// Completions) or Input (Responses) is populated, matching the protocol.
type Request struct {
	Model        string    `json:"model"`
	Instructions string    `json:"instructions,omitempty"`
	Messages     []Message `json:"messages,omitempty"`
	Input        []Item    `json:"input,omitempty"`

	// PreviousResponseID is the continuation token of the prior turn.
	PreviousResponseID string `json:"previous_response_id,omitempty"`

	Tools       []Tool   `json:"tools,omitempty"`
	Temperature *float64 `json:"temperature,omitempty"`
	MaxTokens   *int     `json:"max_tokens,omitempty"`
	Stop        []string `json:"stop,omitempty"`
	Stream      bool     `json:"stream,omitempty"`
	N           int      `json:"n,omitempty"`

	// ResponseFormat is "" or "json".
	ResponseFormat string `json:"response_format,omitempty"`
	Reasoning      string `json:"reasoning,omitempty"`
	Verbosity      string `json:"verbosity,omitempty"`
	User           string `json:"user,omitempty"`

	// Extra holds provider-specific parameters that don't map to standard fields.
	Extra map[string]any `json:"-"`
}

// Message is a Chat Completions message.
type Message struct {
	Role       string     `json:"role"`
	Content    any        `json:"content"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
	Name       string     `json:"name,omitempty"`
}

// ToolCall is a tool call entry in an assistant message.
type ToolCall struct {
	ID       string       `json:"id"`
	Type     string       `json:"type"`
	Function FunctionCall `json:"function"`
}

// FunctionCall holds the function name and JSON arguments of a tool call.
type FunctionCall struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// Item is a Responses API input item: a role message, a function_call or a
// function_call_output.
type Item struct {
	Type      string `json:"type,omitempty"`
	Role      string `json:"role,omitempty"`
	Content   any    `json:"content,omitempty"`
	CallID    string `json:"call_id,omitempty"`
	Name      string `json:"name,omitempty"`
	Arguments string `json:"arguments,omitempty"`
	Output    string `json:"output,omitempty"`
}

// Item types.
const (
	ItemTypeMessage            = "message"
	ItemTypeFunctionCall       = "function_call"
	ItemTypeFunctionCallOutput = "function_call_output"
)

// ContentPart is one part of a multimodal message.
type ContentPart struct {
	Type     string `json:"type"`
	Text     string `json:"text,omitempty"`
	ImageURL any    `json:"image_url,omitempty"`
}

// Tool is a tool definition. Function is nil for built-in tools such as
// web_search_preview, which only carry a type.
type Tool struct {
	Type     string       `json:"type"`
	Function *FunctionDef `json:"function,omitempty"`
}

// FunctionDef is a function definition for tool use.
type FunctionDef struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Parameters  json.RawMessage `json:"parameters,omitempty"`
}

// Response is a backend's complete result, already shaped as reply choices.
type Response struct {
	// ID is the continuation token issued by the backend, if any.
	ID     string
	Model  string
	Status string

	Choices []reply.Choice

	// RawMessage is the assistant message as the backend sent it, recorded
	// on every tool call so feedback turns can replay it.
	RawMessage *api.Message

	Usage    api.Usage
	Accuracy api.UsageAccuracy
}

// ImageRequest asks a backend to generate or edit images.
type ImageRequest struct {
	Model      string
	Prompt     string
	N          int
	Size       string
	Style      string
	Image      []byte
	Mask       []byte
	ImageName  string
	ExtraParam map[string]any
}

// EmbeddingRequest asks a backend for the embedding of Input.
type EmbeddingRequest struct {
	Model      string
	Input      string
	Dimensions int
}

// TranscriptionRequest asks a backend to transcribe audio.
type TranscriptionRequest struct {
	Model    string
	Audio    []byte
	Filename string
	Prompt   string
}

// EventType classifies a streaming event from the backend.
type EventType int

const (
	EventTextDelta      EventType = iota // Incremental text content
	EventReasoningDelta                  // Incremental reasoning content
	EventToolCallDelta                   // Incremental tool call arguments
	EventToolCallDone                    // Tool call complete
	EventResponseID                      // Continuation token known
	EventDone                            // Stream finished
	EventError                           // Stream error
)

// Event is a single streaming event from the backend.
type Event struct {
	Type EventType

	// Delta contains incremental text or argument data. For
	// EventToolCallDone it holds the complete arguments.
	Delta string

	// ToolCallIndex identifies which tool call this event relates to.
	ToolCallIndex int
	ToolCallID    string
	FunctionName  string

	// ResponseID is set on EventResponseID and may be set on EventDone.
	ResponseID string

	// Usage is populated on the final event when the backend reports it.
	Usage *api.Usage

	// Err is populated on EventError.
	Err error
}

// ModelInfo holds information about a model served by the backend.
type ModelInfo struct {
	ID      string `json:"id"`
	Object  string `json:"object,omitempty"`
	OwnedBy string `json:"owned_by,omitempty"`
}
