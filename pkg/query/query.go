// Package query defines the vendor-neutral request model of aiengine.
//
// A [Query] is a closed tagged union: the [Kind] discriminant selects which
// per-kind option block is populated. Queries are built through the
// compile-time constructor registry ([New]) or the typed constructors, then
// adjusted with [Query.Inject] and normalized once with [Query.Finalize]
// right before serialization.
package query

import (
	"fmt"
	"sort"
	"strings"

	"github.com/brubru/aiengine/pkg/api"
)

// Kind discriminates the query variants.
type Kind string

const (
	KindText           Kind = "text"
	KindImage          Kind = "image"
	KindEditImage      Kind = "edit_image"
	KindTranscribe     Kind = "transcribe"
	KindAssistant      Kind = "assistant"
	KindFeedback       Kind = "feedback"
	KindAssistFeedback Kind = "assist_feedback"
	KindEmbed          Kind = "embed"
)

// Feature is the capability family a query exercises. It drives default
// environment/model resolution.
type Feature string

const (
	FeatureCompletion Feature = "completion"
	FeatureVision     Feature = "vision"
	FeatureJSON       Feature = "json"
	FeatureAudio      Feature = "audio"
	FeatureImages     Feature = "images"
	FeatureEmbedding  Feature = "embedding"
	FeatureAssistant  Feature = "assistant"
)

// HistoryStrategy selects how prior turns are sent to the provider.
type HistoryStrategy string

const (
	// HistoryDefault lets the engine decide from the environment protocol.
	HistoryDefault HistoryStrategy = ""
	// HistoryStatelessReplay resends the full message history every turn.
	HistoryStatelessReplay HistoryStrategy = "stateless-replay"
	// HistoryContinuationToken references the previous turn by its token.
	HistoryContinuationToken HistoryStrategy = "continuation-token"
)

// ParseHistoryStrategy normalizes the accepted spellings of a history strategy.
func ParseHistoryStrategy(s string) HistoryStrategy {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "stateless", "stateless-replay", "replay", "internal", "full":
		return HistoryStatelessReplay
	case "continuation-token", "continuation", "responses", "response_id", "previous_response_id", "incremental":
		return HistoryContinuationToken
	default:
		return HistoryDefault
	}
}

// Defaults applied by every constructor.
const (
	DefaultMaxMessages      = 15
	DefaultMaxResults       = 1
	DefaultTranscribeModel  = "whisper-1"
	defaultImageResultCount = 1
)

// MCPServer references an MCP server the provider or the tool executor may
// use for this query.
type MCPServer struct {
	ID   string `json:"id"`
	Name string `json:"name,omitempty"`
	URL  string `json:"url,omitempty"`
}

// Query is one AI request. Exactly the option blocks matching Kind are
// non-nil; the constructors guarantee it.
type Query struct {
	Kind    Kind
	Feature Feature

	// Environment
	Session  string
	ChatID   string
	BotID    string
	CustomID string
	Scope    string

	// Core content
	Message      string
	Messages     []api.Message
	Instructions string
	Context      string

	// Parameters
	Model           string
	EnvID           string
	APIKey          string
	MaxMessages     int
	MaxResults      int
	EmbeddingsEnvID string

	// Tools
	Functions  []*api.Function
	Tools      []string
	MCPServers []MCPServer

	// Conversation state
	HistoryStrategy    HistoryStrategy
	PreviousResponseID string

	// File is the attachment (vision image, audio, assistant upload).
	File *DroppedFile

	// ExtraParams carries provider-specific or statistics-only parameters.
	ExtraParams map[string]any

	// ModelInfo is attached by the engine once the model is resolved.
	ModelInfo *api.ModelInfo

	Text       *TextOptions
	Image      *ImageOptions
	EditImage  *EditImageOptions
	Transcribe *TranscribeOptions
	Assistant  *AssistantOptions
	Feedback   *FeedbackOptions
	Embed      *EmbedOptions
}

// TextOptions are carried by text-class kinds (text, feedback).
type TextOptions struct {
	MaxTokens      int
	Temperature    *float64
	Stop           string
	ResponseFormat string
	Reasoning      string
	Verbosity      string
}

// ImageOptions are carried by image-class kinds (image, edit_image).
type ImageOptions struct {
	Resolution string
	Style      string

	// LocalDownload selects where generated images are stored ("uploads"
	// or "library"). Use SetLocalDownload so an explicit nil is recorded
	// as an opt-out.
	LocalDownload    *string
	localDownloadSet bool
}

// EditImageOptions reference the image to edit.
type EditImageOptions struct {
	Mask    *DroppedFile
	MediaID string
}

// TranscribeOptions reference the audio source.
type TranscribeOptions struct {
	URL       string
	Path      string
	AudioData string
	MimeType  string
}

// AssistantOptions identify the assistant, thread, run and vector store.
type AssistantOptions struct {
	AssistantID string
	ThreadID    string
	RunID       string
	StoreID     string
}

// FeedbackOptions link a feedback turn to the reply that requested the
// function calls.
type FeedbackOptions struct {
	Original    *Query
	LastReplyID string
	Blocks      []Block
}

// EmbedOptions configure an embeddings query.
type EmbedOptions struct {
	Dimensions int
}

// ---------------------------------------------------------------------------
// Construction
// ---------------------------------------------------------------------------

// registry maps each kind to its constructor.
var registry = map[Kind]func(message string) *Query{
	KindText:           NewText,
	KindImage:          NewImage,
	KindEditImage:      NewEditImage,
	KindTranscribe:     NewTranscribe,
	KindAssistant:      NewAssistant,
	KindFeedback:       func(m string) *Query { return newFeedbackShell(KindFeedback, m) },
	KindAssistFeedback: func(m string) *Query { return newFeedbackShell(KindAssistFeedback, m) },
	KindEmbed:          NewEmbed,
}

// New builds a query of the given kind.
func New(kind Kind, message string) (*Query, error) {
	ctor, ok := registry[kind]
	if !ok {
		return nil, api.NewValidationError("kind", fmt.Sprintf("unknown query kind %q, must be one of: %s", kind, strings.Join(Kinds(), ", ")))
	}
	return ctor(message), nil
}

// Kinds returns the registered kind names, sorted.
func Kinds() []string {
	out := make([]string, 0, len(registry))
	for k := range registry {
		out = append(out, string(k))
	}
	sort.Strings(out)
	return out
}

func newBase(kind Kind, feature Feature, message string) *Query {
	return &Query{
		Kind:        kind,
		Feature:     feature,
		Message:     message,
		MaxMessages: DefaultMaxMessages,
		MaxResults:  DefaultMaxResults,
		Session:     api.NewSessionID(),
		ExtraParams: map[string]any{},
	}
}

// NewText builds a completion query.
func NewText(message string) *Query {
	q := newBase(KindText, FeatureCompletion, message)
	q.Text = &TextOptions{}
	return q
}

// NewImage builds an image generation query.
func NewImage(message string) *Query {
	q := newBase(KindImage, FeatureImages, message)
	q.Image = &ImageOptions{}
	return q
}

// NewEditImage builds an image edit query.
func NewEditImage(message string) *Query {
	q := newBase(KindEditImage, FeatureImages, message)
	q.Image = &ImageOptions{}
	q.EditImage = &EditImageOptions{}
	return q
}

// NewTranscribe builds an audio transcription query.
func NewTranscribe(message string) *Query {
	q := newBase(KindTranscribe, FeatureAudio, message)
	q.Model = DefaultTranscribeModel
	q.Transcribe = &TranscribeOptions{}
	return q
}

// NewAssistant builds an assistant query.
func NewAssistant(message string) *Query {
	q := newBase(KindAssistant, FeatureAssistant, message)
	q.Assistant = &AssistantOptions{}
	return q
}

// NewEmbed builds an embeddings query.
func NewEmbed(message string) *Query {
	q := newBase(KindEmbed, FeatureEmbedding, message)
	q.Embed = &EmbedOptions{}
	return q
}

func newFeedbackShell(kind Kind, message string) *Query {
	q := newBase(kind, FeatureCompletion, message)
	q.Text = &TextOptions{}
	q.Feedback = &FeedbackOptions{}
	if kind == KindAssistFeedback {
		q.Feature = FeatureAssistant
		q.Assistant = &AssistantOptions{}
	}
	return q
}

// ---------------------------------------------------------------------------
// Kind classes
// ---------------------------------------------------------------------------

// IsTextClass reports whether the query sends a chat message to a model.
func (q *Query) IsTextClass() bool {
	switch q.Kind {
	case KindText, KindFeedback, KindAssistant, KindAssistFeedback:
		return true
	}
	return false
}

// IsImageClass reports whether the query generates or edits images.
func (q *Query) IsImageClass() bool {
	return q.Kind == KindImage || q.Kind == KindEditImage
}

// IsFeedback reports whether the query carries function results.
func (q *Query) IsFeedback() bool {
	return q.Kind == KindFeedback || q.Kind == KindAssistFeedback
}

// ---------------------------------------------------------------------------
// Setters
// ---------------------------------------------------------------------------

// AddFunction registers one function.
func (q *Query) AddFunction(f *api.Function) {
	q.Functions = append(q.Functions, f)
}

// SetFunctions replaces the registered functions.
func (q *Query) SetFunctions(fs []*api.Function) {
	q.Functions = fs
}

// FindFunction returns the registered function with the given name.
func (q *Query) FindFunction(name string) *api.Function {
	for _, f := range q.Functions {
		if f != nil && f.Name == name {
			return f
		}
	}
	return nil
}

// SetMessages replaces the history, keeping only role and content of each
// message, except for assistant tool-call turns which keep their calls.
func (q *Query) SetMessages(msgs []api.Message) {
	out := make([]api.Message, 0, len(msgs))
	for _, m := range msgs {
		n := api.Message{Role: m.Role, Content: m.Content}
		if len(m.ToolCalls) > 0 {
			n.ToolCalls = append([]api.MessageToolCall(nil), m.ToolCalls...)
		}
		if m.Role == api.RoleTool {
			n.ToolCallID = m.ToolCallID
			n.Name = m.Name
		}
		out = append(out, n)
	}
	q.Messages = out
}

// SetFile attaches a file. An image attached with the vision purpose
// switches a completion query to the vision feature.
func (q *Query) SetFile(f *DroppedFile) {
	q.File = f
	if f != nil && q.Kind == KindText && f.Purpose() == PurposeVision && f.IsImage() {
		q.Feature = FeatureVision
	}
}

// SetModelInfo attaches the resolved model description.
func (q *Query) SetModelInfo(m *api.ModelInfo) {
	q.ModelInfo = m
}

// SetExtraParam stores a provider-specific parameter.
func (q *Query) SetExtraParam(key string, value any) {
	if q.ExtraParams == nil {
		q.ExtraParams = map[string]any{}
	}
	q.ExtraParams[key] = value
}

// ExtraParam returns a provider-specific parameter.
func (q *Query) ExtraParam(key string) (any, bool) {
	v, ok := q.ExtraParams[key]
	return v, ok
}

// Replace substitutes search with replace in the message.
func (q *Query) Replace(search, replace string) {
	q.Message = strings.ReplaceAll(q.Message, search, replace)
}

// SetResponseFormat sets the expected response format ("" or "json").
func (q *Query) SetResponseFormat(format string) error {
	if q.Text == nil {
		return api.NewValidationError("responseFormat", fmt.Sprintf("%s queries do not accept a response format", q.Kind))
	}
	if err := api.ValidateResponseFormat(format); err != nil {
		return err
	}
	q.Text.ResponseFormat = format
	if format == "json" && q.Feature == FeatureCompletion {
		q.Feature = FeatureJSON
	}
	return nil
}

// SetTemperature clamps and rounds t before storing it.
func (q *Query) SetTemperature(t float64) {
	if q.Text == nil {
		return
	}
	v := api.NormalizeTemperature(t)
	q.Text.Temperature = &v
}

// SetLocalDownload sets where generated images are stored. nil records an
// explicit opt-out.
func (q *Query) SetLocalDownload(target *string) {
	if q.Image == nil {
		return
	}
	q.Image.LocalDownload = target
	q.Image.localDownloadSet = true
}

// LocalDownloadOptOut reports whether the caller explicitly asked for no
// local download target, which stores generated images as short-lived uploads.
func (q *Query) LocalDownloadOptOut() bool {
	return q.Image != nil && q.Image.localDownloadSet && q.Image.LocalDownload == nil
}
