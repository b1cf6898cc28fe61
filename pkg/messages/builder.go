// Package messages turns a query into the message list a backend expects.
//
// Chat Completions backends are stateless and receive the whole history on
// every turn. Responses API backends either receive the whole history as
// input items, or, when the previous turn can be referenced by its
// continuation token, only the new input.
package messages

import (
	"context"
	"fmt"

	"github.com/brubru/aiengine/pkg/api"
	"github.com/brubru/aiengine/pkg/config"
	"github.com/brubru/aiengine/pkg/provider"
	"github.com/brubru/aiengine/pkg/query"
)

// Image upload modes of the image_remote_upload option.
const (
	ImageUploadURL  = "url"
	ImageUploadData = "data"
)

// ResultNotFound is the failure sent back for a call that has no recorded
// result.
const ResultNotFound = "Function result not found"

// Builder builds backend message lists. Options supplies the defaults that
// a query does not override, such as image_remote_upload.
type Builder struct {
	Options config.Options
}

// New creates a Builder reading defaults from opts.
func New(opts config.Options) *Builder {
	if opts == nil {
		opts = config.MapOptions{}
	}
	return &Builder{Options: opts}
}

// Payload is the outcome of Build: the message list in the shape of one
// protocol, plus how the previous turn is referenced.
type Payload struct {
	Protocol     provider.Protocol
	Instructions string
	Messages     []provider.Message
	Input        []provider.Item

	// PreviousResponseID is set when the payload only carries the new
	// input and relies on the backend remembering the earlier turns.
	PreviousResponseID string
	Incremental        bool
}

// Build selects the message list for protocol. token is the continuation
// token of the previous turn, already validated by the caller; an empty
// token forces a full replay.
func (b *Builder) Build(ctx context.Context, q *query.Query, protocol provider.Protocol, token string) (*Payload, error) {
	if protocol != provider.ProtocolResponses {
		msgs, err := b.Chat(ctx, q)
		if err != nil {
			return nil, err
		}
		return &Payload{Protocol: provider.ProtocolChatCompletions, Messages: msgs}, nil
	}

	p := &Payload{Protocol: provider.ProtocolResponses, Instructions: q.Instructions}
	if token != "" && q.HistoryStrategy != query.HistoryStatelessReplay {
		p.PreviousResponseID = token
		p.Incremental = true
		if q.IsFeedback() {
			p.Input = b.FeedbackOnly(q)
			return p, nil
		}
		user, err := b.responsesUserMessage(ctx, q)
		if err != nil {
			return nil, err
		}
		if q.Context != "" {
			parts := user.Content.([]map[string]any)
			user.Content = append([]map[string]any{{"type": "input_text", "text": q.Context + "\n\n"}}, parts...)
		}
		p.Input = []provider.Item{user}
		return p, nil
	}

	items, err := b.Responses(ctx, q)
	if err != nil {
		return nil, err
	}
	if q.Context != "" {
		items = append([]provider.Item{{Type: provider.ItemTypeMessage, Role: api.RoleSystem, Content: q.Context}}, items...)
	}
	p.Input = items
	return p, nil
}

// Chat builds a Chat Completions message list: the instructions as the
// system message, the history, then either the tool results of a feedback
// query or the new user message.
func (b *Builder) Chat(ctx context.Context, q *query.Query) ([]provider.Message, error) {
	var msgs []provider.Message
	if q.Instructions != "" {
		msgs = append(msgs, provider.Message{Role: api.RoleSystem, Content: q.Instructions})
	}
	if q.Context != "" {
		msgs = append(msgs, provider.Message{Role: api.RoleSystem, Content: q.Context})
	}

	known := make(map[string]bool)
	for _, m := range q.Messages {
		msgs = append(msgs, chatMessage(m))
		for _, tc := range m.ToolCalls {
			known[tc.ID] = true
		}
	}

	if q.IsFeedback() {
		for _, blk := range q.Blocks() {
			// Every tool message must follow the assistant message that
			// requested it.
			if blk.RawMessage != nil && !callsKnown(blk.RawMessage, known) {
				msgs = append(msgs, chatMessage(*blk.RawMessage))
				for _, tc := range blk.RawMessage.ToolCalls {
					known[tc.ID] = true
				}
			}
		}
		for _, r := range Results(q.Blocks()) {
			msgs = append(msgs, provider.Message{
				Role:       api.RoleTool,
				ToolCallID: r.CallID,
				Content:    r.Content(),
			})
		}
		return msgs, nil
	}

	if q.Message == "" {
		return msgs, nil
	}
	if q.File != nil && q.File.IsImage() {
		url, err := b.imageURL(ctx, q)
		if err != nil {
			return nil, err
		}
		msgs = append(msgs, provider.Message{
			Role: api.RoleUser,
			Content: []provider.ContentPart{
				{Type: "text", Text: q.Message},
				{Type: "image_url", ImageURL: map[string]string{"url": url}},
			},
		})
		return msgs, nil
	}
	msgs = append(msgs, provider.Message{Role: api.RoleUser, Content: q.Message})
	return msgs, nil
}

// Responses builds the full Responses API input. Assistant messages that
// requested tool calls are split into their text and one function_call item
// per call. A feedback query ends with the function_call_output items, any
// other query with the new user message.
func (b *Builder) Responses(ctx context.Context, q *query.Query) ([]provider.Item, error) {
	var items []provider.Item
	known := make(map[string]bool)
	for _, m := range q.Messages {
		items = append(items, responsesItems(m)...)
		for _, tc := range m.ToolCalls {
			known[tc.ID] = true
		}
	}

	if q.IsFeedback() {
		for _, blk := range q.Blocks() {
			if blk.RawMessage == nil {
				continue
			}
			for _, tc := range blk.RawMessage.ToolCalls {
				if known[tc.ID] {
					continue
				}
				known[tc.ID] = true
				items = append(items, functionCallItem(tc))
			}
		}
		for _, r := range Results(q.Blocks()) {
			items = append(items, outputItem(r))
		}
		return items, nil
	}

	user, err := b.responsesUserMessage(ctx, q)
	if err != nil {
		return nil, err
	}
	return append(items, user), nil
}

// FeedbackOnly builds the incremental input of a feedback turn that
// references the previous response: only function_call_output items, in
// the order the assistant requested the calls. A call without a result is
// answered with a failure so the backend never waits on it.
func (b *Builder) FeedbackOnly(q *query.Query) []provider.Item {
	results := Results(q.Blocks())
	items := make([]provider.Item, 0, len(results))
	for _, r := range results {
		items = append(items, outputItem(r))
	}
	return items
}

// Results orders the results of every block by the tool calls of
// its raw message. A call ID is answered once across all blocks.
func Results(blocks []query.Block) []api.FunctionResult {
	var out []api.FunctionResult
	seen := make(map[string]bool)
	add := func(r api.FunctionResult) {
		if r.CallID == "" || seen[r.CallID] {
			return
		}
		seen[r.CallID] = true
		out = append(out, r)
	}

	for _, blk := range blocks {
		switch {
		case blk.RawMessage != nil && len(blk.RawMessage.ToolCalls) > 0:
			for _, tc := range blk.RawMessage.ToolCalls {
				if r, ok := blk.Result(tc.ID); ok {
					add(r)
				} else {
					add(api.NewFunctionFailure(tc.ID, tc.Function.Name, ResultNotFound))
				}
			}
		case len(blk.Calls) > 0:
			for _, c := range blk.Calls {
				if r, ok := blk.Result(c.ToolID); ok {
					add(r)
				} else {
					add(api.NewFunctionFailure(c.ToolID, c.Name, ResultNotFound))
				}
			}
		default:
			for _, r := range blk.Results {
				add(r)
			}
		}
	}
	return out
}

func callsKnown(m *api.Message, known map[string]bool) bool {
	for _, tc := range m.ToolCalls {
		if !known[tc.ID] {
			return false
		}
	}
	return true
}

func chatMessage(m api.Message) provider.Message {
	out := provider.Message{
		Role:       m.Role,
		Content:    m.Content,
		ToolCallID: m.ToolCallID,
		Name:       m.Name,
	}
	for _, tc := range m.ToolCalls {
		out.ToolCalls = append(out.ToolCalls, provider.ToolCall{
			ID:   tc.ID,
			Type: "function",
			Function: provider.FunctionCall{
				Name:      tc.Function.Name,
				Arguments: tc.Function.Arguments,
			},
		})
	}
	return out
}

// responsesItems converts one history message to input items.
func responsesItems(m api.Message) []provider.Item {
	switch {
	case m.Role == api.RoleAssistant && len(m.ToolCalls) > 0:
		var items []provider.Item
		if text := m.Text(); text != "" {
			items = append(items, provider.Item{Type: provider.ItemTypeMessage, Role: api.RoleAssistant, Content: text})
		}
		for _, tc := range m.ToolCalls {
			items = append(items, functionCallItem(tc))
		}
		return items
	case m.Role == api.RoleTool:
		return []provider.Item{{
			Type:   provider.ItemTypeFunctionCallOutput,
			CallID: m.ToolCallID,
			Output: m.Text(),
		}}
	default:
		return []provider.Item{{Type: provider.ItemTypeMessage, Role: m.Role, Content: m.Content}}
	}
}

func functionCallItem(tc api.MessageToolCall) provider.Item {
	args := tc.Function.Arguments
	if args == "" {
		args = "{}"
	}
	return provider.Item{
		Type:      provider.ItemTypeFunctionCall,
		CallID:    tc.ID,
		Name:      tc.Function.Name,
		Arguments: args,
	}
}

func outputItem(r api.FunctionResult) provider.Item {
	return provider.Item{
		Type:   provider.ItemTypeFunctionCallOutput,
		CallID: r.CallID,
		Output: r.Content(),
	}
}

// responsesUserMessage builds the user message item with input_text and,
// for an attached image, input_image parts.
func (b *Builder) responsesUserMessage(ctx context.Context, q *query.Query) (provider.Item, error) {
	parts := []map[string]any{{"type": "input_text", "text": q.Message}}
	if q.File != nil && q.File.IsImage() {
		url, err := b.imageURL(ctx, q)
		if err != nil {
			return provider.Item{}, err
		}
		parts = append(parts, map[string]any{"type": "input_image", "image_url": url})
	}
	return provider.Item{Type: provider.ItemTypeMessage, Role: api.RoleUser, Content: parts}, nil
}

// imageURL returns the URL the backend fetches the attached image from: the
// remote URL itself in url mode, an inline data URL otherwise. Files that
// only exist as bytes are always inlined.
func (b *Builder) imageURL(ctx context.Context, q *query.Query) (string, error) {
	mode := config.String(b.Options, config.KeyImageRemoteUpload, ImageUploadData)
	if v, ok := q.ExtraParam(config.KeyImageRemoteUpload); ok {
		if s, ok := v.(string); ok && s != "" {
			mode = s
		}
	}

	f := q.File
	if mode == ImageUploadURL && f.Type() == query.FileURL {
		return f.URL()
	}
	url, err := f.InlineBase64URL(ctx)
	if err != nil {
		return "", api.NewValidationError("file", fmt.Sprintf("cannot read the attached image: %s", err.Error()))
	}
	return url, nil
}
