package query

import (
	"github.com/brubru/aiengine/pkg/api"
)

// Block groups the calls carried by one assistant message with the results
// of executing them.
type Block struct {
	// RawMessage is the assistant message that requested the calls. Its
	// tool-call order is the order results are sent back in.
	RawMessage *api.Message          `json:"rawMessage,omitempty"`
	Calls      []api.ToolCall        `json:"calls"`
	Results    []api.FunctionResult `json:"results"`
}

// Result returns the result recorded for callID. The first result wins when
// the same call ID was answered twice.
func (b Block) Result(callID string) (api.FunctionResult, bool) {
	for _, r := range b.Results {
		if r.CallID == callID {
			return r, true
		}
	}
	return api.FunctionResult{}, false
}

// NewFeedback builds the follow-up turn carrying function results back to
// the model. It inherits the settings of original, extends its history with
// the assistant message that requested the calls, and references the reply
// by lastReplyID (falling back to the original continuation token).
func NewFeedback(lastReplyID string, assistantMessage *api.Message, original *Query) *Query {
	kind := KindFeedback
	if original.Kind == KindAssistant || original.Kind == KindAssistFeedback {
		kind = KindAssistFeedback
	}
	q := newFeedbackShell(kind, original.Message)
	q.Feedback.Original = original
	q.Feedback.LastReplyID = lastReplyID

	if original.Model != "" {
		q.Model = original.Model
	}
	if original.Text != nil {
		if original.Text.MaxTokens > 0 {
			q.Text.MaxTokens = original.Text.MaxTokens
		}
		if original.Text.Temperature != nil {
			q.SetTemperature(*original.Text.Temperature)
		}
	}
	if original.Scope != "" {
		q.Scope = original.Scope
	}
	if original.Session != "" {
		q.Session = original.Session
	}
	if original.BotID != "" {
		q.BotID = original.BotID
	}
	if original.CustomID != "" {
		q.CustomID = original.CustomID
	}
	if original.ChatID != "" {
		q.ChatID = original.ChatID
	}
	if original.EnvID != "" {
		q.EnvID = original.EnvID
	}
	if len(original.Functions) > 0 {
		q.SetFunctions(original.Functions)
	}
	if original.Instructions != "" {
		q.Instructions = original.Instructions
	}
	q.HistoryStrategy = original.HistoryStrategy
	q.ModelInfo = original.ModelInfo
	if original.Assistant != nil && q.Assistant != nil {
		*q.Assistant = *original.Assistant
	}

	if len(original.Messages) > 0 {
		msgs := make([]api.Message, 0, len(original.Messages)+1)
		msgs = append(msgs, original.Messages...)
		if assistantMessage != nil {
			msgs = append(msgs, assistantMessage.Clone())
		}
		q.SetMessages(msgs)
	}

	if lastReplyID != "" {
		q.PreviousResponseID = lastReplyID
	} else if original.PreviousResponseID != "" {
		q.PreviousResponseID = original.PreviousResponseID
	}
	return q
}

// AddBlock appends a result block to a feedback query.
func (q *Query) AddBlock(b Block) {
	if q.Feedback == nil {
		return
	}
	q.Feedback.Blocks = append(q.Feedback.Blocks, b)
}

// ClearBlocks removes every result block.
func (q *Query) ClearBlocks() {
	if q.Feedback == nil {
		return
	}
	q.Feedback.Blocks = nil
}

// Blocks returns the result blocks of a feedback query.
func (q *Query) Blocks() []Block {
	if q.Feedback == nil {
		return nil
	}
	return q.Feedback.Blocks
}
