package openaicompat

import (
	"github.com/brubru/aiengine/pkg/api"
	"github.com/brubru/aiengine/pkg/provider"
	"github.com/brubru/aiengine/pkg/reply"
)

// TranslateResponse converts a ChatCompletionResponse into a Response. Every
// choice is kept: some backends split parallel tool calls across choices.
func TranslateResponse(resp *ChatCompletionResponse) *provider.Response {
	pr := &provider.Response{
		Model:    resp.Model,
		Status:   "completed",
		Accuracy: api.AccuracyNone,
	}

	if resp.Usage != nil {
		pr.Usage, pr.Accuracy = translateUsage(resp.Usage)
	}

	if len(resp.Choices) == 0 {
		pr.Status = "failed"
		return pr
	}

	for _, choice := range resp.Choices {
		msg := &reply.ChoiceMessage{Role: choice.Message.Role}
		if s, ok := choice.Message.Content.(string); ok {
			msg.Content = &s
		}
		for _, tc := range choice.Message.ToolCalls {
			msg.ToolCalls = append(msg.ToolCalls, reply.ChoiceToolCall{
				ID:   tc.ID,
				Type: tc.Type,
				Function: reply.ChoiceFunctionRef{
					Name:      tc.Function.Name,
					Arguments: tc.Function.Arguments,
				},
			})
		}
		raw := msg.ToAPIMessage()
		pr.Choices = append(pr.Choices, reply.Choice{
			Message:      msg,
			FinishReason: choice.FinishReason,
			RawMessage:   &raw,
		})
	}

	pr.RawMessage = pr.Choices[0].RawMessage
	pr.Status = MapFinishReason(resp.Choices[0].FinishReason)
	return pr
}

func translateUsage(u *ChatUsage) (api.Usage, api.UsageAccuracy) {
	usage := api.Usage{
		PromptTokens:     u.PromptTokens,
		CompletionTokens: u.CompletionTokens,
		TotalTokens:      u.TotalTokens,
	}
	if usage.TotalTokens == 0 {
		usage.TotalTokens = usage.PromptTokens + usage.CompletionTokens
	}
	if u.Cost != nil {
		price := *u.Cost
		usage.Price = &price
		return usage, api.AccuracyFull
	}
	return usage, api.AccuracyTokens
}

// MapFinishReason converts a Chat Completions finish_reason string to a
// response status.
func MapFinishReason(reason string) string {
	switch reason {
	case "length":
		return "incomplete"
	case "content_filter":
		return "failed"
	default:
		return "completed"
	}
}
