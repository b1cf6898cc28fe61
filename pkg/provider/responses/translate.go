package responses

import (
	"fmt"
	"strings"

	"github.com/brubru/aiengine/pkg/api"
	"github.com/brubru/aiengine/pkg/provider"
	"github.com/brubru/aiengine/pkg/reply"
)

// translateRequest converts a Request to the Responses API wire format.
// store is always true: the backend keeps the conversation so the next turn
// can continue from the returned response id.
func translateRequest(req *provider.Request) *responsesRequest {
	input := req.Input
	if len(input) == 0 && len(req.Messages) > 0 {
		input = translateMessages(req.Messages)
	}

	rr := &responsesRequest{
		Model:              req.Model,
		Instructions:       req.Instructions,
		Input:              input,
		PreviousResponseID: req.PreviousResponseID,
		Store:              true,
		Stream:             req.Stream,
		Temperature:        req.Temperature,
		MaxOutputTokens:    req.MaxTokens,
		User:               req.User,
		extra:              req.Extra,
	}
	if rr.Input == nil {
		rr.Input = []provider.Item{}
	}

	for _, pt := range req.Tools {
		if pt.Function == nil {
			rr.Tools = append(rr.Tools, responsesTool{Type: pt.Type})
			continue
		}
		rr.Tools = append(rr.Tools, responsesTool{
			Type:        "function",
			Name:        pt.Function.Name,
			Description: pt.Function.Description,
			Parameters:  pt.Function.Parameters,
		})
	}
	if len(rr.Tools) > 0 {
		rr.ToolChoice = "auto"
	}

	if req.ResponseFormat == "json" || req.Verbosity != "" {
		rr.Text = &responsesTextConfig{Verbosity: req.Verbosity}
		if req.ResponseFormat == "json" {
			rr.Text.Format = &responsesTextFormat{Type: "json_object"}
		}
	}
	if req.Reasoning != "" {
		rr.Reasoning = &responsesReasoning{Effort: req.Reasoning}
	}

	return rr
}

// translateMessages converts Chat Completions style messages into input
// items, for callers that built a full history.
func translateMessages(msgs []provider.Message) []provider.Item {
	var items []provider.Item
	for _, msg := range msgs {
		switch msg.Role {
		case api.RoleTool:
			items = append(items, provider.Item{
				Type:   provider.ItemTypeFunctionCallOutput,
				CallID: msg.ToolCallID,
				Output: fmt.Sprintf("%v", msg.Content),
			})

		case api.RoleAssistant:
			if s, ok := msg.Content.(string); ok && s != "" {
				items = append(items, provider.Item{
					Type:    provider.ItemTypeMessage,
					Role:    api.RoleAssistant,
					Content: s,
				})
			}
			for _, tc := range msg.ToolCalls {
				items = append(items, provider.Item{
					Type:      provider.ItemTypeFunctionCall,
					CallID:    tc.ID,
					Name:      tc.Function.Name,
					Arguments: tc.Function.Arguments,
				})
			}

		default:
			items = append(items, provider.Item{
				Type:    provider.ItemTypeMessage,
				Role:    msg.Role,
				Content: msg.Content,
			})
		}
	}
	return items
}

// translateResponse converts a Responses API response to a Response. Text
// and function calls collapse into one assistant choice; generated images
// become separate choices.
func translateResponse(resp *responsesResponse) (*provider.Response, error) {
	if resp.Status == "failed" && resp.Error != nil {
		return nil, api.NewProviderError(firstNonEmpty(resp.Error.Code, "response_failed"), resp.Error.Message, nil)
	}

	pr := &provider.Response{
		ID:       resp.ID,
		Model:    resp.Model,
		Status:   mapResponseStatus(resp.Status),
		Accuracy: api.AccuracyNone,
	}
	if resp.Usage != nil {
		pr.Usage = translateUsage(resp.Usage)
		pr.Accuracy = api.AccuracyTokens
	}

	var text []string
	var toolCalls []reply.ChoiceToolCall
	var images []reply.Choice

	for _, item := range resp.Output {
		switch item.Type {
		case "message":
			for _, p := range item.Content {
				if p.Type == "output_text" {
					text = append(text, p.Text)
				}
			}

		case "function_call":
			toolCalls = append(toolCalls, reply.ChoiceToolCall{
				ID:   item.CallID,
				Type: "function",
				Function: reply.ChoiceFunctionRef{
					Name:      item.Name,
					Arguments: item.Arguments,
				},
			})

		case "image_generation_call":
			if item.Result != "" {
				images = append(images, reply.Choice{B64JSON: item.Result})
			}
		}
	}

	if len(text) > 0 || len(toolCalls) > 0 || len(images) == 0 {
		msg := &reply.ChoiceMessage{Role: api.RoleAssistant, ToolCalls: toolCalls}
		if content := strings.Join(text, ""); content != "" || len(toolCalls) == 0 {
			msg.Content = &content
		}
		raw := msg.ToAPIMessage()
		pr.RawMessage = &raw
		pr.Choices = append(pr.Choices, reply.Choice{Message: msg, RawMessage: &raw})
	}
	pr.Choices = append(pr.Choices, images...)

	return pr, nil
}

func translateUsage(u *responsesUsage) api.Usage {
	usage := api.Usage{
		PromptTokens:     u.InputTokens,
		CompletionTokens: u.OutputTokens,
		TotalTokens:      u.TotalTokens,
	}
	if usage.TotalTokens == 0 {
		usage.TotalTokens = usage.PromptTokens + usage.CompletionTokens
	}
	return usage
}

// mapResponseStatus normalizes the Responses API status string.
func mapResponseStatus(status string) string {
	switch status {
	case "incomplete", "failed", "cancelled":
		return status
	default:
		return "completed"
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
