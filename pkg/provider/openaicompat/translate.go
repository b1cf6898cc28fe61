package openaicompat

import (
	"github.com/brubru/aiengine/pkg/provider"
)

// TranslateToChat converts a Request into a ChatCompletionRequest suitable
// for the /chat/completions endpoint.
func TranslateToChat(req *provider.Request) ChatCompletionRequest {
	cr := ChatCompletionRequest{
		Model:            req.Model,
		Temperature:      req.Temperature,
		MaxTokens:        req.MaxTokens,
		Stop:             req.Stop,
		N:                1,
		Stream:           req.Stream,
		User:             req.User,
		ReasoningEffort:  req.Reasoning,
		Verbosity:        req.Verbosity,
		ExtraBodyEntries: req.Extra,
	}
	if req.N > 1 {
		cr.N = req.N
	}

	// When streaming, enable usage reporting in the stream.
	if req.Stream {
		cr.StreamOptions = &ChatStreamOptions{
			IncludeUsage: true,
		}
	}

	if req.ResponseFormat == "json" {
		cr.ResponseFormat = map[string]string{"type": "json_object"}
	}

	for _, pm := range req.Messages {
		cm := ChatMessage{
			Role:       pm.Role,
			Content:    pm.Content,
			ToolCallID: pm.ToolCallID,
			Name:       pm.Name,
		}
		for _, tc := range pm.ToolCalls {
			cm.ToolCalls = append(cm.ToolCalls, ChatToolCall{
				ID:   tc.ID,
				Type: tc.Type,
				Function: ChatFunctionCall{
					Name:      tc.Function.Name,
					Arguments: tc.Function.Arguments,
				},
			})
		}
		cr.Messages = append(cr.Messages, cm)
	}

	// Chat Completions has no built-in tools.
	for _, pt := range provider.FunctionToolsOnly(req.Tools) {
		cr.Tools = append(cr.Tools, ChatTool{
			Type: pt.Type,
			Function: ChatFunctionDef{
				Name:        pt.Function.Name,
				Description: pt.Function.Description,
				Parameters:  pt.Function.Parameters,
			},
		})
	}
	if len(cr.Tools) > 0 {
		cr.ToolChoice = "auto"
	}

	return cr
}
