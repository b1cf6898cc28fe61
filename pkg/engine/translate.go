package engine

import (
	"maps"

	"github.com/brubru/aiengine/pkg/messages"
	"github.com/brubru/aiengine/pkg/provider"
	"github.com/brubru/aiengine/pkg/query"
)

// buildRequest converts a query and its message payload into a provider
// request.
func buildRequest(q *query.Query, p *messages.Payload, caps provider.Capabilities) *provider.Request {
	req := &provider.Request{
		Model:              q.Model,
		Instructions:       p.Instructions,
		Messages:           p.Messages,
		Input:              p.Input,
		PreviousResponseID: p.PreviousResponseID,
		User:               q.Session,
	}

	// Built-in tools only exist on the Responses protocol.
	tools := provider.FunctionTools(q.Functions)
	if caps.Protocol == provider.ProtocolResponses {
		tools = append(tools, provider.BuiltinTools(q.Tools)...)
	}
	req.Tools = tools

	if t := q.Text; t != nil {
		if t.MaxTokens > 0 {
			maxTokens := t.MaxTokens
			req.MaxTokens = &maxTokens
		}
		if t.Temperature != nil {
			temp := *t.Temperature
			req.Temperature = &temp
		}
		if t.Stop != "" {
			req.Stop = []string{t.Stop}
		}
		req.ResponseFormat = t.ResponseFormat
		req.Reasoning = t.Reasoning
		req.Verbosity = t.Verbosity
	}

	if v, ok := q.ExtraParam(ExtraBodyParam); ok {
		if body, ok := v.(map[string]any); ok && len(body) > 0 {
			req.Extra = maps.Clone(body)
		}
	}
	return req
}
