package query

import (
	"encoding/json"
)

// MarshalJSON renders the audit view of the query. Secrets such as the API
// key are never included.
func (q *Query) MarshalJSON() ([]byte, error) {
	out := map[string]any{
		"message": q.Message,
	}
	if q.Instructions != "" && !q.IsImageClass() {
		out["instructions"] = q.Instructions
	}

	ai := map[string]any{
		"model":   q.Model,
		"feature": q.Feature,
	}
	system := map[string]any{
		"class":    q.Kind,
		"envId":    q.EnvID,
		"scope":    q.Scope,
		"session":  q.Session,
		"customId": q.CustomID,
	}

	switch q.Kind {
	case KindText:
		ai["maxTokens"] = q.Text.MaxTokens
		ai["temperature"] = q.Text.Temperature
		system["maxMessages"] = q.MaxMessages
	case KindImage, KindEditImage:
		ai["resolution"] = q.Image.Resolution
	case KindAssistant:
		ai["assistantId"] = q.Assistant.AssistantID
		ai["threadId"] = q.Assistant.ThreadID
		ai["storeId"] = q.Assistant.StoreID
		ai["runId"] = q.Assistant.RunID
		system["chatId"] = q.ChatID
	case KindFeedback, KindAssistFeedback:
		out["blocks"] = q.Feedback.Blocks
	case KindEmbed:
		if q.Embed.Dimensions > 0 {
			ai["dimensions"] = q.Embed.Dimensions
		}
	default:
		system["maxMessages"] = q.MaxMessages
	}
	out["ai"] = ai
	out["system"] = system

	ctx := map[string]any{}
	if q.Context != "" {
		ctx["content"] = q.Context
	}
	if q.File != nil {
		ctx["hasFile"] = true
		if u, err := q.File.URL(); err == nil {
			ctx["fileUrl"] = u
		}
	}
	if len(ctx) > 0 {
		out["context"] = ctx
	}

	return json.Marshal(out)
}
