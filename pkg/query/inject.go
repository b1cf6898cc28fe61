package query

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/stoewer/go-strcase"

	"github.com/brubru/aiengine/pkg/api"
)

// Inject bulk-applies caller-supplied parameters. Keys may be snake_case or
// camelCase. Only the keys recognized by the query kind are applied; unknown
// keys are ignored. A non-empty message is never overwritten. Invalid values
// are reported together as one joined error, valid ones are still applied.
func (q *Query) Inject(params map[string]any) error {
	p := make(map[string]any, len(params))
	for k, v := range params {
		p[strcase.LowerCamelCase(k)] = v
	}

	var errs []error
	errs = append(errs, q.injectBase(p)...)
	if q.Text != nil {
		errs = append(errs, q.injectText(p)...)
	}
	if q.Image != nil {
		q.injectImage(p)
	}
	if q.EditImage != nil {
		if v, ok := asString(p["mediaId"]); ok && v != "" {
			q.EditImage.MediaID = v
		}
	}
	if q.Transcribe != nil {
		q.injectTranscribe(p)
	}
	if q.Assistant != nil {
		q.injectAssistant(p)
	}
	if q.Embed != nil {
		if n, ok := asInt(p["dimensions"]); ok && n > 0 {
			q.Embed.Dimensions = n
		}
	}
	return errors.Join(errs...)
}

func (q *Query) injectBase(p map[string]any) []error {
	var errs []error

	if v, ok := asString(p["instructions"]); ok && v != "" {
		q.Instructions = v
	}
	if v, ok := asString(p["message"]); ok && v != "" && q.Message == "" {
		q.Message = v
	}
	if v, ok := asString(p["context"]); ok && v != "" {
		q.Context = v
	}
	if raw, ok := p["messages"]; ok && raw != nil {
		msgs, err := toMessages(raw)
		if err != nil {
			errs = append(errs, api.NewValidationError("messages", err.Error()))
		} else {
			q.SetMessages(msgs)
		}
	}
	if n, ok := asInt(p["maxMessages"]); ok && n > 0 {
		q.MaxMessages = n
	}
	if n, ok := asInt(p["maxResults"]); ok && n > 0 {
		q.MaxResults = n
	}

	strFields := map[string]*string{
		"scope":           &q.Scope,
		"session":         &q.Session,
		"apiKey":          &q.APIKey,
		"botId":           &q.BotID,
		"customId":        &q.CustomID,
		"envId":           &q.EnvID,
		"model":           &q.Model,
		"chatId":          &q.ChatID,
		"embeddingsEnvId": &q.EmbeddingsEnvID,
	}
	for key, field := range strFields {
		if v, ok := asString(p[key]); ok && v != "" {
			*field = v
		}
	}

	if raw, ok := p["tools"]; ok && raw != nil {
		q.Tools = asStringSlice(raw)
	}
	if raw, ok := p["historyStrategy"]; ok {
		s, _ := asString(raw)
		q.HistoryStrategy = ParseHistoryStrategy(s)
	}
	if v, ok := asString(p["previousResponseId"]); ok && v != "" {
		q.PreviousResponseID = v
	}
	if raw, ok := p["mcpServers"]; ok && raw != nil {
		servers, err := toMCPServers(raw)
		if err != nil {
			errs = append(errs, api.NewValidationError("mcpServers", err.Error()))
		} else {
			q.MCPServers = servers
		}
	}
	if raw, ok := p["functions"]; ok && raw != nil {
		fns, err := toFunctions(raw)
		if err != nil {
			errs = append(errs, err)
		} else {
			q.SetFunctions(fns)
		}
	}
	return errs
}

func (q *Query) injectText(p map[string]any) []error {
	var errs []error

	if n, ok := asInt(p["maxTokens"]); ok && n > 0 {
		q.Text.MaxTokens = n
	}
	if raw, ok := p["temperature"]; ok && raw != nil && raw != "" {
		t, ok := asFloat(raw)
		if !ok {
			errs = append(errs, api.NewValidationError("temperature", fmt.Sprintf("invalid temperature %v", raw)))
		} else {
			q.SetTemperature(t)
		}
	}
	if v, ok := asString(p["stop"]); ok && v != "" {
		q.Text.Stop = v
	}
	if raw, ok := p["responseFormat"]; ok && raw != nil {
		v, _ := asString(raw)
		if err := q.SetResponseFormat(v); err != nil {
			errs = append(errs, err)
		}
	}

	reasoning, ok := asString(p["reasoning"])
	if !ok || reasoning == "" {
		reasoning, _ = asString(p["reasoningEffort"])
	}
	if reasoning != "" {
		if err := api.ValidateReasoning(reasoning); err != nil {
			errs = append(errs, err)
		} else {
			q.Text.Reasoning = reasoning
		}
	}
	if v, ok := asString(p["verbosity"]); ok && v != "" {
		if err := api.ValidateVerbosity(v); err != nil {
			errs = append(errs, err)
		} else {
			q.Text.Verbosity = v
		}
	}
	if v, ok := asString(p["promptId"]); ok && v != "" {
		q.SetExtraParam("promptId", v)
	}
	return errs
}

func (q *Query) injectImage(p map[string]any) {
	if v, ok := asString(p["resolution"]); ok && v != "" {
		q.Image.Resolution = v
	}
	if v, ok := asString(p["style"]); ok && v != "" {
		q.Image.Style = v
	}
	if raw, ok := p["localDownload"]; ok {
		if raw == nil {
			q.SetLocalDownload(nil)
		} else if v, ok := asString(raw); ok {
			q.SetLocalDownload(&v)
		}
	}
}

func (q *Query) injectTranscribe(p map[string]any) {
	fields := map[string]*string{
		"url":       &q.Transcribe.URL,
		"path":      &q.Transcribe.Path,
		"audioData": &q.Transcribe.AudioData,
		"mimeType":  &q.Transcribe.MimeType,
	}
	for key, field := range fields {
		if v, ok := asString(p[key]); ok && v != "" {
			*field = v
		}
	}
}

func (q *Query) injectAssistant(p map[string]any) {
	fields := map[string]*string{
		"assistantId": &q.Assistant.AssistantID,
		"threadId":    &q.Assistant.ThreadID,
		"runId":       &q.Assistant.RunID,
		"storeId":     &q.Assistant.StoreID,
	}
	for key, field := range fields {
		if v, ok := asString(p[key]); ok && v != "" {
			*field = v
		}
	}
}

// ---------------------------------------------------------------------------
// Value coercion
// ---------------------------------------------------------------------------

func asString(v any) (string, bool) {
	switch s := v.(type) {
	case string:
		return s, true
	case fmt.Stringer:
		return s.String(), true
	case int, int64, float64, bool:
		return fmt.Sprint(s), true
	}
	return "", false
}

func asInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int32:
		return int(n), true
	case int64:
		return int(n), true
	case float64:
		return int(n), true
	case json.Number:
		i, err := n.Int64()
		return int(i), err == nil
	case string:
		i, err := strconv.Atoi(strings.TrimSpace(n))
		return i, err == nil
	}
	return 0, false
}

func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		return f, err == nil
	}
	return 0, false
}

func asStringSlice(v any) []string {
	switch s := v.(type) {
	case []string:
		return append([]string(nil), s...)
	case []any:
		out := make([]string, 0, len(s))
		for _, item := range s {
			switch it := item.(type) {
			case string:
				out = append(out, it)
			case map[string]any:
				if t, ok := it["type"].(string); ok {
					out = append(out, t)
				}
			}
		}
		return out
	case string:
		if s == "" {
			return nil
		}
		return []string{s}
	}
	return nil
}

func toMessages(v any) ([]api.Message, error) {
	if msgs, ok := v.([]api.Message); ok {
		return msgs, nil
	}
	list, ok := v.([]any)
	if !ok {
		return nil, fmt.Errorf("messages must be a list")
	}
	out := make([]api.Message, 0, len(list))
	for i, item := range list {
		data, err := json.Marshal(item)
		if err != nil {
			return nil, fmt.Errorf("messages[%d]: %w", i, err)
		}
		var m api.Message
		if err := json.Unmarshal(data, &m); err != nil {
			return nil, fmt.Errorf("unsupported message type at index %d", i)
		}
		if m.Role == "" {
			return nil, fmt.Errorf("messages[%d] has no role", i)
		}
		out = append(out, m)
	}
	return out, nil
}

func toMCPServers(v any) ([]MCPServer, error) {
	if s, ok := v.(string); ok {
		if strings.TrimSpace(s) == "" {
			return nil, nil
		}
		var decoded []any
		if err := json.Unmarshal([]byte(s), &decoded); err != nil {
			return nil, fmt.Errorf("mcpServers is not a valid JSON list: %w", err)
		}
		v = decoded
	}
	if servers, ok := v.([]MCPServer); ok {
		return servers, nil
	}
	list, ok := v.([]any)
	if !ok {
		return nil, fmt.Errorf("mcpServers must be a list")
	}
	out := make([]MCPServer, 0, len(list))
	for _, item := range list {
		switch it := item.(type) {
		case string:
			out = append(out, MCPServer{ID: it})
		case map[string]any:
			s := MCPServer{}
			s.ID, _ = it["id"].(string)
			s.Name, _ = it["name"].(string)
			s.URL, _ = it["url"].(string)
			if s.ID == "" {
				s.ID = s.Name
			}
			out = append(out, s)
		}
	}
	return out, nil
}

func toFunctions(v any) ([]*api.Function, error) {
	if fns, ok := v.([]*api.Function); ok {
		return fns, nil
	}
	list, ok := v.([]any)
	if !ok {
		return nil, api.NewValidationError("functions", "functions must be a list")
	}
	out := make([]*api.Function, 0, len(list))
	for _, item := range list {
		switch it := item.(type) {
		case *api.Function:
			out = append(out, it)
		case map[string]any:
			f, err := api.FunctionFromJSON(it)
			if err != nil {
				return nil, err
			}
			out = append(out, f)
		}
	}
	return out, nil
}
