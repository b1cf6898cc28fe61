package reply

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/kaptinlin/jsonrepair"

	"github.com/brubru/aiengine/pkg/api"
	"github.com/brubru/aiengine/pkg/config"
	"github.com/brubru/aiengine/pkg/query"
	"github.com/brubru/aiengine/pkg/storage"
)

// optOutImageTTL is the lifetime of images generated for a query that opted
// out of local download.
const optOutImageTTL = time.Hour

// Normalizer turns provider choices into a Reply.
type Normalizer struct {
	// Blobs materializes inline binary images. Required only when a
	// provider returns b64_json choices.
	Blobs storage.BlobStore

	// Options supplies image_local_download and image_expires_download.
	Options config.Options
}

// Normalize builds a reply for q from choices. rawMessage, when non-nil, is
// the provider message recorded on every tool call; otherwise each choice's
// own message is used.
//
// Pending calls accumulate across choices, since some providers emit one
// tool call per choice, and are reset once per call. A call ID seen earlier
// in the same reply is dropped; legacy function calls carry no ID and are
// always kept. A failure to store an
// inline image aborts normalization with a blob materialization error.
func (n Normalizer) Normalize(ctx context.Context, q *query.Query, choices []Choice, rawMessage *api.Message) (*Reply, error) {
	r := New(q)
	r.Results = []any{}
	seen := make(map[string]bool)

	for i := range choices {
		c := &choices[i]
		switch {
		case c.Message != nil:
			n.applyMessage(r, q, c, rawMessage, seen)

		case c.Text != nil:
			text := strings.TrimSpace(textValue(c.Text))
			r.Results = append(r.Results, text)
			r.Result = text

		case c.URL != "":
			u := strings.TrimSpace(c.URL)
			r.Results = append(r.Results, u)
			r.Result = u
			r.Type = TypeImages

		case c.B64JSON != "":
			u, err := n.storeImage(ctx, q, c.B64JSON)
			if err != nil {
				return nil, err
			}
			r.Results = append(r.Results, u)
			if r.Result != "" {
				r.Result += "\n\n"
			}
			r.Result += fmt.Sprintf("![Generated Image](%s)", u)
			r.Type = TypeImages

		case c.Embedding != nil:
			vec := append([]float64(nil), c.Embedding...)
			r.Results = append(r.Results, vec)
			r.Type = TypeEmbedding
		}
	}
	return r, nil
}

func (n Normalizer) applyMessage(r *Reply, q *query.Query, c *Choice, rawMessage *api.Message, seen map[string]bool) {
	msg := c.Message
	if msg.Content != nil {
		content := strings.TrimSpace(*msg.Content)
		r.Results = append(r.Results, content)
		r.Result = content
	}

	raw := rawMessage
	if raw == nil {
		raw = c.RawMessage
	}
	if raw == nil {
		m := msg.ToAPIMessage()
		raw = &m
	}

	var calls []api.ToolCall
	for _, tc := range msg.ToolCalls {
		if tc.Type != "function" {
			continue
		}
		calls = append(calls, api.ToolCall{
			ToolID:     tc.ID,
			Type:       api.ToolCallTypeTool,
			Name:       strings.TrimSpace(tc.Function.Name),
			Arguments:  ExtractArguments(tc.Function.Arguments),
			RawMessage: raw,
		})
	}
	if fc := msg.FunctionCall; fc != nil {
		args := fc.Arguments
		if args == nil {
			args = fc.Args
		}
		calls = append(calls, api.ToolCall{
			Type:       api.ToolCallTypeFunction,
			Mode:       "static",
			Name:       strings.TrimSpace(fc.Name),
			Arguments:  ExtractArguments(args),
			RawMessage: raw,
		})
	}

	for _, call := range calls {
		if call.ToolID != "" {
			if seen[call.ToolID] {
				slog.Warn("dropping duplicate tool call", "call_id", call.ToolID, "function", call.Name)
				continue
			}
			seen[call.ToolID] = true
		}
		// Each call owns its arguments and raw message.
		call = call.Clone()
		if q != nil {
			call.Function = q.FindFunction(call.Name)
		}
		if call.IsClientSide() {
			r.NeedClientActions = append(r.NeedClientActions, call)
		} else {
			r.NeedFeedbacks = append(r.NeedFeedbacks, call)
		}
	}
}

func (n Normalizer) storeImage(ctx context.Context, q *query.Query, b64 string) (string, error) {
	if n.Blobs == nil {
		return "", api.NewBlobMaterializationError(errors.New("no blob store configured"))
	}
	data, err := base64.StdEncoding.DecodeString(b64)
	if err != nil {
		return "", api.NewBlobMaterializationError(fmt.Errorf("decoding b64_json: %w", err))
	}

	target, ttl := n.imageTarget(q)
	meta := map[string]string{}
	if q != nil {
		meta["query_envId"] = q.EnvID
		meta["query_session"] = q.Session
		meta["query_model"] = q.Model
	}

	u, err := n.Blobs.Store(ctx, storage.Blob{
		Data:     data,
		Purpose:  "generated",
		MimeType: "image/png",
		TTL:      ttl,
		Target:   target,
		Metadata: meta,
	})
	if err != nil {
		return "", api.NewBlobMaterializationError(err)
	}
	return u, nil
}

// imageTarget picks the blob target and lifetime of a generated image.
func (n Normalizer) imageTarget(q *query.Query) (string, time.Duration) {
	if q != nil && q.IsImageClass() && q.LocalDownloadOptOut() {
		return storage.TargetUploads, optOutImageTTL
	}

	opts := n.Options
	if opts == nil {
		opts = config.MapOptions{}
	}
	local := config.String(opts, config.KeyImageLocalDownload, storage.TargetUploads)
	if q != nil && q.Image != nil && q.Image.LocalDownload != nil && *q.Image.LocalDownload != "" {
		local = *q.Image.LocalDownload
	}
	expiry := config.Int(opts, config.KeyImageExpires, 3600)

	target := storage.TargetUploads
	if local == storage.TargetLibrary {
		target = storage.TargetLibrary
	}
	return target, time.Duration(expiry) * time.Second
}

// ExtractArguments decodes tool-call arguments. Strings are decoded as a
// JSON object (newlines removed); malformed JSON is repaired once before
// giving up. Objects are copied. Anything else yields no arguments.
func ExtractArguments(v any) map[string]any {
	switch a := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(a))
		for k, val := range a {
			out[k] = val
		}
		return out
	case string:
		s := strings.TrimSpace(strings.ReplaceAll(a, "\n", ""))
		if !strings.HasPrefix(s, "{") {
			return map[string]any{}
		}
		var args map[string]any
		if err := json.Unmarshal([]byte(s), &args); err == nil {
			return args
		}
		repaired, err := jsonrepair.JSONRepair(s)
		if err == nil {
			if err := json.Unmarshal([]byte(repaired), &args); err == nil {
				slog.Debug("repaired malformed tool arguments", "original", s, "repaired", repaired)
				return args
			}
		}
		slog.Warn("could not decode tool arguments", "arguments", s)
		return map[string]any{}
	default:
		return map[string]any{}
	}
}

func textValue(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case map[string]any:
		if s, ok := t["value"].(string); ok {
			return s
		}
	}
	return ""
}
