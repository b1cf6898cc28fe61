package query

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/brubru/aiengine/pkg/api"
)

// Finalize normalizes the query right before it is serialized. It is
// idempotent.
//
// The history keeps its first message (the system/context entry) plus the
// last MaxMessages others. Image queries are clamped to one result and
// their resolution is resolved against the attached model description.
func (q *Query) Finalize() {
	if q.MaxMessages > 0 && len(q.Messages) > 0 {
		first := q.Messages[0]
		rest := q.Messages[1:]
		if len(rest) > q.MaxMessages {
			rest = rest[len(rest)-q.MaxMessages:]
		}
		trimmed := make([]api.Message, 0, len(rest)+1)
		trimmed = append(trimmed, first)
		trimmed = append(trimmed, rest...)
		q.Messages = trimmed
	}

	if q.IsImageClass() {
		q.MaxResults = defaultImageResultCount
		q.resolveResolution()
	}
}

func (q *Query) resolveResolution() {
	if q.ModelInfo == nil {
		slog.Error("no model info for image query, resolution left unresolved",
			"model", q.Model, "env", q.EnvID)
		return
	}
	res := q.ModelInfo.Resolutions
	if len(res) == 0 {
		return
	}
	if q.Image.Resolution == "" {
		q.Image.Resolution = res[0].Name
		return
	}
	for _, r := range res {
		if r.Name == q.Image.Resolution {
			return
		}
	}
	names := make([]string, len(res))
	for i, r := range res {
		names[i] = r.Name
	}
	slog.Error(fmt.Sprintf("The model %s does not support the resolution %s (using %s instead). Supported resolutions are: %s.",
		q.ModelInfo.Model, q.Image.Resolution, res[0].Name, strings.Join(names, ", ")))
	q.Image.Resolution = res[0].Name
}

// Validate checks that the query carries what its kind needs before any
// provider call is made.
func (q *Query) Validate() error {
	switch q.Kind {
	case KindText, KindAssistant, KindImage, KindEmbed:
		if strings.TrimSpace(q.Message) == "" {
			return api.NewValidationError("message", "the message is required")
		}
	case KindEditImage:
		if strings.TrimSpace(q.Message) == "" {
			return api.NewValidationError("message", "the message is required")
		}
		if q.File == nil && q.EditImage.MediaID == "" {
			return api.NewValidationError("mediaId", "an image file or a mediaId is required to edit an image")
		}
	case KindTranscribe:
		t := q.Transcribe
		if q.File == nil && t.URL == "" && t.Path == "" && t.AudioData == "" {
			return api.NewValidationError("url", "an audio file, url, path or audioData is required to transcribe")
		}
	case KindFeedback, KindAssistFeedback:
		if q.Feedback == nil {
			return api.NewValidationError("blocks", "feedback query has no feedback state")
		}
	default:
		return api.NewValidationError("kind", fmt.Sprintf("unknown query kind %q", q.Kind))
	}

	if q.Text != nil {
		if err := api.ValidateResponseFormat(q.Text.ResponseFormat); err != nil {
			return err
		}
		if q.Text.Reasoning != "" {
			if err := api.ValidateReasoning(q.Text.Reasoning); err != nil {
				return err
			}
		}
		if q.Text.Verbosity != "" {
			if err := api.ValidateVerbosity(q.Text.Verbosity); err != nil {
				return err
			}
		}
	}
	for i, f := range q.Functions {
		if f == nil {
			return api.NewValidationError(fmt.Sprintf("functions[%d]", i), "function is nil")
		}
	}
	return nil
}
