package engine

import (
	"context"
	"encoding/base64"
	"fmt"

	"github.com/brubru/aiengine/pkg/api"
	"github.com/brubru/aiengine/pkg/event"
	"github.com/brubru/aiengine/pkg/provider"
	"github.com/brubru/aiengine/pkg/query"
	"github.com/brubru/aiengine/pkg/reply"
)

func unsupported(p provider.Provider, what string) error {
	return api.NewValidationError("envId", fmt.Sprintf("the %s provider does not support %s", p.Name(), what))
}

// runImage generates or edits images.
func (e *Engine) runImage(ctx context.Context, p provider.Provider, q *query.Query) (*reply.Reply, error) {
	req := &provider.ImageRequest{
		Model:  q.Model,
		Prompt: q.Message,
		N:      q.MaxResults,
		Size:   q.Image.Resolution,
		Style:  q.Image.Style,
	}

	var call func() (*provider.Response, error)
	if q.Kind == query.KindEditImage {
		editor, ok := p.(provider.ImageEditor)
		if !ok {
			return nil, unsupported(p, "image edits")
		}
		if err := e.loadEditImages(ctx, q, req); err != nil {
			return nil, err
		}
		call = func() (*provider.Response, error) { return editor.EditImage(ctx, req) }
	} else {
		gen, ok := p.(provider.ImageGenerator)
		if !ok {
			return nil, unsupported(p, "image generation")
		}
		call = func() (*provider.Response, error) { return gen.GenerateImages(ctx, req) }
	}

	resp, err := e.call(p, q.Model, call)
	if err != nil {
		return nil, err
	}
	n := reply.Normalizer{Blobs: e.blobs, Options: e.opts}
	r, err := n.Normalize(ctx, q, resp.Choices, nil)
	if err != nil {
		return nil, err
	}
	usage, accuracy := resp.Usage, resp.Accuracy
	if usage.Images == 0 {
		usage.Images = len(r.Results)
		accuracy = api.AccuracyEstimated
	}
	r.SetUsage(usage, accuracy)
	return r, nil
}

// loadEditImages reads the image to edit, from the attached file or the
// media library, and the optional mask.
func (e *Engine) loadEditImages(ctx context.Context, q *query.Query, req *provider.ImageRequest) error {
	f := q.File
	if f == nil {
		if e.media == nil {
			return api.NewValidationError("mediaId", "no media library is configured")
		}
		var err error
		f, err = e.media.LoadMedia(ctx, q.EditImage.MediaID)
		if err != nil {
			return api.NewValidationError("mediaId", fmt.Sprintf("cannot load media %q: %s", q.EditImage.MediaID, err.Error()))
		}
	}
	data, err := f.Data(ctx)
	if err != nil {
		return api.NewValidationError("file", fmt.Sprintf("cannot read the image to edit: %s", err.Error()))
	}
	req.Image = data
	req.ImageName = f.Filename()

	if mask := q.EditImage.Mask; mask != nil {
		if req.Mask, err = mask.Data(ctx); err != nil {
			return api.NewValidationError("mask", fmt.Sprintf("cannot read the mask: %s", err.Error()))
		}
	}
	return nil
}

// runEmbed computes the embedding of the message.
func (e *Engine) runEmbed(ctx context.Context, p provider.Provider, q *query.Query, sink event.Sink) (*reply.Reply, error) {
	embedder, ok := p.(provider.Embedder)
	if !ok {
		return nil, unsupported(p, "embeddings")
	}
	req := &provider.EmbeddingRequest{Model: q.Model, Input: q.Message}
	if q.Embed != nil {
		req.Dimensions = q.Embed.Dimensions
	}

	resp, err := e.call(p, q.Model, func() (*provider.Response, error) { return embedder.Embed(ctx, req) })
	if err != nil {
		return nil, err
	}
	n := reply.Normalizer{Blobs: e.blobs, Options: e.opts}
	r, err := n.Normalize(ctx, q, resp.Choices, nil)
	if err != nil {
		return nil, err
	}
	r.SetUsage(resp.Usage, resp.Accuracy)
	if err := push(ctx, sink, event.Embeddings(len(r.Results), q.Message, q.Scope)); err != nil {
		return nil, err
	}
	return r, nil
}

// runTranscribe transcribes the audio referenced by the query. The message,
// when set, is passed as the transcription prompt.
func (e *Engine) runTranscribe(ctx context.Context, p provider.Provider, q *query.Query, sink event.Sink) (*reply.Reply, error) {
	tr, ok := p.(provider.Transcriber)
	if !ok {
		return nil, unsupported(p, "transcription")
	}
	audio, name, err := audioSource(ctx, q)
	if err != nil {
		return nil, err
	}
	req := &provider.TranscriptionRequest{Model: q.Model, Audio: audio, Filename: name, Prompt: q.Message}

	resp, err := e.call(p, q.Model, func() (*provider.Response, error) { return tr.Transcribe(ctx, req) })
	if err != nil {
		return nil, err
	}
	n := reply.Normalizer{Blobs: e.blobs, Options: e.opts}
	r, err := n.Normalize(ctx, q, resp.Choices, nil)
	if err != nil {
		return nil, err
	}
	r.SetUsage(resp.Usage, resp.Accuracy)
	if err := push(ctx, sink, event.Transcript(r.Result)); err != nil {
		return nil, err
	}
	return r, nil
}

// audioSource reads the audio of a transcribe query: the attached file,
// inline base64 data, a local path, or a URL, in that order.
func audioSource(ctx context.Context, q *query.Query) ([]byte, string, error) {
	t := q.Transcribe
	f := q.File
	var err error
	switch {
	case f != nil:
	case t.AudioData != "":
		data, derr := base64.StdEncoding.DecodeString(t.AudioData)
		if derr != nil {
			return nil, "", api.NewValidationError("audioData", "the audio data is not valid base64")
		}
		f, err = query.FromData(data, query.PurposeFiles, t.MimeType)
	case t.Path != "":
		f, err = query.FromPath(t.Path, query.PurposeFiles, t.MimeType)
	default:
		f, err = query.FromURL(t.URL, query.PurposeFiles, t.MimeType, "")
	}
	if err != nil {
		return nil, "", api.NewValidationError("file", err.Error())
	}

	data, err := f.Data(ctx)
	if err != nil {
		return nil, "", api.NewValidationError("file", fmt.Sprintf("cannot read the audio: %s", err.Error()))
	}
	return data, f.Filename(), nil
}
