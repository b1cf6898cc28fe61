package openaicompat

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/brubru/aiengine/pkg/api"
	"github.com/brubru/aiengine/pkg/provider"
	"github.com/brubru/aiengine/pkg/reply"
)

// Config holds the connection settings for an OpenAI-compatible backend.
type Config struct {
	// Name is the provider identifier reported by Name (e.g. "openrouter").
	Name    string
	BaseURL string
	APIKey  string

	// AuthHeader overrides the header carrying the key. Azure uses
	// "api-key"; the default sends "Authorization: Bearer <key>".
	AuthHeader string

	// Headers are added to every request (e.g. OpenRouter attribution).
	Headers map[string]string

	// Timeout applies to non-streaming requests. Default: 120s.
	Timeout time.Duration

	// ModelMapping translates model names before they are sent.
	ModelMapping map[string]string

	// Capabilities overrides the default capability set.
	Capabilities *provider.Capabilities
}

// Provider talks to an OpenAI-compatible Chat Completions backend. It also
// serves the image, embedding and transcription endpoints these backends
// share.
type Provider struct {
	cfg          Config
	httpClient   *http.Client
	streamClient *http.Client
	caps         provider.Capabilities
}

var (
	_ provider.Provider       = (*Provider)(nil)
	_ provider.ImageGenerator = (*Provider)(nil)
	_ provider.ImageEditor    = (*Provider)(nil)
	_ provider.Embedder       = (*Provider)(nil)
	_ provider.Transcriber    = (*Provider)(nil)
)

// New creates a Provider from cfg.
func New(cfg Config) (*Provider, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("openaicompat: base URL is required")
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.Name == "" {
		cfg.Name = "openai"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 120 * time.Second
	}

	caps := provider.Capabilities{
		Protocol:      provider.ProtocolChatCompletions,
		Streaming:     true,
		ToolCalling:   true,
		Vision:        true,
		Images:        true,
		Embeddings:    true,
		Transcription: true,
	}
	if cfg.Capabilities != nil {
		caps = *cfg.Capabilities
		caps.Protocol = provider.ProtocolChatCompletions
	}

	transport := http.DefaultTransport
	return &Provider{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout, Transport: transport},
		// Streams can legitimately outlive any fixed timeout; the context
		// controls their lifetime instead.
		streamClient: &http.Client{Transport: transport},
		caps:         caps,
	}, nil
}

// Name returns the provider identifier.
func (p *Provider) Name() string { return p.cfg.Name }

// Capabilities returns what the backend supports.
func (p *Provider) Capabilities() provider.Capabilities { return p.caps }

func (p *Provider) mapModel(model string) string {
	if mapped, ok := p.cfg.ModelMapping[model]; ok {
		return mapped
	}
	return model
}

func (p *Provider) newRequest(ctx context.Context, method, path string, body io.Reader, contentType string) (*http.Request, error) {
	httpReq, err := http.NewRequestWithContext(ctx, method, p.cfg.BaseURL+path, body)
	if err != nil {
		return nil, api.NewServerError(fmt.Sprintf("failed to create HTTP request: %s", err.Error()))
	}
	if contentType != "" {
		httpReq.Header.Set("Content-Type", contentType)
	}
	if p.cfg.APIKey != "" {
		if p.cfg.AuthHeader != "" {
			httpReq.Header.Set(p.cfg.AuthHeader, p.cfg.APIKey)
		} else {
			httpReq.Header.Set("Authorization", "Bearer "+p.cfg.APIKey)
		}
	}
	for k, v := range p.cfg.Headers {
		httpReq.Header.Set(k, v)
	}
	return httpReq, nil
}

// doJSON posts body as JSON to path and decodes the response into out.
func (p *Provider) doJSON(ctx context.Context, path string, body, out any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return api.NewServerError(fmt.Sprintf("failed to marshal request: %s", err.Error()))
	}
	httpReq, err := p.newRequest(ctx, http.MethodPost, path, bytes.NewReader(data), "application/json")
	if err != nil {
		return err
	}
	return p.do(httpReq, out)
}

func (p *Provider) do(httpReq *http.Request, out any) error {
	httpResp, err := p.httpClient.Do(httpReq)
	if err != nil {
		return MapNetworkError(err)
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode < 200 || httpResp.StatusCode >= 300 {
		return MapHTTPError(httpResp)
	}
	if err := json.NewDecoder(httpResp.Body).Decode(out); err != nil {
		return api.NewProviderError(CodeBadResponse, fmt.Sprintf("failed to parse backend response: %s", err.Error()), err)
	}
	return nil
}

// Complete performs non-streaming inference against /chat/completions.
func (p *Provider) Complete(ctx context.Context, req *provider.Request) (*provider.Response, error) {
	reqCopy := *req
	reqCopy.Stream = false
	reqCopy.Model = p.mapModel(reqCopy.Model)

	var chatResp ChatCompletionResponse
	if err := p.doJSON(ctx, "/chat/completions", TranslateToChat(&reqCopy), &chatResp); err != nil {
		return nil, err
	}
	return TranslateResponse(&chatResp), nil
}

// Stream performs streaming inference against /chat/completions. The
// returned channel is closed when the stream completes, errors, or the
// context is cancelled.
func (p *Provider) Stream(ctx context.Context, req *provider.Request) (<-chan provider.Event, error) {
	reqCopy := *req
	reqCopy.Stream = true
	reqCopy.Model = p.mapModel(reqCopy.Model)

	body, err := json.Marshal(TranslateToChat(&reqCopy))
	if err != nil {
		return nil, api.NewServerError(fmt.Sprintf("failed to marshal request: %s", err.Error()))
	}
	httpReq, err := p.newRequest(ctx, http.MethodPost, "/chat/completions", bytes.NewReader(body), "application/json")
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Accept", "text/event-stream")

	httpResp, err := p.streamClient.Do(httpReq)
	if err != nil {
		return nil, MapNetworkError(err)
	}
	if httpResp.StatusCode < 200 || httpResp.StatusCode >= 300 {
		defer httpResp.Body.Close()
		return nil, MapHTTPError(httpResp)
	}

	ch := make(chan provider.Event, 16)
	go func() {
		defer close(ch)
		defer httpResp.Body.Close()
		ParseSSEStream(ctx, httpResp.Body, ch)
	}()
	return ch, nil
}

// ListModels queries /models.
func (p *Provider) ListModels(ctx context.Context) ([]provider.ModelInfo, error) {
	httpReq, err := p.newRequest(ctx, http.MethodGet, "/models", nil, "")
	if err != nil {
		return nil, err
	}
	var modelsResp ChatModelsResponse
	if err := p.do(httpReq, &modelsResp); err != nil {
		return nil, err
	}

	models := make([]provider.ModelInfo, 0, len(modelsResp.Data))
	for _, m := range modelsResp.Data {
		models = append(models, provider.ModelInfo{
			ID:      m.ID,
			Object:  m.Object,
			OwnedBy: m.OwnedBy,
		})
	}
	return models, nil
}

// GenerateImages calls /images/generations.
func (p *Provider) GenerateImages(ctx context.Context, req *provider.ImageRequest) (*provider.Response, error) {
	body := ImageGenerationRequest{
		Model:  p.mapModel(req.Model),
		Prompt: req.Prompt,
		N:      req.N,
		Size:   req.Size,
		Style:  req.Style,
	}
	var imgResp ImageResponse
	if err := p.doJSON(ctx, "/images/generations", body, &imgResp); err != nil {
		return nil, err
	}
	return translateImages(req.Model, &imgResp), nil
}

// EditImage calls /images/edits with a multipart body.
func (p *Provider) EditImage(ctx context.Context, req *provider.ImageRequest) (*provider.Response, error) {
	if len(req.Image) == 0 {
		return nil, api.NewValidationError("file", "an image is required for edits")
	}
	name := req.ImageName
	if name == "" {
		name = "image.png"
	}

	fields := map[string]string{
		"model":  p.mapModel(req.Model),
		"prompt": req.Prompt,
	}
	if req.N > 0 {
		fields["n"] = fmt.Sprint(req.N)
	}
	if req.Size != "" {
		fields["size"] = req.Size
	}
	files := []multipartFile{{field: "image", name: name, data: req.Image}}
	if len(req.Mask) > 0 {
		files = append(files, multipartFile{field: "mask", name: "mask.png", data: req.Mask})
	}

	var imgResp ImageResponse
	if err := p.postMultipart(ctx, "/images/edits", fields, files, &imgResp); err != nil {
		return nil, err
	}
	return translateImages(req.Model, &imgResp), nil
}

// Embed calls /embeddings.
func (p *Provider) Embed(ctx context.Context, req *provider.EmbeddingRequest) (*provider.Response, error) {
	body := EmbeddingRequest{
		Model:      p.mapModel(req.Model),
		Input:      req.Input,
		Dimensions: req.Dimensions,
	}
	var embResp EmbeddingResponse
	if err := p.doJSON(ctx, "/embeddings", body, &embResp); err != nil {
		return nil, err
	}

	pr := &provider.Response{Model: embResp.Model, Status: "completed", Accuracy: api.AccuracyNone}
	for _, d := range embResp.Data {
		pr.Choices = append(pr.Choices, reply.Choice{Embedding: d.Embedding})
	}
	if embResp.Usage != nil {
		pr.Usage, pr.Accuracy = translateUsage(embResp.Usage)
	}
	return pr, nil
}

// Transcribe calls /audio/transcriptions with a multipart body.
func (p *Provider) Transcribe(ctx context.Context, req *provider.TranscriptionRequest) (*provider.Response, error) {
	if len(req.Audio) == 0 {
		return nil, api.NewValidationError("file", "audio data is required for transcription")
	}
	name := req.Filename
	if name == "" {
		name = "audio.mp3"
	}
	fields := map[string]string{
		"model":           p.mapModel(req.Model),
		"response_format": "json",
	}
	if req.Prompt != "" {
		fields["prompt"] = req.Prompt
	}

	var trResp TranscriptionResponse
	files := []multipartFile{{field: "file", name: name, data: req.Audio}}
	if err := p.postMultipart(ctx, "/audio/transcriptions", fields, files, &trResp); err != nil {
		return nil, err
	}
	return &provider.Response{
		Model:    req.Model,
		Status:   "completed",
		Choices:  []reply.Choice{{Text: trResp.Text}},
		Usage:    api.Usage{Seconds: trResp.Duration},
		Accuracy: api.AccuracyEstimated,
	}, nil
}

// Close releases client resources.
func (p *Provider) Close() error {
	p.httpClient.CloseIdleConnections()
	p.streamClient.CloseIdleConnections()
	return nil
}

type multipartFile struct {
	field string
	name  string
	data  []byte
}

func (p *Provider) postMultipart(ctx context.Context, path string, fields map[string]string, files []multipartFile, out any) error {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			return api.NewServerError(fmt.Sprintf("failed to build multipart body: %s", err.Error()))
		}
	}
	for _, f := range files {
		fw, err := mw.CreateFormFile(f.field, f.name)
		if err != nil {
			return api.NewServerError(fmt.Sprintf("failed to build multipart body: %s", err.Error()))
		}
		if _, err := fw.Write(f.data); err != nil {
			return api.NewServerError(fmt.Sprintf("failed to build multipart body: %s", err.Error()))
		}
	}
	if err := mw.Close(); err != nil {
		return api.NewServerError(fmt.Sprintf("failed to build multipart body: %s", err.Error()))
	}

	httpReq, err := p.newRequest(ctx, http.MethodPost, path, &buf, mw.FormDataContentType())
	if err != nil {
		return err
	}
	return p.do(httpReq, out)
}

func translateImages(model string, resp *ImageResponse) *provider.Response {
	pr := &provider.Response{Model: model, Status: "completed", Accuracy: api.AccuracyEstimated}
	for _, d := range resp.Data {
		pr.Choices = append(pr.Choices, reply.Choice{URL: d.URL, B64JSON: d.B64JSON})
	}
	pr.Usage.Images = len(resp.Data)
	if resp.Usage != nil {
		pr.Usage.PromptTokens = resp.Usage.InputTokens
		pr.Usage.CompletionTokens = resp.Usage.OutputTokens
		pr.Usage.TotalTokens = resp.Usage.TotalTokens
		pr.Accuracy = api.AccuracyTokens
	}
	return pr
}
