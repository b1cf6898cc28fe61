package responses

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/brubru/aiengine/pkg/api"
	"github.com/brubru/aiengine/pkg/debug"
	"github.com/brubru/aiengine/pkg/provider"
	"github.com/brubru/aiengine/pkg/provider/openaicompat"
)

// ResponsesProvider implements provider.Provider for backends that support
// the OpenAI Responses API (/responses). It forwards inference requests
// using the Responses API wire format and consumes native SSE events.
type ResponsesProvider struct {
	name         string
	baseURL      string
	apiKey       string
	headers      map[string]string
	httpClient   *http.Client
	streamClient *http.Client
	caps         provider.Capabilities

	// Image, embedding and transcription calls share the Chat Completions
	// family endpoints.
	compat *openaicompat.Provider
}

var (
	_ provider.Provider       = (*ResponsesProvider)(nil)
	_ provider.ImageGenerator = (*ResponsesProvider)(nil)
	_ provider.ImageEditor    = (*ResponsesProvider)(nil)
	_ provider.Embedder       = (*ResponsesProvider)(nil)
	_ provider.Transcriber    = (*ResponsesProvider)(nil)
)

// Config holds configuration for the Responses API provider.
type Config struct {
	Name    string
	BaseURL string
	APIKey  string
	Headers map[string]string
	Timeout time.Duration

	// Probe verifies at construction time that the backend serves
	// /responses.
	Probe bool
}

// New creates a new ResponsesProvider.
func New(cfg Config) (*ResponsesProvider, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("responses: BaseURL is required")
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.Name == "" {
		cfg.Name = "openai"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 120 * time.Second
	}

	compat, err := openaicompat.New(openaicompat.Config{
		Name:    cfg.Name,
		BaseURL: cfg.BaseURL,
		APIKey:  cfg.APIKey,
		Headers: cfg.Headers,
		Timeout: cfg.Timeout,
	})
	if err != nil {
		return nil, err
	}

	p := &ResponsesProvider{
		name:         cfg.Name,
		baseURL:      cfg.BaseURL,
		apiKey:       cfg.APIKey,
		headers:      cfg.Headers,
		httpClient:   &http.Client{Timeout: cfg.Timeout},
		streamClient: &http.Client{},
		caps: provider.Capabilities{
			Protocol:      provider.ProtocolResponses,
			Streaming:     true,
			ToolCalling:   true,
			Vision:        true,
			Images:        true,
			Embeddings:    true,
			Transcription: true,
		},
		compat: compat,
	}

	if cfg.Probe {
		if err := p.probeEndpoint(); err != nil {
			return nil, err
		}
	}
	return p, nil
}

// probeEndpoint sends a lightweight request to /responses to verify the
// backend supports the Responses API. Connection errors and plain 404s (path
// not found) indicate the endpoint is unavailable. A JSON-formatted 404 from
// the API (e.g., "model not found") means the endpoint exists but rejected
// our probe, which is acceptable.
func (p *ResponsesProvider) probeEndpoint() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	probe := []byte(`{"model":"_probe","input":"probe","store":false}`)
	httpReq, err := p.newRequest(ctx, http.MethodPost, "/responses", bytes.NewReader(probe))
	if err != nil {
		return fmt.Errorf("responses: probe request creation failed: %w", err)
	}

	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("responses: backend at %s is not reachable: %w", p.baseURL, err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)

	if resp.StatusCode == http.StatusNotFound && !isAPIError(respBody) {
		return fmt.Errorf("responses: backend at %s does not support the Responses API (/responses returned 404)", p.baseURL)
	}

	slog.Info("responses provider: backend probe successful",
		"url", p.baseURL+"/responses",
		"status", resp.StatusCode,
	)
	return nil
}

// isAPIError checks if a response body is a JSON API error (as opposed to a
// plain text "Not Found" from a web framework).
func isAPIError(body []byte) bool {
	var obj struct {
		Message string `json:"message"`
		Error   *struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if json.Unmarshal(body, &obj) != nil {
		return false
	}
	return obj.Message != "" || (obj.Error != nil && obj.Error.Message != "")
}

// Name returns the provider identifier.
func (p *ResponsesProvider) Name() string {
	return p.name
}

// Capabilities returns what this provider supports.
func (p *ResponsesProvider) Capabilities() provider.Capabilities {
	return p.caps
}

func (p *ResponsesProvider) newRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	httpReq, err := http.NewRequestWithContext(ctx, method, p.baseURL+path, body)
	if err != nil {
		return nil, api.NewServerError(fmt.Sprintf("failed to create HTTP request: %s", err.Error()))
	}
	if body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	if p.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+p.apiKey)
	}
	for k, v := range p.headers {
		httpReq.Header.Set(k, v)
	}
	return httpReq, nil
}

// Complete performs non-streaming inference via POST /responses.
func (p *ResponsesProvider) Complete(ctx context.Context, req *provider.Request) (*provider.Response, error) {
	reqCopy := *req
	reqCopy.Stream = false

	body, err := json.Marshal(translateRequest(&reqCopy))
	if err != nil {
		return nil, api.NewServerError(fmt.Sprintf("failed to marshal request: %s", err.Error()))
	}

	httpReq, err := p.newRequest(ctx, http.MethodPost, "/responses", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}

	debug.Log(debug.CategoryProviders, "request", "method", "POST",
		"url", p.baseURL+"/responses", "model", req.Model, "stream", false,
		"previous_response_id", req.PreviousResponseID)

	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		return nil, openaicompat.MapNetworkError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, openaicompat.MapHTTPError(resp)
	}

	var rResp responsesResponse
	if err := json.NewDecoder(resp.Body).Decode(&rResp); err != nil {
		return nil, api.NewProviderError(openaicompat.CodeBadResponse, fmt.Sprintf("failed to parse backend response: %s", err.Error()), err)
	}

	return translateResponse(&rResp)
}

// Stream performs streaming inference via POST /responses with stream=true.
// The first event carries the response id once the backend assigns it.
func (p *ResponsesProvider) Stream(ctx context.Context, req *provider.Request) (<-chan provider.Event, error) {
	reqCopy := *req
	reqCopy.Stream = true

	body, err := json.Marshal(translateRequest(&reqCopy))
	if err != nil {
		return nil, api.NewServerError(fmt.Sprintf("failed to marshal request: %s", err.Error()))
	}

	httpReq, err := p.newRequest(ctx, http.MethodPost, "/responses", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Accept", "text/event-stream")

	debug.Log(debug.CategoryProviders, "request", "method", "POST",
		"url", p.baseURL+"/responses", "model", req.Model, "stream", true,
		"previous_response_id", req.PreviousResponseID)

	resp, err := p.streamClient.Do(httpReq)
	if err != nil {
		return nil, openaicompat.MapNetworkError(err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		defer resp.Body.Close()
		return nil, openaicompat.MapHTTPError(resp)
	}

	ch := make(chan provider.Event, 32)
	go func() {
		defer resp.Body.Close()
		parseSSEStream(ctx, resp.Body, ch)
	}()

	return ch, nil
}

// ListModels queries the backend's /models endpoint.
func (p *ResponsesProvider) ListModels(ctx context.Context) ([]provider.ModelInfo, error) {
	return p.compat.ListModels(ctx)
}

// GenerateImages delegates to the /images/generations endpoint.
func (p *ResponsesProvider) GenerateImages(ctx context.Context, req *provider.ImageRequest) (*provider.Response, error) {
	return p.compat.GenerateImages(ctx, req)
}

// EditImage delegates to the /images/edits endpoint.
func (p *ResponsesProvider) EditImage(ctx context.Context, req *provider.ImageRequest) (*provider.Response, error) {
	return p.compat.EditImage(ctx, req)
}

// Embed delegates to the /embeddings endpoint.
func (p *ResponsesProvider) Embed(ctx context.Context, req *provider.EmbeddingRequest) (*provider.Response, error) {
	return p.compat.Embed(ctx, req)
}

// Transcribe delegates to the /audio/transcriptions endpoint.
func (p *ResponsesProvider) Transcribe(ctx context.Context, req *provider.TranscriptionRequest) (*provider.Response, error) {
	return p.compat.Transcribe(ctx, req)
}

// Close releases provider resources.
func (p *ResponsesProvider) Close() error {
	p.httpClient.CloseIdleConnections()
	p.streamClient.CloseIdleConnections()
	return p.compat.Close()
}
