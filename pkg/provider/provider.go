package provider

import "context"

// Provider abstracts an AI backend. Each adapter handles its own wire
// protocol (Chat Completions, Responses API) internally.
//
// Implementations must be safe for concurrent use by multiple goroutines.
type Provider interface {
	// Name returns the provider identifier (e.g., "openai", "openrouter").
	Name() string

	// Capabilities returns what this provider supports.
	Capabilities() Capabilities

	// Complete performs non-streaming inference.
	Complete(ctx context.Context, req *Request) (*Response, error)

	// Stream performs streaming inference. The returned channel receives
	// Event values and is closed by the provider when the stream completes
	// or errors.
	Stream(ctx context.Context, req *Request) (<-chan Event, error)

	// ListModels returns available models from the backend.
	ListModels(ctx context.Context) ([]ModelInfo, error)

	// Close releases provider resources (HTTP clients, connections).
	Close() error
}

// ImageGenerator is implemented by providers that generate images.
type ImageGenerator interface {
	GenerateImages(ctx context.Context, req *ImageRequest) (*Response, error)
}

// ImageEditor is implemented by providers that edit images.
type ImageEditor interface {
	EditImage(ctx context.Context, req *ImageRequest) (*Response, error)
}

// Embedder is implemented by providers that compute embeddings.
type Embedder interface {
	Embed(ctx context.Context, req *EmbeddingRequest) (*Response, error)
}

// Transcriber is implemented by providers that transcribe audio.
type Transcriber interface {
	Transcribe(ctx context.Context, req *TranscriptionRequest) (*Response, error)
}
