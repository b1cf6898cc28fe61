package engine

import (
	"context"
	"time"

	"github.com/brubru/aiengine/pkg/config"
	"github.com/brubru/aiengine/pkg/continuity"
	"github.com/brubru/aiengine/pkg/query"
	"github.com/brubru/aiengine/pkg/storage"
	"github.com/brubru/aiengine/pkg/tools"
)

// defaultMaxFeedbackDepth bounds the feedback turns of one RunWithFeedback
// call when ai_max_feedback_depth is not set.
const defaultMaxFeedbackDepth = 5

// defaultTimeout is the backend request timeout used when none is set.
const defaultTimeout = 120 * time.Second

// ExtraBodyParam is the query extra parameter whose map value is merged
// into the backend request body.
const ExtraBodyParam = "extra_body"

// MediaLoader resolves the library media referenced by edit_image queries
// that carry a mediaId instead of a file.
type MediaLoader interface {
	LoadMedia(ctx context.Context, id string) (*query.DroppedFile, error)
}

// Option configures an Engine.
type Option func(*Engine)

// WithStore persists discussions and usage records. Without a store the
// engine keeps continuation tokens in memory only.
func WithStore(s storage.Store) Option {
	return func(e *Engine) { e.store = s }
}

// WithBlobs sets the store generated images are materialized in.
func WithBlobs(b storage.BlobStore) Option {
	return func(e *Engine) { e.blobs = b }
}

// WithMedia sets the loader used for edit_image mediaId references.
func WithMedia(m MediaLoader) Option {
	return func(e *Engine) { e.media = m }
}

// WithFunctions registers local Go handlers for function calls.
func WithFunctions(f *tools.Functions) Option {
	return func(e *Engine) { e.functions = f }
}

// WithMCPServers sets the configured MCP servers queries may reference.
func WithMCPServers(servers []config.MCPServerConfig) Option {
	return func(e *Engine) { e.mcpServers = servers }
}

// WithContinuity replaces the continuation token manager.
func WithContinuity(m *continuity.Manager) Option {
	return func(e *Engine) { e.continuity = m }
}

// WithFactory registers or overrides the provider factory of an
// environment type.
func WithFactory(envType string, f Factory) Option {
	return func(e *Engine) { e.factories[envType] = f }
}

// WithTimeout sets the backend request timeout.
func WithTimeout(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.settings.Timeout = d
		}
	}
}

// WithClock replaces the wall clock used for timestamps.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

func (e *Engine) maxFeedbackDepth() int {
	n := config.Int(e.opts, config.KeyMaxFeedbackDepth, defaultMaxFeedbackDepth)
	if n <= 0 {
		return defaultMaxFeedbackDepth
	}
	return n
}
