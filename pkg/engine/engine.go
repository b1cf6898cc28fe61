package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/hashicorp/go-multierror"

	"github.com/brubru/aiengine/pkg/api"
	"github.com/brubru/aiengine/pkg/config"
	"github.com/brubru/aiengine/pkg/continuity"
	"github.com/brubru/aiengine/pkg/debug"
	"github.com/brubru/aiengine/pkg/event"
	"github.com/brubru/aiengine/pkg/messages"
	"github.com/brubru/aiengine/pkg/observability"
	"github.com/brubru/aiengine/pkg/provider"
	"github.com/brubru/aiengine/pkg/query"
	"github.com/brubru/aiengine/pkg/reply"
	"github.com/brubru/aiengine/pkg/storage"
	"github.com/brubru/aiengine/pkg/tools"
)

// Engine dispatches queries to the provider of their environment. It is
// safe for concurrent use.
type Engine struct {
	opts     config.Options
	settings Settings

	store      storage.Store
	blobs      storage.BlobStore
	media      MediaLoader
	functions  *tools.Functions
	mcpServers []config.MCPServerConfig
	continuity *continuity.Manager
	builder    *messages.Builder
	factories  map[string]Factory
	now        func() time.Time

	mu        sync.Mutex
	providers map[string]provider.Provider
}

// New creates an Engine reading its defaults and environments from opts.
func New(opts config.Options, options ...Option) *Engine {
	if opts == nil {
		opts = config.MapOptions{}
	}
	e := &Engine{
		opts: opts,
		settings: Settings{
			Timeout:      defaultTimeout,
			ResponsesAPI: config.Bool(opts, config.KeyResponsesAPI, true),
		},
		builder:   messages.New(opts),
		factories: builtinFactories(),
		now:       time.Now,
		providers: make(map[string]provider.Provider),
	}
	for _, o := range options {
		o(e)
	}
	if e.continuity == nil {
		e.continuity = continuity.NewManager(continuity.WithClock(e.now))
	}
	return e
}

// Continuity returns the continuation token manager.
func (e *Engine) Continuity() *continuity.Manager { return e.continuity }

// Execute runs one turn of q. Events are pushed to sink when it is not
// nil; the last one is an end event carrying the reply, or an error event.
func (e *Engine) Execute(ctx context.Context, q *query.Query, sink event.Sink) (*reply.Reply, error) {
	sink = observe(sink)
	r, err := e.execute(ctx, q, sink)
	if err != nil {
		fail(ctx, sink, err)
		return nil, err
	}
	finish(ctx, sink, r)
	return r, nil
}

// execute runs one turn without terminal events.
func (e *Engine) execute(ctx context.Context, q *query.Query, sink event.Sink) (*reply.Reply, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}
	if err := e.Resolve(q); err != nil {
		return nil, err
	}
	env, ok := config.FindEnvironment(e.opts, q.EnvID)
	if !ok {
		return nil, api.NewResolutionError("envId", fmt.Sprintf("the environment %q is not configured", q.EnvID))
	}

	var disc *storage.Discussion
	if q.IsTextClass() {
		disc = e.loadDiscussion(ctx, q)
	}
	q.Finalize()
	debug.Dump(debug.CategoryQueries, "query", q)

	p, release, err := e.providerFor(env, q.APIKey)
	if err != nil {
		return nil, err
	}
	defer release()

	var r *reply.Reply
	switch {
	case q.IsImageClass():
		r, err = e.runImage(ctx, p, q)
	case q.Kind == query.KindEmbed:
		r, err = e.runEmbed(ctx, p, q, sink)
	case q.Kind == query.KindTranscribe:
		r, err = e.runTranscribe(ctx, p, q, sink)
	case q.Model == assistantModel:
		err = api.NewValidationError("assistantId",
			fmt.Sprintf("stored assistants are not supported by %s environments", env.Type))
	default:
		r, err = e.runText(ctx, p, q, disc, sink)
	}
	if err != nil {
		return nil, err
	}

	e.recordUsage(ctx, q, r)
	debug.Dump(debug.CategoryQueries, "reply", r)
	return r, nil
}

// providerFor returns the provider of env. Providers are cached per
// environment; a query-level API key gets a dedicated provider released
// after the turn.
func (e *Engine) providerFor(env config.Environment, apiKey string) (provider.Provider, func(), error) {
	factory, ok := e.factories[env.Type]
	if !ok {
		return nil, nil, api.NewResolutionError("envId",
			fmt.Sprintf("the environment %q has the unsupported type %q", env.ID, env.Type))
	}

	if apiKey != "" && apiKey != env.APIKey {
		env.APIKey = apiKey
		p, err := factory(env, e.settings)
		if err != nil {
			return nil, nil, fmt.Errorf("creating provider for %s: %w", env.ID, err)
		}
		return p, func() { p.Close() }, nil
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if p, ok := e.providers[env.ID]; ok {
		return p, func() {}, nil
	}
	p, err := factory(env, e.settings)
	if err != nil {
		return nil, nil, fmt.Errorf("creating provider for %s: %w", env.ID, err)
	}
	debug.Log(debug.CategoryProviders, "provider created", "env", env.ID, "type", env.Type,
		"protocol", p.Capabilities().Protocol)
	e.providers[env.ID] = p
	return p, func() {}, nil
}

// Provider returns the provider serving the environment envID.
func (e *Engine) Provider(envID string) (provider.Provider, error) {
	env, ok := config.FindEnvironment(e.opts, envID)
	if !ok {
		return nil, api.NewResolutionError("envId", fmt.Sprintf("the environment %q is not configured", envID))
	}
	p, _, err := e.providerFor(env, "")
	return p, err
}

// ListModels lists the models the backend of envID offers.
func (e *Engine) ListModels(ctx context.Context, envID string) ([]provider.ModelInfo, error) {
	p, err := e.Provider(envID)
	if err != nil {
		return nil, err
	}
	return p.ListModels(ctx)
}

// call runs one backend request and records the provider metrics.
func (e *Engine) call(p provider.Provider, model string, fn func() (*provider.Response, error)) (*provider.Response, error) {
	start := time.Now()
	resp, err := fn()
	duration := time.Since(start)

	name := p.Name()
	observability.ProviderLatency.WithLabelValues(name, model).Observe(duration.Seconds())
	if err != nil {
		observability.ProviderRequestsTotal.WithLabelValues(name, model, "error").Inc()
		return nil, err
	}
	observability.ProviderRequestsTotal.WithLabelValues(name, model, "success").Inc()
	observability.ProviderTokensTotal.WithLabelValues(name, model, "input").Add(float64(resp.Usage.PromptTokens))
	observability.ProviderTokensTotal.WithLabelValues(name, model, "output").Add(float64(resp.Usage.CompletionTokens))
	return resp, nil
}

// recordUsage stores the usage of a successful turn. Failures are logged,
// the reply is already final.
func (e *Engine) recordUsage(ctx context.Context, q *query.Query, r *reply.Reply) {
	if e.store == nil {
		return
	}
	err := e.store.RecordUsage(ctx, storage.UsageRecord{
		Session:   q.Session,
		EnvID:     q.EnvID,
		Model:     q.Model,
		Feature:   string(q.Feature),
		Scope:     q.Scope,
		Usage:     r.Usage,
		Accuracy:  r.UsageAccuracy,
		CreatedAt: e.now(),
	})
	if err != nil {
		slog.Warn("failed to record usage", "env", q.EnvID, "model", q.Model, "error", err)
	}
}

// Close releases every cached provider.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	var result *multierror.Error
	for id, p := range e.providers {
		if err := p.Close(); err != nil {
			result = multierror.Append(result, fmt.Errorf("closing provider %s: %w", id, err))
		}
	}
	clear(e.providers)
	return result.ErrorOrNil()
}
