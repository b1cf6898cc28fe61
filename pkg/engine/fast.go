package engine

import (
	"context"
	"log/slog"
	"maps"

	"github.com/brubru/aiengine/pkg/config"
	"github.com/brubru/aiengine/pkg/observability"
	"github.com/brubru/aiengine/pkg/query"
	"github.com/brubru/aiengine/pkg/reply"
)

// fastStrippedParams are removed from the parameters of the fallback
// attempt so it resolves to the standard default pair.
var fastStrippedParams = []string{"model", "envId", "env_id"}

// RunFast runs a short text prompt on the fast default environment and
// model. When that attempt fails for any reason it is retried once on the
// standard default, with model and envId stripped from params.
func (e *Engine) RunFast(ctx context.Context, message string, params map[string]any) (*reply.Reply, error) {
	q := query.NewText(message)
	if err := q.Inject(params); err != nil {
		return nil, err
	}
	if q.EnvID == "" && q.Model == "" {
		q.EnvID = config.String(e.opts, config.KeyFastDefaultEnv, "")
		q.Model = config.String(e.opts, config.KeyFastDefaultModel, "")
	}

	r, err := e.execute(ctx, q, nil)
	if err == nil {
		return r, nil
	}
	if ctx.Err() != nil {
		return nil, err
	}

	slog.Warn("fast query failed, retrying on the default model",
		"env", q.EnvID, "model", q.Model, "error", err)
	observability.FallbacksTotal.WithLabelValues(q.EnvID, q.Model).Inc()

	stripped := maps.Clone(params)
	for _, k := range fastStrippedParams {
		delete(stripped, k)
	}
	retry := query.NewText(message)
	if err := retry.Inject(stripped); err != nil {
		return nil, err
	}
	return e.execute(ctx, retry, nil)
}
