// Package registry routes function calls to the executors that host them
// and converts every outcome, including panics, into an api.FunctionResult.
// A failed call never aborts the feedback loop: the failure is sent back to
// the model as the call's result.
package registry

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/brubru/aiengine/pkg/api"
	"github.com/brubru/aiengine/pkg/observability"
	"github.com/brubru/aiengine/pkg/tools"
)

// NoValue replaces the value of a call whose handler returned nothing.
const NoValue = "[NO VALUE RETURNED - DO NOT SHOW THIS]"

var toolDuration = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Name:    "aiengine_tool_duration_seconds",
		Help:    "Function execution duration",
		Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10, 30, 60},
	},
	[]string{"kind", "tool_name"},
)

func init() {
	prometheus.MustRegister(toolDuration)
}

// Registry aggregates executors. Names are resolved in registration order:
// when two executors host the same name, the first one wins.
type Registry struct {
	mu        sync.RWMutex
	executors []tools.Executor
	parallel  bool
}

// Option configures a Registry.
type Option func(*Registry)

// WithExecutors registers execs in order.
func WithExecutors(execs ...tools.Executor) Option {
	return func(r *Registry) {
		for _, e := range execs {
			r.Register(e)
		}
	}
}

// WithParallel lets ExecuteAll run the calls of one turn concurrently.
// Every handler reachable through the registry must then be safe for
// concurrent use.
func WithParallel() Option {
	return func(r *Registry) { r.parallel = true }
}

// New creates a registry. Calls run one after the other unless
// WithParallel is given.
func New(opts ...Option) *Registry {
	r := &Registry{}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register appends an executor. A nil executor is ignored.
func (r *Registry) Register(e tools.Executor) {
	if e == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.executors = append(r.executors, e)
}

// CanExecute reports whether any executor hosts name.
func (r *Registry) CanExecute(name string) bool {
	_, ok := r.lookup(name)
	return ok
}

// KindOf returns the kind of the executor hosting name.
func (r *Registry) KindOf(name string) (tools.Kind, bool) {
	e, ok := r.lookup(name)
	if !ok {
		return 0, false
	}
	return e.Kind(), true
}

func (r *Registry) lookup(name string) (tools.Executor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, e := range r.executors {
		if e.CanExecute(name) {
			return e, true
		}
	}
	return nil, false
}

// Execute runs one call. It never fails: a missing executor, a handler
// error and a panic all become a failed result. A nil value becomes
// NoValue.
func (r *Registry) Execute(ctx context.Context, call api.ToolCall) (result api.FunctionResult) {
	e, ok := r.lookup(call.Name)
	if !ok {
		observability.ToolExecutionsTotal.WithLabelValues(call.Name, "unhandled").Inc()
		return api.NewFunctionFailure(call.ToolID, call.Name, fmt.Sprintf("no handler for function %q", call.Name))
	}

	kind := e.Kind().String()
	start := time.Now()

	defer func() {
		if rec := recover(); rec != nil {
			slog.Error("function handler panicked",
				"kind", kind,
				"function", call.Name,
				"panic", rec,
			)
			result = api.NewFunctionFailure(call.ToolID, call.Name, fmt.Sprintf("internal error: function %q panicked", call.Name))
			observability.ToolExecutionsTotal.WithLabelValues(call.Name, "panic").Inc()
			toolDuration.WithLabelValues(kind, call.Name).Observe(time.Since(start).Seconds())
		}
	}()

	value, err := e.Execute(ctx, call)
	toolDuration.WithLabelValues(kind, call.Name).Observe(time.Since(start).Seconds())

	if err != nil {
		slog.Debug("function call failed", "kind", kind, "function", call.Name, "error", err)
		observability.ToolExecutionsTotal.WithLabelValues(call.Name, "error").Inc()
		return api.NewFunctionFailure(call.ToolID, call.Name, err.Error())
	}

	observability.ToolExecutionsTotal.WithLabelValues(call.Name, "success").Inc()
	if value == nil {
		value = NoValue
	}
	return api.NewFunctionSuccess(call.ToolID, call.Name, value)
}

// ExecuteAll runs calls and returns their results in the order of calls.
// Calls run sequentially on the caller's goroutine unless the registry was
// built WithParallel.
func (r *Registry) ExecuteAll(ctx context.Context, calls []api.ToolCall) []api.FunctionResult {
	results := make([]api.FunctionResult, len(calls))
	if !r.parallel || len(calls) < 2 {
		for i, call := range calls {
			results[i] = r.Execute(ctx, call)
		}
		return results
	}

	var wg sync.WaitGroup
	for i, call := range calls {
		wg.Go(func() {
			results[i] = r.Execute(ctx, call)
		})
	}
	wg.Wait()
	return results
}

// Functions returns the functions described by every executor that
// implements tools.Lister. Executors that fail to list are logged and
// skipped; the first occurrence of a name wins.
func (r *Registry) Functions(ctx context.Context) []*api.Function {
	r.mu.RLock()
	execs := append([]tools.Executor(nil), r.executors...)
	r.mu.RUnlock()

	seen := make(map[string]bool)
	var out []*api.Function
	for _, e := range execs {
		l, ok := e.(tools.Lister)
		if !ok {
			continue
		}
		fns, err := l.Functions(ctx)
		if err != nil {
			slog.Warn("listing functions failed", "kind", e.Kind().String(), "error", err)
			continue
		}
		for _, fn := range fns {
			if seen[fn.Name] {
				continue
			}
			seen[fn.Name] = true
			out = append(out, fn)
		}
	}
	return out
}

// Close closes every executor that holds resources and returns all
// errors encountered.
func (r *Registry) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var result *multierror.Error
	for _, e := range r.executors {
		c, ok := e.(io.Closer)
		if !ok {
			continue
		}
		if err := c.Close(); err != nil {
			result = multierror.Append(result, fmt.Errorf("closing %s executor: %w", e.Kind(), err))
		}
	}
	return result.ErrorOrNil()
}
