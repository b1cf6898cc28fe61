package tools

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/brubru/aiengine/pkg/api"
)

// HandlerFunc implements a function in Go. args are the decoded arguments
// of the call.
type HandlerFunc func(ctx context.Context, args map[string]any) (any, error)

type handler struct {
	fn   *api.Function
	call HandlerFunc
}

// Functions executes functions implemented by Go handlers.
type Functions struct {
	mu       sync.RWMutex
	handlers map[string]handler
	order    []string
}

var (
	_ Executor = (*Functions)(nil)
	_ Lister   = (*Functions)(nil)
)

// NewFunctions creates an empty set of handlers.
func NewFunctions() *Functions {
	return &Functions{handlers: make(map[string]handler)}
}

// Register binds h to fn. Registering a name twice replaces the handler.
func (f *Functions) Register(fn *api.Function, h HandlerFunc) error {
	if fn == nil || h == nil {
		return fmt.Errorf("registering function: nil function or handler")
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if _, exists := f.handlers[fn.Name]; exists {
		slog.Warn("function handler replaced", "function", fn.Name)
	} else {
		f.order = append(f.order, fn.Name)
	}
	f.handlers[fn.Name] = handler{fn: fn, call: h}
	return nil
}

// Kind returns KindFunction.
func (f *Functions) Kind() Kind { return KindFunction }

// CanExecute reports whether a handler is registered for name.
func (f *Functions) CanExecute(name string) bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	_, ok := f.handlers[name]
	return ok
}

// Execute calls the handler registered for call.Name.
func (f *Functions) Execute(ctx context.Context, call api.ToolCall) (any, error) {
	f.mu.RLock()
	h, ok := f.handlers[call.Name]
	f.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("no handler registered for function %q", call.Name)
	}

	args := call.Arguments
	if args == nil {
		args = map[string]any{}
	}
	return h.call(ctx, args)
}

// Functions returns the registered functions in registration order.
func (f *Functions) Functions(context.Context) ([]*api.Function, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	out := make([]*api.Function, 0, len(f.order))
	for _, name := range f.order {
		out = append(out, f.handlers[name].fn)
	}
	return out, nil
}
