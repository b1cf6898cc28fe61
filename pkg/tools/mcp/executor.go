package mcp

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/hashicorp/go-multierror"

	"github.com/brubru/aiengine/pkg/api"
	"github.com/brubru/aiengine/pkg/tools"
)

// Executor implements tools.Executor for MCP server tools. It discovers
// the tools of every connected server on first use and routes each call
// to the server that provides it.
type Executor struct {
	mu sync.RWMutex

	// clients maps server name to client.
	clients map[string]*Client

	// toolToServer maps tool name to the server name that provides it.
	toolToServer map[string]string

	functions  []*api.Function
	discovered bool
}

var (
	_ tools.Executor = (*Executor)(nil)
	_ tools.Lister   = (*Executor)(nil)
)

// NewExecutor creates an executor over connected clients keyed by server
// name.
func NewExecutor(clients map[string]*Client) *Executor {
	if clients == nil {
		clients = make(map[string]*Client)
	}
	return &Executor{
		clients:      clients,
		toolToServer: make(map[string]string),
	}
}

// Dial connects to every server and returns an executor over the servers
// that answered. Connection failures are aggregated in the returned error;
// the executor is usable even when it is non-nil.
func Dial(ctx context.Context, servers []ServerConfig) (*Executor, error) {
	clients := make(map[string]*Client, len(servers))
	var errs *multierror.Error
	for _, sc := range servers {
		c := NewClient(sc)
		if err := c.Connect(ctx); err != nil {
			slog.Warn("MCP server unavailable", "server", sc.Name, "error", err)
			errs = multierror.Append(errs, err)
			continue
		}
		clients[sc.Name] = c
	}
	return NewExecutor(clients), errs.ErrorOrNil()
}

// Kind returns tools.KindMCP.
func (e *Executor) Kind() tools.Kind { return tools.KindMCP }

// Servers returns the number of connected servers.
func (e *Executor) Servers() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.clients)
}

// CanExecute reports whether a connected server provides the named tool.
func (e *Executor) CanExecute(name string) bool {
	e.ensureDiscovered(context.Background())

	e.mu.RLock()
	defer e.mu.RUnlock()
	_, ok := e.toolToServer[name]
	return ok
}

// Execute routes the call to the server providing it and returns the text
// output.
func (e *Executor) Execute(ctx context.Context, call api.ToolCall) (any, error) {
	e.ensureDiscovered(ctx)

	e.mu.RLock()
	serverName, ok := e.toolToServer[call.Name]
	client := e.clients[serverName]
	e.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("no MCP server provides tool %q", call.Name)
	}

	return client.CallTool(ctx, call.Name, call.Arguments)
}

// Functions returns the tools discovered on every server.
func (e *Executor) Functions(ctx context.Context) ([]*api.Function, error) {
	e.ensureDiscovered(ctx)

	e.mu.RLock()
	defer e.mu.RUnlock()
	return append([]*api.Function(nil), e.functions...), nil
}

// Close closes every client session.
func (e *Executor) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	var errs *multierror.Error
	for name, client := range e.clients {
		if err := client.Close(); err != nil {
			errs = multierror.Append(errs, fmt.Errorf("closing MCP server %q: %w", name, err))
		}
	}
	return errs.ErrorOrNil()
}

// ensureDiscovered lists the tools of every server once. Servers are
// visited by name so a tool offered twice always resolves to the same
// server.
func (e *Executor) ensureDiscovered(ctx context.Context) {
	e.mu.RLock()
	if e.discovered {
		e.mu.RUnlock()
		return
	}
	e.mu.RUnlock()

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.discovered {
		return
	}

	names := make([]string, 0, len(e.clients))
	for name := range e.clients {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		fns, err := e.clients[name].DiscoverTools(ctx)
		if err != nil {
			slog.Error("failed to discover tools from MCP server",
				"server", name,
				"error", err,
			)
			continue
		}

		for _, fn := range fns {
			if _, exists := e.toolToServer[fn.Name]; exists {
				slog.Warn("duplicate MCP tool name, using first provider",
					"tool", fn.Name,
					"server", name,
				)
				continue
			}
			e.toolToServer[fn.Name] = name
			e.functions = append(e.functions, fn)
		}

		slog.Info("discovered MCP tools",
			"server", name,
			"count", len(fns),
		)
	}

	e.discovered = true
}
