package tools

import (
	"context"

	"github.com/brubru/aiengine/pkg/api"
)

// Kind classifies how a tool is hosted and executed.
type Kind int

const (
	// KindFunction is a Go handler registered in-process.
	KindFunction Kind = iota

	// KindMCP is a tool served by a Model Context Protocol server.
	KindMCP
)

func (k Kind) String() string {
	switch k {
	case KindFunction:
		return "function"
	case KindMCP:
		return "mcp"
	default:
		return "unknown"
	}
}

// Executor executes tool calls for the names it hosts.
type Executor interface {
	// Kind returns the type of tools this executor handles.
	Kind() Kind

	// CanExecute reports whether this executor hosts the named tool.
	CanExecute(name string) bool

	// Execute runs the call and returns its value. A returned error is a
	// failed call, it is reported to the model and does not stop the turn.
	Execute(ctx context.Context, call api.ToolCall) (any, error)
}

// Lister is implemented by executors that can describe their tools so
// they can be exposed to the model.
type Lister interface {
	Functions(ctx context.Context) ([]*api.Function, error)
}
