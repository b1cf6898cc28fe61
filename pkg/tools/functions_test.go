package tools

import (
	"context"
	"errors"
	"testing"

	"github.com/brubru/aiengine/pkg/api"
)

func mustFunction(t *testing.T, name string) *api.Function {
	t.Helper()
	fn, err := api.NewFunction(name, "test function "+name, nil)
	if err != nil {
		t.Fatalf("NewFunction(%q): %v", name, err)
	}
	return fn
}

func TestFunctions_Execute(t *testing.T) {
	f := NewFunctions()
	err := f.Register(mustFunction(t, "add"), func(_ context.Context, args map[string]any) (any, error) {
		a, _ := args["a"].(float64)
		b, _ := args["b"].(float64)
		return a + b, nil
	})
	if err != nil {
		t.Fatal(err)
	}

	if f.Kind() != KindFunction {
		t.Errorf("Kind() = %v, want function", f.Kind())
	}
	if !f.CanExecute("add") || f.CanExecute("sub") {
		t.Error("CanExecute mismatch")
	}

	v, err := f.Execute(context.Background(), api.ToolCall{ToolID: "call_1", Name: "add", Arguments: map[string]any{"a": 2.0, "b": 3.0}})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if v != 5.0 {
		t.Errorf("value = %v, want 5", v)
	}
}

func TestFunctions_NilArguments(t *testing.T) {
	f := NewFunctions()
	f.Register(mustFunction(t, "noop"), func(_ context.Context, args map[string]any) (any, error) {
		if args == nil {
			return nil, errors.New("nil args")
		}
		return len(args), nil
	})

	v, err := f.Execute(context.Background(), api.ToolCall{Name: "noop"})
	if err != nil || v != 0 {
		t.Errorf("Execute() = %v, %v", v, err)
	}
}

func TestFunctions_UnknownName(t *testing.T) {
	f := NewFunctions()
	if _, err := f.Execute(context.Background(), api.ToolCall{Name: "missing"}); err == nil {
		t.Error("expected an error for an unregistered function")
	}
}

func TestFunctions_RegisterRejectsNil(t *testing.T) {
	f := NewFunctions()
	if err := f.Register(nil, func(context.Context, map[string]any) (any, error) { return nil, nil }); err == nil {
		t.Error("expected error for nil function")
	}
	if err := f.Register(mustFunction(t, "x"), nil); err == nil {
		t.Error("expected error for nil handler")
	}
}

func TestFunctions_ListKeepsOrder(t *testing.T) {
	f := NewFunctions()
	h := func(context.Context, map[string]any) (any, error) { return "ok", nil }
	f.Register(mustFunction(t, "b"), h)
	f.Register(mustFunction(t, "a"), h)
	f.Register(mustFunction(t, "b"), h)

	fns, err := f.Functions(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(fns) != 2 || fns[0].Name != "b" || fns[1].Name != "a" {
		t.Errorf("Functions() = %v", fns)
	}
}

func TestKindString(t *testing.T) {
	if KindFunction.String() != "function" || KindMCP.String() != "mcp" || Kind(42).String() != "unknown" {
		t.Error("unexpected Kind strings")
	}
}
