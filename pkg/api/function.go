package api

import (
	"fmt"
	"log/slog"
	"regexp"
	"strings"
)

// Function targets.
const (
	TargetServer = "server"
	TargetClient = "client"
	TargetJS     = "js"
)

var (
	functionNamePattern  = regexp.MustCompile(`^[a-zA-Z0-9_-]{1,64}$`)
	parameterNamePattern = regexp.MustCompile(`^\$?[a-zA-Z0-9_]{1,64}$`)
)

// ParameterTypes lists the JSON schema types a Parameter may declare.
var ParameterTypes = []string{"string", "number", "integer", "boolean", "array", "object"}

// Parameter describes one argument of a registered function.
type Parameter struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Type        string   `json:"type"`
	Required    bool     `json:"required"`
	Default     *string  `json:"default,omitempty"`
	Enum        []string `json:"enum,omitempty"`
}

// NewParameter builds a Parameter. Invalid names or types are logged, not
// rejected, and an empty type defaults to "string".
func NewParameter(name, description, typ string, required bool) Parameter {
	if !parameterNamePattern.MatchString(name) {
		slog.Error("invalid parameter name", "name", name)
	}
	if typ == "" {
		typ = "string"
	}
	if !isParameterType(typ) {
		slog.Error("invalid parameter type", "name", name, "type", typ)
	}
	return Parameter{
		Name:        strings.TrimPrefix(name, "$"),
		Description: description,
		Type:        typ,
		Required:    required,
	}
}

func isParameterType(typ string) bool {
	for _, t := range ParameterTypes {
		if t == typ {
			return true
		}
	}
	return false
}

// Function is a callable registered on a query and exposed to the model.
type Function struct {
	Name        string      `json:"name"`
	Description string      `json:"description"`
	Parameters  []Parameter `json:"parameters,omitempty"`
	Type        string      `json:"type"`
	ID          string      `json:"id,omitempty"`
	Target      string      `json:"target"`
}

// FunctionOption customizes a Function built by NewFunction.
type FunctionOption func(*Function)

// WithFunctionType sets the function type (e.g. "code-engine").
func WithFunctionType(typ string) FunctionOption {
	return func(f *Function) { f.Type = typ }
}

// WithFunctionID sets the function ID.
func WithFunctionID(id string) FunctionOption {
	return func(f *Function) { f.ID = id }
}

// WithTarget sets where the function executes ("server", "client" or "js").
func WithTarget(target string) FunctionOption {
	return func(f *Function) { f.Target = target }
}

// NewFunction validates the name against [a-zA-Z0-9_-]{1,64} and returns an
// InvalidDescriptor error when it does not match.
func NewFunction(name, description string, params []Parameter, opts ...FunctionOption) (*Function, error) {
	if !functionNamePattern.MatchString(name) {
		return nil, NewInvalidDescriptorError(name, fmt.Sprintf("invalid function name %q", name))
	}
	f := &Function{
		Name:        name,
		Description: description,
		Parameters:  params,
	}
	for _, opt := range opts {
		opt(f)
	}
	if f.Type == "" {
		f.Type = "manual"
	}
	if f.Target == "" {
		f.Target = TargetServer
	}
	return f, nil
}

// FunctionFromJSON builds a Function from its decoded JSON description:
// {name, description, type, id|snippetId, target, args:[{name, description, type, required}]}.
func FunctionFromJSON(m map[string]any) (*Function, error) {
	name, _ := m["name"].(string)
	desc, _ := m["description"].(string)
	typ, _ := m["type"].(string)
	id, _ := m["id"].(string)
	if id == "" {
		id, _ = m["snippetId"].(string)
	}
	target, _ := m["target"].(string)

	var params []Parameter
	if args, ok := m["args"].([]any); ok {
		for _, a := range args {
			am, ok := a.(map[string]any)
			if !ok {
				continue
			}
			pname, _ := am["name"].(string)
			pdesc, _ := am["description"].(string)
			ptype, _ := am["type"].(string)
			preq, _ := am["required"].(bool)
			params = append(params, NewParameter(pname, pdesc, ptype, preq))
		}
	}

	return NewFunction(name, desc, params,
		WithFunctionType(typ), WithFunctionID(id), WithTarget(target))
}

// IsClientSide reports whether the function runs in the client.
func (f *Function) IsClientSide() bool {
	return f.Target == TargetJS || f.Target == TargetClient
}

// Schema returns the JSON schema describing the function parameters.
func (f *Function) Schema() map[string]any {
	properties := map[string]any{}
	required := []string{}
	for _, p := range f.Parameters {
		prop := map[string]any{
			"type":        p.Type,
			"description": p.Description,
		}
		if p.Type == "array" {
			prop["items"] = map[string]any{"type": "string"}
		}
		if len(p.Enum) > 0 {
			prop["enum"] = p.Enum
		}
		properties[p.Name] = prop
		if p.Required {
			required = append(required, p.Name)
		}
	}
	return map[string]any{
		"type":       "object",
		"properties": properties,
		"required":   required,
	}
}

// ToolDefinition returns the Chat Completions tool entry for the function.
func (f *Function) ToolDefinition() map[string]any {
	fn := map[string]any{
		"name":        f.Name,
		"description": f.Description,
	}
	if len(f.Parameters) > 0 {
		fn["parameters"] = f.Schema()
	}
	return map[string]any{
		"type":     "function",
		"function": fn,
	}
}
