package provider

import (
	"encoding/json"
	"log/slog"

	"github.com/brubru/aiengine/pkg/api"
)

// BuiltinToolTypes maps the tool names a query may enable to the built-in
// tool type understood by the Responses API.
var BuiltinToolTypes = map[string]string{
	"web_search":       "web_search_preview",
	"image_generation": "image_generation",
	"code_interpreter": "code_interpreter",
	"file_search":      "file_search",
}

// FunctionTools converts registered functions into tool definitions.
func FunctionTools(fns []*api.Function) []Tool {
	tools := make([]Tool, 0, len(fns))
	for _, f := range fns {
		if f == nil {
			continue
		}
		params, err := json.Marshal(f.Schema())
		if err != nil {
			slog.Warn("skipping function with unencodable schema", "function", f.Name, "error", err)
			continue
		}
		tools = append(tools, Tool{
			Type: "function",
			Function: &FunctionDef{
				Name:        f.Name,
				Description: f.Description,
				Parameters:  params,
			},
		})
	}
	return tools
}

// BuiltinTools expands tool names into built-in tool stubs. Names without a
// built-in equivalent are dropped with a warning.
func BuiltinTools(names []string) []Tool {
	var tools []Tool
	for _, name := range names {
		typ, ok := BuiltinToolTypes[name]
		if !ok {
			slog.Warn("unknown built-in tool requested", "tool", name)
			continue
		}
		tools = append(tools, Tool{Type: typ})
	}
	return tools
}

// FunctionToolsOnly filters out built-in stubs, for backends that only
// accept function tools.
func FunctionToolsOnly(tools []Tool) []Tool {
	out := make([]Tool, 0, len(tools))
	for _, t := range tools {
		if t.Function == nil {
			slog.Warn("built-in tool not supported by this protocol, dropping", "type", t.Type)
			continue
		}
		out = append(out, t)
	}
	return out
}
