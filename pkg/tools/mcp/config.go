package mcp

import (
	"log/slog"

	"github.com/brubru/aiengine/pkg/config"
	"github.com/brubru/aiengine/pkg/query"
)

// ServerConfig describes a single MCP server connection.
type ServerConfig struct {
	// Name identifies the server in logs and events.
	Name string `json:"name"`

	// Transport is "sse" or "streamable-http". Empty means
	// streamable-http.
	Transport string `json:"transport"`

	URL string `json:"url"`

	// Headers are added to every HTTP request, typically credentials.
	Headers map[string]string `json:"headers,omitempty"`
}

// FromConfig converts a configured server.
func FromConfig(c config.MCPServerConfig) ServerConfig {
	return ServerConfig{
		Name:      c.Name,
		Transport: c.Transport,
		URL:       c.URL,
		Headers:   c.Headers,
	}
}

// Select resolves the servers a query references. A reference matches a
// configured server by ID or name; an unmatched reference with a URL is
// used as is, over streamable-http and without headers. Unresolvable
// references are logged and skipped. Each server appears once.
func Select(refs []query.MCPServer, configured []config.MCPServerConfig) []ServerConfig {
	byName := make(map[string]config.MCPServerConfig, len(configured))
	for _, c := range configured {
		byName[c.Name] = c
	}

	seen := make(map[string]bool)
	var out []ServerConfig
	for _, ref := range refs {
		var sc ServerConfig
		switch {
		case ref.ID != "" && hasKey(byName, ref.ID):
			sc = FromConfig(byName[ref.ID])
		case ref.Name != "" && hasKey(byName, ref.Name):
			sc = FromConfig(byName[ref.Name])
		case ref.URL != "":
			name := ref.Name
			if name == "" {
				name = ref.ID
			}
			if name == "" {
				name = ref.URL
			}
			sc = ServerConfig{Name: name, URL: ref.URL}
		default:
			slog.Warn("unknown MCP server reference", "id", ref.ID, "name", ref.Name)
			continue
		}
		if seen[sc.Name] {
			continue
		}
		seen[sc.Name] = true
		out = append(out, sc)
	}
	return out
}

func hasKey(m map[string]config.MCPServerConfig, k string) bool {
	_, ok := m[k]
	return ok
}
