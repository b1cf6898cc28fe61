package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"strings"
	"sync"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/brubru/aiengine/pkg/api"
	"github.com/brubru/aiengine/pkg/debug"
)

// FunctionType is the api.Function type of discovered MCP tools.
const FunctionType = "mcp"

// Client wraps an MCP SDK client session with a single server.
type Client struct {
	cfg     ServerConfig
	client  *mcp.Client
	session *mcp.ClientSession

	mu            sync.Mutex
	cachedTools   []*api.Function
	toolsResolved bool
}

// NewClient creates a client for cfg. Call Connect to establish the
// session.
func NewClient(cfg ServerConfig) *Client {
	return &Client{cfg: cfg}
}

// Name returns the configured server name.
func (c *Client) Name() string { return c.cfg.Name }

// Connect performs the protocol handshake over a transport built from
// the server configuration.
func (c *Client) Connect(ctx context.Context) error {
	return c.ConnectWithTransport(ctx, nil)
}

// ConnectWithTransport performs the handshake over transport. A nil
// transport is built from the server configuration.
func (c *Client) ConnectWithTransport(ctx context.Context, transport mcp.Transport) error {
	c.client = mcp.NewClient(
		&mcp.Implementation{
			Name:    "aiengine",
			Version: "1.0.0",
		},
		&mcp.ClientOptions{
			Capabilities: &mcp.ClientCapabilities{},
		},
	)

	if transport == nil {
		t, err := c.createTransport()
		if err != nil {
			return fmt.Errorf("creating transport for %q: %w", c.cfg.Name, err)
		}
		transport = t
	}

	session, err := c.client.Connect(ctx, transport, nil)
	if err != nil {
		return fmt.Errorf("connecting to MCP server %q: %w", c.cfg.Name, err)
	}
	c.session = session
	debug.Log(debug.CategoryMCP, "connected", "server", c.cfg.Name, "url", c.cfg.URL)
	return nil
}

func (c *Client) createTransport() (mcp.Transport, error) {
	if c.cfg.URL == "" {
		return nil, errors.New("missing server URL")
	}
	httpClient := c.buildHTTPClient()

	switch c.cfg.Transport {
	case "sse":
		transport := &mcp.SSEClientTransport{Endpoint: c.cfg.URL}
		if httpClient != nil {
			transport.HTTPClient = httpClient
		}
		return transport, nil

	case "streamable-http", "":
		transport := &mcp.StreamableClientTransport{Endpoint: c.cfg.URL}
		if httpClient != nil {
			transport.HTTPClient = httpClient
		}
		return transport, nil

	default:
		return nil, fmt.Errorf("unsupported transport type %q", c.cfg.Transport)
	}
}

// buildHTTPClient returns nil when no header is configured.
func (c *Client) buildHTTPClient() *http.Client {
	if len(c.cfg.Headers) == 0 {
		return nil
	}
	return &http.Client{
		Transport: &headerTransport{base: http.DefaultTransport, headers: c.cfg.Headers},
	}
}

// headerTransport adds static headers to every request.
type headerTransport struct {
	base    http.RoundTripper
	headers map[string]string
}

func (t *headerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req = req.Clone(req.Context())
	for k, v := range t.headers {
		req.Header.Set(k, v)
	}
	return t.base.RoundTrip(req)
}

// DiscoverTools lists the server tools as functions. The result is cached
// for the lifetime of the client. Tools whose name is not a valid function
// name are skipped.
func (c *Client) DiscoverTools(ctx context.Context) ([]*api.Function, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.toolsResolved {
		return c.cachedTools, nil
	}
	if c.session == nil {
		return nil, fmt.Errorf("MCP client %q not connected", c.cfg.Name)
	}

	var fns []*api.Function
	for tool, err := range c.session.Tools(ctx, nil) {
		if err != nil {
			return nil, fmt.Errorf("listing tools from %q: %w", c.cfg.Name, err)
		}
		fn, convErr := convertTool(tool)
		if convErr != nil {
			slog.Warn("skipping MCP tool", "server", c.cfg.Name, "tool", tool.Name, "error", convErr)
			continue
		}
		fns = append(fns, fn)
	}

	c.cachedTools = fns
	c.toolsResolved = true
	return fns, nil
}

// CallTool executes a tool and returns its text output. A result flagged
// as an error by the server is returned as an error carrying that text.
func (c *Client) CallTool(ctx context.Context, name string, args map[string]any) (string, error) {
	if c.session == nil {
		return "", fmt.Errorf("MCP client %q not connected", c.cfg.Name)
	}

	debug.Log(debug.CategoryMCP, "calling tool", "server", c.cfg.Name, "tool", name)
	result, err := c.session.CallTool(ctx, &mcp.CallToolParams{
		Name:      name,
		Arguments: args,
	})
	if err != nil {
		return "", fmt.Errorf("MCP tool call error: %w", err)
	}

	output := resultText(result)
	if result.IsError {
		if output == "" {
			output = fmt.Sprintf("tool %q failed", name)
		}
		return "", errors.New(output)
	}
	return output, nil
}

// Close closes the session.
func (c *Client) Close() error {
	if c.session != nil {
		return c.session.Close()
	}
	return nil
}

// inputSchema is the part of a tool's JSON schema mapped to parameters.
type inputSchema struct {
	Properties map[string]struct {
		Type        any    `json:"type"`
		Description string `json:"description"`
		Enum        []any  `json:"enum"`
	} `json:"properties"`
	Required []string `json:"required"`
}

// convertTool maps an MCP tool onto a server-side function. Parameters
// are sorted by name; a property with several types keeps the first
// non-null one.
func convertTool(t *mcp.Tool) (*api.Function, error) {
	var schema inputSchema
	if t.InputSchema != nil {
		data, err := json.Marshal(t.InputSchema)
		if err != nil {
			return nil, fmt.Errorf("marshaling input schema: %w", err)
		}
		if err := json.Unmarshal(data, &schema); err != nil {
			return nil, fmt.Errorf("decoding input schema: %w", err)
		}
	}

	required := make(map[string]bool, len(schema.Required))
	for _, r := range schema.Required {
		required[r] = true
	}

	names := make([]string, 0, len(schema.Properties))
	for name := range schema.Properties {
		names = append(names, name)
	}
	sort.Strings(names)

	params := make([]api.Parameter, 0, len(names))
	for _, name := range names {
		prop := schema.Properties[name]
		p := api.NewParameter(name, prop.Description, schemaType(prop.Type), required[name])
		for _, e := range prop.Enum {
			p.Enum = append(p.Enum, fmt.Sprint(e))
		}
		params = append(params, p)
	}

	return api.NewFunction(t.Name, t.Description, params,
		api.WithFunctionType(FunctionType), api.WithTarget(api.TargetServer))
}

func schemaType(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case []any:
		for _, e := range t {
			if s, ok := e.(string); ok && s != "null" {
				return s
			}
		}
	}
	return "string"
}

// resultText joins the text content of a result.
func resultText(result *mcp.CallToolResult) string {
	var parts []string
	for _, content := range result.Content {
		if tc, ok := content.(*mcp.TextContent); ok {
			parts = append(parts, tc.Text)
		}
	}
	return strings.Join(parts, "\n")
}
