// Package mcp connects to Model Context Protocol servers, discovers their
// tools and executes the calls a model makes to them.
//
// The package wraps the official MCP Go SDK
// (github.com/modelcontextprotocol/go-sdk). Discovered tools are exposed
// as api.Function values with a server target, so they are offered to the
// model like any other registered function, and the Executor implements
// tools.Executor so the feedback loop can run them.
//
// Servers are configured with ServerConfig: a name, a transport (SSE or
// streamable-http), a URL and optional static headers.
package mcp
