package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/spf13/cobra"
)

// NewMCPServeCmd creates the mcp-serve command
func NewMCPServeCmd() *cobra.Command {
	var port int

	cmd := &cobra.Command{
		Use:   "mcp-serve",
		Short: "Run an MCP server with test tools",
		Long: `Run a Model Context Protocol server over streamable HTTP on /mcp.

It provides the "get_time" and "echo" tools and is meant for trying the
feedback loop against a local MCP server.

Examples:
  aiengine mcp-serve --port 8081
  aiengine query --feedback --param 'mcp_servers=[{"name":"local"}]' "What time is it?"`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return serveMCP(cmd.Context(), fmt.Sprintf(":%d", port))
		},
	}

	cmd.Flags().IntVar(&port, "port", 8081, "Listen port")

	return cmd
}

// echoInput is the argument of the echo tool.
type echoInput struct {
	Message string `json:"message" jsonschema:"the message to echo back"`
}

// newMCPServer builds the MCP server with its tools. now is the clock of
// the get_time tool.
func newMCPServer(now func() time.Time) *mcp.Server {
	server := mcp.NewServer(&mcp.Implementation{Name: "aiengine-tools", Version: "v1.0.0"}, nil)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "get_time",
		Description: "Returns the current UTC time",
	}, func(_ context.Context, _ *mcp.CallToolRequest, _ struct{}) (*mcp.CallToolResult, struct{}, error) {
		return textResult("Current time: " + now().UTC().Format(time.RFC3339)), struct{}{}, nil
	})

	mcp.AddTool(server, &mcp.Tool{
		Name:        "echo",
		Description: "Echoes the provided message back",
	}, func(_ context.Context, _ *mcp.CallToolRequest, in echoInput) (*mcp.CallToolResult, struct{}, error) {
		return textResult("Echo: " + in.Message), struct{}{}, nil
	})

	return server
}

func textResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{Content: []mcp.Content{&mcp.TextContent{Text: text}}}
}

// mcpHandler serves server on /mcp with a health endpoint.
func mcpHandler(server *mcp.Server) http.Handler {
	handler := mcp.NewStreamableHTTPHandler(func(r *http.Request) *mcp.Server {
		return server
	}, nil)

	mux := http.NewServeMux()
	mux.Handle("/mcp", handler)
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok\n"))
	})
	return mux
}

func serveMCP(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           mcpHandler(newMCPServer(time.Now)),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("MCP server starting", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}
