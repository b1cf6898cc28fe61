package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/brubru/aiengine/pkg/query"
	"github.com/brubru/aiengine/pkg/reply"
	"github.com/brubru/aiengine/pkg/transport"
)

// QueryConfig holds the flags of the query command
type QueryConfig struct {
	Kind     string
	EnvID    string
	Model    string
	BotID    string
	ChatID   string
	Scope    string
	Params   []string
	Stream   bool
	Feedback bool
}

// NewQueryCmd creates the query command
func NewQueryCmd(flags *globalFlags) *cobra.Command {
	cfg := &QueryConfig{}

	cmd := &cobra.Command{
		Use:   "query [message]",
		Short: "Run one query",
		Long: `Run one query and print the reply as JSON.

With --stream the reply is printed as Server-Sent Events while the backend
produces it. With --feedback function calls are answered by the configured
MCP servers until the model gives a final answer.

Parameters are passed as key=value pairs. Values that parse as JSON are
used as such, anything else is a string.

Examples:
  aiengine query "What is the capital of France?"
  aiengine query --stream --env openai --model gpt-4o "Write a haiku"
  aiengine query --chat-id c1 --param history_strategy=stateful "And Germany?"
  aiengine query --kind image --param size=1024x1024 "A lighthouse at dusk"
  aiengine query --feedback --param 'mcp_servers=[{"name":"tools"}]' "What time is it?"`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context(), flags.ConfigFile)
			if err != nil {
				return err
			}
			defer a.Close()

			req, err := cfg.request(args[0])
			if err != nil {
				return err
			}
			return runQuery(cmd.Context(), a.engine, req, cmd.OutOrStdout())
		},
	}

	cmd.Flags().StringVar(&cfg.Kind, "kind", string(query.KindText), "Query kind ("+strings.Join(query.Kinds(), ", ")+")")
	cmd.Flags().StringVar(&cfg.EnvID, "env", "", "Environment ID (default: the configured default)")
	cmd.Flags().StringVar(&cfg.Model, "model", "", "Model name (default: the configured default)")
	cmd.Flags().StringVar(&cfg.BotID, "bot-id", "", "Bot ID of the discussion")
	cmd.Flags().StringVar(&cfg.ChatID, "chat-id", "", "Chat ID of the discussion")
	cmd.Flags().StringVar(&cfg.Scope, "scope", "", "Storage scope of the discussion")
	cmd.Flags().StringArrayVarP(&cfg.Params, "param", "p", nil, "Query parameter as key=value (repeatable)")
	cmd.Flags().BoolVar(&cfg.Stream, "stream", false, "Print the reply as an SSE event stream")
	cmd.Flags().BoolVar(&cfg.Feedback, "feedback", false, "Answer function calls until a final reply")

	return cmd
}

// request builds the transport request of message from the flags.
func (c *QueryConfig) request(message string) (*transport.Request, error) {
	params, err := parseParams(c.Params)
	if err != nil {
		return nil, err
	}
	for k, v := range map[string]string{
		"envId":  c.EnvID,
		"model":  c.Model,
		"botId":  c.BotID,
		"chatId": c.ChatID,
		"scope":  c.Scope,
	} {
		if v != "" {
			params[k] = v
		}
	}
	return &transport.Request{
		Kind:     query.Kind(c.Kind),
		Message:  message,
		Params:   params,
		Stream:   c.Stream,
		Feedback: c.Feedback,
	}, nil
}

// parseParams turns key=value pairs into query parameters.
func parseParams(pairs []string) (map[string]any, error) {
	params := make(map[string]any, len(pairs))
	for _, pair := range pairs {
		key, raw, ok := strings.Cut(pair, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid parameter %q, expected key=value", pair)
		}
		var v any
		if err := json.Unmarshal([]byte(raw), &v); err != nil {
			v = raw
		}
		params[key] = v
	}
	return params, nil
}

func runQuery(ctx context.Context, h transport.QueryHandler, req *transport.Request, out io.Writer) error {
	return h.HandleQuery(ctx, req, newStdoutWriter(out))
}

// stdoutWriter prints a streaming response as SSE frames and a complete
// reply as indented JSON.
type stdoutWriter struct {
	*transport.SSEWriter
	out io.Writer
}

func newStdoutWriter(out io.Writer) *stdoutWriter {
	return &stdoutWriter{SSEWriter: transport.NewSSEWriter(out, nil), out: out}
}

func (w *stdoutWriter) WriteReply(_ context.Context, r *reply.Reply) error {
	enc := json.NewEncoder(w.out)
	enc.SetIndent("", "  ")
	return enc.Encode(r)
}
