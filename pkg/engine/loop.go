package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"sort"
	"strings"

	"github.com/brubru/aiengine/pkg/api"
	"github.com/brubru/aiengine/pkg/event"
	"github.com/brubru/aiengine/pkg/observability"
	"github.com/brubru/aiengine/pkg/query"
	"github.com/brubru/aiengine/pkg/reply"
	"github.com/brubru/aiengine/pkg/tools"
	"github.com/brubru/aiengine/pkg/tools/mcp"
	"github.com/brubru/aiengine/pkg/tools/registry"
)

// Outcome is the result of a feedback loop run.
type Outcome struct {
	// Reply is the reply of the last turn. When State is
	// awaiting_feedback its pending calls are for the caller.
	Reply *reply.Reply
	State api.LoopState

	// Turns counts the feedback turns that were sent.
	Turns int
}

// RunWithFeedback runs q and answers the function calls of each reply
// until the model produces a final answer.
//
// Calls are executed by the local functions and the MCP servers the query
// references. Execution failures become failed results sent back to the
// model; they never abort the loop. The loop stops and hands the reply to
// the caller with state awaiting_feedback when a reply carries client
// actions, a call nothing can execute, or when the maximum depth is
// reached. Repeating the exact call set of the previous turn aborts with a
// loop_detected error.
func (e *Engine) RunWithFeedback(ctx context.Context, q *query.Query, sink event.Sink) (*Outcome, error) {
	sink = observe(sink)
	out, err := e.runWithFeedback(ctx, q, sink)
	if err != nil {
		fail(ctx, sink, err)
		return nil, err
	}
	finish(ctx, sink, out.Reply)
	return out, nil
}

func (e *Engine) runWithFeedback(ctx context.Context, q *query.Query, sink event.Sink) (*Outcome, error) {
	reg, err := e.toolRegistry(ctx, q, sink)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := reg.Close(); err != nil {
			slog.Warn("failed to close tool executors", "error", err)
		}
	}()

	maxDepth := e.maxFeedbackDepth()
	state := api.LoopStateInitial
	current := q
	var previous string

	for depth := 0; ; depth++ {
		r, err := e.execute(ctx, current, sink)
		if err != nil {
			observability.FeedbackTurnsTotal.WithLabelValues("error").Inc()
			return nil, err
		}

		next := api.NextLoopState(r.HasPending())
		if apiErr := api.ValidateLoopTransition(state, next); apiErr != nil {
			return nil, apiErr
		}
		state = next
		out := &Outcome{Reply: r, State: state, Turns: depth}

		if state == api.LoopStateTerminal {
			observability.FeedbackTurnsTotal.WithLabelValues("completed").Inc()
			return out, nil
		}
		if len(r.NeedClientActions) > 0 {
			observability.FeedbackTurnsTotal.WithLabelValues("client_action").Inc()
			return out, nil
		}
		part := tools.Partition(r.NeedFeedbacks, reg.CanExecute)
		if len(part.Unhandled) > 0 {
			observability.FeedbackTurnsTotal.WithLabelValues("unhandled").Inc()
			return out, nil
		}
		if depth >= maxDepth {
			slog.Warn("feedback depth exhausted, returning pending calls",
				"depth", depth, "max", maxDepth, "calls", len(part.Executable))
			observability.FeedbackTurnsTotal.WithLabelValues("max_depth").Inc()
			return out, nil
		}

		sig := callSignature(part.Executable)
		if previous != "" && sig == previous {
			observability.FeedbackTurnsTotal.WithLabelValues("loop_detected").Inc()
			return nil, api.NewLoopDetectedError(fmt.Sprintf(
				"the model repeated the same function calls (%s) at feedback depth %d", callNames(part.Executable), depth+1))
		}
		previous = sig

		if apiErr := api.ValidateLoopTransition(state, api.LoopStateContinuing); apiErr != nil {
			return nil, apiErr
		}
		state = api.LoopStateContinuing

		current, err = e.answer(ctx, reg, current, r, part.Executable, sink)
		if err != nil {
			return nil, err
		}
		observability.FeedbackTurnsTotal.WithLabelValues("continued").Inc()
	}
}

// toolRegistry assembles the executors of one run: the local functions and,
// when the query references MCP servers, an MCP executor whose tools are
// added to the query functions.
func (e *Engine) toolRegistry(ctx context.Context, q *query.Query, sink event.Sink) (*registry.Registry, error) {
	reg := registry.New()
	if e.functions != nil {
		reg.Register(e.functions)
	}
	if len(q.MCPServers) == 0 {
		return reg, nil
	}

	servers := mcp.Select(q.MCPServers, e.mcpServers)
	ex, err := mcp.Dial(ctx, servers)
	if err != nil {
		slog.Warn("some MCP servers are unavailable", "error", err)
	}
	reg.Register(ex)

	fns, err := ex.Functions(ctx)
	if err != nil {
		slog.Warn("MCP tool discovery incomplete", "error", err)
	}
	for _, fn := range fns {
		if q.FindFunction(fn.Name) == nil {
			q.AddFunction(fn)
		}
	}
	if err := push(ctx, sink, event.MCPDiscovery(ex.Servers(), len(fns))); err != nil {
		reg.Close()
		return nil, err
	}
	return reg, nil
}

// answer executes calls and builds the feedback query carrying the
// results.
func (e *Engine) answer(ctx context.Context, reg *registry.Registry, current *query.Query, r *reply.Reply, calls []api.ToolCall, sink event.Sink) (*query.Query, error) {
	for _, c := range calls {
		ev := event.FunctionCalling(c.Name, c.Arguments)
		if kind, _ := reg.KindOf(c.Name); kind == tools.KindMCP {
			ev = event.MCPCalling(c.Name, c.ToolID, c.Arguments)
		}
		if err := push(ctx, sink, ev); err != nil {
			return nil, err
		}
	}

	results := reg.ExecuteAll(ctx, calls)

	for i, res := range results {
		ev := event.FunctionResult(res.Name)
		if kind, _ := reg.KindOf(calls[i].Name); kind == tools.KindMCP {
			ev = event.MCPResult(res.Name, calls[i].ToolID)
		}
		if err := push(ctx, sink, ev); err != nil {
			return nil, err
		}
	}

	// The history of the next turn holds this turn's input, so a stateless
	// replay still sees the user message and earlier results.
	base := *current
	base.Messages = append(slices.Clone(current.Messages), turnMessages(current, current.Messages)...)

	blocks := groupBlocks(calls, results)
	fb := query.NewFeedback(r.ID, blocks[0].RawMessage, &base)
	inherit(fb, current)
	for _, b := range blocks {
		fb.AddBlock(b)
	}
	return fb, nil
}

// inherit copies the settings NewFeedback does not carry over.
func inherit(fb, from *query.Query) {
	fb.Context = from.Context
	fb.APIKey = from.APIKey
	fb.Tools = from.Tools
	fb.MCPServers = from.MCPServers
	fb.MaxMessages = from.MaxMessages
	fb.ExtraParams = maps.Clone(from.ExtraParams)
	if from.Text != nil && fb.Text != nil {
		*fb.Text = *from.Text
	}
}

// groupBlocks groups calls, with their results, by the assistant message
// that requested them.
func groupBlocks(calls []api.ToolCall, results []api.FunctionResult) []query.Block {
	var blocks []query.Block
	index := make(map[string]int)
	for i, c := range calls {
		key := ""
		if c.RawMessage != nil && len(c.RawMessage.ToolCalls) > 0 {
			key = c.RawMessage.ToolCalls[0].ID
		}
		j, ok := index[key]
		if !ok {
			j = len(blocks)
			index[key] = j
			blocks = append(blocks, query.Block{RawMessage: c.RawMessage})
		}
		blocks[j].Calls = append(blocks[j].Calls, c)
		blocks[j].Results = append(blocks[j].Results, results[i])
	}
	return blocks
}

// callSignature identifies a call set independently of call IDs and order.
func callSignature(calls []api.ToolCall) string {
	parts := make([]string, 0, len(calls))
	for _, c := range calls {
		args, _ := json.Marshal(c.Arguments)
		parts = append(parts, c.Name+":"+string(args))
	}
	sort.Strings(parts)
	return strings.Join(parts, "\n")
}

func callNames(calls []api.ToolCall) string {
	names := make([]string, 0, len(calls))
	for _, c := range calls {
		names = append(names, c.Name)
	}
	return strings.Join(names, ", ")
}
