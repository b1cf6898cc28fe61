package openaicompat

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"sort"
	"strings"

	"github.com/brubru/aiengine/pkg/api"
	"github.com/brubru/aiengine/pkg/provider"
)

// ToolCallBuffer tracks incremental tool call argument assembly across
// multiple SSE chunks for a single tool call index.
type ToolCallBuffer struct {
	ID   string
	Name string
	Args strings.Builder
}

// ParseSSEStream reads Chat Completions SSE chunks from the given reader,
// translates each chunk to provider events, and sends them on ch.
// The channel is NOT closed by this function; the caller is responsible
// for closing it.
//
// SSE format expected:
//
//	data: {"id":"...","choices":[...]}\n
//	\n
//	data: [DONE]\n
//	\n
//
// Error payloads embedded in the stream end it with an EventError.
// Malformed chunks are logged and skipped.
func ParseSSEStream(ctx context.Context, body io.Reader, ch chan<- provider.Event) {
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	toolCalls := make(map[int]*ToolCallBuffer)
	var usage *api.Usage
	done := false

	send := func(ev provider.Event) bool {
		select {
		case ch <- ev:
			return true
		case <-ctx.Done():
			return false
		}
	}

	finish := func() {
		if done {
			return
		}
		done = true
		if !flushToolCalls(toolCalls, send) {
			return
		}
		send(provider.Event{Type: provider.EventDone, Usage: usage})
	}

	for scanner.Scan() {
		if ctx.Err() != nil {
			return
		}

		line := scanner.Text()
		if !strings.HasPrefix(line, "data:") {
			// Some backends send a bare JSON error body instead of SSE lines.
			if err := provider.CheckStreamError(line); err != nil {
				send(provider.Event{Type: provider.EventError, Err: err})
				return
			}
			continue
		}

		payload := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if payload == "[DONE]" {
			finish()
			return
		}

		if err := provider.CheckStreamError(payload); err != nil {
			send(provider.Event{Type: provider.EventError, Err: err})
			return
		}

		var chunk ChatCompletionChunk
		if err := json.Unmarshal([]byte(payload), &chunk); err != nil {
			slog.Warn("skipping malformed SSE chunk",
				"error", err.Error(),
				"data", Truncate(payload, 200),
			)
			continue
		}

		if chunk.Usage != nil {
			u, _ := translateUsage(chunk.Usage)
			usage = &u
		}

		for _, ev := range TranslateChunk(&chunk, toolCalls) {
			if !send(ev) {
				return
			}
		}
	}

	if err := scanner.Err(); err != nil {
		if ctx.Err() != nil {
			return
		}
		send(provider.Event{
			Type: provider.EventError,
			Err:  api.NewProviderError(CodeConnection, "SSE stream read error: "+err.Error(), err),
		})
		return
	}

	// Stream ended without [DONE]; treat EOF as completion.
	finish()
}

// TranslateChunk converts a single ChatCompletionChunk into provider events.
// The toolCalls map tracks incremental tool call argument assembly across
// chunks. Only the first choice is streamed.
func TranslateChunk(chunk *ChatCompletionChunk, toolCalls map[int]*ToolCallBuffer) []provider.Event {
	if len(chunk.Choices) == 0 {
		return nil
	}

	var events []provider.Event
	delta := chunk.Choices[0].Delta

	for _, tc := range delta.ToolCalls {
		buf, exists := toolCalls[tc.Index]
		if !exists {
			buf = &ToolCallBuffer{ID: tc.ID, Name: tc.Function.Name}
			toolCalls[tc.Index] = buf
		}
		if buf.ID == "" && tc.ID != "" {
			buf.ID = tc.ID
		}
		if buf.Name == "" && tc.Function.Name != "" {
			buf.Name = tc.Function.Name
		}
		buf.Args.WriteString(tc.Function.Arguments)

		events = append(events, provider.Event{
			Type:          provider.EventToolCallDelta,
			ToolCallIndex: tc.Index,
			ToolCallID:    buf.ID,
			FunctionName:  buf.Name,
			Delta:         tc.Function.Arguments,
		})
	}

	// Reasoning content (e.g., DeepSeek R1) may share a chunk with text.
	if delta.ReasoningContent != nil && *delta.ReasoningContent != "" {
		events = append(events, provider.Event{
			Type:  provider.EventReasoningDelta,
			Delta: *delta.ReasoningContent,
		})
	}

	if delta.Content != nil && *delta.Content != "" {
		events = append(events, provider.Event{
			Type:  provider.EventTextDelta,
			Delta: *delta.Content,
		})
	}

	return events
}

// flushToolCalls emits EventToolCallDone for each buffered tool call in
// index order and clears the buffer.
func flushToolCalls(toolCalls map[int]*ToolCallBuffer, send func(provider.Event) bool) bool {
	indexes := make([]int, 0, len(toolCalls))
	for idx := range toolCalls {
		indexes = append(indexes, idx)
	}
	sort.Ints(indexes)

	for _, idx := range indexes {
		buf := toolCalls[idx]
		ok := send(provider.Event{
			Type:          provider.EventToolCallDone,
			ToolCallIndex: idx,
			ToolCallID:    buf.ID,
			FunctionName:  buf.Name,
			Delta:         buf.Args.String(),
		})
		if !ok {
			return false
		}
	}
	for k := range toolCalls {
		delete(toolCalls, k)
	}
	return true
}

// Truncate limits a string to maxLen characters for log output.
func Truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
