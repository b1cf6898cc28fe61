// Package event defines the units of streamed progress pushed to a caller
// while a turn executes, and the sinks that receive them.
package event

import (
	"encoding/json"
	"fmt"
	"maps"
	"time"
)

// Type is the primary discriminator of an event.
type Type string

const (
	TypeLive  Type = "live"
	TypeError Type = "error"
	TypeEnd   Type = "end"
)

// Subtype refines a live event.
type Subtype string

const (
	SubtypeContent       Subtype = "content"
	SubtypeThinking      Subtype = "thinking"
	SubtypeCode          Subtype = "code"
	SubtypeToolCall      Subtype = "tool_call"
	SubtypeToolArgs      Subtype = "tool_args"
	SubtypeToolResult    Subtype = "tool_result"
	SubtypeMCPDiscovery  Subtype = "mcp_discovery"
	SubtypeMCPToolCall   Subtype = "mcp_tool_call"
	SubtypeMCPToolResult Subtype = "mcp_tool_result"
	SubtypeWebSearch     Subtype = "web_search"
	SubtypeFileSearch    Subtype = "file_search"
	SubtypeImageGen      Subtype = "image_gen"
	SubtypeEmbeddings    Subtype = "embeddings"
	SubtypeDebug         Subtype = "debug"
	SubtypeStatus        Subtype = "status"
	SubtypeError         Subtype = "error"
	SubtypeWarning       Subtype = "warning"
	SubtypeTranscript    Subtype = "transcript"
	SubtypeStart         Subtype = "start"
	SubtypeEnd           Subtype = "end"
	SubtypeHeartbeat     Subtype = "heartbeat"
)

// Visibility tells the client how to render a live event.
type Visibility string

const (
	VisibilityVisible   Visibility = "visible"
	VisibilityHidden    Visibility = "hidden"
	VisibilityCollapsed Visibility = "collapsed"
)

// VisibilityOf returns the rendering of a subtype.
func VisibilityOf(s Subtype) Visibility {
	switch s {
	case SubtypeToolArgs, SubtypeDebug, SubtypeHeartbeat:
		return VisibilityHidden
	case SubtypeThinking, SubtypeMCPDiscovery, SubtypeStatus:
		return VisibilityCollapsed
	default:
		return VisibilityVisible
	}
}

// now is replaced in tests.
var now = time.Now

// Event is one unit of streamed progress. Events are values; the With
// methods return modified copies and never touch the receiver.
type Event struct {
	typ        Type
	subtype    Subtype
	content    any
	metadata   map[string]any
	visibility Visibility
	timestamp  time.Time
}

// New returns an event of the given type. An empty subtype defaults to
// content, and visibility is derived from the subtype.
func New(typ Type, subtype Subtype, content any) Event {
	if subtype == "" {
		subtype = SubtypeContent
	}
	return Event{
		typ:        typ,
		subtype:    subtype,
		content:    content,
		visibility: VisibilityOf(subtype),
		timestamp:  now(),
	}
}

func live(subtype Subtype, content string) Event {
	return New(TypeLive, subtype, content)
}

func (e Event) Type() Type { return e.typ }
func (e Event) Subtype() Subtype { return e.subtype }
func (e Event) Content() any { return e.content }
func (e Event) Visibility() Visibility { return e.visibility }
func (e Event) Timestamp() time.Time { return e.timestamp }
func (e Event) IsTerminal() bool { return e.typ == TypeError || e.typ == TypeEnd }
func (e Event) Metadata(key string) any { return e.metadata[key] }
func (e Event) AllMetadata() map[string]any { return maps.Clone(e.metadata) }

// Text returns the content when it is a string.
func (e Event) Text() string {
	s, _ := e.content.(string)
	return s
}

// WithMetadata returns a copy of e with key set.
func (e Event) WithMetadata(key string, value any) Event {
	md := make(map[string]any, len(e.metadata)+1)
	maps.Copy(md, e.metadata)
	md[key] = value
	e.metadata = md
	return e
}

// WithVisibility returns a copy of e rendered as v.
func (e Event) WithVisibility(v Visibility) Event {
	e.visibility = v
	return e
}

// withOptional sets key only when value is not its zero value.
func (e Event) withOptional(key string, value any) Event {
	switch v := value.(type) {
	case nil:
		return e
	case string:
		if v == "" {
			return e
		}
	case map[string]any:
		if len(v) == 0 {
			return e
		}
	}
	return e.WithMetadata(key, value)
}

// MarshalJSON renders the wire envelope. Non-live events carry only type,
// data and timestamp.
func (e Event) MarshalJSON() ([]byte, error) {
	ts := float64(e.timestamp.UnixMicro()) / 1e6
	if e.typ != TypeLive {
		return json.Marshal(struct {
			Type      Type    `json:"type"`
			Data      any     `json:"data"`
			Timestamp float64 `json:"timestamp"`
		}{e.typ, e.content, ts})
	}
	var md map[string]any
	if len(e.metadata) > 0 {
		md = e.metadata
	}
	return json.Marshal(struct {
		Type       Type           `json:"type"`
		Data       any            `json:"data"`
		Timestamp  float64        `json:"timestamp"`
		Subtype    Subtype        `json:"subtype"`
		Visibility Visibility     `json:"visibility"`
		Metadata   map[string]any `json:"metadata,omitempty"`
	}{e.typ, e.content, ts, e.subtype, e.visibility, md})
}

// ---------------------------------------------------------------------------
// Factories
// ---------------------------------------------------------------------------

// Content is a chunk of assistant output.
func Content(text string) Event { return live(SubtypeContent, text) }

// Thinking is a chunk of model reasoning.
func Thinking(text string) Event { return live(SubtypeThinking, text) }

// Code is a chunk of code interpreter output.
func Code(text string) Event { return live(SubtypeCode, text) }

// ToolCall announces a call to a tool. args is attached when present.
func ToolCall(name string, args map[string]any) Event {
	return live(SubtypeToolCall, "Calling function: "+name).
		WithMetadata("tool_name", name).
		withOptional("args", args)
}

// ToolArgs carries streamed tool-call arguments.
func ToolArgs(name, delta string) Event {
	return live(SubtypeToolArgs, delta).WithMetadata("tool_name", name)
}

// ToolResult carries the result of a tool.
func ToolResult(name string, result any) Event {
	return New(TypeLive, SubtypeToolResult, result).WithMetadata("tool_name", name)
}

// Status reports progress. details is attached when present.
func Status(status string, details any) Event {
	return live(SubtypeStatus, status).withOptional("details", details)
}

// Debug carries diagnostic information hidden from end users.
func Debug(msg string, data any) Event {
	return live(SubtypeDebug, msg).withOptional("debug_data", data)
}

// Warning reports a recoverable problem.
func Warning(msg string) Event { return live(SubtypeWarning, msg) }

// Transcript carries transcribed audio.
func Transcript(text string) Event { return live(SubtypeTranscript, text) }

// Heartbeat keeps an idle stream alive.
func Heartbeat() Event { return live(SubtypeHeartbeat, "") }

// Error terminates a stream with a failure message.
func Error(msg string) Event { return New(TypeError, SubtypeError, msg) }

// End terminates a stream successfully. data is typically the final reply.
func End(data any) Event { return New(TypeEnd, SubtypeEnd, data) }

func RequestSent() Event { return Status("Request sent...", nil) }
func GeneratingResponse() Event { return Status("Generating response...", nil) }
func ResponseCompleted() Event { return Status("Response completed.", nil) }
func StreamCompleted() Event { return Status("Stream completed.", nil) }

// RequestCompleted reports the total duration of a request.
func RequestCompleted(d time.Duration) Event {
	return Status(fmt.Sprintf("Request completed in %s.", FormatDuration(d)), nil)
}

// FormatDuration renders d as milliseconds below one second, else seconds
// with two decimals.
func FormatDuration(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	return fmt.Sprintf("%.2fs", d.Seconds())
}

// MCPDiscovery reports the MCP servers and tools made available to a turn.
func MCPDiscovery(servers, tools int) Event {
	return live(SubtypeMCPDiscovery, fmt.Sprintf("Got %d MCP server(s) and %d tool(s).", servers, tools)).
		WithMetadata("server_count", servers).
		WithMetadata("tool_count", tools)
}

// MCPCalling announces a call to an MCP tool.
func MCPCalling(name, toolID string, args map[string]any) Event {
	return live(SubtypeMCPToolCall, "Calling "+name+"...").
		WithMetadata("tool_name", name).
		WithMetadata("is_mcp", true).
		withOptional("tool_id", toolID).
		withOptional("arguments", args)
}

// MCPResult reports that an MCP tool returned.
func MCPResult(name, toolUseID string) Event {
	return live(SubtypeMCPToolResult, "Got result from "+name+".").
		WithMetadata("tool_name", name).
		WithMetadata("is_mcp", true).
		withOptional("tool_use_id", toolUseID)
}

// FunctionCalling announces a call to a registered function.
func FunctionCalling(name string, args map[string]any) Event {
	return live(SubtypeToolCall, "Calling "+name+"...").
		WithMetadata("tool_name", name).
		withOptional("arguments", args)
}

// FunctionResult reports that a registered function returned.
func FunctionResult(name string) Event {
	return live(SubtypeToolResult, "Got result from "+name+".").
		WithMetadata("tool_name", name)
}

// Embeddings reports an embeddings lookup. A zero count means the search is
// still running.
func Embeddings(count int, query, namespace string) Event {
	msg := "Searching embeddings..."
	if count > 0 {
		msg = fmt.Sprintf("Found %d relevant context(s) from embeddings.", count)
	}
	return live(SubtypeEmbeddings, msg).
		WithMetadata("count", count).
		withOptional("query", query).
		withOptional("namespace", namespace)
}
