package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/brubru/aiengine/pkg/event"
	"github.com/brubru/aiengine/pkg/query"
	"github.com/brubru/aiengine/pkg/reply"
	"github.com/brubru/aiengine/pkg/transport"
)

func TestParseParams(t *testing.T) {
	tests := []struct {
		name    string
		pairs   []string
		want    map[string]any
		wantErr bool
	}{
		{name: "string", pairs: []string{"model=gpt-4o"}, want: map[string]any{"model": "gpt-4o"}},
		{name: "number", pairs: []string{"temperature=0.5"}, want: map[string]any{"temperature": 0.5}},
		{name: "bool", pairs: []string{"stream=true"}, want: map[string]any{"stream": true}},
		{name: "value with equals", pairs: []string{"system=a=b"}, want: map[string]any{"system": "a=b"}},
		{name: "empty value", pairs: []string{"system="}, want: map[string]any{"system": ""}},
		{name: "missing separator", pairs: []string{"model"}, wantErr: true},
		{name: "missing key", pairs: []string{"=x"}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseParams(tt.pairs)
			if tt.wantErr {
				if err == nil {
					t.Errorf("parseParams(%v) expected an error", tt.pairs)
				}
				return
			}
			if err != nil {
				t.Fatalf("parseParams(%v) error: %v", tt.pairs, err)
			}
			if len(got) != len(tt.want) {
				t.Fatalf("got %v, want %v", got, tt.want)
			}
			for k, v := range tt.want {
				if got[k] != v {
					t.Errorf("%s = %#v, want %#v", k, got[k], v)
				}
			}
		})
	}

	t.Run("json list", func(t *testing.T) {
		got, err := parseParams([]string{`mcp_servers=[{"name":"local"}]`})
		if err != nil {
			t.Fatal(err)
		}
		list, ok := got["mcp_servers"].([]any)
		if !ok || len(list) != 1 {
			t.Errorf("mcp_servers = %#v", got["mcp_servers"])
		}
	})
}

func TestQueryConfigRequest(t *testing.T) {
	cfg := &QueryConfig{
		Kind:     "text",
		Model:    "gpt-4o",
		ChatID:   "c1",
		Scope:    "team-a",
		Params:   []string{"temperature=0.2", "model=overridden"},
		Stream:   true,
		Feedback: true,
	}
	req, err := cfg.request("Hello")
	if err != nil {
		t.Fatalf("request() error: %v", err)
	}
	if req.Kind != query.KindText || req.Message != "Hello" || !req.Stream || !req.Feedback {
		t.Errorf("request = %+v", req)
	}
	if req.Params["model"] != "gpt-4o" {
		t.Errorf("model = %v, want the flag to win", req.Params["model"])
	}
	if req.Params["chatId"] != "c1" || req.Params["scope"] != "team-a" {
		t.Errorf("params = %v", req.Params)
	}
	if _, ok := req.Params["botId"]; ok {
		t.Error("unset flags must not become parameters")
	}

	q, err := req.Query()
	if err != nil {
		t.Fatalf("Query() error: %v", err)
	}
	if q.ChatID != "c1" || q.Scope != "team-a" || q.Model != "gpt-4o" {
		t.Errorf("query chat=%q scope=%q model=%q", q.ChatID, q.Scope, q.Model)
	}
}

func TestRunQuery(t *testing.T) {
	handler := transport.QueryHandlerFunc(func(ctx context.Context, req *transport.Request, w transport.ResponseWriter) error {
		if !req.Stream {
			return w.WriteReply(ctx, &reply.Reply{Result: "echo: " + req.Message})
		}
		if err := w.Push(ctx, event.Content("echo")); err != nil {
			return err
		}
		if err := w.Push(ctx, event.End(nil)); err != nil {
			return err
		}
		return w.Flush()
	})

	t.Run("reply", func(t *testing.T) {
		var out bytes.Buffer
		if err := runQuery(context.Background(), handler, &transport.Request{Message: "hi"}, &out); err != nil {
			t.Fatalf("runQuery() error: %v", err)
		}
		var got map[string]any
		if err := json.Unmarshal(out.Bytes(), &got); err != nil {
			t.Fatalf("output is not JSON: %v\n%s", err, out.String())
		}
		if got["result"] != "echo: hi" {
			t.Errorf("result = %v", got["result"])
		}
	})

	t.Run("stream", func(t *testing.T) {
		var out bytes.Buffer
		if err := runQuery(context.Background(), handler, &transport.Request{Message: "hi", Stream: true}, &out); err != nil {
			t.Fatalf("runQuery() error: %v", err)
		}
		frames := strings.Split(strings.TrimSpace(out.String()), "\n\n")
		if len(frames) != 2 {
			t.Fatalf("frames = %d, want 2:\n%s", len(frames), out.String())
		}
		for _, f := range frames {
			if !strings.HasPrefix(f, "data: ") {
				t.Errorf("frame %q lacks the data prefix", f)
			}
		}
	})
}

func TestQueryCmd(t *testing.T) {
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			t.Errorf("path = %s", r.URL.Path)
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"id":"chatcmpl-1","model":"m1","choices":[{"index":0,"message":{"role":"assistant","content":"Paris"},"finish_reason":"stop"}],"usage":{"prompt_tokens":5,"completion_tokens":1,"total_tokens":6}}`)
	}))
	defer backend.Close()

	path := writeConfig(t, `
environments:
  - id: local
    type: custom
    endpoint: `+backend.URL+`/v1
    models:
      - model: m1
engine:
  default_env: local
  default_model: m1
storage:
  type: none
  blob:
    dir: `+t.TempDir()+`
`)

	cmd := NewRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"--config", path, "--env-file", "", "query", "Capital of France?"})
	if err := cmd.ExecuteContext(context.Background()); err != nil {
		t.Fatalf("query failed: %v", err)
	}

	var got map[string]any
	if err := json.Unmarshal(out.Bytes(), &got); err != nil {
		t.Fatalf("output is not JSON: %v\n%s", err, out.String())
	}
	if got["result"] != "Paris" {
		t.Errorf("result = %v", got["result"])
	}
}
