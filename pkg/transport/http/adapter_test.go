package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/brubru/aiengine/pkg/api"
	"github.com/brubru/aiengine/pkg/event"
	"github.com/brubru/aiengine/pkg/observability"
	"github.com/brubru/aiengine/pkg/reply"
	"github.com/brubru/aiengine/pkg/storage"
	"github.com/brubru/aiengine/pkg/storage/memory"
	"github.com/brubru/aiengine/pkg/transport"
)

// echoHandler replies with the request message, or streams it as a content
// event followed by an end event.
var echoHandler = transport.QueryHandlerFunc(func(ctx context.Context, req *transport.Request, w transport.ResponseWriter) error {
	q, err := req.Query()
	if err != nil {
		return err
	}
	r := reply.New(q)
	r.SetReply("echo: " + req.Message)
	if !req.Stream {
		return w.WriteReply(ctx, r)
	}
	if err := w.Push(ctx, event.Content(r.Result)); err != nil {
		return err
	}
	return w.Push(ctx, event.End(r))
})

type mockDiscussions struct {
	mu    sync.Mutex
	items map[string]*storage.Discussion
}

func (m *mockDiscussions) GetDiscussion(_ context.Context, botID, chatID string) (*storage.Discussion, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.items[botID+"/"+chatID]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return d, nil
}

func (m *mockDiscussions) SaveDiscussion(_ context.Context, d *storage.Discussion) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.items == nil {
		m.items = make(map[string]*storage.Discussion)
	}
	m.items[d.BotID+"/"+d.ChatID] = d
	return nil
}

func (m *mockDiscussions) DeleteDiscussion(_ context.Context, botID, chatID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.items[botID+"/"+chatID]; !ok {
		return storage.ErrNotFound
	}
	delete(m.items, botID+"/"+chatID)
	return nil
}

func newTestServer(t *testing.T, h transport.QueryHandler, discussions storage.DiscussionStore) (*Adapter, *httptest.Server) {
	t.Helper()
	a := NewAdapter(h, discussions, DefaultConfig())
	srv := httptest.NewServer(a.Handler())
	t.Cleanup(srv.Close)
	return a, srv
}

func postQuery(t *testing.T, srv *httptest.Server, body any) *http.Response {
	t.Helper()
	data, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal error: %v", err)
	}
	resp, err := http.Post(srv.URL+"/v1/query", "application/json", bytes.NewReader(data))
	if err != nil {
		t.Fatalf("POST error: %v", err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func readBody(t *testing.T, resp *http.Response) string {
	t.Helper()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return string(data)
}

func decodeError(t *testing.T, resp *http.Response) *api.APIError {
	t.Helper()
	var body api.ErrorResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode error response: %v", err)
	}
	if body.Error == nil {
		t.Fatal("error response has no error object")
	}
	return body.Error
}

func TestPostQueryReturnsJSONReply(t *testing.T) {
	_, srv := newTestServer(t, echoHandler, nil)

	resp := postQuery(t, srv, transport.Request{Message: "hello"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusOK)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q", ct)
	}
	if kind := resp.Header.Get(observability.KindHeader); kind != "text" {
		t.Errorf("%s = %q, want text", observability.KindHeader, kind)
	}
	if resp.Header.Get("X-Request-ID") == "" {
		t.Error("missing X-Request-ID header")
	}

	var got map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
		t.Fatalf("decode error: %v", err)
	}
	if got["result"] != "echo: hello" {
		t.Errorf("result = %v", got["result"])
	}
}

func TestPostQueryStreamsEvents(t *testing.T) {
	_, srv := newTestServer(t, echoHandler, nil)

	resp := postQuery(t, srv, transport.Request{Message: "hi", Stream: true})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("Content-Type = %q, want text/event-stream", ct)
	}

	body := readBody(t, resp)
	frames := strings.Split(strings.TrimSpace(body), "\n\n")
	if len(frames) != 2 {
		t.Fatalf("frames = %d, want 2:\n%s", len(frames), body)
	}
	if !strings.HasPrefix(frames[0], "data: ") || !strings.Contains(frames[0], `"echo: hi"`) {
		t.Errorf("first frame = %q", frames[0])
	}
	if !strings.Contains(frames[1], `"type":"end"`) {
		t.Errorf("last frame = %q, want an end event", frames[1])
	}
}

func TestPostQueryRequestErrors(t *testing.T) {
	small := NewAdapter(echoHandler, nil, Config{MaxBodySize: 64})
	smallSrv := httptest.NewServer(small.Handler())
	defer smallSrv.Close()
	_, srv := newTestServer(t, echoHandler, nil)

	tests := []struct {
		name        string
		url         string
		contentType string
		body        string
		wantStatus  int
		wantType    api.ErrorType
	}{
		{
			name:        "invalid JSON",
			url:         srv.URL,
			contentType: "application/json",
			body:        "{not json",
			wantStatus:  http.StatusBadRequest,
			wantType:    api.ErrorTypeValidation,
		},
		{
			name:        "body too large",
			url:         smallSrv.URL,
			contentType: "application/json",
			body:        `{"message":"` + strings.Repeat("x", 200) + `"}`,
			wantStatus:  http.StatusRequestEntityTooLarge,
			wantType:    api.ErrorTypeValidation,
		},
		{
			name:        "wrong content type",
			url:         srv.URL,
			contentType: "text/plain",
			body:        "hello",
			wantStatus:  http.StatusUnsupportedMediaType,
			wantType:    api.ErrorTypeValidation,
		},
		{
			name:        "unknown kind",
			url:         srv.URL,
			contentType: "application/json",
			body:        `{"kind":"telepathy","message":"hi"}`,
			wantStatus:  http.StatusBadRequest,
			wantType:    api.ErrorTypeValidation,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := http.Post(tt.url+"/v1/query", tt.contentType, strings.NewReader(tt.body))
			if err != nil {
				t.Fatalf("POST error: %v", err)
			}
			defer resp.Body.Close()
			if resp.StatusCode != tt.wantStatus {
				t.Errorf("status = %d, want %d", resp.StatusCode, tt.wantStatus)
			}
			if got := decodeError(t, resp); got.Type != tt.wantType {
				t.Errorf("error type = %q, want %q", got.Type, tt.wantType)
			}
		})
	}
}

func TestPostQueryHandlerErrorMapping(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
	}{
		{"resolution", api.NewEnvironmentRequiredError(), http.StatusBadRequest},
		{"provider", api.NewProviderError("server_error", "upstream down", nil), http.StatusBadGateway},
		{"loop detected", api.NewLoopDetectedError("same calls again"), http.StatusUnprocessableEntity},
		{"plain error", errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := transport.QueryHandlerFunc(func(ctx context.Context, req *transport.Request, w transport.ResponseWriter) error {
				return tt.err
			})
			_, srv := newTestServer(t, h, nil)

			resp := postQuery(t, srv, transport.Request{Message: "x"})
			if resp.StatusCode != tt.wantStatus {
				t.Errorf("status = %d, want %d", resp.StatusCode, tt.wantStatus)
			}
			if ct := resp.Header.Get("Content-Type"); ct != "application/json" {
				t.Errorf("Content-Type = %q", ct)
			}
		})
	}
}

func TestPostQueryErrorAfterStreamStarted(t *testing.T) {
	h := transport.QueryHandlerFunc(func(ctx context.Context, req *transport.Request, w transport.ResponseWriter) error {
		if err := w.Push(ctx, event.Content("partial")); err != nil {
			return err
		}
		return api.NewProviderError("server_error", "stream broke", nil)
	})
	_, srv := newTestServer(t, h, nil)

	resp := postQuery(t, srv, transport.Request{Message: "x", Stream: true})
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200 once streaming started", resp.StatusCode)
	}
	body := readBody(t, resp)
	if !strings.Contains(body, `"type":"error"`) || !strings.Contains(body, "stream broke") {
		t.Errorf("missing error event:\n%s", body)
	}
}

func TestCancelQuery(t *testing.T) {
	started := make(chan struct{})
	done := make(chan error, 1)
	h := transport.QueryHandlerFunc(func(ctx context.Context, req *transport.Request, w transport.ResponseWriter) error {
		close(started)
		select {
		case <-ctx.Done():
			done <- ctx.Err()
		case <-time.After(10 * time.Second):
			done <- errors.New("not cancelled")
		}
		return ctx.Err()
	})
	a, srv := newTestServer(t, h, nil)

	go func() {
		req, _ := http.NewRequest(http.MethodPost, srv.URL+"/v1/query", strings.NewReader(`{"message":"slow"}`))
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("X-Request-ID", "q-cancel")
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			return
		}
		defer resp.Body.Close()
		io.Copy(io.Discard, resp.Body)
	}()

	<-started
	if a.inflight.Len() != 1 {
		t.Errorf("running queries = %d, want 1", a.inflight.Len())
	}

	req, _ := http.NewRequest(http.MethodDelete, srv.URL+"/v1/query/q-cancel", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("DELETE error: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Errorf("DELETE status = %d, want %d", resp.StatusCode, http.StatusNoContent)
	}

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("handler finished with %v, want context.Canceled", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("handler was not cancelled")
	}
}

func TestCancelUnknownQueryReturns404(t *testing.T) {
	_, srv := newTestServer(t, echoHandler, nil)

	req, _ := http.NewRequest(http.MethodDelete, srv.URL+"/v1/query/nope", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("DELETE error: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusNotFound)
	}
}

func TestDiscussionEndpoints(t *testing.T) {
	store := &mockDiscussions{}
	store.SaveDiscussion(context.Background(), &storage.Discussion{
		BotID:    "bot-1",
		ChatID:   "chat-1",
		Messages: []api.Message{{Role: api.RoleUser, Content: "hi"}},
	})
	_, srv := newTestServer(t, echoHandler, store)

	resp, err := http.Get(srv.URL + "/v1/discussions/chat-1?botId=bot-1")
	if err != nil {
		t.Fatalf("GET error: %v", err)
	}
	var got storage.Discussion
	json.NewDecoder(resp.Body).Decode(&got)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK || got.ChatID != "chat-1" || len(got.Messages) != 1 {
		t.Fatalf("GET status=%d discussion=%+v", resp.StatusCode, got)
	}

	del := func() int {
		req, _ := http.NewRequest(http.MethodDelete, srv.URL+"/v1/discussions/chat-1?botId=bot-1", nil)
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			t.Fatalf("DELETE error: %v", err)
		}
		resp.Body.Close()
		return resp.StatusCode
	}
	if status := del(); status != http.StatusNoContent {
		t.Errorf("first DELETE status = %d, want %d", status, http.StatusNoContent)
	}
	if status := del(); status != http.StatusNotFound {
		t.Errorf("second DELETE status = %d, want %d", status, http.StatusNotFound)
	}
}

func TestDiscussionEndpointsWithoutStore(t *testing.T) {
	_, srv := newTestServer(t, echoHandler, nil)

	resp, err := http.Get(srv.URL + "/v1/discussions/chat-1?botId=bot-1")
	if err != nil {
		t.Fatalf("GET error: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNotImplemented {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusNotImplemented)
	}
}

func TestRoutes(t *testing.T) {
	_, srv := newTestServer(t, echoHandler, nil)

	tests := []struct {
		method     string
		path       string
		wantStatus int
	}{
		{http.MethodGet, "/healthz", http.StatusOK},
		{http.MethodGet, "/v1/unknown", http.StatusNotFound},
		{http.MethodGet, "/v1/query", http.StatusMethodNotAllowed},
	}
	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			req, _ := http.NewRequest(tt.method, srv.URL+tt.path, nil)
			resp, err := http.DefaultClient.Do(req)
			if err != nil {
				t.Fatalf("request error: %v", err)
			}
			defer resp.Body.Close()
			if resp.StatusCode != tt.wantStatus {
				t.Errorf("status = %d, want %d", resp.StatusCode, tt.wantStatus)
			}
		})
	}
}

func TestRequestIDIsPropagated(t *testing.T) {
	seen := make(chan string, 1)
	h := transport.QueryHandlerFunc(func(ctx context.Context, req *transport.Request, w transport.ResponseWriter) error {
		seen <- transport.RequestIDFromContext(ctx)
		q, _ := req.Query()
		return w.WriteReply(ctx, reply.New(q))
	})
	_, srv := newTestServer(t, h, nil)

	req, _ := http.NewRequest(http.MethodPost, srv.URL+"/v1/query", strings.NewReader(`{"message":"x"}`))
	req.Header.Set("X-Request-ID", "client-chosen")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("POST error: %v", err)
	}
	defer resp.Body.Close()

	if id := <-seen; id != "client-chosen" {
		t.Errorf("handler saw request ID %q", id)
	}
	if got := resp.Header.Get("X-Request-ID"); got != "client-chosen" {
		t.Errorf("X-Request-ID = %q", got)
	}
}

func TestHTTPMiddleware(t *testing.T) {
	store := memory.New(0)
	ctx := storage.WithScope(context.Background(), "team-a")
	if err := store.SaveDiscussion(ctx, &storage.Discussion{ChatID: "c1"}); err != nil {
		t.Fatal(err)
	}

	scoped := func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Header.Get("Authorization") == "" {
				transport.WriteAPIError(w, api.NewAuthenticationError("authentication required"))
				return
			}
			next.ServeHTTP(w, r.WithContext(storage.WithScope(r.Context(), "team-a")))
		})
	}
	a := NewAdapter(echoHandler, store, Config{HTTPMiddleware: []func(http.Handler) http.Handler{scoped}})
	srv := httptest.NewServer(a.Handler())
	defer srv.Close()

	t.Run("rejected request keeps its ID", func(t *testing.T) {
		resp, err := http.Get(srv.URL + "/v1/discussions/c1")
		if err != nil {
			t.Fatal(err)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusUnauthorized {
			t.Errorf("status = %d, want 401", resp.StatusCode)
		}
		if resp.Header.Get("X-Request-ID") == "" {
			t.Error("X-Request-ID missing on a rejected request")
		}
	})

	t.Run("authenticated scope beats the query parameter", func(t *testing.T) {
		req, _ := http.NewRequest(http.MethodGet, srv.URL+"/v1/discussions/c1?scope=team-b", nil)
		req.Header.Set("Authorization", "Bearer k")
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			t.Fatal(err)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Errorf("status = %d, want 200", resp.StatusCode)
		}
	})
}
