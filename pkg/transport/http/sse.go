package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"github.com/brubru/aiengine/pkg/event"
	"github.com/brubru/aiengine/pkg/reply"
	"github.com/brubru/aiengine/pkg/transport"
)

// responseWriter implements transport.ResponseWriter over HTTP. Events go
// out as SSE through transport.SSEWriter; a reply is written as JSON.
type responseWriter struct {
	w   http.ResponseWriter
	sse *transport.SSEWriter

	mu         sync.Mutex
	wroteReply bool
}

var _ transport.ResponseWriter = (*responseWriter)(nil)

func newResponseWriter(w http.ResponseWriter) *responseWriter {
	rc := http.NewResponseController(w)
	sse := transport.NewSSEWriter(w, rc.Flush)
	sse.OnStart(func() {
		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")
	})
	return &responseWriter{w: w, sse: sse}
}

// Push sends one SSE event. It fails once a JSON reply was written.
func (rw *responseWriter) Push(ctx context.Context, e event.Event) error {
	rw.mu.Lock()
	wrote := rw.wroteReply
	rw.mu.Unlock()
	if wrote {
		return errors.New("cannot write event: a reply was already written")
	}
	return rw.sse.Push(ctx, e)
}

// WriteReply sends the complete reply as JSON. It fails once streaming has
// started.
func (rw *responseWriter) WriteReply(ctx context.Context, r *reply.Reply) error {
	rw.mu.Lock()
	defer rw.mu.Unlock()

	if rw.sse.Started() {
		return errors.New("cannot write reply: streaming has already started")
	}
	if rw.wroteReply {
		return errors.New("cannot write reply: writer is completed")
	}
	rw.wroteReply = true

	rw.w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(rw.w).Encode(r); err != nil {
		return fmt.Errorf("failed to encode reply: %w", err)
	}
	return nil
}

// Flush ensures buffered data is sent to the client.
func (rw *responseWriter) Flush() error {
	return rw.sse.Flush()
}

func (rw *responseWriter) streaming() bool {
	return rw.sse.Started()
}

func (rw *responseWriter) completed() bool {
	rw.mu.Lock()
	defer rw.mu.Unlock()
	return rw.wroteReply || rw.sse.Closed()
}
