package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/brubru/aiengine/pkg/event"
)

var (
	// ErrConsumerGone is returned once the reader of a stream has
	// disconnected. The engine cancels the backend call when it sees it.
	ErrConsumerGone = errors.New("event consumer gone")

	// ErrStreamClosed is returned for events pushed after a terminal event.
	ErrStreamClosed = errors.New("event stream already terminated")
)

// SSEWriter writes events as Server-Sent Events:
//
//	data: {json}\n
//	\n
//
// Every event is flushed immediately. After an error or end event the
// writer refuses further events. A failed write or flush, or a cancelled
// context, marks the consumer as gone and every later push fails with
// ErrConsumerGone.
type SSEWriter struct {
	w     io.Writer
	flush func() error

	mu      sync.Mutex
	onStart func()
	started bool
	closed  bool
	gone    error
}

var _ event.Sink = (*SSEWriter)(nil)

// NewSSEWriter creates a writer over w. flush, when not nil, is called
// after each event.
func NewSSEWriter(w io.Writer, flush func() error) *SSEWriter {
	return &SSEWriter{w: w, flush: flush}
}

// OnStart registers fn to run once, right before the first event is
// written.
func (s *SSEWriter) OnStart(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onStart = fn
}

// Push writes one event.
func (s *SSEWriter) Push(ctx context.Context, e event.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.gone != nil {
		return s.gone
	}
	if s.closed {
		return ErrStreamClosed
	}
	if err := ctx.Err(); err != nil {
		return s.consumerGone(err)
	}

	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshaling %s event: %w", e.Subtype(), err)
	}

	if !s.started {
		s.started = true
		if s.onStart != nil {
			s.onStart()
		}
	}
	if _, err := fmt.Fprintf(s.w, "data: %s\n\n", data); err != nil {
		return s.consumerGone(err)
	}
	if err := s.flushLocked(); err != nil {
		return s.consumerGone(err)
	}
	if e.IsTerminal() {
		s.closed = true
	}
	return nil
}

// Flush flushes buffered data.
func (s *SSEWriter) Flush() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.gone != nil {
		return s.gone
	}
	if err := s.flushLocked(); err != nil {
		return s.consumerGone(err)
	}
	return nil
}

// Started reports whether at least one event was written.
func (s *SSEWriter) Started() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.started
}

// Closed reports whether a terminal event was written.
func (s *SSEWriter) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *SSEWriter) flushLocked() error {
	if s.flush == nil {
		return nil
	}
	return s.flush()
}

func (s *SSEWriter) consumerGone(cause error) error {
	s.gone = fmt.Errorf("%w: %w", ErrConsumerGone, cause)
	return s.gone
}
