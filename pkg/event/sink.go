package event

import (
	"context"
	"sync"
)

// Sink receives the events of a turn in order. An error from Push means the
// consumer is gone and the turn should be cancelled.
type Sink interface {
	Push(ctx context.Context, e Event) error
}

// SinkFunc adapts a function to a Sink.
type SinkFunc func(ctx context.Context, e Event) error

func (f SinkFunc) Push(ctx context.Context, e Event) error { return f(ctx, e) }

// Discard drops every event.
var Discard Sink = SinkFunc(func(context.Context, Event) error { return nil })

// Collector keeps pushed events in memory.
type Collector struct {
	mu     sync.Mutex
	events []Event
}

func (c *Collector) Push(_ context.Context, e Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, e)
	return nil
}

// Events returns a copy of the collected events.
func (c *Collector) Events() []Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Event(nil), c.events...)
}

// Subtypes returns the subtype of every collected live event, in order.
func (c *Collector) Subtypes() []Subtype {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []Subtype
	for _, e := range c.events {
		if e.typ == TypeLive {
			out = append(out, e.subtype)
		}
	}
	return out
}

// Last returns the most recent event.
func (c *Collector) Last() (Event, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.events) == 0 {
		return Event{}, false
	}
	return c.events[len(c.events)-1], true
}
