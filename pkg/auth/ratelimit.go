package auth

import (
	"context"
	"sync"
	"time"
)

// RateLimiter decides whether an identity may make another request.
type RateLimiter interface {
	Allow(ctx context.Context, id *Identity) error
}

// Limiter is a fixed-window, in-process limiter keyed by subject and
// service tier.
type Limiter struct {
	tiers      map[string]int
	defaultRPM int
	now        func() time.Time

	mu      sync.Mutex
	windows map[string]*window
}

type window struct {
	count int
	start time.Time
}

// NewLimiter creates a limiter allowing tiers[tier] requests per minute,
// or defaultRPM for tiers not listed. A budget of zero or less is
// unlimited.
func NewLimiter(tiers map[string]int, defaultRPM int) *Limiter {
	return &Limiter{
		tiers:      tiers,
		defaultRPM: defaultRPM,
		now:        time.Now,
		windows:    make(map[string]*window),
	}
}

// Allow returns ErrTooManyRequests once the identity has used its budget
// for the current minute.
func (l *Limiter) Allow(_ context.Context, id *Identity) error {
	tier := id.ServiceTier
	if tier == "" {
		tier = "default"
	}
	rpm, ok := l.tiers[tier]
	if !ok {
		rpm = l.defaultRPM
	}
	if rpm <= 0 {
		return nil
	}

	key := id.Subject + ":" + tier
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	w, ok := l.windows[key]
	if !ok || now.Sub(w.start) >= time.Minute {
		l.windows[key] = &window{count: 1, start: now}
		return nil
	}
	w.count++
	if w.count > rpm {
		return ErrTooManyRequests
	}
	return nil
}
