// Package memory provides an in-memory implementation of storage.Store for
// testing and lightweight deployments. Discussions are lost when the process
// restarts. Optional LRU eviction limits memory usage.
package memory

import (
	"container/list"
	"context"
	"slices"
	"sync"

	"github.com/brubru/aiengine/pkg/storage"
)

// key identifies a discussion within a scope.
type key struct {
	scope, botID, chatID string
}

// entry holds a stored discussion and its position in the LRU list.
type entry struct {
	disc    *storage.Discussion
	lruElem *list.Element
}

// Store is an in-memory storage.Store with optional LRU eviction.
type Store struct {
	mu      sync.RWMutex
	entries map[key]*entry
	lruList *list.List // front = most recently used, back = least recently used
	maxSize int        // 0 = unlimited

	usage []storage.UsageRecord
}

var (
	_ storage.Store       = (*Store)(nil)
	_ storage.UsageLister = (*Store)(nil)
)

// New creates a new in-memory store. If maxSize is 0, the store grows
// without limit. If maxSize > 0, the least recently used discussion is
// evicted when the limit is reached. The same limit bounds the kept usage
// records, oldest first.
func New(maxSize int) *Store {
	return &Store{
		entries: make(map[key]*entry),
		lruList: list.New(),
		maxSize: maxSize,
	}
}

// GetDiscussion returns a copy of the discussion in the context scope.
func (s *Store) GetDiscussion(ctx context.Context, botID, chatID string) (*storage.Discussion, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[key{storage.ScopeFrom(ctx), botID, chatID}]
	if !ok {
		return nil, storage.ErrNotFound
	}
	s.lruList.MoveToFront(e.lruElem)
	return e.disc.Clone(), nil
}

// SaveDiscussion stores a copy of d and increments d.Version.
func (s *Store) SaveDiscussion(ctx context.Context, d *storage.Discussion) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	k := key{storage.ScopeFrom(ctx), d.BotID, d.ChatID}
	e, exists := s.entries[k]

	var stored int64
	if exists {
		stored = e.disc.Version
	}
	if d.Version != stored {
		return storage.ErrConflict
	}
	d.Version++

	if exists {
		e.disc = d.Clone()
		s.lruList.MoveToFront(e.lruElem)
		return nil
	}

	if s.maxSize > 0 && len(s.entries) >= s.maxSize {
		s.evictOldest()
	}
	s.entries[k] = &entry{
		disc:    d.Clone(),
		lruElem: s.lruList.PushFront(k),
	}
	return nil
}

// DeleteDiscussion removes a discussion. Returns ErrNotFound if it does not
// exist in the context scope.
func (s *Store) DeleteDiscussion(ctx context.Context, botID, chatID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	k := key{storage.ScopeFrom(ctx), botID, chatID}
	e, ok := s.entries[k]
	if !ok {
		return storage.ErrNotFound
	}
	s.lruList.Remove(e.lruElem)
	delete(s.entries, k)
	return nil
}

// RecordUsage appends a usage record.
func (s *Store) RecordUsage(_ context.Context, r storage.UsageRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.usage = append(s.usage, r)
	if s.maxSize > 0 && len(s.usage) > s.maxSize {
		s.usage = slices.Delete(s.usage, 0, len(s.usage)-s.maxSize)
	}
	return nil
}

// ListUsage returns the kept usage records of session, oldest first, or
// all records when session is empty.
func (s *Store) ListUsage(_ context.Context, session string) ([]storage.UsageRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []storage.UsageRecord
	for _, r := range s.usage {
		if session == "" || r.Session == session {
			out = append(out, r)
		}
	}
	return out, nil
}

// Len returns the number of stored discussions.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// Close is a no-op for the in-memory store.
func (s *Store) Close() error {
	return nil
}

// evictOldest removes the least recently used discussion.
// Must be called with s.mu held.
func (s *Store) evictOldest() {
	back := s.lruList.Back()
	if back == nil {
		return
	}
	s.lruList.Remove(back)
	delete(s.entries, back.Value.(key))
}
