// Package continuity tracks the continuation tokens backends issue so a
// conversation can reference its previous turn instead of replaying the
// whole history.
//
// A token is usable for 30 days after it was issued. Past that window the
// manager answers as if no token existed and the caller falls back to a
// full replay.
package continuity

import (
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/brubru/aiengine/pkg/debug"
)

// Window is how long a continuation token stays usable.
const Window = 30 * 24 * time.Hour

// DateLayout is the layout of persisted issuance dates (UTC).
const DateLayout = "2006-01-02 15:04:05"

// Provider families.
const (
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
	Unknown           = "unknown"
)

// Protocol families.
const (
	ProtocolResponses       = "responses_api"
	ProtocolChatCompletions = "chat_completions"
	ProtocolMessages        = "messages_api"
)

// Keys of the persisted discussion metadata.
const (
	ExtraResponseID           = "responseId"
	ExtraResponseDate         = "responseDate"
	ExtraPreviousResponseID   = "previousResponseId"
	ExtraPreviousResponseDate = "previousResponseDate"
	ExtraProvider             = "provider"
	ExtraAPIType              = "apiType"
)

type family struct {
	prefix   string
	provider string
	protocol string
}

var families = []family{
	{prefix: "resp_", provider: ProviderOpenAI, protocol: ProtocolResponses},
	{prefix: "chatcmpl-", provider: ProviderOpenAI, protocol: ProtocolChatCompletions},
	{prefix: "msg_", provider: ProviderAnthropic, protocol: ProtocolMessages},
}

// Detect returns the provider and protocol family of a token from its
// prefix. Unrecognized tokens are reported as unknown/unknown.
func Detect(token string) (provider, protocol string) {
	for _, f := range families {
		if strings.HasPrefix(token, f.prefix) {
			return f.provider, f.protocol
		}
	}
	return Unknown, Unknown
}

// Record is one stored continuation token.
type Record struct {
	Token    string
	IssuedAt time.Time
	Provider string
	Protocol string
}

// Extra returns the record as discussion metadata, ready to be persisted
// and handed back to Retrieve on a later turn.
func (r Record) Extra() map[string]any {
	return map[string]any{
		ExtraResponseID:   r.Token,
		ExtraResponseDate: r.IssuedAt.UTC().Format(DateLayout),
		ExtraProvider:     r.Provider,
		ExtraAPIType:      r.Protocol,
	}
}

// Info describes what the manager knows about a discussion.
type Info struct {
	DiscussionID string    `json:"discussion_id"`
	Token        string    `json:"token,omitempty"`
	IssuedAt     time.Time `json:"issued_at,omitzero"`
	Provider     string    `json:"provider"`
	Protocol     string    `json:"api_type"`
	Cached       bool      `json:"cached"`
	Valid        bool      `json:"valid"`

	IsResponsesAPI    bool `json:"is_valid_responses_api"`
	IsChatCompletions bool `json:"is_valid_chat_completions"`
	IsAnthropic       bool `json:"is_valid_anthropic"`
}

// Option configures a Manager.
type Option func(*Manager)

// WithClock replaces the wall clock used for validity checks.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// Manager caches the continuation token of each discussion for the
// current turn. All methods are safe for concurrent access.
type Manager struct {
	mu      sync.Mutex
	records map[string]Record
	now     func() time.Time
}

// NewManager creates an empty manager.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		records: make(map[string]Record),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Store caches token for discussionID. A zero issuedAt means now.
func (m *Manager) Store(discussionID, token string, issuedAt time.Time) Record {
	if issuedAt.IsZero() {
		issuedAt = m.now()
	}
	provider, protocol := Detect(token)
	rec := Record{Token: token, IssuedAt: issuedAt, Provider: provider, Protocol: protocol}

	m.mu.Lock()
	m.records[discussionID] = rec
	m.mu.Unlock()

	debug.Log(debug.CategoryContinuity, "token stored", "discussion", discussionID,
		"token", token, "provider", provider, "api_type", protocol)
	return rec
}

// Retrieve returns the usable token of discussionID. The cache is checked
// first; an expired cached token is not replaced by the persisted one.
// Otherwise extra, the metadata persisted with the discussion, is read
// (responseId/responseDate, then previousResponseId/previousResponseDate)
// and a valid token found there is cached.
func (m *Manager) Retrieve(discussionID string, extra map[string]any) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if rec, ok := m.records[discussionID]; ok {
		if m.isValid(rec.Token, rec.IssuedAt) {
			return rec.Token, true
		}
		debug.Log(debug.CategoryContinuity, "cached token expired", "discussion", discussionID, "token", rec.Token)
		return "", false
	}

	for _, keys := range [][2]string{
		{ExtraResponseID, ExtraResponseDate},
		{ExtraPreviousResponseID, ExtraPreviousResponseDate},
	} {
		token, _ := extra[keys[0]].(string)
		if token == "" {
			continue
		}
		issuedAt, ok := ParseDate(extra[keys[1]])
		if !ok || !m.isValid(token, issuedAt) {
			debug.Log(debug.CategoryContinuity, "persisted token unusable", "discussion", discussionID, "token", token)
			continue
		}
		provider, protocol := Detect(token)
		m.records[discussionID] = Record{Token: token, IssuedAt: issuedAt, Provider: provider, Protocol: protocol}
		return token, true
	}
	return "", false
}

// IsValid reports whether token is present and was issued within Window.
func (m *Manager) IsValid(token string, issuedAt time.Time) bool {
	return m.isValid(token, issuedAt)
}

func (m *Manager) isValid(token string, issuedAt time.Time) bool {
	if token == "" || issuedAt.IsZero() {
		return false
	}
	return issuedAt.After(m.now().Add(-Window))
}

// Validate reports whether token can be used with protocol. Protocols
// without a known token family accept any token.
func (m *Manager) Validate(token, protocol string) bool {
	for _, f := range families {
		if f.protocol == protocol {
			return strings.HasPrefix(token, f.prefix)
		}
	}
	return true
}

// DebugInfo describes the cached record of discussionID.
func (m *Manager) DebugInfo(discussionID string) Info {
	m.mu.Lock()
	rec, ok := m.records[discussionID]
	m.mu.Unlock()

	info := Inspect(rec.Token)
	info.DiscussionID = discussionID
	if ok {
		info.IssuedAt = rec.IssuedAt
		info.Cached = true
		info.Valid = m.isValid(rec.Token, rec.IssuedAt)
	}
	return info
}

// Inspect describes a bare token.
func Inspect(token string) Info {
	provider, protocol := Detect(token)
	return Info{
		Token:             token,
		Provider:          provider,
		Protocol:          protocol,
		IsResponsesAPI:    protocol == ProtocolResponses,
		IsChatCompletions: protocol == ProtocolChatCompletions,
		IsAnthropic:       protocol == ProtocolMessages,
	}
}

// Forget drops the cached record of discussionID.
func (m *Manager) Forget(discussionID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.records, discussionID)
}

// Reset drops every cached record.
func (m *Manager) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	clear(m.records)
}

// ParseDate reads a persisted issuance date: an RFC 3339 string, a
// DateLayout string in UTC, unix seconds (as a number or numeric string),
// or a time.Time.
func ParseDate(v any) (time.Time, bool) {
	switch d := v.(type) {
	case time.Time:
		return d, !d.IsZero()
	case int:
		return time.Unix(int64(d), 0), true
	case int64:
		return time.Unix(d, 0), true
	case float64:
		return time.Unix(int64(d), 0), true
	case string:
		d = strings.TrimSpace(d)
		if d == "" {
			return time.Time{}, false
		}
		if t, err := time.Parse(time.RFC3339, d); err == nil {
			return t, true
		}
		if t, err := time.ParseInLocation(DateLayout, d, time.UTC); err == nil {
			return t, true
		}
		if n, err := strconv.ParseInt(d, 10, 64); err == nil {
			return time.Unix(n, 0), true
		}
	}
	return time.Time{}, false
}
