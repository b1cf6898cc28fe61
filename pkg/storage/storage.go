package storage

import (
	"context"
	"maps"
	"time"

	"github.com/brubru/aiengine/pkg/api"
)

// Blob targets.
const (
	TargetUploads = "uploads"
	TargetLibrary = "library"
)

// Blob is binary content to persist, such as a generated image.
type Blob struct {
	Data     []byte
	Purpose  string
	MimeType string

	// TTL is how long an uploads blob stays retrievable. Zero keeps it.
	TTL time.Duration

	// Target is TargetUploads (short-lived) or TargetLibrary (kept).
	Target string

	Metadata map[string]string
}

// BlobStore persists binary content and returns a URL for it.
type BlobStore interface {
	Store(ctx context.Context, b Blob) (string, error)
}

// Discussion is a persisted conversation. Extra carries the continuation
// record under the responseId/responseDate keys.
//
// Version is managed by the stores: a save succeeds only when Version
// matches the stored one (zero for a new discussion) and then increments
// it. A stale save fails with ErrConflict.
type Discussion struct {
	BotID     string         `json:"botId"`
	ChatID    string         `json:"chatId"`
	Messages  []api.Message  `json:"messages"`
	Extra     map[string]any `json:"extra,omitempty"`
	Version   int64          `json:"version"`
	CreatedAt time.Time      `json:"createdAt"`
	UpdatedAt time.Time      `json:"updatedAt"`
}

// Clone returns a deep copy of the discussion messages with a shallow
// copy of Extra.
func (d *Discussion) Clone() *Discussion {
	out := *d
	out.Messages = make([]api.Message, len(d.Messages))
	for i, m := range d.Messages {
		out.Messages[i] = m.Clone()
	}
	out.Extra = maps.Clone(d.Extra)
	return &out
}

// DiscussionStore persists and retrieves discussions by bot and chat ID.
// GetDiscussion returns ErrNotFound for unknown discussions.
type DiscussionStore interface {
	GetDiscussion(ctx context.Context, botID, chatID string) (*Discussion, error)
	SaveDiscussion(ctx context.Context, d *Discussion) error
	DeleteDiscussion(ctx context.Context, botID, chatID string) error
}

// UsageRecord is one appended usage entry.
type UsageRecord struct {
	Session   string            `json:"session"`
	EnvID     string            `json:"envId"`
	Model     string            `json:"model"`
	Feature   string            `json:"feature"`
	Scope     string            `json:"scope,omitempty"`
	Usage     api.Usage         `json:"usage"`
	Accuracy  api.UsageAccuracy `json:"accuracy"`
	CreatedAt time.Time         `json:"createdAt"`
}

// UsageRecorder appends usage records.
type UsageRecorder interface {
	RecordUsage(ctx context.Context, r UsageRecord) error
}

// UsageLister reads usage records back, oldest first. An empty session
// lists every record.
type UsageLister interface {
	ListUsage(ctx context.Context, session string) ([]UsageRecord, error)
}

// Store combines the discussion and usage sides of a storage backend.
type Store interface {
	DiscussionStore
	UsageRecorder
	Close() error
}
