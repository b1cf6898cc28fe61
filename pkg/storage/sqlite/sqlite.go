// Package sqlite provides an embedded SQLite implementation of
// storage.Store for single-process deployments, built on the pure-Go
// modernc.org/sqlite driver.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/brubru/aiengine/pkg/api"
	"github.com/brubru/aiengine/pkg/debug"
	"github.com/brubru/aiengine/pkg/storage"
)

const schema = `
CREATE TABLE IF NOT EXISTS discussions (
	scope      TEXT    NOT NULL DEFAULT '',
	bot_id     TEXT    NOT NULL,
	chat_id    TEXT    NOT NULL,
	messages   TEXT    NOT NULL,
	extra      TEXT,
	version    INTEGER NOT NULL,
	created_at INTEGER NOT NULL,
	updated_at INTEGER NOT NULL,
	PRIMARY KEY (scope, bot_id, chat_id)
);

CREATE TABLE IF NOT EXISTS usage_records (
	id                INTEGER PRIMARY KEY AUTOINCREMENT,
	session           TEXT    NOT NULL,
	scope             TEXT    NOT NULL DEFAULT '',
	env_id            TEXT    NOT NULL,
	model             TEXT    NOT NULL,
	feature           TEXT    NOT NULL,
	prompt_tokens     INTEGER NOT NULL DEFAULT 0,
	completion_tokens INTEGER NOT NULL DEFAULT 0,
	total_tokens      INTEGER NOT NULL DEFAULT 0,
	price             REAL,
	images            INTEGER NOT NULL DEFAULT 0,
	seconds           REAL    NOT NULL DEFAULT 0,
	accuracy          TEXT    NOT NULL,
	created_at        INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_usage_records_session ON usage_records(session, id);
`

// Store is a SQLite-backed storage.Store.
type Store struct {
	db *sql.DB
}

var (
	_ storage.Store       = (*Store)(nil)
	_ storage.UsageLister = (*Store)(nil)
)

// New opens (creating if needed) the database at path and applies the
// schema.
func New(ctx context.Context, path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// A single connection serializes writers instead of failing with
	// SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	debug.Log(debug.CategoryStorage, "sqlite store opened", "path", path)
	return &Store{db: db}, nil
}

// GetDiscussion retrieves a discussion in the context scope.
func (s *Store) GetDiscussion(ctx context.Context, botID, chatID string) (*storage.Discussion, error) {
	d := &storage.Discussion{BotID: botID, ChatID: chatID}
	var messagesJSON string
	var extraJSON sql.NullString
	var created, updated int64

	err := s.db.QueryRowContext(ctx, `
		SELECT messages, extra, version, created_at, updated_at
		FROM discussions
		WHERE scope = ? AND bot_id = ? AND chat_id = ?
	`, storage.ScopeFrom(ctx), botID, chatID).Scan(
		&messagesJSON, &extraJSON, &d.Version, &created, &updated,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying discussion: %w", err)
	}

	if err := json.Unmarshal([]byte(messagesJSON), &d.Messages); err != nil {
		return nil, fmt.Errorf("unmarshaling messages: %w", err)
	}
	if extraJSON.Valid {
		if err := json.Unmarshal([]byte(extraJSON.String), &d.Extra); err != nil {
			return nil, fmt.Errorf("unmarshaling extra: %w", err)
		}
	}
	d.CreatedAt = fromNanos(created)
	d.UpdatedAt = fromNanos(updated)
	return d, nil
}

// SaveDiscussion inserts a new discussion (Version 0) or updates the stored
// one when d.Version is current. d.Version is incremented on success.
func (s *Store) SaveDiscussion(ctx context.Context, d *storage.Discussion) error {
	msgs := d.Messages
	if msgs == nil {
		msgs = []api.Message{}
	}
	messagesJSON, err := json.Marshal(msgs)
	if err != nil {
		return fmt.Errorf("marshaling messages: %w", err)
	}
	var extra sql.NullString
	if len(d.Extra) > 0 {
		data, err := json.Marshal(d.Extra)
		if err != nil {
			return fmt.Errorf("marshaling extra: %w", err)
		}
		extra = sql.NullString{String: string(data), Valid: true}
	}

	scope := storage.ScopeFrom(ctx)
	next := d.Version + 1

	var res sql.Result
	if d.Version == 0 {
		res, err = s.db.ExecContext(ctx, `
			INSERT OR IGNORE INTO discussions (
				scope, bot_id, chat_id, messages, extra, version, created_at, updated_at
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		`, scope, d.BotID, d.ChatID, string(messagesJSON), extra, next, toNanos(d.CreatedAt), toNanos(d.UpdatedAt))
	} else {
		res, err = s.db.ExecContext(ctx, `
			UPDATE discussions
			SET messages = ?, extra = ?, version = ?, updated_at = ?
			WHERE scope = ? AND bot_id = ? AND chat_id = ? AND version = ?
		`, string(messagesJSON), extra, next, toNanos(d.UpdatedAt), scope, d.BotID, d.ChatID, d.Version)
	}
	if err != nil {
		return fmt.Errorf("saving discussion: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("saving discussion: %w", err)
	}
	if n == 0 {
		return storage.ErrConflict
	}
	d.Version = next
	return nil
}

// DeleteDiscussion removes a discussion from the context scope.
func (s *Store) DeleteDiscussion(ctx context.Context, botID, chatID string) error {
	res, err := s.db.ExecContext(ctx,
		"DELETE FROM discussions WHERE scope = ? AND bot_id = ? AND chat_id = ?",
		storage.ScopeFrom(ctx), botID, chatID,
	)
	if err != nil {
		return fmt.Errorf("deleting discussion: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// RecordUsage appends a usage record.
func (s *Store) RecordUsage(ctx context.Context, r storage.UsageRecord) error {
	var price sql.NullFloat64
	if r.Usage.Price != nil {
		price = sql.NullFloat64{Float64: *r.Usage.Price, Valid: true}
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO usage_records (
			session, scope, env_id, model, feature,
			prompt_tokens, completion_tokens, total_tokens,
			price, images, seconds, accuracy, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		r.Session, r.Scope, r.EnvID, r.Model, r.Feature,
		r.Usage.PromptTokens, r.Usage.CompletionTokens, r.Usage.TotalTokens,
		price, r.Usage.Images, r.Usage.Seconds, string(r.Accuracy), toNanos(r.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("inserting usage record: %w", err)
	}
	return nil
}

// ListUsage returns the usage records of session, oldest first, or every
// record when session is empty.
func (s *Store) ListUsage(ctx context.Context, session string) ([]storage.UsageRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT session, scope, env_id, model, feature,
		       prompt_tokens, completion_tokens, total_tokens,
		       price, images, seconds, accuracy, created_at
		FROM usage_records
		WHERE ? = '' OR session = ?
		ORDER BY id
	`, session, session)
	if err != nil {
		return nil, fmt.Errorf("querying usage records: %w", err)
	}
	defer rows.Close()

	var out []storage.UsageRecord
	for rows.Next() {
		var r storage.UsageRecord
		var price sql.NullFloat64
		var accuracy string
		var created int64
		if err := rows.Scan(
			&r.Session, &r.Scope, &r.EnvID, &r.Model, &r.Feature,
			&r.Usage.PromptTokens, &r.Usage.CompletionTokens, &r.Usage.TotalTokens,
			&price, &r.Usage.Images, &r.Usage.Seconds, &accuracy, &created,
		); err != nil {
			return nil, fmt.Errorf("scanning usage record: %w", err)
		}
		if price.Valid {
			p := price.Float64
			r.Usage.Price = &p
		}
		r.Accuracy = api.UsageAccuracy(accuracy)
		r.CreatedAt = fromNanos(created)
		out = append(out, r)
	}
	return out, rows.Err()
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

func toNanos(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixNano()
}

func fromNanos(n int64) time.Time {
	if n == 0 {
		return time.Time{}
	}
	return time.Unix(0, n).UTC()
}
