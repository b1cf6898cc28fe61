// Package postgres provides a PostgreSQL implementation of storage.Store.
// It uses pgx/v5 for connection pooling and JSONB for discussion messages.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/brubru/aiengine/pkg/api"
	"github.com/brubru/aiengine/pkg/debug"
	"github.com/brubru/aiengine/pkg/storage"
)

// Store is a PostgreSQL-backed storage.Store.
type Store struct {
	pool *pgxpool.Pool
}

var (
	_ storage.Store       = (*Store)(nil)
	_ storage.UsageLister = (*Store)(nil)
)

// New creates a new PostgreSQL store with the given configuration.
// If MigrateOnStart is true, schema migrations are applied automatically.
func New(ctx context.Context, cfg Config) (*Store, error) {
	poolCfg, err := cfg.poolConfig()
	if err != nil {
		return nil, err
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("connecting to database: %w", err)
	}

	s := &Store{pool: pool}

	if cfg.MigrateOnStart {
		if err := s.migrate(ctx); err != nil {
			pool.Close()
			return nil, fmt.Errorf("running migrations: %w", err)
		}
	}

	return s, nil
}

// GetDiscussion retrieves a discussion in the context scope.
func (s *Store) GetDiscussion(ctx context.Context, botID, chatID string) (*storage.Discussion, error) {
	d := &storage.Discussion{BotID: botID, ChatID: chatID}
	var messagesJSON []byte
	var extraJSON *[]byte

	err := s.pool.QueryRow(ctx, `
		SELECT messages, extra, version, created_at, updated_at
		FROM discussions
		WHERE scope = $1 AND bot_id = $2 AND chat_id = $3
	`, storage.ScopeFrom(ctx), botID, chatID).Scan(
		&messagesJSON, &extraJSON, &d.Version, &d.CreatedAt, &d.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying discussion: %w", err)
	}

	if err := json.Unmarshal(messagesJSON, &d.Messages); err != nil {
		return nil, fmt.Errorf("unmarshaling messages: %w", err)
	}
	if extraJSON != nil {
		if err := json.Unmarshal(*extraJSON, &d.Extra); err != nil {
			return nil, fmt.Errorf("unmarshaling extra: %w", err)
		}
	}
	return d, nil
}

// SaveDiscussion inserts a new discussion (Version 0) or updates the stored
// one when d.Version is current. d.Version is incremented on success.
func (s *Store) SaveDiscussion(ctx context.Context, d *storage.Discussion) error {
	messagesJSON, err := marshalMessages(d.Messages)
	if err != nil {
		return err
	}
	var extraJSON []byte
	if len(d.Extra) > 0 {
		extraJSON, err = json.Marshal(d.Extra)
		if err != nil {
			return fmt.Errorf("marshaling extra: %w", err)
		}
	}

	scope := storage.ScopeFrom(ctx)
	next := d.Version + 1

	var affected int64
	if d.Version == 0 {
		tag, err := s.pool.Exec(ctx, `
			INSERT INTO discussions (
				scope, bot_id, chat_id, messages, extra, version, created_at, updated_at
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			ON CONFLICT DO NOTHING
		`, scope, d.BotID, d.ChatID, messagesJSON, nullJSON(extraJSON), next, d.CreatedAt, d.UpdatedAt)
		if err != nil {
			return fmt.Errorf("inserting discussion: %w", err)
		}
		affected = tag.RowsAffected()
	} else {
		tag, err := s.pool.Exec(ctx, `
			UPDATE discussions
			SET messages = $4, extra = $5, version = $6, updated_at = $7
			WHERE scope = $1 AND bot_id = $2 AND chat_id = $3 AND version = $8
		`, scope, d.BotID, d.ChatID, messagesJSON, nullJSON(extraJSON), next, d.UpdatedAt, d.Version)
		if err != nil {
			return fmt.Errorf("updating discussion: %w", err)
		}
		affected = tag.RowsAffected()
	}

	if affected == 0 {
		return storage.ErrConflict
	}
	d.Version = next
	debug.Log(debug.CategoryStorage, "discussion saved", "chat", d.ChatID, "version", next)
	return nil
}

// DeleteDiscussion removes a discussion from the context scope.
func (s *Store) DeleteDiscussion(ctx context.Context, botID, chatID string) error {
	tag, err := s.pool.Exec(ctx,
		"DELETE FROM discussions WHERE scope = $1 AND bot_id = $2 AND chat_id = $3",
		storage.ScopeFrom(ctx), botID, chatID,
	)
	if err != nil {
		return fmt.Errorf("deleting discussion: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// RecordUsage appends a usage record.
func (s *Store) RecordUsage(ctx context.Context, r storage.UsageRecord) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO usage_records (
			session, scope, env_id, model, feature,
			prompt_tokens, completion_tokens, total_tokens,
			price, images, seconds, accuracy, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`,
		r.Session, r.Scope, r.EnvID, r.Model, r.Feature,
		r.Usage.PromptTokens, r.Usage.CompletionTokens, r.Usage.TotalTokens,
		r.Usage.Price, r.Usage.Images, r.Usage.Seconds, string(r.Accuracy), r.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("inserting usage record: %w", err)
	}
	return nil
}

// ListUsage returns the usage records of session, oldest first, or every
// record when session is empty.
func (s *Store) ListUsage(ctx context.Context, session string) ([]storage.UsageRecord, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT session, scope, env_id, model, feature,
		       prompt_tokens, completion_tokens, total_tokens,
		       price, images, seconds, accuracy, created_at
		FROM usage_records
		WHERE $1::text = '' OR session = $1
		ORDER BY id
	`, session)
	if err != nil {
		return nil, fmt.Errorf("querying usage records: %w", err)
	}
	defer rows.Close()

	var out []storage.UsageRecord
	for rows.Next() {
		var r storage.UsageRecord
		var accuracy string
		if err := rows.Scan(
			&r.Session, &r.Scope, &r.EnvID, &r.Model, &r.Feature,
			&r.Usage.PromptTokens, &r.Usage.CompletionTokens, &r.Usage.TotalTokens,
			&r.Usage.Price, &r.Usage.Images, &r.Usage.Seconds, &accuracy, &r.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scanning usage record: %w", err)
		}
		r.Accuracy = api.UsageAccuracy(accuracy)
		out = append(out, r)
	}
	return out, rows.Err()
}

// HealthCheck verifies the database connection.
func (s *Store) HealthCheck(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close releases the connection pool.
func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

func marshalMessages(msgs []api.Message) ([]byte, error) {
	if msgs == nil {
		msgs = []api.Message{}
	}
	data, err := json.Marshal(msgs)
	if err != nil {
		return nil, fmt.Errorf("marshaling messages: %w", err)
	}
	return data, nil
}

// nullJSON converts nil/empty byte slices to nil for nullable JSONB columns.
func nullJSON(b []byte) *[]byte {
	if len(b) == 0 {
		return nil
	}
	return &b
}
