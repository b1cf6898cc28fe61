package engine

import (
	"context"
	"errors"
	"log/slog"
	"maps"
	"slices"

	"github.com/brubru/aiengine/pkg/api"
	"github.com/brubru/aiengine/pkg/continuity"
	"github.com/brubru/aiengine/pkg/debug"
	"github.com/brubru/aiengine/pkg/messages"
	"github.com/brubru/aiengine/pkg/query"
	"github.com/brubru/aiengine/pkg/reply"
	"github.com/brubru/aiengine/pkg/storage"
)

// discussionKey identifies the discussion of q for the continuity cache.
// Queries without a chat ID are not part of a discussion.
func discussionKey(q *query.Query) string {
	if q.ChatID == "" {
		return ""
	}
	key := q.ChatID
	if q.BotID != "" {
		key = q.BotID + "/" + key
	}
	if q.Scope != "" {
		key = q.Scope + ":" + key
	}
	return key
}

// loadDiscussion reads the stored discussion of q. A query without its own
// history inherits the stored one. Returns nil when nothing is persisted.
func (e *Engine) loadDiscussion(ctx context.Context, q *query.Query) *storage.Discussion {
	if e.store == nil || q.ChatID == "" {
		return nil
	}

	d, err := e.store.GetDiscussion(storage.WithScope(ctx, q.Scope), q.BotID, q.ChatID)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		return &storage.Discussion{BotID: q.BotID, ChatID: q.ChatID}
	case err != nil:
		slog.Warn("failed to load discussion", "bot", q.BotID, "chat", q.ChatID, "error", err)
		return nil
	}

	if !q.IsFeedback() && len(q.Messages) == 0 && len(d.Messages) > 0 {
		q.SetMessages(slices.Clone(d.Messages))
		debug.Log(debug.CategoryStorage, "history loaded", "chat", q.ChatID, "messages", len(d.Messages))
	}
	return d
}

// saveDiscussion appends the turn to the stored discussion. The previous
// continuation token is kept as the fallback for the next turn.
func (e *Engine) saveDiscussion(ctx context.Context, q *query.Query, d *storage.Discussion, r *reply.Reply, raw *api.Message, rec *continuity.Record) {
	if e.store == nil || d == nil {
		return
	}

	d.Messages = append(d.Messages, turnMessages(q, d.Messages)...)
	if raw != nil {
		d.Messages = append(d.Messages, raw.Clone())
	} else if r.Result != "" {
		d.Messages = append(d.Messages, api.Message{Role: api.RoleAssistant, Content: r.Result})
	}

	if rec != nil {
		extra := maps.Clone(d.Extra)
		if extra == nil {
			extra = make(map[string]any)
		}
		if prev, ok := extra[continuity.ExtraResponseID]; ok {
			extra[continuity.ExtraPreviousResponseID] = prev
			extra[continuity.ExtraPreviousResponseDate] = extra[continuity.ExtraResponseDate]
		}
		maps.Copy(extra, rec.Extra())
		d.Extra = extra
	}

	now := e.now()
	if d.CreatedAt.IsZero() {
		d.CreatedAt = now
	}
	d.UpdatedAt = now
	err := e.store.SaveDiscussion(storage.WithScope(ctx, q.Scope), d)
	switch {
	case errors.Is(err, storage.ErrConflict):
		slog.Warn("discussion changed concurrently, turn not persisted", "bot", d.BotID, "chat", d.ChatID)
	case err != nil:
		slog.Warn("failed to save discussion", "bot", d.BotID, "chat", d.ChatID, "error", err)
	}
}

// turnMessages returns the messages q adds on top of history: the user
// message of a regular turn, or for a feedback turn the assistant messages
// history does not hold yet followed by one tool message per result.
func turnMessages(q *query.Query, history []api.Message) []api.Message {
	if !q.IsFeedback() {
		if q.Message == "" {
			return nil
		}
		return []api.Message{{Role: api.RoleUser, Content: q.Message}}
	}

	known := make(map[string]bool)
	for _, m := range history {
		for _, tc := range m.ToolCalls {
			known[tc.ID] = true
		}
	}

	var out []api.Message
	for _, blk := range q.Blocks() {
		if blk.RawMessage == nil || len(blk.RawMessage.ToolCalls) == 0 || known[blk.RawMessage.ToolCalls[0].ID] {
			continue
		}
		out = append(out, blk.RawMessage.Clone())
		for _, tc := range blk.RawMessage.ToolCalls {
			known[tc.ID] = true
		}
	}
	for _, r := range messages.Results(q.Blocks()) {
		out = append(out, api.Message{Role: api.RoleTool, ToolCallID: r.CallID, Name: r.Name, Content: r.Content()})
	}
	return out
}
