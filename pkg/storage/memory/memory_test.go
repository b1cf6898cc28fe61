package memory

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/brubru/aiengine/pkg/api"
	"github.com/brubru/aiengine/pkg/storage"
)

func makeDiscussion(chatID string) *storage.Discussion {
	return &storage.Discussion{
		BotID:  "bot-1",
		ChatID: chatID,
		Messages: []api.Message{
			{Role: api.RoleUser, Content: "hello"},
			{Role: api.RoleAssistant, Content: "hi"},
		},
		Extra:     map[string]any{"responseId": "resp_1"},
		CreatedAt: time.Unix(1000, 0),
		UpdatedAt: time.Unix(1000, 0),
	}
}

func TestSaveAndGet(t *testing.T) {
	s := New(0)
	ctx := context.Background()

	d := makeDiscussion("chat-1")
	if err := s.SaveDiscussion(ctx, d); err != nil {
		t.Fatalf("SaveDiscussion failed: %v", err)
	}
	if d.Version != 1 {
		t.Errorf("Version after first save = %d, want 1", d.Version)
	}

	got, err := s.GetDiscussion(ctx, "bot-1", "chat-1")
	if err != nil {
		t.Fatalf("GetDiscussion failed: %v", err)
	}
	if len(got.Messages) != 2 || got.Messages[1].Content != "hi" {
		t.Errorf("Messages = %+v", got.Messages)
	}
	if got.Extra["responseId"] != "resp_1" {
		t.Errorf("Extra = %v", got.Extra)
	}

	got.Messages[0].Content = "changed"
	again, _ := s.GetDiscussion(ctx, "bot-1", "chat-1")
	if again.Messages[0].Content != "hello" {
		t.Error("GetDiscussion returned shared state")
	}
}

func TestGetNotFound(t *testing.T) {
	s := New(0)

	_, err := s.GetDiscussion(context.Background(), "bot-1", "missing")
	if !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestVersionConflict(t *testing.T) {
	s := New(0)
	ctx := context.Background()

	s.SaveDiscussion(ctx, makeDiscussion("chat-1"))

	a, _ := s.GetDiscussion(ctx, "bot-1", "chat-1")
	b, _ := s.GetDiscussion(ctx, "bot-1", "chat-1")

	a.Messages = append(a.Messages, api.Message{Role: api.RoleUser, Content: "from a"})
	if err := s.SaveDiscussion(ctx, a); err != nil {
		t.Fatalf("first concurrent save failed: %v", err)
	}
	b.Messages = append(b.Messages, api.Message{Role: api.RoleUser, Content: "from b"})
	if err := s.SaveDiscussion(ctx, b); !errors.Is(err, storage.ErrConflict) {
		t.Errorf("stale save = %v, want ErrConflict", err)
	}

	if err := s.SaveDiscussion(ctx, makeDiscussion("chat-1")); !errors.Is(err, storage.ErrConflict) {
		t.Errorf("saving a new discussion over an existing one = %v, want ErrConflict", err)
	}
}

func TestDelete(t *testing.T) {
	s := New(0)
	ctx := context.Background()

	s.SaveDiscussion(ctx, makeDiscussion("chat-1"))
	if err := s.DeleteDiscussion(ctx, "bot-1", "chat-1"); err != nil {
		t.Fatalf("DeleteDiscussion failed: %v", err)
	}
	if _, err := s.GetDiscussion(ctx, "bot-1", "chat-1"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("get after delete = %v, want ErrNotFound", err)
	}
	if err := s.DeleteDiscussion(ctx, "bot-1", "chat-1"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("second delete = %v, want ErrNotFound", err)
	}

	// A deleted discussion can start over.
	if err := s.SaveDiscussion(ctx, makeDiscussion("chat-1")); err != nil {
		t.Errorf("save after delete failed: %v", err)
	}
}

func TestLRUEviction(t *testing.T) {
	s := New(3)
	ctx := context.Background()

	for i := 1; i <= 3; i++ {
		s.SaveDiscussion(ctx, makeDiscussion(fmt.Sprintf("chat-%d", i)))
	}

	// Touch chat-1 so chat-2 becomes the least recently used.
	if _, err := s.GetDiscussion(ctx, "bot-1", "chat-1"); err != nil {
		t.Fatal(err)
	}
	s.SaveDiscussion(ctx, makeDiscussion("chat-4"))

	if s.Len() != 3 {
		t.Errorf("Len = %d, want 3", s.Len())
	}
	if _, err := s.GetDiscussion(ctx, "bot-1", "chat-2"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("chat-2 should have been evicted, got %v", err)
	}
	for _, id := range []string{"chat-1", "chat-3", "chat-4"} {
		if _, err := s.GetDiscussion(ctx, "bot-1", id); err != nil {
			t.Errorf("%s should still exist: %v", id, err)
		}
	}
}

func TestLRUEviction_Unlimited(t *testing.T) {
	s := New(0)
	ctx := context.Background()

	for i := range 100 {
		s.SaveDiscussion(ctx, makeDiscussion(fmt.Sprintf("chat-%d", i)))
	}
	if s.Len() != 100 {
		t.Errorf("Len = %d, want 100", s.Len())
	}
}

func TestScopeIsolation(t *testing.T) {
	s := New(0)
	a := storage.WithScope(context.Background(), "team-a")
	b := storage.WithScope(context.Background(), "team-b")

	s.SaveDiscussion(a, makeDiscussion("chat-1"))

	if _, err := s.GetDiscussion(a, "bot-1", "chat-1"); err != nil {
		t.Errorf("same scope: %v", err)
	}
	if _, err := s.GetDiscussion(b, "bot-1", "chat-1"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("other scope = %v, want ErrNotFound", err)
	}
	if err := s.DeleteDiscussion(b, "bot-1", "chat-1"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("delete from other scope = %v, want ErrNotFound", err)
	}
	if err := s.SaveDiscussion(b, makeDiscussion("chat-1")); err != nil {
		t.Errorf("same IDs in another scope: %v", err)
	}
}

func TestRecordUsage(t *testing.T) {
	s := New(2)
	ctx := context.Background()

	for i, session := range []string{"s1", "s2", "s1"} {
		err := s.RecordUsage(ctx, storage.UsageRecord{
			Session: session,
			Model:   "gpt-main",
			Usage:   api.Usage{TotalTokens: 10 * (i + 1)},
		})
		if err != nil {
			t.Fatal(err)
		}
	}

	all, err := s.ListUsage(ctx, "")
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 2 {
		t.Fatalf("kept records = %d, want 2", len(all))
	}
	if all[0].Usage.TotalTokens != 20 {
		t.Errorf("oldest kept record has %d tokens, want 20", all[0].Usage.TotalTokens)
	}
	if got, _ := s.ListUsage(ctx, "s1"); len(got) != 1 || got[0].Usage.TotalTokens != 30 {
		t.Errorf("Usage(s1) = %+v", got)
	}
}
