package engine

import (
	"context"
	"testing"

	"github.com/brubru/aiengine/pkg/provider"
	"github.com/brubru/aiengine/pkg/query"
	"github.com/brubru/aiengine/pkg/storage"
	"github.com/brubru/aiengine/pkg/storage/memory"
)

func TestDiscussionKey(t *testing.T) {
	tests := []struct {
		scope, bot, chat string
		want             string
	}{
		{"", "", "", ""},
		{"", "", "c1", "c1"},
		{"", "b1", "c1", "b1/c1"},
		{"team", "b1", "c1", "team:b1/c1"},
		{"team", "b1", "", ""},
	}
	for _, tt := range tests {
		q := query.NewText("x")
		q.Scope, q.BotID, q.ChatID = tt.scope, tt.bot, tt.chat
		if got := discussionKey(q); got != tt.want {
			t.Errorf("discussionKey(%q, %q, %q) = %q, want %q", tt.scope, tt.bot, tt.chat, got, tt.want)
		}
	}
}

func TestExecute_DiscussionsAreScoped(t *testing.T) {
	fp := chatProvider(func(n int, req *provider.Request) (*provider.Response, error) {
		return textResponse("", "noted"), nil
	})
	store := memory.New(0)
	e := newTestEngine(t, testOptions(), fp, WithStore(store))
	ctx := context.Background()

	run := func(scope, msg string) {
		t.Helper()
		q := query.NewText(msg)
		q.BotID, q.ChatID, q.Scope = "bot-1", "chat-1", scope
		if _, err := e.Execute(ctx, q, nil); err != nil {
			t.Fatalf("Execute(%s) error: %v", scope, err)
		}
	}

	run("team-a", "first")
	run("team-a", "second")
	run("team-b", "other")

	if got := len(fp.request(1).Messages); got != 3 {
		t.Errorf("second team-a turn sent %d messages, want 3", got)
	}
	if got := len(fp.request(2).Messages); got != 1 {
		t.Errorf("team-b turn sent %d messages, want 1", got)
	}

	a, err := store.GetDiscussion(storage.WithScope(ctx, "team-a"), "bot-1", "chat-1")
	if err != nil {
		t.Fatal(err)
	}
	if len(a.Messages) != 4 || a.Version != 2 {
		t.Errorf("team-a: %d messages, version %d", len(a.Messages), a.Version)
	}
	b, err := store.GetDiscussion(storage.WithScope(ctx, "team-b"), "bot-1", "chat-1")
	if err != nil {
		t.Fatal(err)
	}
	if len(b.Messages) != 2 {
		t.Errorf("team-b: %d messages, want 2", len(b.Messages))
	}

	usage, _ := store.ListUsage(ctx, "")
	if len(usage) != 3 {
		t.Errorf("usage records = %d, want 3", len(usage))
	}
}
