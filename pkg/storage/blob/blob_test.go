package blob

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/brubru/aiengine/pkg/storage"
)

func newTestStore(t *testing.T, baseURL string) *Store {
	t.Helper()
	s, err := New(t.TempDir(), baseURL)
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	return s
}

func TestStore(t *testing.T) {
	tests := []struct {
		name       string
		baseURL    string
		blob       storage.Blob
		wantPrefix string
		wantSuffix string
	}{
		{
			name:       "upload with base URL",
			baseURL:    "https://cdn.example.com/media/",
			blob:       storage.Blob{Data: []byte("png"), MimeType: "image/png", Target: storage.TargetUploads},
			wantPrefix: "https://cdn.example.com/media/uploads/",
			wantSuffix: ".png",
		},
		{
			name:       "library without base URL",
			blob:       storage.Blob{Data: []byte("jpg"), MimeType: "image/jpeg", Target: storage.TargetLibrary},
			wantPrefix: "file://",
			wantSuffix: ".jpg",
		},
		{
			name:       "default target",
			baseURL:    "http://localhost",
			blob:       storage.Blob{Data: []byte("x")},
			wantPrefix: "http://localhost/uploads/",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestStore(t, tt.baseURL)
			u, err := s.Store(context.Background(), tt.blob)
			if err != nil {
				t.Fatalf("Store() error: %v", err)
			}
			if !strings.HasPrefix(u, tt.wantPrefix) || !strings.HasSuffix(u, tt.wantSuffix) {
				t.Errorf("url = %q, want prefix %q and suffix %q", u, tt.wantPrefix, tt.wantSuffix)
			}

			target := tt.blob.Target
			if target == "" {
				target = storage.TargetUploads
			}
			name := u[strings.LastIndex(u, "/")+1:]
			data, err := os.ReadFile(filepath.Join(s.dir, target, name))
			if err != nil {
				t.Fatalf("blob not written: %v", err)
			}
			if string(data) != string(tt.blob.Data) {
				t.Errorf("content = %q", data)
			}
		})
	}
}

func TestStore_UnknownTarget(t *testing.T) {
	s := newTestStore(t, "")
	if _, err := s.Store(context.Background(), storage.Blob{Data: []byte("x"), Target: "elsewhere"}); err == nil {
		t.Error("expected an error for an unknown target")
	}
}

func TestLoadMedia(t *testing.T) {
	s := newTestStore(t, "http://localhost")
	ctx := context.Background()

	u, err := s.Store(ctx, storage.Blob{Data: []byte("image bytes"), MimeType: "image/png", Target: storage.TargetLibrary})
	if err != nil {
		t.Fatal(err)
	}
	id := u[strings.LastIndex(u, "/")+1:]

	f, err := s.LoadMedia(ctx, id)
	if err != nil {
		t.Fatalf("LoadMedia() error: %v", err)
	}
	if !f.IsImage() || f.MimeType() != "image/png" {
		t.Errorf("mime = %q", f.MimeType())
	}
	data, _ := f.Data(ctx)
	if string(data) != "image bytes" {
		t.Errorf("data = %q", data)
	}
	if f.Filename() != id {
		t.Errorf("Filename() = %q, want %q", f.Filename(), id)
	}

	if _, err := s.LoadMedia(ctx, "missing.png"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("missing media = %v, want ErrNotFound", err)
	}
	for _, bad := range []string{"", "../secret", ".hidden", id + ".json"} {
		if _, err := s.LoadMedia(ctx, bad); !errors.Is(err, ErrInvalidID) {
			t.Errorf("LoadMedia(%q) = %v, want ErrInvalidID", bad, err)
		}
	}
}

func TestSweep(t *testing.T) {
	s := newTestStore(t, "http://localhost")
	ctx := context.Background()
	now := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }

	expiring, _ := s.Store(ctx, storage.Blob{Data: []byte("a"), MimeType: "image/png", TTL: time.Hour})
	kept, _ := s.Store(ctx, storage.Blob{Data: []byte("b"), MimeType: "image/png"})
	library, _ := s.Store(ctx, storage.Blob{Data: []byte("c"), MimeType: "image/png", Target: storage.TargetLibrary, TTL: time.Hour})

	if n, err := s.Sweep(ctx); err != nil || n != 0 {
		t.Fatalf("early Sweep() = %d, %v", n, err)
	}

	now = now.Add(2 * time.Hour)
	n, err := s.Sweep(ctx)
	if err != nil {
		t.Fatalf("Sweep() error: %v", err)
	}
	if n != 1 {
		t.Errorf("removed = %d, want 1", n)
	}

	exists := func(target, u string) bool {
		_, err := os.Stat(filepath.Join(s.dir, target, u[strings.LastIndex(u, "/")+1:]))
		return err == nil
	}
	if exists(storage.TargetUploads, expiring) {
		t.Error("expired upload still exists")
	}
	if !exists(storage.TargetUploads, kept) {
		t.Error("upload without TTL was removed")
	}
	if !exists(storage.TargetLibrary, library) {
		t.Error("library blob was removed")
	}
}
