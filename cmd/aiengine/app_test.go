package main

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/brubru/aiengine/pkg/config"
	"github.com/brubru/aiengine/pkg/storage/memory"
	"github.com/brubru/aiengine/pkg/storage/sqlite"
)

// writeConfig writes a YAML config into a temp dir and returns its path.
func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestNewStore(t *testing.T) {
	ctx := context.Background()

	t.Run("memory", func(t *testing.T) {
		s, err := newStore(ctx, config.StorageConfig{Type: "memory", MaxSize: 10})
		if err != nil {
			t.Fatalf("newStore() error: %v", err)
		}
		defer s.Close()
		if _, ok := s.(*memory.Store); !ok {
			t.Errorf("store = %T, want *memory.Store", s)
		}
	})

	t.Run("sqlite", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "data", "aiengine.db")
		s, err := newStore(ctx, config.StorageConfig{Type: "sqlite", SQLite: config.SQLiteConfig{Path: path}})
		if err != nil {
			t.Fatalf("newStore() error: %v", err)
		}
		defer s.Close()
		if _, ok := s.(*sqlite.Store); !ok {
			t.Errorf("store = %T, want *sqlite.Store", s)
		}
		if _, err := os.Stat(path); err != nil {
			t.Errorf("database file not created: %v", err)
		}
	})

	t.Run("none", func(t *testing.T) {
		s, err := newStore(ctx, config.StorageConfig{Type: "none"})
		if err != nil {
			t.Fatalf("newStore() error: %v", err)
		}
		if s != nil {
			t.Errorf("store = %T, want nil", s)
		}
	})

	t.Run("unknown", func(t *testing.T) {
		if _, err := newStore(ctx, config.StorageConfig{Type: "redis"}); err == nil {
			t.Error("expected an error for an unknown storage type")
		}
	})
}

func TestNewApp(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, `
environments:
  - id: local
    type: custom
    endpoint: http://127.0.0.1:1/v1
    models:
      - model: m1
engine:
  default_env: local
  default_model: m1
storage:
  type: sqlite
  sqlite:
    path: `+filepath.Join(dir, "aiengine.db")+`
  blob:
    dir: `+filepath.Join(dir, "blobs")+`
`)

	a, err := newApp(context.Background(), path)
	if err != nil {
		t.Fatalf("newApp() error: %v", err)
	}
	defer a.Close()

	if _, ok := a.store.(*sqlite.Store); !ok {
		t.Errorf("store = %T, want *sqlite.Store", a.store)
	}
	if a.blobs == nil {
		t.Error("blob store not created")
	}
	if _, err := os.Stat(filepath.Join(dir, "blobs")); err != nil {
		t.Errorf("blob dir not created: %v", err)
	}
	if a.engine == nil {
		t.Fatal("engine not created")
	}
	if _, err := a.engine.Provider("local"); err != nil {
		t.Errorf("Provider(local) error: %v", err)
	}
}

func TestNewApp_InvalidConfig(t *testing.T) {
	path := writeConfig(t, `
environments:
  - id: local
    type: custom
`)
	_, err := newApp(context.Background(), path)
	if err == nil || !strings.Contains(err.Error(), "endpoint is required") {
		t.Errorf("err = %v, want endpoint validation error", err)
	}
}

func TestLoadEnvFile(t *testing.T) {
	const key = "AIENGINE_CLI_TEST_VALUE"
	path := filepath.Join(t.TempDir(), ".env")
	if err := os.WriteFile(path, []byte(key+"=from-file\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { os.Unsetenv(key) })

	if err := loadEnvFile(path); err != nil {
		t.Fatalf("loadEnvFile() error: %v", err)
	}
	if got := os.Getenv(key); got != "from-file" {
		t.Errorf("%s = %q", key, got)
	}

	if err := loadEnvFile(filepath.Join(t.TempDir(), "missing.env")); err != nil {
		t.Errorf("missing file: error %v, want nil", err)
	}
}
