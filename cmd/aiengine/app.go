package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/hashicorp/go-multierror"

	"github.com/brubru/aiengine/pkg/config"
	"github.com/brubru/aiengine/pkg/debug"
	"github.com/brubru/aiengine/pkg/engine"
	"github.com/brubru/aiengine/pkg/storage"
	"github.com/brubru/aiengine/pkg/storage/blob"
	"github.com/brubru/aiengine/pkg/storage/memory"
	"github.com/brubru/aiengine/pkg/storage/postgres"
	"github.com/brubru/aiengine/pkg/storage/sqlite"
)

// app holds the components built from one configuration.
type app struct {
	cfg    *config.Config
	store  storage.Store
	blobs  *blob.Store
	engine *engine.Engine
}

// newApp loads the configuration and wires the stores and the engine.
func newApp(ctx context.Context, configFile string) (*app, error) {
	cfg, err := config.Load(configFile)
	if err != nil {
		return nil, err
	}
	debug.Init(debug.Settings{
		Categories: cfg.Debug.Categories,
		Level:      cfg.Debug.Level,
		Format:     cfg.Debug.Format,
		Queries:    cfg.Debug.Queries,
	})

	store, err := newStore(ctx, cfg.Storage)
	if err != nil {
		return nil, err
	}

	a := &app{cfg: cfg, store: store}
	options := []engine.Option{
		engine.WithMCPServers(cfg.MCP.Servers),
		engine.WithTimeout(cfg.Engine.Timeout),
	}
	if store != nil {
		options = append(options, engine.WithStore(store))
	}
	if cfg.Storage.Blob.Dir != "" {
		blobs, err := blob.New(cfg.Storage.Blob.Dir, cfg.Storage.Blob.BaseURL)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("creating blob store: %w", err)
		}
		a.blobs = blobs
		options = append(options, engine.WithBlobs(blobs), engine.WithMedia(blobs))
	}
	a.engine = engine.New(cfg, options...)

	slog.Debug("engine ready",
		"environments", len(cfg.Environments), "storage", cfg.Storage.Type, "mcp_servers", len(cfg.MCP.Servers))
	return a, nil
}

// newStore creates the discussion and usage store named by cfg.Type. The
// "none" type returns a nil store.
func newStore(ctx context.Context, cfg config.StorageConfig) (storage.Store, error) {
	switch cfg.Type {
	case "", "memory":
		return memory.New(cfg.MaxSize), nil
	case "postgres":
		s, err := postgres.New(ctx, postgres.Config{
			DSN:            cfg.Postgres.DSN,
			MaxConns:       cfg.Postgres.MaxConns,
			MigrateOnStart: cfg.Postgres.MigrateOnStart,
		})
		if err != nil {
			return nil, fmt.Errorf("creating postgres store: %w", err)
		}
		return s, nil
	case "sqlite":
		s, err := sqlite.New(ctx, cfg.SQLite.Path)
		if err != nil {
			return nil, fmt.Errorf("creating sqlite store: %w", err)
		}
		return s, nil
	case "none":
		return nil, nil
	default:
		return nil, fmt.Errorf("unknown storage type %q", cfg.Type)
	}
}

// Close releases the engine providers and the store.
func (a *app) Close() error {
	var result *multierror.Error
	if a.engine != nil {
		if err := a.engine.Close(); err != nil {
			result = multierror.Append(result, err)
		}
	}
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			result = multierror.Append(result, fmt.Errorf("closing store: %w", err))
		}
	}
	return result.ErrorOrNil()
}
