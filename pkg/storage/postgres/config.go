package postgres

import (
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	defaultMaxConns        = 25
	defaultMinConns        = 5
	defaultConnLifetime    = 5 * time.Minute
	defaultApplicationName = "aiengine"
)

// Config selects the database and tunes the pgx pool of a Store.
type Config struct {
	// DSN is a PostgreSQL URL or keyword/value connection string.
	DSN string

	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration

	// ApplicationName is reported to the server and shows up in
	// pg_stat_activity. Defaults to "aiengine".
	ApplicationName string

	// MigrateOnStart applies the embedded schema before the store is used.
	MigrateOnStart bool
}

// poolConfig parses the DSN and applies the pool settings, falling back to
// the package defaults for zero values. MinConns is capped at MaxConns.
func (c Config) poolConfig() (*pgxpool.Config, error) {
	pc, err := pgxpool.ParseConfig(c.DSN)
	if err != nil {
		return nil, fmt.Errorf("parsing DSN: %w", err)
	}

	pc.MaxConns = orDefault(c.MaxConns, defaultMaxConns)
	pc.MinConns = min(orDefault(c.MinConns, defaultMinConns), pc.MaxConns)
	pc.MaxConnLifetime = orDefault(c.MaxConnLifetime, defaultConnLifetime)
	pc.ConnConfig.RuntimeParams["application_name"] = orDefault(c.ApplicationName, defaultApplicationName)
	return pc, nil
}

func orDefault[T comparable](v, def T) T {
	var zero T
	if v == zero {
		return def
	}
	return v
}
