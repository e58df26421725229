// Package kvstore provides the persisted string key-value store behind the
// notification dedupe set.
//
// Backends:
//   - Memory: process-local, for tests and ephemeral runs
//   - SQLite: single-file on-device store (modernc.org/sqlite, no cgo)
//   - Redis: shared store for multi-process deployments
//   - Postgres: a two-column table in an existing database
package kvstore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/rickgao/matchsync/internal/config"
	"github.com/rickgao/matchsync/internal/database"
)

// ErrClosed is returned by operations on a closed store.
var ErrClosed = errors.New("kvstore closed")

// Store is a persisted string key-value store.
type Store interface {
	// Get returns the value for key; ok is false when the key is absent.
	Get(ctx context.Context, key string) (value string, ok bool, err error)

	// Set stores value under key, replacing any previous value.
	Set(ctx context.Context, key, value string) error

	// Close releases the underlying resources.
	Close() error
}

// Open creates the store selected by cfg.Driver.
func Open(ctx context.Context, cfg config.StorageConfig, logger *slog.Logger) (Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "kvstore", "driver", cfg.Driver)

	switch cfg.Driver {
	case config.DriverMemory, "":
		return NewMemory(), nil

	case config.DriverSQLite:
		s, err := OpenSQLite(ctx, cfg.SQLite.Path)
		if err != nil {
			return nil, err
		}
		logger.Info("opened sqlite store", "path", cfg.SQLite.Path)
		return s, nil

	case config.DriverRedis:
		s, err := OpenRedis(ctx, cfg.Redis)
		if err != nil {
			return nil, err
		}
		logger.Info("connected to redis", "addr", cfg.Redis.Addr, "db", cfg.Redis.DB)
		return s, nil

	case config.DriverPostgres:
		pool, err := database.Connect(ctx, cfg.Postgres.DBConfig)
		if err != nil {
			return nil, fmt.Errorf("connect postgres: %w", err)
		}
		s, err := NewPostgres(ctx, pool, cfg.Postgres.Table, true)
		if err != nil {
			pool.Close()
			return nil, err
		}
		logger.Info("connected to postgres",
			"host", cfg.Postgres.Host,
			"database", cfg.Postgres.Name,
			"table", cfg.Postgres.Table,
		)
		return s, nil

	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Driver)
	}
}
