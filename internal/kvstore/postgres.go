package kvstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Postgres is a Store backed by a key/value table.
type Postgres struct {
	pool      *pgxpool.Pool
	table     string // sanitized identifier
	ownsPool  bool
	getSQL    string
	upsertSQL string
}

// NewPostgres creates the table if needed. When ownsPool is true, Close also
// closes the pool.
func NewPostgres(ctx context.Context, pool *pgxpool.Pool, table string, ownsPool bool) (*Postgres, error) {
	ident := pgx.Identifier{table}.Sanitize()
	p := &Postgres{
		pool:     pool,
		table:    ident,
		ownsPool: ownsPool,
	}
	p.getSQL, p.upsertSQL = postgresStatements(ident)

	ddl := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		key        TEXT PRIMARY KEY,
		value      TEXT NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`, ident)
	if _, err := pool.Exec(ctx, ddl); err != nil {
		return nil, fmt.Errorf("create table %s: %w", ident, err)
	}
	return p, nil
}

func postgresStatements(ident string) (get, upsert string) {
	get = fmt.Sprintf(`SELECT value FROM %s WHERE key = $1`, ident)
	upsert = fmt.Sprintf(`INSERT INTO %s (key, value, updated_at) VALUES ($1, $2, now())
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = EXCLUDED.updated_at`, ident)
	return get, upsert
}

func (p *Postgres) Get(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := p.pool.QueryRow(ctx, p.getSQL, key).Scan(&value)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("postgres get %q: %w", key, err)
	}
	return value, true, nil
}

func (p *Postgres) Set(ctx context.Context, key, value string) error {
	if _, err := p.pool.Exec(ctx, p.upsertSQL, key, value); err != nil {
		return fmt.Errorf("postgres set %q: %w", key, err)
	}
	return nil
}

func (p *Postgres) Close() error {
	if p.ownsPool {
		p.pool.Close()
	}
	return nil
}
