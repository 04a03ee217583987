package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore keeps entries in the cache_entries table keyed by
// (cache_key, cache_type). The data column is opaque bytes.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(ctx context.Context, dsn string) (*PostgresStore, error) {
	if dsn == "" {
		return nil, fmt.Errorf("postgres DSN is required")
	}

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("create postgres pool: %w", err)
	}

	s := &PostgresStore{pool: pool}
	if err := s.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS cache_entries (
			cache_key TEXT NOT NULL,
			cache_type TEXT NOT NULL,
			data BYTEA NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL,
			expires_at TIMESTAMPTZ NOT NULL,
			PRIMARY KEY (cache_key, cache_type)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_cache_entries_expires_at ON cache_entries(expires_at)`,
	}
	for _, stmt := range stmts {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, key string, category Category) (Entry, error) {
	e := Entry{Key: key, Category: category}
	err := s.pool.QueryRow(ctx, `
		SELECT data, updated_at, expires_at
		FROM cache_entries
		WHERE cache_key = $1 AND cache_type = $2
	`, key, string(category)).Scan(&e.Payload, &e.StoredAt, &e.ExpiresAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Entry{}, ErrNotFound
	}
	if err != nil {
		return Entry{}, fmt.Errorf("get cache entry: %w", err)
	}
	return e, nil
}

func (s *PostgresStore) Put(ctx context.Context, entry Entry) error {
	payload := entry.Payload
	if payload == nil {
		payload = []byte{}
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO cache_entries (cache_key, cache_type, data, updated_at, expires_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (cache_key, cache_type) DO UPDATE SET
			data = EXCLUDED.data,
			updated_at = EXCLUDED.updated_at,
			expires_at = EXCLUDED.expires_at
	`, entry.Key, string(entry.Category), payload, entry.StoredAt, entry.ExpiresAt)
	if err != nil {
		return fmt.Errorf("put cache entry: %w", err)
	}
	return nil
}

func (s *PostgresStore) Delete(ctx context.Context, key string, category Category) error {
	_, err := s.pool.Exec(ctx, `
		DELETE FROM cache_entries WHERE cache_key = $1 AND cache_type = $2
	`, key, string(category))
	if err != nil {
		return fmt.Errorf("delete cache entry: %w", err)
	}
	return nil
}

func (s *PostgresStore) DeleteExpired(ctx context.Context, key string, category Category, asOf time.Time) error {
	_, err := s.pool.Exec(ctx, `
		DELETE FROM cache_entries
		WHERE cache_key = $1 AND cache_type = $2 AND expires_at <= $3
	`, key, string(category), asOf)
	if err != nil {
		return fmt.Errorf("delete expired cache entry: %w", err)
	}
	return nil
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	if s.pool == nil {
		return fmt.Errorf("postgres not initialized")
	}
	return s.pool.Ping(ctx)
}

func (s *PostgresStore) Close() error {
	if s.pool != nil {
		s.pool.Close()
	}
	return nil
}
