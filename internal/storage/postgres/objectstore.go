// Package postgres stores dining objects as JSONB rows keyed by kind and id.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/tinywideclouds/go-dining-satellite/pkg/dining"
)

// Schema creates the object table. Applied by EnsureSchema.
const Schema = `
CREATE TABLE IF NOT EXISTS dining_objects (
	kind       TEXT        NOT NULL,
	id         TEXT        NOT NULL,
	body       JSONB       NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (kind, id)
)`

// executor is the subset of pgxpool.Pool (and pgx.Tx) the store uses.
type executor interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// ObjectStore implements dining.ObjectRepository on PostgreSQL.
type ObjectStore struct {
	db executor
}

func NewObjectStore(db executor) *ObjectStore {
	return &ObjectStore{db: db}
}

// Connect opens a pool for dsn and pings it.
func Connect(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse connection string: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return pool, nil
}

func (s *ObjectStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("create dining_objects: %w", err)
	}
	return nil
}

func (s *ObjectStore) Fetch(ctx context.Context, kind dining.ObjectKind, id string, dest any) error {
	if id == "" {
		return fmt.Errorf("%w: empty %s id", dining.ErrInvalidArgument, kind)
	}
	var body []byte
	err := s.db.QueryRow(ctx, `SELECT body FROM dining_objects WHERE kind = $1 AND id = $2`, string(kind), id).Scan(&body)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("%s %q: %w", kind, id, dining.ErrNotFound)
		}
		return fmt.Errorf("select %s %q failed: %w", kind, id, err)
	}
	if err := json.Unmarshal(body, dest); err != nil {
		return fmt.Errorf("failed to decode %s %q: %w", kind, id, err)
	}
	return nil
}

func (s *ObjectStore) Save(ctx context.Context, kind dining.ObjectKind, id string, obj any) error {
	if id == "" {
		return fmt.Errorf("%w: empty %s id", dining.ErrInvalidArgument, kind)
	}
	body, err := json.Marshal(obj)
	if err != nil {
		return fmt.Errorf("failed to encode %s %q: %w", kind, id, err)
	}
	_, err = s.db.Exec(ctx, `
		INSERT INTO dining_objects (kind, id, body, updated_at)
		VALUES ($1, $2, $3, now())
		ON CONFLICT (kind, id) DO UPDATE
		SET body = EXCLUDED.body, updated_at = EXCLUDED.updated_at
	`, string(kind), id, body)
	if err != nil {
		return fmt.Errorf("upsert %s %q failed: %w", kind, id, err)
	}
	return nil
}
