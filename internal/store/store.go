// Package store is the key to JSON-document persistence used by the engine.
// Each entity type is kept as one whole collection under its own key.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Collection keys.
const (
	KeyContributors = "contributors"
	KeyAgreements   = "agreements"
	KeyEvaluations  = "evaluations"
	KeyApps         = "apps"
	KeyAgentActions = "agent_actions"

	// KeyMigrations holds the normalization passes that have already run.
	KeyMigrations = "migrations"
)

// Querier is satisfied by *sql.DB and *sql.Tx.
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type Store struct {
	DB  *sql.DB
	Now func() time.Time
}

func (s Store) q(q Querier) Querier {
	if q == nil {
		return s.DB
	}
	return q
}

func (s Store) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

// Get returns the document stored under key, or nil when there is none.
func (s Store) Get(ctx context.Context, q Querier, key string) ([]byte, error) {
	var value []byte
	err := s.q(q).QueryRowContext(ctx, `SELECT value FROM documents WHERE key=?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", key, err)
	}
	return value, nil
}

// Put replaces the document stored under key.
func (s Store) Put(ctx context.Context, q Querier, key string, value []byte) error {
	ts := s.now().UTC().Format(time.RFC3339)
	_, err := s.q(q).ExecContext(ctx, `INSERT INTO documents(key,value,updated_at) VALUES (?,?,?)
ON CONFLICT(key) DO UPDATE SET value=excluded.value, updated_at=excluded.updated_at`, key, value, ts)
	if err != nil {
		return fmt.Errorf("put %s: %w", key, err)
	}
	return nil
}

// Update runs fn inside a transaction, committing only if fn succeeds.
func (s Store) Update(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

// LoadCollection decodes the collection under key; a missing key is empty.
func LoadCollection[T any](ctx context.Context, s Store, q Querier, key string) ([]T, error) {
	raw, err := s.Get(ctx, q, key)
	if err != nil {
		return nil, err
	}
	items := []T{}
	if raw == nil {
		return items, nil
	}
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, fmt.Errorf("decode %s: %w", key, err)
	}
	return items, nil
}

func SaveCollection[T any](ctx context.Context, s Store, q Querier, key string, items []T) error {
	if items == nil {
		items = []T{}
	}
	raw, err := json.Marshal(items)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	return s.Put(ctx, q, key, raw)
}
