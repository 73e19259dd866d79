package engine

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"sync"
	"time"

	"charterline/internal/audit"
	"charterline/internal/config"
	"charterline/internal/domain"
	"charterline/internal/store"
)

// Engine orchestrates every governance lifecycle. Mutations are serialized
// through one lock and each runs in a single transaction that also appends
// its audit entry, so a record and its audit trail commit together or not
// at all.
type Engine struct {
	DB      *sql.DB
	Store   store.Store
	Ledger  audit.Ledger
	Config  *config.Config
	Now     func() time.Time
	Logger  *slog.Logger
	Metrics *Metrics

	mu *sync.Mutex
}

func New(db *sql.DB, cfg *config.Config) Engine {
	if cfg == nil {
		cfg = config.Default()
	}
	e := Engine{
		DB:      db,
		Config:  cfg,
		Now:     time.Now,
		Logger:  slog.Default(),
		Metrics: NewMetrics(),
		mu:      &sync.Mutex{},
	}
	e.Store = store.Store{DB: db}
	e.Ledger = audit.Ledger{DB: db}
	return e
}

func WithConfig(cfg *config.Config) func(*Engine) {
	return func(e *Engine) {
		if cfg != nil {
			e.Config = cfg
		}
	}
}

func WithLogger(l *slog.Logger) func(*Engine) {
	return func(e *Engine) { e.Logger = l }
}

func WithClock(now func() time.Time) func(*Engine) {
	return func(e *Engine) { e.Now = now }
}

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func (e Engine) timestamp() string {
	return e.now().UTC().Format(time.RFC3339)
}

func (e Engine) logger() *slog.Logger {
	if e.Logger != nil {
		return e.Logger
	}
	return slog.Default()
}

// tx is the handle a mutation works through. Reads inside a mutation must
// go through it: the database allows one connection, which the open
// transaction holds.
type tx struct {
	ctx     context.Context
	sql     *sql.Tx
	e       Engine
	now     string
	entries []domain.AuditLogEntry
}

func (t *tx) audit(action, entityType, entityID, actor string, details audit.Details) error {
	entry, err := t.e.Ledger.Append(t.ctx, t.sql, action, entityType, entityID, actor, details)
	if err != nil {
		return err
	}
	t.entries = append(t.entries, entry)
	return nil
}

func load[T any](t *tx, key string) ([]T, error) {
	return store.LoadCollection[T](t.ctx, t.e.Store, t.sql, key)
}

func save[T any](t *tx, key string, items []T) error {
	return store.SaveCollection(t.ctx, t.e.Store, t.sql, key, items)
}

// write runs fn as one serialized, atomic mutation named op.
func (e Engine) write(ctx context.Context, op string, fn func(t *tx) error) error {
	if e.mu == nil {
		return errors.New("engine not initialised; use engine.New")
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	start := time.Now()
	entries, err := e.run(ctx, fn)
	e.Metrics.observe(op, err, time.Since(start))

	log := e.logger()
	if err != nil {
		log.WarnContext(ctx, "operation rejected", "op", op, "code", domain.Code(err), "error", err)
		return err
	}
	for _, entry := range entries {
		log.InfoContext(ctx, "operation committed", "op", op, "entity_type", entry.EntityType, "entity_id", entry.EntityID, "actor", entry.Actor, "seq", entry.Seq)
	}
	return nil
}

func (e Engine) run(ctx context.Context, fn func(t *tx) error) ([]domain.AuditLogEntry, error) {
	e.Store.Now = e.Now
	e.Ledger.Now = e.Now
	var entries []domain.AuditLogEntry
	err := e.Store.Update(ctx, func(sqlTx *sql.Tx) error {
		t := &tx{ctx: ctx, sql: sqlTx, e: e, now: e.timestamp()}
		if err := fn(t); err != nil {
			return err
		}
		entries = t.entries
		return nil
	})
	if err != nil {
		return nil, err
	}
	return entries, nil
}

func requireActor(actor string) error {
	if actor == "" {
		return domain.ValidationError{Field: "actor", Reason: "required"}
	}
	return nil
}

// requireFounder gates operations that grant capability or take a founder
// decision.
func (e Engine) requireFounder(actor string) error {
	if err := requireActor(actor); err != nil {
		return err
	}
	if !e.Config.IsFounder(actor) {
		return domain.ForbiddenError{Actor: actor, Role: "founder"}
	}
	return nil
}

func indexByID[T any](items []T, id string, idOf func(T) string) int {
	for i, it := range items {
		if idOf(it) == id {
			return i
		}
	}
	return -1
}

func optionalString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
