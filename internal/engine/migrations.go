package engine

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"charterline/internal/audit"
	"charterline/internal/domain"
	"charterline/internal/migrate"
	"charterline/internal/normalize"
	"charterline/internal/store"
)

// MigratorActor is the audit actor for normalization passes.
const MigratorActor = "system:migrator"

// Open migrates the schema, builds an engine and runs the normalization
// passes once, before any caller can read.
func Open(ctx context.Context, conn *sql.DB, opts ...func(*Engine)) (Engine, []string, error) {
	if _, err := migrate.Migrate(ctx, conn); err != nil {
		return Engine{}, nil, fmt.Errorf("migrate schema: %w", err)
	}
	e := New(conn, nil)
	for _, opt := range opts {
		opt(&e)
	}
	applied, err := e.RunMigrations(ctx)
	if err != nil {
		return Engine{}, nil, err
	}
	return e, applied, nil
}

func (t *tx) snapshot() (normalize.Snapshot, error) {
	var (
		s   normalize.Snapshot
		err error
	)
	if s.Contributors, err = load[domain.Contributor](t, store.KeyContributors); err != nil {
		return s, err
	}
	if s.Agreements, err = load[domain.Agreement](t, store.KeyAgreements); err != nil {
		return s, err
	}
	if s.Evaluations, err = load[domain.Evaluation](t, store.KeyEvaluations); err != nil {
		return s, err
	}
	if s.Apps, err = load[domain.App](t, store.KeyApps); err != nil {
		return s, err
	}
	if s.AgentActions, err = load[domain.AgentAction](t, store.KeyAgentActions); err != nil {
		return s, err
	}
	return s, nil
}

func (t *tx) saveSnapshot(s normalize.Snapshot) error {
	if err := save(t, store.KeyContributors, s.Contributors); err != nil {
		return err
	}
	if err := save(t, store.KeyAgreements, s.Agreements); err != nil {
		return err
	}
	if err := save(t, store.KeyEvaluations, s.Evaluations); err != nil {
		return err
	}
	if err := save(t, store.KeyApps, s.Apps); err != nil {
		return err
	}
	return save(t, store.KeyAgentActions, s.AgentActions)
}

// ranPass records a normalization pass that has run. A recorded pass is
// never applied again, whatever the data looks like later.
type ranPass struct {
	Name    string `json:"name"`
	RanAt   string `json:"ran_at"`
	Mutated bool   `json:"mutated"`
}

// RunMigrations applies the normalization passes that have not run yet, in
// order, each in its own transaction. Every pass runs at most once per
// workspace and writes an audit entry only if it changed something. It
// returns the passes that mutated.
func (e Engine) RunMigrations(ctx context.Context) ([]string, error) {
	opts := normalize.Options{
		NewID:         uuid.NewString,
		CanonicalApps: e.Config.Normalization.CanonicalApps,
		SeedApps:      e.Config.Normalization.SeedApps,
	}
	var applied []string
	for _, pass := range normalize.Passes() {
		mutated := false
		err := e.write(ctx, "migration."+pass.Name, func(t *tx) error {
			ran, err := load[ranPass](t, store.KeyMigrations)
			if err != nil {
				return err
			}
			if indexByID(ran, pass.Name, func(r ranPass) string { return r.Name }) >= 0 {
				return nil
			}
			before, err := t.snapshot()
			if err != nil {
				return err
			}
			o := opts
			o.Now = t.now
			after, details := pass.Apply(before, o)
			mutated = !normalize.Equal(before, after)
			if err := save(t, store.KeyMigrations, append(ran, ranPass{Name: pass.Name, RanAt: t.now, Mutated: mutated})); err != nil {
				return err
			}
			if !mutated {
				return nil
			}
			if err := t.saveSnapshot(after); err != nil {
				return err
			}
			return t.audit("migration.applied", domain.EntityMigration, pass.Name, MigratorActor, audit.Details(details))
		})
		if err != nil {
			return applied, fmt.Errorf("normalization pass %s: %w", pass.Name, err)
		}
		if mutated {
			applied = append(applied, pass.Name)
		}
	}
	return applied, nil
}

// AuditByEntity returns an entity's audit trail, newest first.
func (e Engine) AuditByEntity(ctx context.Context, entityType, entityID string) ([]domain.AuditLogEntry, error) {
	return e.Ledger.ListByEntity(ctx, nil, entityType, entityID)
}

// AuditRecent returns the latest n audit entries, newest first.
func (e Engine) AuditRecent(ctx context.Context, n int) ([]domain.AuditLogEntry, error) {
	return e.Ledger.ListRecent(ctx, nil, n)
}

// VerifyAudit checks the audit hash chain and returns the number of entries.
func (e Engine) VerifyAudit(ctx context.Context) (int, error) {
	return e.Ledger.Verify(ctx, nil)
}
