package audit_test

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"charterline/internal/audit"
	"charterline/internal/db"
	"charterline/internal/domain"
	"charterline/internal/migrate"
)

func newLedger(t *testing.T) (*sql.DB, audit.Ledger) {
	t.Helper()
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	_, err = migrate.Migrate(context.Background(), conn)
	require.NoError(t, err)
	now := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	return conn, audit.Ledger{DB: conn, Now: func() time.Time { return now }}
}

func appendOne(t *testing.T, conn *sql.DB, l audit.Ledger, action, entityType, entityID string, details audit.Details) domain.AuditLogEntry {
	t.Helper()
	ctx := context.Background()
	tx, err := conn.BeginTx(ctx, nil)
	require.NoError(t, err)
	defer tx.Rollback()
	e, err := l.Append(ctx, tx, action, entityType, entityID, "founder", details)
	require.NoError(t, err)
	require.NoError(t, tx.Commit())
	return e
}

func TestAppendLinksChain(t *testing.T) {
	conn, l := newLedger(t)
	first := appendOne(t, conn, l, "contributor.created", domain.EntityContributor, "c1", audit.Details{"email": "a@b.c"})
	second := appendOne(t, conn, l, "contributor.tier_changed", domain.EntityContributor, "c1", audit.Details{
		"from": 0, "to": 1, "tag": domain.NewTagEntry(domain.FitStrong, true),
	})

	assert.Empty(t, first.PrevHash)
	assert.Equal(t, first.Hash, second.PrevHash)
	assert.Greater(t, second.Seq, first.Seq)

	n, err := l.Verify(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestListByEntityAndRecent(t *testing.T) {
	ctx := context.Background()
	conn, l := newLedger(t)
	appendOne(t, conn, l, "app.created", domain.EntityApp, "a1", nil)
	appendOne(t, conn, l, "contributor.created", domain.EntityContributor, "c1", nil)
	appendOne(t, conn, l, "app.updated", domain.EntityApp, "a1", audit.Details{"field": "scope"})

	byEntity, err := l.ListByEntity(ctx, nil, domain.EntityApp, "a1")
	require.NoError(t, err)
	require.Len(t, byEntity, 2)
	assert.Equal(t, "app.updated", byEntity[0].Action)
	assert.Equal(t, "scope", byEntity[0].Details["field"])
	assert.Equal(t, "app.created", byEntity[1].Action)

	recent, err := l.ListRecent(ctx, nil, 2)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, "app.updated", recent[0].Action)

	after, err := l.After(ctx, nil, recent[1].Seq, 10)
	require.NoError(t, err)
	require.Len(t, after, 1)
	assert.Equal(t, recent[0].ID, after[0].ID)

	latest, err := l.LatestSeq(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, recent[0].Seq, latest)

	count, err := l.Count(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, 3, count)
}

func TestRolledBackAppendLeavesNoEntry(t *testing.T) {
	ctx := context.Background()
	conn, l := newLedger(t)
	tx, err := conn.BeginTx(ctx, nil)
	require.NoError(t, err)
	_, err = l.Append(ctx, tx, "app.created", domain.EntityApp, "a1", "founder", nil)
	require.NoError(t, err)
	require.NoError(t, tx.Rollback())

	count, err := l.Count(ctx, nil)
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestVerifyDetectsTampering(t *testing.T) {
	ctx := context.Background()
	conn, l := newLedger(t)
	appendOne(t, conn, l, "app.created", domain.EntityApp, "a1", nil)
	appendOne(t, conn, l, "app.updated", domain.EntityApp, "a1", nil)

	_, err := conn.ExecContext(ctx, `DROP TRIGGER audit_log_no_update`)
	require.NoError(t, err)
	_, err = conn.ExecContext(ctx, `UPDATE audit_log SET actor='mallory' WHERE seq=1`)
	require.NoError(t, err)

	_, err = l.Verify(ctx, nil)
	var inv domain.InvariantViolationError
	require.ErrorAs(t, err, &inv)
	assert.Equal(t, "audit.hash_chain", inv.Invariant)
}
