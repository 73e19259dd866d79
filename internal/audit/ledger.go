// Package audit is the append-only, hash-chained audit log. Entries are
// written inside the caller's transaction so an audit row exists if and only
// if the mutation it describes was committed.
package audit

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"charterline/internal/domain"
)

type Ledger struct {
	DB  *sql.DB
	Now func() time.Time
}

type Details map[string]any

// Querier is satisfied by *sql.DB and *sql.Tx.
type Querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

const selectCols = `seq,id,action,entity_type,entity_id,actor,ts,details_json,prev_hash,hash`

// Append records one entry and links it to the previous entry's hash.
func (l Ledger) Append(ctx context.Context, tx *sql.Tx, action, entityType, entityID, actor string, details Details) (domain.AuditLogEntry, error) {
	if l.Now == nil {
		l.Now = time.Now
	}
	details, err := canonical(details)
	if err != nil {
		return domain.AuditLogEntry{}, err
	}
	var prev string
	err = tx.QueryRowContext(ctx, `SELECT hash FROM audit_log ORDER BY seq DESC LIMIT 1`).Scan(&prev)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return domain.AuditLogEntry{}, fmt.Errorf("read audit head: %w", err)
	}
	entry := domain.AuditLogEntry{
		ID:         uuid.NewString(),
		Action:     action,
		EntityType: entityType,
		EntityID:   entityID,
		Actor:      actor,
		Timestamp:  l.Now().UTC().Format(time.RFC3339),
		Details:    details,
		PrevHash:   prev,
	}
	hash, data, err := Hash(entry)
	if err != nil {
		return domain.AuditLogEntry{}, err
	}
	entry.Hash = hash
	res, err := tx.ExecContext(ctx, `INSERT INTO audit_log(id,action,entity_type,entity_id,actor,ts,details_json,prev_hash,hash) VALUES (?,?,?,?,?,?,?,?,?)`,
		entry.ID, entry.Action, entry.EntityType, entry.EntityID, entry.Actor, entry.Timestamp, data, entry.PrevHash, entry.Hash)
	if err != nil {
		return domain.AuditLogEntry{}, fmt.Errorf("append audit entry: %w", err)
	}
	if seq, err := res.LastInsertId(); err == nil {
		entry.Seq = seq
	}
	return entry, nil
}

type hashInput struct {
	PrevHash   string  `json:"prev_hash"`
	ID         string  `json:"id"`
	Action     string  `json:"action"`
	EntityType string  `json:"entity_type"`
	EntityID   string  `json:"entity_id"`
	Actor      string  `json:"actor"`
	Timestamp  string  `json:"timestamp"`
	Details    Details `json:"details"`
}

// Hash returns the chain hash of e and the canonical details JSON. Map keys
// are emitted sorted by encoding/json, which keeps the digest stable.
func Hash(e domain.AuditLogEntry) (string, string, error) {
	details := Details(e.Details)
	if details == nil {
		details = Details{}
	}
	detailJSON, err := json.Marshal(details)
	if err != nil {
		return "", "", fmt.Errorf("marshal audit details: %w", err)
	}
	b, err := json.Marshal(hashInput{
		PrevHash:   e.PrevHash,
		ID:         e.ID,
		Action:     e.Action,
		EntityType: e.EntityType,
		EntityID:   e.EntityID,
		Actor:      e.Actor,
		Timestamp:  e.Timestamp,
		Details:    details,
	})
	if err != nil {
		return "", "", fmt.Errorf("marshal audit entry: %w", err)
	}
	sum := sha256.Sum256(b)
	return "sha256:" + hex.EncodeToString(sum[:]), string(detailJSON), nil
}

// canonical round-trips details through JSON so that structs nested in them
// hash the same before storage and after being read back as maps.
func canonical(details Details) (Details, error) {
	out := Details{}
	if len(details) == 0 {
		return out, nil
	}
	b, err := json.Marshal(details)
	if err != nil {
		return nil, fmt.Errorf("marshal audit details: %w", err)
	}
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, fmt.Errorf("decode audit details: %w", err)
	}
	return out, nil
}

func (l Ledger) q(q Querier) Querier {
	if q == nil {
		return l.DB
	}
	return q
}

// ListByEntity returns the entries for one entity, newest first.
func (l Ledger) ListByEntity(ctx context.Context, q Querier, entityType, entityID string) ([]domain.AuditLogEntry, error) {
	rows, err := l.q(q).QueryContext(ctx, `SELECT `+selectCols+` FROM audit_log WHERE entity_type=? AND entity_id=? ORDER BY seq DESC`, entityType, entityID)
	if err != nil {
		return nil, err
	}
	return scanEntries(rows)
}

// ListRecent returns at most limit entries, newest first.
func (l Ledger) ListRecent(ctx context.Context, q Querier, limit int) ([]domain.AuditLogEntry, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := l.q(q).QueryContext(ctx, `SELECT `+selectCols+` FROM audit_log ORDER BY seq DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	return scanEntries(rows)
}

// After returns up to limit entries with seq greater than cursor, oldest first.
func (l Ledger) After(ctx context.Context, q Querier, cursor int64, limit int) ([]domain.AuditLogEntry, error) {
	rows, err := l.q(q).QueryContext(ctx, `SELECT `+selectCols+` FROM audit_log WHERE seq > ? ORDER BY seq LIMIT ?`, cursor, limit)
	if err != nil {
		return nil, err
	}
	return scanEntries(rows)
}

func (l Ledger) LatestSeq(ctx context.Context, q Querier) (int64, error) {
	var seq sql.NullInt64
	if err := l.q(q).QueryRowContext(ctx, `SELECT MAX(seq) FROM audit_log`).Scan(&seq); err != nil {
		return 0, err
	}
	return seq.Int64, nil
}

func (l Ledger) Count(ctx context.Context, q Querier) (int, error) {
	var n int
	err := l.q(q).QueryRowContext(ctx, `SELECT COUNT(*) FROM audit_log`).Scan(&n)
	return n, err
}

// Verify walks the whole log and checks every link of the hash chain. It
// returns the number of entries checked.
func (l Ledger) Verify(ctx context.Context, q Querier) (int, error) {
	rows, err := l.q(q).QueryContext(ctx, `SELECT `+selectCols+` FROM audit_log ORDER BY seq`)
	if err != nil {
		return 0, err
	}
	entries, err := scanEntries(rows)
	if err != nil {
		return 0, err
	}
	prev := ""
	for i, e := range entries {
		if e.PrevHash != prev {
			return i, domain.InvariantViolationError{Invariant: "audit.hash_chain", Detail: fmt.Sprintf("entry %d does not link to its predecessor", e.Seq)}
		}
		want, _, err := Hash(e)
		if err != nil {
			return i, err
		}
		if want != e.Hash {
			return i, domain.InvariantViolationError{Invariant: "audit.hash_chain", Detail: fmt.Sprintf("entry %d hash mismatch", e.Seq)}
		}
		prev = e.Hash
	}
	return len(entries), nil
}

func scanEntries(rows *sql.Rows) ([]domain.AuditLogEntry, error) {
	defer rows.Close()
	out := []domain.AuditLogEntry{}
	for rows.Next() {
		var e domain.AuditLogEntry
		var details string
		if err := rows.Scan(&e.Seq, &e.ID, &e.Action, &e.EntityType, &e.EntityID, &e.Actor, &e.Timestamp, &details, &e.PrevHash, &e.Hash); err != nil {
			return nil, err
		}
		if details != "" {
			if err := json.Unmarshal([]byte(details), &e.Details); err != nil {
				return nil, fmt.Errorf("decode audit details %s: %w", e.ID, err)
			}
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
