package audit

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/chibuike-kt/risk-engine/internal/txn"
)

// chainLockKey is the advisory lock key serialising appends to the chain.
const chainLockKey int64 = 0x6175646974 // "audit"

// PostgresStore persists the chain in the audit_log table.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new PostgreSQL-backed audit store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Append must run inside a transaction: the advisory lock it takes is
// released only at commit or rollback.
func (p *PostgresStore) Append(ctx context.Context, build func(prevHash string) (*Event, error)) (*Event, error) {
	if !txn.InTx(ctx) {
		return nil, errors.New("audit append requires a transaction")
	}
	conn := txn.Conn(ctx, p.db)

	if _, err := conn.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, chainLockKey); err != nil {
		return nil, fmt.Errorf("failed to lock audit chain: %w", err)
	}

	prev := GenesisHash
	err := conn.QueryRowContext(ctx, `SELECT hash FROM audit_log ORDER BY seq DESC LIMIT 1`).Scan(&prev)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("failed to read audit tip: %w", err)
	}

	e, err := build(prev)
	if err != nil {
		return nil, err
	}

	err = conn.QueryRowContext(ctx, `
		INSERT INTO audit_log (
			event_id, event_type, subject_type, subject_id, actor,
			payload_json, prev_hash, hash, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING seq`,
		e.EventID, e.EventType, e.SubjectType, e.SubjectID, nullActor(e.Actor),
		string(e.Payload), e.PrevHash, e.Hash, e.CreatedAt,
	).Scan(&e.Seq)
	if err != nil {
		return nil, fmt.Errorf("failed to insert audit event: %w", err)
	}
	return e, nil
}

func (p *PostgresStore) Scan(ctx context.Context, fn func(*Event) error) error {
	rows, err := txn.Conn(ctx, p.db).QueryContext(ctx, `
		SELECT seq, event_id, event_type, subject_type, subject_id, actor,
		       payload_json, prev_hash, hash, created_at
		FROM audit_log
		ORDER BY seq ASC`)
	if err != nil {
		return err
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		e := &Event{}
		var (
			actor   sql.NullString
			payload string
		)
		if err := rows.Scan(&e.Seq, &e.EventID, &e.EventType, &e.SubjectType, &e.SubjectID, &actor,
			&payload, &e.PrevHash, &e.Hash, &e.CreatedAt); err != nil {
			return err
		}
		if actor.Valid {
			a := actor.String
			e.Actor = &a
		}
		e.Payload = []byte(payload)
		if err := fn(e); err != nil {
			return err
		}
	}
	return rows.Err()
}

func nullActor(a *string) sql.NullString {
	if a == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *a, Valid: true}
}

var _ Store = (*PostgresStore)(nil)
