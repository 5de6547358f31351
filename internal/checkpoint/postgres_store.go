package checkpoint

import (
	"context"
	"database/sql"
	"errors"

	"github.com/chibuike-kt/risk-engine/internal/txn"
)

// PostgresStore persists checkpoints in the audit_checkpoints table.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new PostgreSQL-backed checkpoint store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (p *PostgresStore) Upsert(ctx context.Context, c *Checkpoint) (*Checkpoint, error) {
	row := txn.Conn(ctx, p.db).QueryRowContext(ctx, `
		INSERT INTO audit_checkpoints (day, tip_hash, audit_count)
		VALUES ($1, $2, $3)
		ON CONFLICT (day) DO UPDATE
		SET tip_hash = EXCLUDED.tip_hash,
		    audit_count = EXCLUDED.audit_count,
		    updated_at = NOW()
		RETURNING day, tip_hash, audit_count, created_at, updated_at`,
		c.Day, c.TipHash, c.AuditCount,
	)
	return scanCheckpoint(row)
}

func (p *PostgresStore) Get(ctx context.Context, day string) (*Checkpoint, error) {
	row := txn.Conn(ctx, p.db).QueryRowContext(ctx, `
		SELECT day, tip_hash, audit_count, created_at, updated_at
		FROM audit_checkpoints WHERE day = $1`, day)

	c, err := scanCheckpoint(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return c, err
}

func scanCheckpoint(row *sql.Row) (*Checkpoint, error) {
	c := &Checkpoint{}
	if err := row.Scan(&c.Day, &c.TipHash, &c.AuditCount, &c.CreatedAt, &c.UpdatedAt); err != nil {
		return nil, err
	}
	c.CreatedAt = c.CreatedAt.UTC()
	c.UpdatedAt = c.UpdatedAt.UTC()
	return c, nil
}

var _ Store = (*PostgresStore)(nil)
