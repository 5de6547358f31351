package sanctions

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/chibuike-kt/risk-engine/internal/txn"
)

// PostgresStore persists the list in the sanctions table.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new PostgreSQL-backed sanctions store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (p *PostgresStore) Add(ctx context.Context, e *Entry) (bool, error) {
	res, err := txn.Conn(ctx, p.db).ExecContext(ctx, `
		INSERT INTO sanctions (kind, value, added_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (value) DO NOTHING`,
		e.Kind, e.Value, e.AddedAt,
	)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read rows affected: %w", err)
	}
	return n == 1, nil
}

func (p *PostgresStore) IsListed(ctx context.Context, value string) (bool, error) {
	var exists bool
	err := txn.Conn(ctx, p.db).QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM sanctions WHERE value = $1)`, value,
	).Scan(&exists)
	if err != nil {
		return false, err
	}
	return exists, nil
}

var _ Store = (*PostgresStore)(nil)
