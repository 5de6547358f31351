package decisions

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/chibuike-kt/risk-engine/internal/pagination"
	"github.com/chibuike-kt/risk-engine/internal/risk"
	"github.com/chibuike-kt/risk-engine/internal/txn"
)

// PostgresStore persists decisions, cases and idempotency records.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new PostgreSQL-backed decision store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// LockIdempotencyKey takes a transaction-scoped advisory lock derived from
// key, so it must run inside a unit of work.
func (p *PostgresStore) LockIdempotencyKey(ctx context.Context, key string) error {
	if !txn.InTx(ctx) {
		return errors.New("idempotency lock requires a transaction")
	}
	_, err := txn.Conn(ctx, p.db).ExecContext(ctx,
		`SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`, key)
	return err
}

func (p *PostgresStore) GetIdempotency(ctx context.Context, key string) (*IdempotencyRecord, error) {
	rec := &IdempotencyRecord{}
	var response string
	err := txn.Conn(ctx, p.db).QueryRowContext(ctx, `
		SELECT key, user_id, request_hash, response, decision_id, created_at
		FROM idempotency_keys
		WHERE key = $1`, key,
	).Scan(&rec.Key, &rec.UserID, &rec.RequestHash, &response, &rec.DecisionID, &rec.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrIdempotencyNotFound
	}
	if err != nil {
		return nil, err
	}
	rec.Response = []byte(response)
	return rec, nil
}

func (p *PostgresStore) SaveIdempotency(ctx context.Context, rec *IdempotencyRecord) error {
	_, err := txn.Conn(ctx, p.db).ExecContext(ctx, `
		INSERT INTO idempotency_keys (key, user_id, request_hash, response, decision_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		rec.Key, rec.UserID, rec.RequestHash, string(rec.Response), rec.DecisionID, rec.CreatedAt,
	)
	return err
}

func (p *PostgresStore) CreateDecision(ctx context.Context, d *Decision) error {
	reasons, err := json.Marshal(d.Reasons)
	if err != nil {
		return fmt.Errorf("failed to encode reasons: %w", err)
	}
	_, err = txn.Conn(ctx, p.db).ExecContext(ctx, `
		INSERT INTO decisions (
			id, user_id, action, amount_minor, currency, counterparty, country, device_id,
			outcome, risk_score, risk_tier, reasons, case_id, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
		d.ID, d.UserID, d.Action, d.AmountMinor, d.Currency, d.Counterparty,
		nullString(d.Country), nullString(d.DeviceID),
		string(d.Outcome), d.RiskScore, string(d.RiskTier), string(reasons), nullString(d.CaseID), d.CreatedAt,
	)
	return err
}

func (p *PostgresStore) CountSince(ctx context.Context, userID string, since time.Time) (int64, error) {
	var n int64
	err := txn.Conn(ctx, p.db).QueryRowContext(ctx,
		`SELECT COUNT(*) FROM decisions WHERE user_id = $1 AND created_at >= $2`,
		userID, since,
	).Scan(&n)
	return n, err
}

func (p *PostgresStore) SumSince(ctx context.Context, userID string, since time.Time) (int64, error) {
	var sum int64
	err := txn.Conn(ctx, p.db).QueryRowContext(ctx,
		`SELECT COALESCE(SUM(amount_minor), 0) FROM decisions WHERE user_id = $1 AND created_at >= $2`,
		userID, since,
	).Scan(&sum)
	return sum, err
}

func (p *PostgresStore) RecentAmounts(ctx context.Context, userID string, n int) ([]int64, error) {
	rows, err := txn.Conn(ctx, p.db).QueryContext(ctx, `
		SELECT amount_minor FROM decisions
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2`, userID, n,
	)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	amounts := make([]int64, 0, n)
	for rows.Next() {
		var a int64
		if err := rows.Scan(&a); err != nil {
			return nil, err
		}
		amounts = append(amounts, a)
	}
	return amounts, rows.Err()
}

func (p *PostgresStore) OpenCase(ctx context.Context, c *Case) error {
	reasons, err := json.Marshal(c.Reasons)
	if err != nil {
		return fmt.Errorf("failed to encode reasons: %w", err)
	}
	_, err = txn.Conn(ctx, p.db).ExecContext(ctx, `
		INSERT INTO cases (
			id, user_id, decision_id, status, risk_score, risk_tier, outcome, reasons, opened_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		c.ID, c.UserID, c.DecisionID, string(c.Status), c.RiskScore, string(c.RiskTier),
		string(c.Outcome), string(reasons), c.OpenedAt,
	)
	return err
}

const caseColumns = `id, user_id, decision_id, status, risk_score, risk_tier, outcome, reasons,
	opened_at, resolved_at, resolution, notes`

func (p *PostgresStore) GetCase(ctx context.Context, id string) (*Case, error) {
	row := txn.Conn(ctx, p.db).QueryRowContext(ctx,
		`SELECT `+caseColumns+` FROM cases WHERE id = $1`, id)
	c, err := scanCase(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrCaseNotFound
	}
	return c, err
}

func (p *PostgresStore) ListCases(ctx context.Context, status CaseStatus, after *pagination.Cursor, limit int) ([]*Case, error) {
	var (
		rows *sql.Rows
		err  error
	)
	if after == nil {
		rows, err = txn.Conn(ctx, p.db).QueryContext(ctx, `
			SELECT `+caseColumns+` FROM cases
			WHERE status = $1
			ORDER BY opened_at DESC, id DESC
			LIMIT $2`, string(status), limit,
		)
	} else {
		rows, err = txn.Conn(ctx, p.db).QueryContext(ctx, `
			SELECT `+caseColumns+` FROM cases
			WHERE status = $1 AND (opened_at, id) < ($2, $3)
			ORDER BY opened_at DESC, id DESC
			LIMIT $4`, string(status), after.At, after.ID, limit,
		)
	}
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []*Case
	for rows.Next() {
		c, err := scanCase(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (p *PostgresStore) ResolveCase(ctx context.Context, id string, resolution Resolution, notes string, at time.Time) (bool, error) {
	var notesArg sql.NullString
	if notes != "" {
		notesArg = sql.NullString{String: notes, Valid: true}
	}
	res, err := txn.Conn(ctx, p.db).ExecContext(ctx, `
		UPDATE cases
		SET status = 'RESOLVED', resolution = $2, notes = $3, resolved_at = $4
		WHERE id = $1 AND status = 'OPEN'`,
		id, string(resolution), notesArg, at,
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

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCase(row rowScanner) (*Case, error) {
	c := &Case{}
	var (
		status, tier, outcome string
		reasons               []byte
		resolvedAt            sql.NullTime
		resolution, notes     sql.NullString
	)
	err := row.Scan(&c.ID, &c.UserID, &c.DecisionID, &status, &c.RiskScore, &tier, &outcome, &reasons,
		&c.OpenedAt, &resolvedAt, &resolution, &notes)
	if err != nil {
		return nil, err
	}

	c.Status = CaseStatus(status)
	c.RiskTier = risk.Tier(tier)
	c.Outcome = risk.Outcome(outcome)
	if err := json.Unmarshal(reasons, &c.Reasons); err != nil {
		return nil, fmt.Errorf("failed to decode case reasons: %w", err)
	}
	if resolvedAt.Valid {
		t := resolvedAt.Time
		c.ResolvedAt = &t
	}
	if resolution.Valid {
		r := Resolution(resolution.String)
		c.Resolution = &r
	}
	if notes.Valid {
		c.Notes = &notes.String
	}
	return c, nil
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

var _ Store = (*PostgresStore)(nil)
