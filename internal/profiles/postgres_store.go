package profiles

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/chibuike-kt/risk-engine/internal/risk"
	"github.com/chibuike-kt/risk-engine/internal/txn"
)

// PostgresStore persists profiles in the users table.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new PostgreSQL-backed profile store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (p *PostgresStore) Ensure(ctx context.Context, userID string) (*Profile, error) {
	conn := txn.Conn(ctx, p.db)
	_, err := conn.ExecContext(ctx, `
		INSERT INTO users (id, baseline_mean, baseline_std, risk_score, risk_tier)
		VALUES ($1, 0, $2, 0, $3)
		ON CONFLICT (id) DO NOTHING`,
		userID, MinBaselineStd, string(risk.TierLow),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to ensure profile: %w", err)
	}
	return p.get(ctx, conn, userID)
}

func (p *PostgresStore) Get(ctx context.Context, userID string) (*Profile, error) {
	return p.get(ctx, txn.Conn(ctx, p.db), userID)
}

func (p *PostgresStore) get(ctx context.Context, conn txn.DBTX, userID string) (*Profile, error) {
	prof := &Profile{}
	var (
		device, country sql.NullString
		tier            string
	)
	err := conn.QueryRowContext(ctx, `
		SELECT id, baseline_mean, baseline_std, last_device_id, last_country,
		       risk_score, risk_tier, created_at
		FROM users WHERE id = $1`, userID,
	).Scan(&prof.UserID, &prof.BaselineMean, &prof.BaselineStd, &device, &country,
		&prof.RiskScore, &tier, &prof.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrProfileNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load profile: %w", err)
	}
	prof.LastDeviceID = stringPtr(device)
	prof.LastCountry = stringPtr(country)
	prof.RiskTier = risk.Tier(tier)
	return prof, nil
}

func (p *PostgresStore) UpdateBaseline(ctx context.Context, userID string, mean, std float64) error {
	return p.exec(ctx, "update baseline", `
		UPDATE users SET baseline_mean = $2, baseline_std = $3, updated_at = NOW()
		WHERE id = $1`, userID, mean, std)
}

func (p *PostgresStore) UpdateSignals(ctx context.Context, userID string, deviceID, country *string) error {
	return p.exec(ctx, "update signals", `
		UPDATE users SET last_device_id = $2, last_country = $3, updated_at = NOW()
		WHERE id = $1`, userID, nullString(deviceID), nullString(country))
}

func (p *PostgresStore) UpdateRisk(ctx context.Context, userID string, score int, tier risk.Tier) error {
	return p.exec(ctx, "update risk", `
		UPDATE users SET risk_score = $2, risk_tier = $3, updated_at = NOW()
		WHERE id = $1`, userID, score, string(tier))
}

func (p *PostgresStore) exec(ctx context.Context, op, query string, args ...any) error {
	res, err := txn.Conn(ctx, p.db).ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to %s: %w", op, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to %s: %w", op, err)
	}
	if n == 0 {
		return ErrProfileNotFound
	}
	return nil
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func stringPtr(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	s := ns.String
	return &s
}

var _ Store = (*PostgresStore)(nil)
