// Package decisions orchestrates risk decisions and the review cases they
// open.
//
// Evaluate is exactly-once per idempotency key: the first request for a key
// scores the action and persists the decision, the optional case, the profile
// updates, the idempotency record and the audit events as one unit of work.
// Repeats with the same payload replay the stored response byte for byte, and
// repeats with a different payload are rejected.
package decisions

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/chibuike-kt/risk-engine/internal/canonical"
	"github.com/chibuike-kt/risk-engine/internal/pagination"
	"github.com/chibuike-kt/risk-engine/internal/risk"
)

var (
	ErrIdempotencyConflict = errors.New("idempotency key already used with a different request payload")
	ErrIdempotencyNotFound = errors.New("idempotency record not found")
	ErrCaseNotFound        = errors.New("case not found")
	ErrCaseNotOpen         = errors.New("case is not open or does not exist")
)

// CaseStatus is the review state of a case.
type CaseStatus string

const (
	CaseOpen     CaseStatus = "OPEN"
	CaseResolved CaseStatus = "RESOLVED"
)

// Resolution is a reviewer's verdict.
type Resolution string

const (
	ResolutionApprove Resolution = "APPROVE"
	ResolutionDeny    Resolution = "DENY"
)

// DefaultResolveActor is recorded when a resolution names no reviewer.
const DefaultResolveActor = "analyst"

// Input is an action submitted for a decision. Every field takes part in the
// request fingerprint; absent optionals are encoded as null.
type Input struct {
	UserID       string  `json:"user_id"`
	Action       string  `json:"action"`
	AmountMinor  int64   `json:"amount_minor"`
	Currency     string  `json:"currency"`
	Counterparty string  `json:"counterparty"`
	Country      *string `json:"country"`
	DeviceID     *string `json:"device_id"`
}

// RequestHash fingerprints the input for idempotency checks.
func (in Input) RequestHash() (string, error) {
	b, err := canonical.Marshal(in)
	if err != nil {
		return "", fmt.Errorf("failed to canonicalize request: %w", err)
	}
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:]), nil
}

func (in Input) riskInput() risk.Input {
	return risk.Input{
		UserID:       in.UserID,
		Action:       in.Action,
		AmountMinor:  in.AmountMinor,
		Currency:     in.Currency,
		Counterparty: in.Counterparty,
		Country:      in.Country,
		DeviceID:     in.DeviceID,
	}
}

// Decision is the immutable record of one evaluation.
type Decision struct {
	ID           string        `json:"id"`
	UserID       string        `json:"user_id"`
	Action       string        `json:"action"`
	AmountMinor  int64         `json:"amount_minor"`
	Currency     string        `json:"currency"`
	Counterparty string        `json:"counterparty"`
	Country      *string       `json:"country"`
	DeviceID     *string       `json:"device_id"`
	Outcome      risk.Outcome  `json:"outcome"`
	RiskScore    int           `json:"risk_score"`
	RiskTier     risk.Tier     `json:"risk_tier"`
	Reasons      []risk.Reason `json:"reasons"`
	CaseID       *string       `json:"case_id"`
	CreatedAt    time.Time     `json:"created_at"`
}

// Case is a decision held for human review.
type Case struct {
	ID         string        `json:"id"`
	UserID     string        `json:"user_id"`
	DecisionID string        `json:"decision_id"`
	Status     CaseStatus    `json:"status"`
	RiskScore  int           `json:"risk_score"`
	RiskTier   risk.Tier     `json:"risk_tier"`
	Outcome    risk.Outcome  `json:"outcome"`
	Reasons    []risk.Reason `json:"reasons"`
	OpenedAt   time.Time     `json:"opened_at"`
	ResolvedAt *time.Time    `json:"resolved_at"`
	Resolution *Resolution   `json:"resolution"`
	Notes      *string       `json:"notes"`
}

// CasePage is one page of a case listing.
type CasePage struct {
	Cases      []*Case `json:"cases"`
	NextCursor string  `json:"next_cursor,omitempty"`
	HasMore    bool    `json:"has_more"`
}

// IdempotencyRecord binds a key to the first request made with it.
type IdempotencyRecord struct {
	Key         string
	UserID      string
	RequestHash string
	Response    []byte
	DecisionID  string
	CreatedAt   time.Time
}

// Response is the body returned for an evaluation.
type Response struct {
	DecisionID string        `json:"decision_id"`
	CaseID     *string       `json:"case_id"`
	Outcome    risk.Outcome  `json:"outcome"`
	RiskScore  int           `json:"risk_score"`
	RiskTier   risk.Tier     `json:"risk_tier"`
	Reasons    []risk.Reason `json:"reasons"`
	Signals    risk.Signals  `json:"signals"`
}

// EvaluateResult carries the exact response bytes for an evaluation.
type EvaluateResult struct {
	Body       []byte
	DecisionID string
	Replayed   bool
}

// Store persists decisions, cases and idempotency records.
type Store interface {
	// LockIdempotencyKey serialises evaluations sharing key until the
	// surrounding unit of work ends.
	LockIdempotencyKey(ctx context.Context, key string) error
	GetIdempotency(ctx context.Context, key string) (*IdempotencyRecord, error)
	SaveIdempotency(ctx context.Context, rec *IdempotencyRecord) error

	CreateDecision(ctx context.Context, d *Decision) error
	CountSince(ctx context.Context, userID string, since time.Time) (int64, error)
	SumSince(ctx context.Context, userID string, since time.Time) (int64, error)
	// RecentAmounts returns up to n of the user's latest amounts, newest first.
	RecentAmounts(ctx context.Context, userID string, n int) ([]int64, error)

	OpenCase(ctx context.Context, c *Case) error
	GetCase(ctx context.Context, id string) (*Case, error)
	// ListCases returns up to limit cases with status, newest first, starting
	// strictly after the after cursor when one is given.
	ListCases(ctx context.Context, status CaseStatus, after *pagination.Cursor, limit int) ([]*Case, error)
	// ResolveCase moves an OPEN case to RESOLVED and reports whether exactly
	// one case changed.
	ResolveCase(ctx context.Context, id string, resolution Resolution, notes string, at time.Time) (bool, error)
}

// SanctionsChecker answers whether a counterparty is screened.
type SanctionsChecker interface {
	IsListed(ctx context.Context, value string) (bool, error)
}
