// Package risk implements deterministic, explainable transaction risk scoring.
//
// Every action is evaluated against a fixed pipeline of additive rules:
// sanctions, single-transaction limit, velocity, daily total, device change,
// country change and amount anomaly. Each rule that fires adds its configured
// weight and one reason. The total maps to a tier, and tier plus sanctions
// status map to an outcome.
package risk

import (
	"context"
	"time"
)

// Outcome is the engine's verdict on an action.
type Outcome string

const (
	OutcomeAllow  Outcome = "ALLOW"
	OutcomeReview Outcome = "REVIEW"
	OutcomeHold   Outcome = "HOLD"
	OutcomeBlock  Outcome = "BLOCK"
)

// OpensCase reports whether the outcome requires human review.
func (o Outcome) OpensCase() bool {
	return o == OutcomeHold || o == OutcomeReview
}

// Tier buckets a numeric score.
type Tier string

const (
	TierLow    Tier = "LOW"
	TierMedium Tier = "MEDIUM"
	TierHigh   Tier = "HIGH"
)

// Reason codes, in evaluation order.
const (
	ReasonSanctionsHit    = "SANCTIONS_HIT"
	ReasonAmountOverLimit = "AMOUNT_OVER_LIMIT"
	ReasonVelocity        = "VELOCITY"
	ReasonDailyTotal      = "DAILY_TOTAL"
	ReasonDeviceMismatch  = "DEVICE_MISMATCH"
	ReasonGeoMismatch     = "GEO_MISMATCH"
	ReasonAnomaly         = "ANOMALY"
)

// Reason explains one rule that contributed to a score.
type Reason struct {
	Code   string `json:"code"`
	Detail string `json:"detail"`
}

// Signals are the raw inputs behind the velocity, daily-total and anomaly
// rules. They are reported whether or not a rule fired.
type Signals struct {
	RecentCountInWindow int64   `json:"recent_count_in_window"`
	DailyTotalBefore    int64   `json:"daily_total_before"`
	ZScore              float64 `json:"z_score"`
}

// Input is the action being scored.
type Input struct {
	UserID       string
	Action       string
	AmountMinor  int64
	Currency     string
	Counterparty string
	Country      *string
	DeviceID     *string
}

// Profile is the user state the engine reads.
type Profile struct {
	BaselineMean float64
	BaselineStd  float64
	LastDeviceID *string
	LastCountry  *string
}

// Snapshot is every external fact one evaluation depends on, gathered once.
type Snapshot struct {
	Profile
	SanctionsHit     bool
	RecentCount      int64
	DailyTotalBefore int64
}

// Assessment is the result of scoring one action.
type Assessment struct {
	Score   int      `json:"risk_score"`
	Tier    Tier     `json:"risk_tier"`
	Outcome Outcome  `json:"outcome"`
	Reasons []Reason `json:"reasons"`
	Signals Signals  `json:"signals"`
}

// HasReason reports whether code fired.
func (a *Assessment) HasReason(code string) bool {
	for _, r := range a.Reasons {
		if r.Code == code {
			return true
		}
	}
	return false
}

// Lookup provides the history and screening facts a snapshot is built from.
type Lookup interface {
	IsSanctioned(ctx context.Context, counterparty string) (bool, error)
	CountSince(ctx context.Context, userID string, since time.Time) (int64, error)
	SumSince(ctx context.Context, userID string, since time.Time) (int64, error)
}
