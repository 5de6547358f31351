// Package profiles maintains per-user risk state: the rolling amount
// baseline, the last seen device and country, and the last computed risk.
package profiles

import (
	"context"
	"errors"
	"math"
	"time"

	"github.com/chibuike-kt/risk-engine/internal/risk"
)

var ErrProfileNotFound = errors.New("profile not found")

// MinBaselineStd is the floor applied to the baseline standard deviation.
const MinBaselineStd = 1.0

// Profile is the risk state kept for one user.
type Profile struct {
	UserID       string    `json:"user_id"`
	BaselineMean float64   `json:"baseline_mean"`
	BaselineStd  float64   `json:"baseline_std"`
	LastDeviceID *string   `json:"last_device_id"`
	LastCountry  *string   `json:"last_country"`
	RiskScore    int       `json:"risk_score"`
	RiskTier     risk.Tier `json:"risk_tier"`
	CreatedAt    time.Time `json:"created_at"`
}

// RiskProfile returns the fields the scoring engine reads.
func (p *Profile) RiskProfile() risk.Profile {
	return risk.Profile{
		BaselineMean: p.BaselineMean,
		BaselineStd:  p.BaselineStd,
		LastDeviceID: p.LastDeviceID,
		LastCountry:  p.LastCountry,
	}
}

func newProfile(userID string) *Profile {
	return &Profile{
		UserID:      userID,
		BaselineStd: MinBaselineStd,
		RiskTier:    risk.TierLow,
		CreatedAt:   time.Now().UTC(),
	}
}

// Store persists profiles. Profiles are created lazily and never deleted.
type Store interface {
	Ensure(ctx context.Context, userID string) (*Profile, error)
	Get(ctx context.Context, userID string) (*Profile, error)
	UpdateBaseline(ctx context.Context, userID string, mean, std float64) error
	// UpdateSignals overwrites both fields with the supplied values, nil included.
	UpdateSignals(ctx context.Context, userID string, deviceID, country *string) error
	UpdateRisk(ctx context.Context, userID string, score int, tier risk.Tier) error
}

// ComputeBaseline returns the mean and population standard deviation of
// amounts, with the deviation floored at MinBaselineStd.
func ComputeBaseline(amounts []int64) (mean, std float64) {
	if len(amounts) == 0 {
		return 0, MinBaselineStd
	}
	n := float64(len(amounts))
	var sum float64
	for _, a := range amounts {
		sum += float64(a)
	}
	mean = sum / n

	var ss float64
	for _, a := range amounts {
		d := float64(a) - mean
		ss += d * d
	}
	std = math.Sqrt(ss / n)
	return mean, math.Max(MinBaselineStd, std)
}
