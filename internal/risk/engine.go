package risk

import (
	"context"
	"fmt"
	"math"
	"time"
)

// Engine scores actions against a Config.
type Engine struct {
	cfg Config
	now func() time.Time
}

// NewEngine creates an engine using cfg.
func NewEngine(cfg Config) *Engine {
	return &Engine{cfg: cfg, now: time.Now}
}

// WithClock overrides the clock used to place the velocity window and the
// start of the day.
func (e *Engine) WithClock(now func() time.Time) *Engine {
	e.now = now
	return e
}

// Config returns the engine's rule configuration.
func (e *Engine) Config() Config {
	return e.cfg
}

// Evaluate gathers the snapshot for in through lookup and scores it.
func (e *Engine) Evaluate(ctx context.Context, in Input, profile Profile, lookup Lookup) (*Assessment, error) {
	snap, err := e.Gather(ctx, in, profile, lookup)
	if err != nil {
		return nil, err
	}
	return e.Score(in, snap), nil
}

// Gather reads every external fact the rules need exactly once.
func (e *Engine) Gather(ctx context.Context, in Input, profile Profile, lookup Lookup) (Snapshot, error) {
	now := e.now().UTC()
	snap := Snapshot{Profile: profile}

	hit, err := lookup.IsSanctioned(ctx, in.Counterparty)
	if err != nil {
		return snap, fmt.Errorf("failed to check sanctions: %w", err)
	}
	snap.SanctionsHit = hit

	window := time.Duration(e.cfg.Velocity.WindowSeconds) * time.Second
	snap.RecentCount, err = lookup.CountSince(ctx, in.UserID, now.Add(-window))
	if err != nil {
		return snap, fmt.Errorf("failed to count recent decisions: %w", err)
	}

	snap.DailyTotalBefore, err = lookup.SumSince(ctx, in.UserID, startOfDay(now))
	if err != nil {
		return snap, fmt.Errorf("failed to sum daily total: %w", err)
	}
	return snap, nil
}

// Score applies the rule pipeline. It performs no I/O and reads no clock, so
// identical inputs always produce identical assessments.
func (e *Engine) Score(in Input, snap Snapshot) *Assessment {
	cfg := e.cfg
	score := cfg.Score.Base
	reasons := make([]Reason, 0, 7)

	add := func(weight int, code, detail string) {
		score += weight
		reasons = append(reasons, Reason{Code: code, Detail: detail})
	}

	if snap.SanctionsHit {
		add(cfg.Score.SanctionsHit, ReasonSanctionsHit, "counterparty_on_sanctions_list")
	}

	if in.AmountMinor > cfg.SingleTxMaxMinor {
		add(cfg.Score.AmountOverLimit, ReasonAmountOverLimit, "single_tx_exceeds_configured_limit")
	}

	if snap.RecentCount >= cfg.Velocity.MaxCount {
		add(cfg.Score.VelocityBreach, ReasonVelocity,
			fmt.Sprintf("too_many_actions_in_window count=%d", snap.RecentCount))
	}

	if snap.DailyTotalBefore+in.AmountMinor > cfg.DailyTotalMaxMinor {
		add(cfg.Score.DailyTotal, ReasonDailyTotal, "daily_total_exceeds_configured_limit")
	}

	if changed(snap.LastDeviceID, in.DeviceID) {
		add(cfg.Score.DeviceMismatch, ReasonDeviceMismatch, "device_changed_since_last_action")
	}

	if changed(snap.LastCountry, in.Country) {
		add(cfg.Score.GeoMismatch, ReasonGeoMismatch, "country_changed_since_last_action")
	}

	mean := snap.BaselineMean
	std := math.Max(1.0, snap.BaselineStd)
	z := math.Abs(float64(in.AmountMinor)-mean) / std
	if z >= cfg.AnomalyZ && mean > 0 {
		add(cfg.Score.AnomalyHigh, ReasonAnomaly,
			fmt.Sprintf("z_score=%.4f mean=%.2f std=%.2f", z, mean, std))
	}

	a := &Assessment{
		Score:   score,
		Tier:    e.tierFor(score),
		Reasons: reasons,
		Signals: Signals{
			RecentCountInWindow: snap.RecentCount,
			DailyTotalBefore:    snap.DailyTotalBefore,
			ZScore:              z,
		},
	}
	a.Outcome = outcomeFor(a)
	return a
}

func (e *Engine) tierFor(score int) Tier {
	switch {
	case score >= e.cfg.Tiers.High:
		return TierHigh
	case score >= e.cfg.Tiers.Medium:
		return TierMedium
	default:
		return TierLow
	}
}

func outcomeFor(a *Assessment) Outcome {
	switch {
	case a.HasReason(ReasonSanctionsHit):
		return OutcomeBlock
	case a.Tier == TierHigh:
		return OutcomeHold
	case a.Tier == TierMedium:
		return OutcomeReview
	default:
		return OutcomeAllow
	}
}

// changed is true only when both a previous and a current value are known
// and they differ.
func changed(last, current *string) bool {
	if last == nil || *last == "" || current == nil || *current == "" {
		return false
	}
	return *last != *current
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
