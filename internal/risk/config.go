package risk

import (
	"errors"
	"fmt"
)

// DefaultAnomalyZ is the z-score at which an amount counts as anomalous.
const DefaultAnomalyZ = 3.0

// Config holds the rule thresholds and weights. Field names follow the
// rules file layout so a YAML document can override any subset.
type Config struct {
	SingleTxMaxMinor   int64          `yaml:"single_tx_max_minor"`
	DailyTotalMaxMinor int64          `yaml:"daily_total_max_minor"`
	Velocity           VelocityConfig `yaml:"velocity"`
	Score              ScoreConfig    `yaml:"score"`
	Tiers              TierConfig     `yaml:"tiers"`
	AnomalyZ           float64        `yaml:"anomaly_z"`
}

// VelocityConfig bounds how many actions a user may take in a trailing window.
type VelocityConfig struct {
	WindowSeconds int64 `yaml:"window_seconds"`
	MaxCount      int64 `yaml:"max_count"`
}

// ScoreConfig holds the weight each rule adds.
type ScoreConfig struct {
	Base            int `yaml:"base"`
	AmountOverLimit int `yaml:"amount_over_limit"`
	VelocityBreach  int `yaml:"velocity_breach"`
	SanctionsHit    int `yaml:"sanctions_hit"`
	AnomalyHigh     int `yaml:"anomaly_high"`
	DeviceMismatch  int `yaml:"device_mismatch"`
	GeoMismatch     int `yaml:"geo_mismatch"`
	DailyTotal      int `yaml:"daily_total"`
}

// TierConfig holds the minimum score for each tier.
type TierConfig struct {
	Low    int `yaml:"LOW"`
	Medium int `yaml:"MEDIUM"`
	High   int `yaml:"HIGH"`
}

// DefaultConfig returns the stock rule set.
func DefaultConfig() Config {
	return Config{
		SingleTxMaxMinor:   200000,
		DailyTotalMaxMinor: 500000,
		Velocity: VelocityConfig{
			WindowSeconds: 900,
			MaxCount:      6,
		},
		Score: ScoreConfig{
			Base:            0,
			AmountOverLimit: 70,
			VelocityBreach:  50,
			SanctionsHit:    100,
			AnomalyHigh:     40,
			DeviceMismatch:  25,
			GeoMismatch:     25,
			DailyTotal:      25,
		},
		Tiers: TierConfig{
			Low:    0,
			Medium: 40,
			High:   70,
		},
		AnomalyZ: DefaultAnomalyZ,
	}
}

// Validate checks the configuration for values the engine cannot work with.
func (c Config) Validate() error {
	var errs []error
	if c.SingleTxMaxMinor <= 0 {
		errs = append(errs, errors.New("single_tx_max_minor must be positive"))
	}
	if c.DailyTotalMaxMinor <= 0 {
		errs = append(errs, errors.New("daily_total_max_minor must be positive"))
	}
	if c.Velocity.WindowSeconds <= 0 {
		errs = append(errs, errors.New("velocity.window_seconds must be positive"))
	}
	if c.Velocity.MaxCount <= 0 {
		errs = append(errs, errors.New("velocity.max_count must be positive"))
	}
	if c.AnomalyZ <= 0 {
		errs = append(errs, errors.New("anomaly_z must be positive"))
	}
	if !(c.Tiers.Low <= c.Tiers.Medium && c.Tiers.Medium <= c.Tiers.High) {
		errs = append(errs, fmt.Errorf("tiers must be ordered LOW <= MEDIUM <= HIGH, got %d/%d/%d",
			c.Tiers.Low, c.Tiers.Medium, c.Tiers.High))
	}
	for name, w := range map[string]int{
		"amount_over_limit": c.Score.AmountOverLimit,
		"velocity_breach":   c.Score.VelocityBreach,
		"sanctions_hit":     c.Score.SanctionsHit,
		"anomaly_high":      c.Score.AnomalyHigh,
		"device_mismatch":   c.Score.DeviceMismatch,
		"geo_mismatch":      c.Score.GeoMismatch,
		"daily_total":       c.Score.DailyTotal,
	} {
		if w < 0 {
			errs = append(errs, fmt.Errorf("score.%s must not be negative", name))
		}
	}
	return errors.Join(errs...)
}
