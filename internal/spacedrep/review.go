package spacedrep

import (
	"time"

	"github.com/abhisek/nextlesson/internal/apperr"
	"github.com/abhisek/nextlesson/internal/mastery"
)

const (
	// DefaultBaseIntervalDays is the review interval at zero mastery.
	DefaultBaseIntervalDays = 3.0

	// DefaultMasteryFactor stretches the interval with mastery:
	// a perfect score reviews every base*(1+factor) days.
	DefaultMasteryFactor = 4.0

	// CriticalMultiple is how many intervals must elapse before a due
	// outcome becomes critical.
	CriticalMultiple = 2.0
)

// Config holds the review interval constants.
type Config struct {
	BaseIntervalDays float64 `mapstructure:"base_interval_days" json:"base_interval_days"`
	MasteryFactor    float64 `mapstructure:"mastery_factor" json:"mastery_factor"`
}

// DefaultConfig returns the default interval constants.
func DefaultConfig() Config {
	return Config{
		BaseIntervalDays: DefaultBaseIntervalDays,
		MasteryFactor:    DefaultMasteryFactor,
	}
}

// Validate checks that intervals are positive.
func (c Config) Validate() error {
	if c.BaseIntervalDays <= 0 {
		return apperr.Validation("due.base_interval_days", c.BaseIntervalDays, "must be > 0")
	}
	if c.MasteryFactor < 0 {
		return apperr.Validation("due.mastery_factor", c.MasteryFactor, "must be >= 0")
	}
	return nil
}

// DueState labels how urgently an outcome needs review.
type DueState string

const (
	NotDue   DueState = "not-due"
	Due      DueState = "due"
	Critical DueState = "critical"
)

// Rank orders states by urgency: NotDue < Due < Critical.
func (s DueState) Rank() int {
	switch s {
	case Critical:
		return 2
	case Due:
		return 1
	default:
		return 0
	}
}

// NeedsReview reports whether the state is Due or Critical.
func (s DueState) NeedsReview() bool {
	return s == Due || s == Critical
}

// ReviewIntervalDays returns the mastery-dependent review interval.
func ReviewIntervalDays(cfg Config, score float64) float64 {
	return cfg.BaseIntervalDays * (1 + cfg.MasteryFactor*score)
}

// DaysSinceReview returns the fractional days between the last update and now.
// A last update in the future counts as zero.
func DaysSinceReview(rec mastery.Record, now time.Time) float64 {
	if now.Before(rec.LastUpdatedAt) {
		return 0
	}
	return now.Sub(rec.LastUpdatedAt).Hours() / 24.0
}

// Classify labels a mastery record. Unseen outcomes are Due so they compete
// for first teaching alongside review material.
func Classify(cfg Config, rec mastery.Record, now time.Time) DueState {
	if !rec.Exists() {
		return Due
	}
	elapsed := DaysSinceReview(rec, now)
	interval := ReviewIntervalDays(cfg, rec.Score)
	switch {
	case elapsed < interval:
		return NotDue
	case elapsed < CriticalMultiple*interval:
		return Due
	default:
		return Critical
	}
}
