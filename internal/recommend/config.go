package recommend

import (
	"github.com/abhisek/nextlesson/internal/apperr"
)

// Weights sets the relative pull of each scoring signal. The weighted sum is
// divided by the total so the base score stays within [0,1].
type Weights struct {
	Overdue float64 `mapstructure:"overdue" json:"overdue"`
	Mastery float64 `mapstructure:"mastery" json:"mastery"`
	Order   float64 `mapstructure:"order" json:"order"`
}

func (w Weights) total() float64 {
	return w.Overdue + w.Mastery + w.Order
}

// Config holds the tunable scoring constants.
type Config struct {
	Weights Weights `mapstructure:"weights" json:"weights"`

	// Overdue signal values per due state.
	DueValue      float64 `mapstructure:"due_value" json:"due_value"`
	CriticalValue float64 `mapstructure:"critical_value" json:"critical_value"`

	ShortWinMinutes int     `mapstructure:"short_win_minutes" json:"short_win_minutes"`
	ShortWinBonus   float64 `mapstructure:"short_win_bonus" json:"short_win_bonus"`

	// Multiplicative penalties.
	RecentPenalty  float64 `mapstructure:"recent_penalty" json:"recent_penalty"`
	TooLongPenalty float64 `mapstructure:"too_long_penalty" json:"too_long_penalty"`

	LowMasteryThreshold float64 `mapstructure:"low_mastery_threshold" json:"low_mastery_threshold"`
	MaxCandidates       int     `mapstructure:"max_candidates" json:"max_candidates"`
}

// DefaultConfig returns the 3:2:1 weighting and default penalties.
func DefaultConfig() Config {
	return Config{
		Weights:             Weights{Overdue: 3, Mastery: 2, Order: 1},
		DueValue:            0.4,
		CriticalValue:       1.0,
		ShortWinMinutes:     15,
		ShortWinBonus:       0.05,
		RecentPenalty:       0.2,
		TooLongPenalty:      0.3,
		LowMasteryThreshold: 0.5,
		MaxCandidates:       5,
	}
}

// Validate checks that the constants keep scores in range and preserve
// the Overdue > LowMastery > Order precedence.
func (c Config) Validate() error {
	w := c.Weights
	if w.Overdue <= 0 || w.Mastery <= 0 || w.Order <= 0 {
		return apperr.Validation("recommend.weights", w, "all weights must be > 0")
	}
	if !(w.Overdue > w.Mastery && w.Mastery > w.Order) {
		return apperr.Validation("recommend.weights", w, "must satisfy overdue > mastery > order")
	}
	if !(c.DueValue > 0 && c.DueValue < c.CriticalValue && c.CriticalValue <= 1) {
		return apperr.Validation("recommend.due_value", c.DueValue, "must satisfy 0 < due < critical <= 1")
	}
	if c.ShortWinMinutes < 0 {
		return apperr.Validation("recommend.short_win_minutes", c.ShortWinMinutes, "must be >= 0")
	}
	if c.ShortWinBonus < 0 || c.ShortWinBonus > 1 {
		return apperr.Validation("recommend.short_win_bonus", c.ShortWinBonus, "must be in [0,1]")
	}
	if c.RecentPenalty <= 0 || c.RecentPenalty > 1 {
		return apperr.Validation("recommend.recent_penalty", c.RecentPenalty, "must be in (0,1]")
	}
	if c.TooLongPenalty <= 0 || c.TooLongPenalty > 1 {
		return apperr.Validation("recommend.too_long_penalty", c.TooLongPenalty, "must be in (0,1]")
	}
	if c.LowMasteryThreshold < 0 || c.LowMasteryThreshold > 1 {
		return apperr.Validation("recommend.low_mastery_threshold", c.LowMasteryThreshold, "must be in [0,1]")
	}
	if c.MaxCandidates < 1 || c.MaxCandidates > 5 {
		return apperr.Validation("recommend.max_candidates", c.MaxCandidates, "must be in [1,5]")
	}
	return nil
}
