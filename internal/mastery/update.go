package mastery

import (
	"fmt"
	"math"
	"time"

	"github.com/abhisek/nextlesson/internal/apperr"
)

const (
	// DefaultWarmupObservations is the number of observations that use the
	// warm-up blend weight, counting the bootstrap observation.
	DefaultWarmupObservations = 3

	// DefaultWarmupAlpha is the blend weight given to a new score during warm-up.
	DefaultWarmupAlpha = 0.5

	// DefaultAlpha is the steady-state blend weight given to a new score.
	DefaultAlpha = 0.3
)

// Config holds the smoothing constants for the mastery updater.
type Config struct {
	WarmupObservations int     `mapstructure:"warmup_observations" json:"warmup_observations"`
	WarmupAlpha        float64 `mapstructure:"warmup_alpha" json:"warmup_alpha"`
	Alpha              float64 `mapstructure:"alpha" json:"alpha"`
}

// DefaultConfig returns the default smoothing constants.
func DefaultConfig() Config {
	return Config{
		WarmupObservations: DefaultWarmupObservations,
		WarmupAlpha:        DefaultWarmupAlpha,
		Alpha:              DefaultAlpha,
	}
}

// Validate checks that the constants produce a convex blend.
func (c Config) Validate() error {
	if c.WarmupObservations < 1 {
		return apperr.Validation("mastery.warmup_observations", c.WarmupObservations, "must be >= 1")
	}
	if !(c.WarmupAlpha > 0 && c.WarmupAlpha <= 1) {
		return apperr.Validation("mastery.warmup_alpha", c.WarmupAlpha, "must be in (0,1]")
	}
	if !(c.Alpha > 0 && c.Alpha <= 1) {
		return apperr.Validation("mastery.alpha", c.Alpha, "must be in (0,1]")
	}
	return nil
}

// ValidateScore rejects attempt scores outside [0,1]. NaN is rejected too.
func ValidateScore(outcomeID string, score float64) error {
	if math.IsNaN(score) || score < 0 || score > 1 {
		field := "score"
		if outcomeID != "" {
			field = fmt.Sprintf("score[%s]", outcomeID)
		}
		return apperr.Validation(field, score, "must be in [0,1]")
	}
	return nil
}

// Update folds one attempt score into existing and returns the new record.
//
// The first observation sets the score directly. While the record has fewer
// than cfg.WarmupObservations observations the new score is blended with
// cfg.WarmupAlpha, afterwards with cfg.Alpha. LastUpdatedAt becomes now
// unless the record already carries a later time, so a late report of an
// older attempt still counts but never makes the outcome look stale.
func Update(cfg Config, existing Record, newScore float64, now time.Time) (Record, error) {
	if err := ValidateScore(existing.OutcomeID, newScore); err != nil {
		return Record{}, err
	}

	next := existing
	switch {
	case existing.ObservationCount <= 0:
		next.Score = newScore
		next.ObservationCount = 0
	case existing.ObservationCount < cfg.WarmupObservations:
		next.Score = blend(cfg.WarmupAlpha, newScore, existing.Score)
	default:
		next.Score = blend(cfg.Alpha, newScore, existing.Score)
	}

	next.Score = clamp(next.Score, 0, 1)
	next.ObservationCount++
	if now.After(existing.LastUpdatedAt) {
		next.LastUpdatedAt = now
	}
	return next, nil
}

func blend(alpha, newScore, old float64) float64 {
	return alpha*newScore + (1-alpha)*old
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
