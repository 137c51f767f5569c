package recommend

import (
	"time"

	"github.com/abhisek/nextlesson/internal/apperr"
)

// Reason explains why a candidate scored well. The set is closed.
type Reason string

const (
	ReasonOverdue    Reason = "overdue"
	ReasonLowMastery Reason = "low-mastery"
	ReasonEarlyOrder Reason = "early-order"
	ReasonShortWin   Reason = "short-win"
)

// Flag marks a penalty applied to a candidate. The set is closed.
type Flag string

const (
	FlagRecentlyTaught Flag = "recently-taught"
	FlagTooLong        Flag = "too-long"
)

// Candidate is one ranked next-lesson suggestion.
type Candidate struct {
	LessonID         string   `json:"lesson_id"`
	Title            string   `json:"title"`
	EstimatedMinutes int      `json:"estimated_minutes"`
	PriorityScore    float64  `json:"priority_score"`
	Reasons          []Reason `json:"reasons"`
	Flags            []Flag   `json:"flags"`
}

// HasReason reports whether the candidate carries r.
func (c Candidate) HasReason(r Reason) bool {
	for _, x := range c.Reasons {
		if x == r {
			return true
		}
	}
	return false
}

// HasFlag reports whether the candidate carries f.
func (c Candidate) HasFlag(f Flag) bool {
	for _, x := range c.Flags {
		if x == f {
			return true
		}
	}
	return false
}

// CourseRecommendation is the response envelope. Candidates always holds
// between one and MaxCandidates entries sorted by PriorityScore descending.
type CourseRecommendation struct {
	CourseID          string      `json:"course_id"`
	LearnerID         string      `json:"learner_id,omitempty"`
	GeneratedAt       time.Time   `json:"generated_at"`
	Candidates        []Candidate `json:"candidates"`
	RubricDescription string      `json:"rubric_description"`
}

const (
	MinBlockMinutes = 5
	MaxBlockMinutes = 120

	MinAvoidRepeatDays = 0
	MaxAvoidRepeatDays = 30
)

// Constraints is the per-request configuration.
type Constraints struct {
	MaxBlockMinutes       int  `json:"max_block_minutes"`
	AvoidRepeatWithinDays int  `json:"avoid_repeat_within_days"`
	PreferOverdue         bool `json:"prefer_overdue"`
	PreferLowMastery      bool `json:"prefer_low_mastery"`
}

// DefaultConstraints returns the constraints used when a request omits them.
func DefaultConstraints() Constraints {
	return Constraints{
		MaxBlockMinutes:       30,
		AvoidRepeatWithinDays: 7,
		PreferOverdue:         true,
		PreferLowMastery:      true,
	}
}

// Validate rejects out-of-range fields. Values are never clamped.
func (c Constraints) Validate() error {
	if c.MaxBlockMinutes < MinBlockMinutes || c.MaxBlockMinutes > MaxBlockMinutes {
		return apperr.Validation("max_block_minutes", c.MaxBlockMinutes, "must be in [5,120]")
	}
	if c.AvoidRepeatWithinDays < MinAvoidRepeatDays || c.AvoidRepeatWithinDays > MaxAvoidRepeatDays {
		return apperr.Validation("avoid_repeat_within_days", c.AvoidRepeatWithinDays, "must be in [0,30]")
	}
	return nil
}
