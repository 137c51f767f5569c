package mastery

import (
	"sort"
	"time"

	"github.com/abhisek/nextlesson/internal/apperr"
)

// CompletionEvent reports one completed lesson with a 0..1 score for every
// outcome the attempt exercised.
type CompletionEvent struct {
	ID          string             `json:"id,omitempty"`
	LearnerID   string             `json:"learner_id"`
	CourseID    string             `json:"course_id"`
	LessonID    string             `json:"lesson_id"`
	Scores      map[string]float64 `json:"scores"`
	CompletedAt time.Time          `json:"completed_at"`
}

// Validate checks identifiers and every score before any record is touched.
func (ev CompletionEvent) Validate() error {
	if ev.LearnerID == "" {
		return apperr.Validation("learner_id", nil, "required")
	}
	if ev.CourseID == "" {
		return apperr.Validation("course_id", nil, "required")
	}
	if ev.LessonID == "" {
		return apperr.Validation("lesson_id", nil, "required")
	}
	if len(ev.Scores) == 0 {
		return apperr.Validation("scores", nil, "at least one outcome score is required")
	}
	for _, id := range ev.OutcomeIDs() {
		if id == "" {
			return apperr.Validation("scores", nil, "outcome id must not be empty")
		}
		if err := ValidateScore(id, ev.Scores[id]); err != nil {
			return err
		}
	}
	return nil
}

// OutcomeIDs returns the touched outcome IDs in sorted order.
func (ev CompletionEvent) OutcomeIDs() []string {
	ids := make([]string, 0, len(ev.Scores))
	for id := range ev.Scores {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Key returns the mastery key for one of the event's outcomes.
func (ev CompletionEvent) Key(outcomeID string) Key {
	return Key{LearnerID: ev.LearnerID, CourseID: ev.CourseID, OutcomeID: outcomeID}
}

// ApplyCompletion updates every outcome the event touches, each independently.
// existing is indexed by outcome ID; missing entries are treated as absent.
// Only touched records are returned. Untouched outcomes are not decayed.
func ApplyCompletion(cfg Config, existing map[string]Record, ev CompletionEvent, now time.Time) (map[string]Record, error) {
	if err := ev.Validate(); err != nil {
		return nil, err
	}

	updated := make(map[string]Record, len(ev.Scores))
	for _, id := range ev.OutcomeIDs() {
		prev, ok := existing[id]
		if !ok {
			prev = Absent(ev.Key(id))
		}
		next, err := Update(cfg, prev, ev.Scores[id], now)
		if err != nil {
			return nil, err
		}
		updated[id] = next
	}
	return updated, nil
}
