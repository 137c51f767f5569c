package mastery

import (
	"fmt"
	"time"
)

// Key identifies one learner's mastery of one outcome within a course.
type Key struct {
	LearnerID string `json:"learner_id"`
	CourseID  string `json:"course_id"`
	OutcomeID string `json:"outcome_id"`
}

// String returns the key as learner/course/outcome.
func (k Key) String() string {
	return fmt.Sprintf("%s/%s/%s", k.LearnerID, k.CourseID, k.OutcomeID)
}

// Record is the rolled-up competency estimate for one Key.
// A Record with ObservationCount == 0 stands for "no record yet".
type Record struct {
	Key
	Score            float64   `json:"score"`
	ObservationCount int       `json:"observation_count"`
	LastUpdatedAt    time.Time `json:"last_updated_at"`
}

// Absent returns the empty record for key.
func Absent(key Key) Record {
	return Record{Key: key}
}

// Exists reports whether at least one attempt has touched the outcome.
func (r Record) Exists() bool {
	return r.ObservationCount > 0
}

// InWarmup reports whether the next update uses the warm-up blend weight.
func (r Record) InWarmup(cfg Config) bool {
	return r.ObservationCount > 0 && r.ObservationCount < cfg.WarmupObservations
}

// ByOutcome indexes the records of one course by outcome ID. Records of
// other courses are skipped.
func ByOutcome(courseID string, records []Record) map[string]Record {
	out := make(map[string]Record, len(records))
	for _, r := range records {
		if r.CourseID == courseID {
			out[r.OutcomeID] = r
		}
	}
	return out
}
