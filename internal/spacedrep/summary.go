package spacedrep

import (
	"encoding/json"
	"sort"
	"time"

	"github.com/abhisek/nextlesson/internal/curriculum"
	"github.com/abhisek/nextlesson/internal/mastery"
)

// DueItem is one outcome that needs review.
type DueItem struct {
	OutcomeID       string   `json:"outcome_id"`
	State           DueState `json:"state"`
	Unseen          bool     `json:"unseen,omitempty"`
	Score           float64  `json:"score"`
	DaysSinceReview float64  `json:"days_since_review"`
	IntervalDays    float64  `json:"interval_days"`
	CurriculumOrder int      `json:"curriculum_order"`
}

// overdueRatio is elapsed time in units of the review interval.
func (d DueItem) overdueRatio() float64 {
	if d.Unseen || d.IntervalDays <= 0 {
		return 0
	}
	return d.DaysSinceReview / d.IntervalDays
}

// LessonRef is a lesson that targets at least one due outcome.
type LessonRef struct {
	LessonID   string   `json:"lesson_id"`
	Title      string   `json:"title"`
	OutcomeIDs []string `json:"outcome_ids"`
}

// Summary lists every due or critical outcome of a course for one learner.
// Counts are derived from Items, so a count can always be resolved to the
// same number of identities.
type Summary struct {
	Items   []DueItem
	Lessons []LessonRef
}

// Count returns the number of due or critical outcomes.
func (s Summary) Count() int { return len(s.Items) }

// CriticalCount returns the number of critical outcomes.
func (s Summary) CriticalCount() int {
	n := 0
	for _, it := range s.Items {
		if it.State == Critical {
			n++
		}
	}
	return n
}

// OutcomeIDs returns the identities behind Count, in Items order.
func (s Summary) OutcomeIDs() []string {
	ids := make([]string, len(s.Items))
	for i, it := range s.Items {
		ids[i] = it.OutcomeID
	}
	return ids
}

func (s Summary) MarshalJSON() ([]byte, error) {
	items := s.Items
	if items == nil {
		items = []DueItem{}
	}
	lessons := s.Lessons
	if lessons == nil {
		lessons = []LessonRef{}
	}
	return json.Marshal(struct {
		Count         int         `json:"count"`
		CriticalCount int         `json:"critical_count"`
		Items         []DueItem   `json:"items"`
		Lessons       []LessonRef `json:"lessons"`
	}{s.Count(), s.CriticalCount(), items, lessons})
}

// Summarize classifies every outcome of the course. records may contain
// outcomes of other courses; those are ignored. Items are ordered critical
// first, then by how far past the interval they are, then curriculum order.
func Summarize(cfg Config, course *curriculum.Course, records []mastery.Record, now time.Time) Summary {
	byOutcome := mastery.ByOutcome(course.ID, records)

	var items []DueItem
	for _, o := range course.Outcomes {
		rec, ok := byOutcome[o.ID]
		if !ok {
			rec = mastery.Absent(mastery.Key{CourseID: course.ID, OutcomeID: o.ID})
		}
		state := Classify(cfg, rec, now)
		if !state.NeedsReview() {
			continue
		}
		item := DueItem{
			OutcomeID:       o.ID,
			State:           state,
			Unseen:          !rec.Exists(),
			Score:           rec.Score,
			CurriculumOrder: o.CurriculumOrder,
		}
		if rec.Exists() {
			item.DaysSinceReview = DaysSinceReview(rec, now)
			item.IntervalDays = ReviewIntervalDays(cfg, rec.Score)
		}
		items = append(items, item)
	}

	sort.SliceStable(items, func(i, j int) bool {
		a, b := items[i], items[j]
		if a.State.Rank() != b.State.Rank() {
			return a.State.Rank() > b.State.Rank()
		}
		if a.overdueRatio() != b.overdueRatio() {
			return a.overdueRatio() > b.overdueRatio()
		}
		if a.CurriculumOrder != b.CurriculumOrder {
			return a.CurriculumOrder < b.CurriculumOrder
		}
		return a.OutcomeID < b.OutcomeID
	})

	s := Summary{Items: items}
	due := make(map[string]bool, len(items))
	for _, it := range items {
		due[it.OutcomeID] = true
	}
	for _, l := range course.LessonsTargeting(s.OutcomeIDs()) {
		ref := LessonRef{LessonID: l.ID, Title: l.Title}
		for _, id := range l.TargetOutcomeIDs {
			if due[id] {
				ref.OutcomeIDs = append(ref.OutcomeIDs, id)
			}
		}
		s.Lessons = append(s.Lessons, ref)
	}
	return s
}
