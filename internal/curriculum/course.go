package curriculum

import (
	"sort"
)

// Outcome is one assessable learning objective within a course.
type Outcome struct {
	ID               string `json:"id" yaml:"id"`
	Title            string `json:"title,omitempty" yaml:"title,omitempty"`
	CurriculumOrder  int    `json:"curriculum_order" yaml:"curriculum_order"`
	EstimatedMinutes int    `json:"estimated_minutes" yaml:"estimated_minutes"`
}

// Lesson is an authored lesson template targeting one or more outcomes.
type Lesson struct {
	ID               string   `json:"id" yaml:"id"`
	Title            string   `json:"title" yaml:"title"`
	TargetOutcomeIDs []string `json:"target_outcome_ids" yaml:"target_outcome_ids"`
	EstimatedMinutes int      `json:"estimated_minutes" yaml:"estimated_minutes"`
	CurriculumOrder  int      `json:"curriculum_order" yaml:"curriculum_order"`
}

// Course is the complete, read-only catalog for one course.
type Course struct {
	ID            string    `json:"id" yaml:"id"`
	Title         string    `json:"title,omitempty" yaml:"title,omitempty"`
	SchemaVersion string    `json:"schema_version,omitempty" yaml:"schema_version,omitempty"`
	Outcomes      []Outcome `json:"outcomes" yaml:"outcomes"`
	Lessons       []Lesson  `json:"lessons" yaml:"lessons"`

	outcomeIdx map[string]int
	lessonIdx  map[string]int
}

// NewCourse validates the catalog and builds its lookup indices.
func NewCourse(id, title string, outcomes []Outcome, lessons []Lesson) (*Course, error) {
	c := &Course{ID: id, Title: title, Outcomes: outcomes, Lessons: lessons}
	if err := c.init(); err != nil {
		return nil, err
	}
	return c, nil
}

// init validates the course and builds indices. Called once after decoding.
func (c *Course) init() error {
	if err := validateCourse(c); err != nil {
		return err
	}
	c.outcomeIdx = make(map[string]int, len(c.Outcomes))
	for i, o := range c.Outcomes {
		c.outcomeIdx[o.ID] = i
	}
	c.lessonIdx = make(map[string]int, len(c.Lessons))
	for i, l := range c.Lessons {
		c.lessonIdx[l.ID] = i
	}
	return nil
}

// Outcome looks up an outcome by ID.
func (c *Course) Outcome(id string) (Outcome, bool) {
	i, ok := c.outcomeIdx[id]
	if !ok {
		return Outcome{}, false
	}
	return c.Outcomes[i], true
}

// Lesson looks up a lesson by ID.
func (c *Course) Lesson(id string) (Lesson, bool) {
	i, ok := c.lessonIdx[id]
	if !ok {
		return Lesson{}, false
	}
	return c.Lessons[i], true
}

// HasOutcome reports whether id is an outcome of this course.
func (c *Course) HasOutcome(id string) bool {
	_, ok := c.outcomeIdx[id]
	return ok
}

// LessonsInOrder returns the lessons sorted by curriculum order, then ID.
func (c *Course) LessonsInOrder() []Lesson {
	sorted := make([]Lesson, len(c.Lessons))
	copy(sorted, c.Lessons)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].CurriculumOrder != sorted[j].CurriculumOrder {
			return sorted[i].CurriculumOrder < sorted[j].CurriculumOrder
		}
		return sorted[i].ID < sorted[j].ID
	})
	return sorted
}

// LessonsTargeting returns the lessons that target any of the given outcomes,
// in curriculum order.
func (c *Course) LessonsTargeting(outcomeIDs []string) []Lesson {
	want := make(map[string]bool, len(outcomeIDs))
	for _, id := range outcomeIDs {
		want[id] = true
	}
	var out []Lesson
	for _, l := range c.LessonsInOrder() {
		for _, id := range l.TargetOutcomeIDs {
			if want[id] {
				out = append(out, l)
				break
			}
		}
	}
	return out
}
