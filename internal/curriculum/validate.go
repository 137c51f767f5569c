package curriculum

import (
	"fmt"
	"sort"
	"strings"

	"github.com/abhisek/nextlesson/internal/apperr"
)

// validateCourse performs all structural checks on a course catalog.
// Returns a combined validation error describing every problem found.
func validateCourse(c *Course) error {
	var errs []string

	if c.ID == "" {
		errs = append(errs, "course ID is empty")
	}
	if len(c.Lessons) == 0 {
		errs = append(errs, "course has no lessons")
	}

	// Outcomes: unique IDs, positive minutes, strictly increasing order.
	outcomeSet := make(map[string]bool, len(c.Outcomes))
	for _, o := range c.Outcomes {
		if o.ID == "" {
			errs = append(errs, "outcome with empty ID")
			continue
		}
		if outcomeSet[o.ID] {
			errs = append(errs, fmt.Sprintf("duplicate outcome ID: %q", o.ID))
		}
		outcomeSet[o.ID] = true
		if o.EstimatedMinutes <= 0 {
			errs = append(errs, fmt.Sprintf("outcome %q: estimated_minutes must be > 0, got %d", o.ID, o.EstimatedMinutes))
		}
	}

	ordered := make([]Outcome, len(c.Outcomes))
	copy(ordered, c.Outcomes)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].CurriculumOrder < ordered[j].CurriculumOrder
	})
	for i := 1; i < len(ordered); i++ {
		if ordered[i].CurriculumOrder == ordered[i-1].CurriculumOrder {
			errs = append(errs, fmt.Sprintf("outcomes %q and %q share curriculum_order %d",
				ordered[i-1].ID, ordered[i].ID, ordered[i].CurriculumOrder))
		}
	}

	// Lessons: unique IDs, non-empty targets that exist, positive minutes.
	lessonSet := make(map[string]bool, len(c.Lessons))
	for _, l := range c.Lessons {
		if l.ID == "" {
			errs = append(errs, "lesson with empty ID")
			continue
		}
		if lessonSet[l.ID] {
			errs = append(errs, fmt.Sprintf("duplicate lesson ID: %q", l.ID))
		}
		lessonSet[l.ID] = true
		if len(l.TargetOutcomeIDs) == 0 {
			errs = append(errs, fmt.Sprintf("lesson %q has no target outcomes", l.ID))
		}
		for _, oid := range l.TargetOutcomeIDs {
			if !outcomeSet[oid] {
				errs = append(errs, fmt.Sprintf("lesson %q references nonexistent outcome %q", l.ID, oid))
			}
		}
		if l.EstimatedMinutes <= 0 {
			errs = append(errs, fmt.Sprintf("lesson %q: estimated_minutes must be > 0, got %d", l.ID, l.EstimatedMinutes))
		}
	}

	if len(errs) > 0 {
		return apperr.Validation("catalog", c.ID, strings.Join(errs, "; "))
	}
	return nil
}
