// Package report renders service results for the terminal.
package report

import (
	"fmt"
	"strings"
	"time"

	"charm.land/lipgloss/v2"

	"github.com/abhisek/nextlesson/internal/mastery"
	"github.com/abhisek/nextlesson/internal/recommend"
	"github.com/abhisek/nextlesson/internal/spacedrep"
	"github.com/abhisek/nextlesson/internal/store"
	"github.com/abhisek/nextlesson/internal/ui/components"
	"github.com/abhisek/nextlesson/internal/ui/theme"
)

const barWidth = 24

// Recommendation renders ranked candidates as cards.
func Recommendation(rec recommend.CourseRecommendation) string {
	var b strings.Builder
	b.WriteString(theme.Title.Render(fmt.Sprintf("Next lessons for %s in %s", rec.LearnerID, rec.CourseID)))
	b.WriteString("\n")
	b.WriteString(theme.Hint.Render(rec.RubricDescription))
	b.WriteString("\n")

	for i, c := range rec.Candidates {
		var lines []string
		lines = append(lines, fmt.Sprintf("%d. %s %s",
			i+1, theme.Body.Bold(true).Render(c.Title), theme.Subtitle.Render("("+c.LessonID+")")))
		lines = append(lines, components.NewMeter("priority", c.PriorityScore, barWidth+15).View())
		lines = append(lines, theme.Subtitle.Render(fmt.Sprintf("%d min", c.EstimatedMinutes)))

		var tags []string
		for _, r := range c.Reasons {
			tags = append(tags, theme.Reason.Render(string(r)))
		}
		for _, f := range c.Flags {
			tags = append(tags, theme.Flag.Render("!"+string(f)))
		}
		if len(tags) > 0 {
			lines = append(lines, strings.Join(tags, " "))
		}
		b.WriteString(cardFor(c).Render(lipgloss.JoinVertical(lipgloss.Left, lines...)))
		b.WriteString("\n")
	}
	return b.String()
}

// Due renders the review summary, most urgent first.
func Due(courseID, learnerID string, sum spacedrep.Summary) string {
	var b strings.Builder
	b.WriteString(theme.Title.Render(fmt.Sprintf("Review for %s in %s", learnerID, courseID)))
	b.WriteString("\n")

	if sum.Count() == 0 {
		b.WriteString(theme.Hint.Render("Nothing is due."))
		b.WriteString("\n")
		return b.String()
	}
	b.WriteString(theme.Subtitle.Render(fmt.Sprintf("%d due, %d critical", sum.Count(), sum.CriticalCount())))
	b.WriteString("\n")

	for _, it := range sum.Items {
		state := theme.Due.Render(string(it.State))
		if it.State == spacedrep.Critical {
			state = theme.Critical.Render(string(it.State))
		}
		detail := "never attempted"
		if !it.Unseen {
			detail = fmt.Sprintf("score %.2f, %.1f of %.1f days", it.Score, it.DaysSinceReview, it.IntervalDays)
		}
		fmt.Fprintf(&b, "  %-10s %-20s %s\n", state, it.OutcomeID, theme.Subtitle.Render(detail))
	}

	if len(sum.Lessons) > 0 {
		b.WriteString(theme.Body.Bold(true).Render("Lessons covering them:"))
		b.WriteString("\n")
		for _, l := range sum.Lessons {
			fmt.Fprintf(&b, "  %s %s\n", l.Title, theme.Subtitle.Render("("+l.LessonID+": "+strings.Join(l.OutcomeIDs, ", ")+")"))
		}
	}
	return b.String()
}

// cardFor highlights overdue candidates and dims penalized ones.
func cardFor(c recommend.Candidate) lipgloss.Style {
	switch {
	case c.HasReason(recommend.ReasonOverdue):
		return theme.Card.BorderForeground(theme.Accent)
	case c.HasFlag(recommend.FlagRecentlyTaught), c.HasFlag(recommend.FlagTooLong):
		return theme.Card.BorderForeground(theme.TextDim)
	default:
		return theme.Card
	}
}

// Mastery renders one meter per stored outcome, coloured by its review
// state at now. Outcomes still in warm-up are marked.
func Mastery(records []store.Versioned, warm mastery.Config, due spacedrep.Config, now time.Time) string {
	if len(records) == 0 {
		return theme.Hint.Render("No mastery recorded yet.") + "\n"
	}
	var b strings.Builder
	for _, r := range records {
		label := fmt.Sprintf("%-16s", r.OutcomeID)
		state := spacedrep.Classify(due, r.Record, now)
		b.WriteString(components.NewMeter(label, r.Score, len(label)+2+barWidth+5).WithState(state).View())

		note := fmt.Sprintf("  n=%d %s", r.ObservationCount, state)
		if r.InWarmup(warm) {
			note += ", warming up"
		}
		b.WriteString(theme.Subtitle.Render(note))
		b.WriteString("\n")
	}
	return b.String()
}
