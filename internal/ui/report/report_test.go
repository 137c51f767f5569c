package report

import (
	"strings"
	"testing"
	"time"

	"github.com/abhisek/nextlesson/internal/mastery"
	"github.com/abhisek/nextlesson/internal/recommend"
	"github.com/abhisek/nextlesson/internal/spacedrep"
	"github.com/abhisek/nextlesson/internal/store"
)

func TestRecommendation(t *testing.T) {
	out := Recommendation(recommend.CourseRecommendation{
		CourseID:          "algebra",
		LearnerID:         "ada",
		GeneratedAt:       time.Now(),
		RubricDescription: "Overdue>LowMastery>Order | -Recent -TooLong",
		Candidates: []recommend.Candidate{
			{LessonID: "intro", Title: "Intro", EstimatedMinutes: 10, PriorityScore: 0.8,
				Reasons: []recommend.Reason{recommend.ReasonOverdue}, Flags: []recommend.Flag{}},
			{LessonID: "solve", Title: "Solving", EstimatedMinutes: 45, PriorityScore: 0.1,
				Reasons: []recommend.Reason{}, Flags: []recommend.Flag{recommend.FlagTooLong}},
		},
	})

	for _, want := range []string{"ada", "algebra", "Intro", "intro", "overdue", "!too-long", "45 min", "-TooLong"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
	if strings.Index(out, "Intro") > strings.Index(out, "Solving") {
		t.Error("candidates rendered out of order")
	}
}

func TestDue(t *testing.T) {
	empty := Due("algebra", "ada", spacedrep.Summary{})
	if !strings.Contains(empty, "Nothing is due") {
		t.Errorf("empty summary = %q", empty)
	}

	out := Due("algebra", "ada", spacedrep.Summary{
		Items: []spacedrep.DueItem{
			{OutcomeID: "vars", State: spacedrep.Critical, Score: 0.2, DaysSinceReview: 12, IntervalDays: 5.4},
			{OutcomeID: "eqns", State: spacedrep.Due, Unseen: true},
		},
		Lessons: []spacedrep.LessonRef{{LessonID: "intro", Title: "Intro", OutcomeIDs: []string{"vars"}}},
	})
	for _, want := range []string{"2 due, 1 critical", "critical", "vars", "never attempted", "Intro"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestMastery(t *testing.T) {
	now := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)
	warm, due := mastery.DefaultConfig(), spacedrep.DefaultConfig()

	if out := Mastery(nil, warm, due, now); !strings.Contains(out, "No mastery") {
		t.Errorf("empty = %q", out)
	}

	out := Mastery([]store.Versioned{
		{
			Record: mastery.Record{Key: mastery.Key{CourseID: "algebra", OutcomeID: "vars"},
				Score: 0.5, ObservationCount: 2, LastUpdatedAt: now},
			Version: 2,
		},
		{
			Record: mastery.Record{Key: mastery.Key{CourseID: "algebra", OutcomeID: "eqns"},
				Score: 0.2, ObservationCount: 5, LastUpdatedAt: now.AddDate(0, 0, -30)},
			Version: 5,
		},
	}, warm, due, now)

	lines := strings.Split(strings.TrimSpace(out), "\n")
	if len(lines) != 2 {
		t.Fatalf("want 2 lines, got %q", out)
	}
	for _, want := range []string{"vars", "0.50", "n=2", "not-due", "warming up"} {
		if !strings.Contains(lines[0], want) {
			t.Errorf("vars line missing %q: %q", want, lines[0])
		}
	}
	for _, want := range []string{"eqns", "n=5", "critical"} {
		if !strings.Contains(lines[1], want) {
			t.Errorf("eqns line missing %q: %q", want, lines[1])
		}
	}
	if strings.Contains(lines[1], "warming up") {
		t.Errorf("eqns is past warm-up: %q", lines[1])
	}
}
