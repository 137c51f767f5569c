package recommend

import (
	"sort"
	"strings"
	"time"

	"github.com/abhisek/nextlesson/internal/apperr"
	"github.com/abhisek/nextlesson/internal/curriculum"
	"github.com/abhisek/nextlesson/internal/mastery"
	"github.com/abhisek/nextlesson/internal/spacedrep"
)

// Engine ranks a course's lessons for one learner. It holds only
// configuration and is safe for concurrent use.
type Engine struct {
	cfg Config
	due spacedrep.Config
}

// NewEngine creates an engine with the given scoring and interval constants.
func NewEngine(cfg Config, due spacedrep.Config) *Engine {
	return &Engine{cfg: cfg, due: due}
}

// Signals are the raw per-lesson components before weighting.
type Signals struct {
	Overdue  float64 `json:"overdue"`
	Mastery  float64 `json:"mastery"`
	Order    float64 `json:"order"`
	ShortWin float64 `json:"short_win"`
}

type scoredLesson struct {
	lesson  curriculum.Lesson
	signals Signals
	score   float64
	reasons []Reason
	flags   []Flag
}

// Recommend scores every lesson in the course and returns the best
// candidates. Lessons are only ever down-weighted, never excluded, so a
// course with at least one lesson always yields at least one candidate.
//
// recentlyTaught maps lesson ID to whole days since it was last taught.
// Entries for lessons outside the course are ignored.
func (e *Engine) Recommend(
	course *curriculum.Course,
	records []mastery.Record,
	recentlyTaught map[string]int,
	c Constraints,
	now time.Time,
) (CourseRecommendation, error) {
	if err := c.Validate(); err != nil {
		return CourseRecommendation{}, err
	}
	if course == nil {
		return CourseRecommendation{}, apperr.Validation("course", nil, "required")
	}
	if len(course.Lessons) == 0 {
		return CourseRecommendation{}, apperr.NotFound("lessons for course", course.ID)
	}
	for id, days := range recentlyTaught {
		if days < 0 {
			return CourseRecommendation{}, apperr.Validation("recently_taught["+id+"]", days, "must be >= 0")
		}
	}

	byOutcome := mastery.ByOutcome(course.ID, records)

	ordered := course.LessonsInOrder()
	minOrder := ordered[0].CurriculumOrder
	maxOrder := ordered[len(ordered)-1].CurriculumOrder
	earlyCutoff := (len(ordered) + 3) / 4 // ceil(n/4)

	scored := make([]scoredLesson, 0, len(ordered))
	for rank, l := range ordered {
		sl := scoredLesson{lesson: l}
		sl.signals = e.signals(l, byOutcome, minOrder, maxOrder, now)
		sl.score = e.baseScore(sl.signals, c)

		if daysAgo, ok := recentlyTaught[l.ID]; ok && daysAgo < c.AvoidRepeatWithinDays {
			sl.score *= e.cfg.RecentPenalty
			sl.flags = append(sl.flags, FlagRecentlyTaught)
		}
		if l.EstimatedMinutes > c.MaxBlockMinutes {
			sl.score *= e.cfg.TooLongPenalty
			sl.flags = append(sl.flags, FlagTooLong)
		}
		sl.score = clamp(sl.score, 0, 1)
		sl.reasons = e.reasons(sl.signals, c, rank < earlyCutoff)
		scored = append(scored, sl)
	}

	sort.SliceStable(scored, func(i, j int) bool {
		a, b := scored[i], scored[j]
		if a.score != b.score {
			return a.score > b.score
		}
		if a.lesson.CurriculumOrder != b.lesson.CurriculumOrder {
			return a.lesson.CurriculumOrder < b.lesson.CurriculumOrder
		}
		return a.lesson.ID < b.lesson.ID
	})

	limit := e.cfg.MaxCandidates
	if limit > len(scored) {
		limit = len(scored)
	}
	candidates := make([]Candidate, limit)
	for i := 0; i < limit; i++ {
		sl := scored[i]
		candidates[i] = Candidate{
			LessonID:         sl.lesson.ID,
			Title:            sl.lesson.Title,
			EstimatedMinutes: sl.lesson.EstimatedMinutes,
			PriorityScore:    sl.score,
			Reasons:          nonNil(sl.reasons),
			Flags:            nonNil(sl.flags),
		}
	}

	return CourseRecommendation{
		CourseID:          course.ID,
		GeneratedAt:       now,
		Candidates:        candidates,
		RubricDescription: Rubric(c),
	}, nil
}

// signals computes the unweighted components for one lesson.
func (e *Engine) signals(l curriculum.Lesson, byOutcome map[string]mastery.Record, minOrder, maxOrder int, now time.Time) Signals {
	var s Signals
	var scoreSum float64
	for _, oid := range l.TargetOutcomeIDs {
		rec, ok := byOutcome[oid]
		if !ok {
			rec = mastery.Absent(mastery.Key{OutcomeID: oid})
		}
		if v := e.overdueValue(spacedrep.Classify(e.due, rec, now)); v > s.Overdue {
			s.Overdue = v
		}
		scoreSum += rec.Score
	}
	s.Mastery = 1 - scoreSum/float64(len(l.TargetOutcomeIDs))

	if maxOrder == minOrder {
		s.Order = 1
	} else {
		s.Order = float64(maxOrder-l.CurriculumOrder) / float64(maxOrder-minOrder)
	}

	if l.EstimatedMinutes <= e.cfg.ShortWinMinutes {
		s.ShortWin = e.cfg.ShortWinBonus
	}
	return s
}

func (e *Engine) overdueValue(state spacedrep.DueState) float64 {
	switch state {
	case spacedrep.Critical:
		return e.cfg.CriticalValue
	case spacedrep.Due:
		return e.cfg.DueValue
	default:
		return 0
	}
}

// baseScore is the normalized weighted sum plus the short-win bonus.
// A component whose preference flag is off contributes nothing.
func (e *Engine) baseScore(s Signals, c Constraints) float64 {
	w := e.cfg.Weights
	sum := w.Order * s.Order
	if c.PreferOverdue {
		sum += w.Overdue * s.Overdue
	}
	if c.PreferLowMastery {
		sum += w.Mastery * s.Mastery
	}
	return sum/w.total() + s.ShortWin
}

// reasons lists the applicable reasons in precedence order.
func (e *Engine) reasons(s Signals, c Constraints, early bool) []Reason {
	var out []Reason
	if c.PreferOverdue && s.Overdue > 0 {
		out = append(out, ReasonOverdue)
	}
	if c.PreferLowMastery && s.Mastery > e.cfg.LowMasteryThreshold {
		out = append(out, ReasonLowMastery)
	}
	if early {
		out = append(out, ReasonEarlyOrder)
	}
	if s.ShortWin > 0 {
		out = append(out, ReasonShortWin)
	}
	return out
}

// Rubric describes the engaged signals and penalties,
// e.g. "Overdue>LowMastery>Order | -Recent -TooLong".
func Rubric(c Constraints) string {
	var signals []string
	if c.PreferOverdue {
		signals = append(signals, "Overdue")
	}
	if c.PreferLowMastery {
		signals = append(signals, "LowMastery")
	}
	signals = append(signals, "Order")

	var penalties []string
	if c.AvoidRepeatWithinDays > 0 {
		penalties = append(penalties, "-Recent")
	}
	penalties = append(penalties, "-TooLong")

	return strings.Join(signals, ">") + " | " + strings.Join(penalties, " ")
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
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
