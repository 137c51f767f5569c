package service

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/abhisek/nextlesson/internal/apperr"
	"github.com/abhisek/nextlesson/internal/curriculum"
	"github.com/abhisek/nextlesson/internal/mastery"
	"github.com/abhisek/nextlesson/internal/recommend"
	"github.com/abhisek/nextlesson/internal/spacedrep"
	"github.com/abhisek/nextlesson/internal/store"
)

var now = time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)

func testCourse(t *testing.T) *curriculum.Course {
	t.Helper()
	c, err := curriculum.NewCourse("algebra", "Algebra", []curriculum.Outcome{
		{ID: "vars", Title: "Variables", CurriculumOrder: 1, EstimatedMinutes: 10},
		{ID: "eqns", Title: "Equations", CurriculumOrder: 2, EstimatedMinutes: 15},
		{ID: "graphs", Title: "Graphs", CurriculumOrder: 3, EstimatedMinutes: 20},
	}, []curriculum.Lesson{
		{ID: "intro", Title: "Intro", TargetOutcomeIDs: []string{"vars"}, EstimatedMinutes: 20, CurriculumOrder: 1},
		{ID: "solve", Title: "Solving", TargetOutcomeIDs: []string{"vars", "eqns"}, EstimatedMinutes: 25, CurriculumOrder: 2},
		{ID: "plot", Title: "Plotting", TargetOutcomeIDs: []string{"graphs"}, EstimatedMinutes: 20, CurriculumOrder: 3},
	})
	require.NoError(t, err)
	return c
}

type fixture struct {
	svc   *Service
	mem   *store.Memory
	clock *time.Time
}

func newFixture(t *testing.T, cfg Config) *fixture {
	t.Helper()
	mem := store.NewMemory()
	clock := now
	f := &fixture{mem: mem, clock: &clock}
	f.svc = New(Deps{
		Catalog:   curriculum.NewStaticCatalog(testCourse(t)),
		Mastery:   mem,
		History:   mem,
		Clock:     func() time.Time { return *f.clock },
		Config:    cfg,
		Update:    mastery.DefaultConfig(),
		Due:       spacedrep.DefaultConfig(),
		Recommend: recommend.DefaultConfig(),
	})
	return f
}

func completion(lesson string, scores map[string]float64) mastery.CompletionEvent {
	return mastery.CompletionEvent{
		LearnerID: "ada",
		CourseID:  "algebra",
		LessonID:  lesson,
		Scores:    scores,
	}
}

func TestRecordCompletion_UpdatesEachOutcome(t *testing.T) {
	f := newFixture(t, DefaultConfig())
	ctx := context.Background()

	res, err := f.svc.RecordCompletion(ctx, completion("solve", map[string]float64{"vars": 0.8, "eqns": 0.4}))
	require.NoError(t, err)
	assert.NotEmpty(t, res.EventID, "event ID is assigned")
	require.Len(t, res.Records, 2)

	v, err := f.mem.GetMastery(ctx, mastery.Key{LearnerID: "ada", CourseID: "algebra", OutcomeID: "eqns"})
	require.NoError(t, err)
	assert.Equal(t, 1, v.ObservationCount)
	assert.InDelta(t, 0.4, v.Score, 1e-12)
	assert.True(t, v.LastUpdatedAt.Equal(now))

	// Warm-up blend on the second observation.
	_, err = f.svc.RecordCompletion(ctx, completion("intro", map[string]float64{"vars": 0.6}))
	require.NoError(t, err)
	v, err = f.mem.GetMastery(ctx, mastery.Key{LearnerID: "ada", CourseID: "algebra", OutcomeID: "vars"})
	require.NoError(t, err)
	assert.Equal(t, 2, v.ObservationCount)
	assert.InDelta(t, 0.7, v.Score, 1e-12)

	// Untouched outcomes stay absent.
	v, err = f.mem.GetMastery(ctx, mastery.Key{LearnerID: "ada", CourseID: "algebra", OutcomeID: "graphs"})
	require.NoError(t, err)
	assert.False(t, v.Exists())
}

func TestRecordCompletion_KeepsGivenIDAndTime(t *testing.T) {
	f := newFixture(t, DefaultConfig())
	ev := completion("intro", map[string]float64{"vars": 1})
	ev.ID = "evt-1"
	ev.CompletedAt = now.Add(-3 * time.Hour)

	res, err := f.svc.RecordCompletion(context.Background(), ev)
	require.NoError(t, err)
	assert.Equal(t, "evt-1", res.EventID)
	assert.True(t, res.Records[0].LastUpdatedAt.Equal(ev.CompletedAt))

	times, err := f.mem.LessonTimes(context.Background(), "ada", "algebra")
	require.NoError(t, err)
	assert.True(t, times["intro"].Equal(ev.CompletedAt))
}

func TestRecordCompletion_Rejects(t *testing.T) {
	f := newFixture(t, DefaultConfig())
	ctx := context.Background()

	tests := []struct {
		name  string
		ev    mastery.CompletionEvent
		check func(error) bool
	}{
		{"score out of range", completion("intro", map[string]float64{"vars": 1.2}), apperr.IsValidation},
		{"unknown lesson", completion("nope", map[string]float64{"vars": 0.5}), apperr.IsValidation},
		{"outcome outside course", completion("intro", map[string]float64{"calculus": 0.5}), apperr.IsValidation},
		{"outcome not taught by lesson", completion("intro", map[string]float64{"graphs": 0.9}), apperr.IsValidation},
		{"one untaught outcome among taught ones", completion("intro", map[string]float64{"vars": 0.5, "eqns": 0.5}), apperr.IsValidation},
		{"unknown course", mastery.CompletionEvent{LearnerID: "ada", CourseID: "history", LessonID: "x", Scores: map[string]float64{"a": 1}}, apperr.IsNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.RecordCompletion(ctx, tt.ev)
			require.Error(t, err)
			assert.True(t, tt.check(err), "err = %v", err)
		})
	}

	// A rejected event leaves nothing behind.
	list, err := f.mem.ListMastery(ctx, "ada", "algebra")
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestRecordCompletion_ConcurrentObservationsAreNotLost(t *testing.T) {
	f := newFixture(t, Config{MaxRetries: 1000})
	ctx := context.Background()

	const n = 20
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			ev := completion("intro", map[string]float64{"vars": float64(i%5) / 4})
			ev.ID = fmt.Sprintf("evt-%d", i)
			_, err := f.svc.RecordCompletion(ctx, ev)
			errs <- err
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	v, err := f.mem.GetMastery(ctx, mastery.Key{LearnerID: "ada", CourseID: "algebra", OutcomeID: "vars"})
	require.NoError(t, err)
	assert.Equal(t, n, v.ObservationCount)
	assert.Equal(t, int64(n), v.Version)
	assert.GreaterOrEqual(t, v.Score, 0.0)
	assert.LessOrEqual(t, v.Score, 1.0)
}

// conflictingRepo loses every save.
type conflictingRepo struct {
	store.MasteryRepo
	saves atomic.Int32
}

func (r *conflictingRepo) SaveMastery(_ context.Context, writes ...store.Write) error {
	r.saves.Add(1)
	w := writes[0]
	return &apperr.ConflictError{Key: w.Record.Key.String(), Expected: w.Expected}
}

// blockedKeyRepo rejects any batch touching a blocked outcome while
// blocked is set, and passes everything else to the wrapped repo.
type blockedKeyRepo struct {
	store.MasteryRepo
	outcome string
	blocked atomic.Bool
}

func (r *blockedKeyRepo) SaveMastery(ctx context.Context, writes ...store.Write) error {
	if r.blocked.Load() {
		for _, w := range writes {
			if w.Record.OutcomeID == r.outcome {
				return &apperr.ConflictError{Key: w.Record.Key.String(), Expected: w.Expected}
			}
		}
	}
	return r.MasteryRepo.SaveMastery(ctx, writes...)
}

func TestRecordCompletion_ConflictOnOneOutcomeCommitsNothing(t *testing.T) {
	mem := store.NewMemory()
	repo := &blockedKeyRepo{MasteryRepo: mem, outcome: "eqns"}
	repo.blocked.Store(true)
	svc := New(Deps{
		Catalog:   curriculum.NewStaticCatalog(testCourse(t)),
		Mastery:   repo,
		History:   mem,
		Clock:     func() time.Time { return now },
		Config:    Config{MaxRetries: 2},
		Update:    mastery.DefaultConfig(),
		Due:       spacedrep.DefaultConfig(),
		Recommend: recommend.DefaultConfig(),
	})
	ctx := context.Background()
	ev := completion("solve", map[string]float64{"vars": 0.5, "eqns": 0.5})
	ev.ID = "evt-solve"

	_, err := svc.RecordCompletion(ctx, ev)
	require.Error(t, err)
	assert.True(t, apperr.IsConflict(err), "err = %v", err)

	list, err := mem.ListMastery(ctx, "ada", "algebra")
	require.NoError(t, err)
	assert.Empty(t, list, "no outcome may keep a partial update")
	times, err := mem.LessonTimes(ctx, "ada", "algebra")
	require.NoError(t, err)
	assert.Empty(t, times)

	// The caller resends once the contention clears.
	repo.blocked.Store(false)
	_, err = svc.RecordCompletion(ctx, ev)
	require.NoError(t, err)

	list, err = mem.ListMastery(ctx, "ada", "algebra")
	require.NoError(t, err)
	require.Len(t, list, 2)
	for _, v := range list {
		assert.Equal(t, 1, v.ObservationCount, "%s counted once", v.OutcomeID)
	}
}

func TestRecordCompletion_LateReportKeepsLatestTimestamp(t *testing.T) {
	f := newFixture(t, DefaultConfig())
	ctx := context.Background()

	_, err := f.svc.RecordCompletion(ctx, completion("intro", map[string]float64{"vars": 0.8}))
	require.NoError(t, err)

	late := completion("intro", map[string]float64{"vars": 0.8})
	late.CompletedAt = now.AddDate(0, 0, -60)
	_, err = f.svc.RecordCompletion(ctx, late)
	require.NoError(t, err)

	v, err := f.mem.GetMastery(ctx, mastery.Key{LearnerID: "ada", CourseID: "algebra", OutcomeID: "vars"})
	require.NoError(t, err)
	assert.Equal(t, 2, v.ObservationCount)
	assert.True(t, v.LastUpdatedAt.Equal(now), "last updated = %v", v.LastUpdatedAt)

	sum, err := f.svc.DueSummary(ctx, "algebra", "ada")
	require.NoError(t, err)
	assert.NotContains(t, sum.OutcomeIDs(), "vars")
	assert.Equal(t, 0, sum.CriticalCount())
}

func TestRecordCompletion_RetriesExhausted(t *testing.T) {
	mem := store.NewMemory()
	repo := &conflictingRepo{MasteryRepo: mem}
	svc := New(Deps{
		Catalog:   curriculum.NewStaticCatalog(testCourse(t)),
		Mastery:   repo,
		History:   mem,
		Clock:     func() time.Time { return now },
		Config:    Config{MaxRetries: 3},
		Update:    mastery.DefaultConfig(),
		Due:       spacedrep.DefaultConfig(),
		Recommend: recommend.DefaultConfig(),
	})

	_, err := svc.RecordCompletion(context.Background(), completion("intro", map[string]float64{"vars": 0.5}))
	require.Error(t, err)
	assert.True(t, apperr.IsConflict(err))
	assert.Equal(t, int32(3), repo.saves.Load())
}

func TestRecommend_UsesStoredMasteryAndHistory(t *testing.T) {
	f := newFixture(t, DefaultConfig())
	ctx := context.Background()

	// Learner did well on intro yesterday; nothing else attempted.
	*f.clock = now.Add(-24 * time.Hour)
	_, err := f.svc.RecordCompletion(ctx, completion("intro", map[string]float64{"vars": 0.95}))
	require.NoError(t, err)
	*f.clock = now

	rec, err := f.svc.Recommend(ctx, RecommendRequest{
		CourseID:    "algebra",
		LearnerID:   "ada",
		Constraints: recommend.DefaultConstraints(),
	})
	require.NoError(t, err)
	assert.Equal(t, "ada", rec.LearnerID)
	require.Len(t, rec.Candidates, 3)

	last := rec.Candidates[len(rec.Candidates)-1]
	assert.Equal(t, "intro", last.LessonID)
	assert.True(t, last.HasFlag(recommend.FlagRecentlyTaught))
	assert.NotEqual(t, "intro", rec.Candidates[0].LessonID)
}

func TestRecommend_NewLearnerStillServed(t *testing.T) {
	f := newFixture(t, DefaultConfig())
	rec, err := f.svc.Recommend(context.Background(), RecommendRequest{
		CourseID:    "algebra",
		LearnerID:   "newcomer",
		Constraints: recommend.DefaultConstraints(),
	})
	require.NoError(t, err)
	require.NotEmpty(t, rec.Candidates)
	assert.Equal(t, "intro", rec.Candidates[0].LessonID)
}

func TestRecommend_Errors(t *testing.T) {
	f := newFixture(t, DefaultConfig())
	ctx := context.Background()

	_, err := f.svc.Recommend(ctx, RecommendRequest{CourseID: "missing", LearnerID: "ada", Constraints: recommend.DefaultConstraints()})
	assert.True(t, apperr.IsNotFound(err), "err = %v", err)

	bad := recommend.DefaultConstraints()
	bad.MaxBlockMinutes = 121
	_, err = f.svc.Recommend(ctx, RecommendRequest{CourseID: "algebra", LearnerID: "ada", Constraints: bad})
	assert.True(t, apperr.IsValidation(err), "err = %v", err)

	_, err = f.svc.Recommend(ctx, RecommendRequest{CourseID: "algebra", Constraints: recommend.DefaultConstraints()})
	assert.True(t, apperr.IsValidation(err), "err = %v", err)
}

func TestDueSummary(t *testing.T) {
	f := newFixture(t, DefaultConfig())
	ctx := context.Background()

	*f.clock = now.Add(-30 * 24 * time.Hour)
	_, err := f.svc.RecordCompletion(ctx, completion("intro", map[string]float64{"vars": 0.2}))
	require.NoError(t, err)
	*f.clock = now

	sum, err := f.svc.DueSummary(ctx, "algebra", "ada")
	require.NoError(t, err)
	assert.Equal(t, 3, sum.Count())
	assert.Equal(t, 1, sum.CriticalCount())
	assert.Equal(t, "vars", sum.Items[0].OutcomeID)
	assert.Equal(t, spacedrep.Critical, sum.Items[0].State)
}

func TestRecentlyTaught(t *testing.T) {
	got := RecentlyTaught(map[string]time.Time{
		"a": now.Add(-36 * time.Hour),
		"b": now.Add(-23 * time.Hour),
		"c": now.Add(2 * time.Hour),
		"d": now.Add(-7 * 24 * time.Hour),
	}, now)
	assert.Equal(t, map[string]int{"a": 1, "b": 0, "c": 0, "d": 7}, got)
}

func TestConfigValidate(t *testing.T) {
	assert.NoError(t, DefaultConfig().Validate())
	assert.Error(t, Config{MaxRetries: 0}.Validate())
}
