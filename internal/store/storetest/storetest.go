// Package storetest holds the behavioural checks every store.Backend must pass.
package storetest

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/abhisek/nextlesson/internal/apperr"
	"github.com/abhisek/nextlesson/internal/mastery"
	"github.com/abhisek/nextlesson/internal/store"
)

// Opener returns a fresh, empty backend for one subtest.
type Opener func(t *testing.T) store.Backend

var base = time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)

// Run exercises open against the shared backend contract.
func Run(t *testing.T, open Opener) {
	t.Run("GetAbsent", func(t *testing.T) { testGetAbsent(t, open(t)) })
	t.Run("SaveAndGet", func(t *testing.T) { testSaveAndGet(t, open(t)) })
	t.Run("Conflict", func(t *testing.T) { testConflict(t, open(t)) })
	t.Run("BatchAllOrNothing", func(t *testing.T) { testBatchAllOrNothing(t, open(t)) })
	t.Run("ListScoped", func(t *testing.T) { testListScoped(t, open(t)) })
	t.Run("HistoryKeepsLatest", func(t *testing.T) { testHistory(t, open(t)) })
}

func rec(learner, course, outcome string, score float64, count int, at time.Time) mastery.Record {
	return mastery.Record{
		Key:              mastery.Key{LearnerID: learner, CourseID: course, OutcomeID: outcome},
		Score:            score,
		ObservationCount: count,
		LastUpdatedAt:    at,
	}
}

func testGetAbsent(t *testing.T, b store.Backend) {
	key := mastery.Key{LearnerID: "l1", CourseID: "c1", OutcomeID: "o1"}
	got, err := b.MasteryRepo().GetMastery(context.Background(), key)
	require.NoError(t, err)
	assert.Equal(t, int64(0), got.Version)
	assert.False(t, got.Exists())
	assert.Equal(t, key, got.Key)
}

func testSaveAndGet(t *testing.T, b store.Backend) {
	ctx := context.Background()
	repo := b.MasteryRepo()

	r := rec("l1", "c1", "o1", 0.8, 1, base)
	require.NoError(t, repo.SaveMastery(ctx, store.Write{Record: r}))

	r.Score, r.ObservationCount, r.LastUpdatedAt = 0.7, 2, base.Add(time.Hour)
	require.NoError(t, repo.SaveMastery(ctx, store.Write{Record: r, Expected: 1}))

	got, err := repo.GetMastery(ctx, r.Key)
	require.NoError(t, err)
	assert.Equal(t, int64(2), got.Version)
	assert.InDelta(t, 0.7, got.Score, 1e-12)
	assert.Equal(t, 2, got.ObservationCount)
	assert.True(t, got.LastUpdatedAt.Equal(base.Add(time.Hour)), "last updated = %v", got.LastUpdatedAt)
}

func testConflict(t *testing.T, b store.Backend) {
	ctx := context.Background()
	repo := b.MasteryRepo()

	r := rec("l1", "c1", "o1", 0.5, 1, base)
	require.NoError(t, repo.SaveMastery(ctx, store.Write{Record: r}))

	// A second first-write loses.
	err := repo.SaveMastery(ctx, store.Write{Record: r})
	require.Error(t, err)
	assert.True(t, apperr.IsConflict(err), "err = %v", err)

	// A stale version loses.
	err = repo.SaveMastery(ctx, store.Write{Record: r, Expected: 7})
	assert.True(t, apperr.IsConflict(err), "err = %v", err)

	got, err := repo.GetMastery(ctx, r.Key)
	require.NoError(t, err)
	assert.Equal(t, int64(1), got.Version)
}

func testBatchAllOrNothing(t *testing.T, b store.Backend) {
	ctx := context.Background()
	repo := b.MasteryRepo()

	vars := rec("l1", "c1", "vars", 0.5, 1, base)
	eqns := rec("l1", "c1", "eqns", 0.5, 1, base)
	require.NoError(t, repo.SaveMastery(ctx, store.Write{Record: eqns}))

	// eqns is already at version 1, so the whole batch must be rejected.
	err := repo.SaveMastery(ctx,
		store.Write{Record: vars},
		store.Write{Record: eqns},
	)
	require.Error(t, err)
	var conflict *apperr.ConflictError
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, eqns.Key.String(), conflict.Key)

	got, err := repo.GetMastery(ctx, vars.Key)
	require.NoError(t, err)
	assert.False(t, got.Exists(), "sibling write must be rolled back")
	assert.Equal(t, int64(0), got.Version)

	// With correct versions both land together.
	eqns.ObservationCount = 2
	require.NoError(t, repo.SaveMastery(ctx,
		store.Write{Record: vars},
		store.Write{Record: eqns, Expected: 1},
	))
	list, err := repo.ListMastery(ctx, "l1", "c1")
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "eqns", list[0].OutcomeID)
	assert.Equal(t, int64(2), list[0].Version)
	assert.Equal(t, "vars", list[1].OutcomeID)
	assert.Equal(t, int64(1), list[1].Version)
}

func testListScoped(t *testing.T, b store.Backend) {
	ctx := context.Background()
	repo := b.MasteryRepo()

	for _, r := range []mastery.Record{
		rec("l1", "c1", "o2", 0.2, 1, base),
		rec("l1", "c1", "o1", 0.1, 1, base),
		rec("l1", "c2", "o1", 0.9, 1, base),
		rec("l2", "c1", "o1", 0.4, 1, base),
	} {
		require.NoError(t, repo.SaveMastery(ctx, store.Write{Record: r}))
	}

	list, err := repo.ListMastery(ctx, "l1", "c1")
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "o1", list[0].OutcomeID)
	assert.Equal(t, "o2", list[1].OutcomeID)
	for _, v := range list {
		assert.Equal(t, "l1", v.LearnerID)
		assert.Equal(t, "c1", v.CourseID)
		assert.Equal(t, int64(1), v.Version)
	}

	empty, err := repo.ListMastery(ctx, "nobody", "c1")
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func testHistory(t *testing.T, b store.Backend) {
	ctx := context.Background()
	repo := b.HistoryRepo()

	require.NoError(t, repo.RecordLesson(ctx, "l1", "c1", "lesson-a", base))
	require.NoError(t, repo.RecordLesson(ctx, "l1", "c1", "lesson-a", base.Add(-48*time.Hour)))
	require.NoError(t, repo.RecordLesson(ctx, "l1", "c1", "lesson-b", base.Add(time.Hour)))
	require.NoError(t, repo.RecordLesson(ctx, "l1", "c2", "lesson-c", base))

	times, err := repo.LessonTimes(ctx, "l1", "c1")
	require.NoError(t, err)
	require.Len(t, times, 2)
	assert.True(t, times["lesson-a"].Equal(base), "older write must not replace newer: %v", times["lesson-a"])
	assert.True(t, times["lesson-b"].Equal(base.Add(time.Hour)))

	none, err := repo.LessonTimes(ctx, "l9", "c1")
	require.NoError(t, err)
	assert.Empty(t, none)
}
