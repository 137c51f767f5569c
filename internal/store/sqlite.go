package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"entgo.io/ent/dialect"
	entsql "entgo.io/ent/dialect/sql"
	"entgo.io/ent/dialect/sql/sqlgraph"

	"github.com/abhisek/nextlesson/internal/apperr"
	"github.com/abhisek/nextlesson/internal/mastery"
)

const masteryTable = "mastery"

var masteryColumns = []string{
	"learner_id", "course_id", "outcome_id",
	"score", "observation_count", "last_updated_at", "version",
}

// masteryRepo implements MasteryRepo on SQLite.
type masteryRepo struct {
	drv *entsql.Driver
}

func builder() *entsql.DialectBuilder {
	return entsql.Dialect(dialect.SQLite)
}

func keyPredicate(key mastery.Key) *entsql.Predicate {
	return entsql.And(
		entsql.EQ("learner_id", key.LearnerID),
		entsql.EQ("course_id", key.CourseID),
		entsql.EQ("outcome_id", key.OutcomeID),
	)
}

func (r *masteryRepo) GetMastery(ctx context.Context, key mastery.Key) (Versioned, error) {
	q, args := builder().Select(masteryColumns...).
		From(entsql.Table(masteryTable)).
		Where(keyPredicate(key)).
		Query()

	out, err := r.query(ctx, q, args)
	if err != nil {
		return Versioned{}, fmt.Errorf("get mastery %s: %w", key, err)
	}
	if len(out) == 0 {
		return Versioned{Record: mastery.Absent(key)}, nil
	}
	return out[0], nil
}

func (r *masteryRepo) ListMastery(ctx context.Context, learnerID, courseID string) ([]Versioned, error) {
	q, args := builder().Select(masteryColumns...).
		From(entsql.Table(masteryTable)).
		Where(entsql.And(
			entsql.EQ("learner_id", learnerID),
			entsql.EQ("course_id", courseID),
		)).
		OrderBy("outcome_id").
		Query()

	out, err := r.query(ctx, q, args)
	if err != nil {
		return nil, fmt.Errorf("list mastery: %w", err)
	}
	return out, nil
}

// SaveMastery runs every write in one transaction and rolls all of them
// back on the first moved version.
func (r *masteryRepo) SaveMastery(ctx context.Context, writes ...Write) error {
	tx, err := r.drv.Tx(ctx)
	if err != nil {
		return fmt.Errorf("begin mastery tx: %w", err)
	}
	for _, w := range writes {
		if err := saveOne(ctx, tx, w); err != nil {
			_ = tx.Rollback()
			return err
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit mastery tx: %w", err)
	}
	return nil
}

func saveOne(ctx context.Context, eq dialect.ExecQuerier, w Write) error {
	rec := w.Record
	conflict := &apperr.ConflictError{Key: rec.Key.String(), Expected: w.Expected}

	if w.Expected == 0 {
		q, args := builder().Insert(masteryTable).
			Columns(masteryColumns...).
			Values(rec.LearnerID, rec.CourseID, rec.OutcomeID,
				rec.Score, rec.ObservationCount, rec.LastUpdatedAt.UnixNano(), w.Next()).
			Query()
		var res sql.Result
		if err := eq.Exec(ctx, q, args, &res); err != nil {
			if sqlgraph.IsUniqueConstraintError(err) {
				return conflict
			}
			return fmt.Errorf("insert mastery %s: %w", rec.Key, err)
		}
		return nil
	}

	q, args := builder().Update(masteryTable).
		Set("score", rec.Score).
		Set("observation_count", rec.ObservationCount).
		Set("last_updated_at", rec.LastUpdatedAt.UnixNano()).
		Set("version", w.Next()).
		Where(entsql.And(keyPredicate(rec.Key), entsql.EQ("version", w.Expected))).
		Query()
	var res sql.Result
	if err := eq.Exec(ctx, q, args, &res); err != nil {
		return fmt.Errorf("update mastery %s: %w", rec.Key, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update mastery %s: %w", rec.Key, err)
	}
	if n == 0 {
		return conflict
	}
	return nil
}

func (r *masteryRepo) query(ctx context.Context, q string, args []any) ([]Versioned, error) {
	rows := &entsql.Rows{}
	if err := r.drv.Query(ctx, q, args, rows); err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Versioned
	for rows.Next() {
		var (
			v       Versioned
			updated int64
		)
		if err := rows.Scan(&v.LearnerID, &v.CourseID, &v.OutcomeID,
			&v.Score, &v.ObservationCount, &updated, &v.Version); err != nil {
			return nil, err
		}
		v.LastUpdatedAt = time.Unix(0, updated).UTC()
		out = append(out, v)
	}
	return out, rows.Err()
}

// historyRepo implements HistoryRepo on SQLite.
type historyRepo struct {
	drv *entsql.Driver
}

func (r *historyRepo) RecordLesson(ctx context.Context, learnerID, courseID, lessonID string, at time.Time) error {
	const q = `INSERT INTO lesson_history (learner_id, course_id, lesson_id, taught_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (learner_id, course_id, lesson_id)
		DO UPDATE SET taught_at = MAX(taught_at, excluded.taught_at)`

	var res sql.Result
	if err := r.drv.Exec(ctx, q, []any{learnerID, courseID, lessonID, at.UnixNano()}, &res); err != nil {
		return fmt.Errorf("record lesson %s: %w", lessonID, err)
	}
	return nil
}

func (r *historyRepo) LessonTimes(ctx context.Context, learnerID, courseID string) (map[string]time.Time, error) {
	q, args := builder().Select("lesson_id", "taught_at").
		From(entsql.Table("lesson_history")).
		Where(entsql.And(
			entsql.EQ("learner_id", learnerID),
			entsql.EQ("course_id", courseID),
		)).
		Query()

	rows := &entsql.Rows{}
	if err := r.drv.Query(ctx, q, args, rows); err != nil {
		return nil, fmt.Errorf("lesson times: %w", err)
	}
	defer rows.Close()

	out := make(map[string]time.Time)
	for rows.Next() {
		var (
			id string
			at int64
		)
		if err := rows.Scan(&id, &at); err != nil {
			return nil, fmt.Errorf("scan lesson time: %w", err)
		}
		out[id] = time.Unix(0, at).UTC()
	}
	return out, rows.Err()
}
