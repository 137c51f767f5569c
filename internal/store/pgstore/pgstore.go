// Package pgstore implements store.Backend on PostgreSQL.
package pgstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/abhisek/nextlesson/internal/apperr"
	"github.com/abhisek/nextlesson/internal/mastery"
	"github.com/abhisek/nextlesson/internal/store"
)

type PoolConfig struct {
	MaxConns        int32
	MaxConnLifetime time.Duration
}

// DefaultPoolConfig is used when the caller has no pool tuning.
func DefaultPoolConfig() PoolConfig {
	return PoolConfig{MaxConns: 10, MaxConnLifetime: time.Hour}
}

func NewPool(ctx context.Context, dsn string, cfg PoolConfig) (*pgxpool.Pool, error) {
	poolConfig, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	poolConfig.MaxConns = cfg.MaxConns
	poolConfig.MaxConnLifetime = cfg.MaxConnLifetime

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("new pool: %w", err)
	}

	return pool, nil
}

// Store is the PostgreSQL Backend.
type Store struct {
	pool *pgxpool.Pool
}

// Open connects to dsn, verifies the connection and creates missing tables.
func Open(ctx context.Context, dsn string, cfg PoolConfig) (*Store, error) {
	pool, err := NewPool(ctx, dsn, cfg)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}
	s := &Store{pool: pool}
	if err := s.migrate(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *Store) MasteryRepo() store.MasteryRepo {
	r := NewMasteryRepository(s.pool)
	r.tr = NewTransactor(s.pool)
	return r
}

func (s *Store) HistoryRepo() store.HistoryRepo { return NewHistoryRepository(s.pool) }

func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

func (s *Store) migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS mastery (
			learner_id TEXT NOT NULL,
			course_id TEXT NOT NULL,
			outcome_id TEXT NOT NULL,
			score DOUBLE PRECISION NOT NULL,
			observation_count INTEGER NOT NULL,
			last_updated_at TIMESTAMPTZ NOT NULL,
			version BIGINT NOT NULL,
			PRIMARY KEY (learner_id, course_id, outcome_id)
		);
		CREATE TABLE IF NOT EXISTS lesson_history (
			learner_id TEXT NOT NULL,
			course_id TEXT NOT NULL,
			lesson_id TEXT NOT NULL,
			taught_at TIMESTAMPTZ NOT NULL,
			PRIMARY KEY (learner_id, course_id, lesson_id)
		)`)
	return err
}

// DBTX is satisfied by *pgxpool.Pool and pgx.Tx.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type Transactor struct {
	pool *pgxpool.Pool
}

func NewTransactor(pool *pgxpool.Pool) *Transactor {
	return &Transactor{pool: pool}
}

func (t *Transactor) WithinTx(ctx context.Context, fn func(ctx context.Context, tx pgx.Tx) error) error {
	tx, err := t.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := fn(ctx, tx); err != nil {
		return err
	}

	return tx.Commit(ctx)
}

// MasteryRepository reads through db. Saves need a Transactor; a repository
// built on a pgx.Tx without one writes straight into that transaction.
type MasteryRepository struct {
	db DBTX
	tr *Transactor
}

func NewMasteryRepository(db DBTX) *MasteryRepository {
	return &MasteryRepository{db: db}
}

// GetMastery retrieves a single record. A missing row is an absent record
// at version 0.
func (r *MasteryRepository) GetMastery(ctx context.Context, key mastery.Key) (store.Versioned, error) {
	query := `
		SELECT score, observation_count, last_updated_at, version
		FROM mastery
		WHERE learner_id = $1 AND course_id = $2 AND outcome_id = $3
	`

	v := store.Versioned{Record: mastery.Absent(key)}
	err := r.db.QueryRow(
		ctx, query, key.LearnerID, key.CourseID, key.OutcomeID,
	).Scan(
		&v.Score,
		&v.ObservationCount,
		&v.LastUpdatedAt,
		&v.Version,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return store.Versioned{Record: mastery.Absent(key)}, nil
		}

		return store.Versioned{}, fmt.Errorf("get mastery: %w", err)
	}

	return v, nil
}

func (r *MasteryRepository) ListMastery(ctx context.Context, learnerID, courseID string) ([]store.Versioned, error) {
	query := `
		SELECT outcome_id, score, observation_count, last_updated_at, version
		FROM mastery
		WHERE learner_id = $1 AND course_id = $2
		ORDER BY outcome_id
	`

	rows, err := r.db.Query(ctx, query, learnerID, courseID)
	if err != nil {
		return nil, fmt.Errorf("list mastery: %w", err)
	}
	defer rows.Close()

	var out []store.Versioned
	for rows.Next() {
		v := store.Versioned{Record: mastery.Absent(mastery.Key{LearnerID: learnerID, CourseID: courseID})}
		if err := rows.Scan(&v.OutcomeID, &v.Score, &v.ObservationCount, &v.LastUpdatedAt, &v.Version); err != nil {
			return nil, fmt.Errorf("scan mastery: %w", err)
		}
		out = append(out, v)
	}

	return out, rows.Err()
}

// SaveMastery writes every record in one transaction. A conflicting key
// aborts the transaction, so no sibling write survives.
func (r *MasteryRepository) SaveMastery(ctx context.Context, writes ...store.Write) error {
	if r.tr == nil {
		return r.saveAll(ctx, writes)
	}
	return r.tr.WithinTx(ctx, func(ctx context.Context, tx pgx.Tx) error {
		return NewMasteryRepository(tx).saveAll(ctx, writes)
	})
}

func (r *MasteryRepository) saveAll(ctx context.Context, writes []store.Write) error {
	for _, w := range writes {
		if err := r.save(ctx, w); err != nil {
			return err
		}
	}
	return nil
}

// save inserts a first version or updates a row whose version still
// matches. Zero affected rows means another writer got there first.
func (r *MasteryRepository) save(ctx context.Context, w store.Write) error {
	rec := w.Record

	var (
		tag pgconn.CommandTag
		err error
	)
	if w.Expected == 0 {
		tag, err = r.db.Exec(ctx, `
			INSERT INTO mastery (learner_id, course_id, outcome_id, score, observation_count, last_updated_at, version)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
			ON CONFLICT (learner_id, course_id, outcome_id) DO NOTHING
		`, rec.LearnerID, rec.CourseID, rec.OutcomeID, rec.Score, rec.ObservationCount, rec.LastUpdatedAt, w.Next())
	} else {
		tag, err = r.db.Exec(ctx, `
			UPDATE mastery
			SET score = $4, observation_count = $5, last_updated_at = $6, version = $7
			WHERE learner_id = $1 AND course_id = $2 AND outcome_id = $3 AND version = $8
		`, rec.LearnerID, rec.CourseID, rec.OutcomeID, rec.Score, rec.ObservationCount, rec.LastUpdatedAt, w.Next(), w.Expected)
	}
	if err != nil {
		return fmt.Errorf("save mastery %s: %w", rec.Key, err)
	}
	if tag.RowsAffected() == 0 {
		return &apperr.ConflictError{Key: rec.Key.String(), Expected: w.Expected}
	}

	return nil
}

type HistoryRepository struct {
	db DBTX
}

func NewHistoryRepository(db DBTX) *HistoryRepository {
	return &HistoryRepository{db: db}
}

// RecordLesson upserts the last-taught time, never moving it backwards.
func (r *HistoryRepository) RecordLesson(ctx context.Context, learnerID, courseID, lessonID string, at time.Time) error {
	query := `
		INSERT INTO lesson_history (learner_id, course_id, lesson_id, taught_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (learner_id, course_id, lesson_id)
		DO UPDATE SET taught_at = GREATEST(lesson_history.taught_at, excluded.taught_at)
	`

	if _, err := r.db.Exec(ctx, query, learnerID, courseID, lessonID, at); err != nil {
		return fmt.Errorf("record lesson: %w", err)
	}

	return nil
}

func (r *HistoryRepository) LessonTimes(ctx context.Context, learnerID, courseID string) (map[string]time.Time, error) {
	query := `
		SELECT lesson_id, taught_at
		FROM lesson_history
		WHERE learner_id = $1 AND course_id = $2
	`

	rows, err := r.db.Query(ctx, query, learnerID, courseID)
	if err != nil {
		return nil, fmt.Errorf("lesson times: %w", err)
	}
	defer rows.Close()

	out := make(map[string]time.Time)
	for rows.Next() {
		var (
			id string
			at time.Time
		)
		if err := rows.Scan(&id, &at); err != nil {
			return nil, fmt.Errorf("scan lesson time: %w", err)
		}
		out[id] = at
	}

	return out, rows.Err()
}
