// Package redisstore implements store.Backend on Redis. Versioned writes use
// WATCH/MULTI so a concurrent writer aborts the transaction.
package redisstore

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/abhisek/nextlesson/internal/apperr"
	"github.com/abhisek/nextlesson/internal/mastery"
	"github.com/abhisek/nextlesson/internal/store"
)

const (
	defaultPrefix = "nextlesson"

	fieldScore   = "score"
	fieldCount   = "count"
	fieldUpdated = "updated"
	fieldVersion = "version"

	// historyAttempts bounds retries of the last-taught max update.
	historyAttempts = 10
)

type Store struct {
	rdb    *goredis.Client
	prefix string
}

// Open connects to addr and pings it.
func Open(ctx context.Context, addr string) (*Store, error) {
	if addr == "" {
		return nil, fmt.Errorf("missing redis address")
	}
	rdb := goredis.NewClient(&goredis.Options{
		Addr:        addr,
		DialTimeout: 5 * time.Second,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return New(rdb), nil
}

// New wraps an existing client.
func New(rdb *goredis.Client) *Store {
	return &Store{rdb: rdb, prefix: defaultPrefix}
}

func (s *Store) MasteryRepo() store.MasteryRepo { return s.masteryRepo() }
func (s *Store) HistoryRepo() store.HistoryRepo { return &historyRepo{s: s} }

func (s *Store) masteryRepo() *masteryRepo { return &masteryRepo{s: s} }

func (s *Store) Close() error {
	if s == nil || s.rdb == nil {
		return nil
	}
	return s.rdb.Close()
}

func (s *Store) masteryKey(k mastery.Key) string {
	return fmt.Sprintf("%s:mastery:%s:%s:%s", s.prefix, k.LearnerID, k.CourseID, k.OutcomeID)
}

func (s *Store) indexKey(learnerID, courseID string) string {
	return fmt.Sprintf("%s:mastery-index:%s:%s", s.prefix, learnerID, courseID)
}

func (s *Store) historyKey(learnerID, courseID string) string {
	return fmt.Sprintf("%s:history:%s:%s", s.prefix, learnerID, courseID)
}

type masteryRepo struct {
	s *Store
}

func (r *masteryRepo) GetMastery(ctx context.Context, key mastery.Key) (store.Versioned, error) {
	fields, err := r.s.rdb.HGetAll(ctx, r.s.masteryKey(key)).Result()
	if err != nil {
		return store.Versioned{}, fmt.Errorf("get mastery %s: %w", key, err)
	}
	return decode(key, fields)
}

func (r *masteryRepo) ListMastery(ctx context.Context, learnerID, courseID string) ([]store.Versioned, error) {
	outcomes, err := r.s.rdb.SMembers(ctx, r.s.indexKey(learnerID, courseID)).Result()
	if err != nil {
		return nil, fmt.Errorf("list mastery index: %w", err)
	}
	if len(outcomes) == 0 {
		return nil, nil
	}
	sort.Strings(outcomes)

	cmds := make([]*goredis.MapStringStringCmd, len(outcomes))
	_, err = r.s.rdb.Pipelined(ctx, func(pipe goredis.Pipeliner) error {
		for i, oid := range outcomes {
			cmds[i] = pipe.HGetAll(ctx, r.s.masteryKey(mastery.Key{LearnerID: learnerID, CourseID: courseID, OutcomeID: oid}))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list mastery: %w", err)
	}

	out := make([]store.Versioned, 0, len(outcomes))
	for i, oid := range outcomes {
		v, err := decode(mastery.Key{LearnerID: learnerID, CourseID: courseID, OutcomeID: oid}, cmds[i].Val())
		if err != nil {
			return nil, err
		}
		if v.Version > 0 {
			out = append(out, v)
		}
	}
	return out, nil
}

// SaveMastery watches every key, checks each version and writes all hashes
// in one MULTI/EXEC. A concurrent write to any watched key aborts the whole
// transaction.
func (r *masteryRepo) SaveMastery(ctx context.Context, writes ...store.Write) error {
	if len(writes) == 0 {
		return nil
	}
	keys := make([]string, len(writes))
	for i, w := range writes {
		keys[i] = r.s.masteryKey(w.Record.Key)
	}

	var conflict *apperr.ConflictError
	err := r.s.rdb.Watch(ctx, func(tx *goredis.Tx) error {
		for i, w := range writes {
			current, err := storedVersion(ctx, tx, keys[i])
			if err != nil {
				return err
			}
			if current != w.Expected {
				conflict = &apperr.ConflictError{Key: w.Record.Key.String(), Expected: w.Expected}
				return conflict
			}
		}

		_, err := tx.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
			for i, w := range writes {
				rec := w.Record
				pipe.HSet(ctx, keys[i],
					fieldScore, strconv.FormatFloat(rec.Score, 'g', -1, 64),
					fieldCount, rec.ObservationCount,
					fieldUpdated, rec.LastUpdatedAt.UnixNano(),
					fieldVersion, w.Next(),
				)
				pipe.SAdd(ctx, r.s.indexKey(rec.LearnerID, rec.CourseID), rec.OutcomeID)
			}
			return nil
		})
		return err
	}, keys...)

	switch {
	case err == nil:
		return nil
	case errors.Is(err, goredis.TxFailedErr):
		w := writes[0]
		return &apperr.ConflictError{Key: w.Record.Key.String(), Expected: w.Expected}
	case conflict != nil:
		return conflict
	default:
		return fmt.Errorf("save mastery: %w", err)
	}
}

func storedVersion(ctx context.Context, tx *goredis.Tx, key string) (int64, error) {
	raw, err := tx.HGet(ctx, key, fieldVersion).Result()
	switch {
	case errors.Is(err, goredis.Nil):
		return 0, nil
	case err != nil:
		return 0, err
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse version: %w", err)
	}
	return v, nil
}

func decode(key mastery.Key, fields map[string]string) (store.Versioned, error) {
	v := store.Versioned{Record: mastery.Absent(key)}
	if len(fields) == 0 {
		return v, nil
	}

	var err error
	if v.Score, err = strconv.ParseFloat(fields[fieldScore], 64); err != nil {
		return v, fmt.Errorf("decode %s score: %w", key, err)
	}
	if v.ObservationCount, err = strconv.Atoi(fields[fieldCount]); err != nil {
		return v, fmt.Errorf("decode %s count: %w", key, err)
	}
	updated, err := strconv.ParseInt(fields[fieldUpdated], 10, 64)
	if err != nil {
		return v, fmt.Errorf("decode %s updated: %w", key, err)
	}
	v.LastUpdatedAt = time.Unix(0, updated).UTC()
	if v.Version, err = strconv.ParseInt(fields[fieldVersion], 10, 64); err != nil {
		return v, fmt.Errorf("decode %s version: %w", key, err)
	}
	return v, nil
}

type historyRepo struct {
	s *Store
}

// RecordLesson keeps the later of the stored and given times. The hash is
// watched so two writers cannot move the time backwards.
func (r *historyRepo) RecordLesson(ctx context.Context, learnerID, courseID, lessonID string, at time.Time) error {
	key := r.s.historyKey(learnerID, courseID)
	ts := at.UnixNano()

	update := func(tx *goredis.Tx) error {
		raw, err := tx.HGet(ctx, key, lessonID).Result()
		if err != nil && !errors.Is(err, goredis.Nil) {
			return err
		}
		if err == nil {
			prev, perr := strconv.ParseInt(raw, 10, 64)
			if perr == nil && prev >= ts {
				return nil
			}
		}
		_, err = tx.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
			pipe.HSet(ctx, key, lessonID, ts)
			return nil
		})
		return err
	}

	for i := 0; i < historyAttempts; i++ {
		err := r.s.rdb.Watch(ctx, update, key)
		if errors.Is(err, goredis.TxFailedErr) {
			continue
		}
		if err != nil {
			return fmt.Errorf("record lesson %s: %w", lessonID, err)
		}
		return nil
	}
	return fmt.Errorf("record lesson %s: %w", lessonID, goredis.TxFailedErr)
}

func (r *historyRepo) LessonTimes(ctx context.Context, learnerID, courseID string) (map[string]time.Time, error) {
	fields, err := r.s.rdb.HGetAll(ctx, r.s.historyKey(learnerID, courseID)).Result()
	if err != nil {
		return nil, fmt.Errorf("lesson times: %w", err)
	}
	out := make(map[string]time.Time, len(fields))
	for id, raw := range fields {
		ns, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("decode lesson time %s: %w", id, err)
		}
		out[id] = time.Unix(0, ns).UTC()
	}
	return out, nil
}
