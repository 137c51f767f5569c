package store

import (
	"context"
	"time"

	"github.com/abhisek/nextlesson/internal/mastery"
)

// Versioned pairs a mastery record with its storage version.
// Version 0 means the key has never been written.
type Versioned struct {
	mastery.Record
	Version int64 `json:"version"`
}

// MasteryRepo persists mastery records with optimistic per-key versioning.
type MasteryRepo interface {
	// GetMastery returns the record for key, or an absent record at
	// version 0 if none exists.
	GetMastery(ctx context.Context, key mastery.Key) (Versioned, error)

	// ListMastery returns every record for the learner in the course,
	// sorted by outcome ID.
	ListMastery(ctx context.Context, learnerID, courseID string) ([]Versioned, error)

	// SaveMastery applies every write or none of them. Each stored version
	// must still equal its Expected; otherwise nothing is written and the
	// first moved key is reported as *apperr.ConflictError. A successful
	// write leaves the key at Expected+1. Keys must be distinct.
	SaveMastery(ctx context.Context, writes ...Write) error
}

// Write is one version-checked mastery save.
type Write struct {
	Record   mastery.Record
	Expected int64
}

// Next is the version the key holds after the write lands.
func (w Write) Next() int64 { return w.Expected + 1 }

// HistoryRepo tracks when each lesson was last taught to a learner.
type HistoryRepo interface {
	// RecordLesson stores at as the lesson's last-taught time unless a
	// later time is already recorded.
	RecordLesson(ctx context.Context, learnerID, courseID, lessonID string, at time.Time) error

	// LessonTimes returns the last-taught time per lesson ID.
	LessonTimes(ctx context.Context, learnerID, courseID string) (map[string]time.Time, error)
}

// Backend is a storage implementation providing both repositories.
type Backend interface {
	MasteryRepo() MasteryRepo
	HistoryRepo() HistoryRepo
	Close() error
}

// Driver names accepted by the store.driver setting.
const (
	DriverMemory   = "memory"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverRedis    = "redis"
)

// Drivers lists every supported driver name.
func Drivers() []string {
	return []string{DriverMemory, DriverSQLite, DriverPostgres, DriverRedis}
}
