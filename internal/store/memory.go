package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/abhisek/nextlesson/internal/apperr"
	"github.com/abhisek/nextlesson/internal/mastery"
)

// Memory is an in-process Backend. It is safe for concurrent use and
// loses all data when the process exits.
type Memory struct {
	mu      sync.RWMutex
	mastery map[mastery.Key]Versioned
	history map[historyKey]time.Time
}

type historyKey struct {
	learnerID, courseID, lessonID string
}

// NewMemory creates an empty in-memory backend.
func NewMemory() *Memory {
	return &Memory{
		mastery: make(map[mastery.Key]Versioned),
		history: make(map[historyKey]time.Time),
	}
}

func (m *Memory) MasteryRepo() MasteryRepo { return m }
func (m *Memory) HistoryRepo() HistoryRepo { return m }
func (m *Memory) Close() error             { return nil }

func (m *Memory) GetMastery(_ context.Context, key mastery.Key) (Versioned, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if v, ok := m.mastery[key]; ok {
		return v, nil
	}
	return Versioned{Record: mastery.Absent(key)}, nil
}

func (m *Memory) ListMastery(_ context.Context, learnerID, courseID string) ([]Versioned, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []Versioned
	for k, v := range m.mastery {
		if k.LearnerID == learnerID && k.CourseID == courseID {
			out = append(out, v)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].OutcomeID < out[j].OutcomeID })
	return out, nil
}

func (m *Memory) SaveMastery(_ context.Context, writes ...Write) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, w := range writes {
		if m.mastery[w.Record.Key].Version != w.Expected {
			return &apperr.ConflictError{Key: w.Record.Key.String(), Expected: w.Expected}
		}
	}
	for _, w := range writes {
		m.mastery[w.Record.Key] = Versioned{Record: w.Record, Version: w.Next()}
	}
	return nil
}

func (m *Memory) RecordLesson(_ context.Context, learnerID, courseID, lessonID string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	k := historyKey{learnerID, courseID, lessonID}
	if prev, ok := m.history[k]; !ok || at.After(prev) {
		m.history[k] = at
	}
	return nil
}

func (m *Memory) LessonTimes(_ context.Context, learnerID, courseID string) (map[string]time.Time, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make(map[string]time.Time)
	for k, at := range m.history {
		if k.learnerID == learnerID && k.courseID == courseID {
			out[k.lessonID] = at
		}
	}
	return out, nil
}
