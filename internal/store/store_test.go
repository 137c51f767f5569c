package store_test

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/abhisek/nextlesson/internal/mastery"
	"github.com/abhisek/nextlesson/internal/store"
	"github.com/abhisek/nextlesson/internal/store/storetest"
)

func openTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open test store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSQLiteBackend(t *testing.T) {
	storetest.Run(t, func(t *testing.T) store.Backend { return openTestStore(t) })
}

func TestMemoryBackend(t *testing.T) {
	storetest.Run(t, func(t *testing.T) store.Backend { return store.NewMemory() })
}

func TestPragmasApplied(t *testing.T) {
	s := openTestStore(t)
	db := s.DB()

	tests := []struct {
		pragma string
		want   string
	}{
		{"journal_mode", "wal"},
		{"foreign_keys", "1"},
		{"synchronous", "1"}, // NORMAL = 1
	}

	for _, tt := range tests {
		var got string
		err := db.QueryRow("PRAGMA " + tt.pragma).Scan(&got)
		if err != nil {
			t.Errorf("PRAGMA %s: %v", tt.pragma, err)
			continue
		}
		if got != tt.want {
			t.Errorf("PRAGMA %s = %q, want %q", tt.pragma, got, tt.want)
		}
	}
}

func TestSQLiteReopenKeepsData(t *testing.T) {
	path := filepath.Join(t.TempDir(), "persist.db")
	ctx := context.Background()
	key := mastery.Key{LearnerID: "l1", CourseID: "c1", OutcomeID: "o1"}

	s, err := store.Open(path)
	require.NoError(t, err)
	err = s.MasteryRepo().SaveMastery(ctx, store.Write{Record: mastery.Record{
		Key: key, Score: 0.6, ObservationCount: 1, LastUpdatedAt: time.Unix(100, 0),
	}})
	require.NoError(t, err)
	require.NoError(t, s.Close())

	s, err = store.Open(path)
	require.NoError(t, err)
	defer s.Close()
	got, err := s.MasteryRepo().GetMastery(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, int64(1), got.Version)
	assert.InDelta(t, 0.6, got.Score, 1e-12)
}

func TestMemoryConcurrentSavesSerialize(t *testing.T) {
	m := store.NewMemory()
	ctx := context.Background()
	key := mastery.Key{LearnerID: "l1", CourseID: "c1", OutcomeID: "o1"}

	const writers = 10
	var wg sync.WaitGroup
	wins := make(chan struct{}, writers)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := m.SaveMastery(ctx, store.Write{Record: mastery.Record{Key: key, ObservationCount: 1}}); err == nil {
				wins <- struct{}{}
			}
		}()
	}
	wg.Wait()
	close(wins)
	assert.Len(t, wins, 1, "exactly one first write may win")
}

func TestDefaultDBPath(t *testing.T) {
	dir := t.TempDir()

	t.Run("env override", func(t *testing.T) {
		p := filepath.Join(dir, "custom", "x.db")
		t.Setenv("NEXTLESSON_DB", p)
		got, err := store.DefaultDBPath()
		require.NoError(t, err)
		assert.Equal(t, p, got)
		assert.DirExists(t, filepath.Dir(p))
	})

	t.Run("xdg data home", func(t *testing.T) {
		t.Setenv("NEXTLESSON_DB", "")
		t.Setenv("XDG_DATA_HOME", dir)
		got, err := store.DefaultDBPath()
		require.NoError(t, err)
		assert.Equal(t, filepath.Join(dir, "nextlesson", "nextlesson.db"), got)
	})
}
