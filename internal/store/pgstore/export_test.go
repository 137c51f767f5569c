package pgstore

import (
	"context"
	"fmt"
)

// Truncate removes every row so tests can share one database.
func (s *Store) Truncate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, `TRUNCATE mastery, lesson_history`); err != nil {
		return fmt.Errorf("truncate: %w", err)
	}
	return nil
}
