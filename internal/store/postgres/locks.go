package postgres

import (
	"context"
	"fmt"

	"github.com/coriolis-sched/coriolis/internal/domain"
	"github.com/jackc/pgx/v5"
)

// withLock opens a transaction, acquires the named row lock via
// SELECT ... FOR UPDATE, and runs fn inside that transaction. The write
// happens after the lock is held; commit releases it (spec.md §4.3
// "Every write happens inside a transaction opened after the lock is held").
func (s *Store) withLock(ctx context.Context, lockName string, fn func(ctx context.Context, tx pgx.Tx) error) error {
	return withRetry(ctx, 5, func(ctx context.Context) error {
		tx, err := s.pool.Begin(ctx)
		if err != nil {
			return fmt.Errorf("postgres store: begin tx: %w", err)
		}
		defer tx.Rollback(ctx)

		lockCtx, cancel := context.WithTimeout(ctx, s.lockTimeout)
		defer cancel()
		var discard string
		err = tx.QueryRow(lockCtx, `
			SELECT lock_name FROM qrtz_locks
			WHERE sched_name = $1 AND lock_name = $2
			FOR UPDATE`, s.schedName, lockName).Scan(&discard)
		if err != nil {
			if lockCtx.Err() != nil {
				return &domain.LockTimeoutError{LockName: lockName}
			}
			return fmt.Errorf("postgres store: acquire lock %s: %w", lockName, err)
		}

		if err := fn(ctx, tx); err != nil {
			return err
		}
		if err := tx.Commit(ctx); err != nil {
			return fmt.Errorf("postgres store: commit: %w", err)
		}
		return nil
	})
}

// errNoRows reports whether err is the "no matching row" sentinel, so
// callers can translate it into the store's own not-found errors.
func errNoRows(err error) bool {
	return err == pgx.ErrNoRows
}
