package postgres

import (
	"context"
	"errors"
	"math/rand"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
)

// Transient Postgres error codes: serialization_failure and
// deadlock_detected. withLock retries these with bounded backoff for every
// locked store operation; everything else is surfaced immediately.
const (
	codeSerializationFailure = "40001"
	codeDeadlockDetected     = "40P01"
)

func isTransient(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	return pgErr.Code == codeSerializationFailure || pgErr.Code == codeDeadlockDetected
}

// withRetry runs fn, retrying transient serialization/deadlock failures with
// bounded exponential backoff plus jitter. Non-transient errors (including
// ctx cancellation) return immediately.
func withRetry(ctx context.Context, maxAttempts int, fn func(ctx context.Context) error) error {
	var err error
	backoff := 10 * time.Millisecond
	for attempt := 0; attempt < maxAttempts; attempt++ {
		err = fn(ctx)
		if err == nil || !isTransient(err) {
			return err
		}
		jitter := time.Duration(rand.Int63n(int64(backoff)))
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff + jitter):
		}
		if backoff < time.Second {
			backoff *= 2
		}
	}
	return err
}
