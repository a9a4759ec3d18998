// Package postgres implements jobstore.Store on top of a shared Postgres
// database, so multiple scheduler instances can cooperate without
// double-firing (spec.md §4.3 "Persistent-store protocol", §6 schema).
// Grounded on the teacher's internal/infrastructure/postgres package:
// pgxpool.Pool configuration (db.go) and the scanJob/rowScanner pattern,
// FOR UPDATE SKIP LOCKED and pgconn.PgError code inspection (job_repo.go).
package postgres

import (
	"context"
	_ "embed"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

//go:embed schema.sql
var schemaSQL string

// Lock names guarding the two named row locks spec.md §4.3 calls for.
const (
	LockTriggerAccess = "TRIGGER_ACCESS"
	LockStateAccess   = "STATE_ACCESS"
)

// Store is a jobstore.Store backed by a shared Postgres database. It is
// safe for concurrent use both within one process and across cooperating
// scheduler instances: every mutating method acquires TRIGGER_ACCESS or
// STATE_ACCESS before opening its write transaction.
type Store struct {
	pool         *pgxpool.Pool
	schedName    string
	instanceName string
	lockTimeout  time.Duration
}

// Option configures a Store at construction.
type Option func(*Store)

// WithLockTimeout overrides the default lock-acquisition timeout (5s).
func WithLockTimeout(d time.Duration) Option {
	return func(s *Store) { s.lockTimeout = d }
}

// New returns a Store ready for use, after applying the schema (CREATE
// TABLE IF NOT EXISTS, idempotent) and seeding the two named locks.
// instanceName identifies this scheduler process in qrtz_fired_triggers and
// qrtz_scheduler_state rows it writes — it must be unique within the cluster.
func New(ctx context.Context, pool *pgxpool.Pool, schedName, instanceName string, opts ...Option) (*Store, error) {
	s := &Store{pool: pool, schedName: schedName, instanceName: instanceName, lockTimeout: 5 * time.Second}
	for _, opt := range opts {
		opt(s)
	}
	if err := s.migrate(ctx); err != nil {
		return nil, fmt.Errorf("postgres store: migrate: %w", err)
	}
	return s, nil
}

func (s *Store) migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schemaSQL); err != nil {
		return err
	}
	for _, lock := range []string{LockTriggerAccess, LockStateAccess} {
		if _, err := s.pool.Exec(ctx, `
			INSERT INTO qrtz_locks (sched_name, lock_name) VALUES ($1, $2)
			ON CONFLICT (sched_name, lock_name) DO NOTHING`, s.schedName, lock); err != nil {
			return err
		}
	}
	return nil
}

func millis(t time.Time) int64 { return t.UnixMilli() }

func fromMillis(ms int64) time.Time { return time.UnixMilli(ms).UTC() }

func millisPtr(t *time.Time) *int64 {
	if t == nil {
		return nil
	}
	v := t.UnixMilli()
	return &v
}

func timePtr(ms *int64) *time.Time {
	if ms == nil {
		return nil
	}
	t := time.UnixMilli(*ms).UTC()
	return &t
}
