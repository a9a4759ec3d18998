// Package jobstore defines the persistence contract every store
// implementation (internal/store/memory, internal/store/postgres) must
// satisfy (spec.md §4.3). The engine talks only to this interface; it never
// assumes an in-memory or relational backend.
package jobstore

import (
	"context"
	"time"

	"github.com/coriolis-sched/coriolis/internal/domain"
)

// Store is safe for concurrent use from one scheduler instance and, for a
// persistent implementation, from multiple cooperating instances.
type Store interface {
	StoreJobAndTrigger(ctx context.Context, job *domain.JobDetail, trig domain.Trigger) error

	StoreJob(ctx context.Context, job *domain.JobDetail, replaceExisting bool) error
	RemoveJob(ctx context.Context, key domain.JobKey) (bool, error)
	RetrieveJob(ctx context.Context, key domain.JobKey) (*domain.JobDetail, error)
	CheckJobExists(ctx context.Context, key domain.JobKey) (bool, error)
	GetJobKeys(ctx context.Context, group string) ([]domain.JobKey, error)
	GetJobGroupNames(ctx context.Context) ([]string, error)

	StoreTrigger(ctx context.Context, trig domain.Trigger, replaceExisting bool) error
	RemoveTrigger(ctx context.Context, key domain.TriggerKey) (bool, error)
	ReplaceTrigger(ctx context.Context, key domain.TriggerKey, newTrigger domain.Trigger) (bool, error)
	RetrieveTrigger(ctx context.Context, key domain.TriggerKey) (domain.Trigger, error)
	CheckTriggerExists(ctx context.Context, key domain.TriggerKey) (bool, error)
	GetTriggerKeys(ctx context.Context, group string) ([]domain.TriggerKey, error)
	GetTriggerGroupNames(ctx context.Context) ([]string, error)
	GetTriggerState(ctx context.Context, key domain.TriggerKey) (domain.TriggerState, error)

	PauseTrigger(ctx context.Context, key domain.TriggerKey) error
	PauseTriggerGroup(ctx context.Context, group string) error
	ResumeTrigger(ctx context.Context, key domain.TriggerKey) error
	ResumeTriggerGroup(ctx context.Context, group string) error
	PauseJob(ctx context.Context, key domain.JobKey) error
	PauseJobGroup(ctx context.Context, group string) error
	ResumeJob(ctx context.Context, key domain.JobKey) error
	ResumeJobGroup(ctx context.Context, group string) error
	PauseAll(ctx context.Context) error
	ResumeAll(ctx context.Context) error

	// AcquireNextTriggers atomically transitions up to maxCount WAITING
	// triggers whose nextFireTime <= noLaterThan+timeWindow to ACQUIRED,
	// ordered by (nextFireTime ASC, priority DESC), skipping blocked/paused
	// triggers, and writes a FiredTrigger row for each.
	AcquireNextTriggers(ctx context.Context, noLaterThan time.Time, maxCount int, timeWindow time.Duration) ([]domain.Trigger, error)

	// TriggersFired re-confirms each trigger is still ACQUIRED, advances it
	// to EXECUTING (or COMPLETE if it cannot fire again), and blocks
	// sibling triggers of a concurrent-disallowed job.
	TriggersFired(ctx context.Context, triggers []domain.Trigger) ([]domain.TriggerFiredResult, error)

	// FindMisfiredTriggers returns up to maxCount WAITING triggers whose
	// nextFireTime trails now by more than misfireThreshold, ordered by
	// nextFireTime ASC, plus whether more misfired triggers remain beyond
	// maxCount (spec.md §4.3 "hasMoreMisfiredTriggers").
	FindMisfiredTriggers(ctx context.Context, misfireThreshold time.Duration, maxCount int) ([]domain.Trigger, bool, error)

	// TriggeredJobComplete applies instruction, unblocks siblings, persists
	// mutated job data if requested, and removes the FiredTrigger row.
	TriggeredJobComplete(ctx context.Context, trig domain.Trigger, job *domain.JobDetail, instruction domain.CompletionInstruction) error

	StoreCalendar(ctx context.Context, name string, cal domain.Calendar, replaceExisting, updateTriggers bool) error
	RemoveCalendar(ctx context.Context, name string) (bool, error)
	RetrieveCalendar(ctx context.Context, name string) (domain.Calendar, error)
	CalendarExists(ctx context.Context, name string) (bool, error)
	GetCalendarNames(ctx context.Context) ([]string, error)

	// RecoverSchedulerState is called once at startup (and by the cluster
	// manager on failover): it resets orphaned ACQUIRED/EXECUTING triggers
	// to WAITING and schedules recovery firings for jobs with
	// RequestsRecovery set, per spec.md §8 scenario 6.
	RecoverSchedulerState(ctx context.Context, instanceName string) error

	// Checkin updates this instance's SchedulerState heartbeat row.
	Checkin(ctx context.Context, instanceName string, interval time.Duration) error
	// GetSchedulerStates returns every known instance's heartbeat row, used
	// by the cluster manager to detect stale peers.
	GetSchedulerStates(ctx context.Context) ([]domain.SchedulerState, error)
	// DeleteSchedulerState removes a (presumed dead) instance's row.
	DeleteSchedulerState(ctx context.Context, instanceName string) error
}
