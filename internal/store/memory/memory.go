// Package memory implements jobstore.Store entirely in process memory,
// guarded by a single mutex. It is correct for one scheduler instance only
// — there is no cluster coordination, because there is nothing to
// coordinate with — and is the default store for local development and
// tests (grounded on the teacher's single-process claim loop in
// internal/infrastructure/postgres/job_repo.go, reimplemented without SQL).
package memory

import (
	"sync"

	"github.com/coriolis-sched/coriolis/internal/domain"
)

type jobRecord struct {
	detail   *domain.JobDetail
	triggers map[domain.TriggerKey]bool
}

type triggerRecord struct {
	trigger domain.Trigger
}

// Store is a mutex-guarded, single-instance jobstore.Store.
type Store struct {
	mu sync.Mutex

	// instanceName tags FiredTrigger rows this Store creates, mirroring
	// internal/store/postgres.Store. A lone process normally owns one
	// memory.Store, so this only matters to tests that point a
	// cluster.Manager at someone else's store to simulate a shared
	// cluster table (see internal/cluster/manager_test.go).
	instanceName string

	jobs          map[domain.JobKey]*jobRecord
	triggers      map[domain.TriggerKey]*triggerRecord
	calendars     map[string]domain.Calendar
	pausedGroups  map[string]bool
	firedTriggers map[string]*domain.FiredTrigger
	blockedJobs   map[domain.JobKey]bool
	schedStates   map[string]domain.SchedulerState

	entrySeq int64
}

// New returns a Store tagging its own fired triggers with instanceName
// "default" — the right choice whenever only one process ever touches it.
func New() *Store {
	return NewWithInstance("default")
}

// NewWithInstance returns a Store tagging its fired triggers with
// instanceName, for tests that need that identity to be distinguishable.
func NewWithInstance(instanceName string) *Store {
	return &Store{
		instanceName:  instanceName,
		jobs:          make(map[domain.JobKey]*jobRecord),
		triggers:      make(map[domain.TriggerKey]*triggerRecord),
		calendars:     make(map[string]domain.Calendar),
		pausedGroups:  make(map[string]bool),
		firedTriggers: make(map[string]*domain.FiredTrigger),
		blockedJobs:   make(map[domain.JobKey]bool),
		schedStates:   make(map[string]domain.SchedulerState),
	}
}
