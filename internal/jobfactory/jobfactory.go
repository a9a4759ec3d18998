// Package jobfactory resolves a JobDetail's JobType to a runnable Job
// implementation at fire time.
package jobfactory

import (
	"context"
	"fmt"
	"sync"

	"github.com/coriolis-sched/coriolis/internal/domain"
)

// Job is user code invoked when a trigger fires.
type Job interface {
	Execute(ctx context.Context, jec *ExecutionContext) error
}

// ExecutionContext is the minimal view of a firing a Job needs; the
// engine builds the richer listener.JobExecutionContext and narrows it to
// this before calling Execute.
type ExecutionContext struct {
	JobDetail     *domain.JobDetail
	Trigger       domain.Trigger
	MergedJobData domain.JobDataMap
	Recovering    bool
}

// A Job signals refire/unschedule directives by returning a
// *domain.JobExecutionError rather than a plain error.

// Factory instantiates a Job for a given registered type name.
type Factory interface {
	NewJob(jobType string) (Job, error)
}

// Registry is a Factory backed by a map of constructors registered at
// startup — the only Factory implementation this module needs, since jobs
// are compiled in rather than plugin-loaded.
type Registry struct {
	mu           sync.RWMutex
	constructors map[string]func() Job
}

func NewRegistry() *Registry {
	return &Registry{constructors: make(map[string]func() Job)}
}

// Register associates jobType with a constructor. Registering the same
// type twice replaces the earlier constructor.
func (r *Registry) Register(jobType string, ctor func() Job) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.constructors[jobType] = ctor
}

func (r *Registry) NewJob(jobType string) (Job, error) {
	r.mu.RLock()
	ctor, ok := r.constructors[jobType]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("jobfactory: no job registered for type %q", jobType)
	}
	return ctor(), nil
}
