package engine

import (
	"context"
	"errors"
	"time"

	"github.com/coriolis-sched/coriolis/internal/domain"
	"github.com/coriolis-sched/coriolis/internal/jobfactory"
	"github.com/coriolis-sched/coriolis/internal/listener"
)

// executeOne runs the full per-firing pipeline of spec.md §4.6: pre-fire
// veto check, job execution, then completion — in that order, with
// listener callbacks totally ordered around each step.
func (s *SchedulerThread) executeOne(ctx context.Context, bundle *domain.TriggerFiredBundle) {
	jec := &listener.JobExecutionContext{
		Trigger:       bundle.Trigger,
		Job:           bundle.Job,
		FireTime:      bundle.FireTime,
		ScheduledTime: bundle.ScheduledTime,
		PrevFireTime:  bundle.PrevFireTime,
		NextFireTime:  bundle.NextFireTime,
		Recovering:    bundle.Recovering,
		RecoveringKey: bundle.RecoveringKey,
	}

	if vetoed := s.listeners.TriggerFired(jec); vetoed {
		s.listeners.JobExecutionVetoed(jec)
		if err := s.store.TriggeredJobComplete(ctx, bundle.Trigger, bundle.Job, domain.CompletionSetTriggerComplete); err != nil {
			s.listeners.SchedulerError("triggered job complete after veto", err)
		}
		s.listeners.TriggerComplete(bundle.Trigger, domain.CompletionSetTriggerComplete)
		return
	}

	s.listeners.JobToBeExecuted(jec)

	mergedData := s.mergeJobData(bundle.Job)
	if bundle.Recovering {
		// Never stamp the live (possibly shared) map — clone first so the
		// volatile recovery marker can't leak into persisted job data.
		withFireTime := mergedData.Clone()
		withFireTime[domain.RecoveringFireTimeKey] = bundle.ScheduledTime
		mergedData = withFireTime
	}
	jobExecCtx := &jobfactory.ExecutionContext{
		JobDetail:     bundle.Job,
		Trigger:       bundle.Trigger,
		MergedJobData: mergedData,
		Recovering:    bundle.Recovering,
	}

	// refireImmediately re-enters the same firing in place, bounded so a
	// job that always asks to refire can't spin the worker forever.
	const maxImmediateRefires = 10
	var runErr error
	var execErr *domain.JobExecutionError
	start := time.Now()
	for attempt := 0; ; attempt++ {
		job, instErr := s.factory.NewJob(bundle.Job.JobType)
		if instErr != nil {
			runErr = instErr
			break
		}
		runErr = job.Execute(ctx, jobExecCtx)
		if runErr == nil || !errors.As(runErr, &execErr) || !execErr.RefireImmediately || attempt >= maxImmediateRefires {
			break
		}
	}
	jec.JobRunTime = time.Since(start)

	instruction := domain.CompletionSetTriggerComplete
	switch {
	case runErr != nil && errors.As(runErr, &execErr) && execErr.UnscheduleAllTrigger:
		instruction = domain.CompletionSetAllJobTriggersError
	case runErr != nil && errors.As(runErr, &execErr) && execErr.UnscheduleFiring:
		instruction = domain.CompletionDeleteTrigger
	case runErr != nil:
		instruction = domain.CompletionSetTriggerError
	case bundle.NextFireTime == nil:
		instruction = domain.CompletionSetTriggerComplete
	default:
		instruction = domain.CompletionNoInstruction
	}

	if bundle.Job.PersistJobDataAfterExecution {
		bundle.Job.JobData = jobExecCtx.MergedJobData
		if bundle.Recovering {
			delete(bundle.Job.JobData, domain.RecoveringFireTimeKey)
		}
	}

	s.listeners.JobWasExecuted(jec, runErr)

	if err := s.store.TriggeredJobComplete(ctx, bundle.Trigger, bundle.Job, instruction); err != nil {
		s.listeners.SchedulerError("triggered job complete", err)
	}
	s.listeners.TriggerComplete(bundle.Trigger, instruction)
}

// mergeJobData returns the map a job sees while running: a snapshot unless
// the job disallows concurrent execution, in which case the job receives
// the live map it may mutate in place (spec.md §5 shared-resource policy).
func (s *SchedulerThread) mergeJobData(job *domain.JobDetail) domain.JobDataMap {
	if job.ConcurrentExecutionDisallowed {
		return job.JobData
	}
	return job.JobData.Clone()
}
