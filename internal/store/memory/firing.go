package memory

import (
	"context"
	"sort"
	"time"

	"github.com/coriolis-sched/coriolis/internal/domain"
	"github.com/coriolis-sched/coriolis/internal/metrics"
)

func (s *Store) AcquireNextTriggers(ctx context.Context, noLaterThan time.Time, maxCount int, timeWindow time.Duration) ([]domain.Trigger, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := noLaterThan.Add(timeWindow)

	var candidates []*triggerRecord
	for _, rec := range s.triggers {
		if rec.trigger.State() != domain.TriggerStateWaiting {
			continue
		}
		next := rec.trigger.GetNextFireTime()
		if next == nil || next.After(cutoff) {
			continue
		}
		if s.blockedJobs[rec.trigger.JobKey()] {
			continue
		}
		candidates = append(candidates, rec)
	}

	sort.Slice(candidates, func(i, j int) bool {
		ti, tj := candidates[i].trigger, candidates[j].trigger
		fi, fj := ti.GetNextFireTime(), tj.GetNextFireTime()
		if !fi.Equal(*fj) {
			return fi.Before(*fj)
		}
		return ti.GetPriority() > tj.GetPriority()
	})

	if len(candidates) > maxCount {
		candidates = candidates[:maxCount]
	}

	out := make([]domain.Trigger, 0, len(candidates))
	for _, rec := range candidates {
		rec.trigger.SetState(domain.TriggerStateAcquired)
		entryID := s.nextEntryID()
		job := s.jobs[rec.trigger.JobKey()]
		var concurrentDisallowed, requestsRecovery bool
		if job != nil {
			concurrentDisallowed = job.detail.ConcurrentExecutionDisallowed
			requestsRecovery = job.detail.RequestsRecovery
		}
		s.firedTriggers[entryID] = &domain.FiredTrigger{
			EntryID:                       entryID,
			TriggerKey:                    rec.trigger.Key(),
			JobKey:                        rec.trigger.JobKey(),
			InstanceName:                  s.instanceName,
			FiredTime:                     time.Now(),
			ScheduledTime:                 *rec.trigger.GetNextFireTime(),
			Priority:                      rec.trigger.GetPriority(),
			State:                         domain.FiredStateAcquired,
			ConcurrentExecutionDisallowed: concurrentDisallowed,
			RequestsRecovery:              requestsRecovery,
		}
		out = append(out, rec.trigger)
	}
	return out, nil
}

func (s *Store) TriggersFired(ctx context.Context, triggers []domain.Trigger) ([]domain.TriggerFiredResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var results []domain.TriggerFiredResult
	for _, t := range triggers {
		rec, ok := s.triggers[t.Key()]
		if !ok || rec.trigger.State() != domain.TriggerStateAcquired {
			results = append(results, domain.TriggerFiredResult{SkipReason: domain.SkipNoLongerAvailable})
			continue
		}

		jobRec, ok := s.jobs[rec.trigger.JobKey()]
		if !ok {
			// The job was removed after acquisition; release the trigger
			// back to WAITING rather than leave it stuck ACQUIRED.
			rec.trigger.SetState(domain.TriggerStateWaiting)
			results = append(results, domain.TriggerFiredResult{SkipReason: domain.SkipNoLongerAvailable})
			continue
		}

		var cal domain.Calendar
		if name := rec.trigger.CalendarName(); name != "" {
			cal = s.calendars[name]
		}

		prevFire := rec.trigger.GetPreviousFireTime()
		fireTime := *rec.trigger.GetNextFireTime()
		scheduledTime := fireTime

		rec.trigger.Triggered(cal)
		nextFire := rec.trigger.GetNextFireTime()

		if jobRec.detail.ConcurrentExecutionDisallowed {
			s.blockedJobs[rec.trigger.JobKey()] = true
			for tk := range jobRec.triggers {
				if tk == rec.trigger.Key() {
					continue
				}
				if sib := s.triggers[tk]; sib != nil && sib.trigger.State() == domain.TriggerStateWaiting {
					sib.trigger.SetState(domain.TriggerStateBlocked)
					metrics.BlockedTriggers.Inc()
				}
			}
		}

		if nextFire == nil {
			rec.trigger.SetState(domain.TriggerStateComplete)
		} else {
			rec.trigger.SetState(domain.TriggerStateExecuting)
		}

		bundle := &domain.TriggerFiredBundle{
			Trigger:       rec.trigger,
			Job:           jobRec.detail.Clone(),
			Calendar:      cal,
			FireTime:      fireTime,
			ScheduledTime: scheduledTime,
			PrevFireTime:  prevFire,
			NextFireTime:  nextFire,
		}
		if rec.trigger.Key().Group == domain.RecoveringJobsGroup {
			if orig, ok := domain.ParseRecoveryTriggerName(rec.trigger.Key().Name); ok {
				bundle.Recovering = true
				bundle.RecoveringKey = orig
			}
		}
		results = append(results, domain.TriggerFiredResult{Bundle: bundle})
	}
	return results, nil
}

func (s *Store) TriggeredJobComplete(ctx context.Context, trig domain.Trigger, job *domain.JobDetail, instruction domain.CompletionInstruction) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	jobRec, hasJob := s.jobs[trig.JobKey()]
	if hasJob && job != nil && job.PersistJobDataAfterExecution {
		jobRec.detail.JobData = job.JobData.Clone()
	}

	switch instruction {
	case domain.CompletionDeleteTrigger:
		delete(s.triggers, trig.Key())
		if hasJob {
			s.unlinkTriggerLocked(trig.JobKey(), trig.Key())
		}
	case domain.CompletionSetTriggerComplete:
		if rec, ok := s.triggers[trig.Key()]; ok {
			rec.trigger.SetState(domain.TriggerStateComplete)
		}
	case domain.CompletionSetTriggerError:
		if rec, ok := s.triggers[trig.Key()]; ok {
			rec.trigger.SetState(domain.TriggerStateError)
		}
	case domain.CompletionSetAllJobTriggersError, domain.CompletionSetAllJobTriggersComplete:
		if hasJob {
			state := domain.TriggerStateComplete
			if instruction == domain.CompletionSetAllJobTriggersError {
				state = domain.TriggerStateError
			}
			for tk := range jobRec.triggers {
				if rec := s.triggers[tk]; rec != nil {
					rec.trigger.SetState(state)
				}
			}
		}
	}

	if hasJob && jobRec.detail.ConcurrentExecutionDisallowed {
		delete(s.blockedJobs, trig.JobKey())
		for tk := range jobRec.triggers {
			if rec := s.triggers[tk]; rec != nil && rec.trigger.State() == domain.TriggerStateBlocked {
				rec.trigger.SetState(domain.TriggerStateWaiting)
				metrics.BlockedTriggers.Dec()
			} else if rec != nil && rec.trigger.State() == domain.TriggerStatePausedBlocked {
				rec.trigger.SetState(domain.TriggerStatePaused)
			}
		}
	}

	for id, ft := range s.firedTriggers {
		if ft.TriggerKey == trig.Key() {
			delete(s.firedTriggers, id)
		}
	}
	return nil
}
