package memory

import (
	"context"
	"time"

	"github.com/coriolis-sched/coriolis/internal/domain"
	"github.com/coriolis-sched/coriolis/internal/trigger"
)

func (s *Store) StoreCalendar(ctx context.Context, name string, cal domain.Calendar, replaceExisting, updateTriggers bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.calendars[name]; exists && !replaceExisting {
		return domain.ErrObjectAlreadyExists
	}
	s.calendars[name] = cal

	if updateTriggers {
		for _, rec := range s.triggers {
			if rec.trigger.CalendarName() == name {
				rec.trigger.UpdateWithNewCalendar(cal, 0)
			}
		}
	}
	return nil
}

func (s *Store) RemoveCalendar(ctx context.Context, name string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, rec := range s.triggers {
		if rec.trigger.CalendarName() == name {
			return false, domain.ErrCalendarInUse
		}
	}
	if _, ok := s.calendars[name]; !ok {
		return false, nil
	}
	delete(s.calendars, name)
	return true, nil
}

func (s *Store) RetrieveCalendar(ctx context.Context, name string) (domain.Calendar, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cal, ok := s.calendars[name]
	if !ok {
		return nil, domain.ErrCalendarNotFound
	}
	return cal, nil
}

func (s *Store) CalendarExists(ctx context.Context, name string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.calendars[name]
	return ok, nil
}

func (s *Store) GetCalendarNames(ctx context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []string
	for name := range s.calendars {
		out = append(out, name)
	}
	return out, nil
}

// RecoverSchedulerState restores instanceName's orphaned ACQUIRED/EXECUTING
// triggers to WAITING, schedules a one-shot recovery trigger for every
// fired row whose job requested recovery, and forgets that instance's
// in-flight firings. A single process normally owns one memory.Store, so
// this only matters when a test drives multiple instance names against
// one Store to exercise internal/cluster's failover path.
func (s *Store) RecoverSchedulerState(ctx context.Context, instanceName string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, ft := range s.firedTriggers {
		if ft.InstanceName != instanceName {
			continue
		}
		if rec, ok := s.triggers[ft.TriggerKey]; ok {
			switch rec.trigger.State() {
			case domain.TriggerStateAcquired, domain.TriggerStateExecuting:
				rec.trigger.SetState(domain.TriggerStateWaiting)
			}
		}
		if ft.RequestsRecovery {
			if _, ok := s.jobs[ft.JobKey]; ok {
				recKey := domain.NewTriggerKey(domain.RecoveryTriggerName(ft.TriggerKey, ft.EntryID), domain.RecoveringJobsGroup)
				recTrig := trigger.NewSimple(recKey, ft.JobKey, ft.FiredTime, 0, 0)
				_ = s.storeTriggerLocked(recTrig, true)
			}
		}
		delete(s.firedTriggers, id)
	}
	return nil
}

func (s *Store) Checkin(ctx context.Context, instanceName string, interval time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.schedStates[instanceName] = domain.SchedulerState{
		InstanceName: instanceName, LastCheckinTime: time.Now(), CheckinInterval: interval,
	}
	return nil
}

func (s *Store) GetSchedulerStates(ctx context.Context) ([]domain.SchedulerState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.SchedulerState, 0, len(s.schedStates))
	for _, st := range s.schedStates {
		out = append(out, st)
	}
	return out, nil
}

func (s *Store) DeleteSchedulerState(ctx context.Context, instanceName string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.schedStates, instanceName)
	return nil
}
