package memory

import (
	"context"
	"fmt"

	"github.com/coriolis-sched/coriolis/internal/domain"
)

func (s *Store) StoreTrigger(ctx context.Context, trig domain.Trigger, replaceExisting bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.triggers[trig.Key()]; exists && !replaceExisting {
		return domain.ErrObjectAlreadyExists
	}
	if _, ok := s.jobs[trig.JobKey()]; !ok {
		return domain.ErrJobNotFound
	}
	return s.storeTriggerLocked(trig, replaceExisting)
}

func (s *Store) storeTriggerLocked(trig domain.Trigger, replaceExisting bool) error {
	var cal domain.Calendar
	if name := trig.CalendarName(); name != "" {
		cal = s.calendars[name]
	}
	trig.ComputeFirstFireTime(cal)
	if s.pausedGroups[trig.Key().Group] {
		trig.SetState(domain.TriggerStatePaused)
	}

	s.triggers[trig.Key()] = &triggerRecord{trigger: trig}
	if rec, ok := s.jobs[trig.JobKey()]; ok {
		rec.triggers[trig.Key()] = true
	}
	return nil
}

func (s *Store) RemoveTrigger(ctx context.Context, key domain.TriggerKey) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.triggers[key]
	if !ok {
		return false, nil
	}
	s.unlinkTriggerLocked(rec.trigger.JobKey(), key)
	delete(s.triggers, key)
	return true, nil
}

// unlinkTriggerLocked drops triggerKey from its job's trigger set and, if
// that empties it and the job isn't durable, removes the orphaned job too.
// Caller must hold s.mu.
func (s *Store) unlinkTriggerLocked(jobKey domain.JobKey, triggerKey domain.TriggerKey) {
	jr, ok := s.jobs[jobKey]
	if !ok {
		return
	}
	delete(jr.triggers, triggerKey)
	if len(jr.triggers) == 0 && !jr.detail.Durable {
		delete(s.jobs, jobKey)
	}
}

func (s *Store) ReplaceTrigger(ctx context.Context, key domain.TriggerKey, newTrigger domain.Trigger) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	old, ok := s.triggers[key]
	if !ok {
		return false, nil
	}
	jobKey := old.trigger.JobKey()
	if jr, ok := s.jobs[jobKey]; ok {
		delete(jr.triggers, key)
		jr.triggers[newTrigger.Key()] = true
	}
	delete(s.triggers, key)
	if err := s.storeTriggerLocked(newTrigger, true); err != nil {
		return false, err
	}
	return true, nil
}

func (s *Store) RetrieveTrigger(ctx context.Context, key domain.TriggerKey) (domain.Trigger, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.triggers[key]
	if !ok {
		return nil, domain.ErrTriggerNotFound
	}
	return rec.trigger, nil
}

func (s *Store) CheckTriggerExists(ctx context.Context, key domain.TriggerKey) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.triggers[key]
	return ok, nil
}

func (s *Store) GetTriggerKeys(ctx context.Context, group string) ([]domain.TriggerKey, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.TriggerKey
	for k := range s.triggers {
		if group == "" || k.Group == group {
			out = append(out, k)
		}
	}
	return out, nil
}

func (s *Store) GetTriggerGroupNames(ctx context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	seen := make(map[string]bool)
	var out []string
	for k := range s.triggers {
		if !seen[k.Group] {
			seen[k.Group] = true
			out = append(out, k.Group)
		}
	}
	return out, nil
}

func (s *Store) GetTriggerState(ctx context.Context, key domain.TriggerKey) (domain.TriggerState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.triggers[key]
	if !ok {
		return domain.TriggerStateNone, nil
	}
	return rec.trigger.State(), nil
}

func (s *Store) PauseTrigger(ctx context.Context, key domain.TriggerKey) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.triggers[key]
	if !ok {
		return domain.ErrTriggerNotFound
	}
	s.pauseTriggerLocked(rec)
	return nil
}

func (s *Store) pauseTriggerLocked(rec *triggerRecord) {
	switch rec.trigger.State() {
	case domain.TriggerStateBlocked:
		rec.trigger.SetState(domain.TriggerStatePausedBlocked)
	case domain.TriggerStateComplete:
		// terminal, nothing to pause
	default:
		rec.trigger.SetState(domain.TriggerStatePaused)
	}
}

func (s *Store) PauseTriggerGroup(ctx context.Context, group string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pausedGroups[group] = true
	for k, rec := range s.triggers {
		if k.Group == group {
			s.pauseTriggerLocked(rec)
		}
	}
	return nil
}

func (s *Store) ResumeTrigger(ctx context.Context, key domain.TriggerKey) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.triggers[key]
	if !ok {
		return domain.ErrTriggerNotFound
	}
	s.resumeTriggerLocked(rec)
	return nil
}

func (s *Store) resumeTriggerLocked(rec *triggerRecord) {
	switch rec.trigger.State() {
	case domain.TriggerStatePausedBlocked:
		rec.trigger.SetState(domain.TriggerStateBlocked)
	case domain.TriggerStatePaused:
		rec.trigger.SetState(domain.TriggerStateWaiting)
	}
}

func (s *Store) ResumeTriggerGroup(ctx context.Context, group string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.pausedGroups, group)
	for k, rec := range s.triggers {
		if k.Group == group {
			s.resumeTriggerLocked(rec)
		}
	}
	return nil
}

func (s *Store) PauseJob(ctx context.Context, key domain.JobKey) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	jr, ok := s.jobs[key]
	if !ok {
		return domain.ErrJobNotFound
	}
	for tk := range jr.triggers {
		s.pauseTriggerLocked(s.triggers[tk])
	}
	return nil
}

func (s *Store) PauseJobGroup(ctx context.Context, group string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for jk, jr := range s.jobs {
		if jk.Group != group {
			continue
		}
		for tk := range jr.triggers {
			s.pauseTriggerLocked(s.triggers[tk])
		}
	}
	return nil
}

func (s *Store) ResumeJob(ctx context.Context, key domain.JobKey) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	jr, ok := s.jobs[key]
	if !ok {
		return domain.ErrJobNotFound
	}
	for tk := range jr.triggers {
		s.resumeTriggerLocked(s.triggers[tk])
	}
	return nil
}

func (s *Store) ResumeJobGroup(ctx context.Context, group string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for jk, jr := range s.jobs {
		if jk.Group != group {
			continue
		}
		for tk := range jr.triggers {
			s.resumeTriggerLocked(s.triggers[tk])
		}
	}
	return nil
}

func (s *Store) PauseAll(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	groups := make(map[string]bool)
	for k := range s.triggers {
		groups[k.Group] = true
	}
	for g := range groups {
		s.pausedGroups[g] = true
	}
	for _, rec := range s.triggers {
		s.pauseTriggerLocked(rec)
	}
	return nil
}

func (s *Store) ResumeAll(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pausedGroups = make(map[string]bool)
	for _, rec := range s.triggers {
		s.resumeTriggerLocked(rec)
	}
	return nil
}

func (s *Store) nextEntryID() string {
	s.entrySeq++
	return fmt.Sprintf("entry-%d", s.entrySeq)
}
