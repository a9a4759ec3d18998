package memory

import (
	"context"

	"github.com/coriolis-sched/coriolis/internal/domain"
)

func (s *Store) StoreJobAndTrigger(ctx context.Context, job *domain.JobDetail, trig domain.Trigger) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.storeJobLocked(job, true)
	return s.storeTriggerLocked(trig, true)
}

func (s *Store) StoreJob(ctx context.Context, job *domain.JobDetail, replaceExisting bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.jobs[job.Key]; exists && !replaceExisting {
		return domain.ErrObjectAlreadyExists
	}
	s.storeJobLocked(job, replaceExisting)
	return nil
}

func (s *Store) storeJobLocked(job *domain.JobDetail, replaceExisting bool) {
	existing, ok := s.jobs[job.Key]
	if ok && replaceExisting {
		existing.detail = job.Clone()
		return
	}
	s.jobs[job.Key] = &jobRecord{detail: job.Clone(), triggers: make(map[domain.TriggerKey]bool)}
}

func (s *Store) RemoveJob(ctx context.Context, key domain.JobKey) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.jobs[key]
	if !ok {
		return false, nil
	}
	for tk := range rec.triggers {
		delete(s.triggers, tk)
	}
	delete(s.jobs, key)
	return true, nil
}

func (s *Store) RetrieveJob(ctx context.Context, key domain.JobKey) (*domain.JobDetail, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.jobs[key]
	if !ok {
		return nil, domain.ErrJobNotFound
	}
	return rec.detail.Clone(), nil
}

func (s *Store) CheckJobExists(ctx context.Context, key domain.JobKey) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.jobs[key]
	return ok, nil
}

func (s *Store) GetJobKeys(ctx context.Context, group string) ([]domain.JobKey, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.JobKey
	for k := range s.jobs {
		if group == "" || k.Group == group {
			out = append(out, k)
		}
	}
	return out, nil
}

func (s *Store) GetJobGroupNames(ctx context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	seen := make(map[string]bool)
	var out []string
	for k := range s.jobs {
		if !seen[k.Group] {
			seen[k.Group] = true
			out = append(out, k.Group)
		}
	}
	return out, nil
}
