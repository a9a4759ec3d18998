package memory

import (
	"context"
	"sort"
	"time"

	"github.com/coriolis-sched/coriolis/internal/domain"
)

func (s *Store) FindMisfiredTriggers(ctx context.Context, misfireThreshold time.Duration, maxCount int) ([]domain.Trigger, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	var candidates []domain.Trigger
	for _, rec := range s.triggers {
		if rec.trigger.State() != domain.TriggerStateWaiting {
			continue
		}
		next := rec.trigger.GetNextFireTime()
		if next == nil || now.Sub(*next) <= misfireThreshold {
			continue
		}
		candidates = append(candidates, rec.trigger)
	}

	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].GetNextFireTime().Before(*candidates[j].GetNextFireTime())
	})

	hasMore := len(candidates) > maxCount
	if hasMore {
		candidates = candidates[:maxCount]
	}
	return candidates, hasMore, nil
}
