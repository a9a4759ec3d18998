package postgres

import (
	"context"
	"time"

	"github.com/coriolis-sched/coriolis/internal/domain"
	"github.com/jackc/pgx/v5"
)

// FindMisfiredTriggers loads up to maxCount WAITING triggers whose
// next_fire_time trails now by more than misfireThreshold (spec.md §4.3),
// fetching one extra row to cheaply detect whether more remain.
func (s *Store) FindMisfiredTriggers(ctx context.Context, misfireThreshold time.Duration, maxCount int) ([]domain.Trigger, bool, error) {
	var out []domain.Trigger
	var hasMore bool
	err := s.withLock(ctx, LockTriggerAccess, func(ctx context.Context, tx pgx.Tx) error {
		cutoff := millis(time.Now().Add(-misfireThreshold))
		rows, err := tx.Query(ctx, `
			SELECT trigger_name, trigger_group FROM qrtz_triggers
			WHERE sched_name=$1 AND trigger_state='WAITING' AND next_fire_time < $2
			ORDER BY next_fire_time ASC
			LIMIT $3`, s.schedName, cutoff, maxCount+1)
		if err != nil {
			return err
		}
		var keys []domain.TriggerKey
		for rows.Next() {
			var k domain.TriggerKey
			if err := rows.Scan(&k.Name, &k.Group); err != nil {
				rows.Close()
				return err
			}
			keys = append(keys, k)
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return err
		}

		if len(keys) > maxCount {
			hasMore = true
			keys = keys[:maxCount]
		}
		for _, k := range keys {
			trig, err := s.retrieveTriggerConn(ctx, tx, k)
			if err != nil {
				return err
			}
			out = append(out, trig)
		}
		return nil
	})
	return out, hasMore, err
}
