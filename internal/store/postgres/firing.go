package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/coriolis-sched/coriolis/internal/domain"
	"github.com/coriolis-sched/coriolis/internal/metrics"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// AcquireNextTriggers claims up to maxCount WAITING triggers whose
// next_fire_time is no later than noLaterThan+timeWindow, ordered by
// (next_fire_time ASC, priority DESC), and writes a qrtz_fired_triggers row
// for each so a crash mid-fire is recoverable (spec.md §4.3/§4.5).
func (s *Store) AcquireNextTriggers(ctx context.Context, noLaterThan time.Time, maxCount int, timeWindow time.Duration) ([]domain.Trigger, error) {
	var out []domain.Trigger
	err := s.withLock(ctx, LockTriggerAccess, func(ctx context.Context, tx pgx.Tx) error {
		cutoff := millis(noLaterThan.Add(timeWindow))
		rows, err := tx.Query(ctx, `
			SELECT trigger_name, trigger_group FROM qrtz_triggers
			WHERE sched_name=$1 AND trigger_state='WAITING' AND next_fire_time <= $2
			ORDER BY next_fire_time ASC, priority DESC
			LIMIT $3`, s.schedName, cutoff, maxCount)
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

		for _, k := range keys {
			trig, err := s.retrieveTriggerConn(ctx, tx, k)
			if err != nil {
				return fmt.Errorf("postgres store: acquire %s: %w", k, err)
			}
			if _, err := tx.Exec(ctx, `UPDATE qrtz_triggers SET trigger_state='ACQUIRED' WHERE sched_name=$1 AND trigger_name=$2 AND trigger_group=$3`,
				s.schedName, k.Name, k.Group); err != nil {
				return err
			}
			trig.SetState(domain.TriggerStateAcquired)

			var nonconcurrent, recovery bool
			if err := tx.QueryRow(ctx, `SELECT is_nonconcurrent, requests_recovery FROM qrtz_job_details
				WHERE sched_name=$1 AND job_name=$2 AND job_group=$3`,
				s.schedName, trig.JobKey().Name, trig.JobKey().Group).Scan(&nonconcurrent, &recovery); err != nil {
				return err
			}

			entryID := uuid.NewString()
			if _, err := tx.Exec(ctx, `
				INSERT INTO qrtz_fired_triggers
					(sched_name, entry_id, trigger_name, trigger_group, instance_name, fired_time,
					 sched_time, priority, state, job_name, job_group, is_nonconcurrent, requests_recovery)
				VALUES ($1,$2,$3,$4,$5,$6,$7,$8,'ACQUIRED',$9,$10,$11,$12)`,
				s.schedName, entryID, k.Name, k.Group, s.instanceName, millis(time.Now()),
				millis(*trig.GetNextFireTime()), trig.GetPriority(), trig.JobKey().Name, trig.JobKey().Group,
				nonconcurrent, recovery); err != nil {
				return err
			}
			out = append(out, trig)
		}
		return nil
	})
	return out, err
}

// TriggersFired re-confirms each trigger is still ACQUIRED, advances it per
// Triggered(cal), and blocks sibling triggers of a concurrent-disallowed job.
func (s *Store) TriggersFired(ctx context.Context, triggers []domain.Trigger) ([]domain.TriggerFiredResult, error) {
	var results []domain.TriggerFiredResult
	err := s.withLock(ctx, LockTriggerAccess, func(ctx context.Context, tx pgx.Tx) error {
		for _, t := range triggers {
			var state string
			err := tx.QueryRow(ctx, `SELECT trigger_state FROM qrtz_triggers WHERE sched_name=$1 AND trigger_name=$2 AND trigger_group=$3`,
				s.schedName, t.Key().Name, t.Key().Group).Scan(&state)
			if errNoRows(err) || (err == nil && domain.TriggerState(state) != domain.TriggerStateAcquired) {
				results = append(results, domain.TriggerFiredResult{SkipReason: domain.SkipNoLongerAvailable})
				continue
			}
			if err != nil {
				return err
			}

			job, err := s.retrieveJobTx(ctx, tx, t.JobKey())
			if err != nil {
				// The job was removed after acquisition; release the
				// trigger back to WAITING rather than leave it stuck ACQUIRED.
				if _, releaseErr := tx.Exec(ctx, `UPDATE qrtz_triggers SET trigger_state='WAITING' WHERE sched_name=$1 AND trigger_name=$2 AND trigger_group=$3`,
					s.schedName, t.Key().Name, t.Key().Group); releaseErr != nil {
					return releaseErr
				}
				results = append(results, domain.TriggerFiredResult{SkipReason: domain.SkipNoLongerAvailable})
				continue
			}

			var cal domain.Calendar
			if name := t.CalendarName(); name != "" {
				cal, err = s.retrieveCalendarTx(ctx, tx, name)
				if err != nil && err != domain.ErrCalendarNotFound {
					return err
				}
			}

			prevFire := t.GetPreviousFireTime()
			fireTime := *t.GetNextFireTime()
			scheduledTime := fireTime

			t.Triggered(cal)
			nextFire := t.GetNextFireTime()

			if job.ConcurrentExecutionDisallowed {
				if err := s.blockSiblingsTx(ctx, tx, t.JobKey(), t.Key()); err != nil {
					return err
				}
			}

			if nextFire == nil {
				t.SetState(domain.TriggerStateComplete)
			} else {
				t.SetState(domain.TriggerStateExecuting)
			}
			if err := s.persistFireStateTx(ctx, tx, t); err != nil {
				return err
			}
			if _, err := tx.Exec(ctx, `UPDATE qrtz_fired_triggers SET state='EXECUTING' WHERE sched_name=$1 AND trigger_name=$2 AND trigger_group=$3 AND instance_name=$4`,
				s.schedName, t.Key().Name, t.Key().Group, s.instanceName); err != nil {
				return err
			}

			bundle := &domain.TriggerFiredBundle{
				Trigger: t, Job: job, Calendar: cal, FireTime: fireTime, ScheduledTime: scheduledTime,
				PrevFireTime: prevFire, NextFireTime: nextFire,
			}
			if t.Key().Group == domain.RecoveringJobsGroup {
				if orig, ok := domain.ParseRecoveryTriggerName(t.Key().Name); ok {
					bundle.Recovering = true
					bundle.RecoveringKey = orig
				}
			}
			results = append(results, domain.TriggerFiredResult{Bundle: bundle})
		}
		return nil
	})
	return results, err
}

func (s *Store) retrieveJobTx(ctx context.Context, tx pgx.Tx, key domain.JobKey) (*domain.JobDetail, error) {
	row := tx.QueryRow(ctx, `
		SELECT description, job_type, job_data, is_durable, is_nonconcurrent, is_update_data, requests_recovery
		FROM qrtz_job_details WHERE sched_name=$1 AND job_name=$2 AND job_group=$3`,
		s.schedName, key.Name, key.Group)
	var desc, jobType string
	var data []byte
	var durable, nonconcurrent, updateData, recovery bool
	if err := row.Scan(&desc, &jobType, &data, &durable, &nonconcurrent, &updateData, &recovery); err != nil {
		if errNoRows(err) {
			return nil, domain.ErrJobNotFound
		}
		return nil, err
	}
	jobData, err := unmarshalJobData(data)
	if err != nil {
		return nil, err
	}
	return &domain.JobDetail{
		Key: key, Description: desc, JobType: jobType, JobData: jobData,
		Durable: durable, ConcurrentExecutionDisallowed: nonconcurrent,
		PersistJobDataAfterExecution: updateData, RequestsRecovery: recovery,
	}, nil
}

func (s *Store) blockSiblingsTx(ctx context.Context, tx pgx.Tx, jobKey domain.JobKey, firing domain.TriggerKey) error {
	tag, err := tx.Exec(ctx, `
		UPDATE qrtz_triggers SET trigger_state='BLOCKED'
		WHERE sched_name=$1 AND job_name=$2 AND job_group=$3 AND trigger_state='WAITING'
		  AND NOT (trigger_name=$4 AND trigger_group=$5)`,
		s.schedName, jobKey.Name, jobKey.Group, firing.Name, firing.Group)
	if err != nil {
		return err
	}
	metrics.BlockedTriggers.Add(float64(tag.RowsAffected()))
	return nil
}

// persistFireStateTx writes a trigger's next/prev fire time, state, and
// times-fired counter back to its core and subtype rows without touching
// job/calendar/pause bookkeeping — used after Triggered()/UpdateWithNewCalendar
// mutate an in-memory trigger that the core upsertTrigger path already owns.
func (s *Store) persistFireStateTx(ctx context.Context, tx pgx.Tx, t domain.Trigger) error {
	key := t.Key()
	_, err := tx.Exec(ctx, `
		UPDATE qrtz_triggers SET next_fire_time=$1, prev_fire_time=$2, trigger_state=$3
		WHERE sched_name=$4 AND trigger_name=$5 AND trigger_group=$6`,
		millisPtr(t.GetNextFireTime()), millisPtr(t.GetPreviousFireTime()), string(t.State()),
		s.schedName, key.Name, key.Group)
	if err != nil {
		return err
	}

	simple, cron, props := subtypeRowOf(t)
	switch {
	case simple != nil:
		_, err = tx.Exec(ctx, `UPDATE qrtz_simple_triggers SET times_triggered=$1 WHERE sched_name=$2 AND trigger_name=$3 AND trigger_group=$4`,
			simple.TimesTriggered, s.schedName, key.Name, key.Group)
	case cron != nil:
		// no mutable counters on a cron trigger
	case props != nil:
		_, err = tx.Exec(ctx, `UPDATE qrtz_simprop_triggers SET int2=$1, long1=$2 WHERE sched_name=$3 AND trigger_name=$4 AND trigger_group=$5`,
			props.Int2, props.Long1, s.schedName, key.Name, key.Group)
	}
	return err
}

// TriggeredJobComplete applies instruction, persists mutated job data if
// requested, unblocks siblings of a concurrent-disallowed job, and removes
// the FiredTrigger row (spec.md §4.5).
func (s *Store) TriggeredJobComplete(ctx context.Context, trig domain.Trigger, job *domain.JobDetail, instruction domain.CompletionInstruction) error {
	return s.withLock(ctx, LockTriggerAccess, func(ctx context.Context, tx pgx.Tx) error {
		if job != nil && job.PersistJobDataAfterExecution {
			if err := s.upsertJob(ctx, tx, job, true); err != nil {
				return err
			}
		}

		switch instruction {
		case domain.CompletionDeleteTrigger:
			if _, err := tx.Exec(ctx, `DELETE FROM qrtz_triggers WHERE sched_name=$1 AND trigger_name=$2 AND trigger_group=$3`,
				s.schedName, trig.Key().Name, trig.Key().Group); err != nil {
				return err
			}
			if err := s.deleteJobIfOrphanedTx(ctx, tx, trig.JobKey()); err != nil {
				return err
			}
		case domain.CompletionSetTriggerComplete:
			if err := s.setTriggerStateTx(ctx, tx, trig.Key(), func(domain.TriggerState) domain.TriggerState { return domain.TriggerStateComplete }); err != nil {
				return err
			}
		case domain.CompletionSetTriggerError:
			if err := s.setTriggerStateTx(ctx, tx, trig.Key(), func(domain.TriggerState) domain.TriggerState { return domain.TriggerStateError }); err != nil {
				return err
			}
		case domain.CompletionSetAllJobTriggersError, domain.CompletionSetAllJobTriggersComplete:
			state := domain.TriggerStateComplete
			if instruction == domain.CompletionSetAllJobTriggersError {
				state = domain.TriggerStateError
			}
			keys, err := s.jobTriggerKeys(ctx, tx, trig.JobKey())
			if err != nil {
				return err
			}
			for _, tk := range keys {
				if err := s.setTriggerStateTx(ctx, tx, tk, func(domain.TriggerState) domain.TriggerState { return state }); err != nil {
					return err
				}
			}
		}

		var nonconcurrent bool
		if err := tx.QueryRow(ctx, `SELECT is_nonconcurrent FROM qrtz_job_details WHERE sched_name=$1 AND job_name=$2 AND job_group=$3`,
			s.schedName, trig.JobKey().Name, trig.JobKey().Group).Scan(&nonconcurrent); err != nil && !errNoRows(err) {
			return err
		}
		if nonconcurrent {
			keys, err := s.jobTriggerKeys(ctx, tx, trig.JobKey())
			if err != nil {
				return err
			}
			for _, tk := range keys {
				wasBlocked := false
				if err := s.setTriggerStateTx(ctx, tx, tk, func(cur domain.TriggerState) domain.TriggerState {
					switch cur {
					case domain.TriggerStateBlocked:
						wasBlocked = true
						return domain.TriggerStateWaiting
					case domain.TriggerStatePausedBlocked:
						wasBlocked = true
						return domain.TriggerStatePaused
					default:
						return cur
					}
				}); err != nil {
					return err
				}
				if wasBlocked {
					metrics.BlockedTriggers.Dec()
				}
			}
		}

		_, err := tx.Exec(ctx, `DELETE FROM qrtz_fired_triggers WHERE sched_name=$1 AND trigger_name=$2 AND trigger_group=$3 AND instance_name=$4`,
			s.schedName, trig.Key().Name, trig.Key().Group, s.instanceName)
		return err
	})
}
