package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/coriolis-sched/coriolis/internal/domain"
	"github.com/coriolis-sched/coriolis/internal/trigger"
	"github.com/jackc/pgx/v5"
)

func (s *Store) StoreCalendar(ctx context.Context, name string, cal domain.Calendar, replaceExisting, updateTriggers bool) error {
	return s.withLock(ctx, LockTriggerAccess, func(ctx context.Context, tx pgx.Tx) error {
		if !replaceExisting {
			var exists bool
			if err := tx.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM qrtz_calendars WHERE sched_name=$1 AND calendar_name=$2)`,
				s.schedName, name).Scan(&exists); err != nil {
				return err
			}
			if exists {
				return domain.ErrObjectAlreadyExists
			}
		}
		data, err := marshalCalendarJSON(cal)
		if err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, `
			INSERT INTO qrtz_calendars (sched_name, calendar_name, calendar) VALUES ($1,$2,$3)
			ON CONFLICT (sched_name, calendar_name) DO UPDATE SET calendar = EXCLUDED.calendar`,
			s.schedName, name, data); err != nil {
			return err
		}
		if !updateTriggers {
			return nil
		}

		rows, err := tx.Query(ctx, `SELECT trigger_name, trigger_group FROM qrtz_triggers WHERE sched_name=$1 AND calendar_name=$2`,
			s.schedName, name)
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
				return err
			}
			trig.UpdateWithNewCalendar(cal, 0)
			if err := s.persistFireStateTx(ctx, tx, trig); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *Store) RemoveCalendar(ctx context.Context, name string) (bool, error) {
	var removed bool
	err := s.withLock(ctx, LockTriggerAccess, func(ctx context.Context, tx pgx.Tx) error {
		var inUse bool
		if err := tx.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM qrtz_triggers WHERE sched_name=$1 AND calendar_name=$2)`,
			s.schedName, name).Scan(&inUse); err != nil {
			return err
		}
		if inUse {
			return domain.ErrCalendarInUse
		}
		tag, err := tx.Exec(ctx, `DELETE FROM qrtz_calendars WHERE sched_name=$1 AND calendar_name=$2`, s.schedName, name)
		if err != nil {
			return err
		}
		removed = tag.RowsAffected() > 0
		return nil
	})
	return removed, err
}

func (s *Store) RetrieveCalendar(ctx context.Context, name string) (domain.Calendar, error) {
	return s.retrieveCalendarConn(ctx, s.pool, name)
}

func (s *Store) retrieveCalendarTx(ctx context.Context, tx pgx.Tx, name string) (domain.Calendar, error) {
	return s.retrieveCalendarConn(ctx, tx, name)
}

func (s *Store) retrieveCalendarConn(ctx context.Context, q queryRower, name string) (domain.Calendar, error) {
	var data []byte
	err := q.QueryRow(ctx, `SELECT calendar FROM qrtz_calendars WHERE sched_name=$1 AND calendar_name=$2`, s.schedName, name).Scan(&data)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrCalendarNotFound
		}
		return nil, err
	}
	return unmarshalCalendarJSON(data)
}

func (s *Store) CalendarExists(ctx context.Context, name string) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM qrtz_calendars WHERE sched_name=$1 AND calendar_name=$2)`,
		s.schedName, name).Scan(&exists)
	return exists, err
}

func (s *Store) GetCalendarNames(ctx context.Context) ([]string, error) {
	rows, err := s.pool.Query(ctx, `SELECT calendar_name FROM qrtz_calendars WHERE sched_name=$1`, s.schedName)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var n string
		if err := rows.Scan(&n); err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

// Checkin updates this instance's heartbeat row under STATE_ACCESS.
func (s *Store) Checkin(ctx context.Context, instanceName string, interval time.Duration) error {
	return s.withLock(ctx, LockStateAccess, func(ctx context.Context, tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
			INSERT INTO qrtz_scheduler_state (sched_name, instance_name, last_checkin_time, checkin_interval)
			VALUES ($1,$2,$3,$4)
			ON CONFLICT (sched_name, instance_name) DO UPDATE SET
				last_checkin_time = EXCLUDED.last_checkin_time, checkin_interval = EXCLUDED.checkin_interval`,
			s.schedName, instanceName, millis(time.Now()), interval.Milliseconds())
		return err
	})
}

func (s *Store) GetSchedulerStates(ctx context.Context) ([]domain.SchedulerState, error) {
	rows, err := s.pool.Query(ctx, `SELECT instance_name, last_checkin_time, checkin_interval FROM qrtz_scheduler_state WHERE sched_name=$1`, s.schedName)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []domain.SchedulerState
	for rows.Next() {
		var inst string
		var last, interval int64
		if err := rows.Scan(&inst, &last, &interval); err != nil {
			return nil, err
		}
		out = append(out, domain.SchedulerState{
			SchedName: s.schedName, InstanceName: inst,
			LastCheckinTime: fromMillis(last), CheckinInterval: time.Duration(interval) * time.Millisecond,
		})
	}
	return out, rows.Err()
}

func (s *Store) DeleteSchedulerState(ctx context.Context, instanceName string) error {
	return s.withLock(ctx, LockStateAccess, func(ctx context.Context, tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `DELETE FROM qrtz_scheduler_state WHERE sched_name=$1 AND instance_name=$2`, s.schedName, instanceName)
		return err
	})
}

// RecoverSchedulerState restores instanceName's orphaned ACQUIRED/EXECUTING
// triggers to WAITING, schedules a one-shot recovery trigger (group
// domain.RecoveringJobsGroup) for every fired row whose job requested
// recovery, and deletes that instance's qrtz_fired_triggers rows. Called
// once at startup for the instance's own name, and by internal/cluster's
// Manager for a peer it has just declared dead (spec.md §4.3 "Cluster
// recovery", §8 scenario 6).
func (s *Store) RecoverSchedulerState(ctx context.Context, instanceName string) error {
	return s.withLock(ctx, LockTriggerAccess, func(ctx context.Context, tx pgx.Tx) error {
		rows, err := tx.Query(ctx, `
			SELECT entry_id, trigger_name, trigger_group, job_name, job_group, fired_time, requests_recovery
			FROM qrtz_fired_triggers WHERE sched_name=$1 AND instance_name=$2`, s.schedName, instanceName)
		if err != nil {
			return err
		}
		type firedRow struct {
			entryID  string
			trigKey  domain.TriggerKey
			jobKey   domain.JobKey
			firedAt  int64
			recovery bool
		}
		var firings []firedRow
		for rows.Next() {
			var fr firedRow
			if err := rows.Scan(&fr.entryID, &fr.trigKey.Name, &fr.trigKey.Group, &fr.jobKey.Name, &fr.jobKey.Group, &fr.firedAt, &fr.recovery); err != nil {
				rows.Close()
				return err
			}
			firings = append(firings, fr)
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return err
		}

		for _, fr := range firings {
			if _, err := tx.Exec(ctx, `
				UPDATE qrtz_triggers SET trigger_state='WAITING'
				WHERE sched_name=$1 AND trigger_name=$2 AND trigger_group=$3 AND trigger_state IN ('ACQUIRED','EXECUTING')`,
				s.schedName, fr.trigKey.Name, fr.trigKey.Group); err != nil {
				return err
			}
			if !fr.recovery {
				continue
			}
			var jobExists bool
			if err := tx.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM qrtz_job_details WHERE sched_name=$1 AND job_name=$2 AND job_group=$3)`,
				s.schedName, fr.jobKey.Name, fr.jobKey.Group).Scan(&jobExists); err != nil {
				return err
			}
			if !jobExists {
				continue
			}
			recKey := domain.NewTriggerKey(domain.RecoveryTriggerName(fr.trigKey, fr.entryID), domain.RecoveringJobsGroup)
			recTrig := trigger.NewSimple(recKey, fr.jobKey, fromMillis(fr.firedAt), 0, 0)
			if err := s.upsertTrigger(ctx, tx, recTrig); err != nil {
				return err
			}
		}
		_, err = tx.Exec(ctx, `DELETE FROM qrtz_fired_triggers WHERE sched_name=$1 AND instance_name=$2`, s.schedName, instanceName)
		return err
	})
}
