package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/coriolis-sched/coriolis/internal/domain"
	"github.com/jackc/pgx/v5"
)

func (s *Store) StoreTrigger(ctx context.Context, trig domain.Trigger, replaceExisting bool) error {
	return s.withLock(ctx, LockTriggerAccess, func(ctx context.Context, tx pgx.Tx) error {
		if !replaceExisting {
			exists, err := s.triggerExistsTx(ctx, tx, trig.Key())
			if err != nil {
				return err
			}
			if exists {
				return domain.ErrObjectAlreadyExists
			}
		}
		jobExists, err := s.jobExists(ctx, tx, trig.JobKey())
		if err != nil {
			return err
		}
		if !jobExists {
			return domain.ErrJobNotFound
		}
		return s.upsertTrigger(ctx, tx, trig)
	})
}

// upsertTrigger deletes any existing subtype row (a replaceTrigger may
// change trigger type) and writes the core row plus the new subtype row.
func (s *Store) upsertTrigger(ctx context.Context, tx pgx.Tx, trig domain.Trigger) error {
	var cal domain.Calendar
	if name := trig.CalendarName(); name != "" {
		var err error
		cal, err = s.retrieveCalendarTx(ctx, tx, name)
		if err != nil && !errors.Is(err, domain.ErrCalendarNotFound) {
			return err
		}
	}
	if trig.GetNextFireTime() == nil && trig.State() != domain.TriggerStateComplete {
		trig.ComputeFirstFireTime(cal)
	}
	if paused, err := s.groupIsPausedTx(ctx, tx, trig.Key().Group); err == nil && paused {
		trig.SetState(domain.TriggerStatePaused)
	}

	row, err := coreRowOf(trig)
	if err != nil {
		return err
	}
	key := trig.Key()

	for _, table := range []string{"qrtz_simple_triggers", "qrtz_cron_triggers", "qrtz_simprop_triggers", "qrtz_blob_triggers"} {
		if _, err := tx.Exec(ctx, fmt.Sprintf(`DELETE FROM %s WHERE sched_name=$1 AND trigger_name=$2 AND trigger_group=$3`, table),
			s.schedName, key.Name, key.Group); err != nil {
			return err
		}
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO qrtz_triggers
			(sched_name, trigger_name, trigger_group, job_name, job_group, description,
			 next_fire_time, prev_fire_time, priority, trigger_state, trigger_type,
			 start_time, end_time, calendar_name, misfire_instr)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)
		ON CONFLICT (sched_name, trigger_name, trigger_group) DO UPDATE SET
			job_name=EXCLUDED.job_name, job_group=EXCLUDED.job_group, description=EXCLUDED.description,
			next_fire_time=EXCLUDED.next_fire_time, prev_fire_time=EXCLUDED.prev_fire_time,
			priority=EXCLUDED.priority, trigger_state=EXCLUDED.trigger_state, trigger_type=EXCLUDED.trigger_type,
			start_time=EXCLUDED.start_time, end_time=EXCLUDED.end_time,
			calendar_name=EXCLUDED.calendar_name, misfire_instr=EXCLUDED.misfire_instr`,
		s.schedName, row.TriggerName, row.TriggerGroup, row.JobName, row.JobGroup, row.Description,
		row.NextFireTime, row.PrevFireTime, row.Priority, row.TriggerState, row.TriggerType,
		row.StartTime, row.EndTime, nullableString(row.CalendarName), row.MisfireInstr)
	if err != nil {
		return translatePgErr(err)
	}

	simple, cron, props := subtypeRowOf(trig)
	switch {
	case simple != nil:
		_, err = tx.Exec(ctx, `
			INSERT INTO qrtz_simple_triggers (sched_name, trigger_name, trigger_group, repeat_count, repeat_interval, times_triggered)
			VALUES ($1,$2,$3,$4,$5,$6)`,
			s.schedName, key.Name, key.Group, simple.RepeatCount, simple.RepeatInterval, simple.TimesTriggered)
	case cron != nil:
		_, err = tx.Exec(ctx, `
			INSERT INTO qrtz_cron_triggers (sched_name, trigger_name, trigger_group, cron_expression, time_zone_id)
			VALUES ($1,$2,$3,$4,$5)`,
			s.schedName, key.Name, key.Group, cron.Expression, cron.TimeZoneID)
	case props != nil:
		_, err = tx.Exec(ctx, `
			INSERT INTO qrtz_simprop_triggers
				(sched_name, trigger_name, trigger_group, str1, str2, str3, int1, int2, long1, long2, bool1, bool2, time_zone_id)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)`,
			s.schedName, key.Name, key.Group, props.Str1, props.Str2, props.Str3,
			props.Int1, props.Int2, props.Long1, props.Long2, props.Bool1, props.Bool2, props.TimeZoneID)
	}
	return err
}

func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func (s *Store) triggerExistsTx(ctx context.Context, tx pgx.Tx, key domain.TriggerKey) (bool, error) {
	var exists bool
	err := tx.QueryRow(ctx, `
		SELECT EXISTS(SELECT 1 FROM qrtz_triggers WHERE sched_name=$1 AND trigger_name=$2 AND trigger_group=$3)`,
		s.schedName, key.Name, key.Group).Scan(&exists)
	return exists, err
}

// RemoveTrigger deletes a trigger and, if that leaves its job with no other
// trigger and not durable, deletes the orphaned job too.
func (s *Store) RemoveTrigger(ctx context.Context, key domain.TriggerKey) (bool, error) {
	var removed bool
	err := s.withLock(ctx, LockTriggerAccess, func(ctx context.Context, tx pgx.Tx) error {
		var jobName, jobGroup string
		err := tx.QueryRow(ctx, `
			DELETE FROM qrtz_triggers WHERE sched_name=$1 AND trigger_name=$2 AND trigger_group=$3
			RETURNING job_name, job_group`,
			s.schedName, key.Name, key.Group).Scan(&jobName, &jobGroup)
		if errors.Is(err, pgx.ErrNoRows) {
			return nil
		}
		if err != nil {
			return err
		}
		removed = true
		return s.deleteJobIfOrphanedTx(ctx, tx, domain.NewJobKey(jobName, jobGroup))
	})
	return removed, err
}

func (s *Store) ReplaceTrigger(ctx context.Context, key domain.TriggerKey, newTrigger domain.Trigger) (bool, error) {
	var replaced bool
	err := s.withLock(ctx, LockTriggerAccess, func(ctx context.Context, tx pgx.Tx) error {
		exists, err := s.triggerExistsTx(ctx, tx, key)
		if err != nil || !exists {
			return err
		}
		if key != newTrigger.Key() {
			if _, err := tx.Exec(ctx, `DELETE FROM qrtz_triggers WHERE sched_name=$1 AND trigger_name=$2 AND trigger_group=$3`,
				s.schedName, key.Name, key.Group); err != nil {
				return err
			}
		}
		if err := s.upsertTrigger(ctx, tx, newTrigger); err != nil {
			return err
		}
		replaced = true
		return nil
	})
	return replaced, err
}

func (s *Store) RetrieveTrigger(ctx context.Context, key domain.TriggerKey) (domain.Trigger, error) {
	return s.retrieveTriggerConn(ctx, s.pool, key)
}

// queryRower is satisfied by both *pgxpool.Pool and pgx.Tx.
type queryRower interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func (s *Store) retrieveTriggerConn(ctx context.Context, q queryRower, key domain.TriggerKey) (domain.Trigger, error) {
	var row triggerRow
	var calName *string
	err := q.QueryRow(ctx, `
		SELECT trigger_name, trigger_group, job_name, job_group, description, next_fire_time, prev_fire_time,
		       priority, trigger_state, trigger_type, start_time, end_time, calendar_name, misfire_instr
		FROM qrtz_triggers WHERE sched_name=$1 AND trigger_name=$2 AND trigger_group=$3`,
		s.schedName, key.Name, key.Group).Scan(
		&row.TriggerName, &row.TriggerGroup, &row.JobName, &row.JobGroup, &row.Description,
		&row.NextFireTime, &row.PrevFireTime, &row.Priority, &row.TriggerState, &row.TriggerType,
		&row.StartTime, &row.EndTime, &calName, &row.MisfireInstr)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrTriggerNotFound
		}
		return nil, &domain.JobPersistenceError{Op: "retrieve trigger", Err: err}
	}
	if calName != nil {
		row.CalendarName = *calName
	}

	var simple *simpleRow
	var cron *cronRow
	var props *propsRow

	switch row.TriggerType {
	case typeSimple:
		simple = &simpleRow{}
		err = q.QueryRow(ctx, `SELECT repeat_count, repeat_interval, times_triggered FROM qrtz_simple_triggers
			WHERE sched_name=$1 AND trigger_name=$2 AND trigger_group=$3`, s.schedName, key.Name, key.Group).
			Scan(&simple.RepeatCount, &simple.RepeatInterval, &simple.TimesTriggered)
	case typeCron:
		cron = &cronRow{}
		err = q.QueryRow(ctx, `SELECT cron_expression, time_zone_id FROM qrtz_cron_triggers
			WHERE sched_name=$1 AND trigger_name=$2 AND trigger_group=$3`, s.schedName, key.Name, key.Group).
			Scan(&cron.Expression, &cron.TimeZoneID)
	case typeCalInt, typeDailyI, typeCustomCal:
		props = &propsRow{}
		err = q.QueryRow(ctx, `SELECT str1, str2, str3, int1, int2, long1, long2, bool1, bool2, time_zone_id FROM qrtz_simprop_triggers
			WHERE sched_name=$1 AND trigger_name=$2 AND trigger_group=$3`, s.schedName, key.Name, key.Group).
			Scan(&props.Str1, &props.Str2, &props.Str3, &props.Int1, &props.Int2, &props.Long1, &props.Long2,
				&props.Bool1, &props.Bool2, &props.TimeZoneID)
	}
	if err != nil {
		return nil, fmt.Errorf("postgres store: load trigger subtype row for %s: %w", key, err)
	}

	return buildTrigger(row, simple, cron, props)
}

func (s *Store) CheckTriggerExists(ctx context.Context, key domain.TriggerKey) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx, `
		SELECT EXISTS(SELECT 1 FROM qrtz_triggers WHERE sched_name=$1 AND trigger_name=$2 AND trigger_group=$3)`,
		s.schedName, key.Name, key.Group).Scan(&exists)
	return exists, err
}

func (s *Store) GetTriggerKeys(ctx context.Context, group string) ([]domain.TriggerKey, error) {
	var rows pgx.Rows
	var err error
	if group == "" {
		rows, err = s.pool.Query(ctx, `SELECT trigger_name, trigger_group FROM qrtz_triggers WHERE sched_name=$1`, s.schedName)
	} else {
		rows, err = s.pool.Query(ctx, `SELECT trigger_name, trigger_group FROM qrtz_triggers WHERE sched_name=$1 AND trigger_group=$2`, s.schedName, group)
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []domain.TriggerKey
	for rows.Next() {
		var k domain.TriggerKey
		if err := rows.Scan(&k.Name, &k.Group); err != nil {
			return nil, err
		}
		out = append(out, k)
	}
	return out, rows.Err()
}

func (s *Store) GetTriggerGroupNames(ctx context.Context) ([]string, error) {
	rows, err := s.pool.Query(ctx, `SELECT DISTINCT trigger_group FROM qrtz_triggers WHERE sched_name=$1`, s.schedName)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var g string
		if err := rows.Scan(&g); err != nil {
			return nil, err
		}
		out = append(out, g)
	}
	return out, rows.Err()
}

func (s *Store) GetTriggerState(ctx context.Context, key domain.TriggerKey) (domain.TriggerState, error) {
	var state string
	err := s.pool.QueryRow(ctx, `SELECT trigger_state FROM qrtz_triggers WHERE sched_name=$1 AND trigger_name=$2 AND trigger_group=$3`,
		s.schedName, key.Name, key.Group).Scan(&state)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.TriggerStateNone, nil
	}
	if err != nil {
		return domain.TriggerStateNone, err
	}
	return domain.TriggerState(state), nil
}

func (s *Store) groupIsPausedTx(ctx context.Context, tx pgx.Tx, group string) (bool, error) {
	var exists bool
	err := tx.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM qrtz_paused_trigger_grps WHERE sched_name=$1 AND trigger_group=$2)`,
		s.schedName, group).Scan(&exists)
	return exists, err
}

func (s *Store) setTriggerStateTx(ctx context.Context, tx pgx.Tx, key domain.TriggerKey, newState func(current domain.TriggerState) domain.TriggerState) error {
	var current string
	err := tx.QueryRow(ctx, `SELECT trigger_state FROM qrtz_triggers WHERE sched_name=$1 AND trigger_name=$2 AND trigger_group=$3`,
		s.schedName, key.Name, key.Group).Scan(&current)
	if err != nil {
		return err
	}
	next := newState(domain.TriggerState(current))
	_, err = tx.Exec(ctx, `UPDATE qrtz_triggers SET trigger_state=$1 WHERE sched_name=$2 AND trigger_name=$3 AND trigger_group=$4`,
		string(next), s.schedName, key.Name, key.Group)
	return err
}

func pausedState(current domain.TriggerState) domain.TriggerState {
	if current == domain.TriggerStateBlocked {
		return domain.TriggerStatePausedBlocked
	}
	if current == domain.TriggerStateComplete {
		return current
	}
	return domain.TriggerStatePaused
}

func resumedState(current domain.TriggerState) domain.TriggerState {
	if current == domain.TriggerStatePausedBlocked {
		return domain.TriggerStateBlocked
	}
	if current == domain.TriggerStatePaused {
		return domain.TriggerStateWaiting
	}
	return current
}

func (s *Store) PauseTrigger(ctx context.Context, key domain.TriggerKey) error {
	return s.withLock(ctx, LockTriggerAccess, func(ctx context.Context, tx pgx.Tx) error {
		return s.setTriggerStateTx(ctx, tx, key, pausedState)
	})
}

func (s *Store) PauseTriggerGroup(ctx context.Context, group string) error {
	return s.withLock(ctx, LockTriggerAccess, func(ctx context.Context, tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `
			INSERT INTO qrtz_paused_trigger_grps (sched_name, trigger_group) VALUES ($1,$2)
			ON CONFLICT DO NOTHING`, s.schedName, group); err != nil {
			return err
		}
		return s.forEachTriggerInGroup(ctx, tx, group, pausedState)
	})
}

func (s *Store) ResumeTrigger(ctx context.Context, key domain.TriggerKey) error {
	return s.withLock(ctx, LockTriggerAccess, func(ctx context.Context, tx pgx.Tx) error {
		return s.setTriggerStateTx(ctx, tx, key, resumedState)
	})
}

func (s *Store) ResumeTriggerGroup(ctx context.Context, group string) error {
	return s.withLock(ctx, LockTriggerAccess, func(ctx context.Context, tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM qrtz_paused_trigger_grps WHERE sched_name=$1 AND trigger_group=$2`,
			s.schedName, group); err != nil {
			return err
		}
		return s.forEachTriggerInGroup(ctx, tx, group, resumedState)
	})
}

func (s *Store) forEachTriggerInGroup(ctx context.Context, tx pgx.Tx, group string, newState func(domain.TriggerState) domain.TriggerState) error {
	rows, err := tx.Query(ctx, `SELECT trigger_name, trigger_state FROM qrtz_triggers WHERE sched_name=$1 AND trigger_group=$2`,
		s.schedName, group)
	if err != nil {
		return err
	}
	type pair struct{ name, state string }
	var pairs []pair
	for rows.Next() {
		var p pair
		if err := rows.Scan(&p.name, &p.state); err != nil {
			rows.Close()
			return err
		}
		pairs = append(pairs, p)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}
	for _, p := range pairs {
		next := newState(domain.TriggerState(p.state))
		if _, err := tx.Exec(ctx, `UPDATE qrtz_triggers SET trigger_state=$1 WHERE sched_name=$2 AND trigger_name=$3 AND trigger_group=$4`,
			string(next), s.schedName, p.name, group); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) jobTriggerKeys(ctx context.Context, tx pgx.Tx, key domain.JobKey) ([]domain.TriggerKey, error) {
	rows, err := tx.Query(ctx, `SELECT trigger_name, trigger_group FROM qrtz_triggers WHERE sched_name=$1 AND job_name=$2 AND job_group=$3`,
		s.schedName, key.Name, key.Group)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []domain.TriggerKey
	for rows.Next() {
		var k domain.TriggerKey
		if err := rows.Scan(&k.Name, &k.Group); err != nil {
			return nil, err
		}
		out = append(out, k)
	}
	return out, rows.Err()
}

func (s *Store) PauseJob(ctx context.Context, key domain.JobKey) error {
	return s.withLock(ctx, LockTriggerAccess, func(ctx context.Context, tx pgx.Tx) error {
		keys, err := s.jobTriggerKeys(ctx, tx, key)
		if err != nil {
			return err
		}
		for _, tk := range keys {
			if err := s.setTriggerStateTx(ctx, tx, tk, pausedState); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *Store) PauseJobGroup(ctx context.Context, group string) error {
	return s.withLock(ctx, LockTriggerAccess, func(ctx context.Context, tx pgx.Tx) error {
		rows, err := tx.Query(ctx, `SELECT job_name FROM qrtz_job_details WHERE sched_name=$1 AND job_group=$2`, s.schedName, group)
		if err != nil {
			return err
		}
		var names []string
		for rows.Next() {
			var n string
			if err := rows.Scan(&n); err != nil {
				rows.Close()
				return err
			}
			names = append(names, n)
		}
		rows.Close()
		for _, n := range names {
			keys, err := s.jobTriggerKeys(ctx, tx, domain.JobKey{Name: n, Group: group})
			if err != nil {
				return err
			}
			for _, tk := range keys {
				if err := s.setTriggerStateTx(ctx, tx, tk, pausedState); err != nil {
					return err
				}
			}
		}
		return nil
	})
}

func (s *Store) ResumeJob(ctx context.Context, key domain.JobKey) error {
	return s.withLock(ctx, LockTriggerAccess, func(ctx context.Context, tx pgx.Tx) error {
		keys, err := s.jobTriggerKeys(ctx, tx, key)
		if err != nil {
			return err
		}
		for _, tk := range keys {
			if err := s.setTriggerStateTx(ctx, tx, tk, resumedState); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *Store) ResumeJobGroup(ctx context.Context, group string) error {
	return s.withLock(ctx, LockTriggerAccess, func(ctx context.Context, tx pgx.Tx) error {
		rows, err := tx.Query(ctx, `SELECT job_name FROM qrtz_job_details WHERE sched_name=$1 AND job_group=$2`, s.schedName, group)
		if err != nil {
			return err
		}
		var names []string
		for rows.Next() {
			var n string
			if err := rows.Scan(&n); err != nil {
				rows.Close()
				return err
			}
			names = append(names, n)
		}
		rows.Close()
		for _, n := range names {
			keys, err := s.jobTriggerKeys(ctx, tx, domain.JobKey{Name: n, Group: group})
			if err != nil {
				return err
			}
			for _, tk := range keys {
				if err := s.setTriggerStateTx(ctx, tx, tk, resumedState); err != nil {
					return err
				}
			}
		}
		return nil
	})
}

func (s *Store) PauseAll(ctx context.Context) error {
	return s.withLock(ctx, LockTriggerAccess, func(ctx context.Context, tx pgx.Tx) error {
		groups, err := s.allTriggerGroupsTx(ctx, tx)
		if err != nil {
			return err
		}
		for _, g := range groups {
			if _, err := tx.Exec(ctx, `INSERT INTO qrtz_paused_trigger_grps (sched_name, trigger_group) VALUES ($1,$2) ON CONFLICT DO NOTHING`,
				s.schedName, g); err != nil {
				return err
			}
			if err := s.forEachTriggerInGroup(ctx, tx, g, pausedState); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *Store) ResumeAll(ctx context.Context) error {
	return s.withLock(ctx, LockTriggerAccess, func(ctx context.Context, tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM qrtz_paused_trigger_grps WHERE sched_name=$1`, s.schedName); err != nil {
			return err
		}
		groups, err := s.allTriggerGroupsTx(ctx, tx)
		if err != nil {
			return err
		}
		for _, g := range groups {
			if err := s.forEachTriggerInGroup(ctx, tx, g, resumedState); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *Store) allTriggerGroupsTx(ctx context.Context, tx pgx.Tx) ([]string, error) {
	rows, err := tx.Query(ctx, `SELECT DISTINCT trigger_group FROM qrtz_triggers WHERE sched_name=$1`, s.schedName)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var g string
		if err := rows.Scan(&g); err != nil {
			return nil, err
		}
		out = append(out, g)
	}
	return out, rows.Err()
}
