package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/coriolis-sched/coriolis/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

func (s *Store) StoreJobAndTrigger(ctx context.Context, job *domain.JobDetail, trig domain.Trigger) error {
	return s.withLock(ctx, LockTriggerAccess, func(ctx context.Context, tx pgx.Tx) error {
		if err := s.upsertJob(ctx, tx, job, true); err != nil {
			return err
		}
		return s.upsertTrigger(ctx, tx, trig)
	})
}

func (s *Store) StoreJob(ctx context.Context, job *domain.JobDetail, replaceExisting bool) error {
	return s.withLock(ctx, LockTriggerAccess, func(ctx context.Context, tx pgx.Tx) error {
		if !replaceExisting {
			exists, err := s.jobExists(ctx, tx, job.Key)
			if err != nil {
				return err
			}
			if exists {
				return domain.ErrObjectAlreadyExists
			}
		}
		return s.upsertJob(ctx, tx, job, replaceExisting)
	})
}

func (s *Store) upsertJob(ctx context.Context, tx pgx.Tx, job *domain.JobDetail, replaceExisting bool) error {
	data, err := marshalJobData(job.JobData)
	if err != nil {
		return err
	}
	conflict := "DO NOTHING"
	if replaceExisting {
		conflict = `DO UPDATE SET description = EXCLUDED.description, job_type = EXCLUDED.job_type,
			job_data = EXCLUDED.job_data, is_durable = EXCLUDED.is_durable,
			is_nonconcurrent = EXCLUDED.is_nonconcurrent, is_update_data = EXCLUDED.is_update_data,
			requests_recovery = EXCLUDED.requests_recovery`
	}
	_, err = tx.Exec(ctx, fmt.Sprintf(`
		INSERT INTO qrtz_job_details
			(sched_name, job_name, job_group, description, job_type, job_data,
			 is_durable, is_nonconcurrent, is_update_data, requests_recovery)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
		ON CONFLICT (sched_name, job_name, job_group) %s`, conflict),
		s.schedName, job.Key.Name, job.Key.Group, job.Description, job.JobType, data,
		job.Durable, job.ConcurrentExecutionDisallowed, job.PersistJobDataAfterExecution, job.RequestsRecovery)
	if err != nil {
		return &domain.JobPersistenceError{Op: "store job", Err: err}
	}
	return nil
}

func (s *Store) jobExists(ctx context.Context, tx pgx.Tx, key domain.JobKey) (bool, error) {
	var exists bool
	err := tx.QueryRow(ctx, `
		SELECT EXISTS(SELECT 1 FROM qrtz_job_details WHERE sched_name=$1 AND job_name=$2 AND job_group=$3)`,
		s.schedName, key.Name, key.Group).Scan(&exists)
	return exists, err
}

func (s *Store) RemoveJob(ctx context.Context, key domain.JobKey) (bool, error) {
	var removed bool
	err := s.withLock(ctx, LockTriggerAccess, func(ctx context.Context, tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `DELETE FROM qrtz_triggers WHERE sched_name=$1 AND job_name=$2 AND job_group=$3`,
			s.schedName, key.Name, key.Group)
		if err != nil {
			return err
		}
		_ = tag
		tag, err = tx.Exec(ctx, `DELETE FROM qrtz_job_details WHERE sched_name=$1 AND job_name=$2 AND job_group=$3`,
			s.schedName, key.Name, key.Group)
		if err != nil {
			return err
		}
		removed = tag.RowsAffected() > 0
		return nil
	})
	return removed, err
}

// deleteJobIfOrphanedTx removes a job's qrtz_job_details row once no trigger
// references it anymore, matching Quartz's non-durable job lifecycle: a
// durable job always survives its last trigger, a non-durable one doesn't.
func (s *Store) deleteJobIfOrphanedTx(ctx context.Context, tx pgx.Tx, key domain.JobKey) error {
	var durable bool
	err := tx.QueryRow(ctx, `
		SELECT is_durable FROM qrtz_job_details WHERE sched_name=$1 AND job_name=$2 AND job_group=$3`,
		s.schedName, key.Name, key.Group).Scan(&durable)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil
	}
	if err != nil || durable {
		return err
	}

	var remaining int
	if err := tx.QueryRow(ctx, `
		SELECT count(*) FROM qrtz_triggers WHERE sched_name=$1 AND job_name=$2 AND job_group=$3`,
		s.schedName, key.Name, key.Group).Scan(&remaining); err != nil {
		return err
	}
	if remaining > 0 {
		return nil
	}
	_, err = tx.Exec(ctx, `DELETE FROM qrtz_job_details WHERE sched_name=$1 AND job_name=$2 AND job_group=$3`,
		s.schedName, key.Name, key.Group)
	return err
}

func (s *Store) RetrieveJob(ctx context.Context, key domain.JobKey) (*domain.JobDetail, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT description, job_type, job_data, is_durable, is_nonconcurrent, is_update_data, requests_recovery
		FROM qrtz_job_details WHERE sched_name=$1 AND job_name=$2 AND job_group=$3`,
		s.schedName, key.Name, key.Group)

	var desc, jobType string
	var data []byte
	var durable, nonconcurrent, updateData, recovery bool
	if err := row.Scan(&desc, &jobType, &data, &durable, &nonconcurrent, &updateData, &recovery); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrJobNotFound
		}
		return nil, &domain.JobPersistenceError{Op: "retrieve job", Err: err}
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

func (s *Store) CheckJobExists(ctx context.Context, key domain.JobKey) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx, `
		SELECT EXISTS(SELECT 1 FROM qrtz_job_details WHERE sched_name=$1 AND job_name=$2 AND job_group=$3)`,
		s.schedName, key.Name, key.Group).Scan(&exists)
	return exists, err
}

func (s *Store) GetJobKeys(ctx context.Context, group string) ([]domain.JobKey, error) {
	var rows pgx.Rows
	var err error
	if group == "" {
		rows, err = s.pool.Query(ctx, `SELECT job_name, job_group FROM qrtz_job_details WHERE sched_name=$1`, s.schedName)
	} else {
		rows, err = s.pool.Query(ctx, `SELECT job_name, job_group FROM qrtz_job_details WHERE sched_name=$1 AND job_group=$2`, s.schedName, group)
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.JobKey
	for rows.Next() {
		var k domain.JobKey
		if err := rows.Scan(&k.Name, &k.Group); err != nil {
			return nil, err
		}
		out = append(out, k)
	}
	return out, rows.Err()
}

func (s *Store) GetJobGroupNames(ctx context.Context) ([]string, error) {
	rows, err := s.pool.Query(ctx, `SELECT DISTINCT job_group FROM qrtz_job_details WHERE sched_name=$1`, s.schedName)
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

// translatePgErr maps a unique-violation into the store's sentinel error.
func translatePgErr(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return domain.ErrObjectAlreadyExists
	}
	return err
}
