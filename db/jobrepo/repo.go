package jobrepo

import (
	"context"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/pkg/errors"
	"github.com/reysilvaa/rosantibike-motorent/core"
	"github.com/reysilvaa/rosantibike-motorent/core/schedule"
	"github.com/reysilvaa/rosantibike-motorent/db"
)

type dbRepo struct {
	conn core.Conn
}

func NewPostgresRepo(conn core.Conn) schedule.Store {
	return &dbRepo{conn: conn}
}

const jobColumns = `id, transaction_id, kind, fire_at, payload, status, attempts, last_error, token, created_at, updated_at`

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanJob(row scanner) (schedule.Job, error) {
	j := schedule.Job{}
	var kind, status string
	err := row.Scan(&j.ID, &j.TransactionID, &kind, &j.FireAt, &j.Payload, &status, &j.Attempts, &j.LastError,
		&j.Token, &j.Created, &j.Updated)
	j.Kind = schedule.Kind(kind)
	j.Status = schedule.Status(status)
	return j, err
}

func (d *dbRepo) UpsertJob(ctx context.Context, job *schedule.Job) error {
	m := db.StartMetric("UpsertJob")
	err := d.conn.QueryRow(ctx, `
		INSERT INTO scheduled_jobs (transaction_id, kind, fire_at, payload, status, attempts, last_error, token, created_at, updated_at)
		                    VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (transaction_id, kind) DO UPDATE
		    SET fire_at = $3, payload = $4, status = $5, attempts = $6, last_error = $7, token = $8, updated_at = $10
		RETURNING id, created_at;`,
		job.TransactionID, string(job.Kind), job.FireAt, job.Payload, string(job.Status), job.Attempts,
		job.LastError, job.Token, job.Created, job.Updated).Scan(&job.ID, &job.Created)
	m.Complete(err)
	if err != nil {
		return errors.WithStack(err)
	}
	return nil
}

func (d *dbRepo) GetJob(ctx context.Context, key schedule.Key) (schedule.Job, error) {
	m := db.StartMetric("GetJob")
	query, args, err := db.Builder.Select(jobColumns).
		From("scheduled_jobs").
		Where(squirrel.Eq{"transaction_id": key.TransactionID, "kind": string(key.Kind)}).
		ToSql()
	if err != nil {
		m.Complete(err)
		return schedule.Job{}, errors.WithStack(err)
	}

	j, err := scanJob(d.conn.QueryRow(ctx, query, args...))
	m.Complete(err)
	if err != nil {
		return schedule.Job{}, db.NotFound(err)
	}
	return j, nil
}

func (d *dbRepo) GetPendingJobs(ctx context.Context) ([]schedule.Job, error) {
	m := db.StartMetric("GetPendingJobs")
	query, args, err := db.Builder.Select(jobColumns).
		From("scheduled_jobs").
		Where(squirrel.Eq{"status": string(schedule.Pending)}).
		OrderBy("fire_at").
		ToSql()
	if err != nil {
		m.Complete(err)
		return nil, errors.WithStack(err)
	}

	rows, err := d.conn.Query(ctx, query, args...)
	if err != nil {
		m.Complete(err)
		return nil, errors.WithStack(err)
	}
	defer rows.Close()

	jobs := make([]schedule.Job, 0)
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			m.Complete(err)
			return nil, errors.WithStack(err)
		}
		jobs = append(jobs, j)
	}
	if err = rows.Err(); err != nil {
		m.Complete(err)
		return nil, errors.WithStack(err)
	}

	m.Complete(nil)
	return jobs, nil
}

func (d *dbRepo) UpdateJob(ctx context.Context, job schedule.Job) error {
	m := db.StartMetric("UpdateJob")
	ct, err := d.conn.Exec(ctx, `
		UPDATE scheduled_jobs
		   SET status = $4, attempts = $5, fire_at = $6, last_error = $7, updated_at = $8
		 WHERE transaction_id = $1 AND kind = $2 AND token = $3;`,
		job.TransactionID, string(job.Kind), job.Token, string(job.Status), job.Attempts, job.FireAt,
		job.LastError, job.Updated)
	m.Complete(err)
	if err != nil {
		return errors.WithStack(err)
	}
	if ct.RowsAffected() == 0 {
		return errors.WithStack(core.ErrNotFound)
	}
	return nil
}

func (d *dbRepo) CancelJobs(ctx context.Context, transactionID uint64, kinds []schedule.Kind, updated time.Time) (int64, error) {
	m := db.StartMetric("CancelJobs")
	b := db.Builder.Update("scheduled_jobs").
		Set("status", string(schedule.Cancelled)).
		Set("updated_at", updated).
		Where(squirrel.Eq{"transaction_id": transactionID, "status": string(schedule.Pending)})
	if len(kinds) > 0 {
		names := make([]string, 0, len(kinds))
		for _, k := range kinds {
			names = append(names, string(k))
		}
		b = b.Where(squirrel.Eq{"kind": names})
	}

	query, args, err := b.ToSql()
	if err != nil {
		m.Complete(err)
		return 0, errors.WithStack(err)
	}

	ct, err := d.conn.Exec(ctx, query, args...)
	m.Complete(err)
	if err != nil {
		return 0, errors.WithStack(err)
	}
	return ct.RowsAffected(), nil
}
