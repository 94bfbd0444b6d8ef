// Package queue implements the durable reconcile-job queue: FIFO by ready
// time, with at most one open job per deployment enforced by a partial
// unique index.
package queue

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/chartfarm/chartfarm/pkg/app"
	"github.com/chartfarm/chartfarm/pkg/model"
	"github.com/chartfarm/chartfarm/pkg/store"
)

type Queue struct {
	store  *store.Store
	logger *zap.SugaredLogger
}

func New(s *store.Store, logger *zap.SugaredLogger) *Queue {
	return &Queue{store: s, logger: logger}
}

// Enqueue inserts a queued job for the deployment inside the caller's
// transaction. A violation of the open-job index surfaces as an
// InProgressError; callers must roll back their transaction on it.
func (q *Queue) Enqueue(ctx context.Context, tx sqlx.ExtContext, deploymentID int64, reason string, runAfter time.Time) (*model.ReconcileJob, error) {
	ts := time.Now().UTC().Truncate(time.Microsecond)
	if runAfter.IsZero() {
		runAfter = ts
	}
	job := model.ReconcileJob{
		DeploymentID: deploymentID,
		Reason:       reason,
		Status:       model.JobQueued,
		RunAfter:     runAfter.UTC().Truncate(time.Microsecond),
		CreatedAt:    ts,
		UpdatedAt:    ts,
	}
	query := tx.Rebind(`
		INSERT INTO deployment_reconcile_job (deployment_id, reason, status, run_after, attempt, created_at, updated_at)
		VALUES (?, ?, ?, ?, 0, ?, ?)
		RETURNING id`)
	err := sqlx.GetContext(ctx, tx, &job.ID, query,
		job.DeploymentID, job.Reason, job.Status, job.RunAfter, job.CreatedAt, job.UpdatedAt)
	if err != nil {
		if _, ok := store.UniqueViolation(err); ok {
			return nil, app.NewInProgress(deploymentID)
		}
		return nil, err
	}
	q.logger.Infof("Enqueued reconcile job id=%d deployment=%d reason=%s", job.ID, deploymentID, reason)
	return &job, nil
}

// ClaimNext atomically claims the next runnable job for the worker, or
// returns nil when the queue is empty. Exactly one worker observes any
// given claim.
func (q *Queue) ClaimNext(ctx context.Context, workerID string) (*model.ReconcileJob, error) {
	if q.store.Dialect().SupportsSkipLocked() {
		return q.claimSkipLocked(ctx, workerID)
	}
	return q.claimUpdateReturning(ctx, workerID)
}

// claimSkipLocked claims with SELECT ... FOR UPDATE SKIP LOCKED inside one
// transaction, for backends with row locking.
func (q *Queue) claimSkipLocked(ctx context.Context, workerID string) (*model.ReconcileJob, error) {
	var job *model.ReconcileJob
	err := q.store.WithTx(ctx, func(tx *sqlx.Tx) error {
		ts := time.Now().UTC().Truncate(time.Microsecond)
		var candidate model.ReconcileJob
		query := tx.Rebind(`
			SELECT * FROM deployment_reconcile_job
			WHERE status = ? AND run_after <= ?
			ORDER BY run_after, id
			LIMIT 1
			FOR UPDATE SKIP LOCKED`)
		if err := tx.GetContext(ctx, &candidate, query, model.JobQueued, ts); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil
			}
			return err
		}
		update := tx.Rebind(`
			UPDATE deployment_reconcile_job
			SET status = ?, locked_by = ?, locked_at = ?, updated_at = ?
			WHERE id = ?`)
		if _, err := tx.ExecContext(ctx, update, model.JobRunning, workerID, ts, ts, candidate.ID); err != nil {
			return err
		}
		candidate.Status = model.JobRunning
		candidate.LockedBy = &workerID
		candidate.LockedAt = &ts
		candidate.UpdatedAt = ts
		job = &candidate
		return nil
	})
	if err != nil {
		return nil, err
	}
	if job != nil {
		q.logger.Infof("Claimed reconcile job id=%d deployment=%d worker=%s", job.ID, job.DeploymentID, workerID)
	}
	return job, nil
}

// claimUpdateReturning claims with a single atomic UPDATE over a scalar
// subquery, for SQLite where FOR UPDATE is unavailable.
func (q *Queue) claimUpdateReturning(ctx context.Context, workerID string) (*model.ReconcileJob, error) {
	db := q.store.DB()
	ts := time.Now().UTC().Truncate(time.Microsecond)
	query := db.Rebind(`
		UPDATE deployment_reconcile_job
		SET status = ?, locked_by = ?, locked_at = ?, updated_at = ?
		WHERE id = (
			SELECT id FROM deployment_reconcile_job
			WHERE status = ? AND run_after <= ?
			ORDER BY run_after, id
			LIMIT 1
		)
		RETURNING id`)
	var jobID int64
	err := db.GetContext(ctx, &jobID, query, model.JobRunning, workerID, ts, ts, model.JobQueued, ts)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}

	job, err := q.GetJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	q.logger.Infof("Claimed reconcile job id=%d deployment=%d worker=%s", job.ID, job.DeploymentID, workerID)
	return job, nil
}

func (q *Queue) GetJob(ctx context.Context, id int64) (*model.ReconcileJob, error) {
	db := q.store.DB()
	var job model.ReconcileJob
	query := db.Rebind(`SELECT * FROM deployment_reconcile_job WHERE id = ?`)
	if err := db.GetContext(ctx, &job, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, app.NewNotFound("job")
		}
		return nil, err
	}
	return &job, nil
}

// MarkDone resolves a job successfully, clearing lock and error state.
func (q *Queue) MarkDone(ctx context.Context, jobID int64) error {
	ts := time.Now().UTC().Truncate(time.Microsecond)
	db := q.store.DB()
	query := db.Rebind(`
		UPDATE deployment_reconcile_job
		SET status = ?, last_error = NULL, locked_by = NULL, locked_at = NULL, updated_at = ?
		WHERE id = ?`)
	if err := q.mustAffect(ctx, query, model.JobDone, ts, jobID); err != nil {
		return err
	}
	q.logger.Infof("Marked reconcile job id=%d done", jobID)
	return nil
}

// MarkFailed resolves a job terminally, keeping the error message.
func (q *Queue) MarkFailed(ctx context.Context, jobID int64, jobErr string) error {
	ts := time.Now().UTC().Truncate(time.Microsecond)
	db := q.store.DB()
	query := db.Rebind(`
		UPDATE deployment_reconcile_job
		SET status = ?, last_error = ?, locked_by = NULL, locked_at = NULL, updated_at = ?
		WHERE id = ?`)
	if err := q.mustAffect(ctx, query, model.JobFailed, jobErr, ts, jobID); err != nil {
		return err
	}
	q.logger.Warnf("Marked reconcile job id=%d failed: %s", jobID, jobErr)
	return nil
}

// Requeue returns a running job to the queue with an incremented attempt
// and a delayed ready time.
func (q *Queue) Requeue(ctx context.Context, jobID int64, jobErr string, delay time.Duration) error {
	ts := time.Now().UTC().Truncate(time.Microsecond)
	db := q.store.DB()
	query := db.Rebind(`
		UPDATE deployment_reconcile_job
		SET status = ?, attempt = attempt + 1, run_after = ?, last_error = ?,
		    locked_by = NULL, locked_at = NULL, updated_at = ?
		WHERE id = ?`)
	if err := q.mustAffect(ctx, query, model.JobQueued, ts.Add(delay), jobErr, ts, jobID); err != nil {
		return err
	}
	q.logger.Infof("Requeued reconcile job id=%d delay=%s: %s", jobID, delay, jobErr)
	return nil
}

// ListJobs returns jobs ordered by (run_after, id), optionally filtered by
// status and deployment.
func (q *Queue) ListJobs(ctx context.Context, status string, deploymentID int64, limit int) ([]model.ReconcileJob, error) {
	db := q.store.DB()
	query := `SELECT * FROM deployment_reconcile_job WHERE 1=1`
	args := []interface{}{}
	if status != "" {
		query += ` AND status = ?`
		args = append(args, status)
	}
	if deploymentID != 0 {
		query += ` AND deployment_id = ?`
		args = append(args, deploymentID)
	}
	query += ` ORDER BY run_after, id LIMIT ?`
	args = append(args, limit)

	jobs := []model.ReconcileJob{}
	if err := db.SelectContext(ctx, &jobs, db.Rebind(query), args...); err != nil {
		return nil, err
	}
	return jobs, nil
}

// DedupeOpen keeps the earliest open job for the deployment and deletes
// the rest, returning how many were removed.
func (q *Queue) DedupeOpen(ctx context.Context, deploymentID int64) (int, error) {
	var removed int
	err := q.store.WithTx(ctx, func(tx *sqlx.Tx) error {
		query := tx.Rebind(`
			DELETE FROM deployment_reconcile_job
			WHERE deployment_id = ? AND status IN (?, ?)
			  AND id != (
				SELECT MIN(id) FROM deployment_reconcile_job
				WHERE deployment_id = ? AND status IN (?, ?)
			  )`)
		res, err := tx.ExecContext(ctx, query,
			deploymentID, model.JobQueued, model.JobRunning,
			deploymentID, model.JobQueued, model.JobRunning)
		if err != nil {
			return err
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return err
		}
		removed = int(affected)
		return nil
	})
	if err != nil {
		return 0, err
	}
	if removed > 0 {
		q.logger.Infof("Removed %d duplicate open jobs for deployment=%d", removed, deploymentID)
	}
	return removed, nil
}

// RecoverStale re-queues running jobs whose lock is older than the lease,
// which happens when a worker dies mid-reconcile. Returns how many were
// recovered.
func (q *Queue) RecoverStale(ctx context.Context, lease time.Duration) (int, error) {
	ts := time.Now().UTC().Truncate(time.Microsecond)
	cutoff := ts.Add(-lease)
	db := q.store.DB()
	query := db.Rebind(`
		UPDATE deployment_reconcile_job
		SET status = ?, attempt = attempt + 1, run_after = ?,
		    last_error = ?, locked_by = NULL, locked_at = NULL, updated_at = ?
		WHERE status = ? AND locked_at IS NOT NULL AND locked_at < ?`)
	res, err := db.ExecContext(ctx, query,
		model.JobQueued, ts, fmt.Sprintf("recovered: lock older than %s", lease), ts,
		model.JobRunning, cutoff)
	if err != nil {
		return 0, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	if affected > 0 {
		q.logger.Warnf("Recovered %d stale reconcile jobs (lease=%s)", affected, lease)
	}
	return int(affected), nil
}

func (q *Queue) mustAffect(ctx context.Context, query string, args ...interface{}) error {
	res, err := q.store.DB().ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return app.NewNotFound("job")
	}
	return nil
}
