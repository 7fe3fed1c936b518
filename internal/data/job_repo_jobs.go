package data

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/optilab/optilab-api/internal/data/pgxutil"
	"github.com/optilab/optilab-api/internal/domain/model"
)

// insertJobParams groups parameters for inserting a solve job within a transaction.
type insertJobParams struct {
	Req         *model.SolveRequest
	Options     []byte
	MaxRequeues int
}

const defaultMaxRequeues = 2

// jobAddedChannel is the pg_notify channel workers LISTEN on for new solve jobs.
const jobAddedChannel = "solve_job_added"

func (r *JobRepo) maxRequeues() int {
	if r.cfg.DefaultMaxRequeues > 0 {
		return r.cfg.DefaultMaxRequeues
	}
	return defaultMaxRequeues
}

// SQL used by ReserveNext to atomically reserve the oldest queued job.
const reserveNextUpdateSQL = `
  WITH cte AS (
    SELECT id FROM solve_jobs
    WHERE status = 'queued'
    ORDER BY created_at ASC
    LIMIT 1
    FOR UPDATE SKIP LOCKED
  )
  UPDATE solve_jobs j
  SET
    status = 'running',
    started_at = COALESCE(j.started_at, $1),
    lease_expires_at = $2,
    updated_at = $3
  FROM cte
  WHERE j.id = cte.id
  RETURNING j.id, j.model_id, j.data_file_id, j.solver, j.options, j.timeout_seconds, j.status, j.result_id, j.last_error, j.cancel_requested, j.requeue_count, j.max_requeues, j.started_at, j.completed_at, j.lease_expires_at, j.created_at, j.updated_at`

// Create enqueues a new solve job in the database with the given parameters.
func (r *JobRepo) Create(
	ctx context.Context,
	req *model.SolveRequest,
) (*model.SolveJob, error) {
	if req == nil {
		return nil, errors.New("solve request is required")
	}

	if validateErr := req.Validate(); validateErr != nil {
		return nil, validateErr
	}

	options, maxRequeues, err := r.prepareJobData(req)
	if err != nil {
		return nil, err
	}

	p := &insertJobParams{
		Req:         req,
		Options:     options,
		MaxRequeues: maxRequeues,
	}

	var job *model.SolveJob
	if txErr := pgxutil.WithPgxTx(ctx, r.DB, pgxutil.TxConfig{
		Fn: func(tx pgx.Tx) error {
			var insertErr error
			job, insertErr = r.insertJobInTx(ctx, tx, p)
			return insertErr
		},
	}); txErr != nil {
		return nil, txErr
	}

	return job, nil
}

// prepareJobData prepares the options payload and requeue cap for job creation.
func (r *JobRepo) prepareJobData(req *model.SolveRequest) ([]byte, int, error) {
	if req == nil {
		return nil, 0, errors.New("solve request is required")
	}

	options := []byte(`{}`)
	if len(req.Options) > 0 {
		var err error
		options, err = json.Marshal(req.Options)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to marshal options: %w", err)
		}
	}

	return options, r.maxRequeues(), nil
}

// insertJobInTx inserts a solve job within a pgx.Tx and returns the created job.
func (r *JobRepo) insertJobInTx(ctx context.Context, tx pgx.Tx, params *insertJobParams) (*model.SolveJob, error) {
	if params == nil || params.Req == nil {
		return nil, errors.New("insert job params are required")
	}

	query, args := r.buildInsertQuery(params)

	rows, err := tx.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("insert solve job: %w", err)
	}
	job, collectErr := collectJobFromRows(rows)
	rows.Close()
	if collectErr != nil {
		return nil, fmt.Errorf("collect solve job: %w", collectErr)
	}

	if _, execErr := tx.Exec(ctx, `SELECT pg_notify($1::text, $2::text)`, jobAddedChannel, job.ID); execErr != nil {
		return nil, fmt.Errorf("send job notification: %w", execErr)
	}

	return job, nil
}

// buildInsertQuery builds an INSERT statement for a solve job based on the provided parameters.
func (r *JobRepo) buildInsertQuery(p *insertJobParams) (string, []any) {
	if p == nil || p.Req == nil {
		return "", nil
	}

	query := `
      INSERT INTO solve_jobs(model_id, data_file_id, solver, options, timeout_seconds, status, max_requeues, created_at, updated_at)
      VALUES ($1,$2,$3,$4,$5,'queued',$6,$7,$7)
      RETURNING ` + jobColumns

	args := []any{
		p.Req.ModelID,
		p.Req.DataFileID,
		p.Req.Solver,
		p.Options,
		p.Req.Timeout,
		p.MaxRequeues,
		r.timeProvider.Now().UTC(),
	}
	return query, args
}

// collectJobFromRows collects a single solve job from pgx rows using pgx v5 helpers.
func collectJobFromRows(rows pgx.Rows) (*model.SolveJob, error) {
	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, err
		}
		return nil, pgx.ErrNoRows
	}

	job, err := scanJobFromRow(rows)
	if err != nil {
		return nil, err
	}

	if rowsErr := rows.Err(); rowsErr != nil {
		return nil, rowsErr
	}

	return job, nil
}

type jobRowScanner interface {
	Scan(dest ...any) error
}

type jobRowData struct {
	options                                []byte
	dataFileID, resultID                   sql.NullInt64
	lastError                              sql.NullString
	startedAt, completedAt, leaseExpiresAt sql.NullTime
}

func (d *jobRowData) scanInto(scanner jobRowScanner, job *model.SolveJob) error {
	return scanner.Scan(
		&job.ID,
		&job.ModelID,
		&d.dataFileID,
		&job.Solver,
		&d.options,
		&job.TimeoutSeconds,
		&job.Status,
		&d.resultID,
		&d.lastError,
		&job.CancelRequested,
		&job.RequeueCount,
		&job.MaxRequeues,
		&d.startedAt,
		&d.completedAt,
		&d.leaseExpiresAt,
		&job.CreatedAt,
		&job.UpdatedAt,
	)
}

func (d *jobRowData) apply(job *model.SolveJob) {
	job.Options = cloneJSON(d.options)
	job.DataFileID = cloneNullableInt64(d.dataFileID)
	job.ResultID = cloneNullableInt64(d.resultID)
	job.LastError = cloneNullableString(d.lastError)
	job.StartedAt = cloneNullableTime(d.startedAt)
	job.CompletedAt = cloneNullableTime(d.completedAt)
	job.LeaseExpiresAt = cloneNullableTime(d.leaseExpiresAt)
}

func scanJobFromRow(scanner jobRowScanner) (*model.SolveJob, error) {
	job := &model.SolveJob{}
	var data jobRowData
	if err := data.scanInto(scanner, job); err != nil {
		return nil, err
	}

	data.apply(job)
	return job, nil
}

func cloneJSON(raw []byte) json.RawMessage {
	if len(raw) == 0 {
		return json.RawMessage(`{}`)
	}
	return append(json.RawMessage(nil), raw...)
}

func cloneNullableString(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	s := ns.String
	return &s
}

func cloneNullableInt64(ni sql.NullInt64) *int64 {
	if !ni.Valid {
		return nil
	}
	n := ni.Int64
	return &n
}

func cloneNullableTime(nt sql.NullTime) *time.Time {
	if !nt.Valid {
		return nil
	}
	t := nt.Time.UTC()
	return &t
}

// Advisory lock namespace for requeueExpired so concurrent workers do not race the sweep.
const (
	advisoryLockRequeueMajor int64 = 1001
	advisoryLockRequeueMinor int64 = 1
)

// lostWorkerError is recorded on jobs abandoned by crashed workers once the
// requeue cap is reached. A failed row must always carry an error message.
const lostWorkerError = "solve worker lost; requeue limit reached"

// requeueExpired returns expired running jobs to the queue and returns the
// number requeued. Jobs that already exhausted their requeue cap are failed
// instead so they do not loop forever.
func (r *JobRepo) requeueExpired(ctx context.Context) (int64, error) {
	var requeued int64
	var lost int64
	err := pgxutil.WithSQLTx(ctx, r.DB, pgxutil.SQLTxConfig{
		Fn: func(tx *sql.Tx) error {
			var locked bool
			if err := tx.QueryRowContext(ctx, "SELECT pg_try_advisory_xact_lock($1::integer, $2::integer)", advisoryLockRequeueMajor, advisoryLockRequeueMinor).Scan(&locked); err != nil {
				return fmt.Errorf("acquire advisory lock: %w", err)
			}
			if !locked {
				requeued = 0
				return nil
			}

			currentTime := r.timeProvider.Now().UTC()

			res, err := tx.ExecContext(ctx, `
          UPDATE solve_jobs
          SET status = 'failed',
              last_error = $1,
              completed_at = $2,
              updated_at = $2,
              lease_expires_at = NULL
          WHERE status = 'running'
            AND lease_expires_at IS NOT NULL
            AND lease_expires_at < $2
            AND requeue_count >= max_requeues
        `, lostWorkerError, currentTime)
			if err != nil {
				return fmt.Errorf("fail exhausted jobs: %w", err)
			}
			la, err := res.RowsAffected()
			if err != nil {
				return fmt.Errorf("rows affected: %w", err)
			}
			lost = la

			res, err = tx.ExecContext(ctx, `
          UPDATE solve_jobs
          SET status = 'queued',
              lease_expires_at = NULL,
              requeue_count = requeue_count + 1,
              updated_at = $1
          WHERE status = 'running'
            AND lease_expires_at IS NOT NULL
            AND lease_expires_at < $1
        `, currentTime)
			if err != nil {
				return fmt.Errorf("requeue expired: %w", err)
			}
			ra, err := res.RowsAffected()
			if err != nil {
				return fmt.Errorf("rows affected: %w", err)
			}
			requeued = ra
			return nil
		},
	})
	if err != nil {
		return 0, err
	}
	if lost > 0 && r.logger != nil {
		r.logger.WarnContext(ctx, "failed solve jobs that exhausted requeues",
			"count", lost,
			"error", lostWorkerError,
		)
	}
	return requeued, nil
}

// ReserveNext reserves the oldest queued solve job for processing.
func (r *JobRepo) ReserveNext(
	ctx context.Context,
	leaseSeconds int,
) (*model.SolveJob, error) {
	if _, err := r.requeueExpired(ctx); err != nil {
		return nil, fmt.Errorf("requeue expired jobs: %w", err)
	}

	var job *model.SolveJob
	err := pgxutil.WithPgxTx(ctx, r.DB, pgxutil.TxConfig{
		Opts: &sql.TxOptions{
			Isolation: sql.LevelReadCommitted,
			ReadOnly:  false,
		},
		Fn: func(tx pgx.Tx) error {
			currentTime := r.timeProvider.Now()
			leaseExpiresAt := currentTime.Add(time.Duration(leaseSeconds) * time.Second)

			rows, qerr := tx.Query(
				ctx,
				reserveNextUpdateSQL,
				currentTime.UTC(),
				leaseExpiresAt.UTC(),
				currentTime.UTC(),
			)
			if qerr != nil {
				return fmt.Errorf("reserve job: %w", qerr)
			}
			defer rows.Close()

			j, cerr := collectJobFromRows(rows)
			if errors.Is(cerr, pgx.ErrNoRows) {
				return model.ErrNoJobsAvailable
			}
			if cerr != nil {
				return fmt.Errorf("reserve job: %w", cerr)
			}
			job = j
			return nil
		},
	})
	if err != nil {
		if errors.Is(err, model.ErrNoJobsAvailable) {
			return nil, model.ErrNoJobsAvailable
		}
		return nil, err
	}
	return job, nil
}

// Heartbeat refreshes the lease on a running job.
func (r *JobRepo) Heartbeat(ctx context.Context, jobID string, leaseSeconds int) (bool, error) {
	if leaseSeconds <= 0 {
		return false, errors.New("leaseSeconds must be positive")
	}

	currentTime := r.timeProvider.Now().UTC()
	leaseExpiration := currentTime.Add(time.Duration(leaseSeconds) * time.Second)

	query := `
		UPDATE solve_jobs
		SET lease_expires_at = $2,
		    updated_at = $3
		WHERE id = $1 AND status = 'running'
	`

	res, err := r.DB.ExecContext(ctx, query, jobID, leaseExpiration, currentTime)
	if err != nil {
		return false, fmt.Errorf("heartbeat job: %w", err)
	}

	rowsAffected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("heartbeat rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return false, nil
	}

	return true, nil
}

// Complete marks a running job as completed and records the run it produced.
// The result reference is written in the same guarded UPDATE so a completed
// row can never exist without one.
func (r *JobRepo) Complete(ctx context.Context, id string, resultID int64) (bool, error) {
	if resultID <= 0 {
		return false, errors.New("resultID must be positive")
	}

	currentTime := r.timeProvider.Now().UTC()

	query := `
		UPDATE solve_jobs
		SET status = 'completed',
		    result_id = $2,
		    completed_at = $3,
		    updated_at = $3,
		    lease_expires_at = NULL,
		    last_error = NULL
		WHERE id = $1 AND status = 'running'
	`

	res, err := r.DB.ExecContext(ctx, query, id, resultID, currentTime)
	if err != nil {
		return false, fmt.Errorf("failed to complete job: %w", err)
	}

	rowsAffected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("complete rows affected: %w", err)
	}

	return rowsAffected > 0, nil
}

// Fail marks a running job as failed with the given error message.
func (r *JobRepo) Fail(ctx context.Context, id, errMsg string) (bool, error) {
	// Failed rows must carry an error message.
	if strings.TrimSpace(errMsg) == "" {
		errMsg = "solve failed"
	}

	currentTime := r.timeProvider.Now().UTC()

	query := `
      UPDATE solve_jobs
      SET
        status = 'failed',
        last_error = $2,
        completed_at = $3,
        updated_at = $3,
        lease_expires_at = NULL
      WHERE id = $1 AND status = 'running'
    `

	res, err := r.DB.ExecContext(ctx, query, id, errMsg, currentTime)
	if err != nil {
		return false, fmt.Errorf("fail job: %w", err)
	}

	rowsAffected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("fail rows affected: %w", err)
	}

	return rowsAffected > 0, nil
}

// CancelQueued cancels a job that has not been picked up by a worker yet.
// Returns false if the job has already left the queued state.
func (r *JobRepo) CancelQueued(ctx context.Context, id string) (bool, error) {
	currentTime := r.timeProvider.Now().UTC()

	res, err := r.DB.ExecContext(ctx, `
		UPDATE solve_jobs
		SET status = 'cancelled',
		    completed_at = $2,
		    updated_at = $2
		WHERE id = $1 AND status = 'queued'
	`, id, currentTime)
	if err != nil {
		return false, fmt.Errorf("cancel queued job: %w", err)
	}

	rowsAffected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("cancel rows affected: %w", err)
	}

	return rowsAffected > 0, nil
}

// RequestCancel flags a running job for cancellation. The worker holding the
// lease observes the flag and aborts the solve. Returns false if the job is
// not currently running.
func (r *JobRepo) RequestCancel(ctx context.Context, id string) (bool, error) {
	res, err := r.DB.ExecContext(ctx, `
		UPDATE solve_jobs
		SET cancel_requested = TRUE,
		    updated_at = $2
		WHERE id = $1 AND status = 'running'
	`, id, r.timeProvider.Now().UTC())
	if err != nil {
		return false, fmt.Errorf("request cancel: %w", err)
	}

	rowsAffected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("request cancel rows affected: %w", err)
	}

	return rowsAffected > 0, nil
}

// CancelRequested reports whether cancellation has been requested for the job.
func (r *JobRepo) CancelRequested(ctx context.Context, id string) (bool, error) {
	var requested bool
	err := r.DB.QueryRowContext(ctx, `
		SELECT cancel_requested FROM solve_jobs WHERE id = $1
	`, id).Scan(&requested)
	if errors.Is(err, sql.ErrNoRows) {
		return false, ErrJobNotFound
	}
	if err != nil {
		return false, fmt.Errorf("check cancel requested: %w", err)
	}
	return requested, nil
}

// MarkCancelled transitions a running job to cancelled after its worker
// aborted the solve. Returns false if the job is not currently running.
func (r *JobRepo) MarkCancelled(ctx context.Context, id string) (bool, error) {
	currentTime := r.timeProvider.Now().UTC()

	res, err := r.DB.ExecContext(ctx, `
		UPDATE solve_jobs
		SET status = 'cancelled',
		    completed_at = $2,
		    updated_at = $2,
		    lease_expires_at = NULL
		WHERE id = $1 AND status = 'running'
	`, id, currentTime)
	if err != nil {
		return false, fmt.Errorf("mark cancelled: %w", err)
	}

	rowsAffected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("mark cancelled rows affected: %w", err)
	}

	return rowsAffected > 0, nil
}

// Stats returns counts of solve jobs in each state.
func (r *JobRepo) Stats(ctx context.Context) (*model.JobStats, error) {
	var s model.JobStats
	err := r.DB.QueryRowContext(ctx, `
  SELECT
    count(*) FILTER (WHERE status = 'queued')    AS queued,
    count(*) FILTER (WHERE status = 'running')   AS running,
    count(*) FILTER (WHERE status = 'completed') AS completed,
    count(*) FILTER (WHERE status = 'failed')    AS failed,
    count(*) FILTER (WHERE status = 'cancelled') AS cancelled
  FROM solve_jobs
  `).Scan(
		&s.Queued,
		&s.Running,
		&s.Completed,
		&s.Failed,
		&s.Cancelled,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get job stats: %w", err)
	}
	return &s, nil
}

// WaitForNotification waits for a PostgreSQL notification indicating new jobs are available.
func (r *JobRepo) WaitForNotification(ctx context.Context) error {
	conn, err := r.DB.Conn(ctx)
	if err != nil {
		return fmt.Errorf("get conn from pool: %w", err)
	}
	defer func() {
		if cerr := conn.Close(); cerr != nil {
			_ = cerr
		}
	}()

	quoted := pgx.Identifier{jobAddedChannel}.Sanitize()

	if _, execErr := conn.ExecContext(ctx, "LISTEN "+quoted); execErr != nil {
		return fmt.Errorf("listen %s: %w", jobAddedChannel, execErr)
	}
	defer func() {
		if _, execErr := conn.ExecContext(context.Background(), "UNLISTEN "+quoted); execErr != nil {
			_ = execErr
		}
	}()

	return conn.Raw(func(dc any) error {
		sc, ok := dc.(*stdlib.Conn)
		if !ok {
			return errors.New("unexpected driver connection type; expected *stdlib.Conn")
		}
		_, notifyErr := sc.Conn().WaitForNotification(ctx)
		return notifyErr
	})
}

// GetByID retrieves a solve job by its ID.
func (r *JobRepo) GetByID(ctx context.Context, id string) (*model.SolveJob, error) {
	var job *model.SolveJob
	err := pgxutil.WithPgxConn(ctx, r.DB, func(pgxConn *pgx.Conn) error {
		rows, err := pgxConn.Query(ctx, `
			SELECT `+jobColumns+`
			FROM solve_jobs
			WHERE id = $1
		`, id)
		if err != nil {
			return err
		}
		defer rows.Close()
		job, err = collectJobFromRows(rows)
		return err
	})

	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrJobNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get job: %w", err)
	}
	return job, nil
}

// Delete safely deletes a solve job by ID with state machine safety checks.
func (r *JobRepo) Delete(ctx context.Context, id string) error {
	currentTime := r.timeProvider.Now()
	res, err := r.DB.ExecContext(ctx, `
		DELETE FROM solve_jobs
		WHERE id = $1
		  AND status IN ('queued', 'completed', 'failed', 'cancelled')
		  AND (lease_expires_at IS NULL OR lease_expires_at <= $2)
	`, id, currentTime.UTC())
	if err != nil {
		return fmt.Errorf("failed to delete job: %w", err)
	}

	rowsAffected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected > 0 {
		return nil
	}

	job, err := r.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrJobNotFound) {
			return ErrJobNotFound
		}
		return fmt.Errorf("failed to re-check job after delete attempt: %w", err)
	}

	if !isJobStatusDeletable(job.Status) {
		return ErrJobNotDeletable
	}

	if job.LeaseExpiresAt != nil && currentTime.Before(*job.LeaseExpiresAt) {
		return ErrJobReserved
	}

	return errors.New("unexpected state: job is in deletable state but delete failed")
}

// isJobStatusDeletable returns true if a job in the given status can be safely deleted.
func isJobStatusDeletable(status model.JobStatus) bool {
	return status == model.JobStatusQueued || status.Terminal()
}
