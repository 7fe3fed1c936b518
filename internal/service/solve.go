package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/optilab/optilab-api/internal/core"
	"github.com/optilab/optilab-api/internal/data"
	domainjob "github.com/optilab/optilab-api/internal/domain/job"
	"github.com/optilab/optilab-api/internal/domain/model"
	apperrors "github.com/optilab/optilab-api/internal/errors"
)

// SolveServiceRepos groups the repositories SolveService orchestrates.
type SolveServiceRepos struct {
	Jobs      core.JobRepository
	Canceller core.JobCanceller
	Models    core.ModelRepository
	DataFiles core.DataFileRepository
	Runs      core.RunRepository
}

// SolveDefaults fills in request fields the client left unset. Zero values
// fall back to the platform defaults.
type SolveDefaults struct {
	Solver  string // default solver name
	Timeout int    // default per-solve time limit, seconds
}

// SolveServiceOptions groups dependencies for SolveService.
type SolveServiceOptions struct {
	Repos           SolveServiceRepos         // Required: backing repositories
	StatusCache     *core.JobStatusCache      // Optional: snapshot store for the polling endpoint
	DefaultLease    time.Duration             // Required: default lease duration for reservations
	Defaults        SolveDefaults             // Optional: deployment-level request defaults
	Logger          *slog.Logger              // Optional: structured logger
	Notifier        domainjob.Notifier        // Optional: custom job availability notifier
	NotifierOptions domainjob.NotifierOptions // Optional: configure default notifier behaviour
}

// SolveService orchestrates the solve job lifecycle: submission, polled
// status, cancellation, and the terminal transitions workers drive. It is the
// only writer of status snapshots, so the snapshot store and the jobs table
// cannot tell different stories about how a job ended.
type SolveService struct {
	jobs        core.JobRepository
	canceller   core.JobCanceller
	models      core.ModelRepository
	dataFiles   core.DataFileRepository
	runs        core.RunRepository
	statusCache *core.JobStatusCache
	leasePolicy *domainjob.LeasePolicy
	defaults    SolveDefaults
	notifier    domainjob.Notifier
	logger      *slog.Logger
}

// NewSolveService constructs a new SolveService.
func NewSolveService(opts SolveServiceOptions) (*SolveService, error) {
	switch {
	case opts.Repos.Jobs == nil:
		return nil, errors.New("JobRepository is required")
	case opts.Repos.Canceller == nil:
		return nil, errors.New("JobCanceller is required")
	case opts.Repos.Models == nil:
		return nil, errors.New("ModelRepository is required")
	case opts.Repos.DataFiles == nil:
		return nil, errors.New("DataFileRepository is required")
	case opts.Repos.Runs == nil:
		return nil, errors.New("RunRepository is required")
	}

	if opts.DefaultLease <= 0 {
		return nil, errors.New("DefaultLease must be positive")
	}
	leasePolicy, err := domainjob.NewLeasePolicy(opts.DefaultLease)
	if err != nil {
		return nil, fmt.Errorf("create lease policy: %w", err)
	}

	defaults := opts.Defaults
	if defaults.Solver == "" {
		defaults.Solver = model.DefaultSolver
	}
	if defaults.Timeout == 0 {
		defaults.Timeout = model.DefaultSolveTimeout
	}
	if !model.KnownSolver(defaults.Solver) {
		return nil, fmt.Errorf("default solver %q is not in the solver catalog", defaults.Solver)
	}
	if defaults.Timeout < model.MinSolveTimeout || defaults.Timeout > model.MaxSolveTimeout {
		return nil, fmt.Errorf("default timeout %d is outside [%d, %d] seconds",
			defaults.Timeout, model.MinSolveTimeout, model.MaxSolveTimeout)
	}

	notifier := opts.Notifier
	if notifier == nil {
		options := opts.NotifierOptions
		if options.Waiter == nil {
			options.Waiter = opts.Repos.Jobs
		}
		notifier, err = domainjob.NewNotifier(options)
		if err != nil {
			return nil, fmt.Errorf("create job notifier: %w", err)
		}
	}

	var logger *slog.Logger
	if opts.Logger != nil {
		logger = opts.Logger.With("component", "solve_service")
		logger.Debug("SolveService initialized", "default_lease", leasePolicy.Default())
	}

	return &SolveService{
		jobs:        opts.Repos.Jobs,
		canceller:   opts.Repos.Canceller,
		models:      opts.Repos.Models,
		dataFiles:   opts.Repos.DataFiles,
		runs:        opts.Repos.Runs,
		statusCache: opts.StatusCache,
		leasePolicy: leasePolicy,
		defaults:    defaults,
		notifier:    notifier,
		logger:      logger,
	}, nil
}

// MustNewSolveService constructs a new SolveService and panics on error.
// Use this when you're certain the options are valid (e.g., in main.go).
func MustNewSolveService(opts SolveServiceOptions) *SolveService {
	svc, err := NewSolveService(opts)
	if err != nil {
		//nolint:forbidigo // Must constructor fails fast when dependencies are invalid during startup
		panic(fmt.Sprintf("failed to create SolveService: %v", err))
	}
	return svc
}

// Submit validates a solve request and enqueues it. Validation failures never
// become a job row; a submitted job is always solvable in principle. The
// returned job is already visible to the status endpoint.
func (s *SolveService) Submit(ctx context.Context, req *model.SolveRequest) (*model.SolveJob, error) {
	if req == nil {
		return nil, apperrors.Validation("request body is required")
	}
	if req.Solver == "" {
		req.Solver = s.defaults.Solver
	}
	if req.Timeout == 0 {
		req.Timeout = s.defaults.Timeout
	}
	if err := req.Validate(); err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeValidation, "invalid solve request")
	}

	if _, err := s.models.GetByID(ctx, req.ModelID); err != nil {
		return nil, fmt.Errorf("get model: %w", err)
	}
	if req.DataFileID != nil {
		if _, err := s.dataFiles.GetForModel(ctx, req.ModelID, *req.DataFileID); err != nil {
			if errors.Is(err, data.ErrDataFileNotFound) {
				return nil, apperrors.ValidationField("data_file_id",
					fmt.Sprintf("data file %d does not exist for model %d", *req.DataFileID, req.ModelID))
			}
			return nil, fmt.Errorf("get data file: %w", err)
		}
	}

	job, err := s.jobs.Create(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("create solve job: %w", err)
	}

	s.putSnapshot(ctx, snapshotFromJob(job))

	if s.logger != nil {
		s.logger.InfoContext(ctx, "solve job queued",
			"job_id", job.ID, "model_id", job.ModelID, "solver", job.Solver)
	}
	return job, nil
}

// Status returns the polled view of a job. The snapshot store answers most
// polls; on a miss the job row is read and the snapshot rehydrated, so the
// database stays the authority on terminal state.
func (s *SolveService) Status(ctx context.Context, jobID string) (*model.JobStatusSnapshot, error) {
	if err := uuid.Validate(jobID); err != nil {
		return nil, apperrors.ValidationField("job_id", "job id must be a UUID")
	}

	if s.statusCache != nil {
		snap, err := s.statusCache.Get(ctx, jobID)
		if err != nil {
			// Degraded cache means slower polls, not failed ones.
			if s.logger != nil {
				s.logger.WarnContext(ctx, "status snapshot read failed", "job_id", jobID, "error", err)
			}
		} else if snap != nil {
			return snap, nil
		}
	}

	job, err := s.jobs.GetByID(ctx, jobID)
	if err != nil {
		return nil, fmt.Errorf("get job %s: %w", jobID, err)
	}

	snap := snapshotFromJob(job)
	s.putSnapshot(ctx, snap)
	return snap, nil
}

// Cancel stops a job as far as its current state allows. Queued jobs go
// straight to cancelled; for running jobs the cancel flag is set and the
// worker finishes the transition when it notices; terminal jobs are
// acknowledged without change.
func (s *SolveService) Cancel(ctx context.Context, jobID string) (*model.CancelOutcome, error) {
	if err := uuid.Validate(jobID); err != nil {
		return nil, apperrors.ValidationField("job_id", "job id must be a UUID")
	}

	job, err := s.jobs.GetByID(ctx, jobID)
	if err != nil {
		return nil, fmt.Errorf("get job %s: %w", jobID, err)
	}
	return s.cancelJob(ctx, job, true)
}

// cancelJob applies the cancellation matching the job's state. When a state
// transition races with a worker, the job is re-read once and retried in its
// new state.
func (s *SolveService) cancelJob(ctx context.Context, job *model.SolveJob, reread bool) (*model.CancelOutcome, error) {
	switch job.Status {
	case model.JobStatusQueued:
		ok, err := s.canceller.CancelQueued(ctx, job.ID)
		if err != nil {
			return nil, fmt.Errorf("cancel queued job %s: %w", job.ID, err)
		}
		if ok {
			s.putSnapshot(ctx, &model.JobStatusSnapshot{
				JobID:     job.ID,
				Status:    model.JobStatusCancelled,
				UpdatedAt: time.Now().UTC(),
			})
			if s.logger != nil {
				s.logger.InfoContext(ctx, "queued job cancelled", "job_id", job.ID)
			}
			return &model.CancelOutcome{JobID: job.ID, Status: model.JobStatusCancelled}, nil
		}

	case model.JobStatusRunning:
		ok, err := s.canceller.RequestCancel(ctx, job.ID)
		if err != nil {
			return nil, fmt.Errorf("request cancel for job %s: %w", job.ID, err)
		}
		if ok {
			if s.logger != nil {
				s.logger.InfoContext(ctx, "cancel requested for running job", "job_id", job.ID)
			}
			return &model.CancelOutcome{JobID: job.ID, Status: model.JobStatusRunning, Requested: true}, nil
		}

	default:
		// Terminal states: cancelling again is an acknowledged no-op.
		return &model.CancelOutcome{JobID: job.ID, Status: job.Status}, nil
	}

	// The job changed state between the read and the update.
	if !reread {
		return nil, apperrors.Conflictf("job %s changed state during cancellation", job.ID)
	}
	fresh, err := s.jobs.GetByID(ctx, job.ID)
	if err != nil {
		return nil, fmt.Errorf("get job %s: %w", job.ID, err)
	}
	return s.cancelJob(ctx, fresh, false)
}

// Stats returns counts of jobs per lifecycle state.
func (s *SolveService) Stats(ctx context.Context) (*model.JobStats, error) {
	stats, err := s.jobs.Stats(ctx)
	if err != nil {
		return nil, fmt.Errorf("get job stats: %w", err)
	}
	return stats, nil
}

// ListJobs returns a page of jobs using the given filters.
func (s *SolveService) ListJobs(ctx context.Context, opts model.JobsListOptions) ([]*model.SolveJob, error) {
	if opts.Limit <= 0 {
		opts.Limit = 50
	}
	if opts.Limit > 500 {
		opts.Limit = 500
	}
	if opts.Offset < 0 {
		opts.Offset = 0
	}
	jobs, err := s.jobs.ListWithOptions(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	return jobs, nil
}

// CountJobs returns the unpaged total for the given filters.
func (s *SolveService) CountJobs(ctx context.Context, opts model.JobsListOptions) (int, error) {
	count, err := s.jobs.CountWithOptions(ctx, opts)
	if err != nil {
		return 0, fmt.Errorf("count jobs: %w", err)
	}
	return count, nil
}

// Reserve leases the next queued job for a worker, moving it to running.
// model.ErrNoJobsAvailable means the queue is empty.
func (s *SolveService) Reserve(ctx context.Context, lease time.Duration) (*model.SolveJob, error) {
	decision := s.leasePolicy.Resolve(lease)
	if decision.Clamped() && s.logger != nil {
		s.logger.DebugContext(ctx, "clamped lease duration",
			"requested_duration", decision.Requested, "lease_seconds", decision.Seconds)
	}

	job, err := s.jobs.ReserveNext(ctx, decision.Seconds)
	if err != nil {
		return nil, fmt.Errorf("reserve next job: %w", err)
	}

	s.putSnapshot(ctx, snapshotFromJob(job))

	if s.logger != nil {
		s.logger.DebugContext(ctx, "job reserved",
			"job_id", job.ID, "solver", job.Solver, "lease_seconds", decision.Seconds)
	}
	return job, nil
}

// Heartbeat extends the lease on a running job.
func (s *SolveService) Heartbeat(ctx context.Context, jobID string, extend time.Duration) (bool, error) {
	decision := s.leasePolicy.Resolve(extend)
	updated, err := s.jobs.Heartbeat(ctx, jobID, decision.Seconds)
	if err != nil {
		return false, fmt.Errorf("heartbeat job %s: %w", jobID, err)
	}
	return updated, nil
}

// Subscribe creates a subscription for job availability wake-ups. Returns an
// unsubscribe function and the wake-up channel.
func (s *SolveService) Subscribe() (func(), <-chan struct{}) {
	if s.notifier == nil {
		ch := make(chan struct{})
		close(ch)
		return func() {}, ch
	}
	return s.notifier.Subscribe()
}

// WaitForNotification blocks until the queue signals that a job may be available.
func (s *SolveService) WaitForNotification(ctx context.Context) error {
	return s.jobs.WaitForNotification(ctx)
}

// StopAllListeners shuts down the notifier's listener goroutines.
func (s *SolveService) StopAllListeners() {
	if s.notifier != nil {
		s.notifier.StopAll()
	}
}

// SolveInputs resolves a job's model and data references to the text the
// engine consumes.
func (s *SolveService) SolveInputs(ctx context.Context, job *model.SolveJob) (core.SolveInput, error) {
	m, err := s.models.GetByID(ctx, job.ModelID)
	if err != nil {
		return core.SolveInput{}, fmt.Errorf("get model %d: %w", job.ModelID, err)
	}

	input := core.SolveInput{
		ModelText: m.ModelContent,
		Solver:    job.Solver,
		Options:   job.Options,
		Timeout:   time.Duration(job.TimeoutSeconds) * time.Second,
	}
	if job.DataFileID != nil {
		f, err := s.dataFiles.GetForModel(ctx, job.ModelID, *job.DataFileID)
		if err != nil {
			return core.SolveInput{}, fmt.Errorf("get data file %d: %w", *job.DataFileID, err)
		}
		input.DataText = f.FileContent
	}
	return input, nil
}

// UpdateProgress publishes a running job's progress stage to the snapshot
// store. Progress is polled state only and never touches the database.
func (s *SolveService) UpdateProgress(ctx context.Context, jobID string, progress model.JobProgress) {
	s.putSnapshot(ctx, &model.JobStatusSnapshot{
		JobID:     jobID,
		Status:    model.JobStatusRunning,
		Progress:  &progress,
		UpdatedAt: time.Now().UTC(),
	})
}

// CompleteArtifacts carries everything a worker persists for a successful solve.
type CompleteArtifacts struct {
	Run         *model.OptimizationRun
	Variables   []model.VariableResult
	Constraints []model.ConstraintResult
}

// CompleteWithRun stores the run results and then moves the job to completed
// with result_id set, in that order: a job whose run cannot be persisted must
// never read as completed.
func (s *SolveService) CompleteWithRun(
	ctx context.Context,
	jobID string,
	artifacts CompleteArtifacts,
) (*model.OptimizationRun, error) {
	if artifacts.Run == nil {
		return nil, errors.New("run is required")
	}

	run, err := s.runs.CreateWithDetails(ctx, artifacts.Run, artifacts.Variables, artifacts.Constraints)
	if err != nil {
		return nil, fmt.Errorf("persist run: %w", err)
	}

	completed, err := s.jobs.Complete(ctx, jobID, run.ID)
	if err != nil {
		return nil, fmt.Errorf("complete job %s: %w", jobID, err)
	}
	if !completed {
		// The job went terminal some other way (cancelled or reaped) while
		// the run was being written. The run stays as solve history.
		return run, apperrors.Conflictf("job %s was no longer running at completion", jobID)
	}

	s.putSnapshot(ctx, &model.JobStatusSnapshot{
		JobID:     jobID,
		Status:    model.JobStatusCompleted,
		ResultID:  &run.ID,
		UpdatedAt: time.Now().UTC(),
	})

	if s.logger != nil {
		s.logger.InfoContext(ctx, "solve completed",
			"job_id", jobID, "result_id", run.ID, "status", run.Status)
	}
	return run, nil
}

// FailJob moves a job to failed with a human-readable reason and publishes
// the terminal snapshot. Solver-reported errors land here; they must never
// surface as completed.
func (s *SolveService) FailJob(ctx context.Context, jobID, errMsg string) (bool, error) {
	if errMsg == "" {
		// failed implies an error message for the poller to show.
		errMsg = "solve failed"
	}

	failed, err := s.jobs.Fail(ctx, jobID, errMsg)
	if err != nil {
		return false, fmt.Errorf("fail job %s: %w", jobID, err)
	}
	if failed {
		s.putSnapshot(ctx, &model.JobStatusSnapshot{
			JobID:     jobID,
			Status:    model.JobStatusFailed,
			Error:     &errMsg,
			UpdatedAt: time.Now().UTC(),
		})
		if s.logger != nil {
			s.logger.WarnContext(ctx, "solve failed", "job_id", jobID, "error", errMsg)
		}
	}
	return failed, nil
}

// MarkCancelled finishes the cancellation handshake for a running job whose
// worker observed the cancel flag and stopped the solve.
func (s *SolveService) MarkCancelled(ctx context.Context, jobID string) (bool, error) {
	ok, err := s.canceller.MarkCancelled(ctx, jobID)
	if err != nil {
		return false, fmt.Errorf("mark job %s cancelled: %w", jobID, err)
	}
	if ok {
		s.putSnapshot(ctx, &model.JobStatusSnapshot{
			JobID:     jobID,
			Status:    model.JobStatusCancelled,
			UpdatedAt: time.Now().UTC(),
		})
		if s.logger != nil {
			s.logger.InfoContext(ctx, "running job cancelled", "job_id", jobID)
		}
	}
	return ok, nil
}

// CancelRequested reports whether cancellation has been requested for a job.
// Workers poll this while a solve is in flight.
func (s *SolveService) CancelRequested(ctx context.Context, jobID string) (bool, error) {
	return s.canceller.CancelRequested(ctx, jobID)
}

// putSnapshot writes a status snapshot best-effort. The database is the
// authority; a failed snapshot write degrades polling to database reads
// instead of failing the transition.
func (s *SolveService) putSnapshot(ctx context.Context, snap *model.JobStatusSnapshot) {
	if s.statusCache == nil || snap == nil {
		return
	}
	if err := s.statusCache.Put(ctx, snap); err != nil && s.logger != nil {
		s.logger.WarnContext(ctx, "status snapshot write failed",
			"job_id", snap.JobID, "error", err)
	}
}

// snapshotFromJob builds the polled view of a job row. Progress lives only in
// the snapshot store, so a rehydrated snapshot carries none.
func snapshotFromJob(job *model.SolveJob) *model.JobStatusSnapshot {
	snap := &model.JobStatusSnapshot{
		JobID:     job.ID,
		Status:    job.Status,
		UpdatedAt: job.UpdatedAt,
	}
	switch job.Status {
	case model.JobStatusCompleted:
		snap.ResultID = job.ResultID
	case model.JobStatusFailed:
		snap.Error = job.LastError
	}
	return snap
}
