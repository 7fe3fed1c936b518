// Package solverunner provides the worker adapter that executes queued solve jobs.
package solverunner

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/optilab/optilab-api/internal/core"
	"github.com/optilab/optilab-api/internal/data"
	domainjob "github.com/optilab/optilab-api/internal/domain/job"
	"github.com/optilab/optilab-api/internal/domain/model"
	apperrors "github.com/optilab/optilab-api/internal/errors"
	"github.com/optilab/optilab-api/internal/observability/metrics"
	"github.com/optilab/optilab-api/internal/observability/statsd"
	"github.com/optilab/optilab-api/internal/service"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"
)

// Progress stages published while a job runs. The web client shows these
// verbatim, so they are phrased for students, not operators.
const (
	stagePreparing = "preparing model"
	stageSaving    = "saving results"
)

// RunnerOptions configures the solve job runner adapter.
type RunnerOptions struct {
	DB          *sql.DB
	RedisClient redis.UniversalClient
	Logger      *slog.Logger

	// Engine executes the actual solves. Required; there is no DB fallback.
	Engine core.SolverEngine

	// Job processing settings
	Lease              time.Duration // per-job lease duration; defaults to 30s
	Concurrency        int           // number of worker goroutines; defaults to 1
	CancelPollInterval time.Duration // how often in-flight solves check the cancel flag; defaults to 2s
	MaxRequeues        int           // requeue budget for jobs whose worker died; 0 uses the repository default

	// Optional dependency injections (useful for tests/decoupling)
	JobsRepo          core.JobRepository
	Canceller         core.JobCanceller
	ModelsRepo        core.ModelRepository
	DataFilesRepo     core.DataFileRepository
	RunsRepo          core.RunRepository
	CacheRepo         core.CacheRepository
	StatusCache       *core.JobStatusCache
	StatusCacheConfig core.JobStatusCacheConfig
	Notifier          domainjob.Notifier
	Metrics           statsd.Sink
}

// Runner executes queued solve jobs using the solve orchestration service.
type Runner struct {
	solve      *service.SolveService
	engine     core.SolverEngine
	logger     *slog.Logger
	lease      time.Duration
	workers    int
	cancelPoll time.Duration
	metrics    statsd.Sink
}

// NewRunner creates a new solve job runner with the given options.
func NewRunner(opts RunnerOptions) (*Runner, error) {
	logger := resolveLogger(opts.Logger)

	if opts.Engine == nil {
		return nil, errors.New("solver engine is required")
	}

	deps := resolveDependencies(opts)
	if err := validateDependencies(opts, deps); err != nil {
		return nil, err
	}

	lease := resolveLease(opts.Lease)

	solve, err := service.NewSolveService(service.SolveServiceOptions{
		Repos: service.SolveServiceRepos{
			Jobs:      deps.jobsRepo,
			Canceller: deps.canceller,
			Models:    deps.modelsRepo,
			DataFiles: deps.dataFilesRepo,
			Runs:      deps.runsRepo,
		},
		StatusCache:  resolveStatusCache(opts, deps),
		DefaultLease: lease,
		Logger:       logger,
		Notifier:     opts.Notifier,
	})
	if err != nil {
		return nil, fmt.Errorf("create solve service: %w", err)
	}

	return &Runner{
		solve:      solve,
		engine:     opts.Engine,
		logger:     logger,
		lease:      lease,
		workers:    resolveWorkers(opts.Concurrency),
		cancelPoll: resolveCancelPoll(opts.CancelPollInterval),
		metrics:    opts.Metrics,
	}, nil
}

// Run starts the solve job runner and processes jobs until the context is
// cancelled. A clean shutdown returns nil.
func (r *Runner) Run(ctx context.Context) error {
	r.logger.InfoContext(ctx, "starting solve runner",
		"workers", r.workers, "lease", r.lease, "cancel_poll", r.cancelPoll)

	group, gctx := errgroup.WithContext(ctx)
	for range r.workers {
		group.Go(func() error { return r.runWorkerLoop(gctx) })
	}

	err := group.Wait()
	r.solve.StopAllListeners()
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// runWorkerLoop implements the worker loop for processing solve jobs.
func (r *Runner) runWorkerLoop(ctx context.Context) error {
	// Subscribe for wake-ups before the first reservation so a job enqueued
	// between the two is not missed.
	unsub, ch := r.solve.Subscribe()
	defer unsub()

	for ctx.Err() == nil {
		job, err := r.solve.Reserve(ctx, r.lease)
		switch {
		case err == nil:
			if job != nil {
				r.processJob(ctx, job)
			}
		case errors.Is(err, model.ErrNoJobsAvailable):
			if !r.waitForNotify(ctx, ch) {
				return nil
			}
		default:
			r.logger.ErrorContext(ctx, "failed to reserve next solve job", "error", err)
			return err
		}
	}
	return ctx.Err()
}

// processJob runs a single solve job from inputs to its terminal transition.
// Exactly one of completed, failed, or cancelled is recorded; a shutdown
// mid-solve records nothing and leaves the job to the lease requeue.
func (r *Runner) processJob(ctx context.Context, job *model.SolveJob) {
	r.logger.InfoContext(ctx, "processing solve job",
		"job_id", job.ID, "model_id", job.ModelID, "solver", job.Solver)

	stopHB := r.startHeartbeat(ctx, job.ID)
	defer stopHB()

	start := time.Now()

	r.solve.UpdateProgress(ctx, job.ID, model.JobProgress{Stage: stagePreparing})
	input, err := r.solve.SolveInputs(ctx, job)
	if err != nil {
		r.failJob(ctx, job, start, fmt.Sprintf("prepare solve: %v", err), err)
		return
	}

	r.solve.UpdateProgress(ctx, job.ID, model.JobProgress{Stage: "running " + job.Solver})
	output, solveErr := r.runSolve(ctx, job.ID, input)

	switch {
	case ctx.Err() != nil:
		// Worker shutdown mid-solve. No terminal transition: the lease
		// expires and the job is requeued for another worker.
		r.logger.WarnContext(ctx, "solve interrupted by shutdown", "job_id", job.ID)
	case errors.Is(solveErr, context.Canceled):
		// The cancel watcher stopped the solve.
		r.markCancelled(ctx, job, start)
	case solveErr != nil:
		r.failJob(ctx, job, start, solveErr.Error(), solveErr)
	case output.Status == model.SolveStatusError:
		// The solver itself reported failure. Persisting this as a completed
		// run would show a success screen for a broken model.
		r.failJob(ctx, job, start, solveFailureMessage(output), nil)
	default:
		r.completeJob(ctx, job, start, output)
	}
}

// runSolve executes one solve under a context the cancel watcher can stop.
// The engine enforces the job's own time limit; the watcher only handles
// user-requested cancellation.
func (r *Runner) runSolve(ctx context.Context, jobID string, input core.SolveInput) (*core.SolveOutput, error) {
	solveCtx, stopSolve := context.WithCancel(ctx)
	defer stopSolve()

	watcherDone := make(chan struct{})
	go r.watchForCancel(solveCtx, jobID, stopSolve, watcherDone)

	output, err := r.engine.Solve(solveCtx, input)

	stopSolve()
	<-watcherDone
	return output, err
}

// watchForCancel polls the cancel flag while a solve is in flight and stops
// the solve when cancellation is requested.
func (r *Runner) watchForCancel(ctx context.Context, jobID string, stop context.CancelFunc, done chan<- struct{}) {
	defer close(done)

	ticker := time.NewTicker(r.cancelPoll)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			requested, err := r.solve.CancelRequested(ctx, jobID)
			if err != nil {
				if ctx.Err() == nil {
					r.logger.WarnContext(ctx, "cancel flag check failed", "job_id", jobID, "error", err)
				}
				continue
			}
			if requested {
				r.logger.InfoContext(ctx, "cancel requested, stopping solve", "job_id", jobID)
				stop()
				return
			}
		}
	}
}

// completeJob persists the run results and moves the job to completed.
func (r *Runner) completeJob(ctx context.Context, job *model.SolveJob, start time.Time, out *core.SolveOutput) {
	r.solve.UpdateProgress(ctx, job.ID, model.JobProgress{Stage: stageSaving})

	run, err := r.solve.CompleteWithRun(ctx, job.ID, buildRunArtifacts(job, out, start))
	switch {
	case err == nil:
		r.logger.InfoContext(ctx, "solve job completed",
			"job_id", job.ID, "result_id", run.ID, "solve_status", run.Status)
		r.emitJobMetric(jobMetricInput{
			Job:        job,
			Transition: "completed",
			Result:     metrics.ResultSuccess,
			Elapsed:    time.Since(start),
		})
	case apperrors.IsConflict(err):
		// The job went terminal some other way while the run was being
		// written (a cancel racing completion). The run stays as history.
		r.logger.WarnContext(ctx, "job no longer running at completion", "job_id", job.ID, "error", err)
		r.emitJobMetric(jobMetricInput{
			Job:        job,
			Transition: "completed",
			Result:     metrics.ResultNoop,
			Elapsed:    time.Since(start),
		})
	default:
		r.logger.ErrorContext(ctx, "failed to complete solve job", "job_id", job.ID, "error", err)
		r.emitJobMetric(jobMetricInput{
			Job:        job,
			Transition: "completed",
			Result:     metrics.ResultError,
			Elapsed:    time.Since(start),
			Err:        err,
		})
	}
}

// markCancelled finishes the cancellation handshake for a job whose solve was
// stopped after a cancel request.
func (r *Runner) markCancelled(ctx context.Context, job *model.SolveJob, start time.Time) {
	ok, err := r.solve.MarkCancelled(ctx, job.ID)
	if err != nil {
		r.logger.ErrorContext(ctx, "failed to mark job as cancelled", "job_id", job.ID, "error", err)
		r.emitJobMetric(jobMetricInput{
			Job:        job,
			Transition: "cancelled",
			Result:     metrics.ResultError,
			Elapsed:    time.Since(start),
			Err:        err,
		})
		return
	}

	result := metrics.ResultNoop
	if ok {
		result = metrics.ResultSuccess
	}
	r.emitJobMetric(jobMetricInput{
		Job:        job,
		Transition: "cancelled",
		Result:     result,
		Elapsed:    time.Since(start),
	})
}

// failJob moves a job to failed with a reason the web client can show.
func (r *Runner) failJob(ctx context.Context, job *model.SolveJob, start time.Time, msg string, cause error) {
	r.logger.ErrorContext(ctx, "solve job failed", "job_id", job.ID, "error", msg)

	if _, err := r.solve.FailJob(ctx, job.ID, msg); err != nil {
		r.logger.ErrorContext(ctx, "failed to mark job as failed", "job_id", job.ID, "error", err)
	}
	r.emitJobMetric(jobMetricInput{
		Job:        job,
		Transition: "failed",
		Result:     metrics.ResultError,
		Elapsed:    time.Since(start),
		Err:        cause,
	})
}

// solveFailureMessage extracts the failure reason from an error-status output.
func solveFailureMessage(out *core.SolveOutput) string {
	if out.ErrorMessage != nil && *out.ErrorMessage != "" {
		return *out.ErrorMessage
	}
	return "solver reported an error"
}

// buildRunArtifacts shapes an engine report into the run row and result
// details CompleteWithRun persists.
func buildRunArtifacts(job *model.SolveJob, out *core.SolveOutput, start time.Time) service.CompleteArtifacts {
	startedAt := start.UTC()
	if job.StartedAt != nil {
		startedAt = *job.StartedAt
	}
	completedAt := time.Now().UTC()
	transcript := out.Output

	run := &model.OptimizationRun{
		ModelID:        job.ModelID,
		DataFileID:     job.DataFileID,
		SolverName:     job.Solver,
		SolverOptions:  job.Options,
		Status:         out.Status,
		ObjectiveValue: out.Objective,
		SolveTime:      out.SolveTime,
		Iterations:     out.Iterations,
		Nodes:          out.Nodes,
		Gap:            out.Gap,
		SolverOutput:   &transcript,
		StartedAt:      &startedAt,
		CompletedAt:    &completedAt,
	}

	return service.CompleteArtifacts{
		Run:         run,
		Variables:   out.Variables,
		Constraints: out.Constraints,
	}
}

// startHeartbeat starts a background ticker to extend the job lease periodically.
// It returns a stop function to end the heartbeat.
func (r *Runner) startHeartbeat(ctx context.Context, jobID string) func() {
	interval := r.lease / 2
	if interval <= 0 {
		interval = 15 * time.Second
	}
	ticker := time.NewTicker(interval)
	done := make(chan struct{})
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if ok, err := r.solve.Heartbeat(ctx, jobID, r.lease); err != nil {
					r.logger.ErrorContext(ctx, "heartbeat failed", "job_id", jobID, "error", err)
				} else if !ok {
					r.logger.WarnContext(ctx, "heartbeat not applied (job may be lost)", "job_id", jobID)
				}
			case <-done:
				return
			case <-ctx.Done():
				return
			}
		}
	}()
	return func() { close(done) }
}

// waitForNotify waits for a job notification or context cancellation.
func (r *Runner) waitForNotify(ctx context.Context, notify <-chan struct{}) bool {
	select {
	case <-ctx.Done():
		return false
	case <-notify:
		return true
	}
}

// Helper functions for dependency resolution and configuration

type runnerDeps struct {
	jobsRepo      core.JobRepository
	canceller     core.JobCanceller
	modelsRepo    core.ModelRepository
	dataFilesRepo core.DataFileRepository
	runsRepo      core.RunRepository
	cacheRepo     core.CacheRepository
}

func resolveDependencies(opts RunnerOptions) *runnerDeps {
	deps := &runnerDeps{}
	resolveJobRepos(opts, deps)
	resolveModelRepo(opts, deps)
	resolveDataFileRepo(opts, deps)
	resolveRunRepo(opts, deps)
	resolveCacheRepo(opts, deps)
	return deps
}

func validateDependencies(opts RunnerOptions, deps *runnerDeps) error {
	if deps == nil {
		return errors.New("dependencies not resolved")
	}

	required := []struct {
		name  string
		value interface{}
	}{
		{"JobRepository", deps.jobsRepo},
		{"JobCanceller", deps.canceller},
		{"ModelRepository", deps.modelsRepo},
		{"DataFileRepository", deps.dataFilesRepo},
		{"RunRepository", deps.runsRepo},
	}

	var missing []string
	for _, dep := range required {
		if dep.value == nil {
			missing = append(missing, dep.name)
		}
	}

	if len(missing) > 0 {
		noun := "dependency"
		if len(missing) > 1 {
			noun = "dependencies"
		}
		missingList := strings.Join(missing, ", ")

		if opts.DB == nil {
			return fmt.Errorf(
				"solve runner requires a DB handle or explicit implementations for the following %s: %s",
				noun,
				missingList,
			)
		}

		return fmt.Errorf("solve runner missing required %s: %s", noun, missingList)
	}

	return nil
}

// resolveJobRepos wires the job repository and the canceller. The Postgres
// job repository implements both, so one instance usually serves both roles.
func resolveJobRepos(opts RunnerOptions, deps *runnerDeps) {
	deps.jobsRepo = opts.JobsRepo
	deps.canceller = opts.Canceller
	if deps.jobsRepo != nil && deps.canceller != nil {
		return
	}
	if opts.DB == nil {
		return
	}

	repo := data.NewJobRepo(opts.DB, data.RepoConfig{
		DefaultMaxRequeues: opts.MaxRequeues,
		Logger:             opts.Logger,
	})
	if deps.jobsRepo == nil {
		deps.jobsRepo = repo
	}
	if deps.canceller == nil {
		deps.canceller = repo
	}
}

func resolveModelRepo(opts RunnerOptions, deps *runnerDeps) {
	if opts.ModelsRepo != nil {
		deps.modelsRepo = opts.ModelsRepo
		return
	}
	if opts.DB != nil {
		deps.modelsRepo = data.NewModelRepo(opts.DB)
	}
}

func resolveDataFileRepo(opts RunnerOptions, deps *runnerDeps) {
	if opts.DataFilesRepo != nil {
		deps.dataFilesRepo = opts.DataFilesRepo
		return
	}
	if opts.DB != nil {
		deps.dataFilesRepo = data.NewDataFileRepo(opts.DB)
	}
}

func resolveRunRepo(opts RunnerOptions, deps *runnerDeps) {
	if opts.RunsRepo != nil {
		deps.runsRepo = opts.RunsRepo
		return
	}
	if opts.DB != nil {
		deps.runsRepo = data.NewRunRepo(opts.DB)
	}
}

func resolveCacheRepo(opts RunnerOptions, deps *runnerDeps) {
	if opts.CacheRepo != nil {
		deps.cacheRepo = opts.CacheRepo
		return
	}
	if opts.RedisClient != nil {
		deps.cacheRepo = data.NewRedisCacheRepo(opts.RedisClient)
	}
}

// resolveStatusCache builds the snapshot store the worker publishes progress
// and terminal states through. Without a cache backend the worker skips
// snapshots and pollers fall back to database reads.
func resolveStatusCache(opts RunnerOptions, deps *runnerDeps) *core.JobStatusCache {
	if opts.StatusCache != nil {
		return opts.StatusCache
	}
	if deps.cacheRepo == nil {
		return nil
	}
	return core.NewJobStatusCache(deps.cacheRepo, opts.StatusCacheConfig)
}

func resolveLogger(l *slog.Logger) *slog.Logger {
	if l != nil {
		return l
	}
	return slog.Default()
}

func resolveLease(lease time.Duration) time.Duration {
	if lease > 0 {
		return lease
	}
	return 30 * time.Second
}

func resolveWorkers(workers int) int {
	if workers > 0 {
		return workers
	}
	return 1
}

func resolveCancelPoll(interval time.Duration) time.Duration {
	if interval > 0 {
		return interval
	}
	return 2 * time.Second
}

type jobMetricInput struct {
	Job        *model.SolveJob
	Transition string
	Result     string
	Elapsed    time.Duration
	Err        error
}

func (r *Runner) emitJobMetric(input jobMetricInput) {
	if r.metrics == nil || input.Job == nil {
		return
	}

	metrics.EmitJobLifecycle(r.metrics, metrics.JobMetric{
		Solver:     input.Job.Solver,
		Transition: input.Transition,
		Result:     input.Result,
		Duration:   input.Elapsed,
		Err:        input.Err,
	})
}
