package core

import (
	"context"
	"time"

	"github.com/optilab/optilab-api/internal/domain/model"
)

// This file contains repository interface definitions (ports in hexagonal architecture).
// These interfaces define the contracts between the service layer and data layer.
// Service implementations should depend on these interfaces, not concrete implementations.

// JobRepository defines the interface for solve job data operations.
type JobRepository interface {
	Create(ctx context.Context, req *model.SolveRequest) (*model.SolveJob, error)
	GetByID(ctx context.Context, id string) (*model.SolveJob, error)
	ReserveNext(ctx context.Context, leaseSeconds int) (*model.SolveJob, error)
	WaitForNotification(ctx context.Context) error
	Heartbeat(ctx context.Context, jobID string, leaseSeconds int) (bool, error)
	Complete(ctx context.Context, id string, resultID int64) (bool, error)
	Fail(ctx context.Context, id, errMsg string) (bool, error)
	Stats(ctx context.Context) (*model.JobStats, error)
	ListWithOptions(ctx context.Context, opts model.JobsListOptions) ([]*model.SolveJob, error)
	CountWithOptions(ctx context.Context, opts model.JobsListOptions) (int, error)
	Delete(ctx context.Context, id string) error
}

// JobCanceller defines the cancellation handshake between the API and the
// runner. Queued jobs are cancelled directly; running jobs are flagged and the
// owning worker finishes the transition.
type JobCanceller interface {
	// CancelQueued moves a queued job straight to cancelled.
	// Returns false if the job is no longer queued.
	CancelQueued(ctx context.Context, id string) (bool, error)

	// RequestCancel sets the cancel_requested flag on a running job.
	// Returns false if the job is not running.
	RequestCancel(ctx context.Context, id string) (bool, error)

	// CancelRequested reports whether cancellation has been requested for a job.
	CancelRequested(ctx context.Context, id string) (bool, error)

	// MarkCancelled moves a running job to cancelled once its worker has
	// stopped the solve. Returns false if the job is not running.
	MarkCancelled(ctx context.Context, id string) (bool, error)
}

// ModelRepository defines the interface for AMPL model data operations.
type ModelRepository interface {
	Create(ctx context.Context, req *model.CreateModelRequest) (*model.AMPLModel, error)
	GetByID(ctx context.Context, id int64) (*model.AMPLModel, error)
	GetByName(ctx context.Context, name string) (*model.AMPLModel, error)
	ListWithOptions(ctx context.Context, opts model.ModelsListOptions) ([]*model.AMPLModel, error)
	Count(ctx context.Context) (int, error)
	Update(ctx context.Context, id int64, req model.UpdateModelRequest) (*model.AMPLModel, error)
	Delete(ctx context.Context, id int64) (bool, error)
}

// DataFileRepository defines the interface for data file operations.
// Data files are always scoped to a model; the ForModel variants enforce that
// scoping at the query level.
type DataFileRepository interface {
	Create(ctx context.Context, modelID int64, req *model.CreateDataFileRequest) (*model.DataFile, error)
	GetByID(ctx context.Context, id int64) (*model.DataFile, error)
	GetForModel(ctx context.Context, modelID, id int64) (*model.DataFile, error)
	ListByModel(ctx context.Context, modelID int64) ([]*model.DataFile, error)
	Update(ctx context.Context, id int64, req model.UpdateDataFileRequest) (*model.DataFile, error)
	Delete(ctx context.Context, modelID, id int64) (bool, error)
}

// RunRepository defines the interface for optimization run data operations.
type RunRepository interface {
	// CreateWithDetails persists a run together with its variable and
	// constraint rows in a single transaction.
	CreateWithDetails(
		ctx context.Context,
		run *model.OptimizationRun,
		variables []model.VariableResult,
		constraints []model.ConstraintResult,
	) (*model.OptimizationRun, error)
	GetByID(ctx context.Context, id int64) (*model.OptimizationRun, error)
	Variables(ctx context.Context, runID int64) ([]model.VariableResult, error)
	Constraints(ctx context.Context, runID int64) ([]model.ConstraintResult, error)
	List(ctx context.Context, opts model.RunsListOptions) (*model.RunPage, error)
	Delete(ctx context.Context, id int64) (bool, error)
}

// DeleteOldJobsParams groups parameters for DeleteOldJobs.
type DeleteOldJobsParams struct {
	Status    model.JobStatus
	MaxAge    time.Duration
	BatchSize int
}

// DeleteOldRunsParams groups parameters for DeleteOldRuns.
type DeleteOldRunsParams struct {
	MaxAge    time.Duration
	BatchSize int
}

// ReaperRepository defines the interface for job cleanup operations.
type ReaperRepository interface {
	// FailStaleQueuedJobs marks queued jobs older than maxAge as failed.
	// Processes up to batchSize jobs per call to prevent long locks.
	// Returns the number of jobs marked as failed.
	FailStaleQueuedJobs(ctx context.Context, maxAge time.Duration, batchSize int) (int64, error)

	// DeleteOldJobs deletes jobs with the given terminal status older than maxAge.
	// Processes up to batchSize jobs per call to prevent long locks.
	// Returns the number of jobs deleted.
	DeleteOldJobs(ctx context.Context, params DeleteOldJobsParams) (int64, error)

	// DeleteOldRuns deletes optimization runs older than maxAge that are no
	// longer referenced by any solve job. Processes up to batchSize rows per call.
	DeleteOldRuns(ctx context.Context, params DeleteOldRunsParams) (int64, error)
}
