package data

import (
	"database/sql"
	"errors"
	"log/slog"
)

var (
	// ErrJobNotFound is returned when a solve job is not found.
	ErrJobNotFound = errors.New("job not found")
	// ErrJobNotDeletable is returned when attempting to delete a job that is not in a deletable state.
	ErrJobNotDeletable = errors.New("job cannot be deleted (must be in queued, completed, failed, or cancelled status)")
	// ErrJobReserved is returned when attempting to delete a job that has an active lease.
	ErrJobReserved = errors.New("job is reserved and cannot be deleted")
)

// RepoConfig holds configuration options for the solve job repository.
type RepoConfig struct {
	// DefaultMaxRequeues caps how many times a job abandoned by a crashed
	// worker is put back on the queue before being failed outright.
	DefaultMaxRequeues int
	Logger             *slog.Logger
	TimeProvider       TimeProvider
}

// JobRepo provides database operations for solve job management.
type JobRepo struct {
	DB           *sql.DB
	cfg          RepoConfig
	timeProvider TimeProvider
	logger       *slog.Logger
}

// NewJobRepo creates a new JobRepo instance with the given database connection and configuration.
func NewJobRepo(db *sql.DB, cfg RepoConfig) *JobRepo {
	tp := cfg.TimeProvider
	if tp == nil {
		tp = &RealTimeProvider{}
	}

	return &JobRepo{
		DB:           db,
		cfg:          cfg,
		timeProvider: tp,
		logger:       cfg.Logger,
	}
}

const jobColumns = `
  id,
  model_id,
  data_file_id,
  solver,
  options,
  timeout_seconds,
  status,
  result_id,
  last_error,
  cancel_requested,
  requeue_count,
  max_requeues,
  started_at,
  completed_at,
  lease_expires_at,
  created_at,
  updated_at
`
