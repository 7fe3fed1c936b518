// Package model defines the core data types and structures used throughout the optilab solve system.
package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// JobStatus represents the current status of a solve job.
//
//nolint:recvcheck // UnmarshalText needs pointer receiver, Valid needs value receiver
type JobStatus string

const (
	// JobStatusQueued indicates a job is waiting for a worker.
	JobStatusQueued JobStatus = "queued"
	// JobStatusRunning indicates a job is currently being solved.
	JobStatusRunning JobStatus = "running"
	// JobStatusCompleted indicates a job has finished with a persisted result.
	JobStatusCompleted JobStatus = "completed"
	// JobStatusFailed indicates a job has failed to complete.
	JobStatusFailed JobStatus = "failed"
	// JobStatusCancelled indicates a job was cancelled before producing a result.
	JobStatusCancelled JobStatus = "cancelled"
)

// ErrNoJobsAvailable is returned when no jobs are available for reservation.
var ErrNoJobsAvailable = errors.New("no jobs available")

// UnmarshalText implements encoding.TextUnmarshaler for JobStatus to allow env and query parsing.
func (s *JobStatus) UnmarshalText(text []byte) error {
	v := JobStatus(strings.ToLower(strings.TrimSpace(string(text))))
	if v.Valid() {
		*s = v
		return nil
	}
	return fmt.Errorf("invalid JobStatus: %q", v)
}

// Valid returns true if the JobStatus is valid.
func (s JobStatus) Valid() bool {
	switch s {
	case JobStatusQueued, JobStatusRunning, JobStatusCompleted, JobStatusFailed, JobStatusCancelled:
		return true
	default:
		return false
	}
}

// Terminal reports whether the status is a final state. Terminal jobs never
// transition again; completed implies a result row exists and failed implies
// an error message exists.
func (s JobStatus) Terminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed || s == JobStatusCancelled
}

// SolveJob represents a queued or executing solve with all its metadata.
// The row is transient bookkeeping: results live in optimization_runs and
// survive after the job row is reaped.
type SolveJob struct {
	ID              string          `json:"id"                         db:"id"`
	ModelID         int64           `json:"model_id"                   db:"model_id"`
	DataFileID      *int64          `json:"data_file_id,omitempty"     db:"data_file_id"`
	Solver          string          `json:"solver"                     db:"solver"`
	Options         json.RawMessage `json:"options,omitempty"          db:"options"`
	TimeoutSeconds  int             `json:"timeout_seconds"            db:"timeout_seconds"`
	Status          JobStatus       `json:"status"                     db:"status"`
	ResultID        *int64          `json:"result_id,omitempty"        db:"result_id"`
	LastError       *string         `json:"last_error,omitempty"       db:"last_error"`
	CancelRequested bool            `json:"cancel_requested"           db:"cancel_requested"`
	RequeueCount    int             `json:"requeue_count"              db:"requeue_count"`
	MaxRequeues     int             `json:"max_requeues"               db:"max_requeues"`
	StartedAt       *time.Time      `json:"started_at,omitempty"       db:"started_at"`
	CompletedAt     *time.Time      `json:"completed_at,omitempty"     db:"completed_at"`
	LeaseExpiresAt  *time.Time      `json:"lease_expires_at,omitempty" db:"lease_expires_at"`
	CreatedAt       time.Time       `json:"created_at"                 db:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"                 db:"updated_at"`
}

// Solve timeout bounds in seconds.
const (
	MinSolveTimeout     = 1
	MaxSolveTimeout     = 3600
	DefaultSolveTimeout = 300
)

// DefaultSolver is used when a solve request does not name one.
const DefaultSolver = "highs"

// SolveRequest represents a request to run an optimization model.
type SolveRequest struct {
	ModelID    int64           `json:"model_id"`
	DataFileID *int64          `json:"data_file_id,omitempty"`
	Solver     string          `json:"solver,omitempty"`
	Options    json.RawMessage `json:"options,omitempty"`
	Timeout    int             `json:"timeout,omitempty"`
}

// Validate validates the SolveRequest fields, normalizing the solver name and
// applying defaults for solver and timeout.
func (r *SolveRequest) Validate() error {
	if r.ModelID <= 0 {
		return errors.New("model_id is required")
	}
	if r.DataFileID != nil && *r.DataFileID <= 0 {
		return errors.New("data_file_id must be > 0")
	}
	r.Solver = strings.ToLower(strings.TrimSpace(r.Solver))
	if r.Solver == "" {
		r.Solver = DefaultSolver
	}
	if !KnownSolver(r.Solver) {
		return fmt.Errorf("unknown solver: %q", r.Solver)
	}
	if r.Timeout == 0 {
		r.Timeout = DefaultSolveTimeout
	}
	if r.Timeout < MinSolveTimeout || r.Timeout > MaxSolveTimeout {
		return fmt.Errorf("timeout must be between %d and %d seconds", MinSolveTimeout, MaxSolveTimeout)
	}
	if len(r.Options) > 0 && !json.Valid(r.Options) {
		return errors.New("options must be a valid JSON object")
	}
	return nil
}

// JobProgress describes where a running solve currently is. Stage is a short
// machine token, Message a human-readable elaboration.
type JobProgress struct {
	Stage   string `json:"stage"`
	Message string `json:"message,omitempty"`
}

// JobStatusSnapshot is the polled view of a job held in the status store.
// ResultID is set only when Status is completed, Error only when failed.
type JobStatusSnapshot struct {
	JobID     string       `json:"job_id"`
	Status    JobStatus    `json:"status"`
	Progress  *JobProgress `json:"progress,omitempty"`
	ResultID  *int64       `json:"result_id,omitempty"`
	Error     *string      `json:"error,omitempty"`
	UpdatedAt time.Time    `json:"updated_at"`
}

// CancelOutcome describes what a cancel request achieved. Queued jobs go
// terminal at once; for running jobs Requested reports that the flag was set
// and the worker will finish the transition; terminal jobs are acknowledged
// unchanged.
type CancelOutcome struct {
	JobID     string    `json:"job_id"`
	Status    JobStatus `json:"status"`
	Requested bool      `json:"cancel_requested,omitempty"`
}

// JobStats represents counts of jobs in each state.
type JobStats struct {
	Queued    int `json:"queued"`
	Running   int `json:"running"`
	Completed int `json:"completed"`
	Failed    int `json:"failed"`
	Cancelled int `json:"cancelled"`
}

// JobsListOptions holds optional filters for listing solve jobs.
type JobsListOptions struct {
	Limit   int
	Offset  int
	Status  *JobStatus
	ModelID *int64
}
