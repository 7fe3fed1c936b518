package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/optilab/optilab-api/internal/domain/model"
)

// ServiceMode represents the available service modes.
type ServiceMode string

const (
	// ServiceModeHTTP runs the HTTP API server.
	ServiceModeHTTP ServiceMode = "http"
	// ServiceModeSolverRunner runs the solve job worker.
	ServiceModeSolverRunner ServiceMode = "solver-runner"
	// ServiceModeReaper runs the job reaper for cleanup.
	ServiceModeReaper ServiceMode = "reaper"
)

// ValidServiceModes returns all valid service mode names.
func ValidServiceModes() []ServiceMode {
	return []ServiceMode{
		ServiceModeHTTP,
		ServiceModeSolverRunner,
		ServiceModeReaper,
	}
}

// ParseServices parses a comma-delimited string of service names and returns the enabled services.
// It validates that all service names are valid and returns an error if any are invalid.
func ParseServices(servicesStr string) (map[ServiceMode]bool, error) {
	services := make(map[ServiceMode]bool)

	if servicesStr == "" {
		return services, errors.New("at least one service must be specified")
	}

	parts := strings.Split(servicesStr, ",")
	for _, part := range parts {
		serviceName := strings.TrimSpace(part)
		if serviceName == "" {
			continue
		}

		mode := ServiceMode(serviceName)
		switch mode {
		case ServiceModeHTTP,
			ServiceModeSolverRunner,
			ServiceModeReaper:
			services[mode] = true
		default:
			return nil, fmt.Errorf(
				"invalid service name: %q (valid options: http, solver-runner, reaper)",
				serviceName,
			)
		}
	}

	if len(services) == 0 {
		return nil, errors.New("at least one valid service must be specified")
	}

	return services, nil
}

// EngineKind selects the solver engine implementation.
type EngineKind string

const (
	// EngineKindAMPL runs solves through a local AMPL installation.
	EngineKindAMPL EngineKind = "ampl"
	// EngineKindDemo fabricates plausible results without any solver installed.
	EngineKindDemo EngineKind = "demo"
)

// UnmarshalText implements encoding.TextUnmarshaler for EngineKind.
func (e *EngineKind) UnmarshalText(text []byte) error {
	v := strings.ToLower(strings.TrimSpace(string(text)))
	switch v {
	case "ampl", "demo":
		*e = EngineKind(v)
		return nil
	default:
		return fmt.Errorf("invalid SOLVER_ENGINE: %q (valid options: ampl, demo)", v)
	}
}

// SolverConfig contains solver engine configuration.
type SolverConfig struct {
	// Engine selects the solve backend. The demo engine is the default so a
	// classroom deployment works without an AMPL license.
	Engine EngineKind `env:"SOLVER_ENGINE" envDefault:"demo"`

	// AMPLBinary is the AMPL executable, resolved through PATH when relative.
	AMPLBinary string `env:"SOLVER_AMPL_BINARY" envDefault:"ampl"`

	// SolverDir, when set, is prepended to PATH so solver binaries shipped
	// next to AMPL are found.
	SolverDir string `env:"SOLVER_DIR"`

	// WorkDir is the parent directory for per-solve scratch directories.
	// Empty means the system temp directory.
	WorkDir string `env:"SOLVER_WORK_DIR"`

	// TranscriptLimit caps the solver output kept on a run, in bytes.
	// Zero means the engine default.
	TranscriptLimit int `env:"SOLVER_TRANSCRIPT_LIMIT" envDefault:"0"`

	// DemoDelay makes demo solves take a realistic amount of wall time so the
	// polling UI has something to watch.
	DemoDelay time.Duration `env:"SOLVER_DEMO_DELAY" envDefault:"1500ms"`

	// DefaultSolver is used when a solve request does not name one.
	DefaultSolver string `env:"SOLVER_DEFAULT_SOLVER" envDefault:"highs"`

	// DefaultTimeout is the per-solve time limit in seconds applied when a
	// request does not set one.
	DefaultTimeout int `env:"SOLVER_DEFAULT_TIMEOUT" envDefault:"300"`
}

// Sanitize applies guardrails to solver configuration values.
func (s *SolverConfig) Sanitize() {
	if s.Engine == "" {
		s.Engine = EngineKindDemo
	}
	if s.AMPLBinary = strings.TrimSpace(s.AMPLBinary); s.AMPLBinary == "" {
		s.AMPLBinary = "ampl"
	}
	if s.TranscriptLimit < 0 {
		s.TranscriptLimit = 0
	}
	if s.DemoDelay < 0 {
		s.DemoDelay = 0
	}

	s.DefaultSolver = strings.ToLower(strings.TrimSpace(s.DefaultSolver))
	if !model.KnownSolver(s.DefaultSolver) {
		s.DefaultSolver = model.DefaultSolver
	}

	if s.DefaultTimeout < model.MinSolveTimeout || s.DefaultTimeout > model.MaxSolveTimeout {
		s.DefaultTimeout = model.DefaultSolveTimeout
	}
}

// RunnerConfig contains solve runner service configuration.
type RunnerConfig struct {
	// Concurrency is the number of worker goroutines.
	Concurrency int `env:"RUNNER_CONCURRENCY" envDefault:"2"`

	// JobLease is the duration to lease a solve job. Workers heartbeat to
	// extend it; a job whose lease expires is requeued for another worker.
	JobLease time.Duration `env:"RUNNER_JOB_LEASE" envDefault:"30s"`

	// CancelPollInterval is how often an in-flight solve checks for a
	// cancellation request.
	CancelPollInterval time.Duration `env:"RUNNER_CANCEL_POLL_INTERVAL" envDefault:"2s"`

	// MaxRequeues caps how many times a job abandoned by a crashed worker is
	// put back on the queue before being failed outright.
	MaxRequeues int `env:"RUNNER_MAX_REQUEUES" envDefault:"3"`
}

// Sanitize applies guardrails to runner configuration values.
func (r *RunnerConfig) Sanitize() {
	if r.Concurrency < 1 {
		r.Concurrency = 1
	}
	if r.JobLease < 5*time.Second {
		r.JobLease = 5 * time.Second
	}
	if r.CancelPollInterval < 250*time.Millisecond {
		r.CancelPollInterval = 250 * time.Millisecond
	}
	if r.MaxRequeues < 0 {
		r.MaxRequeues = 0
	}
}

// ReaperConfig contains job reaper service configuration.
type ReaperConfig struct {
	// Interval is the reaper tick interval.
	Interval time.Duration `env:"REAPER_INTERVAL" envDefault:"5m"`

	// QueuedMaxAge is the maximum age for queued jobs before they are marked as failed.
	// Jobs stuck in queued status longer than this will be failed.
	QueuedMaxAge time.Duration `env:"REAPER_QUEUED_MAX_AGE" envDefault:"1h"`

	// CompletedMaxAge is the maximum age for completed jobs before deletion.
	CompletedMaxAge time.Duration `env:"REAPER_COMPLETED_MAX_AGE" envDefault:"168h"` // 7 days

	// FailedMaxAge is the maximum age for failed jobs before deletion.
	FailedMaxAge time.Duration `env:"REAPER_FAILED_MAX_AGE" envDefault:"168h"` // 7 days

	// CancelledMaxAge is the maximum age for cancelled jobs before deletion.
	CancelledMaxAge time.Duration `env:"REAPER_CANCELLED_MAX_AGE" envDefault:"168h"` // 7 days

	// RunsMaxAge is the maximum age for stored optimization runs before deletion.
	// Runs outlive their jobs so students can revisit results; this bounds how long.
	RunsMaxAge time.Duration `env:"REAPER_RUNS_MAX_AGE" envDefault:"2160h"` // 90 days

	// BatchSize is the maximum number of rows to process per operation.
	// Batching prevents long locks and I/O spikes on large tables.
	BatchSize int `env:"REAPER_BATCH_SIZE" envDefault:"1000"`
}

// Sanitize applies guardrails to reaper configuration values.
func (r *ReaperConfig) Sanitize() {
	// Enforce minimum intervals to prevent excessive database load
	if r.Interval < 1*time.Minute {
		r.Interval = 1 * time.Minute
	}
	if r.QueuedMaxAge < 5*time.Minute {
		r.QueuedMaxAge = 5 * time.Minute
	}
	if r.CompletedMaxAge < 1*time.Hour {
		r.CompletedMaxAge = 1 * time.Hour
	}
	if r.FailedMaxAge < 1*time.Hour {
		r.FailedMaxAge = 1 * time.Hour
	}
	if r.CancelledMaxAge < 1*time.Hour {
		r.CancelledMaxAge = 1 * time.Hour
	}
	if r.RunsMaxAge < 24*time.Hour {
		r.RunsMaxAge = 24 * time.Hour
	}

	// Enforce batch size bounds to prevent excessive locks or inefficiency
	if r.BatchSize < 1 {
		r.BatchSize = 1
	}
	if r.BatchSize > 10000 {
		r.BatchSize = 10000
	}
}
