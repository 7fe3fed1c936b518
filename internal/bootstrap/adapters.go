package bootstrap

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/optilab/optilab-api/config"
	"github.com/optilab/optilab-api/internal/adapters/reaper"
	"github.com/optilab/optilab-api/internal/adapters/solverunner"
	"github.com/optilab/optilab-api/internal/core"
	"github.com/optilab/optilab-api/internal/observability/statsd"
	"github.com/redis/go-redis/v9"
)

// SolveRunnerConfig contains configuration for the solve runner.
type SolveRunnerConfig struct {
	DB          *sql.DB
	RedisClient redis.UniversalClient
	Logger      *slog.Logger

	// Engine executes solves; the runner refuses to start without one.
	Engine core.SolverEngine

	Lease              time.Duration
	Concurrency        int
	CancelPollInterval time.Duration
	MaxRequeues        int

	// Status snapshot TTLs for the cache the runner publishes into.
	StatusActiveTTL   time.Duration
	StatusTerminalTTL time.Duration

	Metrics statsd.Sink
}

// RunSolveRunner starts the worker that executes queued solve jobs.
func RunSolveRunner(ctx context.Context, cfg SolveRunnerConfig) error {
	runner, err := solverunner.NewRunner(solverunner.RunnerOptions{
		DB:                 cfg.DB,
		RedisClient:        cfg.RedisClient,
		Logger:             cfg.Logger,
		Engine:             cfg.Engine,
		Lease:              cfg.Lease,
		Concurrency:        cfg.Concurrency,
		CancelPollInterval: cfg.CancelPollInterval,
		MaxRequeues:        cfg.MaxRequeues,
		StatusCacheConfig: core.JobStatusCacheConfig{
			ActiveTTL:   cfg.StatusActiveTTL,
			TerminalTTL: cfg.StatusTerminalTTL,
		},
		Metrics: cfg.Metrics,
	})
	if err != nil {
		return fmt.Errorf("create solve runner: %w", err)
	}

	return runner.Run(ctx)
}

// ReaperConfig contains configuration for reaper.
type ReaperConfig struct {
	DB      *sql.DB
	Logger  *slog.Logger
	Config  config.ReaperConfig
	Metrics statsd.Sink
}

// RunReaper starts the reaper service.
func RunReaper(ctx context.Context, cfg ReaperConfig) error {
	runner, err := reaper.NewRunner(reaper.RunnerOptions{
		DB:      cfg.DB,
		Config:  cfg.Config,
		Logger:  cfg.Logger,
		Metrics: cfg.Metrics,
	})
	if err != nil {
		return fmt.Errorf("create reaper runner: %w", err)
	}

	return runner.Run(ctx)
}
