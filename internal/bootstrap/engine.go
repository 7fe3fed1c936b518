package bootstrap

import (
	"log/slog"

	"github.com/optilab/optilab-api/config"
	"github.com/optilab/optilab-api/internal/adapters/amplrun"
	"github.com/optilab/optilab-api/internal/adapters/demorun"
	"github.com/optilab/optilab-api/internal/core"
)

// BuildSolverEngine creates the solver engine selected by configuration.
// An unrecognised engine kind falls back to the demo engine (with a warning)
// so a misconfigured classroom deployment still serves solves.
//
//nolint:ireturn // Returning the engine interface is intentional; callers pick AMPL or demo via config.
func BuildSolverEngine(cfg config.SolverConfig, logger *slog.Logger) core.SolverEngine {
	switch cfg.Engine {
	case config.EngineKindAMPL:
		return amplrun.New(amplrun.Config{
			Binary:        cfg.AMPLBinary,
			SolverDir:     cfg.SolverDir,
			WorkRoot:      cfg.WorkDir,
			MaxTranscript: cfg.TranscriptLimit,
			Logger:        logger,
		})
	case config.EngineKindDemo:
		return demorun.New(demorun.Config{
			SolveDelay: cfg.DemoDelay,
			Logger:     logger,
		})
	default:
		if logger != nil {
			logger.Warn("unknown solver engine kind, using demo engine", "engine", cfg.Engine)
		}
		return demorun.New(demorun.Config{
			SolveDelay: cfg.DemoDelay,
			Logger:     logger,
		})
	}
}
