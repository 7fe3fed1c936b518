package service

import (
	"context"
	"log/slog"

	"github.com/optilab/optilab-api/internal/core"
	"github.com/optilab/optilab-api/internal/domain/model"
)

// SolverCatalogServiceOptions groups dependencies for SolverCatalogService.
type SolverCatalogServiceOptions struct {
	// Engine probes which solvers are actually installed. Optional: without
	// it the static catalog is served with every solver unavailable.
	Engine core.SolverEngine
	Logger *slog.Logger
}

// SolverCatalogService serves the solver catalog, overlaying live
// availability from the engine onto the static solver descriptions.
type SolverCatalogService struct {
	engine core.SolverEngine
	logger *slog.Logger
}

// NewSolverCatalogService constructs a new SolverCatalogService.
func NewSolverCatalogService(opts SolverCatalogServiceOptions) *SolverCatalogService {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &SolverCatalogService{
		engine: opts.Engine,
		logger: logger.With("component", "solver_catalog_service"),
	}
}

// Solvers lists every solver the platform knows about with its current
// availability. A missing or failing engine degrades to the static catalog
// rather than an error: the UI still renders its solver picker, everything
// just shows as unavailable.
func (s *SolverCatalogService) Solvers(ctx context.Context) ([]model.SolverInfo, error) {
	if s.engine == nil {
		return model.SolverCatalog(), nil
	}
	infos, err := s.engine.Solvers(ctx)
	if err != nil {
		s.logger.WarnContext(ctx, "solver availability probe failed", "error", err)
		return model.SolverCatalog(), nil
	}
	return infos, nil
}
