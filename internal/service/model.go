package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/optilab/optilab-api/internal/core"
	"github.com/optilab/optilab-api/internal/domain/ampl"
	"github.com/optilab/optilab-api/internal/domain/model"
	apperrors "github.com/optilab/optilab-api/internal/errors"
)

// ModelServiceOptions groups dependencies for ModelService.
type ModelServiceOptions struct {
	Repo      core.ModelRepository    // Required: model repository
	DataFiles core.DataFileRepository // Optional: sizes declared sets from stored data in Info
	Engine    core.SolverEngine       // Optional: enables syntax validation
	Logger    *slog.Logger            // Optional: structured logger
}

// ModelService provides business logic for stored AMPL models: CRUD, syntax
// validation through the solver engine, and structural inspection.
type ModelService struct {
	repo      core.ModelRepository
	dataFiles core.DataFileRepository
	engine    core.SolverEngine
	logger    *slog.Logger
}

// NewModelService constructs a new ModelService.
func NewModelService(opts ModelServiceOptions) (*ModelService, error) {
	if opts.Repo == nil {
		return nil, errors.New("ModelRepository is required")
	}

	var logger *slog.Logger
	if opts.Logger != nil {
		logger = opts.Logger.With("component", "model_service")
	}

	return &ModelService{
		repo:      opts.Repo,
		dataFiles: opts.DataFiles,
		engine:    opts.Engine,
		logger:    logger,
	}, nil
}

// MustNewModelService constructs a new ModelService and panics on error.
// Use this when you're certain the options are valid (e.g., in main.go).
func MustNewModelService(opts ModelServiceOptions) *ModelService {
	svc, err := NewModelService(opts)
	if err != nil {
		//nolint:forbidigo // Must constructor fails fast when dependencies are invalid during startup
		panic(fmt.Sprintf("failed to create ModelService: %v", err))
	}
	return svc
}

// Create stores a new model after validating the request.
func (s *ModelService) Create(ctx context.Context, req *model.CreateModelRequest) (*model.AMPLModel, error) {
	if err := req.Validate(); err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeValidation, "invalid model")
	}

	m, err := s.repo.Create(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("create model: %w", err)
	}

	if s.logger != nil {
		s.logger.InfoContext(ctx, "model created", "model_id", m.ID, "name", m.Name)
	}
	return m, nil
}

// GetByID retrieves a model by ID.
func (s *ModelService) GetByID(ctx context.Context, id int64) (*model.AMPLModel, error) {
	m, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get model: %w", err)
	}
	return m, nil
}

// List returns a page of models.
func (s *ModelService) List(ctx context.Context, opts model.ModelsListOptions) ([]*model.AMPLModel, error) {
	if opts.Limit <= 0 {
		opts.Limit = 50
	}
	if opts.Limit > 1000 {
		opts.Limit = 1000
	}
	if opts.Offset < 0 {
		opts.Offset = 0
	}
	return s.repo.ListWithOptions(ctx, opts)
}

// Count returns the total number of stored models.
func (s *ModelService) Count(ctx context.Context) (int, error) {
	return s.repo.Count(ctx)
}

// Update applies a partial update to a model.
func (s *ModelService) Update(ctx context.Context, id int64, req model.UpdateModelRequest) (*model.AMPLModel, error) {
	if err := req.Validate(); err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeValidation, "invalid model update")
	}

	m, err := s.repo.Update(ctx, id, req)
	if err != nil {
		return nil, fmt.Errorf("update model: %w", err)
	}
	return m, nil
}

// Delete removes a model along with its data files, stored run history, and
// any pending solve jobs. The database cascades all of it in one statement.
func (s *ModelService) Delete(ctx context.Context, id int64) (bool, error) {
	deleted, err := s.repo.Delete(ctx, id)
	if err != nil {
		return false, fmt.Errorf("delete model: %w", err)
	}
	if deleted && s.logger != nil {
		s.logger.InfoContext(ctx, "model deleted", "model_id", id)
	}
	return deleted, nil
}

// Validate syntax-checks a stored model through the solver engine without
// solving it.
func (s *ModelService) Validate(ctx context.Context, id int64) (*model.ModelValidation, error) {
	m, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get model: %w", err)
	}
	if s.engine == nil {
		return nil, apperrors.Unavailable("no solver engine is configured for validation")
	}

	validation, err := s.engine.ValidateModel(ctx, m.ModelContent)
	if err != nil {
		return nil, fmt.Errorf("validate model: %w", err)
	}
	return validation, nil
}

// Info describes the structure of a stored model: declared sets, parameters,
// variables, objectives and constraints. Set sizes are filled in from the
// model's first data file when one exists; the scan is lexical, so a model
// that hides declarations behind include directives reports only what is in
// its own text.
func (s *ModelService) Info(ctx context.Context, id int64) (*model.ModelInfo, error) {
	m, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get model: %w", err)
	}

	outline := ampl.ScanModel(m.ModelContent)
	sizes := s.setSizes(ctx, id)

	return &model.ModelInfo{
		Sets:        components(outline.Sets, sizes),
		Parameters:  components(outline.Parameters, nil),
		Variables:   components(outline.Variables, nil),
		Objectives:  components(outline.Objectives, nil),
		Constraints: components(outline.Constraints, nil),
	}, nil
}

// setSizes scans the model's first data file for set memberships. Sizing is
// best-effort; a missing or unparsable data file leaves sizes nil.
func (s *ModelService) setSizes(ctx context.Context, modelID int64) map[string]int {
	if s.dataFiles == nil {
		return nil
	}

	files, err := s.dataFiles.ListByModel(ctx, modelID)
	if err != nil || len(files) == 0 {
		return nil
	}

	members := ampl.ScanDataSets(files[0].FileContent)
	if len(members) == 0 {
		return nil
	}

	sizes := make(map[string]int, len(members))
	for name, m := range members {
		sizes[name] = len(m)
	}
	return sizes
}

func components(decls []ampl.Declaration, sizes map[string]int) []model.ModelComponent {
	out := make([]model.ModelComponent, 0, len(decls))
	for _, d := range decls {
		c := model.ModelComponent{Name: d.Name}
		if n, ok := sizes[d.Name]; ok {
			size := n
			c.Size = &size
		}
		out = append(out, c)
	}
	return out
}
