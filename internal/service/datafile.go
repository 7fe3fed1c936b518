package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/optilab/optilab-api/internal/core"
	"github.com/optilab/optilab-api/internal/data"
	"github.com/optilab/optilab-api/internal/domain/model"
	apperrors "github.com/optilab/optilab-api/internal/errors"
)

// DataFileServiceOptions groups dependencies for DataFileService.
type DataFileServiceOptions struct {
	Repo   core.DataFileRepository // Required: data file repository
	Models core.ModelRepository    // Required: parent model existence checks
	Logger *slog.Logger            // Optional: structured logger
}

// DataFileService provides business logic for data files nested under models.
type DataFileService struct {
	repo   core.DataFileRepository
	models core.ModelRepository
	logger *slog.Logger
}

// NewDataFileService constructs a new DataFileService.
func NewDataFileService(opts DataFileServiceOptions) (*DataFileService, error) {
	if opts.Repo == nil {
		return nil, errors.New("DataFileRepository is required")
	}
	if opts.Models == nil {
		return nil, errors.New("ModelRepository is required")
	}

	var logger *slog.Logger
	if opts.Logger != nil {
		logger = opts.Logger.With("component", "data_file_service")
	}

	return &DataFileService{
		repo:   opts.Repo,
		models: opts.Models,
		logger: logger,
	}, nil
}

// MustNewDataFileService constructs a new DataFileService and panics on error.
func MustNewDataFileService(opts DataFileServiceOptions) *DataFileService {
	svc, err := NewDataFileService(opts)
	if err != nil {
		//nolint:forbidigo // Must constructor fails fast when dependencies are invalid during startup
		panic(fmt.Sprintf("failed to create DataFileService: %v", err))
	}
	return svc
}

// Create stores a new data file under a model. The parent model must exist.
func (s *DataFileService) Create(
	ctx context.Context,
	modelID int64,
	req *model.CreateDataFileRequest,
) (*model.DataFile, error) {
	if err := req.Validate(); err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeValidation, "invalid data file")
	}
	if _, err := s.models.GetByID(ctx, modelID); err != nil {
		return nil, fmt.Errorf("get model: %w", err)
	}

	f, err := s.repo.Create(ctx, modelID, req)
	if err != nil {
		return nil, fmt.Errorf("create data file: %w", err)
	}

	if s.logger != nil {
		s.logger.InfoContext(ctx, "data file created",
			"data_file_id", f.ID, "model_id", modelID, "name", f.Name)
	}
	return f, nil
}

// GetByID retrieves a data file by ID.
func (s *DataFileService) GetByID(ctx context.Context, id int64) (*model.DataFile, error) {
	f, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get data file: %w", err)
	}
	return f, nil
}

// ListByModel lists a model's data files. The model must exist.
func (s *DataFileService) ListByModel(ctx context.Context, modelID int64) ([]*model.DataFile, error) {
	if _, err := s.models.GetByID(ctx, modelID); err != nil {
		return nil, fmt.Errorf("get model: %w", err)
	}
	files, err := s.repo.ListByModel(ctx, modelID)
	if err != nil {
		return nil, fmt.Errorf("list data files: %w", err)
	}
	return files, nil
}

// Update applies a partial update to a data file.
func (s *DataFileService) Update(
	ctx context.Context,
	id int64,
	req model.UpdateDataFileRequest,
) (*model.DataFile, error) {
	if err := req.Validate(); err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeValidation, "invalid data file update")
	}

	f, err := s.repo.Update(ctx, id, req)
	if err != nil {
		return nil, fmt.Errorf("update data file: %w", err)
	}
	return f, nil
}

// Delete removes a data file by ID. The lookup resolves the owning model so
// the repository can keep its model-scoped delete.
func (s *DataFileService) Delete(ctx context.Context, id int64) (bool, error) {
	f, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, data.ErrDataFileNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("get data file: %w", err)
	}

	deleted, err := s.repo.Delete(ctx, f.ModelID, id)
	if err != nil {
		return false, fmt.Errorf("delete data file: %w", err)
	}
	if deleted && s.logger != nil {
		s.logger.InfoContext(ctx, "data file deleted", "data_file_id", id, "model_id", f.ModelID)
	}
	return deleted, nil
}
