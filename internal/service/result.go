package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	jmespath "github.com/jmespath-community/go-jmespath"
	"golang.org/x/sync/errgroup"

	"github.com/optilab/optilab-api/internal/core"
	"github.com/optilab/optilab-api/internal/domain/model"
	apperrors "github.com/optilab/optilab-api/internal/errors"
)

// JMESPathEvaluator abstracts JMESPath operations for testability.
type JMESPathEvaluator interface {
	Validate(expr string) error
	Evaluate(expr string, data any) (any, error)
}

// jmespathLibEvaluator implements JMESPathEvaluator using go-jmespath.
type jmespathLibEvaluator struct{}

func (j jmespathLibEvaluator) Validate(expr string) error {
	_, err := jmespath.Compile(expr)
	return err
}

func (j jmespathLibEvaluator) Evaluate(expr string, data any) (any, error) {
	return jmespath.Search(expr, data)
}

// ResultServiceOptions groups dependencies for ResultService.
type ResultServiceOptions struct {
	Repo      core.RunRepository // Required: run repository
	Evaluator JMESPathEvaluator  // Optional: defaults to the library evaluator
	Logger    *slog.Logger       // Optional: structured logger
}

// ResultService serves durable solve results: full run details, paged
// history, deletion, and ad-hoc JMESPath queries over a run.
type ResultService struct {
	runs   core.RunRepository
	jems   JMESPathEvaluator
	logger *slog.Logger
}

// NewResultService constructs a new ResultService.
func NewResultService(opts ResultServiceOptions) (*ResultService, error) {
	if opts.Repo == nil {
		return nil, errors.New("RunRepository is required")
	}

	jems := opts.Evaluator
	if jems == nil {
		jems = jmespathLibEvaluator{}
	}

	var logger *slog.Logger
	if opts.Logger != nil {
		logger = opts.Logger.With("component", "result_service")
	}

	return &ResultService{
		runs:   opts.Repo,
		jems:   jems,
		logger: logger,
	}, nil
}

// MustNewResultService constructs a new ResultService and panics on error.
func MustNewResultService(opts ResultServiceOptions) *ResultService {
	svc, err := NewResultService(opts)
	if err != nil {
		//nolint:forbidigo // Must constructor fails fast when dependencies are invalid during startup
		panic(fmt.Sprintf("failed to create ResultService: %v", err))
	}
	return svc
}

// Get returns the full run detail. The variable and constraint result sets
// are independent reads, so they load concurrently.
func (s *ResultService) Get(ctx context.Context, id int64) (*model.RunDetail, error) {
	run, err := s.runs.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get run: %w", err)
	}

	detail := &model.RunDetail{OptimizationRun: *run}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		variables, verr := s.runs.Variables(gctx, id)
		if verr != nil {
			return fmt.Errorf("load variable results: %w", verr)
		}
		detail.Variables = variables
		return nil
	})
	g.Go(func() error {
		constraints, cerr := s.runs.Constraints(gctx, id)
		if cerr != nil {
			return fmt.Errorf("load constraint results: %w", cerr)
		}
		detail.Constraints = constraints
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return detail, nil
}

// List returns one page of run history with the unpaged total.
func (s *ResultService) List(ctx context.Context, opts model.RunsListOptions) (*model.RunPage, error) {
	page, err := s.runs.List(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	return page, nil
}

// Delete removes a run and its detail rows.
func (s *ResultService) Delete(ctx context.Context, id int64) (bool, error) {
	deleted, err := s.runs.Delete(ctx, id)
	if err != nil {
		return false, fmt.Errorf("delete run: %w", err)
	}
	if deleted && s.logger != nil {
		s.logger.InfoContext(ctx, "run deleted", "run_id", id)
	}
	return deleted, nil
}

// Query evaluates a JMESPath expression against the serialized run detail.
// The detail round-trips through JSON so expressions see exactly the wire
// shapes the API serves.
func (s *ResultService) Query(ctx context.Context, id int64, expression string) (any, error) {
	if strings.TrimSpace(expression) == "" {
		return nil, apperrors.ValidationField("expression", "expression is required")
	}
	if err := s.jems.Validate(expression); err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeValidation, "invalid JMESPath expression")
	}

	detail, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	raw, err := json.Marshal(detail)
	if err != nil {
		return nil, fmt.Errorf("marshal run detail: %w", err)
	}
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("decode run detail: %w", err)
	}

	result, err := s.jems.Evaluate(expression, doc)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeValidation, "JMESPath evaluation failed")
	}
	return result, nil
}
