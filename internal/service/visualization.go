package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/optilab/optilab-api/internal/core"
	"github.com/optilab/optilab-api/internal/data"
	"github.com/optilab/optilab-api/internal/domain/model"
)

// visEpsilon separates real flows and duals from solver rounding noise.
const visEpsilon = 0.001

// emptyNetworkReason explains a diagram with no edges.
const emptyNetworkReason = "No 2-index flow variables with positive values were found."

// VisualizationServiceOptions groups dependencies for VisualizationService.
type VisualizationServiceOptions struct {
	Repo   core.RunRepository // Required: run repository
	Logger *slog.Logger       // Optional: structured logger
}

// VisualizationService reshapes stored run results into the structures the
// UI charts and diagrams consume. Network views work best for transportation,
// assignment and flow problems, where two-index variables read as flows.
type VisualizationService struct {
	runs   core.RunRepository
	logger *slog.Logger
}

// NewVisualizationService constructs a new VisualizationService.
func NewVisualizationService(opts VisualizationServiceOptions) (*VisualizationService, error) {
	if opts.Repo == nil {
		return nil, errors.New("RunRepository is required")
	}

	var logger *slog.Logger
	if opts.Logger != nil {
		logger = opts.Logger.With("component", "visualization_service")
	}

	return &VisualizationService{runs: opts.Repo, logger: logger}, nil
}

// MustNewVisualizationService constructs a new VisualizationService and panics on error.
func MustNewVisualizationService(opts VisualizationServiceOptions) *VisualizationService {
	svc, err := NewVisualizationService(opts)
	if err != nil {
		//nolint:forbidigo // Must constructor fails fast when dependencies are invalid during startup
		panic(fmt.Sprintf("failed to create VisualizationService: %v", err))
	}
	return svc
}

// Network derives a flow diagram from a run. Every two-index variable
// contributes its endpoints as nodes; instances with a flow above the noise
// threshold become edges. A node keeps the role it had when first seen.
func (s *VisualizationService) Network(ctx context.Context, runID int64) (*model.NetworkData, error) {
	if _, err := s.runs.GetByID(ctx, runID); err != nil {
		return nil, fmt.Errorf("get run: %w", err)
	}
	variables, err := s.runs.Variables(ctx, runID)
	if err != nil {
		return nil, fmt.Errorf("load variable results: %w", err)
	}

	nodeSeen := make(map[string]struct{})
	nodes := []model.NetworkNode{}
	edges := []model.NetworkEdge{}

	addNode := func(id, nodeType string) {
		if _, ok := nodeSeen[id]; ok {
			return
		}
		nodeSeen[id] = struct{}{}
		nodes = append(nodes, model.NetworkNode{ID: id, Label: id, Type: nodeType})
	}

	for _, v := range variables {
		from, to, ok := flowEndpoints(v.Indices)
		if !ok {
			continue
		}
		addNode(from, "source")
		addNode(to, "sink")

		if v.Value == nil || *v.Value <= visEpsilon {
			continue
		}
		capacity := *v.Value * 2
		if v.UpperBound != nil && *v.UpperBound != 0 {
			capacity = *v.UpperBound
		}
		edges = append(edges, model.NetworkEdge{
			Source:   from,
			Target:   to,
			Flow:     *v.Value,
			Capacity: capacity,
			Variable: v.VariableName,
		})
	}

	network := &model.NetworkData{Nodes: nodes, Edges: edges}
	if len(edges) == 0 {
		reason := emptyNetworkReason
		network.Reason = &reason
	}
	totalFlow := 0.0
	for _, e := range edges {
		totalFlow += e.Flow
	}
	network.Summary = model.NetworkSummary{
		TotalNodes: len(nodes),
		TotalEdges: len(edges),
		TotalFlow:  totalFlow,
	}
	return network, nil
}

// Sensitivity shapes a run's constraint duals (shadow prices) and variable
// reduced costs for charting. Zero entries are filtered out; they say only
// that the constraint was loose or the variable basic.
func (s *VisualizationService) Sensitivity(ctx context.Context, runID int64) (*model.SensitivityData, error) {
	if _, err := s.runs.GetByID(ctx, runID); err != nil {
		return nil, fmt.Errorf("get run: %w", err)
	}

	var (
		variables   []model.VariableResult
		constraints []model.ConstraintResult
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		vars, verr := s.runs.Variables(gctx, runID)
		if verr != nil {
			return fmt.Errorf("load variable results: %w", verr)
		}
		variables = vars
		return nil
	})
	g.Go(func() error {
		cons, cerr := s.runs.Constraints(gctx, runID)
		if cerr != nil {
			return fmt.Errorf("load constraint results: %w", cerr)
		}
		constraints = cons
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	shadowPrices := []model.ShadowPrice{}
	for _, c := range constraints {
		if c.Dual == nil || *c.Dual == 0 {
			continue
		}
		shadowPrices = append(shadowPrices, model.ShadowPrice{
			Constraint: c.ConstraintName,
			Index:      c.Indices,
			Dual:       *c.Dual,
			Slack:      c.Slack,
		})
	}

	reducedCosts := []model.ReducedCost{}
	for _, v := range variables {
		if v.ReducedCost == nil || *v.ReducedCost == 0 {
			continue
		}
		reducedCosts = append(reducedCosts, model.ReducedCost{
			Variable:    v.VariableName,
			Index:       v.Indices,
			Value:       v.Value,
			ReducedCost: *v.ReducedCost,
		})
	}

	binding := []model.ShadowPrice{}
	for _, sp := range shadowPrices {
		if (sp.Slack != nil && *sp.Slack == 0) || math.Abs(sp.Dual) > visEpsilon {
			binding = append(binding, sp)
		}
	}

	return &model.SensitivityData{
		ShadowPrices:       shadowPrices,
		ReducedCosts:       reducedCosts,
		BindingConstraints: binding,
	}, nil
}

// Comparison summarises several runs side by side. Unknown run IDs are
// skipped rather than failing the whole comparison.
func (s *VisualizationService) Comparison(ctx context.Context, runIDs []int64) (*model.RunComparison, error) {
	results := []model.RunComparisonEntry{}
	for _, id := range runIDs {
		run, err := s.runs.GetByID(ctx, id)
		if err != nil {
			if errors.Is(err, data.ErrRunNotFound) {
				continue
			}
			return nil, fmt.Errorf("get run %d: %w", id, err)
		}
		results = append(results, model.RunComparisonEntry{
			ID:         run.ID,
			Solver:     run.SolverName,
			Status:     run.Status,
			Objective:  run.ObjectiveValue,
			SolveTime:  run.SolveTime,
			Iterations: run.Iterations,
			Gap:        run.Gap,
		})
	}

	comparison := &model.RunComparison{Results: results}
	for i := range results {
		if results[i].Objective == nil {
			continue
		}
		if comparison.BestObjective == nil || *results[i].Objective > *comparison.BestObjective {
			comparison.BestObjective = results[i].Objective
		}
	}
	fastest := -1
	for i := range results {
		if results[i].SolveTime == nil {
			continue
		}
		if fastest < 0 || *results[i].SolveTime < *results[fastest].SolveTime {
			fastest = i
		}
	}
	if fastest >= 0 {
		comparison.FastestSolver = &results[fastest]
	} else if len(results) > 0 {
		// Every run is missing a solve time; fall back to the first so the
		// field still points at something comparable.
		comparison.FastestSolver = &results[0]
	}
	return comparison, nil
}

// VariablesChart returns a run's variable values grouped by name for
// charting. A non-empty variableName restricts the output to that variable.
func (s *VisualizationService) VariablesChart(
	ctx context.Context,
	runID int64,
	variableName string,
) (*model.VariableChartData, error) {
	if _, err := s.runs.GetByID(ctx, runID); err != nil {
		return nil, fmt.Errorf("get run: %w", err)
	}
	variables, err := s.runs.Variables(ctx, runID)
	if err != nil {
		return nil, fmt.Errorf("load variable results: %w", err)
	}

	grouped := make(map[string][]model.VariableChartPoint)
	for _, v := range variables {
		if variableName != "" && v.VariableName != variableName {
			continue
		}

		point := model.VariableChartPoint{Value: v.Value}
		if members, ok := decodeIndexMembers(v.Indices); ok {
			point.Index = members
			point.Label = strings.Join(members, ", ")
		} else {
			point.Index = []string{"scalar"}
			point.Label = v.VariableName
		}
		grouped[v.VariableName] = append(grouped[v.VariableName], point)
	}

	return &model.VariableChartData{Variables: grouped}, nil
}

// flowEndpoints decodes a variable's index tuple when it has exactly two
// members; anything else is not a flow.
func flowEndpoints(indices json.RawMessage) (string, string, bool) {
	members, ok := decodeIndexMembers(indices)
	if !ok || len(members) != 2 {
		return "", "", false
	}
	return members[0], members[1], true
}

func decodeIndexMembers(indices json.RawMessage) ([]string, bool) {
	if len(indices) == 0 {
		return nil, false
	}
	var members []string
	if err := json.Unmarshal(indices, &members); err != nil || len(members) == 0 {
		return nil, false
	}
	return members, true
}
