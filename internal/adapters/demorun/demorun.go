// Package demorun provides a deterministic stand-in for the AMPL engine so
// the platform can run end to end on machines without an AMPL installation.
// Results are fabricated from a lexical scan of the model text, but are
// stable for a given model, data and solver combination.
package demorun

import (
	"context"
	"encoding/json"
	"fmt"
	"hash/fnv"
	"log/slog"
	"math"
	"math/rand"
	"sort"
	"strings"
	"time"

	"github.com/optilab/optilab-api/internal/core"
	"github.com/optilab/optilab-api/internal/domain/ampl"
	"github.com/optilab/optilab-api/internal/domain/model"
)

const (
	// maxAxisMembers caps how many members of a data set feed each index
	// position, keeping fabricated result tables small.
	maxAxisMembers = 4
	// maxInstances caps the fabricated instances per declaration.
	maxInstances = 200

	zeroValueShare = 0.3
	zeroDualShare  = 0.5
)

// Config controls the demo engine.
type Config struct {
	// SolveDelay makes solves take a realistic amount of wall time so the
	// polling UI has something to watch. Zero means instant.
	SolveDelay time.Duration
	Logger     *slog.Logger
}

// Engine implements core.SolverEngine with fabricated results.
type Engine struct {
	solveDelay time.Duration
	logger     *slog.Logger
}

var _ core.SolverEngine = (*Engine)(nil)

// New constructs a demo engine.
func New(cfg Config) *Engine {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		solveDelay: cfg.SolveDelay,
		logger:     logger.With("component", "demo_engine"),
	}
}

// Solve fabricates a plausible optimal solution for the model. The only
// failure modes are an empty model, a model without variables and a
// cancelled context.
func (e *Engine) Solve(ctx context.Context, input core.SolveInput) (*core.SolveOutput, error) {
	if strings.TrimSpace(input.ModelText) == "" {
		return demoErrorOutput("model is empty"), nil
	}

	outline := ampl.ScanModel(input.ModelText)
	if len(outline.Variables) == 0 {
		return demoErrorOutput("no variable declarations found"), nil
	}

	if e.solveDelay > 0 {
		timer := time.NewTimer(e.solveDelay)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-timer.C:
		}
	}

	rng := rand.New(rand.NewSource(seed(input))) //nolint:gosec // fabricated demo results need determinism, not cryptographic randomness
	dataSets := ampl.ScanDataSets(input.DataText)

	out := &core.SolveOutput{
		Status:    model.SolveStatusOptimal,
		RawStatus: "solved",
	}

	for _, decl := range outline.Variables {
		for _, indices := range indexTuples(decl.Dims, dataSets) {
			out.Variables = append(out.Variables, fabricateVariable(rng, decl, indices))
			if len(out.Variables) >= maxInstances {
				break
			}
		}
	}
	for _, decl := range outline.Constraints {
		for i, indices := range indexTuples(decl.Dims, dataSets) {
			// The first instance of every constraint is always binding so
			// sensitivity views have shadow prices to show.
			out.Constraints = append(out.Constraints, fabricateConstraint(rng, decl, indices, i == 0))
			if len(out.Constraints) >= maxInstances {
				break
			}
		}
	}

	if len(outline.Objectives) > 0 {
		obj := round(rng.Float64()*10000, 2)
		out.Objective = &obj
	}

	iterations := 5 + rng.Intn(50)
	out.Iterations = &iterations
	if outline.HasIntegerVariables() {
		nodes := 1 + rng.Intn(100)
		out.Nodes = &nodes
		gap := round(rng.Float64()*0.02, 6)
		out.Gap = &gap
	}

	solveTime := e.solveDelay.Seconds()
	if solveTime == 0 {
		solveTime = round(rng.Float64()*0.5, 6)
	}
	out.SolveTime = &solveTime

	out.Output = demoTranscript(input.Solver, outline, iterations)
	e.logger.Debug("demo solve finished",
		"solver", input.Solver,
		"variables", len(out.Variables),
		"constraints", len(out.Constraints))
	return out, nil
}

// ValidateModel runs the same lexical checks a submission would hit.
func (e *Engine) ValidateModel(_ context.Context, modelText string) (*model.ModelValidation, error) {
	var errs []string
	switch {
	case strings.TrimSpace(modelText) == "":
		errs = append(errs, "model is empty")
	case !balancedBraces(modelText):
		errs = append(errs, "unbalanced braces in model text")
	default:
		if outline := ampl.ScanModel(modelText); len(outline.Variables) == 0 {
			errs = append(errs, "no variable declarations found")
		}
	}
	if len(errs) > 0 {
		return &model.ModelValidation{Valid: false, Errors: errs}, nil
	}
	return &model.ModelValidation{Valid: true, Errors: []string{}}, nil
}

// Solvers reports the whole catalog as available; the demo engine accepts
// any solver name and ignores it beyond the transcript.
func (e *Engine) Solvers(_ context.Context) ([]model.SolverInfo, error) {
	catalog := model.SolverCatalog()
	for i := range catalog {
		catalog[i].Available = true
	}
	return catalog, nil
}

func seed(input core.SolveInput) int64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(input.ModelText))
	_, _ = h.Write([]byte{0})
	_, _ = h.Write([]byte(input.DataText))
	_, _ = h.Write([]byte{0})
	_, _ = h.Write([]byte(input.Solver))
	return int64(h.Sum64()) //nolint:gosec // overflow wrap keeps the seed deterministic, sign does not matter
}

func fabricateVariable(rng *rand.Rand, decl ampl.Declaration, indices []string) model.VariableResult {
	var value float64
	if rng.Float64() >= zeroValueShare {
		switch {
		case decl.Binary:
			value = 1
		case decl.Integer:
			value = math.Round(rng.Float64() * 100)
		default:
			value = round(rng.Float64()*100, 4)
		}
	}

	// Reduced costs follow LP optimality: zero for basic (nonzero) variables,
	// nonzero when the variable sits at its bound.
	var reducedCost float64
	if value == 0 {
		reducedCost = round(rng.Float64()*10, 4)
	}

	lower := 0.0
	result := model.VariableResult{
		VariableName: decl.Name,
		Indices:      encodeIndices(indices),
		Value:        &value,
		ReducedCost:  &reducedCost,
		LowerBound:   &lower,
	}
	if decl.Dims == 2 {
		// Two-index variables read as flows; give them a finite capacity.
		upper := round(value+50+rng.Float64()*100, 4)
		result.UpperBound = &upper
	}
	return result
}

func fabricateConstraint(rng *rand.Rand, decl ampl.Declaration, indices []string, forceBinding bool) model.ConstraintResult {
	var dual, slack float64
	if forceBinding || rng.Float64() >= zeroDualShare {
		// Binding constraint: nonzero shadow price, zero slack.
		dual = round(rng.Float64()*20-10, 4)
		if dual == 0 {
			dual = 1
		}
	} else {
		slack = round(rng.Float64()*20, 4)
	}
	body := round(rng.Float64()*1000, 4)

	return model.ConstraintResult{
		ConstraintName: decl.Name,
		Indices:        encodeIndices(indices),
		Body:           &body,
		Dual:           &dual,
		Slack:          &slack,
	}
}

// indexTuples builds the index combinations for a declaration, drawing
// member lists from the data sets in name order and falling back to generic
// labels when the data declares fewer sets than the declaration has
// dimensions.
func indexTuples(dims int, dataSets map[string][]string) [][]string {
	if dims == 0 {
		return [][]string{nil}
	}

	names := make([]string, 0, len(dataSets))
	for name, members := range dataSets {
		if len(members) > 0 {
			names = append(names, name)
		}
	}
	sort.Strings(names)

	axes := make([][]string, dims)
	for d := range axes {
		if d < len(names) {
			axes[d] = capMembers(dataSets[names[d]])
		} else {
			axes[d] = genericAxis(d)
		}
	}
	return cartesian(axes)
}

func capMembers(members []string) []string {
	if len(members) > maxAxisMembers {
		return members[:maxAxisMembers]
	}
	return members
}

func genericAxis(dim int) []string {
	prefix := string(rune('a' + dim%26))
	out := make([]string, 3)
	for i := range out {
		out[i] = fmt.Sprintf("%s%d", prefix, i+1)
	}
	return out
}

func cartesian(axes [][]string) [][]string {
	if len(axes) == 0 {
		return [][]string{nil}
	}
	rest := cartesian(axes[1:])
	out := make([][]string, 0, len(axes[0])*len(rest))
	for _, head := range axes[0] {
		for _, tail := range rest {
			tuple := make([]string, 0, 1+len(tail))
			tuple = append(tuple, head)
			tuple = append(tuple, tail...)
			out = append(out, tuple)
		}
	}
	return out
}

func encodeIndices(indices []string) json.RawMessage {
	if len(indices) == 0 {
		return nil
	}
	raw, err := json.Marshal(indices)
	if err != nil {
		return nil
	}
	return raw
}

func demoTranscript(solver string, outline *ampl.ModelOutline, iterations int) string {
	if solver == "" {
		solver = "highs"
	}
	var b strings.Builder
	b.WriteString("OptiLab demo engine (simulated solve, no real solver was run)\n")
	fmt.Fprintf(&b, "solver: %s (simulated)\n", solver)
	fmt.Fprintf(&b, "model: %d variables, %d constraints, %d objectives\n",
		len(outline.Variables), len(outline.Constraints), len(outline.Objectives))
	fmt.Fprintf(&b, "simulated %d simplex iterations\n", iterations)
	b.WriteString("status: optimal solution found\n")
	return b.String()
}

func round(v float64, places int) float64 {
	scale := math.Pow(10, float64(places))
	return math.Round(v*scale) / scale
}

func balancedBraces(s string) bool {
	depth := 0
	for _, r := range s {
		switch r {
		case '{':
			depth++
		case '}':
			depth--
			if depth < 0 {
				return false
			}
		}
	}
	return depth == 0
}

func demoErrorOutput(msg string) *core.SolveOutput {
	return &core.SolveOutput{
		Status:       model.SolveStatusError,
		RawStatus:    "error",
		ErrorMessage: &msg,
		Output:       "OptiLab demo engine (simulated solve, no real solver was run)\nstatus: error\n",
	}
}
