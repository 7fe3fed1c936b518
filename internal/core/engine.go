package core

import (
	"context"
	"encoding/json"
	"time"

	"github.com/optilab/optilab-api/internal/domain/model"
)

// SolveInput carries everything an engine needs for one solve. The caller has
// already resolved model and data file references to their text content.
type SolveInput struct {
	// ModelText is the AMPL model source.
	ModelText string
	// DataText is the AMPL data section, empty when the model is self-contained.
	DataText string
	// Solver selects the backend solver, already validated against the catalog.
	Solver string
	// Options is a JSON object of solver options ({} when none were given).
	Options json.RawMessage
	// Timeout bounds the whole solve. The engine must stop the solver process
	// when it expires.
	Timeout time.Duration
}

// SolveOutput is the engine's report of a finished solve attempt. Status
// describes what the solver concluded about the problem; an engine that could
// not run the solver at all returns an error instead of an output.
type SolveOutput struct {
	// Status is the normalized solve result.
	Status model.SolveStatus
	// RawStatus is the solver's native result string before normalization.
	RawStatus string
	// ErrorMessage carries the human-readable failure reason when Status is
	// SolveStatusError, nil otherwise.
	ErrorMessage *string

	Objective  *float64
	SolveTime  *float64
	Iterations *int
	Nodes      *int
	Gap        *float64

	// Output is the captured solver transcript, always present.
	Output string

	// Variables and Constraints hold per-instance results with RunID unset;
	// the caller assigns them to a run when persisting.
	Variables   []model.VariableResult
	Constraints []model.ConstraintResult
}

// SolverEngine defines the interface to an optimization engine. Implementations
// wrap a real AMPL installation or a deterministic stand-in for environments
// without one.
type SolverEngine interface {
	// Solve runs one optimization. It returns an error only when the engine
	// itself failed (missing binary, unwritable workspace, killed process);
	// solver-level failures come back as a SolveOutput with an error status
	// and must never be reported as success.
	Solve(ctx context.Context, input SolveInput) (*SolveOutput, error)

	// ValidateModel syntax-checks model text without solving.
	ValidateModel(ctx context.Context, modelText string) (*model.ModelValidation, error)

	// Solvers reports the solver catalog with per-solver availability in this
	// installation.
	Solvers(ctx context.Context) ([]model.SolverInfo, error)
}
