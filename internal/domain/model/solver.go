//revive:disable-next-line:var-naming // legacy package name widely used across the project
package model

import "strings"

// SolveStatus is the normalized outcome of a solver run as persisted on
// optimization_runs. It is distinct from JobStatus: a completed job points at
// a run whose SolveStatus may be optimal, infeasible or unbounded.
type SolveStatus string

const (
	SolveStatusOptimal    SolveStatus = "optimal"
	SolveStatusInfeasible SolveStatus = "infeasible"
	SolveStatusUnbounded  SolveStatus = "unbounded"
	SolveStatusError      SolveStatus = "error"
	SolveStatusUnknown    SolveStatus = "unknown"
)

// Valid reports whether the solve status is one of the normalized values.
func (s SolveStatus) Valid() bool {
	switch s {
	case SolveStatusOptimal, SolveStatusInfeasible, SolveStatusUnbounded, SolveStatusError, SolveStatusUnknown:
		return true
	default:
		return false
	}
}

// NormalizeSolveStatus maps a raw solver status string onto the normalized
// SolveStatus values. Solver frontends report many variants ("solved",
// "locally optimal", "globally optimal"); anything unrecognized is unknown.
func NormalizeSolveStatus(raw string) SolveStatus {
	status := strings.ToLower(strings.TrimSpace(raw))
	for _, token := range []string{"solved", "optimal"} {
		if strings.Contains(status, token) {
			return SolveStatusOptimal
		}
	}
	if strings.Contains(status, "infeasible") {
		return SolveStatusInfeasible
	}
	if strings.Contains(status, "unbounded") {
		return SolveStatusUnbounded
	}
	if strings.Contains(status, "error") || strings.Contains(status, "fail") {
		return SolveStatusError
	}
	return SolveStatusUnknown
}

// SolverInfo describes one solver in the catalog. Available is filled in by
// the engine at query time; the rest is static.
type SolverInfo struct {
	Name        string   `json:"name"`
	Available   bool     `json:"available"`
	Description string   `json:"description"`
	Supports    []string `json:"supports"`
}

// solverCatalog lists every solver the platform knows how to drive, in the
// order the UI presents them.
var solverCatalog = []SolverInfo{
	{Name: "highs", Description: "HiGHS - High-performance open-source LP/MIP solver", Supports: []string{"LP", "MIP"}},
	{Name: "cplex", Description: "IBM CPLEX - Commercial LP/MIP/QP solver", Supports: []string{"LP", "MIP", "QP", "MIQP"}},
	{Name: "gurobi", Description: "Gurobi - Commercial LP/MIP/QP solver", Supports: []string{"LP", "MIP", "QP", "MIQP", "QCP"}},
	{Name: "cbc", Description: "CBC - Open-source MIP solver from COIN-OR", Supports: []string{"LP", "MIP"}},
	{Name: "glpk", Description: "GLPK - GNU Linear Programming Kit", Supports: []string{"LP", "MIP"}},
	{Name: "ipopt", Description: "IPOPT - Interior Point Optimizer for NLP", Supports: []string{"NLP"}},
	{Name: "xpress", Description: "FICO Xpress - Commercial LP/MIP/QP solver", Supports: []string{"LP", "MIP", "QP", "MIQP"}},
}

// SolverCatalog returns a copy of the solver catalog with Available unset.
func SolverCatalog() []SolverInfo {
	out := make([]SolverInfo, len(solverCatalog))
	copy(out, solverCatalog)
	return out
}

// KnownSolver reports whether name is in the solver catalog.
func KnownSolver(name string) bool {
	for _, s := range solverCatalog {
		if s.Name == name {
			return true
		}
	}
	return false
}
