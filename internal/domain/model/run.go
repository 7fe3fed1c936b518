//revive:disable-next-line:var-naming // legacy package name widely used across the project
package model

import (
	"encoding/json"
	"time"
)

// OptimizationRun represents the durable result of one solve. Rows outlive
// the SolveJob that produced them and are the unit the results API serves.
type OptimizationRun struct {
	ID             int64           `json:"id"                        db:"id"`
	ModelID        int64           `json:"model_id"                  db:"model_id"`
	DataFileID     *int64          `json:"data_file_id,omitempty"    db:"data_file_id"`
	SolverName     string          `json:"solver_name"               db:"solver_name"`
	SolverOptions  json.RawMessage `json:"solver_options,omitempty"  db:"solver_options"`
	Status         SolveStatus     `json:"status"                    db:"status"`
	ErrorMessage   *string         `json:"error_message,omitempty"   db:"error_message"`
	ObjectiveValue *float64        `json:"objective_value,omitempty" db:"objective_value"`
	SolveTime      *float64        `json:"solve_time,omitempty"      db:"solve_time"`
	Iterations     *int            `json:"iterations,omitempty"      db:"iterations"`
	Nodes          *int            `json:"nodes,omitempty"           db:"nodes"`
	Gap            *float64        `json:"gap,omitempty"             db:"gap"`
	SolverOutput   *string         `json:"solver_output,omitempty"   db:"solver_output"`
	StartedAt      *time.Time      `json:"started_at,omitempty"      db:"started_at"`
	CompletedAt    *time.Time      `json:"completed_at,omitempty"    db:"completed_at"`
	CreatedAt      time.Time       `json:"created_at"                db:"created_at"`
}

// VariableResult stores one variable instance (scalar or one index tuple) from a run.
// Indices is a JSON array of index members, nil for scalar variables.
type VariableResult struct {
	ID           int64           `json:"id"                     db:"id"`
	RunID        int64           `json:"run_id"                 db:"run_id"`
	VariableName string          `json:"variable_name"          db:"variable_name"`
	Indices      json.RawMessage `json:"indices,omitempty"      db:"indices"`
	Value        *float64        `json:"value,omitempty"        db:"value"`
	ReducedCost  *float64        `json:"reduced_cost,omitempty" db:"reduced_cost"`
	LowerBound   *float64        `json:"lower_bound,omitempty"  db:"lower_bound"`
	UpperBound   *float64        `json:"upper_bound,omitempty"  db:"upper_bound"`
}

// ConstraintResult stores one constraint instance from a run, including the
// dual value (shadow price) and slack when the solver reports them.
type ConstraintResult struct {
	ID             int64           `json:"id"                    db:"id"`
	RunID          int64           `json:"run_id"                db:"run_id"`
	ConstraintName string          `json:"constraint_name"       db:"constraint_name"`
	Indices        json.RawMessage `json:"indices,omitempty"     db:"indices"`
	Body           *float64        `json:"body,omitempty"        db:"body"`
	Dual           *float64        `json:"dual,omitempty"        db:"dual"`
	Slack          *float64        `json:"slack,omitempty"       db:"slack"`
	LowerBound     *float64        `json:"lower_bound,omitempty" db:"lower_bound"`
	UpperBound     *float64        `json:"upper_bound,omitempty" db:"upper_bound"`
}

// RunSummary is a run joined with its model name for history listings.
type RunSummary struct {
	OptimizationRun
	ModelName string `json:"model_name" db:"model_name"`
}

// RunDetail is a run with its full variable and constraint results.
type RunDetail struct {
	OptimizationRun
	Variables   []VariableResult   `json:"variable_results"`
	Constraints []ConstraintResult `json:"constraint_results"`
}

// RunsListOptions controls paging and filtering for listing runs.
type RunsListOptions struct {
	Limit   int
	Offset  int
	ModelID *int64 // exact match
}

// RunPage is one page of run history plus the unpaged total.
type RunPage struct {
	Total int          `json:"total"`
	Items []RunSummary `json:"items"`
}
