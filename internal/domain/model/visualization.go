//revive:disable-next-line:var-naming // legacy package name widely used across the project
package model

import "encoding/json"

// NetworkNode is one endpoint in a flow network diagram. Type records the
// role the node had when first seen: "source" when it first appeared as an
// origin, "sink" when it first appeared as a destination.
type NetworkNode struct {
	ID    string `json:"id"`
	Label string `json:"label"`
	Type  string `json:"type"`
}

// NetworkEdge is one positive flow between two nodes, taken from a two-index
// variable instance.
type NetworkEdge struct {
	Source   string  `json:"source"`
	Target   string  `json:"target"`
	Flow     float64 `json:"flow"`
	Capacity float64 `json:"capacity"`
	Variable string  `json:"variable"`
}

// NetworkSummary carries the totals a diagram header shows.
type NetworkSummary struct {
	TotalNodes int     `json:"total_nodes"`
	TotalEdges int     `json:"total_edges"`
	TotalFlow  float64 `json:"total_flow"`
}

// NetworkData is the flow diagram derived from one run. Reason explains an
// empty diagram and is null otherwise.
type NetworkData struct {
	Nodes   []NetworkNode  `json:"nodes"`
	Edges   []NetworkEdge  `json:"edges"`
	Reason  *string        `json:"reason"`
	Summary NetworkSummary `json:"summary"`
}

// ShadowPrice is one constraint with a nonzero dual value.
type ShadowPrice struct {
	Constraint string          `json:"constraint"`
	Index      json.RawMessage `json:"index"`
	Dual       float64         `json:"dual"`
	Slack      *float64        `json:"slack"`
}

// ReducedCost is one variable with a nonzero reduced cost.
type ReducedCost struct {
	Variable    string          `json:"variable"`
	Index       json.RawMessage `json:"index"`
	Value       *float64        `json:"value"`
	ReducedCost float64         `json:"reduced_cost"`
}

// SensitivityData shapes a run's duals and reduced costs for charting.
// BindingConstraints is the subset of ShadowPrices with zero slack or a dual
// clearly away from zero.
type SensitivityData struct {
	ShadowPrices       []ShadowPrice `json:"shadow_prices"`
	ReducedCosts       []ReducedCost `json:"reduced_costs"`
	BindingConstraints []ShadowPrice `json:"binding_constraints"`
}

// RunComparisonEntry summarises one run for side-by-side solver comparison.
type RunComparisonEntry struct {
	ID         int64       `json:"id"`
	Solver     string      `json:"solver"`
	Status     SolveStatus `json:"status"`
	Objective  *float64    `json:"objective"`
	SolveTime  *float64    `json:"solve_time"`
	Iterations *int        `json:"iterations"`
	Gap        *float64    `json:"gap"`
}

// RunComparison compares several runs. BestObjective is the largest non-null
// objective; FastestSolver is the entry with the smallest solve time. Both
// are null when no runs matched.
type RunComparison struct {
	Results       []RunComparisonEntry `json:"results"`
	BestObjective *float64             `json:"best_objective"`
	FastestSolver *RunComparisonEntry  `json:"fastest_solver"`
}

// VariableChartPoint is one variable instance shaped for charting. Scalars
// carry the literal index ["scalar"].
type VariableChartPoint struct {
	Index []string `json:"index"`
	Value *float64 `json:"value"`
	Label string   `json:"label"`
}

// VariableChartData groups chart points by variable name.
type VariableChartData struct {
	Variables map[string][]VariableChartPoint `json:"variables"`
}
