package amplrun

import (
	"bytes"
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/optilab/optilab-api/internal/core"
)

// Markers the generated run script prints so the parser can separate solver
// chatter from the structured report.
const (
	statusMarker      = "---OPTILAB STATUS---"
	objectiveMarker   = "---OPTILAB OBJECTIVE---"
	variablesMarker   = "---OPTILAB VARIABLES---"
	constraintsMarker = "---OPTILAB CONSTRAINTS---"

	validateOKMarker = "---OPTILAB MODEL OK---"
)

var (
	solverNameRe = regexp.MustCompile(`^[a-z][a-z0-9_]*$`)
	optionKeyRe  = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_]*$`)
	optionValRe  = regexp.MustCompile(`^[A-Za-z0-9_.+-]*$`)
)

// buildRunScript renders the AMPL script for one solve: solver selection,
// solver options, model and data loading, the solve itself and the report
// section the parser consumes.
func buildRunScript(input core.SolveInput) (string, error) {
	if !solverNameRe.MatchString(input.Solver) {
		return "", fmt.Errorf("invalid solver name %q", input.Solver)
	}

	opts, err := renderSolverOptions(input)
	if err != nil {
		return "", err
	}

	var b strings.Builder
	fmt.Fprintf(&b, "option solver %s;\n", input.Solver)
	if opts != "" {
		fmt.Fprintf(&b, "option %s_options '%s';\n", input.Solver, opts)
	}
	b.WriteString("option solution_round 8;\n")
	fmt.Fprintf(&b, "model %s;\n", modelFile)
	if input.DataText != "" {
		fmt.Fprintf(&b, "data %s;\n", dataFile)
	}
	b.WriteString("solve;\n")

	fmt.Fprintf(&b, "printf \"\\n%s\\n\";\n", statusMarker)
	b.WriteString("printf \"%s\\n\", solve_result;\n")
	b.WriteString("printf \"%d\\n\", solve_result_num;\n")
	b.WriteString("printf \"%.6f\\n\", _solve_elapsed_time;\n")

	fmt.Fprintf(&b, "printf \"%s\\n\";\n", objectiveMarker)
	b.WriteString("printf {k in 1.._nobjs}: \"%s\\t%.10g\\n\", _objname[k], _obj[k];\n")

	fmt.Fprintf(&b, "printf \"%s\\n\";\n", variablesMarker)
	b.WriteString("printf {j in 1.._nvars}: \"%s\\t%.10g\\t%.10g\\t%.10g\\t%.10g\\n\", " +
		"_varname[j], _var[j], _var[j].rc, _var[j].lb, _var[j].ub;\n")

	fmt.Fprintf(&b, "printf \"%s\\n\";\n", constraintsMarker)
	b.WriteString("printf {i in 1.._ncons}: \"%s\\t%.10g\\t%.10g\\t%.10g\\t%.10g\\t%.10g\\n\", " +
		"_conname[i], _con[i].body, _con[i].dual, _con[i].slack, _con[i].lb, _con[i].ub;\n")

	return b.String(), nil
}

// renderSolverOptions turns the request's options object into the
// space-separated key=value string AMPL passes to the solver. Keys are
// emitted in sorted order; the job timeout always wins over a user-supplied
// timelimit.
func renderSolverOptions(input core.SolveInput) (string, error) {
	raw := input.Options
	entries := map[string]string{}

	if len(raw) > 0 && !bytes.Equal(bytes.TrimSpace(raw), []byte("{}")) &&
		!bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
		dec := json.NewDecoder(bytes.NewReader(raw))
		dec.UseNumber()
		var opts map[string]any
		if err := dec.Decode(&opts); err != nil {
			return "", fmt.Errorf("solver options must be a JSON object: %w", err)
		}
		for key, val := range opts {
			// Accept both "threads" and "cplex_threads" style keys for
			// solver "cplex"; the options string wants the bare form.
			key = strings.TrimPrefix(key, input.Solver+"_")
			if !optionKeyRe.MatchString(key) {
				return "", fmt.Errorf("invalid solver option key %q", key)
			}
			rendered, err := renderOptionValue(val)
			if err != nil {
				return "", fmt.Errorf("solver option %q: %w", key, err)
			}
			entries[key] = rendered
		}
	}

	if input.Timeout > 0 {
		seconds := int(input.Timeout.Seconds())
		if seconds < 1 {
			seconds = 1
		}
		entries["timelimit"] = fmt.Sprintf("%d", seconds)
	}

	if len(entries) == 0 {
		return "", nil
	}

	keys := make([]string, 0, len(entries))
	for k := range entries {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	pairs := make([]string, 0, len(keys))
	for _, k := range keys {
		pairs = append(pairs, k+"="+entries[k])
	}
	return strings.Join(pairs, " "), nil
}

func renderOptionValue(val any) (string, error) {
	switch v := val.(type) {
	case json.Number:
		return v.String(), nil
	case string:
		if !optionValRe.MatchString(v) {
			return "", fmt.Errorf("unsupported value %q", v)
		}
		return v, nil
	case bool:
		if v {
			return "1", nil
		}
		return "0", nil
	default:
		return "", fmt.Errorf("unsupported value type %T", val)
	}
}
