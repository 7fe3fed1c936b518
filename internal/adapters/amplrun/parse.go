package amplrun

import (
	"encoding/json"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/optilab/optilab-api/internal/core"
	"github.com/optilab/optilab-api/internal/domain/model"
)

const maxValidationErrors = 10

// Solver logs are free-form, so iteration and node counts are best-effort
// pattern matches over the transcript.
var (
	iterationsRes = []*regexp.Regexp{
		regexp.MustCompile(`(?i)iterations?\s*[:=]\s*(\d+)`),
		regexp.MustCompile(`(?i)(\d+)\s+(?:[a-z]+\s+){0,3}iterations?\b`),
	}
	nodesRes = []*regexp.Regexp{
		regexp.MustCompile(`(?i)nodes?\s*[:=]\s*(\d+)`),
		regexp.MustCompile(`(?i)(\d+)\s+(?:branch[- ](?:and[- ])?bound\s+)?nodes?\b`),
	}
)

// parseSolveTranscript splits AMPL's stdout into the free-form solver
// transcript and the marker report the run script printed, and assembles the
// SolveOutput from both.
func parseSolveTranscript(stdout, stderr string, maxTranscript int) *core.SolveOutput {
	transcript, report, found := splitAtStatusMarker(stdout)
	if extra := strings.TrimSpace(stderr); extra != "" {
		transcript += "\n" + extra
	}
	transcript = truncateTranscript(strings.TrimSpace(transcript), maxTranscript)

	if !found {
		// Exit status zero but no report means the script was cut short.
		return errorOutput("solver produced no status report", transcript)
	}

	sections := splitSections(report)
	out := &core.SolveOutput{Output: transcript}

	statusLines := nonEmptyLines(sections[statusMarker])
	if len(statusLines) > 0 {
		out.RawStatus = statusLines[0]
	}
	out.Status = model.NormalizeSolveStatus(out.RawStatus)
	if len(statusLines) > 2 {
		out.SolveTime = parseMaybeFloat(statusLines[2])
	}

	if objLines := nonEmptyLines(sections[objectiveMarker]); len(objLines) > 0 {
		if fields := strings.Split(objLines[0], "\t"); len(fields) == 2 {
			out.Objective = parseMaybeFloat(fields[1])
		}
	}

	for _, line := range nonEmptyLines(sections[variablesMarker]) {
		if v, ok := parseVariableLine(line); ok {
			out.Variables = append(out.Variables, v)
		}
	}
	for _, line := range nonEmptyLines(sections[constraintsMarker]) {
		if c, ok := parseConstraintLine(line); ok {
			out.Constraints = append(out.Constraints, c)
		}
	}

	out.Iterations = scanCount(transcript, iterationsRes)
	out.Nodes = scanCount(transcript, nodesRes)

	if out.Status == model.SolveStatusError && out.ErrorMessage == nil {
		msg := "solver reported " + out.RawStatus
		out.ErrorMessage = &msg
	}
	return out
}

func splitAtStatusMarker(stdout string) (transcript, report string, found bool) {
	idx := strings.Index(stdout, statusMarker)
	if idx < 0 {
		return stdout, "", false
	}
	return stdout[:idx], stdout[idx:], true
}

func splitSections(report string) map[string]string {
	builders := map[string]*strings.Builder{}
	var current *strings.Builder
	for _, line := range strings.Split(report, "\n") {
		line = strings.TrimRight(line, "\r")
		switch line {
		case statusMarker, objectiveMarker, variablesMarker, constraintsMarker:
			current = &strings.Builder{}
			builders[line] = current
		default:
			if current != nil {
				current.WriteString(line)
				current.WriteByte('\n')
			}
		}
	}
	sections := make(map[string]string, len(builders))
	for marker, b := range builders {
		sections[marker] = b.String()
	}
	return sections
}

// parseVariableLine decodes one "name\tvalue\trc\tlb\tub" report line.
// Ragged lines are skipped rather than failing the whole solve.
func parseVariableLine(line string) (model.VariableResult, bool) {
	fields := strings.Split(line, "\t")
	if len(fields) != 5 {
		return model.VariableResult{}, false
	}
	name, indices := splitInstanceName(fields[0])
	return model.VariableResult{
		VariableName: name,
		Indices:      indices,
		Value:        parseMaybeFloat(fields[1]),
		ReducedCost:  parseMaybeFloat(fields[2]),
		LowerBound:   parseMaybeFloat(fields[3]),
		UpperBound:   parseMaybeFloat(fields[4]),
	}, true
}

func parseConstraintLine(line string) (model.ConstraintResult, bool) {
	fields := strings.Split(line, "\t")
	if len(fields) != 6 {
		return model.ConstraintResult{}, false
	}
	name, indices := splitInstanceName(fields[0])
	return model.ConstraintResult{
		ConstraintName: name,
		Indices:        indices,
		Body:           parseMaybeFloat(fields[1]),
		Dual:           parseMaybeFloat(fields[2]),
		Slack:          parseMaybeFloat(fields[3]),
		LowerBound:     parseMaybeFloat(fields[4]),
		UpperBound:     parseMaybeFloat(fields[5]),
	}, true
}

// splitInstanceName separates "Trans['SEATTLE','NEW YORK']" into the base
// name and a JSON array of index values. Scalar instances return nil indices.
func splitInstanceName(s string) (string, json.RawMessage) {
	open := strings.IndexByte(s, '[')
	if open < 0 || !strings.HasSuffix(s, "]") {
		return s, nil
	}
	parts := splitIndexList(s[open+1 : len(s)-1])
	raw, err := json.Marshal(parts)
	if err != nil {
		return s, nil
	}
	return s[:open], raw
}

func splitIndexList(s string) []string {
	var parts []string
	var cur strings.Builder
	var quote rune
	for _, r := range s {
		switch {
		case quote != 0:
			if r == quote {
				quote = 0
			} else {
				cur.WriteRune(r)
			}
		case r == '\'' || r == '"':
			quote = r
		case r == ',':
			parts = append(parts, strings.TrimSpace(cur.String()))
			cur.Reset()
		default:
			cur.WriteRune(r)
		}
	}
	return append(parts, strings.TrimSpace(cur.String()))
}

func parseMaybeFloat(s string) *float64 {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return nil
	}
	// JSON has no encoding for infinities, so unbounded bounds become null.
	if math.IsInf(v, 0) || math.IsNaN(v) {
		return nil
	}
	return &v
}

func scanCount(transcript string, res []*regexp.Regexp) *int {
	for _, re := range res {
		if m := re.FindStringSubmatch(transcript); m != nil {
			if n, err := strconv.Atoi(m[1]); err == nil {
				return &n
			}
		}
	}
	return nil
}

// truncateTranscript keeps the transcript tail, which carries the solver's
// verdict and any error text.
func truncateTranscript(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	tail := s[len(s)-maxLen:]
	if idx := strings.IndexByte(tail, '\n'); idx >= 0 {
		tail = tail[idx+1:]
	}
	return "[... truncated ...]\n" + tail
}

func condenseFailure(stderr, stdout string, exitCode int) string {
	msg := lastLines(stderr, 3)
	if msg == "" {
		msg = lastLines(stdout, 3)
	}
	if msg == "" {
		return fmt.Sprintf("ampl exited with status %d", exitCode)
	}
	if len(msg) > 500 {
		msg = msg[:500]
	}
	return msg
}

func lastLines(s string, n int) string {
	lines := nonEmptyLines(s)
	if len(lines) == 0 {
		return ""
	}
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return strings.Join(lines, "; ")
}

func nonEmptyLines(s string) []string {
	var lines []string
	for _, line := range strings.Split(s, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			lines = append(lines, line)
		}
	}
	return lines
}

func validationErrors(stderr, stdout string) []string {
	var errs []string
	for _, line := range append(nonEmptyLines(stderr), nonEmptyLines(stdout)...) {
		if line == validateOKMarker {
			continue
		}
		errs = append(errs, line)
		if len(errs) == maxValidationErrors {
			break
		}
	}
	if len(errs) == 0 {
		errs = []string{"model failed to parse"}
	}
	return errs
}

func errorOutput(msg, transcript string) *core.SolveOutput {
	return &core.SolveOutput{
		Status:       model.SolveStatusError,
		RawStatus:    "error",
		ErrorMessage: &msg,
		Output:       transcript,
	}
}
