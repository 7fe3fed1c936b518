// Package ampl provides lightweight lexical analysis of AMPL model and data
// text: enough to outline declarations and size sets without an AMPL
// installation. It is not a parser; expressions are never evaluated.
package ampl

import (
	"regexp"
	"strings"
)

// Declaration names one declared entity and how it is indexed.
type Declaration struct {
	Name string
	// Dims is the number of top-level positions in the indexing expression,
	// 0 for scalar declarations.
	Dims int
	// Integer marks var declarations carrying an integer or binary attribute.
	Integer bool
	// Binary marks var declarations carrying the binary attribute; Integer is
	// also set for these.
	Binary bool
}

// ModelOutline lists the declarations found in a model text, in order of
// appearance.
type ModelOutline struct {
	Sets        []Declaration
	Parameters  []Declaration
	Variables   []Declaration
	Objectives  []Declaration
	Constraints []Declaration
}

// HasIntegerVariables reports whether any variable is declared integer or binary.
func (o *ModelOutline) HasIntegerVariables() bool {
	for _, v := range o.Variables {
		if v.Integer {
			return true
		}
	}
	return false
}

var (
	setDeclRe       = regexp.MustCompile(`^set\s+([A-Za-z_][A-Za-z0-9_]*)`)
	paramDeclRe     = regexp.MustCompile(`^param\s+([A-Za-z_][A-Za-z0-9_]*)`)
	varDeclRe       = regexp.MustCompile(`^var\s+([A-Za-z_][A-Za-z0-9_]*)`)
	objectiveDeclRe = regexp.MustCompile(`^(?:maximize|minimize)\s+([A-Za-z_][A-Za-z0-9_]*)`)
	subjectToRe     = regexp.MustCompile(`^(?:subject\s+to|s\.t\.)\s+([A-Za-z_][A-Za-z0-9_]*)`)
	integerAttrRe   = regexp.MustCompile(`\b(?:integer|binary)\b`)
	binaryAttrRe    = regexp.MustCompile(`\bbinary\b`)
	dataSetRe       = regexp.MustCompile(`set\s+([A-Za-z_][A-Za-z0-9_]*)\s*:=([^;]*);`)

	// A statement of the form "Name {idx}: body" with no leading keyword is a
	// constraint; AMPL makes "subject to" optional after the first use.
	bareConstraintRe = regexp.MustCompile(`^([A-Za-z_][A-Za-z0-9_]*)\s*(?:\{[^}]*\})?\s*:[^=]`)

	blockCommentRe = regexp.MustCompile(`(?s)/\*.*?\*/`)
	lineCommentRe  = regexp.MustCompile(`#[^\n]*`)
)

// Leading keywords that start script or data statements rather than
// declarations. Statements opening with one of these never become a bare
// constraint.
var reservedLeads = map[string]struct{}{
	"check": {}, "commands": {}, "data": {}, "display": {}, "else": {},
	"for": {}, "if": {}, "include": {}, "let": {}, "model": {}, "option": {},
	"print": {}, "printf": {}, "problem": {}, "repeat": {}, "solve": {},
	"table": {},
}

// ScanModel extracts the declaration outline from AMPL model text.
func ScanModel(modelText string) *ModelOutline {
	outline := &ModelOutline{}
	for _, stmt := range statements(modelText) {
		scanStatement(outline, stmt)
	}
	return outline
}

// ScanDataSets extracts set memberships from AMPL data text, keyed by set
// name. Tuple members of multi-dimensional sets count as one member each.
func ScanDataSets(dataText string) map[string][]string {
	clean := stripComments(dataText)
	sets := make(map[string][]string)
	for _, m := range dataSetRe.FindAllStringSubmatch(clean, -1) {
		sets[m[1]] = splitMembers(m[2])
	}
	return sets
}

func scanStatement(outline *ModelOutline, stmt string) {
	if decl, ok := matchDecl(stmt, setDeclRe); ok {
		outline.Sets = append(outline.Sets, decl)
		return
	}
	if decl, ok := matchDecl(stmt, paramDeclRe); ok {
		outline.Parameters = append(outline.Parameters, decl)
		return
	}
	if decl, rest, ok := matchDeclRest(stmt, varDeclRe); ok {
		decl.Integer = integerAttrRe.MatchString(rest)
		decl.Binary = binaryAttrRe.MatchString(rest)
		outline.Variables = append(outline.Variables, decl)
		return
	}
	if decl, ok := matchDecl(stmt, objectiveDeclRe); ok {
		outline.Objectives = append(outline.Objectives, decl)
		return
	}
	if decl, ok := matchDecl(stmt, subjectToRe); ok {
		outline.Constraints = append(outline.Constraints, decl)
		return
	}
	if decl, ok := matchBareConstraint(stmt); ok {
		outline.Constraints = append(outline.Constraints, decl)
	}
}

func matchDecl(stmt string, re *regexp.Regexp) (Declaration, bool) {
	decl, _, ok := matchDeclRest(stmt, re)
	return decl, ok
}

func matchDeclRest(stmt string, re *regexp.Regexp) (Declaration, string, bool) {
	m := re.FindStringSubmatchIndex(stmt)
	if m == nil {
		return Declaration{}, "", false
	}
	rest := stmt[m[1]:]
	return Declaration{
		Name: stmt[m[2]:m[3]],
		Dims: indexDims(rest),
	}, rest, true
}

func matchBareConstraint(stmt string) (Declaration, bool) {
	first := strings.ToLower(firstWord(stmt))
	if _, reserved := reservedLeads[first]; reserved {
		return Declaration{}, false
	}
	m := bareConstraintRe.FindStringSubmatchIndex(stmt)
	if m == nil {
		return Declaration{}, false
	}
	return Declaration{
		Name: stmt[m[2]:m[3]],
		Dims: indexDims(stmt[m[3]:]),
	}, true
}

func firstWord(s string) string {
	s = strings.TrimSpace(s)
	for i, r := range s {
		if !isWordRune(r) {
			return s[:i]
		}
	}
	return s
}

func isWordRune(r rune) bool {
	return r == '_' ||
		(r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9')
}

// indexDims counts the top-level positions of an indexing expression that
// immediately follows a declaration name: "{A, B}" has 2, "{(i,j) in LINKS}"
// has 1, no braces means scalar.
func indexDims(rest string) int {
	rest = strings.TrimSpace(rest)
	if !strings.HasPrefix(rest, "{") {
		return 0
	}

	depth := 0
	dims := 1
	var quote rune
	for _, r := range rest {
		switch {
		case quote != 0:
			if r == quote {
				quote = 0
			}
		case r == '\'' || r == '"':
			quote = r
		case r == '{' || r == '(' || r == '[':
			depth++
		case r == '}' || r == ')' || r == ']':
			depth--
			if depth == 0 {
				return dims
			}
		case r == ',' && depth == 1:
			dims++
		}
	}
	return dims
}

func statements(text string) []string {
	parts := strings.Split(stripComments(text), ";")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func stripComments(s string) string {
	s = blockCommentRe.ReplaceAllString(s, " ")
	return lineCommentRe.ReplaceAllString(s, "")
}

// splitMembers tokenizes a data-statement member list: whitespace or commas
// separate members, quotes group multi-word names, parenthesized tuples stay
// whole.
func splitMembers(s string) []string {
	var members []string
	var cur strings.Builder
	var quote rune
	depth := 0

	flush := func() {
		if cur.Len() > 0 {
			members = append(members, cur.String())
			cur.Reset()
		}
	}

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
		case r == '(':
			depth++
			cur.WriteRune(r)
		case r == ')':
			depth--
			cur.WriteRune(r)
		case depth == 0 && (r == ' ' || r == '\t' || r == '\n' || r == '\r' || r == ','):
			flush()
		default:
			cur.WriteRune(r)
		}
	}
	flush()
	return members
}
