// Package database renders parameterized list queries for the catalog
// repositories. Filter fields and sort columns can originate from request
// parameters, so every identifier is quoted through pgx and every value
// travels as a numbered argument.
package database

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/jackc/pgx/v5"
)

// ConditionType is the comparison operator applied by a Condition.
type ConditionType string

const (
	Equal              ConditionType = "="
	NotEqual           ConditionType = "!="
	GreaterThan        ConditionType = ">"
	GreaterThanOrEqual ConditionType = ">="
	LessThan           ConditionType = "<"
	LessThanOrEqual    ConditionType = "<="
	ILike              ConditionType = "ILIKE"
	// Any matches a scalar column against a slice of candidates,
	// rendering as field = ANY (ARRAY[...]).
	Any ConditionType = "ANY"
)

// unset is the sentinel for limit and offset values the caller never
// provided, keeping 0 usable as an explicit value.
const unset = -1

// Condition is one WHERE predicate. Conditions combine with AND.
type Condition struct {
	Field string
	Type  ConditionType
	Value any
}

// WhereCond builds a predicate comparing Field against Value.
func WhereCond(field string, condType ConditionType, value any) Condition {
	return Condition{Field: field, Type: condType, Value: value}
}

// ListQueryOptions collects everything BuildListQuery renders. Construct it
// through NewListQueryOptions so the limit and offset sentinels are set.
type ListQueryOptions struct {
	Table      string
	Columns    []string
	CountOnly  bool
	Conditions []Condition
	OrderBy    string
	OrderDir   string
	Limit      int
	Offset     int
}

// ListQueryOption customizes a ListQueryOptions.
type ListQueryOption func(*ListQueryOptions)

// NewListQueryOptions builds options for listing rows of table.
func NewListQueryOptions(table string, opts ...ListQueryOption) *ListQueryOptions {
	options := &ListQueryOptions{
		Table:  table,
		Limit:  unset,
		Offset: unset,
	}
	for _, opt := range opts {
		opt(options)
	}
	return options
}

// WithColumns selects specific columns instead of *. Qualified names like
// "runs.id" are supported; expressions and aliases are not.
func WithColumns(cols ...string) ListQueryOption {
	return func(o *ListQueryOptions) {
		o.Columns = cols
	}
}

// WithCondition appends one predicate.
func WithCondition(cond Condition) ListQueryOption {
	return func(o *ListQueryOptions) {
		o.Conditions = append(o.Conditions, cond)
	}
}

// WithOrderBy sets the sort column and direction. Directions other than
// ASC or DESC (any case) are dropped, leaving the server default.
func WithOrderBy(column, direction string) ListQueryOption {
	return func(o *ListQueryOptions) {
		o.OrderBy = column
		o.OrderDir = direction
	}
}

// WithLimit sets the row limit. Zero is honored; negatives are ignored.
func WithLimit(limit int) ListQueryOption {
	return func(o *ListQueryOptions) {
		if limit >= 0 {
			o.Limit = limit
		}
	}
}

// WithOffset sets the row offset. Zero is honored; negatives are ignored.
func WithOffset(offset int) ListQueryOption {
	return func(o *ListQueryOptions) {
		if offset >= 0 {
			o.Offset = offset
		}
	}
}

// WithCountOnly turns the query into SELECT COUNT(*). Ordering and
// pagination options are ignored in this mode.
func WithCountOnly() ListQueryOption {
	return func(o *ListQueryOptions) {
		o.CountOnly = true
	}
}

// BuildListQuery renders options into a query string and its argument list.
// A nil options yields an empty query.
func BuildListQuery(options *ListQueryOptions) (string, []any) {
	if options == nil {
		return "", nil
	}

	var query strings.Builder
	query.WriteString(selectClause(options))
	query.WriteString("FROM ")
	query.WriteString(quoteIdent(options.Table))

	where, args, next := whereClause(options.Conditions, 1)
	if where != "" {
		query.WriteString(" ")
		query.WriteString(where)
	}

	if options.CountOnly {
		return query.String(), args
	}

	tail, args := orderAndPage(options, next, args)
	query.WriteString(tail)
	return query.String(), args
}

// quoteIdent quotes a possibly qualified identifier, so "runs.id" becomes
// "runs"."id" and embedded quotes are escaped rather than interpreted.
func quoteIdent(ident string) string {
	return pgx.Identifier(strings.Split(ident, ".")).Sanitize()
}

func selectClause(o *ListQueryOptions) string {
	if o.CountOnly {
		return "SELECT COUNT(*) "
	}
	if len(o.Columns) == 0 {
		return "SELECT * "
	}

	quoted := make([]string, len(o.Columns))
	for i, col := range o.Columns {
		quoted[i] = quoteIdent(col)
	}
	return "SELECT " + strings.Join(quoted, ", ") + " "
}

// whereClause renders the conditions starting at parameter $start. It returns
// the clause, the collected arguments, and the next free parameter number.
// Conditions with a blank field, or Any conditions without a non-empty slice,
// are skipped rather than rendered as invalid SQL.
func whereClause(conds []Condition, start int) (string, []any, int) {
	rendered := make([]string, 0, len(conds))
	var args []any
	param := start

	for _, cond := range conds {
		if cond.Field == "" {
			continue
		}
		frag, condArgs, next := renderCondition(cond, param)
		if frag == "" {
			continue
		}
		rendered = append(rendered, frag)
		args = append(args, condArgs...)
		param = next
	}

	if len(rendered) == 0 {
		return "", args, param
	}
	return "WHERE " + strings.Join(rendered, " AND "), args, param
}

func renderCondition(cond Condition, param int) (string, []any, int) {
	field := quoteIdent(cond.Field)

	switch cond.Type {
	case Any:
		return renderAnyCondition(cond, field, param)
	case Equal, NotEqual, GreaterThan, GreaterThanOrEqual, LessThan, LessThanOrEqual, ILike:
		frag := fmt.Sprintf("%s %s $%d", field, cond.Type, param)
		return frag, []any{cond.Value}, param + 1
	default:
		return "", nil, param
	}
}

func renderAnyCondition(cond Condition, field string, param int) (string, []any, int) {
	// Accept any slice type, not just []any.
	rv := reflect.ValueOf(cond.Value)
	if rv.Kind() != reflect.Slice || rv.Len() == 0 {
		return "", nil, param
	}

	placeholders := make([]string, rv.Len())
	args := make([]any, rv.Len())
	for i := range rv.Len() {
		placeholders[i] = fmt.Sprintf("$%d", param)
		args[i] = rv.Index(i).Interface()
		param++
	}
	frag := fmt.Sprintf("%s = ANY (ARRAY[%s])", field, strings.Join(placeholders, ", "))
	return frag, args, param
}

func orderAndPage(o *ListQueryOptions, param int, args []any) (string, []any) {
	var clause strings.Builder

	if o.OrderBy != "" {
		clause.WriteString(" ORDER BY ")
		clause.WriteString(quoteIdent(o.OrderBy))
		if dir := strings.ToUpper(o.OrderDir); dir == "ASC" || dir == "DESC" {
			clause.WriteString(" ")
			clause.WriteString(dir)
		}
	}

	if o.Limit != unset {
		clause.WriteString(fmt.Sprintf(" LIMIT $%d", param))
		args = append(args, o.Limit)
		param++
	}
	if o.Offset != unset {
		clause.WriteString(fmt.Sprintf(" OFFSET $%d", param))
		args = append(args, o.Offset)
	}

	return clause.String(), args
}
