package data

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/optilab/optilab-api/internal/data/pgxutil"
	"github.com/optilab/optilab-api/internal/domain/model"
)

const (
	sortDirAsc  = "ASC"
	sortDirDesc = "DESC"
)

// jobFilterQueryBuilder accumulates WHERE filters with positional args.
type jobFilterQueryBuilder struct {
	query  string
	args   []any
	argIdx int
}

func (b *jobFilterQueryBuilder) addFilter(condition string, value any) {
	if value != nil {
		b.query += fmt.Sprintf(" AND %s = $%d", condition, b.argIdx)
		b.args = append(b.args, value)
		b.argIdx++
	}
}

func buildJobsListQuery(opts model.JobsListOptions) (string, []any) {
	builder := &jobFilterQueryBuilder{
		query: `
		SELECT ` + jobColumns + `
		FROM solve_jobs
		WHERE 1=1`,
		args:   []any{},
		argIdx: 1,
	}

	if opts.Status != nil && *opts.Status != "" {
		builder.addFilter("status", *opts.Status)
	}
	if opts.ModelID != nil && *opts.ModelID > 0 {
		builder.addFilter("model_id", *opts.ModelID)
	}

	builder.query += `
		ORDER BY created_at DESC, id DESC`

	return builder.query, builder.args
}

// ListWithOptions returns solve jobs with optional status and model filters,
// newest first.
func (r *JobRepo) ListWithOptions(
	ctx context.Context,
	opts model.JobsListOptions,
) ([]*model.SolveJob, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = 50 // Default limit
	}
	if limit > 1000 {
		limit = 1000 // Max limit
	}
	offset := max(opts.Offset, 0)

	query, args := buildJobsListQuery(opts)
	query += fmt.Sprintf(" LIMIT $%d OFFSET $%d", len(args)+1, len(args)+2)
	args = append(args, limit, offset)

	var result []*model.SolveJob
	if err := pgxutil.WithPgxConn(ctx, r.DB, func(conn *pgx.Conn) error {
		rows, err := conn.Query(ctx, query, args...)
		if err != nil {
			return fmt.Errorf("query solve jobs: %w", err)
		}
		defer rows.Close()

		vals, err := pgx.CollectRows(rows, pgx.RowToAddrOfStructByName[model.SolveJob])
		if err != nil {
			return fmt.Errorf("collect solve jobs: %w", err)
		}

		result = vals
		return nil
	}); err != nil {
		return nil, err
	}

	return result, nil
}

// CountWithOptions counts solve jobs matching the same filters as ListWithOptions.
func (r *JobRepo) CountWithOptions(
	ctx context.Context,
	opts model.JobsListOptions,
) (int, error) {
	builder := &jobFilterQueryBuilder{
		query: `
		SELECT count(*)
		FROM solve_jobs
		WHERE 1=1`,
		args:   []any{},
		argIdx: 1,
	}

	if opts.Status != nil && *opts.Status != "" {
		builder.addFilter("status", *opts.Status)
	}
	if opts.ModelID != nil && *opts.ModelID > 0 {
		builder.addFilter("model_id", *opts.ModelID)
	}

	var count int
	if err := r.DB.QueryRowContext(ctx, builder.query, builder.args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("count solve jobs: %w", err)
	}

	return count, nil
}
