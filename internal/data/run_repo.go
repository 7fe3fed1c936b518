package data

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/optilab/optilab-api/internal/data/pgxutil"
	"github.com/optilab/optilab-api/internal/domain/model"
)


// RunRepo provides database operations for optimization runs and their
// variable/constraint results.
type RunRepo struct {
	DB           *sql.DB
	timeProvider TimeProvider
}

// NewRunRepo creates a new RunRepo with real time provider.
func NewRunRepo(db *sql.DB) *RunRepo {
	return &RunRepo{DB: db, timeProvider: &RealTimeProvider{}}
}

// NewRunRepoWithTimeProvider creates a new RunRepo with a custom time provider (useful for tests).
func NewRunRepoWithTimeProvider(db *sql.DB, tp TimeProvider) *RunRepo {
	return &RunRepo{DB: db, timeProvider: tp}
}

const runColumns = `id, model_id, data_file_id, solver_name, solver_options, status, error_message, objective_value, solve_time, iterations, nodes, gap, solver_output, started_at, completed_at, created_at`

// runColumnsWithModelName defines the column list for run SELECT queries with model name JOIN.
const runColumnsWithModelName = `r.id, r.model_id, r.data_file_id, r.solver_name, r.solver_options, r.status, r.error_message, r.objective_value, r.solve_time, r.iterations, r.nodes, r.gap, r.solver_output, r.started_at, r.completed_at, r.created_at, COALESCE(m.name, '') as model_name`

const variableResultColumns = `id, run_id, variable_name, indices, value, reduced_cost, lower_bound, upper_bound`

const constraintResultColumns = `id, run_id, constraint_name, indices, body, dual, slack, lower_bound, upper_bound`

// CreateWithDetails persists a run together with its variable and constraint
// rows in a single transaction, so a partially written result is never visible.
func (r *RunRepo) CreateWithDetails(
	ctx context.Context,
	run *model.OptimizationRun,
	variables []model.VariableResult,
	constraints []model.ConstraintResult,
) (*model.OptimizationRun, error) {
	if run == nil {
		return nil, errors.New("run is required")
	}
	if run.ModelID <= 0 {
		return nil, errors.New("run model_id is required")
	}
	if strings.TrimSpace(run.SolverName) == "" {
		return nil, errors.New("run solver_name is required")
	}
	if !run.Status.Valid() {
		return nil, fmt.Errorf("invalid run status: %s", run.Status)
	}

	createdAt := r.timeProvider.Now().UTC()

	var out model.OptimizationRun
	err := pgxutil.WithPgxTx(ctx, r.DB, pgxutil.TxConfig{
		Fn: func(tx pgx.Tx) error {
			rows, qerr := tx.Query(ctx, `
				INSERT INTO optimization_runs (
					model_id, data_file_id, solver_name, solver_options, status, error_message,
					objective_value, solve_time, iterations, nodes, gap, solver_output,
					started_at, completed_at, created_at
				) VALUES (
					$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15
				) RETURNING `+runColumns,
				run.ModelID,
				run.DataFileID,
				run.SolverName,
				cloneJSON(run.SolverOptions),
				run.Status,
				run.ErrorMessage,
				run.ObjectiveValue,
				run.SolveTime,
				run.Iterations,
				run.Nodes,
				run.Gap,
				run.SolverOutput,
				run.StartedAt,
				run.CompletedAt,
				createdAt,
			)
			if qerr != nil {
				return fmt.Errorf("insert run: %w", qerr)
			}
			var cerr error
			out, cerr = pgx.CollectOneRow(rows, pgx.RowToStructByName[model.OptimizationRun])
			if cerr != nil {
				return fmt.Errorf("collect run: %w", cerr)
			}

			if len(variables) > 0 {
				b := &pgx.Batch{}
				for i := range variables {
					v := &variables[i]
					b.Queue(`
						INSERT INTO variable_results (run_id, variable_name, indices, value, reduced_cost, lower_bound, upper_bound)
						VALUES ($1, $2, $3, $4, $5, $6, $7)`,
						out.ID, v.VariableName, v.Indices, v.Value, v.ReducedCost, v.LowerBound, v.UpperBound)
				}
				if berr := flushBatch(ctx, tx, b, len(variables)); berr != nil {
					return fmt.Errorf("insert variable results: %w", berr)
				}
			}

			if len(constraints) > 0 {
				b := &pgx.Batch{}
				for i := range constraints {
					c := &constraints[i]
					b.Queue(`
						INSERT INTO constraint_results (run_id, constraint_name, indices, body, dual, slack, lower_bound, upper_bound)
						VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
						out.ID, c.ConstraintName, c.Indices, c.Body, c.Dual, c.Slack, c.LowerBound, c.UpperBound)
				}
				if berr := flushBatch(ctx, tx, b, len(constraints)); berr != nil {
					return fmt.Errorf("insert constraint results: %w", berr)
				}
			}

			return nil
		},
	})
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23503" {
			return nil, ErrModelNotFound
		}
		return nil, err
	}
	return &out, nil
}

// flushBatch sends a queued batch on the transaction and checks every result.
func flushBatch(ctx context.Context, tx pgx.Tx, b *pgx.Batch, n int) error {
	br := tx.SendBatch(ctx, b)
	for range n {
		if _, err := br.Exec(); err != nil {
			_ = br.Close()
			return err
		}
	}
	return br.Close()
}

// GetByID retrieves a run by ID without its variable and constraint rows.
func (r *RunRepo) GetByID(ctx context.Context, id int64) (*model.OptimizationRun, error) {
	var run model.OptimizationRun
	err := pgxutil.WithPgxConn(ctx, r.DB, func(conn *pgx.Conn) error {
		rows, err := conn.Query(ctx, `
			SELECT `+runColumns+`
			FROM optimization_runs
			WHERE id = $1`, id)
		if err != nil {
			return err
		}
		defer rows.Close()
		run, err = pgx.CollectOneRow(rows, pgx.RowToStructByName[model.OptimizationRun])
		return err
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrRunNotFound
		}
		return nil, fmt.Errorf("failed to get run: %w", err)
	}
	return &run, nil
}

// Variables retrieves the variable results of a run, ordered by name then index tuple.
func (r *RunRepo) Variables(ctx context.Context, runID int64) ([]model.VariableResult, error) {
	var out []model.VariableResult
	err := pgxutil.WithPgxConn(ctx, r.DB, func(conn *pgx.Conn) error {
		rows, err := conn.Query(ctx, `
			SELECT `+variableResultColumns+`
			FROM variable_results
			WHERE run_id = $1
			ORDER BY variable_name, id`, runID)
		if err != nil {
			return err
		}
		defer rows.Close()
		out, err = pgx.CollectRows(rows, pgx.RowToStructByName[model.VariableResult])
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("list variable results: %w", err)
	}
	return out, nil
}

// Constraints retrieves the constraint results of a run, ordered by name then index tuple.
func (r *RunRepo) Constraints(ctx context.Context, runID int64) ([]model.ConstraintResult, error) {
	var out []model.ConstraintResult
	err := pgxutil.WithPgxConn(ctx, r.DB, func(conn *pgx.Conn) error {
		rows, err := conn.Query(ctx, `
			SELECT `+constraintResultColumns+`
			FROM constraint_results
			WHERE run_id = $1
			ORDER BY constraint_name, id`, runID)
		if err != nil {
			return err
		}
		defer rows.Close()
		out, err = pgx.CollectRows(rows, pgx.RowToStructByName[model.ConstraintResult])
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("list constraint results: %w", err)
	}
	return out, nil
}

// buildRunsWhereClause builds the WHERE clause and arguments for run listings.
func buildRunsWhereClause(opts model.RunsListOptions) (string, []any, int) {
	var conditions []string
	var args []any
	argIndex := 1

	if opts.ModelID != nil && *opts.ModelID > 0 {
		conditions = append(conditions, fmt.Sprintf("r.model_id = $%d", argIndex))
		args = append(args, *opts.ModelID)
		argIndex++
	}

	whereClause := ""
	if len(conditions) > 0 {
		whereClause = "WHERE " + strings.Join(conditions, " AND ")
	}

	return whereClause, args, argIndex
}

// List retrieves one page of run history joined with model names, newest
// first, together with the unpaged total.
func (r *RunRepo) List(ctx context.Context, opts model.RunsListOptions) (*model.RunPage, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = 50
	}
	if limit > 1000 {
		limit = 1000
	}
	offset := max(opts.Offset, 0)

	whereClause, args, argIndex := buildRunsWhereClause(opts)

	var queryBuilder strings.Builder
	queryBuilder.WriteString("SELECT ")
	queryBuilder.WriteString(runColumnsWithModelName)
	queryBuilder.WriteString(" FROM optimization_runs r LEFT JOIN ampl_models m ON r.model_id = m.id ")
	queryBuilder.WriteString(whereClause)
	queryBuilder.WriteString(" ORDER BY r.created_at DESC, r.id DESC")
	queryBuilder.WriteString(" LIMIT $")
	queryBuilder.WriteString(strconv.Itoa(argIndex))
	queryBuilder.WriteString(" OFFSET $")
	queryBuilder.WriteString(strconv.Itoa(argIndex + 1))
	query := queryBuilder.String()

	pageArgs := append(append([]any{}, args...), limit, offset)

	page := &model.RunPage{Items: []model.RunSummary{}}
	err := pgxutil.WithPgxConn(ctx, r.DB, func(conn *pgx.Conn) error {
		countQuery := "SELECT count(*) FROM optimization_runs r " + whereClause
		if cerr := conn.QueryRow(ctx, countQuery, args...).Scan(&page.Total); cerr != nil {
			return fmt.Errorf("count runs: %w", cerr)
		}

		rows, qerr := conn.Query(ctx, query, pageArgs...)
		if qerr != nil {
			return qerr
		}
		defer rows.Close()

		items, cerr := pgx.CollectRows(rows, pgx.RowToStructByName[model.RunSummary])
		if cerr != nil {
			return cerr
		}
		if items != nil {
			page.Items = items
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}

	return page, nil
}

// Delete deletes a run and its detail rows via FK cascade. A completed solve
// job still pointing at the run is deleted with it in the same transaction.
func (r *RunRepo) Delete(ctx context.Context, id int64) (bool, error) {
	var rows int64
	err := pgxutil.WithPgxTx(ctx, r.DB, pgxutil.TxConfig{Fn: func(tx pgx.Tx) error {
		// The completed job row exists to point at this run; drop it along
		// with the run so the completed implies result_id rule stays intact.
		if _, err := tx.Exec(ctx, `DELETE FROM solve_jobs WHERE result_id = $1`, id); err != nil {
			return err
		}
		ct, err := tx.Exec(ctx, `DELETE FROM optimization_runs WHERE id = $1`, id)
		if err != nil {
			return err
		}
		rows = ct.RowsAffected()
		return nil
	}})
	if err != nil {
		return false, fmt.Errorf("failed to delete run: %w", err)
	}
	return rows > 0, nil
}
