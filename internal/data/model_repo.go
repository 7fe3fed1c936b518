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
	"github.com/optilab/optilab-api/internal/data/database"
	"github.com/optilab/optilab-api/internal/data/pgxutil"
	"github.com/optilab/optilab-api/internal/domain/model"
)

var (
	// ErrModelNotFound is returned when a model is not found.
	ErrModelNotFound = errors.New("model not found")
	// ErrModelNameExists is returned when attempting to create/update a model with a duplicate name.
	ErrModelNameExists = errors.New("model name already exists")
)

// ModelRepo provides database operations for AMPL models.
type ModelRepo struct {
	DB           *sql.DB
	timeProvider TimeProvider
}

// NewModelRepo creates a new ModelRepo with real time provider.
func NewModelRepo(db *sql.DB) *ModelRepo {
	return &ModelRepo{DB: db, timeProvider: &RealTimeProvider{}}
}

// NewModelRepoWithTimeProvider creates a new ModelRepo with a custom time provider (useful for tests).
func NewModelRepoWithTimeProvider(db *sql.DB, tp TimeProvider) *ModelRepo {
	return &ModelRepo{DB: db, timeProvider: tp}
}

// Create inserts a new model.
func (r *ModelRepo) Create(ctx context.Context, req *model.CreateModelRequest) (*model.AMPLModel, error) {
	if req == nil {
		return nil, errors.New("create model request is required")
	}

	if err := req.Validate(); err != nil {
		return nil, err
	}

	createdAt := r.timeProvider.Now().UTC()
	var out model.AMPLModel
	if err := pgxutil.WithPgxConn(ctx, r.DB, func(conn *pgx.Conn) error {
		rows, err := conn.Query(ctx, `
			INSERT INTO ampl_models (
				name, description, model_content, problem_type, tags, is_template, created_at, updated_at
			) VALUES (
				$1, $2, $3, $4, $5, $6, $7, $7
			) RETURNING id, name, description, model_content, problem_type, tags, is_template, created_at, updated_at
		`,
			strings.TrimSpace(req.Name),
			req.Description,
			req.ModelContent,
			req.ProblemType,
			req.Tags,
			req.IsTemplate,
			createdAt,
		)
		if err != nil {
			return err
		}
		defer rows.Close()
		out, err = pgx.CollectOneRow(rows, pgx.RowToStructByName[model.AMPLModel])
		return err
	}); err != nil {
		return nil, r.mapWriteErr(err, false)
	}
	return &out, nil
}

// GetByID retrieves a model by ID.
func (r *ModelRepo) GetByID(ctx context.Context, id int64) (*model.AMPLModel, error) {
	return r.getByQuery(ctx, modelGetByIDQuery, "failed to get model by ID", id)
}

// GetByName retrieves a model by name.
func (r *ModelRepo) GetByName(ctx context.Context, name string) (*model.AMPLModel, error) {
	return r.getByQuery(ctx, modelGetByNameQuery, "failed to get model by name", name)
}

// ListWithOptions retrieves models with pagination and optional filters.
func (r *ModelRepo) ListWithOptions(
	ctx context.Context,
	opts model.ModelsListOptions,
) ([]*model.AMPLModel, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = 50
	}
	if limit > 1000 {
		limit = 1000
	}
	offset := max(opts.Offset, 0)

	queryOpts := []database.ListQueryOption{
		database.WithColumns(modelColumns()...),
		database.WithLimit(limit),
		database.WithOffset(offset),
		database.WithOrderBy("created_at", sortDirDesc),
	}

	if opts.ProblemType != nil && strings.TrimSpace(*opts.ProblemType) != "" {
		queryOpts = append(queryOpts, database.WithCondition(
			database.WhereCond("problem_type", database.Equal, strings.ToUpper(strings.TrimSpace(*opts.ProblemType))),
		))
	}

	query, args := database.BuildListQuery(database.NewListQueryOptions("ampl_models", queryOpts...))

	var rowsOut []model.AMPLModel
	if err := pgxutil.WithPgxConn(ctx, r.DB, func(conn *pgx.Conn) error {
		rows, err := conn.Query(ctx, query, args...)
		if err != nil {
			return err
		}
		defer rows.Close()
		rowsOut, err = pgx.CollectRows(rows, pgx.RowToStructByName[model.AMPLModel])
		return err
	}); err != nil {
		return nil, fmt.Errorf("failed to list models: %w", err)
	}
	res := make([]*model.AMPLModel, len(rowsOut))
	for i := range rowsOut {
		res[i] = &rowsOut[i]
	}
	return res, nil
}

// Count returns the total number of stored models.
func (r *ModelRepo) Count(ctx context.Context) (int, error) {
	query, args := database.BuildListQuery(database.NewListQueryOptions("ampl_models",
		database.WithCountOnly(),
	))

	var count int
	if err := r.DB.QueryRowContext(ctx, query, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("count models: %w", err)
	}
	return count, nil
}

// Update updates fields of a model.
func (r *ModelRepo) Update(
	ctx context.Context,
	id int64,
	req model.UpdateModelRequest,
) (*model.AMPLModel, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	var out model.AMPLModel
	err := pgxutil.WithPgxConn(ctx, r.DB, func(conn *pgx.Conn) error {
		setClause, args := r.buildUpdateClause(req)
		args = append(args, id)
		query := "UPDATE ampl_models SET " + setClause + " WHERE id = $" + strconv.Itoa(
			len(args),
		) + " RETURNING id, name, description, model_content, problem_type, tags, is_template, created_at, updated_at"
		rows, qerr := conn.Query(ctx, query, args...)
		if qerr != nil {
			return qerr
		}
		defer rows.Close()
		var e error
		out, e = pgx.CollectOneRow(rows, pgx.RowToStructByName[model.AMPLModel])
		return e
	})
	if err != nil {
		return nil, r.mapWriteErr(err, true)
	}
	return &out, nil
}

// buildUpdateClause builds the SQL SET clause and args for updating a model based on the request.
func (r *ModelRepo) buildUpdateClause(req model.UpdateModelRequest) (string, []any) {
	setParts := make([]string, 0, 6)
	args := make([]any, 0, 7)
	nextIdx := func() int { return len(args) + 1 }

	if req.Name != nil {
		setParts = append(setParts, fmt.Sprintf("name = $%d", nextIdx()))
		args = append(args, strings.TrimSpace(*req.Name))
	}
	if req.Description != nil {
		if strings.TrimSpace(*req.Description) == "" {
			setParts = append(setParts, "description = NULL")
		} else {
			setParts = append(setParts, fmt.Sprintf("description = $%d", nextIdx()))
			args = append(args, *req.Description)
		}
	}
	if req.ModelContent != nil {
		setParts = append(setParts, fmt.Sprintf("model_content = $%d", nextIdx()))
		args = append(args, *req.ModelContent)
	}
	if req.ProblemType != nil {
		setParts = append(setParts, fmt.Sprintf("problem_type = $%d", nextIdx()))
		args = append(args, *req.ProblemType)
	}
	if req.Tags != nil {
		setParts = append(setParts, fmt.Sprintf("tags = $%d", nextIdx()))
		args = append(args, *req.Tags)
	}

	setParts = append(setParts, fmt.Sprintf("updated_at = $%d", nextIdx()))
	args = append(args, r.timeProvider.Now().UTC())

	return strings.Join(setParts, ", "), args
}

// Delete deletes a model by ID. Data files, run history, and pending solve
// jobs cascade with it.
func (r *ModelRepo) Delete(ctx context.Context, id int64) (bool, error) {
	var rows int64
	err := pgxutil.WithPgxConn(ctx, r.DB, func(conn *pgx.Conn) error {
		ct, err := conn.Exec(ctx, `DELETE FROM ampl_models WHERE id = $1`, id)
		if err != nil {
			return err
		}
		rows = ct.RowsAffected()
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("failed to delete model: %w", err)
	}
	return rows > 0, nil
}

// --- helpers ---

// SQL query constants for static queries (no dynamic WHERE/ORDER BY).
const (
	modelGetByIDQuery = `
		SELECT id, name, description, model_content, problem_type, tags, is_template,
		       created_at, updated_at
		FROM ampl_models
		WHERE id = $1`

	modelGetByNameQuery = `
		SELECT id, name, description, model_content, problem_type, tags, is_template,
		       created_at, updated_at
		FROM ampl_models
		WHERE name = $1`
)

// modelColumns returns the standard column list for model queries.
// Used by dynamic queries that need to build column lists at runtime.
func modelColumns() []string {
	return []string{
		"id",
		"name",
		"description",
		"model_content",
		"problem_type",
		"tags",
		"is_template",
		"created_at",
		"updated_at",
	}
}

// getByQuery is a helper function to execute a query and return a single model.
// Uses variadic args to avoid slice allocation at call sites.
func (r *ModelRepo) getByQuery(
	ctx context.Context,
	q string,
	errMsg string,
	args ...any,
) (*model.AMPLModel, error) {
	var m model.AMPLModel
	err := pgxutil.WithPgxConn(ctx, r.DB, func(conn *pgx.Conn) error {
		rows, err := conn.Query(ctx, q, args...)
		if err != nil {
			return err
		}
		defer rows.Close()
		m, err = pgx.CollectOneRow(rows, pgx.RowToStructByName[model.AMPLModel])
		return err
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrModelNotFound
		}
		return nil, fmt.Errorf("%s: %w", errMsg, err)
	}
	return &m, nil
}

func (r *ModelRepo) mapWriteErr(err error, includeNotFound bool) error {
	if err == nil {
		return nil
	}
	if includeNotFound && errors.Is(err, pgx.ErrNoRows) {
		return ErrModelNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return ErrModelNameExists
	}
	return err
}
