package data

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/optilab/optilab-api/internal/data/pgxutil"
	"github.com/optilab/optilab-api/internal/domain/model"
)

// DataFileRepo provides database operations for model data files.
type DataFileRepo struct {
	DB           *sql.DB
	timeProvider TimeProvider
}

// NewDataFileRepo creates a new DataFileRepo with real time provider.
func NewDataFileRepo(db *sql.DB) *DataFileRepo {
	return &DataFileRepo{DB: db, timeProvider: &RealTimeProvider{}}
}

// NewDataFileRepoWithTimeProvider creates a new DataFileRepo with a custom time provider (useful for tests).
func NewDataFileRepoWithTimeProvider(db *sql.DB, tp TimeProvider) *DataFileRepo {
	return &DataFileRepo{DB: db, timeProvider: tp}
}

const dataFileColumns = `id, model_id, name, file_content, file_type, source_excel_path, created_at, updated_at`

// Create inserts a new data file under the given model.
func (r *DataFileRepo) Create(
	ctx context.Context,
	modelID int64,
	req *model.CreateDataFileRequest,
) (*model.DataFile, error) {
	if req == nil {
		return nil, errors.New("create data file request is required")
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}

	createdAt := r.timeProvider.Now().UTC()
	var out model.DataFile
	if err := pgxutil.WithPgxConn(ctx, r.DB, func(conn *pgx.Conn) error {
		rows, err := conn.Query(ctx, `
			INSERT INTO data_files (
				model_id, name, file_content, file_type, source_excel_path, created_at, updated_at
			) VALUES (
				$1, $2, $3, $4, $5, $6, $6
			) RETURNING `+dataFileColumns,
			modelID,
			strings.TrimSpace(req.Name),
			req.FileContent,
			req.FileType,
			req.SourceExcelPath,
			createdAt,
		)
		if err != nil {
			return err
		}
		defer rows.Close()
		out, err = pgx.CollectOneRow(rows, pgx.RowToStructByName[model.DataFile])
		return err
	}); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23503" {
			return nil, ErrModelNotFound
		}
		return nil, fmt.Errorf("create data file: %w", err)
	}
	return &out, nil
}

// GetByID retrieves a data file by ID.
func (r *DataFileRepo) GetByID(ctx context.Context, id int64) (*model.DataFile, error) {
	return r.getByQuery(ctx, `
		SELECT `+dataFileColumns+`
		FROM data_files
		WHERE id = $1`, id)
}

// GetForModel retrieves a data file by ID, scoped to the owning model.
func (r *DataFileRepo) GetForModel(ctx context.Context, modelID, id int64) (*model.DataFile, error) {
	return r.getByQuery(ctx, `
		SELECT `+dataFileColumns+`
		FROM data_files
		WHERE id = $1 AND model_id = $2`, id, modelID)
}

// ListByModel retrieves all data files belonging to a model, newest first.
func (r *DataFileRepo) ListByModel(ctx context.Context, modelID int64) ([]*model.DataFile, error) {
	var rowsOut []model.DataFile
	if err := pgxutil.WithPgxConn(ctx, r.DB, func(conn *pgx.Conn) error {
		rows, err := conn.Query(ctx, `
			SELECT `+dataFileColumns+`
			FROM data_files
			WHERE model_id = $1
			ORDER BY created_at DESC, id DESC`, modelID)
		if err != nil {
			return err
		}
		defer rows.Close()
		rowsOut, err = pgx.CollectRows(rows, pgx.RowToStructByName[model.DataFile])
		return err
	}); err != nil {
		return nil, fmt.Errorf("failed to list data files: %w", err)
	}

	res := make([]*model.DataFile, len(rowsOut))
	for i := range rowsOut {
		res[i] = &rowsOut[i]
	}
	return res, nil
}

// Update applies a partial update to a data file.
func (r *DataFileRepo) Update(
	ctx context.Context,
	id int64,
	req model.UpdateDataFileRequest,
) (*model.DataFile, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	setParts := make([]string, 0, 3)
	args := make([]any, 0, 4)
	if req.Name != nil {
		args = append(args, strings.TrimSpace(*req.Name))
		setParts = append(setParts, fmt.Sprintf("name = $%d", len(args)))
	}
	if req.FileContent != nil {
		args = append(args, *req.FileContent)
		setParts = append(setParts, fmt.Sprintf("file_content = $%d", len(args)))
	}
	args = append(args, r.timeProvider.Now().UTC())
	setParts = append(setParts, fmt.Sprintf("updated_at = $%d", len(args)))
	args = append(args, id)

	var out model.DataFile
	err := pgxutil.WithPgxConn(ctx, r.DB, func(conn *pgx.Conn) error {
		query := "UPDATE data_files SET " + strings.Join(setParts, ", ") +
			fmt.Sprintf(" WHERE id = $%d RETURNING ", len(args)) + dataFileColumns
		rows, qerr := conn.Query(ctx, query, args...)
		if qerr != nil {
			return qerr
		}
		defer rows.Close()
		var e error
		out, e = pgx.CollectOneRow(rows, pgx.RowToStructByName[model.DataFile])
		return e
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrDataFileNotFound
		}
		return nil, fmt.Errorf("update data file: %w", err)
	}
	return &out, nil
}

// Delete deletes a data file by ID, scoped to the owning model.
func (r *DataFileRepo) Delete(ctx context.Context, modelID, id int64) (bool, error) {
	var rows int64
	err := pgxutil.WithPgxConn(ctx, r.DB, func(conn *pgx.Conn) error {
		ct, err := conn.Exec(ctx, `DELETE FROM data_files WHERE id = $1 AND model_id = $2`, id, modelID)
		if err != nil {
			return err
		}
		rows = ct.RowsAffected()
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("failed to delete data file: %w", err)
	}
	return rows > 0, nil
}

// getByQuery executes a query expected to return a single data file.
func (r *DataFileRepo) getByQuery(
	ctx context.Context,
	q string,
	args ...any,
) (*model.DataFile, error) {
	var df model.DataFile
	err := pgxutil.WithPgxConn(ctx, r.DB, func(conn *pgx.Conn) error {
		rows, err := conn.Query(ctx, q, args...)
		if err != nil {
			return err
		}
		defer rows.Close()
		df, err = pgx.CollectOneRow(rows, pgx.RowToStructByName[model.DataFile])
		return err
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrDataFileNotFound
		}
		return nil, fmt.Errorf("failed to get data file: %w", err)
	}
	return &df, nil
}
