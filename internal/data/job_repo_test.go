package data

import (
	"context"
	"database/sql"
	"encoding/json"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/optilab/optilab-api/internal/data/pgxutil"
	"github.com/optilab/optilab-api/internal/domain/model"
	"github.com/optilab/optilab-api/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJobRepo_Create(t *testing.T) {
	testutil.SkipIfNoTestDB(t)

	tests := []struct {
		name    string
		req     func(modelID, dataFileID int64) *model.SolveRequest
		wantErr bool
		errMsg  string
	}{
		{
			name: "defaults applied",
			req: func(modelID, _ int64) *model.SolveRequest {
				return &model.SolveRequest{ModelID: modelID}
			},
			wantErr: false,
		},
		{
			name: "request with data file and options",
			req: func(modelID, dataFileID int64) *model.SolveRequest {
				return &model.SolveRequest{
					ModelID:    modelID,
					DataFileID: &dataFileID,
					Solver:     "cbc",
					Options:    json.RawMessage(`{"mipgap": 0.01}`),
					Timeout:    60,
				}
			},
			wantErr: false,
		},
		{
			name: "missing model id",
			req: func(_, _ int64) *model.SolveRequest {
				return &model.SolveRequest{}
			},
			wantErr: true,
			errMsg:  "model_id is required",
		},
		{
			name: "unknown solver",
			req: func(modelID, _ int64) *model.SolveRequest {
				return &model.SolveRequest{ModelID: modelID, Solver: "fakesolver"}
			},
			wantErr: true,
			errMsg:  "unknown solver",
		},
		{
			name: "timeout out of range",
			req: func(modelID, _ int64) *model.SolveRequest {
				return &model.SolveRequest{ModelID: modelID, Timeout: 9999}
			},
			wantErr: true,
			errMsg:  "timeout must be between",
		},
		{
			name: "negative data file id",
			req: func(modelID, _ int64) *model.SolveRequest {
				df := int64(-1)
				return &model.SolveRequest{ModelID: modelID, DataFileID: &df}
			},
			wantErr: true,
			errMsg:  "data_file_id must be > 0",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			testutil.WithAutoDB(t, func(db *sql.DB) {
				repo := NewJobRepo(db, RepoConfig{})
				m := createTestModel(t, db, "create-job-model")
				df := createTestDataFile(t, db, m.ID, "create-job-data")
				req := tt.req(m.ID, df.ID)

				job, err := repo.Create(context.Background(), req)

				if tt.wantErr {
					require.Error(t, err)
					assert.Contains(t, err.Error(), tt.errMsg)
					assert.Nil(t, job)
					return
				}

				require.NoError(t, err)
				require.NotNil(t, job)

				// Verify job fields
				assert.NotEmpty(t, job.ID)
				assert.Equal(t, m.ID, job.ModelID)
				assert.Equal(t, model.JobStatusQueued, job.Status)
				assert.Equal(t, req.Solver, job.Solver)
				assert.Equal(t, req.Timeout, job.TimeoutSeconds)
				assert.Equal(t, 0, job.RequeueCount)
				assert.False(t, job.CancelRequested)
				assert.Nil(t, job.ResultID)
				assert.Nil(t, job.LastError)
				assert.NotZero(t, job.CreatedAt)
				assert.NotZero(t, job.UpdatedAt)

				// Verify optional fields and defaults
				if req.DataFileID != nil {
					require.NotNil(t, job.DataFileID)
					assert.Equal(t, *req.DataFileID, *job.DataFileID)
				} else {
					assert.Nil(t, job.DataFileID)
				}
				if len(req.Options) > 0 {
					assert.JSONEq(t, string(req.Options), string(job.Options))
				} else {
					assert.JSONEq(t, `{}`, string(job.Options))
				}
				assert.Equal(t, defaultMaxRequeues, job.MaxRequeues)
			})
		})
	}
}

func TestJobRepo_ReserveNext(t *testing.T) {
	testutil.SkipIfNoTestDB(t)

	t.Run("reserves oldest queued job first", func(t *testing.T) {
		testutil.WithAutoDB(t, func(db *sql.DB) {
			repo := NewJobRepo(db, RepoConfig{})
			ctx := context.Background()
			m := createTestModel(t, db, "reserve-model")

			first, err := repo.Create(ctx, testutil.NewSolveRequest(m.ID).Build())
			require.NoError(t, err)
			second, err := repo.Create(ctx, testutil.NewSolveRequest(m.ID).Build())
			require.NoError(t, err)

			job, err := repo.ReserveNext(ctx, 30)
			require.NoError(t, err)
			require.NotNil(t, job)
			assert.Equal(t, first.ID, job.ID, "oldest queued job should be reserved first")

			// Verify reservation state
			assert.Equal(t, model.JobStatusRunning, job.Status)
			require.NotNil(t, job.StartedAt)
			require.NotNil(t, job.LeaseExpiresAt)
			assert.InDelta(t, 30.0, job.LeaseExpiresAt.Sub(*job.StartedAt).Seconds(), 1.0)

			job, err = repo.ReserveNext(ctx, 30)
			require.NoError(t, err)
			assert.Equal(t, second.ID, job.ID)
		})
	})

	t.Run("no jobs available", func(t *testing.T) {
		testutil.WithAutoDB(t, func(db *sql.DB) {
			repo := NewJobRepo(db, RepoConfig{})

			job, err := repo.ReserveNext(context.Background(), 30)
			require.Error(t, err)
			require.ErrorIs(t, err, model.ErrNoJobsAvailable)
			assert.Nil(t, job)
		})
	})
}

func TestJobRepo_Heartbeat(t *testing.T) {
	testutil.SkipIfNoTestDB(t)

	tests := []struct {
		name         string
		setupJob     bool
		reserveJob   bool
		jobID        string
		leaseSeconds int
		wantSuccess  bool
		wantErr      bool
	}{
		{
			name:         "successful heartbeat",
			setupJob:     true,
			reserveJob:   true,
			leaseSeconds: 60,
			wantSuccess:  true,
		},
		{
			name:         "heartbeat non-existent job",
			setupJob:     false,
			reserveJob:   false,
			jobID:        "00000000-0000-0000-0000-000000000000",
			leaseSeconds: 60,
			wantSuccess:  false,
		},
		{
			name:         "heartbeat queued job",
			setupJob:     true,
			reserveJob:   false,
			leaseSeconds: 60,
			wantSuccess:  false,
		},
		{
			name:         "non-positive lease",
			setupJob:     false,
			jobID:        "00000000-0000-0000-0000-000000000000",
			leaseSeconds: 0,
			wantErr:      true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			testutil.WithAutoDB(t, func(db *sql.DB) {
				repo := NewJobRepo(db, RepoConfig{})
				jobID := tt.jobID

				if tt.setupJob {
					m := createTestModel(t, db, "heartbeat-model")
					job, err := repo.Create(context.Background(), testutil.NewSolveRequest(m.ID).Build())
					require.NoError(t, err)
					jobID = job.ID

					if tt.reserveJob {
						_, err = repo.ReserveNext(context.Background(), 30)
						require.NoError(t, err)
					}
				}

				success, err := repo.Heartbeat(context.Background(), jobID, tt.leaseSeconds)
				if tt.wantErr {
					require.Error(t, err)
					return
				}
				require.NoError(t, err)
				assert.Equal(t, tt.wantSuccess, success)
			})
		})
	}
}

func TestJobRepo_Complete(t *testing.T) {
	testutil.SkipIfNoTestDB(t)

	testutil.WithAutoDB(t, func(db *sql.DB) {
		repo := NewJobRepo(db, RepoConfig{})
		ctx := context.Background()
		m := createTestModel(t, db, "complete-model")
		run := createTestRun(t, db, m.ID)

		job, err := repo.Create(ctx, testutil.NewSolveRequest(m.ID).Build())
		require.NoError(t, err)

		// Completing a job that is not running should not succeed
		success, err := repo.Complete(ctx, job.ID, run.ID)
		require.NoError(t, err)
		assert.False(t, success)

		_, err = repo.ReserveNext(ctx, 30)
		require.NoError(t, err)

		success, err = repo.Complete(ctx, job.ID, run.ID)
		require.NoError(t, err)
		assert.True(t, success)

		// A completed job always references the run it produced
		completed, err := repo.GetByID(ctx, job.ID)
		require.NoError(t, err)
		assert.Equal(t, model.JobStatusCompleted, completed.Status)
		require.NotNil(t, completed.ResultID)
		assert.Equal(t, run.ID, *completed.ResultID)
		assert.NotNil(t, completed.CompletedAt)
		assert.Nil(t, completed.LastError)
		assert.Nil(t, completed.LeaseExpiresAt)

		// Test completing non-existent job (use valid UUID format)
		success, err = repo.Complete(ctx, "00000000-0000-0000-0000-000000000000", run.ID)
		require.NoError(t, err)
		assert.False(t, success)

		// A result reference is mandatory
		_, err = repo.Complete(ctx, job.ID, 0)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "resultID must be positive")
	})
}

func TestJobRepo_Fail(t *testing.T) {
	testutil.SkipIfNoTestDB(t)

	testutil.WithAutoDB(t, func(db *sql.DB) {
		repo := NewJobRepo(db, RepoConfig{})
		ctx := context.Background()
		m := createTestModel(t, db, "fail-model")

		job, err := repo.Create(ctx, testutil.NewSolveRequest(m.ID).Build())
		require.NoError(t, err)

		// Failing a job that is not running should not succeed
		success, err := repo.Fail(ctx, job.ID, "solver exploded")
		require.NoError(t, err)
		assert.False(t, success)

		_, err = repo.ReserveNext(ctx, 30)
		require.NoError(t, err)

		success, err = repo.Fail(ctx, job.ID, "solver exploded")
		require.NoError(t, err)
		assert.True(t, success)

		// A failed job always carries an error message
		failed, err := repo.GetByID(ctx, job.ID)
		require.NoError(t, err)
		assert.Equal(t, model.JobStatusFailed, failed.Status)
		require.NotNil(t, failed.LastError)
		assert.Equal(t, "solver exploded", *failed.LastError)
		assert.NotNil(t, failed.CompletedAt)
		assert.Nil(t, failed.ResultID)

		// Test failing non-existent job (use valid UUID format)
		success, err = repo.Fail(ctx, "00000000-0000-0000-0000-000000000000", "error")
		require.NoError(t, err)
		assert.False(t, success)
	})
}

func TestJobRepo_FailDefaultsErrorMessage(t *testing.T) {
	testutil.SkipIfNoTestDB(t)

	testutil.WithAutoDB(t, func(db *sql.DB) {
		repo := NewJobRepo(db, RepoConfig{})
		ctx := context.Background()
		m := createTestModel(t, db, "fail-blank-model")

		job, err := repo.Create(ctx, testutil.NewSolveRequest(m.ID).Build())
		require.NoError(t, err)
		_, err = repo.ReserveNext(ctx, 30)
		require.NoError(t, err)

		success, err := repo.Fail(ctx, job.ID, "   ")
		require.NoError(t, err)
		assert.True(t, success)

		failed, err := repo.GetByID(ctx, job.ID)
		require.NoError(t, err)
		require.NotNil(t, failed.LastError)
		assert.Equal(t, "solve failed", *failed.LastError)
	})
}

func TestJobRepo_CancelFlow(t *testing.T) {
	testutil.SkipIfNoTestDB(t)

	t.Run("cancel queued job", func(t *testing.T) {
		testutil.WithAutoDB(t, func(db *sql.DB) {
			repo := NewJobRepo(db, RepoConfig{})
			ctx := context.Background()
			m := createTestModel(t, db, "cancel-queued-model")

			job, err := repo.Create(ctx, testutil.NewSolveRequest(m.ID).Build())
			require.NoError(t, err)

			success, err := repo.CancelQueued(ctx, job.ID)
			require.NoError(t, err)
			assert.True(t, success)

			cancelled, err := repo.GetByID(ctx, job.ID)
			require.NoError(t, err)
			assert.Equal(t, model.JobStatusCancelled, cancelled.Status)
			assert.NotNil(t, cancelled.CompletedAt)
			assert.Nil(t, cancelled.LastError)

			// Cancelled jobs are not reservable
			_, err = repo.ReserveNext(ctx, 30)
			require.ErrorIs(t, err, model.ErrNoJobsAvailable)
		})
	})

	t.Run("cancel queued fails once running", func(t *testing.T) {
		testutil.WithAutoDB(t, func(db *sql.DB) {
			repo := NewJobRepo(db, RepoConfig{})
			ctx := context.Background()
			m := createTestModel(t, db, "cancel-running-model")

			job, err := repo.Create(ctx, testutil.NewSolveRequest(m.ID).Build())
			require.NoError(t, err)
			_, err = repo.ReserveNext(ctx, 30)
			require.NoError(t, err)

			success, err := repo.CancelQueued(ctx, job.ID)
			require.NoError(t, err)
			assert.False(t, success)
		})
	})

	t.Run("request cancel on running job", func(t *testing.T) {
		testutil.WithAutoDB(t, func(db *sql.DB) {
			repo := NewJobRepo(db, RepoConfig{})
			ctx := context.Background()
			m := createTestModel(t, db, "request-cancel-model")

			job, err := repo.Create(ctx, testutil.NewSolveRequest(m.ID).Build())
			require.NoError(t, err)

			// Not running yet; the flag cannot be set
			success, err := repo.RequestCancel(ctx, job.ID)
			require.NoError(t, err)
			assert.False(t, success)

			_, err = repo.ReserveNext(ctx, 30)
			require.NoError(t, err)

			success, err = repo.RequestCancel(ctx, job.ID)
			require.NoError(t, err)
			assert.True(t, success)

			requested, err := repo.CancelRequested(ctx, job.ID)
			require.NoError(t, err)
			assert.True(t, requested)

			// The worker observes the flag and marks the job cancelled
			success, err = repo.MarkCancelled(ctx, job.ID)
			require.NoError(t, err)
			assert.True(t, success)

			cancelled, err := repo.GetByID(ctx, job.ID)
			require.NoError(t, err)
			assert.Equal(t, model.JobStatusCancelled, cancelled.Status)
			assert.NotNil(t, cancelled.CompletedAt)
			assert.Nil(t, cancelled.LeaseExpiresAt)
		})
	})

	t.Run("cancel requested on missing job", func(t *testing.T) {
		testutil.WithAutoDB(t, func(db *sql.DB) {
			repo := NewJobRepo(db, RepoConfig{})

			_, err := repo.CancelRequested(context.Background(), "00000000-0000-0000-0000-000000000000")
			require.Error(t, err)
			require.ErrorIs(t, err, ErrJobNotFound)
		})
	})
}

func TestJobRepo_Stats(t *testing.T) {
	testutil.SkipIfNoTestDB(t)

	testutil.WithAutoDB(t, func(db *sql.DB) {
		repo := NewJobRepo(db, RepoConfig{})
		ctx := context.Background()
		m := createTestModel(t, db, "stats-model")
		run := createTestRun(t, db, m.ID)

		// Jobs are reserved in FIFO order, so creation order controls which
		// job ends up in which state.
		var jobs []*model.SolveJob
		for range 5 {
			job, err := repo.Create(ctx, testutil.NewSolveRequest(m.ID).Build())
			require.NoError(t, err)
			jobs = append(jobs, job)
		}

		// 1. Oldest job gets reserved and completed
		reserved, err := repo.ReserveNext(ctx, 30)
		require.NoError(t, err)
		require.Equal(t, jobs[0].ID, reserved.ID)
		_, err = repo.Complete(ctx, reserved.ID, run.ID)
		require.NoError(t, err)

		// 2. Second job stays running
		reserved, err = repo.ReserveNext(ctx, 30)
		require.NoError(t, err)
		require.Equal(t, jobs[1].ID, reserved.ID)

		// 3. Third job gets failed
		reserved, err = repo.ReserveNext(ctx, 30)
		require.NoError(t, err)
		require.Equal(t, jobs[2].ID, reserved.ID)
		_, err = repo.Fail(ctx, reserved.ID, "stats failure")
		require.NoError(t, err)

		// 4. Fourth job gets cancelled while queued
		success, err := repo.CancelQueued(ctx, jobs[3].ID)
		require.NoError(t, err)
		require.True(t, success)

		// 5. Fifth job stays queued

		stats, err := repo.Stats(ctx)
		require.NoError(t, err)
		require.NotNil(t, stats)

		assert.Equal(t, 1, stats.Queued)
		assert.Equal(t, 1, stats.Running)
		assert.Equal(t, 1, stats.Completed)
		assert.Equal(t, 1, stats.Failed)
		assert.Equal(t, 1, stats.Cancelled)
	})
}

func TestJobRepo_RequeueExpired(t *testing.T) {
	testutil.SkipIfNoTestDB(t)

	testutil.WithAutoDB(t, func(db *sql.DB) {
		// Use a fixed time so lease expiry can be simulated
		timeProvider := NewFixedTimeProvider(testutil.TestTime())
		repo := NewJobRepo(db, RepoConfig{TimeProvider: timeProvider, DefaultMaxRequeues: 1})
		ctx := context.Background()
		m := createTestModel(t, db, "requeue-model")

		job, err := repo.Create(ctx, testutil.NewSolveRequest(m.ID).Build())
		require.NoError(t, err)

		// Reserve with a short lease and let it expire
		reserved, err := repo.ReserveNext(ctx, 1)
		require.NoError(t, err)
		assert.Equal(t, job.ID, reserved.ID)

		timeProvider.AddTime(2 * time.Second)

		count, err := repo.requeueExpired(ctx)
		require.NoError(t, err)
		assert.Equal(t, int64(1), count)

		// The job is back in the queue with its requeue counted
		requeued, err := repo.ReserveNext(ctx, 1)
		require.NoError(t, err)
		assert.Equal(t, job.ID, requeued.ID)
		assert.Equal(t, model.JobStatusRunning, requeued.Status)
		assert.Equal(t, 1, requeued.RequeueCount)

		// A second expiry exhausts the requeue cap and fails the job
		timeProvider.AddTime(2 * time.Second)

		count, err = repo.requeueExpired(ctx)
		require.NoError(t, err)
		assert.Equal(t, int64(0), count)

		failed, err := repo.GetByID(ctx, job.ID)
		require.NoError(t, err)
		assert.Equal(t, model.JobStatusFailed, failed.Status)
		require.NotNil(t, failed.LastError)
		assert.Equal(t, lostWorkerError, *failed.LastError)
	})
}

// TestPgxConversionFunctions tests the pgx transaction option conversion utilities.
func TestPgxConversionFunctions(t *testing.T) {
	t.Run("toPgxTxOptions", func(t *testing.T) {
		tests := []struct {
			name     string
			input    *sql.TxOptions
			expected pgx.TxOptions
		}{
			{
				name:  "nil options",
				input: nil,
				expected: pgx.TxOptions{
					IsoLevel:   pgx.TxIsoLevel(""),
					AccessMode: pgx.TxAccessMode(""),
				},
			},
			{
				name: "read committed, read-write",
				input: &sql.TxOptions{
					Isolation: sql.LevelReadCommitted,
					ReadOnly:  false,
				},
				expected: pgx.TxOptions{
					IsoLevel:   pgx.ReadCommitted,
					AccessMode: pgx.ReadWrite,
				},
			},
			{
				name: "serializable, read-only",
				input: &sql.TxOptions{
					Isolation: sql.LevelSerializable,
					ReadOnly:  true,
				},
				expected: pgx.TxOptions{
					IsoLevel:   pgx.Serializable,
					AccessMode: pgx.ReadOnly,
				},
			},
		}

		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				result := pgxutil.ToPgxTxOptions(tt.input)
				assert.Equal(t, tt.expected.IsoLevel, result.IsoLevel)
				assert.Equal(t, tt.expected.AccessMode, result.AccessMode)
			})
		}
	})

	t.Run("toPgxIsoLevel", func(t *testing.T) {
		tests := []struct {
			input    sql.IsolationLevel
			expected pgx.TxIsoLevel
		}{
			{sql.LevelDefault, pgx.TxIsoLevel("")},
			{sql.LevelSerializable, pgx.Serializable},
			{sql.LevelLinearizable, pgx.Serializable},
			{sql.LevelRepeatableRead, pgx.RepeatableRead},
			{sql.LevelSnapshot, pgx.RepeatableRead},
			{sql.LevelReadCommitted, pgx.ReadCommitted},
			{sql.LevelWriteCommitted, pgx.ReadCommitted},
			{sql.LevelReadUncommitted, pgx.ReadUncommitted},
		}

		for _, tt := range tests {
			t.Run(string(tt.expected), func(t *testing.T) {
				result := pgxutil.ToPgxIsoLevel(tt.input)
				assert.Equal(t, tt.expected, result)
			})
		}
	})

	t.Run("toPgxAccessMode", func(t *testing.T) {
		assert.Equal(t, pgx.ReadWrite, pgxutil.ToPgxAccessMode(false))
		assert.Equal(t, pgx.ReadOnly, pgxutil.ToPgxAccessMode(true))
	})
}

func TestJobRepo_ListWithOptions(t *testing.T) {
	testutil.SkipIfNoTestDB(t)

	testutil.WithAutoDB(t, func(db *sql.DB) {
		repo := NewJobRepo(db, RepoConfig{})
		ctx := context.Background()
		m1 := createTestModel(t, db, "list-model-1")
		m2 := createTestModel(t, db, "list-model-2")
		run := createTestRun(t, db, m1.ID)

		job1, err := repo.Create(ctx, testutil.NewSolveRequest(m1.ID).Build())
		require.NoError(t, err)
		job2, err := repo.Create(ctx, testutil.NewSolveRequest(m2.ID).Build())
		require.NoError(t, err)
		job3, err := repo.Create(ctx, testutil.NewSolveRequest(m1.ID).Build())
		require.NoError(t, err)

		// Reserve and complete the oldest job to test status filtering
		reserved, err := repo.ReserveNext(ctx, 30)
		require.NoError(t, err)
		require.Equal(t, job1.ID, reserved.ID)
		success, err := repo.Complete(ctx, job1.ID, run.ID)
		require.NoError(t, err)
		require.True(t, success)

		tests := []struct {
			name      string
			opts      model.JobsListOptions
			wantLen   int
			wantTotal int
			checkJobs func(t *testing.T, jobs []*model.SolveJob)
		}{
			{
				name:      "list all jobs",
				opts:      model.JobsListOptions{Limit: 10},
				wantLen:   3,
				wantTotal: 3,
				checkJobs: func(t *testing.T, jobs []*model.SolveJob) {
					// Newest first
					assert.Equal(t, job3.ID, jobs[0].ID)
					assert.Equal(t, job2.ID, jobs[1].ID)
					assert.Equal(t, job1.ID, jobs[2].ID)
				},
			},
			{
				name:      "filter by status",
				opts:      model.JobsListOptions{Status: jobStatusPtr(model.JobStatusCompleted), Limit: 10},
				wantLen:   1,
				wantTotal: 1,
				checkJobs: func(t *testing.T, jobs []*model.SolveJob) {
					assert.Equal(t, job1.ID, jobs[0].ID)
					assert.Equal(t, model.JobStatusCompleted, jobs[0].Status)
				},
			},
			{
				name:      "filter by model",
				opts:      model.JobsListOptions{ModelID: int64Ptr(m2.ID), Limit: 10},
				wantLen:   1,
				wantTotal: 1,
				checkJobs: func(t *testing.T, jobs []*model.SolveJob) {
					assert.Equal(t, job2.ID, jobs[0].ID)
				},
			},
			{
				name:      "pagination with limit",
				opts:      model.JobsListOptions{Limit: 2},
				wantLen:   2,
				wantTotal: 3,
				checkJobs: func(t *testing.T, jobs []*model.SolveJob) {
					assert.Equal(t, job3.ID, jobs[0].ID)
					assert.Equal(t, job2.ID, jobs[1].ID)
				},
			},
			{
				name:      "pagination with offset",
				opts:      model.JobsListOptions{Limit: 2, Offset: 2},
				wantLen:   1,
				wantTotal: 3,
				checkJobs: func(t *testing.T, jobs []*model.SolveJob) {
					assert.Equal(t, job1.ID, jobs[0].ID)
				},
			},
		}

		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				jobs, err := repo.ListWithOptions(ctx, tt.opts)
				require.NoError(t, err)
				assert.Len(t, jobs, tt.wantLen)

				if tt.checkJobs != nil {
					tt.checkJobs(t, jobs)
				}

				total, err := repo.CountWithOptions(ctx, tt.opts)
				require.NoError(t, err)
				assert.Equal(t, tt.wantTotal, total)
			})
		}
	})
}

func TestJobRepo_Delete(t *testing.T) {
	testutil.SkipIfNoTestDB(t)

	t.Run("delete queued job without lease", func(t *testing.T) {
		testutil.WithAutoDB(t, func(db *sql.DB) {
			repo := NewJobRepo(db, RepoConfig{})
			ctx := context.Background()
			m := createTestModel(t, db, "delete-queued-model")

			job, err := repo.Create(ctx, testutil.NewSolveRequest(m.ID).Build())
			require.NoError(t, err)
			require.Equal(t, model.JobStatusQueued, job.Status)
			require.Nil(t, job.LeaseExpiresAt)

			err = repo.Delete(ctx, job.ID)
			require.NoError(t, err)

			_, err = repo.GetByID(ctx, job.ID)
			require.Error(t, err)
			require.ErrorIs(t, err, ErrJobNotFound)
		})
	})

	t.Run("delete non-existent job", func(t *testing.T) {
		testutil.WithAutoDB(t, func(db *sql.DB) {
			repo := NewJobRepo(db, RepoConfig{})

			err := repo.Delete(context.Background(), "00000000-0000-0000-0000-000000000000")
			require.Error(t, err)
			require.ErrorIs(t, err, ErrJobNotFound)
		})
	})

	t.Run("delete running job", func(t *testing.T) {
		testutil.WithAutoDB(t, func(db *sql.DB) {
			repo := NewJobRepo(db, RepoConfig{})
			ctx := context.Background()
			m := createTestModel(t, db, "delete-running-model")

			job, err := repo.Create(ctx, testutil.NewSolveRequest(m.ID).Build())
			require.NoError(t, err)
			_, err = repo.ReserveNext(ctx, 30)
			require.NoError(t, err)

			err = repo.Delete(ctx, job.ID)
			require.Error(t, err)
			require.ErrorIs(t, err, ErrJobNotDeletable)

			// Verify job still exists
			_, err = repo.GetByID(ctx, job.ID)
			require.NoError(t, err)
		})
	})

	t.Run("delete completed job", func(t *testing.T) {
		testutil.WithAutoDB(t, func(db *sql.DB) {
			repo := NewJobRepo(db, RepoConfig{})
			ctx := context.Background()
			m := createTestModel(t, db, "delete-completed-model")
			run := createTestRun(t, db, m.ID)

			job, err := repo.Create(ctx, testutil.NewSolveRequest(m.ID).Build())
			require.NoError(t, err)
			_, err = repo.ReserveNext(ctx, 30)
			require.NoError(t, err)
			_, err = repo.Complete(ctx, job.ID, run.ID)
			require.NoError(t, err)

			err = repo.Delete(ctx, job.ID)
			require.NoError(t, err)

			// The run outlives the job row
			_, err = NewRunRepo(db).GetByID(ctx, run.ID)
			require.NoError(t, err)
		})
	})

	t.Run("delete failed job", func(t *testing.T) {
		testutil.WithAutoDB(t, func(db *sql.DB) {
			repo := NewJobRepo(db, RepoConfig{})
			ctx := context.Background()
			m := createTestModel(t, db, "delete-failed-model")

			job, err := repo.Create(ctx, testutil.NewSolveRequest(m.ID).Build())
			require.NoError(t, err)
			_, err = repo.ReserveNext(ctx, 30)
			require.NoError(t, err)
			_, err = repo.Fail(ctx, job.ID, "test error")
			require.NoError(t, err)

			err = repo.Delete(ctx, job.ID)
			require.NoError(t, err)

			_, err = repo.GetByID(ctx, job.ID)
			require.Error(t, err)
			require.ErrorIs(t, err, ErrJobNotFound)
		})
	})

	t.Run("delete queued job with active lease", func(t *testing.T) {
		testutil.WithAutoDB(t, func(db *sql.DB) {
			repo := NewJobRepo(db, RepoConfig{})
			ctx := context.Background()
			m := createTestModel(t, db, "delete-leased-model")

			job, err := repo.Create(ctx, testutil.NewSolveRequest(m.ID).Build())
			require.NoError(t, err)

			// Manually set a lease on the queued job to simulate the job being
			// reserved between check and delete
			_, err = db.ExecContext(ctx, `
				UPDATE solve_jobs
				SET lease_expires_at = NOW() + INTERVAL '30 seconds'
				WHERE id = $1
			`, job.ID)
			require.NoError(t, err)

			err = repo.Delete(ctx, job.ID)
			require.Error(t, err)
			require.ErrorIs(t, err, ErrJobReserved)

			// Verify job still exists
			_, err = repo.GetByID(ctx, job.ID)
			require.NoError(t, err)
		})
	})

	t.Run("delete queued job with expired lease", func(t *testing.T) {
		testutil.WithAutoDB(t, func(db *sql.DB) {
			repo := NewJobRepo(db, RepoConfig{})
			ctx := context.Background()
			m := createTestModel(t, db, "delete-expired-lease-model")

			job, err := repo.Create(ctx, testutil.NewSolveRequest(m.ID).Build())
			require.NoError(t, err)

			expiredTime := time.Now().Add(-1 * time.Hour)
			_, err = db.ExecContext(ctx, `
				UPDATE solve_jobs
				SET lease_expires_at = $2
				WHERE id = $1
			`, job.ID, expiredTime)
			require.NoError(t, err)

			err = repo.Delete(ctx, job.ID)
			require.NoError(t, err)

			_, err = repo.GetByID(ctx, job.ID)
			require.Error(t, err)
			require.ErrorIs(t, err, ErrJobNotFound)
		})
	})
}

// Test fixtures shared across the package's repository tests.

func createTestModel(t *testing.T, db *sql.DB, name string) *model.AMPLModel {
	t.Helper()
	m, err := NewModelRepo(db).Create(context.Background(), testutil.NewModelRequest(name).Build())
	require.NoError(t, err)
	return m
}

func createTestDataFile(t *testing.T, db *sql.DB, modelID int64, name string) *model.DataFile {
	t.Helper()
	df, err := NewDataFileRepo(db).Create(context.Background(), modelID, testutil.NewDataFileRequest(name).Build())
	require.NoError(t, err)
	return df
}

func createTestRun(t *testing.T, db *sql.DB, modelID int64) *model.OptimizationRun {
	t.Helper()
	objective := 42.0
	run, err := NewRunRepo(db).CreateWithDetails(context.Background(), &model.OptimizationRun{
		ModelID:        modelID,
		SolverName:     "highs",
		Status:         model.SolveStatusOptimal,
		ObjectiveValue: &objective,
	}, nil, nil)
	require.NoError(t, err)
	return run
}

// Helper functions.
func int64Ptr(n int64) *int64 {
	return &n
}

func jobStatusPtr(js model.JobStatus) *model.JobStatus {
	return &js
}
