package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/optilab/optilab-api/internal/core"
	"github.com/optilab/optilab-api/internal/data"
	domainjob "github.com/optilab/optilab-api/internal/domain/job"
	"github.com/optilab/optilab-api/internal/domain/model"
	apperrors "github.com/optilab/optilab-api/internal/errors"
	"github.com/optilab/optilab-api/internal/mocks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

const (
	solveJobID  = "0a79e573-2c1d-4f3e-9c5a-8b11a5b6c840"
	solveJobID2 = "5b1f93c2-7e44-4a86-b1dc-02f6f1a0d9ee"
)

type stubSolveNotifier struct {
	subscribeCalls int
	stopCalled     bool
}

func (s *stubSolveNotifier) Subscribe() (func(), <-chan struct{}) {
	s.subscribeCalls++
	ch := make(chan struct{})
	return func() { close(ch) }, ch
}

func (s *stubSolveNotifier) StopAll() { s.stopCalled = true }

var _ domainjob.Notifier = (*stubSolveNotifier)(nil)

type solveTestDeps struct {
	jobs      *mocks.MockJobRepository
	canceller *mocks.MockJobCanceller
	models    *mocks.MockModelRepository
	dataFiles *mocks.MockDataFileRepository
	runs      *mocks.MockRunRepository
	cache     *core.JobStatusCache
	notifier  *stubSolveNotifier
}

func newTestSolveService(t *testing.T, ctrl *gomock.Controller) (*SolveService, solveTestDeps) {
	t.Helper()
	deps := solveTestDeps{
		jobs:      mocks.NewMockJobRepository(ctrl),
		canceller: mocks.NewMockJobCanceller(ctrl),
		models:    mocks.NewMockModelRepository(ctrl),
		dataFiles: mocks.NewMockDataFileRepository(ctrl),
		runs:      mocks.NewMockRunRepository(ctrl),
		cache:     core.NewJobStatusCache(data.NewMemoryCacheRepo(), core.JobStatusCacheConfig{}),
		notifier:  &stubSolveNotifier{},
	}
	svc := MustNewSolveService(SolveServiceOptions{
		Repos: SolveServiceRepos{
			Jobs:      deps.jobs,
			Canceller: deps.canceller,
			Models:    deps.models,
			DataFiles: deps.dataFiles,
			Runs:      deps.runs,
		},
		StatusCache:  deps.cache,
		DefaultLease: 30 * time.Second,
		Notifier:     deps.notifier,
	})
	return svc, deps
}

func snapshotFor(t *testing.T, cache *core.JobStatusCache, jobID string) *model.JobStatusSnapshot {
	t.Helper()
	snap, err := cache.Get(context.Background(), jobID)
	require.NoError(t, err)
	return snap
}

func TestNewSolveService(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	repos := SolveServiceRepos{
		Jobs:      mocks.NewMockJobRepository(ctrl),
		Canceller: mocks.NewMockJobCanceller(ctrl),
		Models:    mocks.NewMockModelRepository(ctrl),
		DataFiles: mocks.NewMockDataFileRepository(ctrl),
		Runs:      mocks.NewMockRunRepository(ctrl),
	}

	t.Run("success", func(t *testing.T) {
		svc, err := NewSolveService(SolveServiceOptions{
			Repos:        repos,
			DefaultLease: 30 * time.Second,
			Notifier:     &stubSolveNotifier{},
		})
		require.NoError(t, err)
		assert.NotNil(t, svc)
		assert.Equal(t, 30*time.Second, svc.leasePolicy.Default())
	})

	missing := []struct {
		name    string
		mutate  func(*SolveServiceRepos)
		message string
	}{
		{"jobs", func(r *SolveServiceRepos) { r.Jobs = nil }, "JobRepository is required"},
		{"canceller", func(r *SolveServiceRepos) { r.Canceller = nil }, "JobCanceller is required"},
		{"models", func(r *SolveServiceRepos) { r.Models = nil }, "ModelRepository is required"},
		{"data files", func(r *SolveServiceRepos) { r.DataFiles = nil }, "DataFileRepository is required"},
		{"runs", func(r *SolveServiceRepos) { r.Runs = nil }, "RunRepository is required"},
	}
	for _, tc := range missing {
		t.Run("missing "+tc.name, func(t *testing.T) {
			broken := repos
			tc.mutate(&broken)
			svc, err := NewSolveService(SolveServiceOptions{
				Repos:        broken,
				DefaultLease: 30 * time.Second,
			})
			require.Error(t, err)
			assert.Nil(t, svc)
			assert.Contains(t, err.Error(), tc.message)
		})
	}

	t.Run("invalid default lease", func(t *testing.T) {
		svc, err := NewSolveService(SolveServiceOptions{Repos: repos})
		require.Error(t, err)
		assert.Nil(t, svc)
		assert.Contains(t, err.Error(), "DefaultLease must be positive")
	})

	t.Run("unknown default solver", func(t *testing.T) {
		svc, err := NewSolveService(SolveServiceOptions{
			Repos:        repos,
			DefaultLease: 30 * time.Second,
			Defaults:     SolveDefaults{Solver: "simplex9000"},
			Notifier:     &stubSolveNotifier{},
		})
		require.Error(t, err)
		assert.Nil(t, svc)
		assert.Contains(t, err.Error(), "not in the solver catalog")
	})

	t.Run("out-of-range default timeout", func(t *testing.T) {
		svc, err := NewSolveService(SolveServiceOptions{
			Repos:        repos,
			DefaultLease: 30 * time.Second,
			Defaults:     SolveDefaults{Timeout: 7200},
			Notifier:     &stubSolveNotifier{},
		})
		require.Error(t, err)
		assert.Nil(t, svc)
		assert.Contains(t, err.Error(), "outside")
	})
}

func TestSolveService_Submit(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	t.Run("defaults solver and timeout, snapshots queued", func(t *testing.T) {
		svc, deps := newTestSolveService(t, ctrl)
		req := &model.SolveRequest{ModelID: 1}
		queued := &model.SolveJob{
			ID: solveJobID, ModelID: 1, Solver: model.DefaultSolver,
			Status: model.JobStatusQueued, UpdatedAt: time.Now().UTC(),
		}

		deps.models.EXPECT().GetByID(gomock.Any(), int64(1)).Return(&model.AMPLModel{ID: 1}, nil)
		deps.jobs.EXPECT().Create(gomock.Any(), req).Return(queued, nil)

		job, err := svc.Submit(context.Background(), req)
		require.NoError(t, err)
		assert.Equal(t, queued, job)
		assert.Equal(t, model.DefaultSolver, req.Solver)
		assert.Equal(t, model.DefaultSolveTimeout, req.Timeout)

		snap := snapshotFor(t, deps.cache, solveJobID)
		require.NotNil(t, snap)
		assert.Equal(t, model.JobStatusQueued, snap.Status)
	})

	t.Run("deployment defaults win over platform defaults", func(t *testing.T) {
		deps := solveTestDeps{
			jobs:      mocks.NewMockJobRepository(ctrl),
			canceller: mocks.NewMockJobCanceller(ctrl),
			models:    mocks.NewMockModelRepository(ctrl),
			dataFiles: mocks.NewMockDataFileRepository(ctrl),
			runs:      mocks.NewMockRunRepository(ctrl),
		}
		svc := MustNewSolveService(SolveServiceOptions{
			Repos: SolveServiceRepos{
				Jobs:      deps.jobs,
				Canceller: deps.canceller,
				Models:    deps.models,
				DataFiles: deps.dataFiles,
				Runs:      deps.runs,
			},
			DefaultLease: 30 * time.Second,
			Defaults:     SolveDefaults{Solver: "cbc", Timeout: 120},
			Notifier:     &stubSolveNotifier{},
		})

		req := &model.SolveRequest{ModelID: 1}
		deps.models.EXPECT().GetByID(gomock.Any(), int64(1)).Return(&model.AMPLModel{ID: 1}, nil)
		deps.jobs.EXPECT().Create(gomock.Any(), req).
			Return(&model.SolveJob{ID: solveJobID, Status: model.JobStatusQueued}, nil)

		_, err := svc.Submit(context.Background(), req)
		require.NoError(t, err)
		assert.Equal(t, "cbc", req.Solver)
		assert.Equal(t, 120, req.Timeout)
	})

	t.Run("with data file", func(t *testing.T) {
		svc, deps := newTestSolveService(t, ctrl)
		fileID := int64(5)
		req := &model.SolveRequest{ModelID: 1, DataFileID: &fileID, Solver: "cbc"}

		deps.models.EXPECT().GetByID(gomock.Any(), int64(1)).Return(&model.AMPLModel{ID: 1}, nil)
		deps.dataFiles.EXPECT().GetForModel(gomock.Any(), int64(1), fileID).
			Return(&model.DataFile{ID: fileID, ModelID: 1}, nil)
		deps.jobs.EXPECT().Create(gomock.Any(), req).
			Return(&model.SolveJob{ID: solveJobID, Status: model.JobStatusQueued}, nil)

		_, err := svc.Submit(context.Background(), req)
		require.NoError(t, err)
	})

	t.Run("nil request", func(t *testing.T) {
		svc, _ := newTestSolveService(t, ctrl)
		job, err := svc.Submit(context.Background(), nil)
		require.Error(t, err)
		assert.Nil(t, job)
		assert.True(t, apperrors.IsValidation(err))
	})

	t.Run("unknown solver never reaches repos", func(t *testing.T) {
		svc, _ := newTestSolveService(t, ctrl)
		job, err := svc.Submit(context.Background(), &model.SolveRequest{ModelID: 1, Solver: "simplex9000"})
		require.Error(t, err)
		assert.Nil(t, job)
		assert.True(t, apperrors.IsValidation(err))
	})

	t.Run("missing model", func(t *testing.T) {
		svc, deps := newTestSolveService(t, ctrl)
		deps.models.EXPECT().GetByID(gomock.Any(), int64(404)).Return(nil, data.ErrModelNotFound)

		job, err := svc.Submit(context.Background(), &model.SolveRequest{ModelID: 404})
		require.Error(t, err)
		assert.Nil(t, job)
		assert.ErrorIs(t, err, data.ErrModelNotFound)
	})

	t.Run("data file outside model", func(t *testing.T) {
		svc, deps := newTestSolveService(t, ctrl)
		fileID := int64(9)
		deps.models.EXPECT().GetByID(gomock.Any(), int64(1)).Return(&model.AMPLModel{ID: 1}, nil)
		deps.dataFiles.EXPECT().GetForModel(gomock.Any(), int64(1), fileID).
			Return(nil, data.ErrDataFileNotFound)

		job, err := svc.Submit(context.Background(), &model.SolveRequest{ModelID: 1, DataFileID: &fileID})
		require.Error(t, err)
		assert.Nil(t, job)
		assert.True(t, apperrors.IsValidation(err))
		assert.Equal(t, "data_file_id", apperrors.GetField(err))
	})
}

func TestSolveService_Status(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	t.Run("invalid job id", func(t *testing.T) {
		svc, _ := newTestSolveService(t, ctrl)
		snap, err := svc.Status(context.Background(), "not-a-uuid")
		require.Error(t, err)
		assert.Nil(t, snap)
		assert.True(t, apperrors.IsValidation(err))
		assert.Equal(t, "job_id", apperrors.GetField(err))
	})

	t.Run("snapshot hit skips the database", func(t *testing.T) {
		svc, deps := newTestSolveService(t, ctrl)
		require.NoError(t, deps.cache.Put(context.Background(), &model.JobStatusSnapshot{
			JobID:     solveJobID,
			Status:    model.JobStatusRunning,
			Progress:  &model.JobProgress{Stage: "running highs"},
			UpdatedAt: time.Date(2026, 8, 25, 10, 0, 0, 0, time.UTC),
		}))

		snap, err := svc.Status(context.Background(), solveJobID)
		require.NoError(t, err)
		require.NotNil(t, snap)
		assert.Equal(t, model.JobStatusRunning, snap.Status)
		require.NotNil(t, snap.Progress)
		assert.Equal(t, "running highs", snap.Progress.Stage)
	})

	t.Run("miss rehydrates from the job row once", func(t *testing.T) {
		svc, deps := newTestSolveService(t, ctrl)
		resultID := int64(99)
		job := &model.SolveJob{
			ID:        solveJobID,
			Status:    model.JobStatusCompleted,
			ResultID:  &resultID,
			UpdatedAt: time.Date(2026, 8, 25, 10, 0, 0, 0, time.UTC),
		}
		deps.jobs.EXPECT().GetByID(gomock.Any(), solveJobID).Return(job, nil)

		snap, err := svc.Status(context.Background(), solveJobID)
		require.NoError(t, err)
		require.NotNil(t, snap)
		assert.Equal(t, model.JobStatusCompleted, snap.Status)
		require.NotNil(t, snap.ResultID)
		assert.Equal(t, resultID, *snap.ResultID)
		assert.Nil(t, snap.Progress)

		// Second poll is served from the rehydrated snapshot.
		again, err := svc.Status(context.Background(), solveJobID)
		require.NoError(t, err)
		assert.Equal(t, model.JobStatusCompleted, again.Status)
	})

	t.Run("failed job rehydrates its error", func(t *testing.T) {
		svc, deps := newTestSolveService(t, ctrl)
		reason := "infeasible model"
		deps.jobs.EXPECT().GetByID(gomock.Any(), solveJobID2).Return(&model.SolveJob{
			ID:        solveJobID2,
			Status:    model.JobStatusFailed,
			LastError: &reason,
		}, nil)

		snap, err := svc.Status(context.Background(), solveJobID2)
		require.NoError(t, err)
		require.NotNil(t, snap.Error)
		assert.Equal(t, reason, *snap.Error)
		assert.Nil(t, snap.ResultID)
	})

	t.Run("unknown job", func(t *testing.T) {
		svc, deps := newTestSolveService(t, ctrl)
		deps.jobs.EXPECT().GetByID(gomock.Any(), solveJobID).Return(nil, data.ErrJobNotFound)

		snap, err := svc.Status(context.Background(), solveJobID)
		require.Error(t, err)
		assert.Nil(t, snap)
		assert.ErrorIs(t, err, data.ErrJobNotFound)
	})
}

func TestSolveService_Cancel(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	t.Run("invalid job id", func(t *testing.T) {
		svc, _ := newTestSolveService(t, ctrl)
		outcome, err := svc.Cancel(context.Background(), "nope")
		require.Error(t, err)
		assert.Nil(t, outcome)
		assert.True(t, apperrors.IsValidation(err))
	})

	t.Run("queued job goes terminal at once", func(t *testing.T) {
		svc, deps := newTestSolveService(t, ctrl)
		deps.jobs.EXPECT().GetByID(gomock.Any(), solveJobID).
			Return(&model.SolveJob{ID: solveJobID, Status: model.JobStatusQueued}, nil)
		deps.canceller.EXPECT().CancelQueued(gomock.Any(), solveJobID).Return(true, nil)

		outcome, err := svc.Cancel(context.Background(), solveJobID)
		require.NoError(t, err)
		assert.Equal(t, model.JobStatusCancelled, outcome.Status)
		assert.False(t, outcome.Requested)

		snap := snapshotFor(t, deps.cache, solveJobID)
		require.NotNil(t, snap)
		assert.Equal(t, model.JobStatusCancelled, snap.Status)
	})

	t.Run("running job gets the cancel flag", func(t *testing.T) {
		svc, deps := newTestSolveService(t, ctrl)
		deps.jobs.EXPECT().GetByID(gomock.Any(), solveJobID).
			Return(&model.SolveJob{ID: solveJobID, Status: model.JobStatusRunning}, nil)
		deps.canceller.EXPECT().RequestCancel(gomock.Any(), solveJobID).Return(true, nil)

		outcome, err := svc.Cancel(context.Background(), solveJobID)
		require.NoError(t, err)
		assert.Equal(t, model.JobStatusRunning, outcome.Status)
		assert.True(t, outcome.Requested)
	})

	t.Run("terminal job is acknowledged unchanged", func(t *testing.T) {
		svc, deps := newTestSolveService(t, ctrl)
		deps.jobs.EXPECT().GetByID(gomock.Any(), solveJobID).
			Return(&model.SolveJob{ID: solveJobID, Status: model.JobStatusCompleted}, nil)

		outcome, err := svc.Cancel(context.Background(), solveJobID)
		require.NoError(t, err)
		assert.Equal(t, model.JobStatusCompleted, outcome.Status)
		assert.False(t, outcome.Requested)
	})

	t.Run("lost race retries in the new state", func(t *testing.T) {
		svc, deps := newTestSolveService(t, ctrl)
		gomock.InOrder(
			deps.jobs.EXPECT().GetByID(gomock.Any(), solveJobID).
				Return(&model.SolveJob{ID: solveJobID, Status: model.JobStatusQueued}, nil),
			deps.canceller.EXPECT().CancelQueued(gomock.Any(), solveJobID).Return(false, nil),
			deps.jobs.EXPECT().GetByID(gomock.Any(), solveJobID).
				Return(&model.SolveJob{ID: solveJobID, Status: model.JobStatusRunning}, nil),
			deps.canceller.EXPECT().RequestCancel(gomock.Any(), solveJobID).Return(true, nil),
		)

		outcome, err := svc.Cancel(context.Background(), solveJobID)
		require.NoError(t, err)
		assert.Equal(t, model.JobStatusRunning, outcome.Status)
		assert.True(t, outcome.Requested)
	})

	t.Run("unresolvable race is a conflict", func(t *testing.T) {
		svc, deps := newTestSolveService(t, ctrl)
		deps.jobs.EXPECT().GetByID(gomock.Any(), solveJobID).
			Return(&model.SolveJob{ID: solveJobID, Status: model.JobStatusQueued}, nil).
			Times(2)
		deps.canceller.EXPECT().CancelQueued(gomock.Any(), solveJobID).Return(false, nil).Times(2)

		outcome, err := svc.Cancel(context.Background(), solveJobID)
		require.Error(t, err)
		assert.Nil(t, outcome)
		assert.True(t, apperrors.IsConflict(err))
	})
}

func TestSolveService_Reserve(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	running := &model.SolveJob{ID: solveJobID, Solver: "highs", Status: model.JobStatusRunning}

	t.Run("with custom lease", func(t *testing.T) {
		svc, deps := newTestSolveService(t, ctrl)
		deps.jobs.EXPECT().ReserveNext(gomock.Any(), 60).Return(running, nil)

		job, err := svc.Reserve(context.Background(), 60*time.Second)
		require.NoError(t, err)
		assert.Equal(t, running, job)

		snap := snapshotFor(t, deps.cache, solveJobID)
		require.NotNil(t, snap)
		assert.Equal(t, model.JobStatusRunning, snap.Status)
	})

	t.Run("with default lease", func(t *testing.T) {
		svc, deps := newTestSolveService(t, ctrl)
		deps.jobs.EXPECT().ReserveNext(gomock.Any(), 30).Return(running, nil)

		_, err := svc.Reserve(context.Background(), 0)
		require.NoError(t, err)
	})

	t.Run("sub-second lease clamps to one second", func(t *testing.T) {
		svc, deps := newTestSolveService(t, ctrl)
		deps.jobs.EXPECT().ReserveNext(gomock.Any(), 1).Return(running, nil)

		_, err := svc.Reserve(context.Background(), 200*time.Millisecond)
		require.NoError(t, err)
	})

	t.Run("empty queue", func(t *testing.T) {
		svc, deps := newTestSolveService(t, ctrl)
		deps.jobs.EXPECT().ReserveNext(gomock.Any(), 30).Return(nil, model.ErrNoJobsAvailable)

		job, err := svc.Reserve(context.Background(), 0)
		require.Error(t, err)
		assert.Nil(t, job)
		assert.ErrorIs(t, err, model.ErrNoJobsAvailable)
	})
}

func TestSolveService_Heartbeat(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	svc, deps := newTestSolveService(t, ctrl)

	t.Run("with custom extend", func(t *testing.T) {
		deps.jobs.EXPECT().Heartbeat(gomock.Any(), solveJobID, 60).Return(true, nil)

		updated, err := svc.Heartbeat(context.Background(), solveJobID, 60*time.Second)
		require.NoError(t, err)
		assert.True(t, updated)
	})

	t.Run("with default extend", func(t *testing.T) {
		deps.jobs.EXPECT().Heartbeat(gomock.Any(), solveJobID, 30).Return(true, nil)

		updated, err := svc.Heartbeat(context.Background(), solveJobID, 0)
		require.NoError(t, err)
		assert.True(t, updated)
	})
}

func TestSolveService_UpdateProgress(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	// No repository expectations: progress must never touch the database.
	svc, deps := newTestSolveService(t, ctrl)

	svc.UpdateProgress(context.Background(), solveJobID, model.JobProgress{
		Stage:   "running highs",
		Message: "solver started",
	})

	snap := snapshotFor(t, deps.cache, solveJobID)
	require.NotNil(t, snap)
	assert.Equal(t, model.JobStatusRunning, snap.Status)
	require.NotNil(t, snap.Progress)
	assert.Equal(t, "running highs", snap.Progress.Stage)
	assert.Equal(t, "solver started", snap.Progress.Message)
}

func TestSolveService_CompleteWithRun(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	objective := 196200.0
	pending := &model.OptimizationRun{ModelID: 1, SolverName: "highs", Status: model.SolveStatusOptimal, ObjectiveValue: &objective}
	stored := &model.OptimizationRun{ID: 99, ModelID: 1, SolverName: "highs", Status: model.SolveStatusOptimal, ObjectiveValue: &objective}
	variables := []model.VariableResult{{VariableName: "Trans", Value: &objective}}

	t.Run("persists the run before completing the job", func(t *testing.T) {
		svc, deps := newTestSolveService(t, ctrl)
		gomock.InOrder(
			deps.runs.EXPECT().CreateWithDetails(gomock.Any(), pending, variables, nil).Return(stored, nil),
			deps.jobs.EXPECT().Complete(gomock.Any(), solveJobID, int64(99)).Return(true, nil),
		)

		run, err := svc.CompleteWithRun(context.Background(), solveJobID, CompleteArtifacts{
			Run:       pending,
			Variables: variables,
		})
		require.NoError(t, err)
		assert.Equal(t, stored, run)

		snap := snapshotFor(t, deps.cache, solveJobID)
		require.NotNil(t, snap)
		assert.Equal(t, model.JobStatusCompleted, snap.Status)
		require.NotNil(t, snap.ResultID)
		assert.Equal(t, int64(99), *snap.ResultID)
	})

	t.Run("run persist failure never completes the job", func(t *testing.T) {
		svc, deps := newTestSolveService(t, ctrl)
		deps.runs.EXPECT().CreateWithDetails(gomock.Any(), pending, nil, nil).
			Return(nil, errors.New("disk full"))

		run, err := svc.CompleteWithRun(context.Background(), solveJobID, CompleteArtifacts{Run: pending})
		require.Error(t, err)
		assert.Nil(t, run)
		assert.Nil(t, snapshotFor(t, deps.cache, solveJobID))
	})

	t.Run("job no longer running is a conflict, run kept", func(t *testing.T) {
		svc, deps := newTestSolveService(t, ctrl)
		deps.runs.EXPECT().CreateWithDetails(gomock.Any(), pending, nil, nil).Return(stored, nil)
		deps.jobs.EXPECT().Complete(gomock.Any(), solveJobID, int64(99)).Return(false, nil)

		run, err := svc.CompleteWithRun(context.Background(), solveJobID, CompleteArtifacts{Run: pending})
		require.Error(t, err)
		assert.True(t, apperrors.IsConflict(err))
		assert.Equal(t, stored, run)
		assert.Nil(t, snapshotFor(t, deps.cache, solveJobID))
	})

	t.Run("nil run", func(t *testing.T) {
		svc, _ := newTestSolveService(t, ctrl)
		run, err := svc.CompleteWithRun(context.Background(), solveJobID, CompleteArtifacts{})
		require.Error(t, err)
		assert.Nil(t, run)
	})
}

func TestSolveService_FailJob(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	t.Run("records the reason", func(t *testing.T) {
		svc, deps := newTestSolveService(t, ctrl)
		deps.jobs.EXPECT().Fail(gomock.Any(), solveJobID, "presolve: infeasible").Return(true, nil)

		failed, err := svc.FailJob(context.Background(), solveJobID, "presolve: infeasible")
		require.NoError(t, err)
		assert.True(t, failed)

		snap := snapshotFor(t, deps.cache, solveJobID)
		require.NotNil(t, snap)
		assert.Equal(t, model.JobStatusFailed, snap.Status)
		require.NotNil(t, snap.Error)
		assert.Equal(t, "presolve: infeasible", *snap.Error)
	})

	t.Run("empty reason gets a default", func(t *testing.T) {
		svc, deps := newTestSolveService(t, ctrl)
		deps.jobs.EXPECT().Fail(gomock.Any(), solveJobID, "solve failed").Return(true, nil)

		failed, err := svc.FailJob(context.Background(), solveJobID, "")
		require.NoError(t, err)
		assert.True(t, failed)
	})

	t.Run("job not running leaves the snapshot alone", func(t *testing.T) {
		svc, deps := newTestSolveService(t, ctrl)
		deps.jobs.EXPECT().Fail(gomock.Any(), solveJobID, "late").Return(false, nil)

		failed, err := svc.FailJob(context.Background(), solveJobID, "late")
		require.NoError(t, err)
		assert.False(t, failed)
		assert.Nil(t, snapshotFor(t, deps.cache, solveJobID))
	})
}

func TestSolveService_MarkCancelled(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	t.Run("worker finishes the handshake", func(t *testing.T) {
		svc, deps := newTestSolveService(t, ctrl)
		deps.canceller.EXPECT().MarkCancelled(gomock.Any(), solveJobID).Return(true, nil)

		ok, err := svc.MarkCancelled(context.Background(), solveJobID)
		require.NoError(t, err)
		assert.True(t, ok)

		snap := snapshotFor(t, deps.cache, solveJobID)
		require.NotNil(t, snap)
		assert.Equal(t, model.JobStatusCancelled, snap.Status)
	})

	t.Run("already terminal", func(t *testing.T) {
		svc, deps := newTestSolveService(t, ctrl)
		deps.canceller.EXPECT().MarkCancelled(gomock.Any(), solveJobID).Return(false, nil)

		ok, err := svc.MarkCancelled(context.Background(), solveJobID)
		require.NoError(t, err)
		assert.False(t, ok)
		assert.Nil(t, snapshotFor(t, deps.cache, solveJobID))
	})
}

func TestSolveService_Stats(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	svc, deps := newTestSolveService(t, ctrl)
	expected := &model.JobStats{Queued: 2, Running: 1, Completed: 40, Failed: 3, Cancelled: 5}
	deps.jobs.EXPECT().Stats(gomock.Any()).Return(expected, nil)

	stats, err := svc.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, expected, stats)
}

func TestSolveService_ListJobs(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	svc, deps := newTestSolveService(t, ctrl)

	t.Run("defaults limit", func(t *testing.T) {
		deps.jobs.EXPECT().
			ListWithOptions(gomock.Any(), model.JobsListOptions{Limit: 50}).
			Return([]*model.SolveJob{}, nil)

		_, err := svc.ListJobs(context.Background(), model.JobsListOptions{})
		require.NoError(t, err)
	})

	t.Run("caps limit", func(t *testing.T) {
		status := model.JobStatusFailed
		deps.jobs.EXPECT().
			ListWithOptions(gomock.Any(), model.JobsListOptions{Limit: 500, Status: &status}).
			Return([]*model.SolveJob{}, nil)

		_, err := svc.ListJobs(context.Background(), model.JobsListOptions{Limit: 9999, Status: &status})
		require.NoError(t, err)
	})
}

func TestSolveService_SolveInputs(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	stored := &model.AMPLModel{ID: 1, ModelContent: transportModel}

	t.Run("model only", func(t *testing.T) {
		svc, deps := newTestSolveService(t, ctrl)
		job := &model.SolveJob{ID: solveJobID, ModelID: 1, Solver: "highs", TimeoutSeconds: 120}
		deps.models.EXPECT().GetByID(gomock.Any(), int64(1)).Return(stored, nil)

		input, err := svc.SolveInputs(context.Background(), job)
		require.NoError(t, err)
		assert.Equal(t, transportModel, input.ModelText)
		assert.Empty(t, input.DataText)
		assert.Equal(t, "highs", input.Solver)
		assert.Equal(t, 120*time.Second, input.Timeout)
	})

	t.Run("with data file", func(t *testing.T) {
		svc, deps := newTestSolveService(t, ctrl)
		fileID := int64(5)
		job := &model.SolveJob{ID: solveJobID, ModelID: 1, DataFileID: &fileID, Solver: "highs", TimeoutSeconds: 60}
		deps.models.EXPECT().GetByID(gomock.Any(), int64(1)).Return(stored, nil)
		deps.dataFiles.EXPECT().GetForModel(gomock.Any(), int64(1), fileID).
			Return(&model.DataFile{ID: fileID, ModelID: 1, FileContent: transportData}, nil)

		input, err := svc.SolveInputs(context.Background(), job)
		require.NoError(t, err)
		assert.Equal(t, transportData, input.DataText)
	})

	t.Run("data file fetch error", func(t *testing.T) {
		svc, deps := newTestSolveService(t, ctrl)
		fileID := int64(5)
		job := &model.SolveJob{ID: solveJobID, ModelID: 1, DataFileID: &fileID}
		deps.models.EXPECT().GetByID(gomock.Any(), int64(1)).Return(stored, nil)
		deps.dataFiles.EXPECT().GetForModel(gomock.Any(), int64(1), fileID).
			Return(nil, data.ErrDataFileNotFound)

		_, err := svc.SolveInputs(context.Background(), job)
		require.Error(t, err)
		assert.ErrorIs(t, err, data.ErrDataFileNotFound)
	})
}

func TestSolveService_Subscribe(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	svc, deps := newTestSolveService(t, ctrl)

	unsub, ch := svc.Subscribe()
	assert.NotNil(t, ch)
	unsub()
	assert.Equal(t, 1, deps.notifier.subscribeCalls)

	svc.StopAllListeners()
	assert.True(t, deps.notifier.stopCalled)
}
