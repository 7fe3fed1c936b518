package client

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/optilab/optilab-api/internal/domain/model"
)

const testPollInterval = 10 * time.Millisecond

// solveAPI is a scripted stand-in for the solve endpoints. Each submitted job
// gets a status script; the script's entries are served call by call and the
// last one repeats. Jobs without a script answer 404 like a reaped job would.
type solveAPI struct {
	t *testing.T

	mu          sync.Mutex
	submits     int
	scripts     map[string][]model.JobStatusSnapshot
	statusCalls map[string]int
	resultCalls int
	cancelCalls int

	failFirstStatusCalls int // leading status calls per job answered 500
	submitCode           int // non-zero rejects submissions with this status
	cancelCode           int // non-zero rejects cancels with this status
	result               model.RunDetail
}

func newSolveAPI(t *testing.T) *solveAPI {
	t.Helper()
	return &solveAPI{
		t:           t,
		scripts:     make(map[string][]model.JobStatusSnapshot),
		statusCalls: make(map[string]int),
	}
}

func (s *solveAPI) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/solver/run", s.handleSubmit)
	mux.HandleFunc("GET /api/solver/status/{jobID}", s.handleStatus)
	mux.HandleFunc("POST /api/solver/cancel/{jobID}", s.handleCancel)
	mux.HandleFunc("GET /api/solver/results/{resultID}", s.handleResult)
	return mux
}

func (s *solveAPI) handleSubmit(w http.ResponseWriter, _ *http.Request) {
	s.mu.Lock()
	s.submits++
	jobID := fmt.Sprintf("job-%d", s.submits)
	reject := s.submitCode
	s.mu.Unlock()

	if reject != 0 {
		writeTestError(s.t, w, reject, "validation", "model_id is required")
		return
	}
	writeJSONBody(s.t, w, http.StatusAccepted, map[string]string{"job_id": jobID})
}

func (s *solveAPI) handleStatus(w http.ResponseWriter, r *http.Request) {
	jobID := r.PathValue("jobID")

	s.mu.Lock()
	call := s.statusCalls[jobID]
	s.statusCalls[jobID]++
	script := s.scripts[jobID]
	failFirst := s.failFirstStatusCalls
	s.mu.Unlock()

	if call < failFirst {
		writeTestError(s.t, w, http.StatusInternalServerError, "internal", "database unavailable")
		return
	}
	if len(script) == 0 {
		writeTestError(s.t, w, http.StatusNotFound, "not_found", "job not found")
		return
	}

	idx := call - failFirst
	if idx >= len(script) {
		idx = len(script) - 1
	}
	writeJSONBody(s.t, w, http.StatusOK, script[idx])
}

func (s *solveAPI) handleCancel(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	s.cancelCalls++
	reject := s.cancelCode
	s.mu.Unlock()

	if reject != 0 {
		writeTestError(s.t, w, reject, "internal", "cancel failed")
		return
	}
	writeJSONBody(s.t, w, http.StatusAccepted, model.CancelOutcome{
		JobID:  r.PathValue("jobID"),
		Status: model.JobStatusCancelled,
	})
}

func (s *solveAPI) handleResult(w http.ResponseWriter, _ *http.Request) {
	s.mu.Lock()
	s.resultCalls++
	detail := s.result
	s.mu.Unlock()

	writeJSONBody(s.t, w, http.StatusOK, detail)
}

func (s *solveAPI) statusCount(jobID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.statusCalls[jobID]
}

func (s *solveAPI) resultCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.resultCalls
}

func (s *solveAPI) cancelCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cancelCalls
}

func writeTestError(t *testing.T, w http.ResponseWriter, status int, code, message string) {
	t.Helper()
	writeJSONBody(t, w, status, map[string]string{"error": code, "message": message})
}

func newTestPoller(t *testing.T, api *solveAPI) *Poller {
	t.Helper()

	ts := httptest.NewServer(api.handler())
	t.Cleanup(ts.Close)

	c, err := New(Options{BaseURL: ts.URL})
	require.NoError(t, err)

	p, err := NewPoller(PollerOptions{Client: c, Interval: testPollInterval})
	require.NoError(t, err)
	return p
}

// collectUpdates drains the stream until it closes.
func collectUpdates(t *testing.T, ch <-chan Update) []Update {
	t.Helper()

	var updates []Update
	deadline := time.After(3 * time.Second)
	for {
		select {
		case u, ok := <-ch:
			if !ok {
				return updates
			}
			updates = append(updates, u)
		case <-deadline:
			t.Fatal("timed out waiting for poller updates")
		}
	}
}

func snapQueued(jobID string) model.JobStatusSnapshot {
	return model.JobStatusSnapshot{JobID: jobID, Status: model.JobStatusQueued}
}

func snapRunning(jobID, stage string) model.JobStatusSnapshot {
	return model.JobStatusSnapshot{
		JobID:    jobID,
		Status:   model.JobStatusRunning,
		Progress: &model.JobProgress{Stage: stage},
	}
}

func snapCompleted(jobID string, resultID int64) model.JobStatusSnapshot {
	return model.JobStatusSnapshot{JobID: jobID, Status: model.JobStatusCompleted, ResultID: &resultID}
}

func snapFailed(jobID, message string) model.JobStatusSnapshot {
	return model.JobStatusSnapshot{JobID: jobID, Status: model.JobStatusFailed, Error: &message}
}

func snapCancelled(jobID string) model.JobStatusSnapshot {
	return model.JobStatusSnapshot{JobID: jobID, Status: model.JobStatusCancelled}
}

func runDetailFixture(id int64) model.RunDetail {
	objective := 156.25
	value := 100.0
	return model.RunDetail{
		OptimizationRun: model.OptimizationRun{
			ID:             id,
			ModelID:        1,
			SolverName:     "highs",
			Status:         model.SolveStatusOptimal,
			ObjectiveValue: &objective,
		},
		Variables:   []model.VariableResult{{RunID: id, VariableName: "Trans", Value: &value}},
		Constraints: []model.ConstraintResult{},
	}
}

func TestNewPollerRequiresClient(t *testing.T) {
	_, err := NewPoller(PollerOptions{})
	require.Error(t, err)
}

func TestPollerCompletesAndFetchesResultOnce(t *testing.T) {
	api := newSolveAPI(t)
	api.scripts["job-1"] = []model.JobStatusSnapshot{
		snapQueued("job-1"),
		snapRunning("job-1", "solving"),
		snapCompleted("job-1", 42),
	}
	api.result = runDetailFixture(42)

	p := newTestPoller(t, api)
	require.Equal(t, StateIdle, p.State())

	ch, err := p.Run(context.Background(), &model.SolveRequest{ModelID: 1, Solver: "highs"})
	require.NoError(t, err)

	updates := collectUpdates(t, ch)
	require.NotEmpty(t, updates)

	final := updates[len(updates)-1]
	require.Equal(t, model.JobStatusCompleted, final.Status)
	require.NoError(t, final.Err)
	require.NotNil(t, final.Result)
	assert.Equal(t, int64(42), final.Result.ID)
	require.NotNil(t, final.Result.ObjectiveValue)
	assert.InEpsilon(t, 156.25, *final.Result.ObjectiveValue, 1e-9)

	// Everything before the final update is a live snapshot.
	for _, u := range updates[:len(updates)-1] {
		assert.False(t, u.Terminal())
		assert.NoError(t, u.Err)
	}

	assert.Equal(t, StateTerminal, p.State())
	assert.Equal(t, "job-1", p.JobID())

	// One terminal status read, one result fetch, and nothing after.
	assert.Equal(t, 3, api.statusCount("job-1"))
	assert.Equal(t, 1, api.resultCount())
	time.Sleep(5 * testPollInterval)
	assert.Equal(t, 3, api.statusCount("job-1"))
	assert.Equal(t, 1, api.resultCount())
}

func TestPollerFailedCarriesMessageVerbatim(t *testing.T) {
	api := newSolveAPI(t)
	api.scripts["job-1"] = []model.JobStatusSnapshot{
		snapQueued("job-1"),
		snapFailed("job-1", "solver exploded: problem is infeasible"),
	}

	p := newTestPoller(t, api)
	ch, err := p.Run(context.Background(), &model.SolveRequest{ModelID: 1})
	require.NoError(t, err)

	updates := collectUpdates(t, ch)
	final := updates[len(updates)-1]
	assert.Equal(t, model.JobStatusFailed, final.Status)
	require.Error(t, final.Err)
	assert.Equal(t, "solver exploded: problem is infeasible", final.Err.Error())
	assert.Nil(t, final.Result)

	// Failed runs have no stored result to fetch.
	assert.Zero(t, api.resultCount())
	assert.Equal(t, StateTerminal, p.State())
}

func TestPollerCancelledIsNotAnError(t *testing.T) {
	api := newSolveAPI(t)
	api.scripts["job-1"] = []model.JobStatusSnapshot{snapCancelled("job-1")}

	p := newTestPoller(t, api)
	ch, err := p.Run(context.Background(), &model.SolveRequest{ModelID: 1})
	require.NoError(t, err)

	updates := collectUpdates(t, ch)
	final := updates[len(updates)-1]
	assert.Equal(t, model.JobStatusCancelled, final.Status)
	assert.NoError(t, final.Err)
	assert.Equal(t, "solve cancelled", final.Notice)
	assert.Nil(t, final.Result)
}

func TestPollerRetriesTransientFailures(t *testing.T) {
	api := newSolveAPI(t)
	api.failFirstStatusCalls = 2
	api.scripts["job-1"] = []model.JobStatusSnapshot{snapCompleted("job-1", 42)}
	api.result = runDetailFixture(42)

	p := newTestPoller(t, api)
	ch, err := p.Run(context.Background(), &model.SolveRequest{ModelID: 1})
	require.NoError(t, err)

	updates := collectUpdates(t, ch)
	final := updates[len(updates)-1]
	require.NoError(t, final.Err)
	require.NotNil(t, final.Result)

	// Two 500s were absorbed before the successful read.
	assert.Equal(t, 3, api.statusCount("job-1"))
	assert.Equal(t, StateTerminal, p.State())
}

func TestPollerAbandonsOnUnknownJob(t *testing.T) {
	api := newSolveAPI(t)
	// No script: the status endpoint answers 404 as if the job were reaped.

	p := newTestPoller(t, api)
	ch, err := p.Run(context.Background(), &model.SolveRequest{ModelID: 1})
	require.NoError(t, err)

	updates := collectUpdates(t, ch)
	final := updates[len(updates)-1]
	require.Error(t, final.Err)

	var apiErr *APIError
	require.ErrorAs(t, final.Err, &apiErr)
	assert.Equal(t, http.StatusNotFound, apiErr.StatusCode)
	assert.Equal(t, "polling abandoned", final.Notice)

	// A 404 cannot heal, so exactly one status read happened.
	assert.Equal(t, 1, api.statusCount("job-1"))
	assert.Equal(t, StateTerminal, p.State())
}

func TestPollerSubmitErrorIsSynchronous(t *testing.T) {
	api := newSolveAPI(t)
	api.submitCode = http.StatusBadRequest

	p := newTestPoller(t, api)
	ch, err := p.Run(context.Background(), &model.SolveRequest{})
	require.Error(t, err)
	assert.Nil(t, ch)

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "validation", apiErr.Code)

	// No job exists, so nothing was ever polled.
	assert.Equal(t, StateIdle, p.State())
	assert.Equal(t, 0, api.statusCount("job-1"))
}

func TestPollerCancelStopsLocallyWhenServerCancelFails(t *testing.T) {
	api := newSolveAPI(t)
	api.scripts["job-1"] = []model.JobStatusSnapshot{snapRunning("job-1", "solving")}
	api.cancelCode = http.StatusInternalServerError

	p := newTestPoller(t, api)
	ch, err := p.Run(context.Background(), &model.SolveRequest{ModelID: 1})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return api.statusCount("job-1") >= 2
	}, time.Second, testPollInterval)

	outcome, err := p.Cancel(context.Background())
	require.Error(t, err)
	assert.Nil(t, outcome)
	assert.Equal(t, 1, api.cancelCount())

	// The stream is closed and polling has stopped despite the failed
	// server cancel.
	collectUpdates(t, ch)
	assert.Equal(t, StateIdle, p.State())

	polled := api.statusCount("job-1")
	time.Sleep(5 * testPollInterval)
	assert.Equal(t, polled, api.statusCount("job-1"))
}

func TestPollerCancelReturnsServerOutcome(t *testing.T) {
	api := newSolveAPI(t)
	api.scripts["job-1"] = []model.JobStatusSnapshot{snapRunning("job-1", "solving")}

	p := newTestPoller(t, api)
	ch, err := p.Run(context.Background(), &model.SolveRequest{ModelID: 1})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return api.statusCount("job-1") >= 1
	}, time.Second, testPollInterval)

	outcome, err := p.Cancel(context.Background())
	require.NoError(t, err)
	require.NotNil(t, outcome)
	assert.Equal(t, "job-1", outcome.JobID)
	assert.Equal(t, model.JobStatusCancelled, outcome.Status)

	collectUpdates(t, ch)
	assert.Equal(t, StateIdle, p.State())
}

func TestPollerCancelWithoutRun(t *testing.T) {
	api := newSolveAPI(t)
	p := newTestPoller(t, api)

	_, err := p.Cancel(context.Background())
	require.ErrorIs(t, err, ErrNoActiveRun)
}

func TestPollerNewRunStopsPreviousLoop(t *testing.T) {
	api := newSolveAPI(t)
	api.scripts["job-1"] = []model.JobStatusSnapshot{snapRunning("job-1", "solving")}
	api.scripts["job-2"] = []model.JobStatusSnapshot{snapCompleted("job-2", 42)}
	api.result = runDetailFixture(42)

	p := newTestPoller(t, api)
	ch1, err := p.Run(context.Background(), &model.SolveRequest{ModelID: 1})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return api.statusCount("job-1") >= 2
	}, time.Second, testPollInterval)

	ch2, err := p.Run(context.Background(), &model.SolveRequest{ModelID: 1})
	require.NoError(t, err)
	assert.Equal(t, "job-2", p.JobID())

	// The first stream closes without a terminal update.
	for _, u := range collectUpdates(t, ch1) {
		assert.False(t, u.Terminal())
	}

	updates := collectUpdates(t, ch2)
	final := updates[len(updates)-1]
	require.Equal(t, model.JobStatusCompleted, final.Status)
	require.NotNil(t, final.Result)

	// job-1 is no longer polled once job-2 took over.
	polled := api.statusCount("job-1")
	time.Sleep(5 * testPollInterval)
	assert.Equal(t, polled, api.statusCount("job-1"))
}

func TestPollerContextCancellationStopsLoop(t *testing.T) {
	api := newSolveAPI(t)
	api.scripts["job-1"] = []model.JobStatusSnapshot{snapRunning("job-1", "solving")}

	p := newTestPoller(t, api)
	ctx, cancel := context.WithCancel(context.Background())
	ch, err := p.Run(ctx, &model.SolveRequest{ModelID: 1})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return api.statusCount("job-1") >= 1
	}, time.Second, testPollInterval)

	cancel()
	for _, u := range collectUpdates(t, ch) {
		assert.False(t, u.Terminal())
	}
	require.Eventually(t, func() bool {
		return p.State() == StateIdle
	}, time.Second, testPollInterval)
}

func TestPollerEmitConflatesUnreadUpdates(t *testing.T) {
	ch := make(chan Update, 1)
	emit(ch, Update{Status: model.JobStatusQueued})
	emit(ch, Update{Status: model.JobStatusRunning})

	u := <-ch
	assert.Equal(t, model.JobStatusRunning, u.Status)
	assert.Empty(t, ch)
}
