// Package httpx provides the JSON HTTP API for the optilab solve platform.
package httpx

import (
	"errors"
	"net/http"

	"github.com/optilab/optilab-api/internal/domain/model"
	"github.com/optilab/optilab-api/internal/service"
)

// SolverHandlers provides HTTP handlers for submitting and tracking solves.
type SolverHandlers struct {
	Svc     *service.SolveService
	Catalog *service.SolverCatalogService
}

// Run handles HTTP requests to submit a new solve job.
// POST /api/solver/run.
func (h *SolverHandlers) Run(w http.ResponseWriter, r *http.Request) {
	var req model.SolveRequest
	if !DecodeJSON(w, r, &req) {
		return
	}

	job, err := h.Svc.Submit(r.Context(), &req)
	if err != nil {
		WriteAppError(w, err)
		return
	}

	// The job is queued, not done; clients poll the status endpoint.
	WriteJSON(w, http.StatusAccepted, map[string]string{"job_id": job.ID})
}

// Status handles HTTP requests to poll a job's status snapshot.
// GET /api/solver/status/{jobID}.
func (h *SolverHandlers) Status(w http.ResponseWriter, r *http.Request) {
	jobID := r.PathValue("jobID")
	if jobID == "" {
		WriteError(
			w,
			ErrorParams{Code: http.StatusBadRequest, ErrCode: "invalid_path", Err: errors.New("job id is required")},
		)
		return
	}

	snap, err := h.Svc.Status(r.Context(), jobID)
	if err != nil {
		WriteAppError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, snap)
}

// Cancel handles HTTP requests to cancel a queued or running job.
// POST /api/solver/cancel/{jobID}.
func (h *SolverHandlers) Cancel(w http.ResponseWriter, r *http.Request) {
	jobID := r.PathValue("jobID")
	if jobID == "" {
		WriteError(
			w,
			ErrorParams{Code: http.StatusBadRequest, ErrCode: "invalid_path", Err: errors.New("job id is required")},
		)
		return
	}

	outcome, err := h.Svc.Cancel(r.Context(), jobID)
	if err != nil {
		WriteAppError(w, err)
		return
	}

	// Running jobs finish cancelling asynchronously, so this is an accept,
	// not a completion.
	WriteJSON(w, http.StatusAccepted, outcome)
}

// Solvers handles HTTP requests to list solvers the configured engine offers.
// GET /api/solver/solvers.
func (h *SolverHandlers) Solvers(w http.ResponseWriter, r *http.Request) {
	solvers, err := h.Catalog.Solvers(r.Context())
	if err != nil {
		WriteAppError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]interface{}{"solvers": solvers})
}
