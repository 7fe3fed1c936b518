package httpx

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/optilab/optilab-api/internal/domain/model"
	"github.com/optilab/optilab-api/internal/service"
)

// JobHandlers provides HTTP handlers for job queue administration.
type JobHandlers struct {
	Svc *service.SolveService
}

const (
	defaultJobsLimit = 50
	maxJobsLimit     = 200
)

// Stats handles HTTP requests for job counts per status.
// GET /api/jobs/stats.
func (h *JobHandlers) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.Svc.Stats(r.Context())
	if err != nil {
		WriteAppError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, stats)
}

// List handles HTTP requests for the job queue with optional filters.
// GET /api/jobs?status=<status>&model_id=<id>&limit=<n>&offset=<n>.
func (h *JobHandlers) List(w http.ResponseWriter, r *http.Request) {
	limit, offset := ParseLimitOffset(r, defaultJobsLimit, maxJobsLimit)
	opts := model.JobsListOptions{Limit: limit, Offset: offset}

	if raw := r.URL.Query().Get("status"); raw != "" {
		var status model.JobStatus
		if err := status.UnmarshalText([]byte(raw)); err != nil {
			WriteError(
				w,
				ErrorParams{Code: http.StatusBadRequest, ErrCode: "invalid_query", Err: err},
			)
			return
		}
		opts.Status = &status
	}
	if raw := r.URL.Query().Get("model_id"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || id <= 0 {
			WriteError(
				w,
				ErrorParams{
					Code:    http.StatusBadRequest,
					ErrCode: "invalid_query",
					Err:     errors.New("model_id must be a positive integer"),
				},
			)
			return
		}
		opts.ModelID = &id
	}

	jobs, err := h.Svc.ListJobs(r.Context(), opts)
	if err != nil {
		WriteAppError(w, err)
		return
	}
	total, err := h.Svc.CountJobs(r.Context(), opts)
	if err != nil {
		WriteAppError(w, err)
		return
	}

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"total": total,
		"items": jobs,
	})
}
