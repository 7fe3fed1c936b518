package httpx

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/optilab/optilab-api/internal/domain/model"
	"github.com/optilab/optilab-api/internal/service"
)

// ResultHandlers provides HTTP handlers for persisted run results.
type ResultHandlers struct {
	Svc *service.ResultService
}

const (
	defaultRunsLimit = 20
	maxRunsLimit     = 100
)

// List handles HTTP requests for paged run history.
// GET /api/solver/results?model_id=<id>&limit=<n>&offset=<n>.
func (h *ResultHandlers) List(w http.ResponseWriter, r *http.Request) {
	limit, offset := ParseLimitOffset(r, defaultRunsLimit, maxRunsLimit)
	opts := model.RunsListOptions{Limit: limit, Offset: offset}

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

	page, err := h.Svc.List(r.Context(), opts)
	if err != nil {
		WriteAppError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, page)
}

// Get handles HTTP requests for one run including variable and constraint results.
// GET /api/solver/results/{resultID}.
func (h *ResultHandlers) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "resultID")
	if !ok {
		return
	}

	detail, err := h.Svc.Get(r.Context(), id)
	if err != nil {
		WriteAppError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, detail)
}

// Delete handles HTTP requests to remove a persisted run.
// DELETE /api/solver/results/{resultID}.
func (h *ResultHandlers) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "resultID")
	if !ok {
		return
	}

	deleted, err := h.Svc.Delete(r.Context(), id)
	if err != nil {
		WriteAppError(w, err)
		return
	}
	if !deleted {
		WriteError(
			w,
			ErrorParams{Code: http.StatusNotFound, ErrCode: "run_not_found", Err: errors.New("run not found")},
		)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Query handles HTTP requests to evaluate a JMESPath expression against a run.
// POST /api/solver/results/{resultID}/query.
func (h *ResultHandlers) Query(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "resultID")
	if !ok {
		return
	}

	var body struct {
		Expression string `json:"expression"`
	}
	if !DecodeJSON(w, r, &body) {
		return
	}

	result, err := h.Svc.Query(r.Context(), id, body.Expression)
	if err != nil {
		WriteAppError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]interface{}{"result": result})
}
