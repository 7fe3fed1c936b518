package httpx

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/optilab/optilab-api/internal/service"
)

// VizHandlers provides HTTP handlers for derived visualization data.
type VizHandlers struct {
	Svc *service.VisualizationService
}

// Network handles HTTP requests for the flow-network view of a run.
// GET /api/visualization/network/{resultID}.
func (h *VizHandlers) Network(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "resultID")
	if !ok {
		return
	}

	network, err := h.Svc.Network(r.Context(), id)
	if err != nil {
		WriteAppError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, network)
}

// Sensitivity handles HTTP requests for a run's dual values and reduced costs.
// GET /api/visualization/sensitivity/{resultID}.
func (h *VizHandlers) Sensitivity(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "resultID")
	if !ok {
		return
	}

	sensitivity, err := h.Svc.Sensitivity(r.Context(), id)
	if err != nil {
		WriteAppError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, sensitivity)
}

// Comparison handles HTTP requests to compare runs side by side.
// GET /api/visualization/comparison?run_ids=<id>,<id>,...
func (h *VizHandlers) Comparison(w http.ResponseWriter, r *http.Request) {
	raw := r.URL.Query().Get("run_ids")
	if raw == "" {
		WriteError(
			w,
			ErrorParams{Code: http.StatusBadRequest, ErrCode: "invalid_query", Err: errors.New("run_ids is required")},
		)
		return
	}

	parts := strings.Split(raw, ",")
	runIDs := make([]int64, 0, len(parts))
	for _, part := range parts {
		id, err := strconv.ParseInt(strings.TrimSpace(part), 10, 64)
		if err != nil || id <= 0 {
			WriteError(
				w,
				ErrorParams{
					Code:    http.StatusBadRequest,
					ErrCode: "invalid_query",
					Err:     errors.New("run_ids must be a comma-separated list of positive integers"),
				},
			)
			return
		}
		runIDs = append(runIDs, id)
	}

	comparison, err := h.Svc.Comparison(r.Context(), runIDs)
	if err != nil {
		WriteAppError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, comparison)
}

// Variables handles HTTP requests for a run's variable values grouped for charting.
// GET /api/visualization/variables/{resultID}?variable=<name>.
func (h *VizHandlers) Variables(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "resultID")
	if !ok {
		return
	}

	chart, err := h.Svc.VariablesChart(r.Context(), id, r.URL.Query().Get("variable"))
	if err != nil {
		WriteAppError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, chart)
}
