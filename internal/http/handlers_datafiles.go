package httpx

import (
	"errors"
	"net/http"

	"github.com/optilab/optilab-api/internal/domain/model"
	"github.com/optilab/optilab-api/internal/service"
)

// DataFileHandlers provides HTTP handlers for data files nested under models.
type DataFileHandlers struct {
	Svc *service.DataFileService
}

// ListByModel handles HTTP requests for all data files belonging to a model.
// GET /api/models/{id}/data-files.
func (h *DataFileHandlers) ListByModel(w http.ResponseWriter, r *http.Request) {
	modelID, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	files, err := h.Svc.ListByModel(r.Context(), modelID)
	if err != nil {
		WriteAppError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, files)
}

// Create handles HTTP requests to attach a data file to a model.
// POST /api/models/{id}/data-files.
func (h *DataFileHandlers) Create(w http.ResponseWriter, r *http.Request) {
	modelID, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	var req model.CreateDataFileRequest
	if !DecodeJSON(w, r, &req) {
		return
	}

	f, err := h.Svc.Create(r.Context(), modelID, &req)
	if err != nil {
		WriteAppError(w, err)
		return
	}
	WriteJSON(w, http.StatusCreated, f)
}

// GetByID handles HTTP requests to get a data file by ID.
// GET /api/data-files/{id}.
func (h *DataFileHandlers) GetByID(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	f, err := h.Svc.GetByID(r.Context(), id)
	if err != nil {
		WriteAppError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, f)
}

// Update handles HTTP requests to apply a partial update to a data file.
// PUT /api/data-files/{id}.
func (h *DataFileHandlers) Update(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	var req model.UpdateDataFileRequest
	if !DecodeJSON(w, r, &req) {
		return
	}

	f, err := h.Svc.Update(r.Context(), id, req)
	if err != nil {
		WriteAppError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, f)
}

// Delete handles HTTP requests to delete a data file.
// DELETE /api/data-files/{id}.
func (h *DataFileHandlers) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
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
			ErrorParams{
				Code:    http.StatusNotFound,
				ErrCode: "data_file_not_found",
				Err:     errors.New("data file not found"),
			},
		)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
