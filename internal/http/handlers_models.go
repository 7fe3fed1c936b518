package httpx

import (
	"errors"
	"net/http"

	"github.com/optilab/optilab-api/internal/domain/model"
	"github.com/optilab/optilab-api/internal/service"
)

// ModelHandlers provides HTTP handlers for AMPL model management.
type ModelHandlers struct {
	Svc *service.ModelService
}

const (
	defaultModelsLimit = 50
	maxModelsLimit     = 200
)

// Create handles HTTP requests to store a new model.
func (h *ModelHandlers) Create(w http.ResponseWriter, r *http.Request) {
	var req model.CreateModelRequest
	if !DecodeJSON(w, r, &req) {
		return
	}

	m, err := h.Svc.Create(r.Context(), &req)
	if err != nil {
		WriteAppError(w, err)
		return
	}

	WriteJSON(w, http.StatusCreated, m)
}

// List handles HTTP requests to list stored models with pagination.
func (h *ModelHandlers) List(w http.ResponseWriter, r *http.Request) {
	limit, offset := ParseLimitOffset(r, defaultModelsLimit, maxModelsLimit)

	models, err := h.Svc.List(r.Context(), model.ModelsListOptions{Limit: limit, Offset: offset})
	if err != nil {
		WriteAppError(w, err)
		return
	}
	total, err := h.Svc.Count(r.Context())
	if err != nil {
		WriteAppError(w, err)
		return
	}

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"total": total,
		"items": models,
	})
}

// GetByID handles HTTP requests to get a model by ID.
func (h *ModelHandlers) GetByID(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	m, err := h.Svc.GetByID(r.Context(), id)
	if err != nil {
		WriteAppError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, m)
}

// Update handles HTTP requests to apply a partial update to a model.
func (h *ModelHandlers) Update(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	var req model.UpdateModelRequest
	if !DecodeJSON(w, r, &req) {
		return
	}

	m, err := h.Svc.Update(r.Context(), id, req)
	if err != nil {
		WriteAppError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, m)
}

// Delete handles HTTP requests to delete a model along with its data files
// and run history.
func (h *ModelHandlers) Delete(w http.ResponseWriter, r *http.Request) {
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
			ErrorParams{Code: http.StatusNotFound, ErrCode: "model_not_found", Err: errors.New("model not found")},
		)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Validate handles HTTP requests to syntax-check a model without solving it.
// POST /api/models/{id}/validate.
func (h *ModelHandlers) Validate(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	validation, err := h.Svc.Validate(r.Context(), id)
	if err != nil {
		WriteAppError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, validation)
}

// Info handles HTTP requests for a model's declared structure.
// GET /api/models/{id}/info.
func (h *ModelHandlers) Info(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	info, err := h.Svc.Info(r.Context(), id)
	if err != nil {
		WriteAppError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, info)
}
