package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/kordant/loom/internal/api/middleware"
	"github.com/kordant/loom/internal/service"
)

type InstanceHandler struct {
	svc *service.InstanceService
}

func NewInstanceHandler(svc *service.InstanceService) *InstanceHandler {
	return &InstanceHandler{svc: svc}
}

func (h *InstanceHandler) Create(w http.ResponseWriter, r *http.Request) {
	tenant := middleware.TenantFromContext(r.Context())
	if tenant == nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req service.CreateInstanceInput
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	instance, err := h.svc.Create(r.Context(), tenant.ID, req)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrInstanceNameEmpty):
			writeError(w, http.StatusBadRequest, err.Error())
		case errors.Is(err, service.ErrTemplateNotFound):
			writeError(w, http.StatusBadRequest, "template not found")
		default:
			writeError(w, http.StatusInternalServerError, "failed to create instance")
		}
		return
	}
	writeJSON(w, http.StatusCreated, instance)
}

func (h *InstanceHandler) List(w http.ResponseWriter, r *http.Request) {
	tenant := middleware.TenantFromContext(r.Context())
	if tenant == nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	instances, err := h.svc.List(r.Context(), tenant.ID, r.URL.Query().Get("template_id"), queryBool(r, "active_only"))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list instances")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"instances": instances})
}

func (h *InstanceHandler) GetByID(w http.ResponseWriter, r *http.Request) {
	tenant := middleware.TenantFromContext(r.Context())
	if tenant == nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	instance, err := h.svc.Get(r.Context(), tenant.ID, chi.URLParam(r, "id"))
	if err != nil {
		if errors.Is(err, service.ErrInstanceNotFound) {
			writeError(w, http.StatusNotFound, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to get instance")
		return
	}
	writeJSON(w, http.StatusOK, instance)
}

func (h *InstanceHandler) Patch(w http.ResponseWriter, r *http.Request) {
	tenant := middleware.TenantFromContext(r.Context())
	if tenant == nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var patch service.InstanceUpdate
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	instance, err := h.svc.Update(r.Context(), tenant.ID, chi.URLParam(r, "id"), patch, r.Header.Get("X-Actor"))
	if err != nil {
		switch {
		case errors.Is(err, service.ErrInstanceNotFound):
			writeError(w, http.StatusNotFound, err.Error())
		case errors.Is(err, service.ErrInstanceNameEmpty):
			writeError(w, http.StatusBadRequest, err.Error())
		default:
			writeError(w, http.StatusInternalServerError, "failed to update instance")
		}
		return
	}
	writeJSON(w, http.StatusOK, instance)
}

func (h *InstanceHandler) Deactivate(w http.ResponseWriter, r *http.Request) {
	tenant := middleware.TenantFromContext(r.Context())
	if tenant == nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	if err := h.svc.Deactivate(r.Context(), tenant.ID, chi.URLParam(r, "id"), r.Header.Get("X-Actor")); err != nil {
		if errors.Is(err, service.ErrInstanceNotFound) {
			writeError(w, http.StatusNotFound, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to deactivate instance")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deactivated"})
}
