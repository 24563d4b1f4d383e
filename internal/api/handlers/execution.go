package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/kordant/loom/internal/api/middleware"
	"github.com/kordant/loom/internal/domain"
	"github.com/kordant/loom/internal/service"
)

type ExecutionHandler struct {
	engine *service.ExecutionEngine
}

func NewExecutionHandler(engine *service.ExecutionEngine) *ExecutionHandler {
	return &ExecutionHandler{engine: engine}
}

func (h *ExecutionHandler) Submit(w http.ResponseWriter, r *http.Request) {
	tenant := middleware.TenantFromContext(r.Context())
	if tenant == nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req service.SubmitInput
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	req.TenantID = tenant.ID

	exec, err := h.engine.Submit(r.Context(), req)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrInputEmpty):
			writeError(w, http.StatusBadRequest, err.Error())
		case errors.Is(err, service.ErrInstanceNotFound), errors.Is(err, service.ErrInstanceInactive):
			writeError(w, http.StatusBadRequest, err.Error())
		case errors.Is(err, service.ErrTemplateNotFound), errors.Is(err, service.ErrMissingVariable):
			writeError(w, http.StatusBadRequest, err.Error())
		default:
			// Inline invocation failures still carry the terminal record.
			if exec != nil {
				writeJSON(w, http.StatusOK, exec)
				return
			}
			writeError(w, http.StatusInternalServerError, "failed to run execution")
		}
		return
	}
	writeJSON(w, http.StatusCreated, exec)
}

func (h *ExecutionHandler) List(w http.ResponseWriter, r *http.Request) {
	tenant := middleware.TenantFromContext(r.Context())
	if tenant == nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	filter := domain.ExecutionFilter{
		InstanceID: r.URL.Query().Get("instance_id"),
		TemplateID: r.URL.Query().Get("template_id"),
		Status:     domain.ExecutionStatus(r.URL.Query().Get("status")),
		Limit:      queryInt(r, "limit", 50),
		Offset:     queryInt(r, "offset", 0),
	}

	executions, err := h.engine.List(r.Context(), tenant.ID, filter)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list executions")
		return
	}
	total, err := h.engine.Count(r.Context(), tenant.ID, filter)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to count executions")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"executions": executions,
		"total":      total,
	})
}

func (h *ExecutionHandler) GetByID(w http.ResponseWriter, r *http.Request) {
	tenant := middleware.TenantFromContext(r.Context())
	if tenant == nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	exec, err := h.engine.Get(r.Context(), tenant.ID, chi.URLParam(r, "id"))
	if err != nil {
		if errors.Is(err, service.ErrExecutionNotFound) {
			writeError(w, http.StatusNotFound, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to get execution")
		return
	}
	writeJSON(w, http.StatusOK, exec)
}

func (h *ExecutionHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	tenant := middleware.TenantFromContext(r.Context())
	if tenant == nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	exec, err := h.engine.Cancel(r.Context(), tenant.ID, chi.URLParam(r, "id"), r.Header.Get("X-Actor"))
	if err != nil {
		switch {
		case errors.Is(err, service.ErrExecutionNotFound):
			writeError(w, http.StatusNotFound, err.Error())
		case errors.Is(err, service.ErrInvalidStateTransition):
			writeError(w, http.StatusConflict, err.Error())
		default:
			writeError(w, http.StatusInternalServerError, "failed to cancel execution")
		}
		return
	}
	writeJSON(w, http.StatusOK, exec)
}
