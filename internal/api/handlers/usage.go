package handlers

import (
	"net/http"
	"time"

	"github.com/kordant/loom/internal/api/middleware"
	"github.com/kordant/loom/internal/domain"
	"github.com/kordant/loom/internal/service"
)

type UsageHandler struct {
	tenants *service.TenantService
}

func NewUsageHandler(tenants *service.TenantService) *UsageHandler {
	return &UsageHandler{tenants: tenants}
}

func (h *UsageHandler) Totals(w http.ResponseWriter, r *http.Request) {
	tenant := middleware.TenantFromContext(r.Context())
	if tenant == nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	stores, err := h.tenants.Stores(r.Context(), tenant.ID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to resolve tenant stores")
		return
	}

	filter := domain.UsageFilter{InstanceID: r.URL.Query().Get("instance_id")}
	if since := r.URL.Query().Get("since"); since != "" {
		t, err := time.Parse(time.RFC3339, since)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid since timestamp, want RFC3339")
			return
		}
		filter.Since = t
	}

	totals, err := stores.Usage.Totals(r.Context(), filter)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to aggregate usage")
		return
	}
	writeJSON(w, http.StatusOK, totals)
}

func (h *UsageHandler) ListAudit(w http.ResponseWriter, r *http.Request) {
	tenant := middleware.TenantFromContext(r.Context())
	if tenant == nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	stores, err := h.tenants.Stores(r.Context(), tenant.ID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to resolve tenant stores")
		return
	}

	entries, err := stores.Audit.List(r.Context(), domain.AuditFilter{
		EntityType: r.URL.Query().Get("entity_type"),
		EntityID:   r.URL.Query().Get("entity_id"),
		Action:     r.URL.Query().Get("action"),
		Limit:      queryInt(r, "limit", 100),
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list audit entries")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": entries})
}
