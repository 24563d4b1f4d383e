package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/kordant/loom/internal/api/middleware"
	"github.com/kordant/loom/internal/domain"
	"github.com/kordant/loom/internal/service"
)

const statusPollInterval = time.Second

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

type statusUpdate struct {
	ExecutionID  string                 `json:"execution_id"`
	Status       domain.ExecutionStatus `json:"status"`
	ErrorMessage string                 `json:"error_message,omitempty"`
	Output       map[string]any         `json:"output,omitempty"`
	DurationMS   *int64                 `json:"duration_ms,omitempty"`
}

// Stream pushes the execution's status over a websocket until it reaches a
// terminal state. Each distinct status is sent once; the terminal update
// includes the output.
func (h *ExecutionHandler) Stream(w http.ResponseWriter, r *http.Request) {
	tenant := middleware.TenantFromContext(r.Context())
	if tenant == nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	id := chi.URLParam(r, "id")

	// Validate before upgrading so a bad id gets a proper HTTP status.
	exec, err := h.engine.Get(r.Context(), tenant.ID, id)
	if err != nil {
		if errors.Is(err, service.ErrExecutionNotFound) {
			writeError(w, http.StatusNotFound, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to get execution")
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer func() { _ = conn.Close() }()

	last := domain.ExecutionStatus("")
	ticker := time.NewTicker(statusPollInterval)
	defer ticker.Stop()

	for {
		if exec.Status != last {
			update := statusUpdate{
				ExecutionID: exec.ID,
				Status:      exec.Status,
			}
			if exec.Status.Terminal() {
				update.ErrorMessage = exec.ErrorMessage
				update.Output = exec.Output
				update.DurationMS = exec.DurationMS
			}
			if err := conn.WriteJSON(update); err != nil {
				return
			}
			last = exec.Status
		}
		if exec.Status.Terminal() {
			_ = conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, string(exec.Status)))
			return
		}

		select {
		case <-ticker.C:
		case <-r.Context().Done():
			return
		}

		exec, err = h.engine.Get(r.Context(), tenant.ID, id)
		if err != nil {
			return
		}
	}
}
