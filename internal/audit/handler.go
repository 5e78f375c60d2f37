package audit

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/recallhq/recall/internal/api"
)

// Handler exposes the pipeline audit trail.
type Handler struct {
	repo *Repository
}

// NewHandler creates a new audit handler.
func NewHandler(repo *Repository) *Handler {
	return &Handler{repo: repo}
}

// List returns paginated audit entries, filterable by recording, event type
// and severity.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	params := ListParams{
		RecordingID: r.URL.Query().Get("recording_id"),
		EventType:   r.URL.Query().Get("event_type"),
		Severity:    r.URL.Query().Get("severity"),
		Page:        1,
		PageSize:    20,
	}
	if p := r.URL.Query().Get("page"); p != "" {
		if v, err := strconv.Atoi(p); err == nil && v > 0 {
			params.Page = v
		}
	}
	if ps := r.URL.Query().Get("page_size"); ps != "" {
		if v, err := strconv.Atoi(ps); err == nil && v > 0 && v <= 100 {
			params.PageSize = v
		}
	}

	entries, total, err := h.repo.List(r.Context(), params)
	if err != nil {
		slog.Error("listing audit entries", "error", err)
		api.HandleError(w, api.ErrInternalServer)
		return
	}
	api.JSONPaginated(w, http.StatusOK, entries, total, params.Page, params.PageSize)
}
