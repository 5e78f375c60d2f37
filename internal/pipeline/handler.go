package pipeline

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/recallhq/recall/internal/api"
)

// Handler exposes the sync trigger and status endpoints.
type Handler struct {
	coordinator *Coordinator
}

// NewHandler creates a new pipeline handler.
func NewHandler(coordinator *Coordinator) *Handler {
	return &Handler{coordinator: coordinator}
}

type triggerResponse struct {
	RunID   string `json:"run_id"`
	Message string `json:"message"`
}

// Trigger starts a sync run in the background and returns 202 immediately.
// An optional window query parameter overrides the configured sync window.
func (h *Handler) Trigger(w http.ResponseWriter, r *http.Request) {
	var window time.Duration
	if raw := r.URL.Query().Get("window"); raw != "" {
		parsed, err := time.ParseDuration(raw)
		if err != nil || parsed <= 0 {
			api.HandleError(w, api.NewBadRequestError("invalid window duration"))
			return
		}
		window = parsed
	}

	runID := h.coordinator.Sync(window, TriggerManual)
	api.JSON(w, http.StatusAccepted, triggerResponse{
		RunID:   runID,
		Message: "sync started",
	})
}

// LastSummary returns the most recent sync run's summary.
func (h *Handler) LastSummary(w http.ResponseWriter, r *http.Request) {
	summary, err := h.coordinator.LastSummary(r.Context())
	if err != nil {
		slog.Error("loading last sync summary", "error", err)
		api.HandleError(w, api.ErrInternalServer)
		return
	}
	if summary == nil {
		api.HandleError(w, api.NewNotFoundError("no sync has run yet"))
		return
	}
	api.JSON(w, http.StatusOK, summary)
}

type statusResponse struct {
	Pending int64 `json:"pending"`
}

// Status reports how many recordings the current run still has in flight.
func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	pending, err := h.coordinator.PendingCount(r.Context())
	if err != nil {
		slog.Error("reading sync status", "error", err)
		api.HandleError(w, api.ErrInternalServer)
		return
	}
	api.JSON(w, http.StatusOK, statusResponse{Pending: pending})
}

// Reprocess clears the processed flag and dedup marker for a recording so the
// next sync run picks it up again. Operator action; may produce a second
// memory for the recording.
func (h *Handler) Reprocess(w http.ResponseWriter, r *http.Request) {
	recordingID := chi.URLParam(r, "recordingID")
	if recordingID == "" {
		api.HandleError(w, api.NewBadRequestError("recording id is required"))
		return
	}

	if err := h.coordinator.Reprocess(r.Context(), recordingID); err != nil {
		slog.Error("queuing recording for reprocessing", "error", err, "recording_id", recordingID)
		api.HandleError(w, api.ErrInternalServer)
		return
	}
	api.JSONMessage(w, http.StatusOK, "recording queued for reprocessing")
}
