package perf

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/recallhq/recall/internal/api"
)

// Handler exposes processing performance summaries.
type Handler struct {
	tracker *Tracker
}

// NewHandler creates a new perf handler.
func NewHandler(tracker *Tracker) *Handler {
	return &Handler{tracker: tracker}
}

// List returns recent processing records for inspection.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	window, ok := parseWindow(w, r)
	if !ok {
		return
	}

	limit := 100
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil && v > 0 && v <= 1000 {
			limit = v
		}
	}

	records, err := h.tracker.Recent(r.Context(), window, limit)
	if err != nil {
		slog.Error("listing processing records", "error", err)
		api.HandleError(w, api.ErrInternalServer)
		return
	}
	api.JSON(w, http.StatusOK, records)
}

// Summary returns per-stage averages and bottleneck analysis over a window.
// The window defaults to 24h and is overridable via a query parameter.
func (h *Handler) Summary(w http.ResponseWriter, r *http.Request) {
	window, ok := parseWindow(w, r)
	if !ok {
		return
	}

	summary, err := h.tracker.Summarize(r.Context(), window)
	if err != nil {
		slog.Error("summarizing processing records", "error", err)
		api.HandleError(w, api.ErrInternalServer)
		return
	}
	api.JSON(w, http.StatusOK, summary)
}

func parseWindow(w http.ResponseWriter, r *http.Request) (time.Duration, bool) {
	window := 24 * time.Hour
	if raw := r.URL.Query().Get("window"); raw != "" {
		parsed, err := time.ParseDuration(raw)
		if err != nil || parsed <= 0 {
			api.HandleError(w, api.NewBadRequestError("invalid window duration"))
			return 0, false
		}
		window = parsed
	}
	return window, true
}
