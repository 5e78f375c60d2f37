package memory

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/recallhq/recall/internal/api"
)

// Handler handles memory HTTP endpoints.
type Handler struct {
	svc      *Service
	validate *validator.Validate
}

// NewHandler creates a new memory handler.
func NewHandler(svc *Service) *Handler {
	return &Handler{
		svc:      svc,
		validate: validator.New(),
	}
}

// List returns paginated memories for an owner.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	ownerID := r.URL.Query().Get("owner_id")
	if ownerID == "" {
		api.HandleError(w, api.NewBadRequestError("owner_id is required"))
		return
	}

	page := 1
	pageSize := 20
	if p := r.URL.Query().Get("page"); p != "" {
		if v, err := strconv.Atoi(p); err == nil && v > 0 {
			page = v
		}
	}
	if ps := r.URL.Query().Get("page_size"); ps != "" {
		if v, err := strconv.Atoi(ps); err == nil && v > 0 && v <= 100 {
			pageSize = v
		}
	}

	memories, total, err := h.svc.List(r.Context(), ownerID, page, pageSize)
	if err != nil {
		slog.Error("listing memories", "error", err)
		api.HandleError(w, api.ErrInternalServer)
		return
	}

	api.JSONPaginated(w, http.StatusOK, memories, total, page, pageSize)
}

// Create creates a manually entered memory.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateMemoryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.HandleError(w, api.ErrBadRequest)
		return
	}

	if err := h.validate.Struct(req); err != nil {
		api.HandleError(w, api.NewValidationError(err.Error()))
		return
	}

	mem, err := h.svc.CreateManual(r.Context(), &req)
	if err != nil {
		if !ValidTypes[req.MemoryType] {
			api.HandleError(w, api.NewBadRequestError(err.Error()))
			return
		}
		slog.Error("creating manual memory", "error", err)
		api.HandleError(w, api.ErrInternalServer)
		return
	}

	api.JSON(w, http.StatusCreated, mem)
}

// Get returns one memory by id.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "memoryID"))
	if err != nil {
		api.HandleError(w, api.NewBadRequestError("invalid memory id"))
		return
	}

	mem, err := h.svc.Get(r.Context(), id)
	if err != nil {
		slog.Error("getting memory", "error", err, "memory_id", id)
		api.HandleError(w, api.ErrInternalServer)
		return
	}
	if mem == nil {
		api.HandleError(w, api.ErrNotFound)
		return
	}

	api.JSON(w, http.StatusOK, mem)
}

// Search runs semantic similarity search over an owner's memories.
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	var req SearchMemoryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.HandleError(w, api.ErrBadRequest)
		return
	}

	if err := h.validate.Struct(req); err != nil {
		api.HandleError(w, api.NewValidationError(err.Error()))
		return
	}

	results, err := h.svc.Search(r.Context(), &req)
	if err != nil {
		slog.Error("searching memories", "error", err)
		api.HandleError(w, api.ErrInternalServer)
		return
	}

	api.JSON(w, http.StatusOK, results)
}

// Delete removes a memory by explicit user action.
func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "memoryID"))
	if err != nil {
		api.HandleError(w, api.NewBadRequestError("invalid memory id"))
		return
	}

	if err := h.svc.Delete(r.Context(), id); err != nil {
		api.HandleError(w, api.NewNotFoundError("memory not found"))
		return
	}

	api.JSONMessage(w, http.StatusOK, "memory deleted")
}
