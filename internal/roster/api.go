package roster

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/drmas001/imd-v2.8/internal/shared/auth"
	"github.com/drmas001/imd-v2.8/internal/shared/errors"
)

// Handler exposes the unified roster over HTTP
type Handler struct {
	service  *Service
	workflow *Workflow
}

func NewHandler(service *Service, workflow *Workflow) *Handler {
	return &Handler{service: service, workflow: workflow}
}

func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Get("/", h.List)
	r.Post("/refresh", h.Refresh)
	r.Post("/discharge", h.Discharge)

	r.Route("/selection", func(r chi.Router) {
		r.Get("/", h.GetSelection)
		r.Put("/", h.Select)
		r.Delete("/", h.ClearSelection)
	})

	return r
}

// List returns the current roster snapshot
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	entries, refreshedAt := h.service.Snapshot()

	writeJSON(w, http.StatusOK, map[string]any{
		"data":         entries,
		"total":        len(entries),
		"refreshed_at": refreshedAt,
	})
}

// Refresh forces a re-fetch from storage
func (h *Handler) Refresh(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Refresh(r.Context(), "manual"); err != nil {
		writeError(w, err)
		return
	}

	entries, refreshedAt := h.service.Snapshot()
	writeJSON(w, http.StatusOK, map[string]any{
		"data":         entries,
		"total":        len(entries),
		"refreshed_at": refreshedAt,
	})
}

// GetSelection returns the caller's selected entry, if any
func (h *Handler) GetSelection(w http.ResponseWriter, r *http.Request) {
	user := auth.GetUser(r.Context())
	if user == nil {
		writeError(w, errors.Unauthorized("authentication required"))
		return
	}

	entry, ok := h.service.Selection(user.ID)
	if !ok {
		writeJSON(w, http.StatusOK, map[string]any{"data": nil})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": entry})
}

// SelectRequest names the roster entry to select
type SelectRequest struct {
	Key string `json:"key"`
}

// Select records the caller's selection
func (h *Handler) Select(w http.ResponseWriter, r *http.Request) {
	user := auth.GetUser(r.Context())
	if user == nil {
		writeError(w, errors.Unauthorized("authentication required"))
		return
	}

	var req SelectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, errors.BadRequest("invalid request body"))
		return
	}
	if req.Key == "" {
		writeError(w, errors.Validation("selection key is required", map[string]string{"key": "required"}))
		return
	}

	entry, err := h.service.Select(user.ID, req.Key)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": entry})
}

// ClearSelection drops the caller's selection
func (h *Handler) ClearSelection(w http.ResponseWriter, r *http.Request) {
	user := auth.GetUser(r.Context())
	if user == nil {
		writeError(w, errors.Unauthorized("authentication required"))
		return
	}

	h.service.ClearSelection(user.ID)
	w.WriteHeader(http.StatusNoContent)
}

// Discharge closes out the selected entry via the workflow
func (h *Handler) Discharge(w http.ResponseWriter, r *http.Request) {
	user := auth.GetUser(r.Context())

	var req DischargeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, errors.BadRequest("invalid request body"))
		return
	}

	result, err := h.workflow.Discharge(r.Context(), user, req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": result})
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, err error) {
	w.Header().Set("Content-Type", "application/json")

	if appErr, ok := err.(*errors.AppError); ok {
		w.WriteHeader(appErr.HTTPStatus)
		json.NewEncoder(w).Encode(map[string]any{
			"error":   appErr.Message,
			"code":    appErr.Code,
			"details": appErr.Details,
		})
		return
	}

	w.WriteHeader(http.StatusInternalServerError)
	json.NewEncoder(w).Encode(map[string]string{"error": "internal server error"})
}
