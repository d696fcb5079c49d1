package staff

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/drmas001/imd-v2.8/internal/auth"
	"github.com/drmas001/imd-v2.8/internal/shared/errors"
	"github.com/drmas001/imd-v2.8/internal/shared/types"
)

// Handler provides HTTP handlers for the staff module
type Handler struct {
	repo *Repository
}

// NewHandler creates a new staff handler
func NewHandler(repo *Repository) *Handler {
	return &Handler{repo: repo}
}

// Routes registers the staff routes
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Get("/", h.List)
	r.Post("/", h.Create)

	r.Route("/{staffID}", func(r chi.Router) {
		r.Get("/", h.Get)
		r.Put("/", h.Update)
		r.Delete("/", h.Deactivate)
	})

	return r
}

// List lists staff members
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	filter := ListFilter{
		Department: r.URL.Query().Get("department"),
		Search:     r.URL.Query().Get("search"),
	}

	if ro := r.URL.Query().Get("role"); ro != "" {
		role := auth.Role(ro)
		filter.Role = &role
	}
	filter.ActiveOnly = r.URL.Query().Get("active") == "true"

	if l := r.URL.Query().Get("limit"); l != "" {
		filter.Limit, _ = strconv.Atoi(l)
	}
	if o := r.URL.Query().Get("offset"); o != "" {
		filter.Offset, _ = strconv.Atoi(o)
	}

	members, total, err := h.repo.List(r.Context(), filter)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"data":  members,
		"total": total,
	})
}

// Get gets a staff member by ID
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := types.ParseID(chi.URLParam(r, "staffID"))
	if err != nil {
		writeError(w, errors.BadRequest("invalid staff ID"))
		return
	}

	m, err := h.repo.Get(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, m)
}

// Create creates a new staff member
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, errors.BadRequest("invalid request body"))
		return
	}

	m, err := New(req.Name, req.Email, req.Role)
	if err != nil {
		writeError(w, errors.Validation(err.Error(), nil))
		return
	}
	m.Department = req.Department
	m.Specialty = req.Specialty

	if err := h.repo.Create(r.Context(), m); err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, m)
}

// Update updates a staff member
func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	id, err := types.ParseID(chi.URLParam(r, "staffID"))
	if err != nil {
		writeError(w, errors.BadRequest("invalid staff ID"))
		return
	}

	m, err := h.repo.Get(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}

	var req UpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, errors.BadRequest("invalid request body"))
		return
	}

	if req.Name != nil {
		if *req.Name == "" {
			writeError(w, errors.Validation("name cannot be empty", nil))
			return
		}
		m.Name = *req.Name
	}
	if req.Email != nil {
		email := strings.ToLower(strings.TrimSpace(*req.Email))
		if email == "" || !strings.Contains(email, "@") {
			writeError(w, errors.Validation("a valid email is required", nil))
			return
		}
		m.Email = email
	}
	if req.Role != nil {
		if !auth.IsValidRole(string(*req.Role)) {
			writeError(w, errors.Validation("invalid role", nil))
			return
		}
		m.Role = *req.Role
	}
	if req.Department != nil {
		m.Department = *req.Department
	}
	if req.Specialty != nil {
		m.Specialty = *req.Specialty
	}
	if req.IsActive != nil {
		m.IsActive = *req.IsActive
	}

	if err := h.repo.Update(r.Context(), m); err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, m)
}

// Deactivate marks a staff member inactive. Accounts are never deleted
// because clinical records reference them.
func (h *Handler) Deactivate(w http.ResponseWriter, r *http.Request) {
	id, err := types.ParseID(chi.URLParam(r, "staffID"))
	if err != nil {
		writeError(w, errors.BadRequest("invalid staff ID"))
		return
	}

	if err := h.repo.Deactivate(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// --- Helpers ---

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
