package audit

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/drmas001/imd-v2.8/internal/shared/auth"
	"github.com/drmas001/imd-v2.8/internal/shared/errors"
	"github.com/drmas001/imd-v2.8/internal/shared/types"
)

// Handler exposes the audit trail. Reads are admin-gated outside
// development mode; there is no write surface, entries only arrive
// through the subscriber.
type Handler struct {
	repo    *Repository
	devMode bool
}

func NewHandler(repo *Repository, devMode bool) *Handler {
	return &Handler{repo: repo, devMode: devMode}
}

func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Get("/", h.List)
	r.Get("/verify", h.VerifyChain)
	r.Get("/verify/{resourceType}/{resourceID}", h.VerifyResource)

	return r
}

func (h *Handler) requireAdmin(r *http.Request) error {
	if h.devMode {
		return nil
	}
	user := auth.GetUser(r.Context())
	if user == nil || !user.IsAdmin() {
		return errors.Forbidden("admin access required")
	}
	return nil
}

// List queries audit entries with filters
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	if err := h.requireAdmin(r); err != nil {
		writeError(w, err)
		return
	}

	q := r.URL.Query()
	filter := ListFilter{
		Action:       q.Get("action"),
		ResourceType: q.Get("resource_type"),
		ResourceID:   q.Get("resource_id"),
	}

	if actorID := q.Get("actor_id"); actorID != "" {
		id, err := types.ParseID(actorID)
		if err != nil {
			writeError(w, errors.Validation("invalid actor_id", map[string]string{"actor_id": "must be a uuid"}))
			return
		}
		filter.ActorID = &id
	}

	if from := q.Get("from"); from != "" {
		t, err := time.Parse(time.RFC3339, from)
		if err != nil {
			writeError(w, errors.Validation("invalid from", map[string]string{"from": "must be RFC3339"}))
			return
		}
		filter.From = &t
	}

	if to := q.Get("to"); to != "" {
		t, err := time.Parse(time.RFC3339, to)
		if err != nil {
			writeError(w, errors.Validation("invalid to", map[string]string{"to": "must be RFC3339"}))
			return
		}
		filter.To = &t
	}

	if limit := q.Get("limit"); limit != "" {
		if l, err := strconv.Atoi(limit); err == nil {
			filter.Limit = l
		}
	}

	if offset := q.Get("offset"); offset != "" {
		if o, err := strconv.Atoi(offset); err == nil {
			filter.Offset = o
		}
	}

	entries, total, err := h.repo.List(r.Context(), filter)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"data":  entries,
		"total": total,
	})
}

// VerifyChain re-checks the newest stretch of the chain
func (h *Handler) VerifyChain(w http.ResponseWriter, r *http.Request) {
	if err := h.requireAdmin(r); err != nil {
		writeError(w, err)
		return
	}

	limit := 100
	if l := r.URL.Query().Get("limit"); l != "" {
		if parsed, err := strconv.Atoi(l); err == nil && parsed > 0 {
			limit = parsed
		}
	}
	includeDetails := r.URL.Query().Get("details") == "true"

	result, err := h.repo.VerifyChain(r.Context(), limit, includeDetails)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// VerifyResource re-checks the entries of one resource
func (h *Handler) VerifyResource(w http.ResponseWriter, r *http.Request) {
	if err := h.requireAdmin(r); err != nil {
		writeError(w, err)
		return
	}

	resourceType := chi.URLParam(r, "resourceType")
	resourceID := chi.URLParam(r, "resourceID")
	if resourceType == "" || resourceID == "" {
		writeError(w, errors.BadRequest("resource type and id are required"))
		return
	}

	limit := 50
	if l := r.URL.Query().Get("limit"); l != "" {
		if parsed, err := strconv.Atoi(l); err == nil && parsed > 0 {
			limit = parsed
		}
	}

	result, err := h.repo.VerifyResource(r.Context(), resourceType, resourceID, limit)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, result)
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
