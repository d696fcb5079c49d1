package notes

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/drmas001/imd-v2.8/internal/shared/auth"
	"github.com/drmas001/imd-v2.8/internal/shared/errors"
	"github.com/drmas001/imd-v2.8/internal/shared/events"
	"github.com/drmas001/imd-v2.8/internal/shared/metrics"
	"github.com/drmas001/imd-v2.8/internal/shared/types"
)

// Handler provides HTTP handlers for the note feed. Its routes are
// mounted under /patients/{patientID}/notes, so the patient ID comes
// from the enclosing route.
type Handler struct {
	repo *Repository
	bus  events.EventBus
}

// NewHandler creates a new notes handler
func NewHandler(repo *Repository, bus events.EventBus) *Handler {
	return &Handler{repo: repo, bus: bus}
}

// Routes registers the note routes
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Get("/", h.List)
	r.Post("/", h.Append)

	return r
}

// List returns a patient's note feed, newest first
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	patientID, err := types.ParseID(chi.URLParam(r, "patientID"))
	if err != nil {
		writeError(w, errors.BadRequest("invalid patient ID"))
		return
	}

	limit := 0
	offset := 0
	if l := r.URL.Query().Get("limit"); l != "" {
		limit, _ = strconv.Atoi(l)
	}
	if o := r.URL.Query().Get("offset"); o != "" {
		offset, _ = strconv.Atoi(o)
	}

	result, total, err := h.repo.ListByPatient(r.Context(), patientID, limit, offset)
	if err != nil {
		writeError(w, err)
		return
	}

	if result == nil {
		result = []Note{}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"data":  result,
		"total": total,
	})
}

// Append adds a note to a patient's feed
func (h *Handler) Append(w http.ResponseWriter, r *http.Request) {
	patientID, err := types.ParseID(chi.URLParam(r, "patientID"))
	if err != nil {
		writeError(w, errors.BadRequest("invalid patient ID"))
		return
	}

	var req AppendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, errors.BadRequest("invalid request body"))
		return
	}

	user := auth.GetUser(r.Context())
	var authorID types.ID
	if user != nil {
		authorID = user.ID
	}

	n, err := New(patientID, req.Content, req.Type, authorID)
	if err != nil {
		writeError(w, errors.Validation(err.Error(), nil))
		return
	}

	if err := h.repo.Append(r.Context(), n); err != nil {
		writeError(w, err)
		return
	}

	metrics.RecordNoteCreated(string(n.Type))
	if h.bus != nil {
		event := events.NewEvent(events.NoteCreated, "notes", map[string]any{
			"note_id":    n.ID,
			"patient_id": n.PatientID,
			"note_type":  n.Type,
		})
		if user != nil {
			event = event.WithActor(user.ID, "staff", user.Name)
		}
		h.bus.Publish(r.Context(), event)
	}

	writeJSON(w, http.StatusCreated, n)
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
