package appointment

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/drmas001/imd-v2.8/internal/shared/auth"
	"github.com/drmas001/imd-v2.8/internal/shared/errors"
	"github.com/drmas001/imd-v2.8/internal/shared/events"
	"github.com/drmas001/imd-v2.8/internal/shared/types"
)

// Handler provides HTTP handlers for the appointment module
type Handler struct {
	repo *Repository
	bus  events.EventBus
}

// NewHandler creates a new appointment handler
func NewHandler(repo *Repository, bus events.EventBus) *Handler {
	return &Handler{repo: repo, bus: bus}
}

// Routes registers the appointment routes
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Get("/", h.List)
	r.Post("/", h.Create)

	r.Route("/{appointmentID}", func(r chi.Router) {
		r.Get("/", h.Get)
		r.Put("/", h.Update)
	})

	return r
}

// List lists appointments
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	filter := ListFilter{
		MRN: r.URL.Query().Get("mrn"),
	}

	if s := r.URL.Query().Get("status"); s != "" {
		status := Status(s)
		filter.Status = &status
	}
	if d := r.URL.Query().Get("doctor_id"); d != "" {
		doctorID, err := types.ParseID(d)
		if err != nil {
			writeError(w, errors.BadRequest("invalid doctor_id"))
			return
		}
		filter.DoctorID = &doctorID
	}
	if f := r.URL.Query().Get("from"); f != "" {
		from, err := time.Parse(time.RFC3339, f)
		if err != nil {
			writeError(w, errors.BadRequest("invalid from timestamp"))
			return
		}
		filter.From = &from
	}
	if to := r.URL.Query().Get("to"); to != "" {
		until, err := time.Parse(time.RFC3339, to)
		if err != nil {
			writeError(w, errors.BadRequest("invalid to timestamp"))
			return
		}
		filter.To = &until
	}
	if l := r.URL.Query().Get("limit"); l != "" {
		filter.Limit, _ = strconv.Atoi(l)
	}
	if o := r.URL.Query().Get("offset"); o != "" {
		filter.Offset, _ = strconv.Atoi(o)
	}

	appointments, total, err := h.repo.List(r.Context(), filter)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"data":  appointments,
		"total": total,
	})
}

// Get gets an appointment by ID
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := types.ParseID(chi.URLParam(r, "appointmentID"))
	if err != nil {
		writeError(w, errors.BadRequest("invalid appointment ID"))
		return
	}

	a, err := h.repo.Get(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, a)
}

// Create creates a new appointment
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, errors.BadRequest("invalid request body"))
		return
	}

	a, err := New(req.PatientName, req.MRN, req.Specialty, req.ScheduledAt)
	if err != nil {
		writeError(w, errors.Validation(err.Error(), nil))
		return
	}
	a.DoctorID = req.DoctorID
	a.Notes = req.Notes

	user := auth.GetUser(r.Context())
	if user != nil {
		a.CreatedBy = user.ID
	}

	if err := h.repo.Create(r.Context(), a); err != nil {
		writeError(w, err)
		return
	}

	h.publish(r, events.AppointmentCreated, a)
	writeJSON(w, http.StatusCreated, a)
}

// Update reschedules an appointment or moves it to a terminal state
func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	id, err := types.ParseID(chi.URLParam(r, "appointmentID"))
	if err != nil {
		writeError(w, errors.BadRequest("invalid appointment ID"))
		return
	}

	a, err := h.repo.Get(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}

	var req UpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, errors.BadRequest("invalid request body"))
		return
	}

	if req.DoctorID != nil {
		a.DoctorID = *req.DoctorID
	}
	if req.ScheduledAt != nil {
		a.ScheduledAt = *req.ScheduledAt
	}
	if req.Notes != nil {
		a.Notes = *req.Notes
	}
	if req.Status != nil && *req.Status != a.Status {
		if err := a.Transition(*req.Status); err != nil {
			writeError(w, errors.Precondition(err.Error()))
			return
		}
	}

	if err := h.repo.Update(r.Context(), a); err != nil {
		writeError(w, err)
		return
	}

	h.publish(r, events.AppointmentUpdated, a)
	writeJSON(w, http.StatusOK, a)
}

// --- Helpers ---

func (h *Handler) publish(r *http.Request, eventType string, a *Appointment) {
	if h.bus == nil {
		return
	}

	event := events.NewEvent(eventType, "appointment", map[string]any{
		"appointment_id": a.ID,
		"mrn":            a.MRN,
		"specialty":      a.Specialty,
		"scheduled_at":   a.ScheduledAt,
		"status":         a.Status,
	})
	if user := auth.GetUser(r.Context()); user != nil {
		event = event.WithActor(user.ID, "staff", user.Name)
	}

	h.bus.Publish(r.Context(), event)
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
