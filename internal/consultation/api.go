package consultation

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/drmas001/imd-v2.8/internal/shared/auth"
	"github.com/drmas001/imd-v2.8/internal/shared/errors"
	"github.com/drmas001/imd-v2.8/internal/shared/events"
	"github.com/drmas001/imd-v2.8/internal/shared/metrics"
	"github.com/drmas001/imd-v2.8/internal/shared/types"
)

// Handler provides HTTP handlers for the consultation module
type Handler struct {
	repo *Repository
	bus  events.EventBus
}

// NewHandler creates a new consultation handler
func NewHandler(repo *Repository, bus events.EventBus) *Handler {
	return &Handler{repo: repo, bus: bus}
}

// Routes registers the consultation routes
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Get("/", h.List)
	r.Post("/", h.Create)

	r.Route("/{consultationID}", func(r chi.Router) {
		r.Get("/", h.Get)
		r.Put("/", h.Update)
		r.Post("/complete", h.Complete)
	})

	return r
}

// List lists consultations
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	filter := ListFilter{
		Specialty: r.URL.Query().Get("specialty"),
		MRN:       r.URL.Query().Get("mrn"),
		Search:    r.URL.Query().Get("search"),
	}

	if s := r.URL.Query().Get("status"); s != "" {
		status := Status(s)
		filter.Status = &status
	}
	if u := r.URL.Query().Get("urgency"); u != "" {
		urgency := Urgency(u)
		filter.Urgency = &urgency
	}
	if l := r.URL.Query().Get("limit"); l != "" {
		filter.Limit, _ = strconv.Atoi(l)
	}
	if o := r.URL.Query().Get("offset"); o != "" {
		filter.Offset, _ = strconv.Atoi(o)
	}

	consultations, total, err := h.repo.List(r.Context(), filter)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"data":  consultations,
		"total": total,
	})
}

// Get gets a consultation by ID
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r)
	if err != nil {
		writeError(w, errors.BadRequest("invalid consultation ID"))
		return
	}

	c, err := h.repo.Get(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, c)
}

// Create creates a new consultation request
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, errors.BadRequest("invalid request body"))
		return
	}

	c, err := New(req.PatientName, req.MRN, req.Specialty)
	if err != nil {
		writeError(w, errors.Validation(err.Error(), nil))
		return
	}

	c.Age = req.Age
	c.Gender = req.Gender
	c.RequestingDepartment = req.RequestingDepartment
	c.RequestingDoctorName = req.RequestingDoctorName
	c.Reason = req.Reason
	if req.Urgency != "" {
		c.Urgency = req.Urgency
	}

	if err := h.repo.Create(r.Context(), c); err != nil {
		writeError(w, err)
		return
	}

	h.publish(r, events.ConsultationCreated, c)
	writeJSON(w, http.StatusCreated, c)
}

// Update updates the request fields of a consultation
func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r)
	if err != nil {
		writeError(w, errors.BadRequest("invalid consultation ID"))
		return
	}

	c, err := h.repo.Get(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}

	var req UpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, errors.BadRequest("invalid request body"))
		return
	}

	if req.RequestingDepartment != nil {
		c.RequestingDepartment = *req.RequestingDepartment
	}
	if req.Specialty != nil {
		if *req.Specialty == "" {
			writeError(w, errors.Validation("specialty cannot be empty", nil))
			return
		}
		c.Specialty = *req.Specialty
	}
	if req.RequestingDoctorName != nil {
		c.RequestingDoctorName = *req.RequestingDoctorName
	}
	if req.Urgency != nil {
		c.Urgency = *req.Urgency
	}
	if req.Reason != nil {
		c.Reason = *req.Reason
	}

	if err := h.repo.Update(r.Context(), c); err != nil {
		writeError(w, err)
		return
	}

	h.publish(r, events.ConsultationUpdated, c)
	writeJSON(w, http.StatusOK, c)
}

// Complete marks a consultation as completed and appends the note to
// the patient's feed when the patient is known to the ward
func (h *Handler) Complete(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r)
	if err != nil {
		writeError(w, errors.BadRequest("invalid consultation ID"))
		return
	}

	c, err := h.repo.Get(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}

	var req CompleteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, errors.BadRequest("invalid request body"))
		return
	}

	user := auth.GetUser(r.Context())
	var completedBy types.ID
	if user != nil {
		completedBy = user.ID
	}

	if err := c.Complete(req.Note, completedBy, time.Now()); err != nil {
		writeError(w, errors.Precondition(err.Error()))
		return
	}

	if err := h.repo.CompleteWithNote(r.Context(), c, req.Note); err != nil {
		writeError(w, err)
		return
	}

	metrics.RecordConsultationCompleted(c.Specialty)
	h.publish(r, events.ConsultationCompleted, c)
	writeJSON(w, http.StatusOK, c)
}

// --- Helpers ---

func parseID(r *http.Request) (int64, error) {
	return strconv.ParseInt(chi.URLParam(r, "consultationID"), 10, 64)
}

func (h *Handler) publish(r *http.Request, eventType string, c *Consultation) {
	if h.bus == nil {
		return
	}

	event := events.NewEvent(eventType, "consultation", map[string]any{
		"consultation_id": c.ID,
		"mrn":             c.MRN,
		"specialty":       c.Specialty,
		"urgency":         c.Urgency,
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
