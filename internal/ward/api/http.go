package api

import (
	"context"
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
	"github.com/drmas001/imd-v2.8/internal/ward/domain"
)

// Handler provides HTTP handlers for patients and admissions
type Handler struct {
	repo domain.Repository
	bus  events.EventBus
}

// NewHandler creates a new ward handler
func NewHandler(repo domain.Repository, bus events.EventBus) *Handler {
	return &Handler{repo: repo, bus: bus}
}

// PatientRoutes registers the patient routes. The notes router is
// mounted under each patient so the feed lives at
// /patients/{patientID}/notes.
func (h *Handler) PatientRoutes(notes http.Handler) chi.Router {
	r := chi.NewRouter()

	r.Get("/", h.ListPatients)
	r.Post("/", h.CreatePatient)
	r.Get("/mrn/{mrn}", h.GetPatientByMRN)

	r.Route("/{patientID}", func(r chi.Router) {
		r.Get("/", h.GetPatient)
		r.Put("/", h.UpdatePatient)
		r.Post("/admissions", h.CreateAdmission)

		if notes != nil {
			r.Mount("/notes", notes)
		}
	})

	return r
}

// AdmissionRoutes registers the admission routes
func (h *Handler) AdmissionRoutes() chi.Router {
	r := chi.NewRouter()

	r.Get("/", h.ListAdmissions)

	r.Route("/{admissionID}", func(r chi.Router) {
		r.Get("/", h.GetAdmission)
		r.Put("/", h.UpdateAdmission)
	})

	return r
}

// --- Request/Response types ---

type CreatePatientRequest struct {
	MRN         string                 `json:"mrn"`
	Name        string                 `json:"name"`
	DateOfBirth *time.Time             `json:"date_of_birth,omitempty"`
	Gender      domain.Gender          `json:"gender,omitempty"`
	Admission   CreateAdmissionRequest `json:"admission"`
}

type CreateAdmissionRequest struct {
	Department    string            `json:"department"`
	Diagnosis     string            `json:"diagnosis,omitempty"`
	AdmissionDate *time.Time        `json:"admission_date,omitempty"`
	SafetyType    domain.SafetyType `json:"safety_type,omitempty"`
}

type UpdatePatientRequest struct {
	Name        *string        `json:"name,omitempty"`
	DateOfBirth *time.Time     `json:"date_of_birth,omitempty"`
	Gender      *domain.Gender `json:"gender,omitempty"`
}

type UpdateAdmissionRequest struct {
	Department *string            `json:"department,omitempty"`
	Diagnosis  *string            `json:"diagnosis,omitempty"`
	SafetyType *domain.SafetyType `json:"safety_type,omitempty"`
}

// --- Patient handlers ---

// ListPatients returns aggregated patients. The default view shows
// active patients plus recent discharges; min_stay narrows the result
// to long-stay candidates after aggregation.
func (h *Handler) ListPatients(w http.ResponseWriter, r *http.Request) {
	filter := domain.PatientFilter{
		Department: r.URL.Query().Get("department"),
		Search:     r.URL.Query().Get("search"),
	}
	filter.IncludeDischarged = r.URL.Query().Get("include_discharged") == "true"

	if l := r.URL.Query().Get("limit"); l != "" {
		filter.Limit, _ = strconv.Atoi(l)
	}
	if o := r.URL.Query().Get("offset"); o != "" {
		filter.Offset, _ = strconv.Atoi(o)
	}

	patients, total, err := h.repo.ListPatients(r.Context(), filter)
	if err != nil {
		writeError(w, err)
		return
	}

	now := time.Now()
	domain.AggregatePatients(patients, now)

	if m := r.URL.Query().Get("min_stay"); m != "" {
		minDuration, err := strconv.Atoi(m)
		if err != nil || minDuration < 0 {
			writeError(w, errors.BadRequest("invalid min_stay"))
			return
		}
		patients = domain.FilterLongStay(patients, minDuration, now)
		total = len(patients)
	}

	if patients == nil {
		patients = []*domain.Patient{}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"data":  patients,
		"total": total,
	})
}

func (h *Handler) GetPatient(w http.ResponseWriter, r *http.Request) {
	id, err := types.ParseID(chi.URLParam(r, "patientID"))
	if err != nil {
		writeError(w, errors.BadRequest("invalid patient ID"))
		return
	}

	p, err := h.repo.FindPatientByID(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}

	p.Reaggregate(time.Now())
	writeJSON(w, http.StatusOK, p)
}

func (h *Handler) GetPatientByMRN(w http.ResponseWriter, r *http.Request) {
	mrn, err := types.ParseMRN(chi.URLParam(r, "mrn"))
	if err != nil {
		writeError(w, errors.BadRequest("invalid MRN"))
		return
	}

	p, err := h.repo.FindPatientByMRN(r.Context(), mrn)
	if err != nil {
		writeError(w, err)
		return
	}

	p.Reaggregate(time.Now())
	writeJSON(w, http.StatusOK, p)
}

// CreatePatient registers a patient together with the first admission.
// The pair is written in one transaction so a patient is never
// observable without an admission.
func (h *Handler) CreatePatient(w http.ResponseWriter, r *http.Request) {
	var req CreatePatientRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, errors.BadRequest("invalid request body"))
		return
	}

	p, err := domain.NewPatient(req.MRN, req.Name, req.DateOfBirth, req.Gender)
	if err != nil {
		writeError(w, errors.Validation(err.Error(), nil))
		return
	}

	user := auth.GetUser(r.Context())
	var doctorID types.ID
	var doctorName string
	if user != nil {
		doctorID = user.ID
		doctorName = user.Name
	}

	admittedAt := time.Now()
	if req.Admission.AdmissionDate != nil {
		admittedAt = *req.Admission.AdmissionDate
	}

	a, err := domain.NewAdmission(p.ID, req.Admission.Department, req.Admission.Diagnosis, admittedAt, doctorID)
	if err != nil {
		writeError(w, errors.Validation(err.Error(), nil))
		return
	}
	a.SafetyType = req.Admission.SafetyType
	a.AdmittingDoctorName = doctorName

	if err := h.repo.CreatePatientWithAdmission(r.Context(), p, a); err != nil {
		writeError(w, err)
		return
	}

	metrics.RecordAdmission(a.Department, string(a.ShiftType))
	h.publish(r.Context(), events.PatientCreated, map[string]any{
		"patient_id": p.ID,
		"mrn":        p.MRN,
		"name":       p.Name,
	})
	h.publish(r.Context(), events.AdmissionCreated, map[string]any{
		"admission_id": a.ID,
		"patient_id":   p.ID,
		"mrn":          p.MRN,
		"department":   a.Department,
		"visit_number": a.VisitNumber,
	})

	p.Admissions = []domain.Admission{*a}
	p.Reaggregate(time.Now())
	writeJSON(w, http.StatusCreated, p)
}

func (h *Handler) UpdatePatient(w http.ResponseWriter, r *http.Request) {
	id, err := types.ParseID(chi.URLParam(r, "patientID"))
	if err != nil {
		writeError(w, errors.BadRequest("invalid patient ID"))
		return
	}

	p, err := h.repo.FindPatientByID(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}

	var req UpdatePatientRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, errors.BadRequest("invalid request body"))
		return
	}

	if req.Name != nil {
		if *req.Name == "" {
			writeError(w, errors.Validation("patient name cannot be empty", nil))
			return
		}
		p.Name = *req.Name
	}
	if req.DateOfBirth != nil {
		p.DateOfBirth = req.DateOfBirth
	}
	if req.Gender != nil {
		p.Gender = *req.Gender
	}

	if err := h.repo.UpdatePatient(r.Context(), p); err != nil {
		writeError(w, err)
		return
	}

	h.publish(r.Context(), events.PatientUpdated, map[string]any{
		"patient_id": p.ID,
		"mrn":        p.MRN,
	})

	p.Reaggregate(time.Now())
	writeJSON(w, http.StatusOK, p)
}

// CreateAdmission readmits an existing patient. A patient with an
// active admission cannot be readmitted.
func (h *Handler) CreateAdmission(w http.ResponseWriter, r *http.Request) {
	id, err := types.ParseID(chi.URLParam(r, "patientID"))
	if err != nil {
		writeError(w, errors.BadRequest("invalid patient ID"))
		return
	}

	p, err := h.repo.FindPatientByID(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}

	for i := range p.Admissions {
		if p.Admissions[i].IsActive() {
			writeError(w, errors.Conflict("patient already has an active admission"))
			return
		}
	}

	var req CreateAdmissionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, errors.BadRequest("invalid request body"))
		return
	}

	user := auth.GetUser(r.Context())
	var doctorID types.ID
	var doctorName string
	if user != nil {
		doctorID = user.ID
		doctorName = user.Name
	}

	admittedAt := time.Now()
	if req.AdmissionDate != nil {
		admittedAt = *req.AdmissionDate
	}

	a, err := domain.NewAdmission(p.ID, req.Department, req.Diagnosis, admittedAt, doctorID)
	if err != nil {
		writeError(w, errors.Validation(err.Error(), nil))
		return
	}
	a.SafetyType = req.SafetyType
	a.AdmittingDoctorName = doctorName
	a.PatientName = p.Name
	a.PatientMRN = p.MRN

	if err := h.repo.CreateAdmission(r.Context(), a); err != nil {
		writeError(w, err)
		return
	}

	metrics.RecordAdmission(a.Department, string(a.ShiftType))
	h.publish(r.Context(), events.AdmissionCreated, map[string]any{
		"admission_id": a.ID,
		"patient_id":   p.ID,
		"mrn":          p.MRN,
		"department":   a.Department,
		"visit_number": a.VisitNumber,
	})

	writeJSON(w, http.StatusCreated, a)
}

// --- Admission handlers ---

func (h *Handler) ListAdmissions(w http.ResponseWriter, r *http.Request) {
	filter := domain.AdmissionFilter{
		Department: r.URL.Query().Get("department"),
	}

	if s := r.URL.Query().Get("status"); s != "" {
		status := domain.AdmissionStatus(s)
		filter.Status = &status
	}
	if p := r.URL.Query().Get("patient_id"); p != "" {
		patientID, err := types.ParseID(p)
		if err != nil {
			writeError(w, errors.BadRequest("invalid patient_id"))
			return
		}
		filter.PatientID = &patientID
	}
	if l := r.URL.Query().Get("limit"); l != "" {
		filter.Limit, _ = strconv.Atoi(l)
	}
	if o := r.URL.Query().Get("offset"); o != "" {
		filter.Offset, _ = strconv.Atoi(o)
	}

	admissions, total, err := h.repo.ListAdmissions(r.Context(), filter)
	if err != nil {
		writeError(w, err)
		return
	}

	if admissions == nil {
		admissions = []*domain.Admission{}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"data":  admissions,
		"total": total,
	})
}

func (h *Handler) GetAdmission(w http.ResponseWriter, r *http.Request) {
	id, err := types.ParseID(chi.URLParam(r, "admissionID"))
	if err != nil {
		writeError(w, errors.BadRequest("invalid admission ID"))
		return
	}

	a, err := h.repo.FindAdmissionByID(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, a)
}

// UpdateAdmission updates the clinical fields of an admission. Status
// transitions go through the discharge workflow, not through here.
func (h *Handler) UpdateAdmission(w http.ResponseWriter, r *http.Request) {
	id, err := types.ParseID(chi.URLParam(r, "admissionID"))
	if err != nil {
		writeError(w, errors.BadRequest("invalid admission ID"))
		return
	}

	a, err := h.repo.FindAdmissionByID(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}

	var req UpdateAdmissionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, errors.BadRequest("invalid request body"))
		return
	}

	if req.Department != nil {
		if *req.Department == "" {
			writeError(w, errors.Validation("department cannot be empty", nil))
			return
		}
		a.Department = *req.Department
	}
	if req.Diagnosis != nil {
		a.Diagnosis = *req.Diagnosis
	}
	if req.SafetyType != nil {
		a.SafetyType = *req.SafetyType
	}

	if err := h.repo.UpdateAdmission(r.Context(), a); err != nil {
		writeError(w, err)
		return
	}

	h.publish(r.Context(), events.AdmissionUpdated, map[string]any{
		"admission_id": a.ID,
		"patient_id":   a.PatientID,
		"department":   a.Department,
	})

	writeJSON(w, http.StatusOK, a)
}

// --- Helpers ---

func (h *Handler) publish(ctx context.Context, eventType string, data map[string]any) {
	if h.bus == nil {
		return
	}

	event := events.NewEvent(eventType, "ward", data)
	if user := auth.GetUser(ctx); user != nil {
		event = event.WithActor(user.ID, "staff", user.Name)
	}

	h.bus.Publish(ctx, event)
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
