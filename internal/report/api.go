package report

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/drmas001/imd-v2.8/internal/appointment"
	"github.com/drmas001/imd-v2.8/internal/consultation"
	"github.com/drmas001/imd-v2.8/internal/shared/errors"
	"github.com/drmas001/imd-v2.8/internal/shared/metrics"
	"github.com/drmas001/imd-v2.8/internal/ward/domain"
)

// Handler fetches the collections a report covers, then hands them to
// the stateless builders.
type Handler struct {
	ward    domain.Repository
	consult *consultation.Repository
	appts   *appointment.Repository
}

func NewHandler(ward domain.Repository, consult *consultation.Repository, appts *appointment.Repository) *Handler {
	return &Handler{ward: ward, consult: consult, appts: appts}
}

func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Get("/daily", h.Daily)
	r.Get("/long-stay", h.LongStay)

	return r
}

// Daily generates the daily ward report
func (h *Handler) Daily(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	date := time.Now().UTC()
	if raw := q.Get("date"); raw != "" {
		parsed, err := time.Parse("2006-01-02", raw)
		if err != nil {
			writeError(w, errors.Validation("invalid date", map[string]string{"date": "use YYYY-MM-DD"}))
			return
		}
		date = parsed
	}
	specialty := q.Get("specialty")

	dayStart := time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, time.UTC)
	dayEnd := dayStart.Add(24 * time.Hour)

	admissions, err := h.ward.FindActiveAdmissions(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	if specialty != "" {
		filtered := admissions[:0]
		for _, a := range admissions {
			if a.Department == specialty {
				filtered = append(filtered, a)
			}
		}
		admissions = filtered
	}

	consultations, _, err := h.consult.List(r.Context(), consultation.ListFilter{
		Specialty: specialty,
		From:      &dayStart,
		To:        &dayEnd,
		Limit:     100,
	})
	if err != nil {
		writeError(w, err)
		return
	}

	appointments, _, err := h.appts.List(r.Context(), appointment.ListFilter{
		From:  &dayStart,
		To:    &dayEnd,
		Limit: 100,
	})
	if err != nil {
		writeError(w, err)
		return
	}

	doc := DailyReport(admissions, consultations, appointments, date, specialty, time.Now())
	metrics.RecordReportGenerated("daily")
	respond(w, q.Get("format"), doc)
}

// LongStay generates the long-stay report
func (h *Handler) LongStay(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	minDuration := domain.LongStayThreshold
	if raw := q.Get("min_duration"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			writeError(w, errors.Validation("invalid min_duration", map[string]string{"min_duration": "must be a non-negative integer"}))
			return
		}
		minDuration = parsed
	}

	admissions, err := h.ward.FindActiveAdmissions(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}

	now := time.Now()
	longStay := admissions[:0]
	for _, a := range admissions {
		if domain.StayDuration(a.AdmissionDate, now) >= minDuration {
			longStay = append(longStay, a)
		}
	}

	doc := LongStayReport(longStay, minDuration, now)
	metrics.RecordReportGenerated("long_stay")
	respond(w, q.Get("format"), doc)
}

func respond(w http.ResponseWriter, format string, doc Document) {
	if format == "text" {
		text, err := RenderText(doc)
		if err != nil {
			writeError(w, errors.Internal(err))
			return
		}
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(text))
		return
	}
	writeJSON(w, http.StatusOK, doc)
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
