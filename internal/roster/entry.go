package roster

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/drmas001/imd-v2.8/internal/consultation"
	"github.com/drmas001/imd-v2.8/internal/shared/types"
	"github.com/drmas001/imd-v2.8/internal/ward/domain"
)

// Kind discriminates the two record types that share the roster.
type Kind string

const (
	KindAdmission    Kind = "admission"
	KindConsultation Kind = "consultation"
)

// Entry is one row of the unified roster: either an active admission
// or an active consultation, projected onto a shared display shape so
// the list renders and selects uniformly. The payload pointer for the
// other kind is nil.
//
// Entries are immutable once built. A refresh replaces the whole set
// rather than mutating rows in place, so holders of an old snapshot
// never observe partial updates.
type Entry struct {
	Kind Kind   `json:"kind"`
	Key  string `json:"key"`

	PatientName string `json:"patient_name"`
	MRN         string `json:"mrn"`
	Department  string `json:"department"`
	Detail      string `json:"detail,omitempty"`

	ShiftType domain.ShiftType `json:"shift_type"`
	IsWeekend bool             `json:"is_weekend"`

	StartedAt time.Time `json:"started_at"`

	Admission    *domain.Admission          `json:"admission,omitempty"`
	Consultation *consultation.Consultation `json:"consultation,omitempty"`
}

// AdmissionKey returns the stable roster key for an admission id.
func AdmissionKey(id types.ID) string {
	return "admission:" + id.String()
}

// ConsultationKey returns the stable roster key for a consultation id.
func ConsultationKey(id int64) string {
	return fmt.Sprintf("consultation:%d", id)
}

// AdmissionEntry projects an active admission onto the roster shape.
func AdmissionEntry(a *domain.Admission) Entry {
	return Entry{
		Kind:        KindAdmission,
		Key:         AdmissionKey(a.ID),
		PatientName: a.PatientName,
		MRN:         string(a.PatientMRN),
		Department:  a.Department,
		Detail:      a.Diagnosis,
		ShiftType:   a.ShiftType,
		IsWeekend:   a.IsWeekend,
		StartedAt:   a.AdmissionDate,
		Admission:   a,
	}
}

// ConsultationEntry projects an active consultation onto the roster
// shape. Consultations carry no shift classification of their own, so
// the shared fields default to a weekday morning.
func ConsultationEntry(c *consultation.Consultation) Entry {
	return Entry{
		Kind:         KindConsultation,
		Key:          ConsultationKey(c.ID),
		PatientName:  c.PatientName,
		MRN:          string(c.MRN),
		Department:   c.Specialty,
		Detail:       c.Reason,
		ShiftType:    domain.ShiftMorning,
		IsWeekend:    false,
		StartedAt:    c.CreatedAt,
		Consultation: c,
	}
}

// MarshalJSON adds the derived is_consultation flag the list views
// key off.
func (e Entry) MarshalJSON() ([]byte, error) {
	type alias Entry
	return json.Marshal(struct {
		alias
		IsConsultation bool `json:"is_consultation"`
	}{
		alias:          alias(e),
		IsConsultation: e.Kind == KindConsultation,
	})
}
