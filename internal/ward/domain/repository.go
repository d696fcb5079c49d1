package domain

import (
	"context"
	"time"

	"github.com/drmas001/imd-v2.8/internal/shared/types"
)

// RecentDischargeWindow is how long a discharged patient stays visible
// in the default patient list. Rows are never deleted, only hidden
// from the default view once the window passes.
const RecentDischargeWindow = 18 * time.Hour

// Repository defines the interface for patient and admission persistence
type Repository interface {
	// CreatePatientWithAdmission writes the patient and the initial
	// admission in one transaction; an orphan patient without an
	// admission must not be observable.
	CreatePatientWithAdmission(ctx context.Context, p *Patient, a *Admission) error

	FindPatientByID(ctx context.Context, id types.ID) (*Patient, error)
	FindPatientByMRN(ctx context.Context, mrn types.MRN) (*Patient, error)
	UpdatePatient(ctx context.Context, p *Patient) error

	// ListPatients fetches patients with their admissions and doctor
	// names joined in. When the filter excludes discharged patients,
	// the fetch predicate restricts to patients with at least one
	// admission that is active or discharged within the recent window.
	ListPatients(ctx context.Context, filter PatientFilter) ([]*Patient, int, error)

	// CreateAdmission writes a readmission for an existing patient,
	// assigning the next visit number inside the insert transaction.
	CreateAdmission(ctx context.Context, a *Admission) error
	FindAdmissionByID(ctx context.Context, id types.ID) (*Admission, error)
	UpdateAdmission(ctx context.Context, a *Admission) error
	ListAdmissions(ctx context.Context, filter AdmissionFilter) ([]*Admission, int, error)

	// FindActiveAdmissions is the roster query: active admissions with
	// patient identity and doctor names joined in.
	FindActiveAdmissions(ctx context.Context) ([]*Admission, error)

	// DischargeWithNote applies the admission's discharge fields and
	// appends the discharge summary note in one transaction.
	DischargeWithNote(ctx context.Context, a *Admission, noteContent string, authorID types.ID) error
}

// PatientFilter defines filters for listing patients
type PatientFilter struct {
	IncludeDischarged bool   `json:"include_discharged,omitempty"`
	Department        string `json:"department,omitempty"`
	Search            string `json:"search,omitempty"`
	Limit             int    `json:"limit,omitempty"`
	Offset            int    `json:"offset,omitempty"`
}

// AdmissionFilter defines filters for listing admissions
type AdmissionFilter struct {
	Status     *AdmissionStatus `json:"status,omitempty"`
	Department string           `json:"department,omitempty"`
	PatientID  *types.ID        `json:"patient_id,omitempty"`
	Limit      int              `json:"limit,omitempty"`
	Offset     int              `json:"offset,omitempty"`
}
