package appointment

import (
	"fmt"
	"time"

	"github.com/drmas001/imd-v2.8/internal/shared/types"
)

// Status defines the lifecycle state of an appointment
type Status string

const (
	StatusScheduled Status = "scheduled"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
	StatusNoShow    Status = "no-show"
)

// Appointment is an outpatient clinic booking, typically a follow-up
// after discharge. Like consultations it is keyed by MRN so bookings
// survive even when the patient record is absent.
type Appointment struct {
	ID          types.ID  `json:"id"`
	PatientName string    `json:"patient_name"`
	MRN         types.MRN `json:"mrn"`
	DoctorID    types.ID  `json:"doctor_id,omitempty"`
	DoctorName  string    `json:"doctor_name,omitempty"`
	Specialty   string    `json:"specialty"`
	ScheduledAt time.Time `json:"scheduled_at"`
	Status      Status    `json:"status"`
	Notes       string    `json:"notes,omitempty"`
	CreatedBy   types.ID  `json:"created_by,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// New creates a scheduled appointment
func New(patientName, mrn, specialty string, scheduledAt time.Time) (*Appointment, error) {
	parsedMRN, err := types.ParseMRN(mrn)
	if err != nil {
		return nil, err
	}
	if patientName == "" {
		return nil, fmt.Errorf("patient name is required")
	}
	if specialty == "" {
		return nil, fmt.Errorf("specialty is required")
	}
	if scheduledAt.IsZero() {
		return nil, fmt.Errorf("scheduled time is required")
	}

	return &Appointment{
		ID:          types.NewID(),
		PatientName: patientName,
		MRN:         parsedMRN,
		Specialty:   specialty,
		ScheduledAt: scheduledAt,
		Status:      StatusScheduled,
	}, nil
}

// Transition moves the appointment to a terminal state. Only scheduled
// appointments can transition.
func (a *Appointment) Transition(to Status) error {
	if a.Status != StatusScheduled {
		return fmt.Errorf("appointment is already %s", a.Status)
	}
	switch to {
	case StatusCompleted, StatusCancelled, StatusNoShow:
		a.Status = to
		return nil
	default:
		return fmt.Errorf("invalid transition to %q", to)
	}
}

// CreateRequest is the request to create an appointment
type CreateRequest struct {
	PatientName string    `json:"patient_name"`
	MRN         string    `json:"mrn"`
	DoctorID    types.ID  `json:"doctor_id,omitempty"`
	Specialty   string    `json:"specialty"`
	ScheduledAt time.Time `json:"scheduled_at"`
	Notes       string    `json:"notes,omitempty"`
}

// UpdateRequest is the request to update an appointment
type UpdateRequest struct {
	DoctorID    *types.ID  `json:"doctor_id,omitempty"`
	ScheduledAt *time.Time `json:"scheduled_at,omitempty"`
	Status      *Status    `json:"status,omitempty"`
	Notes       *string    `json:"notes,omitempty"`
}

// ListFilter defines filters for listing appointments
type ListFilter struct {
	Status   *Status    `json:"status,omitempty"`
	DoctorID *types.ID  `json:"doctor_id,omitempty"`
	MRN      string     `json:"mrn,omitempty"`
	From     *time.Time `json:"from,omitempty"`
	To       *time.Time `json:"to,omitempty"`
	Limit    int        `json:"limit,omitempty"`
	Offset   int        `json:"offset,omitempty"`
}
