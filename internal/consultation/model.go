package consultation

import (
	"fmt"
	"time"

	"github.com/drmas001/imd-v2.8/internal/shared/types"
)

// Urgency defines how quickly a consultation must be answered
type Urgency string

const (
	UrgencyRoutine   Urgency = "routine"
	UrgencyUrgent    Urgency = "urgent"
	UrgencyEmergency Urgency = "emergency"
)

// Status defines the lifecycle state of a consultation
type Status string

const (
	StatusActive    Status = "active"
	StatusCompleted Status = "completed"
)

// Consultation is a specialty review requested for a patient. It is a
// standalone record keyed by MRN, so requests for patients who were
// never admitted to the ward are representable. Patient demographics
// are denormalized onto the row at request time.
type Consultation struct {
	ID                   int64     `json:"id"`
	PatientName          string    `json:"patient_name"`
	MRN                  types.MRN `json:"mrn"`
	Age                  *int      `json:"age,omitempty"`
	Gender               string    `json:"gender,omitempty"`
	RequestingDepartment string    `json:"requesting_department,omitempty"`
	Specialty            string    `json:"specialty"`
	RequestingDoctorName string    `json:"requesting_doctor_name,omitempty"`
	Urgency              Urgency   `json:"urgency"`
	Reason               string    `json:"reason,omitempty"`
	Status               Status    `json:"status"`

	CompletionNote  string     `json:"completion_note,omitempty"`
	CompletedBy     types.ID   `json:"completed_by,omitempty"`
	CompletedByName string     `json:"completed_by_name,omitempty"`
	CompletedAt     *time.Time `json:"completed_at,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// New creates an active consultation request
func New(patientName, mrn, specialty string) (*Consultation, error) {
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

	return &Consultation{
		PatientName: patientName,
		MRN:         parsedMRN,
		Specialty:   specialty,
		Urgency:     UrgencyRoutine,
		Status:      StatusActive,
	}, nil
}

// Complete transitions the consultation to completed. The transition
// is one-shot.
func (c *Consultation) Complete(note string, completedBy types.ID, at time.Time) error {
	if c.Status != StatusActive {
		return fmt.Errorf("only an active consultation can be completed, current status is %s", c.Status)
	}

	c.Status = StatusCompleted
	c.CompletionNote = note
	c.CompletedBy = completedBy
	c.CompletedAt = &at
	return nil
}

// IsActive reports whether the consultation is still awaiting review
func (c *Consultation) IsActive() bool {
	return c.Status == StatusActive
}

// CreateRequest is the request to create a consultation
type CreateRequest struct {
	PatientName          string  `json:"patient_name"`
	MRN                  string  `json:"mrn"`
	Age                  *int    `json:"age,omitempty"`
	Gender               string  `json:"gender,omitempty"`
	RequestingDepartment string  `json:"requesting_department,omitempty"`
	Specialty            string  `json:"specialty"`
	RequestingDoctorName string  `json:"requesting_doctor_name,omitempty"`
	Urgency              Urgency `json:"urgency,omitempty"`
	Reason               string  `json:"reason,omitempty"`
}

// UpdateRequest is the request to update a consultation
type UpdateRequest struct {
	RequestingDepartment *string  `json:"requesting_department,omitempty"`
	Specialty            *string  `json:"specialty,omitempty"`
	RequestingDoctorName *string  `json:"requesting_doctor_name,omitempty"`
	Urgency              *Urgency `json:"urgency,omitempty"`
	Reason               *string  `json:"reason,omitempty"`
}

// CompleteRequest is the request to complete a consultation
type CompleteRequest struct {
	Note string `json:"note"`
}

// ListFilter defines filters for listing consultations
type ListFilter struct {
	Status    *Status    `json:"status,omitempty"`
	Specialty string     `json:"specialty,omitempty"`
	MRN       string     `json:"mrn,omitempty"`
	Urgency   *Urgency   `json:"urgency,omitempty"`
	Search    string     `json:"search,omitempty"`
	From      *time.Time `json:"from,omitempty"`
	To        *time.Time `json:"to,omitempty"`
	Limit     int        `json:"limit,omitempty"`
	Offset    int        `json:"offset,omitempty"`
}
