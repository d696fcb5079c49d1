package his

import (
	"context"
	"time"
)

// AdmissionRow is one admission record as the HIS stores it. Values
// are raw: department and gender are HIS codes, the MRN is unparsed.
type AdmissionRow struct {
	ExternalID  string
	MRN         string
	PatientName string
	DateOfBirth *time.Time
	GenderCode  string
	Department  string
	Diagnosis   string
	DoctorName  string
	AdmittedAt  time.Time

	// RecordedAt is when the HIS wrote the row; the import cursor
	// advances over it.
	RecordedAt time.Time
}

// DischargeRow is one discharge record as the HIS stores it
type DischargeRow struct {
	ExternalID       string
	MRN              string
	DischargeCode    string
	FollowUpRequired bool
	FollowUpDate     *time.Time
	Summary          string
	DischargedAt     time.Time
	RecordedAt       time.Time
}

// Source reads admission and discharge rows from a hospital
// information system. Implementations are read-only; nothing is ever
// written back to the HIS.
type Source interface {
	// FetchAdmissions returns admission rows recorded after since,
	// oldest first.
	FetchAdmissions(ctx context.Context, since time.Time) ([]AdmissionRow, error)

	// FetchDischarges returns discharge rows recorded after since,
	// oldest first.
	FetchDischarges(ctx context.Context, since time.Time) ([]DischargeRow, error)

	Open(ctx context.Context) error
	Close() error
	Ping(ctx context.Context) error
}
