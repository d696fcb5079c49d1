package domain

import (
	"fmt"
	"sort"
	"time"

	"github.com/drmas001/imd-v2.8/internal/shared/types"
)

// Gender defines patient gender values accepted by the schema
type Gender string

const (
	GenderMale   Gender = "male"
	GenderFemale Gender = "female"
	GenderOther  Gender = "other"
)

// AdmissionStatus defines the lifecycle state of an admission
type AdmissionStatus string

const (
	AdmissionStatusActive      AdmissionStatus = "active"
	AdmissionStatusDischarged  AdmissionStatus = "discharged"
	AdmissionStatusTransferred AdmissionStatus = "transferred"
)

// DischargeType classifies how an admission ended
type DischargeType string

const (
	DischargeRegular  DischargeType = "regular"
	DischargeAMA      DischargeType = "against-medical-advice"
	DischargeTransfer DischargeType = "transfer"
)

// ValidDischargeType reports whether t is one of the known discharge
// classifications.
func ValidDischargeType(t DischargeType) bool {
	switch t {
	case DischargeRegular, DischargeAMA, DischargeTransfer:
		return true
	}
	return false
}

// SafetyType flags admissions needing special monitoring
type SafetyType string

const (
	SafetyEmergency   SafetyType = "emergency"
	SafetyObservation SafetyType = "observation"
	SafetyShortStay   SafetyType = "short-stay"
)

// Patient is the aggregate root: identity plus its admissions,
// most recent first.
type Patient struct {
	ID          types.ID   `json:"id"`
	MRN         types.MRN  `json:"mrn"`
	Name        string     `json:"name"`
	DateOfBirth *time.Time `json:"date_of_birth,omitempty"`
	Gender      Gender     `json:"gender,omitempty"`

	Admissions []Admission `json:"admissions"`

	// Derived state, recomputed by Reaggregate. ActiveAdmission is the
	// first admission with status active, nil when the patient has
	// none. The convenience fields prefer the active admission and
	// fall back to the most recent one, so recently discharged
	// patients still show meaningful summary values.
	ActiveAdmission *Admission `json:"active_admission,omitempty"`
	Department      string     `json:"department,omitempty"`
	Diagnosis       string     `json:"diagnosis,omitempty"`
	AdmissionDate   *time.Time `json:"admission_date,omitempty"`
	DoctorName      string     `json:"doctor_name,omitempty"`
	StayDays        int        `json:"stay_days"`
	LongStay        bool       `json:"long_stay"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Admission represents one hospital stay of a patient
type Admission struct {
	ID        types.ID `json:"id"`
	PatientID types.ID `json:"patient_id"`

	// Patient identity joined in for list and roster views
	PatientName string    `json:"patient_name,omitempty"`
	PatientMRN  types.MRN `json:"patient_mrn,omitempty"`

	VisitNumber int             `json:"visit_number"`
	Department  string          `json:"department"`
	Diagnosis   string          `json:"diagnosis,omitempty"`
	Status      AdmissionStatus `json:"status"`

	AdmissionDate time.Time  `json:"admission_date"`
	DischargeDate *time.Time `json:"discharge_date,omitempty"`

	// Shift classification computed at admission time
	ShiftType  ShiftType  `json:"shift_type"`
	IsWeekend  bool       `json:"is_weekend"`
	SafetyType SafetyType `json:"safety_type,omitempty"`

	// Weak references into the staff directory; names are joined in
	// on fetch for display
	AdmittingDoctorID   types.ID `json:"admitting_doctor_id,omitempty"`
	AdmittingDoctorName string   `json:"admitting_doctor_name,omitempty"`
	DischargeDoctorID   types.ID `json:"discharge_doctor_id,omitempty"`
	DischargeDoctorName string   `json:"discharge_doctor_name,omitempty"`

	// Discharge details, null until discharged
	DischargeType    *DischargeType `json:"discharge_type,omitempty"`
	FollowUpRequired bool           `json:"follow_up_required"`
	FollowUpDate     *time.Time     `json:"follow_up_date,omitempty"`
	DischargeNote    string         `json:"discharge_note,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewPatient creates a patient with validation
func NewPatient(mrn, name string, dateOfBirth *time.Time, gender Gender) (*Patient, error) {
	parsedMRN, err := types.ParseMRN(mrn)
	if err != nil {
		return nil, err
	}
	if name == "" {
		return nil, fmt.Errorf("patient name is required")
	}

	now := time.Now()
	return &Patient{
		ID:          types.NewID(),
		MRN:         parsedMRN,
		Name:        name,
		DateOfBirth: dateOfBirth,
		Gender:      gender,
		Admissions:  []Admission{},
		CreatedAt:   now,
		UpdatedAt:   now,
	}, nil
}

// NewAdmission creates an active admission and classifies its shift
// from the admission timestamp. The visit number is assigned by the
// repository when the row is written.
func NewAdmission(patientID types.ID, department, diagnosis string, admittedAt time.Time, admittingDoctorID types.ID) (*Admission, error) {
	if patientID.IsZero() {
		return nil, fmt.Errorf("patient is required")
	}
	if department == "" {
		return nil, fmt.Errorf("department is required")
	}
	if admittedAt.IsZero() {
		return nil, fmt.Errorf("admission date is required")
	}

	shift, weekend := ClassifyShift(admittedAt)
	now := time.Now()
	return &Admission{
		ID:                types.NewID(),
		PatientID:         patientID,
		Department:        department,
		Diagnosis:         diagnosis,
		Status:            AdmissionStatusActive,
		AdmissionDate:     admittedAt,
		ShiftType:         shift,
		IsWeekend:         weekend,
		AdmittingDoctorID: admittingDoctorID,
		CreatedAt:         now,
		UpdatedAt:         now,
	}, nil
}

// DischargeDetails carries the form payload applied when an admission
// is discharged.
type DischargeDetails struct {
	Date             time.Time
	Type             DischargeType
	FollowUpRequired bool
	FollowUpDate     *time.Time
	Note             string
	DoctorID         types.ID
}

// Discharge transitions the admission from active to discharged. The
// transition is one-shot: anything but an active admission is
// rejected.
func (a *Admission) Discharge(d DischargeDetails) error {
	if a.Status != AdmissionStatusActive {
		return fmt.Errorf("only an active admission can be discharged, current status is %s", a.Status)
	}

	a.Status = AdmissionStatusDischarged
	a.DischargeDate = &d.Date
	a.DischargeType = &d.Type
	a.FollowUpRequired = d.FollowUpRequired
	if d.FollowUpRequired {
		a.FollowUpDate = d.FollowUpDate
	} else {
		a.FollowUpDate = nil
	}
	a.DischargeNote = d.Note
	a.DischargeDoctorID = d.DoctorID
	a.UpdatedAt = time.Now()
	return nil
}

// IsActive reports whether the admission is still in progress
func (a *Admission) IsActive() bool {
	return a.Status == AdmissionStatusActive
}

// Reaggregate recomputes the patient's derived state: admissions
// sorted most recent first, the active admission selected, and the
// convenience fields filled from it (or from the latest admission
// when none is active).
func (p *Patient) Reaggregate(now time.Time) {
	sort.SliceStable(p.Admissions, func(i, j int) bool {
		return p.Admissions[i].AdmissionDate.After(p.Admissions[j].AdmissionDate)
	})

	p.ActiveAdmission = nil
	for i := range p.Admissions {
		if p.Admissions[i].IsActive() {
			p.ActiveAdmission = &p.Admissions[i]
			break
		}
	}

	display := p.displayAdmission()
	if display == nil {
		p.Department = ""
		p.Diagnosis = ""
		p.AdmissionDate = nil
		p.DoctorName = ""
		p.StayDays = 0
		p.LongStay = false
		return
	}

	p.Department = display.Department
	p.Diagnosis = display.Diagnosis
	d := display.AdmissionDate
	p.AdmissionDate = &d
	p.DoctorName = display.AdmittingDoctorName
	p.StayDays = StayDuration(display.AdmissionDate, now)
	p.LongStay = IsLongStay(display.AdmissionDate, now)
}

// displayAdmission is the admission the summary fields come from:
// the active one when it exists, otherwise the most recent.
func (p *Patient) displayAdmission() *Admission {
	if p.ActiveAdmission != nil {
		return p.ActiveAdmission
	}
	if len(p.Admissions) > 0 {
		return &p.Admissions[0]
	}
	return nil
}

// AggregatePatients reaggregates every patient in the slice against
// the same observation time.
func AggregatePatients(patients []*Patient, now time.Time) {
	for _, p := range patients {
		p.Reaggregate(now)
	}
}

// FilterLongStay returns the patients whose current stay meets the
// minimum duration. Filtering happens over already-aggregated
// patients, not in the storage layer.
func FilterLongStay(patients []*Patient, minDuration int, now time.Time) []*Patient {
	var result []*Patient
	for _, p := range patients {
		display := p.displayAdmission()
		if display == nil {
			continue
		}
		if StayDuration(display.AdmissionDate, now) >= minDuration {
			result = append(result, p)
		}
	}
	return result
}
