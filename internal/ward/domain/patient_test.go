package domain

import (
	"testing"
	"time"

	"github.com/drmas001/imd-v2.8/internal/shared/types"
)

// TestNewPatient tests patient creation and validation
func TestNewPatient(t *testing.T) {
	tests := []struct {
		name        string
		mrn         string
		patientName string
		expectError bool
	}{
		{"Valid patient", "A100", "Ahmed Hassan", false},
		{"Lowercase MRN normalized", "a100", "Ahmed Hassan", false},
		{"Missing name", "A100", "", true},
		{"Invalid MRN", "!!", "Ahmed Hassan", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := NewPatient(tt.mrn, tt.patientName, nil, GenderMale)

			if tt.expectError {
				if err == nil {
					t.Errorf("Expected error, got nil")
				}
				return
			}

			if err != nil {
				t.Errorf("Expected no error, got %v", err)
				return
			}
			if p.ID.IsZero() {
				t.Error("Expected patient ID to be set")
			}
			if p.MRN.String() != "A100" {
				t.Errorf("Expected MRN A100, got %s", p.MRN)
			}
		})
	}
}

// TestNewAdmission tests admission creation with shift classification
func TestNewAdmission(t *testing.T) {
	patientID := types.NewID()
	doctorID := types.NewID()

	// Monday 09:00 falls in the weekday morning shift
	admittedAt := time.Date(2024, 1, 8, 9, 0, 0, 0, time.UTC)

	a, err := NewAdmission(patientID, "Internal Medicine", "Pneumonia", admittedAt, doctorID)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	if a.Status != AdmissionStatusActive {
		t.Errorf("Expected status active, got %s", a.Status)
	}
	if a.ShiftType != ShiftMorning {
		t.Errorf("Expected shift morning, got %s", a.ShiftType)
	}
	if a.IsWeekend {
		t.Error("Expected weekday admission")
	}
	if a.VisitNumber != 0 {
		t.Errorf("Expected visit number unassigned, got %d", a.VisitNumber)
	}

	if _, err := NewAdmission(types.ID(""), "Internal Medicine", "", admittedAt, doctorID); err == nil {
		t.Error("Expected error for missing patient")
	}
	if _, err := NewAdmission(patientID, "", "", admittedAt, doctorID); err == nil {
		t.Error("Expected error for missing department")
	}
}

// TestAdmissionDischarge tests the one-shot discharge transition
func TestAdmissionDischarge(t *testing.T) {
	patientID := types.NewID()
	doctorID := types.NewID()
	admittedAt := time.Date(2024, 1, 8, 9, 0, 0, 0, time.UTC)

	a, err := NewAdmission(patientID, "Internal Medicine", "Pneumonia", admittedAt, doctorID)
	if err != nil {
		t.Fatalf("Failed to create admission: %v", err)
	}

	followUp := time.Date(2024, 1, 20, 0, 0, 0, 0, time.UTC)
	details := DischargeDetails{
		Date:             time.Date(2024, 1, 12, 11, 0, 0, 0, time.UTC),
		Type:             DischargeRegular,
		FollowUpRequired: true,
		FollowUpDate:     &followUp,
		Note:             "Recovered, antibiotics completed.",
		DoctorID:         doctorID,
	}

	if err := a.Discharge(details); err != nil {
		t.Fatalf("Expected discharge to succeed, got %v", err)
	}

	if a.Status != AdmissionStatusDischarged {
		t.Errorf("Expected status discharged, got %s", a.Status)
	}
	if a.DischargeDate == nil || !a.DischargeDate.Equal(details.Date) {
		t.Error("Expected discharge date to be recorded")
	}
	if a.DischargeType == nil || *a.DischargeType != DischargeRegular {
		t.Error("Expected discharge type regular")
	}
	if a.FollowUpDate == nil || !a.FollowUpDate.Equal(followUp) {
		t.Error("Expected follow-up date to be recorded")
	}
	if a.IsActive() {
		t.Error("Expected admission to no longer be active")
	}

	// Second discharge must be rejected
	if err := a.Discharge(details); err == nil {
		t.Error("Expected error discharging an already discharged admission")
	}
}

// TestDischargeClearsFollowUpDate tests that a follow-up date is
// dropped when follow-up is not required
func TestDischargeClearsFollowUpDate(t *testing.T) {
	a, err := NewAdmission(types.NewID(), "Internal Medicine", "", time.Date(2024, 1, 8, 9, 0, 0, 0, time.UTC), types.NewID())
	if err != nil {
		t.Fatalf("Failed to create admission: %v", err)
	}

	stray := time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)
	err = a.Discharge(DischargeDetails{
		Date:             time.Date(2024, 1, 10, 10, 0, 0, 0, time.UTC),
		Type:             DischargeAMA,
		FollowUpRequired: false,
		FollowUpDate:     &stray,
		DoctorID:         types.NewID(),
	})
	if err != nil {
		t.Fatalf("Expected discharge to succeed, got %v", err)
	}

	if a.FollowUpDate != nil {
		t.Error("Expected follow-up date to be cleared when follow-up is not required")
	}
}

func testPatient(t *testing.T, admissions ...Admission) *Patient {
	t.Helper()
	p, err := NewPatient("A100", "Ahmed Hassan", nil, GenderMale)
	if err != nil {
		t.Fatalf("Failed to create patient: %v", err)
	}
	p.Admissions = admissions
	return p
}

func testAdmission(t *testing.T, admittedAt time.Time, status AdmissionStatus) Admission {
	t.Helper()
	a, err := NewAdmission(types.NewID(), "Internal Medicine", "Pneumonia", admittedAt, types.NewID())
	if err != nil {
		t.Fatalf("Failed to create admission: %v", err)
	}
	a.Status = status
	if status == AdmissionStatusDischarged {
		d := admittedAt.AddDate(0, 0, 2)
		a.DischargeDate = &d
	}
	return *a
}

// TestReaggregateSortsAdmissions tests that admissions are ordered
// most recent first with the current one at index zero
func TestReaggregateSortsAdmissions(t *testing.T) {
	now := time.Date(2024, 1, 10, 12, 0, 0, 0, time.UTC)

	older := testAdmission(t, time.Date(2023, 11, 1, 9, 0, 0, 0, time.UTC), AdmissionStatusDischarged)
	middle := testAdmission(t, time.Date(2023, 12, 15, 9, 0, 0, 0, time.UTC), AdmissionStatusDischarged)
	current := testAdmission(t, time.Date(2024, 1, 8, 9, 0, 0, 0, time.UTC), AdmissionStatusActive)

	p := testPatient(t, older, current, middle)
	p.Reaggregate(now)

	if len(p.Admissions) != 3 {
		t.Fatalf("Expected 3 admissions, got %d", len(p.Admissions))
	}
	if !p.Admissions[0].AdmissionDate.Equal(current.AdmissionDate) {
		t.Error("Expected most recent admission at index 0")
	}
	if !p.Admissions[2].AdmissionDate.Equal(older.AdmissionDate) {
		t.Error("Expected oldest admission at the end")
	}

	if p.ActiveAdmission == nil {
		t.Fatal("Expected an active admission")
	}
	if p.ActiveAdmission.ID != current.ID {
		t.Error("Expected the active admission to be the current one")
	}
}

// TestReaggregateConvenienceFields tests the derived summary fields
func TestReaggregateConvenienceFields(t *testing.T) {
	now := time.Date(2024, 1, 10, 12, 0, 0, 0, time.UTC)

	current := testAdmission(t, time.Date(2024, 1, 3, 9, 0, 0, 0, time.UTC), AdmissionStatusActive)
	current.AdmittingDoctorName = "Dr. Sara Khan"

	p := testPatient(t, current)
	p.Reaggregate(now)

	if p.Department != "Internal Medicine" {
		t.Errorf("Expected department Internal Medicine, got %s", p.Department)
	}
	if p.DoctorName != "Dr. Sara Khan" {
		t.Errorf("Expected doctor name Dr. Sara Khan, got %s", p.DoctorName)
	}
	if p.StayDays != 7 {
		t.Errorf("Expected 7 stay days, got %d", p.StayDays)
	}
	if !p.LongStay {
		t.Error("Expected a 7-day stay to be flagged long stay")
	}
}

// TestReaggregateFallsBackToLatest tests that summary fields come from
// the most recent admission when none is active
func TestReaggregateFallsBackToLatest(t *testing.T) {
	now := time.Date(2024, 1, 10, 12, 0, 0, 0, time.UTC)

	older := testAdmission(t, time.Date(2023, 11, 1, 9, 0, 0, 0, time.UTC), AdmissionStatusDischarged)
	latest := testAdmission(t, time.Date(2024, 1, 5, 9, 0, 0, 0, time.UTC), AdmissionStatusDischarged)
	latest.Diagnosis = "Follow-up review"

	p := testPatient(t, older, latest)
	p.Reaggregate(now)

	if p.ActiveAdmission != nil {
		t.Error("Expected no active admission")
	}
	if p.Diagnosis != "Follow-up review" {
		t.Errorf("Expected summary from the latest admission, got diagnosis %s", p.Diagnosis)
	}
	if p.AdmissionDate == nil || !p.AdmissionDate.Equal(latest.AdmissionDate) {
		t.Error("Expected admission date from the latest admission")
	}
}

// TestReaggregateNoAdmissions tests the empty history case
func TestReaggregateNoAdmissions(t *testing.T) {
	p := testPatient(t)
	p.Reaggregate(time.Now())

	if p.ActiveAdmission != nil {
		t.Error("Expected no active admission")
	}
	if p.Department != "" || p.StayDays != 0 || p.LongStay {
		t.Error("Expected empty summary fields")
	}
}

// TestFilterLongStay tests minimum duration filtering over aggregated
// patients
func TestFilterLongStay(t *testing.T) {
	now := time.Date(2024, 1, 10, 12, 0, 0, 0, time.UTC)

	fiveDays := testPatient(t, testAdmission(t, now.AddDate(0, 0, -5), AdmissionStatusActive))
	sevenDays := testPatient(t, testAdmission(t, now.AddDate(0, 0, -7), AdmissionStatusActive))
	empty := testPatient(t)

	patients := []*Patient{fiveDays, sevenDays, empty}
	AggregatePatients(patients, now)

	result := FilterLongStay(patients, LongStayThreshold, now)

	if len(result) != 1 {
		t.Fatalf("Expected 1 patient, got %d", len(result))
	}
	if result[0] != sevenDays {
		t.Error("Expected only the 7-day patient to pass the filter")
	}
}
