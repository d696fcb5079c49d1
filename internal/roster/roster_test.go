package roster

import (
	"context"
	"encoding/json"
	"strconv"
	"testing"
	"time"

	"github.com/drmas001/imd-v2.8/internal/consultation"
	"github.com/drmas001/imd-v2.8/internal/shared/auth"
	"github.com/drmas001/imd-v2.8/internal/shared/errors"
	"github.com/drmas001/imd-v2.8/internal/shared/events"
	"github.com/drmas001/imd-v2.8/internal/shared/types"
	"github.com/drmas001/imd-v2.8/internal/ward/domain"
)

type fakeWard struct {
	admissions map[types.ID]*domain.Admission
	order      []types.ID
	notes      []string
}

func newFakeWard() *fakeWard {
	return &fakeWard{admissions: make(map[types.ID]*domain.Admission)}
}

func (f *fakeWard) add(a domain.Admission) types.ID {
	stored := a
	f.admissions[a.ID] = &stored
	f.order = append(f.order, a.ID)
	return a.ID
}

// Reads return fresh copies, the way a storage fetch would.
func (f *fakeWard) FindActiveAdmissions(ctx context.Context) ([]*domain.Admission, error) {
	var out []*domain.Admission
	for _, id := range f.order {
		if a := f.admissions[id]; a.Status == domain.AdmissionStatusActive {
			fresh := *a
			out = append(out, &fresh)
		}
	}
	return out, nil
}

func (f *fakeWard) FindAdmissionByID(ctx context.Context, id types.ID) (*domain.Admission, error) {
	a, ok := f.admissions[id]
	if !ok {
		return nil, errors.NotFound("admission", id.String())
	}
	fresh := *a
	return &fresh, nil
}

func (f *fakeWard) DischargeWithNote(ctx context.Context, a *domain.Admission, noteContent string, authorID types.ID) error {
	stored, ok := f.admissions[a.ID]
	if !ok {
		return errors.NotFound("admission", a.ID.String())
	}
	if stored.Status != domain.AdmissionStatusActive {
		return errors.Precondition("admission is not active")
	}
	*stored = *a
	if noteContent != "" {
		f.notes = append(f.notes, noteContent)
	}
	return nil
}

type fakeConsult struct {
	consultations map[int64]*consultation.Consultation
	order         []int64
	notes         []string
}

func newFakeConsult() *fakeConsult {
	return &fakeConsult{consultations: make(map[int64]*consultation.Consultation)}
}

func (f *fakeConsult) add(c consultation.Consultation) int64 {
	stored := c
	f.consultations[c.ID] = &stored
	f.order = append(f.order, c.ID)
	return c.ID
}

func (f *fakeConsult) FindActive(ctx context.Context) ([]consultation.Consultation, error) {
	var out []consultation.Consultation
	for _, id := range f.order {
		if c := f.consultations[id]; c.Status == consultation.StatusActive {
			out = append(out, *c)
		}
	}
	return out, nil
}

func (f *fakeConsult) Get(ctx context.Context, id int64) (*consultation.Consultation, error) {
	c, ok := f.consultations[id]
	if !ok {
		return nil, errors.NotFound("consultation", strconv.FormatInt(id, 10))
	}
	fresh := *c
	return &fresh, nil
}

func (f *fakeConsult) CompleteWithNote(ctx context.Context, c *consultation.Consultation, noteContent string) error {
	stored, ok := f.consultations[c.ID]
	if !ok {
		return errors.NotFound("consultation", strconv.FormatInt(c.ID, 10))
	}
	if stored.Status != consultation.StatusActive {
		return errors.Precondition("consultation is not active")
	}
	*stored = *c
	if noteContent != "" {
		f.notes = append(f.notes, noteContent)
	}
	return nil
}

func testAdmission(t *testing.T, name, mrn string) domain.Admission {
	t.Helper()
	parsedMRN, err := types.ParseMRN(mrn)
	if err != nil {
		t.Fatalf("Expected valid MRN, got %v", err)
	}
	return domain.Admission{
		ID:            types.NewID(),
		PatientID:     types.NewID(),
		PatientName:   name,
		PatientMRN:    parsedMRN,
		VisitNumber:   1,
		Department:    "Neurology",
		Diagnosis:     "Ischemic stroke",
		Status:        domain.AdmissionStatusActive,
		AdmissionDate: time.Date(2024, 1, 3, 9, 0, 0, 0, time.UTC),
		ShiftType:     domain.ShiftMorning,
	}
}

func testConsultation(t *testing.T, id int64, name, mrn string) consultation.Consultation {
	t.Helper()
	c, err := consultation.New(name, mrn, "Cardiology")
	if err != nil {
		t.Fatalf("Expected valid consultation, got %v", err)
	}
	c.ID = id
	c.Reason = "Pre-op cardiac clearance"
	c.CreatedAt = time.Date(2024, 1, 8, 11, 0, 0, 0, time.UTC)
	return *c
}

func testUser() *auth.User {
	return &auth.User{
		ID:   types.NewID(),
		Name: "Dr. Salem",
	}
}

// setupRoster wires the full in-process pipeline: fakes for storage,
// a memory bus, and the subscriber that refreshes the roster on
// change events.
func setupRoster(t *testing.T, ward *fakeWard, consult *fakeConsult) (*Service, *Workflow) {
	t.Helper()
	bus := events.NewMemoryBus()
	service := NewService(ward, consult)
	workflow := NewWorkflow(service, ward, consult, bus)
	if err := NewSubscriber(service, bus).Start(context.Background()); err != nil {
		t.Fatalf("Expected subscriber to start, got %v", err)
	}
	if err := service.Refresh(context.Background(), "startup"); err != nil {
		t.Fatalf("Expected initial refresh to succeed, got %v", err)
	}
	return service, workflow
}

func TestRefreshBuildsRoster(t *testing.T) {
	ward := newFakeWard()
	first := ward.add(testAdmission(t, "Omar Haddad", "A100"))
	second := ward.add(testAdmission(t, "Lina Aziz", "B200"))
	consult := newFakeConsult()
	consult.add(testConsultation(t, 55, "Sara Nasser", "C300"))

	service, _ := setupRoster(t, ward, consult)

	entries, refreshedAt := service.Snapshot()
	if len(entries) != 3 {
		t.Fatalf("Expected 3 roster entries, got %d", len(entries))
	}
	if refreshedAt.IsZero() {
		t.Error("Expected refreshed_at to be set")
	}

	// Admissions first in storage order, then consultations
	if entries[0].Key != AdmissionKey(first) {
		t.Errorf("Expected first entry %s, got %s", AdmissionKey(first), entries[0].Key)
	}
	if entries[1].Key != AdmissionKey(second) {
		t.Errorf("Expected second entry %s, got %s", AdmissionKey(second), entries[1].Key)
	}
	if entries[2].Key != "consultation:55" {
		t.Errorf("Expected third entry consultation:55, got %s", entries[2].Key)
	}

	if entries[0].Kind != KindAdmission || entries[0].Admission == nil {
		t.Error("Expected admission entry with payload")
	}
	if entries[2].Kind != KindConsultation || entries[2].Consultation == nil {
		t.Error("Expected consultation entry with payload")
	}
	if entries[2].ShiftType != domain.ShiftMorning || entries[2].IsWeekend {
		t.Error("Expected consultation entry to default to weekday morning")
	}
}

func TestEntryMarshalFlagsConsultations(t *testing.T) {
	ward := newFakeWard()
	ward.add(testAdmission(t, "Omar Haddad", "A100"))
	consult := newFakeConsult()
	consult.add(testConsultation(t, 55, "Sara Nasser", "C300"))

	service, _ := setupRoster(t, ward, consult)
	entries, _ := service.Snapshot()

	for _, tt := range []struct {
		name  string
		entry Entry
		want  bool
	}{
		{"admission", entries[0], false},
		{"consultation", entries[1], true},
	} {
		t.Run(tt.name, func(t *testing.T) {
			raw, err := json.Marshal(tt.entry)
			if err != nil {
				t.Fatalf("Expected marshal to succeed, got %v", err)
			}
			var decoded map[string]any
			if err := json.Unmarshal(raw, &decoded); err != nil {
				t.Fatalf("Expected valid JSON, got %v", err)
			}
			if decoded["is_consultation"] != tt.want {
				t.Errorf("Expected is_consultation %v, got %v", tt.want, decoded["is_consultation"])
			}
			if decoded["key"] != tt.entry.Key {
				t.Errorf("Expected key %s, got %v", tt.entry.Key, decoded["key"])
			}
		})
	}
}

func TestSelectUnknownKey(t *testing.T) {
	service, _ := setupRoster(t, newFakeWard(), newFakeConsult())

	_, err := service.Select(types.NewID(), "admission:missing")
	appErr, ok := err.(*errors.AppError)
	if !ok || appErr.Code != "NOT_FOUND" {
		t.Errorf("Expected NOT_FOUND, got %v", err)
	}
}

func TestSelectionClearedWhenEntryLeavesRoster(t *testing.T) {
	ward := newFakeWard()
	id := ward.add(testAdmission(t, "Omar Haddad", "A100"))
	service, _ := setupRoster(t, ward, newFakeConsult())

	user := testUser()
	if _, err := service.Select(user.ID, AdmissionKey(id)); err != nil {
		t.Fatalf("Expected selection to succeed, got %v", err)
	}

	// The admission leaves the roster behind the cache's back
	ward.admissions[id].Status = domain.AdmissionStatusDischarged
	if err := service.Refresh(context.Background(), "manual"); err != nil {
		t.Fatalf("Expected refresh to succeed, got %v", err)
	}

	if _, ok := service.Selection(user.ID); ok {
		t.Error("Expected selection to be cleared after the entry left the roster")
	}
}

func TestSelectionReplacedOnRefresh(t *testing.T) {
	ward := newFakeWard()
	id := ward.add(testAdmission(t, "Omar Haddad", "A100"))
	service, _ := setupRoster(t, ward, newFakeConsult())

	user := testUser()
	before, err := service.Select(user.ID, AdmissionKey(id))
	if err != nil {
		t.Fatalf("Expected selection to succeed, got %v", err)
	}

	if err := service.Refresh(context.Background(), "manual"); err != nil {
		t.Fatalf("Expected refresh to succeed, got %v", err)
	}

	after, ok := service.Selection(user.ID)
	if !ok {
		t.Fatal("Expected selection to survive the refresh")
	}
	if after.Key != before.Key {
		t.Errorf("Expected key %s, got %s", before.Key, after.Key)
	}
	if after.Admission == before.Admission {
		t.Error("Expected the refreshed selection to resolve to a fresh object")
	}
	if after.Admission.ID != before.Admission.ID {
		t.Error("Expected the refreshed selection to keep the same admission")
	}
}

func TestDischargeAdmission(t *testing.T) {
	ward := newFakeWard()
	id := ward.add(testAdmission(t, "Omar Haddad", "A100"))
	service, workflow := setupRoster(t, ward, newFakeConsult())

	user := testUser()
	if _, err := service.Select(user.ID, AdmissionKey(id)); err != nil {
		t.Fatalf("Expected selection to succeed, got %v", err)
	}

	dischargeDate := time.Date(2024, 1, 10, 13, 0, 0, 0, time.UTC)
	followUp := time.Date(2024, 1, 20, 0, 0, 0, 0, time.UTC)
	result, err := workflow.Discharge(context.Background(), user, DischargeRequest{
		Date:             &dischargeDate,
		DischargeType:    domain.DischargeRegular,
		FollowUpRequired: true,
		FollowUpDate:     &followUp,
		Note:             "Neurology review complete, stable for discharge.",
	})
	if err != nil {
		t.Fatalf("Expected discharge to succeed, got %v", err)
	}
	if result.Kind != KindAdmission || result.Admission == nil {
		t.Fatal("Expected an admission result")
	}

	stored := ward.admissions[id]
	if stored.Status != domain.AdmissionStatusDischarged {
		t.Errorf("Expected status discharged, got %s", stored.Status)
	}
	if stored.DischargeDate == nil || !stored.DischargeDate.Equal(dischargeDate) {
		t.Error("Expected the discharge date from the form")
	}
	if stored.FollowUpDate == nil || !stored.FollowUpDate.Equal(followUp) {
		t.Error("Expected the follow-up date from the form")
	}
	if stored.DischargeNote != "Neurology review complete, stable for discharge." {
		t.Errorf("Expected the discharge note to be recorded, got %q", stored.DischargeNote)
	}
	if stored.DischargeDoctorID != user.ID {
		t.Error("Expected the discharging doctor to be recorded")
	}
	if len(ward.notes) != 1 {
		t.Fatalf("Expected 1 note appended, got %d", len(ward.notes))
	}

	// The publish-refresh pipeline runs synchronously on the memory
	// bus, so the discharged admission is already off the roster.
	if _, ok := service.EntryByKey(AdmissionKey(id)); ok {
		t.Error("Expected the discharged admission to leave the roster")
	}
	if _, ok := service.Selection(user.ID); ok {
		t.Error("Expected the selection to be cleared")
	}
}

func TestCompleteConsultation(t *testing.T) {
	consult := newFakeConsult()
	consult.add(testConsultation(t, 55, "Sara Nasser", "C300"))
	service, workflow := setupRoster(t, newFakeWard(), consult)

	user := testUser()
	if _, err := service.Select(user.ID, "consultation:55"); err != nil {
		t.Fatalf("Expected selection to succeed, got %v", err)
	}

	result, err := workflow.Discharge(context.Background(), user, DischargeRequest{
		Note: "Reviewed, no cardiac contraindication.",
	})
	if err != nil {
		t.Fatalf("Expected completion to succeed, got %v", err)
	}
	if result.Kind != KindConsultation || result.Consultation == nil {
		t.Fatal("Expected a consultation result")
	}

	stored := consult.consultations[55]
	if stored.Status != consultation.StatusCompleted {
		t.Errorf("Expected status completed, got %s", stored.Status)
	}
	if stored.CompletionNote != "Reviewed, no cardiac contraindication." {
		t.Errorf("Expected the completion note to be recorded, got %q", stored.CompletionNote)
	}
	if stored.CompletedBy != user.ID {
		t.Error("Expected the completing doctor to be recorded")
	}
	if len(consult.notes) != 1 {
		t.Fatalf("Expected 1 note appended, got %d", len(consult.notes))
	}

	if _, ok := service.EntryByKey("consultation:55"); ok {
		t.Error("Expected the completed consultation to leave the roster")
	}
	if _, ok := service.Selection(user.ID); ok {
		t.Error("Expected the selection to be cleared")
	}
}

func TestDischargePreconditions(t *testing.T) {
	_, workflow := setupRoster(t, newFakeWard(), newFakeConsult())

	valid := DischargeRequest{DischargeType: domain.DischargeRegular, Note: "note"}

	t.Run("no user", func(t *testing.T) {
		_, err := workflow.Discharge(context.Background(), nil, valid)
		appErr, ok := err.(*errors.AppError)
		if !ok || appErr.Code != "PRECONDITION_FAILED" {
			t.Errorf("Expected PRECONDITION_FAILED, got %v", err)
		}
	})

	t.Run("no selection", func(t *testing.T) {
		_, err := workflow.Discharge(context.Background(), testUser(), valid)
		appErr, ok := err.(*errors.AppError)
		if !ok || appErr.Code != "PRECONDITION_FAILED" {
			t.Errorf("Expected PRECONDITION_FAILED, got %v", err)
		}
	})
}

func TestDischargeValidation(t *testing.T) {
	ward := newFakeWard()
	id := ward.add(testAdmission(t, "Omar Haddad", "A100"))
	service, workflow := setupRoster(t, ward, newFakeConsult())

	user := testUser()
	if _, err := service.Select(user.ID, AdmissionKey(id)); err != nil {
		t.Fatalf("Expected selection to succeed, got %v", err)
	}

	date := time.Date(2024, 1, 10, 13, 0, 0, 0, time.UTC)
	earlier := date.Add(-48 * time.Hour)

	tests := []struct {
		name      string
		req       DischargeRequest
		wantField string
	}{
		{
			name:      "missing note",
			req:       DischargeRequest{DischargeType: domain.DischargeRegular},
			wantField: "note",
		},
		{
			name:      "unknown discharge type",
			req:       DischargeRequest{DischargeType: "vanished", Note: "note"},
			wantField: "discharge_type",
		},
		{
			name:      "follow-up without date",
			req:       DischargeRequest{DischargeType: domain.DischargeRegular, FollowUpRequired: true, Note: "note"},
			wantField: "follow_up_date",
		},
		{
			name:      "follow-up before discharge",
			req:       DischargeRequest{Date: &date, DischargeType: domain.DischargeRegular, FollowUpRequired: true, FollowUpDate: &earlier, Note: "note"},
			wantField: "follow_up_date",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := workflow.Discharge(context.Background(), user, tt.req)
			appErr, ok := err.(*errors.AppError)
			if !ok || appErr.Code != "VALIDATION_ERROR" {
				t.Fatalf("Expected VALIDATION_ERROR, got %v", err)
			}
			if _, ok := appErr.Details[tt.wantField]; !ok {
				t.Errorf("Expected details for %s, got %v", tt.wantField, appErr.Details)
			}
		})
	}

	// Validation failures must not touch storage or the selection
	if ward.admissions[id].Status != domain.AdmissionStatusActive {
		t.Error("Expected the admission to remain active")
	}
	if _, ok := service.Selection(user.ID); !ok {
		t.Error("Expected the selection to survive validation failures")
	}
}

func TestDischargeStaleSelection(t *testing.T) {
	ward := newFakeWard()
	id := ward.add(testAdmission(t, "Omar Haddad", "A100"))
	service, workflow := setupRoster(t, ward, newFakeConsult())

	user := testUser()
	if _, err := service.Select(user.ID, AdmissionKey(id)); err != nil {
		t.Fatalf("Expected selection to succeed, got %v", err)
	}

	// Storage changed behind the cached roster's back
	ward.admissions[id].Status = domain.AdmissionStatusDischarged

	_, err := workflow.Discharge(context.Background(), user, DischargeRequest{
		DischargeType: domain.DischargeRegular,
		Note:          "note",
	})
	appErr, ok := err.(*errors.AppError)
	if !ok || appErr.Code != "PRECONDITION_FAILED" {
		t.Fatalf("Expected PRECONDITION_FAILED, got %v", err)
	}
	if len(ward.notes) != 0 {
		t.Error("Expected no note to be appended")
	}
}
