package his

import (
	"context"
	"testing"
	"time"

	"github.com/drmas001/imd-v2.8/internal/shared/config"
	"github.com/drmas001/imd-v2.8/internal/shared/errors"
	"github.com/drmas001/imd-v2.8/internal/shared/events"
	"github.com/drmas001/imd-v2.8/internal/shared/types"
	"github.com/drmas001/imd-v2.8/internal/ward/domain"
)

// fakeWard is an in-memory stand-in for the ward repository. Reads
// rebuild the patient from stored admissions the way a storage fetch
// would.
type fakeWard struct {
	patients   map[types.MRN]*domain.Patient
	admissions map[types.ID]*domain.Admission
}

func newFakeWard() *fakeWard {
	return &fakeWard{
		patients:   make(map[types.MRN]*domain.Patient),
		admissions: make(map[types.ID]*domain.Admission),
	}
}

func (f *fakeWard) CreatePatientWithAdmission(ctx context.Context, p *domain.Patient, a *domain.Admission) error {
	if _, exists := f.patients[p.MRN]; exists {
		return errors.Conflict("a patient with this MRN already exists")
	}
	if _, exists := f.admissions[a.ID]; exists {
		return errors.Conflict("admission already exists")
	}
	stored := *p
	f.patients[p.MRN] = &stored
	a.VisitNumber = 1
	storedAdm := *a
	f.admissions[a.ID] = &storedAdm
	return nil
}

func (f *fakeWard) FindPatientByMRN(ctx context.Context, mrn types.MRN) (*domain.Patient, error) {
	stored, ok := f.patients[mrn]
	if !ok {
		return nil, errors.NotFound("patient", mrn.String())
	}

	patient := *stored
	patient.Admissions = nil
	for _, a := range f.admissions {
		if a.PatientID == patient.ID {
			patient.Admissions = append(patient.Admissions, *a)
		}
	}
	patient.Reaggregate(time.Now())
	return &patient, nil
}

func (f *fakeWard) FindPatientByID(ctx context.Context, id types.ID) (*domain.Patient, error) {
	for _, stored := range f.patients {
		if stored.ID == id {
			return f.FindPatientByMRN(ctx, stored.MRN)
		}
	}
	return nil, errors.NotFound("patient", id.String())
}

func (f *fakeWard) UpdatePatient(ctx context.Context, p *domain.Patient) error {
	stored, ok := f.patients[p.MRN]
	if !ok {
		return errors.NotFound("patient", p.ID.String())
	}
	*stored = *p
	return nil
}

func (f *fakeWard) ListPatients(ctx context.Context, filter domain.PatientFilter) ([]*domain.Patient, int, error) {
	return nil, 0, nil
}

func (f *fakeWard) CreateAdmission(ctx context.Context, a *domain.Admission) error {
	if _, exists := f.admissions[a.ID]; exists {
		return errors.Conflict("admission already exists")
	}
	visits := 0
	for _, stored := range f.admissions {
		if stored.PatientID == a.PatientID {
			visits++
		}
	}
	a.VisitNumber = visits + 1
	stored := *a
	f.admissions[a.ID] = &stored
	return nil
}

func (f *fakeWard) FindAdmissionByID(ctx context.Context, id types.ID) (*domain.Admission, error) {
	stored, ok := f.admissions[id]
	if !ok {
		return nil, errors.NotFound("admission", id.String())
	}
	admission := *stored
	return &admission, nil
}

func (f *fakeWard) UpdateAdmission(ctx context.Context, a *domain.Admission) error {
	stored, ok := f.admissions[a.ID]
	if !ok {
		return errors.NotFound("admission", a.ID.String())
	}
	*stored = *a
	return nil
}

func (f *fakeWard) ListAdmissions(ctx context.Context, filter domain.AdmissionFilter) ([]*domain.Admission, int, error) {
	return nil, 0, nil
}

func (f *fakeWard) FindActiveAdmissions(ctx context.Context) ([]*domain.Admission, error) {
	var active []*domain.Admission
	for _, a := range f.admissions {
		if a.Status == domain.AdmissionStatusActive {
			copied := *a
			active = append(active, &copied)
		}
	}
	return active, nil
}

func (f *fakeWard) DischargeWithNote(ctx context.Context, a *domain.Admission, noteContent string, authorID types.ID) error {
	return f.UpdateAdmission(ctx, a)
}

// fakeSource replays canned rows and records the cursors it was asked
// for
type fakeSource struct {
	admissions []AdmissionRow
	discharges []DischargeRow
	admSince   []time.Time
	disSince   []time.Time
}

func (f *fakeSource) FetchAdmissions(ctx context.Context, since time.Time) ([]AdmissionRow, error) {
	f.admSince = append(f.admSince, since)
	var rows []AdmissionRow
	for _, row := range f.admissions {
		if row.RecordedAt.After(since) {
			rows = append(rows, row)
		}
	}
	return rows, nil
}

func (f *fakeSource) FetchDischarges(ctx context.Context, since time.Time) ([]DischargeRow, error) {
	f.disSince = append(f.disSince, since)
	var rows []DischargeRow
	for _, row := range f.discharges {
		if row.RecordedAt.After(since) {
			rows = append(rows, row)
		}
	}
	return rows, nil
}

func (f *fakeSource) Open(ctx context.Context) error { return nil }
func (f *fakeSource) Close() error { return nil }
func (f *fakeSource) Ping(ctx context.Context) error { return nil }

// recordingBus captures published events
type recordingBus struct {
	published []events.Event
}

func (b *recordingBus) Publish(ctx context.Context, event events.Event) error {
	b.published = append(b.published, event)
	return nil
}

func (b *recordingBus) Subscribe(ctx context.Context, pattern, consumerName string, handler events.Handler) error {
	return nil
}

func (b *recordingBus) Close() {}
func (b *recordingBus) Health() error { return nil }

func testConfig() config.HISConfig {
	return config.HISConfig{
		Enabled:             true,
		PollIntervalSeconds: 30,
		Facility:            "IMD",
		DepartmentMap:       map[string]string{"NEUR": "Neurology", "CARD": "Cardiology"},
	}
}

func testImporter(source *fakeSource, ward *fakeWard) (*Importer, *recordingBus) {
	bus := &recordingBus{}
	return NewImporter(source, ward, bus, testConfig()), bus
}

func admissionRow(externalID, mrn string) AdmissionRow {
	return AdmissionRow{
		ExternalID:  externalID,
		MRN:         mrn,
		PatientName: "Omar Haddad",
		GenderCode:  "M",
		Department:  "NEUR",
		Diagnosis:   "Ischemic stroke",
		DoctorName:  "Dr. Salem",
		AdmittedAt:  time.Date(2024, 1, 3, 9, 0, 0, 0, time.UTC),
		RecordedAt:  time.Date(2024, 1, 3, 9, 5, 0, 0, time.UTC),
	}
}

// TestImportAdmissionCreatesPatient tests the new-patient path
func TestImportAdmissionCreatesPatient(t *testing.T) {
	ward := newFakeWard()
	importer, bus := testImporter(&fakeSource{}, ward)

	if err := importer.importAdmission(context.Background(), admissionRow("H-1001", "a100")); err != nil {
		t.Fatalf("Import failed: %v", err)
	}

	mrn, _ := types.ParseMRN("a100")
	patient, err := ward.FindPatientByMRN(context.Background(), mrn)
	if err != nil {
		t.Fatalf("Patient not created: %v", err)
	}

	if patient.Name != "Omar Haddad" {
		t.Errorf("Expected name Omar Haddad, got %s", patient.Name)
	}

	if patient.Gender != domain.GenderMale {
		t.Errorf("Expected gender male, got %s", patient.Gender)
	}

	if patient.ActiveAdmission == nil {
		t.Fatal("Expected an active admission")
	}

	if patient.ActiveAdmission.Department != "Neurology" {
		t.Errorf("Expected mapped department Neurology, got %s", patient.ActiveAdmission.Department)
	}

	wantID := types.NewDeterministicID("his-admission", "H-1001")
	if patient.ActiveAdmission.ID != wantID {
		t.Errorf("Expected deterministic admission id %s, got %s", wantID, patient.ActiveAdmission.ID)
	}

	if len(bus.published) != 2 {
		t.Fatalf("Expected 2 events, got %d", len(bus.published))
	}
	if bus.published[0].Type != events.PatientCreated {
		t.Errorf("Expected %s, got %s", events.PatientCreated, bus.published[0].Type)
	}
	if bus.published[1].Type != events.AdmissionCreated {
		t.Errorf("Expected %s, got %s", events.AdmissionCreated, bus.published[1].Type)
	}
	if bus.published[0].ActorType != "his-import" {
		t.Errorf("Expected actor type his-import, got %s", bus.published[0].ActorType)
	}
}

// TestImportAdmissionIdempotent tests that re-reading a row changes nothing
func TestImportAdmissionIdempotent(t *testing.T) {
	ward := newFakeWard()
	importer, bus := testImporter(&fakeSource{}, ward)

	row := admissionRow("H-1001", "A100")
	for i := 0; i < 3; i++ {
		if err := importer.importAdmission(context.Background(), row); err != nil {
			t.Fatalf("Import %d failed: %v", i, err)
		}
	}

	if len(ward.admissions) != 1 {
		t.Errorf("Expected 1 admission, got %d", len(ward.admissions))
	}

	if len(bus.published) != 2 {
		t.Errorf("Expected 2 events, got %d", len(bus.published))
	}
}

// TestImportAdmissionReadmission tests readmitting a known patient
func TestImportAdmissionReadmission(t *testing.T) {
	ward := newFakeWard()
	importer, bus := testImporter(&fakeSource{}, ward)
	ctx := context.Background()

	if err := importer.importAdmission(ctx, admissionRow("H-1001", "A100")); err != nil {
		t.Fatalf("First import failed: %v", err)
	}

	// Discharge the first stay, then a fresh row arrives
	discharge := DischargeRow{
		ExternalID:    "D-2001",
		MRN:           "A100",
		DischargeCode: "HOME",
		DischargedAt:  time.Date(2024, 1, 8, 12, 0, 0, 0, time.UTC),
		RecordedAt:    time.Date(2024, 1, 8, 12, 5, 0, 0, time.UTC),
	}
	if err := importer.importDischarge(ctx, discharge); err != nil {
		t.Fatalf("Discharge failed: %v", err)
	}

	second := admissionRow("H-1002", "A100")
	second.Department = "CARD"
	second.AdmittedAt = time.Date(2024, 2, 1, 10, 0, 0, 0, time.UTC)
	if err := importer.importAdmission(ctx, second); err != nil {
		t.Fatalf("Readmission failed: %v", err)
	}

	if len(ward.admissions) != 2 {
		t.Fatalf("Expected 2 admissions, got %d", len(ward.admissions))
	}

	mrn, _ := types.ParseMRN("A100")
	patient, _ := ward.FindPatientByMRN(ctx, mrn)
	if patient.ActiveAdmission == nil {
		t.Fatal("Expected an active admission after readmission")
	}
	if patient.ActiveAdmission.Department != "Cardiology" {
		t.Errorf("Expected Cardiology, got %s", patient.ActiveAdmission.Department)
	}
	if patient.ActiveAdmission.VisitNumber != 2 {
		t.Errorf("Expected visit 2, got %d", patient.ActiveAdmission.VisitNumber)
	}

	// patient.created + admission.created + admission.discharged + admission.created
	if len(bus.published) != 4 {
		t.Errorf("Expected 4 events, got %d", len(bus.published))
	}
}

// TestImportAdmissionInvalidMRN tests that a malformed row is rejected
func TestImportAdmissionInvalidMRN(t *testing.T) {
	ward := newFakeWard()
	importer, _ := testImporter(&fakeSource{}, ward)

	err := importer.importAdmission(context.Background(), admissionRow("H-1001", "??"))
	if err == nil {
		t.Fatal("Expected an error for an invalid MRN")
	}

	if len(ward.patients) != 0 {
		t.Error("Expected no patient for a rejected row")
	}
}

// TestImportDischarge tests the discharge path
func TestImportDischarge(t *testing.T) {
	ward := newFakeWard()
	importer, bus := testImporter(&fakeSource{}, ward)
	ctx := context.Background()

	if err := importer.importAdmission(ctx, admissionRow("H-1001", "A100")); err != nil {
		t.Fatalf("Import failed: %v", err)
	}

	followUp := time.Date(2024, 1, 20, 0, 0, 0, 0, time.UTC)
	row := DischargeRow{
		ExternalID:       "D-2001",
		MRN:              "A100",
		DischargeCode:    "AMA",
		FollowUpRequired: true,
		FollowUpDate:     &followUp,
		Summary:          "Left against medical advice, risks explained.",
		DischargedAt:     time.Date(2024, 1, 10, 13, 0, 0, 0, time.UTC),
		RecordedAt:       time.Date(2024, 1, 10, 13, 5, 0, 0, time.UTC),
	}

	if err := importer.importDischarge(ctx, row); err != nil {
		t.Fatalf("Discharge failed: %v", err)
	}

	admissionID := types.NewDeterministicID("his-admission", "H-1001")
	admission, err := ward.FindAdmissionByID(ctx, admissionID)
	if err != nil {
		t.Fatalf("Admission lookup failed: %v", err)
	}

	if admission.Status != domain.AdmissionStatusDischarged {
		t.Errorf("Expected discharged, got %s", admission.Status)
	}
	if admission.DischargeType == nil || *admission.DischargeType != domain.DischargeAMA {
		t.Errorf("Expected against-medical-advice, got %v", admission.DischargeType)
	}
	if !admission.FollowUpRequired {
		t.Error("Expected follow-up required")
	}
	if admission.FollowUpDate == nil || !admission.FollowUpDate.Equal(followUp) {
		t.Errorf("Expected follow-up date %s, got %v", followUp, admission.FollowUpDate)
	}
	if admission.DischargeNote != row.Summary {
		t.Errorf("Expected summary as discharge note, got %q", admission.DischargeNote)
	}

	last := bus.published[len(bus.published)-1]
	if last.Type != events.AdmissionDischarged {
		t.Errorf("Expected %s, got %s", events.AdmissionDischarged, last.Type)
	}
}

// TestImportDischargeUnknownPatient tests a discharge with no matching patient
func TestImportDischargeUnknownPatient(t *testing.T) {
	importer, _ := testImporter(&fakeSource{}, newFakeWard())

	row := DischargeRow{
		ExternalID:   "D-2001",
		MRN:          "A999",
		DischargedAt: time.Now(),
		RecordedAt:   time.Now(),
	}

	if err := importer.importDischarge(context.Background(), row); err == nil {
		t.Fatal("Expected an error for an unknown patient")
	}
}

// TestImportDischargeAlreadyDischarged tests that a stale discharge row is a no-op
func TestImportDischargeAlreadyDischarged(t *testing.T) {
	ward := newFakeWard()
	importer, bus := testImporter(&fakeSource{}, ward)
	ctx := context.Background()

	if err := importer.importAdmission(ctx, admissionRow("H-1001", "A100")); err != nil {
		t.Fatalf("Import failed: %v", err)
	}

	row := DischargeRow{
		ExternalID:    "D-2001",
		MRN:           "A100",
		DischargeCode: "HOME",
		DischargedAt:  time.Date(2024, 1, 10, 13, 0, 0, 0, time.UTC),
		RecordedAt:    time.Date(2024, 1, 10, 13, 5, 0, 0, time.UTC),
	}
	if err := importer.importDischarge(ctx, row); err != nil {
		t.Fatalf("First discharge failed: %v", err)
	}

	eventsBefore := len(bus.published)
	if err := importer.importDischarge(ctx, row); err != nil {
		t.Fatalf("Replayed discharge should be a no-op, got: %v", err)
	}

	if len(bus.published) != eventsBefore {
		t.Error("Replayed discharge should not publish events")
	}
}

// TestImportOnceAdvancesCursor tests that each poll resumes after the
// newest row it saw
func TestImportOnceAdvancesCursor(t *testing.T) {
	source := &fakeSource{
		admissions: []AdmissionRow{admissionRow("H-1001", "A100")},
	}
	ward := newFakeWard()
	importer, _ := testImporter(source, ward)

	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	importer.admissionCursor = start
	importer.dischargeCursor = start

	ctx := context.Background()
	importer.importOnce(ctx)
	importer.importOnce(ctx)

	if len(source.admSince) != 2 {
		t.Fatalf("Expected 2 polls, got %d", len(source.admSince))
	}

	if !source.admSince[0].Equal(start) {
		t.Errorf("Expected first poll from %s, got %s", start, source.admSince[0])
	}

	wantCursor := source.admissions[0].RecordedAt
	if !source.admSince[1].Equal(wantCursor) {
		t.Errorf("Expected second poll from %s, got %s", wantCursor, source.admSince[1])
	}

	if len(ward.admissions) != 1 {
		t.Errorf("Expected 1 admission after both polls, got %d", len(ward.admissions))
	}
}

// TestMapDischargeType tests disposition code normalization
func TestMapDischargeType(t *testing.T) {
	tests := []struct {
		name string
		code string
		want domain.DischargeType
	}{
		{"Home", "HOME", domain.DischargeRegular},
		{"LowercaseAMA", "ama", domain.DischargeAMA},
		{"SelfDischarge", "SELF", domain.DischargeAMA},
		{"Transfer", "TRANSFER", domain.DischargeTransfer},
		{"PaddedTransfer", " xfer ", domain.DischargeTransfer},
		{"Unknown", "DECEASED", domain.DischargeRegular},
		{"Empty", "", domain.DischargeRegular},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := mapDischargeType(tt.code); got != tt.want {
				t.Errorf("Expected %s, got %s", tt.want, got)
			}
		})
	}
}

// TestMapGender tests HIS gender code normalization
func TestMapGender(t *testing.T) {
	tests := []struct {
		name string
		code string
		want domain.Gender
	}{
		{"M", "M", domain.GenderMale},
		{"NumericFemale", "2", domain.GenderFemale},
		{"Other", "other", domain.GenderOther},
		{"Unknown", "X", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := mapGender(tt.code); got != tt.want {
				t.Errorf("Expected %q, got %q", tt.want, got)
			}
		})
	}
}
