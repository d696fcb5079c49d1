package his

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/drmas001/imd-v2.8/internal/shared/config"
	"github.com/drmas001/imd-v2.8/internal/shared/errors"
	"github.com/drmas001/imd-v2.8/internal/shared/events"
	"github.com/drmas001/imd-v2.8/internal/shared/metrics"
	"github.com/drmas001/imd-v2.8/internal/shared/types"
	"github.com/drmas001/imd-v2.8/internal/ward/domain"
)

// importActorID identifies HIS-sourced writes in events and the audit
// trail
var importActorID = types.NewDeterministicID("system", "his-importer")

// Importer polls the HIS source and mirrors its admission and
// discharge rows into the ward. Admission ids derive from the HIS row
// id, so re-reading an overlap window is idempotent.
type Importer struct {
	source      Source
	ward        domain.Repository
	bus         events.EventBus
	interval    time.Duration
	departments map[string]string

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	// Cursors hold the RecordedAt of the newest row seen per kind
	admissionCursor time.Time
	dischargeCursor time.Time
}

func NewImporter(source Source, ward domain.Repository, bus events.EventBus, cfg config.HISConfig) *Importer {
	return &Importer{
		source:      source,
		ward:        ward,
		bus:         bus,
		interval:    time.Duration(cfg.PollIntervalSeconds) * time.Second,
		departments: cfg.DepartmentMap,
	}
}

// Start opens the source and begins polling
func (im *Importer) Start(ctx context.Context) error {
	im.mu.Lock()
	defer im.mu.Unlock()

	if im.running {
		return fmt.Errorf("importer already running")
	}

	if err := im.source.Open(ctx); err != nil {
		return err
	}

	now := time.Now()
	im.admissionCursor = now.Add(-im.interval)
	im.dischargeCursor = now.Add(-im.interval)

	pollCtx, cancel := context.WithCancel(ctx)
	im.cancel = cancel
	im.running = true

	im.wg.Add(1)
	go im.pollLoop(pollCtx)

	log.Printf("HIS importer started (interval %s)", im.interval)
	return nil
}

// Stop halts polling, waits for in-flight work and closes the source
func (im *Importer) Stop(ctx context.Context) error {
	im.mu.Lock()
	defer im.mu.Unlock()

	if !im.running {
		return nil
	}

	im.cancel()

	done := make(chan struct{})
	go func() {
		im.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}

	im.running = false
	return im.source.Close()
}

// Health checks connectivity to the HIS
func (im *Importer) Health(ctx context.Context) error {
	im.mu.Lock()
	running := im.running
	im.mu.Unlock()

	if !running {
		return fmt.Errorf("importer not running")
	}
	return im.source.Ping(ctx)
}

func (im *Importer) pollLoop(ctx context.Context) {
	defer im.wg.Done()

	ticker := time.NewTicker(im.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			im.importOnce(ctx)
		}
	}
}

// importOnce runs one poll cycle. Row failures are logged and skipped;
// the cursor still advances so one bad row cannot wedge the feed.
func (im *Importer) importOnce(ctx context.Context) {
	admissions, err := im.source.FetchAdmissions(ctx, im.admissionCursor)
	if err != nil {
		log.Printf("Warning: HIS admission poll failed: %v", err)
	} else {
		imported := 0
		for _, row := range admissions {
			if err := im.importAdmission(ctx, row); err != nil {
				log.Printf("Warning: HIS admission %s skipped: %v", row.ExternalID, err)
			} else {
				imported++
			}
			if row.RecordedAt.After(im.admissionCursor) {
				im.admissionCursor = row.RecordedAt
			}
		}
		if imported > 0 {
			metrics.RecordHISImport("admission", imported)
			log.Printf("HIS import: %d of %d admission rows applied", imported, len(admissions))
		}
	}

	discharges, err := im.source.FetchDischarges(ctx, im.dischargeCursor)
	if err != nil {
		log.Printf("Warning: HIS discharge poll failed: %v", err)
		return
	}
	imported := 0
	for _, row := range discharges {
		if err := im.importDischarge(ctx, row); err != nil {
			log.Printf("Warning: HIS discharge %s skipped: %v", row.ExternalID, err)
		} else {
			imported++
		}
		if row.RecordedAt.After(im.dischargeCursor) {
			im.dischargeCursor = row.RecordedAt
		}
	}
	if imported > 0 {
		metrics.RecordHISImport("discharge", imported)
		log.Printf("HIS import: %d of %d discharge rows applied", imported, len(discharges))
	}
}

// importAdmission mirrors one HIS admission. A new patient is created
// together with the admission; a known patient gets a readmission. A
// patient already in the ward is left untouched.
func (im *Importer) importAdmission(ctx context.Context, row AdmissionRow) error {
	mrn, err := types.ParseMRN(row.MRN)
	if err != nil {
		return fmt.Errorf("invalid MRN %q: %w", row.MRN, err)
	}

	patient, err := im.ward.FindPatientByMRN(ctx, mrn)
	if err != nil && errCode(err) != "NOT_FOUND" {
		return err
	}

	if patient == nil {
		patient, err = domain.NewPatient(row.MRN, row.PatientName, row.DateOfBirth, mapGender(row.GenderCode))
		if err != nil {
			return err
		}

		admission, err := im.newAdmission(patient.ID, row)
		if err != nil {
			return err
		}

		if err := im.ward.CreatePatientWithAdmission(ctx, patient, admission); err != nil {
			if errCode(err) == "CONFLICT" {
				return nil
			}
			return err
		}

		im.publish(ctx, events.PatientCreated, map[string]any{
			"patient_id": patient.ID.String(),
			"mrn":        patient.MRN.String(),
			"name":       patient.Name,
		})
		im.publish(ctx, events.AdmissionCreated, map[string]any{
			"admission_id": admission.ID.String(),
			"patient_id":   patient.ID.String(),
			"department":   admission.Department,
		})
		return nil
	}

	if patient.ActiveAdmission != nil {
		// Already in the ward; the row is either the one that put the
		// patient there or a conflict the staff must resolve by hand
		return nil
	}

	admission, err := im.newAdmission(patient.ID, row)
	if err != nil {
		return err
	}

	if err := im.ward.CreateAdmission(ctx, admission); err != nil {
		if errCode(err) == "CONFLICT" {
			return nil
		}
		return err
	}

	im.publish(ctx, events.AdmissionCreated, map[string]any{
		"admission_id": admission.ID.String(),
		"patient_id":   patient.ID.String(),
		"department":   admission.Department,
	})
	return nil
}

func (im *Importer) newAdmission(patientID types.ID, row AdmissionRow) (*domain.Admission, error) {
	admission, err := domain.NewAdmission(patientID, im.mapDepartment(row.Department), row.Diagnosis, row.AdmittedAt, "")
	if err != nil {
		return nil, err
	}
	// Stable id per HIS row: a re-import of the same row collides
	// instead of duplicating the stay
	admission.ID = types.NewDeterministicID("his-admission", row.ExternalID)
	return admission, nil
}

// importDischarge marks the patient's active admission discharged
func (im *Importer) importDischarge(ctx context.Context, row DischargeRow) error {
	mrn, err := types.ParseMRN(row.MRN)
	if err != nil {
		return fmt.Errorf("invalid MRN %q: %w", row.MRN, err)
	}

	patient, err := im.ward.FindPatientByMRN(ctx, mrn)
	if err != nil {
		return err
	}

	admission := patient.ActiveAdmission
	if admission == nil {
		// Discharged through the ward UI before the poll caught up
		return nil
	}

	err = admission.Discharge(domain.DischargeDetails{
		Date:             row.DischargedAt,
		Type:             mapDischargeType(row.DischargeCode),
		FollowUpRequired: row.FollowUpRequired,
		FollowUpDate:     row.FollowUpDate,
		Note:             row.Summary,
	})
	if err != nil {
		return err
	}

	if err := im.ward.UpdateAdmission(ctx, admission); err != nil {
		return err
	}

	im.publish(ctx, events.AdmissionDischarged, admission)
	return nil
}

func (im *Importer) publish(ctx context.Context, eventType string, data any) {
	if im.bus == nil {
		return
	}

	event := events.NewEvent(eventType, "his", data).
		WithActor(importActorID, "his-import", "HIS Import")
	im.bus.Publish(ctx, event)
}

// mapDepartment translates a HIS department code through the
// configured mapping; unmapped codes pass through unchanged
func (im *Importer) mapDepartment(code string) string {
	name := strings.TrimSpace(code)
	if mapped, ok := im.departments[strings.ToUpper(name)]; ok {
		return mapped
	}
	return name
}

func mapGender(code string) domain.Gender {
	switch strings.ToUpper(strings.TrimSpace(code)) {
	case "M", "MALE", "1":
		return domain.GenderMale
	case "F", "FEMALE", "2":
		return domain.GenderFemale
	case "O", "OTHER", "3":
		return domain.GenderOther
	default:
		return ""
	}
}

// mapDischargeType normalizes HIS disposition codes; anything
// unrecognized counts as a regular discharge
func mapDischargeType(code string) domain.DischargeType {
	switch strings.ToUpper(strings.TrimSpace(code)) {
	case "AMA", "DAMA", "SELF":
		return domain.DischargeAMA
	case "TRANSFER", "TRANSFERRED", "XFER":
		return domain.DischargeTransfer
	default:
		return domain.DischargeRegular
	}
}

func errCode(err error) string {
	if appErr, ok := err.(*errors.AppError); ok {
		return appErr.Code
	}
	return ""
}
