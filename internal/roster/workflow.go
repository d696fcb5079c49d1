package roster

import (
	"context"
	"log"
	"strings"
	"time"

	"github.com/drmas001/imd-v2.8/internal/consultation"
	"github.com/drmas001/imd-v2.8/internal/shared/auth"
	"github.com/drmas001/imd-v2.8/internal/shared/errors"
	"github.com/drmas001/imd-v2.8/internal/shared/events"
	"github.com/drmas001/imd-v2.8/internal/shared/metrics"
	"github.com/drmas001/imd-v2.8/internal/shared/types"
	"github.com/drmas001/imd-v2.8/internal/ward/domain"
)

// Workflow closes out the selected roster entry. Admissions are
// discharged, consultations are completed; both paths write the
// closing note in the same transaction as the status change, then
// clear the selection and announce the change on the bus.
type Workflow struct {
	service *Service
	ward    WardSource
	consult ConsultationSource
	bus     events.EventBus
}

func NewWorkflow(service *Service, ward WardSource, consult ConsultationSource, bus events.EventBus) *Workflow {
	return &Workflow{service: service, ward: ward, consult: consult, bus: bus}
}

// DischargeRequest is the closing form. For consultations only Date
// and Note apply; the discharge classification fields are ignored.
type DischargeRequest struct {
	Date             *time.Time           `json:"date,omitempty"`
	DischargeType    domain.DischargeType `json:"discharge_type,omitempty"`
	FollowUpRequired bool                 `json:"follow_up_required,omitempty"`
	FollowUpDate     *time.Time           `json:"follow_up_date,omitempty"`
	Note             string               `json:"note"`
}

// Result reports which record the workflow closed.
type Result struct {
	Kind         Kind                       `json:"kind"`
	Admission    *domain.Admission          `json:"admission,omitempty"`
	Consultation *consultation.Consultation `json:"consultation,omitempty"`
}

// Discharge runs the workflow against the user's selected entry.
// Preconditions (an authenticated user, a current selection) and form
// validation are checked before any storage write. The record is
// re-fetched by id so the transition applies to fresh state, not the
// cached roster row.
func (w *Workflow) Discharge(ctx context.Context, user *auth.User, req DischargeRequest) (*Result, error) {
	if user == nil {
		return nil, errors.Precondition("the discharge workflow requires an authenticated user")
	}
	entry, ok := w.service.Selection(user.ID)
	if !ok {
		return nil, errors.Precondition("no roster entry is selected")
	}

	note := strings.TrimSpace(req.Note)
	when := time.Now()
	if req.Date != nil {
		when = *req.Date
	}

	switch entry.Kind {
	case KindConsultation:
		if note == "" {
			return nil, errors.Validation("completion note is required", map[string]string{"note": "required"})
		}
		return w.completeConsultation(ctx, user, entry.Consultation.ID, note, when)
	default:
		if err := validateDischarge(req, note, when); err != nil {
			return nil, err
		}
		return w.dischargeAdmission(ctx, user, entry.Admission.ID, req, note, when)
	}
}

func validateDischarge(req DischargeRequest, note string, when time.Time) error {
	details := map[string]string{}
	if note == "" {
		details["note"] = "required"
	}
	if !domain.ValidDischargeType(req.DischargeType) {
		details["discharge_type"] = "must be one of regular, against-medical-advice, transfer"
	}
	if req.FollowUpRequired && req.FollowUpDate == nil {
		details["follow_up_date"] = "required when follow-up is requested"
	}
	if req.FollowUpDate != nil && req.FollowUpDate.Before(when) {
		details["follow_up_date"] = "must not precede the discharge date"
	}
	if len(details) > 0 {
		return errors.Validation("discharge form is incomplete", details)
	}
	return nil
}

func (w *Workflow) dischargeAdmission(ctx context.Context, user *auth.User, id types.ID, req DischargeRequest, note string, when time.Time) (*Result, error) {
	a, err := w.ward.FindAdmissionByID(ctx, id)
	if err != nil {
		return nil, err
	}

	err = a.Discharge(domain.DischargeDetails{
		Date:             when,
		Type:             req.DischargeType,
		FollowUpRequired: req.FollowUpRequired,
		FollowUpDate:     req.FollowUpDate,
		Note:             note,
		DoctorID:         user.ID,
	})
	if err != nil {
		return nil, errors.Precondition(err.Error())
	}

	if err := w.ward.DischargeWithNote(ctx, a, note, user.ID); err != nil {
		return nil, err
	}

	w.service.ClearSelection(user.ID)
	metrics.RecordDischarge(string(req.DischargeType))

	if err := w.publish(ctx, events.AdmissionDischarged, user, a); err != nil {
		return nil, w.recover(ctx, err)
	}
	return &Result{Kind: KindAdmission, Admission: a}, nil
}

func (w *Workflow) completeConsultation(ctx context.Context, user *auth.User, id int64, note string, when time.Time) (*Result, error) {
	c, err := w.consult.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if err := c.Complete(note, user.ID, when); err != nil {
		return nil, errors.Precondition(err.Error())
	}
	if err := w.consult.CompleteWithNote(ctx, c, note); err != nil {
		return nil, err
	}

	w.service.ClearSelection(user.ID)
	metrics.RecordConsultationCompleted(c.Specialty)

	if err := w.publish(ctx, events.ConsultationCompleted, user, c); err != nil {
		return nil, w.recover(ctx, err)
	}
	return &Result{Kind: KindConsultation, Consultation: c}, nil
}

// recover handles a publish failure after the durable write landed:
// the roster would never hear about the change, so refresh it directly
// and report the partial failure.
func (w *Workflow) recover(ctx context.Context, cause error) error {
	log.Printf("Warning: record closed but event publish failed: %v", cause)
	if err := w.service.Refresh(ctx, "recovery"); err != nil {
		log.Printf("Warning: recovery refresh failed: %v", err)
	}
	return errors.PartialFailure(cause, "the record was closed but dependent updates failed")
}

func (w *Workflow) publish(ctx context.Context, eventType string, user *auth.User, data any) error {
	if w.bus == nil {
		return nil
	}
	event := events.NewEvent(eventType, "roster", data).WithActor(user.ID, "staff", user.Name)
	return w.bus.Publish(ctx, event)
}
