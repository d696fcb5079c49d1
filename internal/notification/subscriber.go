package notification

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/drmas001/imd-v2.8/internal/shared/events"
)

// Subscriber turns discharge events into follow-up reminders
type Subscriber struct {
	service *Service
	bus     events.EventBus
}

func NewSubscriber(service *Service, bus events.EventBus) *Subscriber {
	return &Subscriber{service: service, bus: bus}
}

func (s *Subscriber) Start(ctx context.Context) error {
	err := s.bus.Subscribe(ctx, events.AdmissionDischarged, "notify-discharge-subscriber", s.handleEvent)
	if err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", events.AdmissionDischarged, err)
	}
	return nil
}

func (s *Subscriber) handleEvent(ctx context.Context, event events.Event) error {
	followUp, required := followUpFrom(event.Data)
	if !required {
		return nil
	}

	if err := s.service.Enqueue(followUp, event.ID, event.CorrelationID); err != nil {
		log.Printf("Warning: follow-up reminder for %s not queued: %v", followUp.PatientMRN, err)
		return err
	}
	return nil
}

// followUpFrom extracts the follow-up request from a discharge
// payload. Events published in this process carry the admission
// struct; events replayed from the store arrive as maps.
func followUpFrom(data any) (FollowUp, bool) {
	m := dataAsMap(data)
	if m == nil {
		return FollowUp{}, false
	}

	required, _ := m["follow_up_required"].(bool)
	if !required {
		return FollowUp{}, false
	}

	f := FollowUp{
		PatientName:  stringField(m, "patient_name"),
		PatientMRN:   stringField(m, "patient_mrn"),
		Department:   stringField(m, "department"),
		DischargedAt: timeField(m, "discharge_date"),
		FollowUpDate: timeField(m, "follow_up_date"),
	}
	return f, true
}

func dataAsMap(data any) map[string]any {
	if data == nil {
		return nil
	}
	if m, ok := data.(map[string]any); ok {
		return m
	}

	raw, err := json.Marshal(data)
	if err != nil {
		return nil
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil
	}
	return m
}

func stringField(m map[string]any, key string) string {
	s, _ := m[key].(string)
	return s
}

func timeField(m map[string]any, key string) *time.Time {
	s, _ := m[key].(string)
	if s == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return nil
	}
	return &t
}
