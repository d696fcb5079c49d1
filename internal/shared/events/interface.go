package events

import (
	"context"
	"fmt"
	"time"

	"github.com/drmas001/imd-v2.8/internal/shared/config"
)

// Named event types. Every change notification in the system is one of
// these; subscribers match them with patterns like "admission.*".
const (
	PatientCreated        = "patient.created"
	PatientUpdated        = "patient.updated"
	AdmissionCreated      = "admission.created"
	AdmissionUpdated      = "admission.updated"
	AdmissionDischarged   = "admission.discharged"
	ConsultationCreated   = "consultation.created"
	ConsultationUpdated   = "consultation.updated"
	ConsultationCompleted = "consultation.completed"
	NoteCreated           = "note.created"
	AppointmentCreated    = "appointment.created"
	AppointmentUpdated    = "appointment.updated"
)

// EventBus defines the interface for event publishing and subscription
type EventBus interface {
	// Publish publishes an event to the bus
	Publish(ctx context.Context, event Event) error

	// Subscribe creates a subscription to events matching a pattern
	Subscribe(ctx context.Context, pattern string, consumerName string, handler Handler) error

	// Close closes the event bus connection
	Close()

	// Health checks the event bus connection
	Health() error
}

// NewEventBus connects to EventStoreDB over gRPC and verifies the
// connection. Callers fall back to NewMemoryBus when this fails, so a
// single-node deployment without EventStoreDB still gets in-process
// change notifications.
func NewEventBus(ctx context.Context, cfg config.EventStoreConfig) (EventBus, error) {
	timeoutCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	bus, err := NewBus(timeoutCtx, cfg)
	if err != nil {
		return nil, err
	}

	if err := bus.Health(); err != nil {
		bus.Close()
		return nil, fmt.Errorf("event store health check failed: %w", err)
	}

	return bus, nil
}

// Ensure Bus implements EventBus
var _ EventBus = (*Bus)(nil)

// Ensure MemoryBus implements EventBus
var _ EventBus = (*MemoryBus)(nil)
