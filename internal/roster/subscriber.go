package roster

import (
	"context"
	"fmt"
	"log"

	"github.com/drmas001/imd-v2.8/internal/shared/events"
)

// Subscriber keeps the roster current: any event touching a record
// that feeds the roster triggers a full refresh. Refreshes are
// idempotent, so overlapping triggers at worst re-fetch the same
// state.
type Subscriber struct {
	service *Service
	bus     events.EventBus
}

func NewSubscriber(service *Service, bus events.EventBus) *Subscriber {
	return &Subscriber{service: service, bus: bus}
}

// Start subscribes to every event stream the roster is derived from.
func (s *Subscriber) Start(ctx context.Context) error {
	patterns := []struct {
		pattern      string
		consumerName string
	}{
		{"admission.*", "roster-admission-subscriber"},
		{"consultation.*", "roster-consultation-subscriber"},
		{"patient.*", "roster-patient-subscriber"},
	}

	for _, p := range patterns {
		if err := s.bus.Subscribe(ctx, p.pattern, p.consumerName, s.handleEvent); err != nil {
			return fmt.Errorf("failed to subscribe to %s: %w", p.pattern, err)
		}
	}

	return nil
}

func (s *Subscriber) handleEvent(ctx context.Context, event events.Event) error {
	if err := s.service.Refresh(ctx, "event"); err != nil {
		log.Printf("Warning: roster refresh after %s failed: %v", event.Type, err)
		return err
	}
	return nil
}
