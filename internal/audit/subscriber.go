package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/drmas001/imd-v2.8/internal/shared/events"
	"github.com/drmas001/imd-v2.8/internal/shared/metrics"
	"github.com/drmas001/imd-v2.8/internal/shared/types"
)

// Appender is the slice of the repository the subscriber writes
// through.
type Appender interface {
	Append(ctx context.Context, entry *Entry) error
}

// Subscriber derives audit entries from ward events
type Subscriber struct {
	repo Appender
	bus  events.EventBus
}

func NewSubscriber(repo Appender, bus events.EventBus) *Subscriber {
	return &Subscriber{repo: repo, bus: bus}
}

// Start subscribes to every audited event stream
func (s *Subscriber) Start(ctx context.Context) error {
	patterns := []struct {
		pattern      string
		consumerName string
	}{
		{"patient.*", "audit-patient-subscriber"},
		{"admission.*", "audit-admission-subscriber"},
		{"consultation.*", "audit-consultation-subscriber"},
		{"note.*", "audit-note-subscriber"},
		{"appointment.*", "audit-appointment-subscriber"},
	}

	for _, p := range patterns {
		if err := s.bus.Subscribe(ctx, p.pattern, p.consumerName, s.handleEvent); err != nil {
			return fmt.Errorf("failed to subscribe to %s: %w", p.pattern, err)
		}
	}

	return nil
}

func (s *Subscriber) handleEvent(ctx context.Context, event events.Event) error {
	entry := eventToEntry(event)
	if entry == nil {
		return nil
	}

	if err := s.repo.Append(ctx, entry); err != nil {
		return fmt.Errorf("failed to append audit entry: %w", err)
	}

	metrics.RecordAuditEntry()
	return nil
}

// eventToEntry maps an event to an audit entry. Events that do not
// follow the "<resource>.<action>" naming are skipped.
func eventToEntry(event events.Event) *Entry {
	parts := strings.SplitN(event.Type, ".", 2)
	if len(parts) < 2 {
		return nil
	}
	resourceType := parts[0]

	details := dataAsMap(event.Data)

	actorType := ActorStaff
	switch event.ActorType {
	case "system", "his-import":
		actorType = ActorSystem
	case "external":
		actorType = ActorExternal
	}

	entry := &Entry{
		ID: types.NewID(),
		// Truncated to microseconds for deterministic hash
		// verification after a TIMESTAMPTZ round trip
		Timestamp:     event.Timestamp.UTC().Truncate(time.Microsecond),
		ActorType:     actorType,
		ActorID:       event.ActorID,
		ActorName:     event.ActorName,
		Action:        event.Type,
		ResourceType:  resourceType,
		ResourceID:    resourceIDFrom(details, resourceType),
		Details:       details,
		CorrelationID: event.CorrelationID,
	}
	return entry
}

// dataAsMap normalizes event data to a map. Events published in this
// process carry typed structs; events replayed from the store arrive
// as maps already.
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

// resourceIDFrom digs the resource id out of the event payload,
// checking "<resource>_id" before the generic "id".
func resourceIDFrom(data map[string]any, resourceType string) string {
	if data == nil {
		return ""
	}

	for _, field := range []string{resourceType + "_id", "id"} {
		v, ok := data[field]
		if !ok {
			continue
		}
		switch id := v.(type) {
		case string:
			return id
		case float64:
			return strconv.FormatFloat(id, 'f', -1, 64)
		}
	}
	return ""
}
