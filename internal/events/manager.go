package events

import (
	"encoding/json"
	"time"

	"github.com/rs/zerolog"

	"github.com/google/uuid"
)

// Manager wraps a Bus with structured logging and a typed emission
// surface, so callers never build an Event by hand.
type Manager struct {
	bus *Bus
	log zerolog.Logger
}

// NewManager builds a Manager over bus, logging every emission under the
// given logger's "events" component.
func NewManager(bus *Bus, log zerolog.Logger) *Manager {
	return &Manager{
		bus: bus,
		log: log.With().Str("component", "events").Logger(),
	}
}

// Emit publishes an event built from a raw data map. Prefer EmitTyped
// where a typed payload struct exists; Emit remains for callers that only
// have loosely-typed data (e.g. forwarding an external webhook body).
func (m *Manager) Emit(eventType EventType, source string, data map[string]interface{}) {
	m.publish(Event{
		ID:        uuid.NewString(),
		Type:      eventType,
		Timestamp: time.Now(),
		Source:    source,
		Data:      data,
	})
}

// EmitTyped publishes an event of eventType built from a typed payload,
// converting it to the map form Event.Data carries for storage and
// cross-language consumers. eventType is explicit rather than inferred
// from data.EventType() because several lifecycle stages (e.g.
// IntentCreated/IntentApproved/IntentExecuted) share one payload shape.
func (m *Manager) EmitTyped(eventType EventType, source string, data EventData) {
	m.publish(Event{
		ID:        uuid.NewString(),
		Type:      eventType,
		Timestamp: time.Now(),
		Source:    source,
		Data:      convertEventDataToMap(data),
	})
}

// EmitError publishes an ErrorOccurred event describing err.
func (m *Manager) EmitError(source string, err error) {
	m.EmitTyped(ErrorOccurred, source, &ErrorEventData{Component: source, Message: err.Error()})
}

func (m *Manager) publish(event Event) {
	m.bus.Publish(event)

	eventJSON, _ := json.Marshal(event)
	m.log.Info().
		Str("event_type", string(event.Type)).
		Str("source", event.Source).
		RawJSON("event", eventJSON).
		Msg("event published")
}
