package event

import "time"

// Event types published by the engine's stores.
const (
	TypeSettingsUpdated     = "settings.updated"
	TypeCatalogUpdated      = "catalog.updated"
	TypeConversationCreated = "conversation.created"
	TypeConversationRemoved = "conversation.removed"
	TypeMessageAppended     = "message.appended"
	TypeMessageResolved     = "message.resolved"
	TypeHealthChanged       = "health.changed"
)

// Event is one change notification. Payload is the store's own type for the
// entity that changed; subscribers type-assert on the event type.
type Event struct {
	Type      string      `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
	Payload   interface{} `json:"payload,omitempty"`
}

// New builds an event stamped with the current time.
func New(eventType string, payload interface{}) Event {
	return Event{
		Type:      eventType,
		Timestamp: time.Now(),
		Payload:   payload,
	}
}
