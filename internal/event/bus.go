package event

import (
	"strings"
	"sync"

	"github.com/google/uuid"
)

// Handler is a function that handles events
type Handler func(event Event)

// Subscription represents an event subscription
type Subscription struct {
	ID       string
	Patterns []string
	Handler  Handler
}

// Bus routes engine change notifications to subscribers. Stores publish,
// the UI gateway (and tests) subscribe; stores never call each other
// through the bus.
type Bus struct {
	mu            sync.RWMutex
	subscriptions map[string]*Subscription
}

// NewBus creates a new event bus
func NewBus() *Bus {
	return &Bus{
		subscriptions: make(map[string]*Subscription),
	}
}

// Subscribe registers a handler for events matching the given patterns
func (b *Bus) Subscribe(patterns []string, handler Handler) string {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := uuid.New().String()
	b.subscriptions[id] = &Subscription{
		ID:       id,
		Patterns: patterns,
		Handler:  handler,
	}
	return id
}

// Unsubscribe removes a subscription
func (b *Bus) Unsubscribe(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.subscriptions, id)
}

// Publish sends an event to all matching subscribers. Handlers run on their
// own goroutines so a slow subscriber cannot block a store mutation.
func (b *Bus) Publish(event Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, sub := range b.subscriptions {
		if b.matches(event.Type, sub.Patterns) {
			go sub.Handler(event)
		}
	}
}

// matches checks if an event type matches any of the patterns
func (b *Bus) matches(eventType string, patterns []string) bool {
	for _, pattern := range patterns {
		if matchPattern(pattern, eventType) {
			return true
		}
	}
	return false
}

// matchPattern checks if an event type matches a pattern
// Supports wildcards: "message.*" matches "message.appended", "message.resolved"
func matchPattern(pattern, eventType string) bool {
	if pattern == "*" {
		return true
	}

	patternParts := strings.Split(pattern, ".")
	eventParts := strings.Split(eventType, ".")

	for i, pp := range patternParts {
		if pp == "*" {
			// Wildcard matches remaining parts
			return true
		}
		if i >= len(eventParts) {
			return false
		}
		if pp != eventParts[i] {
			return false
		}
	}

	return len(patternParts) == len(eventParts)
}
