package remote

import (
	"log"
	"sync"
)

// IdentityHandler receives the current user id, or "" on logout.
type IdentityHandler func(userID string)

// SessionWatcher tracks the authenticated identity and notifies subscribers
// on every transition. The auth collaborator itself lives outside the
// engine; whatever owns the session calls SetIdentity.
type SessionWatcher struct {
	mu       sync.Mutex
	userID   string
	handlers []IdentityHandler
}

// NewSessionWatcher creates a watcher with no identity.
func NewSessionWatcher() *SessionWatcher {
	return &SessionWatcher{}
}

// Subscribe registers a handler for identity transitions. The handler is
// immediately invoked with the current identity if one is set.
func (w *SessionWatcher) Subscribe(handler IdentityHandler) {
	w.mu.Lock()
	w.handlers = append(w.handlers, handler)
	current := w.userID
	w.mu.Unlock()

	if current != "" {
		handler(current)
	}
}

// SetIdentity records a login ("" for logout) and notifies subscribers.
// Setting the same identity twice is a no-op.
func (w *SessionWatcher) SetIdentity(userID string) {
	w.mu.Lock()
	if w.userID == userID {
		w.mu.Unlock()
		return
	}
	w.userID = userID
	handlers := make([]IdentityHandler, len(w.handlers))
	copy(handlers, w.handlers)
	w.mu.Unlock()

	if userID == "" {
		log.Printf("[Session] Logged out")
	} else {
		log.Printf("[Session] Identity: %s", userID)
	}
	for _, h := range handlers {
		h(userID)
	}
}

// UserID returns the current identity, or "" if logged out.
func (w *SessionWatcher) UserID() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.userID
}
