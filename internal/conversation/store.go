// Package conversation owns conversations and their message logs. All
// mutations go through the Store and are serialized, so completions landing
// from concurrent network tasks apply as atomic state updates.
package conversation

import (
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/aimessenger/aimessenger/internal/event"
	"github.com/aimessenger/aimessenger/internal/storage"
)

// ErrNotFound is returned when a conversation or message no longer exists.
var ErrNotFound = errors.New("conversation not found")

// Store is the conversation/message owner. The active pointer tracks which
// conversation the UI is currently viewing.
type Store struct {
	mu       sync.Mutex
	activeID string
	bus      *event.Bus
}

// NewStore creates a conversation store. Persistence must be initialized
// through storage.Init before use.
func NewStore(bus *event.Bus) *Store {
	return &Store{bus: bus}
}

// CreateConversation returns the conversation for a persona, creating it if
// none exists (create-or-reuse), and makes it active either way.
func (s *Store) CreateConversation(modelID string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, err := storage.GetConversationByModel(modelID); err == nil {
		s.activeID = existing.ID
		return existing.ID, nil
	} else if !errors.Is(err, storage.ErrNotFound) {
		return "", err
	}

	conv := &storage.Conversation{
		ID:      uuid.New().String(),
		ModelID: modelID,
	}
	if err := storage.CreateConversation(conv); err != nil {
		return "", err
	}
	s.activeID = conv.ID

	log.Printf("[Conversations] Created %s for persona %s", conv.ID, modelID)
	s.publish(event.TypeConversationCreated, *conv)
	return conv.ID, nil
}

// ActiveConversation returns the currently viewed conversation id, or "".
func (s *Store) ActiveConversation() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.activeID
}

// SetActiveConversation switches the currently viewed pointer. It does not
// touch messages or unread counts; the UI calls MarkRead separately when
// its reset-on-view policy says so.
func (s *Store) SetActiveConversation(id string) {
	s.mu.Lock()
	s.activeID = id
	s.mu.Unlock()
}

// RemoveConversation deletes a conversation and its entire message log.
// Removing an absent conversation is a no-op.
func (s *Store) RemoveConversation(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := storage.DeleteConversation(id); err != nil {
		return err
	}
	if s.activeID == id {
		s.activeID = ""
	}
	s.publish(event.TypeConversationRemoved, id)
	return nil
}

// List returns all conversations, most recently active first.
func (s *Store) List() ([]storage.Conversation, error) {
	return storage.ListConversations()
}

// Get returns one conversation.
func (s *Store) Get(id string) (*storage.Conversation, error) {
	conv, err := storage.GetConversation(id)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return conv, err
}

// Messages returns a conversation's log in append order.
func (s *Store) Messages(conversationID string) ([]storage.Message, error) {
	return storage.GetConversationMessages(conversationID)
}

// AppendMessage appends a finished (non-typing) message and refreshes the
// conversation cache.
func (s *Store) AppendMessage(conversationID, sender, content string) (storage.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := storage.GetConversation(conversationID); err != nil {
		return storage.Message{}, fmt.Errorf("%w: %s", ErrNotFound, conversationID)
	}

	msg := storage.Message{
		ID:             uuid.New().String(),
		ConversationID: conversationID,
		Sender:         sender,
		Content:        content,
		CreatedAt:      time.Now(),
	}
	if err := storage.AddMessage(&msg); err != nil {
		return storage.Message{}, err
	}

	s.publish(event.TypeMessageAppended, msg)
	return msg, nil
}

// AppendTyping appends the in-flight AI placeholder. At most one placeholder
// exists per conversation; a second append while one is live is refused.
func (s *Store) AppendTyping(conversationID string) (storage.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := storage.GetConversation(conversationID); err != nil {
		return storage.Message{}, fmt.Errorf("%w: %s", ErrNotFound, conversationID)
	}

	existing, err := storage.GetConversationMessages(conversationID)
	if err != nil {
		return storage.Message{}, err
	}
	for _, m := range existing {
		if m.IsTyping {
			return storage.Message{}, fmt.Errorf("conversation %s already has a pending reply", conversationID)
		}
	}

	msg := storage.Message{
		ID:             uuid.New().String(),
		ConversationID: conversationID,
		Sender:         storage.SenderAI,
		IsTyping:       true,
		CreatedAt:      time.Now(),
	}
	if err := storage.AddMessage(&msg); err != nil {
		return storage.Message{}, err
	}

	s.publish(event.TypeMessageAppended, msg)
	return msg, nil
}

// ResolveTyping replaces the placeholder's content in place (same message
// id) and clears the typing flag. A placeholder that disappeared, because
// its conversation was removed mid-flight, resolves as a silent no-op.
func (s *Store) ResolveTyping(conversationID, messageID, content string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	msg, err := storage.GetMessage(messageID)
	if errors.Is(err, storage.ErrNotFound) {
		log.Printf("[Conversations] Discarding stale completion for %s", conversationID)
		return nil
	}
	if err != nil {
		return err
	}

	msg.Content = content
	msg.IsTyping = false
	if err := storage.UpdateMessage(msg); err != nil {
		return err
	}

	// The placeholder skipped the cache on append; refresh it now
	now := time.Now()
	storage.DB.Model(&storage.Conversation{}).Where("id = ?", conversationID).
		Updates(map[string]interface{}{"last_message": content, "updated_at": now})

	s.publish(event.TypeMessageResolved, *msg)
	return nil
}

// IncrementUnread bumps the unread counter, used when an AI reply lands in
// a conversation the user is not viewing.
func (s *Store) IncrementUnread(conversationID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	storage.DB.Model(&storage.Conversation{}).Where("id = ?", conversationID).
		Update("unread", gorm.Expr("unread + 1"))
}

// MarkRead resets the unread counter. The UI invokes this as its
// reset-on-view policy.
func (s *Store) MarkRead(conversationID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	storage.DB.Model(&storage.Conversation{}).Where("id = ?", conversationID).
		Update("unread", 0)
}

func (s *Store) publish(eventType string, payload interface{}) {
	if s.bus != nil {
		s.bus.Publish(event.New(eventType, payload))
	}
}
