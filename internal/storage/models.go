package storage

import (
	"time"

	"gorm.io/gorm"
)

// Message senders.
const (
	SenderUser = "user"
	SenderAI   = "ai"
)

// Conversation is one persona thread. LastMessage and UpdatedAt are
// denormalized caches of the message log, refreshed on every append.
type Conversation struct {
	ID          string         `gorm:"primaryKey" json:"id"`
	ModelID     string         `gorm:"index" json:"model_id"`
	LastMessage string         `json:"last_message"`
	Unread      int            `json:"unread"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
	DeletedAt   gorm.DeletedAt `gorm:"index" json:"-"`
	Messages    []Message      `gorm:"foreignKey:ConversationID" json:"messages"`
}

// Message is a single chat turn. A row with IsTyping set is the in-flight
// placeholder for an AI reply; it is resolved in place, never duplicated.
// Seq is a global append counter so ordering never depends on timestamp
// resolution.
type Message struct {
	ID             string    `gorm:"primaryKey" json:"id"`
	ConversationID string    `gorm:"index" json:"conversation_id"`
	Sender         string    `json:"sender"` // "user" or "ai"
	Content        string    `json:"content"`
	IsTyping       bool      `json:"is_typing"`
	Seq            int64     `gorm:"index" json:"-"`
	CreatedAt      time.Time `json:"created_at"`
}

// CustomModel is the local cache of a user-created persona, mirrored to the
// remote store when an identity is present.
type CustomModel struct {
	ID          string    `gorm:"primaryKey" json:"id"`
	Name        string    `json:"name"`
	Avatar      string    `json:"avatar"`
	Personality string    `json:"personality"`
	Provider    string    `json:"provider"`
	APIModel    string    `json:"api_model"`
	UpdatedAt   time.Time `json:"updated_at"`
}
