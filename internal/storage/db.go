package storage

import (
	"errors"
	"log"
	"sync/atomic"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

// DB is the global database instance
var DB *gorm.DB

// ErrNotFound is returned when a row does not exist.
var ErrNotFound = errors.New("not found")

// seq is the global message append counter, seeded from the database.
var seq atomic.Int64

// Init initializes the database connection
func Init(dbPath string) error {
	var err error
	DB, err = gorm.Open(sqlite.Open(dbPath), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return err
	}

	// Auto-migrate schemas
	if err := DB.AutoMigrate(&Conversation{}, &Message{}, &CustomModel{}); err != nil {
		return err
	}

	var maxSeq int64
	DB.Model(&Message{}).Select("COALESCE(MAX(seq), 0)").Scan(&maxSeq)
	seq.Store(maxSeq)

	log.Printf("[Storage] Database initialized: %s", dbPath)
	return nil
}

// CreateConversation creates a new conversation
func CreateConversation(conv *Conversation) error {
	return DB.Create(conv).Error
}

// GetConversation retrieves a conversation by ID
func GetConversation(id string) (*Conversation, error) {
	var conv Conversation
	err := DB.First(&conv, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &conv, nil
}

// GetConversationByModel retrieves the live conversation targeting a persona
func GetConversationByModel(modelID string) (*Conversation, error) {
	var conv Conversation
	err := DB.First(&conv, "model_id = ?", modelID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &conv, nil
}

// ListConversations retrieves all conversations, most recently active first
func ListConversations() ([]Conversation, error) {
	var convs []Conversation
	err := DB.Order("updated_at DESC").Find(&convs).Error
	return convs, err
}

// UpdateConversation updates a conversation
func UpdateConversation(conv *Conversation) error {
	return DB.Save(conv).Error
}

// DeleteConversation removes a conversation and its entire message log.
// Deleting an absent conversation is a no-op.
func DeleteConversation(id string) error {
	if err := DB.Where("conversation_id = ?", id).Delete(&Message{}).Error; err != nil {
		return err
	}
	return DB.Delete(&Conversation{}, "id = ?", id).Error
}

// AddMessage appends a message and refreshes the conversation's
// last-message cache. Typing placeholders do not touch the cache.
func AddMessage(msg *Message) error {
	msg.Seq = seq.Add(1)
	if err := DB.Create(msg).Error; err != nil {
		return err
	}
	if msg.IsTyping {
		return nil
	}
	return DB.Model(&Conversation{}).Where("id = ?", msg.ConversationID).
		Updates(map[string]interface{}{
			"last_message": msg.Content,
			"updated_at":   msg.CreatedAt,
		}).Error
}

// GetMessage retrieves a single message by ID
func GetMessage(id string) (*Message, error) {
	var msg Message
	err := DB.First(&msg, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &msg, nil
}

// UpdateMessage updates a message in place
func UpdateMessage(msg *Message) error {
	return DB.Save(msg).Error
}

// GetConversationMessages retrieves all messages for a conversation in
// append order
func GetConversationMessages(conversationID string) ([]Message, error) {
	var messages []Message
	err := DB.Where("conversation_id = ?", conversationID).
		Order("seq ASC").
		Find(&messages).Error
	return messages, err
}

// SaveCustomModel creates or updates a cached custom persona
func SaveCustomModel(model *CustomModel) error {
	return DB.Clauses(clause.OnConflict{UpdateAll: true}).Create(model).Error
}

// GetCustomModels retrieves all cached custom personas
func GetCustomModels() ([]CustomModel, error) {
	var models []CustomModel
	err := DB.Order("updated_at ASC").Find(&models).Error
	return models, err
}
