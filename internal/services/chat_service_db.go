package services

import (
	"errors"

	"docuchat_go_backend/internal/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ChatStore defines the persistence operations behind the chat services
type ChatStore interface {
	CreateChat(chat *models.Chat) error
	GetChatForUser(chatID, userID uuid.UUID, withDocuments bool) (*models.Chat, error)
	UpdateChatTitle(chatID uuid.UUID, title string) error
	DeleteChat(chatID uuid.UUID) error
	ListChatsWithMessages(userID uuid.UUID) ([]models.Chat, error)
	GetChatWithHistory(chatID, userID uuid.UUID) (*models.Chat, error)

	CountMessages(chatID uuid.UUID) (int, error)
	GetMessages(chatID uuid.UUID) ([]models.ChatMessage, error)
	GetRecentMessages(chatID uuid.UUID, n int) ([]models.ChatMessage, error)
	CreateMessage(message *models.ChatMessage) error
	GetMessageInChat(chatID, messageID uuid.UUID) (*models.ChatMessage, error)
	UpdateMessageFeedback(messageID uuid.UUID, helpful *bool) error

	CountDocuments(chatID uuid.UUID) (int, error)
	CreateDocument(document *models.Document) error
	GetDocumentInChat(chatID, documentID uuid.UUID) (*models.Document, error)
	DeleteDocument(documentID uuid.UUID) error

	CreateSummary(summary *models.ChatSummary) error
	LatestSummary(chatID uuid.UUID) (*models.ChatSummary, error)

	GetUser(userID uuid.UUID) (*models.User, error)
}

// GormChatStore implements ChatStore on GORM
type GormChatStore struct {
	db *gorm.DB
}

func NewGormChatStore(db *gorm.DB) ChatStore {
	return &GormChatStore{db: db}
}

func (s *GormChatStore) CreateChat(chat *models.Chat) error {
	return s.db.Create(chat).Error
}

// GetChatForUser retrieves a chat only when it belongs to the given user
func (s *GormChatStore) GetChatForUser(chatID, userID uuid.UUID, withDocuments bool) (*models.Chat, error) {
	var chat models.Chat
	query := s.db.Where("id = ? AND user_id = ?", chatID, userID)
	if withDocuments {
		query = query.Preload("Documents")
	}
	if err := query.First(&chat).Error; err != nil {
		return nil, err
	}
	return &chat, nil
}

func (s *GormChatStore) UpdateChatTitle(chatID uuid.UUID, title string) error {
	return s.db.Model(&models.Chat{}).Where("id = ?", chatID).Update("title", title).Error
}

// DeleteChat removes a chat and everything hanging off it
func (s *GormChatStore) DeleteChat(chatID uuid.UUID) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("chat_id = ?", chatID).Delete(&models.ChatMessage{}).Error; err != nil {
			return err
		}
		if err := tx.Where("chat_id = ?", chatID).Delete(&models.ChatSummary{}).Error; err != nil {
			return err
		}
		if err := tx.Where("chat_id = ?", chatID).Delete(&models.Document{}).Error; err != nil {
			return err
		}
		return tx.Where("id = ?", chatID).Delete(&models.Chat{}).Error
	})
}

// ListChatsWithMessages retrieves the user's chats that have at least one
// message, newest first
func (s *GormChatStore) ListChatsWithMessages(userID uuid.UUID) ([]models.Chat, error) {
	var chats []models.Chat
	result := s.db.
		Where("user_id = ?", userID).
		Where("EXISTS (SELECT 1 FROM chat_messages WHERE chat_messages.chat_id = chats.id)").
		Order("updated_at desc").
		Find(&chats)
	if result.Error != nil {
		return nil, result.Error
	}
	return chats, nil
}

// GetChatWithHistory retrieves a chat with its messages and documents loaded
func (s *GormChatStore) GetChatWithHistory(chatID, userID uuid.UUID) (*models.Chat, error) {
	var chat models.Chat
	result := s.db.
		Preload("Messages", func(db *gorm.DB) *gorm.DB {
			return db.Order("created_at asc")
		}).
		Preload("Documents").
		Where("id = ? AND user_id = ?", chatID, userID).
		First(&chat)
	if result.Error != nil {
		return nil, result.Error
	}
	return &chat, nil
}

func (s *GormChatStore) CountMessages(chatID uuid.UUID) (int, error) {
	var count int64
	if err := s.db.Model(&models.ChatMessage{}).Where("chat_id = ?", chatID).Count(&count).Error; err != nil {
		return 0, err
	}
	return int(count), nil
}

func (s *GormChatStore) GetMessages(chatID uuid.UUID) ([]models.ChatMessage, error) {
	var messages []models.ChatMessage
	result := s.db.Where("chat_id = ?", chatID).Order("created_at asc").Find(&messages)
	if result.Error != nil {
		return nil, result.Error
	}
	return messages, nil
}

// GetRecentMessages retrieves the n newest messages in chronological order
func (s *GormChatStore) GetRecentMessages(chatID uuid.UUID, n int) ([]models.ChatMessage, error) {
	var messages []models.ChatMessage
	result := s.db.Where("chat_id = ?", chatID).Order("created_at desc").Limit(n).Find(&messages)
	if result.Error != nil {
		return nil, result.Error
	}
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}
	return messages, nil
}

func (s *GormChatStore) CreateMessage(message *models.ChatMessage) error {
	return s.db.Create(message).Error
}

func (s *GormChatStore) GetMessageInChat(chatID, messageID uuid.UUID) (*models.ChatMessage, error) {
	var message models.ChatMessage
	if err := s.db.Where("id = ? AND chat_id = ?", messageID, chatID).First(&message).Error; err != nil {
		return nil, err
	}
	return &message, nil
}

func (s *GormChatStore) UpdateMessageFeedback(messageID uuid.UUID, helpful *bool) error {
	return s.db.Model(&models.ChatMessage{}).Where("id = ?", messageID).Update("helpful", helpful).Error
}

func (s *GormChatStore) CountDocuments(chatID uuid.UUID) (int, error) {
	var count int64
	if err := s.db.Model(&models.Document{}).Where("chat_id = ?", chatID).Count(&count).Error; err != nil {
		return 0, err
	}
	return int(count), nil
}

func (s *GormChatStore) CreateDocument(document *models.Document) error {
	return s.db.Create(document).Error
}

func (s *GormChatStore) GetDocumentInChat(chatID, documentID uuid.UUID) (*models.Document, error) {
	var document models.Document
	if err := s.db.Where("id = ? AND chat_id = ?", documentID, chatID).First(&document).Error; err != nil {
		return nil, err
	}
	return &document, nil
}

func (s *GormChatStore) DeleteDocument(documentID uuid.UUID) error {
	return s.db.Where("id = ?", documentID).Delete(&models.Document{}).Error
}

func (s *GormChatStore) CreateSummary(summary *models.ChatSummary) error {
	return s.db.Create(summary).Error
}

// LatestSummary retrieves the newest summary for the chat, or nil when the
// chat has no summaries yet
func (s *GormChatStore) LatestSummary(chatID uuid.UUID) (*models.ChatSummary, error) {
	var summary models.ChatSummary
	result := s.db.Where("chat_id = ?", chatID).Order("end_turn desc").First(&summary)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, result.Error
	}
	return &summary, nil
}

func (s *GormChatStore) GetUser(userID uuid.UUID) (*models.User, error) {
	var user models.User
	if err := s.db.Where("id = ?", userID).First(&user).Error; err != nil {
		return nil, err
	}
	return &user, nil
}
