package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// DefaultChatTitle is the placeholder title a chat carries until the first
// message renames it.
const DefaultChatTitle = "New Chat"

// ChatTitleMaxLength bounds titles to what the frontend can render.
const ChatTitleMaxLength = 28

type Chat struct {
	ID        uuid.UUID     `gorm:"type:uuid;primaryKey" json:"id"`
	UserID    uuid.UUID     `gorm:"type:uuid;index;not null" json:"userId"`
	Title     string        `gorm:"size:28;not null" json:"title"`
	CreatedAt time.Time     `json:"createdAt"`
	UpdatedAt time.Time     `json:"updatedAt"`
	Messages  []ChatMessage `gorm:"constraint:OnDelete:CASCADE" json:"messages,omitempty"`
	Documents []Document    `gorm:"constraint:OnDelete:CASCADE" json:"documents,omitempty"`
	Summaries []ChatSummary `gorm:"constraint:OnDelete:CASCADE" json:"-"`
}

func (c *Chat) BeforeCreate(tx *gorm.DB) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	if c.Title == "" {
		c.Title = DefaultChatTitle
	}
	return nil
}
