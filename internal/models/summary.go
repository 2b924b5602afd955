package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ChatSummary is a compacted rendition of the turns [StartTurn, EndTurn] of a
// chat. Ranges for a chat are contiguous and non-overlapping: the next
// summary's StartTurn is always the previous EndTurn + 1.
type ChatSummary struct {
	ID          uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	ChatID      uuid.UUID `gorm:"type:uuid;index;not null" json:"chatId"`
	Summary     string    `gorm:"type:text;not null" json:"summary"`
	StartTurn   int       `gorm:"not null" json:"startTurn"`
	EndTurn     int       `gorm:"not null" json:"endTurn"`
	TotalTokens int       `gorm:"default:0" json:"totalTokens"`
	CreatedAt   time.Time `json:"createdAt"`
}

func (s *ChatSummary) BeforeCreate(tx *gorm.DB) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	return nil
}
