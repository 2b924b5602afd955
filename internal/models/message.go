package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Turn is one paired conversation turn. Messages are immutable once created
// except for the helpful flag.
type Turn struct {
	User      string `json:"user"`
	Assistant string `json:"assistant"`
}

type ChatMessage struct {
	ID          uuid.UUID                `gorm:"type:uuid;primaryKey" json:"id"`
	ChatID      uuid.UUID                `gorm:"type:uuid;index;not null" json:"chatId"`
	Turn        datatypes.JSONType[Turn] `json:"turn"`
	Helpful     *bool                    `json:"helpful"`
	TotalTokens int                      `gorm:"not null;default:0" json:"totalTokens"`
	CreatedAt   time.Time                `gorm:"index" json:"createdAt"`
}

// NewTurn wraps a user/assistant pair for storage in the turn column.
func NewTurn(user, assistant string) datatypes.JSONType[Turn] {
	return datatypes.NewJSONType(Turn{User: user, Assistant: assistant})
}

func (m *ChatMessage) BeforeCreate(tx *gorm.DB) error {
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	return nil
}
