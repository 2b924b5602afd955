package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type Document struct {
	ID       uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	ChatID   uuid.UUID `gorm:"type:uuid;index;not null" json:"chatId"`
	UserID   uuid.UUID `gorm:"type:uuid;index;not null" json:"userId"`
	FileName string    `gorm:"size:255;not null" json:"fileName"`
	FileType string    `gorm:"size:50;not null" json:"fileType"`
	FileSize int64     `gorm:"not null" json:"fileSize"`
	// StorageKey locates the original file in durable object storage.
	StorageKey string `gorm:"size:512;not null" json:"-"`
	// VectorStoreID and VectorStoreFileID tie the document to its chunks in
	// the external vector index. Never exposed to clients.
	VectorStoreID     string    `gorm:"size:255;not null" json:"-"`
	VectorStoreFileID string    `gorm:"size:255;not null" json:"-"`
	CreatedAt         time.Time `json:"createdAt"`
	UpdatedAt         time.Time `json:"updatedAt"`
}

func (d *Document) BeforeCreate(tx *gorm.DB) error {
	if d.ID == uuid.Nil {
		d.ID = uuid.New()
	}
	return nil
}
