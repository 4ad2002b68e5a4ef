package models

import "time"

// MessageModel is the database message row. Rows are append-only: no
// update, no soft delete.
type MessageModel struct {
	ID             string `gorm:"primaryKey;size:64"`
	ConversationID string `gorm:"index;size:64;not null"`
	UserID         string `gorm:"index;size:64;not null"`
	Role           string `gorm:"size:16;not null"` // user, assistant
	Content        string `gorm:"type:text;not null"`
	TokensUsed     int    `gorm:"not null;default:0"`
	CreatedAt      time.Time
}

func (MessageModel) TableName() string {
	return "messages"
}
