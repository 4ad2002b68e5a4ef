package models

import "time"

// ConversationModel is the database conversation row.
type ConversationModel struct {
	ID        string  `gorm:"primaryKey;size:64"`
	UserID    string  `gorm:"index;size:64;not null"`
	Title     *string `gorm:"size:255"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (ConversationModel) TableName() string {
	return "conversations"
}
