package models

import "time"

// UserProfileModel is the database user profile row. The ID is the auth
// identity, assigned externally.
type UserProfileModel struct {
	ID                string `gorm:"primaryKey;size:64"`
	ConversationCount int    `gorm:"not null;default:0"`
	TotalMessages     int    `gorm:"not null;default:0"`
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

func (UserProfileModel) TableName() string {
	return "user_profiles"
}
