package entity

import "time"

// UserProfile is the per-user record. The ID is externally assigned (it is
// the auth identity) and the row is created lazily on first access.
type UserProfile struct {
	ID                string    `json:"id"`
	ConversationCount int       `json:"conversation_count"`
	TotalMessages     int       `json:"total_messages"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}
