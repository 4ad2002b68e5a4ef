package entity

import "time"

// Conversation groups messages for one user. The title starts as a
// timestamped placeholder and is overwritten with a generated title after
// the first exchange.
type Conversation struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Title     *string   `json:"title"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TitleOrDefault returns the title, or empty string when unset.
func (c *Conversation) TitleOrDefault() string {
	if c.Title == nil {
		return ""
	}
	return *c.Title
}
