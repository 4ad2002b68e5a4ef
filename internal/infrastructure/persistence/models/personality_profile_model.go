package models

import "time"

// PersonalityProfileModel is the database personality profile row.
// Structured fields are stored as JSON-encoded text; confidence_score is
// constrained to [0,1] by the writer.
type PersonalityProfileModel struct {
	ID                 string  `gorm:"primaryKey;size:64"`
	UserID             string  `gorm:"index;size:64;not null"`
	ConversationID     *string `gorm:"size:64"`
	PersonalityTraits  string  `gorm:"type:text"` // JSON encoded []PersonalityTrait
	Interests          string  `gorm:"type:text"` // JSON encoded []string
	CommunicationStyle string  `gorm:"type:text"`
	DetectedPatterns   string  `gorm:"type:text"` // JSON encoded map
	ConfidenceScore    float64 `gorm:"not null;default:0"`
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

func (PersonalityProfileModel) TableName() string {
	return "personality_profiles"
}
