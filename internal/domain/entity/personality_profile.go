package entity

import "time"

// PersonalityTrait is a single trait observed in conversation, with the
// quotes or observations that support it.
type PersonalityTrait struct {
	Trait       string   `json:"trait"`
	Description string   `json:"description"`
	Evidence    []string `json:"evidence"`
}

// PersonalityProfile is a derived, versioned summary of a user computed
// from their conversation history. Rows are append-only snapshots; the
// most recent by created_at is authoritative for display.
type PersonalityProfile struct {
	ID                 string             `json:"id"`
	UserID             string             `json:"user_id"`
	ConversationID     *string            `json:"conversation_id"`
	PersonalityTraits  []PersonalityTrait `json:"personality_traits"`
	Interests          []string           `json:"interests"`
	CommunicationStyle string             `json:"communication_style"`
	DetectedPatterns   map[string]any     `json:"detected_patterns"`
	ConfidenceScore    float64            `json:"confidence_score"`
	CreatedAt          time.Time          `json:"created_at"`
	UpdatedAt          time.Time          `json:"updated_at"`
}

// ProfileAnalysis is the analyzer output: a profile payload before it is
// tagged with identity and timestamps. ConfidenceScore is always in [0,1].
type ProfileAnalysis struct {
	PersonalityTraits  []PersonalityTrait `json:"personality_traits"`
	Interests          []string           `json:"interests"`
	CommunicationStyle string             `json:"communication_style"`
	DetectedPatterns   map[string]any     `json:"detected_patterns"`
	ConfidenceScore    float64            `json:"confidence_score"`
}

// DegradedAnalysis is the fallback returned when the model output cannot
// be parsed. Profile generation must never abort the surrounding chat
// flow, so this shape is returned instead of an error.
func DegradedAnalysis() *ProfileAnalysis {
	return &ProfileAnalysis{
		PersonalityTraits:  []PersonalityTrait{},
		Interests:          []string{},
		CommunicationStyle: "Unable to analyze",
		DetectedPatterns:   map[string]any{},
		ConfidenceScore:    0,
	}
}
