package service

import "strings"

// Profile trigger thresholds.
const (
	// MinMessagesForProfile is the signal floor: below this many messages
	// no profile is generated.
	MinMessagesForProfile = 5

	// MinMessagesSinceLastProfile is the cooldown: at least this many new
	// messages must accumulate since the last generation.
	MinMessagesSinceLastProfile = 10

	// MinHistoryForProfileRequest is the history floor for generating a
	// profile on demand, when the user explicitly asks about themselves.
	MinHistoryForProfileRequest = 10

	// MinUsableConfidence is the confidence floor below which an existing
	// profile is not used to answer self-referential questions.
	MinUsableConfidence = 0.3
)

// ShouldGenerateProfile decides whether enough conversation volume has
// accumulated to justify regenerating the personality profile.
// lastProfileMessageCount is the message count recorded at the previous
// generation, or nil when none is recorded.
func ShouldGenerateProfile(messageCount int, lastProfileMessageCount *int) bool {
	if messageCount < MinMessagesForProfile {
		return false
	}
	if lastProfileMessageCount == nil {
		return messageCount >= MinMessagesForProfile
	}
	return messageCount-*lastProfileMessageCount >= MinMessagesSinceLastProfile
}

// selfReferentialPhrases are matched as case-insensitive substrings. This
// is a heuristic, not NLP: false positives and negatives are accepted.
var selfReferentialPhrases = []string{
	"who am i",
	"tell me about myself",
	"what am i like",
	"my profile",
	"about me",
	"personality",
}

// IsSelfReferential reports whether the message is heuristically asking
// about the user themselves.
func IsSelfReferential(message string) bool {
	lower := strings.ToLower(message)
	for _, phrase := range selfReferentialPhrases {
		if strings.Contains(lower, phrase) {
			return true
		}
	}
	return false
}
