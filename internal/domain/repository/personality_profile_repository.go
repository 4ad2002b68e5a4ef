package repository

import (
	"context"

	"github.com/reflectchat/reflectchat/internal/domain/entity"
)

// PersonalityProfileRepository persists derived personality profiles.
// Profiles are append-only snapshots; there is no update or delete path.
type PersonalityProfileRepository interface {
	// Save inserts a new snapshot and returns it with assigned ID and
	// timestamps.
	Save(ctx context.Context, userID string, conversationID *string, analysis *entity.ProfileAnalysis) (*entity.PersonalityProfile, error)

	// Latest returns the most recent profile by created_at, or a NOT_FOUND
	// error when the user has none.
	Latest(ctx context.Context, userID string) (*entity.PersonalityProfile, error)

	// ListByUser returns all snapshots for the user, newest first.
	ListByUser(ctx context.Context, userID string) ([]*entity.PersonalityProfile, error)
}
