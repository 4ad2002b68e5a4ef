package repository

import (
	"context"

	"github.com/reflectchat/reflectchat/internal/domain/entity"
)

// UserProfileRepository persists per-user records.
type UserProfileRepository interface {
	// GetOrCreate returns the existing profile for userID, inserting a new
	// row when absent. Safe to call repeatedly; the backing store's primary
	// key constraint guards against duplicate rows under concurrent first
	// access.
	GetOrCreate(ctx context.Context, userID string) (*entity.UserProfile, error)

	// UpdateStats rewrites the denormalized message/conversation counters
	// and bumps updated_at.
	UpdateStats(ctx context.Context, userID string, totalMessages, conversationCount int) error
}
