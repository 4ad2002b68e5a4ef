package repository

import (
	"context"

	"github.com/reflectchat/reflectchat/internal/domain/entity"
)

// ConversationRepository persists conversations.
type ConversationRepository interface {
	// Create inserts a conversation for userID, first ensuring the user
	// profile row exists. When title is empty a timestamped placeholder is
	// used.
	Create(ctx context.Context, userID, title string) (*entity.Conversation, error)

	// ListByUser returns all conversations for userID, newest first.
	ListByUser(ctx context.Context, userID string) ([]*entity.Conversation, error)

	// FindByID returns the conversation, or a NOT_FOUND error when absent.
	FindByID(ctx context.Context, id string) (*entity.Conversation, error)

	// UpdateTitle rewrites the title in place and bumps updated_at.
	UpdateTitle(ctx context.Context, id, title string) error

	// CountByUser returns how many conversations userID owns.
	CountByUser(ctx context.Context, userID string) (int64, error)
}
