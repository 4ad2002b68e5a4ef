package repository

import (
	"context"

	"github.com/reflectchat/reflectchat/internal/domain/entity"
)

// MessageRepository persists chat messages. Messages are append-only.
type MessageRepository interface {
	// Save inserts a message, first ensuring the user profile row exists,
	// and returns the inserted row with its assigned ID and timestamp.
	Save(ctx context.Context, conversationID, userID string, role entity.Role, content string, tokensUsed int) (*entity.Message, error)

	// ListByConversation returns all messages of a conversation ordered
	// oldest first. This ordering becomes the language-model context, so a
	// violation silently corrupts generated replies.
	ListByConversation(ctx context.Context, conversationID string) ([]*entity.Message, error)

	// ListRecentByUser returns up to limit messages across all of the
	// user's conversations, newest first.
	ListRecentByUser(ctx context.Context, userID string, limit int) ([]*entity.Message, error)

	// CountByUser returns the user's total message count.
	CountByUser(ctx context.Context, userID string) (int64, error)
}
