package persistence

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/reflectchat/reflectchat/internal/domain/entity"
	"github.com/reflectchat/reflectchat/internal/domain/repository"
	"github.com/reflectchat/reflectchat/internal/infrastructure/persistence/models"
	apperrors "github.com/reflectchat/reflectchat/pkg/errors"
)

// GormMessageRepository is the GORM message store.
type GormMessageRepository struct {
	db       *gorm.DB
	profiles repository.UserProfileRepository
}

// NewGormMessageRepository creates the repository.
func NewGormMessageRepository(db *gorm.DB, profiles repository.UserProfileRepository) repository.MessageRepository {
	return &GormMessageRepository{db: db, profiles: profiles}
}

// Save inserts a message and returns the stored row.
func (r *GormMessageRepository) Save(ctx context.Context, conversationID, userID string, role entity.Role, content string, tokensUsed int) (*entity.Message, error) {
	if conversationID == "" || userID == "" {
		return nil, apperrors.NewInvalidInputError("conversation id and user id are required")
	}
	if !role.Valid() {
		return nil, apperrors.NewInvalidInputError("role must be user or assistant")
	}

	// The user profile must exist before the message references it.
	if _, err := r.profiles.GetOrCreate(ctx, userID); err != nil {
		return nil, err
	}

	model := models.MessageModel{
		ID:             uuid.NewString(),
		ConversationID: conversationID,
		UserID:         userID,
		Role:           string(role),
		Content:        content,
		TokensUsed:     tokensUsed,
	}
	if err := r.db.WithContext(ctx).Create(&model).Error; err != nil {
		return nil, apperrors.NewInternalErrorWithCause("failed to save message", err)
	}

	return messageToEntity(&model), nil
}

// ListByConversation returns the conversation's messages oldest first.
func (r *GormMessageRepository) ListByConversation(ctx context.Context, conversationID string) ([]*entity.Message, error) {
	var rows []models.MessageModel
	err := r.db.WithContext(ctx).
		Where("conversation_id = ?", conversationID).
		Order("created_at asc").
		Find(&rows).Error
	if err != nil {
		return nil, apperrors.NewInternalErrorWithCause("failed to list messages", err)
	}

	messages := make([]*entity.Message, 0, len(rows))
	for i := range rows {
		messages = append(messages, messageToEntity(&rows[i]))
	}
	return messages, nil
}

// ListRecentByUser returns up to limit of the user's messages, newest
// first.
func (r *GormMessageRepository) ListRecentByUser(ctx context.Context, userID string, limit int) ([]*entity.Message, error) {
	if limit <= 0 {
		limit = 50
	}
	var rows []models.MessageModel
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at desc").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, apperrors.NewInternalErrorWithCause("failed to list recent messages", err)
	}

	messages := make([]*entity.Message, 0, len(rows))
	for i := range rows {
		messages = append(messages, messageToEntity(&rows[i]))
	}
	return messages, nil
}

// CountByUser returns the user's total message count.
func (r *GormMessageRepository) CountByUser(ctx context.Context, userID string) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.MessageModel{}).
		Where("user_id = ?", userID).
		Count(&count).Error
	if err != nil {
		return 0, apperrors.NewInternalErrorWithCause("failed to count messages", err)
	}
	return count, nil
}

func messageToEntity(model *models.MessageModel) *entity.Message {
	return &entity.Message{
		ID:             model.ID,
		ConversationID: model.ConversationID,
		UserID:         model.UserID,
		Role:           entity.Role(model.Role),
		Content:        model.Content,
		TokensUsed:     model.TokensUsed,
		CreatedAt:      model.CreatedAt,
	}
}
