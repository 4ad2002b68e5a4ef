package persistence

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/reflectchat/reflectchat/internal/domain/entity"
	"github.com/reflectchat/reflectchat/internal/domain/repository"
	"github.com/reflectchat/reflectchat/internal/infrastructure/persistence/models"
	apperrors "github.com/reflectchat/reflectchat/pkg/errors"
)

// GormConversationRepository is the GORM conversation store.
type GormConversationRepository struct {
	db       *gorm.DB
	profiles repository.UserProfileRepository
}

// NewGormConversationRepository creates the repository. The user profile
// repository is needed to satisfy the profile foreign-key dependency on
// create.
func NewGormConversationRepository(db *gorm.DB, profiles repository.UserProfileRepository) repository.ConversationRepository {
	return &GormConversationRepository{db: db, profiles: profiles}
}

// Create inserts a conversation, defaulting the title to a timestamped
// placeholder when none is given.
func (r *GormConversationRepository) Create(ctx context.Context, userID, title string) (*entity.Conversation, error) {
	if userID == "" {
		return nil, apperrors.NewInvalidInputError("user id is required")
	}

	// The user profile must exist before the conversation references it.
	if _, err := r.profiles.GetOrCreate(ctx, userID); err != nil {
		return nil, err
	}

	if title == "" {
		title = fmt.Sprintf("Conversation - %s", time.Now().Format("1/2/2006, 3:04:05 PM"))
	}

	model := models.ConversationModel{
		ID:     uuid.NewString(),
		UserID: userID,
		Title:  &title,
	}
	if err := r.db.WithContext(ctx).Create(&model).Error; err != nil {
		return nil, apperrors.NewInternalErrorWithCause("failed to create conversation", err)
	}

	return conversationToEntity(&model), nil
}

// ListByUser returns the user's conversations, newest first.
func (r *GormConversationRepository) ListByUser(ctx context.Context, userID string) ([]*entity.Conversation, error) {
	var rows []models.ConversationModel
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at desc").
		Find(&rows).Error
	if err != nil {
		return nil, apperrors.NewInternalErrorWithCause("failed to list conversations", err)
	}

	conversations := make([]*entity.Conversation, 0, len(rows))
	for i := range rows {
		conversations = append(conversations, conversationToEntity(&rows[i]))
	}
	return conversations, nil
}

// FindByID returns one conversation.
func (r *GormConversationRepository) FindByID(ctx context.Context, id string) (*entity.Conversation, error) {
	var model models.ConversationModel
	if err := r.db.WithContext(ctx).First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.NewNotFoundError("conversation not found")
		}
		return nil, apperrors.NewInternalErrorWithCause("failed to find conversation", err)
	}
	return conversationToEntity(&model), nil
}

// UpdateTitle rewrites the title and bumps updated_at.
func (r *GormConversationRepository) UpdateTitle(ctx context.Context, id, title string) error {
	result := r.db.WithContext(ctx).
		Model(&models.ConversationModel{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"title":      title,
			"updated_at": time.Now().UTC(),
		})
	if result.Error != nil {
		return apperrors.NewInternalErrorWithCause("failed to update conversation title", result.Error)
	}
	if result.RowsAffected == 0 {
		return apperrors.NewNotFoundError("conversation not found")
	}
	return nil
}

// CountByUser returns how many conversations the user owns.
func (r *GormConversationRepository) CountByUser(ctx context.Context, userID string) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.ConversationModel{}).
		Where("user_id = ?", userID).
		Count(&count).Error
	if err != nil {
		return 0, apperrors.NewInternalErrorWithCause("failed to count conversations", err)
	}
	return count, nil
}

func conversationToEntity(model *models.ConversationModel) *entity.Conversation {
	return &entity.Conversation{
		ID:        model.ID,
		UserID:    model.UserID,
		Title:     model.Title,
		CreatedAt: model.CreatedAt,
		UpdatedAt: model.UpdatedAt,
	}
}
