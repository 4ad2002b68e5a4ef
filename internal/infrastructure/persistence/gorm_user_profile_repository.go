package persistence

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/reflectchat/reflectchat/internal/domain/entity"
	"github.com/reflectchat/reflectchat/internal/domain/repository"
	"github.com/reflectchat/reflectchat/internal/infrastructure/persistence/models"
	apperrors "github.com/reflectchat/reflectchat/pkg/errors"
)

// GormUserProfileRepository is the GORM user profile store.
type GormUserProfileRepository struct {
	db *gorm.DB
}

// NewGormUserProfileRepository creates the repository.
func NewGormUserProfileRepository(db *gorm.DB) repository.UserProfileRepository {
	return &GormUserProfileRepository{db: db}
}

// GetOrCreate returns the profile for userID, inserting one when absent.
// Idempotent under race: a concurrent insert losing on the primary key
// constraint falls back to re-reading the winner's row.
func (r *GormUserProfileRepository) GetOrCreate(ctx context.Context, userID string) (*entity.UserProfile, error) {
	if userID == "" {
		return nil, apperrors.NewInvalidInputError("user id is required")
	}

	var model models.UserProfileModel
	err := r.db.WithContext(ctx).First(&model, "id = ?", userID).Error
	if err == nil {
		return userProfileToEntity(&model), nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperrors.NewInternalErrorWithCause("failed to load user profile", err)
	}

	model = models.UserProfileModel{ID: userID}
	if err := r.db.WithContext(ctx).Create(&model).Error; err != nil {
		// Lost the race to a concurrent first access — the row exists now.
		var existing models.UserProfileModel
		if readErr := r.db.WithContext(ctx).First(&existing, "id = ?", userID).Error; readErr == nil {
			return userProfileToEntity(&existing), nil
		}
		return nil, apperrors.NewInternalErrorWithCause("failed to create user profile", err)
	}

	return userProfileToEntity(&model), nil
}

// UpdateStats rewrites the denormalized counters.
func (r *GormUserProfileRepository) UpdateStats(ctx context.Context, userID string, totalMessages, conversationCount int) error {
	result := r.db.WithContext(ctx).
		Model(&models.UserProfileModel{}).
		Where("id = ?", userID).
		Updates(map[string]any{
			"total_messages":     totalMessages,
			"conversation_count": conversationCount,
			"updated_at":         time.Now().UTC(),
		})
	if result.Error != nil {
		return apperrors.NewInternalErrorWithCause("failed to update user stats", result.Error)
	}
	if result.RowsAffected == 0 {
		return apperrors.NewNotFoundError("user profile not found")
	}
	return nil
}

func userProfileToEntity(model *models.UserProfileModel) *entity.UserProfile {
	return &entity.UserProfile{
		ID:                model.ID,
		ConversationCount: model.ConversationCount,
		TotalMessages:     model.TotalMessages,
		CreatedAt:         model.CreatedAt,
		UpdatedAt:         model.UpdatedAt,
	}
}
