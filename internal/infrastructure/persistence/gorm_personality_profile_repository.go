package persistence

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/reflectchat/reflectchat/internal/domain/entity"
	"github.com/reflectchat/reflectchat/internal/domain/repository"
	"github.com/reflectchat/reflectchat/internal/infrastructure/persistence/models"
	apperrors "github.com/reflectchat/reflectchat/pkg/errors"
)

// GormPersonalityProfileRepository is the GORM personality profile store.
// Profiles are append-only snapshots.
type GormPersonalityProfileRepository struct {
	db *gorm.DB
}

// NewGormPersonalityProfileRepository creates the repository.
func NewGormPersonalityProfileRepository(db *gorm.DB) repository.PersonalityProfileRepository {
	return &GormPersonalityProfileRepository{db: db}
}

// Save inserts a new profile snapshot.
func (r *GormPersonalityProfileRepository) Save(ctx context.Context, userID string, conversationID *string, analysis *entity.ProfileAnalysis) (*entity.PersonalityProfile, error) {
	if userID == "" {
		return nil, apperrors.NewInvalidInputError("user id is required")
	}

	model, err := analysisToModel(userID, conversationID, analysis)
	if err != nil {
		return nil, err
	}

	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		return nil, apperrors.NewInternalErrorWithCause("failed to save personality profile", err)
	}

	return profileToEntity(model), nil
}

// Latest returns the user's most recent profile snapshot.
func (r *GormPersonalityProfileRepository) Latest(ctx context.Context, userID string) (*entity.PersonalityProfile, error) {
	var model models.PersonalityProfileModel
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at desc").
		First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.NewNotFoundError("no personality profile recorded")
		}
		return nil, apperrors.NewInternalErrorWithCause("failed to load personality profile", err)
	}
	return profileToEntity(&model), nil
}

// ListByUser returns all of the user's profile snapshots, newest first.
func (r *GormPersonalityProfileRepository) ListByUser(ctx context.Context, userID string) ([]*entity.PersonalityProfile, error) {
	var rows []models.PersonalityProfileModel
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at desc").
		Find(&rows).Error
	if err != nil {
		return nil, apperrors.NewInternalErrorWithCause("failed to list personality profiles", err)
	}

	profiles := make([]*entity.PersonalityProfile, 0, len(rows))
	for i := range rows {
		profiles = append(profiles, profileToEntity(&rows[i]))
	}
	return profiles, nil
}

func analysisToModel(userID string, conversationID *string, analysis *entity.ProfileAnalysis) (*models.PersonalityProfileModel, error) {
	traits, err := json.Marshal(analysis.PersonalityTraits)
	if err != nil {
		return nil, apperrors.NewInternalErrorWithCause("failed to marshal traits", err)
	}
	interests, err := json.Marshal(analysis.Interests)
	if err != nil {
		return nil, apperrors.NewInternalErrorWithCause("failed to marshal interests", err)
	}
	patterns, err := json.Marshal(analysis.DetectedPatterns)
	if err != nil {
		return nil, apperrors.NewInternalErrorWithCause("failed to marshal patterns", err)
	}

	confidence := analysis.ConfidenceScore
	if confidence < 0 {
		confidence = 0
	}
	if confidence > 1 {
		confidence = 1
	}

	return &models.PersonalityProfileModel{
		ID:                 uuid.NewString(),
		UserID:             userID,
		ConversationID:     conversationID,
		PersonalityTraits:  string(traits),
		Interests:          string(interests),
		CommunicationStyle: analysis.CommunicationStyle,
		DetectedPatterns:   string(patterns),
		ConfidenceScore:    confidence,
	}, nil
}

func profileToEntity(model *models.PersonalityProfileModel) *entity.PersonalityProfile {
	profile := &entity.PersonalityProfile{
		ID:                 model.ID,
		UserID:             model.UserID,
		ConversationID:     model.ConversationID,
		PersonalityTraits:  []entity.PersonalityTrait{},
		Interests:          []string{},
		CommunicationStyle: model.CommunicationStyle,
		DetectedPatterns:   map[string]any{},
		ConfidenceScore:    model.ConfidenceScore,
		CreatedAt:          model.CreatedAt,
		UpdatedAt:          model.UpdatedAt,
	}

	// A decode failure degrades to empty values rather than failing the
	// read path.
	if model.PersonalityTraits != "" {
		if err := json.Unmarshal([]byte(model.PersonalityTraits), &profile.PersonalityTraits); err != nil {
			profile.PersonalityTraits = []entity.PersonalityTrait{}
		}
	}
	if model.Interests != "" {
		if err := json.Unmarshal([]byte(model.Interests), &profile.Interests); err != nil {
			profile.Interests = []string{}
		}
	}
	if model.DetectedPatterns != "" {
		if err := json.Unmarshal([]byte(model.DetectedPatterns), &profile.DetectedPatterns); err != nil {
			profile.DetectedPatterns = map[string]any{}
		}
	}

	if profile.PersonalityTraits == nil {
		profile.PersonalityTraits = []entity.PersonalityTrait{}
	}
	if profile.Interests == nil {
		profile.Interests = []string{}
	}
	if profile.DetectedPatterns == nil {
		profile.DetectedPatterns = map[string]any{}
	}

	return profile
}
