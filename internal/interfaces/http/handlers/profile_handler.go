package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/reflectchat/reflectchat/internal/domain/entity"
	"github.com/reflectchat/reflectchat/internal/domain/repository"
	apperrors "github.com/reflectchat/reflectchat/pkg/errors"
)

// ProfileHandler serves derived personality profiles.
type ProfileHandler struct {
	profiles repository.PersonalityProfileRepository
	logger   *zap.Logger
}

// NewProfileHandler creates the profile handler.
func NewProfileHandler(profiles repository.PersonalityProfileRepository, logger *zap.Logger) *ProfileHandler {
	return &ProfileHandler{
		profiles: profiles,
		logger:   logger.With(zap.String("handler", "profile")),
	}
}

// GetLatest handles GET /api/profile. A user with no profile yet gets
// {"profile": null}, not an error.
func (h *ProfileHandler) GetLatest(c *gin.Context) {
	userID := c.Query("userId")
	if userID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing userId"})
		return
	}

	profile, err := h.profiles.Latest(c.Request.Context(), userID)
	if err != nil {
		if apperrors.IsNotFound(err) {
			c.JSON(http.StatusOK, gin.H{"profile": nil})
			return
		}
		h.logger.Error("Failed to load latest profile", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"profile": profile})
}

// GetHistory handles GET /api/profile/history, returning all snapshots
// newest first.
func (h *ProfileHandler) GetHistory(c *gin.Context) {
	userID := c.Query("userId")
	if userID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing userId"})
		return
	}

	profiles, err := h.profiles.ListByUser(c.Request.Context(), userID)
	if err != nil {
		h.logger.Error("Failed to list profiles", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}
	if profiles == nil {
		profiles = []*entity.PersonalityProfile{}
	}

	c.JSON(http.StatusOK, gin.H{"profiles": profiles})
}
