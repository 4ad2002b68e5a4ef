package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/reflectchat/reflectchat/internal/domain/entity"
	"github.com/reflectchat/reflectchat/internal/domain/repository"
	apperrors "github.com/reflectchat/reflectchat/pkg/errors"
)

const defaultRecentLimit = 50

// ConversationHandler serves conversation and message retrieval.
type ConversationHandler struct {
	convs    repository.ConversationRepository
	messages repository.MessageRepository
	logger   *zap.Logger
}

// NewConversationHandler creates the conversation handler.
func NewConversationHandler(convs repository.ConversationRepository, messages repository.MessageRepository, logger *zap.Logger) *ConversationHandler {
	return &ConversationHandler{
		convs:    convs,
		messages: messages,
		logger:   logger.With(zap.String("handler", "conversation")),
	}
}

// CreateRequest is the JSON body for POST /api/conversations.
type CreateRequest struct {
	UserID string `json:"userId"`
	Title  string `json:"title"`
}

// Create handles POST /api/conversations. An empty title gets a
// timestamped placeholder; the real title arrives after the first
// exchange.
func (h *ConversationHandler) Create(c *gin.Context) {
	var req CreateRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.UserID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing userId"})
		return
	}

	conv, err := h.convs.Create(c.Request.Context(), req.UserID, req.Title)
	if err != nil {
		h.logger.Error("Failed to create conversation", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}

	c.JSON(http.StatusCreated, gin.H{"conversation": conv})
}

// List handles GET /api/conversations, newest first.
func (h *ConversationHandler) List(c *gin.Context) {
	userID := c.Query("userId")
	if userID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing userId"})
		return
	}

	convs, err := h.convs.ListByUser(c.Request.Context(), userID)
	if err != nil {
		h.logger.Error("Failed to list conversations", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}
	if convs == nil {
		convs = []*entity.Conversation{}
	}

	c.JSON(http.StatusOK, gin.H{"conversations": convs})
}

// Messages handles GET /api/conversations/:id/messages, oldest first.
func (h *ConversationHandler) Messages(c *gin.Context) {
	conversationID := c.Param("id")

	if _, err := h.convs.FindByID(c.Request.Context(), conversationID); err != nil {
		if apperrors.IsNotFound(err) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Conversation not found"})
			return
		}
		h.logger.Error("Failed to load conversation", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}

	msgs, err := h.messages.ListByConversation(c.Request.Context(), conversationID)
	if err != nil {
		h.logger.Error("Failed to list messages", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}
	if msgs == nil {
		msgs = []*entity.Message{}
	}

	c.JSON(http.StatusOK, gin.H{"messages": msgs})
}

// RecentMessages handles GET /api/messages/recent, newest first across
// all of the user's conversations.
func (h *ConversationHandler) RecentMessages(c *gin.Context) {
	userID := c.Query("userId")
	if userID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing userId"})
		return
	}

	limit := defaultRecentLimit
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid limit"})
			return
		}
		limit = parsed
	}

	msgs, err := h.messages.ListRecentByUser(c.Request.Context(), userID, limit)
	if err != nil {
		h.logger.Error("Failed to list recent messages", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}
	if msgs == nil {
		msgs = []*entity.Message{}
	}

	c.JSON(http.StatusOK, gin.H{"messages": msgs})
}
