package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/reflectchat/reflectchat/internal/application/usecase"
	"github.com/reflectchat/reflectchat/internal/domain/service"
)

// ChatHandler handles the chat turn endpoint. Plain messages are streamed
// over SSE; self-referential messages answer as a single JSON object.
type ChatHandler struct {
	chatTurn *usecase.ChatTurnUseCase
	logger   *zap.Logger
}

// NewChatHandler creates the chat handler.
func NewChatHandler(chatTurn *usecase.ChatTurnUseCase, logger *zap.Logger) *ChatHandler {
	return &ChatHandler{
		chatTurn: chatTurn,
		logger:   logger.With(zap.String("handler", "chat")),
	}
}

// ChatRequest is the JSON body for POST /api/chat.
type ChatRequest struct {
	ConversationID string `json:"conversationId"`
	UserID         string `json:"userId"`
	UserMessage    string `json:"userMessage"`
}

// Chat handles POST /api/chat.
//
// Streaming responses are a sequence of `data: {"chunk": ...}` events
// followed by a terminal `data: {"done": true, "profileGenerated": ...}`.
// SSE headers are written lazily so a failure before the first fragment
// can still surface as a plain 500.
func (h *ChatHandler) Chat(c *gin.Context) {
	var req ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.ConversationID == "" || req.UserID == "" || req.UserMessage == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing required fields"})
		return
	}

	turnReq := usecase.ChatTurnRequest{
		ConversationID: req.ConversationID,
		UserID:         req.UserID,
		UserMessage:    req.UserMessage,
	}

	if service.IsSelfReferential(req.UserMessage) {
		result, err := h.chatTurn.Execute(c.Request.Context(), turnReq)
		if err != nil {
			h.logger.Error("Chat turn failed", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"assistantResponse": result.AssistantResponse,
			"profileGenerated":  result.ProfileGenerated,
		})
		return
	}

	result, deltaCh := h.chatTurn.Run(c.Request.Context(), turnReq)

	flusher, _ := c.Writer.(http.Flusher)
	streaming := false
	startStream := func() {
		if streaming {
			return
		}
		streaming = true
		c.Writer.Header().Set("Content-Type", "text/event-stream")
		c.Writer.Header().Set("Cache-Control", "no-cache")
		c.Writer.Header().Set("Connection", "keep-alive")
		c.Writer.Header().Set("X-Accel-Buffering", "no")
		c.Writer.WriteHeader(http.StatusOK)
	}

	for chunk := range deltaCh {
		if chunk.DeltaText == "" {
			continue
		}
		startStream()
		data, _ := json.Marshal(gin.H{"chunk": chunk.DeltaText})
		fmt.Fprintf(c.Writer, "data: %s\n\n", data)
		if flusher != nil {
			flusher.Flush()
		}
	}

	if result.Err != nil {
		h.logger.Error("Chat turn failed", zap.Error(result.Err))
		if !streaming {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
			return
		}
		fmt.Fprintf(c.Writer, "data: %s\n\n", `{"error": "Internal server error"}`)
		if flusher != nil {
			flusher.Flush()
		}
		return
	}

	startStream()
	done, _ := json.Marshal(gin.H{"done": true, "profileGenerated": result.ProfileGenerated})
	fmt.Fprintf(c.Writer, "data: %s\n\n", done)
	if flusher != nil {
		flusher.Flush()
	}
}
