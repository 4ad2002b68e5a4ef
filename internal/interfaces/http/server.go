package http

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/reflectchat/reflectchat/internal/application/usecase"
	"github.com/reflectchat/reflectchat/internal/domain/repository"
	"github.com/reflectchat/reflectchat/internal/interfaces/http/handlers"
	ws "github.com/reflectchat/reflectchat/internal/interfaces/websocket"
)

// Server is the HTTP server.
type Server struct {
	server *http.Server
	logger *zap.Logger
}

// Config is the HTTP server configuration.
type Config struct {
	Host string
	Port int
	Mode string // local, production
}

// Repositories bundles the read-side stores the retrieval endpoints use.
type Repositories struct {
	Conversations repository.ConversationRepository
	Messages      repository.MessageRepository
	Profiles      repository.PersonalityProfileRepository
}

// NewServer creates the HTTP server with all routes registered.
func NewServer(cfg Config, chatTurn *usecase.ChatTurnUseCase, repos Repositories, logger *zap.Logger) *Server {
	if cfg.Mode == "production" {
		gin.SetMode(gin.ReleaseMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(ginLogger(logger))

	chatHandler := handlers.NewChatHandler(chatTurn, logger)
	profileHandler := handlers.NewProfileHandler(repos.Profiles, logger)
	convHandler := handlers.NewConversationHandler(repos.Conversations, repos.Messages, logger)
	wsHandler := ws.NewHandler(chatTurn, logger)

	setupRoutes(router, chatHandler, profileHandler, convHandler, wsHandler)

	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	server := &http.Server{
		Addr:    addr,
		Handler: router,
	}

	return &Server{
		server: server,
		logger: logger,
	}
}

// Start begins serving in the background.
func (s *Server) Start(ctx context.Context) error {
	s.logger.Info("Starting HTTP server", zap.String("address", s.server.Addr))

	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error("HTTP server error", zap.Error(err))
		}
	}()

	return nil
}

// Stop shuts the server down gracefully.
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("Stopping HTTP server")
	return s.server.Shutdown(ctx)
}

func setupRoutes(router *gin.Engine, chatHandler *handlers.ChatHandler, profileHandler *handlers.ProfileHandler, convHandler *handlers.ConversationHandler, wsHandler *ws.Handler) {
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status": "ok",
			"time":   time.Now().Unix(),
		})
	})

	api := router.Group("/api")
	{
		api.POST("/chat", chatHandler.Chat)

		api.GET("/profile", profileHandler.GetLatest)
		api.GET("/profile/history", profileHandler.GetHistory)

		api.POST("/conversations", convHandler.Create)
		api.GET("/conversations", convHandler.List)
		api.GET("/conversations/:id/messages", convHandler.Messages)

		api.GET("/messages/recent", convHandler.RecentMessages)
	}

	router.GET("/ws/chat", wsHandler.Serve)
}

// ginLogger is the request logging middleware.
func ginLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		query := c.Request.URL.RawQuery

		c.Next()

		latency := time.Since(start)
		statusCode := c.Writer.Status()

		logger.Info("HTTP request",
			zap.String("method", c.Request.Method),
			zap.String("path", path),
			zap.String("query", query),
			zap.Int("status", statusCode),
			zap.Duration("latency", latency),
			zap.String("ip", c.ClientIP()),
		)
	}
}
