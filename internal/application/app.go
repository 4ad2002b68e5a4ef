package application

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/reflectchat/reflectchat/internal/application/usecase"
	"github.com/reflectchat/reflectchat/internal/domain/repository"
	"github.com/reflectchat/reflectchat/internal/domain/service"
	"github.com/reflectchat/reflectchat/internal/infrastructure/config"
	"github.com/reflectchat/reflectchat/internal/infrastructure/llm"
	"github.com/reflectchat/reflectchat/internal/infrastructure/persistence"
	httpServer "github.com/reflectchat/reflectchat/internal/interfaces/http"
)

// App is the dependency injection container.
type App struct {
	config *config.Config
	logger *zap.Logger
	db     *gorm.DB

	userProfileRepo repository.UserProfileRepository
	convRepo        repository.ConversationRepository
	messageRepo     repository.MessageRepository
	profileRepo     repository.PersonalityProfileRepository

	assistant service.ChatAssistant

	chatTurn *usecase.ChatTurnUseCase

	httpServer *httpServer.Server
}

// NewApp wires all layers together.
func NewApp(cfg *config.Config, logger *zap.Logger) (*App, error) {
	app := &App{
		config: cfg,
		logger: logger,
	}

	if err := app.initRepositories(); err != nil {
		return nil, fmt.Errorf("failed to init repositories: %w", err)
	}
	if err := app.initInfrastructure(); err != nil {
		return nil, fmt.Errorf("failed to init infrastructure: %w", err)
	}
	app.initApplicationServices()
	app.initInterfaces()

	return app, nil
}

func (a *App) initRepositories() error {
	db, err := persistence.NewDBConnection(&a.config.Database)
	if err != nil {
		return err
	}
	a.db = db

	a.userProfileRepo = persistence.NewGormUserProfileRepository(db)
	a.convRepo = persistence.NewGormConversationRepository(db, a.userProfileRepo)
	a.messageRepo = persistence.NewGormMessageRepository(db, a.userProfileRepo)
	a.profileRepo = persistence.NewGormPersonalityProfileRepository(db)

	return nil
}

func (a *App) initInfrastructure() error {
	llmCfg := llm.Config{
		BaseURL:     a.config.LLM.BaseURL,
		APIKey:      a.config.LLM.APIKey,
		Model:       a.config.LLM.Model,
		MaxTokens:   a.config.LLM.MaxTokens,
		Temperature: a.config.LLM.Temperature,
	}

	client, err := llm.NewClient(llmCfg, a.logger)
	if err != nil {
		return err
	}
	a.assistant = llm.NewAssistant(client, llmCfg, a.config.Profile.AnalysisMaxTokens, a.logger)

	return nil
}

func (a *App) initApplicationServices() {
	a.chatTurn = usecase.NewChatTurnUseCase(
		a.messageRepo,
		a.convRepo,
		a.profileRepo,
		a.userProfileRepo,
		a.assistant,
		a.logger,
	)
}

func (a *App) initInterfaces() {
	a.httpServer = httpServer.NewServer(
		httpServer.Config{
			Host: a.config.Server.Host,
			Port: a.config.Server.Port,
			Mode: a.config.Server.Mode,
		},
		a.chatTurn,
		httpServer.Repositories{
			Conversations: a.convRepo,
			Messages:      a.messageRepo,
			Profiles:      a.profileRepo,
		},
		a.logger,
	)
}

// Start brings up the outward-facing interfaces.
func (a *App) Start(ctx context.Context) error {
	return a.httpServer.Start(ctx)
}

// Stop shuts everything down gracefully.
func (a *App) Stop(ctx context.Context) error {
	if err := a.httpServer.Stop(ctx); err != nil {
		return err
	}

	if sqlDB, err := a.db.DB(); err == nil {
		if err := sqlDB.Close(); err != nil {
			a.logger.Warn("Failed to close database", zap.Error(err))
		}
	}

	return nil
}

// ChatTurnUseCase exposes the chat pipeline for non-HTTP frontends.
func (a *App) ChatTurnUseCase() *usecase.ChatTurnUseCase {
	return a.chatTurn
}

// ConversationRepository exposes conversation storage for non-HTTP
// frontends.
func (a *App) ConversationRepository() repository.ConversationRepository {
	return a.convRepo
}

// Logger exposes the application logger.
func (a *App) Logger() *zap.Logger {
	return a.logger
}
