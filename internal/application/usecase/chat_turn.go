package usecase

import (
	"context"

	"go.uber.org/zap"

	"github.com/reflectchat/reflectchat/internal/domain/entity"
	"github.com/reflectchat/reflectchat/internal/domain/repository"
	"github.com/reflectchat/reflectchat/internal/domain/service"
	apperrors "github.com/reflectchat/reflectchat/pkg/errors"
	"github.com/reflectchat/reflectchat/pkg/safego"
)

// DeferralMessage is returned for self-referential questions when there
// is not yet enough history to analyze. No model call is made.
const DeferralMessage = "I'd love to tell you about yourself! Let's chat a bit more first, and after a few more messages, I'll have enough insight to share your personality profile."

// ChatTurnRequest is one incoming user message.
type ChatTurnRequest struct {
	ConversationID string
	UserID         string
	UserMessage    string
}

// ChatTurnResult is the outcome of a turn. When obtained from Run, its
// fields are valid only after the delta channel has closed.
type ChatTurnResult struct {
	AssistantResponse string
	ProfileGenerated  bool
	Err               error
}

// ChatTurnUseCase sequences one chat turn: persist the user message, load
// history, branch on self-referential intent, generate the reply, persist
// it, and run the best-effort side jobs (profile generation, title
// generation, stats refresh).
//
// The chat reply is the single protected output: every side job failure
// is logged and swallowed so a user-visible turn never fails because of
// them. Nothing is rolled back on failure — a user message saved before a
// downstream error stays saved.
type ChatTurnUseCase struct {
	messages  repository.MessageRepository
	convs     repository.ConversationRepository
	profiles  repository.PersonalityProfileRepository
	users     repository.UserProfileRepository
	assistant service.ChatAssistant
	logger    *zap.Logger
}

// NewChatTurnUseCase wires the chat turn pipeline.
func NewChatTurnUseCase(
	messages repository.MessageRepository,
	convs repository.ConversationRepository,
	profiles repository.PersonalityProfileRepository,
	users repository.UserProfileRepository,
	assistant service.ChatAssistant,
	logger *zap.Logger,
) *ChatTurnUseCase {
	return &ChatTurnUseCase{
		messages:  messages,
		convs:     convs,
		profiles:  profiles,
		users:     users,
		assistant: assistant,
		logger:    logger.With(zap.String("usecase", "chat_turn")),
	}
}

// Execute runs the turn synchronously without streaming.
func (uc *ChatTurnUseCase) Execute(ctx context.Context, req ChatTurnRequest) (*ChatTurnResult, error) {
	result := &ChatTurnResult{}
	uc.turn(ctx, req, nil, result)
	return result, result.Err
}

// Run executes the turn, streaming reply fragments to the returned
// channel in generation order. The result is populated once the channel
// closes; the terminal profileGenerated flag is only meaningful then,
// because profile and title generation run after the stream ends.
func (uc *ChatTurnUseCase) Run(ctx context.Context, req ChatTurnRequest) (*ChatTurnResult, <-chan service.StreamChunk) {
	result := &ChatTurnResult{}
	deltaCh := make(chan service.StreamChunk, 32)

	safego.Go(uc.logger, "chat-turn", func() {
		defer close(deltaCh)
		uc.turn(ctx, req, deltaCh, result)
	})

	return result, deltaCh
}

func (uc *ChatTurnUseCase) turn(ctx context.Context, req ChatTurnRequest, deltaCh chan<- service.StreamChunk, result *ChatTurnResult) {
	if _, err := uc.messages.Save(ctx, req.ConversationID, req.UserID, entity.RoleUser, req.UserMessage, 0); err != nil {
		result.Err = err
		return
	}

	history, err := uc.messages.ListByConversation(ctx, req.ConversationID)
	if err != nil {
		result.Err = err
		return
	}

	llmHistory := make([]service.LLMMessage, 0, len(history))
	for _, msg := range history {
		llmHistory = append(llmHistory, service.LLMMessage{
			Role:    string(msg.Role),
			Content: msg.Content,
		})
	}

	var reply string
	var tokensUsed int

	if service.IsSelfReferential(req.UserMessage) {
		reply, err = uc.selfReferentialReply(ctx, req, history, llmHistory, result)
		if err != nil {
			result.Err = err
			return
		}
	} else {
		var resp *service.LLMResponse
		if deltaCh != nil {
			resp, err = uc.assistant.ChatReplyStream(ctx, llmHistory, "", deltaCh)
		} else {
			resp, err = uc.assistant.ChatReply(ctx, llmHistory, "")
		}
		if err != nil {
			result.Err = err
			return
		}
		reply = resp.Content
		tokensUsed = resp.TokensUsed
	}

	if _, err := uc.messages.Save(ctx, req.ConversationID, req.UserID, entity.RoleAssistant, reply, tokensUsed); err != nil {
		result.Err = err
		return
	}

	// Auto-generate a profile once enough new conversation volume has
	// accumulated. Only plain turns trigger this; the self-referential
	// branch manages profiles itself.
	if !service.IsSelfReferential(req.UserMessage) {
		uc.maybeGenerateProfile(ctx, req, history, append(llmHistory, service.LLMMessage{Role: "assistant", Content: reply}), result)
	}

	// First exchange: replace the placeholder title.
	if len(history) == 1 {
		uc.generateTitle(ctx, req)
	}

	uc.refreshStats(ctx, req.UserID)

	result.AssistantResponse = reply
}

// selfReferentialReply handles a question the user asks about themselves.
func (uc *ChatTurnUseCase) selfReferentialReply(ctx context.Context, req ChatTurnRequest, history []*entity.Message, llmHistory []service.LLMMessage, result *ChatTurnResult) (string, error) {
	existing, err := uc.profiles.Latest(ctx, req.UserID)
	if err != nil && !apperrors.IsNotFound(err) {
		return "", err
	}

	if existing != nil && existing.ConfidenceScore > service.MinUsableConfidence {
		return uc.assistant.ProfileReply(ctx, req.UserMessage, existing)
	}

	if len(history) >= service.MinHistoryForProfileRequest {
		analysis, err := uc.assistant.AnalyzePersonality(ctx, llmHistory)
		if err != nil {
			return "", err
		}
		convID := req.ConversationID
		saved, err := uc.profiles.Save(ctx, req.UserID, &convID, analysis)
		if err != nil {
			return "", err
		}
		result.ProfileGenerated = true
		return uc.assistant.ProfileReply(ctx, req.UserMessage, saved)
	}

	// Not enough history to analyze yet.
	return DeferralMessage, nil
}

// maybeGenerateProfile runs the trigger policy and, when it fires,
// generates and persists a new profile snapshot. Best effort: failures
// never reach the user.
func (uc *ChatTurnUseCase) maybeGenerateProfile(ctx context.Context, req ChatTurnRequest, history []*entity.Message, llmHistory []service.LLMMessage, result *ChatTurnResult) {
	messageCount := len(history)

	var lastCount *int
	latest, err := uc.profiles.Latest(ctx, req.UserID)
	switch {
	case err == nil:
		// The message count recorded at the previous generation is the
		// number of history messages that existed when that snapshot was
		// taken.
		n := 0
		for _, msg := range history {
			if !msg.CreatedAt.After(latest.CreatedAt) {
				n++
			}
		}
		lastCount = &n
	case apperrors.IsNotFound(err):
		// No prior profile.
	default:
		uc.logger.Warn("Failed to load latest profile for trigger check", zap.Error(err))
		return
	}

	if !service.ShouldGenerateProfile(messageCount, lastCount) {
		return
	}

	analysis, err := uc.assistant.AnalyzePersonality(ctx, llmHistory)
	if err != nil {
		uc.logger.Error("Error generating personality profile", zap.Error(err))
		return
	}
	convID := req.ConversationID
	if _, err := uc.profiles.Save(ctx, req.UserID, &convID, analysis); err != nil {
		uc.logger.Error("Error saving personality profile", zap.Error(err))
		return
	}
	result.ProfileGenerated = true
}

// generateTitle replaces the conversation's placeholder title. Best
// effort.
func (uc *ChatTurnUseCase) generateTitle(ctx context.Context, req ChatTurnRequest) {
	title, err := uc.assistant.ConversationTitle(ctx, req.UserMessage)
	if err != nil {
		uc.logger.Error("Error generating title", zap.Error(err))
		return
	}
	if err := uc.convs.UpdateTitle(ctx, req.ConversationID, title); err != nil {
		uc.logger.Error("Error updating conversation title", zap.Error(err))
	}
}

// refreshStats rewrites the user's denormalized counters. Best effort.
func (uc *ChatTurnUseCase) refreshStats(ctx context.Context, userID string) {
	msgCount, err := uc.messages.CountByUser(ctx, userID)
	if err != nil {
		uc.logger.Warn("Failed to count messages for stats", zap.Error(err))
		return
	}
	convCount, err := uc.convs.CountByUser(ctx, userID)
	if err != nil {
		uc.logger.Warn("Failed to count conversations for stats", zap.Error(err))
		return
	}
	if err := uc.users.UpdateStats(ctx, userID, int(msgCount), int(convCount)); err != nil {
		uc.logger.Warn("Failed to update user stats", zap.Error(err))
	}
}
