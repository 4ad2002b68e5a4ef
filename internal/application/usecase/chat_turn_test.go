package usecase

import (
	"context"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/reflectchat/reflectchat/internal/domain/entity"
	"github.com/reflectchat/reflectchat/internal/domain/service"
	apperrors "github.com/reflectchat/reflectchat/pkg/errors"
)

var testBase = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

type memMessages struct {
	byConv   map[string][]*entity.Message
	seq      int
	failSave bool
}

func newMemMessages() *memMessages {
	return &memMessages{byConv: make(map[string][]*entity.Message)}
}

func (m *memMessages) Save(_ context.Context, conversationID, userID string, role entity.Role, content string, tokensUsed int) (*entity.Message, error) {
	if m.failSave {
		return nil, apperrors.NewInternalError("insert failed")
	}
	msg := &entity.Message{
		ID:             "msg-" + time.Duration(m.seq).String(),
		ConversationID: conversationID,
		UserID:         userID,
		Role:           role,
		Content:        content,
		TokensUsed:     tokensUsed,
		CreatedAt:      testBase.Add(time.Duration(m.seq) * time.Minute),
	}
	m.seq++
	m.byConv[conversationID] = append(m.byConv[conversationID], msg)
	return msg, nil
}

func (m *memMessages) ListByConversation(_ context.Context, conversationID string) ([]*entity.Message, error) {
	return append([]*entity.Message(nil), m.byConv[conversationID]...), nil
}

func (m *memMessages) ListRecentByUser(_ context.Context, userID string, limit int) ([]*entity.Message, error) {
	return nil, nil
}

func (m *memMessages) CountByUser(_ context.Context, userID string) (int64, error) {
	var n int64
	for _, msgs := range m.byConv {
		for _, msg := range msgs {
			if msg.UserID == userID {
				n++
			}
		}
	}
	return n, nil
}

// seed inserts prior history without going through Save's failure switch.
func (m *memMessages) seed(conversationID, userID string, count int) {
	for i := 0; i < count; i++ {
		role := entity.RoleUser
		if i%2 == 1 {
			role = entity.RoleAssistant
		}
		m.byConv[conversationID] = append(m.byConv[conversationID], &entity.Message{
			ID:             "seed",
			ConversationID: conversationID,
			UserID:         userID,
			Role:           role,
			Content:        "earlier message",
			CreatedAt:      testBase.Add(time.Duration(m.seq) * time.Minute),
		})
		m.seq++
	}
}

type memConvs struct {
	titles    map[string]string
	convCount int64
}

func (c *memConvs) Create(_ context.Context, userID, title string) (*entity.Conversation, error) {
	return &entity.Conversation{ID: "conv-new", UserID: userID}, nil
}

func (c *memConvs) ListByUser(_ context.Context, userID string) ([]*entity.Conversation, error) {
	return nil, nil
}

func (c *memConvs) FindByID(_ context.Context, id string) (*entity.Conversation, error) {
	return &entity.Conversation{ID: id}, nil
}

func (c *memConvs) UpdateTitle(_ context.Context, id, title string) error {
	if c.titles == nil {
		c.titles = make(map[string]string)
	}
	c.titles[id] = title
	return nil
}

func (c *memConvs) CountByUser(_ context.Context, userID string) (int64, error) {
	return c.convCount, nil
}

type memProfiles struct {
	latest        *entity.PersonalityProfile
	savedAnalysis *entity.ProfileAnalysis
	saveCalls     int
}

func (p *memProfiles) Save(_ context.Context, userID string, conversationID *string, analysis *entity.ProfileAnalysis) (*entity.PersonalityProfile, error) {
	p.saveCalls++
	p.savedAnalysis = analysis
	saved := &entity.PersonalityProfile{
		ID:                 "profile-saved",
		UserID:             userID,
		ConversationID:     conversationID,
		PersonalityTraits:  analysis.PersonalityTraits,
		Interests:          analysis.Interests,
		CommunicationStyle: analysis.CommunicationStyle,
		DetectedPatterns:   analysis.DetectedPatterns,
		ConfidenceScore:    analysis.ConfidenceScore,
		CreatedAt:          time.Now().UTC(),
	}
	p.latest = saved
	return saved, nil
}

func (p *memProfiles) Latest(_ context.Context, userID string) (*entity.PersonalityProfile, error) {
	if p.latest == nil {
		return nil, apperrors.NewNotFoundError("no profile")
	}
	return p.latest, nil
}

func (p *memProfiles) ListByUser(_ context.Context, userID string) ([]*entity.PersonalityProfile, error) {
	if p.latest == nil {
		return nil, nil
	}
	return []*entity.PersonalityProfile{p.latest}, nil
}

type memUsers struct {
	lastMessages      int
	lastConversations int
	statsCalls        int
}

func (u *memUsers) GetOrCreate(_ context.Context, userID string) (*entity.UserProfile, error) {
	return &entity.UserProfile{ID: userID}, nil
}

func (u *memUsers) UpdateStats(_ context.Context, userID string, totalMessages, conversationCount int) error {
	u.statsCalls++
	u.lastMessages = totalMessages
	u.lastConversations = conversationCount
	return nil
}

type fakeAssistant struct {
	chatReply    string
	analysis     *entity.ProfileAnalysis
	analyzeErr   error
	profileReply string
	title        string

	chatCalls         int
	analyzeCalls      int
	profileReplyCalls int
	titleCalls        int
	lastAnalyzedLen   int
}

func (a *fakeAssistant) ChatReply(_ context.Context, history []service.LLMMessage, _ string) (*service.LLMResponse, error) {
	a.chatCalls++
	return &service.LLMResponse{Content: a.chatReply, FinishReason: "stop", TokensUsed: 12}, nil
}

func (a *fakeAssistant) ChatReplyStream(ctx context.Context, history []service.LLMMessage, systemPrompt string, deltaCh chan<- service.StreamChunk) (*service.LLMResponse, error) {
	a.chatCalls++
	half := len(a.chatReply) / 2
	deltaCh <- service.StreamChunk{DeltaText: a.chatReply[:half]}
	deltaCh <- service.StreamChunk{DeltaText: a.chatReply[half:], FinishReason: "stop"}
	return &service.LLMResponse{Content: a.chatReply, FinishReason: "stop", TokensUsed: 12}, nil
}

func (a *fakeAssistant) AnalyzePersonality(_ context.Context, history []service.LLMMessage) (*entity.ProfileAnalysis, error) {
	a.analyzeCalls++
	a.lastAnalyzedLen = len(history)
	if a.analyzeErr != nil {
		return nil, a.analyzeErr
	}
	return a.analysis, nil
}

func (a *fakeAssistant) ProfileReply(_ context.Context, userInput string, profile *entity.PersonalityProfile) (string, error) {
	a.profileReplyCalls++
	return a.profileReply, nil
}

func (a *fakeAssistant) ConversationTitle(_ context.Context, userMessage string) (string, error) {
	a.titleCalls++
	return a.title, nil
}

type fixture struct {
	messages  *memMessages
	convs     *memConvs
	profiles  *memProfiles
	users     *memUsers
	assistant *fakeAssistant
	uc        *ChatTurnUseCase
}

func newFixture() *fixture {
	f := &fixture{
		messages: newMemMessages(),
		convs:    &memConvs{convCount: 1},
		profiles: &memProfiles{},
		users:    &memUsers{},
		assistant: &fakeAssistant{
			chatReply:    "Nice to hear from you!",
			analysis:     &entity.ProfileAnalysis{CommunicationStyle: "direct", ConfidenceScore: 0.7},
			profileReply: "You come across as curious and direct.",
			title:        "Weekend Plans",
		},
	}
	f.uc = NewChatTurnUseCase(f.messages, f.convs, f.profiles, f.users, f.assistant, zap.NewNop())
	return f
}

func request(msg string) ChatTurnRequest {
	return ChatTurnRequest{ConversationID: "conv-1", UserID: "user-1", UserMessage: msg}
}

func TestSelfReferentialDefersWithoutEnoughHistory(t *testing.T) {
	f := newFixture()
	f.messages.seed("conv-1", "user-1", 2)

	result, err := f.uc.Execute(context.Background(), request("Who am I?"))
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if result.AssistantResponse != DeferralMessage {
		t.Fatalf("expected deferral message, got %q", result.AssistantResponse)
	}
	if result.ProfileGenerated {
		t.Fatal("deferral must not generate a profile")
	}
	if f.assistant.chatCalls != 0 || f.assistant.analyzeCalls != 0 || f.assistant.profileReplyCalls != 0 {
		t.Fatalf("deferral must not call the model: chat=%d analyze=%d profileReply=%d",
			f.assistant.chatCalls, f.assistant.analyzeCalls, f.assistant.profileReplyCalls)
	}

	msgs := f.messages.byConv["conv-1"]
	if len(msgs) != 4 {
		t.Fatalf("expected 4 stored messages, got %d", len(msgs))
	}
	last := msgs[len(msgs)-1]
	if last.Role != entity.RoleAssistant || last.Content != DeferralMessage {
		t.Fatalf("deferral reply not persisted: role=%s content=%q", last.Role, last.Content)
	}
}

func TestSelfReferentialUsesExistingProfile(t *testing.T) {
	f := newFixture()
	f.messages.seed("conv-1", "user-1", 2)
	f.profiles.latest = &entity.PersonalityProfile{ID: "p1", UserID: "user-1", ConfidenceScore: 0.8}

	result, err := f.uc.Execute(context.Background(), request("tell me about myself"))
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if result.AssistantResponse != f.assistant.profileReply {
		t.Fatalf("expected profile reply, got %q", result.AssistantResponse)
	}
	if f.assistant.analyzeCalls != 0 {
		t.Fatal("usable profile must not trigger re-analysis")
	}
	if result.ProfileGenerated {
		t.Fatal("reuse of an existing profile is not a generation")
	}
}

func TestSelfReferentialReanalyzesLowConfidence(t *testing.T) {
	f := newFixture()
	f.messages.seed("conv-1", "user-1", 9)
	f.profiles.latest = &entity.PersonalityProfile{
		ID: "p1", UserID: "user-1", ConfidenceScore: 0.2,
		CreatedAt: testBase.Add(-time.Hour),
	}

	result, err := f.uc.Execute(context.Background(), request("what am I like?"))
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if f.assistant.analyzeCalls != 1 {
		t.Fatalf("expected one analysis, got %d", f.assistant.analyzeCalls)
	}
	if !result.ProfileGenerated {
		t.Fatal("fresh analysis must report profileGenerated")
	}
	if result.AssistantResponse != f.assistant.profileReply {
		t.Fatalf("expected profile reply, got %q", result.AssistantResponse)
	}
}

func TestAutoProfileTriggersAtThreshold(t *testing.T) {
	f := newFixture()
	f.messages.seed("conv-1", "user-1", 4)

	result, err := f.uc.Execute(context.Background(), request("I spent the weekend hiking"))
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if result.AssistantResponse != f.assistant.chatReply {
		t.Fatalf("expected chat reply, got %q", result.AssistantResponse)
	}
	if !result.ProfileGenerated {
		t.Fatal("fifth message with no prior profile must trigger generation")
	}
	if f.profiles.saveCalls != 1 {
		t.Fatalf("expected one profile save, got %d", f.profiles.saveCalls)
	}
	// The assistant reply is part of the analyzed content.
	if f.assistant.lastAnalyzedLen != 6 {
		t.Fatalf("expected 6 analyzed messages, got %d", f.assistant.lastAnalyzedLen)
	}
}

func TestAutoProfileStoresDegradedAnalysis(t *testing.T) {
	f := newFixture()
	f.messages.seed("conv-1", "user-1", 4)
	f.assistant.analysis = entity.DegradedAnalysis()

	result, err := f.uc.Execute(context.Background(), request("I spent the weekend hiking"))
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if result.AssistantResponse != f.assistant.chatReply {
		t.Fatalf("degraded analysis must not affect the reply, got %q", result.AssistantResponse)
	}
	if !result.ProfileGenerated {
		t.Fatal("degraded analysis is still a generated profile")
	}
	if got := f.profiles.savedAnalysis.ConfidenceScore; got != 0 {
		t.Fatalf("degraded confidence must be 0, got %v", got)
	}
	if got := f.profiles.savedAnalysis.CommunicationStyle; got != "Unable to analyze" {
		t.Fatalf("unexpected degraded style %q", got)
	}
}

func TestAutoProfileFailureDoesNotFailTurn(t *testing.T) {
	f := newFixture()
	f.messages.seed("conv-1", "user-1", 4)
	f.assistant.analyzeErr = apperrors.NewUnavailableError("model down")

	result, err := f.uc.Execute(context.Background(), request("I spent the weekend hiking"))
	if err != nil {
		t.Fatalf("turn must survive profile failure: %v", err)
	}
	if result.AssistantResponse != f.assistant.chatReply {
		t.Fatalf("expected chat reply, got %q", result.AssistantResponse)
	}
	if result.ProfileGenerated {
		t.Fatal("failed generation must not be reported as generated")
	}
	if f.profiles.saveCalls != 0 {
		t.Fatal("failed analysis must not be saved")
	}
}

func TestAutoProfileCountsMessagesSinceLastSnapshot(t *testing.T) {
	tests := []struct {
		name        string
		priorAt     int // profile taken after this many seeded messages
		wantTrigger bool
	}{
		{"ten new messages", 5, true},
		{"nine new messages", 6, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture()
			f.messages.seed("conv-1", "user-1", 14)
			f.profiles.latest = &entity.PersonalityProfile{
				ID: "p1", UserID: "user-1", ConfidenceScore: 0.9,
				CreatedAt: testBase.Add(time.Duration(tt.priorAt-1) * time.Minute),
			}

			result, err := f.uc.Execute(context.Background(), request("I spent the weekend hiking"))
			if err != nil {
				t.Fatalf("Execute failed: %v", err)
			}
			if result.ProfileGenerated != tt.wantTrigger {
				t.Fatalf("profileGenerated = %v, want %v", result.ProfileGenerated, tt.wantTrigger)
			}
		})
	}
}

func TestTitleGeneratedOnFirstExchangeOnly(t *testing.T) {
	f := newFixture()

	if _, err := f.uc.Execute(context.Background(), request("What should I cook tonight?")); err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if f.assistant.titleCalls != 1 {
		t.Fatalf("expected one title call, got %d", f.assistant.titleCalls)
	}
	if got := f.convs.titles["conv-1"]; got != "Weekend Plans" {
		t.Fatalf("title not applied, got %q", got)
	}

	if _, err := f.uc.Execute(context.Background(), request("Something quick please")); err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if f.assistant.titleCalls != 1 {
		t.Fatalf("later turns must not regenerate the title, got %d calls", f.assistant.titleCalls)
	}
}

func TestStatsRefreshedAfterTurn(t *testing.T) {
	f := newFixture()
	f.convs.convCount = 3

	if _, err := f.uc.Execute(context.Background(), request("hello there")); err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if f.users.statsCalls != 1 {
		t.Fatalf("expected one stats update, got %d", f.users.statsCalls)
	}
	if f.users.lastMessages != 2 || f.users.lastConversations != 3 {
		t.Fatalf("stats = (%d, %d), want (2, 3)", f.users.lastMessages, f.users.lastConversations)
	}
}

func TestRunStreamsDeltasThenResult(t *testing.T) {
	f := newFixture()

	result, deltaCh := f.uc.Run(context.Background(), request("hello there"))

	var streamed string
	for chunk := range deltaCh {
		streamed += chunk.DeltaText
	}
	if result.Err != nil {
		t.Fatalf("turn failed: %v", result.Err)
	}
	if streamed != f.assistant.chatReply {
		t.Fatalf("streamed %q, want %q", streamed, f.assistant.chatReply)
	}
	if result.AssistantResponse != f.assistant.chatReply {
		t.Fatalf("result = %q, want %q", result.AssistantResponse, f.assistant.chatReply)
	}
}

func TestUserMessageSaveFailureAbortsTurn(t *testing.T) {
	f := newFixture()
	f.messages.failSave = true

	_, err := f.uc.Execute(context.Background(), request("hello there"))
	if err == nil {
		t.Fatal("expected error when the user message cannot be saved")
	}
	if f.assistant.chatCalls != 0 {
		t.Fatal("model must not be called when persistence fails")
	}
}
