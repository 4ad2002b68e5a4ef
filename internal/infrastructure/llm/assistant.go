package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/reflectchat/reflectchat/internal/domain/entity"
	"github.com/reflectchat/reflectchat/internal/domain/service"
)

const defaultSystemPrompt = "You are a helpful and friendly AI chatbot. Engage naturally with the user."

const titleSystemPrompt = "Generate a short, relevant title."

const analysisSystemPrompt = `You are an expert psychologist and personality analyst. Based on the conversation provided, analyze the user's personality, interests, and communication style.

Provide a detailed personality profile in the following JSON format:
{
  "personality_traits": [
    {
      "trait": "trait name",
      "description": "detailed description",
      "evidence": ["quote or observation from conversation", ...]
    }
  ],
  "interests": ["interest1", "interest2", ...],
  "communication_style": "description of how they communicate",
  "detected_patterns": {
    "key_themes": ["theme1", "theme2"],
    "question_types": "what types of questions they ask",
    "emotional_tone": "overall emotional tone",
    "values_indicated": ["value1", "value2"]
  },
  "confidence_score": 0.75
}

Be insightful but conservative in your confidence score. Base it on the amount and consistency of evidence.`

// Assistant implements service.ChatAssistant on top of an LLMClient.
type Assistant struct {
	client            service.LLMClient
	model             string
	maxTokens         int
	analysisMaxTokens int
	temperature       float64
	logger            *zap.Logger
}

// NewAssistant creates the assistant layer over a wire-level client.
func NewAssistant(client service.LLMClient, cfg Config, analysisMaxTokens int, logger *zap.Logger) *Assistant {
	if analysisMaxTokens <= 0 {
		analysisMaxTokens = 2048
	}
	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 1024
	}
	return &Assistant{
		client:            client,
		model:             cfg.Model,
		maxTokens:         maxTokens,
		analysisMaxTokens: analysisMaxTokens,
		temperature:       cfg.Temperature,
		logger:            logger.With(zap.String("component", "assistant")),
	}
}

var _ service.ChatAssistant = (*Assistant)(nil)

// ChatReply generates an assistant reply for the conversation.
func (a *Assistant) ChatReply(ctx context.Context, history []service.LLMMessage, systemPrompt string) (*service.LLMResponse, error) {
	return a.client.Generate(ctx, a.buildRequest(history, systemPrompt, a.maxTokens))
}

// ChatReplyStream streams an assistant reply, forwarding fragments to
// deltaCh in generation order.
func (a *Assistant) ChatReplyStream(ctx context.Context, history []service.LLMMessage, systemPrompt string, deltaCh chan<- service.StreamChunk) (*service.LLMResponse, error) {
	return a.client.GenerateStream(ctx, a.buildRequest(history, systemPrompt, a.maxTokens), deltaCh)
}

// AnalyzePersonality derives a personality profile from conversation
// content. Upstream failures are returned; parse failures degrade to a
// zero-confidence empty analysis instead of an error.
func (a *Assistant) AnalyzePersonality(ctx context.Context, history []service.LLMMessage) (*entity.ProfileAnalysis, error) {
	var summary strings.Builder
	for i, msg := range history {
		if i > 0 {
			summary.WriteString("\n\n")
		}
		summary.WriteString(strings.ToUpper(msg.Role))
		summary.WriteString(": ")
		summary.WriteString(msg.Content)
	}

	req := &service.LLMRequest{
		Model:       a.model,
		MaxTokens:   a.analysisMaxTokens,
		Temperature: a.temperature,
		Messages: []service.LLMMessage{
			{Role: "system", Content: analysisSystemPrompt},
			{Role: "user", Content: "Please analyze this conversation and provide a personality profile:\n\n" + summary.String()},
		},
	}

	resp, err := a.client.Generate(ctx, req)
	if err != nil {
		return nil, err
	}

	analysis, err := parseAnalysis(resp.Content)
	if err != nil {
		a.logger.Warn("Failed to parse personality profile, degrading",
			zap.Error(err),
			zap.String("reply_head", truncateForLog(resp.Content, 120)),
		)
		return entity.DegradedAnalysis(), nil
	}
	return analysis, nil
}

// ProfileReply answers a self-referential question using an existing
// profile.
func (a *Assistant) ProfileReply(ctx context.Context, userInput string, profile *entity.PersonalityProfile) (string, error) {
	traits := make([]string, 0, len(profile.PersonalityTraits))
	for _, t := range profile.PersonalityTraits {
		traits = append(traits, t.Trait)
	}

	keyThemes, _ := json.Marshal(themesOf(profile.DetectedPatterns))

	profileSummary := fmt.Sprintf(`
User Personality Profile:
- Traits: %s
- Interests: %s
- Communication Style: %s
- Key Patterns: %s
`,
		strings.Join(traits, ", "),
		strings.Join(profile.Interests, ", "),
		profile.CommunicationStyle,
		string(keyThemes),
	)

	systemPrompt := fmt.Sprintf(`You have analyzed the user's personality based on their conversation history. The user is now asking about themselves or requesting a profile summary.

%s

Provide a warm, insightful summary that helps them understand themselves better based on your analysis. Be encouraging and specific.`, profileSummary)

	resp, err := a.client.Generate(ctx, &service.LLMRequest{
		Model:       a.model,
		MaxTokens:   a.maxTokens,
		Temperature: a.temperature,
		Messages: []service.LLMMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: userInput},
		},
	})
	if err != nil {
		return "", err
	}
	return resp.Content, nil
}

// ConversationTitle generates a 3-5 word title from the first user
// message, truncated to 100 runes.
func (a *Assistant) ConversationTitle(ctx context.Context, userMessage string) (string, error) {
	resp, err := a.client.Generate(ctx, &service.LLMRequest{
		Model:       a.model,
		MaxTokens:   a.maxTokens,
		Temperature: a.temperature,
		Messages: []service.LLMMessage{
			{Role: "system", Content: titleSystemPrompt},
			{Role: "user", Content: fmt.Sprintf("Create a brief 3-5 word title for this conversation: %q", userMessage)},
		},
	})
	if err != nil {
		return "", err
	}

	title := resp.Content
	if runes := []rune(title); len(runes) > 100 {
		title = string(runes[:100])
	}
	return title, nil
}

func (a *Assistant) buildRequest(history []service.LLMMessage, systemPrompt string, maxTokens int) *service.LLMRequest {
	if systemPrompt == "" {
		systemPrompt = defaultSystemPrompt
	}
	messages := make([]service.LLMMessage, 0, len(history)+1)
	messages = append(messages, service.LLMMessage{Role: "system", Content: systemPrompt})
	messages = append(messages, history...)
	return &service.LLMRequest{
		Model:       a.model,
		MaxTokens:   maxTokens,
		Temperature: a.temperature,
		Messages:    messages,
	}
}

func themesOf(patterns map[string]any) []string {
	raw, ok := patterns["key_themes"]
	if !ok {
		return []string{}
	}
	switch v := raw.(type) {
	case []string:
		return v
	case []any:
		themes := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				themes = append(themes, s)
			}
		}
		return themes
	default:
		return []string{}
	}
}

// rawAnalysis mirrors the documented model output schema. The confidence
// field is a pointer so an omitted score is distinguishable from an
// explicit zero.
type rawAnalysis struct {
	PersonalityTraits []entity.PersonalityTrait `json:"personality_traits"`
	Interests         []string                  `json:"interests"`
	Style             string                    `json:"communication_style"`
	Patterns          map[string]any            `json:"detected_patterns"`
	Confidence        *float64                  `json:"confidence_score"`
}

func parseAnalysis(reply string) (*entity.ProfileAnalysis, error) {
	obj, ok := ExtractJSONObject(reply)
	if !ok {
		return nil, fmt.Errorf("no JSON object found in reply")
	}

	var raw rawAnalysis
	if err := json.Unmarshal([]byte(obj), &raw); err != nil {
		return nil, fmt.Errorf("parse profile JSON: %w", err)
	}

	confidence := 0.5
	if raw.Confidence != nil {
		confidence = *raw.Confidence
	}
	if confidence < 0 {
		confidence = 0
	}
	if confidence > 1 {
		confidence = 1
	}

	analysis := &entity.ProfileAnalysis{
		PersonalityTraits:  raw.PersonalityTraits,
		Interests:          raw.Interests,
		CommunicationStyle: raw.Style,
		DetectedPatterns:   raw.Patterns,
		ConfidenceScore:    confidence,
	}
	if analysis.PersonalityTraits == nil {
		analysis.PersonalityTraits = []entity.PersonalityTrait{}
	}
	if analysis.Interests == nil {
		analysis.Interests = []string{}
	}
	if analysis.DetectedPatterns == nil {
		analysis.DetectedPatterns = map[string]any{}
	}
	return analysis, nil
}

// ExtractJSONObject returns the first balanced JSON object found in
// free-form text. Brace matching is string-aware so braces inside quoted
// values don't end the object early.
func ExtractJSONObject(s string) (string, bool) {
	start := strings.IndexByte(s, '{')
	if start < 0 {
		return "", false
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return s[start : i+1], true
			}
		}
	}
	return "", false
}
