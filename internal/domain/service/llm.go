package service

import (
	"context"

	"github.com/reflectchat/reflectchat/internal/domain/entity"
)

// LLMClient is the wire-level interface to a chat-completion backend.
// It decouples the application from specific provider implementations.
type LLMClient interface {
	// Generate sends the conversation and returns a full response.
	Generate(ctx context.Context, req *LLMRequest) (*LLMResponse, error)

	// GenerateStream sends the conversation and streams text deltas to
	// deltaCh in generation order. The caller owns the channel and must
	// drain it; the final accumulated response is returned once the
	// upstream signals completion. A stream is not restartable.
	GenerateStream(ctx context.Context, req *LLMRequest, deltaCh chan<- StreamChunk) (*LLMResponse, error)
}

// StreamChunk is a single delta from a streaming response.
type StreamChunk struct {
	DeltaText    string // incremental text content
	FinishReason string // "stop", "length", "" while streaming
}

// LLMRequest is the request sent to the language model.
type LLMRequest struct {
	Messages    []LLMMessage `json:"messages"`
	Model       string       `json:"model"`
	MaxTokens   int          `json:"max_tokens,omitempty"`
	Temperature float64      `json:"temperature"`
}

// LLMMessage is a single message in the model conversation.
type LLMMessage struct {
	Role    string `json:"role"` // "system", "user", "assistant"
	Content string `json:"content"`
}

// LLMResponse is the response from the language model.
type LLMResponse struct {
	Content      string `json:"content"`
	FinishReason string `json:"finish_reason"`
	ModelUsed    string `json:"model_used"`
	TokensUsed   int    `json:"tokens_used"`
}

// ChatAssistant is the application-facing model surface: plain replies,
// profile extraction and profile-aware replies.
type ChatAssistant interface {
	// ChatReply generates an assistant reply for the conversation. Fails
	// when the provider call fails or returns empty content; no retries.
	ChatReply(ctx context.Context, history []LLMMessage, systemPrompt string) (*LLMResponse, error)

	// ChatReplyStream is the streaming variant of ChatReply. Fragments are
	// forwarded to deltaCh as they arrive; the accumulated reply is
	// returned after the stream ends.
	ChatReplyStream(ctx context.Context, history []LLMMessage, systemPrompt string, deltaCh chan<- StreamChunk) (*LLMResponse, error)

	// AnalyzePersonality derives a personality profile from conversation
	// content. Extraction or parse failures never propagate: a degraded
	// zero-confidence analysis is returned instead so the surrounding chat
	// flow is never aborted. The error return covers the upstream call
	// only.
	AnalyzePersonality(ctx context.Context, history []LLMMessage) (*entity.ProfileAnalysis, error)

	// ProfileReply answers a self-referential question using an existing
	// profile, which is summarized into the system prompt.
	ProfileReply(ctx context.Context, userInput string, profile *entity.PersonalityProfile) (string, error)

	// ConversationTitle generates a short title from the first user
	// message.
	ConversationTitle(ctx context.Context, userMessage string) (string, error)
}
