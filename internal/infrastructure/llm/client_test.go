package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"go.uber.org/zap"

	"github.com/reflectchat/reflectchat/internal/domain/service"
	apperrors "github.com/reflectchat/reflectchat/pkg/errors"
)

func TestNewClient_RequiresAPIKey(t *testing.T) {
	_, err := NewClient(Config{}, zap.NewNop())
	if err == nil {
		t.Fatal("expected error for missing API key")
	}
	var appErr *apperrors.AppError
	if !errors.As(err, &appErr) || appErr.Code != apperrors.CodeServiceUnavail {
		t.Fatalf("expected SERVICE_UNAVAILABLE AppError, got %v", err)
	}
}

func TestGenerate_RoundTrip(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Fatalf("unexpected path: %s", r.URL.Path)
		}
		if auth := r.Header.Get("Authorization"); auth != "Bearer test-key" {
			t.Fatalf("unexpected auth header: %q", auth)
		}

		var req Request
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if req.Model != "test-model" {
			t.Fatalf("unexpected model: %s", req.Model)
		}
		if len(req.Messages) != 2 || req.Messages[0].Role != "system" {
			t.Fatalf("unexpected messages: %+v", req.Messages)
		}

		resp := Response{
			Model: "test-model",
			Choices: []Choice{
				{Message: Message{Role: "assistant", Content: "pong"}, FinishReason: "stop"},
			},
			Usage: Usage{PromptTokens: 3, CompletionTokens: 1, TotalTokens: 4},
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	client, err := NewClient(Config{BaseURL: server.URL, APIKey: "test-key"}, zap.NewNop())
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}

	resp, err := client.Generate(context.Background(), &service.LLMRequest{
		Model: "test-model",
		Messages: []service.LLMMessage{
			{Role: "system", Content: "sys"},
			{Role: "user", Content: "ping"},
		},
	})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if resp.Content != "pong" {
		t.Fatalf("expected 'pong', got %q", resp.Content)
	}
	if resp.FinishReason != "stop" {
		t.Fatalf("expected finish_reason 'stop', got %q", resp.FinishReason)
	}
	if resp.TokensUsed != 4 {
		t.Fatalf("expected 4 tokens, got %d", resp.TokensUsed)
	}
}

func TestGenerate_EmptyContentIsError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(Response{
			Choices: []Choice{{Message: Message{Role: "assistant", Content: ""}}},
		})
	}))
	defer server.Close()

	client, err := NewClient(Config{BaseURL: server.URL, APIKey: "k"}, zap.NewNop())
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}

	if _, err := client.Generate(context.Background(), &service.LLMRequest{Model: "m"}); err == nil {
		t.Fatal("expected error for empty completion content")
	}
}

func TestGenerate_UpstreamErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error": "rate limited"}`, http.StatusTooManyRequests)
	}))
	defer server.Close()

	client, err := NewClient(Config{BaseURL: server.URL, APIKey: "k"}, zap.NewNop())
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}

	// No retry on transient failure — the caller must handle it.
	if _, err := client.Generate(context.Background(), &service.LLMRequest{Model: "m"}); err == nil {
		t.Fatal("expected error for non-200 status")
	}
}

func TestGenerateStream_EndToEnd(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req StreamRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if !req.Stream {
			t.Fatal("expected stream=true")
		}

		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, `data: {"choices":[{"delta":{"content":"a"},"finish_reason":null}],"model":"m"}

data: {"choices":[{"delta":{"content":"b"},"finish_reason":"stop"}],"model":"m","usage":{"total_tokens":2}}

data: [DONE]

`)
	}))
	defer server.Close()

	client, err := NewClient(Config{BaseURL: server.URL, APIKey: "k"}, zap.NewNop())
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}

	deltaCh := make(chan service.StreamChunk, 16)
	resp, err := client.GenerateStream(context.Background(), &service.LLMRequest{Model: "m"}, deltaCh)
	close(deltaCh)
	if err != nil {
		t.Fatalf("GenerateStream: %v", err)
	}
	if resp.Content != "ab" {
		t.Fatalf("expected 'ab', got %q", resp.Content)
	}
}
