package llm

import (
	"context"
	"errors"
	"strings"
	"testing"

	"go.uber.org/zap"

	"github.com/reflectchat/reflectchat/internal/domain/entity"
	"github.com/reflectchat/reflectchat/internal/domain/service"
)

// fakeLLM records requests and plays back a canned reply.
type fakeLLM struct {
	reply   string
	err     error
	lastReq *service.LLMRequest
}

func (f *fakeLLM) Generate(_ context.Context, req *service.LLMRequest) (*service.LLMResponse, error) {
	f.lastReq = req
	if f.err != nil {
		return nil, f.err
	}
	return &service.LLMResponse{Content: f.reply, FinishReason: "stop"}, nil
}

func (f *fakeLLM) GenerateStream(_ context.Context, req *service.LLMRequest, deltaCh chan<- service.StreamChunk) (*service.LLMResponse, error) {
	f.lastReq = req
	if f.err != nil {
		return nil, f.err
	}
	for _, word := range strings.SplitAfter(f.reply, " ") {
		deltaCh <- service.StreamChunk{DeltaText: word}
	}
	return &service.LLMResponse{Content: f.reply, FinishReason: "stop"}, nil
}

func newTestAssistant(fake *fakeLLM) *Assistant {
	return NewAssistant(fake, Config{Model: "test-model", MaxTokens: 1024}, 2048, zap.NewNop())
}

func TestChatReply_DefaultSystemPrompt(t *testing.T) {
	fake := &fakeLLM{reply: "hi"}
	a := newTestAssistant(fake)

	resp, err := a.ChatReply(context.Background(), []service.LLMMessage{{Role: "user", Content: "hello"}}, "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Content != "hi" {
		t.Fatalf("expected 'hi', got %q", resp.Content)
	}
	if fake.lastReq.Messages[0].Role != "system" || fake.lastReq.Messages[0].Content != defaultSystemPrompt {
		t.Fatalf("expected default system prompt first, got %+v", fake.lastReq.Messages[0])
	}
	if fake.lastReq.Model != "test-model" {
		t.Fatalf("expected configured model, got %q", fake.lastReq.Model)
	}
}

func TestAnalyzePersonality_ParsesWellFormedReply(t *testing.T) {
	fake := &fakeLLM{reply: `Here is the analysis you asked for:
{
  "personality_traits": [{"trait": "curious", "description": "asks many questions", "evidence": ["asked about {braces} in strings"]}],
  "interests": ["go", "music"],
  "communication_style": "direct and playful",
  "detected_patterns": {"key_themes": ["learning"]},
  "confidence_score": 0.8
}
Hope that helps!`}
	a := newTestAssistant(fake)

	analysis, err := a.AnalyzePersonality(context.Background(), []service.LLMMessage{{Role: "user", Content: "hi"}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(analysis.PersonalityTraits) != 1 || analysis.PersonalityTraits[0].Trait != "curious" {
		t.Fatalf("unexpected traits: %+v", analysis.PersonalityTraits)
	}
	if analysis.ConfidenceScore != 0.8 {
		t.Fatalf("expected confidence 0.8, got %v", analysis.ConfidenceScore)
	}
	if analysis.CommunicationStyle != "direct and playful" {
		t.Fatalf("unexpected style: %q", analysis.CommunicationStyle)
	}
}

func TestAnalyzePersonality_DegradesOnUnparseableReply(t *testing.T) {
	fake := &fakeLLM{reply: "I cannot produce structured output today."}
	a := newTestAssistant(fake)

	analysis, err := a.AnalyzePersonality(context.Background(), []service.LLMMessage{{Role: "user", Content: "hi"}})
	if err != nil {
		t.Fatalf("degraded analysis must not surface an error, got %v", err)
	}
	if analysis.ConfidenceScore != 0 {
		t.Fatalf("degraded confidence must be exactly 0, got %v", analysis.ConfidenceScore)
	}
	if analysis.CommunicationStyle != "Unable to analyze" {
		t.Fatalf("unexpected degraded style: %q", analysis.CommunicationStyle)
	}
	if len(analysis.PersonalityTraits) != 0 || len(analysis.Interests) != 0 {
		t.Fatal("degraded analysis must have empty traits and interests")
	}
}

func TestAnalyzePersonality_PropagatesUpstreamError(t *testing.T) {
	fake := &fakeLLM{err: errors.New("backend down")}
	a := newTestAssistant(fake)

	if _, err := a.AnalyzePersonality(context.Background(), nil); err == nil {
		t.Fatal("expected upstream error to propagate")
	}
}

func TestAnalyzePersonality_ClampsConfidence(t *testing.T) {
	cases := []struct {
		raw  string
		want float64
	}{
		{`{"confidence_score": 1.7}`, 1},
		{`{"confidence_score": -0.2}`, 0},
		{`{"interests": ["x"]}`, 0.5}, // omitted score defaults mid-range
	}
	for _, c := range cases {
		fake := &fakeLLM{reply: c.raw}
		a := newTestAssistant(fake)
		analysis, err := a.AnalyzePersonality(context.Background(), nil)
		if err != nil {
			t.Fatalf("unexpected error for %q: %v", c.raw, err)
		}
		if analysis.ConfidenceScore != c.want {
			t.Fatalf("confidence for %q = %v, want %v", c.raw, analysis.ConfidenceScore, c.want)
		}
		if analysis.ConfidenceScore < 0 || analysis.ConfidenceScore > 1 {
			t.Fatalf("confidence out of range: %v", analysis.ConfidenceScore)
		}
	}
}

func TestProfileReply_EmbedsProfileSummary(t *testing.T) {
	fake := &fakeLLM{reply: "you are curious"}
	a := newTestAssistant(fake)

	profile := &entity.PersonalityProfile{
		PersonalityTraits:  []entity.PersonalityTrait{{Trait: "curious"}, {Trait: "direct"}},
		Interests:          []string{"go", "music"},
		CommunicationStyle: "playful",
		DetectedPatterns:   map[string]any{"key_themes": []any{"learning", "craft"}},
		ConfidenceScore:    0.8,
	}

	reply, err := a.ProfileReply(context.Background(), "who am I?", profile)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if reply != "you are curious" {
		t.Fatalf("unexpected reply: %q", reply)
	}

	system := fake.lastReq.Messages[0].Content
	for _, want := range []string{"curious, direct", "go, music", "playful", "learning"} {
		if !strings.Contains(system, want) {
			t.Fatalf("system prompt missing %q:\n%s", want, system)
		}
	}
	if fake.lastReq.Messages[1].Content != "who am I?" {
		t.Fatalf("expected user input forwarded, got %q", fake.lastReq.Messages[1].Content)
	}
}

func TestConversationTitle_Truncates(t *testing.T) {
	long := strings.Repeat("title ", 40)
	fake := &fakeLLM{reply: long}
	a := newTestAssistant(fake)

	title, err := a.ConversationTitle(context.Background(), "first message")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len([]rune(title)) != 100 {
		t.Fatalf("expected 100-rune truncation, got %d", len([]rune(title)))
	}
}

func TestExtractJSONObject(t *testing.T) {
	cases := []struct {
		in   string
		want string
		ok   bool
	}{
		{`prefix {"a": 1} suffix`, `{"a": 1}`, true},
		{`{"a": {"b": 2}}`, `{"a": {"b": 2}}`, true},
		{`{"s": "has } brace"} trailing`, `{"s": "has } brace"}`, true},
		{`{"s": "escaped \" quote }"}`, `{"s": "escaped \" quote }"}`, true},
		{`no object here`, ``, false},
		{`{"unterminated": true`, ``, false},
	}
	for _, c := range cases {
		got, ok := ExtractJSONObject(c.in)
		if ok != c.ok || got != c.want {
			t.Fatalf("ExtractJSONObject(%q) = %q, %v; want %q, %v", c.in, got, ok, c.want, c.ok)
		}
	}
}
