package reflectchat

import (
	"context"
	"sync"
)

// Session is a client-side state container for one conversation. It
// mirrors server data, inserts optimistic placeholder messages before
// the network round trip resolves, and rolls them back on failure so
// the view always matches server truth.
//
// Safe for concurrent reads while a send is in flight; sends themselves
// are serialized by the caller.
type Session struct {
	client         *Client
	conversationID string
	userID         string

	mu       sync.RWMutex
	messages []Message
	profile  *PersonalityProfile
	loading  bool
}

// NewSession creates a session bound to one conversation.
func NewSession(client *Client, conversationID, userID string) *Session {
	return &Session{
		client:         client,
		conversationID: conversationID,
		userID:         userID,
	}
}

// Load fetches the conversation history and latest profile from the
// server, replacing any local state.
func (s *Session) Load(ctx context.Context) error {
	msgs, err := s.client.Messages(ctx, s.conversationID)
	if err != nil {
		return err
	}
	profile, err := s.client.Profile(ctx, s.userID)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = s.messages[:0]
	for _, m := range msgs {
		s.messages = append(s.messages, *m)
	}
	s.profile = profile
	return nil
}

// Messages returns a snapshot of the local view, oldest first,
// including any in-flight placeholders.
func (s *Session) Messages() []Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]Message(nil), s.messages...)
}

// Profile returns the locally cached profile, which may be nil.
func (s *Session) Profile() *PersonalityProfile {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.profile
}

// Loading reports whether a send is in flight.
func (s *Session) Loading() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loading
}

// Send posts one user message and streams the assistant reply into the
// local view. The user message and an empty assistant placeholder are
// inserted immediately; fragments fill the placeholder as they arrive.
// On failure both placeholders are removed and the error returned. When
// the turn generated a new profile, the cached profile is refetched.
//
// onChunk, when non-nil, observes each fragment as it lands.
func (s *Session) Send(ctx context.Context, userMessage string, onChunk func(string)) (*ChatResult, error) {
	s.mu.Lock()
	base := len(s.messages)
	s.messages = append(s.messages,
		Message{ConversationID: s.conversationID, UserID: s.userID, Role: "user", Content: userMessage},
		Message{ConversationID: s.conversationID, UserID: s.userID, Role: "assistant"},
	)
	s.loading = true
	s.mu.Unlock()

	result, err := s.stream(ctx, userMessage, base, onChunk)

	s.mu.Lock()
	s.loading = false
	if err != nil {
		// Roll back the optimistic insertions.
		s.messages = s.messages[:base]
	}
	s.mu.Unlock()

	if err != nil {
		return nil, err
	}

	if result.ProfileGenerated {
		if profile, perr := s.client.Profile(ctx, s.userID); perr == nil {
			s.mu.Lock()
			s.profile = profile
			s.mu.Unlock()
		}
	}

	return result, nil
}

func (s *Session) stream(ctx context.Context, userMessage string, base int, onChunk func(string)) (*ChatResult, error) {
	ch, err := s.client.Send(ctx, &ChatRequest{
		ConversationID: s.conversationID,
		UserID:         s.userID,
		UserMessage:    userMessage,
	})
	if err != nil {
		return nil, err
	}

	result := &ChatResult{}
	for event := range ch {
		if event.IsError() {
			return nil, &ServerError{Message: event.Error}
		}
		if event.Chunk != "" {
			result.AssistantResponse += event.Chunk
			s.mu.Lock()
			s.messages[base+1].Content = result.AssistantResponse
			s.mu.Unlock()
			if onChunk != nil {
				onChunk(event.Chunk)
			}
		}
		if event.Done {
			result.ProfileGenerated = event.ProfileGenerated
		}
	}
	return result, nil
}

// ServerError is an error event received mid-stream.
type ServerError struct {
	Message string
}

func (e *ServerError) Error() string { return e.Message }
