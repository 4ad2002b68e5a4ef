package reflectchat

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// Client is the Go SDK client for a reflectchat server. Chat replies are
// streamed over HTTP/SSE; self-referential turns come back as a single
// JSON response, which the client normalizes into the same event stream.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a new reflectchat SDK client.
func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 300 * time.Second,
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Option configures the client.
type Option func(*Client)

// WithTimeout sets the HTTP client timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.httpClient.Timeout = d
	}
}

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// ChatRequest is one user message.
type ChatRequest struct {
	ConversationID string `json:"conversationId"`
	UserID         string `json:"userId"`
	UserMessage    string `json:"userMessage"`
}

// ChatEvent is one event from a chat turn stream.
type ChatEvent struct {
	Chunk            string `json:"chunk,omitempty"`
	Done             bool   `json:"done,omitempty"`
	ProfileGenerated bool   `json:"profileGenerated,omitempty"`
	Error            string `json:"error,omitempty"`
}

// IsError reports whether the event carries a server error.
func (e *ChatEvent) IsError() bool { return e.Error != "" }

// ChatResult is the collected outcome of a chat turn.
type ChatResult struct {
	AssistantResponse string `json:"assistantResponse"`
	ProfileGenerated  bool   `json:"profileGenerated"`
}

// Conversation mirrors the server's conversation record.
type Conversation struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Title     *string   `json:"title"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Message mirrors the server's message record.
type Message struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversation_id"`
	UserID         string    `json:"user_id"`
	Role           string    `json:"role"`
	Content        string    `json:"content"`
	TokensUsed     int       `json:"tokens_used"`
	CreatedAt      time.Time `json:"created_at"`
}

// PersonalityTrait mirrors one observed trait with its evidence.
type PersonalityTrait struct {
	Trait       string   `json:"trait"`
	Description string   `json:"description"`
	Evidence    []string `json:"evidence"`
}

// PersonalityProfile mirrors a derived profile snapshot.
type PersonalityProfile struct {
	ID                 string             `json:"id"`
	UserID             string             `json:"user_id"`
	ConversationID     *string            `json:"conversation_id"`
	PersonalityTraits  []PersonalityTrait `json:"personality_traits"`
	Interests          []string           `json:"interests"`
	CommunicationStyle string             `json:"communication_style"`
	DetectedPatterns   map[string]any     `json:"detected_patterns"`
	ConfidenceScore    float64            `json:"confidence_score"`
	CreatedAt          time.Time          `json:"created_at"`
	UpdatedAt          time.Time          `json:"updated_at"`
}

// Send posts a chat turn and streams events via a channel. The channel
// is closed after the terminal done (or error) event.
func (c *Client) Send(ctx context.Context, req *ChatRequest) (<-chan *ChatEvent, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+"/api/chat", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "text/event-stream")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("HTTP request: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		return nil, fmt.Errorf("API error %d: %s", resp.StatusCode, strings.TrimSpace(string(respBody)))
	}

	ch := make(chan *ChatEvent, 32)

	// Self-referential turns answer with one JSON object instead of SSE.
	if strings.HasPrefix(resp.Header.Get("Content-Type"), "application/json") {
		go func() {
			defer close(ch)
			defer resp.Body.Close()

			var result ChatResult
			if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
				ch <- &ChatEvent{Error: fmt.Sprintf("decode response: %v", err)}
				return
			}
			ch <- &ChatEvent{Chunk: result.AssistantResponse}
			ch <- &ChatEvent{Done: true, ProfileGenerated: result.ProfileGenerated}
		}()
		return ch, nil
	}

	go func() {
		defer close(ch)
		defer resp.Body.Close()
		readSSEStream(resp.Body, ch)
	}()

	return ch, nil
}

// SendSync posts a chat turn and blocks until completion, returning the
// collected result.
func (c *Client) SendSync(ctx context.Context, req *ChatRequest) (*ChatResult, error) {
	ch, err := c.Send(ctx, req)
	if err != nil {
		return nil, err
	}

	result := &ChatResult{}
	for event := range ch {
		if event.IsError() {
			return nil, fmt.Errorf("server error: %s", event.Error)
		}
		result.AssistantResponse += event.Chunk
		if event.Done {
			result.ProfileGenerated = event.ProfileGenerated
		}
	}
	return result, nil
}

// CreateConversation creates a conversation for the user. An empty title
// gets a server-side placeholder.
func (c *Client) CreateConversation(ctx context.Context, userID, title string) (*Conversation, error) {
	body, _ := json.Marshal(map[string]string{"userId": userID, "title": title})
	var result struct {
		Conversation *Conversation `json:"conversation"`
	}
	if err := c.doJSON(ctx, "POST", "/api/conversations", bytes.NewReader(body), &result); err != nil {
		return nil, err
	}
	return result.Conversation, nil
}

// ListConversations returns the user's conversations, newest first.
func (c *Client) ListConversations(ctx context.Context, userID string) ([]*Conversation, error) {
	var result struct {
		Conversations []*Conversation `json:"conversations"`
	}
	path := "/api/conversations?userId=" + url.QueryEscape(userID)
	if err := c.doJSON(ctx, "GET", path, nil, &result); err != nil {
		return nil, err
	}
	return result.Conversations, nil
}

// Messages returns a conversation's messages, oldest first.
func (c *Client) Messages(ctx context.Context, conversationID string) ([]*Message, error) {
	var result struct {
		Messages []*Message `json:"messages"`
	}
	path := "/api/conversations/" + url.PathEscape(conversationID) + "/messages"
	if err := c.doJSON(ctx, "GET", path, nil, &result); err != nil {
		return nil, err
	}
	return result.Messages, nil
}

// RecentMessages returns up to limit of the user's messages across all
// conversations, newest first. A non-positive limit uses the server
// default.
func (c *Client) RecentMessages(ctx context.Context, userID string, limit int) ([]*Message, error) {
	var result struct {
		Messages []*Message `json:"messages"`
	}
	path := "/api/messages/recent?userId=" + url.QueryEscape(userID)
	if limit > 0 {
		path += "&limit=" + strconv.Itoa(limit)
	}
	if err := c.doJSON(ctx, "GET", path, nil, &result); err != nil {
		return nil, err
	}
	return result.Messages, nil
}

// Profile returns the user's latest personality profile, or nil when
// none exists yet.
func (c *Client) Profile(ctx context.Context, userID string) (*PersonalityProfile, error) {
	var result struct {
		Profile *PersonalityProfile `json:"profile"`
	}
	path := "/api/profile?userId=" + url.QueryEscape(userID)
	if err := c.doJSON(ctx, "GET", path, nil, &result); err != nil {
		return nil, err
	}
	return result.Profile, nil
}

// ProfileHistory returns all of the user's profile snapshots, newest
// first.
func (c *Client) ProfileHistory(ctx context.Context, userID string) ([]*PersonalityProfile, error) {
	var result struct {
		Profiles []*PersonalityProfile `json:"profiles"`
	}
	path := "/api/profile/history?userId=" + url.QueryEscape(userID)
	if err := c.doJSON(ctx, "GET", path, nil, &result); err != nil {
		return nil, err
	}
	return result.Profiles, nil
}

// Health checks if the server is healthy.
func (c *Client) Health(ctx context.Context) bool {
	httpReq, err := http.NewRequestWithContext(ctx, "GET", c.baseURL+"/health", nil)
	if err != nil {
		return false
	}
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return false
	}
	resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

func (c *Client) doJSON(ctx context.Context, method, path string, body io.Reader, out any) error {
	httpReq, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	if body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("API error %d: %s", resp.StatusCode, strings.TrimSpace(string(respBody)))
	}

	return json.NewDecoder(resp.Body).Decode(out)
}

func readSSEStream(r io.Reader, ch chan<- *ChatEvent) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		dataStr := strings.TrimSpace(line[5:])
		if dataStr == "" {
			continue
		}

		event := &ChatEvent{}
		if err := json.Unmarshal([]byte(dataStr), event); err != nil {
			continue
		}
		ch <- event

		if event.Done || event.IsError() {
			return
		}
	}
}
