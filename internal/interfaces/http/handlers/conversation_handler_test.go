package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/reflectchat/reflectchat/internal/domain/entity"
	apperrors "github.com/reflectchat/reflectchat/pkg/errors"
)

type fixedConvs struct {
	conv *entity.Conversation
}

func (f *fixedConvs) Create(_ context.Context, userID, title string) (*entity.Conversation, error) {
	t := title
	if t == "" {
		t = "Conversation - 3/1/2025, 12:00:00 PM"
	}
	return &entity.Conversation{ID: "conv-new", UserID: userID, Title: &t}, nil
}

func (f *fixedConvs) ListByUser(_ context.Context, userID string) ([]*entity.Conversation, error) {
	if f.conv == nil {
		return nil, nil
	}
	return []*entity.Conversation{f.conv}, nil
}

func (f *fixedConvs) FindByID(_ context.Context, id string) (*entity.Conversation, error) {
	if f.conv == nil || f.conv.ID != id {
		return nil, apperrors.NewNotFoundError("conversation not found")
	}
	return f.conv, nil
}

func (f *fixedConvs) UpdateTitle(_ context.Context, id, title string) error { return nil }

func (f *fixedConvs) CountByUser(_ context.Context, userID string) (int64, error) { return 1, nil }

func conversationRouter(convs *fixedConvs, messages *stubMessages) *gin.Engine {
	gin.SetMode(gin.TestMode)
	handler := NewConversationHandler(convs, messages, zap.NewNop())
	router := gin.New()
	router.POST("/api/conversations", handler.Create)
	router.GET("/api/conversations", handler.List)
	router.GET("/api/conversations/:id/messages", handler.Messages)
	router.GET("/api/messages/recent", handler.RecentMessages)
	return router
}

func TestCreateConversation(t *testing.T) {
	router := conversationRouter(&fixedConvs{}, &stubMessages{})

	req := httptest.NewRequest(http.MethodPost, "/api/conversations", strings.NewReader(`{"userId": "u1"}`))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201", rec.Code)
	}
	var resp struct {
		Conversation *entity.Conversation `json:"conversation"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("invalid response: %v", err)
	}
	if resp.Conversation == nil || resp.Conversation.UserID != "u1" {
		t.Fatalf("unexpected conversation %+v", resp.Conversation)
	}
	if resp.Conversation.Title == nil || *resp.Conversation.Title == "" {
		t.Fatal("new conversation must carry a placeholder title")
	}
}

func TestCreateConversationRequiresUserID(t *testing.T) {
	router := conversationRouter(&fixedConvs{}, &stubMessages{})

	req := httptest.NewRequest(http.MethodPost, "/api/conversations", strings.NewReader(`{"title": "x"}`))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestConversationMessagesNotFound(t *testing.T) {
	router := conversationRouter(&fixedConvs{}, &stubMessages{})

	rec := get(router, "/api/conversations/missing/messages")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

func TestConversationMessagesPreservesOrder(t *testing.T) {
	conv := &entity.Conversation{ID: "conv-1", UserID: "u1"}
	messages := &stubMessages{msgs: []*entity.Message{
		{ID: "m1", Role: entity.RoleUser, Content: "first"},
		{ID: "m2", Role: entity.RoleAssistant, Content: "second"},
		{ID: "m3", Role: entity.RoleUser, Content: "third"},
	}}
	router := conversationRouter(&fixedConvs{conv: conv}, messages)

	rec := get(router, "/api/conversations/conv-1/messages")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var resp struct {
		Messages []*entity.Message `json:"messages"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("invalid response: %v", err)
	}
	if len(resp.Messages) != 3 || resp.Messages[0].Content != "first" || resp.Messages[2].Content != "third" {
		t.Fatalf("unexpected messages %+v", resp.Messages)
	}
}

func TestRecentMessagesRejectsBadLimit(t *testing.T) {
	router := conversationRouter(&fixedConvs{}, &stubMessages{})

	for _, path := range []string{
		"/api/messages/recent?userId=u1&limit=0",
		"/api/messages/recent?userId=u1&limit=abc",
	} {
		rec := get(router, path)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("%s: status = %d, want 400", path, rec.Code)
		}
	}
}
