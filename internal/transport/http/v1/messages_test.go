package v1

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"go.uber.org/mock/gomock"

	"github.com/xiaot623/gogo/messenger/internal/chat"
	"github.com/xiaot623/gogo/messenger/internal/domain"
	"github.com/xiaot623/gogo/messenger/internal/mocks"
	"github.com/xiaot623/gogo/messenger/internal/protocol"
	"github.com/xiaot623/gogo/messenger/tests/helpers"
)

func TestSendMessageCreated(t *testing.T) {
	e := echo.New()
	h := newTestHandler(t)
	bob := helpers.NewRecordingHandle("c-bob")
	h.registry.Register("bob", bob)

	c, rec := newContext(e, http.MethodPost, "/v1/messages", `{"receiverId":"bob","content":"hi bob"}`, "alice")
	if err := h.SendMessage(c); err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}

	var resp struct {
		Message domain.Message `json:"message"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Message.ID == "" || resp.Message.SenderID != "alice" || resp.Message.Read {
		t.Fatalf("unexpected message: %+v", resp.Message)
	}

	h.notifier.Wait()
	if got := len(bob.OfType(protocol.TypeReceiveMessage)); got != 1 {
		t.Fatalf("expected live delivery, got %d receive_message frames", got)
	}
	count, err := h.store.CountUnreadNotifications(context.Background(), "bob")
	if err != nil {
		t.Fatalf("CountUnreadNotifications failed: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected 1 notification, got %d", count)
	}
}

func TestSendMessageValidation(t *testing.T) {
	e := echo.New()
	h := newTestHandler(t)

	for _, body := range []string{
		`{"receiverId":"bob","content":"   "}`,
		`{"receiverId":"","content":"hi"}`,
		`{"receiverId":`,
	} {
		c, rec := newContext(e, http.MethodPost, "/v1/messages", body, "alice")
		if err := h.SendMessage(c); err != nil {
			t.Fatalf("handler error: %v", err)
		}
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("body %s: expected 400, got %d", body, rec.Code)
		}
	}

	conversation, err := h.store.GetConversation(context.Background(), "alice", "bob")
	if err != nil {
		t.Fatalf("GetConversation failed: %v", err)
	}
	if len(conversation) != 0 {
		t.Fatalf("expected no messages, got %d", len(conversation))
	}
}

func TestSendMessageGatewayFailure(t *testing.T) {
	ctrl := gomock.NewController(t)
	messages := mocks.NewMockMessageStore(ctrl)
	messages.EXPECT().CreateMessage(gomock.Any(), gomock.Any()).Return(fmt.Errorf("%w: locked", domain.ErrGateway))

	coord := chat.NewCoordinator(chat.Options{Authenticator: staticAuth{}, Messages: messages})
	h := NewHandler(coord, mocks.NewMockNotificationStore(ctrl), nil)

	e := echo.New()
	c, rec := newContext(e, http.MethodPost, "/v1/messages", `{"receiverId":"bob","content":"hi"}`, "alice")
	if err := h.SendMessage(c); err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if rec.Code != http.StatusBadGateway {
		t.Fatalf("expected 502, got %d", rec.Code)
	}
}

func TestGetConversationMarksRead(t *testing.T) {
	e := echo.New()
	h := newTestHandler(t)
	alice := helpers.NewRecordingHandle("c-alice")
	h.registry.Register("alice", alice)
	helpers.SeedUser(t, h.store, "alice", "Alice")

	ctx := context.Background()
	for _, content := range []string{"one", "two"} {
		if err := h.store.CreateMessage(ctx, &domain.Message{SenderID: "alice", ReceiverID: "bob", Content: content}); err != nil {
			t.Fatalf("CreateMessage failed: %v", err)
		}
	}

	c, rec := newContext(e, http.MethodGet, "/v1/messages/alice", "", "bob", "user_id", "alice")
	if err := h.GetConversation(c); err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var resp struct {
		Messages []domain.Message `json:"messages"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(resp.Messages) != 2 || resp.Messages[0].Content != "one" || resp.Messages[1].Content != "two" {
		t.Fatalf("unexpected messages: %+v", resp.Messages)
	}
	for _, m := range resp.Messages {
		if !m.Read {
			t.Fatalf("expected message %s to be read", m.ID)
		}
		if m.Sender == nil || m.Sender.Name != "Alice" {
			t.Fatalf("expected sender profile Alice, got %+v", m.Sender)
		}
		if m.Receiver == nil || m.Receiver.ID != "bob" {
			t.Fatalf("expected receiver profile bob, got %+v", m.Receiver)
		}
	}
	if got := len(alice.OfType(protocol.TypeMessagesRead)); got != 1 {
		t.Fatalf("expected 1 messages_read frame, got %d", got)
	}
}

func TestGetConversationInvalidPeer(t *testing.T) {
	e := echo.New()
	h := newTestHandler(t)

	c, rec := newContext(e, http.MethodGet, "/v1/messages/x", "", "bob", "user_id", "bad\tpeer")
	if err := h.GetConversation(c); err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestListThreads(t *testing.T) {
	e := echo.New()
	h := newTestHandler(t)
	helpers.SeedUser(t, h.store, "carol", "Carol")

	ctx := context.Background()
	if err := h.store.CreateMessage(ctx, &domain.Message{SenderID: "carol", ReceiverID: "bob", Content: "yo"}); err != nil {
		t.Fatalf("CreateMessage failed: %v", err)
	}

	c, rec := newContext(e, http.MethodGet, "/v1/messages/threads", "", "bob")
	if err := h.ListThreads(c); err != nil {
		t.Fatalf("handler error: %v", err)
	}

	var resp struct {
		Threads []domain.Thread `json:"threads"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(resp.Threads) != 1 {
		t.Fatalf("expected 1 thread, got %d", len(resp.Threads))
	}
	thread := resp.Threads[0]
	if thread.Partner.Name != "Carol" || thread.UnreadCount != 1 || thread.LastMessage.Content != "yo" {
		t.Fatalf("unexpected thread: %+v", thread)
	}
}

func TestMarkRead(t *testing.T) {
	e := echo.New()
	h := newTestHandler(t)
	if err := h.store.CreateMessage(context.Background(), &domain.Message{SenderID: "alice", ReceiverID: "bob", Content: "hi"}); err != nil {
		t.Fatalf("CreateMessage failed: %v", err)
	}

	for _, want := range []int64{1, 0} {
		c, rec := newContext(e, http.MethodPost, "/v1/messages/alice/read", "", "bob", "user_id", "alice")
		if err := h.MarkRead(c); err != nil {
			t.Fatalf("handler error: %v", err)
		}
		var resp struct {
			Updated int64 `json:"updated"`
		}
		if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
			t.Fatalf("decode response: %v", err)
		}
		if resp.Updated != want {
			t.Fatalf("expected %d updated, got %d", want, resp.Updated)
		}
	}
}

func TestGetPresence(t *testing.T) {
	e := echo.New()
	h := newTestHandler(t)
	h.registry.Register("zed", helpers.NewRecordingHandle("c1"))
	h.registry.Register("amy", helpers.NewRecordingHandle("c2"))

	c, rec := newContext(e, http.MethodGet, "/v1/presence", "", "amy")
	if err := h.GetPresence(c); err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if body := rec.Body.String(); body != "{\"userIds\":[\"amy\",\"zed\"]}\n" {
		t.Fatalf("unexpected body: %s", body)
	}
}

func TestRequireAuth(t *testing.T) {
	e := echo.New()
	h := newTestHandler(t)
	h.RegisterRoutes(e, staticAuth{})

	req := httptest.NewRequest(http.MethodGet, "/v1/presence", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/v1/messages/threads", nil)
	req.Header.Set(echo.HeaderAuthorization, "Bearer token-bob")
	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if body := rec.Body.String(); body != "{\"threads\":[]}\n" {
		t.Fatalf("unexpected body: %s", body)
	}
}

func TestRequireAuthRecordsProfile(t *testing.T) {
	e := echo.New()
	h := newTestHandler(t)
	h.RegisterRoutes(e, h.coordinator)

	req := httptest.NewRequest(http.MethodPost, "/v1/messages", strings.NewReader(`{"receiverId":"bob","content":"hi"}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	req.Header.Set(echo.HeaderAuthorization, "Bearer token-alice:Alice")
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}

	var resp struct {
		Message domain.Message `json:"message"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Message.Sender == nil || resp.Message.Sender.Name != "Alice" {
		t.Fatalf("expected sender profile Alice, got %+v", resp.Message.Sender)
	}

	profile, err := h.store.GetUser(context.Background(), "alice")
	if err != nil {
		t.Fatalf("GetUser failed: %v", err)
	}
	if profile == nil || profile.Name != "Alice" {
		t.Fatalf("expected stored profile Alice, got %+v", profile)
	}
}
