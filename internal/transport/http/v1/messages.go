package v1

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

// SendMessageRequest is the body of POST /v1/messages.
type SendMessageRequest struct {
	ReceiverID string `json:"receiverId"`
	Content    string `json:"content"`
}

// ListThreads returns the caller's conversations, most recent first.
// GET /v1/messages/threads
func (h *Handler) ListThreads(c echo.Context) error {
	threads, err := h.coordinator.ListThreads(c.Request().Context(), currentUser(c))
	if err != nil {
		return h.fail(c, "list threads", err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"threads": threads,
	})
}

// GetConversation returns the conversation with a peer and marks it read.
// GET /v1/messages/:user_id
func (h *Handler) GetConversation(c echo.Context) error {
	messages, err := h.coordinator.GetConversation(c.Request().Context(), currentUser(c), c.Param("user_id"))
	if err != nil {
		return h.fail(c, "get conversation", err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"messages": messages,
	})
}

// SendMessage persists and delivers a message without a live session.
// POST /v1/messages
func (h *Handler) SendMessage(c echo.Context) error {
	var req SendMessageRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}

	msg, err := h.coordinator.SendMessage(c.Request().Context(), currentUser(c), req.ReceiverID, req.Content)
	if err != nil {
		return h.fail(c, "send message", err)
	}
	return c.JSON(http.StatusCreated, map[string]interface{}{
		"message": msg,
	})
}

// MarkRead marks every message from a peer as read.
// POST /v1/messages/:user_id/read
func (h *Handler) MarkRead(c echo.Context) error {
	updated, err := h.coordinator.MarkRead(c.Request().Context(), currentUser(c), c.Param("user_id"))
	if err != nil {
		return h.fail(c, "mark read", err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"updated": updated,
	})
}

// GetPresence returns the ids of online users.
// GET /v1/presence
func (h *Handler) GetPresence(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]interface{}{
		"userIds": h.coordinator.OnlineUsers(),
	})
}
