// Package v1 provides the REST fallback for clients without a live channel.
package v1

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/xiaot623/gogo/messenger/internal/auth"
	"github.com/xiaot623/gogo/messenger/internal/chat"
	"github.com/xiaot623/gogo/messenger/internal/domain"
	"github.com/xiaot623/gogo/messenger/internal/store"
)

// ContextKeyUserID is the echo context key holding the authenticated user id.
const ContextKeyUserID = "user_id"

// Handler handles REST requests.
type Handler struct {
	coordinator   *chat.Coordinator
	notifications store.NotificationStore
	logger        *zap.Logger
}

// NewHandler creates a new handler.
func NewHandler(coordinator *chat.Coordinator, notifications store.NotificationStore, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		coordinator:   coordinator,
		notifications: notifications,
		logger:        logger,
	}
}

// RegisterRoutes registers routes with the echo server behind bearer authentication.
func (h *Handler) RegisterRoutes(e *echo.Echo, authenticator chat.Authenticator) {
	g := e.Group("/v1", RequireAuth(authenticator))

	g.GET("/messages/threads", h.ListThreads)
	g.GET("/messages/:user_id", h.GetConversation)
	g.POST("/messages", h.SendMessage)
	g.POST("/messages/:user_id/read", h.MarkRead)

	g.GET("/notifications", h.ListNotifications)
	g.PUT("/notifications/read-all", h.MarkAllNotificationsRead)
	g.PUT("/notifications/:id/read", h.MarkNotificationRead)

	g.GET("/presence", h.GetPresence)
}

// RequireAuth rejects requests without a valid bearer token.
func RequireAuth(authenticator chat.Authenticator) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			credential := auth.BearerToken(c.Request().Header.Get(echo.HeaderAuthorization))
			identity, err := authenticator.Authenticate(c.Request().Context(), credential)
			if err != nil {
				return c.JSON(http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
			}
			c.Set(ContextKeyUserID, identity.UserID)
			return next(c)
		}
	}
}

func currentUser(c echo.Context) string {
	id, _ := c.Get(ContextKeyUserID).(string)
	return id
}

// fail maps a chat error onto an HTTP status.
func (h *Handler) fail(c echo.Context, op string, err error) error {
	switch {
	case errors.Is(err, domain.ErrValidation):
		return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
	case errors.Is(err, domain.ErrAuth):
		return c.JSON(http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
	case errors.Is(err, domain.ErrNotFound):
		return c.JSON(http.StatusNotFound, map[string]string{"error": err.Error()})
	case errors.Is(err, domain.ErrGateway):
		h.logger.Error(op+" failed", zap.String("user_id", currentUser(c)), zap.Error(err))
		return c.JSON(http.StatusBadGateway, map[string]string{"error": "storage unavailable, please retry"})
	default:
		h.logger.Error(op+" failed", zap.String("user_id", currentUser(c)), zap.Error(err))
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "internal error"})
	}
}
