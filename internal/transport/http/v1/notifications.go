package v1

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/xiaot623/gogo/messenger/internal/domain"
)

const (
	defaultNotificationLimit = 50
	maxNotificationLimit     = 100
)

// ListNotifications returns the caller's latest notifications and unread count.
// GET /v1/notifications
func (h *Handler) ListNotifications(c echo.Context) error {
	ctx := c.Request().Context()
	userID := currentUser(c)

	limit, _ := strconv.Atoi(c.QueryParam("limit"))
	if limit <= 0 {
		limit = defaultNotificationLimit
	}
	if limit > maxNotificationLimit {
		limit = maxNotificationLimit
	}

	notifications, err := h.notifications.ListNotifications(ctx, userID, limit)
	if err != nil {
		return h.fail(c, "list notifications", err)
	}
	unread, err := h.notifications.CountUnreadNotifications(ctx, userID)
	if err != nil {
		return h.fail(c, "count notifications", err)
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"notifications": notifications,
		"unreadCount":   unread,
	})
}

// MarkAllNotificationsRead marks every notification of the caller as read.
// PUT /v1/notifications/read-all
func (h *Handler) MarkAllNotificationsRead(c echo.Context) error {
	updated, err := h.notifications.MarkAllNotificationsRead(c.Request().Context(), currentUser(c))
	if err != nil {
		return h.fail(c, "mark notifications read", err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"updated": updated,
	})
}

// MarkNotificationRead marks one notification of the caller as read.
// PUT /v1/notifications/:id/read
func (h *Handler) MarkNotificationRead(c echo.Context) error {
	id := c.Param("id")
	ok, err := h.notifications.MarkNotificationRead(c.Request().Context(), currentUser(c), id)
	if err != nil {
		return h.fail(c, "mark notification read", err)
	}
	if !ok {
		return h.fail(c, "mark notification read", fmt.Errorf("%w: notification %s", domain.ErrNotFound, id))
	}
	return c.JSON(http.StatusOK, map[string]bool{"ok": true})
}
