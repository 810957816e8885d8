// Package notify records out-of-band notifications for new messages and
// pushes them to receivers that are online.
package notify

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/xiaot623/gogo/messenger/internal/domain"
	"github.com/xiaot623/gogo/messenger/internal/metrics"
	"github.com/xiaot623/gogo/messenger/internal/presence"
	"github.com/xiaot623/gogo/messenger/internal/protocol"
	"github.com/xiaot623/gogo/messenger/internal/store"
)

const (
	newMessageTitle = "New Message"
	messagesLink    = "/messages"
)

// Notifier is the delivery notifier.
type Notifier struct {
	notifications store.NotificationStore
	users         store.UserDirectory
	presence      *presence.Registry
	logger        *zap.Logger
	metrics       *metrics.Metrics
	timeout       time.Duration

	wg sync.WaitGroup
}

// NewNotifier creates a Notifier. users may be nil, in which case senders are named by id.
func NewNotifier(notifications store.NotificationStore, users store.UserDirectory, registry *presence.Registry, logger *zap.Logger, m *metrics.Metrics, timeout time.Duration) *Notifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Notifier{
		notifications: notifications,
		users:         users,
		presence:      registry,
		logger:        logger,
		metrics:       m,
		timeout:       timeout,
	}
}

// Notify records a NEW_MESSAGE notification for the receiver of msg and,
// when the receiver is online, pushes it over their session.
func (n *Notifier) Notify(ctx context.Context, msg domain.Message) error {
	notification := &domain.Notification{
		UserID:  msg.ReceiverID,
		Type:    domain.NotificationTypeNewMessage,
		Title:   newMessageTitle,
		Message: fmt.Sprintf("%s sent you a message", n.senderName(ctx, msg)),
		Link:    messagesLink,
	}
	if err := n.notifications.CreateNotification(ctx, notification); err != nil {
		return err
	}

	handle, ok := n.presence.Lookup(msg.ReceiverID)
	if !ok {
		return nil
	}
	if err := handle.Send(protocol.NewNotification(*notification)); err != nil {
		return fmt.Errorf("push notification to %s: %w", msg.ReceiverID, err)
	}
	return nil
}

// Dispatch runs Notify in the background. Failures are logged and counted,
// they never reach the sender.
func (n *Notifier) Dispatch(msg domain.Message) {
	n.wg.Add(1)
	go func() {
		defer n.wg.Done()

		ctx, cancel := context.WithTimeout(context.Background(), n.timeout)
		defer cancel()

		if err := n.Notify(ctx, msg); err != nil {
			n.metrics.NotificationFailed()
			n.logger.Warn("notification failed",
				zap.String("message_id", msg.ID),
				zap.String("receiver_id", msg.ReceiverID),
				zap.Error(err))
		}
	}()
}

// Wait blocks until every dispatched notification has finished.
// Producers must be stopped before calling it.
func (n *Notifier) Wait() {
	n.wg.Wait()
}

func (n *Notifier) senderName(ctx context.Context, msg domain.Message) string {
	if msg.Sender != nil && msg.Sender.Name != "" {
		return msg.Sender.Name
	}
	senderID := msg.SenderID
	if n.users == nil {
		return senderID
	}
	profile, err := n.users.GetUser(ctx, senderID)
	if err != nil {
		n.logger.Debug("sender lookup failed", zap.String("user_id", senderID), zap.Error(err))
		return senderID
	}
	if profile == nil {
		return senderID
	}
	return profile.DisplayName()
}
