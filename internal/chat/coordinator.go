package chat

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/samber/lo"
	"go.uber.org/zap"

	"github.com/xiaot623/gogo/messenger/internal/auth"
	"github.com/xiaot623/gogo/messenger/internal/domain"
	"github.com/xiaot623/gogo/messenger/internal/metrics"
	"github.com/xiaot623/gogo/messenger/internal/presence"
	"github.com/xiaot623/gogo/messenger/internal/protocol"
	"github.com/xiaot623/gogo/messenger/internal/store"
)

// Authenticator resolves a connection credential to an identity.
type Authenticator interface {
	Authenticate(ctx context.Context, credential string) (auth.Identity, error)
}

// Notifier receives every persisted message for out-of-band notification.
type Notifier interface {
	Dispatch(msg domain.Message)
}

// Options configures a Coordinator.
type Options struct {
	Authenticator    Authenticator
	Messages         store.MessageStore
	Users            store.UserDirectory
	Presence         *presence.Registry
	Notifier         Notifier
	Logger           *zap.Logger
	Metrics          *metrics.Metrics
	MaxContentLength int
}

// Coordinator drives chat sessions from admission to teardown and routes
// traffic between them.
type Coordinator struct {
	auth             Authenticator
	messages         store.MessageStore
	users            store.UserDirectory
	presence         *presence.Registry
	notifier         Notifier
	logger           *zap.Logger
	metrics          *metrics.Metrics
	maxContentLength int

	// presenceMu orders a presence change with its broadcast, so peers see
	// user_online and user_offline in the order the registry applied them.
	presenceMu sync.Mutex

	profilesMu sync.Mutex
	profiles   map[string]domain.UserProfile
}

// NewCoordinator creates a Coordinator.
func NewCoordinator(opts Options) *Coordinator {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	registry := opts.Presence
	if registry == nil {
		registry = presence.NewRegistry()
	}
	return &Coordinator{
		auth:             opts.Authenticator,
		messages:         opts.Messages,
		users:            opts.Users,
		presence:         registry,
		notifier:         opts.Notifier,
		logger:           logger,
		metrics:          opts.Metrics,
		maxContentLength: opts.MaxContentLength,
		profiles:         make(map[string]domain.UserProfile),
	}
}

// Authenticate verifies a credential without admitting a session. A profile
// carried by the credential is recorded in the user directory.
func (c *Coordinator) Authenticate(ctx context.Context, credential string) (auth.Identity, error) {
	identity, err := c.auth.Authenticate(ctx, credential)
	if err != nil {
		return auth.Identity{}, err
	}
	c.rememberProfile(ctx, identity)
	return identity, nil
}

// Admit authenticates a new connection, registers its presence and announces
// the user to every connected session, the newcomer included.
// On failure nothing is registered and the caller must close the connection.
func (c *Coordinator) Admit(ctx context.Context, handle presence.Handle, credential string) (*Session, error) {
	sess := NewSession(handle)

	identity, err := c.Authenticate(ctx, credential)
	if err != nil {
		sess.close()
		c.metrics.ConnectionRejected(protocol.ErrorCodeUnauthorized)
		return nil, err
	}

	sess.UserID = identity.UserID
	sess.Roles = identity.Roles
	if !sess.transition(StateConnecting, StateAuthenticated) {
		return nil, fmt.Errorf("%w: session is %s", domain.ErrAuth, sess.State())
	}

	c.presenceMu.Lock()
	if prev := c.presence.Register(sess.UserID, handle); prev != nil {
		c.logger.Info("session replaced",
			zap.String("user_id", sess.UserID),
			zap.String("previous", prev.ID()),
			zap.String("current", handle.ID()))
	}
	sess.transition(StateAuthenticated, StateActive)
	c.metrics.SessionOpened()

	c.send(handle, protocol.NewHelloAck(sess.UserID))
	c.broadcast(protocol.NewUserOnline(sess.UserID))
	c.presenceMu.Unlock()

	c.logger.Info("session active", zap.String("user_id", sess.UserID), zap.String("session_id", sess.ID))
	return sess, nil
}

// Handle processes one inbound event of an active session.
// AuthError means the connection must be closed; other errors are reported
// to the session and the connection stays open.
func (c *Coordinator) Handle(ctx context.Context, sess *Session, frame protocol.Frame) error {
	if state := sess.State(); state != StateActive {
		return fmt.Errorf("%w: %s received while %s", domain.ErrAuth, frame.MessageType(), state)
	}

	switch f := frame.(type) {
	case *protocol.SendMessageRequest:
		msg, err := c.SendMessage(ctx, sess.UserID, f.ReceiverID, f.Content)
		if err != nil {
			return err
		}
		c.send(sess.Handle, protocol.NewMessageSent(msg, f.RequestID))
		return nil

	case *protocol.TypingRequest:
		return c.forwardTyping(sess.UserID, f)

	case *protocol.MarkReadRequest:
		_, err := c.MarkRead(ctx, sess.UserID, f.SenderID)
		return err

	case *protocol.GetOnlineUsersRequest:
		c.send(sess.Handle, protocol.NewOnlineUsers(c.OnlineUsers()))
		return nil

	case *protocol.HelloMessage:
		return fmt.Errorf("%w: session already authenticated", domain.ErrProtocol)

	default:
		return fmt.Errorf("%w: unsupported event %s", domain.ErrProtocol, frame.MessageType())
	}
}

// Disconnect closes the session. Presence is released and user_offline is
// broadcast only for an active session that still owns the presence entry.
// Calling it more than once has no further effect.
func (c *Coordinator) Disconnect(sess *Session) {
	if sess == nil {
		return
	}
	if prev := sess.close(); prev != StateActive {
		return
	}
	c.metrics.SessionClosed()

	c.presenceMu.Lock()
	removed := c.presence.UnregisterHandle(sess.UserID, sess.ID)
	if removed {
		c.broadcast(protocol.NewUserOffline(sess.UserID))
	}
	c.presenceMu.Unlock()

	if !removed {
		c.logger.Debug("stale session closed", zap.String("user_id", sess.UserID), zap.String("session_id", sess.ID))
		return
	}
	c.logger.Info("session closed", zap.String("user_id", sess.UserID), zap.String("session_id", sess.ID))
}

// SendMessage validates, persists and delivers a message from senderID.
// A persistence failure aborts before any delivery or notification.
func (c *Coordinator) SendMessage(ctx context.Context, senderID, receiverID, content string) (domain.Message, error) {
	if err := c.validateMessage(receiverID, content); err != nil {
		return domain.Message{}, err
	}

	msg := &domain.Message{
		SenderID:   senderID,
		ReceiverID: receiverID,
		Content:    content,
	}
	if err := c.messages.CreateMessage(ctx, msg); err != nil {
		c.logger.Error("persist message failed",
			zap.String("sender_id", senderID),
			zap.String("receiver_id", receiverID),
			zap.Error(err))
		return domain.Message{}, err
	}
	c.metrics.MessagePersisted()

	sender, receiver := c.profile(ctx, senderID), c.profile(ctx, receiverID)
	msg.Sender, msg.Receiver = &sender, &receiver

	c.deliver(*msg)
	if c.notifier != nil {
		c.notifier.Dispatch(*msg)
	}
	return *msg, nil
}

// MarkRead flags every unread message from peerID to readerID as read and
// tells peerID, if online, that readerID has read them.
func (c *Coordinator) MarkRead(ctx context.Context, readerID, peerID string) (int64, error) {
	if err := protocol.ValidateUserID(peerID); err != nil {
		return 0, err
	}

	updated, err := c.messages.MarkConversationRead(ctx, peerID, readerID)
	if err != nil {
		return 0, err
	}

	if handle, ok := c.presence.Lookup(peerID); ok {
		c.send(handle, protocol.NewMessagesRead(readerID))
	}
	return updated, nil
}

// GetConversation marks the conversation read for selfID and returns every
// message between the two users, oldest first.
func (c *Coordinator) GetConversation(ctx context.Context, selfID, peerID string) ([]domain.Message, error) {
	if _, err := c.MarkRead(ctx, selfID, peerID); err != nil {
		return nil, err
	}
	messages, err := c.messages.GetConversation(ctx, selfID, peerID)
	if err != nil {
		return nil, err
	}
	if len(messages) == 0 {
		return messages, nil
	}

	profiles := map[string]domain.UserProfile{
		selfID: c.profile(ctx, selfID),
		peerID: c.profile(ctx, peerID),
	}
	for i := range messages {
		sender, receiver := profiles[messages[i].SenderID], profiles[messages[i].ReceiverID]
		messages[i].Sender, messages[i].Receiver = &sender, &receiver
	}
	return messages, nil
}

// ListThreads returns the conversations of selfID, most recent first, each
// with the peer's public profile.
func (c *Coordinator) ListThreads(ctx context.Context, selfID string) ([]domain.Thread, error) {
	summaries, err := c.messages.ListThreads(ctx, selfID)
	if err != nil {
		return nil, err
	}

	return lo.Map(summaries, func(s domain.ThreadSummary, _ int) domain.Thread {
		return domain.Thread{
			Partner:     c.profile(ctx, s.PeerID),
			LastMessage: s.LastMessage,
			UnreadCount: s.UnreadCount,
		}
	}), nil
}

// OnlineUsers returns the ids of every online user.
func (c *Coordinator) OnlineUsers() []string {
	return c.presence.OnlineUserIDs()
}

// Presence exposes the registry shared with the notifier and transports.
func (c *Coordinator) Presence() *presence.Registry {
	return c.presence
}

func (c *Coordinator) validateMessage(receiverID, content string) error {
	if err := protocol.ValidateUserID(receiverID); err != nil {
		return err
	}
	if strings.TrimSpace(content) == "" {
		return fmt.Errorf("%w: content must not be empty", domain.ErrValidation)
	}
	if c.maxContentLength > 0 && utf8.RuneCountInString(content) > c.maxContentLength {
		return fmt.Errorf("%w: content exceeds %d characters", domain.ErrValidation, c.maxContentLength)
	}
	return nil
}

func (c *Coordinator) deliver(msg domain.Message) {
	handle, ok := c.presence.Lookup(msg.ReceiverID)
	if !ok {
		c.metrics.Delivery(metrics.OutcomeOffline)
		return
	}
	if err := handle.Send(protocol.NewReceiveMessage(msg)); err != nil {
		c.metrics.Delivery(metrics.OutcomeFailed)
		c.logger.Warn("deliver message failed",
			zap.String("message_id", msg.ID),
			zap.String("receiver_id", msg.ReceiverID),
			zap.Error(err))
		return
	}
	c.metrics.Delivery(metrics.OutcomeDelivered)
}

func (c *Coordinator) forwardTyping(selfID string, req *protocol.TypingRequest) error {
	handle, ok := c.presence.Lookup(req.ReceiverID)
	if !ok {
		return nil
	}
	if req.MessageType() == protocol.TypeStopTyping {
		c.send(handle, protocol.NewUserStopTyping(selfID))
	} else {
		c.send(handle, protocol.NewUserTyping(selfID))
	}
	return nil
}

func (c *Coordinator) broadcast(frame protocol.Frame) {
	for _, handle := range c.presence.Handles() {
		c.send(handle, frame)
	}
}

func (c *Coordinator) send(handle presence.Handle, frame protocol.Frame) {
	if err := handle.Send(frame); err != nil {
		c.logger.Debug("send frame failed",
			zap.String("type", frame.MessageType()),
			zap.String("session_id", handle.ID()),
			zap.Error(err))
	}
}

// rememberProfile upserts the profile carried by identity when it differs
// from the last one recorded for that user.
func (c *Coordinator) rememberProfile(ctx context.Context, identity auth.Identity) {
	if c.users == nil || identity.Name == "" {
		return
	}
	profile := identity.Profile()

	c.profilesMu.Lock()
	known, ok := c.profiles[profile.ID]
	c.profilesMu.Unlock()
	if ok && known == profile {
		return
	}

	if err := c.users.UpsertUser(ctx, &profile); err != nil {
		c.logger.Warn("record profile failed", zap.String("user_id", profile.ID), zap.Error(err))
		return
	}
	c.profilesMu.Lock()
	c.profiles[profile.ID] = profile
	c.profilesMu.Unlock()
}

func (c *Coordinator) profile(ctx context.Context, userID string) domain.UserProfile {
	fallback := domain.UserProfile{ID: userID}
	if c.users == nil {
		return fallback
	}
	profile, err := c.users.GetUser(ctx, userID)
	if err != nil {
		c.logger.Warn("profile lookup failed", zap.String("user_id", userID), zap.Error(err))
		return fallback
	}
	if profile == nil {
		return fallback
	}
	return *profile
}
