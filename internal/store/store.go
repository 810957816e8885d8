// Package store defines the storage interfaces and implementations.
//
//go:generate go run go.uber.org/mock/mockgen -source=store.go -destination=../mocks/mock_store.go -package=mocks
package store

import (
	"context"

	"github.com/xiaot623/gogo/messenger/internal/domain"
)

// MessageStore persists direct messages. Each call is atomic on its own.
type MessageStore interface {
	// CreateMessage assigns ID and CreatedAt when unset and persists the message unread.
	CreateMessage(ctx context.Context, message *domain.Message) error
	// GetConversation returns every message exchanged between a and b, oldest first.
	GetConversation(ctx context.Context, a, b string) ([]domain.Message, error)
	// MarkConversationRead flags unread messages from peerID to readerID as read
	// and returns how many rows changed.
	MarkConversationRead(ctx context.Context, peerID, readerID string) (int64, error)
	// ListThreads summarises each conversation userID takes part in, most recent first.
	ListThreads(ctx context.Context, userID string) ([]domain.ThreadSummary, error)
}

// NotificationStore persists out-of-band notifications.
type NotificationStore interface {
	CreateNotification(ctx context.Context, notification *domain.Notification) error
	ListNotifications(ctx context.Context, userID string, limit int) ([]domain.Notification, error)
	CountUnreadNotifications(ctx context.Context, userID string) (int, error)
	MarkNotificationRead(ctx context.Context, userID, notificationID string) (bool, error)
	MarkAllNotificationsRead(ctx context.Context, userID string) (int64, error)
}

// UserDirectory resolves the public identity of users.
type UserDirectory interface {
	// GetUser returns nil, nil when the user is unknown.
	GetUser(ctx context.Context, userID string) (*domain.UserProfile, error)
	UpsertUser(ctx context.Context, user *domain.UserProfile) error
}

// Store defines the interface for data persistence.
type Store interface {
	MessageStore
	NotificationStore
	UserDirectory

	// Lifecycle
	Close() error
}
