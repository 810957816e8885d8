package domain

import "time"

// NotificationType tags the kind of a notification.
type NotificationType string

const (
	NotificationTypeNewMessage NotificationType = "NEW_MESSAGE"
)

// Notification is an out-of-band record shown outside the chat window.
type Notification struct {
	ID        string           `json:"id"`
	UserID    string           `json:"userId"`
	Type      NotificationType `json:"type"`
	Title     string           `json:"title"`
	Message   string           `json:"message"`
	Link      string           `json:"link,omitempty"`
	Read      bool             `json:"read"`
	CreatedAt time.Time        `json:"createdAt"`
}
