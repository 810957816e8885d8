// Package domain defines the core domain models for the messenger.
package domain

import "time"

// Message is a durable direct message between two users.
// Sender and Receiver are filled from the user directory when the message is
// handed to clients; they are not stored.
type Message struct {
	ID         string       `json:"id"`
	SenderID   string       `json:"senderId"`
	ReceiverID string       `json:"receiverId"`
	Content    string       `json:"content"`
	CreatedAt  time.Time    `json:"createdAt"`
	Read       bool         `json:"read"`
	Sender     *UserProfile `json:"sender,omitempty"`
	Receiver   *UserProfile `json:"receiver,omitempty"`
}

// ThreadSummary is the stored view of one conversation as seen by a user.
type ThreadSummary struct {
	PeerID      string  `json:"peerId"`
	LastMessage Message `json:"lastMessage"`
	UnreadCount int     `json:"unreadCount"`
}

// Thread is a ThreadSummary enriched with the peer's public identity.
type Thread struct {
	Partner     UserProfile `json:"partner"`
	LastMessage Message     `json:"lastMessage"`
	UnreadCount int         `json:"unreadCount"`
}
