// Package protocol defines the WebSocket message protocol between chat clients and the server.
package protocol

import (
	"time"

	"github.com/xiaot623/gogo/messenger/internal/domain"
)

// Message types from client to server
const (
	TypeHello          = "hello"
	TypeSendMessage    = "send_message"
	TypeTyping         = "typing"
	TypeStopTyping     = "stop_typing"
	TypeMarkRead       = "mark_read"
	TypeGetOnlineUsers = "get_online_users"
)

// Message types from server to client
const (
	TypeHelloAck        = "hello_ack"
	TypeUserOnline      = "user_online"
	TypeUserOffline     = "user_offline"
	TypeReceiveMessage  = "receive_message"
	TypeMessageSent     = "message_sent"
	TypeUserTyping      = "user_typing"
	TypeUserStopTyping  = "user_stop_typing"
	TypeMessagesRead    = "messages_read"
	TypeOnlineUsers     = "online_users"
	TypeNewNotification = "new_notification"
	TypeError           = "error"
)

// Frame is any protocol message, inbound or outbound.
type Frame interface {
	MessageType() string
}

// BaseMessage contains common fields for all messages.
type BaseMessage struct {
	Type      string `json:"type"`
	Ts        int64  `json:"ts,omitempty"`
	RequestID string `json:"requestId,omitempty"`
}

// MessageType returns the frame's type discriminator.
func (b BaseMessage) MessageType() string { return b.Type }

func (b BaseMessage) requestID() string { return b.RequestID }

// RequestIDOf returns the client correlation id carried by f, if any.
func RequestIDOf(f Frame) string {
	if r, ok := f.(interface{ requestID() string }); ok {
		return r.requestID()
	}
	return ""
}

func base(typ string) BaseMessage {
	return BaseMessage{Type: typ, Ts: time.Now().UnixMilli()}
}

// HelloMessage carries the credential when it was not presented at upgrade time.
type HelloMessage struct {
	BaseMessage
	Token string `json:"token"`
}

// SendMessageRequest asks the server to persist and deliver a message.
type SendMessageRequest struct {
	BaseMessage
	ReceiverID string `json:"receiverId" validate:"required,max=128,printascii"`
	Content    string `json:"content" validate:"required"`
}

// TypingRequest signals typing activity towards a peer. Used for typing and stop_typing.
type TypingRequest struct {
	BaseMessage
	ReceiverID string `json:"receiverId" validate:"required,max=128,printascii"`
}

// MarkReadRequest acknowledges every unread message received from SenderID.
type MarkReadRequest struct {
	BaseMessage
	SenderID string `json:"senderId" validate:"required,max=128,printascii"`
}

// GetOnlineUsersRequest asks for the presence snapshot.
type GetOnlineUsersRequest struct {
	BaseMessage
}

// HelloAckMessage is sent after a successful handshake.
type HelloAckMessage struct {
	BaseMessage
	UserID string `json:"userId"`
}

// UserEvent carries a user id; used for presence and typing notifications.
type UserEvent struct {
	BaseMessage
	UserID string `json:"userId"`
}

// MessageEvent carries a persisted message (receive_message, message_sent).
type MessageEvent struct {
	BaseMessage
	Message domain.Message `json:"message"`
}

// MessagesReadEvent tells a sender that ReadBy has read their messages.
type MessagesReadEvent struct {
	BaseMessage
	ReadBy string `json:"readBy"`
}

// OnlineUsersMessage answers get_online_users.
type OnlineUsersMessage struct {
	BaseMessage
	UserIDs []string `json:"userIds"`
}

// NotificationPayload is the lightweight realtime view of a notification.
type NotificationPayload struct {
	Type    domain.NotificationType `json:"type"`
	Title   string                  `json:"title"`
	Message string                  `json:"message"`
	Link    string                  `json:"link,omitempty"`
}

// NotificationEvent pushes a notification to an online user.
type NotificationEvent struct {
	BaseMessage
	Notification NotificationPayload `json:"notification"`
}

// ErrorMessage is sent by the server when an error occurs.
type ErrorMessage struct {
	BaseMessage
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Error codes
const (
	ErrorCodeUnauthorized     = "unauthorized"
	ErrorCodeInvalidMessage   = "invalid_message"
	ErrorCodeValidationFailed = "validation_failed"
	ErrorCodeStorageFailed    = "storage_failed"
	ErrorCodeRateLimited      = "rate_limited"
	ErrorCodeInternalError    = "internal_error"
)

func NewHelloAck(userID string) HelloAckMessage {
	return HelloAckMessage{BaseMessage: base(TypeHelloAck), UserID: userID}
}

func NewUserOnline(userID string) UserEvent {
	return UserEvent{BaseMessage: base(TypeUserOnline), UserID: userID}
}

func NewUserOffline(userID string) UserEvent {
	return UserEvent{BaseMessage: base(TypeUserOffline), UserID: userID}
}

func NewUserTyping(userID string) UserEvent {
	return UserEvent{BaseMessage: base(TypeUserTyping), UserID: userID}
}

func NewUserStopTyping(userID string) UserEvent {
	return UserEvent{BaseMessage: base(TypeUserStopTyping), UserID: userID}
}

func NewReceiveMessage(msg domain.Message) MessageEvent {
	return MessageEvent{BaseMessage: base(TypeReceiveMessage), Message: msg}
}

// NewMessageSent builds the sender acknowledgement, echoing the request id if any.
func NewMessageSent(msg domain.Message, requestID string) MessageEvent {
	b := base(TypeMessageSent)
	b.RequestID = requestID
	return MessageEvent{BaseMessage: b, Message: msg}
}

func NewMessagesRead(readBy string) MessagesReadEvent {
	return MessagesReadEvent{BaseMessage: base(TypeMessagesRead), ReadBy: readBy}
}

func NewOnlineUsers(userIDs []string) OnlineUsersMessage {
	if userIDs == nil {
		userIDs = []string{}
	}
	return OnlineUsersMessage{BaseMessage: base(TypeOnlineUsers), UserIDs: userIDs}
}

func NewNotification(n domain.Notification) NotificationEvent {
	return NotificationEvent{
		BaseMessage: base(TypeNewNotification),
		Notification: NotificationPayload{
			Type:    n.Type,
			Title:   n.Title,
			Message: n.Message,
			Link:    n.Link,
		},
	}
}

func NewError(code, message, requestID string) ErrorMessage {
	b := base(TypeError)
	b.RequestID = requestID
	return ErrorMessage{BaseMessage: b, Code: code, Message: message}
}
