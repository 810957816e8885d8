// Package chat implements the chat session coordinator: the per-connection
// state machine and the routing of messages, typing and read receipts
// between online users.
package chat

import (
	"sync"
	"time"

	"github.com/xiaot623/gogo/messenger/internal/presence"
)

// State is the lifecycle state of a chat session.
type State int

const (
	StateConnecting State = iota
	StateAuthenticated
	StateActive
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "CONNECTING"
	case StateAuthenticated:
		return "AUTHENTICATED"
	case StateActive:
		return "ACTIVE"
	case StateClosed:
		return "CLOSED"
	default:
		return "UNKNOWN"
	}
}

// Session is one live connection and the user that owns it.
type Session struct {
	ID          string
	UserID      string
	Roles       []string
	Handle      presence.Handle
	ConnectedAt time.Time

	mu    sync.Mutex
	state State
}

// NewSession creates a session in the CONNECTING state.
func NewSession(handle presence.Handle) *Session {
	return &Session{
		ID:          handle.ID(),
		Handle:      handle,
		ConnectedAt: time.Now(),
		state:       StateConnecting,
	}
}

// State returns the current state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// transition moves the session from one state to another.
// It reports false when the session is not in from.
func (s *Session) transition(from, to State) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != from {
		return false
	}
	s.state = to
	return true
}

// close moves the session to CLOSED and returns the state it left.
func (s *Session) close() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	prev := s.state
	s.state = StateClosed
	return prev
}
