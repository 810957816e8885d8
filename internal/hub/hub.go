// Package hub provides connection management for WebSocket clients.
package hub

import (
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/xiaot623/gogo/messenger/internal/protocol"
)

var (
	// ErrBufferFull is returned when the send buffer is full. The connection is closed.
	ErrBufferFull = errors.New("send buffer full")
	// ErrConnectionClosed is returned when sending to a closed connection.
	ErrConnectionClosed = errors.New("connection closed")
)

// Connection represents a single WebSocket connection.
// It is the presence handle of the chat session running on it.
type Connection struct {
	Conn *websocket.Conn

	id        string
	send      chan []byte
	done      chan struct{}
	closeOnce sync.Once
	mu        sync.Mutex
}

// Hub tracks every open WebSocket connection, authenticated or not.
type Hub struct {
	connections map[string]*Connection
	mu          sync.RWMutex
}

// NewHub creates a new Hub.
func NewHub() *Hub {
	return &Hub{
		connections: make(map[string]*Connection),
	}
}

// NewConnection wraps ws with a buffered outbound queue of bufferSize frames.
func (h *Hub) NewConnection(ws *websocket.Conn, bufferSize int) *Connection {
	if bufferSize <= 0 {
		bufferSize = 256
	}
	return &Connection{
		Conn: ws,
		id:   uuid.New().String(),
		send: make(chan []byte, bufferSize),
		done: make(chan struct{}),
	}
}

// Register adds a connection to the hub.
func (h *Hub) Register(conn *Connection) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.connections[conn.id] = conn
}

// Unregister removes a connection from the hub.
func (h *Hub) Unregister(conn *Connection) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.connections, conn.id)
}

// Count returns the number of open connections.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.connections)
}

// CloseAll closes every open connection.
func (h *Hub) CloseAll() {
	h.mu.RLock()
	conns := make([]*Connection, 0, len(h.connections))
	for _, c := range h.connections {
		conns = append(conns, c)
	}
	h.mu.RUnlock()

	for _, c := range conns {
		_ = c.WriteClose(websocket.CloseGoingAway, "server shutting down", time.Second)
		_ = c.Close()
	}
}

// ID returns the connection id.
func (c *Connection) ID() string {
	return c.id
}

// Send queues a frame for the write pump without blocking.
// A full buffer means the client cannot keep up; the connection is closed.
func (c *Connection) Send(frame protocol.Frame) error {
	data, err := json.Marshal(frame)
	if err != nil {
		return err
	}

	select {
	case <-c.done:
		return ErrConnectionClosed
	default:
	}

	select {
	case c.send <- data:
		return nil
	case <-c.done:
		return ErrConnectionClosed
	default:
		_ = c.Close()
		return ErrBufferFull
	}
}

// Outbound yields the queued frames.
func (c *Connection) Outbound() <-chan []byte {
	return c.send
}

// Done is closed once the connection is closed.
func (c *Connection) Done() <-chan struct{} {
	return c.done
}

// WriteMessage writes a message to the connection with proper locking.
func (c *Connection) WriteMessage(messageType int, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.Conn.WriteMessage(messageType, data)
}

// WriteFrame writes a frame immediately, bypassing the queue.
func (c *Connection) WriteFrame(frame protocol.Frame, timeout time.Duration) error {
	data, err := json.Marshal(frame)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.Conn.SetWriteDeadline(time.Now().Add(timeout))
	return c.Conn.WriteMessage(websocket.TextMessage, data)
}

// WriteClose sends a close control frame.
func (c *Connection) WriteClose(code int, reason string, timeout time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	msg := websocket.FormatCloseMessage(code, reason)
	return c.Conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(timeout))
}

// SetWriteDeadline sets the write deadline for the connection.
func (c *Connection) SetWriteDeadline(t time.Time) error {
	return c.Conn.SetWriteDeadline(t)
}

// SetReadDeadline sets the read deadline for the connection.
func (c *Connection) SetReadDeadline(t time.Time) error {
	return c.Conn.SetReadDeadline(t)
}

// Close closes the connection. It is safe to call more than once.
func (c *Connection) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.done)
		err = c.Conn.Close()
	})
	return err
}
