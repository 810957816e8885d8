// Package ws provides WebSocket server functionality for chat clients.
package ws

import (
	"context"
	"errors"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/xiaot623/gogo/messenger/internal/auth"
	"github.com/xiaot623/gogo/messenger/internal/chat"
	"github.com/xiaot623/gogo/messenger/internal/config"
	"github.com/xiaot623/gogo/messenger/internal/domain"
	"github.com/xiaot623/gogo/messenger/internal/hub"
	"github.com/xiaot623/gogo/messenger/internal/metrics"
	"github.com/xiaot623/gogo/messenger/internal/protocol"
)

// Rejection reasons recorded in metrics.
const (
	rejectUnauthorized = "unauthorized"
	rejectTimeout      = "timeout"
	rejectHandshake    = "handshake"
)

// Server handles WebSocket connections.
type Server struct {
	cfg         *config.Config
	hub         *hub.Hub
	coordinator *chat.Coordinator
	logger      *zap.Logger
	metrics     *metrics.Metrics
	upgrader    websocket.Upgrader
	pumps       sync.WaitGroup
}

// NewServer creates a new WebSocket server.
func NewServer(cfg *config.Config, h *hub.Hub, coordinator *chat.Coordinator, logger *zap.Logger, m *metrics.Metrics) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{
		cfg:         cfg,
		hub:         h,
		coordinator: coordinator,
		logger:      logger,
		metrics:     m,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}
}

// HandleWebSocket handles WebSocket upgrade and connection lifecycle.
// The credential may come from the Authorization header, the token query
// parameter, or a hello frame sent first.
func (s *Server) HandleWebSocket(c echo.Context) error {
	credential := auth.BearerToken(c.Request().Header.Get(echo.HeaderAuthorization))
	if credential == "" {
		credential = c.QueryParam("token")
	}

	ws, err := s.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		s.logger.Warn("failed to upgrade websocket", zap.Error(err))
		return err
	}

	conn := s.hub.NewConnection(ws, s.cfg.SendBufferSize)
	s.hub.Register(conn)
	ws.SetReadLimit(s.cfg.MaxMessageSize)

	s.pumps.Add(2)
	go func() {
		defer s.pumps.Done()
		s.writePump(conn)
	}()
	go func() {
		defer s.pumps.Done()
		s.readPump(conn, credential)
	}()

	return nil
}

// Wait blocks until every connection pump has exited or ctx is done.
// Once it returns nil, no session can still be sending messages.
func (s *Server) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.pumps.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// readPump authenticates the connection, then reads and handles its events in order.
func (s *Server) readPump(conn *hub.Connection, credential string) {
	ctx, cancel := context.WithCancel(context.Background())
	defer func() {
		cancel()
		s.hub.Unregister(conn)
		conn.Close()
	}()

	sess, ok := s.handshake(ctx, conn, credential)
	if !ok {
		return
	}
	defer s.coordinator.Disconnect(sess)

	conn.SetReadDeadline(time.Now().Add(s.cfg.ReadTimeout))
	conn.Conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(s.cfg.ReadTimeout))
		return nil
	})

	limiter := rate.NewLimiter(rate.Limit(s.cfg.EventsPerSecond), s.cfg.EventBurst)
	typing := rate.NewLimiter(rate.Limit(s.cfg.EventsPerSecond), s.cfg.EventBurst)
	for {
		_, message, err := conn.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				s.logger.Info("websocket read failed", zap.String("user_id", sess.UserID), zap.Error(err))
			}
			return
		}
		conn.SetReadDeadline(time.Now().Add(s.cfg.ReadTimeout))

		frame, err := protocol.Decode(message)
		if req, ok := frame.(*protocol.TypingRequest); ok && err == nil {
			// Excess typing is dropped; stop_typing always passes.
			if req.MessageType() == protocol.TypeTyping && !typing.Allow() {
				s.metrics.EventRateLimited()
				continue
			}
		} else if !limiter.Allow() {
			s.metrics.EventRateLimited()
			conn.Send(protocol.NewError(protocol.ErrorCodeRateLimited, "too many events, slow down", protocol.RequestIDOf(frame)))
			continue
		}

		if fatal := s.handleMessage(ctx, conn, sess, frame, err); fatal {
			return
		}
	}
}

// handshake resolves the credential within the auth timeout and admits the session.
func (s *Server) handshake(ctx context.Context, conn *hub.Connection, credential string) (*chat.Session, bool) {
	deadline := time.Now().Add(s.cfg.AuthTimeout)
	ctx, cancel := context.WithDeadline(ctx, deadline)
	defer cancel()

	if credential == "" {
		conn.SetReadDeadline(deadline)
		_, data, err := conn.Conn.ReadMessage()
		if err != nil {
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				s.metrics.ConnectionRejected(rejectTimeout)
				s.logger.Info("websocket handshake timed out", zap.String("conn_id", conn.ID()))
			} else {
				s.metrics.ConnectionRejected(rejectHandshake)
			}
			return nil, false
		}

		frame, err := protocol.Decode(data)
		if err != nil {
			s.reject(conn, err, rejectHandshake)
			return nil, false
		}
		hello, ok := frame.(*protocol.HelloMessage)
		if !ok {
			s.reject(conn, errors.New("hello required"), rejectHandshake)
			return nil, false
		}
		credential = hello.Token
	}

	sess, err := s.coordinator.Admit(ctx, conn, credential)
	if err != nil {
		s.reject(conn, err, rejectUnauthorized)
		return nil, false
	}
	return sess, true
}

// handleMessage dispatches one decoded inbound frame. It reports whether
// the connection must be closed.
func (s *Server) handleMessage(ctx context.Context, conn *hub.Connection, sess *chat.Session, frame protocol.Frame, err error) bool {
	if err != nil {
		conn.Send(protocol.ErrorFrom(err, protocol.RequestIDOf(frame)))
		return false
	}

	err = s.coordinator.Handle(ctx, sess, frame)
	if err == nil {
		return false
	}
	if errors.Is(err, domain.ErrAuth) {
		s.reject(conn, err, rejectUnauthorized)
		return true
	}
	conn.Send(protocol.ErrorFrom(err, protocol.RequestIDOf(frame)))
	return false
}

// reject tells the client why and closes the connection.
func (s *Server) reject(conn *hub.Connection, err error, reason string) {
	if reason != rejectUnauthorized {
		s.metrics.ConnectionRejected(reason)
	}
	s.logger.Info("websocket connection rejected",
		zap.String("conn_id", conn.ID()),
		zap.String("reason", reason),
		zap.Error(err))

	frame := protocol.ErrorFrom(err, "")
	if !errors.Is(err, domain.ErrAuth) {
		frame = protocol.NewError(protocol.ErrorCodeUnauthorized, "authentication required", "")
	}
	_ = conn.WriteFrame(frame, s.cfg.WriteTimeout)
	_ = conn.WriteClose(websocket.ClosePolicyViolation, reason, s.cfg.WriteTimeout)
	_ = conn.Close()
}

// writePump writes messages to the WebSocket connection.
func (s *Server) writePump(conn *hub.Connection) {
	ticker := time.NewTicker(s.cfg.PingInterval)
	defer func() {
		ticker.Stop()
		conn.Close()
	}()

	for {
		select {
		case message := <-conn.Outbound():
			conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout))
			if err := conn.WriteMessage(websocket.TextMessage, message); err != nil {
				s.logger.Debug("failed to write message", zap.String("conn_id", conn.ID()), zap.Error(err))
				return
			}

		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-conn.Done():
			return
		}
	}
}
