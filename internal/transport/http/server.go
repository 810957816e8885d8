// Package http assembles the public HTTP server: websocket endpoint, REST
// fallback, health and metrics.
package http

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/xiaot623/gogo/messenger/internal/chat"
	"github.com/xiaot623/gogo/messenger/internal/hub"
	v1 "github.com/xiaot623/gogo/messenger/internal/transport/http/v1"
	"github.com/xiaot623/gogo/messenger/internal/transport/ws"
)

// Server is the public HTTP server of the messenger.
type Server struct {
	echo        *echo.Echo
	hub         *hub.Hub
	coordinator *chat.Coordinator
	ws          *ws.Server
	logger      *zap.Logger
}

// NewServer creates the server and registers every route.
func NewServer(logger *zap.Logger, gatherer prometheus.Gatherer, h *hub.Hub, coordinator *chat.Coordinator, wsServer *ws.Server, api *v1.Handler) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	// Middleware
	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(requestLogger(logger))

	s := &Server{
		echo:        e,
		hub:         h,
		coordinator: coordinator,
		ws:          wsServer,
		logger:      logger,
	}

	// Register routes
	e.GET("/health", s.handleHealth)
	e.GET("/ws", wsServer.HandleWebSocket)
	if gatherer != nil {
		e.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
	}
	api.RegisterRoutes(e, coordinator)

	return s
}

func requestLogger(logger *zap.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			duration := time.Since(start)

			logger.Info("http request",
				zap.String("method", c.Request().Method),
				zap.String("uri", c.Request().RequestURI),
				zap.Int("status", c.Response().Status),
				zap.Duration("duration", duration),
				zap.String("request_id", c.Response().Header().Get(echo.HeaderXRequestID)),
			)

			return err
		}
	}
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.echo
}

// Start starts the HTTP server.
func (s *Server) Start(port int) error {
	addr := fmt.Sprintf(":%d", port)
	s.logger.Info("starting http server", zap.String("addr", addr))
	return s.echo.Start(addr)
}

// Shutdown stops accepting requests, closes every websocket connection and
// waits for their sessions to finish.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down http server")
	err := s.echo.Shutdown(ctx)
	s.hub.CloseAll()
	if waitErr := s.ws.Wait(ctx); waitErr != nil {
		s.logger.Warn("websocket sessions still running", zap.Error(waitErr))
		if err == nil {
			err = waitErr
		}
	}
	return err
}

// handleHealth handles health check requests.
func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]interface{}{
		"status":      "healthy",
		"connections": s.hub.Count(),
		"sessions":    s.coordinator.Presence().Count(),
	})
}
