package http

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xiaot623/gogo/messenger/internal/auth"
	"github.com/xiaot623/gogo/messenger/internal/chat"
	"github.com/xiaot623/gogo/messenger/internal/config"
	"github.com/xiaot623/gogo/messenger/internal/hub"
	"github.com/xiaot623/gogo/messenger/internal/metrics"
	"github.com/xiaot623/gogo/messenger/internal/notify"
	"github.com/xiaot623/gogo/messenger/internal/presence"
	v1 "github.com/xiaot623/gogo/messenger/internal/transport/http/v1"
	"github.com/xiaot623/gogo/messenger/internal/transport/ws"
	"github.com/xiaot623/gogo/messenger/tests/helpers"
)

func newTestServer(t *testing.T) (*Server, *auth.TokenManager) {
	t.Helper()
	cfg := &config.Config{
		JWTSecret:        "http-test-secret",
		JWTIssuer:        "messenger",
		AuthTimeout:      time.Second,
		PingInterval:     time.Minute,
		WriteTimeout:     time.Second,
		ReadTimeout:      time.Minute,
		MaxMessageSize:   4096,
		SendBufferSize:   16,
		EventsPerSecond:  10,
		EventBurst:       10,
		MaxContentLength: 100,
		NotifyTimeout:    time.Second,
	}

	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	s := helpers.NewTestSQLiteStore(t)
	tokens := auth.NewTokenManager(cfg.JWTSecret, cfg.JWTIssuer)

	registry := presence.NewRegistry()
	notifier := notify.NewNotifier(s, s, registry, nil, m, cfg.NotifyTimeout)
	t.Cleanup(notifier.Wait)
	coord := chat.NewCoordinator(chat.Options{
		Authenticator:    auth.NewAuthenticator(tokens, nil),
		Messages:         s,
		Users:            s,
		Presence:         registry,
		Notifier:         notifier,
		Metrics:          m,
		MaxContentLength: cfg.MaxContentLength,
	})
	h := hub.NewHub()

	srv := NewServer(nil, reg, h, coord, ws.NewServer(cfg, h, coord, nil, m), v1.NewHandler(coord, s, nil))
	return srv, tokens
}

func TestHealth(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "healthy", body["status"])
	assert.Equal(t, 0.0, body["connections"])
	assert.Equal(t, 0.0, body["sessions"])
	assert.NotEmpty(t, rec.Header().Get("X-Request-Id"))
}

func TestRESTSendShowsUpInMetrics(t *testing.T) {
	srv, tokens := newTestServer(t)
	tok, err := tokens.Issue("alice", nil, time.Hour)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/v1/messages", strings.NewReader(`{"receiverId":"bob","content":"hi"}`))
	req.Header.Set("Authorization", "Bearer "+tok)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "messenger_messages_persisted_total 1")
	assert.Contains(t, rec.Body.String(), `messenger_deliveries_total{outcome="offline"} 1`)
}

func TestRESTRequiresToken(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/notifications", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestShutdownClosesWebsockets(t *testing.T) {
	srv, tokens := newTestServer(t)
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	tok, err := tokens.Issue("alice", nil, time.Hour)
	require.NoError(t, err)
	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(ts.URL, "http")+"/ws?token="+tok, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err = conn.ReadMessage()
	require.NoError(t, err)
	require.Eventually(t, func() bool { return srv.hub.Count() == 1 }, time.Second, 10*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, srv.Shutdown(ctx))
	assert.Equal(t, 0, srv.coordinator.Presence().Count())

	for {
		if _, _, err = conn.ReadMessage(); err != nil {
			break
		}
	}
	assert.True(t, websocket.IsCloseError(err, websocket.CloseGoingAway))
	assert.Eventually(t, func() bool {
		return srv.coordinator.Presence().Count() == 0
	}, 2*time.Second, 10*time.Millisecond)
}
