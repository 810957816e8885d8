package hub

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xiaot623/gogo/messenger/internal/protocol"
)

// pair returns the server side of a live websocket and the dialed client side.
func pair(t *testing.T) (*websocket.Conn, *websocket.Conn) {
	t.Helper()
	upgrader := websocket.Upgrader{}
	serverSide := make(chan *websocket.Conn, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		serverSide <- ws
	}))
	t.Cleanup(srv.Close)

	client, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	select {
	case ws := <-serverSide:
		return ws, client
	case <-time.After(2 * time.Second):
		t.Fatal("upgrade timed out")
		return nil, nil
	}
}

func TestRegisterUnregisterCount(t *testing.T) {
	h := NewHub()
	ws, _ := pair(t)
	conn := h.NewConnection(ws, 4)

	h.Register(conn)
	assert.Equal(t, 1, h.Count())
	assert.NotEmpty(t, conn.ID())

	h.Unregister(conn)
	assert.Equal(t, 0, h.Count())
}

func TestSendQueuesJSON(t *testing.T) {
	h := NewHub()
	ws, _ := pair(t)
	conn := h.NewConnection(ws, 4)

	require.NoError(t, conn.Send(protocol.NewUserOnline("u1")))

	data := <-conn.Outbound()
	var decoded map[string]any
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, "user_online", decoded["type"])
	assert.Equal(t, "u1", decoded["userId"])
}

func TestSendBufferFullClosesConnection(t *testing.T) {
	h := NewHub()
	ws, _ := pair(t)
	conn := h.NewConnection(ws, 1)

	require.NoError(t, conn.Send(protocol.NewUserOnline("u1")))
	assert.ErrorIs(t, conn.Send(protocol.NewUserOnline("u2")), ErrBufferFull)

	select {
	case <-conn.Done():
	default:
		t.Fatal("connection should be closed")
	}
	assert.ErrorIs(t, conn.Send(protocol.NewUserOnline("u3")), ErrConnectionClosed)
}

func TestCloseIsIdempotent(t *testing.T) {
	h := NewHub()
	ws, _ := pair(t)
	conn := h.NewConnection(ws, 1)

	assert.NoError(t, conn.Close())
	assert.NoError(t, conn.Close())
}

func TestCloseAllNotifiesClients(t *testing.T) {
	h := NewHub()
	ws, client := pair(t)
	conn := h.NewConnection(ws, 1)
	h.Register(conn)

	h.CloseAll()

	_ = client.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err := client.ReadMessage()
	require.Error(t, err)
	assert.True(t, websocket.IsCloseError(err, websocket.CloseGoingAway))
}

func TestWriteFrameBypassesQueue(t *testing.T) {
	h := NewHub()
	ws, client := pair(t)
	conn := h.NewConnection(ws, 1)

	require.NoError(t, conn.WriteFrame(protocol.NewError(protocol.ErrorCodeUnauthorized, "nope", ""), time.Second))

	_ = client.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := client.ReadMessage()
	require.NoError(t, err)
	assert.Contains(t, string(data), `"code":"unauthorized"`)
}
