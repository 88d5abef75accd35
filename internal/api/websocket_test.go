package api

import (
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmdvm-dashboard/backend/internal/broadcast"
	"github.com/mmdvm-dashboard/backend/internal/models"
	"github.com/mmdvm-dashboard/backend/internal/state"
)

func dialWebSocket(t *testing.T, hub *broadcast.Hub) *websocket.Conn {
	t.Helper()

	e := echo.New()
	wsh := NewWebSocketHandler(hub, nil)
	e.GET("/ws", wsh.HandleWebSocket)

	srv := httptest.NewServer(e)
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	if resp != nil {
		resp.Body.Close()
	}
	t.Cleanup(func() { conn.Close() })
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	return conn
}

func readMessage(t *testing.T, conn *websocket.Conn) map[string]json.RawMessage {
	t.Helper()
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	var msg map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(data, &msg))
	return msg
}

func messageType(t *testing.T, msg map[string]json.RawMessage) string {
	t.Helper()
	var typ string
	require.NoError(t, json.Unmarshal(msg["type"], &typ))
	return typ
}

func TestWebSocketInitialStateThenUpdates(t *testing.T) {
	store := state.New()
	hub := broadcast.NewHub(store, time.Millisecond, nil)
	defer hub.Stop()

	conn := dialWebSocket(t, hub)

	// First frame after connect carries the full snapshot.
	msg := readMessage(t, conn)
	assert.Equal(t, MsgTypeInitialState, messageType(t, msg))

	var status models.SystemStatus
	require.NoError(t, json.Unmarshal(msg["status"], &status))
	assert.Equal(t, "IDLE", status.CurrentMode)

	store.Apply(models.ModeChanged{Mode: "DMR", At: time.Now()})
	hub.Flush()

	msg = readMessage(t, conn)
	assert.Equal(t, MsgTypeStateUpdate, messageType(t, msg))
	require.NoError(t, json.Unmarshal(msg["status"], &status))
	assert.Equal(t, "DMR", status.CurrentMode)
}

func TestWebSocketPing(t *testing.T) {
	store := state.New()
	hub := broadcast.NewHub(store, time.Hour, nil)
	defer hub.Stop()

	conn := dialWebSocket(t, hub)
	readMessage(t, conn) // initial_state

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"ping"}`)))
	msg := readMessage(t, conn)
	assert.Equal(t, MsgTypePong, messageType(t, msg))
	assert.Contains(t, msg, "timestamp")
}

func TestWebSocketSubscriberCount(t *testing.T) {
	store := state.New()
	hub := broadcast.NewHub(store, time.Hour, nil)
	defer hub.Stop()

	conn := dialWebSocket(t, hub)
	readMessage(t, conn) // initial_state
	assert.Equal(t, 1, hub.SubscriberCount())

	conn.Close()
	deadline := time.Now().Add(2 * time.Second)
	for hub.SubscriberCount() != 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	assert.Equal(t, 0, hub.SubscriberCount())
}
