// websocket.go - WebSocket push channel for live state updates
package api

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/mmdvm-dashboard/backend/internal/broadcast"
	"github.com/mmdvm-dashboard/backend/internal/models"
)

// WebSocket message types
const (
	MsgTypeInitialState = "initial_state"
	MsgTypeStateUpdate  = "state_update"
	MsgTypePing         = "ping"
	MsgTypePong         = "pong"
)

const wsWriteTimeout = 10 * time.Second

// StateMessage is the push payload. Key names match the original
// dashboard frontend, hence the snake_case.
type StateMessage struct {
	Type                string                      `json:"type"`
	Status              models.SystemStatus         `json:"status"`
	ActiveTransmissions []models.TransmissionRecord `json:"active_transmissions"`
	RecentCalls         []models.TransmissionRecord `json:"recent_calls"`
	Events              []models.ActivityEvent      `json:"events"`
}

// controlMessage is what clients may send: currently only pings.
type controlMessage struct {
	Type string `json:"type"`
}

// WebSocketHandler upgrades connections and registers them with the hub.
type WebSocketHandler struct {
	hub      *broadcast.Hub
	upgrader websocket.Upgrader
	log      *zap.Logger
}

// NewWebSocketHandler creates the WebSocket handler.
func NewWebSocketHandler(hub *broadcast.Hub, log *zap.Logger) *WebSocketHandler {
	if log == nil {
		log = zap.NewNop()
	}
	return &WebSocketHandler{
		hub: hub,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				// The dashboard frontend may be served from another port.
				return true
			},
			ReadBufferSize:  16 * 1024,
			WriteBufferSize: 16 * 1024,
		},
		log: log,
	}
}

// HandleWebSocket upgrades the connection and streams state updates until
// the client goes away.
func (wsh *WebSocketHandler) HandleWebSocket(c echo.Context) error {
	ws, err := wsh.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return err
	}

	client := &wsClient{
		id:   uuid.NewString(),
		conn: ws,
	}
	wsh.log.Info("websocket client connected",
		zap.String("id", client.id),
		zap.String("remote", ws.RemoteAddr().String()))

	// Subscribe delivers the initial snapshot synchronously.
	wsh.hub.Subscribe(client)

	defer func() {
		wsh.hub.Unsubscribe(client.id)
		ws.Close()
		wsh.log.Info("websocket client disconnected", zap.String("id", client.id))
	}()

	// Read loop exists to detect disconnects and answer pings.
	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				wsh.log.Debug("websocket read error", zap.String("id", client.id), zap.Error(err))
			}
			return nil
		}
		var msg controlMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			continue
		}
		if msg.Type == MsgTypePing {
			client.writeJSON(map[string]interface{}{
				"type":      MsgTypePong,
				"timestamp": time.Now().UnixMilli(),
			})
		}
	}
}

// wsClient adapts a gorilla connection to the broadcast.Subscriber
// interface. Writes are serialized; gorilla allows one writer at a time.
type wsClient struct {
	id        string
	conn      *websocket.Conn
	mu        sync.Mutex
	delivered bool
}

func (w *wsClient) ID() string { return w.id }

// Send pushes a snapshot. The first delivery after connect is the
// initial_state message; everything after is a state_update.
func (w *wsClient) Send(snapshot models.Snapshot) error {
	w.mu.Lock()
	msgType := MsgTypeStateUpdate
	if !w.delivered {
		msgType = MsgTypeInitialState
		w.delivered = true
	}
	w.mu.Unlock()

	return w.writeJSON(StateMessage{
		Type:                msgType,
		Status:              snapshot.Status,
		ActiveTransmissions: snapshot.Active,
		RecentCalls:         snapshot.RecentCalls,
		Events:              snapshot.Events,
	})
}

func (w *wsClient) writeJSON(v interface{}) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	return w.conn.WriteJSON(v)
}
