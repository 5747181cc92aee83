package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	ws "github.com/stayledger/backend/internal/websocket"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 30 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// Dashboards are served from other origins.
		return true
	},
}

// WebSocketUpgrade returns a handler that upgrades HTTP connections to WebSocket.
func WebSocketUpgrade(hub *ws.Hub, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			logger.Warn("websocket upgrade failed", "error", err)
			return
		}

		client := ws.NewClient(hub)
		if !hub.Register(client) {
			conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"))
			conn.Close()
			return
		}

		go writePump(conn, client)
		go readPump(conn, client, hub, logger)
	}
}

// writePump pumps messages from the hub to the WebSocket connection.
func writePump(conn *websocket.Conn, client *ws.Client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		conn.Close()
	}()

	for {
		select {
		case message, ok := <-client.Send():
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// Hub closed the channel
				conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump reads client commands until the connection closes.
func readPump(conn *websocket.Conn, client *ws.Client, hub *ws.Hub, logger *slog.Logger) {
	defer func() {
		hub.Unregister(client)
		conn.Close()
	}()

	conn.SetReadLimit(65536)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logger.Warn("websocket read failed", "error", err)
			}
			break
		}

		handleClientMessage(message, client, hub, logger)
	}
}

// handleClientMessage answers client commands. Only ping is supported.
func handleClientMessage(message []byte, client *ws.Client, hub *ws.Hub, logger *slog.Logger) {
	var msg struct {
		Type ws.MessageType `json:"type"`
	}
	var reply ws.Message
	if err := json.Unmarshal(message, &msg); err != nil {
		reply = ws.NewMessage(ws.TypeError, ws.ErrorPayload{Code: "bad_request", Message: "Invalid message"})
	} else if msg.Type == ws.TypePing {
		reply = ws.NewMessage(ws.TypePong, nil)
	} else {
		reply = ws.NewMessage(ws.TypeError, ws.ErrorPayload{
			Code:         "unknown_type",
			Message:      "Unsupported message type",
			OriginalType: string(msg.Type),
		})
	}

	data, err := reply.JSON()
	if err != nil {
		logger.Error("encoding websocket reply", "error", err)
		return
	}
	if !hub.SendTo(client, data) {
		logger.Warn("websocket client closed or full, dropping reply")
	}
}
