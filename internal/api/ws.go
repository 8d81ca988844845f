package api

import (
	"context"
	"net/http"
	"time"

	"spectra-monitor/internal/session"
	"spectra-monitor/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

const (
	pingInterval   = 30 * time.Second
	writeWait      = 10 * time.Second
	maxMessageSize = 1 << 20 // screen frames arrive base64-encoded
)

// handleWebSocket is the realtime channel endpoint shared by devices and
// viewers. Each socket gets a hub connection with its own outbound queue; a
// write pump drains that queue while this handler reads inbound frames.
func (s *Server) handleWebSocket(c *gin.Context) {
	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logger.Error("Failed to upgrade WebSocket connection", logger.Err(err))
		return
	}
	defer ws.Close()

	conn := s.hub.Register()
	defer s.events.ConnectionClosed(conn)

	logger.Info("Realtime connection opened", logger.String("conn_id", conn.ID()))

	go writePump(ws, conn)

	ws.SetReadLimit(maxMessageSize)
	ctx := context.Background()
	for {
		_, raw, err := ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.Warn("Realtime connection read error",
					logger.String("conn_id", conn.ID()), logger.Err(err))
			}
			break
		}
		s.events.HandleMessage(ctx, conn, raw)
	}

	logger.Info("Realtime connection closed", logger.String("conn_id", conn.ID()))
}

func writePump(ws *websocket.Conn, conn *session.Conn) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-conn.Done():
			ws.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
			return

		case msg := <-conn.Outbound():
			ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := ws.WriteMessage(websocket.TextMessage, msg); err != nil {
				ws.Close()
				return
			}

		case <-ticker.C:
			ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				ws.Close()
				return
			}
		}
	}
}
