package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/seat-hold-service/internal/broadcast"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxInboundSize = 1024
)

// PushHandler upgrades GET /ws to a websocket and streams seat events.
type PushHandler struct {
	Hub      *broadcast.Hub
	Log      *slog.Logger
	upgrader websocket.Upgrader
}

// NewPushHandler builds a handler.  allowOrigin decides cross-origin
// upgrades; nil accepts every origin.
func NewPushHandler(hub *broadcast.Hub, allowOrigin func(*http.Request) bool, log *slog.Logger) *PushHandler {
	if allowOrigin == nil {
		allowOrigin = func(*http.Request) bool { return true }
	}
	if log == nil {
		log = slog.Default()
	}
	return &PushHandler{
		Hub: hub,
		Log: log,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     allowOrigin,
		},
	}
}

// Serve registers an observer for the life of the connection.  Inbound
// frames are read and discarded; the read loop is what notices the peer
// going away.
func (h *PushHandler) Serve(c echo.Context) error {
	if !websocket.IsWebSocketUpgrade(c.Request()) {
		return c.JSON(http.StatusUpgradeRequired, echo.Map{"status": "fail", "error": "upgrade_required", "message": "websocket upgrade required"})
	}
	conn, err := h.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		// Upgrade has already written the HTTP error.
		h.Log.Debug("websocket upgrade failed", "err", err)
		return nil
	}

	obs := h.Hub.Register()
	done := make(chan struct{})
	go h.writeLoop(conn, obs, done)

	conn.SetReadLimit(maxInboundSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.Log.Debug("websocket read failed", "observer", obs.ID, "err", err)
			}
			break
		}
	}
	h.Hub.Unregister(obs)
	<-done
	return nil
}

// writeLoop owns all writes to conn.  It ends when the observer's channel
// closes (unregistered or too slow) or a write fails, and closes conn so
// the read loop returns as well.
func (h *PushHandler) writeLoop(conn *websocket.Conn, obs *broadcast.Observer, done chan<- struct{}) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = conn.Close()
		close(done)
	}()
	for {
		select {
		case msg, ok := <-obs.Messages():
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "observer closed"))
				return
			}
			if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				h.Hub.Unregister(obs)
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				h.Hub.Unregister(obs)
				return
			}
		}
	}
}
