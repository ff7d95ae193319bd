package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/labstack/gommon/log"

	"github.com/sortflow/backend/internal/models"
)

// WebSocket message types for the view stream
const (
	// Client -> Server messages
	MsgTypePing = "ping"

	// Server -> Client messages
	MsgTypeConnected = "connected"
	MsgTypeView      = "view"
	MsgTypePong      = "pong"
	MsgTypeError     = "error"
)

// WSMessage is one frame of the view stream
type WSMessage struct {
	Type      string       `json:"type"`
	View      *models.View `json:"view,omitempty"`
	Message   string       `json:"message,omitempty"`
	Timestamp int64        `json:"timestamp"`
}

// WebSocketHandler streams session views over a websocket
type WebSocketHandler struct {
	sessions       SessionManager
	now            func() time.Time
	streamInterval time.Duration
	upgrader       websocket.Upgrader
	logger         *log.Logger
}

// NewWebSocketHandler creates a new websocket view handler
func NewWebSocketHandler(sessions SessionManager, now func() time.Time, streamInterval time.Duration) *WebSocketHandler {
	if streamInterval <= 0 {
		streamInterval = 100 * time.Millisecond
	}
	return &WebSocketHandler{
		sessions:       sessions,
		now:            now,
		streamInterval: streamInterval,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				// Allow connections from dev server
				return true
			},
			ReadBufferSize:  4 * 1024,
			WriteBufferSize: 64 * 1024,
		},
		logger: log.New("api"),
	}
}

// HandleWebSocket upgrades the connection and pushes a frame per view change.
// The socket closes once the job settles.
func (wsh *WebSocketHandler) HandleWebSocket(c echo.Context) error {
	id := c.Param("id")
	ctrl, ok := wsh.sessions.Controller(id)
	if !ok {
		return NewNotFoundError("session", id)
	}
	wsh.sessions.Touch(id)

	ws, err := wsh.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return err
	}
	defer ws.Close()

	wsh.logger.Debugf("client connected to session %s", shortID(id))

	ctx, cancel := context.WithCancel(c.Request().Context())
	defer cancel()

	// The reader owns incoming frames; pings are answered by the writer.
	pings := make(chan struct{}, 1)
	go func() {
		defer cancel()
		for {
			var msg WSMessage
			if err := ws.ReadJSON(&msg); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
					wsh.logger.Warnf("connection error: %v", err)
				}
				return
			}
			if msg.Type == MsgTypePing {
				select {
				case pings <- struct{}{}:
				default:
				}
			}
		}
	}()

	send := func(msg WSMessage) error {
		msg.Timestamp = wsh.now().UnixMilli()
		return ws.WriteJSON(msg)
	}
	if err := send(WSMessage{Type: MsgTypeConnected}); err != nil {
		return nil
	}

	views := make(chan models.View)
	done := make(chan error, 1)
	go func() {
		done <- watchViews(ctx, ctrl, wsh.streamInterval, wsh.now, func(v models.View) error {
			select {
			case views <- v:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		})
	}()

	for {
		select {
		case v := <-views:
			if err := send(WSMessage{Type: MsgTypeView, View: &v}); err != nil {
				cancel()
				<-done
				return nil
			}
		case <-pings:
			if err := send(WSMessage{Type: MsgTypePong}); err != nil {
				cancel()
				<-done
				return nil
			}
		case err := <-done:
			if err == errStreamTimeout {
				_ = send(WSMessage{Type: MsgTypeError, Message: err.Error()})
			}
			_ = ws.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			wsh.logger.Debugf("client disconnected from session %s", shortID(id))
			return nil
		}
	}
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
