package gateway

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/eleven-am/voice-interpreter/internal/transport"
	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4 * 1024
)

var wsUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// WSConn streams session events over a WebSocket. Clients only read; inbound
// messages are discarded apart from control frames.
type WSConn struct {
	ws     *websocket.Conn
	logger *slog.Logger
	send   chan transport.Event
	done   chan struct{}

	mu     sync.Mutex
	closed bool
}

var _ transport.Connection = (*WSConn)(nil)

func NewWSConn(ws *websocket.Conn, logger *slog.Logger) *WSConn {
	return &WSConn{
		ws:     ws,
		logger: logger,
		send:   make(chan transport.Event, 128),
		done:   make(chan struct{}),
	}
}

func (c *WSConn) Send(_ context.Context, ev transport.Event) error {
	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return websocket.ErrCloseSent
	}

	select {
	case c.send <- ev:
	default:
		c.logger.Warn("send buffer full, dropping event", "type", ev.Type)
	}
	return nil
}

func (c *WSConn) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	close(c.done)
	c.mu.Unlock()

	return c.ws.Close()
}

// Done is closed when the connection is closed from either side.
func (c *WSConn) Done() <-chan struct{} {
	return c.done
}

func (c *WSConn) readPump() {
	defer func() { _ = c.Close() }()

	c.ws.SetReadLimit(maxMessageSize)
	_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := c.ws.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.logger.Error("websocket read error", "error", err)
			}
			return
		}
	}
}

func (c *WSConn) writePump(ctx context.Context) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.Close()
	}()

	for {
		select {
		case <-ctx.Done():
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			_ = c.ws.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		case ev := <-c.send:
			data, err := json.Marshal(ev)
			if err != nil {
				c.logger.Error("failed to marshal event", "error", err)
				continue
			}

			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.TextMessage, data); err != nil {
				c.logger.Error("websocket write error", "error", err)
				return
			}

		case <-ticker.C:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-c.done:
			return
		}
	}
}
