package gateway

import (
	"errors"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/eleven-am/voice-interpreter/internal/shared"
	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
)

const (
	opusClockRate  = 48000
	defaultFrameMs = 20
	maxAudioFrame  = 4000
)

// audioTarget is the realtime controller as seen by the media socket.
type audioTarget interface {
	WriteAudio(opus []byte, samples int) error
	ListenAudio(buffer int) (<-chan []byte, func())
}

// StreamRealtimeAudio upgrades to a WebSocket that carries opus frames both
// ways: binary messages from the client go to the service, and audio from the
// service comes back as binary messages.
func (h *Handler) StreamRealtimeAudio(c echo.Context) error {
	rt, err := h.manager.Realtime()
	if err != nil {
		return shared.HTTPFromError(err)
	}

	frameMs := defaultFrameMs
	if v := c.QueryParam("frame_ms"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 || n > 120 {
			return shared.BadRequest("invalid_request", "frame_ms must be between 1 and 120")
		}
		frameMs = n
	}

	ws, err := wsUpgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		h.logger.Error("audio websocket upgrade failed", "error", err)
		return nil
	}

	conn := newAudioConn(ws, rt, frameMs*opusClockRate/1000, h.logger)
	conn.serve()
	return nil
}

type audioConn struct {
	ws      *websocket.Conn
	target  audioTarget
	samples int
	logger  *slog.Logger

	done      chan struct{}
	closeOnce sync.Once
	dropped   int
}

func newAudioConn(ws *websocket.Conn, target audioTarget, samples int, logger *slog.Logger) *audioConn {
	return &audioConn{
		ws:      ws,
		target:  target,
		samples: samples,
		logger:  logger.With("component", "audio_socket"),
		done:    make(chan struct{}),
	}
}

// serve blocks until either side closes the socket.
func (a *audioConn) serve() {
	remote, stop := a.target.ListenAudio(64)
	defer stop()

	go a.readPump()
	a.writePump(remote)
}

func (a *audioConn) close() {
	a.closeOnce.Do(func() {
		close(a.done)
		_ = a.ws.Close()
	})
}

func (a *audioConn) readPump() {
	defer a.close()

	a.ws.SetReadLimit(maxAudioFrame)
	_ = a.ws.SetReadDeadline(time.Now().Add(pongWait))
	a.ws.SetPongHandler(func(string) error {
		_ = a.ws.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		typ, data, err := a.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				a.logger.Error("audio websocket read error", "error", err)
			}
			return
		}
		_ = a.ws.SetReadDeadline(time.Now().Add(pongWait))
		if typ != websocket.BinaryMessage {
			continue
		}

		if err := a.target.WriteAudio(data, a.samples); err != nil {
			if errors.Is(err, shared.ErrNotConnected) {
				a.dropped++
				if a.dropped == 1 {
					a.logger.Debug("dropping microphone audio, realtime session not connected")
				}
				continue
			}
			a.logger.Warn("write audio failed", "error", err)
		}
	}
}

func (a *audioConn) writePump(remote <-chan []byte) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		a.close()
	}()

	for {
		select {
		case frame, ok := <-remote:
			if !ok {
				_ = a.ws.SetWriteDeadline(time.Now().Add(writeWait))
				_ = a.ws.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			_ = a.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := a.ws.WriteMessage(websocket.BinaryMessage, frame); err != nil {
				a.logger.Error("audio websocket write error", "error", err)
				return
			}

		case <-ticker.C:
			_ = a.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := a.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-a.done:
			return
		}
	}
}
