package gateway

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/eleven-am/voice-interpreter/internal/shared"
	"github.com/eleven-am/voice-interpreter/internal/transport"
	"github.com/labstack/echo/v4"
)

// EventsHandler streams a session's events to clients. Clients that accept
// text/event-stream get SSE, everyone else is upgraded to a WebSocket.
type EventsHandler struct {
	subscriber transport.Subscriber
	logger     *slog.Logger
}

func NewEventsHandler(subscriber transport.Subscriber, logger *slog.Logger) *EventsHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &EventsHandler{
		subscriber: subscriber,
		logger:     logger.With("component", "events_handler"),
	}
}

func (h *EventsHandler) RegisterRoutes(g *echo.Group) {
	g.GET("/sessions/:id/events", h.Stream)
}

func (h *EventsHandler) Stream(c echo.Context) error {
	sessionID := c.Param("id")
	if sessionID == "" {
		return shared.BadRequest("invalid_request", "session id is required")
	}
	if strings.Contains(c.Request().Header.Get(echo.HeaderAccept), "text/event-stream") {
		return h.streamSSE(c, sessionID)
	}
	return h.streamWS(c, sessionID)
}

func (h *EventsHandler) streamSSE(c echo.Context, sessionID string) error {
	ctx := c.Request().Context()

	conn, err := NewSSEConn(c.Response())
	if err != nil {
		return shared.InternalError("streaming_unsupported", "streaming not supported")
	}

	sub, err := h.subscriber.Subscribe(ctx, sessionID)
	if err != nil {
		h.logger.Error("subscribe failed", "session_id", sessionID, "error", err)
		return shared.InternalError("subscribe_failed", "failed to subscribe to session events")
	}
	defer func() { _ = sub.Close() }()

	res := c.Response()
	res.Header().Set(echo.HeaderContentType, "text/event-stream")
	res.Header().Set(echo.HeaderCacheControl, "no-cache")
	res.Header().Set(echo.HeaderConnection, "keep-alive")
	res.Header().Set("X-Accel-Buffering", "no")
	res.WriteHeader(http.StatusOK)
	res.Flush()

	go forward(ctx, sub, conn)

	h.logger.Debug("sse stream opened", "session_id", sessionID)
	if err := conn.Run(ctx); err != nil && ctx.Err() == nil {
		h.logger.Debug("sse stream ended", "session_id", sessionID, "error", err)
	}
	return nil
}

func (h *EventsHandler) streamWS(c echo.Context, sessionID string) error {
	ws, err := wsUpgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		h.logger.Error("websocket upgrade failed", "error", err)
		return nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	conn := NewWSConn(ws, h.logger.With("session_id", sessionID))

	sub, err := h.subscriber.Subscribe(ctx, sessionID)
	if err != nil {
		h.logger.Error("subscribe failed", "session_id", sessionID, "error", err)
		_ = conn.Close()
		return nil
	}
	defer func() { _ = sub.Close() }()

	go conn.readPump()
	go forward(ctx, sub, conn)

	go func() {
		<-conn.Done()
		cancel()
	}()

	conn.writePump(ctx)
	return nil
}

// forward copies subscription events to conn until either side ends.
func forward(ctx context.Context, sub transport.Subscription, conn transport.Connection) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-sub.Events():
			if !ok {
				_ = conn.Close()
				return
			}
			if err := conn.Send(ctx, ev); err != nil {
				return
			}
		}
	}
}
