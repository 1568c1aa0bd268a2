package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/eleven-am/voice-interpreter/internal/transport"
)

const sseKeepAliveInterval = 30 * time.Second

// SSEConn writes session events as server-sent events.
type SSEConn struct {
	writer    http.ResponseWriter
	flusher   http.Flusher
	send      chan transport.Event
	done      chan struct{}
	closeOnce sync.Once
	keepAlive time.Duration
}

var _ transport.Connection = (*SSEConn)(nil)

func NewSSEConn(w http.ResponseWriter) (*SSEConn, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, http.ErrNotSupported
	}

	return &SSEConn{
		writer:    w,
		flusher:   flusher,
		send:      make(chan transport.Event, 128),
		done:      make(chan struct{}),
		keepAlive: sseKeepAliveInterval,
	}, nil
}

func (c *SSEConn) Close() error {
	c.closeOnce.Do(func() {
		close(c.done)
	})
	return nil
}

func (c *SSEConn) Send(ctx context.Context, ev transport.Event) error {
	select {
	case <-c.done:
		return http.ErrServerClosed
	default:
	}

	select {
	case c.send <- ev:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-c.done:
		return http.ErrServerClosed
	}
}

// Run writes queued events until ctx ends, the connection is closed or a
// write fails.
func (c *SSEConn) Run(ctx context.Context) error {
	ticker := time.NewTicker(c.keepAlive)
	defer ticker.Stop()
	defer func() { _ = c.Close() }()

	for {
		select {
		case ev := <-c.send:
			if err := c.writeEvent(ev); err != nil {
				return err
			}
		case <-ticker.C:
			if err := c.writeKeepAlive(); err != nil {
				return err
			}
		case <-ctx.Done():
			return ctx.Err()
		case <-c.done:
			return nil
		}
	}
}

func (c *SSEConn) writeEvent(ev transport.Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}

	if _, err := fmt.Fprintf(c.writer, "event: %s\ndata: %s\n\n", ev.Type, data); err != nil {
		return err
	}
	c.flusher.Flush()
	return nil
}

func (c *SSEConn) writeKeepAlive() error {
	if _, err := c.writer.Write([]byte(":keepalive\n\n")); err != nil {
		return err
	}
	c.flusher.Flush()
	return nil
}
