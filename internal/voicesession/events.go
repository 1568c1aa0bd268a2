package voicesession

import (
	"context"
	"log/slog"
	"time"

	"github.com/eleven-am/voice-interpreter/internal/transport"
)

const publishTimeout = 5 * time.Second

type emitter struct {
	sessionID string
	pub       transport.Publisher
	log       *slog.Logger
}

func (e emitter) emit(typ transport.EventType, payload any) {
	ev, err := transport.NewEvent(e.sessionID, typ, payload)
	if err != nil {
		e.log.Error("build event", "type", typ, "error", err)
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()
	if err := e.pub.Publish(ctx, ev); err != nil {
		e.log.Warn("publish event", "type", typ, "error", err)
	}
}
