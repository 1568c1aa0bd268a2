package main

import (
	"context"
	"log/slog"

	"github.com/eleven-am/voice-interpreter/internal/transport"
)

// logPublisher prints session events instead of broadcasting them.
type logPublisher struct {
	log *slog.Logger
}

func newLogPublisher(log *slog.Logger) *logPublisher {
	return &logPublisher{log: log.With("component", "listen_cli")}
}

func (p *logPublisher) Publish(_ context.Context, ev transport.Event) error {
	switch ev.Type {
	case transport.EventResult:
		var r transport.ResultPayload
		if err := ev.Decode(&r); err != nil {
			return err
		}
		p.log.Info("translation",
			"seq", r.Sequence,
			"time", r.Time,
			"language", r.DetectedLanguage,
			"original", r.OriginalText,
			"translated", r.TranslatedText,
		)
	case transport.EventSummary:
		var s transport.SummaryPayload
		if err := ev.Decode(&s); err != nil {
			return err
		}
		p.log.Info("summary", "final", s.Final, "text", s.Summary)
	case transport.EventStatus:
		var s transport.StatusPayload
		if err := ev.Decode(&s); err != nil {
			return err
		}
		p.log.Debug("status", "status", s.Status)
	case transport.EventError:
		var e transport.ErrorPayload
		if err := ev.Decode(&e); err != nil {
			return err
		}
		p.log.Error("session error", "stage", e.Stage, "message", e.Message)
	default:
		p.log.Debug("event", "type", ev.Type)
	}
	return nil
}
