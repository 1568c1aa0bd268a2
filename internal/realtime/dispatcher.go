package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/eleven-am/voice-interpreter/internal/shared"
)

const (
	OutputAudio = "audio"
	OutputText  = "text"

	SourceTool     = "tool"
	SourceFallback = "fallback"
)

// TranslationHandler receives typed callbacks for the events the session
// cares about. Any field may be nil.
type TranslationHandler struct {
	OnAgentOutput    func(kind, text string)
	OnTranslation    func(source, text string)
	OnUserTranscript func(text string)
	OnError          func(err error)
}

type Translator interface {
	Translate(ctx context.Context, text, source, target string) (string, error)
}

type DispatcherConfig struct {
	FallbackSource string
	FallbackTarget string
	Timeout        time.Duration
}

// Dispatcher routes inbound events by type. For every completed input
// transcription it also requests an independent translation, so consumers may
// see two translations for one utterance.
type Dispatcher struct {
	handler    TranslationHandler
	translator Translator
	cfg        DispatcherConfig
	log        *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	// round scopes fallback translations to one connection. Deliveries hold
	// the read lock so Reset cannot interleave with a callback.
	mu          sync.RWMutex
	round       uint64
	roundCtx    context.Context
	roundCancel context.CancelFunc
}

func NewDispatcher(handler TranslationHandler, translator Translator, cfg DispatcherConfig, log *slog.Logger) *Dispatcher {
	if log == nil {
		log = slog.Default()
	}
	if cfg.FallbackSource == "" {
		cfg.FallbackSource = "Auto"
	}
	if cfg.FallbackTarget == "" {
		cfg.FallbackTarget = "English"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	ctx, cancel := context.WithCancel(context.Background())
	roundCtx, roundCancel := context.WithCancel(ctx)
	return &Dispatcher{
		handler:     handler,
		translator:  translator,
		cfg:         cfg,
		log:         log.With("component", "realtime_dispatcher"),
		ctx:         ctx,
		cancel:      cancel,
		roundCtx:    roundCtx,
		roundCancel: roundCancel,
	}
}

// Reset abandons fallback translations started for the previous connection.
// Their results are dropped even if the translator ignores cancellation.
func (d *Dispatcher) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.roundCancel()
	d.round++
	d.roundCtx, d.roundCancel = context.WithCancel(d.ctx)
}

// Dispatch handles one event. It never panics.
func (d *Dispatcher) Dispatch(ev Event) {
	defer func() {
		if r := recover(); r != nil {
			d.log.Error("event handler panicked", "type", ev.Type, "panic", r)
		}
	}()

	switch ev.Type {
	case EventAudioTranscriptDelta:
		return

	case EventAudioTranscriptDone:
		var p TranscriptPayload
		if !d.decode(ev, &p) {
			return
		}
		d.agentOutput(OutputAudio, p.Transcript)

	case EventTextDone:
		var p TextPayload
		if !d.decode(ev, &p) {
			return
		}
		d.agentOutput(OutputText, p.Text)

	case EventFunctionCallArgsDone:
		var p FunctionCallArgsPayload
		if !d.decode(ev, &p) {
			return
		}
		var args TranslationArgs
		if err := json.Unmarshal([]byte(p.Arguments), &args); err != nil {
			d.log.Error("dropping tool call", "tool", p.Name, "error", shared.NewMalformedEventError(ev.Type, err))
			return
		}
		if text := strings.TrimSpace(args.EnglishText); text != "" && d.handler.OnTranslation != nil {
			d.handler.OnTranslation(SourceTool, text)
		}

	case EventInputTranscriptionDone:
		var p TranscriptPayload
		if !d.decode(ev, &p) {
			return
		}
		text := strings.TrimSpace(p.Transcript)
		if text == "" {
			return
		}
		if d.handler.OnUserTranscript != nil {
			d.handler.OnUserTranscript(text)
		}
		d.translateFallback(text)

	case EventError, EventInputTranscriptionFailed:
		var p ErrorPayload
		if !d.decode(ev, &p) {
			return
		}
		msg := p.Error.Message
		if msg == "" {
			msg = ev.Type
		}
		d.reportError(errors.New(msg))

	default:
		d.log.Debug("unhandled event", "type", ev.Type)
	}
}

func (d *Dispatcher) decode(ev Event, v any) bool {
	if err := ev.Decode(v); err != nil {
		d.log.Error("dropping event", "error", shared.NewMalformedEventError(ev.Type, err))
		return false
	}
	return true
}

func (d *Dispatcher) agentOutput(kind, text string) {
	text = strings.TrimSpace(text)
	if text == "" || d.handler.OnAgentOutput == nil {
		return
	}
	d.handler.OnAgentOutput(kind, text)
}

func (d *Dispatcher) reportError(err error) {
	if d.handler.OnError != nil {
		d.handler.OnError(err)
	}
}

func (d *Dispatcher) translateFallback(text string) {
	if d.translator == nil {
		return
	}
	d.mu.RLock()
	round, roundCtx := d.round, d.roundCtx
	d.mu.RUnlock()

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				d.log.Error("fallback translation panicked", "panic", r)
			}
		}()

		ctx, cancel := context.WithTimeout(roundCtx, d.cfg.Timeout)
		defer cancel()

		out, err := d.translator.Translate(ctx, text, d.cfg.FallbackSource, d.cfg.FallbackTarget)

		d.mu.RLock()
		defer d.mu.RUnlock()
		if round != d.round || roundCtx.Err() != nil {
			d.log.Debug("dropping fallback translation from previous connection", "round", round)
			return
		}
		if err != nil {
			d.log.Warn("fallback translation failed", "error", err)
			d.reportError(shared.NewTranslationError("fallback", err))
			return
		}
		if out = strings.TrimSpace(out); out != "" && d.handler.OnTranslation != nil {
			d.handler.OnTranslation(SourceFallback, out)
		}
	}()
}

// Wait blocks until in-flight fallback translations finish.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

// Close abandons in-flight fallback translations.
func (d *Dispatcher) Close() {
	d.cancel()
	d.wg.Wait()
}
