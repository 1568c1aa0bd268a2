package voicesession

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/eleven-am/voice-interpreter/internal/realtime"
	"github.com/eleven-am/voice-interpreter/internal/shared"
	"github.com/eleven-am/voice-interpreter/internal/transport"
)

const maxLogEntries = 500

type LogEntry struct {
	Kind transport.LogKind `json:"kind"`
	Text string            `json:"text"`
	Time string            `json:"time"`
}

// RealtimeSession is the part of *realtime.Session the controller drives.
type RealtimeSession interface {
	Connect(ctx context.Context) error
	Disconnect()
	SendText(text string) error
	CreateResponse() error
	WriteAudio(opus []byte, samples int) error
	State() realtime.State
	Active() bool
	OnEvent(fn realtime.EventHandler)
	OnStateChange(fn realtime.StateHandler)
}

// RealtimeController turns realtime session activity into a running log and
// broadcasts every entry.
type RealtimeController struct {
	id         string
	session    RealtimeSession
	dispatcher *realtime.Dispatcher
	remote     *audioRelay
	events     emitter
	clock      func() time.Time
	log        *slog.Logger

	mu      sync.Mutex
	entries []LogEntry
	live    bool
}

func NewRealtimeController(session RealtimeSession, translator realtime.Translator, dispatch realtime.DispatcherConfig, deps Dependencies, log *slog.Logger) *RealtimeController {
	if log == nil {
		log = slog.Default()
	}
	deps = deps.withDefaults()

	id := shared.NewID("rt_")
	log = log.With("component", "realtime_controller", "session_id", id)

	c := &RealtimeController{
		id:      id,
		session: session,
		remote:  newAudioRelay(),
		events:  emitter{sessionID: id, pub: deps.Publisher, log: log},
		clock:   deps.Clock,
		log:     log,
	}
	c.dispatcher = realtime.NewDispatcher(realtime.TranslationHandler{
		OnAgentOutput: func(kind, text string) {
			c.append(transport.LogAI, text)
		},
		OnTranslation: func(source, text string) {
			c.events.emit(transport.EventTranslation, transport.TranslationPayload{Source: source, Text: text})
			c.append(transport.LogAI, text)
		},
		OnUserTranscript: func(text string) {
			c.append(transport.LogUser, text)
		},
		OnError: func(err error) {
			c.append(transport.LogSystem, "Error: "+err.Error())
		},
	}, translator, dispatch, log)

	session.OnEvent(c.dispatcher.Dispatch)
	session.OnStateChange(c.onState)
	return c
}

func (c *RealtimeController) ID() string {
	return c.id
}

func (c *RealtimeController) Connect(ctx context.Context) error {
	return c.session.Connect(ctx)
}

func (c *RealtimeController) Disconnect() {
	c.session.Disconnect()
}

func (c *RealtimeController) Active() bool {
	return c.session.Active()
}

func (c *RealtimeController) State() realtime.State {
	return c.session.State()
}

// SendText logs the message as user input and forwards it.
func (c *RealtimeController) SendText(text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return errors.New("empty message")
	}
	if err := c.session.SendText(text); err != nil {
		return err
	}
	c.append(transport.LogUser, text)
	return nil
}

// CreateResponse asks the model to answer without new input.
func (c *RealtimeController) CreateResponse() error {
	return c.session.CreateResponse()
}

// WriteAudio forwards one encoded opus frame from the local microphone.
func (c *RealtimeController) WriteAudio(opus []byte, samples int) error {
	if len(opus) == 0 {
		return errors.New("empty audio frame")
	}
	return c.session.WriteAudio(opus, samples)
}

// PlayRemoteAudio hands one opus frame from the service to every audio
// listener. It is the peer's audio sink.
func (c *RealtimeController) PlayRemoteAudio(frame []byte) {
	c.remote.publish(frame)
}

// ListenAudio subscribes to remote audio. The returned func unsubscribes and
// closes the channel.
func (c *RealtimeController) ListenAudio(buffer int) (<-chan []byte, func()) {
	if buffer <= 0 {
		buffer = 64
	}
	return c.remote.subscribe(buffer)
}

func (c *RealtimeController) onState(state realtime.State, err error) {
	payload := transport.StatePayload{State: string(state)}
	if err != nil {
		payload.Error = err.Error()
	}
	c.events.emit(transport.EventRealtimeState, payload)

	c.mu.Lock()
	wasLive := c.live
	switch state {
	case realtime.StateConnected:
		c.live = true
	case realtime.StateDisconnected:
		c.live = false
	}
	c.mu.Unlock()

	if state == realtime.StateDisconnected {
		c.dispatcher.Reset()
	}

	switch {
	case state == realtime.StateConnected:
		c.append(transport.LogSystem, "Session Started")
	case state == realtime.StateFailed && err != nil:
		c.append(transport.LogSystem, "Error: "+err.Error())
	case state == realtime.StateDisconnected && wasLive:
		c.append(transport.LogSystem, "Session Ended")
	}
}

func (c *RealtimeController) append(kind transport.LogKind, text string) {
	entry := LogEntry{Kind: kind, Text: text, Time: c.clock().Format("15:04:05")}

	c.mu.Lock()
	c.entries = append(c.entries, entry)
	if len(c.entries) > maxLogEntries {
		c.entries = append([]LogEntry(nil), c.entries[len(c.entries)-maxLogEntries:]...)
	}
	c.mu.Unlock()

	c.events.emit(transport.EventLog, transport.LogPayload(entry))
}

func (c *RealtimeController) Entries() []LogEntry {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]LogEntry(nil), c.entries...)
}

// Close disconnects and waits for pending fallback translations.
func (c *RealtimeController) Close() {
	c.session.Disconnect()
	c.dispatcher.Close()
}
