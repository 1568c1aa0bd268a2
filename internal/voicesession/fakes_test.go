package voicesession

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/eleven-am/voice-interpreter/internal/pipeline"
	"github.com/eleven-am/voice-interpreter/internal/realtime"
	"github.com/eleven-am/voice-interpreter/internal/shared"
	"github.com/eleven-am/voice-interpreter/internal/transport"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func fixedClock() time.Time {
	return time.Date(2024, 5, 1, 14, 7, 9, 0, time.UTC)
}

type fakeRecognizer struct {
	lang string

	mu      sync.Mutex
	texts   map[string]string
	formats []string
}

func newFakeRecognizer(lang string) *fakeRecognizer {
	return &fakeRecognizer{lang: lang, texts: make(map[string]string)}
}

func (f *fakeRecognizer) set(id, text string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.texts[id] = text
}

func (f *fakeRecognizer) Recognize(ctx context.Context, audio pipeline.AudioRef, hint string) (pipeline.Recognition, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.formats = append(f.formats, audio.Format)
	text, ok := f.texts[audio.ID]
	if !ok {
		text = "text-" + audio.ID
	}
	return pipeline.Recognition{Text: text, Language: f.lang}, nil
}

type fakeTranslator struct {
	// release, when set, holds every call until closed.
	release chan struct{}

	mu      sync.Mutex
	targets []string
}

func (f *fakeTranslator) Translate(ctx context.Context, text, source, target string) (string, error) {
	if f.release != nil {
		<-f.release
	}
	f.mu.Lock()
	f.targets = append(f.targets, target)
	f.mu.Unlock()
	return target + ":" + text, nil
}

type fakeSynthesizer struct{}

func (fakeSynthesizer) Synthesize(ctx context.Context, text, voice string) (*pipeline.AudioRef, error) {
	return &pipeline.AudioRef{ID: "tts-" + voice, Data: []byte(text), Format: "mp3"}, nil
}

type fakeSummarizer struct {
	err   error
	calls atomic.Int32

	mu     sync.Mutex
	inputs []string
}

func (f *fakeSummarizer) Summarize(ctx context.Context, transcript string) (string, error) {
	f.calls.Add(1)
	f.mu.Lock()
	f.inputs = append(f.inputs, transcript)
	f.mu.Unlock()
	if f.err != nil {
		return "", f.err
	}
	return "summary(" + transcript + ")", nil
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []transport.Event
}

func (p *recordingPublisher) Publish(ctx context.Context, ev transport.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return nil
}

func (p *recordingPublisher) ofType(typ transport.EventType) []transport.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []transport.Event
	for _, ev := range p.events {
		if ev.Type == typ {
			out = append(out, ev)
		}
	}
	return out
}

func (p *recordingPublisher) statuses() []string {
	var out []string
	for _, ev := range p.ofType(transport.EventStatus) {
		var sp transport.StatusPayload
		if err := ev.Decode(&sp); err == nil && sp.Message == "" {
			out = append(out, sp.Status)
		}
	}
	return out
}

type fakeRealtime struct {
	mu       sync.Mutex
	active   bool
	state    realtime.State
	sent     []string
	sendErr  error
	frames   [][]byte
	samples  []int
	prompts  int
	connects int
	onEvent  realtime.EventHandler
	onState  realtime.StateHandler
}

func (f *fakeRealtime) Connect(ctx context.Context) error {
	f.mu.Lock()
	f.connects++
	f.active = true
	f.state = realtime.StateConnected
	cb := f.onState
	f.mu.Unlock()
	if cb != nil {
		cb(realtime.StateConnected, nil)
	}
	return nil
}

func (f *fakeRealtime) Disconnect() {
	f.mu.Lock()
	was := f.active
	f.active = false
	f.state = realtime.StateDisconnected
	cb := f.onState
	f.mu.Unlock()
	if was && cb != nil {
		cb(realtime.StateDisconnected, nil)
	}
}

func (f *fakeRealtime) SendText(text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return f.sendErr
	}
	f.sent = append(f.sent, text)
	return nil
}

func (f *fakeRealtime) CreateResponse() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.active {
		return shared.ErrNotConnected
	}
	f.prompts++
	return nil
}

func (f *fakeRealtime) WriteAudio(opus []byte, samples int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.active {
		return shared.ErrNotConnected
	}
	f.frames = append(f.frames, append([]byte(nil), opus...))
	f.samples = append(f.samples, samples)
	return nil
}

func (f *fakeRealtime) State() realtime.State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

func (f *fakeRealtime) Active() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.active
}

func (f *fakeRealtime) OnEvent(fn realtime.EventHandler)       { f.mu.Lock(); f.onEvent = fn; f.mu.Unlock() }
func (f *fakeRealtime) OnStateChange(fn realtime.StateHandler) { f.mu.Lock(); f.onState = fn; f.mu.Unlock() }

func (f *fakeRealtime) deliver(t *testing.T, data string) {
	t.Helper()
	ev, err := realtime.ParseEvent([]byte(data))
	if err != nil {
		t.Fatalf("parse event: %v", err)
	}
	f.mu.Lock()
	cb := f.onEvent
	f.mu.Unlock()
	cb(ev)
}

func eventually(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}
