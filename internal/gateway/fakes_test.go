package gateway

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/eleven-am/voice-interpreter/internal/pipeline"
	"github.com/eleven-am/voice-interpreter/internal/transport"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeRecognizer struct{}

func (fakeRecognizer) Recognize(_ context.Context, audio pipeline.AudioRef, _ string) (pipeline.Recognition, error) {
	return pipeline.Recognition{Text: "hallo " + audio.Format, Language: "de"}, nil
}

type fakeTranslator struct{}

func (fakeTranslator) Translate(_ context.Context, text, _, target string) (string, error) {
	return target + ":" + text, nil
}

type fakeSynthesizer struct{}

func (fakeSynthesizer) Synthesize(_ context.Context, text, voice string) (*pipeline.AudioRef, error) {
	return &pipeline.AudioRef{ID: "tts-" + voice, Data: []byte(text), Format: "mp3"}, nil
}

type fakeSubscription struct {
	events chan transport.Event
	once   sync.Once
	closed chan struct{}
}

func (s *fakeSubscription) Events() <-chan transport.Event { return s.events }

func (s *fakeSubscription) Close() error {
	s.once.Do(func() { close(s.closed) })
	return nil
}

type fakeSubscriber struct {
	mu   sync.Mutex
	subs map[string]*fakeSubscription
	err  error
}

func newFakeSubscriber() *fakeSubscriber {
	return &fakeSubscriber{subs: make(map[string]*fakeSubscription)}
}

func (f *fakeSubscriber) Subscribe(_ context.Context, sessionID string) (transport.Subscription, error) {
	if f.err != nil {
		return nil, f.err
	}
	sub := &fakeSubscription{events: make(chan transport.Event, 8), closed: make(chan struct{})}
	f.mu.Lock()
	f.subs[sessionID] = sub
	f.mu.Unlock()
	return sub, nil
}

func (f *fakeSubscriber) get(sessionID string) *fakeSubscription {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.subs[sessionID]
}

func eventually(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}
