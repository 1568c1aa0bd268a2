package pipeline

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeRecognizer struct {
	mu       sync.Mutex
	texts    map[string]string
	langs    map[string]string
	fail     map[string]error
	gates    map[string]chan struct{}
	hints    map[string]string
	finished chan string

	inflight    atomic.Int32
	maxInflight atomic.Int32
	delay       time.Duration
	panicOn     string
}

func newFakeRecognizer() *fakeRecognizer {
	return &fakeRecognizer{
		texts:    make(map[string]string),
		langs:    make(map[string]string),
		fail:     make(map[string]error),
		gates:    make(map[string]chan struct{}),
		hints:    make(map[string]string),
		finished: make(chan string, 64),
	}
}

func (f *fakeRecognizer) gate(id string) chan struct{} {
	ch := make(chan struct{})
	f.mu.Lock()
	f.gates[id] = ch
	f.mu.Unlock()
	return ch
}

func (f *fakeRecognizer) hint(id string) (string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	h, ok := f.hints[id]
	return h, ok
}

func (f *fakeRecognizer) Recognize(ctx context.Context, audio AudioRef, hint string) (Recognition, error) {
	n := f.inflight.Add(1)
	defer f.inflight.Add(-1)
	for {
		cur := f.maxInflight.Load()
		if n <= cur || f.maxInflight.CompareAndSwap(cur, n) {
			break
		}
	}

	f.mu.Lock()
	f.hints[audio.ID] = hint
	gate := f.gates[audio.ID]
	text, ok := f.texts[audio.ID]
	lang := f.langs[audio.ID]
	err := f.fail[audio.ID]
	f.mu.Unlock()

	if audio.ID == f.panicOn {
		panic("recognizer exploded")
	}
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return Recognition{}, ctx.Err()
		}
	}
	if f.delay > 0 {
		time.Sleep(f.delay)
	}

	defer func() { f.finished <- audio.ID }()
	if err != nil {
		return Recognition{}, err
	}
	if !ok {
		text = "text-" + audio.ID
	}
	if lang == "" {
		lang = "en"
	}
	return Recognition{Text: text, Language: lang}, nil
}

type fakeTranslator struct {
	calls atomic.Int32
	err   error
}

func (f *fakeTranslator) Translate(_ context.Context, text, _, target string) (string, error) {
	f.calls.Add(1)
	if f.err != nil {
		return "", f.err
	}
	return target + ":" + text, nil
}

type fakeSynthesizer struct {
	err error
}

func (f *fakeSynthesizer) Synthesize(_ context.Context, text, voice string) (*AudioRef, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &AudioRef{ID: voice + "-" + text, Format: "mp3"}, nil
}

var errRecognition = errors.New("recognizer unavailable")

type collector struct {
	mu      sync.Mutex
	results []Result
	hints   []string
}

func (c *collector) onResult(r Result) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.results = append(c.results, r)
}

func (c *collector) onContext(h string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.hints = append(c.hints, h)
}

func (c *collector) snapshot() []Result {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Result, len(c.results))
	copy(out, c.results)
	return out
}

func (c *collector) sequences() []uint64 {
	rs := c.snapshot()
	out := make([]uint64, len(rs))
	for i, r := range rs {
		out[i] = r.Sequence
	}
	return out
}

func fixedClock() time.Time {
	return time.Date(2024, 5, 1, 14, 7, 0, 0, time.UTC)
}

func waitFinished(f *fakeRecognizer, n int) bool {
	timeout := time.After(2 * time.Second)
	for i := 0; i < n; i++ {
		select {
		case <-f.finished:
		case <-timeout:
			return false
		}
	}
	return true
}

func eventually(cond func() bool) bool {
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(2 * time.Millisecond)
	}
	return cond()
}
