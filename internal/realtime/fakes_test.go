package realtime

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeService struct {
	credErr  error
	negErr   error
	credGate chan struct{}

	credCalls atomic.Int32
	negCalls  atomic.Int32
}

func (f *fakeService) AcquireCredential(ctx context.Context, cfg SessionConfig) (Credential, error) {
	f.credCalls.Add(1)
	if f.credGate != nil {
		select {
		case <-f.credGate:
		case <-ctx.Done():
			return Credential{}, ctx.Err()
		}
	}
	if f.credErr != nil {
		return Credential{}, f.credErr
	}
	return Credential{Value: "ek_test", Model: cfg.Model}, nil
}

func (f *fakeService) Negotiate(ctx context.Context, cred Credential, offer string) (string, error) {
	f.negCalls.Add(1)
	if f.negErr != nil {
		return "", f.negErr
	}
	return "answer-for-" + offer, nil
}

type fakePeer struct {
	autoOpen bool
	onSend   func(p *fakePeer)

	mu        sync.Mutex
	sent      [][]byte
	answer    string
	closed    bool
	onOpen    func()
	onMessage func([]byte)
	onClosed  func()
	closeOnce sync.Once
}

func (p *fakePeer) CreateOffer(ctx context.Context) (string, error) {
	return "offer", nil
}

func (p *fakePeer) SetAnswer(sdp string) error {
	p.mu.Lock()
	p.answer = sdp
	cb := p.onOpen
	p.mu.Unlock()
	if p.autoOpen && cb != nil {
		cb()
	}
	return nil
}

func (p *fakePeer) Send(data []byte) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return ErrChannelNotOpen
	}
	p.sent = append(p.sent, data)
	hook := p.onSend
	p.mu.Unlock()
	if hook != nil {
		hook(p)
	}
	return nil
}

func (p *fakePeer) WriteAudio(opus []byte, samples int) error {
	return nil
}

func (p *fakePeer) OnOpen(fn func())          { p.mu.Lock(); p.onOpen = fn; p.mu.Unlock() }
func (p *fakePeer) OnMessage(fn func([]byte)) { p.mu.Lock(); p.onMessage = fn; p.mu.Unlock() }
func (p *fakePeer) OnClosed(fn func())        { p.mu.Lock(); p.onClosed = fn; p.mu.Unlock() }

func (p *fakePeer) Close() error {
	p.mu.Lock()
	p.closed = true
	cb := p.onClosed
	p.mu.Unlock()
	if cb != nil {
		p.closeOnce.Do(cb)
	}
	return nil
}

// remoteClose simulates the far end dropping the connection.
func (p *fakePeer) remoteClose() {
	p.mu.Lock()
	cb := p.onClosed
	p.mu.Unlock()
	if cb != nil {
		p.closeOnce.Do(cb)
	}
}

func (p *fakePeer) deliver(data string) {
	p.mu.Lock()
	cb := p.onMessage
	p.mu.Unlock()
	if cb != nil {
		cb([]byte(data))
	}
}

func (p *fakePeer) isClosed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

func (p *fakePeer) sentTypes() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	types := make([]string, 0, len(p.sent))
	for _, data := range p.sent {
		var head struct {
			Type string `json:"type"`
		}
		_ = json.Unmarshal(data, &head)
		types = append(types, head.Type)
	}
	return types
}

type fakeFactory struct {
	autoOpen bool
	err      error
	// firstSend runs when the first peer sends its first message.
	firstSend func(p *fakePeer)

	mu    sync.Mutex
	peers []*fakePeer
}

func (f *fakeFactory) NewPeer(label string) (Peer, error) {
	if f.err != nil {
		return nil, f.err
	}
	p := &fakePeer{autoOpen: f.autoOpen}
	f.mu.Lock()
	if len(f.peers) == 0 && f.firstSend != nil {
		hook := f.firstSend
		var once sync.Once
		p.onSend = func(p *fakePeer) { once.Do(func() { hook(p) }) }
	}
	f.peers = append(f.peers, p)
	f.mu.Unlock()
	return p, nil
}

func (f *fakeFactory) peer(i int) *fakePeer {
	f.mu.Lock()
	defer f.mu.Unlock()
	if i >= len(f.peers) {
		return nil
	}
	return f.peers[i]
}

func (f *fakeFactory) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.peers)
}

type stateRecorder struct {
	mu     sync.Mutex
	states []State
	errs   []error
}

func (r *stateRecorder) record(s State, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.states = append(r.states, s)
	r.errs = append(r.errs, err)
}

func (r *stateRecorder) snapshot() []State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]State(nil), r.states...)
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

func statesEqual(a, b []State) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
