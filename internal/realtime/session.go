package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/eleven-am/voice-interpreter/internal/shared"
)

var (
	ErrConnectAborted = errors.New("connect aborted by disconnect")
	ErrPeerLost       = errors.New("peer connection lost")
)

type StateHandler func(state State, err error)

type EventHandler func(Event)

// Session owns at most one live connection to the realtime service. Every
// connection attempt gets a new generation; callbacks from an older
// generation are ignored.
type Session struct {
	cfg     SessionConfig
	svc     Service
	peers   PeerFactory
	metrics *Metrics
	log     *slog.Logger

	mu         sync.Mutex
	state      State
	generation uint64
	connecting bool
	pending    Peer
	peer       Peer
	onEvent    EventHandler
	onState    StateHandler
}

func NewSession(cfg SessionConfig, svc Service, peers PeerFactory, metrics *Metrics, log *slog.Logger) *Session {
	if log == nil {
		log = slog.Default()
	}
	return &Session{
		cfg:     cfg.withDefaults(),
		svc:     svc,
		peers:   peers,
		metrics: metrics,
		log:     log.With("component", "realtime_session"),
		state:   StateDisconnected,
	}
}

func (s *Session) OnEvent(fn EventHandler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onEvent = fn
}

func (s *Session) OnStateChange(fn StateHandler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onState = fn
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Active reports whether a connection is live or being established.
func (s *Session) Active() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connecting || s.peer != nil
}

// Connect negotiates a new connection. It returns nil without doing anything
// when a connection is already live or being established.
func (s *Session) Connect(ctx context.Context) error {
	s.mu.Lock()
	if s.connecting || s.peer != nil {
		s.mu.Unlock()
		s.log.Debug("connect ignored, session already active")
		return nil
	}
	s.connecting = true
	s.generation++
	gen := s.generation
	s.mu.Unlock()

	log := s.log.With("generation", gen)
	s.transition(gen, StateAcquiringCredential, nil)

	cred, err := s.svc.AcquireCredential(ctx, s.cfg)
	if err != nil {
		return s.fail(gen, nil, shared.NewCredentialError("acquire", err))
	}
	if !s.transition(gen, StateNegotiating, nil) {
		return ErrConnectAborted
	}

	peer, err := s.peers.NewPeer(s.cfg.DataChannelLabel)
	if err != nil {
		return s.fail(gen, nil, shared.NewNegotiationError("create peer", err))
	}

	opened := make(chan struct{})
	lost := make(chan struct{})
	var openOnce, lostOnce sync.Once
	peer.OnOpen(func() { openOnce.Do(func() { close(opened) }) })
	peer.OnMessage(func(data []byte) { s.handleMessage(gen, data) })
	peer.OnClosed(func() {
		lostOnce.Do(func() { close(lost) })
		s.handlePeerClosed(gen)
	})

	s.mu.Lock()
	if gen != s.generation {
		s.mu.Unlock()
		_ = peer.Close()
		return ErrConnectAborted
	}
	s.pending = peer
	s.mu.Unlock()

	offer, err := peer.CreateOffer(ctx)
	if err != nil {
		return s.fail(gen, peer, shared.NewNegotiationError("create offer", err))
	}
	answer, err := s.svc.Negotiate(ctx, cred, offer)
	if err != nil {
		return s.fail(gen, peer, shared.NewNegotiationError("sdp exchange", err))
	}
	if err := peer.SetAnswer(answer); err != nil {
		return s.fail(gen, peer, shared.NewNegotiationError("apply answer", err))
	}

	timer := time.NewTimer(s.cfg.NegotiationTimeout)
	defer timer.Stop()
	select {
	case <-opened:
	case <-lost:
		return s.fail(gen, peer, shared.NewNegotiationError("open data channel", ErrPeerLost))
	case <-timer.C:
		return s.fail(gen, peer, shared.NewNegotiationError("open data channel", context.DeadlineExceeded))
	case <-ctx.Done():
		return s.fail(gen, peer, shared.NewNegotiationError("open data channel", ctx.Err()))
	}

	if err := s.send(peer, newSessionUpdate(s.cfg)); err != nil {
		log.Warn("session.update failed", "error", err)
	}

	s.mu.Lock()
	if gen != s.generation {
		s.mu.Unlock()
		_ = peer.Close()
		return ErrConnectAborted
	}
	select {
	case <-lost:
		s.mu.Unlock()
		return s.fail(gen, peer, shared.NewNegotiationError("open data channel", ErrPeerLost))
	default:
	}
	s.connecting = false
	s.pending = nil
	s.peer = peer
	s.state = StateConnected
	cb := s.onState
	s.mu.Unlock()

	s.metrics.stateChanged(StateConnected)
	if cb != nil {
		cb(StateConnected, nil)
	}
	s.metrics.connectOutcome("connected")
	log.Info("realtime session connected", "model", cred.Model)
	return nil
}

func (s *Session) fail(gen uint64, peer Peer, err error) error {
	if peer != nil {
		_ = peer.Close()
	}

	s.mu.Lock()
	current := gen == s.generation
	if current {
		s.connecting = false
		s.pending = nil
	}
	s.mu.Unlock()

	if !current {
		return ErrConnectAborted
	}

	s.metrics.connectOutcome("failed")
	s.log.Error("realtime connect failed", "generation", gen, "error", err)
	s.transition(gen, StateFailed, err)
	s.transition(gen, StateDisconnected, nil)
	return err
}

// Disconnect releases the connection. It is safe to call in any state and
// more than once.
func (s *Session) Disconnect() {
	s.mu.Lock()
	peer, pending := s.peer, s.pending
	prev := s.state
	s.peer, s.pending = nil, nil
	s.connecting = false
	s.generation++
	s.state = StateDisconnected
	cb := s.onState
	s.mu.Unlock()

	if peer != nil {
		_ = peer.Close()
	}
	if pending != nil {
		_ = pending.Close()
	}

	if prev != StateDisconnected {
		s.metrics.stateChanged(StateDisconnected)
		s.log.Info("realtime session disconnected", "previous_state", prev)
		if cb != nil {
			cb(StateDisconnected, nil)
		}
	}
}

func (s *Session) handlePeerClosed(gen uint64) {
	s.mu.Lock()
	if gen != s.generation || s.peer == nil {
		s.mu.Unlock()
		return
	}
	peer := s.peer
	s.peer = nil
	s.mu.Unlock()

	go func() { _ = peer.Close() }()
	s.log.Warn("realtime peer closed remotely", "generation", gen)
	s.transition(gen, StateFailed, ErrPeerLost)
	s.transition(gen, StateDisconnected, nil)
}

// transition moves to the given state if gen is still current and the move
// is legal. It reports whether the state changed.
func (s *Session) transition(gen uint64, to State, err error) bool {
	s.mu.Lock()
	if gen != s.generation {
		s.mu.Unlock()
		return false
	}
	from := s.state
	if !isValidTransition(from, to) {
		s.mu.Unlock()
		s.log.Warn("invalid state transition", "from", from, "to", to)
		return false
	}
	s.state = to
	cb := s.onState
	s.mu.Unlock()

	s.metrics.stateChanged(to)
	s.log.Debug("state changed", "from", from, "to", to)
	if cb != nil {
		cb(to, err)
	}
	return true
}

func (s *Session) handleMessage(gen uint64, data []byte) {
	s.mu.Lock()
	current := gen == s.generation
	cb := s.onEvent
	s.mu.Unlock()

	if !current {
		s.log.Debug("dropping event from stale connection", "generation", gen)
		return
	}

	ev, err := ParseEvent(data)
	if err != nil {
		s.log.Error("malformed event", "error", shared.NewMalformedEventError("", err))
		return
	}
	s.metrics.eventReceived(ev.Type)

	if cb == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("event handler panicked", "type", ev.Type, "panic", r)
		}
	}()
	cb(ev)
}

func (s *Session) livePeer() (Peer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.peer == nil {
		return nil, shared.ErrNotConnected
	}
	return s.peer, nil
}

// SendText injects a user message and asks for a response.
func (s *Session) SendText(text string) error {
	peer, err := s.livePeer()
	if err != nil {
		return err
	}
	if err := s.send(peer, newUserMessage(text)); err != nil {
		return err
	}
	return s.send(peer, newResponseCreate())
}

// CreateResponse asks the model to respond without new input.
func (s *Session) CreateResponse() error {
	peer, err := s.livePeer()
	if err != nil {
		return err
	}
	return s.send(peer, newResponseCreate())
}

// WriteAudio forwards one encoded opus frame on the local audio track.
func (s *Session) WriteAudio(opus []byte, samples int) error {
	peer, err := s.livePeer()
	if err != nil {
		return err
	}
	return peer.WriteAudio(opus, samples)
}

func (s *Session) send(peer Peer, ev outboundEvent) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encode %s: %w", ev.Type, err)
	}
	if err := peer.Send(data); err != nil {
		return fmt.Errorf("send %s: %w", ev.Type, err)
	}
	return nil
}
