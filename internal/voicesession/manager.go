package voicesession

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/eleven-am/voice-interpreter/internal/pipeline"
	"github.com/eleven-am/voice-interpreter/internal/shared"
)

type ManagerConfig struct {
	Listen       ListenConfig
	Conversation pipeline.Config
	Deps         Dependencies
	// Realtime is optional; without it the realtime calls report not found.
	Realtime *RealtimeController
	Log      *slog.Logger
}

// Manager owns every session in the process. Listen mode and the realtime
// session both capture the microphone, so only one of them may run at a time.
type Manager struct {
	listenCfg ListenConfig
	convCfg   pipeline.Config
	deps      Dependencies
	rt        *RealtimeController
	log       *slog.Logger

	mu            sync.Mutex
	listens       map[string]*ListenSession
	conversations map[string]*ConversationSession
	rtConnecting  bool
}

func NewManager(cfg ManagerConfig) *Manager {
	if cfg.Log == nil {
		cfg.Log = slog.Default()
	}
	return &Manager{
		listenCfg:     cfg.Listen,
		convCfg:       cfg.Conversation,
		deps:          cfg.Deps.withDefaults(),
		rt:            cfg.Realtime,
		log:           cfg.Log.With("component", "voicesession_manager"),
		listens:       make(map[string]*ListenSession),
		conversations: make(map[string]*ConversationSession),
	}
}

func (m *Manager) captureOwnerLocked() string {
	for id, s := range m.listens {
		if !s.isStopped() {
			return id
		}
	}
	if m.rtConnecting || (m.rt != nil && m.rt.Active()) {
		return "realtime"
	}
	return ""
}

func (m *Manager) StartListen() (*ListenSession, error) {
	m.mu.Lock()
	if owner := m.captureOwnerLocked(); owner != "" {
		m.mu.Unlock()
		return nil, fmt.Errorf("capture held by %s: %w", owner, shared.ErrCaptureBusy)
	}
	s := NewListenSession(m.listenCfg, m.deps, m.log)
	m.listens[s.ID()] = s
	m.mu.Unlock()

	s.Start()
	m.log.Info("listen session created", "session_id", s.ID())
	return s, nil
}

func (m *Manager) Listen(id string) (*ListenSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.listens[id]
	if !ok {
		return nil, fmt.Errorf("listen session %s: %w", id, shared.ErrNotFound)
	}
	return s, nil
}

// StopListen stops capture but keeps the session so its transcript and
// final summary stay readable.
func (m *Manager) StopListen(ctx context.Context, id string) (*ListenSession, error) {
	s, err := m.Listen(id)
	if err != nil {
		return nil, err
	}
	s.Stop(ctx)
	return s, nil
}

// RemoveListen stops the session if needed and forgets it.
func (m *Manager) RemoveListen(ctx context.Context, id string) error {
	m.mu.Lock()
	s, ok := m.listens[id]
	delete(m.listens, id)
	m.mu.Unlock()
	if !ok {
		return fmt.Errorf("listen session %s: %w", id, shared.ErrNotFound)
	}
	s.Stop(ctx)
	return nil
}

func (m *Manager) StartConversation(userLanguage, partnerLanguage string) (*ConversationSession, error) {
	c, err := NewConversationSession(ConversationConfig{
		UserLanguage:    userLanguage,
		PartnerLanguage: partnerLanguage,
		Pipeline:        m.convCfg,
	}, m.deps, m.log)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	m.conversations[c.ID()] = c
	m.mu.Unlock()
	return c, nil
}

func (m *Manager) Conversation(id string) (*ConversationSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.conversations[id]
	if !ok {
		return nil, fmt.Errorf("conversation %s: %w", id, shared.ErrNotFound)
	}
	return c, nil
}

func (m *Manager) EndConversation(id string) error {
	m.mu.Lock()
	c, ok := m.conversations[id]
	delete(m.conversations, id)
	m.mu.Unlock()
	if !ok {
		return fmt.Errorf("conversation %s: %w", id, shared.ErrNotFound)
	}
	c.Close()
	return nil
}

func (m *Manager) Realtime() (*RealtimeController, error) {
	if m.rt == nil {
		return nil, fmt.Errorf("realtime session: %w", shared.ErrNotFound)
	}
	return m.rt, nil
}

// ConnectRealtime connects the realtime session unless a listen session
// holds capture.
func (m *Manager) ConnectRealtime(ctx context.Context) error {
	rt, err := m.Realtime()
	if err != nil {
		return err
	}

	m.mu.Lock()
	if rt.Active() {
		m.mu.Unlock()
		return nil
	}
	if owner := m.captureOwnerLocked(); owner != "" {
		m.mu.Unlock()
		return fmt.Errorf("capture held by %s: %w", owner, shared.ErrCaptureBusy)
	}
	m.rtConnecting = true
	m.mu.Unlock()

	defer func() {
		m.mu.Lock()
		m.rtConnecting = false
		m.mu.Unlock()
	}()
	return rt.Connect(ctx)
}

func (m *Manager) DisconnectRealtime() error {
	rt, err := m.Realtime()
	if err != nil {
		return err
	}
	rt.Disconnect()
	return nil
}

type Counts struct {
	Listen        int  `json:"listen"`
	Conversations int  `json:"conversations"`
	RealtimeLive  bool `json:"realtime_live"`
}

func (m *Manager) Counts() Counts {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := Counts{Conversations: len(m.conversations)}
	for _, s := range m.listens {
		if !s.isStopped() {
			c.Listen++
		}
	}
	c.RealtimeLive = m.rt != nil && m.rt.Active()
	return c
}

func (m *Manager) Close(ctx context.Context) error {
	m.mu.Lock()
	listens := make([]*ListenSession, 0, len(m.listens))
	for _, s := range m.listens {
		listens = append(listens, s)
	}
	convs := make([]*ConversationSession, 0, len(m.conversations))
	for _, c := range m.conversations {
		convs = append(convs, c)
	}
	m.listens = make(map[string]*ListenSession)
	m.conversations = make(map[string]*ConversationSession)
	m.mu.Unlock()

	for _, s := range listens {
		s.Stop(ctx)
	}
	for _, c := range convs {
		c.Close()
	}
	if m.rt != nil {
		m.rt.Close()
	}
	return nil
}
