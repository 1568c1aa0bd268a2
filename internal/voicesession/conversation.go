package voicesession

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/eleven-am/voice-interpreter/internal/pipeline"
	"github.com/eleven-am/voice-interpreter/internal/shared"
	"github.com/eleven-am/voice-interpreter/internal/transport"
)

type Side string

const (
	SideUser    Side = "user"
	SidePartner Side = "partner"
)

func ParseSide(s string) (Side, error) {
	switch Side(s) {
	case SideUser, SidePartner:
		return Side(s), nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownSide, s)
}

func (s Side) other() Side {
	if s == SideUser {
		return SidePartner
	}
	return SideUser
}

type ConversationConfig struct {
	UserLanguage    string
	PartnerLanguage string
	Pipeline        pipeline.Config
	// MaxAudio bounds how many synthesized clips are kept for download.
	MaxAudio int
}

type ConversationEntry struct {
	Side   Side            `json:"side"`
	Result pipeline.Result `json:"result"`
}

type ConversationSnapshot struct {
	ID              string                  `json:"id"`
	UserLanguage    shared.Language         `json:"user_language"`
	PartnerLanguage shared.Language         `json:"partner_language"`
	Entries         []ConversationEntry     `json:"entries"`
	Stats           map[Side]pipeline.Stats `json:"stats"`
}

// ConversationSession interprets between two people. Each side has its own
// parallel pipeline translating into the other side's language.
type ConversationSession struct {
	id     string
	langs  map[Side]shared.Language
	pipes  map[Side]*pipeline.Pipeline
	events emitter
	log    *slog.Logger

	closeOnce sync.Once

	mu       sync.Mutex
	entries  []ConversationEntry
	audio    map[string]pipeline.AudioRef
	audioIDs []string
	maxAudio int
}

func NewConversationSession(cfg ConversationConfig, deps Dependencies, log *slog.Logger) (*ConversationSession, error) {
	if log == nil {
		log = slog.Default()
	}
	deps = deps.withDefaults()

	userLang, ok := shared.LookupLanguage(cfg.UserLanguage)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownLanguage, cfg.UserLanguage)
	}
	partnerLang, ok := shared.LookupLanguage(cfg.PartnerLanguage)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownLanguage, cfg.PartnerLanguage)
	}
	if cfg.MaxAudio <= 0 {
		cfg.MaxAudio = 64
	}

	id := shared.NewID("conv_")
	log = log.With("component", "conversation_session", "session_id", id)

	c := &ConversationSession{
		id:       id,
		langs:    map[Side]shared.Language{SideUser: userLang, SidePartner: partnerLang},
		pipes:    make(map[Side]*pipeline.Pipeline, 2),
		events:   emitter{sessionID: id, pub: deps.Publisher, log: log},
		log:      log,
		audio:    make(map[string]pipeline.AudioRef),
		maxAudio: cfg.MaxAudio,
	}

	for _, side := range []Side{SideUser, SidePartner} {
		target := c.langs[side.other()]
		pcfg := cfg.Pipeline
		pcfg.TargetLanguage = target.Code
		pcfg.TargetLanguageName = target.Name
		pcfg.Voice = target.Voice

		p := pipeline.New(pcfg, deps.pipelineDeps(), log.With("side", side))
		side := side
		p.SetResultHandler(func(r pipeline.Result) { c.onResult(side, r) })
		c.pipes[side] = p
	}

	c.events.emit(transport.EventSessionStart, transport.SessionPayload{Mode: "conversation"})
	log.Info("conversation started", "user_language", userLang.Code, "partner_language", partnerLang.Code)
	return c, nil
}

func (c *ConversationSession) ID() string {
	return c.id
}

// Submit queues one spoken segment from the given side.
func (c *ConversationSession) Submit(side Side, ref pipeline.AudioRef) (uint64, error) {
	p, ok := c.pipes[side]
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrUnknownSide, side)
	}
	return p.Submit(ref)
}

func (c *ConversationSession) onResult(side Side, r pipeline.Result) {
	c.mu.Lock()
	c.entries = append(c.entries, ConversationEntry{Side: side, Result: r})
	if r.SynthesizedAudio != nil {
		c.storeAudioLocked(*r.SynthesizedAudio)
	}
	c.mu.Unlock()

	c.events.emit(transport.EventResult, resultPayload(r, string(side)))
}

func (c *ConversationSession) storeAudioLocked(ref pipeline.AudioRef) {
	c.audio[ref.ID] = ref
	c.audioIDs = append(c.audioIDs, ref.ID)
	for len(c.audioIDs) > c.maxAudio {
		delete(c.audio, c.audioIDs[0])
		c.audioIDs = c.audioIDs[1:]
	}
}

// Audio returns a synthesized clip by ID.
func (c *ConversationSession) Audio(id string) (pipeline.AudioRef, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	ref, ok := c.audio[id]
	return ref, ok
}

// Clear drops both histories and any in-flight segments.
func (c *ConversationSession) Clear() {
	for _, p := range c.pipes {
		p.Clear()
	}
	c.mu.Lock()
	c.entries = nil
	c.mu.Unlock()
}

func (c *ConversationSession) Snapshot() ConversationSnapshot {
	stats := map[Side]pipeline.Stats{
		SideUser:    c.pipes[SideUser].Stats(),
		SidePartner: c.pipes[SidePartner].Stats(),
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return ConversationSnapshot{
		ID:              c.id,
		UserLanguage:    c.langs[SideUser],
		PartnerLanguage: c.langs[SidePartner],
		Entries:         append([]ConversationEntry(nil), c.entries...),
		Stats:           stats,
	}
}

// Wait blocks until both sides have finished their submitted segments.
func (c *ConversationSession) Wait() {
	for _, p := range c.pipes {
		p.Wait()
	}
}

func (c *ConversationSession) Close() {
	c.closeOnce.Do(func() {
		for _, p := range c.pipes {
			p.Close()
		}
		c.events.emit(transport.EventSessionEnd, transport.SessionPayload{Mode: "conversation"})
		c.log.Info("conversation ended")
	})
}
