package voicesession

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/eleven-am/voice-interpreter/internal/audio"
	"github.com/eleven-am/voice-interpreter/internal/capture"
	"github.com/eleven-am/voice-interpreter/internal/pipeline"
	"github.com/eleven-am/voice-interpreter/internal/shared"
	"github.com/eleven-am/voice-interpreter/internal/transport"
)

type ListenConfig struct {
	Pipeline        pipeline.Config
	Segment         capture.SegmentConfig
	InputFormat     audio.Format
	SummaryInterval time.Duration
	MinSummaryChars int
	SummaryTimeout  time.Duration
	// DrainTimeout bounds how long Stop waits for queued segments.
	DrainTimeout time.Duration
}

func (c ListenConfig) withDefaults() ListenConfig {
	if c.SummaryInterval <= 0 {
		c.SummaryInterval = 45 * time.Second
	}
	if c.MinSummaryChars <= 0 {
		c.MinSummaryChars = 20
	}
	if c.SummaryTimeout <= 0 {
		c.SummaryTimeout = 60 * time.Second
	}
	if c.DrainTimeout <= 0 {
		c.DrainTimeout = 2 * time.Minute
	}
	if c.InputFormat.SampleRate == 0 {
		c.InputFormat = audio.DefaultFormat()
	}
	c.Pipeline.Synthesize = false
	return c
}

type ListenSnapshot struct {
	ID         string            `json:"id"`
	Status     Status            `json:"status"`
	Segments   []pipeline.Result `json:"segments"`
	Transcript string            `json:"transcript"`
	Summary    string            `json:"summary"`
	Error      string            `json:"error,omitempty"`
	Stats      pipeline.Stats    `json:"stats"`
}

// ListenSession records continuously, translates each segment in order and
// keeps a rolling summary of everything translated so far.
type ListenSession struct {
	id         string
	cfg        ListenConfig
	proc       *pipeline.Sequential
	summarizer Summarizer
	events     emitter
	log        *slog.Logger

	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	startOnce sync.Once
	stopOnce  sync.Once

	feedMu sync.Mutex
	feed   *io.PipeWriter

	mu          sync.Mutex
	started     bool
	stopped     bool
	summarizing bool
	published   Status
	segments    []pipeline.Result
	transcript  []string
	summary     string
	captureErr  error
}

func NewListenSession(cfg ListenConfig, deps Dependencies, log *slog.Logger) *ListenSession {
	if log == nil {
		log = slog.Default()
	}
	cfg = cfg.withDefaults()
	deps = deps.withDefaults()

	id := shared.NewID("lst_")
	log = log.With("component", "listen_session", "session_id", id)
	ctx, cancel := context.WithCancel(context.Background())

	s := &ListenSession{
		id:         id,
		cfg:        cfg,
		proc:       pipeline.NewSequential(cfg.Pipeline, deps.pipelineDeps(), log),
		summarizer: deps.Summarizer,
		events:     emitter{sessionID: id, pub: deps.Publisher, log: log},
		log:        log,
		ctx:        ctx,
		cancel:     cancel,
		published:  StatusReady,
	}
	s.proc.SetResultHandler(s.onResult)
	s.proc.SetContextHandler(func(hint string) {
		s.log.Debug("context updated", "chars", utf8.RuneCountInString(hint))
	})
	return s
}

func (s *ListenSession) ID() string {
	return s.id
}

// Start begins capture. Audio written with Write is cut into segments.
func (s *ListenSession) Start() {
	s.startOnce.Do(func() {
		pr, pw := io.Pipe()
		s.feedMu.Lock()
		s.feed = pw
		s.feedMu.Unlock()

		rec := capture.NewStreamRecorder(pr, capture.StreamConfig{
			Input:  s.cfg.InputFormat,
			Output: audio.DefaultFormat(),
		}, s.log)
		source := capture.NewSegmentSource(rec, s.cfg.Segment, s.submitSegment, s.log)

		s.mu.Lock()
		s.started = true
		s.mu.Unlock()

		s.events.emit(transport.EventSessionStart, transport.SessionPayload{Mode: "listen"})
		s.refreshStatus()

		s.wg.Add(2)
		go func() {
			defer s.wg.Done()
			if err := source.Run(s.ctx); err != nil {
				s.captureFailed(err)
			}
		}()
		go func() {
			defer s.wg.Done()
			s.summaryLoop()
		}()
		s.log.Info("listen session started", "segment_duration", s.cfg.Segment.Duration)
	})
}

// Write feeds raw PCM16 into capture.
func (s *ListenSession) Write(p []byte) (int, error) {
	s.feedMu.Lock()
	feed := s.feed
	s.feedMu.Unlock()
	if feed == nil || s.isStopped() {
		return 0, shared.ErrSessionClosed
	}
	return feed.Write(p)
}

// Submit queues a segment that was cut elsewhere.
func (s *ListenSession) Submit(ref pipeline.AudioRef) (uint64, error) {
	if s.isStopped() {
		return 0, shared.ErrSessionClosed
	}
	seq, err := s.proc.Submit(ref)
	if err != nil {
		return 0, err
	}
	s.refreshStatus()
	return seq, nil
}

func (s *ListenSession) submitSegment(ref pipeline.AudioRef) {
	if _, err := s.Submit(ref); err != nil {
		s.log.Warn("segment dropped", "audio_id", ref.ID, "error", err)
	}
}

func (s *ListenSession) captureFailed(err error) {
	s.mu.Lock()
	s.captureErr = err
	s.mu.Unlock()

	s.log.Error("capture failed", "error", err)
	s.events.emit(transport.EventError, transport.ErrorPayload{
		Stage:   string(shared.StageCapture),
		Message: err.Error(),
	})
}

func (s *ListenSession) onResult(r pipeline.Result) {
	s.mu.Lock()
	s.segments = append(s.segments, r)
	if text := strings.TrimSpace(r.TranslatedText); text != "" {
		s.transcript = append(s.transcript, text)
	}
	s.mu.Unlock()

	s.events.emit(transport.EventResult, resultPayload(r, ""))
	// the job that produced r still counts as active here
	s.publishStatus(func(st *pipeline.Stats) { st.Active = 0 })
}

func (s *ListenSession) summaryLoop() {
	ticker := time.NewTicker(s.cfg.SummaryInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			s.summarize(s.ctx, false)
			s.refreshStatus()
		}
	}
}

// summarize replaces the current summary with one covering the whole
// transcript. Short transcripts are left alone.
func (s *ListenSession) summarize(ctx context.Context, final bool) {
	if s.summarizer == nil {
		return
	}

	s.mu.Lock()
	transcript := strings.Join(s.transcript, " ")
	if s.summarizing || utf8.RuneCountInString(transcript) < s.cfg.MinSummaryChars {
		s.mu.Unlock()
		return
	}
	s.summarizing = true
	s.mu.Unlock()
	s.refreshStatus()

	ctx, cancel := context.WithTimeout(ctx, s.cfg.SummaryTimeout)
	defer cancel()
	summary, err := s.summarizer.Summarize(ctx, transcript)

	s.mu.Lock()
	s.summarizing = false
	if err == nil && summary != "" {
		s.summary = summary
	}
	s.mu.Unlock()

	if err != nil {
		s.log.Warn("summary failed", "final", final, "error", err)
		return
	}
	s.log.Info("summary updated", "final", final, "chars", utf8.RuneCountInString(summary))
	s.events.emit(transport.EventSummary, transport.SummaryPayload{Summary: summary, Final: final})
}

// ClearTranscript forgets every segment, the summary and the carried
// context. Segments still in flight are discarded.
func (s *ListenSession) ClearTranscript() {
	s.proc.Clear()

	s.mu.Lock()
	s.segments = nil
	s.transcript = nil
	s.summary = ""
	s.mu.Unlock()

	s.log.Info("transcript cleared")
	s.events.emit(transport.EventStatus, transport.StatusPayload{Status: string(s.Status()), Message: "transcript cleared"})
}

// Stop ends capture, discarding the partial segment, waits for queued
// segments and writes a final summary.
func (s *ListenSession) Stop(ctx context.Context) {
	s.stopOnce.Do(func() {
		s.mu.Lock()
		s.stopped = true
		s.mu.Unlock()

		s.cancel()
		s.feedMu.Lock()
		if s.feed != nil {
			_ = s.feed.Close()
		}
		s.feedMu.Unlock()
		s.wg.Wait()

		drained := make(chan struct{})
		go func() {
			s.proc.Wait()
			close(drained)
		}()
		drainCtx, cancel := context.WithTimeout(ctx, s.cfg.DrainTimeout)
		select {
		case <-drained:
		case <-drainCtx.Done():
			s.log.Warn("stopping with segments still queued", "stats", s.proc.Stats())
		}
		cancel()

		s.summarize(context.WithoutCancel(ctx), true)
		s.proc.Close()

		s.refreshStatus()
		s.events.emit(transport.EventSessionEnd, transport.SessionPayload{Mode: "listen"})
		s.log.Info("listen session stopped", "segments", len(s.Snapshot().Segments))
	})
}

func (s *ListenSession) isStopped() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopped
}

func (s *ListenSession) Status() Status {
	stats := s.proc.Stats()
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.statusLocked(stats)
}

func (s *ListenSession) statusLocked(stats pipeline.Stats) Status {
	switch {
	case s.stopped:
		return StatusStopped
	case s.summarizing:
		return StatusSummarizing
	case stats.Active+stats.Queued > 0:
		return StatusProcessing
	case s.started:
		return StatusListening
	}
	return StatusReady
}

func (s *ListenSession) refreshStatus() {
	s.publishStatus(nil)
}

func (s *ListenSession) publishStatus(adjust func(*pipeline.Stats)) {
	stats := s.proc.Stats()
	if adjust != nil {
		adjust(&stats)
	}
	s.mu.Lock()
	status := s.statusLocked(stats)
	changed := status != s.published
	s.published = status
	s.mu.Unlock()

	if changed {
		s.events.emit(transport.EventStatus, transport.StatusPayload{Status: string(status)})
	}
}

func (s *ListenSession) Snapshot() ListenSnapshot {
	stats := s.proc.Stats()
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := ListenSnapshot{
		ID:         s.id,
		Status:     s.statusLocked(stats),
		Segments:   append([]pipeline.Result(nil), s.segments...),
		Transcript: strings.Join(s.transcript, " "),
		Summary:    s.summary,
		Stats:      stats,
	}
	if s.captureErr != nil {
		snap.Error = s.captureErr.Error()
	}
	return snap
}
