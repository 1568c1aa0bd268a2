package capture

import (
	"context"
	"log/slog"
	"time"

	"github.com/eleven-am/voice-interpreter/internal/pipeline"
	"github.com/eleven-am/voice-interpreter/internal/shared"
)

type SegmentConfig struct {
	Duration time.Duration
}

type Sink func(pipeline.AudioRef)

// SegmentSource cuts continuous capture into fixed-length segments. Capture is
// restarted before each finished segment is handed to the sink so no audio
// falls between segments.
type SegmentSource struct {
	rec  Recorder
	cfg  SegmentConfig
	sink Sink
	log  *slog.Logger
}

func NewSegmentSource(rec Recorder, cfg SegmentConfig, sink Sink, log *slog.Logger) *SegmentSource {
	if log == nil {
		log = slog.Default()
	}
	if cfg.Duration <= 0 {
		cfg.Duration = 15 * time.Second
	}
	return &SegmentSource{
		rec:  rec,
		cfg:  cfg,
		sink: sink,
		log:  log.With("component", "segment_source"),
	}
}

// Run blocks until ctx is cancelled, the recorder's input ends, or capture
// cannot be (re)started. Only start failures are returned.
func (s *SegmentSource) Run(ctx context.Context) error {
	if err := s.rec.Start(ctx); err != nil {
		return shared.NewCaptureError("start", err)
	}
	s.log.Info("capture started", "segment_duration", s.cfg.Duration)

	var ended <-chan struct{}
	if n, ok := s.rec.(endNotifier); ok {
		ended = n.Done()
	}

	timer := time.NewTimer(s.cfg.Duration)
	defer timer.Stop()

	segments := 0
	for {
		exhausted := false
		select {
		case <-ctx.Done():
			s.stop(ctx)
			s.log.Info("capture stopped", "segments", segments)
			return nil
		case <-timer.C:
		case <-ended:
			exhausted = true
		}

		ref, stopErr := s.rec.Stop(context.WithoutCancel(ctx))
		if ctx.Err() != nil {
			s.log.Info("capture stopped", "segments", segments)
			return nil
		}

		if exhausted {
			if stopErr == nil {
				segments++
				s.deliver(ref)
			}
			s.log.Info("capture input ended", "segments", segments)
			return nil
		}

		if err := s.rec.Start(ctx); err != nil {
			if stopErr == nil {
				segments++
				s.deliver(ref)
			}
			return shared.NewCaptureError("restart", err)
		}
		timer.Reset(s.cfg.Duration)

		if stopErr != nil {
			s.log.Warn("segment lost", "error", shared.NewCaptureError("stop", stopErr))
			continue
		}
		segments++
		s.deliver(ref)
	}
}

func (s *SegmentSource) stop(ctx context.Context) {
	if _, err := s.rec.Stop(context.WithoutCancel(ctx)); err != nil {
		s.log.Debug("final stop failed", "error", err)
	}
}

func (s *SegmentSource) deliver(ref pipeline.AudioRef) {
	if s.sink != nil {
		s.sink(ref)
	}
}
