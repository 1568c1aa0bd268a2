package pipeline

import (
	"context"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/eleven-am/voice-interpreter/internal/shared"
)

type worker struct {
	cfg     Config
	deps    Dependencies
	mode    string
	log     *slog.Logger
	metrics *Metrics
}

func newWorker(cfg Config, deps Dependencies, mode string, log *slog.Logger) *worker {
	if deps.Clock == nil {
		deps.Clock = time.Now
	}
	return &worker{
		cfg:     cfg,
		deps:    deps,
		mode:    mode,
		log:     log,
		metrics: deps.Metrics,
	}
}

// process runs one job to completion. A nil result means the sequence is
// skipped.
func (w *worker) process(ctx context.Context, job Job) (res *Result, out outcome) {
	log := w.log.With("seq", job.Sequence)

	defer func() {
		if r := recover(); r != nil {
			log.Error("worker panicked", "panic", r)
			res, out = nil, outcomePanic
		}
	}()

	var rec Recognition
	err := w.call(ctx, "recognize", func(ctx context.Context) error {
		var err error
		rec, err = w.deps.Recognizer.Recognize(ctx, job.Audio, job.ContextHint)
		return err
	})
	if err != nil {
		log.Warn("recognition failed", "error", shared.NewRecognitionError("recognize", err))
		return nil, outcomeFailed
	}

	text := strings.TrimSpace(rec.Text)
	if utf8.RuneCountInString(text) < w.cfg.MinTextLength {
		log.Debug("segment treated as silence", "chars", utf8.RuneCountInString(text))
		return nil, outcomeSilence
	}

	translated := text
	if !shared.SameLanguage(rec.Language, w.cfg.TargetLanguage) {
		source := rec.Language
		if source == "" {
			source = "Auto"
		}
		err = w.call(ctx, "translate", func(ctx context.Context) error {
			var err error
			translated, err = w.deps.Translator.Translate(ctx, text, source, w.cfg.TargetLanguageName)
			return err
		})
		if err != nil {
			log.Warn("translation failed", "error", shared.NewTranslationError("translate", err))
			return nil, outcomeFailed
		}
	}

	var audio *AudioRef
	if w.cfg.Synthesize && w.deps.Synthesizer != nil && strings.TrimSpace(translated) != "" {
		err = w.call(ctx, "synthesize", func(ctx context.Context) error {
			var err error
			audio, err = w.deps.Synthesizer.Synthesize(ctx, translated, w.cfg.Voice)
			return err
		})
		if err != nil {
			log.Warn("synthesis failed, delivering text only", "error", shared.NewSynthesisError("synthesize", err))
			audio = nil
		}
	}

	return &Result{
		Sequence:         job.Sequence,
		OriginalText:     text,
		TranslatedText:   translated,
		DetectedLanguage: rec.Language,
		SynthesizedAudio: audio,
		Timestamp:        w.deps.Clock().Format("15:04"),
	}, outcomeResult
}

func (w *worker) call(ctx context.Context, stage string, fn func(context.Context) error) error {
	ctx, cancel := context.WithTimeout(ctx, w.cfg.RequestTimeout)
	defer cancel()

	start := time.Now()
	err := fn(ctx)
	w.metrics.observeStage(stage, time.Since(start), err)
	return err
}

func (w *worker) emit(onContext ContextHandler, onResult ResultHandler, hint string, r Result) {
	defer func() {
		if rec := recover(); rec != nil {
			w.log.Error("result handler panicked", "seq", r.Sequence, "panic", rec)
		}
	}()
	if onContext != nil {
		onContext(hint)
	}
	if onResult != nil {
		onResult(r)
	}
}
