package voicesession

import (
	"context"
	"errors"
	"time"

	"github.com/eleven-am/voice-interpreter/internal/pipeline"
	"github.com/eleven-am/voice-interpreter/internal/transport"
)

var (
	ErrUnknownLanguage = errors.New("unknown language")
	ErrUnknownSide     = errors.New("unknown conversation side")
)

type Status string

const (
	StatusReady       Status = "ready"
	StatusListening   Status = "listening"
	StatusProcessing  Status = "processing"
	StatusSummarizing Status = "summarizing"
	StatusStopped     Status = "stopped"
)

type Summarizer interface {
	Summarize(ctx context.Context, transcript string) (string, error)
}

// Dependencies are the collaborators shared by every session the manager
// creates. Publisher may be nil.
type Dependencies struct {
	Recognizer  pipeline.Recognizer
	Translator  pipeline.Translator
	Synthesizer pipeline.Synthesizer
	Summarizer  Summarizer
	Publisher   transport.Publisher
	Metrics     *pipeline.Metrics
	Clock       func() time.Time
}

func (d Dependencies) withDefaults() Dependencies {
	if d.Publisher == nil {
		d.Publisher = transport.Discard
	}
	if d.Clock == nil {
		d.Clock = time.Now
	}
	return d
}

func (d Dependencies) pipelineDeps() pipeline.Dependencies {
	return pipeline.Dependencies{
		Recognizer:  d.Recognizer,
		Translator:  d.Translator,
		Synthesizer: d.Synthesizer,
		Metrics:     d.Metrics,
		Clock:       d.Clock,
	}
}

func resultPayload(r pipeline.Result, side string) transport.ResultPayload {
	p := transport.ResultPayload{
		Sequence:         r.Sequence,
		Side:             side,
		OriginalText:     r.OriginalText,
		TranslatedText:   r.TranslatedText,
		DetectedLanguage: r.DetectedLanguage,
		Time:             r.Timestamp,
	}
	if r.SynthesizedAudio != nil {
		p.AudioID = r.SynthesizedAudio.ID
	}
	return p
}
