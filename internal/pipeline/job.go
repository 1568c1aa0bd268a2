package pipeline

import (
	"context"
	"time"
)

// AudioRef is an opaque handle to a segment's audio. The pipeline passes it
// through to collaborators and never inspects the bytes.
type AudioRef struct {
	ID     string `json:"id"`
	Path   string `json:"path,omitempty"`
	Data   []byte `json:"-"`
	Format string `json:"format,omitempty"`
}

type Job struct {
	Sequence    uint64
	Audio       AudioRef
	ContextHint string

	epoch uint64
}

type Result struct {
	Sequence         uint64    `json:"sequence"`
	OriginalText     string    `json:"original_text"`
	TranslatedText   string    `json:"translated_text"`
	DetectedLanguage string    `json:"detected_language"`
	SynthesizedAudio *AudioRef `json:"synthesized_audio,omitempty"`
	Timestamp        string    `json:"timestamp"`
}

type Recognition struct {
	Text     string
	Language string
}

type Recognizer interface {
	Recognize(ctx context.Context, audio AudioRef, contextHint string) (Recognition, error)
}

type Translator interface {
	Translate(ctx context.Context, text, source, target string) (string, error)
}

type Synthesizer interface {
	Synthesize(ctx context.Context, text, voice string) (*AudioRef, error)
}

type ResultHandler func(Result)

type ContextHandler func(hint string)

type Stats struct {
	Active       int    `json:"active"`
	Queued       int    `json:"queued"`
	Pending      int    `json:"pending"`
	NextExpected uint64 `json:"next_expected"`
	Submitted    uint64 `json:"submitted"`
	Epoch        uint64 `json:"epoch"`
}

// Processor is the surface shared by the parallel and sequential pipelines.
type Processor interface {
	Submit(audio AudioRef) (uint64, error)
	SetResultHandler(fn ResultHandler)
	SetContextHandler(fn ContextHandler)
	Clear()
	Stats() Stats
	Wait()
	Close()
}

type Config struct {
	Workers            int
	TargetLanguage     string
	TargetLanguageName string
	Voice              string
	Synthesize         bool
	MinTextLength      int
	MaxContextChars    int
	RequestTimeout     time.Duration
}

func (c Config) withDefaults() Config {
	if c.Workers <= 0 {
		c.Workers = 3
	}
	if c.TargetLanguage == "" {
		c.TargetLanguage = "de"
	}
	if c.TargetLanguageName == "" {
		c.TargetLanguageName = "German"
	}
	if c.Voice == "" {
		c.Voice = "alloy"
	}
	if c.MinTextLength <= 0 {
		c.MinTextLength = 2
	}
	if c.MaxContextChars <= 0 {
		c.MaxContextChars = 200
	}
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = 60 * time.Second
	}
	return c
}

type Dependencies struct {
	Recognizer  Recognizer
	Translator  Translator
	Synthesizer Synthesizer
	Metrics     *Metrics
	Clock       func() time.Time
}
