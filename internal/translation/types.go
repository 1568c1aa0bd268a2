package translation

import (
	"context"

	"github.com/eleven-am/voice-interpreter/internal/shared"
)

type Config struct {
	OpenAI       shared.OpenAIConfig
	Model        string
	SummaryModel string
	// SummaryLanguage is the language summaries are written in.
	SummaryLanguage string
	// RequestsPerSecond caps outbound chat calls; zero disables the limit.
	RequestsPerSecond float64
	Burst             int
	Backoff           shared.BackoffConfig
}

func (c Config) withDefaults() Config {
	if c.Model == "" {
		c.Model = "gpt-4o-mini"
	}
	if c.SummaryModel == "" {
		c.SummaryModel = c.Model
	}
	if c.SummaryLanguage == "" {
		c.SummaryLanguage = "German"
	}
	if c.Burst <= 0 {
		c.Burst = 1
	}
	return c
}

type Translator interface {
	Translate(ctx context.Context, text, source, target string) (string, error)
}

type Summarizer interface {
	Summarize(ctx context.Context, transcript string) (string, error)
}
