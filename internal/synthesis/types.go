package synthesis

import "github.com/eleven-am/voice-interpreter/internal/shared"

type Config struct {
	OpenAI shared.OpenAIConfig
	Model  string
	Format string
	Speed  float64
	// MaxInputChars truncates long input to the provider's limit.
	MaxInputChars int
	Backoff       shared.BackoffConfig
}

func (c Config) withDefaults() Config {
	if c.Model == "" {
		c.Model = "tts-1"
	}
	if c.Format == "" {
		c.Format = "mp3"
	}
	if c.MaxInputChars <= 0 {
		c.MaxInputChars = 4096
	}
	return c
}
