package transcription

import "github.com/eleven-am/voice-interpreter/internal/shared"

type Config struct {
	OpenAI   shared.OpenAIConfig
	Model    string
	Language string
	Backoff  shared.BackoffConfig
}

func (c Config) withDefaults() Config {
	if c.Model == "" {
		c.Model = "whisper-1"
	}
	return c
}
