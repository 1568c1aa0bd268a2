package bootstrap

import (
	"log/slog"

	"github.com/eleven-am/voice-interpreter/internal/shared"
	"github.com/eleven-am/voice-interpreter/internal/synthesis"
	"github.com/eleven-am/voice-interpreter/internal/transcription"
	"github.com/eleven-am/voice-interpreter/internal/translation"
	"go.uber.org/fx"
)

func backoff(cfg *Config) shared.BackoffConfig {
	b := shared.DefaultBackoff()
	b.MaxAttempts = cfg.RetryMaxAttempts
	return b
}

func ProvideRecognizer(cfg *Config, openai shared.OpenAIConfig, logger *slog.Logger) *transcription.OpenAIRecognizer {
	return transcription.NewOpenAIRecognizer(transcription.Config{
		OpenAI:  openai,
		Model:   cfg.TranscribeModel,
		Backoff: backoff(cfg),
	}, logger)
}

func ProvideTranslator(cfg *Config, openai shared.OpenAIConfig, logger *slog.Logger) *translation.OpenAIClient {
	return translation.NewOpenAIClient(translation.Config{
		OpenAI:            openai,
		Model:             cfg.TranslateModel,
		SummaryModel:      cfg.SummaryModel,
		SummaryLanguage:   cfg.SummaryLanguage,
		RequestsPerSecond: cfg.TranslateRPS,
		Burst:             int(cfg.TranslateRPS) + 1,
		Backoff:           backoff(cfg),
	}, logger)
}

func ProvideSynthesizer(cfg *Config, openai shared.OpenAIConfig, logger *slog.Logger) *synthesis.OpenAISynthesizer {
	return synthesis.NewOpenAISynthesizer(synthesis.Config{
		OpenAI:  openai,
		Model:   cfg.TTSModel,
		Backoff: backoff(cfg),
	}, logger)
}

var ProvidersModule = fx.Options(
	fx.Provide(
		ProvideRecognizer,
		ProvideTranslator,
		ProvideSynthesizer,
	),
)
