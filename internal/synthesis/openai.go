package synthesis

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/eleven-am/voice-interpreter/internal/pipeline"
	"github.com/eleven-am/voice-interpreter/internal/shared"
	openai "github.com/sashabaranov/go-openai"
)

var ErrEmptyAudio = errors.New("speech response was empty")

type OpenAISynthesizer struct {
	client *openai.Client
	cfg    Config
	log    *slog.Logger
}

var _ pipeline.Synthesizer = (*OpenAISynthesizer)(nil)

func NewOpenAISynthesizer(cfg Config, log *slog.Logger) *OpenAISynthesizer {
	if log == nil {
		log = slog.Default()
	}
	cfg = cfg.withDefaults()
	return &OpenAISynthesizer{
		client: shared.NewOpenAIClient(cfg.OpenAI),
		cfg:    cfg,
		log:    log.With("component", "synthesizer"),
	}
}

func (s *OpenAISynthesizer) Synthesize(ctx context.Context, text, voice string) (*pipeline.AudioRef, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, shared.NewSynthesisError("speak", errors.New("empty input"))
	}
	if r := []rune(text); len(r) > s.cfg.MaxInputChars {
		text = string(r[:s.cfg.MaxInputChars])
	}
	if voice == "" {
		voice = "alloy"
	}

	var data []byte
	err := shared.Retry(ctx, s.cfg.Backoff, func(ctx context.Context) error {
		resp, err := s.client.CreateSpeech(ctx, openai.CreateSpeechRequest{
			Model:          openai.SpeechModel(s.cfg.Model),
			Input:          text,
			Voice:          openai.SpeechVoice(voice),
			ResponseFormat: openai.SpeechResponseFormat(s.cfg.Format),
			Speed:          s.cfg.Speed,
		})
		if err != nil {
			return err
		}
		defer resp.Close()

		data, err = io.ReadAll(resp)
		return err
	}, shared.IsRetryable)
	if err != nil {
		return nil, shared.NewSynthesisError("speak", fmt.Errorf("openai speech: %w", err))
	}
	if len(data) == 0 {
		return nil, shared.NewSynthesisError("speak", ErrEmptyAudio)
	}

	s.log.Debug("speech synthesized", "voice", voice, "bytes", len(data))
	return &pipeline.AudioRef{
		ID:     shared.NewID("tts_"),
		Data:   data,
		Format: s.cfg.Format,
	}, nil
}
