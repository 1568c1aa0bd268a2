package transcription

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/eleven-am/voice-interpreter/internal/pipeline"
	"github.com/eleven-am/voice-interpreter/internal/shared"
	openai "github.com/sashabaranov/go-openai"
)

var ErrNoAudio = errors.New("audio reference has neither data nor path")

// OpenAIRecognizer transcribes segments with the audio transcriptions API.
type OpenAIRecognizer struct {
	client *openai.Client
	cfg    Config
	log    *slog.Logger
}

var _ pipeline.Recognizer = (*OpenAIRecognizer)(nil)

func NewOpenAIRecognizer(cfg Config, log *slog.Logger) *OpenAIRecognizer {
	if log == nil {
		log = slog.Default()
	}
	cfg = cfg.withDefaults()
	return &OpenAIRecognizer{
		client: shared.NewOpenAIClient(cfg.OpenAI),
		cfg:    cfg,
		log:    log.With("component", "recognizer"),
	}
}

func (r *OpenAIRecognizer) Recognize(ctx context.Context, audio pipeline.AudioRef, contextHint string) (pipeline.Recognition, error) {
	if len(audio.Data) == 0 && audio.Path == "" {
		return pipeline.Recognition{}, shared.NewRecognitionError("transcribe", ErrNoAudio)
	}

	var resp openai.AudioResponse
	err := shared.Retry(ctx, r.cfg.Backoff, func(ctx context.Context) error {
		req := openai.AudioRequest{
			Model:    r.cfg.Model,
			FilePath: audio.Path,
			Prompt:   contextHint,
			Language: r.cfg.Language,
			Format:   openai.AudioResponseFormatVerboseJSON,
		}
		if len(audio.Data) > 0 {
			req.Reader = bytes.NewReader(audio.Data)
			req.FilePath = fileName(audio)
		}

		var err error
		resp, err = r.client.CreateTranscription(ctx, req)
		if err != nil {
			r.log.Debug("transcription attempt failed", "audio_id", audio.ID, "error", err)
		}
		return err
	}, shared.IsRetryable)
	if err != nil {
		return pipeline.Recognition{}, shared.NewRecognitionError("transcribe", fmt.Errorf("openai transcription: %w", err))
	}

	return pipeline.Recognition{Text: resp.Text, Language: resp.Language}, nil
}

func fileName(audio pipeline.AudioRef) string {
	ext := audio.Format
	if ext == "" {
		ext = "wav"
	}
	name := audio.ID
	if name == "" {
		name = "segment"
	}
	return name + "." + ext
}
