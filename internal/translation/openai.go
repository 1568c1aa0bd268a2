package translation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/eleven-am/voice-interpreter/internal/pipeline"
	"github.com/eleven-am/voice-interpreter/internal/shared"
	openai "github.com/sashabaranov/go-openai"
	"golang.org/x/time/rate"
)

var ErrEmptyCompletion = errors.New("completion returned no content")

// OpenAIClient translates and summarizes through chat completions.
type OpenAIClient struct {
	client  *openai.Client
	cfg     Config
	limiter *rate.Limiter
	log     *slog.Logger
}

var (
	_ pipeline.Translator = (*OpenAIClient)(nil)
	_ Summarizer          = (*OpenAIClient)(nil)
)

func NewOpenAIClient(cfg Config, log *slog.Logger) *OpenAIClient {
	if log == nil {
		log = slog.Default()
	}
	cfg = cfg.withDefaults()

	limit := rate.Inf
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
	}
	return &OpenAIClient{
		client:  shared.NewOpenAIClient(cfg.OpenAI),
		cfg:     cfg,
		limiter: rate.NewLimiter(limit, cfg.Burst),
		log:     log.With("component", "translator"),
	}
}

func (c *OpenAIClient) Translate(ctx context.Context, text, source, target string) (string, error) {
	if strings.TrimSpace(text) == "" {
		return "", nil
	}
	if source == "" {
		source = "Auto"
	}

	system := fmt.Sprintf("You are a professional interpreter. Translate the following text from %s to %s. Output ONLY the translation, nothing else.", source, target)
	out, err := c.complete(ctx, c.cfg.Model, system, text)
	if err != nil {
		return "", shared.NewTranslationError("translate", err)
	}
	return out, nil
}

func (c *OpenAIClient) Summarize(ctx context.Context, transcript string) (string, error) {
	system := fmt.Sprintf("You summarize live interpreted transcripts. Write a concise summary in %s as short bullet points covering the key topics, decisions and open questions. Output ONLY the summary.", c.cfg.SummaryLanguage)
	out, err := c.complete(ctx, c.cfg.SummaryModel, system, transcript)
	if err != nil {
		return "", shared.NewTranslationError("summarize", err)
	}
	return out, nil
}

func (c *OpenAIClient) complete(ctx context.Context, model, system, user string) (string, error) {
	var content string
	err := shared.Retry(ctx, c.cfg.Backoff, func(ctx context.Context) error {
		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}

		resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
			Model: model,
			Messages: []openai.ChatCompletionMessage{
				{Role: openai.ChatMessageRoleSystem, Content: system},
				{Role: openai.ChatMessageRoleUser, Content: user},
			},
		})
		if err != nil {
			c.log.Debug("chat completion attempt failed", "model", model, "error", err)
			return fmt.Errorf("OpenAI API error: %w", err)
		}
		if len(resp.Choices) == 0 {
			return ErrEmptyCompletion
		}
		content = strings.TrimSpace(resp.Choices[0].Message.Content)
		return nil
	}, func(err error) bool {
		return !errors.Is(err, ErrEmptyCompletion) && shared.IsRetryable(err)
	})
	return content, err
}
