package translation

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/eleven-am/voice-interpreter/internal/shared"
)

type chatRequest struct {
	Model    string `json:"model"`
	Messages []struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"messages"`
}

func chatReply(content string) string {
	b, _ := json.Marshal(map[string]any{
		"id":     "chatcmpl-1",
		"object": "chat.completion",
		"choices": []map[string]any{{
			"index":         0,
			"message":       map[string]string{"role": "assistant", "content": content},
			"finish_reason": "stop",
		}},
	})
	return string(b)
}

func newTestClient(t *testing.T, cfg Config, handler http.HandlerFunc) *OpenAIClient {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	cfg.OpenAI = shared.OpenAIConfig{APIKey: "test-key", BaseURL: server.URL + "/v1"}
	cfg.Backoff = shared.BackoffConfig{InitialDelay: time.Millisecond, MaxDelay: time.Millisecond, MaxAttempts: 3}
	return NewOpenAIClient(cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestTranslate_SendsInterpreterPrompt(t *testing.T) {
	var got chatRequest
	c := newTestClient(t, Config{}, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		_ = json.NewDecoder(r.Body).Decode(&got)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(chatReply("  Guten Morgen  ")))
	})

	out, err := c.Translate(context.Background(), "Good morning", "english", "German")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out != "Guten Morgen" {
		t.Errorf("expected trimmed translation, got %q", out)
	}
	if got.Model != "gpt-4o-mini" {
		t.Errorf("expected gpt-4o-mini, got %q", got.Model)
	}
	if len(got.Messages) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(got.Messages))
	}
	if !strings.Contains(got.Messages[0].Content, "from english to German") {
		t.Errorf("unexpected system prompt %q", got.Messages[0].Content)
	}
	if got.Messages[1].Role != "user" || got.Messages[1].Content != "Good morning" {
		t.Errorf("unexpected user message %+v", got.Messages[1])
	}
}

func TestTranslate_EmptyTextSkipsCall(t *testing.T) {
	c := newTestClient(t, Config{}, func(http.ResponseWriter, *http.Request) {
		t.Error("expected no request")
	})
	out, err := c.Translate(context.Background(), "   ", "", "German")
	if err != nil || out != "" {
		t.Errorf("expected empty result, got %q, %v", out, err)
	}
}

func TestTranslate_RetriesRateLimit(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, Config{}, func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			_, _ = w.Write([]byte(`{"error":{"message":"slow down","type":"rate_limit"}}`))
			return
		}
		_, _ = w.Write([]byte(chatReply("Hallo")))
	})

	out, err := c.Translate(context.Background(), "Hello", "en", "German")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out != "Hallo" || calls.Load() != 2 {
		t.Errorf("expected Hallo after 2 calls, got %q after %d", out, calls.Load())
	}
}

func TestTranslate_EmptyChoices(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, Config{}, func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"x","object":"chat.completion","choices":[]}`))
	})

	_, err := c.Translate(context.Background(), "Hello", "en", "German")
	var trErr *shared.TranslationError
	if !errors.As(err, &trErr) {
		t.Fatalf("expected TranslationError, got %v", err)
	}
	if !errors.Is(err, ErrEmptyCompletion) {
		t.Errorf("expected ErrEmptyCompletion, got %v", err)
	}
	if calls.Load() != 1 {
		t.Errorf("expected 1 call, got %d", calls.Load())
	}
}

func TestSummarize_UsesSummaryModel(t *testing.T) {
	var got chatRequest
	c := newTestClient(t, Config{SummaryModel: "gpt-4o", SummaryLanguage: "German"}, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&got)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(chatReply("- Punkt eins")))
	})

	out, err := c.Summarize(context.Background(), "Ein langer Text über das Wetter.")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out != "- Punkt eins" {
		t.Errorf("unexpected summary %q", out)
	}
	if got.Model != "gpt-4o" {
		t.Errorf("expected gpt-4o, got %q", got.Model)
	}
	if !strings.Contains(got.Messages[0].Content, "German") {
		t.Errorf("expected summary language in prompt, got %q", got.Messages[0].Content)
	}
}

func TestTranslate_RateLimiterHonoursContext(t *testing.T) {
	c := newTestClient(t, Config{RequestsPerSecond: 0.001, Burst: 1}, func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(chatReply("ok")))
	})

	if _, err := c.Translate(context.Background(), "one", "en", "German"); err != nil {
		t.Fatalf("first call: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := c.Translate(ctx, "two", "en", "German"); err == nil {
		t.Error("expected limiter to refuse the second call within the deadline")
	}
}
