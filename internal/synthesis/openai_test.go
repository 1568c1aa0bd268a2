package synthesis

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/eleven-am/voice-interpreter/internal/shared"
)

func newTestSynthesizer(t *testing.T, handler http.HandlerFunc) *OpenAISynthesizer {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	return NewOpenAISynthesizer(Config{
		OpenAI:  shared.OpenAIConfig{APIKey: "test-key", BaseURL: server.URL + "/v1"},
		Backoff: shared.BackoffConfig{InitialDelay: time.Millisecond, MaxDelay: time.Millisecond, MaxAttempts: 2},
	}, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestSynthesize_ReturnsAudio(t *testing.T) {
	var got map[string]any
	s := newTestSynthesizer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/audio/speech" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		_ = json.NewDecoder(r.Body).Decode(&got)
		w.Header().Set("Content-Type", "audio/mpeg")
		_, _ = w.Write([]byte("ID3fake-mp3"))
	})

	ref, err := s.Synthesize(context.Background(), "Guten Morgen", "onyx")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !bytes.Equal(ref.Data, []byte("ID3fake-mp3")) {
		t.Errorf("unexpected audio %q", ref.Data)
	}
	if ref.Format != "mp3" {
		t.Errorf("expected mp3, got %q", ref.Format)
	}
	if got["voice"] != "onyx" || got["model"] != "tts-1" || got["input"] != "Guten Morgen" {
		t.Errorf("unexpected request %v", got)
	}
}

func TestSynthesize_FailureIsSynthesisError(t *testing.T) {
	var calls atomic.Int32
	s := newTestSynthesizer(t, func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":{"message":"boom","type":"server_error"}}`))
	})

	_, err := s.Synthesize(context.Background(), "Hallo", "alloy")
	var synErr *shared.SynthesisError
	if !errors.As(err, &synErr) {
		t.Fatalf("expected SynthesisError, got %v", err)
	}
	if calls.Load() != 2 {
		t.Errorf("expected 2 attempts, got %d", calls.Load())
	}
}

func TestSynthesize_EmptyInput(t *testing.T) {
	s := newTestSynthesizer(t, func(http.ResponseWriter, *http.Request) {
		t.Error("expected no request")
	})
	if _, err := s.Synthesize(context.Background(), "  ", "alloy"); err == nil {
		t.Error("expected error for empty input")
	}
}
