package transcription

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/eleven-am/voice-interpreter/internal/pipeline"
	"github.com/eleven-am/voice-interpreter/internal/shared"
)

func newTestRecognizer(t *testing.T, handler http.HandlerFunc) *OpenAIRecognizer {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	return NewOpenAIRecognizer(Config{
		OpenAI:  shared.OpenAIConfig{APIKey: "test-key", BaseURL: server.URL + "/v1"},
		Backoff: shared.BackoffConfig{InitialDelay: time.Millisecond, MaxDelay: time.Millisecond, MaxAttempts: 3},
	}, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestOpenAIRecognizer_Recognize(t *testing.T) {
	var gotPrompt, gotModel, gotFormat, gotFile string
	r := newTestRecognizer(t, func(w http.ResponseWriter, req *http.Request) {
		if req.URL.Path != "/v1/audio/transcriptions" {
			t.Errorf("unexpected path %s", req.URL.Path)
		}
		if req.Header.Get("Authorization") != "Bearer test-key" {
			t.Errorf("missing bearer token")
		}
		if err := req.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("parse form: %v", err)
			return
		}
		gotPrompt = req.FormValue("prompt")
		gotModel = req.FormValue("model")
		gotFormat = req.FormValue("response_format")
		if _, hdr, err := req.FormFile("file"); err == nil {
			gotFile = hdr.Filename
		}

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"task":"transcribe","language":"english","duration":1.5,"text":"hello there"}`))
	})

	rec, err := r.Recognize(context.Background(), pipeline.AudioRef{ID: "seg_1", Data: []byte("RIFF"), Format: "wav"}, "previous words")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Text != "hello there" {
		t.Errorf("expected text 'hello there', got %q", rec.Text)
	}
	if rec.Language != "english" {
		t.Errorf("expected language english, got %q", rec.Language)
	}
	if gotPrompt != "previous words" {
		t.Errorf("expected context hint as prompt, got %q", gotPrompt)
	}
	if gotModel != "whisper-1" {
		t.Errorf("expected whisper-1, got %q", gotModel)
	}
	if gotFormat != "verbose_json" {
		t.Errorf("expected verbose_json, got %q", gotFormat)
	}
	if gotFile != "seg_1.wav" {
		t.Errorf("expected file name seg_1.wav, got %q", gotFile)
	}
}

func TestOpenAIRecognizer_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	r := newTestRecognizer(t, func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(`{"error":{"message":"overloaded","type":"server_error"}}`))
			return
		}
		_, _ = w.Write([]byte(`{"text":"ok","language":"german"}`))
	})

	rec, err := r.Recognize(context.Background(), pipeline.AudioRef{Data: []byte("x")}, "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Text != "ok" {
		t.Errorf("expected text ok, got %q", rec.Text)
	}
	if calls.Load() != 3 {
		t.Errorf("expected 3 attempts, got %d", calls.Load())
	}
}

func TestOpenAIRecognizer_ClientErrorNotRetried(t *testing.T) {
	var calls atomic.Int32
	r := newTestRecognizer(t, func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":{"message":"bad audio","type":"invalid_request_error"}}`))
	})

	_, err := r.Recognize(context.Background(), pipeline.AudioRef{Data: []byte("x")}, "")
	var recErr *shared.RecognitionError
	if !errors.As(err, &recErr) {
		t.Fatalf("expected RecognitionError, got %v", err)
	}
	if calls.Load() != 1 {
		t.Errorf("expected 1 attempt, got %d", calls.Load())
	}
}

func TestOpenAIRecognizer_NoAudio(t *testing.T) {
	r := newTestRecognizer(t, func(http.ResponseWriter, *http.Request) {
		t.Error("expected no request")
	})
	_, err := r.Recognize(context.Background(), pipeline.AudioRef{ID: "empty"}, "")
	if !errors.Is(err, ErrNoAudio) {
		t.Errorf("expected ErrNoAudio, got %v", err)
	}
}
