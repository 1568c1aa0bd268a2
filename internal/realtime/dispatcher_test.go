package realtime

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/eleven-am/voice-interpreter/internal/shared"
)

type fakeTranslator struct {
	err  error
	gate chan struct{}
	// release blocks like gate but ignores cancellation.
	release chan struct{}

	mu    sync.Mutex
	calls [][3]string
}

func (f *fakeTranslator) Translate(ctx context.Context, text, source, target string) (string, error) {
	f.mu.Lock()
	f.calls = append(f.calls, [3]string{text, source, target})
	f.mu.Unlock()
	if f.release != nil {
		<-f.release
	}
	if f.gate != nil {
		select {
		case <-f.gate:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	if f.err != nil {
		return "", f.err
	}
	return "en:" + text, nil
}

type dispatchRecorder struct {
	mu           sync.Mutex
	outputs      []string
	translations []string
	transcripts  []string
	errs         []error
}

func (r *dispatchRecorder) handler() TranslationHandler {
	return TranslationHandler{
		OnAgentOutput: func(kind, text string) {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.outputs = append(r.outputs, kind+"|"+text)
		},
		OnTranslation: func(source, text string) {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.translations = append(r.translations, source+"|"+text)
		},
		OnUserTranscript: func(text string) {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.transcripts = append(r.transcripts, text)
		},
		OnError: func(err error) {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.errs = append(r.errs, err)
		},
	}
}

func mustEvent(t *testing.T, data string) Event {
	t.Helper()
	ev, err := ParseEvent([]byte(data))
	if err != nil {
		t.Fatalf("parse %s: %v", data, err)
	}
	return ev
}

func TestDispatcher_AgentOutput(t *testing.T) {
	rec := &dispatchRecorder{}
	d := NewDispatcher(rec.handler(), nil, DispatcherConfig{}, testLogger())
	defer d.Close()

	d.Dispatch(mustEvent(t, `{"type":"response.audio_transcript.delta","delta":"Hal"}`))
	d.Dispatch(mustEvent(t, `{"type":"response.audio_transcript.done","transcript":"Hallo Welt"}`))
	d.Dispatch(mustEvent(t, `{"type":"response.text.done","text":"Guten Tag"}`))
	d.Dispatch(mustEvent(t, `{"type":"response.text.done","text":"   "}`))

	want := []string{"audio|Hallo Welt", "text|Guten Tag"}
	if len(rec.outputs) != len(want) {
		t.Fatalf("expected %v, got %v", want, rec.outputs)
	}
	for i := range want {
		if rec.outputs[i] != want[i] {
			t.Errorf("expected %s, got %s", want[i], rec.outputs[i])
		}
	}
}

func TestDispatcher_ToolCall(t *testing.T) {
	rec := &dispatchRecorder{}
	d := NewDispatcher(rec.handler(), nil, DispatcherConfig{}, testLogger())
	defer d.Close()

	d.Dispatch(mustEvent(t, `{"type":"response.function_call_arguments.done","name":"print_translation","arguments":"{\"english_text\":\"Good morning\"}"}`))

	if len(rec.translations) != 1 || rec.translations[0] != "tool|Good morning" {
		t.Errorf("expected tool translation, got %v", rec.translations)
	}
}

func TestDispatcher_MalformedToolArgumentsDropped(t *testing.T) {
	rec := &dispatchRecorder{}
	d := NewDispatcher(rec.handler(), nil, DispatcherConfig{}, testLogger())
	defer d.Close()

	d.Dispatch(mustEvent(t, `{"type":"response.function_call_arguments.done","arguments":"{\"english_text\":"}`))
	d.Dispatch(mustEvent(t, `{"type":"response.function_call_arguments.done","arguments":42}`))

	if len(rec.translations) != 0 {
		t.Errorf("expected no translations, got %v", rec.translations)
	}
	if len(rec.errs) != 0 {
		t.Errorf("expected malformed events to be dropped silently, got %v", rec.errs)
	}
}

func TestDispatcher_UserTranscriptTriggersFallback(t *testing.T) {
	rec := &dispatchRecorder{}
	tr := &fakeTranslator{}
	d := NewDispatcher(rec.handler(), tr, DispatcherConfig{}, testLogger())
	defer d.Close()

	d.Dispatch(mustEvent(t, `{"type":"conversation.item.input_audio_transcription.completed","transcript":" Guten Morgen "}`))
	d.Wait()

	if len(rec.transcripts) != 1 || rec.transcripts[0] != "Guten Morgen" {
		t.Errorf("expected user transcript, got %v", rec.transcripts)
	}
	if len(tr.calls) != 1 || tr.calls[0] != [3]string{"Guten Morgen", "Auto", "English"} {
		t.Errorf("unexpected translator calls %v", tr.calls)
	}
	if len(rec.translations) != 1 || rec.translations[0] != "fallback|en:Guten Morgen" {
		t.Errorf("expected fallback translation, got %v", rec.translations)
	}
}

func TestDispatcher_FallbackFailureReported(t *testing.T) {
	rec := &dispatchRecorder{}
	tr := &fakeTranslator{err: errors.New("quota")}
	d := NewDispatcher(rec.handler(), tr, DispatcherConfig{}, testLogger())
	defer d.Close()

	d.Dispatch(mustEvent(t, `{"type":"conversation.item.input_audio_transcription.completed","transcript":"Hallo"}`))
	d.Wait()

	rec.mu.Lock()
	defer rec.mu.Unlock()
	if len(rec.errs) != 1 {
		t.Fatalf("expected 1 error, got %v", rec.errs)
	}
	var trErr *shared.TranslationError
	if !errors.As(rec.errs[0], &trErr) {
		t.Errorf("expected TranslationError, got %v", rec.errs[0])
	}
	if len(rec.translations) != 0 {
		t.Errorf("expected no translation, got %v", rec.translations)
	}
}

func TestDispatcher_CloseAbandonsFallback(t *testing.T) {
	rec := &dispatchRecorder{}
	tr := &fakeTranslator{gate: make(chan struct{})}
	d := NewDispatcher(rec.handler(), tr, DispatcherConfig{}, testLogger())

	d.Dispatch(mustEvent(t, `{"type":"conversation.item.input_audio_transcription.completed","transcript":"Hallo"}`))
	d.Close()

	rec.mu.Lock()
	defer rec.mu.Unlock()
	if len(rec.errs) != 0 || len(rec.translations) != 0 {
		t.Errorf("expected nothing after close, got errs=%v translations=%v", rec.errs, rec.translations)
	}
}

func TestDispatcher_ResetDropsStaleFallback(t *testing.T) {
	rec := &dispatchRecorder{}
	tr := &fakeTranslator{release: make(chan struct{})}
	d := NewDispatcher(rec.handler(), tr, DispatcherConfig{}, testLogger())
	defer d.Close()

	d.Dispatch(mustEvent(t, `{"type":"conversation.item.input_audio_transcription.completed","transcript":"Hallo Welt"}`))
	d.Reset()
	close(tr.release)
	d.Wait()

	rec.mu.Lock()
	if len(rec.translations) != 0 || len(rec.errs) != 0 {
		t.Errorf("expected stale fallback to be dropped, got translations=%v errs=%v", rec.translations, rec.errs)
	}
	rec.mu.Unlock()

	d.Dispatch(mustEvent(t, `{"type":"conversation.item.input_audio_transcription.completed","transcript":"Guten Tag"}`))
	d.Wait()

	rec.mu.Lock()
	defer rec.mu.Unlock()
	if len(rec.translations) != 1 || rec.translations[0] != "fallback|en:Guten Tag" {
		t.Errorf("expected fallback for the current connection, got %v", rec.translations)
	}
}

func TestDispatcher_ErrorEvent(t *testing.T) {
	rec := &dispatchRecorder{}
	d := NewDispatcher(rec.handler(), nil, DispatcherConfig{}, testLogger())
	defer d.Close()

	d.Dispatch(mustEvent(t, `{"type":"error","error":{"type":"invalid_request_error","message":"bad tool"}}`))
	d.Dispatch(mustEvent(t, `{"type":"error"}`))

	if len(rec.errs) != 2 {
		t.Fatalf("expected 2 errors, got %v", rec.errs)
	}
	if rec.errs[0].Error() != "bad tool" {
		t.Errorf("expected 'bad tool', got '%s'", rec.errs[0].Error())
	}
	if rec.errs[1].Error() != EventError {
		t.Errorf("expected fallback message, got '%s'", rec.errs[1].Error())
	}
}

func TestDispatcher_UnknownAndPanics(t *testing.T) {
	d := NewDispatcher(TranslationHandler{
		OnAgentOutput: func(kind, text string) { panic("boom") },
	}, nil, DispatcherConfig{}, testLogger())
	defer d.Close()

	d.Dispatch(mustEvent(t, `{"type":"session.created"}`))
	d.Dispatch(mustEvent(t, `{"type":"response.text.done","text":"x"}`))
}
