package voicesession

import (
	"context"
	"errors"
	"testing"

	"github.com/eleven-am/voice-interpreter/internal/realtime"
	"github.com/eleven-am/voice-interpreter/internal/shared"
	"github.com/eleven-am/voice-interpreter/internal/transport"
)

func newTestController(rt *fakeRealtime, pub *recordingPublisher) *RealtimeController {
	return NewRealtimeController(rt, &fakeTranslator{}, realtime.DispatcherConfig{}, Dependencies{Publisher: pub, Clock: fixedClock}, quietLogger())
}

func entryTexts(entries []LogEntry) []string {
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = string(e.Kind) + ":" + e.Text
	}
	return out
}

func TestRealtimeController_Log(t *testing.T) {
	rt := &fakeRealtime{}
	pub := &recordingPublisher{}
	c := newTestController(rt, pub)

	if err := c.Connect(context.Background()); err != nil {
		t.Fatal(err)
	}
	rt.deliver(t, `{"type":"conversation.item.input_audio_transcription.completed","transcript":"Hallo"}`)
	c.dispatcher.Wait()
	rt.deliver(t, `{"type":"response.function_call_arguments.done","arguments":"{\"english_text\":\"Hello\"}"}`)
	c.Disconnect()

	want := []string{
		"system:Session Started",
		"user:Hallo",
		"ai:English:Hallo",
		"ai:Hello",
		"system:Session Ended",
	}
	got := entryTexts(c.Entries())
	if len(got) != len(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("entry %d: expected %q, got %q", i, want[i], got[i])
		}
	}
	if c.Entries()[0].Time != "14:07:09" {
		t.Errorf("unexpected time %s", c.Entries()[0].Time)
	}

	if n := len(pub.ofType(transport.EventLog)); n != len(want) {
		t.Errorf("expected %d log events, got %d", len(want), n)
	}
	if n := len(pub.ofType(transport.EventTranslation)); n != 2 {
		t.Errorf("expected 2 translation events, got %d", n)
	}
	if n := len(pub.ofType(transport.EventRealtimeState)); n != 2 {
		t.Errorf("expected 2 state events, got %d", n)
	}
}

func TestRealtimeController_FallbackFromPreviousConnectionDropped(t *testing.T) {
	rt := &fakeRealtime{}
	pub := &recordingPublisher{}
	tr := &fakeTranslator{release: make(chan struct{})}
	c := NewRealtimeController(rt, tr, realtime.DispatcherConfig{}, Dependencies{Publisher: pub, Clock: fixedClock}, quietLogger())
	defer c.Close()

	if err := c.Connect(context.Background()); err != nil {
		t.Fatal(err)
	}
	rt.deliver(t, `{"type":"conversation.item.input_audio_transcription.completed","transcript":"Hallo Welt"}`)
	c.Disconnect()
	if err := c.Connect(context.Background()); err != nil {
		t.Fatal(err)
	}
	close(tr.release)
	c.dispatcher.Wait()

	if n := len(pub.ofType(transport.EventTranslation)); n != 0 {
		t.Errorf("expected no translation events from the old connection, got %d", n)
	}
	want := []string{
		"system:Session Started",
		"user:Hallo Welt",
		"system:Session Ended",
		"system:Session Started",
	}
	got := entryTexts(c.Entries())
	if len(got) != len(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("entry %d: expected %q, got %q", i, want[i], got[i])
		}
	}
}

func TestRealtimeController_FailedStateLogsError(t *testing.T) {
	rt := &fakeRealtime{}
	c := newTestController(rt, &recordingPublisher{})

	c.onState(realtime.StateFailed, errors.New("credential denied"))
	c.onState(realtime.StateDisconnected, nil)

	got := entryTexts(c.Entries())
	if len(got) != 1 || got[0] != "system:Error: credential denied" {
		t.Errorf("unexpected entries %v", got)
	}
}

func TestRealtimeController_SendText(t *testing.T) {
	rt := &fakeRealtime{}
	c := newTestController(rt, &recordingPublisher{})

	if err := c.SendText("  how are you  "); err != nil {
		t.Fatal(err)
	}
	if len(rt.sent) != 1 || rt.sent[0] != "how are you" {
		t.Errorf("unexpected sent %v", rt.sent)
	}
	if got := entryTexts(c.Entries()); len(got) != 1 || got[0] != "user:how are you" {
		t.Errorf("unexpected entries %v", got)
	}

	if err := c.SendText("   "); err == nil {
		t.Error("expected error for empty text")
	}

	rt.sendErr = shared.ErrNotConnected
	if err := c.SendText("again"); !errors.Is(err, shared.ErrNotConnected) {
		t.Errorf("expected ErrNotConnected, got %v", err)
	}
	if n := len(c.Entries()); n != 1 {
		t.Errorf("expected failed send not to be logged, got %d entries", n)
	}
}

func TestRealtimeController_Media(t *testing.T) {
	rt := &fakeRealtime{}
	c := newTestController(rt, &recordingPublisher{})

	if err := c.WriteAudio([]byte{1, 2}, 960); !errors.Is(err, shared.ErrNotConnected) {
		t.Errorf("expected ErrNotConnected before connect, got %v", err)
	}
	if err := c.CreateResponse(); !errors.Is(err, shared.ErrNotConnected) {
		t.Errorf("expected ErrNotConnected before connect, got %v", err)
	}

	_ = c.Connect(context.Background())
	if err := c.WriteAudio(nil, 960); err == nil {
		t.Error("expected error for empty frame")
	}
	if err := c.WriteAudio([]byte{1, 2}, 960); err != nil {
		t.Fatalf("write audio: %v", err)
	}
	if err := c.CreateResponse(); err != nil {
		t.Fatalf("create response: %v", err)
	}
	if len(rt.frames) != 1 || rt.samples[0] != 960 || rt.prompts != 1 {
		t.Errorf("unexpected media calls frames=%v samples=%v prompts=%d", rt.frames, rt.samples, rt.prompts)
	}
}

func TestRealtimeController_RemoteAudioFanOut(t *testing.T) {
	c := newTestController(&fakeRealtime{}, &recordingPublisher{})

	c.PlayRemoteAudio([]byte{9})

	a, stopA := c.ListenAudio(4)
	b, stopB := c.ListenAudio(1)
	defer stopB()

	frame := []byte{1, 2, 3}
	c.PlayRemoteAudio(frame)
	frame[0] = 7
	c.PlayRemoteAudio([]byte{4})

	if got := <-a; len(got) != 3 || got[0] != 1 {
		t.Errorf("expected copied frame, got %v", got)
	}
	if got := <-a; len(got) != 1 || got[0] != 4 {
		t.Errorf("expected second frame, got %v", got)
	}
	if got := <-b; got[0] != 1 {
		t.Errorf("expected first frame on slow listener, got %v", got)
	}
	select {
	case got := <-b:
		t.Errorf("expected overflow frame to be dropped, got %v", got)
	default:
	}
	if n := c.remote.dropped.Load(); n != 1 {
		t.Errorf("expected 1 dropped frame, got %d", n)
	}

	stopA()
	stopA()
	if _, ok := <-a; ok {
		t.Error("expected channel to be closed after unsubscribe")
	}
	if n := c.remote.listeners(); n != 1 {
		t.Errorf("expected 1 listener, got %d", n)
	}
}

func TestRealtimeController_LogBounded(t *testing.T) {
	c := newTestController(&fakeRealtime{}, &recordingPublisher{})
	for i := 0; i < maxLogEntries+10; i++ {
		c.append(transport.LogSystem, "x")
	}
	if n := len(c.Entries()); n != maxLogEntries {
		t.Errorf("expected %d entries, got %d", maxLogEntries, n)
	}
}
