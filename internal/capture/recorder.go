package capture

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"

	"github.com/eleven-am/voice-interpreter/internal/audio"
	"github.com/eleven-am/voice-interpreter/internal/pipeline"
	"github.com/eleven-am/voice-interpreter/internal/shared"
)

var (
	ErrAlreadyRecording = errors.New("recorder already started")
	ErrNotRecording     = errors.New("recorder not started")
	ErrEmptySegment     = errors.New("no audio captured")
	ErrSourceClosed     = errors.New("audio source closed")
)

// Recorder is a capture device that can be started and stopped repeatedly.
// Each Stop returns the audio captured since the matching Start.
type Recorder interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) (pipeline.AudioRef, error)
}

// endNotifier is implemented by recorders whose input can run out.
type endNotifier interface {
	Done() <-chan struct{}
}

type StreamConfig struct {
	Input  audio.Format
	Output audio.Format
}

// StreamRecorder captures raw PCM16 from an io.Reader such as a pipe from
// ffmpeg, stdin, or an HTTP request body.
type StreamRecorder struct {
	src io.Reader
	cfg StreamConfig
	log *slog.Logger

	readOnce sync.Once
	done     chan struct{}

	mu        sync.Mutex
	buf       bytes.Buffer
	recording bool
	readErr   error

	// frame is the size of one interleaved sample frame in bytes. phase is
	// the stream position modulo frame. tail holds a partial frame cut off by
	// Stop; skip counts bytes to discard before the next frame boundary.
	frame int
	phase int
	tail  []byte
	skip  int
}

func NewStreamRecorder(src io.Reader, cfg StreamConfig, log *slog.Logger) *StreamRecorder {
	if log == nil {
		log = slog.Default()
	}
	if cfg.Input.SampleRate == 0 {
		cfg.Input = audio.DefaultFormat()
	}
	if cfg.Input.Channels < 1 {
		cfg.Input.Channels = 1
	}
	if cfg.Output.SampleRate == 0 {
		cfg.Output = cfg.Input
	}
	if cfg.Output.Channels < 1 {
		cfg.Output.Channels = 1
	}
	return &StreamRecorder{
		src:   src,
		cfg:   cfg,
		log:   log.With("component", "stream_recorder"),
		done:  make(chan struct{}),
		frame: 2 * cfg.Input.Channels,
	}
}

func (r *StreamRecorder) Start(_ context.Context) error {
	select {
	case <-r.done:
		return ErrSourceClosed
	default:
	}

	r.mu.Lock()
	if r.recording {
		r.mu.Unlock()
		return ErrAlreadyRecording
	}
	r.recording = true
	r.buf.Reset()
	if len(r.tail) > 0 {
		r.buf.Write(r.tail)
		r.skip = 0
	} else {
		r.skip = (r.frame - r.phase) % r.frame
	}
	r.tail = nil
	r.mu.Unlock()

	r.readOnce.Do(func() { go r.readLoop() })
	return nil
}

func (r *StreamRecorder) Stop(_ context.Context) (pipeline.AudioRef, error) {
	r.mu.Lock()
	if !r.recording {
		r.mu.Unlock()
		return pipeline.AudioRef{}, ErrNotRecording
	}
	r.recording = false
	data := r.buf.Bytes()
	cut := len(data) - len(data)%r.frame
	pcm := append([]byte(nil), data[:cut]...)
	r.tail = append([]byte(nil), data[cut:]...)
	r.buf.Reset()
	r.mu.Unlock()

	if len(pcm) == 0 {
		return pipeline.AudioRef{}, ErrEmptySegment
	}

	out := r.cfg.Output
	if r.cfg.Input.Channels > 1 {
		if out.Channels == 1 {
			pcm = audio.DownmixPCM16(pcm, r.cfg.Input.Channels)
		} else {
			out = r.cfg.Input
		}
	}
	if out.Channels == 1 && r.cfg.Input.SampleRate != out.SampleRate {
		pcm = audio.ResamplePCM16(pcm, r.cfg.Input.SampleRate, out.SampleRate)
	}

	return pipeline.AudioRef{
		ID:     shared.NewID("seg_"),
		Data:   audio.EncodeWAV(pcm, out),
		Format: "wav",
	}, nil
}

// Done is closed once the underlying reader is exhausted.
func (r *StreamRecorder) Done() <-chan struct{} {
	return r.done
}

func (r *StreamRecorder) Err() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.readErr
}

func (r *StreamRecorder) readLoop() {
	defer close(r.done)

	chunk := make([]byte, 4096)
	for {
		n, err := r.src.Read(chunk)
		if n > 0 {
			r.mu.Lock()
			r.accept(chunk[:n])
			r.mu.Unlock()
		}
		if err != nil {
			if !errors.Is(err, io.EOF) {
				r.mu.Lock()
				r.readErr = err
				r.mu.Unlock()
				r.log.Warn("audio source read failed", "error", err)
			}
			return
		}
	}
}

// accept buffers data read from the source. Audio arriving while stopped is
// dropped, and the next segment then starts on a frame boundary.
func (r *StreamRecorder) accept(data []byte) {
	r.phase = (r.phase + len(data)) % r.frame
	if !r.recording {
		r.tail = nil
		return
	}
	if r.skip > 0 {
		k := min(r.skip, len(data))
		r.skip -= k
		data = data[k:]
	}
	r.buf.Write(data)
}
