package voicesession

import (
	"sync"
	"sync/atomic"
)

// audioRelay fans remote audio frames out to listeners. Slow listeners lose
// frames instead of stalling the peer's read loop.
type audioRelay struct {
	mu      sync.Mutex
	subs    map[chan []byte]struct{}
	dropped atomic.Uint64
}

func newAudioRelay() *audioRelay {
	return &audioRelay{subs: make(map[chan []byte]struct{})}
}

func (r *audioRelay) publish(frame []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.subs) == 0 {
		return
	}
	data := append([]byte(nil), frame...)
	for ch := range r.subs {
		select {
		case ch <- data:
		default:
			r.dropped.Add(1)
		}
	}
}

func (r *audioRelay) subscribe(buffer int) (<-chan []byte, func()) {
	ch := make(chan []byte, buffer)
	r.mu.Lock()
	r.subs[ch] = struct{}{}
	r.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			r.mu.Lock()
			delete(r.subs, ch)
			r.mu.Unlock()
			close(ch)
		})
	}
}

func (r *audioRelay) listeners() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.subs)
}
