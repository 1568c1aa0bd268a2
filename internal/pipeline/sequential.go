package pipeline

import (
	"context"
	"log/slog"
	"sync"

	"github.com/eleven-am/voice-interpreter/internal/shared"
)

// Sequential processes one job at a time in submission order. The backlog is
// unbounded: if recognition is slower than the segment cadence it grows
// without limit.
type Sequential struct {
	cfg    Config
	worker *worker
	carry  *Carryover
	log    *slog.Logger

	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	closeOnce sync.Once

	mu         sync.Mutex
	backlog    []Job
	processing bool
	running    bool
	nextSeq    uint64
	nextEmit   uint64
	epoch      uint64
	closed     bool
	onResult   ResultHandler
	onContext  ContextHandler

	emitMu sync.Mutex
}

var _ Processor = (*Sequential)(nil)

func NewSequential(cfg Config, deps Dependencies, log *slog.Logger) *Sequential {
	if log == nil {
		log = slog.Default()
	}
	cfg = cfg.withDefaults()
	cfg.Workers = 1
	log = log.With("component", "pipeline", "mode", modeSequential)
	ctx, cancel := context.WithCancel(context.Background())

	return &Sequential{
		cfg:    cfg,
		worker: newWorker(cfg, deps, modeSequential, log),
		carry:  NewCarryover(cfg.MaxContextChars),
		log:    log,
		ctx:    ctx,
		cancel: cancel,
	}
}

func (s *Sequential) SetResultHandler(fn ResultHandler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onResult = fn
}

func (s *Sequential) SetContextHandler(fn ContextHandler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onContext = fn
}

func (s *Sequential) Submit(audio AudioRef) (uint64, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return 0, shared.ErrSessionClosed
	}
	job := Job{
		Sequence:    s.nextSeq,
		Audio:       audio,
		ContextHint: s.carry.Snapshot(),
		epoch:       s.epoch,
	}
	s.nextSeq++
	s.backlog = append(s.backlog, job)
	s.wg.Add(1)
	start := !s.processing
	s.processing = true
	s.mu.Unlock()

	s.worker.metrics.jobSubmitted(modeSequential)
	s.log.Debug("job submitted", "seq", job.Sequence, "backlog", s.queued())

	if start {
		go s.loop()
	}
	return job.Sequence, nil
}

func (s *Sequential) queued() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.backlog)
}

// loop is the only goroutine that runs jobs. Clear leaves the processing
// flag alone, so a second loop is never started while one is alive.
func (s *Sequential) loop() {
	for {
		s.mu.Lock()
		if len(s.backlog) == 0 {
			s.processing = false
			s.mu.Unlock()
			return
		}
		job := s.backlog[0]
		s.backlog[0] = Job{}
		s.backlog = s.backlog[1:]
		s.running = true
		s.mu.Unlock()

		s.worker.metrics.jobsDequeued(modeSequential, 1)
		s.worker.metrics.workerStarted(modeSequential)

		res, out := s.worker.process(s.ctx, job)
		s.complete(job, res, out)

		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
		s.worker.metrics.workerFinished(modeSequential)
		s.wg.Done()
	}
}

func (s *Sequential) complete(job Job, res *Result, out outcome) {
	s.emitMu.Lock()
	defer s.emitMu.Unlock()

	s.mu.Lock()
	stale := job.epoch != s.epoch
	if !stale {
		s.nextEmit = job.Sequence + 1
	}
	onResult, onContext := s.onResult, s.onContext
	s.mu.Unlock()

	if stale {
		s.log.Debug("discarding stale completion", "seq", job.Sequence)
		s.worker.metrics.jobCompleted(modeSequential, outcomeStale)
		return
	}
	s.worker.metrics.jobCompleted(modeSequential, out)

	if res == nil {
		return
	}
	hint := s.carry.Update(res.OriginalText)
	s.worker.emit(onContext, onResult, hint, *res)
}

func (s *Sequential) Clear() {
	s.emitMu.Lock()
	defer s.emitMu.Unlock()

	s.mu.Lock()
	dropped := len(s.backlog)
	s.backlog = nil
	s.nextSeq = 0
	s.nextEmit = 0
	s.epoch++
	epoch := s.epoch
	s.mu.Unlock()

	for i := 0; i < dropped; i++ {
		s.wg.Done()
	}
	s.worker.metrics.jobsDequeued(modeSequential, dropped)
	s.carry.Reset()

	s.log.Info("pipeline cleared", "epoch", epoch, "dropped", dropped)
}

func (s *Sequential) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	active := 0
	if s.running {
		active = 1
	}
	return Stats{
		Active:       active,
		Queued:       len(s.backlog),
		NextExpected: s.nextEmit,
		Submitted:    s.nextSeq,
		Epoch:        s.epoch,
	}
}

func (s *Sequential) ContextHint() string {
	return s.carry.Snapshot()
}

func (s *Sequential) Wait() {
	s.wg.Wait()
}

func (s *Sequential) Close() {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.closed = true
		dropped := len(s.backlog)
		s.backlog = nil
		s.epoch++
		s.mu.Unlock()

		for i := 0; i < dropped; i++ {
			s.wg.Done()
		}
		s.worker.metrics.jobsDequeued(modeSequential, dropped)

		s.cancel()
		s.wg.Wait()
	})
}
