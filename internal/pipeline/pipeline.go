package pipeline

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/eleven-am/voice-interpreter/internal/shared"
)

// Pipeline processes jobs on up to Config.Workers goroutines and emits their
// results strictly in submission order.
//
// Handlers run synchronously on a worker goroutine, one at a time. They must
// not call Clear or Close directly.
type Pipeline struct {
	cfg    Config
	worker *worker
	carry  *Carryover
	log    *slog.Logger

	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	closeOnce sync.Once

	mu        sync.Mutex
	backlog   []Job
	active    int
	nextSeq   uint64
	epoch     uint64
	closed    bool
	onResult  ResultHandler
	onContext ContextHandler

	emitMu  sync.Mutex
	seq     *Sequencer
	next    atomic.Uint64
	pending atomic.Int64
}

var _ Processor = (*Pipeline)(nil)

func New(cfg Config, deps Dependencies, log *slog.Logger) *Pipeline {
	if log == nil {
		log = slog.Default()
	}
	cfg = cfg.withDefaults()
	log = log.With("component", "pipeline", "mode", modeParallel)
	ctx, cancel := context.WithCancel(context.Background())

	return &Pipeline{
		cfg:    cfg,
		worker: newWorker(cfg, deps, modeParallel, log),
		carry:  NewCarryover(cfg.MaxContextChars),
		log:    log,
		ctx:    ctx,
		cancel: cancel,
		seq:    NewSequencer(),
	}
}

func (p *Pipeline) SetResultHandler(fn ResultHandler) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onResult = fn
}

func (p *Pipeline) SetContextHandler(fn ContextHandler) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onContext = fn
}

// Submit assigns the next sequence number and queues the job with the
// current carry-over as its hint.
func (p *Pipeline) Submit(audio AudioRef) (uint64, error) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return 0, shared.ErrSessionClosed
	}
	job := Job{
		Sequence:    p.nextSeq,
		Audio:       audio,
		ContextHint: p.carry.Snapshot(),
		epoch:       p.epoch,
	}
	p.nextSeq++
	p.backlog = append(p.backlog, job)
	p.wg.Add(1)
	p.mu.Unlock()

	p.worker.metrics.jobSubmitted(modeParallel)
	p.log.Debug("job submitted", "seq", job.Sequence, "epoch", job.epoch)

	p.dispatch()
	return job.Sequence, nil
}

func (p *Pipeline) dispatch() {
	p.mu.Lock()
	var ready []Job
	for p.active < p.cfg.Workers && len(p.backlog) > 0 {
		job := p.backlog[0]
		p.backlog[0] = Job{}
		p.backlog = p.backlog[1:]
		p.active++
		ready = append(ready, job)
	}
	p.mu.Unlock()

	p.worker.metrics.jobsDequeued(modeParallel, len(ready))
	for _, job := range ready {
		p.worker.metrics.workerStarted(modeParallel)
		go p.run(job)
	}
}

func (p *Pipeline) run(job Job) {
	defer p.wg.Done()

	res, out := p.worker.process(p.ctx, job)
	p.complete(job, res, out)

	p.mu.Lock()
	p.active--
	p.mu.Unlock()
	p.worker.metrics.workerFinished(modeParallel)

	p.dispatch()
}

func (p *Pipeline) complete(job Job, res *Result, out outcome) {
	p.emitMu.Lock()
	defer p.emitMu.Unlock()

	p.mu.Lock()
	current := p.epoch
	onResult, onContext := p.onResult, p.onContext
	p.mu.Unlock()

	if job.epoch != current {
		p.log.Debug("discarding stale completion", "seq", job.Sequence, "epoch", job.epoch, "current_epoch", current)
		p.worker.metrics.jobCompleted(modeParallel, outcomeStale)
		return
	}
	p.worker.metrics.jobCompleted(modeParallel, out)

	emitted := p.seq.Complete(job.Sequence, res)
	p.next.Store(p.seq.Next())
	p.pending.Store(int64(p.seq.Pending()))

	for _, r := range emitted {
		hint := p.carry.Update(r.OriginalText)
		p.worker.emit(onContext, onResult, hint, r)
	}
}

// Clear drops queued jobs and ordering state. Jobs already running finish,
// but their results are discarded.
func (p *Pipeline) Clear() {
	p.emitMu.Lock()
	defer p.emitMu.Unlock()

	p.mu.Lock()
	dropped := len(p.backlog)
	p.backlog = nil
	p.nextSeq = 0
	p.epoch++
	epoch := p.epoch
	p.mu.Unlock()

	for i := 0; i < dropped; i++ {
		p.wg.Done()
	}
	p.worker.metrics.jobsDequeued(modeParallel, dropped)

	p.seq.Reset()
	p.next.Store(0)
	p.pending.Store(0)
	p.carry.Reset()

	p.log.Info("pipeline cleared", "epoch", epoch, "dropped", dropped)
}

func (p *Pipeline) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return Stats{
		Active:       p.active,
		Queued:       len(p.backlog),
		Pending:      int(p.pending.Load()),
		NextExpected: p.next.Load(),
		Submitted:    p.nextSeq,
		Epoch:        p.epoch,
	}
}

// ContextHint returns the hint the next submitted job would carry.
func (p *Pipeline) ContextHint() string {
	return p.carry.Snapshot()
}

// Wait blocks until every submitted job has completed or been dropped.
func (p *Pipeline) Wait() {
	p.wg.Wait()
}

// Close rejects further submissions, drops the backlog, cancels in-flight
// collaborator calls and waits for the workers to exit.
func (p *Pipeline) Close() {
	p.closeOnce.Do(func() {
		p.mu.Lock()
		p.closed = true
		dropped := len(p.backlog)
		p.backlog = nil
		p.epoch++
		p.mu.Unlock()

		for i := 0; i < dropped; i++ {
			p.wg.Done()
		}
		p.worker.metrics.jobsDequeued(modeParallel, dropped)

		p.cancel()
		p.wg.Wait()
		p.log.Debug("pipeline closed", "dropped", dropped)
	})
}
