package pipeline

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	modeParallel   = "parallel"
	modeSequential = "sequential"
)

type outcome string

const (
	outcomeResult  outcome = "result"
	outcomeSilence outcome = "silence"
	outcomeFailed  outcome = "failed"
	outcomePanic   outcome = "panic"
	outcomeStale   outcome = "stale"
)

// Metrics is shared by every pipeline in the process. A nil *Metrics is a
// valid no-op.
type Metrics struct {
	submitted    *prometheus.CounterVec
	completed    *prometheus.CounterVec
	active       *prometheus.GaugeVec
	queued       *prometheus.GaugeVec
	stageLatency *prometheus.HistogramVec
	stageErrors  *prometheus.CounterVec
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		submitted: f.NewCounterVec(prometheus.CounterOpts{
			Name: "voice_interpreter_pipeline_jobs_submitted_total",
			Help: "Jobs submitted to a segment pipeline",
		}, []string{"mode"}),
		completed: f.NewCounterVec(prometheus.CounterOpts{
			Name: "voice_interpreter_pipeline_jobs_completed_total",
			Help: "Jobs completed by outcome",
		}, []string{"mode", "outcome"}),
		active: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "voice_interpreter_pipeline_active_workers",
			Help: "Workers currently processing a job",
		}, []string{"mode"}),
		queued: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "voice_interpreter_pipeline_backlog",
			Help: "Jobs waiting for a worker",
		}, []string{"mode"}),
		stageLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "voice_interpreter_pipeline_stage_latency_seconds",
			Help:    "Collaborator call latency per stage",
			Buckets: []float64{0.1, 0.25, 0.5, 1.0, 2.0, 5.0, 10.0, 30.0},
		}, []string{"stage"}),
		stageErrors: f.NewCounterVec(prometheus.CounterOpts{
			Name: "voice_interpreter_pipeline_stage_errors_total",
			Help: "Collaborator call failures per stage",
		}, []string{"stage"}),
	}
}

func (m *Metrics) jobSubmitted(mode string) {
	if m == nil {
		return
	}
	m.submitted.WithLabelValues(mode).Inc()
	m.queued.WithLabelValues(mode).Inc()
}

func (m *Metrics) jobsDequeued(mode string, n int) {
	if m == nil || n == 0 {
		return
	}
	m.queued.WithLabelValues(mode).Sub(float64(n))
}

func (m *Metrics) workerStarted(mode string) {
	if m == nil {
		return
	}
	m.active.WithLabelValues(mode).Inc()
}

func (m *Metrics) workerFinished(mode string) {
	if m == nil {
		return
	}
	m.active.WithLabelValues(mode).Dec()
}

func (m *Metrics) jobCompleted(mode string, o outcome) {
	if m == nil {
		return
	}
	m.completed.WithLabelValues(mode, string(o)).Inc()
}

func (m *Metrics) observeStage(stage string, d time.Duration, err error) {
	if m == nil {
		return
	}
	m.stageLatency.WithLabelValues(stage).Observe(d.Seconds())
	if err != nil {
		m.stageErrors.WithLabelValues(stage).Inc()
	}
}
