package realtime

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var knownEvents = map[string]bool{
	EventAudioTranscriptDelta:     true,
	EventAudioTranscriptDone:      true,
	EventTextDone:                 true,
	EventFunctionCallArgsDone:     true,
	EventInputTranscriptionDone:   true,
	EventInputTranscriptionFailed: true,
	EventError:                    true,
}

var allStates = []State{StateDisconnected, StateAcquiringCredential, StateNegotiating, StateConnected, StateFailed}

// Metrics is optional; a nil *Metrics records nothing.
type Metrics struct {
	connects *prometheus.CounterVec
	state    *prometheus.GaugeVec
	events   *prometheus.CounterVec
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		connects: f.NewCounterVec(prometheus.CounterOpts{
			Name: "voice_interpreter_realtime_connects_total",
			Help: "Realtime connect attempts by outcome",
		}, []string{"outcome"}),
		state: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "voice_interpreter_realtime_state",
			Help: "1 for the current realtime session state",
		}, []string{"state"}),
		events: f.NewCounterVec(prometheus.CounterOpts{
			Name: "voice_interpreter_realtime_events_total",
			Help: "Inbound realtime events by type",
		}, []string{"type"}),
	}
}

func (m *Metrics) connectOutcome(outcome string) {
	if m == nil {
		return
	}
	m.connects.WithLabelValues(outcome).Inc()
}

func (m *Metrics) stateChanged(to State) {
	if m == nil {
		return
	}
	for _, s := range allStates {
		v := 0.0
		if s == to {
			v = 1
		}
		m.state.WithLabelValues(string(s)).Set(v)
	}
}

func (m *Metrics) eventReceived(eventType string) {
	if m == nil {
		return
	}
	if !knownEvents[eventType] {
		eventType = "other"
	}
	m.events.WithLabelValues(eventType).Inc()
}
