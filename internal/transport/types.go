package transport

import (
	"encoding/json"
	"fmt"
	"time"
)

type EventType string

const (
	EventSessionStart  EventType = "session_start"
	EventSessionEnd    EventType = "session_end"
	EventStatus        EventType = "status"
	EventResult        EventType = "result"
	EventSummary       EventType = "summary"
	EventLog           EventType = "log"
	EventTranslation   EventType = "translation"
	EventRealtimeState EventType = "realtime_state"
	EventError         EventType = "error"
)

// Event is the envelope fanned out to every stream watching a session.
type Event struct {
	Type      EventType       `json:"type"`
	SessionID string          `json:"session_id"`
	Timestamp time.Time       `json:"timestamp"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

func NewEvent(sessionID string, typ EventType, payload any) (Event, error) {
	ev := Event{
		Type:      typ,
		SessionID: sessionID,
		Timestamp: time.Now().UTC(),
	}
	if payload == nil {
		return ev, nil
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return Event{}, fmt.Errorf("marshal %s payload: %w", typ, err)
	}
	ev.Payload = data
	return ev, nil
}

func (e Event) Decode(v any) error {
	if len(e.Payload) == 0 {
		return fmt.Errorf("%s event has no payload", e.Type)
	}
	return json.Unmarshal(e.Payload, v)
}

type SessionPayload struct {
	Mode string `json:"mode"`
}

type StatusPayload struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

type ResultPayload struct {
	Sequence         uint64 `json:"sequence"`
	Side             string `json:"side,omitempty"`
	OriginalText     string `json:"original_text"`
	TranslatedText   string `json:"translated_text"`
	DetectedLanguage string `json:"detected_language,omitempty"`
	AudioID          string `json:"audio_id,omitempty"`
	Time             string `json:"time"`
}

type SummaryPayload struct {
	Summary string `json:"summary"`
	Final   bool   `json:"final"`
}

type LogKind string

const (
	LogUser   LogKind = "user"
	LogAI     LogKind = "ai"
	LogSystem LogKind = "system"
)

type LogPayload struct {
	Kind LogKind `json:"kind"`
	Text string  `json:"text"`
	Time string  `json:"time"`
}

type TranslationPayload struct {
	Source string `json:"source"`
	Text   string `json:"text"`
}

type StatePayload struct {
	State string `json:"state"`
	Error string `json:"error,omitempty"`
}

type ErrorPayload struct {
	Stage   string `json:"stage,omitempty"`
	Message string `json:"message"`
}
