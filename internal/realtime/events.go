package realtime

import (
	"encoding/json"
	"errors"
)

const (
	EventSessionUpdate          = "session.update"
	EventConversationItemCreate = "conversation.item.create"
	EventResponseCreate         = "response.create"

	EventAudioTranscriptDelta     = "response.audio_transcript.delta"
	EventAudioTranscriptDone      = "response.audio_transcript.done"
	EventTextDone                 = "response.text.done"
	EventFunctionCallArgsDone     = "response.function_call_arguments.done"
	EventInputTranscriptionDone   = "conversation.item.input_audio_transcription.completed"
	EventInputTranscriptionFailed = "conversation.item.input_audio_transcription.failed"
	EventError                    = "error"
)

var ErrMissingType = errors.New("event has no type")

// Event is an inbound control message. Raw holds the full JSON object.
type Event struct {
	Type string          `json:"type"`
	Raw  json.RawMessage `json:"-"`
}

func ParseEvent(data []byte) (Event, error) {
	var head struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return Event{}, err
	}
	if head.Type == "" {
		return Event{}, ErrMissingType
	}
	raw := make(json.RawMessage, len(data))
	copy(raw, data)
	return Event{Type: head.Type, Raw: raw}, nil
}

func (e Event) Decode(v any) error {
	return json.Unmarshal(e.Raw, v)
}

type TranscriptPayload struct {
	ItemID     string `json:"item_id,omitempty"`
	Transcript string `json:"transcript"`
}

type TextPayload struct {
	ResponseID string `json:"response_id,omitempty"`
	Text       string `json:"text"`
}

type FunctionCallArgsPayload struct {
	Name      string `json:"name,omitempty"`
	CallID    string `json:"call_id,omitempty"`
	Arguments string `json:"arguments"`
}

type TranslationArgs struct {
	EnglishText string `json:"english_text"`
}

type ErrorPayload struct {
	Error struct {
		Type    string `json:"type"`
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

type outboundEvent struct {
	Type     string         `json:"type"`
	Session  *sessionUpdate `json:"session,omitempty"`
	Item     *messageItem   `json:"item,omitempty"`
	Response map[string]any `json:"response,omitempty"`
}

type sessionUpdate struct {
	Instructions string `json:"instructions,omitempty"`
	Voice        string `json:"voice,omitempty"`
}

type messageItem struct {
	Type    string        `json:"type"`
	Role    string        `json:"role"`
	Content []itemContent `json:"content"`
}

type itemContent struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

func newSessionUpdate(cfg SessionConfig) outboundEvent {
	return outboundEvent{
		Type:    EventSessionUpdate,
		Session: &sessionUpdate{Instructions: cfg.Instructions, Voice: cfg.Voice},
	}
}

func newUserMessage(text string) outboundEvent {
	return outboundEvent{
		Type: EventConversationItemCreate,
		Item: &messageItem{
			Type:    "message",
			Role:    "user",
			Content: []itemContent{{Type: "input_text", Text: text}},
		},
	}
}

func newResponseCreate() outboundEvent {
	return outboundEvent{Type: EventResponseCreate}
}
