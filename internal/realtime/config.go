package realtime

import "time"

// Config controls how peer connections are built.
type Config struct {
	ICEServers []ICEServerConfig
	PortRange  PortRange
}

type ICEServerConfig struct {
	URLs       []string
	Username   string
	Credential string
}

type PortRange struct {
	Min int
	Max int
}

const (
	DefaultModel            = "gpt-4o-realtime-preview-2024-10-01"
	DefaultDataChannelLabel = "oai-events"
	TranslationToolName     = "print_translation"
)

const defaultInstructions = `You are a Translation Engine.
INPUT: Any language (Chinese, German, etc.)
OUTPUT: Call the tool 'print_translation' with the ENGLISH translation.

You MUST call this tool for every single utterance.
Do not chat. Do not speak. Just call the tool.`

// SessionConfig is posted when a credential is requested and partially
// re-sent as session.update once the data channel opens.
type SessionConfig struct {
	Model                   string         `json:"model"`
	Modalities              []string       `json:"modalities,omitempty"`
	Instructions            string         `json:"instructions,omitempty"`
	Voice                   string         `json:"voice,omitempty"`
	InputAudioTranscription *Transcription `json:"input_audio_transcription,omitempty"`
	Tools                   []Tool         `json:"tools,omitempty"`
	ToolChoice              string         `json:"tool_choice,omitempty"`
	TurnDetection           *TurnDetection `json:"turn_detection,omitempty"`

	DataChannelLabel   string        `json:"-"`
	NegotiationTimeout time.Duration `json:"-"`
}

type Transcription struct {
	Model string `json:"model"`
}

type Tool struct {
	Type        string         `json:"type"`
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Parameters  map[string]any `json:"parameters,omitempty"`
}

type TurnDetection struct {
	Type              string  `json:"type"`
	Threshold         float64 `json:"threshold,omitempty"`
	PrefixPaddingMs   int     `json:"prefix_padding_ms,omitempty"`
	SilenceDurationMs int     `json:"silence_duration_ms,omitempty"`
}

func DefaultSessionConfig() SessionConfig {
	return SessionConfig{
		Model:                   DefaultModel,
		Modalities:              []string{"text", "audio"},
		Instructions:            defaultInstructions,
		Voice:                   "alloy",
		InputAudioTranscription: &Transcription{Model: "whisper-1"},
		Tools: []Tool{{
			Type:        "function",
			Name:        TranslationToolName,
			Description: "Prints the English translation of the user speech.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"english_text": map[string]any{
						"type":        "string",
						"description": "The translated text in English.",
					},
				},
				"required": []string{"english_text"},
			},
		}},
		ToolChoice: "required",
		TurnDetection: &TurnDetection{
			Type:              "server_vad",
			Threshold:         0.5,
			PrefixPaddingMs:   300,
			SilenceDurationMs: 500,
		},
		DataChannelLabel:   DefaultDataChannelLabel,
		NegotiationTimeout: 15 * time.Second,
	}
}

func (c SessionConfig) withDefaults() SessionConfig {
	def := DefaultSessionConfig()
	if c.Model == "" {
		c.Model = def.Model
	}
	if c.Voice == "" {
		c.Voice = def.Voice
	}
	if c.DataChannelLabel == "" {
		c.DataChannelLabel = def.DataChannelLabel
	}
	if c.NegotiationTimeout <= 0 {
		c.NegotiationTimeout = def.NegotiationTimeout
	}
	return c
}
