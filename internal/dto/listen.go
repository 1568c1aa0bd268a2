package dto

type ListenStartResponse struct {
	ID     string `json:"id" example:"lst_4f1c"`
	Status string `json:"status" example:"listening"`
	Events string `json:"events" example:"/api/v1/sessions/lst_4f1c/events"`
}

type SegmentResponse struct {
	Sequence uint64 `json:"sequence" example:"3"`
	AudioID  string `json:"audio_id" example:"upl_9a2e"`
}

type AudioWrittenResponse struct {
	Bytes int64 `json:"bytes" example:"32000"`
}

type ResultResponse struct {
	Sequence         uint64 `json:"sequence" example:"0"`
	OriginalText     string `json:"original_text" example:"Guten Morgen"`
	TranslatedText   string `json:"translated_text" example:"Good morning"`
	DetectedLanguage string `json:"detected_language,omitempty" example:"german"`
	AudioID          string `json:"audio_id,omitempty" example:"tts_77b0"`
	Time             string `json:"time" example:"14:07"`
}

type ListenResponse struct {
	ID         string           `json:"id" example:"lst_4f1c"`
	Status     string           `json:"status" example:"processing"`
	Segments   []ResultResponse `json:"segments"`
	Transcript string           `json:"transcript"`
	Summary    string           `json:"summary"`
	Error      string           `json:"error,omitempty"`
	Queued     int              `json:"queued" example:"1"`
	Submitted  uint64           `json:"submitted" example:"4"`
}
