package gateway

import (
	"errors"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"strings"

	"github.com/eleven-am/voice-interpreter/internal/audio"
	"github.com/eleven-am/voice-interpreter/internal/dto"
	"github.com/eleven-am/voice-interpreter/internal/pipeline"
	"github.com/eleven-am/voice-interpreter/internal/shared"
	"github.com/eleven-am/voice-interpreter/internal/voicesession"
	"github.com/labstack/echo/v4"
)

const defaultMaxUpload = 25 << 20

type Handler struct {
	manager   *voicesession.Manager
	maxUpload int64
	logger    *slog.Logger
}

func NewHandler(manager *voicesession.Manager, maxUpload int64, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	if maxUpload <= 0 {
		maxUpload = defaultMaxUpload
	}
	return &Handler{
		manager:   manager,
		maxUpload: maxUpload,
		logger:    logger.With("component", "api_handler"),
	}
}

func (h *Handler) RegisterRoutes(g *echo.Group) {
	g.GET("/languages", h.ListLanguages)

	g.POST("/listen", h.StartListen)
	g.GET("/listen/:id", h.GetListen)
	g.DELETE("/listen/:id", h.StopListen)
	g.POST("/listen/:id/audio", h.StreamListenAudio)
	g.POST("/listen/:id/segments", h.SubmitListenSegment)
	g.POST("/listen/:id/clear", h.ClearListen)

	g.POST("/conversations", h.StartConversation)
	g.GET("/conversations/:id", h.GetConversation)
	g.DELETE("/conversations/:id", h.EndConversation)
	g.POST("/conversations/:id/:side/segments", h.SubmitConversationSegment)
	g.GET("/conversations/:id/audio/:audio_id", h.GetConversationAudio)

	g.POST("/realtime/connect", h.ConnectRealtime)
	g.POST("/realtime/disconnect", h.DisconnectRealtime)
	g.POST("/realtime/text", h.SendRealtimeText)
	g.POST("/realtime/response", h.CreateRealtimeResponse)
	g.GET("/realtime/audio", h.StreamRealtimeAudio)
	g.GET("/realtime/state", h.GetRealtimeState)
}

func (h *Handler) ListLanguages(c echo.Context) error {
	langs := shared.Languages()
	out := dto.LanguageListResponse{Languages: make([]dto.LanguageResponse, 0, len(langs))}
	for _, l := range langs {
		out.Languages = append(out.Languages, toLanguageResponse(l))
	}
	return c.JSON(http.StatusOK, out)
}

func (h *Handler) StartListen(c echo.Context) error {
	s, err := h.manager.StartListen()
	if err != nil {
		return shared.HTTPFromError(err)
	}
	return c.JSON(http.StatusCreated, dto.ListenStartResponse{
		ID:     s.ID(),
		Status: string(s.Status()),
		Events: "/api/v1/sessions/" + s.ID() + "/events",
	})
}

func (h *Handler) GetListen(c echo.Context) error {
	s, err := h.manager.Listen(c.Param("id"))
	if err != nil {
		return shared.HTTPFromError(err)
	}
	return c.JSON(http.StatusOK, toListenResponse(s.Snapshot()))
}

func (h *Handler) StopListen(c echo.Context) error {
	s, err := h.manager.StopListen(c.Request().Context(), c.Param("id"))
	if err != nil {
		return shared.HTTPFromError(err)
	}
	return c.JSON(http.StatusOK, toListenResponse(s.Snapshot()))
}

// StreamListenAudio copies raw PCM16 from the request body into capture.
func (h *Handler) StreamListenAudio(c echo.Context) error {
	s, err := h.manager.Listen(c.Param("id"))
	if err != nil {
		return shared.HTTPFromError(err)
	}

	n, err := io.Copy(s, c.Request().Body)
	if err != nil {
		if errors.Is(err, shared.ErrSessionClosed) {
			return shared.HTTPFromError(err)
		}
		h.logger.Warn("audio stream interrupted", "session_id", s.ID(), "bytes", n, "error", err)
	}
	return c.JSON(http.StatusOK, dto.AudioWrittenResponse{Bytes: n})
}

func (h *Handler) SubmitListenSegment(c echo.Context) error {
	s, err := h.manager.Listen(c.Param("id"))
	if err != nil {
		return shared.HTTPFromError(err)
	}

	ref, err := h.readSegment(c)
	if err != nil {
		return err
	}
	seq, err := s.Submit(ref)
	if err != nil {
		return shared.HTTPFromError(err)
	}
	return c.JSON(http.StatusAccepted, dto.SegmentResponse{Sequence: seq, AudioID: ref.ID})
}

func (h *Handler) ClearListen(c echo.Context) error {
	s, err := h.manager.Listen(c.Param("id"))
	if err != nil {
		return shared.HTTPFromError(err)
	}
	s.ClearTranscript()
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) StartConversation(c echo.Context) error {
	var req dto.StartConversationRequest
	if err := c.Bind(&req); err != nil {
		return shared.BadRequest("invalid_request", "invalid request body")
	}
	if req.UserLanguage == "" || req.PartnerLanguage == "" {
		return shared.BadRequest("invalid_request", "user_language and partner_language are required")
	}

	conv, err := h.manager.StartConversation(req.UserLanguage, req.PartnerLanguage)
	if err != nil {
		if errors.Is(err, voicesession.ErrUnknownLanguage) {
			return shared.BadRequest("unknown_language", err.Error())
		}
		return shared.HTTPFromError(err)
	}
	return c.JSON(http.StatusCreated, toConversationResponse(conv.Snapshot()))
}

func (h *Handler) GetConversation(c echo.Context) error {
	conv, err := h.manager.Conversation(c.Param("id"))
	if err != nil {
		return shared.HTTPFromError(err)
	}
	return c.JSON(http.StatusOK, toConversationResponse(conv.Snapshot()))
}

func (h *Handler) EndConversation(c echo.Context) error {
	if err := h.manager.EndConversation(c.Param("id")); err != nil {
		return shared.HTTPFromError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) SubmitConversationSegment(c echo.Context) error {
	side, err := voicesession.ParseSide(c.Param("side"))
	if err != nil {
		return shared.BadRequest("unknown_side", err.Error())
	}
	conv, err := h.manager.Conversation(c.Param("id"))
	if err != nil {
		return shared.HTTPFromError(err)
	}

	ref, err := h.readSegment(c)
	if err != nil {
		return err
	}
	seq, err := conv.Submit(side, ref)
	if err != nil {
		return shared.HTTPFromError(err)
	}
	return c.JSON(http.StatusAccepted, dto.SegmentResponse{Sequence: seq, AudioID: ref.ID})
}

func (h *Handler) GetConversationAudio(c echo.Context) error {
	conv, err := h.manager.Conversation(c.Param("id"))
	if err != nil {
		return shared.HTTPFromError(err)
	}
	ref, ok := conv.Audio(c.Param("audio_id"))
	if !ok {
		return shared.NotFound("not_found", "audio not found")
	}
	return c.Blob(http.StatusOK, contentTypeFor(ref.Format), ref.Data)
}

func (h *Handler) ConnectRealtime(c echo.Context) error {
	if err := h.manager.ConnectRealtime(c.Request().Context()); err != nil {
		return shared.HTTPFromError(err)
	}
	return h.GetRealtimeState(c)
}

func (h *Handler) DisconnectRealtime(c echo.Context) error {
	if err := h.manager.DisconnectRealtime(); err != nil {
		return shared.HTTPFromError(err)
	}
	return h.GetRealtimeState(c)
}

func (h *Handler) SendRealtimeText(c echo.Context) error {
	var req dto.RealtimeTextRequest
	if err := c.Bind(&req); err != nil {
		return shared.BadRequest("invalid_request", "invalid request body")
	}
	if strings.TrimSpace(req.Text) == "" {
		return shared.BadRequest("invalid_request", "text is required")
	}

	rt, err := h.manager.Realtime()
	if err != nil {
		return shared.HTTPFromError(err)
	}
	if err := rt.SendText(req.Text); err != nil {
		return shared.HTTPFromError(err)
	}
	return c.NoContent(http.StatusAccepted)
}

func (h *Handler) CreateRealtimeResponse(c echo.Context) error {
	rt, err := h.manager.Realtime()
	if err != nil {
		return shared.HTTPFromError(err)
	}
	if err := rt.CreateResponse(); err != nil {
		return shared.HTTPFromError(err)
	}
	return c.NoContent(http.StatusAccepted)
}

func (h *Handler) GetRealtimeState(c echo.Context) error {
	rt, err := h.manager.Realtime()
	if err != nil {
		return shared.HTTPFromError(err)
	}

	entries := rt.Entries()
	resp := dto.RealtimeStateResponse{
		ID:     rt.ID(),
		State:  string(rt.State()),
		Active: rt.Active(),
		Log:    make([]dto.RealtimeLogEntry, 0, len(entries)),
	}
	for _, e := range entries {
		resp.Log = append(resp.Log, dto.RealtimeLogEntry{Kind: string(e.Kind), Text: e.Text, Time: e.Time})
	}
	return c.JSON(http.StatusOK, resp)
}

// readSegment reads one uploaded segment. Raw PCM16 bodies are wrapped as WAV.
func (h *Handler) readSegment(c echo.Context) (pipeline.AudioRef, error) {
	data, err := io.ReadAll(io.LimitReader(c.Request().Body, h.maxUpload+1))
	if err != nil {
		return pipeline.AudioRef{}, shared.BadRequest("invalid_audio", "failed to read body")
	}
	if len(data) == 0 {
		return pipeline.AudioRef{}, shared.BadRequest("invalid_audio", "empty body")
	}
	if int64(len(data)) > h.maxUpload {
		return pipeline.AudioRef{}, shared.NewAPIError("too_large", "segment exceeds upload limit").ToHTTP(http.StatusRequestEntityTooLarge)
	}

	format := formatFor(c.Request().Header.Get(echo.HeaderContentType))
	switch format {
	case "pcm":
		data = audio.EncodeWAV(data, audio.DefaultFormat())
		format = "wav"
	case "wav":
		if _, _, err := audio.DecodeWAV(data); err != nil {
			return pipeline.AudioRef{}, shared.BadRequest("invalid_audio", err.Error())
		}
	}

	return pipeline.AudioRef{ID: shared.NewID("upl_"), Data: data, Format: format}, nil
}

func formatFor(contentType string) string {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return "wav"
	}
	switch mediaType {
	case "audio/mpeg", "audio/mp3":
		return "mp3"
	case "audio/webm":
		return "webm"
	case "audio/ogg":
		return "ogg"
	case "audio/mp4", "audio/m4a", "audio/x-m4a":
		return "m4a"
	case "audio/l16", "application/octet-stream":
		return "pcm"
	}
	return "wav"
}

func contentTypeFor(format string) string {
	switch format {
	case "mp3":
		return "audio/mpeg"
	case "wav":
		return "audio/wav"
	case "opus", "ogg":
		return "audio/ogg"
	case "aac":
		return "audio/aac"
	case "flac":
		return "audio/flac"
	}
	return echo.MIMEOctetStream
}

func toLanguageResponse(l shared.Language) dto.LanguageResponse {
	return dto.LanguageResponse{Code: l.Code, Name: l.Name, Voice: l.Voice}
}

func toResultResponse(r pipeline.Result) dto.ResultResponse {
	out := dto.ResultResponse{
		Sequence:         r.Sequence,
		OriginalText:     r.OriginalText,
		TranslatedText:   r.TranslatedText,
		DetectedLanguage: r.DetectedLanguage,
		Time:             r.Timestamp,
	}
	if r.SynthesizedAudio != nil {
		out.AudioID = r.SynthesizedAudio.ID
	}
	return out
}

func toListenResponse(s voicesession.ListenSnapshot) dto.ListenResponse {
	out := dto.ListenResponse{
		ID:         s.ID,
		Status:     string(s.Status),
		Segments:   make([]dto.ResultResponse, 0, len(s.Segments)),
		Transcript: s.Transcript,
		Summary:    s.Summary,
		Error:      s.Error,
		Queued:     s.Stats.Queued,
		Submitted:  s.Stats.Submitted,
	}
	for _, r := range s.Segments {
		out.Segments = append(out.Segments, toResultResponse(r))
	}
	return out
}

func toConversationResponse(s voicesession.ConversationSnapshot) dto.ConversationResponse {
	out := dto.ConversationResponse{
		ID:              s.ID,
		UserLanguage:    toLanguageResponse(s.UserLanguage),
		PartnerLanguage: toLanguageResponse(s.PartnerLanguage),
		Entries:         make([]dto.ConversationEntryResponse, 0, len(s.Entries)),
	}
	for _, e := range s.Entries {
		out.Entries = append(out.Entries, dto.ConversationEntryResponse{
			Side:   string(e.Side),
			Result: toResultResponse(e.Result),
		})
	}
	return out
}
