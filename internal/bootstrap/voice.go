package bootstrap

import (
	"context"
	"log/slog"

	"github.com/eleven-am/voice-interpreter/internal/capture"
	"github.com/eleven-am/voice-interpreter/internal/gateway"
	"github.com/eleven-am/voice-interpreter/internal/pipeline"
	"github.com/eleven-am/voice-interpreter/internal/realtime"
	"github.com/eleven-am/voice-interpreter/internal/shared"
	"github.com/eleven-am/voice-interpreter/internal/synthesis"
	"github.com/eleven-am/voice-interpreter/internal/transcription"
	"github.com/eleven-am/voice-interpreter/internal/translation"
	"github.com/eleven-am/voice-interpreter/internal/voicesession"
	"github.com/labstack/echo/v4"
	"go.uber.org/fx"
)

func ProvidePipelineConfig(cfg *Config) pipeline.Config {
	pc := pipeline.Config{
		Workers:         cfg.Workers,
		TargetLanguage:  cfg.TargetLanguage,
		MinTextLength:   cfg.MinTextLength,
		MaxContextChars: cfg.MaxContextChars,
		RequestTimeout:  cfg.RequestTimeout,
	}
	if lang, ok := shared.LookupLanguage(cfg.TargetLanguage); ok {
		pc.TargetLanguage = lang.Code
		pc.TargetLanguageName = lang.Name
		pc.Voice = lang.Voice
	}
	return pc
}

func ProvideListenConfig(cfg *Config, pc pipeline.Config) voicesession.ListenConfig {
	return voicesession.ListenConfig{
		Pipeline:        pc,
		Segment:         capture.SegmentConfig{Duration: cfg.SegmentDuration},
		SummaryInterval: cfg.SummaryInterval,
		MinSummaryChars: cfg.MinSummaryChars,
		SummaryTimeout:  cfg.RequestTimeout,
	}
}

func ProvideRTCConfig(cfg *Config) realtime.Config {
	ice := cfg.ICEServers()
	iceServers := make([]realtime.ICEServerConfig, 0, len(ice))
	for _, s := range ice {
		iceServers = append(iceServers, realtime.ICEServerConfig{
			URLs:       s.URLs,
			Username:   s.Username,
			Credential: s.Credential,
		})
	}

	return realtime.Config{
		ICEServers: iceServers,
		PortRange: realtime.PortRange{
			Min: cfg.RTCPortMin,
			Max: cfg.RTCPortMax,
		},
	}
}

func ProvideRealtimeSessionConfig(cfg *Config) realtime.SessionConfig {
	sc := realtime.DefaultSessionConfig()
	sc.Model = cfg.RealtimeModel
	sc.Voice = cfg.RealtimeVoice
	return sc
}

type RealtimeParams struct {
	fx.In

	Config     *Config
	RTC        realtime.Config
	Session    realtime.SessionConfig
	Metrics    *realtime.Metrics
	Translator *translation.OpenAIClient
	Deps       voicesession.Dependencies
	Logger     *slog.Logger
}

// ProvideRealtimeController returns nil when realtime mode is disabled; the
// manager then reports the realtime routes as not found.
func ProvideRealtimeController(p RealtimeParams) (*voicesession.RealtimeController, error) {
	if !p.Config.RealtimeEnabled {
		return nil, nil
	}

	// The sink runs only once a peer is connected, after controller is set.
	var controller *voicesession.RealtimeController
	peers, err := realtime.NewPionPeerFactory(p.RTC, func(frame []byte) {
		controller.PlayRemoteAudio(frame)
	}, p.Logger)
	if err != nil {
		return nil, err
	}
	svc := realtime.NewOpenAIService(realtime.ServiceConfig{
		APIKey:  p.Config.OpenAIAPIKey,
		BaseURL: p.Config.OpenAIBaseURL,
	}, p.Logger)
	session := realtime.NewSession(p.Session, svc, peers, p.Metrics, p.Logger)

	controller = voicesession.NewRealtimeController(session, p.Translator, realtime.DispatcherConfig{
		FallbackTarget: p.Config.RealtimeFallback,
		Timeout:        p.Config.RequestTimeout,
	}, p.Deps, p.Logger)
	return controller, nil
}

func ProvideDependencies(
	recognizer *transcription.OpenAIRecognizer,
	translator *translation.OpenAIClient,
	synthesizer *synthesis.OpenAISynthesizer,
	broadcaster *gateway.Broadcaster,
	metrics *pipeline.Metrics,
) voicesession.Dependencies {
	return voicesession.Dependencies{
		Recognizer:  recognizer,
		Translator:  translator,
		Synthesizer: synthesizer,
		Summarizer:  translator,
		Publisher:   broadcaster,
		Metrics:     metrics,
	}
}

type ManagerParams struct {
	fx.In

	Listen   voicesession.ListenConfig
	Pipeline pipeline.Config
	Deps     voicesession.Dependencies
	Realtime *voicesession.RealtimeController
	Logger   *slog.Logger
}

func ProvideVoiceSessionManager(lc fx.Lifecycle, p ManagerParams) *voicesession.Manager {
	conv := p.Pipeline
	conv.Synthesize = true

	m := voicesession.NewManager(voicesession.ManagerConfig{
		Listen:       p.Listen,
		Conversation: conv,
		Deps:         p.Deps,
		Realtime:     p.Realtime,
		Log:          p.Logger,
	})
	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			return m.Close(ctx)
		},
	})
	return m
}

func ProvideAPIHandler(cfg *Config, m *voicesession.Manager, logger *slog.Logger) *gateway.Handler {
	return gateway.NewHandler(m, cfg.MaxUploadBytes, logger)
}

func ProvideEventsHandler(b *gateway.Broadcaster, logger *slog.Logger) *gateway.EventsHandler {
	return gateway.NewEventsHandler(b, logger)
}

func ProvideRateLimiter(lc fx.Lifecycle, cfg *Config) *gateway.RateLimiter {
	rl := gateway.NewRateLimiter(gateway.RateLimiterConfig{
		RequestsPerSecond: cfg.RateLimitRPS,
		Burst:             cfg.RateLimitBurst,
	})
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go rl.Run()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			rl.Stop()
			return nil
		},
	})
	return rl
}

type VoiceRouteParams struct {
	fx.In

	Handler     *gateway.Handler
	Events      *gateway.EventsHandler
	RateLimiter *gateway.RateLimiter
}

func RegisterVoiceRoutes(e *echo.Echo, params VoiceRouteParams) {
	api := e.Group("/api/v1")
	params.Events.RegisterRoutes(api)

	control := api.Group("", params.RateLimiter.Middleware())
	params.Handler.RegisterRoutes(control)
}

var VoiceModule = fx.Options(
	fx.Provide(
		ProvidePipelineConfig,
		ProvideListenConfig,
		ProvideRTCConfig,
		ProvideRealtimeSessionConfig,
		ProvideDependencies,
		ProvideRealtimeController,
		ProvideVoiceSessionManager,
		ProvideAPIHandler,
		ProvideEventsHandler,
		ProvideRateLimiter,
	),
	fx.Invoke(RegisterVoiceRoutes),
)
