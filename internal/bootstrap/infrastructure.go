package bootstrap

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/eleven-am/voice-interpreter/internal/gateway"
	"github.com/eleven-am/voice-interpreter/internal/pipeline"
	"github.com/eleven-am/voice-interpreter/internal/realtime"
	"github.com/eleven-am/voice-interpreter/internal/shared"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"go.uber.org/fx"
)

func ProvideRedisClient(lc fx.Lifecycle, cfg *Config) *redis.Client {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			return client.Close()
		},
	})
	return client
}

func ProvideBroadcaster(lc fx.Lifecycle, client *redis.Client, logger *slog.Logger) *gateway.Broadcaster {
	b := gateway.NewBroadcaster(client, logger)
	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			return b.Close()
		},
	})
	return b
}

func ProvideRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

func ProvidePipelineMetrics(reg *prometheus.Registry) *pipeline.Metrics {
	return pipeline.NewMetrics(reg)
}

func ProvideRealtimeMetrics(reg *prometheus.Registry) *realtime.Metrics {
	return realtime.NewMetrics(reg)
}

func ProvideOpenAIConfig(cfg *Config) shared.OpenAIConfig {
	return shared.OpenAIConfig{
		APIKey:     cfg.OpenAIAPIKey,
		BaseURL:    cfg.OpenAIBaseURL,
		HTTPClient: &http.Client{Timeout: cfg.RequestTimeout},
	}
}

var InfrastructureModule = fx.Options(
	fx.Provide(
		ProvideLogger,
		ProvideRedisClient,
		ProvideBroadcaster,
		ProvideRegistry,
		ProvidePipelineMetrics,
		ProvideRealtimeMetrics,
		ProvideOpenAIConfig,
	),
)
