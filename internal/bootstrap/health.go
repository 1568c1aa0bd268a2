package bootstrap

import (
	"context"

	"github.com/eleven-am/voice-interpreter/internal/gateway"
	"github.com/eleven-am/voice-interpreter/internal/health"
	"github.com/eleven-am/voice-interpreter/internal/shared"
	"github.com/eleven-am/voice-interpreter/internal/voicesession"
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/fx"
)

const version = "1.0.0"

func ProvideHealthHandler(
	broadcaster *gateway.Broadcaster,
	manager *voicesession.Manager,
	openai shared.OpenAIConfig,
	reg *prometheus.Registry,
) *health.Handler {
	client := shared.NewOpenAIClient(openai)
	return health.NewHandler(manager, broadcaster, reg, version,
		health.Component{Name: "redis", Check: broadcaster.Ping},
		health.Component{
			Name:     "openai",
			Optional: true,
			Check: func(ctx context.Context) error {
				_, err := client.ListModels(ctx)
				return err
			},
		},
	)
}

func RegisterHealthRoutes(e *echo.Echo, h *health.Handler) {
	e.Use(h.CountRequests())
	h.RegisterRoutes(e)
}

var HealthModule = fx.Options(
	fx.Provide(ProvideHealthHandler),
	fx.Invoke(RegisterHealthRoutes),
)
