package realtime

import (
	"context"
	"strings"

	"cashback-controlplane/pkg/config"
	"cashback-controlplane/pkg/httpapi"
	"cashback-controlplane/pkg/rediskey"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("realtime.hub",
	fx.Provide(
		provideMetrics,
		NewMemoryHub,
		provideHub,
	),
)

var Handler = fx.Module("realtime.handler",
	fx.Provide(provideStreamHandler),
	fx.Invoke(RegisterRoutes),
)

func provideMetrics() *metrics {
	return newMetrics(prometheus.DefaultRegisterer)
}

type hubParams struct {
	fx.In
	Lifecycle fx.Lifecycle
	Config    *config.Config
	Local     *MemoryHub
	Redis     *redis.Client `optional:"true"`
}

func provideHub(p hubParams) Hub {
	if !strings.EqualFold(p.Config.Realtime.Backend, "redis") || p.Redis == nil {
		return p.Local
	}

	hub := NewRedisHub(p.Local, p.Redis, rediskey.BuildRealtimeChannel(p.Config.Realtime.Channel))
	p.Lifecycle.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			if err := hub.Start(ctx); err != nil {
				zap.L().Error("realtime relay unavailable, events are delivered locally only", zap.Error(err))
			}
			return nil
		},
		OnStop: hub.Stop,
	})
	return hub
}

func provideStreamHandler(lc fx.Lifecycle, cfg *config.Config, hub Hub, m *metrics) *StreamHandler {
	done := make(chan struct{})
	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			close(done)
			return nil
		},
	})
	return NewStreamHandler(hub, cfg.Realtime.KeepaliveInterval, m, done)
}

func RegisterRoutes(api httpapi.APIGroup, h *StreamHandler) {
	api.GET("/realtime/stream", h.Stream)
}
