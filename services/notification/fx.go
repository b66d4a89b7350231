package notification

import (
	"context"

	"cashback-controlplane/pkg/config"
	"cashback-controlplane/pkg/featureflags"
	"cashback-controlplane/pkg/task"
	"cashback-controlplane/pkg/taskname"
	"cashback-controlplane/services/order"

	"github.com/hibiken/asynq"
	"go.uber.org/fx"
)

// Module runs the in-process dispatcher and exposes it as the order notifier.
var Module = fx.Module("notification.dispatcher",
	fx.Provide(
		provideDispatcher,
		func(d *Dispatcher) order.Notifier { return d },
	),
)

// Worker registers the push task handler on the asynq server mux.
var Worker = fx.Module("notification.worker",
	fx.Provide(provideGateway),
	fx.Invoke(registerHandler),
)

func provideDispatcher(lc fx.Lifecycle, cfg *config.Config, enqueuer task.Enqueuer) *Dispatcher {
	d := NewDispatcher(enqueuer, DispatcherConfig{
		Enabled: cfg.Notification.Enabled,
		Queue:   cfg.Notification.Queue,
		Buffer:  cfg.Notification.Buffer,
		Workers: cfg.Notification.Workers,
	})
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			d.Start()
			return nil
		},
		OnStop: d.Stop,
	})
	return d
}

func provideGateway(cfg *config.Config) Gateway {
	return NewWebhookGateway(cfg.Notification.GatewayURL, cfg.Notification.Timeout)
}

func registerHandler(mux *asynq.ServeMux, gw Gateway, flags featureflags.FeatureFlag) {
	mux.Handle(taskname.NotificationPush, HandlePush(gw, flags))
}
