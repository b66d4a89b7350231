package main

import (
	"log"

	"cashback-controlplane/pkg/config"
	"cashback-controlplane/pkg/featureflags"
	"cashback-controlplane/pkg/logger"
	"cashback-controlplane/pkg/otelcol"
	"cashback-controlplane/pkg/task"
	"cashback-controlplane/services/notification"

	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"
)

// worker drains the notification queue and delivers pushes.
func main() {
	opts := []fx.Option{
		config.Module,
		logger.Module,
		otelcol.Module,
		featureflags.Module,
		task.Server,
		notification.Worker,
		fxLogger,
	}

	if err := fx.ValidateApp(opts...); err != nil {
		log.Fatalf("fx validation failed: %v", err)
	}

	fx.New(opts...).Run()
}

var fxLogger = fx.WithLogger(func(cfg *config.Config, logger *zap.Logger) fxevent.Logger {
	return fxevent.NopLogger
})
