package main

import (
	"log"

	"cashback-controlplane/pkg/config"
	"cashback-controlplane/pkg/db"
	"cashback-controlplane/pkg/featureflags"
	"cashback-controlplane/pkg/gen"
	"cashback-controlplane/pkg/health"
	"cashback-controlplane/pkg/httpapi"
	"cashback-controlplane/pkg/logger"
	"cashback-controlplane/pkg/minio"
	"cashback-controlplane/pkg/otelcol"
	"cashback-controlplane/pkg/profiling"
	"cashback-controlplane/pkg/redis"
	"cashback-controlplane/pkg/sequence"
	"cashback-controlplane/pkg/server"
	"cashback-controlplane/pkg/task"
	"cashback-controlplane/services/audit"
	"cashback-controlplane/services/identity"
	"cashback-controlplane/services/notification"
	"cashback-controlplane/services/order"
	"cashback-controlplane/services/proof"
	"cashback-controlplane/services/realtime"
	"cashback-controlplane/services/settlement"
	"cashback-controlplane/services/wallet"

	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func main() {
	opts := []fx.Option{
		config.Module,
		logger.Module,
		otelcol.Module,
		profiling.Module,
		db.Module,
		redis.Module,
		gen.Module,
		sequence.Module,
		featureflags.Module,
		minio.Client,
		task.Client,
		health.Module,
		httpapi.Module,
		server.ProvideHTTPServer,

		identity.Module,
		audit.Module,
		audit.Handler,
		realtime.Module,
		realtime.Handler,
		wallet.Module,
		wallet.Handler,
		order.Module,
		order.Handler,
		settlement.Module,
		settlement.Handler,
		proof.Module,
		proof.Handler,
		notification.Module,

		fx.Invoke(migrate, db.Metric),
		fxLogger,
	}

	if err := fx.ValidateApp(opts...); err != nil {
		log.Fatalf("fx validation failed: %v", err)
	}

	fx.New(opts...).Run()
}

var fxLogger = fx.WithLogger(func(cfg *config.Config, logger *zap.Logger) fxevent.Logger {
	if cfg.AppEnv == "production" {
		return fxevent.NopLogger
	}
	return &fxevent.ZapLogger{Logger: logger}
})

func migrate(cfg *config.Config, gdb *gorm.DB) error {
	return db.Migrate(cfg, gdb,
		&identity.User{},
		&audit.Entry{},
		&wallet.Wallet{},
		&wallet.Transaction{},
		&order.Order{},
		&order.Item{},
		&order.Event{},
	)
}
