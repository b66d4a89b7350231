package main

import (
	"context"
	"encoding/json"
	"os"
	"time"

	"cashback-controlplane/pkg/config"
	"cashback-controlplane/pkg/db"
	"cashback-controlplane/pkg/gen"
	"cashback-controlplane/pkg/logger"
	"cashback-controlplane/services/audit"
	"cashback-controlplane/services/order"
	"cashback-controlplane/services/realtime"
	"cashback-controlplane/services/wallet"

	"github.com/spf13/cobra"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
)

type services struct {
	Orders  *order.Service
	Wallets *wallet.Service
}

// withServices starts a trimmed container against the configured database,
// runs fn and shuts it down again. Realtime events stay in process.
func withServices(cmd *cobra.Command, fn func(ctx context.Context, s services) error) error {
	var s services
	app := fx.New(
		config.Module,
		logger.Module,
		db.Module,
		gen.Module,
		audit.Module,
		realtime.Module,
		wallet.Module,
		order.Module,
		fx.Populate(&s.Orders, &s.Wallets),
		fx.WithLogger(func() fxevent.Logger { return fxevent.NopLogger }),
	)

	startCtx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
	defer cancel()
	if err := app.Start(startCtx); err != nil {
		return err
	}
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = app.Stop(stopCtx)
	}()

	return fn(cmd.Context(), s)
}

func actorOf(cmd *cobra.Command) audit.Actor {
	id, _ := cmd.Flags().GetString("actor")
	return audit.Actor{UserID: id, Roles: []string{"ops"}}
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
