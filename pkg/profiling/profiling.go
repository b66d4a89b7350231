package profiling

import (
	"context"
	"strconv"

	"cashback-controlplane/pkg/config"

	"github.com/grafana/pyroscope-go"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("profiling", fx.Invoke(Start))

// ledger and hub contention show up as mutex and goroutine profiles
var profileTypes = []pyroscope.ProfileType{
	pyroscope.ProfileCPU,
	pyroscope.ProfileInuseSpace,
	pyroscope.ProfileAllocSpace,
	pyroscope.ProfileGoroutines,
	pyroscope.ProfileMutexDuration,
	pyroscope.ProfileBlockDuration,
}

// Start enables continuous profiling when PYROSCOPE.ADDR is set.
func Start(lc fx.Lifecycle, c *config.Config) error {
	if c.Pyroscope.Addr == "" {
		return nil
	}

	profiler, err := pyroscope.Start(pyroscope.Config{
		ApplicationName: c.AppName,
		ServerAddress:   c.Pyroscope.Addr,
		ProfileTypes:    profileTypes,
		Tags: map[string]string{
			"env":     c.AppEnv,
			"version": c.AppVersion,
			"node_id": strconv.FormatInt(c.NodeID, 10),
		},
	})
	if err != nil {
		zap.L().Error("failed to start pyroscope", zap.String("addr", c.Pyroscope.Addr), zap.Error(err))
		return err
	}
	zap.L().Info("pyroscope profiling enabled", zap.String("addr", c.Pyroscope.Addr))

	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			return profiler.Stop()
		},
	})
	return nil
}
