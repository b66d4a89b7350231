package featureflags

import (
	"context"

	"cashback-controlplane/pkg/config"

	"github.com/Flagsmith/flagsmith-go-client/v2"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("featureflags", fx.Provide(ProvideFeatureFlag))

const (
	PushNotifications = "push_notifications"
)

type FeatureFlag interface {
	// IsEnabled evaluates feature for identifier. When flags cannot be fetched
	// fallback is returned.
	IsEnabled(ctx context.Context, identifier, feature string, fallback bool) bool
}

type featureflag struct {
	client *flagsmith.Client
}

type FeatureParams struct {
	fx.In
	Config *config.Config
}

func ProvideFeatureFlag(p FeatureParams) FeatureFlag {
	if p.Config.Flagsmith.ApiKey == "" {
		return &featureflag{}
	}

	var opts []flagsmith.Option
	if p.Config.Flagsmith.Addr != "" {
		opts = append(opts, flagsmith.WithBaseURL(p.Config.Flagsmith.Addr))
	}

	return &featureflag{
		client: flagsmith.NewClient(p.Config.Flagsmith.ApiKey, opts...),
	}
}

func (s *featureflag) IsEnabled(ctx context.Context, identifier, feature string, fallback bool) bool {
	if s == nil || s.client == nil {
		return fallback
	}

	var (
		flags flagsmith.Flags
		err   error
	)
	if identifier != "" {
		flags, err = s.client.GetIdentityFlags(identifier, nil)
	} else {
		flags, err = s.client.GetEnvironmentFlags()
	}
	if err != nil {
		zap.L().Warn("feature flags unavailable", zap.String("feature", feature), zap.Error(err))
		return fallback
	}

	enabled, err := flags.IsFeatureEnabled(feature)
	if err != nil {
		return fallback
	}
	return enabled
}
