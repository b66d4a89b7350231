package featureflags

import (
	"context"
	"testing"

	"cashback-controlplane/pkg/config"

	"github.com/stretchr/testify/require"
)

func TestIsEnabled_FallsBackWithoutClient(t *testing.T) {
	ff := ProvideFeatureFlag(FeatureParams{Config: &config.Config{}})

	require.True(t, ff.IsEnabled(context.Background(), "u-1", PushNotifications, true))
	require.False(t, ff.IsEnabled(context.Background(), "", PushNotifications, false))

	var nilFlags *featureflag
	require.True(t, nilFlags.IsEnabled(context.Background(), "u-1", PushNotifications, true))
}
