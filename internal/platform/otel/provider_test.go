package otel_test

import (
	"context"
	"testing"

	"github.com/bnema/editor-relay/internal/platform/otel"
	"github.com/stretchr/testify/require"
)

func TestSetupNoopWhenEndpointEmpty(t *testing.T) {
	shutdown, err := otel.Setup(context.Background(), otel.Options{ServiceName: "relay-test", Enabled: true})
	require.NoError(t, err)
	require.NoError(t, shutdown(context.Background()))
}

func TestSetupNoopWhenDisabled(t *testing.T) {
	shutdown, err := otel.Setup(context.Background(), otel.Options{
		ServiceName: "relay-test",
		Endpoint:    "http://localhost:4318",
	})
	require.NoError(t, err)
	require.NoError(t, shutdown(context.Background()))
}

func TestSetupCreatesProviderWhenEnabled(t *testing.T) {
	// Non-routable address: nothing is exported because no spans are started.
	shutdown, err := otel.Setup(context.Background(), otel.Options{
		ServiceName:    "relay-test",
		ServiceVersion: "v0.0.0-test",
		Endpoint:       "http://192.0.2.1:4318",
		Enabled:        true,
	})
	require.NoError(t, err)
	require.NoError(t, shutdown(context.Background()))
}

func TestSetupNoopShutdownIgnoresCancelledContext(t *testing.T) {
	shutdown, err := otel.Setup(context.Background(), otel.Options{ServiceName: "relay-test"})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, shutdown(ctx))
}
