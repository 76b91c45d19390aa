package telemetry_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cityaqi/cityaqi/internal/telemetry"
)

func TestInit_Disabled(t *testing.T) {
	ctx := context.Background()

	provider, err := telemetry.Init(ctx, telemetry.Config{
		ServiceName:    "cityaqi-api",
		ServiceVersion: "1.0.0",
		Environment:    "test",
		OTLPEndpoint:   "localhost:4317",
		Enabled:        false,
	})
	require.NoError(t, err)

	assert.NotNil(t, provider.Tracer)
	assert.NotNil(t, provider.Meter)
	assert.Nil(t, provider.TracerProvider)
	assert.Nil(t, provider.MeterProvider)
	assert.NoError(t, provider.Shutdown(ctx))
}

func TestProvider_Shutdown_NilProviders(t *testing.T) {
	provider := &telemetry.Provider{}
	assert.NoError(t, provider.Shutdown(context.Background()))
}

func TestConfigFromEnv(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		t.Setenv("OTEL_ENABLED", "")
		t.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", "")
		t.Setenv("APP_ENV", "")

		cfg := telemetry.ConfigFromEnv("cityaqi-worker", "dev")
		assert.False(t, cfg.Enabled)
		assert.Equal(t, "localhost:4317", cfg.OTLPEndpoint)
		assert.Equal(t, "development", cfg.Environment)
		assert.Equal(t, "cityaqi-worker", cfg.ServiceName)
		assert.Equal(t, "dev", cfg.ServiceVersion)
	})

	t.Run("overrides", func(t *testing.T) {
		t.Setenv("OTEL_ENABLED", "true")
		t.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", "collector:4317")
		t.Setenv("APP_ENV", "production")

		cfg := telemetry.ConfigFromEnv("cityaqi-api", "1.0.0")
		assert.True(t, cfg.Enabled)
		assert.Equal(t, "collector:4317", cfg.OTLPEndpoint)
		assert.Equal(t, "production", cfg.Environment)
	})
}
