package observability

import (
	"testing"

	"github.com/smallbiznis/creditledger/internal/config"
	"github.com/stretchr/testify/assert"
)

func TestNewConfigDefaults(t *testing.T) {
	cfg := NewConfig(config.Config{
		Environment: "development",
		AppVersion:  "1.2.3",
		Telemetry:   config.TelemetryConfig{LogLevel: "info", SamplingRatio: 0.1},
	})

	assert.Equal(t, "creditledger", cfg.ServiceName)
	assert.Equal(t, "1.2.3", cfg.Version)
	assert.Equal(t, "grpc", cfg.OtelExporterProtocol)
	assert.InDelta(t, 0.1, cfg.OtelSamplingRatio, 1e-9)
	assert.False(t, cfg.OtelEnabled)
	assert.True(t, cfg.Debug())
}

func TestNewConfigProduction(t *testing.T) {
	cfg := NewConfig(config.Config{
		AppName:     "ledger",
		Environment: "production",
		Telemetry: config.TelemetryConfig{
			LogLevel:      "warn",
			OtelEnabled:   true,
			OtelProtocol:  "http",
			SamplingRatio: 7,
		},
	})

	assert.Equal(t, "ledger", cfg.ServiceName)
	assert.True(t, cfg.OtelEnabled)
	assert.Equal(t, "http", cfg.OtelExporterProtocol)
	assert.Equal(t, 1.0, cfg.OtelSamplingRatio)
	assert.False(t, cfg.Debug())
}

func TestDebugFollowsLogLevel(t *testing.T) {
	assert.True(t, Config{Environment: "production", LogLevel: "DEBUG"}.Debug())
	assert.False(t, Config{Environment: "staging"}.Debug())
}
