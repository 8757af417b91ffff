package config_test

import (
	"context"
	"testing"
	"time"

	"github.com/sethvargo/go-envconfig"
	assert "github.com/stretchr/testify/assert"
	require "github.com/stretchr/testify/require"

	config "github.com/agentruntime/a2a/server/config"
)

func TestNewWithDefaults(t *testing.T) {
	cfg, err := config.NewWithDefaults(context.Background(), nil)
	require.NoError(t, err)

	assert.Equal(t, "memory", cfg.StorageConfig.Provider)
	assert.Equal(t, "8080", cfg.ServerConfig.Port)
	assert.Equal(t, 120*time.Second, cfg.ServerConfig.ReadTimeout)
	assert.Equal(t, "UTC", cfg.Timezone)
	assert.True(t, cfg.CapabilitiesConfig.Streaming)
	assert.True(t, cfg.CapabilitiesConfig.PushNotifications)
	assert.False(t, cfg.CapabilitiesConfig.StateTransitionHistory)
	assert.True(t, cfg.PushConfig.Enable)
	assert.False(t, cfg.AuthConfig.Enable)
	assert.False(t, cfg.TelemetryConfig.Enable)
	assert.Equal(t, "9090", cfg.TelemetryConfig.MetricsConfig.Port)
	assert.Equal(t, "filesystem", cfg.ArtifactsConfig.StorageConfig.Provider)
}

func TestLoadWithLookuper(t *testing.T) {
	t.Run("environment overrides defaults", func(t *testing.T) {
		lookuper := envconfig.MapLookuper(map[string]string{
			"AGENT_URL":              "https://agent.example.com",
			"DEBUG":                  "true",
			"STORAGE_PROVIDER":       "sqlite",
			"STORAGE_DSN":            "/var/lib/a2a/tasks.db",
			"SERVER_PORT":            "9000",
			"CAPABILITIES_STREAMING": "false",
			"PUSH_ENABLE":            "false",
			"TELEMETRY_ENABLE":       "true",
		})

		cfg, err := config.LoadWithLookuper(context.Background(), nil, lookuper)
		require.NoError(t, err)

		assert.Equal(t, "https://agent.example.com", cfg.AgentURL)
		assert.True(t, cfg.Debug)
		assert.Equal(t, "sqlite", cfg.StorageConfig.Provider)
		assert.Equal(t, "/var/lib/a2a/tasks.db", cfg.StorageConfig.DSN)
		assert.Equal(t, "9000", cfg.ServerConfig.Port)
		assert.False(t, cfg.CapabilitiesConfig.Streaming)
		assert.False(t, cfg.PushConfig.Enable)
		assert.True(t, cfg.TelemetryConfig.Enable)
	})

	t.Run("base config survives when env is silent", func(t *testing.T) {
		base := &config.Config{
			AgentName:    "test-agent",
			AgentVersion: "1.2.3",
		}

		cfg, err := config.LoadWithLookuper(context.Background(), base, envconfig.MapLookuper(nil))
		require.NoError(t, err)

		assert.Equal(t, "test-agent", cfg.AgentName)
		assert.Equal(t, "1.2.3", cfg.AgentVersion)
	})
}

func TestConfig_Validate(t *testing.T) {
	t.Run("unknown storage provider rejected", func(t *testing.T) {
		lookuper := envconfig.MapLookuper(map[string]string{"STORAGE_PROVIDER": "postgres"})
		_, err := config.LoadWithLookuper(context.Background(), nil, lookuper)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "invalid storage provider")
	})

	t.Run("redis requires a url", func(t *testing.T) {
		lookuper := envconfig.MapLookuper(map[string]string{"STORAGE_PROVIDER": "redis"})
		_, err := config.LoadWithLookuper(context.Background(), nil, lookuper)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "STORAGE_URL")
	})

	t.Run("invalid timezone rejected", func(t *testing.T) {
		lookuper := envconfig.MapLookuper(map[string]string{"TIMEZONE": "Mars/Olympus"})
		_, err := config.LoadWithLookuper(context.Background(), nil, lookuper)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "invalid timezone")
	})
}
