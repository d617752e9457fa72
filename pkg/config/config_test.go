package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setRequired sets the env vars without which validation fails.
func setRequired(t *testing.T) {
	t.Helper()
	t.Setenv("AUTHCORE_DIRECTORY_URL", "https://directory.internal/api")
	t.Setenv("AUTHCORE_APPLICATION_ID", "app-geodeck")
	t.Setenv("AUTHCORE_ISSUER_URL", "https://geodeck.eu.auth0.com/")
}

func TestLoadConfig(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		setRequired(t)

		cfg, err := LoadConfig()
		require.NoError(t, err)
		assert.Equal(t, "8080", cfg.Server.Port)
		assert.Equal(t, "9090", cfg.Server.HealthPort)
		assert.Equal(t, 10*time.Second, cfg.Directory.Timeout)
		assert.Equal(t, "https://geodeck.io/", cfg.Auth.ClaimsNamespace)
		assert.Equal(t, "GEODECK-PUBLIC", cfg.Auth.PublicOrg)
		assert.Equal(t, "0 * * * *", cfg.Catalog.ReconcileSchedule)
		assert.True(t, cfg.Cache.Enabled)
		assert.Equal(t, 5*time.Minute, cfg.Cache.TTL)
		assert.Equal(t, "info", cfg.Observability.LogLevel)
		assert.False(t, cfg.Observability.OTelEnabled)
	})

	t.Run("environment overrides", func(t *testing.T) {
		setRequired(t)
		t.Setenv("AUTHCORE_PORT", "3000")
		t.Setenv("AUTHCORE_CACHE_TTL", "90s")
		t.Setenv("AUTHCORE_CACHE_L1_SIZE", "128")
		t.Setenv("AUTHCORE_CACHE_ENABLED", "false")
		t.Setenv("AUTHCORE_LOG_LEVEL", "debug")

		cfg, err := LoadConfig()
		require.NoError(t, err)
		assert.Equal(t, "3000", cfg.Server.Port)
		assert.Equal(t, 90*time.Second, cfg.Cache.TTL)
		assert.Equal(t, 128, cfg.Cache.L1Size)
		assert.False(t, cfg.Cache.Enabled)
		assert.Equal(t, "debug", cfg.Observability.LogLevel)
	})

	t.Run("malformed numeric values fall back to defaults", func(t *testing.T) {
		setRequired(t)
		t.Setenv("AUTHCORE_CACHE_L1_SIZE", "not-a-number")
		t.Setenv("AUTHCORE_CACHE_TTL", "soon")

		cfg, err := LoadConfig()
		require.NoError(t, err)
		assert.Equal(t, 4096, cfg.Cache.L1Size)
		assert.Equal(t, 5*time.Minute, cfg.Cache.TTL)
	})
}

func TestValidate(t *testing.T) {
	t.Run("missing directory URL", func(t *testing.T) {
		t.Setenv("AUTHCORE_APPLICATION_ID", "app-geodeck")
		t.Setenv("AUTHCORE_ISSUER_URL", "https://geodeck.eu.auth0.com/")

		_, err := LoadConfig()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "directory URL")
	})

	t.Run("missing application id", func(t *testing.T) {
		t.Setenv("AUTHCORE_DIRECTORY_URL", "https://directory.internal/api")
		t.Setenv("AUTHCORE_ISSUER_URL", "https://geodeck.eu.auth0.com/")

		_, err := LoadConfig()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "application id")
	})

	t.Run("client credentials need a token URL", func(t *testing.T) {
		setRequired(t)
		t.Setenv("AUTHCORE_DIRECTORY_CLIENT_ID", "client-abc")

		_, err := LoadConfig()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "token URL")
	})

	t.Run("port collision", func(t *testing.T) {
		setRequired(t)
		t.Setenv("AUTHCORE_PORT", "8080")
		t.Setenv("AUTHCORE_HEALTH_PORT", "8080")

		_, err := LoadConfig()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "must be different")
	})

	t.Run("catalog watch needs a path", func(t *testing.T) {
		setRequired(t)
		t.Setenv("AUTHCORE_CATALOG_WATCH", "true")

		_, err := LoadConfig()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "catalog path")
	})
}
