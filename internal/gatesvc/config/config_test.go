package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setBaseEnv(t *testing.T) {
	t.Setenv("MONGODB_URI", "mongodb://localhost:27017/gatepass")
	t.Setenv("JWT_SECRET_KEY", "secret")
	for _, key := range []string{"GATE_SERVICE_PORT", "RATE_LIMIT", "CARD_POOL_SIZE", "ORPHAN_GRACE", "TIMEZONE", "CORS_ORIGINS", "LOG_LEVEL", "RECONCILE_INTERVAL", "SOCKET_SERVICE_PORT"} {
		t.Setenv(key, "")
	}
}

func TestLoadDefaults(t *testing.T) {
	setBaseEnv(t)

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, defaultPort, cfg.Port)
	assert.Equal(t, defaultRateLimit, cfg.RateLimit)
	assert.Equal(t, defaultCardPool, cfg.CardPoolSize)
	assert.Equal(t, defaultOrphanGrace, cfg.OrphanGrace)
	assert.Equal(t, time.Local, cfg.Location)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Empty(t, cfg.CORSOrigins)
	assert.Equal(t, defaultReconcile, cfg.ReconcileInterval)
}

func TestLoadOverrides(t *testing.T) {
	setBaseEnv(t)
	t.Setenv("GATE_SERVICE_PORT", "9090")
	t.Setenv("CARD_POOL_SIZE", "800")
	t.Setenv("ORPHAN_GRACE", "30m")
	t.Setenv("TIMEZONE", "UTC")
	t.Setenv("CORS_ORIGINS", "https://gate.example.com, http://localhost:5173,")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "9090", cfg.Port)
	assert.Equal(t, 800, cfg.CardPoolSize)
	assert.Equal(t, 30*time.Minute, cfg.OrphanGrace)
	assert.Equal(t, "UTC", cfg.Location.String())
	assert.Equal(t, []string{"https://gate.example.com", "http://localhost:5173"}, cfg.CORSOrigins)
}

func TestLoadRejectsBadValues(t *testing.T) {
	tests := map[string]string{
		"RATE_LIMIT":         "lots",
		"CARD_POOL_SIZE":     "-5",
		"ORPHAN_GRACE":       "ten minutes",
		"TIMEZONE":           "Mars/Olympus",
		"MONGODB_URI":        "",
		"JWT_SECRET_KEY":     "",
		"RECONCILE_INTERVAL": "0s",
	}
	for key, value := range tests {
		t.Run(key, func(t *testing.T) {
			setBaseEnv(t)
			t.Setenv(key, value)
			_, err := Load()
			assert.Error(t, err)
		})
	}
}

func TestLoadRelayNeedsNoDatabase(t *testing.T) {
	setBaseEnv(t)
	t.Setenv("MONGODB_URI", "")
	t.Setenv("SOCKET_SERVICE_PORT", "7070")

	cfg, err := LoadRelay()
	require.NoError(t, err)
	assert.Equal(t, "7070", cfg.Port)

	t.Setenv("JWT_SECRET_KEY", "")
	_, err = LoadRelay()
	assert.Error(t, err)
}

func TestLoadControllerNeedsNoSecret(t *testing.T) {
	setBaseEnv(t)
	t.Setenv("JWT_SECRET_KEY", "")
	t.Setenv("RECONCILE_INTERVAL", "90s")

	cfg, err := LoadController()
	require.NoError(t, err)
	assert.Equal(t, 90*time.Second, cfg.ReconcileInterval)

	t.Setenv("MONGODB_URI", "")
	_, err = LoadController()
	assert.Error(t, err)
}
