package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.HTTPPort)
	assert.Equal(t, "info", cfg.LogLevel)

	assert.Equal(t, 5*time.Minute, cfg.Session.MinSyncInterval)
	assert.Equal(t, 10*time.Minute, cfg.Session.RefreshInterval)
	assert.Equal(t, time.Minute, cfg.Session.MaxAgeCheckInterval)
	assert.Equal(t, 30*24*time.Hour, cfg.Session.MaxLoginAge)
	assert.True(t, cfg.Session.RevalidateOnFocus)
	assert.True(t, cfg.Session.RevalidateOnStorage)

	assert.Equal(t, 7*time.Second, cfg.Widget.ScriptTimeout)
	assert.Equal(t, 3, cfg.Widget.RetryAttempts)
	assert.Equal(t, 800*time.Millisecond, cfg.Widget.RetryBackoff)
	assert.NotEmpty(t, cfg.Widget.OverlaySelectors)
	assert.NotEmpty(t, cfg.Widget.ClosedSentinel)
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("SESSION_MIN_SYNC_INTERVAL", "90s")
	t.Setenv("WIDGET_RETRY_ATTEMPTS", "5")
	t.Setenv("WIDGET_ENABLED", "false")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 90*time.Second, cfg.Session.MinSyncInterval)
	assert.Equal(t, 5, cfg.Widget.RetryAttempts)
	assert.False(t, cfg.Widget.Enabled)
}
