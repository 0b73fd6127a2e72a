package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(content), 0o600))
	return dir
}

func TestLoadConfigDefaults(t *testing.T) {
	dir := writeConfig(t, `
server:
  mode: debug
jwt:
  secret: short
  expire_hours: 2
notification:
  timezone: Europe/Paris
  outbox:
    max_attempts: 7
`)

	cfg, err := LoadConfig(dir)
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, 2*time.Hour, cfg.JWT.ExpireTime)
	assert.Equal(t, "08:00:00", cfg.Notification.QuietHoursStart)
	assert.Equal(t, "22:00:00", cfg.Notification.QuietHoursEnd)
	assert.Equal(t, 10*time.Second, cfg.Notification.ChannelTimeout)
	assert.Equal(t, 7, cfg.Notification.Outbox.MaxAttempts)
	assert.Equal(t, 5*time.Second, cfg.Notification.Outbox.PollInterval)
	assert.Equal(t, "@every 1m", cfg.Scheduler.ActivationSpec)
	assert.Equal(t, "Europe/Paris", cfg.Notification.Location().String())
}

func TestLoadConfigEnvOverride(t *testing.T) {
	dir := writeConfig(t, "server:\n  mode: debug\n")
	t.Setenv("JWT_SECRET", "from-env")
	t.Setenv("ANONYMIZATION_SECRET", "anon-from-env")

	cfg, err := LoadConfig(dir)
	require.NoError(t, err)
	assert.Equal(t, "from-env", cfg.JWT.Secret)
	assert.Equal(t, "anon-from-env", cfg.Anonymization.Secret)
}

func TestLoadConfigValidation(t *testing.T) {
	t.Run("weak secrets in release", func(t *testing.T) {
		dir := writeConfig(t, "server:\n  mode: release\njwt:\n  secret: short\n")
		_, err := LoadConfig(dir)
		assert.ErrorContains(t, err, "JWT secret is too short")
	})

	t.Run("unknown timezone", func(t *testing.T) {
		dir := writeConfig(t, "notification:\n  timezone: Mars/Olympus\n")
		_, err := LoadConfig(dir)
		assert.ErrorContains(t, err, "notification.timezone")
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := LoadConfig(t.TempDir())
		assert.Error(t, err)
	})
}

func TestLocationFallback(t *testing.T) {
	assert.Equal(t, time.UTC, NotificationConfig{}.Location())
	assert.Equal(t, time.UTC, NotificationConfig{Timezone: "Nowhere/City"}.Location())
}
