package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, "database:\n  dsn: \"sqlite:parking.db\"\n"))
	require.NoError(t, err)

	assert.Equal(t, "sqlite:parking.db", cfg.Database.DSN)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 10.0, cfg.Server.RateLimitPerSec)
	assert.Equal(t, 5, cfg.Server.RateLimitBurst)
	assert.Equal(t, 30, cfg.Server.CacheTTLSeconds)
	assert.Equal(t, 2500*time.Millisecond, cfg.Scan.Cooldown)
	assert.Equal(t, 4, cfg.Scan.SweepMultiplier)
	assert.Equal(t, 5*time.Second, cfg.Scan.StorageTimeout)
	assert.Equal(t, "static/qrcodes", cfg.QR.OutputDir)
	assert.Equal(t, 365, cfg.QR.ValidityDays)
	assert.Equal(t, 480, cfg.Admin.TokenTTLMinutes)
	assert.Equal(t, 1, cfg.WorkerPool.Size)
	assert.Equal(t, "Local", cfg.Reports.Timezone)
	assert.False(t, cfg.Push.Enabled())
}

func TestLoad_FileValues(t *testing.T) {
	cfg, err := Load(writeConfig(t, `
server:
  port: 9000
scan:
  cooldown_ms: 800
  storage_timeout_seconds: 2
occupancy:
  reconcile_on_start: true
push:
  vapid_public_key: pub
  vapid_private_key: priv
reports:
  timezone: Asia/Manila
`))
	require.NoError(t, err)

	assert.Equal(t, 9000, cfg.Server.Port)
	assert.Equal(t, 800*time.Millisecond, cfg.Scan.Cooldown)
	assert.Equal(t, 2*time.Second, cfg.Scan.StorageTimeout)
	assert.True(t, cfg.Occupancy.ReconcileOnStart)
	assert.True(t, cfg.Push.Enabled())
	assert.Equal(t, "Asia/Manila", cfg.Reports.Location().String())
}

func TestLoad_EnvironmentOverrides(t *testing.T) {
	t.Setenv("DATABASE_DSN", "host=db user=parking")
	t.Setenv("ADMIN_TOKEN_SECRET", "from-env")
	t.Setenv("VAPID_PUBLIC_KEY", "")

	cfg, err := Load(writeConfig(t, `
database:
  dsn: "sqlite:parking.db"
admin:
  token_secret: from-file
push:
  vapid_public_key: file-key
`))
	require.NoError(t, err)

	assert.Equal(t, "host=db user=parking", cfg.Database.DSN)
	assert.Equal(t, "from-env", cfg.Admin.TokenSecret)
	// Empty variables do not clear file values.
	assert.Equal(t, "file-key", cfg.Push.PublicKey)
}

func TestLoad_Errors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	_, err = Load(writeConfig(t, "server: [not, a, map]\n"))
	assert.Error(t, err)
}

func TestReportsLocation_Invalid(t *testing.T) {
	assert.Equal(t, time.Local, ReportsConfig{Timezone: "Mars/Olympus"}.Location())
}
