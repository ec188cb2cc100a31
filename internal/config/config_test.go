package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDefaults(t *testing.T) {
	cfg, err := Parse()
	require.NoError(t, err)
	assert.Equal(t, "5175", cfg.Port)
	assert.Equal(t, BackendSQLite, cfg.LedgerBackend)
	assert.Equal(t, 30*time.Minute, cfg.RoomIdleTimeout)
	assert.Equal(t, 5*time.Minute, cfg.PlayerIdleTimeout)
	assert.Equal(t, 64, cfg.MailboxSize)
	assert.Equal(t, 100, cfg.HistoryLimit)
	assert.True(t, cfg.MetricsEnabled)
	assert.Equal(t, ":5175", cfg.Addr())
}

func TestParseOverrides(t *testing.T) {
	t.Setenv("PORT", "9000")
	t.Setenv("LEDGER_BACKEND", " Redis ")
	t.Setenv("REDIS_DB", "3")
	t.Setenv("ROOM_IDLE_TIMEOUT", "90s")
	t.Setenv("METRICS_ENABLED", "false")

	cfg, err := Parse()
	require.NoError(t, err)
	assert.Equal(t, "9000", cfg.Port)
	assert.Equal(t, BackendRedis, cfg.LedgerBackend)
	assert.Equal(t, 3, cfg.RedisDB)
	assert.Equal(t, 90*time.Second, cfg.RoomIdleTimeout)
	assert.False(t, cfg.MetricsEnabled)
}

func TestParseErrors(t *testing.T) {
	t.Run("bad duration", func(t *testing.T) {
		t.Setenv("PLAYER_IDLE_TIMEOUT", "soon")
		_, err := Parse()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "parse env:")
	})

	t.Run("unknown backend", func(t *testing.T) {
		t.Setenv("LEDGER_BACKEND", "postgres")
		_, err := Parse()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "LEDGER_BACKEND")
	})

	t.Run("non-positive mailbox", func(t *testing.T) {
		t.Setenv("MAILBOX_SIZE", "0")
		_, err := Parse()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "MAILBOX_SIZE")
	})
}

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test.env")
	require.NoError(t, os.WriteFile(path, []byte("HISTORY_LIMIT=25\nPORT=7000\n"), 0o600))

	// Existing environment wins over the file.
	t.Setenv("PORT", "8000")
	t.Setenv("HISTORY_LIMIT", "")
	require.NoError(t, os.Unsetenv("HISTORY_LIMIT"))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "8000", cfg.Port)
	assert.Equal(t, 25, cfg.HistoryLimit)
	t.Cleanup(func() { _ = os.Unsetenv("HISTORY_LIMIT") })
}

func TestLoadMissingFileIsIgnored(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.env"))
	require.NoError(t, err)
}
