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
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, "@every 30m", cfg.Refresh.Schedule)
	assert.NoError(t, cfg.Validate())
}

func TestLoadYAMLAndEnvOverrides(t *testing.T) {
	path := writeConfig(t, `
server:
  addr: ":9090"
feed:
  url: "https://example.com/etf_data.json"
  timeout: 5s
  breaker_failures: 5
refresh:
  schedule: "0 */15 * * *"
  holdings_diff: false
logging:
  level: debug
`)
	t.Setenv("ETF_ADDR", ":7070")
	t.Setenv("LOG_PRETTY", "true")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":7070", cfg.Server.Addr)
	assert.Equal(t, "https://example.com/etf_data.json", cfg.Feed.URL)
	assert.Equal(t, 5*time.Second, cfg.Feed.Timeout)
	assert.Equal(t, uint32(5), cfg.Feed.BreakerFailures)
	assert.Equal(t, time.Minute, cfg.Feed.BreakerTimeout)
	assert.False(t, cfg.Refresh.HoldingsDiff)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.True(t, cfg.Logging.Pretty)
	assert.NoError(t, cfg.Validate())
}

func TestLoadErrors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	_, err = Load(writeConfig(t, "server: [oops"))
	assert.Error(t, err)

	t.Setenv("LOG_PRETTY", "sometimes")
	_, err = Load("")
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	cfg := Default()
	cfg.Feed.URL = "ftp://example.com/x"
	cfg.Refresh.Schedule = "every now and then"
	cfg.Server.Addr = " "

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "feed.url")
	assert.Contains(t, err.Error(), "refresh.schedule")
	assert.Contains(t, err.Error(), "server.addr")
}
