package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/Sternrassler/artsel/pkg/client"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// isolate keeps the developer's own config out of the tests.
func isolate(t *testing.T) {
	t.Helper()
	t.Setenv("HOME", t.TempDir())
	t.Setenv("ARTSEL_CONFIG", "")
}

func TestLoad_Defaults(t *testing.T) {
	isolate(t)

	cfg, err := Load(New(), "")
	require.NoError(t, err)

	assert.Equal(t, client.DefaultBaseURL, cfg.API.BaseURL)
	assert.Equal(t, 12, cfg.API.PageSize)
	assert.Contains(t, cfg.API.Fields, "inscriptions")
	assert.Equal(t, 30*time.Second, cfg.API.Timeout)
	assert.Empty(t, cfg.Redis.Addr)
	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Zero(t, cfg.Retry.MaxAttempts)
}

func TestLoad_File(t *testing.T) {
	isolate(t)

	path := filepath.Join(t.TempDir(), "artsel.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
api:
  page_size: 25
  timeout: 5s
redis:
  addr: localhost:6379
  db: 2
retry:
  max_attempts: 5
  initial_backoff: 250ms
log:
  level: debug
  pretty: true
`), 0o600))

	cfg, err := Load(New(), path)
	require.NoError(t, err)

	assert.Equal(t, 25, cfg.API.PageSize)
	assert.Equal(t, 5*time.Second, cfg.API.Timeout)
	assert.Equal(t, "localhost:6379", cfg.Redis.Addr)
	assert.Equal(t, 2, cfg.Redis.DB)
	assert.Equal(t, 5, cfg.Retry.MaxAttempts)
	assert.Equal(t, 250*time.Millisecond, cfg.Retry.InitialBackoff)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.True(t, cfg.Log.Pretty)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	isolate(t)

	path := filepath.Join(t.TempDir(), "artsel.toml")
	require.NoError(t, os.WriteFile(path, []byte("[api]\npage_size = 25\n"), 0o600))
	t.Setenv("ARTSEL_API_PAGE_SIZE", "50")
	t.Setenv("ARTSEL_SERVER_ADDR", "127.0.0.1:9000")

	cfg, err := Load(New(), path)
	require.NoError(t, err)

	assert.Equal(t, 50, cfg.API.PageSize)
	assert.Equal(t, "127.0.0.1:9000", cfg.Server.Addr)
}

func TestLoad_ConfigFromEnvPath(t *testing.T) {
	isolate(t)

	path := filepath.Join(t.TempDir(), "c.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server:\n  addr: :7000\n"), 0o600))
	t.Setenv("ARTSEL_CONFIG", path)

	cfg, err := Load(New(), "")
	require.NoError(t, err)
	assert.Equal(t, ":7000", cfg.Server.Addr)
}

func TestLoad_MissingExplicitFile(t *testing.T) {
	isolate(t)

	_, err := Load(New(), filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestLoad_InvalidValues(t *testing.T) {
	isolate(t)
	t.Setenv("ARTSEL_API_PAGE_SIZE", "0")
	t.Setenv("ARTSEL_LOG_LEVEL", "loud")

	_, err := Load(New(), "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "api.page_size")
	assert.Contains(t, err.Error(), "log.level")
}

func TestValidate(t *testing.T) {
	isolate(t)
	valid, err := Load(New(), "")
	require.NoError(t, err)

	tests := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{"relative base url", func(c *Config) { c.API.BaseURL = "/api" }, "api.base_url"},
		{"page size too large", func(c *Config) { c.API.PageSize = 101 }, "api.page_size"},
		{"empty user agent", func(c *Config) { c.API.UserAgent = " " }, "api.user_agent"},
		{"zero timeout", func(c *Config) { c.API.Timeout = 0 }, "api.timeout"},
		{"negative redis db", func(c *Config) { c.Redis.DB = -1 }, "redis.db"},
		{"negative attempts", func(c *Config) { c.Retry.MaxAttempts = -1 }, "retry.max_attempts"},
		{"negative backoff", func(c *Config) { c.Retry.InitialBackoff = -time.Second }, "retry.initial_backoff"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := valid
			tt.mutate(&c)
			err := c.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.field)
		})
	}
}

func TestClientConfig(t *testing.T) {
	isolate(t)
	t.Setenv("ARTSEL_RETRY_MAX_ATTEMPTS", "2")

	cfg, err := Load(New(), "")
	require.NoError(t, err)

	cc := cfg.ClientConfig()
	assert.Equal(t, cfg.API.BaseURL, cc.BaseURL)
	assert.Equal(t, 12, cc.PageSize)
	assert.Equal(t, 2, cc.MaxAttempts)
	assert.Nil(t, cc.Redis)

	_, err = client.New(cc)
	assert.NoError(t, err)

	lc := cfg.LoggingConfig()
	assert.EqualValues(t, "info", lc.Level)
}
