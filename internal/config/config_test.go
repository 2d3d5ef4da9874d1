package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func withEnv(t *testing.T, env map[string]string) {
	t.Helper()
	old := GetEnv
	GetEnv = func(key string) string { return env[key] }
	t.Cleanup(func() { GetEnv = old })
}

func TestDefaultsAreValid(t *testing.T) {
	withEnv(t, map[string]string{"HOME": "/home/tester"})
	cfg := NewConfig()

	require.NoError(t, cfg.Validate())
	assert.Equal(t, "http://localhost:8000", cfg.BackendURL)
	assert.Equal(t, "/api", cfg.APIPrefix)
	assert.Equal(t, 1, cfg.FollowThreshold)
	assert.Equal(t, 3, cfg.InfoRetries)
	assert.Equal(t, "/home/tester/.moviegpt/moviegpt.log", cfg.LogPath)
	assert.Equal(t, "/home/tester/.moviegpt/config.yaml", DefaultPath())
	assert.False(t, cfg.Mock)
}

func TestLoadFileOverlaysDefaults(t *testing.T) {
	withEnv(t, map[string]string{"HOME": "/home/tester"})
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`backend_url: https://movies.example.com
stream: false
request_timeout: 15s
follow_threshold: 3
info_cache_path: ~/cache/info.db
`), 0o600))

	cfg := NewConfig()
	require.NoError(t, cfg.LoadFile(path))

	assert.Equal(t, "https://movies.example.com", cfg.BackendURL)
	assert.False(t, cfg.Stream)
	assert.Equal(t, 15*time.Second, cfg.RequestTimeout)
	assert.Equal(t, 3, cfg.FollowThreshold)
	assert.Equal(t, "/home/tester/cache/info.db", cfg.InfoCachePath)
	// Untouched keys keep their defaults
	assert.Equal(t, "/api", cfg.APIPrefix)
	assert.Equal(t, 30*time.Second, cfg.HealthInterval)
}

func TestLoadFileMissingIsNotAnError(t *testing.T) {
	cfg := NewConfig()
	require.NoError(t, cfg.LoadFile(filepath.Join(t.TempDir(), "absent.yaml")))
	assert.Equal(t, NewConfig(), cfg)
}

func TestLoadFileMalformed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("backend_url: [unterminated"), 0o600))

	err := NewConfig().LoadFile(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parsing config")
}

func TestApplyEnv(t *testing.T) {
	withEnv(t, map[string]string{
		"MOVIEGPT_BACKEND_URL":      "http://10.0.0.5:9000",
		"MOVIEGPT_MOCK":             "true",
		"MOVIEGPT_HEALTH_INTERVAL":  "5s",
		"MOVIEGPT_FOLLOW_THRESHOLD": "2",
		"MOVIEGPT_MOCK_SEED":        "42",
	})
	cfg := NewConfig()
	require.NoError(t, cfg.ApplyEnv())

	assert.Equal(t, "http://10.0.0.5:9000", cfg.BackendURL)
	assert.True(t, cfg.Mock)
	assert.Equal(t, 5*time.Second, cfg.HealthInterval)
	assert.Equal(t, 2, cfg.FollowThreshold)
	assert.Equal(t, uint64(42), cfg.MockSeed)
}

func TestApplyEnvReportsBadValues(t *testing.T) {
	withEnv(t, map[string]string{
		"MOVIEGPT_STREAM":          "sometimes",
		"MOVIEGPT_REQUEST_TIMEOUT": "soon",
		"MOVIEGPT_MOCK_SEED":       "-1",
	})
	err := NewConfig().ApplyEnv()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "MOVIEGPT_STREAM")
	assert.Contains(t, err.Error(), "MOVIEGPT_REQUEST_TIMEOUT")
	assert.Contains(t, err.Error(), "MOVIEGPT_MOCK_SEED")
}

func TestValidate(t *testing.T) {
	cases := map[string]func(*Config){
		"empty url":       func(c *Config) { c.BackendURL = "" },
		"bad scheme":      func(c *Config) { c.BackendURL = "ftp://host" },
		"no host":         func(c *Config) { c.BackendURL = "http://" },
		"prefix query":    func(c *Config) { c.APIPrefix = "/api?x=1" },
		"retries":         func(c *Config) { c.InfoRetries = 0 },
		"health interval": func(c *Config) { c.HealthInterval = time.Millisecond },
		"threshold":       func(c *Config) { c.FollowThreshold = -1 },
		"style":           func(c *Config) { c.MarkdownStyle = "neon" },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := NewConfig()
			mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}

	cfg := NewConfig()
	cfg.Mock = true
	cfg.BackendURL = ""
	assert.NoError(t, cfg.Validate(), "mock mode needs no backend")
}
