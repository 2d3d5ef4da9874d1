package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all application configuration
type Config struct {
	// Backend settings
	BackendURL     string        `yaml:"backend_url"`
	APIPrefix      string        `yaml:"api_prefix"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
	Stream         bool          `yaml:"stream"`

	// Mock answers from canned data instead of calling the backend
	Mock     bool   `yaml:"mock"`
	MockSeed uint64 `yaml:"mock_seed"`

	// Movie detail lookups
	InfoRetries   int           `yaml:"info_retries"`
	InfoBackoff   time.Duration `yaml:"info_backoff"`
	InfoCachePath string        `yaml:"info_cache_path"`
	InfoCacheTTL  time.Duration `yaml:"info_cache_ttl"`

	// Display settings
	HealthInterval  time.Duration `yaml:"health_interval"`
	FollowThreshold int           `yaml:"follow_threshold"`
	MarkdownStyle   string        `yaml:"markdown_style"`

	// Logging
	LogPath string `yaml:"log_path"`
	Debug   bool   `yaml:"debug"`
}

// NewConfig creates a new configuration with default values
func NewConfig() *Config {
	return &Config{
		// Backend defaults
		BackendURL:     "http://localhost:8000",
		APIPrefix:      "/api",
		RequestTimeout: 60 * time.Second,
		Stream:         true,

		// Movie info defaults
		InfoRetries:   3,
		InfoBackoff:   time.Second,
		InfoCachePath: expandHome("~/.moviegpt/info.db"),
		InfoCacheTTL:  7 * 24 * time.Hour,

		// Display defaults
		HealthInterval:  30 * time.Second,
		FollowThreshold: 1,
		MarkdownStyle:   "dark",

		LogPath: expandHome("~/.moviegpt/moviegpt.log"),
	}
}

// DefaultPath is where the config file is looked up
func DefaultPath() string {
	return expandHome("~/.moviegpt/config.yaml")
}

// LoadFile overlays settings from a YAML file. A missing file is not an
// error; keys absent from the file keep their current values.
func (c *Config) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("reading config: %w", err)
	}

	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parsing config %s: %w", path, err)
	}

	c.InfoCachePath = expandHome(c.InfoCachePath)
	c.LogPath = expandHome(c.LogPath)
	return nil
}

// envPrefix namespaces the environment overrides
const envPrefix = "MOVIEGPT_"

// ApplyEnv overlays MOVIEGPT_* environment variables
func (c *Config) ApplyEnv() error {
	var errs []error
	str := func(key string, dst *string) {
		if v := GetEnv(envPrefix + key); v != "" {
			*dst = v
		}
	}
	boolean := func(key string, dst *bool) {
		if v := GetEnv(envPrefix + key); v != "" {
			b, err := strconv.ParseBool(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", envPrefix, key, err))
				return
			}
			*dst = b
		}
	}
	duration := func(key string, dst *time.Duration) {
		if v := GetEnv(envPrefix + key); v != "" {
			d, err := time.ParseDuration(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", envPrefix, key, err))
				return
			}
			*dst = d
		}
	}
	unsigned := func(key string, dst *uint64) {
		if v := GetEnv(envPrefix + key); v != "" {
			n, err := strconv.ParseUint(v, 10, 64)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", envPrefix, key, err))
				return
			}
			*dst = n
		}
	}
	integer := func(key string, dst *int) {
		if v := GetEnv(envPrefix + key); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", envPrefix, key, err))
				return
			}
			*dst = n
		}
	}

	str("BACKEND_URL", &c.BackendURL)
	str("API_PREFIX", &c.APIPrefix)
	duration("REQUEST_TIMEOUT", &c.RequestTimeout)
	boolean("STREAM", &c.Stream)
	boolean("MOCK", &c.Mock)
	unsigned("MOCK_SEED", &c.MockSeed)
	integer("INFO_RETRIES", &c.InfoRetries)
	duration("INFO_BACKOFF", &c.InfoBackoff)
	str("INFO_CACHE_PATH", &c.InfoCachePath)
	duration("INFO_CACHE_TTL", &c.InfoCacheTTL)
	duration("HEALTH_INTERVAL", &c.HealthInterval)
	integer("FOLLOW_THRESHOLD", &c.FollowThreshold)
	str("MARKDOWN_STYLE", &c.MarkdownStyle)
	str("LOG_PATH", &c.LogPath)
	boolean("DEBUG", &c.Debug)

	c.InfoCachePath = expandHome(c.InfoCachePath)
	c.LogPath = expandHome(c.LogPath)
	return errors.Join(errs...)
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if !c.Mock {
		if c.BackendURL == "" {
			return fmt.Errorf("backend URL cannot be empty")
		}
		u, err := url.Parse(c.BackendURL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return fmt.Errorf("backend URL must be an http(s) URL: %q", c.BackendURL)
		}
	}
	if strings.ContainsAny(c.APIPrefix, "?#") {
		return fmt.Errorf("api prefix must be a path: %q", c.APIPrefix)
	}
	if c.RequestTimeout < 0 {
		return fmt.Errorf("request timeout cannot be negative")
	}
	if c.InfoRetries < 1 || c.InfoRetries > 10 {
		return fmt.Errorf("info retries must be between 1 and 10")
	}
	if c.HealthInterval < time.Second {
		return fmt.Errorf("health interval must be at least 1s")
	}
	if c.FollowThreshold < 0 {
		return fmt.Errorf("follow threshold cannot be negative")
	}
	switch c.MarkdownStyle {
	case "auto", "dark", "light", "notty", "ascii", "dracula", "pink", "tokyo-night":
	default:
		return fmt.Errorf("unknown markdown style %q", c.MarkdownStyle)
	}
	return nil
}

// expandHome expands the ~ in file paths to the user's home directory
func expandHome(path string) string {
	if path == "~" || strings.HasPrefix(path, "~/") {
		return getHomeDir() + path[1:]
	}
	return path
}

// getHomeDir returns the user's home directory
func getHomeDir() string {
	if home := GetEnv("HOME"); home != "" {
		return home
	}
	// Fallback for Windows
	if home := GetEnv("USERPROFILE"); home != "" {
		return home
	}
	return "."
}

// GetEnv is a wrapper around os.Getenv for easier testing
var GetEnv = os.Getenv
