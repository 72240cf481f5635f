// ABOUTME: Configuration loading for the fathom console.
// ABOUTME: Loads TOML from an XDG path with environment variable expansion and env overrides.

package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/BurntSushi/toml"
)

// DefaultServerURL is the local development backend.
const DefaultServerURL = "http://localhost:8000"

// EnvServerURL overrides the configured server URL when set.
const EnvServerURL = "FATHOM_SERVER_URL"

type Config struct {
	Server    ServerConfig    `toml:"server"`
	Database  DatabaseConfig  `toml:"database"`
	Research  ResearchConfig  `toml:"research"`
	Streaming StreamingConfig `toml:"streaming"`
	Logging   LoggingConfig   `toml:"logging"`
}

type ServerConfig struct {
	URL string `toml:"url"`
}

// DatabaseConfig enables history persistence when Path is set.
type DatabaseConfig struct {
	Path string `toml:"path"`
}

type ResearchConfig struct {
	EnableCache bool `toml:"enable_cache"`
}

// StreamingConfig toggles the WebSocket path for plain chat. Plan, refine,
// and execute always use the one-shot REST calls.
type StreamingConfig struct {
	Enabled bool `toml:"enabled"`
}

type LoggingConfig struct {
	Level string `toml:"level"`
}

// DefaultPath returns the XDG config file location.
func DefaultPath() string {
	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return ""
		}
		configDir = filepath.Join(homeDir, ".config")
	}
	return filepath.Join(configDir, "fathom", "config.toml")
}

// Default returns the configuration used when no file exists.
func Default() *Config {
	return &Config{
		Server:   ServerConfig{URL: DefaultServerURL},
		Research: ResearchConfig{EnableCache: true},
		Logging:  LoggingConfig{Level: "info"},
	}
}

// Load reads config from the given path, expanding environment variables.
// A missing file yields the defaults; the FATHOM_SERVER_URL override
// applies either way.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			applyEnv(cfg)
			return cfg, nil
		}
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	// Expand environment variables (${VAR} syntax)
	expanded := expandEnvVars(string(data))

	if _, err := toml.Decode(expanded, cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	applyEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// applyEnv applies environment overrides and backfills defaults.
func applyEnv(cfg *Config) {
	if override := os.Getenv(EnvServerURL); override != "" {
		cfg.Server.URL = override
	}
	if cfg.Server.URL == "" {
		cfg.Server.URL = DefaultServerURL
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
}

// expandEnvVars replaces ${VAR} with environment variable values.
func expandEnvVars(s string) string {
	re := regexp.MustCompile(`\$\{([^}]+)\}`)
	return re.ReplaceAllStringFunc(s, func(match string) string {
		varName := strings.TrimSuffix(strings.TrimPrefix(match, "${"), "}")
		return os.Getenv(varName)
	})
}

// Validate checks that required config fields are present and valid.
func (c *Config) Validate() error {
	u, err := url.Parse(c.Server.URL)
	if err != nil {
		return fmt.Errorf("server.url is not a valid URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("server.url must be http or https, got %q", u.Scheme)
	}
	return nil
}
