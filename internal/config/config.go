// ABOUTME: Configuration loading and parsing for wa-gateway
// ABOUTME: Supports YAML files with environment variable expansion and duration parsing

package config

import (
	"fmt"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete wa-gateway configuration.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Auth     AuthConfig     `yaml:"auth"`
	Bridge   BridgeConfig   `yaml:"bridge"`
	Backend  BackendConfig  `yaml:"backend"`
	Webhook  WebhookConfig  `yaml:"webhook"`
	Sessions SessionsConfig `yaml:"sessions"`
	Ledger   LedgerConfig   `yaml:"ledger"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// ServerConfig holds the HTTP listen address.
type ServerConfig struct {
	HTTPAddr string `yaml:"http_addr"`
}

// AuthConfig holds API authentication configuration. An empty secret
// disables bearer auth on the session routes.
type AuthConfig struct {
	APISecret string `yaml:"api_secret"`
}

// BridgeConfig locates the protocol bridge that owns the chat-network wire
// protocol. The gateway consumes its event stream and media endpoint.
type BridgeConfig struct {
	WSURL   string `yaml:"ws_url"`   // e.g. ws://127.0.0.1:8900
	HTTPURL string `yaml:"http_url"` // e.g. http://127.0.0.1:8900
}

// BackendConfig selects and configures the key-value backend.
type BackendConfig struct {
	// Kind is "redis" or "memory". Memory is volatile and only suitable
	// for development.
	Kind  string      `yaml:"kind"`
	Redis RedisConfig `yaml:"redis"`
}

// RedisConfig holds Redis connection settings.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// WebhookConfig holds downstream webhook delivery settings.
type WebhookConfig struct {
	URL      string `yaml:"url"`
	Secret   string `yaml:"secret"` // enables HS256 bearer tokens on deliveries
	Attempts int    `yaml:"attempts"`

	Backoff    time.Duration `yaml:"-"`
	BackoffRaw string        `yaml:"backoff"`
}

// SessionsConfig holds session persistence and dedupe tuning.
type SessionsConfig struct {
	Retention    time.Duration `yaml:"-"`
	RetentionRaw string        `yaml:"retention"`

	DedupeWindow    time.Duration `yaml:"-"`
	DedupeWindowRaw string        `yaml:"dedupe_window"`
	DedupeMaxSize   int           `yaml:"dedupe_max_size"`
}

// LedgerConfig holds the delivery audit database settings.
type LedgerConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Load reads a configuration file from the given path and returns a parsed
// Config. Environment variables in the format ${VAR_NAME} are expanded.
// Duration strings are parsed into time.Duration values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	expandedData := expandEnvVars(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expandedData), &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if err := parseDurations(&cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}

	applyDefaults(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding
// environment variable values. Unset variables expand to the empty string.
func expandEnvVars(s string) string {
	re := regexp.MustCompile(`\$\{([^}]+)\}`)

	return re.ReplaceAllStringFunc(s, func(match string) string {
		varName := re.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}

// applyDefaults fills in unset optional fields.
func applyDefaults(cfg *Config) {
	if cfg.Backend.Kind == "" {
		cfg.Backend.Kind = "redis"
	}
	if cfg.Sessions.Retention == 0 {
		cfg.Sessions.Retention = 7 * 24 * time.Hour
	}
	if cfg.Sessions.DedupeWindow == 0 {
		cfg.Sessions.DedupeWindow = 10 * time.Minute
	}
	if cfg.Sessions.DedupeMaxSize == 0 {
		cfg.Sessions.DedupeMaxSize = 4096
	}
}

// Validate checks that all required configuration fields are present and
// valid. Returns an error describing the first failure encountered.
func (c *Config) Validate() error {
	if c.Server.HTTPAddr == "" {
		return fmt.Errorf("server.http_addr is required")
	}

	if c.Bridge.WSURL == "" {
		return fmt.Errorf("bridge.ws_url is required")
	}

	switch c.Backend.Kind {
	case "redis":
		if c.Backend.Redis.Addr == "" {
			return fmt.Errorf("backend.redis.addr is required when backend.kind is redis")
		}
	case "memory":
		// Nothing to validate; volatile backend.
	default:
		return fmt.Errorf("backend.kind must be redis or memory, got %q", c.Backend.Kind)
	}

	if c.Ledger.Enabled && c.Ledger.Path == "" {
		return fmt.Errorf("ledger.path is required when ledger is enabled")
	}

	return nil
}

// parseDurations converts the raw duration strings into time.Duration values.
func parseDurations(cfg *Config) error {
	var err error

	if cfg.Sessions.RetentionRaw != "" {
		cfg.Sessions.Retention, err = time.ParseDuration(cfg.Sessions.RetentionRaw)
		if err != nil {
			return fmt.Errorf("parsing retention %q: %w", cfg.Sessions.RetentionRaw, err)
		}
	}

	if cfg.Sessions.DedupeWindowRaw != "" {
		cfg.Sessions.DedupeWindow, err = time.ParseDuration(cfg.Sessions.DedupeWindowRaw)
		if err != nil {
			return fmt.Errorf("parsing dedupe_window %q: %w", cfg.Sessions.DedupeWindowRaw, err)
		}
	}

	if cfg.Webhook.BackoffRaw != "" {
		cfg.Webhook.Backoff, err = time.ParseDuration(cfg.Webhook.BackoffRaw)
		if err != nil {
			return fmt.Errorf("parsing webhook backoff %q: %w", cfg.Webhook.BackoffRaw, err)
		}
	}

	return nil
}
