// ABOUTME: Configuration loading and parsing for chat-relay
// ABOUTME: Supports YAML files with environment variable expansion, defaults, and duration parsing

package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Provider identifiers known to the relay.
const (
	ProviderClaude = "claude"
	ProviderOpenAI = "openai"
)

const (
	defaultHTTPAddr        = "127.0.0.1:8080"
	defaultProviderTimeout = 60 * time.Second
	defaultMaxTokens       = 1024
	defaultClaudeModel     = "claude-3-5-sonnet-20241022"
	defaultOpenAIModel     = "gpt-4"
)

// Config represents the complete chat-relay configuration
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Tailscale TailscaleConfig `yaml:"tailscale"`
	Providers ProvidersConfig `yaml:"providers"`
	Broadcast BroadcastConfig `yaml:"broadcast"`
	Audit     AuditConfig     `yaml:"audit"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// ServerConfig holds server address configuration.
// An empty GRPCAddr disables the gRPC surface.
type ServerConfig struct {
	HTTPAddr string `yaml:"http_addr"`
	GRPCAddr string `yaml:"grpc_addr"`
}

// TailscaleConfig holds Tailscale tsnet configuration
type TailscaleConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Hostname  string `yaml:"hostname"`
	AuthKey   string `yaml:"auth_key"`
	StateDir  string `yaml:"state_dir"`
	Ephemeral bool   `yaml:"ephemeral"`
}

// ProvidersConfig selects the default provider and configures each vendor
type ProvidersConfig struct {
	Default string         `yaml:"default"`
	Claude  ProviderConfig `yaml:"claude"`
	OpenAI  ProviderConfig `yaml:"openai"`
}

// ProviderConfig holds the credential and request settings for one vendor.
// An empty APIKey is valid: the provider answers with its demo text.
type ProviderConfig struct {
	APIKey    string        `yaml:"api_key"`
	Model     string        `yaml:"model"`
	MaxTokens int           `yaml:"max_tokens"`
	BaseURL   string        `yaml:"base_url"`
	Timeout   time.Duration `yaml:"-"`

	// Raw string value for YAML unmarshaling
	TimeoutRaw string `yaml:"timeout"`
}

// BroadcastConfig holds live subscription settings
type BroadcastConfig struct {
	// MaxBacklog is the number of undelivered messages a subscriber may
	// accumulate before it is disconnected. Zero means unbounded.
	MaxBacklog int `yaml:"max_backlog"`
}

// AuditConfig holds the optional SQLite audit ledger settings
type AuditConfig struct {
	Path string `yaml:"path"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level      string `yaml:"level"`
	Format     string `yaml:"format"`
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
}

// Default returns the configuration used when no config file exists.
// Provider credentials are taken from ANTHROPIC_API_KEY and OPENAI_API_KEY.
func Default() *Config {
	cfg := &Config{
		Providers: ProvidersConfig{
			Claude: ProviderConfig{APIKey: os.Getenv("ANTHROPIC_API_KEY")},
			OpenAI: ProviderConfig{APIKey: os.Getenv("OPENAI_API_KEY")},
		},
	}
	applyDefaults(cfg)
	return cfg
}

// Load reads a configuration file from the given path and returns a parsed Config.
// Environment variables in the format ${VAR_NAME} are expanded.
// Duration strings are parsed into time.Duration values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	// Expand environment variables in the raw YAML content
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

// LoadOrDefault behaves like Load but falls back to Default when the file
// does not exist. The boolean reports whether a file was read.
func LoadOrDefault(path string) (*Config, bool, error) {
	cfg, err := Load(path)
	if err == nil {
		return cfg, true, nil
	}
	if errors.Is(err, fs.ErrNotExist) {
		return Default(), false, nil
	}
	return nil, false, err
}

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding environment variable values.
// If the environment variable is not set, it is replaced with an empty string.
func expandEnvVars(s string) string {
	re := regexp.MustCompile(`\$\{([^}]+)\}`)

	return re.ReplaceAllStringFunc(s, func(match string) string {
		varName := re.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}

// applyDefaults fills every unset field with its default value
func applyDefaults(cfg *Config) {
	if cfg.Server.HTTPAddr == "" && !cfg.Tailscale.Enabled {
		cfg.Server.HTTPAddr = defaultHTTPAddr
	}
	if cfg.Tailscale.Enabled && cfg.Tailscale.Hostname == "" {
		cfg.Tailscale.Hostname = "chat-relay"
	}

	cfg.Providers.Default = strings.ToLower(strings.TrimSpace(cfg.Providers.Default))
	if cfg.Providers.Default == "" {
		cfg.Providers.Default = ProviderClaude
	}
	applyProviderDefaults(&cfg.Providers.Claude, defaultClaudeModel)
	applyProviderDefaults(&cfg.Providers.OpenAI, defaultOpenAIModel)

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "text"
	}
	if cfg.Logging.MaxSizeMB == 0 {
		cfg.Logging.MaxSizeMB = 50
	}
	if cfg.Logging.MaxBackups == 0 {
		cfg.Logging.MaxBackups = 3
	}
	if cfg.Logging.MaxAgeDays == 0 {
		cfg.Logging.MaxAgeDays = 28
	}
}

func applyProviderDefaults(p *ProviderConfig, model string) {
	if p.Model == "" {
		p.Model = model
	}
	if p.MaxTokens == 0 {
		p.MaxTokens = defaultMaxTokens
	}
	if p.Timeout == 0 {
		p.Timeout = defaultProviderTimeout
	}
}

// Validate checks that all required configuration fields are present and valid.
// Returns an error describing the first validation failure encountered.
func (c *Config) Validate() error {
	if !c.Tailscale.Enabled && c.Server.HTTPAddr == "" {
		return fmt.Errorf("server.http_addr is required (or enable tailscale)")
	}

	if c.Tailscale.Enabled && c.Tailscale.Hostname == "" {
		return fmt.Errorf("tailscale.hostname is required when tailscale is enabled")
	}

	switch c.Providers.Default {
	case ProviderClaude, ProviderOpenAI:
	default:
		return fmt.Errorf("providers.default must be %q or %q, got %q", ProviderClaude, ProviderOpenAI, c.Providers.Default)
	}

	if c.Providers.Claude.MaxTokens < 0 || c.Providers.OpenAI.MaxTokens < 0 {
		return fmt.Errorf("providers.*.max_tokens must not be negative")
	}

	if c.Providers.Claude.Timeout < 0 || c.Providers.OpenAI.Timeout < 0 {
		return fmt.Errorf("providers.*.timeout must not be negative")
	}

	if c.Broadcast.MaxBacklog < 0 {
		return fmt.Errorf("broadcast.max_backlog must not be negative")
	}

	switch c.Logging.Format {
	case "text", "json":
	default:
		return fmt.Errorf("logging.format must be \"text\" or \"json\", got %q", c.Logging.Format)
	}

	return nil
}

// parseDurations converts the raw duration strings into time.Duration values
func parseDurations(cfg *Config) error {
	for _, p := range []struct {
		name string
		cfg  *ProviderConfig
	}{
		{ProviderClaude, &cfg.Providers.Claude},
		{ProviderOpenAI, &cfg.Providers.OpenAI},
	} {
		if p.cfg.TimeoutRaw == "" {
			continue
		}
		d, err := time.ParseDuration(p.cfg.TimeoutRaw)
		if err != nil {
			return fmt.Errorf("parsing providers.%s.timeout %q: %w", p.name, p.cfg.TimeoutRaw, err)
		}
		p.cfg.Timeout = d
	}
	return nil
}
