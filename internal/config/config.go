package config

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"strings"

	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"
)

// Defaults applied when the file or environment leaves a value unset.
const (
	// DefaultAddr is the listen address.
	DefaultAddr = ":3000"
	// DefaultPath is the endpoint path used by LoadFromEnv.
	DefaultPath = "/slack/events"
	// DefaultMaxBodyBytes caps request bodies at 1 MiB.
	DefaultMaxBodyBytes = 1 << 20
	// DefaultSecretEnv names the variable holding the signing secret.
	DefaultSecretEnv = "SLACK_SIGNING_SECRET"
)

// Config represents the receiver configuration
type Config struct {
	Server    ServerConfig     `yaml:"server"`
	Endpoints []EndpointConfig `yaml:"endpoints"`
	Log       LogConfig        `yaml:"log"`
}

// ServerConfig represents the HTTP listener settings
type ServerConfig struct {
	Addr         string `yaml:"addr"`
	MaxBodyBytes int64  `yaml:"max_body_bytes,omitempty"`
}

// EndpointConfig represents one signed-request endpoint
type EndpointConfig struct {
	Name      string `yaml:"name"`
	Path      string `yaml:"path"`
	SecretEnv string `yaml:"secret_env,omitempty"` // env var holding the signing secret
	Secret    string `yaml:"secret,omitempty"`     // inline secret, for local development only
}

// LogConfig represents logger settings
type LogConfig struct {
	Level       string `yaml:"level,omitempty"` // debug | info | warn | error
	Development bool   `yaml:"development,omitempty"`
}

// Load reads configuration from the specified YAML file
// Environment variables override file values:
// - SLACKVERIFY_ADDR overrides server.addr
// - SLACKVERIFY_LOG_LEVEL overrides log.level
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	cfg.applyEnv()
	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// LoadFromEnv builds a single-endpoint configuration from environment variables
// - SLACKVERIFY_ADDR: listen address (default ":3000")
// - SLACKVERIFY_PATH: endpoint path (default "/slack/events")
// - SLACK_SIGNING_SECRET: signing secret (required)
// - SLACKVERIFY_LOG_LEVEL: log level (default "info")
func LoadFromEnv() (*Config, error) {
	path := os.Getenv("SLACKVERIFY_PATH")
	if path == "" {
		path = DefaultPath
	}

	cfg := Config{
		Endpoints: []EndpointConfig{{
			Name:      "default",
			Path:      path,
			SecretEnv: DefaultSecretEnv,
		}},
	}
	cfg.applyEnv()
	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

func (c *Config) applyEnv() {
	if addr := os.Getenv("SLACKVERIFY_ADDR"); addr != "" {
		c.Server.Addr = addr
	}
	if level := os.Getenv("SLACKVERIFY_LOG_LEVEL"); level != "" {
		c.Log.Level = level
	}
}

func (c *Config) applyDefaults() {
	if c.Server.Addr == "" {
		c.Server.Addr = DefaultAddr
	}
	if c.Server.MaxBodyBytes == 0 {
		c.Server.MaxBodyBytes = DefaultMaxBodyBytes
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Server.Addr == "" {
		return fmt.Errorf("server.addr is required")
	}

	if c.Server.MaxBodyBytes < 0 {
		return fmt.Errorf("server.max_body_bytes must not be negative")
	}

	if _, err := zapcore.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("log.level: %w", err)
	}

	if len(c.Endpoints) == 0 {
		return fmt.Errorf("at least one endpoint is required")
	}

	names := make(map[string]bool, len(c.Endpoints))
	paths := make(map[string]bool, len(c.Endpoints))
	for i, ep := range c.Endpoints {
		if ep.Name == "" {
			return fmt.Errorf("endpoints[%d].name is required", i)
		}
		if names[ep.Name] {
			return fmt.Errorf("endpoints[%d].name %q is duplicated", i, ep.Name)
		}
		names[ep.Name] = true

		if !strings.HasPrefix(ep.Path, "/") {
			return fmt.Errorf("endpoints[%d].path must start with \"/\"", i)
		}
		if paths[ep.Path] {
			return fmt.Errorf("endpoints[%d].path %q is duplicated", i, ep.Path)
		}
		paths[ep.Path] = true

		if len(ep.ResolveSecret()) == 0 {
			if ep.SecretEnv != "" {
				return fmt.Errorf("endpoints[%d]: environment variable %s is empty", i, ep.SecretEnv)
			}
			return fmt.Errorf("endpoints[%d]: secret_env or secret is required", i)
		}
	}

	return nil
}

// ResolveSecret returns the signing secret for the endpoint.
// The environment variable named by SecretEnv takes precedence over Secret.
func (e EndpointConfig) ResolveSecret() []byte {
	if e.SecretEnv != "" {
		if v := os.Getenv(e.SecretEnv); v != "" {
			return []byte(v)
		}
	}
	if e.Secret != "" {
		return []byte(e.Secret)
	}
	return nil
}

// SecretFingerprint returns a loggable identifier for a secret: the first
// 8 hex characters of its SHA-256 digest and its length. No character of the
// secret itself appears in the result.
func SecretFingerprint(secret string) string {
	if secret == "" {
		return "(empty)"
	}
	sum := sha256.Sum256([]byte(secret))
	return fmt.Sprintf("sha256:%s (%d bytes)", hex.EncodeToString(sum[:4]), len(secret))
}
