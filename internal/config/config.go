// Package config loads the relay's deployment configuration.
//
// Order of precedence (lowest to highest):
//   - built-in defaults (defaults.go)
//   - optional YAML file, with ${VAR} expansion
//   - RELAY_* environment overrides
//
// Upstream credentials (OPENAI_API_KEY and friends) are NOT part of Config.
// They are read from the environment at request entry by relay.ResolveRequestConfig.
package config

import (
	"fmt"
	"net/url"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Mode selects which upstream request shape the relay dispatches.
type Mode string

const (
	// ModeAssistant dispatches with assistant_id and the assistants beta header.
	ModeAssistant Mode = "assistant"

	// ModeDirectModel dispatches with a model name and a system instruction.
	ModeDirectModel Mode = "direct-model"
)

// ParseMode converts a string to Mode. Unknown values return an error.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "assistant", "assistants":
		return ModeAssistant, nil
	case "direct-model", "direct_model", "model":
		return ModeDirectModel, nil
	default:
		return "", fmt.Errorf("unknown upstream mode %q", s)
	}
}

// Config is the full deployment configuration.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Upstream   UpstreamConfig   `yaml:"upstream"`
	Monitoring MonitoringConfig `yaml:"monitoring"`
}

// ServerConfig controls the inbound HTTP server.
type ServerConfig struct {
	Port            int           `yaml:"port"`
	StreamPath      string        `yaml:"stream_path"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// UpstreamConfig selects the relay variant and where it sends requests.
type UpstreamConfig struct {
	BaseURL string `yaml:"base_url"`
	Mode    Mode   `yaml:"mode"`

	// Preflight verifies the assistant is visible to the credentials before streaming.
	Preflight bool `yaml:"preflight"`

	// RequireProject enables the strict guard that rejects requests without OPENAI_PROJECT.
	RequireProject bool `yaml:"require_project"`

	// Model and Instructions are used in direct-model mode only.
	Model        string `yaml:"model"`
	Instructions string `yaml:"instructions"`

	DialTimeout time.Duration `yaml:"dial_timeout"`
}

// MonitoringConfig controls logging and telemetry.
type MonitoringConfig struct {
	LogLevel      string `yaml:"log_level"`
	LogFormat     string `yaml:"log_format"` // auto, json, console
	LogOutput     string `yaml:"log_output"` // stdout, stderr, or a file path
	TelemetryPath string `yaml:"telemetry_path"`
}

// Default returns a Config populated with built-in defaults.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            DefaultPort,
			StreamPath:      DefaultStreamPath,
			ReadTimeout:     DefaultReadTimeout,
			WriteTimeout:    DefaultServerWriteTimeout,
			ShutdownTimeout: DefaultShutdownTimeout,
		},
		Upstream: UpstreamConfig{
			BaseURL:     DefaultUpstreamBaseURL,
			Mode:        ModeAssistant,
			Model:       DefaultModel,
			DialTimeout: DefaultDialTimeout,
		},
		Monitoring: MonitoringConfig{
			LogLevel:  DefaultLogLevel,
			LogFormat: DefaultLogFormat,
			LogOutput: DefaultLogOutput,
		},
	}
}

// Load builds a Config from defaults, the optional YAML file at path, and
// RELAY_* environment overrides. An empty path skips the file.
func Load(path string, getenv func(string) string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path) // #nosec G304 -- operator-supplied config path
		if err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := Parse(cfg, data, getenv); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if err := cfg.ApplyEnv(getenv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// envRefPattern matches ${NAME}. Bare $NAME and $1 are left as written.
var envRefPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// Parse decodes YAML into cfg after expanding ${VAR} references with getenv.
// Fields absent from the document keep their current values.
func Parse(cfg *Config, data []byte, getenv func(string) string) error {
	return yaml.Unmarshal(ExpandEnvRefs(data, getenv), cfg)
}

// ExpandEnvRefs replaces every ${NAME} in data with getenv(NAME).
func ExpandEnvRefs(data []byte, getenv func(string) string) []byte {
	return envRefPattern.ReplaceAllFunc(data, func(ref []byte) []byte {
		name := envRefPattern.FindSubmatch(ref)[1]
		return []byte(getenv(string(name)))
	})
}

// ApplyEnv applies RELAY_* overrides.
func (c *Config) ApplyEnv(getenv func(string) string) error {
	if v := getenv("RELAY_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid RELAY_PORT %q: %w", v, err)
		}
		c.Server.Port = port
	}
	if v := getenv("RELAY_UPSTREAM_URL"); v != "" {
		c.Upstream.BaseURL = v
	}
	if v := getenv("RELAY_MODE"); v != "" {
		mode, err := ParseMode(v)
		if err != nil {
			return err
		}
		c.Upstream.Mode = mode
	}
	if v := getenv("RELAY_PREFLIGHT"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid RELAY_PREFLIGHT %q: %w", v, err)
		}
		c.Upstream.Preflight = b
	}
	if v := getenv("RELAY_REQUIRE_PROJECT"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid RELAY_REQUIRE_PROJECT %q: %w", v, err)
		}
		c.Upstream.RequireProject = b
	}
	if v := getenv("RELAY_MODEL"); v != "" {
		c.Upstream.Model = v
	}
	if v := getenv("RELAY_LOG_LEVEL"); v != "" {
		c.Monitoring.LogLevel = v
	}
	return nil
}

// Validate checks the config for values the relay cannot run with.
func (c *Config) Validate() error {
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port %d out of range", c.Server.Port)
	}
	if !strings.HasPrefix(c.Server.StreamPath, "/") {
		return fmt.Errorf("server.stream_path must start with '/', got %q", c.Server.StreamPath)
	}

	mode, err := ParseMode(string(c.Upstream.Mode))
	if err != nil {
		return err
	}
	c.Upstream.Mode = mode

	u, err := url.Parse(c.Upstream.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("upstream.base_url %q is not an absolute URL", c.Upstream.BaseURL)
	}
	c.Upstream.BaseURL = strings.TrimRight(c.Upstream.BaseURL, "/")

	if c.Upstream.Preflight && c.Upstream.Mode != ModeAssistant {
		return fmt.Errorf("upstream.preflight requires mode %q", ModeAssistant)
	}
	return nil
}
