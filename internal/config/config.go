// Package config provides configuration loading and validation for the tysttext host.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"github.com/tysttext/host/internal/paths"
)

// Defaults applied when a setting is absent from the config file.
const (
	DefaultLogLevel     = "info"
	DefaultSidecar      = "tysttext-backend"
	DefaultBackendURL   = "http://localhost:8000"
	DefaultStartupDelay = 500 * time.Millisecond
	DefaultStopTimeout  = time.Duration(0)
	DefaultHealthPath   = "/health"
	DefaultReadyTimeout = 30 * time.Second
	DefaultOutputLines  = 1000
)

// Config represents the host configuration.
type Config struct {
	// LogLevel controls logging verbosity ("debug", "info", "warn", "error").
	LogLevel string `toml:"log_level" yaml:"log_level"`

	// LogFile overrides the log file location.
	LogFile string `toml:"log_file" yaml:"log_file"`

	// Backend configures the supervised worker process.
	Backend BackendConfig `toml:"backend" yaml:"backend"`
}

// BackendConfig configures the supervised backend sidecar.
type BackendConfig struct {
	// Sidecar is the logical executable name resolved next to the host binary.
	Sidecar string `toml:"sidecar" yaml:"sidecar"`

	// Path bypasses sidecar resolution with an explicit executable.
	Path string `toml:"path" yaml:"path"`

	// URL is the fixed address the backend listens on.
	URL string `toml:"url" yaml:"url"`

	// StartupDelay is how long the startup hook waits before auto-starting.
	StartupDelay *Duration `toml:"startup_delay" yaml:"startup_delay"`

	// StopTimeout is the grace period between SIGTERM and SIGKILL.
	// Zero kills immediately.
	StopTimeout *Duration `toml:"stop_timeout" yaml:"stop_timeout"`

	// ReconcileOnExit clears the slot when the backend exits on its own.
	ReconcileOnExit *bool `toml:"reconcile_on_exit" yaml:"reconcile_on_exit"`

	// HealthPath is probed after auto-start to report readiness.
	HealthPath string `toml:"health_path" yaml:"health_path"`

	// ReadyTimeout bounds the readiness probe. Zero disables it.
	ReadyTimeout *Duration `toml:"ready_timeout" yaml:"ready_timeout"`

	// OutputLines is the number of recent output lines kept in memory.
	OutputLines int `toml:"output_lines" yaml:"output_lines"`

	// Env is passed to the backend in addition to the host environment.
	Env map[string]string `toml:"env" yaml:"env"`
}

// Duration is a time.Duration decoded from strings like "500ms".
type Duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler (used by the TOML decoder).
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(strings.TrimSpace(string(text)))
	if err != nil {
		return fmt.Errorf("parse duration %q: %w", text, err)
	}
	d.Duration = v
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err != nil {
		return err
	}
	return d.UnmarshalText([]byte(s))
}

// Path returns the config file path honoring TYSTTEXT_DIR.
func Path() (string, error) {
	return paths.ConfigPath()
}

// Load loads the host configuration from the default path.
// Returns nil config and nil error if the file doesn't exist.
func Load() (*Config, error) {
	path, err := Path()
	if err != nil {
		return nil, err
	}
	return LoadFromPath(path)
}

// LoadFromPath loads the config from a specific path. Files ending in .yaml or
// .yml are decoded as YAML, everything else as TOML.
// Returns nil config and nil error if the file doesn't exist.
func LoadFromPath(path string) (*Config, error) {
	var cfg Config
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		data, err := os.ReadFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				return nil, nil
			}
			return nil, err
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("decode %s: %w", path, err)
		}
	default:
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			if os.IsNotExist(err) {
				return nil, nil
			}
			return nil, fmt.Errorf("decode %s: %w", path, err)
		}
	}
	return &cfg, nil
}

// GetLogLevel returns the configured log level or the default.
func (c *Config) GetLogLevel() string {
	if c != nil && c.LogLevel != "" {
		return c.LogLevel
	}
	return DefaultLogLevel
}

// GetLogFile returns the configured log file or the default path.
func (c *Config) GetLogFile() string {
	if c != nil && c.LogFile != "" {
		return c.LogFile
	}
	return paths.LogPath()
}

// GetSidecar returns the logical backend sidecar name.
func (c *Config) GetSidecar() string {
	if c != nil && c.Backend.Sidecar != "" {
		return c.Backend.Sidecar
	}
	return DefaultSidecar
}

// GetBackendPath returns the explicit backend executable, if configured.
func (c *Config) GetBackendPath() string {
	if c == nil {
		return ""
	}
	return c.Backend.Path
}

// GetBackendURL returns the fixed backend address.
func (c *Config) GetBackendURL() string {
	if c != nil && c.Backend.URL != "" {
		return strings.TrimRight(c.Backend.URL, "/")
	}
	return DefaultBackendURL
}

// GetStartupDelay returns the delay before the startup hook starts the backend.
func (c *Config) GetStartupDelay() time.Duration {
	if c != nil && c.Backend.StartupDelay != nil {
		return c.Backend.StartupDelay.Duration
	}
	return DefaultStartupDelay
}

// GetStopTimeout returns the graceful stop period.
func (c *Config) GetStopTimeout() time.Duration {
	if c != nil && c.Backend.StopTimeout != nil {
		return c.Backend.StopTimeout.Duration
	}
	return DefaultStopTimeout
}

// GetReconcileOnExit reports whether an observed exit clears the slot.
func (c *Config) GetReconcileOnExit() bool {
	if c != nil && c.Backend.ReconcileOnExit != nil {
		return *c.Backend.ReconcileOnExit
	}
	return true
}

// GetHealthPath returns the readiness probe path.
func (c *Config) GetHealthPath() string {
	if c != nil && c.Backend.HealthPath != "" {
		return c.Backend.HealthPath
	}
	return DefaultHealthPath
}

// GetReadyTimeout returns the readiness probe timeout (zero disables it).
func (c *Config) GetReadyTimeout() time.Duration {
	if c != nil && c.Backend.ReadyTimeout != nil {
		return c.Backend.ReadyTimeout.Duration
	}
	return DefaultReadyTimeout
}

// GetOutputLines returns the output buffer capacity.
func (c *Config) GetOutputLines() int {
	if c != nil && c.Backend.OutputLines > 0 {
		return c.Backend.OutputLines
	}
	return DefaultOutputLines
}

// GetBackendEnv returns the backend environment as KEY=VALUE pairs.
func (c *Config) GetBackendEnv() []string {
	if c == nil || len(c.Backend.Env) == 0 {
		return nil
	}
	env := make([]string, 0, len(c.Backend.Env))
	for k, v := range c.Backend.Env {
		env = append(env, k+"="+v)
	}
	sort.Strings(env)
	return env
}
