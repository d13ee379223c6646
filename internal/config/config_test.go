package config

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func TestLoadFromPath_Missing(t *testing.T) {
	cfg, err := LoadFromPath(filepath.Join(t.TempDir(), "missing.toml"))
	if err != nil {
		t.Fatalf("LoadFromPath() error = %v", err)
	}
	if cfg != nil {
		t.Fatalf("LoadFromPath() = %+v, want nil", cfg)
	}
}

func TestLoadFromPath_TOML(t *testing.T) {
	path := writeFile(t, "config.toml", `
log_level = "debug"

[backend]
sidecar = "my-backend"
url = "http://127.0.0.1:9000/"
startup_delay = "1s"
stop_timeout = "3s"
reconcile_on_exit = false
ready_timeout = "0s"
output_lines = 50

[backend.env]
HF_TOKEN = "secret"
MODELS_DIR = "/data/models"
`)

	cfg, err := LoadFromPath(path)
	if err != nil {
		t.Fatalf("LoadFromPath() error = %v", err)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}

	if got := cfg.GetLogLevel(); got != "debug" {
		t.Errorf("GetLogLevel() = %q, want debug", got)
	}
	if got := cfg.GetSidecar(); got != "my-backend" {
		t.Errorf("GetSidecar() = %q, want my-backend", got)
	}
	if got := cfg.GetBackendURL(); got != "http://127.0.0.1:9000" {
		t.Errorf("GetBackendURL() = %q, want trailing slash trimmed", got)
	}
	if got := cfg.GetStartupDelay(); got != time.Second {
		t.Errorf("GetStartupDelay() = %v, want 1s", got)
	}
	if got := cfg.GetStopTimeout(); got != 3*time.Second {
		t.Errorf("GetStopTimeout() = %v, want 3s", got)
	}
	if cfg.GetReconcileOnExit() {
		t.Error("GetReconcileOnExit() = true, want false")
	}
	if got := cfg.GetReadyTimeout(); got != 0 {
		t.Errorf("GetReadyTimeout() = %v, want 0 (disabled)", got)
	}
	if got := cfg.GetOutputLines(); got != 50 {
		t.Errorf("GetOutputLines() = %d, want 50", got)
	}
	want := []string{"HF_TOKEN=secret", "MODELS_DIR=/data/models"}
	if got := cfg.GetBackendEnv(); !reflect.DeepEqual(got, want) {
		t.Errorf("GetBackendEnv() = %v, want %v", got, want)
	}
}

func TestLoadFromPath_YAML(t *testing.T) {
	path := writeFile(t, "config.yaml", `
log_level: warn
backend:
  url: https://backend.local:8443
  startup_delay: 250ms
  stop_timeout: 2s
`)

	cfg, err := LoadFromPath(path)
	if err != nil {
		t.Fatalf("LoadFromPath() error = %v", err)
	}
	if got := cfg.GetLogLevel(); got != "warn" {
		t.Errorf("GetLogLevel() = %q, want warn", got)
	}
	if got := cfg.GetBackendURL(); got != "https://backend.local:8443" {
		t.Errorf("GetBackendURL() = %q", got)
	}
	if got := cfg.GetStartupDelay(); got != 250*time.Millisecond {
		t.Errorf("GetStartupDelay() = %v, want 250ms", got)
	}
	if got := cfg.GetStopTimeout(); got != 2*time.Second {
		t.Errorf("GetStopTimeout() = %v, want 2s", got)
	}
	if got := cfg.GetSidecar(); got != DefaultSidecar {
		t.Errorf("GetSidecar() = %q, want default", got)
	}
}

func TestLoadFromPath_BadDuration(t *testing.T) {
	path := writeFile(t, "config.toml", `
[backend]
startup_delay = "soon"
`)
	if _, err := LoadFromPath(path); err == nil {
		t.Fatal("expected decode error for invalid duration")
	}
}

func TestDefaults(t *testing.T) {
	for _, cfg := range []*Config{nil, {}} {
		if got := cfg.GetLogLevel(); got != DefaultLogLevel {
			t.Errorf("GetLogLevel() = %q, want %q", got, DefaultLogLevel)
		}
		if got := cfg.GetSidecar(); got != DefaultSidecar {
			t.Errorf("GetSidecar() = %q, want %q", got, DefaultSidecar)
		}
		if got := cfg.GetBackendURL(); got != DefaultBackendURL {
			t.Errorf("GetBackendURL() = %q, want %q", got, DefaultBackendURL)
		}
		if got := cfg.GetStartupDelay(); got != DefaultStartupDelay {
			t.Errorf("GetStartupDelay() = %v, want %v", got, DefaultStartupDelay)
		}
		if got := cfg.GetStopTimeout(); got != DefaultStopTimeout {
			t.Errorf("GetStopTimeout() = %v, want %v", got, DefaultStopTimeout)
		}
		if !cfg.GetReconcileOnExit() {
			t.Error("GetReconcileOnExit() = false, want true")
		}
		if got := cfg.GetHealthPath(); got != DefaultHealthPath {
			t.Errorf("GetHealthPath() = %q, want %q", got, DefaultHealthPath)
		}
		if got := cfg.GetReadyTimeout(); got != DefaultReadyTimeout {
			t.Errorf("GetReadyTimeout() = %v, want %v", got, DefaultReadyTimeout)
		}
		if got := cfg.GetOutputLines(); got != DefaultOutputLines {
			t.Errorf("GetOutputLines() = %d, want %d", got, DefaultOutputLines)
		}
		if got := cfg.GetBackendEnv(); got != nil {
			t.Errorf("GetBackendEnv() = %v, want nil", got)
		}
		if err := cfg.Validate(); err != nil {
			t.Errorf("Validate() error = %v", err)
		}
	}
}

func TestValidate(t *testing.T) {
	negative := &Duration{Duration: -time.Second}

	tests := []struct {
		name    string
		cfg     *Config
		wantErr error
	}{
		{"bad log level", &Config{LogLevel: "loud"}, ErrInvalidLogLevel},
		{"sidecar with slash", &Config{Backend: BackendConfig{Sidecar: "bin/backend"}}, ErrInvalidSidecar},
		{"relative url", &Config{Backend: BackendConfig{URL: "localhost:8000"}}, ErrInvalidBackendURL},
		{"ftp url", &Config{Backend: BackendConfig{URL: "ftp://localhost"}}, ErrInvalidBackendURL},
		{"negative delay", &Config{Backend: BackendConfig{StartupDelay: negative}}, ErrNegativeDuration},
		{"negative stop timeout", &Config{Backend: BackendConfig{StopTimeout: negative}}, ErrNegativeDuration},
		{"health path", &Config{Backend: BackendConfig{HealthPath: "health"}}, ErrInvalidHealthPath},
		{"output lines", &Config{Backend: BackendConfig{OutputLines: MaxOutputLines + 1}}, ErrInvalidOutputLines},
		{"env key", &Config{Backend: BackendConfig{Env: map[string]string{"A=B": "x"}}}, ErrInvalidEnvVariable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("Validate() = %v, want %v", err, tt.wantErr)
			}
			var ve *ValidationError
			if !errors.As(err, &ve) {
				t.Fatalf("Validate() error is not a *ValidationError: %T", err)
			}
		})
	}
}

func TestValidate_ExplicitPathSkipsSidecar(t *testing.T) {
	cfg := &Config{Backend: BackendConfig{Sidecar: "bad/name", Path: "/opt/backend"}}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
}

func TestValidate_ReportsAllErrors(t *testing.T) {
	cfg := &Config{LogLevel: "loud", Backend: BackendConfig{URL: "nope", HealthPath: "x"}}
	err := cfg.Validate()
	for _, want := range []error{ErrInvalidLogLevel, ErrInvalidBackendURL, ErrInvalidHealthPath} {
		if !errors.Is(err, want) {
			t.Errorf("Validate() missing %v in %v", want, err)
		}
	}
}
