// Package paths provides a single source of truth for tysttext host file paths.
// All path helpers honor environment variable overrides for isolated testing.
//
// Path resolution precedence:
//  1. Specific env vars (TYSTTEXT_SOCKET_PATH, TYSTTEXT_PID_PATH) take highest priority
//  2. TYSTTEXT_DIR sets the base directory (derives socket/pid/lock/log/config)
//  3. Default behavior (~/.tysttext, ~/.config/tysttext) when no env vars are set
package paths

import (
	"os"
	"path/filepath"
)

// Environment variable names for path overrides.
const (
	// EnvBaseDir is the base directory override (e.g., /tmp/tysttext-e2e).
	EnvBaseDir = "TYSTTEXT_DIR"

	// EnvSocketPath overrides the IPC socket path directly.
	EnvSocketPath = "TYSTTEXT_SOCKET_PATH"

	// EnvPIDPath overrides the host PID file path directly.
	EnvPIDPath = "TYSTTEXT_PID_PATH"
)

const fallbackDir = "/tmp/tysttext"

// BaseDir returns the host base directory (~/.tysttext by default).
// Honors TYSTTEXT_DIR.
func BaseDir() (string, error) {
	if dir := os.Getenv(EnvBaseDir); dir != "" {
		return dir, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".tysttext"), nil
}

// ConfigDir returns the config directory (~/.config/tysttext by default).
// When TYSTTEXT_DIR is set, returns TYSTTEXT_DIR/config instead.
func ConfigDir() (string, error) {
	if dir := os.Getenv(EnvBaseDir); dir != "" {
		return filepath.Join(dir, "config"), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "tysttext"), nil
}

// ConfigPath returns the path to the host config file.
func ConfigPath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.toml"), nil
}

// SocketPath returns the IPC socket path.
// Precedence: TYSTTEXT_SOCKET_PATH > TYSTTEXT_DIR/host.sock > ~/.tysttext/host.sock
func SocketPath() string {
	if path := os.Getenv(EnvSocketPath); path != "" {
		return path
	}
	return inBase("host.sock")
}

// PIDPath returns the host PID file path.
// Precedence: TYSTTEXT_PID_PATH > TYSTTEXT_DIR/host.pid > ~/.tysttext/host.pid
func PIDPath() string {
	if path := os.Getenv(EnvPIDPath); path != "" {
		return path
	}
	return inBase("host.pid")
}

// LockPath returns the single-instance lock file path.
func LockPath() string {
	return inBase("host.lock")
}

// LogPath returns the default log file path.
func LogPath() string {
	return inBase("host.log")
}

func inBase(name string) string {
	base, err := BaseDir()
	if err != nil {
		return filepath.Join(fallbackDir, name)
	}
	return filepath.Join(base, name)
}
