package cli

import (
	"errors"
	"fmt"
	"os"
	"syscall"

	"github.com/tysttext/host/internal/daemon"
)

// ErrHostNotRunning indicates no host is listening on the control socket.
var ErrHostNotRunning = errors.New("host is not running")

// socketPath is the control socket path (can be overridden for testing).
var socketPath string

// SetSocketPath overrides the default socket path.
// This is primarily useful for testing.
func SetSocketPath(path string) {
	socketPath = path
}

// getSocketPath returns the socket path to use.
func getSocketPath() string {
	if socketPath != "" {
		return socketPath
	}
	return daemon.DefaultSocketPath()
}

// NewClient creates a host client with the configured socket path.
func NewClient() *daemon.Client {
	return daemon.NewClient(getSocketPath())
}

// ConnectClient creates and connects a host client.
// Returns ErrHostNotRunning if no host is listening.
func ConnectClient() (*daemon.Client, error) {
	client := NewClient()
	if err := client.Connect(); err != nil {
		if isNotListening(err) {
			return nil, ErrHostNotRunning
		}
		return nil, fmt.Errorf("connect to host: %w", err)
	}
	return client, nil
}

// isNotListening reports whether err means the socket is absent or nobody
// accepts on it.
func isNotListening(err error) bool {
	return errors.Is(err, os.ErrNotExist) || errors.Is(err, syscall.ECONNREFUSED)
}

// connect is ConnectClient with a hint on how to start the host.
func connect() (*daemon.Client, error) {
	client, err := ConnectClient()
	if errors.Is(err, ErrHostNotRunning) {
		return nil, fmt.Errorf("%w (start it with: tysttext run)", err)
	}
	return client, err
}

// IsHostRunning checks if a host is listening without keeping a connection.
func IsHostRunning() bool {
	client := NewClient()
	if err := client.Connect(); err != nil {
		return false
	}
	client.Close()
	return true
}
