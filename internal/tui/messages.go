package tui

import "github.com/tysttext/host/internal/supervisor"

// BackendEventMsg delivers a supervisor event to the window.
type BackendEventMsg struct {
	Event supervisor.Event
}

// CloseRequestMsg asks the window to close the way the quit key does:
// the backend is stopped first.
type CloseRequestMsg struct{}

// commandResultMsg carries the outcome of a start or stop command.
type commandResultMsg struct {
	message string
	err     error
}

// closedMsg is sent once the close hook has run.
type closedMsg struct{}
