// Package daemon provides the host's IPC server, client and protocol.
package daemon

import "time"

// MessageType identifies the type of IPC message.
type MessageType string

const (
	// Host management
	MsgPing     MessageType = "ping"
	MsgShutdown MessageType = "shutdown" // Close the host as if its window closed

	// Backend control
	MsgBackendStart  MessageType = "backend.start"
	MsgBackendStop   MessageType = "backend.stop"
	MsgBackendURL    MessageType = "backend.url"
	MsgBackendStatus MessageType = "backend.status"
	MsgBackendLogs   MessageType = "backend.logs" // Buffered backend output

	// Streaming
	MsgAttach MessageType = "attach" // Subscribe to backend events
	MsgDetach MessageType = "detach"
)

// Request is the envelope for all IPC requests.
type Request struct {
	Type    MessageType `json:"type"`
	ID      string      `json:"id,omitempty"`      // Optional request ID for correlation
	Payload any         `json:"payload,omitempty"` // Type-specific payload
}

// Response is the envelope for all IPC responses.
type Response struct {
	Type    MessageType `json:"type"`
	ID      string      `json:"id,omitempty"` // Correlates with request ID
	Success bool        `json:"success"`
	Error   string      `json:"error,omitempty"`
	Payload any         `json:"payload,omitempty"` // Type-specific payload
}

// PingResponse is the payload for ping responses.
type PingResponse struct {
	Version   string    `json:"version"`
	PID       int       `json:"pid"`
	Uptime    string    `json:"uptime"`
	StartedAt time.Time `json:"started_at"`
}

// MessageResponse carries the status message of backend.start and
// backend.stop.
type MessageResponse struct {
	Message string `json:"message"`
}

// URLResponse is the payload for backend.url responses.
type URLResponse struct {
	URL string `json:"url"`
}

// StatusResponse is the payload for backend.status responses.
type StatusResponse struct {
	Host    HostStatus    `json:"host"`
	Backend BackendStatus `json:"backend"`
}

// HostStatus describes the host process.
type HostStatus struct {
	PID       int       `json:"pid"`
	Version   string    `json:"version"`
	StartedAt time.Time `json:"started_at"`
	Headless  bool      `json:"headless"`
}

// BackendStatus describes the supervised backend.
type BackendStatus struct {
	Running    bool       `json:"running"`
	Starting   bool       `json:"starting,omitempty"`
	RunID      string     `json:"run_id,omitempty"`
	PID        int        `json:"pid,omitempty"`
	StartedAt  *time.Time `json:"started_at,omitempty"`
	Address    string     `json:"address"`
	LastExit   *ExitInfo  `json:"last_exit,omitempty"`
	Executable string     `json:"executable,omitempty"`
}

// ExitInfo describes the last observed backend termination.
type ExitInfo struct {
	Code   *int   `json:"code,omitempty"` // nil when killed by a signal
	Signal string `json:"signal,omitempty"`
}

// LogsRequest is the payload for backend.logs requests.
type LogsRequest struct {
	Lines int `json:"lines,omitempty"` // 0 means everything buffered
}

// LogsResponse is the payload for backend.logs responses.
type LogsResponse struct {
	Lines []LogLine `json:"lines"`
}

// LogLine is one line of backend output.
type LogLine struct {
	Stream string    `json:"stream"` // stdout or stderr
	Text   string    `json:"text"`
	At     time.Time `json:"at"`
	RunID  string    `json:"run_id,omitempty"`
}

// StreamEvent is pushed to attached clients.
type StreamEvent struct {
	Type  string    `json:"type"` // output, started, stopped, exited
	RunID string    `json:"run_id,omitempty"`
	Time  time.Time `json:"time"`
	Line  *LogLine  `json:"line,omitempty"`
	Exit  *ExitInfo `json:"exit,omitempty"`
}
