package supervisor

import (
	"errors"
	"fmt"
)

// ErrClosed is returned by Start once the supervisor has been closed.
var ErrClosed = errors.New("backend supervisor is closed")

// ErrLockPoisoned means a previous critical section on the state guard
// panicked.
var ErrLockPoisoned = errors.New("state lock poisoned")

// Spawn stages reported by SpawnError.
const (
	StageResolve = "resolve"
	StageSpawn   = "spawn"
	StageRecord  = "record"
)

// LockError is returned when the state guard cannot be acquired.
// The supervisor stays usable; a later call may succeed.
type LockError struct {
	Op    string
	Panic any // value recovered from the critical section, if this call panicked
	Err   error
}

func (e *LockError) Error() string {
	return fmt.Sprintf("Failed to lock backend state during %s: %v", e.Op, e.Err)
}

func (e *LockError) Unwrap() error {
	return e.Err
}

// SpawnError is returned when the backend could not be started. The slot is
// left empty.
type SpawnError struct {
	Stage string
	Err   error
}

func (e *SpawnError) Error() string {
	switch e.Stage {
	case StageResolve:
		return fmt.Sprintf("Failed to create sidecar command: %v", e.Err)
	case StageRecord:
		return fmt.Sprintf("Failed to record backend handle: %v", e.Err)
	default:
		return fmt.Sprintf("Failed to spawn backend: %v", e.Err)
	}
}

func (e *SpawnError) Unwrap() error {
	return e.Err
}

// KillError is returned when the OS refused to terminate the backend.
// The slot has already been cleared.
type KillError struct {
	RunID string
	PID   int
	Err   error
}

func (e *KillError) Error() string {
	return fmt.Sprintf("Failed to kill backend: %v", e.Err)
}

func (e *KillError) Unwrap() error {
	return e.Err
}

var errNoResolver = errors.New("no sidecar resolver configured")
