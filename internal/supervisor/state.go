package supervisor

import (
	"log/slog"
	"sync"

	"github.com/tysttext/host/internal/worker"
)

// Slot is the guarded storage for the live worker handle.
type Slot struct {
	// Handle is non-nil iff the backend is known to be running.
	Handle worker.Handle
	// Spawning reserves the slot while a start is between claiming it and
	// recording the spawned handle.
	Spawning bool
	// LastExit is the last termination observed for any run.
	LastExit *worker.Terminated
	// Closed refuses every later start.
	Closed bool

	// spawned is closed once the current reservation ends, after an
	// unrecorded handle has been killed.
	spawned chan struct{}
}

// Occupied reports whether a start must not spawn another worker.
func (s *Slot) Occupied() bool {
	return s.Handle != nil || s.Spawning
}

// State is the mutex-guarded slot shared by every supervisor operation.
//
// sync.Mutex does not poison, so State tracks it: a panic inside With marks
// the guard poisoned and the next acquisition fails once with ErrLockPoisoned
// before the guard recovers.
type State struct {
	// +checklocks:mu
	slot Slot
	// +checklocks:mu
	poisoned bool
	mu       sync.Mutex
}

// NewState returns an empty state.
func NewState() *State {
	return &State{}
}

// With runs fn while holding the guard. fn must not block.
func (s *State) With(op string, fn func(*Slot)) (err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.poisoned {
		s.poisoned = false
		return &LockError{Op: op, Err: ErrLockPoisoned}
	}

	defer func() {
		if r := recover(); r != nil {
			s.poisoned = true
			slog.Error("panic while holding backend state lock", "op", op, "panic", r)
			err = &LockError{Op: op, Panic: r, Err: ErrLockPoisoned}
		}
	}()

	fn(&s.slot)
	return nil
}
