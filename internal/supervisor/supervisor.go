// Package supervisor owns the single backend process: it starts it, drains its
// output, and stops it, guaranteeing at most one instance at a time.
package supervisor

import (
	"log/slog"
	"time"

	"github.com/tysttext/host/internal/event"
	"github.com/tysttext/host/internal/logging"
	"github.com/tysttext/host/internal/worker"
)

// DefaultAddress is the address the backend listens on.
const DefaultAddress = "http://localhost:8000"

// Status is the result message of Start and Stop.
type Status string

const (
	StatusStarted        Status = "Backend started"
	StatusAlreadyRunning Status = "Backend already running"
	StatusStopped        Status = "Backend stopped"
	StatusNotRunning     Status = "Backend was not running"
)

func (s Status) String() string {
	return string(s)
}

// Resolver locates the backend executable.
type Resolver interface {
	Resolve() (string, error)
}

// ResolverFunc adapts a function to Resolver.
type ResolverFunc func() (string, error)

func (f ResolverFunc) Resolve() (string, error) {
	return f()
}

// EventKind classifies supervisor events.
type EventKind string

const (
	// EventOutput carries a drained worker event.
	EventOutput  EventKind = "output"
	EventStarted EventKind = "started"
	EventStopped EventKind = "stopped"
	// EventExited is sent when a run's stream ends, whether or not the slot
	// was reconciled.
	EventExited  EventKind = "exited"
)

// Event is delivered to OnEvent subscribers.
type Event struct {
	Kind   EventKind
	RunID  string
	At     time.Time
	Worker worker.Event // set for EventOutput and EventExited
}

// Snapshot is a point-in-time view of the supervisor.
type Snapshot struct {
	Running   bool
	Starting  bool
	RunID     string
	PID       int
	StartedAt time.Time
	Address   string
	LastExit  *worker.Terminated
}

// Options configures a Supervisor.
type Options struct {
	Spawner  worker.Spawner
	Resolver Resolver
	// Address is returned by Address. Defaults to DefaultAddress.
	Address string
	// Env is appended to the backend's environment.
	Env []string
	// ReconcileOnExit clears the slot when the running backend's stream ends.
	// When false the slot stays occupied until an explicit Stop.
	ReconcileOnExit bool
	// OutputLines bounds the retained output (worker.DefaultOutputLines if zero).
	OutputLines int
	// Sink receives drained events. Defaults to a logger with component=backend.
	Sink Sink
}

// Supervisor manages the backend. Create one with New; it is safe for
// concurrent use.
type Supervisor struct {
	state     *State
	spawner   worker.Spawner
	resolver  Resolver
	address   string
	env       []string
	reconcile bool
	sink      Sink
	output    *worker.OutputBuffer
	events    event.Emitter[Event]
}

// New creates an idle Supervisor.
func New(opts Options) *Supervisor {
	addr := opts.Address
	if addr == "" {
		addr = DefaultAddress
	}
	sink := opts.Sink
	if sink == nil {
		sink = logging.Component("backend")
	}
	spawner := opts.Spawner
	if spawner == nil {
		spawner = &worker.ExecSpawner{}
	}
	return &Supervisor{
		state:     NewState(),
		spawner:   spawner,
		resolver:  opts.Resolver,
		address:   addr,
		env:       opts.Env,
		reconcile: opts.ReconcileOnExit,
		sink:      sink,
		output:    worker.NewOutputBuffer(opts.OutputLines),
	}
}

// Start spawns the backend unless one is already running or starting.
// After Close it returns ErrClosed.
func (s *Supervisor) Start() (Status, error) {
	busy, closed := false, false
	var spawned chan struct{}
	if err := s.state.With("start", func(slot *Slot) {
		switch {
		case slot.Closed:
			closed = true
		case slot.Occupied():
			busy = true
		default:
			slot.Spawning = true
			slot.spawned = make(chan struct{})
			spawned = slot.spawned
		}
	}); err != nil {
		return "", err
	}
	if closed {
		return "", ErrClosed
	}
	if busy {
		return StatusAlreadyRunning, nil
	}
	defer close(spawned)

	h, events, err := s.spawn()
	if err != nil {
		s.release()
		return "", err
	}

	rejected := false
	recordErr := s.state.With("record", func(slot *Slot) {
		slot.Spawning = false
		slot.spawned = nil
		if slot.Closed {
			rejected = true
			return
		}
		slot.Handle = h
	})
	go s.newDrain(h.ID(), events).run()

	if recordErr != nil || rejected {
		// The handle never reached the slot, so nothing else can stop it.
		if err := h.Kill(); err != nil {
			slog.Warn("failed to kill unrecorded backend", "run_id", h.ID(), "error", err)
		}
		if rejected {
			slog.Info("backend start abandoned, supervisor closed", "run_id", h.ID())
			return "", ErrClosed
		}
		s.release()
		return "", &SpawnError{Stage: StageRecord, Err: recordErr}
	}

	slog.Info("backend started", "run_id", h.ID(), "pid", h.PID())
	s.events.Emit(Event{Kind: EventStarted, RunID: h.ID(), At: time.Now()})
	return StatusStarted, nil
}

func (s *Supervisor) spawn() (worker.Handle, <-chan worker.Event, error) {
	if s.resolver == nil {
		return nil, nil, &SpawnError{Stage: StageResolve, Err: errNoResolver}
	}
	path, err := s.resolver.Resolve()
	if err != nil {
		return nil, nil, &SpawnError{Stage: StageResolve, Err: err}
	}
	h, events, err := s.spawner.Spawn(worker.Command{Path: path, Env: s.env})
	if err != nil {
		return nil, nil, &SpawnError{Stage: StageSpawn, Err: err}
	}
	return h, events, nil
}

// release drops a spawn reservation. A poisoned guard reports once and then
// recovers, so a second attempt always gets through.
func (s *Supervisor) release() {
	unreserve := func(slot *Slot) {
		slot.Spawning = false
		slot.spawned = nil
	}
	if err := s.state.With("release", unreserve); err != nil {
		if err := s.state.With("release", unreserve); err != nil {
			slog.Error("failed to release spawn reservation", "error", err)
		}
	}
}

// Close refuses further starts and waits for a start that is already
// spawning to finish: its handle is killed instead of recorded. A running
// backend is left for Stop.
func (s *Supervisor) Close() error {
	var pending chan struct{}
	mark := func(slot *Slot) {
		slot.Closed = true
		pending = slot.spawned
	}
	err := s.state.With("close", mark)
	if err != nil {
		// A poisoned guard reports once; the retry gets through.
		err = s.state.With("close", mark)
	}
	if pending != nil {
		<-pending
	}
	return err
}

// Stop kills the backend if one is running. The slot is cleared even when
// the kill fails.
func (s *Supervisor) Stop() (Status, error) {
	var h worker.Handle
	if err := s.state.With("stop", func(slot *Slot) {
		h = slot.Handle
		slot.Handle = nil
	}); err != nil {
		return "", err
	}
	if h == nil {
		return StatusNotRunning, nil
	}

	if err := h.Kill(); err != nil {
		slog.Error("failed to kill backend", "run_id", h.ID(), "pid", h.PID(), "error", err)
		return "", &KillError{RunID: h.ID(), PID: h.PID(), Err: err}
	}

	slog.Info("backend stopped", "run_id", h.ID(), "pid", h.PID())
	s.events.Emit(Event{Kind: EventStopped, RunID: h.ID(), At: time.Now()})
	return StatusStopped, nil
}

// Address returns the backend's fixed connection address.
func (s *Supervisor) Address() string {
	return s.address
}

// Snapshot returns the current state.
func (s *Supervisor) Snapshot() (Snapshot, error) {
	snap := Snapshot{Address: s.address}
	err := s.state.With("snapshot", func(slot *Slot) {
		snap.Starting = slot.Spawning
		if slot.LastExit != nil {
			last := *slot.LastExit
			snap.LastExit = &last
		}
		if slot.Handle != nil {
			snap.Running = true
			snap.RunID = slot.Handle.ID()
			snap.PID = slot.Handle.PID()
			snap.StartedAt = slot.Handle.StartedAt()
		}
	})
	return snap, err
}

// Output returns the last n retained backend output lines (all if n <= 0).
func (s *Supervisor) Output(n int) []worker.Line {
	return s.output.Lines(n)
}

// OnEvent subscribes to supervisor events. Handlers run on the goroutine
// that produced the event and must not block.
func (s *Supervisor) OnEvent(fn func(Event)) (cancel func()) {
	return s.events.OnEvent(fn)
}

func (s *Supervisor) newDrain(runID string, events <-chan worker.Event) *drain {
	return &drain{
		runID:  runID,
		events: events,
		sink:   s.sink,
		output: s.output,
		emit:   s.events.Emit,
		onExit: s.exited,
	}
}

// exited records a run's termination and, when reconciliation is on, frees
// the slot if it still holds that run.
func (s *Supervisor) exited(runID string, term worker.Terminated) {
	cleared := false
	err := s.state.With("reconcile", func(slot *Slot) {
		slot.LastExit = &term
		if s.reconcile && slot.Handle != nil && slot.Handle.ID() == runID {
			slot.Handle = nil
			cleared = true
		}
	})
	if err != nil {
		slog.Warn("failed to record backend exit", "run_id", runID, "error", err)
	}
	if cleared {
		slog.Info("backend exited, slot cleared", "run_id", runID, "code", term.CodeString())
	}
	s.events.Emit(Event{Kind: EventExited, RunID: runID, At: time.Now(), Worker: term})
}
