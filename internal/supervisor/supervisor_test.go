package supervisor

import (
	"errors"
	"runtime"
	"strings"
	"sync"
	"testing"

	"github.com/tysttext/host/internal/worker"
)

func TestStart_RepeatedSpawnsOnce(t *testing.T) {
	s, sp, _ := newTestSupervisor(t, true)

	mustStart(t, s, StatusStarted)
	for i := 0; i < 5; i++ {
		mustStart(t, s, StatusAlreadyRunning)
	}

	if n := sp.count(); n != 1 {
		t.Errorf("expected 1 spawn, got %d", n)
	}
}

func TestStart_PassesCommand(t *testing.T) {
	sp := &fakeSpawner{}
	s := New(Options{
		Spawner:  sp,
		Resolver: okResolver(),
		Env:      []string{"HF_TOKEN=abc"},
		Sink:     &recordingSink{},
	})
	mustStart(t, s, StatusStarted)

	cmd := sp.cmds[0]
	if cmd.Path != "/opt/tysttext/tysttext-backend" {
		t.Errorf("unexpected path %q", cmd.Path)
	}
	if len(cmd.Args) != 0 {
		t.Errorf("expected no arguments, got %v", cmd.Args)
	}
	if len(cmd.Env) != 1 || cmd.Env[0] != "HF_TOKEN=abc" {
		t.Errorf("unexpected env %v", cmd.Env)
	}
}

func TestStop_Idle(t *testing.T) {
	s, _, _ := newTestSupervisor(t, true)

	for i := 0; i < 3; i++ {
		mustStop(t, s, StatusNotRunning)
	}
}

func TestStartStopStart(t *testing.T) {
	s, sp, _ := newTestSupervisor(t, true)

	mustStart(t, s, StatusStarted)
	mustStop(t, s, StatusStopped)
	mustStart(t, s, StatusStarted)

	if n := sp.count(); n != 2 {
		t.Errorf("expected 2 spawns, got %d", n)
	}
	if k := sp.handle(0).kills.Load(); k != 1 {
		t.Errorf("expected first handle killed once, got %d", k)
	}

	snap, err := s.Snapshot()
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	if !snap.Running || snap.RunID != "run-2" {
		t.Errorf("expected run-2 running, got %+v", snap)
	}
}

func TestTermination_WithoutReconcile(t *testing.T) {
	s, sp, _ := newTestSupervisor(t, false)

	mustStart(t, s, StatusStarted)
	wait := exitWaiter(t, s, "run-1")
	sp.stream(0) <- worker.Terminated{Code: worker.ExitCode(1)}
	wait()

	// The slot stays occupied until an explicit stop.
	mustStart(t, s, StatusAlreadyRunning)
	if n := sp.count(); n != 1 {
		t.Errorf("expected 1 spawn, got %d", n)
	}

	mustStop(t, s, StatusStopped)
	mustStart(t, s, StatusStarted)
}

func TestTermination_WithReconcile(t *testing.T) {
	s, sp, _ := newTestSupervisor(t, true)

	mustStart(t, s, StatusStarted)
	wait := exitWaiter(t, s, "run-1")
	sp.stream(0) <- worker.Terminated{Code: worker.ExitCode(1)}
	wait()

	snap, err := s.Snapshot()
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	if snap.Running {
		t.Error("expected slot cleared after termination")
	}
	if snap.LastExit == nil || snap.LastExit.Code == nil || *snap.LastExit.Code != 1 {
		t.Errorf("expected last exit code 1, got %+v", snap.LastExit)
	}

	mustStart(t, s, StatusStarted)
	if n := sp.count(); n != 2 {
		t.Errorf("expected 2 spawns, got %d", n)
	}
}

func TestTermination_StreamClosedWithoutTerminated(t *testing.T) {
	s, sp, _ := newTestSupervisor(t, true)

	mustStart(t, s, StatusStarted)
	wait := exitWaiter(t, s, "run-1")
	close(sp.stream(0))
	wait()

	mustStart(t, s, StatusStarted)
}

func TestReconcile_IgnoresStaleRun(t *testing.T) {
	s, sp, _ := newTestSupervisor(t, true)

	mustStart(t, s, StatusStarted)
	mustStop(t, s, StatusStopped)
	mustStart(t, s, StatusStarted)

	// The first run's stream ending must not evict the second run.
	wait := exitWaiter(t, s, "run-1")
	sp.stream(0) <- worker.Terminated{}
	wait()

	snap, err := s.Snapshot()
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	if !snap.Running || snap.RunID != "run-2" {
		t.Errorf("expected run-2 still running, got %+v", snap)
	}
}

func TestStart_Concurrent(t *testing.T) {
	s, sp, _ := newTestSupervisor(t, true)
	sp.gate = make(chan struct{})

	const callers = 10
	results := make(chan Status, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			status, err := s.Start()
			if err != nil {
				t.Errorf("Start: %v", err)
			}
			results <- status
		}()
	}

	// One caller is parked in Spawn; everyone else sees the reservation.
	for i := 0; i < callers-1; i++ {
		if got := <-results; got != StatusAlreadyRunning {
			t.Errorf("expected %q, got %q", StatusAlreadyRunning, got)
		}
	}
	close(sp.gate)
	if got := <-results; got != StatusStarted {
		t.Errorf("expected %q, got %q", StatusStarted, got)
	}
	wg.Wait()

	if n := sp.count(); n != 1 {
		t.Errorf("expected 1 spawn, got %d", n)
	}
}

func TestStop_DuringSpawn(t *testing.T) {
	s, sp, _ := newTestSupervisor(t, true)
	sp.gate = make(chan struct{})

	done := make(chan Status)
	go func() {
		status, _ := s.Start()
		done <- status
	}()

	// Wait for the reservation.
	for {
		snap, _ := s.Snapshot()
		if snap.Starting {
			break
		}
		runtime.Gosched()
	}
	mustStop(t, s, StatusNotRunning)

	close(sp.gate)
	if got := <-done; got != StatusStarted {
		t.Errorf("expected %q, got %q", StatusStarted, got)
	}
	mustStop(t, s, StatusStopped)
}

func TestAddress_ConstantAcrossStates(t *testing.T) {
	s, _, _ := newTestSupervisor(t, true)

	check := func(state string) {
		t.Helper()
		if got := s.Address(); got != DefaultAddress {
			t.Errorf("%s: expected %q, got %q", state, DefaultAddress, got)
		}
	}

	check("idle")
	mustStart(t, s, StatusStarted)
	check("running")
	mustStop(t, s, StatusStopped)
	check("stopped")
}

func TestAddress_Configured(t *testing.T) {
	s := New(Options{Address: "http://127.0.0.1:9000"})
	if got := s.Address(); got != "http://127.0.0.1:9000" {
		t.Errorf("unexpected address %q", got)
	}
}

func TestScenario_StartAddressStopStop(t *testing.T) {
	s, _, _ := newTestSupervisor(t, true)

	mustStart(t, s, StatusStarted)
	if got := s.Address(); got != "http://localhost:8000" {
		t.Errorf("expected http://localhost:8000, got %q", got)
	}
	mustStop(t, s, StatusStopped)

	got, err := s.Stop()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.String() != "Backend was not running" {
		t.Errorf("expected \"Backend was not running\", got %q", got)
	}
}

func TestStart_SpawnErrors(t *testing.T) {
	tests := []struct {
		name     string
		resolver Resolver
		spawnErr error
		stage    string
		prefix   string
	}{
		{
			name:     "resolve failure",
			resolver: ResolverFunc(func() (string, error) { return "", errResolve }),
			stage:    StageResolve,
			prefix:   "Failed to create sidecar command: ",
		},
		{
			name:     "missing resolver",
			resolver: nil,
			stage:    StageResolve,
			prefix:   "Failed to create sidecar command: ",
		},
		{
			name:     "spawn failure",
			resolver: okResolver(),
			spawnErr: errors.New("permission denied"),
			stage:    StageSpawn,
			prefix:   "Failed to spawn backend: ",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sp := &fakeSpawner{err: tt.spawnErr}
			s := New(Options{Spawner: sp, Resolver: tt.resolver, Sink: &recordingSink{}})

			status, err := s.Start()
			if status != "" {
				t.Errorf("expected empty status, got %q", status)
			}
			var spawnErr *SpawnError
			if !errors.As(err, &spawnErr) {
				t.Fatalf("expected SpawnError, got %v", err)
			}
			if spawnErr.Stage != tt.stage {
				t.Errorf("expected stage %q, got %q", tt.stage, spawnErr.Stage)
			}
			if !strings.HasPrefix(err.Error(), tt.prefix) {
				t.Errorf("expected prefix %q, got %q", tt.prefix, err.Error())
			}

			snap, _ := s.Snapshot()
			if snap.Running || snap.Starting {
				t.Errorf("expected empty slot, got %+v", snap)
			}
		})
	}
}

func TestStart_RetryAfterSpawnError(t *testing.T) {
	sp := &fakeSpawner{err: errors.New("busy")}
	s := New(Options{Spawner: sp, Resolver: okResolver(), Sink: &recordingSink{}})

	if _, err := s.Start(); err == nil {
		t.Fatal("expected error")
	}
	sp.mu.Lock()
	sp.err = nil
	sp.mu.Unlock()

	mustStart(t, s, StatusStarted)
}

func TestStop_KillError(t *testing.T) {
	sp := &fakeSpawner{killErr: errors.New("operation not permitted")}
	s := New(Options{Spawner: sp, Resolver: okResolver(), Sink: &recordingSink{}})

	mustStart(t, s, StatusStarted)

	_, err := s.Stop()
	var killErr *KillError
	if !errors.As(err, &killErr) {
		t.Fatalf("expected KillError, got %v", err)
	}
	if killErr.RunID != "run-1" {
		t.Errorf("expected run-1, got %q", killErr.RunID)
	}
	if !strings.HasPrefix(err.Error(), "Failed to kill backend: ") {
		t.Errorf("unexpected message %q", err.Error())
	}

	// The handle was removed even though the kill failed.
	mustStop(t, s, StatusNotRunning)
	if k := sp.handle(0).kills.Load(); k != 1 {
		t.Errorf("expected exactly one kill attempt, got %d", k)
	}
}

func TestLockPoisoned(t *testing.T) {
	s, sp, _ := newTestSupervisor(t, true)

	err := s.state.With("test", func(*Slot) { panic("boom") })
	var lockErr *LockError
	if !errors.As(err, &lockErr) {
		t.Fatalf("expected LockError from panicking section, got %v", err)
	}
	if lockErr.Panic != "boom" {
		t.Errorf("expected recovered panic value, got %v", lockErr.Panic)
	}

	// The next acquisition reports the poison.
	if _, err := s.Start(); !errors.Is(err, ErrLockPoisoned) {
		t.Fatalf("expected ErrLockPoisoned, got %v", err)
	}
	if n := sp.count(); n != 0 {
		t.Errorf("expected no spawn while poisoned, got %d", n)
	}

	// Then the supervisor is usable again.
	mustStart(t, s, StatusStarted)
	mustStop(t, s, StatusStopped)
}

func TestSnapshot(t *testing.T) {
	s, _, _ := newTestSupervisor(t, true)

	snap, err := s.Snapshot()
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	if snap.Running || snap.PID != 0 || snap.Address != DefaultAddress {
		t.Errorf("unexpected idle snapshot %+v", snap)
	}

	mustStart(t, s, StatusStarted)
	snap, _ = s.Snapshot()
	if !snap.Running || snap.PID != 1001 || snap.StartedAt.IsZero() {
		t.Errorf("unexpected running snapshot %+v", snap)
	}
}

func TestOnEvent_Lifecycle(t *testing.T) {
	s, sp, _ := newTestSupervisor(t, true)

	var mu sync.Mutex
	var kinds []EventKind
	s.OnEvent(func(ev Event) {
		mu.Lock()
		defer mu.Unlock()
		if ev.Kind != EventOutput {
			kinds = append(kinds, ev.Kind)
		}
	})

	mustStart(t, s, StatusStarted)
	wait := exitWaiter(t, s, "run-1")
	mustStop(t, s, StatusStopped)
	// The fake handle does not close its stream, so end it by hand.
	close(sp.stream(0))
	wait()

	mu.Lock()
	defer mu.Unlock()
	want := []EventKind{EventStarted, EventStopped, EventExited}
	if len(kinds) != len(want) {
		t.Fatalf("expected %v, got %v", want, kinds)
	}
	for i := range want {
		if kinds[i] != want[i] {
			t.Errorf("event %d: expected %s, got %s", i, want[i], kinds[i])
		}
	}
}
