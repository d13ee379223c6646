package supervisor

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/tysttext/host/internal/worker"
)

type fakeHandle struct {
	id      string
	pid     int
	started time.Time
	killErr error
	kills   atomic.Int32
}

func (h *fakeHandle) ID() string           { return h.id }
func (h *fakeHandle) PID() int             { return h.pid }
func (h *fakeHandle) StartedAt() time.Time { return h.started }

func (h *fakeHandle) Kill() error {
	h.kills.Add(1)
	return h.killErr
}

// fakeSpawner hands out fakeHandles with test-controlled event channels.
type fakeSpawner struct {
	mu      sync.Mutex
	spawned []*fakeHandle
	streams []chan worker.Event
	cmds    []worker.Command

	err     error
	killErr error
	// gate, when non-nil, blocks Spawn until closed.
	gate chan struct{}
}

func (f *fakeSpawner) Spawn(cmd worker.Command) (worker.Handle, <-chan worker.Event, error) {
	if f.gate != nil {
		<-f.gate
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	f.cmds = append(f.cmds, cmd)
	if f.err != nil {
		return nil, nil, f.err
	}
	n := len(f.spawned) + 1
	h := &fakeHandle{
		id:      fmt.Sprintf("run-%d", n),
		pid:     1000 + n,
		started: time.Now(),
		killErr: f.killErr,
	}
	ch := make(chan worker.Event, 16)
	f.spawned = append(f.spawned, h)
	f.streams = append(f.streams, ch)
	return h, ch, nil
}

func (f *fakeSpawner) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.spawned)
}

func (f *fakeSpawner) handle(i int) *fakeHandle {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.spawned[i]
}

func (f *fakeSpawner) stream(i int) chan worker.Event {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.streams[i]
}

type sinkEntry struct {
	level string
	msg   string
	args  []any
}

// recordingSink captures drained events.
type recordingSink struct {
	mu      sync.Mutex
	entries []sinkEntry
}

func (s *recordingSink) Info(msg string, args ...any)  { s.add("info", msg, args) }
func (s *recordingSink) Error(msg string, args ...any) { s.add("error", msg, args) }

func (s *recordingSink) add(level, msg string, args []any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, sinkEntry{level: level, msg: msg, args: args})
}

func (s *recordingSink) all() []sinkEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]sinkEntry(nil), s.entries...)
}

var errResolve = errors.New("no such sidecar")

func okResolver() Resolver {
	return ResolverFunc(func() (string, error) { return "/opt/tysttext/tysttext-backend", nil })
}

func newTestSupervisor(t *testing.T, reconcile bool) (*Supervisor, *fakeSpawner, *recordingSink) {
	t.Helper()
	sp := &fakeSpawner{}
	sink := &recordingSink{}
	s := New(Options{
		Spawner:         sp,
		Resolver:        okResolver(),
		ReconcileOnExit: reconcile,
		Sink:            sink,
		OutputLines:     10,
	})
	return s, sp, sink
}

// exitWaiter returns a function that blocks until the drain for runID exits.
func exitWaiter(t *testing.T, s *Supervisor, runID string) func() {
	t.Helper()
	done := make(chan struct{})
	var once sync.Once
	cancel := s.OnEvent(func(ev Event) {
		if ev.Kind == EventExited && ev.RunID == runID {
			once.Do(func() { close(done) })
		}
	})
	return func() {
		t.Helper()
		defer cancel()
		select {
		case <-done:
		case <-time.After(5 * time.Second):
			t.Fatalf("drain for %s did not exit", runID)
		}
	}
}

func mustStart(t *testing.T, s *Supervisor, want Status) {
	t.Helper()
	got, err := s.Start()
	if err != nil {
		t.Fatalf("Start: unexpected error: %v", err)
	}
	if got != want {
		t.Fatalf("Start: expected %q, got %q", want, got)
	}
}

func mustStop(t *testing.T, s *Supervisor, want Status) {
	t.Helper()
	got, err := s.Stop()
	if err != nil {
		t.Fatalf("Stop: unexpected error: %v", err)
	}
	if got != want {
		t.Fatalf("Stop: expected %q, got %q", want, got)
	}
}
