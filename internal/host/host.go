// Package host runs one tysttext host: it owns the backend supervisor, binds
// the lifecycle hooks, serves the control socket and shows the window.
package host

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/tysttext/host/internal/config"
	"github.com/tysttext/host/internal/daemon"
	"github.com/tysttext/host/internal/health"
	"github.com/tysttext/host/internal/hooks"
	"github.com/tysttext/host/internal/instance"
	"github.com/tysttext/host/internal/logging"
	"github.com/tysttext/host/internal/paths"
	"github.com/tysttext/host/internal/sidecar"
	"github.com/tysttext/host/internal/supervisor"
	"github.com/tysttext/host/internal/tui"
	"github.com/tysttext/host/internal/worker"
)

// uiEventBuffer bounds the events queued for the window.
const uiEventBuffer = 256

// Options configures a host.
type Options struct {
	Config   *config.Config
	Headless bool

	// Paths default to the paths package when empty.
	SocketPath string
	LockPath   string
	PIDPath    string

	// Spawner and Resolver replace process spawning and sidecar lookup.
	Spawner  worker.Spawner
	Resolver supervisor.Resolver
}

// Host is one running host instance.
type Host struct {
	cfg       *config.Config
	headless  bool
	startedAt time.Time
	log       *slog.Logger

	sup    *supervisor.Supervisor
	hooks  *hooks.Hooks
	lock   *instance.Lock
	server *daemon.Server

	resolver *recordingResolver

	startupCancel context.CancelFunc
	startupDone   <-chan struct{}
	closeOnce     sync.Once

	shutdownOnce sync.Once
	shutdownCh   chan struct{}
}

// New builds a host from opts. Nothing is started until Run.
func New(opts Options) *Host {
	cfg := opts.Config
	if cfg == nil {
		cfg = &config.Config{}
	}

	var resolver supervisor.Resolver = opts.Resolver
	if resolver == nil {
		resolver = &sidecar.Resolver{
			Name: cfg.GetSidecar(),
			Path: cfg.GetBackendPath(),
		}
	}
	recording := &recordingResolver{next: resolver}

	spawner := opts.Spawner
	if spawner == nil {
		spawner = &worker.ExecSpawner{StopTimeout: cfg.GetStopTimeout()}
	}

	sup := supervisor.New(supervisor.Options{
		Spawner:         spawner,
		Resolver:        recording,
		Address:         cfg.GetBackendURL(),
		Env:             cfg.GetBackendEnv(),
		ReconcileOnExit: cfg.GetReconcileOnExit(),
		OutputLines:     cfg.GetOutputLines(),
		Sink:            logging.Component("backend"),
	})

	// A configured delay of zero means start immediately.
	delay := cfg.GetStartupDelay()
	if delay == 0 {
		delay = -1
	}
	hookOpts := hooks.Options{
		StartupDelay: delay,
		ReadyTimeout: cfg.GetReadyTimeout(),
		Logger:       logging.Component("hooks"),
	}
	if hookOpts.ReadyTimeout > 0 {
		hookOpts.Probe = health.New(cfg.GetBackendURL(), cfg.GetHealthPath())
	}

	socketPath := opts.SocketPath
	if socketPath == "" {
		socketPath = paths.SocketPath()
	}
	lockPath := opts.LockPath
	if lockPath == "" {
		lockPath = paths.LockPath()
	}
	pidPath := opts.PIDPath
	if pidPath == "" {
		pidPath = paths.PIDPath()
	}

	h := &Host{
		cfg:        cfg,
		headless:   opts.Headless,
		startedAt:  time.Now(),
		log:        logging.Component("host"),
		sup:        sup,
		hooks:      hooks.New(sup, hookOpts),
		lock:       instance.New(lockPath, pidPath),
		resolver:   recording,
		shutdownCh: make(chan struct{}),
	}
	h.server = daemon.NewServer(socketPath, h)
	return h
}

// Supervisor returns the backend supervisor.
func (h *Host) Supervisor() *supervisor.Supervisor {
	return h.sup
}

// Hooks returns the lifecycle hooks bound to the supervisor.
func (h *Host) Hooks() *hooks.Hooks {
	return h.hooks
}

// SocketPath returns the control socket path.
func (h *Host) SocketPath() string {
	return h.server.SocketPath()
}

// Shutdown asks Run to close the host as if the window was closed.
func (h *Host) Shutdown() {
	h.shutdownOnce.Do(func() { close(h.shutdownCh) })
}

// Run holds the instance lock, serves the control socket, runs the startup
// hook and shows the window (or waits, when headless) until ctx is done, the
// window is closed or a shutdown is requested. The backend is stopped before
// Run returns.
func (h *Host) Run(ctx context.Context) error {
	if err := h.lock.Acquire(); err != nil {
		return err
	}
	defer func() {
		if err := h.lock.Release(); err != nil {
			h.log.Warn("failed to release instance lock", "error", err)
		}
	}()

	if err := h.server.Start(); err != nil {
		return fmt.Errorf("start control socket: %w", err)
	}
	defer func() {
		if err := h.server.Stop(); err != nil {
			h.log.Warn("failed to stop control socket", "error", err)
		}
	}()

	cancelBroadcast := h.sup.OnEvent(h.broadcast)
	defer cancelBroadcast()

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-h.shutdownCh:
			cancel()
		case <-runCtx.Done():
		}
	}()

	startupCtx, startupCancel := context.WithCancel(runCtx)
	h.startupCancel = startupCancel
	h.startupDone = h.hooks.OnStartup(startupCtx)

	h.log.Info("host started",
		"pid", os.Getpid(),
		"socket", h.server.SocketPath(),
		"address", h.sup.Address(),
		"headless", h.headless,
	)

	var err error
	if h.headless {
		<-runCtx.Done()
	} else {
		err = h.runWindow(runCtx)
	}
	h.close()

	h.log.Info("host stopped")
	return err
}

func (h *Host) runWindow(ctx context.Context) error {
	events := make(chan supervisor.Event, uiEventBuffer)
	cancel := h.sup.OnEvent(func(e supervisor.Event) {
		select {
		case events <- e:
		default:
		}
	})
	defer cancel()

	model := tui.New(h.sup, windowCommands{h})
	if _, err := tui.Run(ctx, model, events); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("window: %w", err)
	}
	return nil
}

// close runs the window-close hook once. Pending startup work is cancelled
// first, and the supervisor is closed so that a start still spawning is
// killed rather than outliving the host.
func (h *Host) close() {
	h.closeOnce.Do(func() {
		if h.startupCancel != nil {
			h.startupCancel()
			<-h.startupDone
		}
		if err := h.sup.Close(); err != nil {
			h.log.Warn("failed to close backend supervisor", "error", err)
		}
		h.hooks.OnCloseRequested()
	})
}

// windowCommands routes the window's actions to the hooks.
type windowCommands struct {
	h *Host
}

func (w windowCommands) StartBackend() (string, error) { return w.h.hooks.StartBackend() }
func (w windowCommands) StopBackend() (string, error)  { return w.h.hooks.StopBackend() }
func (w windowCommands) OnCloseRequested()             { w.h.close() }

// recordingResolver remembers the last executable path it resolved.
type recordingResolver struct {
	next supervisor.Resolver

	mu   sync.Mutex
	path string
}

func (r *recordingResolver) Resolve() (string, error) {
	path, err := r.next.Resolve()
	if err != nil {
		return "", err
	}
	r.mu.Lock()
	r.path = path
	r.mu.Unlock()
	return path, nil
}

func (r *recordingResolver) Executable() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.path
}
