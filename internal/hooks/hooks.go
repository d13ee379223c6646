// Package hooks binds host application events and external commands to the
// backend supervisor.
package hooks

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/tysttext/host/internal/logging"
	"github.com/tysttext/host/internal/supervisor"
)

// DefaultStartupDelay gives the window time to come up before the backend
// is started.
const DefaultStartupDelay = 500 * time.Millisecond

// Backend is the supervisor surface the hooks drive.
type Backend interface {
	Start() (supervisor.Status, error)
	Stop() (supervisor.Status, error)
	Address() string
}

// ReadinessProbe waits for a freshly started backend to answer.
type ReadinessProbe interface {
	WaitReady(ctx context.Context, timeout time.Duration) (int, error)
}

// Options configures Hooks.
type Options struct {
	// StartupDelay before the auto-start. Negative means no delay; zero uses
	// DefaultStartupDelay.
	StartupDelay time.Duration
	// Probe, when set with a positive ReadyTimeout, runs after the auto-start.
	Probe        ReadinessProbe
	ReadyTimeout time.Duration
	Logger       *slog.Logger
}

// Hooks holds the bindings for one host run.
type Hooks struct {
	backend      Backend
	delay        time.Duration
	probe        ReadinessProbe
	readyTimeout time.Duration
	log          *slog.Logger

	startupOnce sync.Once
	startupDone chan struct{}
}

// New creates hooks bound to backend.
func New(backend Backend, opts Options) *Hooks {
	delay := opts.StartupDelay
	switch {
	case delay == 0:
		delay = DefaultStartupDelay
	case delay < 0:
		delay = 0
	}
	log := opts.Logger
	if log == nil {
		log = logging.Component("hooks")
	}
	return &Hooks{
		backend:      backend,
		delay:        delay,
		probe:        opts.Probe,
		readyTimeout: opts.ReadyTimeout,
		log:          log,
		startupDone:  make(chan struct{}),
	}
}

// OnStartup starts the backend in the background after the startup delay.
// Failures are logged. Only the first call has any effect; every call returns
// a channel closed when the startup work has finished or was cancelled.
func (h *Hooks) OnStartup(ctx context.Context) <-chan struct{} {
	h.startupOnce.Do(func() {
		go func() {
			defer close(h.startupDone)
			defer logging.LogPanic("startup-hook", nil)
			h.startup(ctx)
		}()
	})
	return h.startupDone
}

func (h *Hooks) startup(ctx context.Context) {
	if h.delay > 0 {
		timer := time.NewTimer(h.delay)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			h.log.Debug("startup cancelled before backend start")
			return
		case <-timer.C:
		}
	}

	status, err := h.backend.Start()
	if err != nil {
		h.log.Error("failed to start backend on startup", "error", err)
		return
	}
	h.log.Info(status.String())

	if status != supervisor.StatusStarted || h.probe == nil || h.readyTimeout <= 0 {
		return
	}
	attempts, err := h.probe.WaitReady(ctx, h.readyTimeout)
	if err != nil {
		h.log.Warn("backend did not become ready", "attempts", attempts, "error", err)
		return
	}
	h.log.Info("backend ready", "address", h.backend.Address(), "attempts", attempts)
}

// OnCloseRequested stops the backend before the window closes. Failures are
// logged and the close proceeds.
func (h *Hooks) OnCloseRequested() {
	status, err := h.backend.Stop()
	if err != nil {
		h.log.Error("failed to stop backend on close", "error", err)
		return
	}
	h.log.Info(status.String())
}

// StartBackend is the start_backend command.
func (h *Hooks) StartBackend() (string, error) {
	status, err := h.backend.Start()
	if err != nil {
		return "", err
	}
	return status.String(), nil
}

// StopBackend is the stop_backend command.
func (h *Hooks) StopBackend() (string, error) {
	status, err := h.backend.Stop()
	if err != nil {
		return "", err
	}
	return status.String(), nil
}

// GetBackendURL is the get_backend_url command.
func (h *Hooks) GetBackendURL() string {
	return h.backend.Address()
}
