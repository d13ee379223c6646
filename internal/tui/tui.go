// Package tui is the host window: a Bubble Tea terminal UI that shows the
// backend's state and output and lets the user start and stop it.
package tui

import (
	"context"
	"log/slog"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/tysttext/host/internal/supervisor"
	"github.com/tysttext/host/internal/worker"
)

// Backend is the read side of the supervisor the window displays.
type Backend interface {
	Snapshot() (supervisor.Snapshot, error)
	Output(n int) []worker.Line
}

// Commands are the actions the window can trigger.
type Commands interface {
	StartBackend() (string, error)
	StopBackend() (string, error)
	OnCloseRequested()
}

// Model is the main Bubble Tea model of the window.
type Model struct {
	width  int
	height int
	ready  bool

	backend  Backend
	commands Commands
	keys     KeyBindings

	header  Header
	logView LogView
	helpBar HelpBar

	// closing is set once a close was requested; closed once the close hook
	// has run and the program may exit.
	closing bool
	closed  bool
}

// New creates a window model.
func New(backend Backend, commands Commands) Model {
	m := Model{
		backend:  backend,
		commands: commands,
		keys:     DefaultKeyBindings(),
		header:   NewHeader(),
		logView:  NewLogView(),
		helpBar:  NewHelpBar(),
	}
	m.refresh()
	return m
}

// Closed reports whether the close hook ran before the model exited.
func (m Model) Closed() bool {
	return m.closed
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	return nil
}

// View implements tea.Model.
func (m Model) View() string {
	if !m.ready {
		return "Loading..."
	}
	return lipgloss.JoinVertical(lipgloss.Left,
		m.header.View(),
		m.logView.View(),
		m.helpBar.View(),
	)
}

// refresh re-reads the supervisor state and buffered output.
func (m *Model) refresh() {
	snap, err := m.backend.Snapshot()
	if err != nil {
		slog.Debug("window snapshot failed", "error", err)
	} else {
		m.header.SetStatus(snap)
	}
	m.logView.SetLines(m.backend.Output(0))
}

func (m *Model) layout() {
	m.header.SetWidth(m.width)
	m.helpBar.SetWidth(m.width)
	// Header and help bar take one row each.
	logHeight := m.height - 2
	if logHeight < 1 {
		logHeight = 1
	}
	m.logView.SetSize(m.width, logHeight)
}

// Run shows the window until it is closed. Events received on events are
// forwarded to the window; cancelling ctx closes it the same way the quit key
// does, which runs the close hook first.
func Run(ctx context.Context, m Model, events <-chan supervisor.Event, opts ...tea.ProgramOption) (Model, error) {
	opts = append([]tea.ProgramOption{tea.WithAltScreen()}, opts...)
	p := tea.NewProgram(m, opts...)

	stop := make(chan struct{})
	defer close(stop)
	go func() {
		for {
			select {
			case <-ctx.Done():
				p.Send(CloseRequestMsg{})
				return
			case ev, ok := <-events:
				if !ok {
					events = nil
					continue
				}
				p.Send(BackendEventMsg{Event: ev})
			case <-stop:
				return
			}
		}
	}()

	final, err := p.Run()
	if fm, ok := final.(Model); ok {
		m = fm
	}
	return m, err
}
