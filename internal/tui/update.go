package tui

import (
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/tysttext/host/internal/supervisor"
)

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.ready = true
		m.layout()
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)

	case BackendEventMsg:
		if msg.Event.Kind != supervisor.EventOutput {
			m.refresh()
			return m, nil
		}
		m.logView.SetLines(m.backend.Output(0))
		return m, nil

	case commandResultMsg:
		if msg.err != nil {
			m.helpBar.SetError(msg.err.Error())
		} else {
			m.helpBar.SetMessage(msg.message)
		}
		m.refresh()
		return m, nil

	case CloseRequestMsg:
		return m.requestClose()

	case closedMsg:
		m.closed = true
		return m, tea.Quit
	}

	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.closing {
		return m, nil
	}

	switch {
	case key.Matches(msg, m.keys.Quit):
		return m.requestClose()
	case key.Matches(msg, m.keys.Start):
		return m, m.startCmd()
	case key.Matches(msg, m.keys.Stop):
		return m, m.stopCmd()
	case key.Matches(msg, m.keys.Up):
		m.logView.ScrollUp(1)
	case key.Matches(msg, m.keys.Down):
		m.logView.ScrollDown(1)
	case key.Matches(msg, m.keys.PageUp):
		m.logView.PageUp()
	case key.Matches(msg, m.keys.PageDown):
		m.logView.PageDown()
	case key.Matches(msg, m.keys.Top):
		m.logView.GotoTop()
	case key.Matches(msg, m.keys.Bottom):
		m.logView.GotoBottom()
	}
	return m, nil
}

// requestClose runs the close hook off the event loop and quits once it
// has finished.
func (m Model) requestClose() (tea.Model, tea.Cmd) {
	if m.closing {
		return m, nil
	}
	m.closing = true
	m.helpBar.SetClosing(true)

	commands := m.commands
	return m, func() tea.Msg {
		commands.OnCloseRequested()
		return closedMsg{}
	}
}

func (m Model) startCmd() tea.Cmd {
	commands := m.commands
	return func() tea.Msg {
		msg, err := commands.StartBackend()
		return commandResultMsg{message: msg, err: err}
	}
}

func (m Model) stopCmd() tea.Cmd {
	commands := m.commands
	return func() tea.Msg {
		msg, err := commands.StopBackend()
		return commandResultMsg{message: msg, err: err}
	}
}
