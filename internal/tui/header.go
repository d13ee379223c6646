package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/tysttext/host/internal/supervisor"
)

// Header shows the backend state and address.
type Header struct {
	width  int
	status supervisor.Snapshot
}

// NewHeader creates a new header component.
func NewHeader() Header {
	return Header{}
}

// SetWidth updates the header width.
func (h *Header) SetWidth(width int) {
	h.width = width
}

// SetStatus updates the displayed backend state.
func (h *Header) SetStatus(s supervisor.Snapshot) {
	h.status = s
}

// View renders the header.
func (h Header) View() string {
	brand := headerBrandStyle.Render("tysttext")

	var state string
	switch {
	case h.status.Running:
		state = stateRunningStyle.Render(" ● running")
	case h.status.Starting:
		state = stateStartingStyle.Render(" ◌ starting")
	default:
		state = stateStoppedStyle.Render(" ○ stopped")
	}

	var info []string
	if h.status.Running {
		info = append(info, fmt.Sprintf("pid %d", h.status.PID))
		if !h.status.StartedAt.IsZero() {
			info = append(info, "up "+formatUptime(time.Since(h.status.StartedAt)))
		}
	} else if h.status.LastExit != nil {
		info = append(info, h.status.LastExit.String())
	}
	info = append(info, h.status.Address)
	right := headerInfoStyle.Render(strings.Join(info, "  •  "))

	spacerWidth := h.width - lipgloss.Width(brand) - lipgloss.Width(state) - lipgloss.Width(right)
	if spacerWidth < 0 {
		spacerWidth = 0
	}
	spacer := lipgloss.NewStyle().Width(spacerWidth).Render("")

	content := lipgloss.JoinHorizontal(lipgloss.Top, brand, state, spacer, right)
	return headerContainerStyle.Width(h.width).Render(content)
}

func formatUptime(d time.Duration) string {
	d = d.Round(time.Second)
	if d < time.Minute {
		return d.String()
	}
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	if h == 0 {
		return fmt.Sprintf("%dm", m)
	}
	return fmt.Sprintf("%dh%02dm", h, m)
}
