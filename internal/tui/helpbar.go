package tui

import (
	"strings"

	"github.com/charmbracelet/bubbles/key"
)

// HelpBar shows the last command result or the keyboard shortcuts.
type HelpBar struct {
	width int
	keys  KeyBindings

	closing  bool
	message  string
	errorMsg string
}

// NewHelpBar creates a new help bar component.
func NewHelpBar() HelpBar {
	return HelpBar{
		keys: DefaultKeyBindings(),
	}
}

// SetWidth updates the help bar width.
func (h *HelpBar) SetWidth(width int) {
	h.width = width
}

// SetMessage shows a command result until the next one.
func (h *HelpBar) SetMessage(msg string) {
	h.message = msg
	h.errorMsg = ""
}

// SetError shows an error until the next command result.
func (h *HelpBar) SetError(msg string) {
	h.errorMsg = msg
	h.message = ""
}

// SetClosing switches the bar to the shutdown notice.
func (h *HelpBar) SetClosing(closing bool) {
	h.closing = closing
}

// View renders the help bar.
func (h HelpBar) View() string {
	if h.closing {
		return statusStyle.Width(h.width).Render("Stopping backend…")
	}
	if h.errorMsg != "" {
		return errorBarStyle.Width(h.width).Render("Error: " + h.errorMsg)
	}

	help := formatHelp([]key.Binding{h.keys.Start, h.keys.Stop, h.keys.Bottom, h.keys.PageUp, h.keys.Quit})
	if h.message != "" {
		return messageStyle.Render(h.message) + statusStyle.Render(help)
	}
	return statusStyle.Width(h.width).Render(help)
}

// formatHelp formats a list of key bindings as help text.
func formatHelp(bindings []key.Binding) string {
	parts := make([]string, 0, len(bindings))
	for _, b := range bindings {
		help := b.Help()
		parts = append(parts, help.Key+": "+help.Desc)
	}
	return strings.Join(parts, "  ")
}
