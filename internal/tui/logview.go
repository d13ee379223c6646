package tui

import (
	"strings"

	"github.com/charmbracelet/bubbles/viewport"
	"github.com/muesli/reflow/truncate"

	"github.com/tysttext/host/internal/worker"
)

// LogView shows the backend's recent output, following the tail unless the
// user scrolled away from it.
type LogView struct {
	width    int
	height   int
	lines    []worker.Line
	viewport viewport.Model
	ready    bool
}

// NewLogView creates an empty log view.
func NewLogView() LogView {
	return LogView{}
}

// SetSize updates the view dimensions.
func (v *LogView) SetSize(width, height int) {
	v.width = width
	v.height = height
	if !v.ready {
		v.viewport = viewport.New(width, height)
		v.ready = true
	} else {
		v.viewport.Width = width
		v.viewport.Height = height
	}
	v.refresh(true)
}

// SetLines replaces the displayed output.
func (v *LogView) SetLines(lines []worker.Line) {
	follow := !v.ready || v.viewport.AtBottom()
	v.lines = lines
	v.refresh(follow)
}

// Len returns the number of displayed lines.
func (v *LogView) Len() int {
	return len(v.lines)
}

func (v *LogView) ScrollUp(n int)   { v.viewport.LineUp(n) }
func (v *LogView) ScrollDown(n int) { v.viewport.LineDown(n) }
func (v *LogView) PageUp()          { v.viewport.ViewUp() }
func (v *LogView) PageDown()        { v.viewport.ViewDown() }
func (v *LogView) GotoTop()         { v.viewport.GotoTop() }
func (v *LogView) GotoBottom()      { v.viewport.GotoBottom() }

func (v *LogView) refresh(follow bool) {
	if !v.ready {
		return
	}
	v.viewport.SetContent(v.render())
	if follow {
		v.viewport.GotoBottom()
	}
}

// render formats every line, truncated to the view width.
func (v *LogView) render() string {
	var b strings.Builder
	for i, l := range v.lines {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(formatLine(l, v.width))
	}
	return b.String()
}

func formatLine(l worker.Line, width int) string {
	stamp := ""
	if !l.At.IsZero() {
		stamp = l.At.Format("15:04:05") + " "
	}
	text := l.Text
	if width > 0 {
		avail := width - len(stamp)
		if avail < 1 {
			avail = 1
		}
		text = truncate.StringWithTail(text, uint(avail), "…")
	}

	style := logStdoutStyle
	if l.Stream == worker.Stderr {
		style = logStderrStyle
	}
	return logTimeStyle.Render(stamp) + style.Render(text)
}

// View renders the log view.
func (v LogView) View() string {
	if len(v.lines) == 0 {
		return logEmptyStyle.Width(v.width).Height(v.height).Render("No backend output yet. Press s to start the backend.")
	}
	if !v.ready {
		return ""
	}
	return v.viewport.View()
}
