package cli

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/tysttext/host/internal/daemon"
)

const timeLayout = "15:04:05.000"

// renderStatus renders the status response as a table on terminals and as
// "key: value" lines otherwise.
func renderStatus(s *daemon.StatusResponse, tty bool) string {
	rows := statusRows(s)
	if !tty {
		var b strings.Builder
		for _, r := range rows {
			fmt.Fprintf(&b, "%s: %s\n", r[0], r[1])
		}
		return b.String()
	}

	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)
	tw.AppendHeader(table.Row{"Field", "Value"})
	for _, r := range rows {
		tw.AppendRow(table.Row{r[0], r[1]})
	}
	tw.SetColumnConfigs([]table.ColumnConfig{
		{Number: 1, Align: text.AlignLeft, AlignHeader: text.AlignLeft},
		{Number: 2, Align: text.AlignLeft, AlignHeader: text.AlignLeft},
	})
	return tw.Render() + "\n"
}

func statusRows(s *daemon.StatusResponse) [][2]string {
	b := s.Backend

	state := "stopped"
	switch {
	case b.Running:
		state = "running"
	case b.Starting:
		state = "starting"
	}

	rows := [][2]string{
		{"backend", state},
		{"address", b.Address},
	}
	if b.Running {
		rows = append(rows,
			[2]string{"pid", strconv.Itoa(b.PID)},
			[2]string{"run", b.RunID},
		)
		if b.StartedAt != nil {
			rows = append(rows, [2]string{"uptime", time.Since(*b.StartedAt).Round(time.Second).String()})
		}
	}
	if b.LastExit != nil {
		rows = append(rows, [2]string{"last exit", formatExit(b.LastExit)})
	}
	if b.Executable != "" {
		rows = append(rows, [2]string{"executable", b.Executable})
	}

	host := fmt.Sprintf("pid %d, version %s", s.Host.PID, s.Host.Version)
	if s.Host.Headless {
		host += ", headless"
	}
	rows = append(rows, [2]string{"host", host})
	return rows
}

func formatExit(e *daemon.ExitInfo) string {
	switch {
	case e.Code != nil:
		return fmt.Sprintf("code %d", *e.Code)
	case e.Signal != "":
		return "signal " + e.Signal
	default:
		return "unknown"
	}
}

func formatLogLine(l daemon.LogLine) string {
	prefix := " "
	if l.Stream == "stderr" {
		prefix = "!"
	}
	return fmt.Sprintf("%s %s %s", l.At.Local().Format(timeLayout), prefix, l.Text)
}

// formatStreamEvent renders a pushed event, or "" for events not worth a line.
func formatStreamEvent(e *daemon.StreamEvent) string {
	if e == nil {
		return ""
	}
	switch e.Type {
	case "output":
		if e.Line == nil {
			return ""
		}
		return formatLogLine(*e.Line)
	case "started":
		return fmt.Sprintf("%s * backend started (run %s)", e.Time.Local().Format(timeLayout), e.RunID)
	case "stopped":
		return fmt.Sprintf("%s * backend stopped", e.Time.Local().Format(timeLayout))
	case "exited":
		msg := "backend exited"
		if e.Exit != nil {
			msg += " with " + formatExit(e.Exit)
		}
		return fmt.Sprintf("%s * %s", e.Time.Local().Format(timeLayout), msg)
	default:
		return ""
	}
}
