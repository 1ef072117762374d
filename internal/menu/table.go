package menu

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/loykin/agentctl/internal/manager"
)

// Row is one line of the status table. Both the local manager and the HTTP
// client produce rows.
type Row struct {
	Name          string
	Enabled       bool
	Running       bool
	PID           int
	UptimeSeconds int64
	MemoryMB      *float64
	Description   string
}

// RowFromStatus converts a manager status.
func RowFromStatus(s manager.AgentStatus) Row {
	return Row{
		Name:          s.Name,
		Enabled:       s.Enabled,
		Running:       s.Running,
		PID:           s.PID,
		UptimeSeconds: s.UptimeSeconds,
		MemoryMB:      s.MemoryMB,
		Description:   s.Description,
	}
}

const (
	iconRunning = "[●]"
	iconStopped = "[○]"
)

var headerStyle = lipgloss.NewStyle().
	Bold(true).
	BorderStyle(lipgloss.NormalBorder()).
	BorderBottom(true).
	BorderForeground(lipgloss.Color("240"))

var (
	runningStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("34"))
	stoppedStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("244"))
	disabledStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
)

const (
	colIdx    = 4
	colIcon   = 5
	colName   = 20
	colState  = 9
	colPID    = 8
	colUptime = 10
	colMem    = 9
	colDesc   = 40
)

// RenderTable writes a numbered status table. Cells are padded before they
// are styled so ANSI sequences do not break alignment.
func RenderTable(w io.Writer, rows []Row) {
	if len(rows) == 0 {
		_, _ = fmt.Fprintln(w, stoppedStyle.Render("No agents configured"))
		return
	}
	header := fmt.Sprintf("%-*s %-*s %-*s %-*s %-*s %-*s %-*s %s",
		colIdx, "#", colIcon, "", colName, "AGENT", colState, "STATE",
		colPID, "PID", colUptime, "UPTIME", colMem, "MEMORY", "DESCRIPTION")
	_, _ = fmt.Fprintln(w, headerStyle.Render(header))

	for i, r := range rows {
		icon, state := stoppedStyle.Render(pad(iconStopped, colIcon)), pad("stopped", colState)
		pid, uptime, mem := "-", "-", "-"
		if r.Running {
			icon = runningStyle.Render(pad(iconRunning, colIcon))
			state = runningStyle.Render(pad("running", colState))
			pid = fmt.Sprint(r.PID)
			uptime = FormatUptime(time.Duration(r.UptimeSeconds) * time.Second)
			if r.MemoryMB != nil {
				mem = fmt.Sprintf("%.1fMB", *r.MemoryMB)
			}
		}
		name := pad(truncate(r.Name, colName-1), colName)
		if !r.Enabled {
			name = disabledStyle.Render(name)
		}
		_, _ = fmt.Fprintf(w, "%-*d %s %s %s %-*s %-*s %-*s %s\n",
			colIdx, i+1, icon, name, state,
			colPID, pid, colUptime, uptime, colMem, mem,
			truncate(r.Description, colDesc))
	}
}

// FormatUptime renders d as "2h 05m", "3m 07s" or "12s".
func FormatUptime(d time.Duration) string {
	d = d.Round(time.Second)
	h := int(d / time.Hour)
	m := int(d%time.Hour) / int(time.Minute)
	s := int(d%time.Minute) / int(time.Second)
	switch {
	case h >= 24:
		return fmt.Sprintf("%dd %02dh", h/24, h%24)
	case h > 0:
		return fmt.Sprintf("%dh %02dm", h, m)
	case m > 0:
		return fmt.Sprintf("%dm %02ds", m, s)
	default:
		return fmt.Sprintf("%ds", s)
	}
}

func pad(s string, n int) string {
	if w := lipgloss.Width(s); w < n {
		return s + strings.Repeat(" ", n-w)
	}
	return s
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	if n <= 3 {
		return string(r[:n])
	}
	return string(r[:n-3]) + "..."
}
