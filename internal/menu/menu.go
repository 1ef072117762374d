// Package menu implements the interactive text control surface.
package menu

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/loykin/agentctl/internal/manager"
)

// Menu is a numbered-choice loop over a Manager. It reads one answer per line.
type Menu struct {
	mgr *manager.Manager
	in  *bufio.Reader
	out io.Writer
}

// New builds a menu reading answers from in and writing to out.
func New(mgr *manager.Manager, in io.Reader, out io.Writer) *Menu {
	return &Menu{mgr: mgr, in: bufio.NewReader(in), out: out}
}

var options = []struct {
	key, label string
}{
	{"1", "Start all enabled agents"},
	{"2", "Stop all agents"},
	{"3", "Start an agent"},
	{"4", "Stop an agent"},
	{"5", "Restart an agent"},
	{"6", "Enable/disable an agent"},
	{"7", "Show agent logs"},
	{"8", "Reload configuration"},
	{"9", "Refresh status"},
	{"0", "Exit"},
}

// Run loops until the user picks exit, input ends or ctx is cancelled.
func (m *Menu) Run(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return nil
		}
		m.showStatus()
		m.showOptions()
		choice, err := m.prompt("Select option: ")
		if err != nil {
			return nil
		}
		if quit := m.dispatch(ctx, choice); quit {
			Info(m.out, "Goodbye")
			return nil
		}
	}
}

func (m *Menu) dispatch(ctx context.Context, choice string) bool {
	switch choice {
	case "1":
		PrintBulk(m.out, "Started", m.mgr.StartAllEnabled(ctx, manager.StartOptions{Confirm: m.Confirm}))
	case "2":
		PrintBulk(m.out, "Stopped", m.mgr.StopAll(ctx))
	case "3":
		m.withAgent(func(name string) { m.start(ctx, name) })
	case "4":
		m.withAgent(func(name string) { m.stop(ctx, name) })
	case "5":
		m.withAgent(func(name string) { m.restart(ctx, name) })
	case "6":
		m.withAgent(m.toggle)
	case "7":
		m.withAgent(m.logs)
	case "8":
		if err := m.mgr.Reload(); err != nil {
			Fail(m.out, "Reload failed, keeping previous configuration: %v", err)
		} else {
			OK(m.out, "Configuration reloaded (%d agents)", len(m.mgr.Config().Agents))
		}
	case "9", "":
	case "0", "q", "quit", "exit":
		return true
	default:
		Warn(m.out, "Unknown option %q", choice)
	}
	return false
}

// Confirm shows an agent warning and asks whether to continue. Only "yes"
// and "y" confirm.
func (m *Menu) Confirm(warning string) bool {
	Warn(m.out, "WARNING: %s", warning)
	ans, err := m.prompt("Continue? (yes/no): ")
	if err != nil {
		return false
	}
	switch strings.ToLower(ans) {
	case "yes", "y":
		return true
	}
	return false
}

func (m *Menu) start(ctx context.Context, name string) {
	res, err := m.mgr.Start(ctx, name, manager.StartOptions{Confirm: m.Confirm})
	if err != nil {
		m.reportStartErr(name, err)
		return
	}
	OK(m.out, "Started %s (PID %d)", name, res.PID)
}

func (m *Menu) reportStartErr(name string, err error) {
	switch {
	case errors.Is(err, manager.ErrAlreadyRunning):
		Warn(m.out, "%v", err)
	case errors.Is(err, manager.ErrCancelled):
		Info(m.out, "Start of %s cancelled", name)
	default:
		Fail(m.out, "%v", err)
	}
}

func (m *Menu) stop(ctx context.Context, name string) {
	res, err := m.mgr.Stop(ctx, name)
	switch {
	case err != nil:
		Fail(m.out, "%v", err)
	case !res.WasRunning:
		Info(m.out, "%s was not running", name)
	case res.Forced:
		Warn(m.out, "Stopped %s (killed after timeout)", name)
	default:
		OK(m.out, "Stopped %s", name)
	}
}

func (m *Menu) restart(ctx context.Context, name string) {
	res, err := m.mgr.Restart(ctx, name, manager.StartOptions{Confirm: m.Confirm})
	if err != nil {
		m.reportStartErr(name, err)
		return
	}
	OK(m.out, "Restarted %s (PID %d)", name, res.PID)
}

func (m *Menu) toggle(name string) {
	enabled, err := m.mgr.Toggle(name)
	if err != nil {
		Fail(m.out, "%v", err)
		return
	}
	if enabled {
		OK(m.out, "%s enabled", name)
	} else {
		OK(m.out, "%s disabled", name)
	}
}

func (m *Menu) logs(name string) {
	n := manager.DefaultLogLines
	if ans, err := m.prompt(fmt.Sprintf("Lines [%d]: ", n)); err == nil && ans != "" {
		if v, err := strconv.Atoi(ans); err == nil && v > 0 {
			n = v
		}
	}
	lines, err := m.mgr.Logs(name, n)
	switch {
	case errors.Is(err, manager.ErrNoLog):
		Info(m.out, "%s", manager.NoLogLine(name))
		return
	case err != nil:
		Fail(m.out, "%v", err)
		return
	}
	Info(m.out, "Last %d line(s) of %s", len(lines), name)
	for _, l := range lines {
		_, _ = fmt.Fprintln(m.out, l)
	}
}

// withAgent asks for an agent by number or name and calls fn when the answer
// names a configured agent.
func (m *Menu) withAgent(fn func(name string)) {
	names := m.mgr.Config().Names()
	if len(names) == 0 {
		Warn(m.out, "No agents configured")
		return
	}
	for i, n := range names {
		_, _ = fmt.Fprintf(m.out, "  %d) %s\n", i+1, n)
	}
	ans, err := m.prompt("Agent (number or name): ")
	if err != nil || ans == "" {
		return
	}
	if i, err := strconv.Atoi(ans); err == nil {
		if i < 1 || i > len(names) {
			Warn(m.out, "No agent #%d", i)
			return
		}
		fn(names[i-1])
		return
	}
	if _, ok := m.mgr.Config().Agent(ans); !ok {
		Warn(m.out, "Unknown agent %q", ans)
		return
	}
	fn(ans)
}

func (m *Menu) showStatus() {
	_, _ = fmt.Fprintln(m.out)
	all := m.mgr.StatusAll()
	rows := make([]Row, 0, len(all))
	for _, s := range all {
		rows = append(rows, RowFromStatus(s))
	}
	RenderTable(m.out, rows)
}

func (m *Menu) showOptions() {
	_, _ = fmt.Fprintln(m.out)
	for _, o := range options {
		_, _ = fmt.Fprintf(m.out, "  %s. %s\n", o.key, o.label)
	}
}

// prompt returns the trimmed answer. io.EOF is returned only when no
// partial line was read.
func (m *Menu) prompt(q string) (string, error) {
	_, _ = fmt.Fprint(m.out, q)
	s, err := m.in.ReadString('\n')
	if err != nil && (s == "" || !errors.Is(err, io.EOF)) {
		_, _ = fmt.Fprintln(m.out)
		return "", err
	}
	return strings.TrimSpace(s), nil
}
