package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/loykin/agentctl/internal/config"
	"github.com/loykin/agentctl/internal/history"
	"github.com/loykin/agentctl/internal/logger"
	"github.com/loykin/agentctl/internal/manager"
	"github.com/loykin/agentctl/internal/menu"
	"github.com/loykin/agentctl/internal/metrics"
	"github.com/loykin/agentctl/internal/server"
	"github.com/loykin/agentctl/pkg/client"
)

// command binds subcommand handlers to the global flags and terminal streams.
type command struct {
	g      *GlobalFlags
	in     io.Reader
	out    io.Writer
	errOut io.Writer
	prompt *menu.Menu // lazily built for warning confirmation
}

// configPath resolves --config, then AGENTCTL_CONFIG, then the default file.
func (c *command) configPath() string {
	if c.g.ConfigPath != "" {
		return c.g.ConfigPath
	}
	if p := os.Getenv(ConfigEnv); p != "" {
		return p
	}
	return config.DefaultFile
}

func (c *command) newLogger() *slog.Logger {
	return logger.SlogConfig{Level: c.g.LogLevel, Format: logger.FormatText, Color: true}.New(c.errOut)
}

// openManager opens the local supervisor with a close func for the caller.
func (c *command) openManager(log *slog.Logger) (*manager.Manager, func(), error) {
	if log == nil {
		log = c.newLogger()
	}
	m, err := manager.Open(c.configPath(), manager.WithLogger(log))
	if err != nil {
		return nil, nil, fmt.Errorf("load configuration: %w", err)
	}
	return m, func() { _ = m.Close() }, nil
}

func (c *command) remote() *client.Client {
	if c.g.APIUrl == "" {
		return nil
	}
	return client.New(client.Config{BaseURL: c.g.APIUrl, Timeout: c.g.APITimeout, Logger: c.newLogger()})
}

// confirm asks on the terminal unless --yes was given.
func (c *command) confirm() func(string) bool {
	if c.g.Yes {
		return nil
	}
	if c.prompt == nil {
		c.prompt = menu.New(nil, c.in, c.out)
	}
	return c.prompt.Confirm
}

// Status prints the agent table or JSON.
func (c *command) Status(ctx context.Context, f StatusFlags) error {
	var rows []menu.Row
	var payload any
	if rc := c.remote(); rc != nil {
		agents, err := rc.Status(ctx)
		if err != nil {
			return err
		}
		for _, a := range agents {
			rows = append(rows, menu.Row{Name: a.Name, Enabled: a.Enabled, Running: a.Running, PID: a.PID,
				UptimeSeconds: a.UptimeSeconds, MemoryMB: a.MemoryMB, Description: a.Description})
		}
		payload = agents
	} else {
		m, done, err := c.openManager(nil)
		if err != nil {
			return err
		}
		defer done()
		all := m.StatusAll()
		for _, a := range all {
			rows = append(rows, menu.RowFromStatus(a))
		}
		payload = all
	}
	if f.JSON {
		return c.printJSON(payload)
	}
	menu.RenderTable(c.out, rows)
	return nil
}

// Start starts one agent, or all enabled agents.
func (c *command) Start(ctx context.Context, name string) error {
	if rc := c.remote(); rc != nil {
		if name == "all" {
			return c.printRemoteBulk(rc.StartAll(ctx))
		}
		res, err := rc.Start(ctx, name)
		if err != nil {
			return err
		}
		menu.OK(c.out, "%s", res.Message)
		return nil
	}
	m, done, err := c.openManager(nil)
	if err != nil {
		return err
	}
	defer done()
	opts := manager.StartOptions{Confirm: c.confirm()}
	if name == "all" {
		return c.printBulk("Started", m.StartAllEnabled(ctx, opts))
	}
	res, err := m.Start(ctx, name, opts)
	if err != nil {
		return err
	}
	menu.OK(c.out, "Started %s (PID %d)", name, res.PID)
	return nil
}

// Stop stops one agent, or all running agents.
func (c *command) Stop(ctx context.Context, name string) error {
	if rc := c.remote(); rc != nil {
		if name == "all" {
			return c.printRemoteBulk(rc.StopAll(ctx))
		}
		res, err := rc.Stop(ctx, name)
		if err != nil {
			return err
		}
		menu.OK(c.out, "%s", res.Message)
		return nil
	}
	m, done, err := c.openManager(nil)
	if err != nil {
		return err
	}
	defer done()
	if name == "all" {
		return c.printBulk("Stopped", m.StopAll(ctx))
	}
	res, err := m.Stop(ctx, name)
	switch {
	case err != nil:
		return err
	case !res.WasRunning:
		menu.Info(c.out, "%s was not running", name)
	case res.Forced:
		menu.Warn(c.out, "Stopped %s (killed after timeout)", name)
	default:
		menu.OK(c.out, "Stopped %s", name)
	}
	return nil
}

// Restart stops then starts the agent.
func (c *command) Restart(ctx context.Context, name string) error {
	if rc := c.remote(); rc != nil {
		if _, err := rc.Stop(ctx, name); err != nil {
			return err
		}
		res, err := rc.Start(ctx, name)
		if err != nil {
			return err
		}
		menu.OK(c.out, "Restarted %s (PID %d)", name, res.PID)
		return nil
	}
	m, done, err := c.openManager(nil)
	if err != nil {
		return err
	}
	defer done()
	res, err := m.Restart(ctx, name, manager.StartOptions{Confirm: c.confirm()})
	if err != nil {
		return err
	}
	menu.OK(c.out, "Restarted %s (PID %d)", name, res.PID)
	return nil
}

// Logs prints up to n trailing log lines, or the placeholder line.
func (c *command) Logs(ctx context.Context, name string, n int) error {
	var lines []string
	if rc := c.remote(); rc != nil {
		var err error
		if lines, err = rc.Logs(ctx, name, n); err != nil {
			return err
		}
	} else {
		m, done, err := c.openManager(nil)
		if err != nil {
			return err
		}
		defer done()
		lines, err = m.Logs(name, n)
		switch {
		case errors.Is(err, manager.ErrNoLog):
			lines = []string{manager.NoLogLine(name)}
		case err != nil:
			return err
		}
	}
	for _, l := range lines {
		_, _ = fmt.Fprintln(c.out, l)
	}
	return nil
}

// SetEnabled edits the configuration file. It always acts on the local file.
func (c *command) SetEnabled(name string, enabled bool) error {
	m, done, err := c.openManager(nil)
	if err != nil {
		return err
	}
	defer done()
	if err := m.SetEnabled(name, enabled); err != nil {
		return err
	}
	state := "disabled"
	if enabled {
		state = "enabled"
	}
	menu.OK(c.out, "%s %s", name, state)
	return nil
}

// History prints recent lifecycle events, newest first.
func (c *command) History(ctx context.Context, name string, limit int) error {
	type row struct {
		typ, detail, runID string
		pid                int
		at                 time.Time
	}
	var rows []row
	if rc := c.remote(); rc != nil {
		evs, err := rc.History(ctx, name, limit)
		if err != nil {
			return err
		}
		for _, e := range evs {
			rows = append(rows, row{e.Type, e.Detail, e.RunID, e.PID, e.OccurredAt})
		}
	} else {
		m, done, err := c.openManager(nil)
		if err != nil {
			return err
		}
		defer done()
		evs, err := m.History(ctx, name, limit)
		if err != nil {
			if errors.Is(err, history.ErrDisabled) {
				return fmt.Errorf("%w: set settings.history_db to record events", err)
			}
			return err
		}
		for _, e := range evs {
			rows = append(rows, row{string(e.Type), e.Detail, e.RunID, e.PID, e.OccurredAt})
		}
	}
	if len(rows) == 0 {
		menu.Info(c.out, "No history for %s", name)
		return nil
	}
	for _, r := range rows {
		_, _ = fmt.Fprintf(c.out, "%s  %-12s pid=%-7d run=%s %s\n",
			r.at.Local().Format(time.DateTime), r.typ, r.pid, r.runID, r.detail)
	}
	return nil
}

// Serve runs the HTTP API until SIGINT or SIGTERM.
func (c *command) Serve(ctx context.Context, f ServeFlags) error {
	lc := logger.Config{
		Slog: logger.SlogConfig{Level: f.Level, Format: f.LogFormat, Color: f.LogFormat != logger.FormatJSON, TimeStamps: true},
		File: logger.FileConfig{Path: f.LogFile},
	}
	log := lc.NewSlogger()

	m, done, err := c.openManager(log)
	if err != nil {
		return err
	}
	defer done()
	if err := metrics.Register(prometheus.DefaultRegisterer); err != nil {
		log.Warn("metrics registration failed", "error", err)
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if f.Watch {
		go func() {
			if err := m.WatchConfig(ctx); err != nil && ctx.Err() == nil {
				log.Error("config watch stopped", "error", err)
			}
		}()
	}

	addr := f.Listen
	if addr == "" {
		addr = m.Config().Settings.Listen
	}
	srv := server.NewServer(addr, f.BasePath, m, log)
	log.Info("serving control API", "addr", addr, "config", m.Config().Path, "watch", f.Watch)
	menu.Info(c.out, "Listening on http://%s%s", addr, f.BasePath)
	if err := server.Serve(ctx, srv); err != nil {
		return fmt.Errorf("serve: %w", err)
	}
	log.Info("control API stopped")
	return nil
}

// Menu runs the interactive menu on the terminal streams.
func (c *command) Menu(ctx context.Context) error {
	m, done, err := c.openManager(nil)
	if err != nil {
		return err
	}
	defer done()
	return menu.New(m, c.in, c.out).Run(ctx)
}

func (c *command) printBulk(verb string, res manager.BulkResult) error {
	menu.PrintBulk(c.out, verb, res)
	if !res.OK() {
		return fmt.Errorf("%d agent(s) failed", len(res.Failed))
	}
	return nil
}

func (c *command) printRemoteBulk(res client.BulkResult, err error) error {
	if err != nil {
		return err
	}
	for _, n := range res.Done {
		menu.OK(c.out, "%s", n)
	}
	for _, n := range res.Failed {
		menu.Fail(c.out, "%s", n)
	}
	menu.Info(c.out, "%s", res.Message)
	if !res.Success {
		return fmt.Errorf("%d agent(s) failed", len(res.Failed))
	}
	return nil
}

func (c *command) printJSON(v any) error {
	enc := json.NewEncoder(c.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func parsePositive(s string) (int, error) {
	v, err := strconv.Atoi(s)
	if err != nil || v <= 0 {
		return 0, fmt.Errorf("%w: %q", errInvalidCount, s)
	}
	return v, nil
}
