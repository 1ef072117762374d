// Package manager supervises named agent processes: it starts them detached,
// tracks them through pid records, stops them gracefully then forcibly, and
// reports their status.
package manager

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/loykin/agentctl/internal/config"
	"github.com/loykin/agentctl/internal/env"
	"github.com/loykin/agentctl/internal/history"
	"github.com/loykin/agentctl/internal/history/sqlite"
	"github.com/loykin/agentctl/internal/metrics"
	"github.com/loykin/agentctl/internal/process"
	"github.com/loykin/agentctl/internal/registry"
)

// Manager is safe for concurrent use. Operations on one agent are serialized
// across processes by the registry lock; different agents never contend.
type Manager struct {
	mu  sync.RWMutex
	cfg *config.Config
	reg *registry.Registry

	log      *slog.Logger
	hist     history.Store
	ownsHist bool
	baseEnv  *env.Env

	sleep     func(ctx context.Context, d time.Duration) error
	terminate func(pid int) error
	kill      func(pid int) error
	newRunID  func() string
}

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option { return func(m *Manager) { m.log = l } }

// WithHistory sets the history store, overriding settings.history_db.
// The caller keeps ownership and must close it.
func WithHistory(h history.Store) Option { return func(m *Manager) { m.hist = h } }

// WithBaseEnv sets the environment children inherit before settings.env and
// PYTHONPATH are applied. Defaults to the supervisor's environment.
func WithBaseEnv(list []string) Option { return func(m *Manager) { m.baseEnv = env.FromList(list) } }

// New builds a Manager over an already loaded configuration.
func New(cfg *config.Config, opts ...Option) (*Manager, error) {
	if cfg == nil {
		return nil, errors.New("manager: nil config")
	}
	m := &Manager{
		cfg:       cfg,
		log:       slog.Default(),
		sleep:     sleepCtx,
		terminate: process.Terminate,
		kill:      process.Kill,
		newRunID:  uuid.NewString,
	}
	for _, o := range opts {
		o(m)
	}
	if m.baseEnv == nil {
		m.baseEnv = env.New()
	}
	reg, err := m.openRegistry(cfg)
	if err != nil {
		return nil, err
	}
	m.reg = reg

	if m.hist == nil {
		if p := cfg.HistoryPath(); p != "" {
			store, err := sqlite.New(p)
			if err != nil {
				return nil, fmt.Errorf("manager: open history %s: %w", p, err)
			}
			m.hist, m.ownsHist = store, true
		} else {
			m.hist = history.Nop{}
		}
	}
	return m, nil
}

// Open loads the configuration at path and builds a Manager. A load failure
// wraps config.ErrConfigCorrupt and is meant to be fatal to the caller.
func Open(path string, opts ...Option) (*Manager, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	return New(cfg, opts...)
}

func (m *Manager) openRegistry(cfg *config.Config) (*registry.Registry, error) {
	return registry.New(cfg.PIDDir(),
		registry.WithLogger(m.log),
		registry.WithOnStale(m.onStale),
	)
}

func (m *Manager) onStale(rec registry.Record, reason string) {
	metrics.IncStale(reason)
	metrics.SetRunning(rec.Agent, false)
	m.record(history.Event{Type: history.EventStale, Agent: rec.Agent, PID: rec.PID, RunID: rec.RunID, Detail: reason})
}

func (m *Manager) snapshot() (*config.Config, *registry.Registry) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.cfg, m.reg
}

// Config returns the active configuration.
func (m *Manager) Config() *config.Config {
	cfg, _ := m.snapshot()
	return cfg
}

// Registry returns the active pid registry.
func (m *Manager) Registry() *registry.Registry {
	_, reg := m.snapshot()
	return reg
}

// Reload re-reads the configuration document and swaps it in. Running agents
// are not touched. On error the previous configuration stays active, and a
// pid_directory change is refused while any agent is still running.
func (m *Manager) Reload() error {
	cur, curReg := m.snapshot()
	next, err := config.Load(cur.Path)
	if err != nil {
		m.log.Error("config reload failed, keeping previous", "path", cur.Path, "error", err)
		return err
	}
	reg := curReg
	if next.PIDDir() != cur.PIDDir() {
		if live := liveAgents(curReg); len(live) > 0 {
			m.log.Error("config reload rejected, keeping previous", "path", cur.Path,
				"pid_directory", next.PIDDir(), "running", live)
			return fmt.Errorf("%w: %s", ErrPIDDirBusy, strings.Join(live, ", "))
		}
		if reg, err = m.openRegistry(next); err != nil {
			return err
		}
	}
	m.mu.Lock()
	m.cfg, m.reg = next, reg
	m.mu.Unlock()
	m.log.Info("config reloaded", "path", next.Path, "agents", len(next.Agents))
	return nil
}

// liveAgents lists agents whose record in reg points at a live process.
func liveAgents(reg *registry.Registry) []string {
	names, _ := reg.List()
	var live []string
	for _, name := range names {
		if _, ok := reg.Lookup(name); ok {
			live = append(live, name)
		}
	}
	return live
}

// WatchConfig reloads whenever the configuration document changes, until ctx is done.
func (m *Manager) WatchConfig(ctx context.Context) error {
	return config.Watch(ctx, m.Config().Path, config.DefaultDebounce, func() { _ = m.Reload() })
}

// SetEnabled persists the agent's enabled flag and reloads.
func (m *Manager) SetEnabled(name string, enabled bool) error {
	cfg := m.Config()
	if _, ok := cfg.Agent(name); !ok {
		return agentErr("enable", name, ErrUnknownAgent, "")
	}
	if err := config.SetEnabled(cfg.Path, name, enabled); err != nil {
		return agentErr("enable", name, err, "")
	}
	m.log.Info("agent enabled flag changed", "agent", name, "enabled", enabled)
	return m.Reload()
}

// Toggle flips the agent's enabled flag on disk, reloads, and returns the new value.
func (m *Manager) Toggle(name string) (bool, error) {
	cfg := m.Config()
	if _, ok := cfg.Agent(name); !ok {
		return false, agentErr("toggle", name, ErrUnknownAgent, "")
	}
	v, err := config.Toggle(cfg.Path, name)
	if err != nil {
		return false, agentErr("toggle", name, err, "")
	}
	m.log.Info("agent enabled flag changed", "agent", name, "enabled", v)
	return v, m.Reload()
}

// PID returns the live pid of the agent, purging a stale record as a side effect.
func (m *Manager) PID(name string) (int, bool) {
	return m.Registry().PID(name)
}

// History returns recent lifecycle events for the agent, newest first.
func (m *Manager) History(ctx context.Context, name string, limit int) ([]history.Event, error) {
	return m.hist.Recent(ctx, name, limit)
}

// Close releases the history store if the Manager opened it. Agents keep running.
func (m *Manager) Close() error {
	if m.ownsHist && m.hist != nil {
		return m.hist.Close()
	}
	return nil
}

func (m *Manager) record(e history.Event) {
	if e.OccurredAt.IsZero() {
		e.OccurredAt = time.Now().UTC()
	}
	if err := m.hist.Send(context.Background(), e); err != nil {
		m.log.Warn("history write failed", "agent", e.Agent, "event", e.Type, "error", err)
	}
}

// childEnv is the supervisor environment plus settings.env and PYTHONPATH.
func (m *Manager) childEnv(cfg *config.Config) []string {
	e := m.baseEnv
	if pp := cfg.Settings.PythonPath; pp != "" {
		e = e.WithSet("PYTHONPATH", cfg.Resolve(pp))
	}
	return e.WithList(cfg.Settings.Env).Merge(nil)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func fileExists(p string) bool {
	fi, err := os.Stat(p)
	return err == nil && !fi.IsDir()
}
