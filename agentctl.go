// Package agentctl embeds the agent supervisor in another Go program.
package agentctl

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/loykin/agentctl/internal/config"
	"github.com/loykin/agentctl/internal/history"
	"github.com/loykin/agentctl/internal/logger"
	"github.com/loykin/agentctl/internal/manager"
	"github.com/loykin/agentctl/internal/metrics"
	"github.com/loykin/agentctl/internal/server"
)

// Re-export core types for external consumers.
// These are aliases so conversions are zero-cost.

type Config = config.Config

type AgentStatus = manager.AgentStatus

type StartOptions = manager.StartOptions

type StartResult = manager.StartResult

type StopResult = manager.StopResult

type BulkResult = manager.BulkResult

type SystemInfo = manager.SystemInfo

type AgentError = manager.AgentError

type Alert = logger.Alert

type Event = history.Event

type HistoryStore = history.Store

type Option = manager.Option

var (
	ErrUnknownAgent   = manager.ErrUnknownAgent
	ErrAlreadyRunning = manager.ErrAlreadyRunning
	ErrScriptMissing  = manager.ErrScriptMissing
	ErrLaunchFailed   = manager.ErrLaunchFailed
	ErrCancelled      = manager.ErrCancelled
	ErrNoLog          = manager.ErrNoLog
	ErrPIDDirBusy     = manager.ErrPIDDirBusy
	ErrConfigCorrupt  = config.ErrConfigCorrupt
)

func WithLogger(l *slog.Logger) Option        { return manager.WithLogger(l) }
func WithHistory(h HistoryStore) Option       { return manager.WithHistory(h) }
func WithBaseEnv(list []string) Option        { return manager.WithBaseEnv(list) }
func LoadConfig(path string) (*Config, error) { return config.Load(path) }

// Manager is a thin facade over internal/manager.Manager.
// It provides a stable public API for embedding.
type Manager struct{ inner *manager.Manager }

// Open loads the configuration document at path and builds a Manager.
func Open(path string, opts ...Option) (*Manager, error) {
	m, err := manager.Open(path, opts...)
	if err != nil {
		return nil, err
	}
	return &Manager{inner: m}, nil
}

// New builds a Manager from an already loaded configuration.
func New(cfg *Config, opts ...Option) (*Manager, error) {
	m, err := manager.New(cfg, opts...)
	if err != nil {
		return nil, err
	}
	return &Manager{inner: m}, nil
}

func (m *Manager) Start(ctx context.Context, name string, opts StartOptions) (StartResult, error) {
	return m.inner.Start(ctx, name, opts)
}
func (m *Manager) Stop(ctx context.Context, name string) (StopResult, error) {
	return m.inner.Stop(ctx, name)
}
func (m *Manager) Restart(ctx context.Context, name string, opts StartOptions) (StartResult, error) {
	return m.inner.Restart(ctx, name, opts)
}
func (m *Manager) StartAllEnabled(ctx context.Context, opts StartOptions) BulkResult {
	return m.inner.StartAllEnabled(ctx, opts)
}
func (m *Manager) StopAll(ctx context.Context) BulkResult     { return m.inner.StopAll(ctx) }
func (m *Manager) Status(name string) (AgentStatus, error)    { return m.inner.Status(name) }
func (m *Manager) StatusAll() []AgentStatus                   { return m.inner.StatusAll() }
func (m *Manager) PID(name string) (int, bool)                { return m.inner.PID(name) }
func (m *Manager) Logs(name string, n int) ([]string, error)  { return m.inner.Logs(name, n) }
func (m *Manager) Alerts() []Alert                            { return m.inner.Alerts() }
func (m *Manager) SystemInfo() SystemInfo                     { return m.inner.SystemInfo() }
func (m *Manager) Config() *Config                            { return m.inner.Config() }
func (m *Manager) Reload() error                              { return m.inner.Reload() }
func (m *Manager) WatchConfig(ctx context.Context) error      { return m.inner.WatchConfig(ctx) }
func (m *Manager) SetEnabled(name string, enabled bool) error { return m.inner.SetEnabled(name, enabled) }
func (m *Manager) Toggle(name string) (bool, error)           { return m.inner.Toggle(name) }
func (m *Manager) Close() error                               { return m.inner.Close() }
func (m *Manager) History(ctx context.Context, name string, limit int) ([]Event, error) {
	return m.inner.History(ctx, name, limit)
}

// Handler returns the HTTP control API for m mounted under basePath.
func Handler(m *Manager, basePath string, log *slog.Logger) http.Handler {
	return server.NewRouter(m.inner, basePath, log).Handler()
}

// NewHTTPServer builds, without starting, an HTTP server exposing the control API.
func NewHTTPServer(addr, basePath string, m *Manager, log *slog.Logger) *http.Server {
	return server.NewServer(addr, basePath, m.inner, log)
}

// Serve runs srv until ctx is done.
func Serve(ctx context.Context, srv *http.Server) error { return server.Serve(ctx, srv) }

// Metrics helpers (public facade)

func RegisterMetrics(r prometheus.Registerer) error { return metrics.Register(r) }
func RegisterMetricsDefault() error                 { return metrics.Register(prometheus.DefaultRegisterer) }
