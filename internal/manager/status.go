package manager

import (
	"os"
	"runtime"
	"time"

	"github.com/loykin/agentctl/internal/config"
	"github.com/loykin/agentctl/internal/logger"
	"github.com/loykin/agentctl/internal/metrics"
	"github.com/loykin/agentctl/internal/process"
)

// Agent states reported in AgentStatus.State.
const (
	StateRunning = "running"
	StateStopped = "stopped"
)

// AgentStatus is the computed view of one agent. Optional fields are nil when
// the agent is stopped or the OS could not report them.
type AgentStatus struct {
	Name                 string     `json:"name"`
	Enabled              bool       `json:"enabled"`
	Running              bool       `json:"running"`
	State                string     `json:"state"`
	PID                  int        `json:"pid,omitempty"`
	UptimeSeconds        int64      `json:"uptime_seconds"`
	MemoryMB             *float64   `json:"memory_mb,omitempty"`
	NextCheckSeconds     *int64     `json:"next_check_seconds,omitempty"`
	Description          string     `json:"description"`
	Warning              string     `json:"warning,omitempty"`
	Script               string     `json:"script"`
	LogFile              string     `json:"log_file"`
	LastActivity         *time.Time `json:"last_activity,omitempty"`
	CheckIntervalMinutes int        `json:"check_interval_minutes,omitempty"`
	Visible              bool       `json:"-"`
}

// Status reports one agent. It may purge a stale pid record.
func (m *Manager) Status(name string) (AgentStatus, error) {
	cfg := m.Config()
	def, ok := cfg.Agent(name)
	if !ok {
		return AgentStatus{Name: name}, agentErr("status", name, ErrUnknownAgent, "")
	}
	return m.status(cfg, def), nil
}

// StatusAll reports every agent in configuration order, hidden ones included.
func (m *Manager) StatusAll() []AgentStatus {
	cfg := m.Config()
	out := make([]AgentStatus, 0, len(cfg.Agents))
	for _, a := range cfg.Agents {
		out = append(out, m.status(cfg, a))
	}
	return out
}

// VisibleStatus filters out agents hidden from the dashboard.
func VisibleStatus(all []AgentStatus) []AgentStatus {
	out := make([]AgentStatus, 0, len(all))
	for _, s := range all {
		if s.Visible {
			out = append(out, s)
		}
	}
	return out
}

func (m *Manager) status(cfg *config.Config, def config.Agent) AgentStatus {
	st := AgentStatus{
		Name:                 def.Name,
		Enabled:              def.Enabled,
		State:                StateStopped,
		Description:          def.Description,
		Warning:              def.Warning,
		Script:               def.Script,
		LogFile:              logger.StreamPath(cfg.LogDir(), def.Name),
		CheckIntervalMinutes: def.CheckIntervalMinutes,
		Visible:              def.ShowInDashboard,
	}
	if t, ok := logger.LastModified(st.LogFile); ok {
		st.LastActivity = &t
	}

	pid, ok := m.Registry().PID(def.Name)
	metrics.SetRunning(def.Name, ok)
	if !ok {
		return st
	}
	st.Running, st.State, st.PID = true, StateRunning, pid

	info, ok := process.Info(pid)
	if !ok {
		return st
	}
	st.UptimeSeconds = int64(info.Uptime.Seconds())
	if info.HasMemory {
		mb := info.MemoryMB()
		st.MemoryMB = &mb
		metrics.SetMemory(def.Name, info.RSSBytes)
	}
	if def.CheckIntervalMinutes > 0 {
		next := nextCheck(info.Uptime, time.Duration(def.CheckIntervalMinutes)*time.Minute)
		st.NextCheckSeconds = &next
	}
	return st
}

// nextCheck returns seconds until the next interval boundary measured from start.
func nextCheck(uptime, interval time.Duration) int64 {
	if interval <= 0 {
		return 0
	}
	return int64((interval - uptime%interval).Seconds())
}

// SystemInfo summarizes the host and the agent table.
type SystemInfo struct {
	GoVersion         string `json:"go_version"`
	OS                string `json:"os"`
	HostUptimeSeconds int64  `json:"host_uptime_seconds"`
	SupervisorPID     int    `json:"supervisor_pid"`
	TotalAgents       int    `json:"total_agents"`
	EnabledAgents     int    `json:"enabled_agents"`
	RunningAgents     int    `json:"running_agents"`
	ConfigPath        string `json:"config_path"`
}

// SystemInfo counts agents using live registry lookups.
func (m *Manager) SystemInfo() SystemInfo {
	cfg, reg := m.snapshot()
	info := SystemInfo{
		GoVersion:         runtime.Version(),
		OS:                runtime.GOOS + "/" + runtime.GOARCH,
		HostUptimeSeconds: int64(process.HostUptime().Seconds()),
		SupervisorPID:     os.Getpid(),
		TotalAgents:       len(cfg.Agents),
		ConfigPath:        cfg.Path,
	}
	for _, a := range cfg.Agents {
		if a.Enabled {
			info.EnabledAgents++
		}
		if _, ok := reg.PID(a.Name); ok {
			info.RunningAgents++
		}
	}
	return info
}
