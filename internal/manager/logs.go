package manager

import (
	"github.com/loykin/agentctl/internal/config"
	"github.com/loykin/agentctl/internal/logger"
)

// DefaultLogLines is used when callers ask for a non-positive line count.
const DefaultLogLines = 50

// LogPath returns the output file of the agent.
func (m *Manager) LogPath(name string) string {
	return logger.StreamPath(m.Config().LogDir(), name)
}

// Logs returns the last n lines the agent wrote. Agents that never ran yield
// ErrNoLog; use NoLogLine for a displayable placeholder.
func (m *Manager) Logs(name string, n int) ([]string, error) {
	if !config.ValidName(name) {
		return nil, agentErr("logs", name, ErrUnknownAgent, "")
	}
	if n <= 0 {
		n = DefaultLogLines
	}
	lines, err := logger.Tail(m.LogPath(name), n)
	if err != nil {
		if logger.IsNotExist(err) {
			return nil, agentErr("logs", name, ErrNoLog, "")
		}
		return nil, agentErr("logs", name, err, "")
	}
	return lines, nil
}

// NoLogLine is the placeholder shown for an agent without output.
func NoLogLine(name string) string { return "No log file found for " + name }

// Alerts scans the log directory for notable lines, newest first.
func (m *Manager) Alerts() []logger.Alert {
	alerts := logger.ScanAlerts(m.Config().LogDir())
	if alerts == nil {
		return []logger.Alert{}
	}
	return alerts
}
