package manager

import (
	"errors"
	"fmt"
)

var (
	ErrUnknownAgent   = errors.New("unknown agent")
	ErrAlreadyRunning = errors.New("agent already running")
	ErrScriptMissing  = errors.New("agent script not found")
	ErrLaunchFailed   = errors.New("agent failed to start")
	ErrCancelled      = errors.New("start cancelled")
	// ErrPIDDirBusy rejects a reload that moves pid_directory while agents run.
	ErrPIDDirBusy = errors.New("pid_directory changed while agents are running")
	// ErrNoLog is returned by Logs when the agent has never written output.
	ErrNoLog = errors.New("no log file")
)

// AgentError describes a rejected operation on one agent. Err is one of the
// sentinels above or an underlying OS error.
type AgentError struct {
	Op     string
	Agent  string
	Err    error
	Detail string
}

func (e *AgentError) Error() string {
	msg := fmt.Sprintf("%s %s: %v", e.Op, e.Agent, e.Err)
	if e.Detail != "" {
		msg += " (" + e.Detail + ")"
	}
	return msg
}

func (e *AgentError) Unwrap() error { return e.Err }

func agentErr(op, agent string, err error, detail string) error {
	return &AgentError{Op: op, Agent: agent, Err: err, Detail: detail}
}

// Reason returns a short machine-readable label for err, used in metrics.
func Reason(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrUnknownAgent):
		return "unknown_agent"
	case errors.Is(err, ErrAlreadyRunning):
		return "already_running"
	case errors.Is(err, ErrScriptMissing):
		return "script_missing"
	case errors.Is(err, ErrLaunchFailed):
		return "launch_failed"
	case errors.Is(err, ErrCancelled):
		return "cancelled"
	default:
		return "error"
	}
}
