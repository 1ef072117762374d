package manager

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/loykin/agentctl/internal/history"
	"github.com/loykin/agentctl/internal/logger"
	"github.com/loykin/agentctl/internal/metrics"
	"github.com/loykin/agentctl/internal/process"
	"github.com/loykin/agentctl/internal/registry"
)

// StartOptions controls a single start.
type StartOptions struct {
	// Confirm is asked when the agent carries a warning. A nil Confirm means
	// the caller has already confirmed, as the HTTP API does.
	Confirm func(warning string) bool
}

// StartResult describes a successful start, or the state found by a rejected one.
type StartResult struct {
	Agent   string `json:"agent"`
	PID     int    `json:"pid,omitempty"`
	RunID   string `json:"run_id,omitempty"`
	LogFile string `json:"log_file,omitempty"`
}

// StopResult describes a stop. WasRunning is false when the agent had no live
// process; that outcome is not an error.
type StopResult struct {
	Agent      string        `json:"agent"`
	PID        int           `json:"pid,omitempty"`
	WasRunning bool          `json:"was_running"`
	Forced     bool          `json:"forced,omitempty"`
	Duration   time.Duration `json:"duration,omitempty"`
}

// Start launches the agent unless it is already running. The call blocks for
// the configured grace period and fails with ErrLaunchFailed if the child
// exits within it. A child that fails later is not detected here.
func (m *Manager) Start(ctx context.Context, name string, opts StartOptions) (StartResult, error) {
	res, err := m.start(ctx, name, opts)
	if err != nil {
		metrics.IncStartFailure(name, Reason(err))
	}
	return res, err
}

func (m *Manager) start(ctx context.Context, name string, opts StartOptions) (StartResult, error) {
	cfg, reg := m.snapshot()
	res := StartResult{Agent: name}
	def, ok := cfg.Agent(name)
	if !ok {
		return res, agentErr("start", name, ErrUnknownAgent, "")
	}
	unlock, err := reg.Lock(ctx, name)
	if err != nil {
		return res, agentErr("start", name, err, "")
	}
	defer unlock()

	if rec, ok := reg.Lookup(name); ok {
		res.PID = rec.PID
		return res, agentErr("start", name, ErrAlreadyRunning, "pid "+strconv.Itoa(rec.PID))
	}
	script := cfg.ScriptPath(def)
	if !fileExists(script) {
		return res, agentErr("start", name, ErrScriptMissing, script)
	}
	if def.Warning != "" && opts.Confirm != nil && !opts.Confirm(def.Warning) {
		return res, agentErr("start", name, ErrCancelled, "")
	}

	res.LogFile = logger.StreamPath(cfg.LogDir(), name)
	out, err := logger.OpenStream(cfg.LogDir(), name)
	if err != nil {
		return res, agentErr("start", name, ErrLaunchFailed, fmt.Sprintf("open log: %v", err))
	}
	s := cfg.Settings
	h, err := process.Launch(process.Spec{
		Name:    name,
		Argv:    process.Argv(s.Interpreter, s.InterpreterArgs, script),
		WorkDir: cfg.Root,
		Env:     m.childEnv(cfg),
		Output:  out,
	})
	// the child holds its own descriptor
	_ = out.Close()
	if err != nil {
		m.record(history.Event{Type: history.EventStartFailed, Agent: name, Detail: err.Error()})
		return res, agentErr("start", name, ErrLaunchFailed, err.Error())
	}

	rec := registry.Record{
		Agent:     name,
		PID:       h.PID,
		RunID:     m.newRunID(),
		StartUnix: h.StartUnix,
		StartedAt: h.StartedAt.UTC(),
	}
	res.PID, res.RunID = rec.PID, rec.RunID
	if err := reg.Write(rec); err != nil {
		_ = m.kill(h.PID)
		return res, agentErr("start", name, err, "write pid record")
	}
	m.log.Info("agent launched", "agent", name, "pid", h.PID, "run_id", rec.RunID, "log", res.LogFile)

	if !m.survivesGrace(ctx, h, s.GracePeriod) {
		_ = reg.Delete(name)
		metrics.SetRunning(name, false)
		m.record(history.Event{Type: history.EventStartFailed, Agent: name, PID: h.PID, RunID: rec.RunID, Detail: exitDetail(h)})
		m.log.Warn("agent exited during grace period", "agent", name, "pid", h.PID, "log", res.LogFile)
		return res, agentErr("start", name, ErrLaunchFailed, "check logs: "+res.LogFile)
	}

	metrics.IncStart(name)
	metrics.SetRunning(name, true)
	m.record(history.Event{Type: history.EventStart, Agent: name, PID: h.PID, RunID: rec.RunID})
	m.log.Info("agent started", "agent", name, "pid", h.PID)
	return res, nil
}

// survivesGrace waits out the grace period, returning early if the child
// exits. Cancelling ctx ends the wait and the current liveness decides.
func (m *Manager) survivesGrace(ctx context.Context, h *process.Handle, grace time.Duration) bool {
	waitCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-h.Done():
			cancel()
		case <-waitCtx.Done():
		}
	}()
	_ = m.sleep(waitCtx, grace)
	select {
	case <-h.Done():
		return false
	default:
	}
	return process.Alive(h.PID)
}

func exitDetail(h *process.Handle) string {
	select {
	case <-h.Done():
		if err := h.ExitErr(); err != nil {
			return err.Error()
		}
		return "exited"
	default:
		return "not alive"
	}
}

// Stop terminates the agent: SIGTERM to its process group, a bounded wait,
// then SIGKILL. The pid record is removed on every path that ends with the
// process gone. Stopping an agent that is not running sends no signal.
// Names missing from the configuration are accepted while a record exists.
func (m *Manager) Stop(ctx context.Context, name string) (StopResult, error) {
	cfg, reg := m.snapshot()
	res := StopResult{Agent: name}
	_, defined := cfg.Agent(name)
	if !defined {
		if _, err := reg.Read(name); errors.Is(err, os.ErrNotExist) {
			return res, agentErr("stop", name, ErrUnknownAgent, "")
		}
	}
	unlock, err := reg.Lock(ctx, name)
	if err != nil {
		return res, agentErr("stop", name, err, "")
	}
	defer unlock()

	rec, ok := reg.Lookup(name)
	if !ok {
		m.log.Info("agent not running", "agent", name)
		return res, nil
	}
	res.PID = rec.PID

	s := cfg.Settings
	begin := time.Now()
	if err := m.terminate(rec.PID); err != nil {
		if errors.Is(err, process.ErrNoProcess) {
			_ = reg.Delete(name)
			metrics.SetRunning(name, false)
			m.log.Info("agent exited before stop", "agent", name, "pid", rec.PID)
			return res, nil
		}
		return res, agentErr("stop", name, err, "pid "+strconv.Itoa(rec.PID))
	}
	res.WasRunning = true

	if !m.waitExit(ctx, rec.PID, s.StopTimeout, s.StopPollInterval) {
		res.Forced = true
		m.log.Warn("agent ignored SIGTERM, killing", "agent", name, "pid", rec.PID, "timeout", s.StopTimeout)
		if err := m.kill(rec.PID); err != nil && !errors.Is(err, process.ErrNoProcess) {
			return res, agentErr("stop", name, err, "kill pid "+strconv.Itoa(rec.PID))
		}
		m.waitExit(context.Background(), rec.PID, s.KillWait, s.StopPollInterval)
	}
	res.Duration = time.Since(begin)

	if err := reg.Delete(name); err != nil {
		m.log.Error("failed to remove pid record", "agent", name, "error", err)
	}
	detail := "graceful"
	if res.Forced {
		detail = "killed"
	}
	metrics.IncStop(name, res.Forced)
	metrics.ObserveStopDuration(name, res.Duration.Seconds())
	metrics.SetRunning(name, false)
	m.record(history.Event{Type: history.EventStop, Agent: name, PID: rec.PID, RunID: rec.RunID, Detail: detail})
	m.log.Info("agent stopped", "agent", name, "pid", rec.PID, "forced", res.Forced, "duration", res.Duration)
	return res, nil
}

// waitExit polls until pid is gone or window elapses. A cancelled ctx ends the
// wait early so the caller escalates.
func (m *Manager) waitExit(ctx context.Context, pid int, window, poll time.Duration) bool {
	if poll <= 0 {
		poll = 100 * time.Millisecond
	}
	deadline := time.Now().Add(window)
	for {
		if !process.Alive(pid) {
			return true
		}
		if !time.Now().Before(deadline) {
			return false
		}
		if err := m.sleep(ctx, min(poll, time.Until(deadline))); err != nil {
			return !process.Alive(pid)
		}
	}
}

// Restart stops the agent, pauses, and starts it again. A failed start is
// not rolled back: the agent stays stopped and the error is returned.
func (m *Manager) Restart(ctx context.Context, name string, opts StartOptions) (StartResult, error) {
	if _, ok := m.Config().Agent(name); !ok {
		return StartResult{Agent: name}, agentErr("restart", name, ErrUnknownAgent, "")
	}
	if _, err := m.Stop(ctx, name); err != nil {
		return StartResult{Agent: name}, err
	}
	if err := m.sleep(ctx, m.Config().Settings.RestartPause); err != nil {
		return StartResult{Agent: name}, agentErr("restart", name, err, "")
	}
	return m.Start(ctx, name, opts)
}
