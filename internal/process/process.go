package process

import (
	"errors"
	"os"
	"os/exec"
	"sync"
	"time"
)

// ErrNoProcess is returned by signal helpers when the target pid no longer exists.
var ErrNoProcess = errors.New("no such process")

// Spec describes a single child launch.
type Spec struct {
	Name    string   // agent name, used only for diagnostics
	Argv    []string // argv[0] is resolved through PATH
	WorkDir string   // optional working dir
	Env     []string // full environment; nil inherits the supervisor's
	Output  *os.File // receives both stdout and stderr
}

// Handle is a launched child process. The supervisor reaps it in the background
// so an exited child does not linger as a zombie while the supervisor is alive.
type Handle struct {
	PID       int
	StartedAt time.Time
	StartUnix int64 // OS-reported start time in unix seconds, 0 when unavailable

	mu      sync.Mutex
	exitErr error
	done    chan struct{}
}

// Launch starts spec as a detached child in its own process group with stdout
// and stderr redirected to spec.Output. It does not wait for the child.
func Launch(spec Spec) (*Handle, error) {
	if len(spec.Argv) == 0 {
		return nil, errors.New("empty command")
	}
	// #nosec G204 argv comes from the operator's configuration file
	cmd := exec.Command(spec.Argv[0], spec.Argv[1:]...)
	if spec.WorkDir != "" {
		cmd.Dir = spec.WorkDir
	}
	if spec.Env != nil {
		cmd.Env = spec.Env
	}
	if spec.Output != nil {
		cmd.Stdout = spec.Output
		cmd.Stderr = spec.Output
	}
	configureSysProcAttr(cmd)

	if err := cmd.Start(); err != nil {
		return nil, err
	}
	h := &Handle{
		PID:       cmd.Process.Pid,
		StartedAt: time.Now(),
		StartUnix: StartUnix(cmd.Process.Pid),
		done:      make(chan struct{}),
	}
	go func() {
		err := cmd.Wait()
		h.mu.Lock()
		h.exitErr = err
		h.mu.Unlock()
		close(h.done)
	}()
	return h, nil
}

// Done is closed once the child has exited and been reaped.
func (h *Handle) Done() <-chan struct{} { return h.done }

// ExitErr returns the error reported by Wait; only meaningful after Done is closed.
func (h *Handle) ExitErr() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.exitErr
}

// Argv builds the launch argv for a script. An empty interpreter executes the
// script directly.
func Argv(interpreter string, args []string, script string) []string {
	if interpreter == "" {
		return []string{script}
	}
	out := make([]string, 0, len(args)+2)
	out = append(out, interpreter)
	out = append(out, args...)
	return append(out, script)
}
