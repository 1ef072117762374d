//go:build !windows

package process

import (
	"errors"
	"syscall"
)

// Terminate sends SIGTERM to the child's process group, falling back to the
// pid alone when it does not lead a group.
func Terminate(pid int) error { return signalGroup(pid, syscall.SIGTERM) }

// Kill sends SIGKILL to the child's process group, falling back to the pid alone.
func Kill(pid int) error { return signalGroup(pid, syscall.SIGKILL) }

func signalGroup(pid int, sig syscall.Signal) error {
	if pid <= 0 {
		return ErrNoProcess
	}
	err := syscall.Kill(-pid, sig)
	if errors.Is(err, syscall.ESRCH) {
		err = syscall.Kill(pid, sig)
	}
	if errors.Is(err, syscall.ESRCH) {
		return ErrNoProcess
	}
	return err
}
