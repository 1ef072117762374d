//go:build !windows

package process

import (
	"errors"
	"slices"
	"syscall"

	gopsproc "github.com/shirou/gopsutil/v4/process"
)

// Probe checks pid with signal 0 and distinguishes ESRCH from EPERM.
// A quickly exiting child can stay a zombie until reaped; that is reported as
// StateZombie rather than alive.
func Probe(pid int) State {
	if pid <= 0 {
		return StateDead
	}
	err := syscall.Kill(pid, 0)
	switch {
	case err == nil:
		if isZombie(pid) {
			return StateZombie
		}
		return StateAlive
	case errors.Is(err, syscall.EPERM):
		return StateDenied
	default:
		return StateDead
	}
}

func isZombie(pid int) bool {
	p, err := gopsproc.NewProcess(int32(pid))
	if err != nil {
		return false
	}
	st, err := p.Status()
	if err != nil {
		return false
	}
	return slices.Contains(st, gopsproc.Zombie)
}
