//go:build windows

package process

import (
	gopsproc "github.com/shirou/gopsutil/v4/process"
)

// Probe reports whether pid exists. Windows offers no separate permission
// signal here, so StateDenied is never returned.
func Probe(pid int) State {
	if pid <= 0 {
		return StateDead
	}
	ok, err := gopsproc.PidExists(int32(pid))
	if err != nil || !ok {
		return StateDead
	}
	return StateAlive
}
