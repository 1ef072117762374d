//go:build windows

package process

import (
	"os"
)

// Terminate has no graceful equivalent on Windows; the process is killed.
func Terminate(pid int) error { return Kill(pid) }

// Kill terminates the process by pid.
func Kill(pid int) error {
	if pid <= 0 {
		return ErrNoProcess
	}
	p, err := os.FindProcess(pid)
	if err != nil {
		return ErrNoProcess
	}
	if err := p.Kill(); err != nil {
		if err == os.ErrProcessDone {
			return ErrNoProcess
		}
		return err
	}
	return nil
}
