//go:build windows

package process

// StartUnix returns the process creation time in unix seconds, or 0.
func StartUnix(pid int) int64 {
	if pid <= 0 {
		return 0
	}
	return createTimeUnix(pid)
}
