package process

// State is the result of probing a pid.
type State int

const (
	// StateDead means the OS reports no such process.
	StateDead State = iota
	// StateAlive means the process exists and is not a zombie.
	StateAlive
	// StateDenied means a process exists but we may not signal it. It cannot be
	// a child we launched, so callers treat it as stale but should say so.
	StateDenied
	// StateZombie means the process exited and is waiting to be reaped.
	StateZombie
)

func (s State) String() string {
	switch s {
	case StateDead:
		return "dead"
	case StateAlive:
		return "alive"
	case StateDenied:
		return "permission_denied"
	case StateZombie:
		return "zombie"
	default:
		return "unknown"
	}
}

// Alive reports whether pid identifies a live, non-zombie process.
func Alive(pid int) bool { return Probe(pid) == StateAlive }
