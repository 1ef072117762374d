package process

import (
	"time"

	"github.com/shirou/gopsutil/v4/host"
	gopsproc "github.com/shirou/gopsutil/v4/process"
)

// Stats is a best-effort resource snapshot of a running child.
type Stats struct {
	Uptime   time.Duration
	RSSBytes uint64
	// HasMemory is false when the RSS could not be read.
	HasMemory bool
}

// MemoryMB returns the resident set size in megabytes.
func (s Stats) MemoryMB() float64 { return float64(s.RSSBytes) / (1024 * 1024) }

// Info reads uptime and memory for pid. ok is false when the process cannot be
// inspected at all.
func Info(pid int) (Stats, bool) {
	if pid <= 0 {
		return Stats{}, false
	}
	p, err := gopsproc.NewProcess(int32(pid))
	if err != nil {
		return Stats{}, false
	}
	var st Stats
	if ms, err := p.CreateTime(); err == nil && ms > 0 {
		st.Uptime = time.Since(time.UnixMilli(ms))
		if st.Uptime < 0 {
			st.Uptime = 0
		}
	}
	if mem, err := p.MemoryInfo(); err == nil && mem != nil {
		st.RSSBytes = mem.RSS
		st.HasMemory = true
	}
	return st, true
}

// HostUptime returns the machine uptime, or 0 when unavailable.
func HostUptime() time.Duration {
	secs, err := host.Uptime()
	if err != nil {
		return 0
	}
	return time.Duration(secs) * time.Second
}

func createTimeUnix(pid int) int64 {
	p, err := gopsproc.NewProcess(int32(pid))
	if err != nil {
		return 0
	}
	ms, err := p.CreateTime()
	if err != nil || ms <= 0 {
		return 0
	}
	return ms / 1000
}
