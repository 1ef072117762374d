package logger

import (
	"bufio"
	"errors"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

const logExt = ".log"

// StreamPath returns the per-agent output file path.
func StreamPath(dir, agent string) string { return filepath.Join(dir, agent+logExt) }

// OpenStream creates or truncates the agent's output file. Each start of an
// agent discards the output of the previous run. The caller hands the file to
// the child and closes its own descriptor once the child has started.
func OpenStream(dir, agent string) (*os.File, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, err
	}
	// #nosec G304 agent names are validated before reaching here
	return os.OpenFile(StreamPath(dir, agent), os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
}

// Tail returns the last n lines of the file at path with trailing whitespace
// removed. n <= 0 yields nothing.
func Tail(path string, n int) ([]string, error) {
	if n <= 0 {
		return []string{}, nil
	}
	// #nosec G304 path is derived from the configured log directory
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()
	return tailReader(f, n)
}

func tailReader(r io.Reader, n int) ([]string, error) {
	ring := make([]string, 0, n)
	start := 0
	br := bufio.NewReader(r)
	for {
		line, err := br.ReadString('\n')
		if line != "" {
			line = strings.TrimRight(line, " \t\r\n")
			if len(ring) < n {
				ring = append(ring, line)
			} else {
				ring[start] = line
				start = (start + 1) % n
			}
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
	}
	out := make([]string, 0, len(ring))
	out = append(out, ring[start:]...)
	return append(out, ring[:start]...), nil
}

// LastModified returns the modification time of the file at path.
func LastModified(path string) (time.Time, bool) {
	fi, err := os.Stat(path)
	if err != nil {
		return time.Time{}, false
	}
	return fi.ModTime(), true
}

// Alert is a notable line found in an agent log.
type Alert struct {
	Type      string    `json:"type"`
	Agent     string    `json:"agent"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// AlertKeywords are matched case-insensitively, first match wins.
var AlertKeywords = []string{"whale", "liquidation", "sentiment", "funding", "error", "warning", "critical"}

const (
	alertScanLines  = 20
	alertMessageMax = 200
	alertLimit      = 10
)

// ScanAlerts inspects the tail of every *.log file in dir and returns up to ten
// matching lines, newest first. Files are ordered by modification time and
// lines within a file by position. Unreadable files are skipped.
func ScanAlerts(dir string) []Alert {
	paths, err := filepath.Glob(filepath.Join(dir, "*"+logExt))
	if err != nil {
		return nil
	}
	var alerts []Alert
	for _, p := range paths {
		mod, ok := LastModified(p)
		if !ok {
			continue
		}
		lines, err := Tail(p, alertScanLines)
		if err != nil {
			continue
		}
		agent := strings.TrimSuffix(filepath.Base(p), logExt)
		for i := len(lines) - 1; i >= 0; i-- {
			kw := matchKeyword(lines[i])
			if kw == "" {
				continue
			}
			alerts = append(alerts, Alert{
				Type:      kw,
				Agent:     agent,
				Message:   truncate(strings.TrimSpace(lines[i]), alertMessageMax),
				Timestamp: mod,
			})
		}
	}
	sort.SliceStable(alerts, func(i, j int) bool { return alerts[i].Timestamp.After(alerts[j].Timestamp) })
	if len(alerts) > alertLimit {
		alerts = alerts[:alertLimit]
	}
	return alerts
}

func matchKeyword(line string) string {
	lower := strings.ToLower(line)
	for _, kw := range AlertKeywords {
		if strings.Contains(lower, kw) {
			return kw
		}
	}
	return ""
}

// truncate cuts s to at most n runes.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

// IsNotExist reports whether err means the log file has not been created yet.
func IsNotExist(err error) bool { return errors.Is(err, os.ErrNotExist) }
