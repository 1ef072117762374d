package manager

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// BulkResult partitions agent names by outcome. Errors holds the cause for
// every name in Failed.
type BulkResult struct {
	Succeeded []string         `json:"succeeded"`
	Failed    []string         `json:"failed"`
	Errors    map[string]error `json:"-"`
}

// OK reports whether nothing failed.
func (b BulkResult) OK() bool { return len(b.Failed) == 0 }

func (b *BulkResult) fail(name string, err error) {
	b.Failed = append(b.Failed, name)
	if b.Errors == nil {
		b.Errors = map[string]error{}
	}
	b.Errors[name] = err
}

// Summary renders a one-line description such as "started 2, failed 1 (x)".
func (b BulkResult) Summary(verb string) string {
	msg := fmt.Sprintf("%s %d agent(s)", verb, len(b.Succeeded))
	if len(b.Failed) > 0 {
		msg += fmt.Sprintf(", failed %d: %s", len(b.Failed), strings.Join(b.Failed, ", "))
	}
	return msg
}

// StartAllEnabled starts every enabled agent in configuration order with a
// pause between launches. Agents that are already running count as failed,
// one failure never stops the batch. Cancelling ctx skips the remaining agents,
// which are reported as failed.
func (m *Manager) StartAllEnabled(ctx context.Context, opts StartOptions) BulkResult {
	cfg := m.Config()
	res := BulkResult{Succeeded: []string{}, Failed: []string{}}
	first := true
	for _, a := range cfg.Agents {
		if !a.Enabled {
			continue
		}
		if !first {
			if err := m.sleep(ctx, cfg.Settings.BulkStartDelay); err != nil {
				res.fail(a.Name, err)
				continue
			}
		}
		first = false
		if _, err := m.Start(ctx, a.Name, opts); err != nil {
			m.log.Warn("bulk start: agent failed", "agent", a.Name, "error", err)
			res.fail(a.Name, err)
			continue
		}
		res.Succeeded = append(res.Succeeded, a.Name)
	}
	m.log.Info("bulk start finished", "started", len(res.Succeeded), "failed", len(res.Failed))
	return res
}

// StopAll stops every configured agent that has a live process. Agents that
// were not running are left out of both lists.
func (m *Manager) StopAll(ctx context.Context) BulkResult {
	cfg := m.Config()
	res := BulkResult{Succeeded: []string{}, Failed: []string{}}
	for _, a := range cfg.Agents {
		if _, ok := m.PID(a.Name); !ok {
			continue
		}
		r, err := m.Stop(ctx, a.Name)
		switch {
		case err != nil:
			m.log.Warn("bulk stop: agent failed", "agent", a.Name, "error", err)
			res.fail(a.Name, err)
		case r.WasRunning:
			res.Succeeded = append(res.Succeeded, a.Name)
		}
	}
	m.log.Info("bulk stop finished", "stopped", len(res.Succeeded), "failed", len(res.Failed))
	return res
}

// IsRejected reports errors that describe a refused request rather than a
// fault, such as an unknown name or an agent already running.
func IsRejected(err error) bool {
	return errors.Is(err, ErrUnknownAgent) || errors.Is(err, ErrAlreadyRunning) ||
		errors.Is(err, ErrScriptMissing) || errors.Is(err, ErrCancelled)
}
