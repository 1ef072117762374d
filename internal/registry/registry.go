// Package registry persists one pid record per running agent so that state
// survives the supervisor exiting. Records are plain files under a directory:
//
//	<dir>/<agent>.pid   pid on the first line, JSON metadata on the second
//	<dir>/<agent>.lock  advisory lock serializing start/stop of one agent
package registry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/gofrs/flock"

	"github.com/loykin/agentctl/internal/process"
)

const (
	pidExt  = ".pid"
	lockExt = ".lock"

	// startTolerance absorbs rounding between the recorded and the live start time.
	startTolerance = 1
)

// ErrRecordCorrupt is returned when a record exists but cannot be parsed.
var ErrRecordCorrupt = errors.New("pid record corrupt")

// ErrLocked is returned when the agent lock is held by another supervisor
// and could not be acquired before the context expired.
var ErrLocked = errors.New("agent is locked by another operation")

// Record is the persisted state of one running agent.
type Record struct {
	Agent     string    `json:"-"`
	PID       int       `json:"-"`
	RunID     string    `json:"run_id,omitempty"`
	StartUnix int64     `json:"start_unix,omitempty"`
	StartedAt time.Time `json:"started_at"`
}

// Purge reasons reported to the OnStale hook.
const (
	ReasonDead      = "dead"
	ReasonDenied    = "permission_denied"
	ReasonZombie    = "zombie"
	ReasonPIDReused = "pid_reused"
	ReasonCorrupt   = "corrupt"
)

// Registry manages pid records in a single directory.
type Registry struct {
	dir     string
	log     *slog.Logger
	probe   func(pid int) process.State
	start   func(pid int) int64
	onStale func(rec Record, reason string)
}

// Option configures a Registry.
type Option func(*Registry)

// WithLogger sets the logger used for purge warnings.
func WithLogger(l *slog.Logger) Option { return func(r *Registry) { r.log = l } }

// WithOnStale registers a hook invoked after a stale record has been removed.
func WithOnStale(fn func(rec Record, reason string)) Option {
	return func(r *Registry) { r.onStale = fn }
}

// withProbe swaps the liveness probe; used by tests.
func withProbe(fn func(int) process.State, start func(int) int64) Option {
	return func(r *Registry) {
		r.probe = fn
		if start != nil {
			r.start = start
		}
	}
}

// New returns a registry rooted at dir, creating the directory if needed.
func New(dir string, opts ...Option) (*Registry, error) {
	if dir == "" {
		return nil, errors.New("registry: empty directory")
	}
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("registry: create %s: %w", dir, err)
	}
	r := &Registry{
		dir:   dir,
		log:   slog.Default(),
		probe: process.Probe,
		start: process.StartUnix,
	}
	for _, o := range opts {
		o(r)
	}
	return r, nil
}

// Dir returns the directory holding the records.
func (r *Registry) Dir() string { return r.dir }

// Path returns the pid record path for agent.
func (r *Registry) Path(agent string) string { return filepath.Join(r.dir, agent+pidExt) }

func (r *Registry) lockPath(agent string) string { return filepath.Join(r.dir, agent+lockExt) }

// Read returns the raw record without checking liveness. A missing record
// yields an error satisfying errors.Is(err, os.ErrNotExist).
func (r *Registry) Read(agent string) (Record, error) {
	b, err := os.ReadFile(r.Path(agent))
	if err != nil {
		return Record{}, err
	}
	rec, err := Parse(b)
	if err != nil {
		return Record{}, err
	}
	rec.Agent = agent
	return rec, nil
}

// Parse decodes record bytes. A record holding only a pid is accepted; the
// metadata line is optional.
func Parse(b []byte) (Record, error) {
	first, rest, _ := strings.Cut(string(b), "\n")
	pid, err := strconv.Atoi(strings.TrimSpace(first))
	if err != nil || pid <= 0 {
		return Record{}, ErrRecordCorrupt
	}
	rec := Record{PID: pid}
	if meta := strings.TrimSpace(rest); meta != "" {
		if err := json.Unmarshal([]byte(meta), &rec); err != nil {
			return Record{}, ErrRecordCorrupt
		}
		rec.PID = pid
	}
	return rec, nil
}

// Encode renders rec in the on-disk format.
func Encode(rec Record) ([]byte, error) {
	meta, err := json.Marshal(rec)
	if err != nil {
		return nil, err
	}
	var sb strings.Builder
	sb.WriteString(strconv.Itoa(rec.PID))
	sb.WriteByte('\n')
	sb.Write(meta)
	sb.WriteByte('\n')
	return []byte(sb.String()), nil
}

// Write persists rec atomically: readers see either the old record or the new
// one, never a partial file.
func (r *Registry) Write(rec Record) error {
	if rec.PID <= 0 {
		return fmt.Errorf("registry: invalid pid %d", rec.PID)
	}
	data, err := Encode(rec)
	if err != nil {
		return err
	}
	tmp, err := os.CreateTemp(r.dir, "."+rec.Agent+".*.tmp")
	if err != nil {
		return err
	}
	name := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(name)
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(name)
		return err
	}
	if err := os.Rename(name, r.Path(rec.Agent)); err != nil {
		_ = os.Remove(name)
		return err
	}
	return nil
}

// Delete removes the record for agent. A missing record is not an error.
func (r *Registry) Delete(agent string) error {
	err := os.Remove(r.Path(agent))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

// Lookup returns the record for agent only if it names a live process. Records
// pointing at dead, foreign, zombie or recycled pids are removed as a side effect.
func (r *Registry) Lookup(agent string) (Record, bool) {
	rec, err := r.Read(agent)
	if err != nil {
		if errors.Is(err, ErrRecordCorrupt) {
			r.purge(Record{Agent: agent}, ReasonCorrupt)
		}
		return Record{}, false
	}
	if reason := r.staleReason(rec); reason != "" {
		r.purge(rec, reason)
		return Record{}, false
	}
	return rec, true
}

// PID returns the live pid for agent.
func (r *Registry) PID(agent string) (int, bool) {
	rec, ok := r.Lookup(agent)
	return rec.PID, ok
}

func (r *Registry) staleReason(rec Record) string {
	switch r.probe(rec.PID) {
	case process.StateDead:
		return ReasonDead
	case process.StateDenied:
		return ReasonDenied
	case process.StateZombie:
		return ReasonZombie
	}
	if rec.StartUnix > 0 {
		if live := r.start(rec.PID); live > 0 && abs(live-rec.StartUnix) > startTolerance {
			return ReasonPIDReused
		}
	}
	return ""
}

func (r *Registry) purge(rec Record, reason string) {
	if err := r.Delete(rec.Agent); err != nil {
		r.log.Error("failed to remove stale pid record", "agent", rec.Agent, "error", err)
		return
	}
	lvl := slog.LevelInfo
	if reason == ReasonDenied || reason == ReasonCorrupt || reason == ReasonPIDReused {
		lvl = slog.LevelWarn
	}
	r.log.Log(context.Background(), lvl, "removed stale pid record", "agent", rec.Agent, "pid", rec.PID, "reason", reason)
	if r.onStale != nil {
		r.onStale(rec, reason)
	}
}

// List returns the agent names that currently have a record, sorted. Lock and
// temp files are ignored. Liveness is not checked.
func (r *Registry) List() ([]string, error) {
	entries, err := os.ReadDir(r.dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	var out []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || strings.HasPrefix(name, ".") {
			continue
		}
		if agent, ok := strings.CutSuffix(name, pidExt); ok && agent != "" {
			out = append(out, agent)
		}
	}
	sort.Strings(out)
	return out, nil
}

// Lock takes the per-agent advisory lock, retrying until ctx is done. The
// returned function releases it.
func (r *Registry) Lock(ctx context.Context, agent string) (func(), error) {
	fl := flock.New(r.lockPath(agent))
	ok, err := fl.TryLockContext(ctx, 50*time.Millisecond)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w: %s", ErrLocked, agent)
		}
		return nil, fmt.Errorf("registry: lock %s: %w", agent, err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrLocked, agent)
	}
	return func() { _ = fl.Unlock() }, nil
}

func abs(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}
