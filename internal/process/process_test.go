//go:build !windows

package process

import (
	"os"
	"path/filepath"
	"strings"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openOutput(t *testing.T) *os.File {
	t.Helper()
	f, err := os.OpenFile(filepath.Join(t.TempDir(), "out.log"), os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	require.NoError(t, err)
	t.Cleanup(func() { _ = f.Close() })
	return f
}

func waitDone(t *testing.T, h *Handle) {
	t.Helper()
	select {
	case <-h.Done():
	case <-time.After(5 * time.Second):
		t.Fatalf("pid %d did not exit", h.PID)
	}
}

func TestArgv(t *testing.T) {
	assert.Equal(t, []string{"python3", "-u", "a.py"}, Argv("python3", []string{"-u"}, "a.py"))
	assert.Equal(t, []string{"a.sh"}, Argv("", []string{"-u"}, "a.sh"))
	assert.Equal(t, []string{"sh", "a.sh"}, Argv("sh", nil, "a.sh"))
}

func TestLaunchRedirectsOutput(t *testing.T) {
	out := openOutput(t)
	h, err := Launch(Spec{Name: "echo", Argv: []string{"sh", "-c", "echo out; echo err 1>&2"}, Output: out})
	require.NoError(t, err)
	waitDone(t, h)
	require.NoError(t, h.ExitErr())

	b, err := os.ReadFile(out.Name())
	require.NoError(t, err)
	assert.Contains(t, string(b), "out")
	assert.Contains(t, string(b), "err")
}

func TestLaunchAppliesEnvAndWorkDir(t *testing.T) {
	out := openOutput(t)
	work := t.TempDir()
	h, err := Launch(Spec{
		Argv:    []string{"sh", "-c", "pwd; echo $FOO"},
		WorkDir: work,
		Env:     []string{"FOO=bar", "PATH=" + os.Getenv("PATH")},
		Output:  out,
	})
	require.NoError(t, err)
	waitDone(t, h)

	b, err := os.ReadFile(out.Name())
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(b)), "\n")
	require.Len(t, lines, 2)
	resolved, _ := filepath.EvalSymlinks(work)
	assert.Contains(t, []string{work, resolved}, lines[0])
	assert.Equal(t, "bar", lines[1])
}

func TestLaunchMissingBinary(t *testing.T) {
	_, err := Launch(Spec{Argv: []string{"definitely-not-a-real-binary-xyz"}})
	require.Error(t, err)
	_, err = Launch(Spec{})
	require.Error(t, err)
}

func TestLaunchNewProcessGroup(t *testing.T) {
	h, err := Launch(Spec{Argv: []string{"sleep", "5"}, Output: openOutput(t)})
	require.NoError(t, err)
	t.Cleanup(func() { _ = Kill(h.PID); waitDone(t, h) })

	pgid, err := syscall.Getpgid(h.PID)
	require.NoError(t, err)
	assert.Equal(t, h.PID, pgid)
	assert.NotEqual(t, syscall.Getpgrp(), pgid)
}

func TestProbeAndTerminate(t *testing.T) {
	h, err := Launch(Spec{Argv: []string{"sleep", "5"}, Output: openOutput(t)})
	require.NoError(t, err)

	assert.Equal(t, StateAlive, Probe(h.PID))
	assert.True(t, Alive(h.PID))

	require.NoError(t, Terminate(h.PID))
	waitDone(t, h)
	assert.Equal(t, StateDead, Probe(h.PID))
	assert.ErrorIs(t, Terminate(h.PID), ErrNoProcess)
	assert.ErrorIs(t, Kill(h.PID), ErrNoProcess)
}

func TestKillIgnoringTerm(t *testing.T) {
	h, err := Launch(Spec{Argv: []string{"sh", "-c", "trap '' TERM; sleep 5"}, Output: openOutput(t)})
	require.NoError(t, err)
	time.Sleep(100 * time.Millisecond)

	require.NoError(t, Terminate(h.PID))
	select {
	case <-h.Done():
		t.Fatal("child should ignore SIGTERM")
	case <-time.After(200 * time.Millisecond):
	}
	require.NoError(t, Kill(h.PID))
	waitDone(t, h)
}

func TestProbeInvalidPID(t *testing.T) {
	assert.Equal(t, StateDead, Probe(0))
	assert.Equal(t, StateDead, Probe(-1))
	assert.ErrorIs(t, Terminate(0), ErrNoProcess)
}

func TestProbePermissionDenied(t *testing.T) {
	info, err := os.Stat("/proc/1")
	if os.Geteuid() == 0 || err != nil {
		t.Skip("needs an unprivileged user and /proc")
	}
	if st, ok := info.Sys().(*syscall.Stat_t); ok && int(st.Uid) == os.Geteuid() {
		t.Skip("pid 1 belongs to the current user")
	}
	assert.Equal(t, StateDenied, Probe(1))
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "alive", StateAlive.String())
	assert.Equal(t, "dead", StateDead.String())
	assert.Equal(t, "permission_denied", StateDenied.String())
	assert.Equal(t, "zombie", StateZombie.String())
	assert.Equal(t, "unknown", State(42).String())
}

func TestStartUnixMatchesNow(t *testing.T) {
	got := StartUnix(os.Getpid())
	require.NotZero(t, got)
	assert.LessOrEqual(t, got, time.Now().Unix()+1)
	assert.Zero(t, StartUnix(0))
}

func TestParseStartTicks(t *testing.T) {
	line := "1234 (weird ) name) S 1 1234 1234 0 -1 4194560 100 0 0 0 1 2 0 0 20 0 1 0 98765 1000 10"
	assert.Equal(t, int64(98765), parseStartTicks([]byte(line)))
	assert.Zero(t, parseStartTicks([]byte("garbage")))
	assert.Zero(t, parseStartTicks([]byte("1 (x) S 1 2")))
}

func TestInfoSelf(t *testing.T) {
	st, ok := Info(os.Getpid())
	require.True(t, ok)
	assert.True(t, st.HasMemory)
	assert.Positive(t, st.MemoryMB())
	_, ok = Info(0)
	assert.False(t, ok)
	assert.Positive(t, HostUptime())
}
