package manager

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/loykin/agentctl/internal/config"
)

func requireUnix(t *testing.T) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("tests require sh on Unix-like systems")
	}
}

const (
	longRunning = "echo \"run $$\"\nexec sleep 30\n"
	ignoresTerm = "trap '' TERM\necho ready\nwhile true; do sleep 0.1; done\n"
	failsFast   = "echo boom >&2\nexit 3\n"
)

type testAgent struct {
	name    string
	script  string // body; empty means the script file is not created
	enabled bool
	extra   string // additional YAML lines, already indented by 4
}

type fixture struct {
	root    string
	cfgPath string
	m       *Manager
	terms   atomic.Int32
	kills   atomic.Int32
}

func settingsYAML(extra string) string {
	return `settings:
  log_directory: logs
  pid_directory: run
  interpreter: sh
  interpreter_args: []
  python_path: lib
  env: ["AGENT_MODE=test"]
  grace_period: 300ms
  stop_timeout: 800ms
  stop_poll_interval: 20ms
  kill_wait: 300ms
  restart_pause: 10ms
  bulk_start_delay: 10ms
` + extra
}

func newFixture(t *testing.T, agents []testAgent, settingsExtra string, opts ...Option) *fixture {
	t.Helper()
	requireUnix(t)
	root := t.TempDir()
	var sb strings.Builder
	sb.WriteString(settingsYAML(settingsExtra))
	sb.WriteString("agents:\n")
	for _, a := range agents {
		script := filepath.Join("agents", a.name+".sh")
		if a.script != "" {
			p := filepath.Join(root, script)
			require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
			require.NoError(t, os.WriteFile(p, []byte(a.script), 0o644))
		}
		sb.WriteString("  " + a.name + ":\n")
		sb.WriteString("    script: " + script + "\n")
		if a.enabled {
			sb.WriteString("    enabled: true\n")
		} else {
			sb.WriteString("    enabled: false\n")
		}
		sb.WriteString(a.extra)
	}
	cfgPath := filepath.Join(root, config.DefaultFile)
	require.NoError(t, os.WriteFile(cfgPath, []byte(sb.String()), 0o644))

	opts = append([]Option{WithBaseEnv([]string{"PATH=" + os.Getenv("PATH")})}, opts...)
	m, err := Open(cfgPath, opts...)
	require.NoError(t, err)

	f := &fixture{root: root, cfgPath: cfgPath, m: m}
	term, kill := m.terminate, m.kill
	m.terminate = func(pid int) error { f.terms.Add(1); return term(pid) }
	m.kill = func(pid int) error { f.kills.Add(1); return kill(pid) }
	t.Cleanup(func() {
		m.StopAll(context.Background())
		_ = m.Close()
	})
	return f
}

func (f *fixture) recordPath(name string) string {
	return filepath.Join(f.root, "run", name+".pid")
}

func waitForLog(t *testing.T, m *Manager, name, want string) {
	t.Helper()
	require.Eventually(t, func() bool {
		lines, err := m.Logs(name, 100)
		return err == nil && strings.Contains(strings.Join(lines, "\n"), want)
	}, 3*time.Second, 20*time.Millisecond, "log of %s never contained %q", name, want)
}
