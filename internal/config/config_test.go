package config

import (
	"context"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sample = `# agent table
settings:
  log_directory: var/logs
  pid_directory: /tmp/agentctl-pids
  interpreter: python3
  grace_period: 500ms

agents:
  risk:
    script: src/agents/risk_agent.py
    enabled: true
    description: Risk monitor # keep me
    warning: Trades real money
  funding:
    script: src/agents/funding_agent.py
    enabled: false
    check_interval_minutes: 15
  hidden:
    script: hidden.py
    show_in_dashboard: false
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), DefaultFile)
	require.NoError(t, os.WriteFile(p, []byte(content), 0o600))
	return p
}

func TestLoad(t *testing.T) {
	p := writeConfig(t, sample)
	cfg, err := Load(p)
	require.NoError(t, err)

	assert.Equal(t, p, cfg.Path)
	assert.Equal(t, filepath.Dir(p), cfg.Root)
	assert.Equal(t, []string{"risk", "funding", "hidden"}, cfg.Names())

	risk, ok := cfg.Agent("risk")
	require.True(t, ok)
	assert.True(t, risk.Enabled)
	assert.True(t, risk.ShowInDashboard)
	assert.Equal(t, "Trades real money", risk.Warning)
	assert.Equal(t, filepath.Join(cfg.Root, "src/agents/risk_agent.py"), cfg.ScriptPath(risk))

	funding, _ := cfg.Agent("funding")
	assert.False(t, funding.Enabled)
	assert.Equal(t, 15, funding.CheckIntervalMinutes)

	hidden, _ := cfg.Agent("hidden")
	assert.False(t, hidden.ShowInDashboard)
	assert.False(t, hidden.Enabled)

	_, ok = cfg.Agent("nope")
	assert.False(t, ok)
}

func TestLoadSettingsDefaultsAndPaths(t *testing.T) {
	cfg, err := Load(writeConfig(t, sample))
	require.NoError(t, err)
	s := cfg.Settings
	assert.Equal(t, 500*time.Millisecond, s.GracePeriod)
	assert.Equal(t, 5*time.Second, s.StopTimeout)
	assert.Equal(t, 100*time.Millisecond, s.StopPollInterval)
	assert.Equal(t, 500*time.Millisecond, s.KillWait)
	assert.Equal(t, time.Second, s.RestartPause)
	assert.Equal(t, time.Second, s.BulkStartDelay)
	assert.Equal(t, []string{"-u"}, s.InterpreterArgs)
	assert.Equal(t, ".", s.PythonPath)
	assert.Equal(t, "127.0.0.1:8000", s.Listen)
	assert.Equal(t, filepath.Join(cfg.Root, "var/logs"), cfg.LogDir())
	assert.Equal(t, "/tmp/agentctl-pids", cfg.PIDDir())
	assert.Equal(t, "", cfg.HistoryPath())
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("AGENTCTL_SETTINGS_STOP_TIMEOUT", "9s")
	t.Setenv("AGENTCTL_SETTINGS_INTERPRETER", "/usr/bin/python3.12")
	cfg, err := Load(writeConfig(t, sample))
	require.NoError(t, err)
	assert.Equal(t, 9*time.Second, cfg.Settings.StopTimeout)
	assert.Equal(t, "/usr/bin/python3.12", cfg.Settings.Interpreter)
}

func TestLoadEmptyDocument(t *testing.T) {
	cfg, err := Load(writeConfig(t, ""))
	require.NoError(t, err)
	assert.Empty(t, cfg.Agents)
	assert.Equal(t, "logs", cfg.Settings.LogDirectory)
}

func TestLoadCommentedOutAgents(t *testing.T) {
	doc := "settings:\n  log_directory: logs\nagents:\n  # pulse:\n  #   script: pulse.py\n"
	cfg, err := Load(writeConfig(t, doc))
	require.NoError(t, err)
	assert.Empty(t, cfg.Agents)
	assert.Empty(t, cfg.Names())

	_, err = Load(writeConfig(t, "agents: ~\n"))
	require.NoError(t, err)
	_, err = Load(writeConfig(t, "agents: nope\n"))
	require.ErrorIs(t, err, ErrConfigCorrupt)
}

func TestLoadCorrupt(t *testing.T) {
	cases := map[string]string{
		"syntax":        "agents: [unclosed",
		"agents list":   "agents:\n  - a\n",
		"bad name":      "agents:\n  ../etc:\n    script: x.py\n",
		"slash name":    "agents:\n  a/b:\n    script: x.py\n",
		"no script":     "agents:\n  a:\n    enabled: true\n",
		"bad enabled":   "agents:\n  a:\n    script: x.py\n    enabled: maybe\n",
		"neg duration":  "settings:\n  grace_period: -1s\n",
		"bad duration":  "settings:\n  stop_timeout: soon\n",
		"negative tick": "agents:\n  a:\n    script: x.py\n    check_interval_minutes: -5\n",
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Load(writeConfig(t, doc))
			require.ErrorIs(t, err, ErrConfigCorrupt)
		})
	}
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.ErrorIs(t, err, ErrConfigCorrupt)
}

func TestValidName(t *testing.T) {
	for _, ok := range []string{"risk", "risk_agent", "a.b-c", "A1"} {
		assert.True(t, ValidName(ok), ok)
	}
	for _, bad := range []string{"", "..", "a..b", "a/b", "a b", `a\b`} {
		assert.False(t, ValidName(bad), bad)
	}
}

func TestSetEnabledRoundTrip(t *testing.T) {
	p := writeConfig(t, sample)
	require.NoError(t, SetEnabled(p, "funding", true))

	cfg, err := Load(p)
	require.NoError(t, err)
	a, _ := cfg.Agent("funding")
	assert.True(t, a.Enabled)
	assert.Equal(t, []string{"risk", "funding", "hidden"}, cfg.Names(), "order preserved")

	b, err := os.ReadFile(p)
	require.NoError(t, err)
	assert.Contains(t, string(b), "# keep me", "comments preserved")
	assert.Contains(t, string(b), "# agent table")
}

func TestToggleTwiceRestores(t *testing.T) {
	p := writeConfig(t, sample)
	v, err := Toggle(p, "risk")
	require.NoError(t, err)
	assert.False(t, v)
	v, err = Toggle(p, "risk")
	require.NoError(t, err)
	assert.True(t, v)

	cfg, err := Load(p)
	require.NoError(t, err)
	a, _ := cfg.Agent("risk")
	assert.True(t, a.Enabled)
}

func TestToggleAddsMissingKey(t *testing.T) {
	p := writeConfig(t, sample)
	v, err := Toggle(p, "hidden")
	require.NoError(t, err)
	assert.True(t, v)
	cfg, err := Load(p)
	require.NoError(t, err)
	a, _ := cfg.Agent("hidden")
	assert.True(t, a.Enabled)
}

func TestSetEnabledUnknown(t *testing.T) {
	p := writeConfig(t, sample)
	require.ErrorIs(t, SetEnabled(p, "ghost", true), ErrAgentNotFound)
	require.ErrorIs(t, SetEnabled(writeConfig(t, "settings: {}\n"), "ghost", true), ErrAgentNotFound)
}

func TestSetEnabledKeepsMode(t *testing.T) {
	p := writeConfig(t, sample)
	require.NoError(t, os.Chmod(p, 0o640))
	require.NoError(t, SetEnabled(p, "risk", false))
	fi, err := os.Stat(p)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o640), fi.Mode().Perm())
}

func TestWatchFiresOnChange(t *testing.T) {
	p := writeConfig(t, sample)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var calls atomic.Int32
	done := make(chan error, 1)
	go func() { done <- Watch(ctx, p, 50*time.Millisecond, func() { calls.Add(1) }) }()
	time.Sleep(100 * time.Millisecond)

	require.NoError(t, SetEnabled(p, "risk", false))
	require.Eventually(t, func() bool { return calls.Load() >= 1 }, 3*time.Second, 20*time.Millisecond)

	// unrelated files in the directory are ignored
	before := calls.Load()
	require.NoError(t, os.WriteFile(filepath.Join(filepath.Dir(p), "other.txt"), []byte("x"), 0o600))
	time.Sleep(200 * time.Millisecond)
	assert.Equal(t, before, calls.Load())

	cancel()
	require.NoError(t, <-done)
}
