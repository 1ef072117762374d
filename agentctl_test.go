package agentctl

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func requireUnix(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("requires Unix-like environment")
	}
}

func writeConfig(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "agents"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "agents", "pulse.sh"), []byte("echo beat\nexec sleep 30\n"), 0o644))
	cfg := `settings:
  interpreter: sh
  interpreter_args: []
  pid_directory: run
  grace_period: 200ms
  stop_timeout: 800ms
  stop_poll_interval: 20ms
agents:
  pulse:
    script: agents/pulse.sh
    enabled: true
`
	p := filepath.Join(root, "agent_config.yaml")
	require.NoError(t, os.WriteFile(p, []byte(cfg), 0o644))
	return p
}

func TestManagerFacadeStartStatusStop(t *testing.T) {
	requireUnix(t)
	m, err := Open(writeConfig(t), WithBaseEnv([]string{"PATH=" + os.Getenv("PATH")}))
	require.NoError(t, err)
	defer func() { _ = m.Close() }()
	ctx := context.Background()

	res, err := m.Start(ctx, "pulse", StartOptions{})
	require.NoError(t, err)
	st, err := m.Status("pulse")
	require.NoError(t, err)
	assert.True(t, st.Running)
	assert.Equal(t, res.PID, st.PID)

	_, err = m.Start(ctx, "pulse", StartOptions{})
	assert.True(t, errors.Is(err, ErrAlreadyRunning))
	var ae *AgentError
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, "pulse", ae.Agent)

	stop, err := m.Stop(ctx, "pulse")
	require.NoError(t, err)
	assert.True(t, stop.WasRunning)
	assert.Len(t, m.StatusAll(), 1)
}

func TestLoadConfigAndNew(t *testing.T) {
	requireUnix(t)
	cfg, err := LoadConfig(writeConfig(t))
	require.NoError(t, err)
	assert.Equal(t, []string{"pulse"}, cfg.Names())

	m, err := New(cfg)
	require.NoError(t, err)
	defer func() { _ = m.Close() }()
	assert.Equal(t, 1, m.SystemInfo().EnabledAgents)

	_, err = LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.True(t, errors.Is(err, ErrConfigCorrupt))
}

func TestHandlerFacade(t *testing.T) {
	requireUnix(t)
	m, err := Open(writeConfig(t))
	require.NoError(t, err)
	defer func() { _ = m.Close() }()

	h := Handler(m, "/ops", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ops/api/agents/status", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), `"name":"pulse"`))

	srv := NewHTTPServer("127.0.0.1:0", "", m, nil)
	assert.NotNil(t, srv.Handler)
}

func TestRegisterMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	require.NoError(t, RegisterMetrics(reg))
	// a second call is a no-op even for another registry
	require.NoError(t, RegisterMetrics(prometheus.NewRegistry()))
}
