package logger

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeLog(t *testing.T, dir, agent, content string, mod time.Time) string {
	t.Helper()
	p := StreamPath(dir, agent)
	require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	require.NoError(t, os.Chtimes(p, mod, mod))
	return p
}

func TestOpenStreamTruncates(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "logs")
	f, err := OpenStream(dir, "a")
	require.NoError(t, err)
	_, _ = f.WriteString("first run\n")
	require.NoError(t, f.Close())

	f, err = OpenStream(dir, "a")
	require.NoError(t, err)
	_, _ = f.WriteString("second\n")
	require.NoError(t, f.Close())

	b, err := os.ReadFile(StreamPath(dir, "a"))
	require.NoError(t, err)
	assert.Equal(t, "second\n", string(b))
}

func TestTail(t *testing.T) {
	dir := t.TempDir()
	var sb strings.Builder
	for i := 1; i <= 100; i++ {
		fmt.Fprintf(&sb, "line %d  \r\n", i)
	}
	p := writeLog(t, dir, "a", sb.String()+"partial", time.Now())

	lines, err := Tail(p, 3)
	require.NoError(t, err)
	assert.Equal(t, []string{"line 99", "line 100", "partial"}, lines)

	lines, err = Tail(p, 500)
	require.NoError(t, err)
	assert.Len(t, lines, 101)
	assert.Equal(t, "line 1", lines[0])

	lines, err = Tail(p, 0)
	require.NoError(t, err)
	assert.Empty(t, lines)

	_, err = Tail(filepath.Join(dir, "missing.log"), 5)
	assert.True(t, IsNotExist(err))
}

func TestTailEmptyFile(t *testing.T) {
	p := writeLog(t, t.TempDir(), "a", "", time.Now())
	lines, err := Tail(p, 10)
	require.NoError(t, err)
	assert.Empty(t, lines)
}

func TestLastModified(t *testing.T) {
	at := time.Now().Add(-time.Hour).Truncate(time.Second)
	p := writeLog(t, t.TempDir(), "a", "x", at)
	got, ok := LastModified(p)
	require.True(t, ok)
	assert.True(t, at.Equal(got))
	_, ok = LastModified(p + ".nope")
	assert.False(t, ok)
}

func TestScanAlerts(t *testing.T) {
	dir := t.TempDir()
	now := time.Now().Truncate(time.Second)
	writeLog(t, dir, "old", "big WHALE spotted\nnothing here\n", now.Add(-time.Hour))
	writeLog(t, dir, "new", "Funding rate flipped\nERROR and warning\n"+strings.Repeat("x", 300)+" critical\n", now)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "ignored.txt"), []byte("error"), 0o644))

	alerts := ScanAlerts(dir)
	require.Len(t, alerts, 4)

	assert.Equal(t, "new", alerts[0].Agent)
	assert.Equal(t, "critical", alerts[0].Type)
	assert.Len(t, alerts[0].Message, 200)
	assert.Equal(t, "error", alerts[1].Type, "first keyword in list order wins")
	assert.Equal(t, "funding", alerts[2].Type)
	assert.Equal(t, "old", alerts[3].Agent)
	assert.Equal(t, "whale", alerts[3].Type)
}

func TestScanAlertsLimitAndWindow(t *testing.T) {
	dir := t.TempDir()
	var sb strings.Builder
	sb.WriteString("error outside the window\n")
	for i := 0; i < 25; i++ {
		fmt.Fprintf(&sb, "warning %d\n", i)
	}
	writeLog(t, dir, "a", sb.String(), time.Now())

	alerts := ScanAlerts(dir)
	require.Len(t, alerts, 10)
	assert.Equal(t, "warning 24", alerts[0].Message)
	for _, a := range alerts {
		assert.NotContains(t, a.Message, "outside")
	}
	assert.Empty(t, ScanAlerts(filepath.Join(dir, "missing")))
}
