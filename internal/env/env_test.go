package env

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMergeLayersAndSorts(t *testing.T) {
	e := FromList([]string{"PATH=/bin", "HOME=/root", "A=base"}).
		WithSet("A", "set").
		WithList([]string{"B=1", "B=2", "bad", "=x"})

	out := e.Merge([]string{"C=3"})
	assert.Equal(t, []string{"A=set", "B=2", "C=3", "HOME=/root", "PATH=/bin"}, out)
}

func TestMergeExpandsReferences(t *testing.T) {
	e := FromList([]string{"ROOT=/srv"}).WithList([]string{"PYTHONPATH=${ROOT}/lib", "X=${MISSING}", "Y=$ROOT"})
	out := e.Merge(nil)
	assert.Contains(t, out, "PYTHONPATH=/srv/lib")
	assert.Contains(t, out, "X=${MISSING}")
	assert.Contains(t, out, "Y=$ROOT")
}

func TestWithSetDoesNotMutateReceiver(t *testing.T) {
	base := FromList(nil)
	_ = base.WithSet("K", "v")
	assert.Empty(t, base.Merge(nil))
}

func TestNewUsesOSEnv(t *testing.T) {
	t.Setenv("AGENTCTL_ENV_TEST", "yes")
	assert.Contains(t, New().Merge(nil), "AGENTCTL_ENV_TEST=yes")
}

func TestExpandUnterminated(t *testing.T) {
	lookup := func(string) (string, bool) { return "v", true }
	assert.Equal(t, "a${b", expand("a${b", lookup))
	assert.Equal(t, "v-v", expand("${x}-${y}", lookup))
	assert.Equal(t, "${}", expand("${}", lookup))
}
