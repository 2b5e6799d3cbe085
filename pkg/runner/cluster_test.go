package runner

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/tessellab/simfarm/pkg/engine"
	"github.com/tessellab/simfarm/pkg/pbs"
)

func TestCluster_StateBeforeSubmitIsUnknown(t *testing.T) {
	c := NewCluster("/opt/engine", pbs.NewClient(zap.NewNop()), zap.NewNop())

	state, err := c.ExecutorState()
	require.NoError(t, err)
	assert.Equal(t, engine.StateUnknown, state)
}

func TestCluster_StopBeforeSubmitIsNoOp(t *testing.T) {
	c := NewCluster("/opt/engine", pbs.NewClient(zap.NewNop()), zap.NewNop())
	assert.NoError(t, c.Stop())
}

func TestCluster_WriteStarterScript(t *testing.T) {
	c := NewCluster("/opt/engine", pbs.NewClient(zap.NewNop()), zap.NewNop())
	jobDir := t.TempDir()

	path, err := c.writeStarterScript(jobDir,
		filepath.Join(jobDir, "commands.txt"),
		filepath.Join(jobDir, "doutput.txt"),
		filepath.Join(jobDir, "progress.json"))
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(jobDir, "starter.sh"), path)

	b, err := os.ReadFile(path)
	require.NoError(t, err)
	script := string(b)

	assert.Contains(t, script, "#!/bin/sh\n")
	assert.Contains(t, script, `cd "$PBS_O_WORKDIR" || exit 1`)
	assert.Contains(t, script, "/opt/engine -C "+filepath.Join(jobDir, "commands.txt"))
	assert.Contains(t, script, "-output "+filepath.Join(jobDir, "doutput.txt"))
	assert.Contains(t, script, "-progress "+filepath.Join(jobDir, "progress.json"))

	st, err := os.Stat(path)
	require.NoError(t, err)
	assert.NotZero(t, st.Mode().Perm()&0111)
}

func TestCluster_PruneJobDir(t *testing.T) {
	c := NewCluster("/opt/engine", pbs.NewClient(zap.NewNop()), zap.NewNop())
	jobDir := t.TempDir()

	require.NoError(t, os.WriteFile(filepath.Join(jobDir, "job_stdout.txt"), []byte("out"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(jobDir, "job_stderr.txt"), []byte("err"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(jobDir, "keep.me"), []byte("x"), 0644))

	require.NoError(t, c.PruneJobDir(jobDir))

	_, err := os.Stat(filepath.Join(jobDir, "job_stdout.txt"))
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(filepath.Join(jobDir, "job_stderr.txt"))
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(filepath.Join(jobDir, "keep.me"))
	assert.NoError(t, err)

	// Pruning an already clean directory succeeds.
	assert.NoError(t, c.PruneJobDir(jobDir))
}
