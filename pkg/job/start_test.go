package job

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tessellab/simfarm/pkg/engine"
)

func TestStartLaunchesEngine(t *testing.T) {
	run := newFakeRunner()
	j := newTestJob(t, run, nil, "")

	require.NoError(t, j.Start(structuredCommands(t, 1, 1)))
	assert.Equal(t, 1, run.started)
	assert.FileExists(t, filepath.Join(j.Dir(), engine.CommandsFileName))

	b, err := os.ReadFile(filepath.Join(j.Dir(), engine.CommandsFileName))
	require.NoError(t, err)
	assert.Contains(t, string(b), "firstStage 1")
}

func TestStartRefusesRawModeJob(t *testing.T) {
	run := newFakeRunner()
	j := newTestJob(t, run, nil, rawSingleStage(1))

	err := j.Start(structuredCommands(t, 1, 1))
	require.Error(t, err)
	assert.True(t, IsBadInput(err))
	assert.Zero(t, run.started)
}

func TestStartRawRefusesStructuredModeJob(t *testing.T) {
	run := newFakeRunner()
	j := newTestJob(t, run, structuredCommands(t, 1, 1), "")

	err := j.StartRaw(rawSingleStage(1))
	require.Error(t, err)
	assert.True(t, IsBadInput(err))
	assert.Zero(t, run.started)
}

func TestStartRefusesActiveRun(t *testing.T) {
	run := newFakeRunner()
	j := newTestJob(t, run, nil, "")
	require.NoError(t, j.Start(structuredCommands(t, 1, 1)))

	err := j.Start(structuredCommands(t, 1, 1))
	require.Error(t, err)
	assert.True(t, IsBadInput(err))
	assert.Contains(t, err.Error(), "already running")
	assert.Equal(t, 1, run.started)
}

func TestStartRejectsMultiStageCommands(t *testing.T) {
	j := newTestJob(t, newFakeRunner(), nil, "")

	err := j.Start(structuredCommands(t, 1, 4))
	require.Error(t, err)
	assert.True(t, IsBadInput(err))
}

func TestStartRawRejectsInvalidCommands(t *testing.T) {
	j := newTestJob(t, newFakeRunner(), nil, "")

	err := j.StartRaw("firstStage 1\nlastStage 2\nnumReportingIntervals 10\n")
	require.Error(t, err)
	assert.True(t, IsBadInput(err))
}

func TestStartPrunesStaleRunFiles(t *testing.T) {
	run := newFakeRunner()
	j := newTestJob(t, run, nil, "")
	touch(t, filepath.Join(j.Dir(), engine.ProgressFileName))
	touch(t, filepath.Join(j.Dir(), engine.DiagnosticsFileName))

	require.NoError(t, j.Start(structuredCommands(t, 1, 1)))
	assert.NoFileExists(t, filepath.Join(j.Dir(), engine.ProgressFileName))
	assert.NoFileExists(t, filepath.Join(j.Dir(), engine.DiagnosticsFileName))
	assert.Equal(t, 1, run.pruned)
}

func TestStartPrunesStageArtifactsFromFirstStage(t *testing.T) {
	run := newFakeRunner()
	j := newTestJob(t, run, nil, "")
	for _, stage := range []int{1, 2, 3, 4} {
		touch(t, filepath.Join(j.Dir(), engine.TrajectoryFileName(stage)))
		touch(t, filepath.Join(j.Dir(), engine.LastFrameFileName(stage)))
	}

	require.NoError(t, j.Start(structuredCommands(t, 3, 3)))

	for _, stage := range []int{1, 2} {
		assert.FileExists(t, filepath.Join(j.Dir(), engine.TrajectoryFileName(stage)))
		assert.FileExists(t, filepath.Join(j.Dir(), engine.LastFrameFileName(stage)))
	}
	for _, stage := range []int{3, 4} {
		assert.NoFileExists(t, filepath.Join(j.Dir(), engine.TrajectoryFileName(stage)))
	}
	assert.NoFileExists(t, filepath.Join(j.Dir(), engine.LastFrameFileName(4)))
}

func TestStartCreatesKickoffFrameForResumedStage(t *testing.T) {
	j := newTestJob(t, newFakeRunner(), nil, "")

	require.NoError(t, j.Start(structuredCommands(t, 3, 3)))
	assert.FileExists(t, filepath.Join(j.Dir(), engine.LastFrameFileName(2)))
}

func TestStartKeepsExistingKickoffFrame(t *testing.T) {
	j := newTestJob(t, newFakeRunner(), nil, "")
	kickoff := filepath.Join(j.Dir(), engine.LastFrameFileName(2))
	require.NoError(t, os.WriteFile(kickoff, []byte("checkpoint"), 0644))

	require.NoError(t, j.Start(structuredCommands(t, 3, 3)))

	b, err := os.ReadFile(kickoff)
	require.NoError(t, err)
	assert.Equal(t, "checkpoint", string(b))
}

func TestStartFirstStageNeedsNoKickoffFrame(t *testing.T) {
	j := newTestJob(t, newFakeRunner(), nil, "")

	require.NoError(t, j.Start(structuredCommands(t, 1, 1)))

	entries, err := os.ReadDir(j.Dir())
	require.NoError(t, err)
	for _, entry := range entries {
		assert.False(t, strings.HasPrefix(entry.Name(), engine.LastFrameFilePrefix),
			"unexpected checkpoint %s", entry.Name())
	}
}

func TestStartRawWritesVerbatimCommands(t *testing.T) {
	run := newFakeRunner()
	j := newTestJob(t, run, nil, "")
	raw := rawSingleStage(1)

	require.NoError(t, j.StartRaw(raw))
	assert.Equal(t, 1, run.started)

	b, err := os.ReadFile(filepath.Join(j.Dir(), engine.CommandsFileName))
	require.NoError(t, err)
	assert.Equal(t, raw, string(b))
}

func TestStopDelegatesToRunner(t *testing.T) {
	run := newFakeRunner()
	j := newTestJob(t, run, nil, "")
	require.NoError(t, j.Start(structuredCommands(t, 1, 1)))

	require.NoError(t, j.Stop())
	assert.Equal(t, 1, run.stopped)
	assert.Equal(t, engine.StateFailed, run.state)
}

func TestRestartAfterFailure(t *testing.T) {
	run := newFakeRunner()
	j := newTestJob(t, run, nil, "")
	require.NoError(t, j.Start(structuredCommands(t, 1, 1)))
	run.state = engine.StateFailed

	require.NoError(t, j.Start(structuredCommands(t, 1, 1)))
	assert.Equal(t, 2, run.started)
}
