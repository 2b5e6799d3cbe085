package job

import (
	"encoding/json"
	"fmt"
	"os"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/tessellab/simfarm/pkg/command"
	"github.com/tessellab/simfarm/pkg/engine"
)

// fakeRunner is a scriptable execution backend for job tests.
type fakeRunner struct {
	state    engine.State
	stateErr error
	started  int
	stopped  int
	pruned   int
}

func newFakeRunner() *fakeRunner {
	return &fakeRunner{state: engine.StateUnknown}
}

func (f *fakeRunner) ExecutorState() (engine.State, error) {
	return f.state, f.stateErr
}

func (f *fakeRunner) Start(jobDir, cmdsPath, diagPath, progressPath string) error {
	f.started++
	f.state = engine.StateRunning
	return nil
}

func (f *fakeRunner) Stop() error {
	f.stopped++
	if f.state == engine.StateRunning || f.state == engine.StateQueued {
		f.state = engine.StateFailed
	}
	return nil
}

func (f *fakeRunner) PruneJobDir(jobDir string) error {
	f.pruned++
	return nil
}

// fakeSerializer treats structured commands as a small JSON object with
// explicit stage bounds.
type fakeSerializer struct{}

type fakePayload struct {
	FirstStage int    `json:"first_stage"`
	LastStage  int    `json:"last_stage"`
	DensityMap string `json:"density_map,omitempty"`
}

func structuredCommands(t *testing.T, first, last int) command.Structured {
	t.Helper()
	b, err := json.Marshal(fakePayload{FirstStage: first, LastStage: last})
	require.NoError(t, err)
	return command.Structured(b)
}

func (fakeSerializer) Stages(c command.Structured) (command.Stages, error) {
	var p fakePayload
	if err := json.Unmarshal(c, &p); err != nil {
		return command.Stages{}, err
	}
	if p.FirstStage < 1 {
		return command.Stages{}, fmt.Errorf("first stage must be positive")
	}
	return command.Stages{First: p.FirstStage, Last: p.LastStage}, nil
}

func (fakeSerializer) Write(path string, c command.Structured, stage int) error {
	return os.WriteFile(path, []byte(fmt.Sprintf("firstStage %d\nlastStage %d\n", stage, stage)), 0644)
}

func (fakeSerializer) DensityMapFileName(c command.Structured) (string, bool) {
	var p fakePayload
	if err := json.Unmarshal(c, &p); err != nil || p.DensityMap == "" {
		return "", false
	}
	return p.DensityMap, true
}

func newTestJob(t *testing.T, run *fakeRunner, commands command.Structured, raw string) *Job {
	t.Helper()
	j, err := New(Params{
		Name:        "test-job",
		Dir:         t.TempDir(),
		Commands:    commands,
		RawCommands: raw,
		Serializer:  fakeSerializer{},
		Runner:      run,
		Logger:      zap.NewNop(),
	})
	require.NoError(t, err)
	return j
}

func rawSingleStage(stage int) string {
	return fmt.Sprintf("firstStage %d\nlastStage %d\nnumReportingIntervals 10\n", stage, stage)
}

func touch(t *testing.T, path string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte("x"), 0644))
}
