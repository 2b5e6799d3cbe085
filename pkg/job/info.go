package job

import (
	"time"

	"go.uber.org/zap"

	"github.com/tessellab/simfarm/pkg/command"
	"github.com/tessellab/simfarm/pkg/engine"
)

// StepProgress is the engine-reported position within the current run.
type StepProgress struct {
	Step       int `json:"step"`
	TotalSteps int `json:"total_steps"`
}

// Info is the unified, derived view of a job. It is computed on demand and
// never stored.
type Info struct {
	Name         string        `json:"name"`
	State        engine.State  `json:"state"`
	FirstStage   int           `json:"first_stage"`
	LastStage    int           `json:"last_stage"`
	CreatedOn    time.Time     `json:"created_on"`
	CommandsMode command.Mode  `json:"commands_mode"`
	Progress     *StepProgress `json:"progress,omitempty"`
}

// Info merges the runner's executor state with the engine-written progress
// file.
//
// Without a progress file the executor state stands alone; an executor that
// never started maps to NotStarted. With a progress file, two
// reconciliation rules apply: a still-running executor outranks a progress
// file claiming completion (trust the process over a possibly stale file),
// and a progress file claiming Running with a dead executor means the
// process died without writing its final state, which is reported as
// Failed.
func (j *Job) Info() (Info, error) {
	execState, err := j.run.ExecutorState()
	if err != nil {
		return Info{}, Internal(err)
	}

	info := Info{
		Name:         j.name,
		CreatedOn:    j.createdOn,
		CommandsMode: j.CommandsMode(),
	}
	if first, last, ok := j.StageSpan(); ok {
		info.FirstStage = first
		info.LastStage = last
	}

	progress, err := engine.ReadProgress(j.progressPath)
	if err != nil {
		// A readable-but-malformed progress file usually means the
		// engine is mid-rewrite. Fall back to the executor state.
		j.logger.Warn("Failed to read progress file",
			zap.String("job", j.name),
			zap.Error(err))
		progress = nil
	}

	if progress == nil {
		if execState == engine.StateUnknown {
			info.State = engine.StateNotStarted
		} else {
			info.State = execState
		}
		return info, nil
	}

	info.Progress = &StepProgress{Step: progress.Step, TotalSteps: progress.TotalSteps}

	switch {
	case execState == engine.StateRunning:
		info.State = engine.StateRunning
	case execState == engine.StateQueued:
		info.State = engine.StateQueued
	case progress.State == engine.StateRunning:
		info.State = engine.StateFailed
	default:
		info.State = progress.State
	}
	return info, nil
}
