package job

import (
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/tessellab/simfarm/pkg/command"
	"github.com/tessellab/simfarm/pkg/engine"
)

// Start launches a structured-commands run. A raw-mode job cannot be
// switched to structured mode, and a job with an active run cannot be
// started again. Artifacts at or past the run's first stage are pruned
// before the engine is launched.
func (j *Job) Start(commands command.Structured) error {
	if j.hasRaw {
		return BadInput("job was created with raw commands and cannot be started in structured mode")
	}
	if err := j.refuseWhenActive(); err != nil {
		return err
	}

	stages, err := j.serializer.Stages(commands)
	if err != nil {
		return BadInput("invalid commands: %v", err)
	}
	if stages.First != stages.Last {
		return BadInput("multi-stage jobs are not supported")
	}

	if err := j.prepareRun(stages.First); err != nil {
		return err
	}
	if err := j.serializer.Write(j.cmdsPath, commands, stages.First); err != nil {
		return BadInput("invalid commands: %v", err)
	}

	if err := j.run.Start(j.dir, j.cmdsPath, j.diagPath, j.progressPath); err != nil {
		return Internal(err)
	}

	j.commands = commands
	j.currentStage = stages.First
	return nil
}

// StartRaw launches a raw-commands run. A structured-mode job cannot be
// switched to raw mode.
func (j *Job) StartRaw(raw string) error {
	if j.commands != nil {
		return BadInput("job was created with structured commands and cannot be started in raw mode")
	}
	if err := j.refuseWhenActive(); err != nil {
		return err
	}

	parsed, err := command.ParseRaw(raw)
	if err != nil {
		return BadInput("invalid raw commands: %v", err)
	}

	if err := j.prepareRun(parsed.FirstStage); err != nil {
		return err
	}
	if err := command.WriteRaw(j.cmdsPath, raw); err != nil {
		return Internal(err)
	}

	if err := j.run.Start(j.dir, j.cmdsPath, j.diagPath, j.progressPath); err != nil {
		return Internal(err)
	}

	j.rawCommands = raw
	j.hasRaw = true
	j.currentStage = parsed.FirstStage
	return nil
}

// Stop requests graceful termination through the runner. It does not touch
// commands or progress state.
func (j *Job) Stop() error {
	if err := j.run.Stop(); err != nil {
		return Internal(err)
	}
	return nil
}

func (j *Job) refuseWhenActive() error {
	state, err := j.run.ExecutorState()
	if err != nil {
		return Internal(err)
	}
	if state == engine.StateRunning || state == engine.StateQueued {
		return BadInput("job is already running")
	}
	return nil
}

// prepareRun prunes the previous run's files and stage artifacts at or past
// firstStage, then makes sure the kickoff checkpoint for a resumed stage is
// in place.
func (j *Job) prepareRun(firstStage int) error {
	for _, path := range []string{j.cmdsPath, j.progressPath, j.diagPath} {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			j.logger.Warn("Failed to remove file from previous run",
				zap.String("file", path),
				zap.Error(err))
		}
	}
	j.pruneStages(firstStage)
	if err := j.run.PruneJobDir(j.dir); err != nil {
		j.logger.Warn("Failed to prune runner scratch files",
			zap.String("dir", j.dir),
			zap.Error(err))
	}

	if err := j.ensureKickoffFrame(firstStage); err != nil {
		return Internal(err)
	}
	return nil
}

// ensureKickoffFrame guarantees the previous stage's checkpoint file exists
// before a stage greater than 1 is launched. The engine resumes from it; when no prior
// checkpoint survived, an empty placeholder is enough.
func (j *Job) ensureKickoffFrame(stage int) error {
	if stage < 2 {
		return nil
	}

	kickoff := filepath.Join(j.dir, engine.LastFrameFileName(stage-1))
	if _, err := os.Stat(kickoff); err == nil {
		return nil
	} else if !os.IsNotExist(err) {
		return fmt.Errorf("stat kickoff frame: %w", err)
	}

	fh, err := os.Create(kickoff)
	if err != nil {
		return fmt.Errorf("create kickoff frame: %w", err)
	}
	return fh.Close()
}
