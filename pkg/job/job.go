// Package job owns one computation's on-disk artifacts, its execution
// backend and its in-flight uploads, and merges the backend's process state
// with the engine-written progress file into one reported status.
//
// A Job is not internally synchronized. The owning session serializes all
// access to its jobs under one lock, so no job is ever mutated from two
// goroutines at once.
package job

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/tessellab/simfarm/pkg/command"
	"github.com/tessellab/simfarm/pkg/engine"
	"github.com/tessellab/simfarm/pkg/runner"
	"github.com/tessellab/simfarm/pkg/transfer"
)

// AdditionalFile is the metadata of one completed upload.
type AdditionalFile struct {
	Name string `json:"name"`
	Size int64  `json:"size"`
}

// Job is one named computation: its directory, commands, runner and
// uploads.
type Job struct {
	name string
	dir  string

	cmdsPath     string
	progressPath string
	diagPath     string

	commands     command.Structured
	rawCommands  string
	hasRaw       bool
	currentStage int

	serializer command.Serializer
	run        runner.Runner
	logger     *zap.Logger

	createdOn       time.Time
	uploadTimeout   time.Duration
	transfers       map[uuid.UUID]*transfer.Transfer
	additionalFiles map[string]int64
}

// Params carries everything needed to construct a Job. The job directory
// must already exist; the job takes ownership of it and removes it on Close.
type Params struct {
	Name string
	Dir  string

	// At most one of Commands and RawCommands may be set.
	Commands    command.Structured
	RawCommands string

	Serializer command.Serializer
	Runner     runner.Runner
	Logger     *zap.Logger

	// UploadTimeout overrides how long a transfer may idle before the
	// watchdog expires it. Zero means the default.
	UploadTimeout time.Duration
}

// New constructs a Job. When initial commands are given, their stage span is
// pre-parsed and validated before the Job is considered constructed: only
// single-stage spans are supported.
func New(p Params) (*Job, error) {
	if p.Commands != nil && p.RawCommands != "" {
		return nil, BadInput("job cannot have both structured and raw commands")
	}

	uploadTimeout := p.UploadTimeout
	if uploadTimeout <= 0 {
		uploadTimeout = defaultUploadTimeout
	}

	j := &Job{
		name:            p.Name,
		dir:             p.Dir,
		cmdsPath:        filepath.Join(p.Dir, engine.CommandsFileName),
		progressPath:    filepath.Join(p.Dir, engine.ProgressFileName),
		diagPath:        filepath.Join(p.Dir, engine.DiagnosticsFileName),
		serializer:      p.Serializer,
		run:             p.Runner,
		logger:          p.Logger,
		createdOn:       time.Now(),
		uploadTimeout:   uploadTimeout,
		transfers:       make(map[uuid.UUID]*transfer.Transfer),
		additionalFiles: make(map[string]int64),
	}

	switch {
	case p.Commands != nil:
		stages, err := j.serializer.Stages(p.Commands)
		if err != nil {
			return nil, BadInput("invalid commands: %v", err)
		}
		if stages.First != stages.Last {
			return nil, BadInput("multi-stage jobs are not supported")
		}
		j.commands = p.Commands
		j.currentStage = stages.First
	case p.RawCommands != "":
		parsed, err := command.ParseRaw(p.RawCommands)
		if err != nil {
			return nil, BadInput("invalid raw commands: %v", err)
		}
		j.rawCommands = p.RawCommands
		j.hasRaw = true
		j.currentStage = parsed.FirstStage
	}

	return j, nil
}

// Clone builds a new Job from src: the source directory is copied (progress
// and diagnostics files excluded), commands, current stage and
// additional-file metadata are inherited, and the clone gets the fresh
// runner passed in. A source with open transfers cannot be cloned.
func Clone(name, dir string, src *Job, run runner.Runner) (*Job, error) {
	if len(src.transfers) > 0 {
		return nil, BadInput("jobs with uploads in progress cannot be cloned")
	}

	if err := copyJobDir(src.dir, dir); err != nil {
		return nil, Internal(fmt.Errorf("copy job directory: %w", err))
	}

	j := &Job{
		name:            name,
		dir:             dir,
		cmdsPath:        filepath.Join(dir, engine.CommandsFileName),
		progressPath:    filepath.Join(dir, engine.ProgressFileName),
		diagPath:        filepath.Join(dir, engine.DiagnosticsFileName),
		commands:        src.commands,
		rawCommands:     src.rawCommands,
		hasRaw:          src.hasRaw,
		currentStage:    src.currentStage,
		serializer:      src.serializer,
		run:             run,
		logger:          src.logger,
		createdOn:       time.Now(),
		uploadTimeout:   src.uploadTimeout,
		transfers:       make(map[uuid.UUID]*transfer.Transfer),
		additionalFiles: make(map[string]int64, len(src.additionalFiles)),
	}
	for fileName, size := range src.additionalFiles {
		j.additionalFiles[fileName] = size
	}
	return j, nil
}

func copyJobDir(src, dst string) error {
	entries, err := os.ReadDir(src)
	if err != nil {
		return err
	}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if name == engine.ProgressFileName || name == engine.DiagnosticsFileName {
			continue
		}
		b, err := os.ReadFile(filepath.Join(src, name))
		if err != nil {
			return err
		}
		info, err := entry.Info()
		if err != nil {
			return err
		}
		if err := os.WriteFile(filepath.Join(dst, name), b, info.Mode().Perm()); err != nil {
			return err
		}
	}
	return nil
}

// Name returns the job's display name.
func (j *Job) Name() string {
	return j.name
}

// Dir returns the job's on-disk directory.
func (j *Job) Dir() string {
	return j.dir
}

// CreatedOn returns the job's creation time.
func (j *Job) CreatedOn() time.Time {
	return j.createdOn
}

// Commands returns the structured commands payload, or nil in raw or
// commandless mode.
func (j *Job) Commands() command.Structured {
	return j.commands
}

// RawCommands returns the raw commands text and whether raw mode is active.
func (j *Job) RawCommands() (string, bool) {
	return j.rawCommands, j.hasRaw
}

// CommandsMode reports how the job received its commands.
func (j *Job) CommandsMode() command.Mode {
	switch {
	case j.commands != nil:
		return command.ModeStructured
	case j.hasRaw:
		return command.ModeRaw
	default:
		return command.ModeNone
	}
}

// DensityMapFileName returns the density map file referenced by the job's
// structured commands, when its command kind carries one.
func (j *Job) DensityMapFileName() (string, bool) {
	if j.commands == nil {
		return "", false
	}
	return j.serializer.DensityMapFileName(j.commands)
}

// Diagnostics returns the engine's diagnostic output. A job that has not
// started yet has none.
func (j *Job) Diagnostics() (string, error) {
	state, err := j.run.ExecutorState()
	if err != nil {
		return "", Internal(err)
	}
	if state == engine.StateUnknown {
		return "", nil
	}

	b, err := os.ReadFile(j.diagPath)
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", Internal(fmt.Errorf("read diagnostics file: %w", err))
	}
	return string(b), nil
}

// Close destroys the job: in-flight transfers are force-terminated, the
// runner is stopped if it still reports the run active, and the job
// directory is removed recursively. Cleanup is best effort; failures are
// logged and the last one returned.
func (j *Job) Close() error {
	for id, t := range j.transfers {
		if err := t.Cancel(); err != nil {
			j.logger.Warn("Failed to terminate transfer during job destruction",
				zap.String("transfer_id", id.String()),
				zap.Error(err))
		}
		delete(j.transfers, id)
	}

	// The job directory must never be removed under a live process.
	state, err := j.run.ExecutorState()
	if err == nil && (state == engine.StateRunning || state == engine.StateQueued) {
		if err := j.run.Stop(); err != nil {
			j.logger.Warn("Failed to stop runner during job destruction",
				zap.String("job", j.name),
				zap.Error(err))
		}
	}

	if err := os.RemoveAll(j.dir); err != nil {
		j.logger.Error("Failed to remove job directory",
			zap.String("dir", j.dir),
			zap.Error(err))
		return Internal(err)
	}
	return nil
}
