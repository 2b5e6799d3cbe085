// Package session hosts the concurrency-guarded job collections: a Session
// owns the jobs of one user, a Manager owns the sessions and runs one
// upload watchdog per logged-in session.
//
// Every public Session operation takes the session's lock for the job map as
// a whole. The coarse lock is deliberate: it serializes all job mutation
// within a session, which keeps every job invariant trivially safe at the
// cost of listing briefly blocking other operations.
package session

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/tessellab/simfarm/pkg/command"
	"github.com/tessellab/simfarm/pkg/engine"
	"github.com/tessellab/simfarm/pkg/job"
	"github.com/tessellab/simfarm/pkg/runner"
	"github.com/tessellab/simfarm/pkg/transfer"
)

// Session owns a guarded collection of jobs keyed by job id, plus the
// directory they live under.
type Session struct {
	id            string
	jobsDir       string
	paramsPath    string
	serializer    command.Serializer
	newRunner     runner.Factory
	logger        *zap.Logger
	uploadTimeout time.Duration

	mu       sync.RWMutex
	jobs     map[uuid.UUID]*job.Job
	loggedIn bool
}

// Params configures a new Session.
type Params struct {
	ID         string
	JobsDir    string
	ParamsPath string
	Serializer command.Serializer
	NewRunner  runner.Factory
	Logger     *zap.Logger

	// UploadTimeout overrides how long a job transfer may idle before
	// the watchdog expires it. Zero means the default.
	UploadTimeout time.Duration
}

// New creates the session's job-storage directory and an empty, logged-in
// session.
func New(p Params) (*Session, error) {
	if err := os.Mkdir(p.JobsDir, 0755); err != nil {
		return nil, fmt.Errorf("create session jobs directory: %w", err)
	}

	return &Session{
		id:            p.ID,
		jobsDir:       p.JobsDir,
		paramsPath:    p.ParamsPath,
		serializer:    p.Serializer,
		newRunner:     p.NewRunner,
		logger:        p.Logger,
		uploadTimeout: p.UploadTimeout,
		jobs:          make(map[uuid.UUID]*job.Job),
		loggedIn:      true,
	}, nil
}

// ID returns the session id.
func (s *Session) ID() string {
	return s.id
}

// IsLoggedIn reports whether the session is currently logged in.
func (s *Session) IsLoggedIn() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loggedIn
}

// SetLoggedIn flips the session's login state.
func (s *Session) SetLoggedIn(state bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loggedIn = state
}

// prepareJobDir creates the per-job directory and seeds it with a copy of
// the shared parameters file.
func (s *Session) prepareJobDir(id uuid.UUID) (string, error) {
	dir := filepath.Join(s.jobsDir, id.String())
	if err := os.Mkdir(dir, 0755); err != nil {
		return "", fmt.Errorf("create job directory: %w", err)
	}

	params, err := os.ReadFile(s.paramsPath)
	if err != nil {
		_ = os.RemoveAll(dir)
		return "", fmt.Errorf("read shared parameters file: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, engine.ParametersFileName), params, 0644); err != nil {
		_ = os.RemoveAll(dir)
		return "", fmt.Errorf("seed parameters file: %w", err)
	}
	return dir, nil
}

func (s *Session) hasJobByNameLocked(name string) bool {
	for _, j := range s.jobs {
		if j.Name() == name {
			return true
		}
	}
	return false
}

// CreateJob creates a new job, optionally with initial structured or raw
// commands (never both). The job name must be unique within the session.
func (s *Session) CreateJob(name string, commands command.Structured, rawCommands string) (uuid.UUID, error) {
	if commands != nil && rawCommands != "" {
		return uuid.Nil, job.BadInput("job cannot have both structured and raw commands")
	}
	if name == "" {
		return uuid.Nil, job.BadInput("job must have a name")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.hasJobByNameLocked(name) {
		return uuid.Nil, job.BadInput("job with name %s already exists", name)
	}

	id := uuid.New()
	dir, err := s.prepareJobDir(id)
	if err != nil {
		s.logger.Error("Failed to prepare job directory",
			zap.String("session", s.id),
			zap.Error(err))
		return uuid.Nil, job.Internal(err)
	}

	run, err := s.newRunner()
	if err != nil {
		_ = os.RemoveAll(dir)
		s.logger.Error("Failed to construct runner", zap.Error(err))
		return uuid.Nil, job.Internal(err)
	}

	j, err := job.New(job.Params{
		Name:          name,
		Dir:           dir,
		Commands:      commands,
		RawCommands:   rawCommands,
		Serializer:    s.serializer,
		Runner:        run,
		Logger:        s.logger,
		UploadTimeout: s.uploadTimeout,
	})
	if err != nil {
		_ = os.RemoveAll(dir)
		return uuid.Nil, err
	}

	s.jobs[id] = j
	return id, nil
}

// CloneJob copies an existing job under a new name. Running jobs and jobs
// with uploads in progress cannot be cloned; no directory is created when
// the clone is refused.
func (s *Session) CloneJob(name string, srcID uuid.UUID) (uuid.UUID, error) {
	if name == "" {
		return uuid.Nil, job.BadInput("job must have a name")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.hasJobByNameLocked(name) {
		return uuid.Nil, job.BadInput("job with name %s already exists", name)
	}

	src, ok := s.jobs[srcID]
	if !ok {
		return uuid.Nil, job.BadInput("no job to clone")
	}
	if src.OpenTransfers() > 0 {
		return uuid.Nil, job.BadInput("jobs with uploads in progress cannot be cloned")
	}

	info, err := src.Info()
	if err != nil {
		s.logger.Error("Failed to get info for job to be cloned",
			zap.String("job_id", srcID.String()),
			zap.Error(err))
		return uuid.Nil, job.Internal(err)
	}
	if info.State == engine.StateRunning || info.State == engine.StateQueued {
		return uuid.Nil, job.BadInput("running jobs cannot be cloned")
	}

	id := uuid.New()
	dir, err := s.prepareJobDir(id)
	if err != nil {
		s.logger.Error("Failed to prepare job directory",
			zap.String("session", s.id),
			zap.Error(err))
		return uuid.Nil, job.Internal(err)
	}

	run, err := s.newRunner()
	if err != nil {
		_ = os.RemoveAll(dir)
		s.logger.Error("Failed to construct runner", zap.Error(err))
		return uuid.Nil, job.Internal(err)
	}

	cloned, err := job.Clone(name, dir, src, run)
	if err != nil {
		_ = os.RemoveAll(dir)
		return uuid.Nil, err
	}

	s.jobs[id] = cloned
	return id, nil
}

// DeleteJob removes a job and destroys its on-disk state. A job reporting
// an active run is refused before any mutation.
func (s *Session) DeleteJob(id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	j, ok := s.jobs[id]
	if !ok {
		return job.BadInput("no such job")
	}

	info, err := j.Info()
	if err != nil {
		s.logger.Error("Cannot get info for job to be deleted",
			zap.String("job_id", id.String()),
			zap.Error(err))
		return job.Internal(err)
	}
	if info.State == engine.StateRunning || info.State == engine.StateQueued {
		return job.BadInput("running jobs cannot be deleted")
	}

	delete(s.jobs, id)
	if err := j.Close(); err != nil {
		s.logger.Error("Job cleanup failed",
			zap.String("job_id", id.String()),
			zap.Error(err))
	}
	return nil
}

// JobEntry is one row of a job listing. A per-job info failure is carried
// in Err and does not fail the listing as a whole.
type JobEntry struct {
	ID   uuid.UUID
	Info job.Info
	Err  error
}

// ListJobs returns a snapshot of every job's id and info.
func (s *Session) ListJobs() []JobEntry {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries := make([]JobEntry, 0, len(s.jobs))
	for id, j := range s.jobs {
		info, err := j.Info()
		entries = append(entries, JobEntry{ID: id, Info: info, Err: err})
	}
	return entries
}

// HasJob reports whether a job with the given id exists.
func (s *Session) HasJob(id uuid.UUID) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.jobs[id]
	return ok
}

func (s *Session) withJob(id uuid.UUID, fn func(*job.Job) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	j, ok := s.jobs[id]
	if !ok {
		return job.BadInput("no such job")
	}
	return fn(j)
}

// StartJob launches a structured-commands run on an existing job.
func (s *Session) StartJob(id uuid.UUID, commands command.Structured) error {
	return s.withJob(id, func(j *job.Job) error {
		return j.Start(commands)
	})
}

// StartJobRaw launches a raw-commands run on an existing job.
func (s *Session) StartJobRaw(id uuid.UUID, raw string) error {
	return s.withJob(id, func(j *job.Job) error {
		return j.StartRaw(raw)
	})
}

// StopJob requests termination of a job's run.
func (s *Session) StopJob(id uuid.UUID) error {
	return s.withJob(id, func(j *job.Job) error {
		return j.Stop()
	})
}

// JobInfo returns the unified status of one job.
func (s *Session) JobInfo(id uuid.UUID) (job.Info, error) {
	var info job.Info
	err := s.withJob(id, func(j *job.Job) error {
		var err error
		info, err = j.Info()
		return err
	})
	return info, err
}

// JobCommands returns a job's structured commands payload, nil when the job
// has none.
func (s *Session) JobCommands(id uuid.UUID) (command.Structured, error) {
	var cmds command.Structured
	err := s.withJob(id, func(j *job.Job) error {
		cmds = j.Commands()
		return nil
	})
	return cmds, err
}

// JobCommandsRaw returns a job's raw commands text.
func (s *Session) JobCommandsRaw(id uuid.UUID) (string, bool, error) {
	var raw string
	var ok bool
	err := s.withJob(id, func(j *job.Job) error {
		raw, ok = j.RawCommands()
		return nil
	})
	return raw, ok, err
}

// JobCommandsMode reports how a job received its commands.
func (s *Session) JobCommandsMode(id uuid.UUID) (command.Mode, error) {
	mode := command.ModeNone
	err := s.withJob(id, func(j *job.Job) error {
		mode = j.CommandsMode()
		return nil
	})
	return mode, err
}

// JobDiagnostics returns the engine's diagnostic output for a job.
func (s *Session) JobDiagnostics(id uuid.UUID) (string, error) {
	var diag string
	err := s.withJob(id, func(j *job.Job) error {
		var err error
		diag, err = j.Diagnostics()
		return err
	})
	return diag, err
}

// JobDir returns a job's on-disk directory.
func (s *Session) JobDir(id uuid.UUID) (string, error) {
	var dir string
	err := s.withJob(id, func(j *job.Job) error {
		dir = j.Dir()
		return nil
	})
	return dir, err
}

// JobDensityMapFileName returns the density map file a job's commands
// reference, when their command kind carries one.
func (s *Session) JobDensityMapFileName(id uuid.UUID) (string, bool, error) {
	var name string
	var ok bool
	err := s.withJob(id, func(j *job.Job) error {
		name, ok = j.DensityMapFileName()
		return nil
	})
	return name, ok, err
}

// JobAvailableStages lists a job's trajectory artifact stages.
func (s *Session) JobAvailableStages(id uuid.UUID) ([]int, error) {
	var stages []int
	err := s.withJob(id, func(j *job.Job) error {
		stages = j.AvailableStages()
		return nil
	})
	return stages, err
}

// InitUpload opens a new transfer on a job.
func (s *Session) InitUpload(jobID uuid.UUID, fileName string) (uuid.UUID, error) {
	var transferID uuid.UUID
	err := s.withJob(jobID, func(j *job.Job) error {
		var err error
		transferID, err = j.InitUpload(fileName)
		return err
	})
	return transferID, err
}

// UploadChunk appends one chunk to a job's open transfer.
func (s *Session) UploadChunk(jobID, transferID uuid.UUID, index uint32, data []byte) error {
	return s.withJob(jobID, func(j *job.Job) error {
		return j.UploadChunk(transferID, index, data)
	})
}

// UploadFrame decodes one raw upload chunk frame and routes it to the job
// and transfer it names.
func (s *Session) UploadFrame(raw []byte) error {
	frame, err := transfer.ParseFrame(raw)
	if err != nil {
		return job.BadInput("%v", err)
	}

	jobID, err := uuid.Parse(frame.JobID)
	if err != nil {
		return job.BadInput("malformed job id")
	}
	transferID, err := uuid.Parse(frame.TransferID)
	if err != nil {
		return job.BadInput("malformed transfer id")
	}

	return s.UploadChunk(jobID, transferID, frame.Index, frame.Data)
}

// FinishUpload completes a job's transfer.
func (s *Session) FinishUpload(jobID, transferID uuid.UUID) error {
	return s.withJob(jobID, func(j *job.Job) error {
		return j.FinishUpload(transferID)
	})
}

// CancelUpload aborts a job's transfer.
func (s *Session) CancelUpload(jobID, transferID uuid.UUID) error {
	return s.withJob(jobID, func(j *job.Job) error {
		return j.CancelUpload(transferID)
	})
}

// ListAdditionalFiles returns a job's completed uploads.
func (s *Session) ListAdditionalFiles(jobID uuid.UUID) ([]job.AdditionalFile, error) {
	var files []job.AdditionalFile
	err := s.withJob(jobID, func(j *job.Job) error {
		files = j.ListAdditionalFiles()
		return nil
	})
	return files, err
}

// DeleteAdditionalFile removes one of a job's completed uploads.
func (s *Session) DeleteAdditionalFile(jobID uuid.UUID, fileName string) error {
	return s.withJob(jobID, func(j *job.Job) error {
		return j.DeleteAdditionalFile(fileName)
	})
}

// TerminateHungUploads expires stalled transfers on every job in the
// session.
func (s *Session) TerminateHungUploads() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, j := range s.jobs {
		j.TerminateHungUploads()
	}
}
