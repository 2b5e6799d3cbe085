package runner

import (
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/tessellab/simfarm/pkg/engine"
	"github.com/tessellab/simfarm/pkg/pbs"
)

const (
	starterScriptName = "starter.sh"
	queueStdoutName   = "job_stdout.txt"
	queueStderrName   = "job_stderr.txt"
)

// Cluster offloads the engine run to a batch scheduler. The run is wrapped
// in a small starter script submitted through the scheduler's CLI.
type Cluster struct {
	enginePath string
	client     *pbs.Client
	logger     *zap.Logger

	jobNo    *uint32
	execNode string
}

// NewCluster returns a Runner that submits runs to the scheduler behind
// client.
func NewCluster(enginePath string, client *pbs.Client, logger *zap.Logger) *Cluster {
	return &Cluster{
		enginePath: enginePath,
		client:     client,
		logger:     logger,
	}
}

// NewClusterFactory returns a Factory producing cluster runners that share
// one scheduler client.
func NewClusterFactory(enginePath string, client *pbs.Client, logger *zap.Logger) Factory {
	return func() (Runner, error) {
		return NewCluster(enginePath, client, logger), nil
	}
}

func (c *Cluster) ExecutorState() (engine.State, error) {
	if c.jobNo == nil {
		return engine.StateUnknown, nil
	}

	info, err := c.client.JobInfo(*c.jobNo)
	if err != nil {
		return engine.StateUnknown, err
	}

	switch info.State {
	case pbs.JobStateQueued:
		return engine.StateQueued, nil
	case pbs.JobStateRunning, pbs.JobStateExiting:
		return engine.StateRunning, nil
	case pbs.JobStateFinished:
		return engine.StateFinished, nil
	case pbs.JobStateHeld:
		return engine.StateFailed, nil
	default:
		// The scheduler purges finished jobs from its queue log, so an
		// unknown job may simply have completed a while ago.
		return engine.StateUnknown, nil
	}
}

func (c *Cluster) Start(jobDir, cmdsPath, diagPath, progressPath string) error {
	scriptPath, err := c.writeStarterScript(jobDir, cmdsPath, diagPath, progressPath)
	if err != nil {
		return err
	}

	jobNo, err := c.client.Submit(jobDir,
		scriptPath,
		filepath.Join(jobDir, queueStdoutName),
		filepath.Join(jobDir, queueStderrName))
	if err != nil {
		return err
	}
	c.jobNo = &jobNo

	info, err := c.client.JobInfo(jobNo)
	if err != nil {
		return err
	}
	c.execNode = info.ExecNode

	c.logger.Info("Offloaded engine run to scheduler",
		zap.Uint32("job_no", jobNo),
		zap.String("exec_node", c.execNode))
	return nil
}

func (c *Cluster) Stop() error {
	if c.jobNo == nil {
		return nil
	}
	if err := c.client.Delete(*c.jobNo); err != nil {
		return fmt.Errorf("cancel scheduled job %d: %w", *c.jobNo, err)
	}
	return nil
}

func (c *Cluster) PruneJobDir(jobDir string) error {
	for _, name := range []string{queueStdoutName, queueStderrName} {
		if err := os.Remove(filepath.Join(jobDir, name)); err != nil && !os.IsNotExist(err) {
			c.logger.Warn("Failed to prune scheduler scratch file",
				zap.String("file", name),
				zap.Error(err))
		}
	}
	return nil
}

// ExecNode returns the execution host the scheduler assigned, when known.
func (c *Cluster) ExecNode() string {
	return c.execNode
}

func (c *Cluster) writeStarterScript(jobDir, cmdsPath, diagPath, progressPath string) (string, error) {
	scriptPath := filepath.Join(jobDir, starterScriptName)

	script := fmt.Sprintf("#!/bin/sh\ncd \"$PBS_O_WORKDIR\" || exit 1\n%s -C %s -output %s -progress %s\n",
		c.enginePath, cmdsPath, diagPath, progressPath)

	if err := os.WriteFile(scriptPath, []byte(script), 0755); err != nil {
		return "", fmt.Errorf("write starter script: %w", err)
	}
	return scriptPath, nil
}
