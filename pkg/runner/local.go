package runner

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/tessellab/simfarm/pkg/engine"
)

const (
	stopPollAttempts = 10
	stopPollInterval = time.Second
)

// Local runs the engine as a supervised child process.
type Local struct {
	enginePath string
	logger     *zap.Logger

	mu      sync.Mutex
	cmd     *exec.Cmd
	done    chan struct{}
	waitErr error
}

// NewLocal returns a Runner that spawns enginePath directly.
func NewLocal(enginePath string, logger *zap.Logger) *Local {
	return &Local{
		enginePath: enginePath,
		logger:     logger,
	}
}

// NewLocalFactory returns a Factory producing local runners.
func NewLocalFactory(enginePath string, logger *zap.Logger) Factory {
	return func() (Runner, error) {
		return NewLocal(enginePath, logger), nil
	}
}

func (l *Local) ExecutorState() (engine.State, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.cmd == nil {
		return engine.StateUnknown, nil
	}

	select {
	case <-l.done:
	default:
		return engine.StateRunning, nil
	}

	if l.waitErr == nil {
		return engine.StateFinished, nil
	}
	var exitErr *exec.ExitError
	if errors.As(l.waitErr, &exitErr) {
		return engine.StateFailed, nil
	}
	return engine.StateUnknown, fmt.Errorf("wait for engine process: %w", l.waitErr)
}

func (l *Local) Start(jobDir, cmdsPath, diagPath, progressPath string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	cmd := exec.Command(l.enginePath,
		"-C", cmdsPath,
		"-progress", progressPath,
		"-output", diagPath)
	cmd.Dir = jobDir

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start engine process: %w", err)
	}

	done := make(chan struct{})
	l.cmd = cmd
	l.done = done

	go func() {
		err := cmd.Wait()
		l.mu.Lock()
		l.waitErr = err
		l.mu.Unlock()
		close(done)
	}()

	l.logger.Info("Started engine process",
		zap.Int("pid", cmd.Process.Pid),
		zap.String("job_dir", jobDir))
	return nil
}

func (l *Local) Stop() error {
	l.mu.Lock()
	cmd := l.cmd
	done := l.done
	l.mu.Unlock()

	if cmd == nil {
		return nil
	}
	select {
	case <-done:
		return nil
	default:
	}

	if err := cmd.Process.Signal(syscall.SIGTERM); err != nil {
		// The process can exit between the done check and the signal.
		if errors.Is(err, os.ErrProcessDone) {
			return nil
		}
		return fmt.Errorf("signal engine process: %w", err)
	}

	for attempt := 0; attempt < stopPollAttempts; attempt++ {
		select {
		case <-done:
			return nil
		case <-time.After(stopPollInterval):
		}
	}

	l.logger.Warn("Engine process ignored SIGTERM, killing",
		zap.Int("pid", cmd.Process.Pid))
	if err := cmd.Process.Kill(); err != nil {
		return fmt.Errorf("kill engine process: %w", err)
	}
	<-done
	return nil
}

// PruneJobDir is a no-op for local runs: the engine's own files are pruned
// by the job, and a local run leaves no extra scratch behind.
func (l *Local) PruneJobDir(jobDir string) error {
	return nil
}
