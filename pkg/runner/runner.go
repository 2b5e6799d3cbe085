// Package runner provides the execution backends that start, stop and
// observe one engine run: a local child process or a batch-cluster
// submission. A job picks its backend once, at construction time.
package runner

import (
	"github.com/tessellab/simfarm/pkg/engine"
)

// Runner starts, stops and reports the state of one engine run. It owns no
// business data beyond its process or queue handle.
type Runner interface {
	// ExecutorState reports the backend's view of the run. It returns
	// engine.StateUnknown when the backend cannot tell, which includes
	// a runner that was never started.
	ExecutorState() (engine.State, error)

	// Start launches the engine with the given command, diagnostics and
	// progress file paths, working in jobDir.
	Start(jobDir, cmdsPath, diagPath, progressPath string) error

	// Stop requests termination. It must be idempotent: stopping a
	// runner that never started, or that has already exited, succeeds
	// trivially. Implementations must not block indefinitely.
	Stop() error

	// PruneJobDir removes backend-specific scratch files from jobDir.
	// Best effort; missing files are not an error.
	PruneJobDir(jobDir string) error
}

// Factory builds a fresh Runner for a new job. The live configuration
// selects local or offloaded execution once, and every job constructed
// through the same factory uses the same backend kind.
type Factory func() (Runner, error)
