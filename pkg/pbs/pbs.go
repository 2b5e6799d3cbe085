// Package pbs talks to a PBS batch scheduler through its CLI tools: qsub for
// submission, qstat for state queries, qdel for cancellation. The scheduler's
// queueing internals are out of scope; only the CLI contract is modeled.
package pbs

import (
	"encoding/json"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"
)

// JobState is a queue state as reported by qstat.
type JobState string

const (
	JobStateQueued   JobState = "queued"
	JobStateRunning  JobState = "running"
	JobStateExiting  JobState = "exiting"
	JobStateFinished JobState = "finished"
	JobStateHeld     JobState = "held"
	// JobStateUnknown can mean the job already finished and was purged
	// from the queue log.
	JobStateUnknown JobState = "unknown"
)

// JobInfo is the queue state and assigned execution host of one job.
type JobInfo struct {
	State    JobState
	ExecNode string
}

// statusSnapshot is one parsed qstat dump, shared by every cluster runner
// polling through the same client.
type statusSnapshot struct {
	serverName string
	jobs       map[string]queueJob
	takenAt    time.Time
}

type queueJob struct {
	JobState string `json:"job_state"`
	ExecHost string `json:"exec_host"`
}

type queueState struct {
	Server  string                     `json:"pbs_server"`
	Version string                     `json:"pbs_version"`
	Jobs    map[string]json.RawMessage `json:"Jobs"`
}

// Client queries and controls the scheduler. Concurrent state queries are
// deduplicated and the qstat invocation rate is capped; callers that poll
// faster than the cap are served the most recent snapshot.
type Client struct {
	logger  *zap.Logger
	limiter *rate.Limiter
	group   singleflight.Group

	mu     sync.Mutex
	cached *statusSnapshot
}

// NewClient returns a Client that invokes qstat at most once per second.
func NewClient(logger *zap.Logger) *Client {
	return &Client{
		logger:  logger,
		limiter: rate.NewLimiter(rate.Every(time.Second), 1),
	}
}

// Submit enqueues the wrapper script via qsub with explicit stdout/stderr
// redirection and returns the numeric job identifier parsed from the first
// dot-separated token of qsub's output.
func (c *Client) Submit(jobDir, scriptPath, stdoutPath, stderrPath string) (uint32, error) {
	cmd := exec.Command("qsub", "-o", stdoutPath, "-e", stderrPath, scriptPath)
	cmd.Dir = jobDir

	out, err := cmd.Output()
	if err != nil {
		return 0, fmt.Errorf("qsub: %w", err)
	}

	jobNo, err := ParseSubmitOutput(string(out))
	if err != nil {
		return 0, err
	}

	c.logger.Info("Submitted job to scheduler",
		zap.Uint32("job_no", jobNo),
		zap.String("script", scriptPath))
	return jobNo, nil
}

// ParseSubmitOutput extracts the numeric job identifier from qsub stdout,
// which has the form "<no>.<server>".
func ParseSubmitOutput(out string) (uint32, error) {
	parts := strings.Split(strings.TrimSpace(out), ".")
	if len(parts) < 2 {
		return 0, fmt.Errorf("invalid scheduler job name %q", strings.TrimSpace(out))
	}
	no, err := strconv.ParseUint(parts[0], 10, 32)
	if err != nil {
		return 0, fmt.Errorf("parse scheduler job number: %w", err)
	}
	return uint32(no), nil
}

// JobInfo returns the queue state of one submitted job. A job missing from
// the queue dump is reported as JobStateUnknown, not as an error.
func (c *Client) JobInfo(jobNo uint32) (JobInfo, error) {
	snap, err := c.queueSnapshot()
	if err != nil {
		return JobInfo{}, err
	}
	return snap.jobInfo(jobNo)
}

// Delete removes the job from the queue via qdel.
func (c *Client) Delete(jobNo uint32) error {
	cmd := exec.Command("qdel", strconv.FormatUint(uint64(jobNo), 10))
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("qdel: %w", err)
	}
	return nil
}

func (c *Client) queueSnapshot() (*statusSnapshot, error) {
	if !c.limiter.Allow() {
		c.mu.Lock()
		cached := c.cached
		c.mu.Unlock()
		if cached != nil {
			return cached, nil
		}
	}

	v, err, _ := c.group.Do("qstat", func() (interface{}, error) {
		out, err := exec.Command("qstat", "-f", "-F", "json").Output()
		if err != nil {
			return nil, fmt.Errorf("qstat: %w", err)
		}
		snap, err := ParseQueueState(out)
		if err != nil {
			return nil, err
		}
		c.mu.Lock()
		c.cached = snap
		c.mu.Unlock()
		return snap, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*statusSnapshot), nil
}

// ParseQueueState parses a full `qstat -f -F json` dump.
func ParseQueueState(raw []byte) (*statusSnapshot, error) {
	var state queueState
	if err := json.Unmarshal(raw, &state); err != nil {
		return nil, fmt.Errorf("parse qstat output: %w", err)
	}
	if state.Server == "" {
		return nil, fmt.Errorf("pbs_server field not found")
	}
	if err := checkVersion(state.Version); err != nil {
		return nil, err
	}

	snap := &statusSnapshot{
		serverName: state.Server,
		jobs:       make(map[string]queueJob, len(state.Jobs)),
		takenAt:    time.Now(),
	}
	for name, rawJob := range state.Jobs {
		var qj queueJob
		if err := json.Unmarshal(rawJob, &qj); err != nil {
			return nil, fmt.Errorf("parse queue entry %s: %w", name, err)
		}
		snap.jobs[name] = qj
	}
	return snap, nil
}

func checkVersion(ver string) error {
	segs := strings.Split(ver, ".")
	if len(segs) != 3 {
		return fmt.Errorf("invalid pbs_version string %q", ver)
	}
	for _, s := range segs {
		if _, err := strconv.Atoi(s); err != nil {
			return fmt.Errorf("invalid pbs_version string %q", ver)
		}
	}
	return nil
}

func (s *statusSnapshot) jobInfo(jobNo uint32) (JobInfo, error) {
	name := fmt.Sprintf("%d.%s", jobNo, s.serverName)
	qj, ok := s.jobs[name]
	if !ok {
		return JobInfo{State: JobStateUnknown}, nil
	}

	info := JobInfo{}
	switch qj.JobState {
	case "Q":
		info.State = JobStateQueued
	case "R":
		info.State = JobStateRunning
	case "E":
		info.State = JobStateExiting
	case "F":
		info.State = JobStateFinished
	case "H":
		info.State = JobStateHeld
	default:
		return JobInfo{}, fmt.Errorf("unknown queue state %q", qj.JobState)
	}

	if qj.ExecHost != "" {
		parts := strings.Split(qj.ExecHost, "/")
		if len(parts) != 2 {
			return JobInfo{}, fmt.Errorf("%q is not a valid exec host", qj.ExecHost)
		}
		info.ExecNode = parts[0]
	}
	return info, nil
}
