package engine

import (
	"fmt"
	"strings"
)

// State is the unified lifecycle state of one engine run.
//
// StateUnknown is an internal signal only: it means a runner could not
// determine the executor state. It must never be reported to a caller.
type State string

const (
	StateNotStarted State = "NotStarted"
	StateQueued     State = "Queued"
	StateRunning    State = "Running"
	StateFinished   State = "Finished"
	StateFailed     State = "Failed"
	StateUnknown    State = "Unknown"
)

// Per-job file names. These are part of the on-disk contract with the
// external engine and must not be used for uploaded additional files.
const (
	CommandsFileName    = "commands.txt"
	ProgressFileName    = "progress.json"
	DiagnosticsFileName = "doutput.txt"
	ParametersFileName  = "parameters.csv"

	TrajectoryFilePrefix = "trajectory"
	LastFrameFilePrefix  = "last"

	artifactExtension = "pdb"
)

// Progress is the schema of the progress file the engine writes while a
// run is in flight.
type Progress struct {
	State      State `json:"state"`
	Step       int   `json:"step"`
	TotalSteps int   `json:"total_steps"`
}

// TrajectoryFileName returns the trajectory artifact name for a stage,
// e.g. "trajectory.3.pdb".
func TrajectoryFileName(stage int) string {
	return fmt.Sprintf("%s.%d.%s", TrajectoryFilePrefix, stage, artifactExtension)
}

// LastFrameFileName returns the checkpoint artifact name for a stage,
// e.g. "last.3.pdb".
func LastFrameFileName(stage int) string {
	return fmt.Sprintf("%s.%d.%s", LastFrameFilePrefix, stage, artifactExtension)
}

// StageFromArtifactName extracts the stage number from an artifact file name
// with the given prefix. Returns ok=false for anything that is not a
// well-formed "<prefix>.<n>.pdb" name.
func StageFromArtifactName(name, prefix string) (int, bool) {
	segs := strings.Split(name, ".")
	if len(segs) != 3 {
		return 0, false
	}
	if segs[0] != prefix || segs[2] != artifactExtension {
		return 0, false
	}
	var stage int
	if _, err := fmt.Sscanf(segs[1], "%d", &stage); err != nil {
		return 0, false
	}
	if stage < 1 {
		return 0, false
	}
	if fmt.Sprintf("%d", stage) != segs[1] {
		return 0, false
	}
	return stage, true
}

// IsReservedFileName reports whether a destination file name would collide
// with one of the engine's own files. Uploads must never target these.
func IsReservedFileName(name string) bool {
	lwr := strings.ToLower(name)
	switch lwr {
	case CommandsFileName, ProgressFileName, DiagnosticsFileName, ParametersFileName, "frame.pdb":
		return true
	}
	if strings.HasPrefix(name, TrajectoryFilePrefix) {
		return true
	}
	if strings.HasPrefix(name, LastFrameFilePrefix) {
		return true
	}
	return false
}
