package job

import (
	"os"
	"path/filepath"
	"sort"

	"github.com/bmatcuk/doublestar/v4"
	"go.uber.org/zap"

	"github.com/tessellab/simfarm/pkg/engine"
)

// globArtifacts selects the stage artifacts with the given prefix from the
// job directory.
func (j *Job) globArtifacts(prefix string) []string {
	pattern := filepath.Join(j.dir, prefix+".*.pdb")
	matches, err := doublestar.FilepathGlob(pattern, doublestar.WithFilesOnly())
	if err != nil {
		j.logger.Warn("Failed to glob stage artifacts",
			zap.String("pattern", pattern),
			zap.Error(err))
		return nil
	}
	return matches
}

// AvailableStages lists the stage numbers of all trajectory artifacts in the
// job directory, sorted ascending.
func (j *Job) AvailableStages() []int {
	var stages []int
	for _, path := range j.globArtifacts(engine.TrajectoryFilePrefix) {
		if n, ok := engine.StageFromArtifactName(filepath.Base(path), engine.TrajectoryFilePrefix); ok {
			stages = append(stages, n)
		}
	}
	sort.Ints(stages)
	return stages
}

// StageSpan returns the first and last contiguously available stage. A gap
// in the stage sequence truncates the span: artifacts past the gap exist on
// disk but do not count as contiguous progress. Returns ok=false when no
// stage artifact exists.
func (j *Job) StageSpan() (first, last int, ok bool) {
	stages := j.AvailableStages()
	if len(stages) == 0 {
		return 0, 0, false
	}

	first = stages[0]
	last = first
	for _, n := range stages[1:] {
		if n != last+1 {
			break
		}
		last = n
	}
	return first, last, true
}

// LastAvailableStage returns the last contiguously available stage, or 0
// when there is none.
func (j *Job) LastAvailableStage() int {
	_, last, ok := j.StageSpan()
	if !ok {
		return 0
	}
	return last
}

// pruneStages removes every trajectory and last-frame artifact with a stage
// number at or past threshold. Lower-numbered artifacts are untouched.
// Best effort: individual failures are logged, not propagated.
func (j *Job) pruneStages(threshold int) {
	for _, prefix := range []string{engine.TrajectoryFilePrefix, engine.LastFrameFilePrefix} {
		for _, path := range j.globArtifacts(prefix) {
			stage, ok := engine.StageFromArtifactName(filepath.Base(path), prefix)
			if !ok || stage < threshold {
				continue
			}
			if err := os.Remove(path); err != nil {
				j.logger.Warn("Failed to prune stage artifact",
					zap.String("file", filepath.Base(path)),
					zap.Error(err))
			}
		}
	}
}
