package engine

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/gofrs/flock"
)

// ReadProgress reads and parses the progress file at path.
//
// The engine holds an advisory lock on the file while it rewrites it, so the
// lock is only tried, never waited on. A missing file or a failed try-lock
// both return (nil, nil): the engine either has not created the file yet or
// is mid-write, and neither case is an error.
func ReadProgress(path string) (*Progress, error) {
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("stat progress file: %w", err)
	}

	lock := flock.New(path)
	locked, err := lock.TryRLock()
	if err != nil || !locked {
		return nil, nil
	}
	defer func() { _ = lock.Unlock() }()

	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read progress file: %w", err)
	}

	var p Progress
	if err := json.Unmarshal(b, &p); err != nil {
		return nil, fmt.Errorf("parse progress file: %w", err)
	}
	return &p, nil
}
