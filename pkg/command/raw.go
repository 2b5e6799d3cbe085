package command

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

const (
	keyFirstStage            = "firstStage"
	keyLastStage             = "lastStage"
	keyNumReportingIntervals = "numReportingIntervals"
)

// ParsedRaw is the subset of a raw commands payload the job core validates
// before a run may be launched.
type ParsedRaw struct {
	FirstStage            int
	LastStage             int
	NumReportingIntervals int
}

func rawValue(lines []string, key string) (int, bool) {
	lwrKey := strings.ToLower(key)
	for _, l := range lines {
		segs := strings.Split(strings.TrimSpace(l), " ")
		if len(segs) < 2 {
			continue
		}
		if strings.ToLower(segs[0]) != lwrKey {
			continue
		}
		for _, s := range segs[1:] {
			if s == "" {
				continue
			}
			v, err := strconv.Atoi(s)
			if err != nil {
				return 0, false
			}
			return v, true
		}
	}
	return 0, false
}

// ParseRaw validates a raw commands payload. Jobs may only run a single
// stage per start, so payloads spanning multiple stages are rejected.
func ParseRaw(raw string) (ParsedRaw, error) {
	lines := strings.Split(raw, "\n")

	first, ok := rawValue(lines, keyFirstStage)
	if !ok {
		return ParsedRaw{}, fmt.Errorf("%s was not specified or is invalid", keyFirstStage)
	}
	last, ok := rawValue(lines, keyLastStage)
	if !ok {
		return ParsedRaw{}, fmt.Errorf("%s was not specified or is invalid", keyLastStage)
	}
	intervals, ok := rawValue(lines, keyNumReportingIntervals)
	if !ok {
		return ParsedRaw{}, fmt.Errorf("%s was not specified or is invalid", keyNumReportingIntervals)
	}

	if first < 1 {
		return ParsedRaw{}, fmt.Errorf("%s must be positive", keyFirstStage)
	}
	if first != last {
		return ParsedRaw{}, fmt.Errorf("multi-stage jobs are not supported")
	}
	if intervals < 1 {
		return ParsedRaw{}, fmt.Errorf("%s must be positive", keyNumReportingIntervals)
	}

	return ParsedRaw{
		FirstStage:            first,
		LastStage:             last,
		NumReportingIntervals: intervals,
	}, nil
}

// WriteRaw writes raw command text to the command file at path.
func WriteRaw(path, raw string) error {
	if err := os.WriteFile(path, []byte(raw), 0644); err != nil {
		return fmt.Errorf("write command file: %w", err)
	}
	return nil
}
