// Package cleanup manages the per-run directories under the state directory
// and prunes old ones.
package cleanup

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/berth-dev/nftbatch/internal/execute"
)

// RunsDirName is the directory holding one subdirectory per run.
const RunsDirName = "runs"

// runTimestampLayout is the format used for run directory names.
const runTimestampLayout = "20060102-150405"

// RunsDir returns the runs directory inside stateDir.
func RunsDir(stateDir string) string {
	return filepath.Join(stateDir, RunsDirName)
}

// NewRunDir creates a run directory named after now. A name already taken
// moves to the next free second.
func NewRunDir(runsDir string, now time.Time) (string, error) {
	if err := os.MkdirAll(runsDir, 0755); err != nil {
		return "", fmt.Errorf("creating runs directory: %w", err)
	}
	for i := 0; i < 60; i++ {
		path := filepath.Join(runsDir, now.Add(time.Duration(i)*time.Second).Format(runTimestampLayout))
		err := os.Mkdir(path, 0755)
		if err == nil {
			return path, nil
		}
		if !os.IsExist(err) {
			return "", fmt.Errorf("creating run directory: %w", err)
		}
	}
	return "", fmt.Errorf("no free run directory name near %s", now.Format(runTimestampLayout))
}

// ListRuns returns the run directory names, oldest first.
func ListRuns(runsDir string) ([]string, error) {
	entries, err := os.ReadDir(runsDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading runs directory: %w", err)
	}

	var dirs []string
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		if _, parseErr := time.Parse(runTimestampLayout, entry.Name()); parseErr == nil {
			dirs = append(dirs, entry.Name())
		}
	}

	// Timestamp names sort chronologically.
	sort.Strings(dirs)
	return dirs, nil
}

// LatestResumable returns the newest run directory whose checkpoint is
// incomplete, or "" if there is none.
func LatestResumable(runsDir string) (string, *execute.CheckpointFile, error) {
	dirs, err := ListRuns(runsDir)
	if err != nil {
		return "", nil, err
	}
	for i := len(dirs) - 1; i >= 0; i-- {
		path := filepath.Join(runsDir, dirs[i])
		cp, err := execute.LoadCheckpoint(path)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Warning: skipping run %s: %v\n", dirs[i], err)
			continue
		}
		if resumable(cp) {
			return path, cp, nil
		}
	}
	return "", nil, nil
}

func resumable(cp *execute.CheckpointFile) bool {
	return cp != nil && cp.Next < cp.Total
}

// Options selects what Prune removes. A run older than MaxAgeDays or
// outside the Keep most recent is removed; zero disables either rule.
type Options struct {
	MaxAgeDays int
	Keep       int
	// KeepResumable spares runs that can still be resumed.
	KeepResumable bool
	// DryRun reports what would be removed without deleting anything.
	DryRun bool
	Now    time.Time
}

// Prune removes run directories selected by opts and returns their names.
func Prune(runsDir string, opts Options) ([]string, error) {
	dirs, err := ListRuns(runsDir)
	if err != nil {
		return nil, err
	}
	now := opts.Now
	if now.IsZero() {
		now = time.Now()
	}
	cutoff := now.AddDate(0, 0, -opts.MaxAgeDays)

	var pruned []string
	for i, name := range dirs {
		tooOld := false
		if opts.MaxAgeDays > 0 {
			t, _ := time.ParseInLocation(runTimestampLayout, name, now.Location())
			tooOld = t.Before(cutoff)
		}
		beyondKeep := opts.Keep > 0 && i < len(dirs)-opts.Keep
		if !tooOld && !beyondKeep {
			continue
		}

		path := filepath.Join(runsDir, name)
		if opts.KeepResumable {
			if cp, err := execute.LoadCheckpoint(path); err == nil && resumable(cp) {
				continue
			}
		}
		if !opts.DryRun {
			if rmErr := os.RemoveAll(path); rmErr != nil {
				return pruned, fmt.Errorf("removing %s: %w", name, rmErr)
			}
		}
		pruned = append(pruned, name)
	}

	return pruned, nil
}
