package cli

import (
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/berth-dev/nftbatch/internal/execute"
	"github.com/berth-dev/nftbatch/internal/fault"
	"github.com/berth-dev/nftbatch/internal/items"
	"github.com/berth-dev/nftbatch/internal/log"
)

// eventLog appends every loop event to the project's JSONL log.
type eventLog struct {
	logger *log.Logger
	runID  string
	pool   *execute.ExecutionPool
	warn   io.Writer

	mu     sync.Mutex
	warned bool
}

func newEventLog(logger *log.Logger, runID string, pool *execute.ExecutionPool) *eventLog {
	return &eventLog{logger: logger, runID: runID, pool: pool, warn: os.Stderr}
}

func (l *eventLog) Observe(e execute.Event) {
	entry := log.LogEvent{
		Time:       e.Time.UTC(),
		Event:      e.Kind,
		RunID:      l.runID,
		Item:       e.Item,
		URL:        e.URL,
		Reason:     e.Reason,
		Attempt:    e.Attempt,
		Next:       e.Next,
		Total:      e.Total,
		DurationMs: e.Duration.Milliseconds(),
	}
	if e.Index >= 0 {
		entry.Index = log.IndexPtr(e.Index)
	}
	if e.Kind == log.EventStageSucceeded || e.Kind == log.EventStageFailed {
		entry.Stage = e.Stage.String()
	}
	if e.Err != nil {
		entry.Error = e.Err.Error()
		entry.Code = fault.CodeOf(e.Err)
	}
	if e.Kind == log.EventRunComplete && l.pool != nil {
		s := l.pool.Snapshot()
		entry.Succeeded, entry.Failed, entry.Skipped = s.Succeeded, s.Failed, s.Skipped
	}

	if err := l.logger.Append(entry); err != nil {
		l.mu.Lock()
		defer l.mu.Unlock()
		if !l.warned {
			l.warned = true
			fmt.Fprintf(l.warn, "Warning: failed to write event log: %v\n", err)
		}
	}
}

// checkpointWriter persists the checkpoint to the run directory every time
// it advances.
type checkpointWriter struct {
	runDir string
	file   execute.CheckpointFile
	warn   io.Writer
}

func newCheckpointWriter(runDir, runID string, src *items.Source) *checkpointWriter {
	return &checkpointWriter{
		runDir: runDir,
		file: execute.CheckpointFile{
			RunID:        runID,
			DataFile:     src.Path(),
			SourceDigest: src.Digest(),
			Actions:      src.Actions().String(),
			Total:        src.Len(),
		},
		warn: os.Stderr,
	}
}

// Save writes the checkpoint at next.
func (w *checkpointWriter) Save(next int) error {
	w.file.Next = next
	return execute.SaveCheckpoint(w.runDir, &w.file)
}

func (w *checkpointWriter) Observe(e execute.Event) {
	if e.Kind != log.EventCheckpointAdvanced {
		return
	}
	if err := w.Save(e.Next); err != nil {
		fmt.Fprintf(w.warn, "Warning: checkpoint not saved at item %d: %v\n", e.Next, err)
	}
}
