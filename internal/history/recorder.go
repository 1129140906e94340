package history

import (
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/berth-dev/nftbatch/internal/execute"
	"github.com/berth-dev/nftbatch/internal/log"
)

// Recorder writes loop events into the store. Write failures are reported
// once as a warning; history never stops a run.
type Recorder struct {
	store *Store
	runID string
	warn  io.Writer

	mu      sync.Mutex
	session int64
	warned  bool
}

// NewRecorder records events for runID.
func NewRecorder(store *Store, runID string) *Recorder {
	return &Recorder{store: store, runID: runID, warn: os.Stderr}
}

func (r *Recorder) Observe(e execute.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var err error
	switch e.Kind {
	case log.EventSessionAcquired:
		r.session, err = r.store.OpenSession(r.runID, e.Next)
	case log.EventSessionClosed:
		if r.session != 0 {
			err = r.store.CloseSession(r.session, e.Next)
		}
		if err == nil && r.session != 0 && e.Reason != "" {
			// A later rotation event may refine this reason.
			err = r.store.SetSessionReason(r.session, e.Reason)
		}
	case log.EventSessionRotated:
		if r.session != 0 {
			err = r.store.SetSessionReason(r.session, e.Reason)
		}
	case log.EventItemSkipped:
		err = r.store.RecordResult(ItemResult{
			RunID: r.runID, ItemIndex: e.Index, Item: e.Item,
			Outcome: execute.OutcomeSkipped, Error: e.Reason,
		})
	case log.EventStageSucceeded, log.EventStageFailed:
		res := ItemResult{
			RunID: r.runID, ItemIndex: e.Index, Item: e.Item, Stage: e.Stage.String(),
			Outcome: execute.OutcomeSucceeded, URL: e.URL, DurationMs: e.Duration.Milliseconds(),
		}
		if e.Kind == log.EventStageFailed {
			res.Outcome = execute.OutcomeFailed
			if e.Err != nil {
				res.Error = e.Err.Error()
			}
		}
		err = r.store.RecordResult(res)
	case log.EventCheckpointAdvanced:
		err = r.store.UpdateRun(r.runID, e.Next, StatusActive)
	case log.EventRunComplete:
		err = r.store.UpdateRun(r.runID, e.Next, StatusCompleted)
	}

	if err != nil && !r.warned {
		r.warned = true
		fmt.Fprintf(r.warn, "Warning: run history not updated: %v\n", err)
	}
}

// Finish records how a run that did not complete ended.
func (r *Recorder) Finish(next int, runErr error, interrupted bool) error {
	var status string
	switch {
	case interrupted:
		status = StatusInterrupted
	case runErr != nil:
		status = StatusFailed
	default:
		return nil
	}
	return r.store.UpdateRun(r.runID, next, status)
}
