// pool.go tracks progress across a run for the console and status endpoint.
package execute

import (
	"fmt"
	"sync"
	"time"

	"github.com/berth-dev/nftbatch/internal/log"
)

// ExecutionPool tracks progress across all items in a run. It is fed by
// the loop through Observe and read concurrently by the status endpoint.
// All methods are thread-safe via mu.
type ExecutionPool struct {
	mu        sync.Mutex
	Total     int
	Next      int
	Succeeded int
	Failed    int
	Skipped   int
	Sessions  int
	Rotations int
	Current   string
	LastError string
	Finished  bool
	started   time.Time
	updated   time.Time
}

// ProgressSnapshot is a point-in-time copy of the pool.
type ProgressSnapshot struct {
	Total     int       `json:"total"`
	Next      int       `json:"next"`
	Succeeded int       `json:"succeeded"`
	Failed    int       `json:"failed"`
	Skipped   int       `json:"skipped"`
	Sessions  int       `json:"sessions"`
	Rotations int       `json:"rotations"`
	Current   string    `json:"current,omitempty"`
	LastError string    `json:"last_error,omitempty"`
	Finished  bool      `json:"finished"`
	StartedAt time.Time `json:"started_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewExecutionPool creates an ExecutionPool for total items, resuming at next.
func NewExecutionPool(total, next int) *ExecutionPool {
	now := time.Now().UTC()
	return &ExecutionPool{
		Total:   total,
		Next:    next,
		started: now,
		updated: now,
	}
}

// Observe updates counters from a loop event.
func (p *ExecutionPool) Observe(e Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.updated = time.Now().UTC()

	switch e.Kind {
	case log.EventSessionAcquired:
		p.Sessions++
	case log.EventSessionRotated:
		p.Rotations++
	case log.EventItemStarted:
		p.Current = e.Item
	case log.EventStageFailed:
		if e.Err != nil {
			p.LastError = e.Err.Error()
		}
	case log.EventCheckpointAdvanced:
		p.Next = e.Next
		p.Current = ""
		switch e.Reason {
		case OutcomeSucceeded:
			p.Succeeded++
		case OutcomeFailed:
			p.Failed++
		case OutcomeSkipped:
			p.Skipped++
		}
	case log.EventRunComplete:
		p.Finished = true
		p.Current = ""
	}
}

// Progress returns a formatted progress string like "[2/5]".
func (p *ExecutionPool) Progress() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return fmt.Sprintf("[%d/%d]", p.Next, p.Total)
}

// IsComplete returns true once every item has been committed.
func (p *ExecutionPool) IsComplete() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.Next >= p.Total
}

// Snapshot copies the current counters.
func (p *ExecutionPool) Snapshot() ProgressSnapshot {
	p.mu.Lock()
	defer p.mu.Unlock()
	return ProgressSnapshot{
		Total:     p.Total,
		Next:      p.Next,
		Succeeded: p.Succeeded,
		Failed:    p.Failed,
		Skipped:   p.Skipped,
		Sessions:  p.Sessions,
		Rotations: p.Rotations,
		Current:   p.Current,
		LastError: p.LastError,
		Finished:  p.Finished,
		StartedAt: p.started,
		UpdatedAt: p.updated,
	}
}
