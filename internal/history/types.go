// Package history provides SQLite-backed persistence for runs, the browser
// sessions they used and the outcome of every item stage.
package history

import "time"

// Run statuses.
const (
	StatusActive      = "active"
	StatusInterrupted = "interrupted"
	StatusFailed      = "failed"
	StatusCompleted   = "completed"
)

// Run is one invocation over a data file, possibly spanning resumes.
type Run struct {
	ID        string
	DataFile  string
	Actions   string
	Total     int
	Next      int
	Status    string // active, interrupted, failed, completed
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Session is one authenticated browser session within a run.
type Session struct {
	ID         int64
	RunID      string
	StartIndex int
	EndIndex   int
	Reason     string // why the session ended; empty while open
	StartedAt  time.Time
	EndedAt    *time.Time
}

// ItemResult is the outcome of one stage of one item. Skipped items are
// stored with an empty stage.
type ItemResult struct {
	ID         int
	RunID      string
	ItemIndex  int
	Item       string
	Stage      string
	Outcome    string // succeeded, failed, skipped
	URL        string
	Error      string
	DurationMs int64
	UpdatedAt  time.Time
}

// Summary provides a high-level view of a run for listing.
type Summary struct {
	ID        string
	DataFile  string
	Actions   string
	Status    string
	Total     int
	Next      int
	Succeeded int
	Failed    int
	Skipped   int
	Sessions  int
	UpdatedAt time.Time
}
