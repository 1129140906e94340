// Package log provides structured event logging.
// Events are appended as JSON lines to .nftbatch/log.jsonl.
package log

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Event type constants.
const (
	EventRunStarted         = "run_started"
	EventLoginAttempt       = "login_attempt"
	EventLoginFailed        = "login_failed"
	EventSessionAcquired    = "session_acquired"
	EventSessionClosed      = "session_closed"
	EventSessionRotated     = "session_rotated"
	EventHousekeeping       = "housekeeping"
	EventItemStarted        = "item_started"
	EventItemSkipped        = "item_skipped"
	EventStageSucceeded     = "stage_succeeded"
	EventStageFailed        = "stage_failed"
	EventCheckpointAdvanced = "checkpoint_advanced"
	EventRunComplete        = "run_complete"
)

// StateDir is the per-project directory holding config, logs and runs.
const StateDir = ".nftbatch"

// LogEvent represents a single structured event written to the log.
type LogEvent struct {
	Time       time.Time      `json:"time"`
	Event      string         `json:"event"`
	RunID      string         `json:"run,omitempty"`
	Index      *int           `json:"index,omitempty"`
	Item       string         `json:"item,omitempty"`
	Stage      string         `json:"stage,omitempty"`
	URL        string         `json:"url,omitempty"`
	Reason     string         `json:"reason,omitempty"`
	Code       string         `json:"code,omitempty"`
	Error      string         `json:"error,omitempty"`
	Attempt    int            `json:"attempt,omitempty"`
	Next       int            `json:"next,omitempty"`
	Total      int            `json:"total,omitempty"`
	Succeeded  int            `json:"succeeded,omitempty"`
	Failed     int            `json:"failed,omitempty"`
	Skipped    int            `json:"skipped,omitempty"`
	DurationMs int64          `json:"duration_ms,omitempty"`
	Data       map[string]any `json:"data,omitempty"`
}

// IndexPtr is a helper for the optional Index field, which must record 0.
func IndexPtr(i int) *int { return &i }

// Logger writes append-only JSONL events to a log file.
type Logger struct {
	path string
	mu   sync.Mutex
}

// NewLogger creates a Logger that writes to .nftbatch/log.jsonl inside dir.
// Creates the state directory if it does not already exist.
// Does not truncate an existing log file.
func NewLogger(dir string) (*Logger, error) {
	stateDir := filepath.Join(dir, StateDir)
	if err := os.MkdirAll(stateDir, 0755); err != nil {
		return nil, fmt.Errorf("create %s directory: %w", StateDir, err)
	}

	return &Logger{
		path: filepath.Join(stateDir, "log.jsonl"),
	}, nil
}

// Path returns the log file location.
func (l *Logger) Path() string { return l.path }

// Append writes a single LogEvent as one JSON line to the log file.
// If event.Time is the zero value, it is set to time.Now().UTC().
// Thread-safe via mutex.
func (l *Logger) Append(event LogEvent) error {
	if event.Time.IsZero() {
		event.Time = time.Now().UTC()
	}

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal log event: %w", err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	f, err := os.OpenFile(l.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	defer f.Close()

	if _, err := f.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("write log event: %w", err)
	}

	return nil
}

// ReadAll reads and parses all events from the log file.
// Returns an empty slice (not an error) if the file does not exist.
func (l *Logger) ReadAll() ([]LogEvent, error) {
	f, err := os.Open(l.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return []LogEvent{}, nil
		}
		return nil, fmt.Errorf("open log file: %w", err)
	}
	defer f.Close()

	var events []LogEvent
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var event LogEvent
		if err := json.Unmarshal(line, &event); err != nil {
			return nil, fmt.Errorf("parse log line %d: %w", lineNum, err)
		}
		events = append(events, event)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read log file: %w", err)
	}

	return events, nil
}

// Filter returns the events of the given kind for runID ("" matches all runs).
func Filter(events []LogEvent, kind, runID string) []LogEvent {
	var out []LogEvent
	for _, e := range events {
		if e.Event != kind {
			continue
		}
		if runID != "" && e.RunID != runID {
			continue
		}
		out = append(out, e)
	}
	return out
}
