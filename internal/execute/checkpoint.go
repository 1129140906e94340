package execute

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/berth-dev/nftbatch/internal/fsx"
)

// Checkpoint is the index of the next item to process. It only moves
// forward and never passes the item count.
type Checkpoint struct {
	next  int
	total int
}

// NewCheckpoint starts at start, clamped to [0, total].
func NewCheckpoint(start, total int) Checkpoint {
	if total < 0 {
		total = 0
	}
	if start < 0 {
		start = 0
	}
	if start > total {
		start = total
	}
	return Checkpoint{next: start, total: total}
}

// Next is the index of the next item to process.
func (c Checkpoint) Next() int { return c.next }

// Total is the number of items in the source.
func (c Checkpoint) Total() int { return c.total }

// Done reports whether every item has been processed.
func (c Checkpoint) Done() bool { return c.next >= c.total }

// Advance commits the current item.
func (c *Checkpoint) Advance() {
	if c.next < c.total {
		c.next++
	}
}

func (c Checkpoint) String() string {
	return fmt.Sprintf("%d/%d", c.next, c.total)
}

const checkpointFile = "checkpoint.json"

// CheckpointFile is the durable form of a checkpoint, written after every
// advance so a restarted process can resume.
type CheckpointFile struct {
	RunID        string    `json:"run_id"`
	DataFile     string    `json:"data_file"`
	SourceDigest string    `json:"source_digest"`
	Actions      string    `json:"actions"`
	Next         int       `json:"next"`
	Total        int       `json:"total"`
	Timestamp    time.Time `json:"timestamp"`
}

// Checkpoint returns the in-memory checkpoint the file describes.
func (f *CheckpointFile) Checkpoint() Checkpoint {
	return NewCheckpoint(f.Next, f.Total)
}

// SaveCheckpoint writes the current state to disk atomically.
func SaveCheckpoint(runDir string, cp *CheckpointFile) error {
	cp.Timestamp = time.Now().UTC()
	data, err := json.MarshalIndent(cp, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling checkpoint: %w", err)
	}
	path := filepath.Join(runDir, checkpointFile)
	if err := fsx.WriteFileAtomic(path, data, 0644); err != nil {
		return fmt.Errorf("writing checkpoint: %w", err)
	}
	return nil
}

// LoadCheckpoint reads the checkpoint from disk.
// Returns nil, nil if no checkpoint exists (not an error).
func LoadCheckpoint(runDir string) (*CheckpointFile, error) {
	path := filepath.Join(runDir, checkpointFile)
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading checkpoint: %w", err)
	}
	var cp CheckpointFile
	if err := json.Unmarshal(data, &cp); err != nil {
		return nil, fmt.Errorf("parsing checkpoint: %w", err)
	}
	if cp.Next < 0 || cp.Next > cp.Total {
		return nil, fmt.Errorf("checkpoint next %d outside [0, %d]", cp.Next, cp.Total)
	}
	return &cp, nil
}

// ClearCheckpoint removes the checkpoint file.
func ClearCheckpoint(runDir string) error {
	path := filepath.Join(runDir, checkpointFile)
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("removing checkpoint: %w", err)
	}
	return nil
}
