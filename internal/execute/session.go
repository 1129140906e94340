package execute

import (
	"context"
	"time"

	"github.com/berth-dev/nftbatch/internal/items"
)

// Session is a live, authenticated browser session. The orchestrator owns
// it exclusively and closes it exactly once.
type Session interface {
	Close() error
}

// Housekeeper is implemented by sessions that can shed accumulated state,
// typically by navigating to a blank page.
type Housekeeper interface {
	Housekeep(ctx context.Context) error
}

// SessionProvider produces fresh sessions.
type SessionProvider interface {
	Acquire(ctx context.Context) (Session, error)
}

// StageResult carries what a stage learned about the item.
type StageResult struct {
	// URL is the item page after upload; empty when unchanged.
	URL string
}

// Stage executes one side-effecting operation for one item.
type Stage interface {
	Kind() items.Stage
	Execute(ctx context.Context, s Session, item items.WorkItem) (StageResult, error)
}

// StageFunc adapts a function to the Stage interface.
type StageFunc struct {
	Stage items.Stage
	Fn    func(ctx context.Context, s Session, item items.WorkItem) (StageResult, error)
}

func (f StageFunc) Kind() items.Stage { return f.Stage }

func (f StageFunc) Execute(ctx context.Context, s Session, item items.WorkItem) (StageResult, error) {
	return f.Fn(ctx, s, item)
}

// Source is the read side of an item source.
type Source interface {
	Len() int
	Item(i int) items.WorkItem
}

// sleepCtx waits for d or until ctx is done.
func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
