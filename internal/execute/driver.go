package execute

import (
	"context"
	"fmt"
	"time"

	"github.com/berth-dev/nftbatch/internal/fault"
	"github.com/berth-dev/nftbatch/internal/log"
)

// maxIdlePasses stops a run whose sessions keep ending before any item is
// committed, e.g. a window shorter than the login itself.
const maxIdlePasses = 3

// Driver re-invokes the orchestrator with the returned checkpoint until
// every item is processed. Each pass gets a fresh session.
type Driver struct {
	Orchestrator *Orchestrator
	Observer     Observer
	// MaxRecoveries is how many fatal session faults are answered with a
	// new session before the run gives up.
	MaxRecoveries int
}

// Run drives passes from cp to completion. On error the returned
// checkpoint is where a later resume must start.
func (d *Driver) Run(ctx context.Context, cp Checkpoint) (Checkpoint, error) {
	observer := d.Observer
	if observer == nil {
		observer = nopObserver{}
	}
	emit := func(e Event) {
		e.Time = time.Now()
		e.Index = -1
		e.Total = cp.Total()
		e.Next = cp.Next()
		observer.Observe(e)
	}

	emit(Event{Kind: log.EventRunStarted})

	recoveries := 0
	idle := 0
	for {
		before := cp.Next()
		pass, err := d.Orchestrator.Run(ctx, cp)
		cp = pass.Checkpoint

		if err != nil {
			if pass.Reason == ReasonFatal && fault.CategoryOf(err) == fault.CategoryFatal && recoveries < d.MaxRecoveries {
				recoveries++
				emit(Event{Kind: log.EventSessionRotated, Reason: "session_lost", Err: err, Attempt: recoveries})
				continue
			}
			return cp, err
		}

		if pass.Done {
			emit(Event{Kind: log.EventRunComplete, Reason: string(pass.Reason)})
			return cp, nil
		}

		if cp.Next() == before {
			idle++
			if idle >= maxIdlePasses {
				return cp, fmt.Errorf("no item committed in %d consecutive sessions (last reason %s)", idle, pass.Reason)
			}
		} else {
			idle = 0
		}
		emit(Event{Kind: log.EventSessionRotated, Reason: string(pass.Reason)})
	}
}
