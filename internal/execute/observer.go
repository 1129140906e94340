package execute

import (
	"time"

	"github.com/berth-dev/nftbatch/internal/items"
)

// Event is one step of a run as seen by observers. Kind is one of the
// log.Event* constants.
type Event struct {
	Kind    string
	Time    time.Time
	Index   int
	Total   int
	Item    string
	Stage   items.Stage
	URL     string
	Reason  string
	Err     error
	Attempt int
	Next    int

	Duration time.Duration
}

// Observer receives events synchronously from the execution loop. It must
// not block for long and must not touch the session.
type Observer interface {
	Observe(Event)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(Event)

func (f ObserverFunc) Observe(e Event) { f(e) }

// Fanout delivers each event to every observer in order.
type Fanout []Observer

func (f Fanout) Observe(e Event) {
	for _, o := range f {
		if o != nil {
			o.Observe(e)
		}
	}
}

type nopObserver struct{}

func (nopObserver) Observe(Event) {}
