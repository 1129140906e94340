package execute

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/berth-dev/nftbatch/internal/items"
)

type fakeSource struct {
	items []items.WorkItem
}

// newSource builds n valid items; the listed indices are malformed.
func newSource(n int, malformed ...int) *fakeSource {
	bad := make(map[int]bool, len(malformed))
	for _, i := range malformed {
		bad[i] = true
	}
	src := &fakeSource{}
	for i := 0; i < n; i++ {
		it := items.WorkItem{
			Index:    i,
			Valid:    !bad[i],
			Name:     fmt.Sprintf("nft-%d", i),
			FilePath: fmt.Sprintf("art/%d.png", i),
			Supply:   1,
			Chain:    items.ChainEthereum,
			Price:    "0.01",
			Quantity: 1,
			Duration: "1 month",
			URL:      fmt.Sprintf("https://opensea.io/assets/ethereum/0xabc/%d", i),
		}
		if bad[i] {
			it.Problem = "name is required for upload"
		}
		src.items = append(src.items, it)
	}
	return src
}

func (s *fakeSource) Len() int                  { return len(s.items) }
func (s *fakeSource) Item(i int) items.WorkItem { return s.items[i] }

type fakeSession struct {
	mu         sync.Mutex
	id         int
	closed     int
	housekeeps int
	closeErr   error
}

func (s *fakeSession) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed++
	return s.closeErr
}

func (s *fakeSession) Housekeep(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.housekeeps++
	return nil
}

type fakeProvider struct {
	mu       sync.Mutex
	sessions []*fakeSession
	err      error
}

func (p *fakeProvider) Acquire(ctx context.Context) (Session, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return nil, p.err
	}
	s := &fakeSession{id: len(p.sessions) + 1}
	p.sessions = append(p.sessions, s)
	return s, nil
}

// recordingStage records every item index it is called with.
type recordingStage struct {
	kind  items.Stage
	calls []int
	urls  []string
	fail  map[int]error
	after func(index int)
}

func newStage(kind items.Stage) *recordingStage {
	return &recordingStage{kind: kind, fail: map[int]error{}}
}

func (s *recordingStage) Kind() items.Stage { return s.kind }

func (s *recordingStage) Execute(ctx context.Context, sess Session, item items.WorkItem) (StageResult, error) {
	s.calls = append(s.calls, item.Index)
	s.urls = append(s.urls, item.URL)
	if s.after != nil {
		defer s.after(item.Index)
	}
	if err := s.fail[item.Index]; err != nil {
		return StageResult{}, err
	}
	if s.kind == items.StageUpload {
		return StageResult{URL: fmt.Sprintf("https://opensea.io/assets/uploaded/%d", item.Index)}, nil
	}
	return StageResult{}, nil
}

type fakeClock struct {
	now time.Time
}

func newClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time          { return c.now }
func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

// eventLog collects observer events.
type eventLog struct {
	events []Event
}

func (l *eventLog) Observe(e Event) { l.events = append(l.events, e) }

func (l *eventLog) kinds(kind string) []Event {
	var out []Event
	for _, e := range l.events {
		if e.Kind == kind {
			out = append(out, e)
		}
	}
	return out
}

type harness struct {
	clock    *fakeClock
	provider *fakeProvider
	upload   *recordingStage
	sale     *recordingStage
	delete   *recordingStage
	events   *eventLog
	pauses   []time.Duration
}

func newHarness() *harness {
	return &harness{
		clock:    newClock(),
		provider: &fakeProvider{},
		upload:   newStage(items.StageUpload),
		sale:     newStage(items.StageSale),
		delete:   newStage(items.StageDelete),
		events:   &eventLog{},
	}
}

func (h *harness) options() Options {
	return Options{
		Window:         12 * time.Hour,
		HousekeepEvery: 10,
		PauseMin:       2 * time.Second,
		PauseMax:       5 * time.Second,
		Now:            h.clock.Now,
		Sleep: func(ctx context.Context, d time.Duration) error {
			h.pauses = append(h.pauses, d)
			return ctx.Err()
		},
		Jitter:   func(n int64) int64 { return n - 1 },
		Observer: h.events,
	}
}

func (h *harness) orchestrator(actions items.ActionSet, src Source, opts Options) (*Orchestrator, error) {
	return NewOrchestrator(actions, src, h.provider, []Stage{h.upload, h.sale, h.delete}, opts)
}

var errMarketplace = errors.New("marketplace rejected the form")
