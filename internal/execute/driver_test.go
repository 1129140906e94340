package execute

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/berth-dev/nftbatch/internal/fault"
	"github.com/berth-dev/nftbatch/internal/log"
)

func TestDriverRotatesUntilDone(t *testing.T) {
	h := newHarness()
	src := newSource(25)
	h.sale.after = func(index int) {
		if index == 14 {
			h.clock.Advance(13 * time.Hour)
		}
	}
	o, err := h.orchestrator(uploadAndSale, src, h.options())
	require.NoError(t, err)

	d := &Driver{Orchestrator: o, Observer: h.events}
	cp, err := d.Run(context.Background(), NewCheckpoint(0, src.Len()))
	require.NoError(t, err)
	require.True(t, cp.Done())
	require.Len(t, h.provider.sessions, 2)
	for _, s := range h.provider.sessions {
		require.Equal(t, 1, s.closed)
	}

	rotated := h.events.kinds(log.EventSessionRotated)
	require.Len(t, rotated, 1)
	require.Equal(t, string(ReasonWindowExpired), rotated[0].Reason)
	require.Equal(t, 15, rotated[0].Next)
	require.Len(t, h.events.kinds(log.EventRunStarted), 1)
	require.Len(t, h.events.kinds(log.EventRunComplete), 1)
}

func TestDriverRecoversFromLostSession(t *testing.T) {
	h := newHarness()
	src := newSource(4)
	lost := fault.Fatal(errors.New("websocket closed"), "session_lost")
	h.upload.fail[1] = lost
	h.upload.after = func(index int) {
		if index == 1 {
			delete(h.upload.fail, 1)
		}
	}
	o, err := h.orchestrator(uploadAndSale, src, h.options())
	require.NoError(t, err)

	d := &Driver{Orchestrator: o, Observer: h.events, MaxRecoveries: 1}
	cp, err := d.Run(context.Background(), NewCheckpoint(0, src.Len()))
	require.NoError(t, err)
	require.True(t, cp.Done())
	require.Equal(t, []int{0, 1, 1, 2, 3}, h.upload.calls)
	require.Equal(t, []int{0, 1, 2, 3}, h.sale.calls)
}

func TestDriverStopsOnFatalWithoutBudget(t *testing.T) {
	h := newHarness()
	src := newSource(4)
	h.upload.fail[2] = fault.Fatal(errors.New("browser crashed"), "session_lost")
	o, err := h.orchestrator(uploadAndSale, src, h.options())
	require.NoError(t, err)

	d := &Driver{Orchestrator: o}
	cp, err := d.Run(context.Background(), NewCheckpoint(0, src.Len()))
	require.Error(t, err)
	require.Equal(t, 2, cp.Next())
}

func TestDriverGivesUpWhenNoProgress(t *testing.T) {
	h := newHarness()
	src := newSource(3)
	opts := h.options()
	// Every login takes longer than the window.
	slowProvider := &LoginProvider{
		Steps: &clockSteps{clock: h.clock, cost: 2 * time.Hour},
		Sleep: noWait,
	}
	opts.Window = time.Hour
	o, err := NewOrchestrator(uploadAndSale, src, slowProvider, []Stage{h.upload, h.sale}, opts)
	require.NoError(t, err)

	d := &Driver{Orchestrator: o}
	cp, err := d.Run(context.Background(), NewCheckpoint(0, src.Len()))
	require.ErrorContains(t, err, "no item committed")
	require.Equal(t, 0, cp.Next())
	require.Empty(t, h.upload.calls)
}

func TestDriverPersistsCheckpointThroughObserver(t *testing.T) {
	h := newHarness()
	src := newSource(5, 2)
	runDir := t.TempDir()
	persist := ObserverFunc(func(e Event) {
		if e.Kind != log.EventCheckpointAdvanced {
			return
		}
		require.NoError(t, SaveCheckpoint(runDir, &CheckpointFile{RunID: "r", Next: e.Next, Total: e.Total}))
	})
	opts := h.options()
	opts.Observer = Fanout{h.events, persist}
	o, err := h.orchestrator(uploadAndSale, src, opts)
	require.NoError(t, err)

	d := &Driver{Orchestrator: o, Observer: h.events}
	_, err = d.Run(context.Background(), NewCheckpoint(0, src.Len()))
	require.NoError(t, err)

	saved, err := LoadCheckpoint(runDir)
	require.NoError(t, err)
	require.Equal(t, 5, saved.Next)
	require.FileExists(t, filepath.Join(runDir, "checkpoint.json"))
}

// clockSteps spends cost on the fake clock for every login.
type clockSteps struct {
	clock *fakeClock
	cost  time.Duration
}

func (s *clockSteps) LaunchBrowser(ctx context.Context) (Session, error) {
	s.clock.Advance(s.cost)
	return &fakeSession{}, nil
}

func (s *clockSteps) UnlockWallet(ctx context.Context, sess Session) error { return nil }

func (s *clockSteps) AuthenticateMarketplace(ctx context.Context, sess Session) error { return nil }
