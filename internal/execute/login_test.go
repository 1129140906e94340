package execute

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/berth-dev/nftbatch/internal/fault"
	"github.com/berth-dev/nftbatch/internal/log"
)

// scriptedSteps fails the named step on the listed attempts.
type scriptedSteps struct {
	attempt     int
	launched    []*fakeSession
	failLaunch  map[int]bool
	failUnlock  map[int]bool
	failConnect map[int]bool
	onAttempt   func(attempt int)
}

func (s *scriptedSteps) LaunchBrowser(ctx context.Context) (Session, error) {
	s.attempt++
	if s.onAttempt != nil {
		s.onAttempt(s.attempt)
	}
	if s.failLaunch[s.attempt] {
		return nil, errors.New("chrome exited")
	}
	sess := &fakeSession{id: s.attempt}
	s.launched = append(s.launched, sess)
	return sess, nil
}

func (s *scriptedSteps) UnlockWallet(ctx context.Context, sess Session) error {
	if s.failUnlock[s.attempt] {
		return errors.New("wrong password")
	}
	return nil
}

func (s *scriptedSteps) AuthenticateMarketplace(ctx context.Context, sess Session) error {
	if s.failConnect[s.attempt] {
		return errors.New("signature request never appeared")
	}
	return nil
}

func noWait(ctx context.Context, d time.Duration) error { return ctx.Err() }

func TestLoginProviderHappyPath(t *testing.T) {
	steps := &scriptedSteps{}
	var trace []LoginState
	p := &LoginProvider{
		Steps: steps,
		Sleep: noWait,
		OnTransition: func(from, to LoginState) {
			trace = append(trace, to)
		},
	}

	sess, err := p.Acquire(context.Background())
	require.NoError(t, err)
	require.NotNil(t, sess)
	require.Equal(t, LoginAuthenticated, p.State())
	require.Equal(t, []LoginState{LoginBrowserLaunched, LoginWalletUnlocked, LoginAuthenticated}, trace)
	require.Equal(t, 0, steps.launched[0].closed)
}

func TestLoginProviderRetriesWholeSequenceAndQuitsBrowser(t *testing.T) {
	steps := &scriptedSteps{
		failLaunch:  map[int]bool{1: true},
		failUnlock:  map[int]bool{2: true},
		failConnect: map[int]bool{3: true},
	}
	events := &eventLog{}
	p := &LoginProvider{Steps: steps, Sleep: noWait, Observer: events}

	sess, err := p.Acquire(context.Background())
	require.NoError(t, err)
	require.Equal(t, 4, steps.attempt)
	require.Same(t, steps.launched[2], sess)

	// Attempts 2 and 3 launched a browser and failed later: both were quit.
	require.Equal(t, 1, steps.launched[0].closed)
	require.Equal(t, 1, steps.launched[1].closed)
	require.Equal(t, 0, steps.launched[2].closed)

	require.Len(t, events.kinds(log.EventLoginAttempt), 4)
	failed := events.kinds(log.EventLoginFailed)
	require.Len(t, failed, 3)
	require.Equal(t, LoginStarting.String(), failed[0].Reason)
	require.Equal(t, LoginBrowserLaunched.String(), failed[1].Reason)
	require.Equal(t, LoginWalletUnlocked.String(), failed[2].Reason)
}

func TestLoginProviderBudgetExhausted(t *testing.T) {
	steps := &scriptedSteps{failUnlock: map[int]bool{1: true, 2: true, 3: true}}
	p := &LoginProvider{Steps: steps, MaxAttempts: 3, Sleep: noWait}

	_, err := p.Acquire(context.Background())
	require.Error(t, err)
	require.Equal(t, fault.CategoryAcquisition, fault.CategoryOf(err))
	require.Equal(t, LoginFailed, p.State())
	require.Equal(t, 3, steps.attempt)
	for _, s := range steps.launched {
		require.Equal(t, 1, s.closed)
	}
}

func TestLoginProviderUnboundedStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	steps := &scriptedSteps{
		failConnect: map[int]bool{},
		onAttempt: func(attempt int) {
			if attempt == 7 {
				cancel()
			}
		},
	}
	for i := 1; i <= 10; i++ {
		steps.failConnect[i] = true
	}
	p := &LoginProvider{Steps: steps, Sleep: noWait}

	_, err := p.Acquire(ctx)
	require.ErrorIs(t, err, context.Canceled)
	require.Equal(t, 7, steps.attempt)
	require.Equal(t, LoginFailed, p.State())
	for _, s := range steps.launched {
		require.Equal(t, 1, s.closed)
	}
}
