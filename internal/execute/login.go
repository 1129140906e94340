package execute

import (
	"context"
	"fmt"
	"time"

	"github.com/berth-dev/nftbatch/internal/fault"
	"github.com/berth-dev/nftbatch/internal/log"
)

// LoginState is a step of the login protocol.
type LoginState int

const (
	LoginStarting LoginState = iota
	LoginBrowserLaunched
	LoginWalletUnlocked
	LoginAuthenticated
	LoginRetrying
	LoginFailed
)

func (s LoginState) String() string {
	switch s {
	case LoginStarting:
		return "starting"
	case LoginBrowserLaunched:
		return "browser_launched"
	case LoginWalletUnlocked:
		return "wallet_unlocked"
	case LoginAuthenticated:
		return "marketplace_authenticated"
	case LoginRetrying:
		return "retrying"
	case LoginFailed:
		return "failed"
	}
	return fmt.Sprintf("login_state(%d)", int(s))
}

// LoginSteps performs the three steps of a login against real
// infrastructure.
type LoginSteps interface {
	LaunchBrowser(ctx context.Context) (Session, error)
	UnlockWallet(ctx context.Context, s Session) error
	AuthenticateMarketplace(ctx context.Context, s Session) error
}

// LoginProvider acquires sessions by running the login protocol, retrying
// the whole sequence after any failure. A launched browser is always quit
// before the next attempt.
type LoginProvider struct {
	Steps LoginSteps
	// MaxAttempts bounds the number of full login attempts; 0 retries
	// until ctx is cancelled.
	MaxAttempts int
	// RetryDelay is the pause between attempts.
	RetryDelay time.Duration

	Sleep    func(ctx context.Context, d time.Duration) error
	Observer Observer
	// OnTransition, if set, is called on every state change.
	OnTransition func(from, to LoginState)

	state LoginState
}

// State returns the state the last Acquire ended in.
func (p *LoginProvider) State() LoginState { return p.state }

func (p *LoginProvider) transition(to LoginState) {
	from := p.state
	p.state = to
	if p.OnTransition != nil {
		p.OnTransition(from, to)
	}
}

func (p *LoginProvider) emit(e Event) {
	if p.Observer == nil {
		return
	}
	if e.Time.IsZero() {
		e.Time = time.Now()
	}
	p.Observer.Observe(e)
}

// Acquire runs login attempts until one succeeds, the attempt budget is
// spent, or ctx is cancelled.
func (p *LoginProvider) Acquire(ctx context.Context) (Session, error) {
	if p.Steps == nil {
		return nil, fmt.Errorf("login steps are not configured")
	}
	sleep := p.Sleep
	if sleep == nil {
		sleep = sleepCtx
	}

	p.state = LoginStarting
	var lastErr error
	for attempt := 1; p.MaxAttempts <= 0 || attempt <= p.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			p.transition(LoginFailed)
			return nil, err
		}
		if attempt > 1 {
			p.transition(LoginRetrying)
			if err := sleep(ctx, p.RetryDelay); err != nil {
				p.transition(LoginFailed)
				return nil, err
			}
			p.transition(LoginStarting)
		}
		p.emit(Event{Kind: log.EventLoginAttempt, Index: -1, Attempt: attempt})

		session, step, err := p.attempt(ctx)
		if err == nil {
			return session, nil
		}
		lastErr = err
		p.emit(Event{Kind: log.EventLoginFailed, Index: -1, Attempt: attempt, Reason: step, Err: err})
		if ctx.Err() != nil {
			p.transition(LoginFailed)
			return nil, ctx.Err()
		}
	}

	p.transition(LoginFailed)
	return nil, fault.Acquisition(fmt.Errorf("login failed after %d attempts: %w", p.MaxAttempts, lastErr), "login_exhausted")
}

// attempt runs one full login. On failure any launched browser is closed
// and the name of the failing step is returned.
func (p *LoginProvider) attempt(ctx context.Context) (Session, string, error) {
	session, err := p.Steps.LaunchBrowser(ctx)
	if err != nil {
		return nil, LoginStarting.String(), fmt.Errorf("launching browser: %w", err)
	}
	p.transition(LoginBrowserLaunched)

	quit := func(step LoginState, err error) (Session, string, error) {
		if closeErr := session.Close(); closeErr != nil {
			err = fmt.Errorf("%w (closing browser: %v)", err, closeErr)
		}
		return nil, step.String(), err
	}

	if err := p.Steps.UnlockWallet(ctx, session); err != nil {
		return quit(LoginBrowserLaunched, fmt.Errorf("unlocking wallet: %w", err))
	}
	p.transition(LoginWalletUnlocked)

	if err := p.Steps.AuthenticateMarketplace(ctx, session); err != nil {
		return quit(LoginWalletUnlocked, fmt.Errorf("signing in to marketplace: %w", err))
	}
	p.transition(LoginAuthenticated)
	return session, "", nil
}
