// Package execute implements the batch execution loop: one session per
// pass, items dispatched in order through the selected stages, and a
// checkpoint that lets the next pass continue where this one stopped.
package execute

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/berth-dev/nftbatch/internal/fault"
	"github.com/berth-dev/nftbatch/internal/items"
	"github.com/berth-dev/nftbatch/internal/log"
)

// Reason says why a pass ended.
type Reason string

const (
	ReasonCompleted     Reason = "completed"
	ReasonWindowExpired Reason = "window_expired"
	ReasonBreaker       Reason = "breaker"
	ReasonInterrupted   Reason = "interrupted"
	ReasonFatal         Reason = "fatal"
)

// Item outcomes reported on checkpoint_advanced events.
const (
	OutcomeSucceeded = "succeeded"
	OutcomeFailed    = "failed"
	OutcomeSkipped   = "skipped"
)

// Fault codes raised by the loop itself.
const (
	CodeStageTimeout  = "stage_timeout"
	CodePriceRejected = "price_rejected"
	CodeLoginFailed   = "login_failed"
)

// Stats counts what happened to the items visited in one pass.
type Stats struct {
	Visited      int
	Succeeded    int
	Failed       int
	Skipped      int
	Housekeeping int
}

// Pass is the result of one Run: where the checkpoint ended and why.
type Pass struct {
	Checkpoint Checkpoint
	Done       bool
	Reason     Reason
	Stats      Stats
}

// Options tune the loop. Zero values are replaced by DefaultOptions.
type Options struct {
	// Window is how long one session may be used before rotation.
	Window time.Duration
	// HousekeepEvery triggers housekeeping on every Nth item index.
	HousekeepEvery int
	// PauseMin and PauseMax bound the random pause after housekeeping.
	PauseMin time.Duration
	PauseMax time.Duration
	// StageTimeout bounds one stage call; 0 means no limit.
	StageTimeout time.Duration
	// BreakerThreshold ends the pass after that many consecutive failed
	// items; 0 disables the breaker.
	BreakerThreshold int

	Now      func() time.Time
	Sleep    func(ctx context.Context, d time.Duration) error
	Jitter   func(n int64) int64
	Observer Observer
}

// DefaultOptions returns the reference policy: a 12 hour window and
// housekeeping every 10 items with a 2 to 5 second pause.
func DefaultOptions() Options {
	return Options{
		Window:         12 * time.Hour,
		HousekeepEvery: 10,
		PauseMin:       2 * time.Second,
		PauseMax:       5 * time.Second,
		StageTimeout:   5 * time.Minute,
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.Window <= 0 {
		o.Window = d.Window
	}
	if o.HousekeepEvery <= 0 {
		o.HousekeepEvery = d.HousekeepEvery
	}
	if o.PauseMin < 0 {
		o.PauseMin = 0
	}
	if o.PauseMax < o.PauseMin {
		o.PauseMax = o.PauseMin
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	if o.Sleep == nil {
		o.Sleep = sleepCtx
	}
	if o.Jitter == nil {
		o.Jitter = rand.Int64N
	}
	if o.Observer == nil {
		o.Observer = nopObserver{}
	}
	return o
}

// Orchestrator runs passes over an item source. It holds no session
// between passes; every Run acquires a fresh one and closes it.
type Orchestrator struct {
	actions  items.ActionSet
	source   Source
	provider SessionProvider
	stages   map[items.Stage]Stage
	opts     Options
	breaker  *CircuitBreaker
}

// NewOrchestrator wires the loop. Every stage in actions needs an executor.
func NewOrchestrator(actions items.ActionSet, source Source, provider SessionProvider, stages []Stage, opts Options) (*Orchestrator, error) {
	if actions.IsZero() {
		return nil, fmt.Errorf("action set is empty")
	}
	if source == nil {
		return nil, fmt.Errorf("item source is required")
	}
	if provider == nil {
		return nil, fmt.Errorf("session provider is required")
	}
	table := make(map[items.Stage]Stage, len(stages))
	for _, s := range stages {
		table[s.Kind()] = s
	}
	for _, kind := range actions.Stages() {
		if _, ok := table[kind]; !ok {
			return nil, fmt.Errorf("no executor for stage %s", kind)
		}
	}
	opts = opts.withDefaults()
	return &Orchestrator{
		actions:  actions,
		source:   source,
		provider: provider,
		stages:   table,
		opts:     opts,
		breaker:  NewCircuitBreaker(opts.BreakerThreshold),
	}, nil
}

// Run processes items from cp until the source is exhausted, the session
// window expires, the breaker trips, ctx is cancelled, or a fatal error
// occurs. The returned checkpoint is always valid to pass to the next Run.
// An error is returned only when the session could not be acquired, a
// stage reported a fatal fault, or ctx was cancelled; the item in flight
// at that moment is not committed.
func (o *Orchestrator) Run(ctx context.Context, cp Checkpoint) (Pass, error) {
	if cp.Total() != o.source.Len() {
		return Pass{Checkpoint: cp}, fmt.Errorf("checkpoint total %d does not match %d items", cp.Total(), o.source.Len())
	}
	if cp.Done() {
		return Pass{Checkpoint: cp, Done: true, Reason: ReasonCompleted}, nil
	}

	// 1. The window starts before login so a slow login counts against it.
	deadline := o.opts.Now().Add(o.opts.Window)

	// 2. Acquire a session. Failure here leaves the checkpoint untouched.
	session, err := o.provider.Acquire(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return Pass{Checkpoint: cp, Reason: ReasonInterrupted}, ctx.Err()
		}
		if fault.CodeOf(err) == "" {
			err = fault.Acquisition(err, CodeLoginFailed)
		}
		return Pass{Checkpoint: cp, Reason: ReasonFatal}, fmt.Errorf("acquiring session: %w", err)
	}
	o.emit(Event{Kind: log.EventSessionAcquired, Index: -1, Next: cp.Next(), Total: cp.Total()})

	// 3. The session is closed on every exit path, carrying the reason the
	// pass ended with.
	var ended Reason
	defer func() {
		closeErr := session.Close()
		o.emit(Event{Kind: log.EventSessionClosed, Index: -1, Next: cp.Next(), Total: cp.Total(), Reason: string(ended), Err: closeErr})
	}()

	o.breaker.Reset()
	start := cp.Next()
	var stats Stats
	pass := func(reason Reason) Pass {
		ended = reason
		return Pass{Checkpoint: cp, Done: cp.Done(), Reason: reason, Stats: stats}
	}

	// 4. Process items in order.
	for !cp.Done() {
		i := cp.Next()

		if ctx.Err() != nil {
			return pass(ReasonInterrupted), ctx.Err()
		}
		if o.opts.Now().After(deadline) {
			return pass(ReasonWindowExpired), nil
		}
		if o.breaker.ShouldRotate() {
			return pass(ReasonBreaker), nil
		}

		// 4a. Shed browser state every HousekeepEvery items, except on the
		// first item of the pass.
		if i%o.opts.HousekeepEvery == 0 && i != start {
			stats.Housekeeping++
			if err := o.housekeep(ctx, session, i); err != nil {
				return pass(ReasonInterrupted), err
			}
		}

		item := o.source.Item(i)
		o.emit(Event{Kind: log.EventItemStarted, Index: i, Total: cp.Total(), Item: item.Label()})
		stats.Visited++

		// 4b. Malformed records are skipped, never dispatched.
		if !item.Valid {
			stats.Skipped++
			o.emit(Event{Kind: log.EventItemSkipped, Index: i, Total: cp.Total(), Item: item.Label(), Reason: item.Problem})
			o.commit(&cp, OutcomeSkipped)
			continue
		}

		// 4c. Dispatch. Only fatal faults and cancellation escape.
		result, err := o.dispatch(ctx, session, item)
		if err != nil {
			if ctx.Err() != nil {
				return pass(ReasonInterrupted), ctx.Err()
			}
			return pass(ReasonFatal), fmt.Errorf("item %d: %w", i+1, err)
		}
		switch result {
		case dispatchSucceeded:
			stats.Succeeded++
			o.breaker.RecordSuccess()
			o.commit(&cp, OutcomeSucceeded)
		case dispatchFailed:
			stats.Failed++
			o.breaker.RecordFailure()
			o.commit(&cp, OutcomeFailed)
		case dispatchRejected:
			// The row was refused before the session was asked to do
			// anything, so it says nothing about the session.
			stats.Failed++
			o.commit(&cp, OutcomeFailed)
		}
	}

	return pass(ReasonCompleted), nil
}

func (o *Orchestrator) commit(cp *Checkpoint, outcome string) {
	cp.Advance()
	o.emit(Event{Kind: log.EventCheckpointAdvanced, Index: cp.Next() - 1, Next: cp.Next(), Total: cp.Total(), Reason: outcome})
}

// housekeep navigates the session to a blank page and pauses. Failures are
// reported and ignored; only cancellation is returned.
func (o *Orchestrator) housekeep(ctx context.Context, session Session, i int) error {
	var hkErr error
	if h, ok := session.(Housekeeper); ok {
		hkErr = h.Housekeep(ctx)
	}
	pause := o.opts.PauseMin
	if spread := int64(o.opts.PauseMax - o.opts.PauseMin); spread > 0 {
		pause += time.Duration(o.opts.Jitter(spread + 1))
	}
	o.emit(Event{Kind: log.EventHousekeeping, Index: i, Total: o.source.Len(), Err: hkErr, Duration: pause})

	if err := o.opts.Sleep(ctx, pause); err != nil && ctx.Err() != nil {
		return ctx.Err()
	}
	return nil
}

// dispatchResult is what happened to one dispatched item.
type dispatchResult int

const (
	dispatchSucceeded dispatchResult = iota
	// dispatchFailed means a stage ran and reported a contained failure.
	dispatchFailed
	// dispatchRejected means the item's data was refused before the stage
	// that needed it ran.
	dispatchRejected
)

// dispatch runs the selected stages for one item. Contained failures end
// the item's remaining stages; fatal faults and cancellation return an
// error.
func (o *Orchestrator) dispatch(ctx context.Context, session Session, item items.WorkItem) (dispatchResult, error) {
	uploaded := false

	if o.actions.Has(items.StageUpload) {
		res, err := o.runStage(ctx, session, items.StageUpload, item)
		if err != nil {
			return dispatchFailed, o.escalate(ctx, err)
		}
		uploaded = true
		if res.URL != "" {
			item = item.WithURL(res.URL)
		}
	}

	if o.actions.Has(items.StageSale) && (uploaded || o.actions.Only(items.StageSale)) {
		if err := items.CheckPrice(item.Price, item.Chain); err != nil {
			o.emit(Event{
				Kind: log.EventStageFailed, Index: item.Index, Total: o.source.Len(), Item: item.Label(),
				Stage: items.StageSale, Err: fault.Contained(err, CodePriceRejected),
			})
			return dispatchRejected, nil
		}
		if _, err := o.runStage(ctx, session, items.StageSale, item); err != nil {
			return dispatchFailed, o.escalate(ctx, err)
		}
	}

	if o.actions.Has(items.StageDelete) {
		if _, err := o.runStage(ctx, session, items.StageDelete, item); err != nil {
			return dispatchFailed, o.escalate(ctx, err)
		}
	}

	return dispatchSucceeded, nil
}

// escalate turns a reported stage failure into the error dispatch returns:
// nil for contained failures, the error itself otherwise.
func (o *Orchestrator) escalate(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if fault.IsFatal(err) {
		return err
	}
	return nil
}

// runStage calls one stage under the stage timeout and reports the result.
func (o *Orchestrator) runStage(ctx context.Context, session Session, kind items.Stage, item items.WorkItem) (StageResult, error) {
	stage := o.stages[kind]

	stageCtx := ctx
	if o.opts.StageTimeout > 0 {
		var cancel context.CancelFunc
		stageCtx, cancel = context.WithTimeout(ctx, o.opts.StageTimeout)
		defer cancel()
	}

	started := o.opts.Now()
	res, err := stage.Execute(stageCtx, session, item)
	if err == nil {
		o.emit(Event{
			Kind: log.EventStageSucceeded, Index: item.Index, Total: o.source.Len(), Item: item.Label(),
			Stage: kind, URL: res.URL, Duration: o.opts.Now().Sub(started),
		})
		return res, nil
	}

	if ctx.Err() == nil && errors.Is(stageCtx.Err(), context.DeadlineExceeded) && fault.CodeOf(err) == "" {
		err = fault.Contained(fmt.Errorf("%s timed out after %s: %w", kind, o.opts.StageTimeout, err), CodeStageTimeout)
	}
	if ctx.Err() == nil {
		o.emit(Event{Kind: log.EventStageFailed, Index: item.Index, Total: o.source.Len(), Item: item.Label(), Stage: kind, Err: err})
	}
	return res, err
}

func (o *Orchestrator) emit(e Event) {
	if e.Time.IsZero() {
		e.Time = o.opts.Now()
	}
	o.opts.Observer.Observe(e)
}
