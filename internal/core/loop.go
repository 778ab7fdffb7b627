package core

import (
	"context"
	"errors"

	"DscLedger/internal/event"
)

// ErrEngineStopped is returned to submitters when the core loop has
// shut down before their operation could run.
var ErrEngineStopped = errors.New("core: engine stopped")

// Submission is one unit of work queued for the core goroutine: either
// an event to run through the pipeline or a read closure to execute
// against current state. Exactly one of Event and View is set.
type Submission struct {
	Event event.Event
	View  func(*Engine) error

	reply chan submitResult
}

type submitResult struct {
	sequence int64
	err      error
}

// Result is the verdict of an accepted operation.
type Result struct {
	// Sequence the event was assigned in the log.
	Sequence int64
}

// Run owns the engine state until ctx is cancelled. All mutations and
// exact reads execute here, one at a time; this goroutine is the
// serialization point the rest of the service talks to through Submit
// and View.
func (e *Engine) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			e.drainSubmissions()
			return ctx.Err()

		case sub := <-e.submitCh:
			e.execute(sub)
		}
	}
}

func (e *Engine) execute(sub Submission) {
	if sub.View != nil {
		err := sub.View(e)
		if sub.reply != nil {
			sub.reply <- submitResult{err: err}
		}
		return
	}

	err := e.ProcessEvent(sub.Event)
	res := submitResult{err: err}
	if err == nil {
		// sequence was already advanced past the applied event
		res.sequence = e.sequence - 1
	}
	if sub.reply != nil {
		sub.reply <- res
	}
}

// drainSubmissions fails every queued submission on shutdown so no
// caller is left blocked on a reply that will never come.
func (e *Engine) drainSubmissions() {
	for {
		select {
		case sub := <-e.submitCh:
			if sub.reply != nil {
				sub.reply <- submitResult{err: ErrEngineStopped}
			}
		default:
			return
		}
	}
}

// Submit runs one event through the pipeline on the core goroutine and
// waits for the verdict. The returned sequence identifies the applied
// event in the log; a rejection carries the taxonomy error and left no
// state behind.
func (e *Engine) Submit(ctx context.Context, evt event.Event) (Result, error) {
	reply := make(chan submitResult, 1)

	select {
	case e.submitCh <- Submission{Event: evt, reply: reply}:
	case <-ctx.Done():
		return Result{}, ctx.Err()
	}

	select {
	case res := <-reply:
		return Result{Sequence: res.sequence}, res.err
	case <-ctx.Done():
		// The operation may still execute; the caller can re-submit
		// under the same operation ID and hit the idempotency guard.
		return Result{}, ctx.Err()
	}
}

// View executes fn on the core goroutine against current state. Reads
// served this way are exact: they observe a consistent point between
// operations, never a half-applied batch.
func (e *Engine) View(ctx context.Context, fn func(*Engine) error) error {
	reply := make(chan submitResult, 1)

	select {
	case e.submitCh <- Submission{View: fn, reply: reply}:
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case res := <-reply:
		return res.err
	case <-ctx.Done():
		return ctx.Err()
	}
}
