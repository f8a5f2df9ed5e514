// Package runner implements spec.md's C10: the top-level loop driving
// start -> select -> advance until termination, surfacing events and
// lifecycle to listeners and reporting one of the exit reasons of §6.
package runner

import (
	"context"
	"time"

	"github.com/nmxmxh/bp-runtime/engine/errkind"
	"github.com/nmxmxh/bp-runtime/engine/event"
	"github.com/nmxmxh/bp-runtime/engine/program"
	"github.com/nmxmxh/bp-runtime/engine/selection"
	"github.com/nmxmxh/bp-runtime/utils"
)

// ExitReason is one of spec.md §6's four exit conditions.
type ExitReason string

const (
	Normal   ExitReason = "normal"
	Deadlock ExitReason = "deadlock"
	Aborted  ExitReason = "aborted"
	Error    ExitReason = "error"
)

// Result is what Run returns once the program has ended.
type Result struct {
	RunID  string
	Reason ExitReason
	Err    error
	Trace  []event.Event
}

// Runner wires a Program to a selection.Strategy and drives it.
type Runner struct {
	prog     *program.Program
	strategy selection.Strategy
	log      *utils.Logger
	shutdown *utils.GracefulShutdown
}

// New builds a Runner. A nil strategy defaults to selection.SimplePriority{}.
// It registers the program's own Close (draining pooled resource-loader
// connections) and every configured Listener that implements
// program.Closer with its GracefulShutdown, so Run's deferred shutdown
// actually drains something rather than calling an empty registry.
func New(prog *program.Program, strategy selection.Strategy, log *utils.Logger) *Runner {
	if strategy == nil {
		strategy = selection.SimplePriority{}
	}
	if log == nil {
		log = utils.DefaultLogger("runner")
	}
	shutdown := utils.NewGracefulShutdown(5*time.Second, log)
	shutdown.Register(prog.Close)
	for _, l := range prog.Listeners() {
		if closer, ok := l.(program.Closer); ok {
			shutdown.Register(closer.Close)
		}
	}
	return &Runner{prog: prog, strategy: strategy, log: log, shutdown: shutdown}
}

// Run drives the program to completion, honoring ctx cancellation at
// cycle boundaries only (spec.md §5: "never mid-b-thread") and an
// optional per-cycle timeout.
func (r *Runner) Run(ctx context.Context, cycleTimeout time.Duration) (result Result) {
	runID := utils.GenerateID()
	r.log.Info("run starting", utils.String("run_id", runID))

	defer func() {
		result.RunID = runID
		if result.Reason == Error || result.Reason == Aborted {
			reason := string(result.Reason)
			if result.Err != nil {
				reason = result.Err.Error()
			}
			r.prog.FireHalted(reason)
		} else {
			r.prog.FireEnded()
		}
		if err := r.shutdown.Shutdown(context.Background()); err != nil {
			r.log.Warn("listener shutdown incomplete", utils.Err(err), utils.String("run_id", runID))
		}
	}()

	snap, err := r.prog.Start()
	if err != nil {
		return r.errorResult(err)
	}

	var trace []event.Event
	for {
		select {
		case <-ctx.Done():
			return Result{Reason: Aborted, Err: ctx.Err(), Trace: trace}
		default:
		}

		e, outcome, err := r.selectWithTimeout(snap, cycleTimeout)
		if err != nil {
			return r.errorResult2(err, trace)
		}

		switch outcome {
		case selection.NoBThreads, selection.Normal:
			return Result{Reason: Normal, Trace: trace}
		case selection.Deadlock:
			return Result{Reason: Deadlock, Err: errkind.Deadlock(), Trace: trace}
		case selection.WaitExternal:
			waited, ok := r.waitForExternal(ctx, snap)
			if !ok {
				return Result{Reason: Aborted, Err: ctx.Err(), Trace: trace}
			}
			snap = waited
			continue
		}

		trace = append(trace, e)
		r.log.Debug("event selected", utils.String("event", e.String()))

		next, err := r.prog.Advance(snap, e)
		if err != nil {
			return r.errorResult2(err, trace)
		}
		snap = next
	}
}

func (r *Runner) selectWithTimeout(snap *program.Snapshot, timeout time.Duration) (event.Event, selection.Outcome, error) {
	type result struct {
		e       event.Event
		outcome selection.Outcome
		err     error
	}
	if timeout <= 0 {
		return r.selectNow(snap)
	}
	done := make(chan result, 1)
	go func() {
		e, outcome, err := r.selectNow(snap)
		done <- result{e, outcome, err}
	}()
	select {
	case res := <-done:
		return res.e, res.outcome, res.err
	case <-time.After(timeout):
		return event.Event{}, 0, errkind.CycleTimeout(timeout.String())
	}
}

// selectNow actually calls into the selection strategy. It takes the
// live handles and queue straight off the snapshot by way of the
// program package's own Advance/Start bookkeeping: the strategy needs
// the same handle slice the arbiter will consume, so Snapshot exposes
// it through program.SelectionInput.
func (r *Runner) selectNow(snap *program.Snapshot) (event.Event, selection.Outcome, error) {
	handles, queue, daemon := program.SelectionInput(snap)
	return r.strategy.Select(handles, queue, daemon)
}

// waitForExternal blocks until an external event has been enqueued,
// folding it into a fresh snapshot sharing the same live handles, or
// until ctx is cancelled.
func (r *Runner) waitForExternal(ctx context.Context, snap *program.Snapshot) (*program.Snapshot, bool) {
	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()
	for {
		merged := r.prog.AbsorbExternal(snap)
		if merged != snap {
			return merged, true
		}
		select {
		case <-ctx.Done():
			return nil, false
		case <-ticker.C:
		}
	}
}

func (r *Runner) errorResult(err error) Result {
	return Result{Reason: Error, Err: err}
}

func (r *Runner) errorResult2(err error, trace []event.Event) Result {
	return Result{Reason: Error, Err: err, Trace: trace}
}
