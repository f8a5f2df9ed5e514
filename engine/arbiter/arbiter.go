// Package arbiter implements the cycle algorithm of spec.md §4.4 (C9):
// given an already-selected event, it handles interrupts, partitions
// and resumes the matching b-threads, drains newly registered ones,
// and assembles the next cycle's state. Selection itself (§4.5, C8)
// happens one layer up, in engine/selection, driven by engine/runner;
// this package only consumes its result.
package arbiter

import (
	"github.com/nmxmxh/bp-runtime/engine/bthread"
	"github.com/nmxmxh/bp-runtime/engine/errkind"
	"github.com/nmxmxh/bp-runtime/engine/event"
)

// Registration is one pending registerBThread call, either from the
// host program before start or from a b-thread body mid-cycle.
type Registration struct {
	Name string
	Body bthread.Body
}

// Host is the surface the arbiter needs from the owning program beyond
// bthread.ProgramHost: draining whatever got registered or enqueued
// externally during the cycle just run, and minting a fresh private
// scope for each newly started b-thread.
type Host interface {
	bthread.ProgramHost
	TakePending() []Registration
	TakeQueued() []event.Event
	NewScope() *bthread.Scope
}

// Notifier receives the per-cycle lifecycle callbacks spec.md §5
// orders as "interrupts → resumes → terminations → new-b-thread
// starts". Defined here (rather than depending on engine/program's
// richer Listener) to keep engine/arbiter free of a program->arbiter
// import cycle; engine/program adapts its Listener list to this.
type Notifier interface {
	BThreadRemoved(name string)
	BThreadDone(name string)
	BThreadAdded(name string)
}

// Result is the next cycle's raw material; engine/program assembles it
// into an immutable Snapshot. Auto-id naming is owned by the program
// (it assigns "autoadded-<n>" at registration time), so the arbiter
// never threads an id counter through its results.
type Result struct {
	Handles []*bthread.Handle
	Queue   []event.Event
}

// Start runs spec.md §4.4's initial variant: every already-registered
// b-thread is started to its first suspension, with no selected event
// and no interrupt/partition steps.
func Start(host Host, notify Notifier) (Result, error) {
	handles, err := drainPending(host, notify)
	if err != nil {
		return Result{}, err
	}
	return Result{Handles: handles, Queue: host.TakeQueued()}, nil
}

// Cycle runs one super-step given the event the selection strategy
// already chose: spec.md §4.4 steps 2-7.
func Cycle(host Host, notify Notifier, handles []*bthread.Handle, selected event.Event) (Result, error) {
	var interrupted, sleeping []*bthread.Handle
	var resuming []*bthread.Handle

	// Step 2: interrupts.
	for _, h := range handles {
		stmt := h.Statement()
		if stmt == nil {
			sleeping = append(sleeping, h)
			continue
		}
		hit, err := stmt.Interrupt.Contains(selected)
		if err != nil {
			return Result{}, errkind.HostPredicateFailure(stmt.Interrupt.String(), err)
		}
		if hit {
			interrupted = append(interrupted, h)
			continue
		}
		sleeping = append(sleeping, h)
	}
	for _, h := range interrupted {
		stmt := h.Statement()
		if stmt.BreakUpon != nil {
			stmt.BreakUpon(bthread.NewBreakUponHost(host), selected)
		}
		h.Interrupt()
		notify.BThreadRemoved(h.Name)
	}

	// Step 3: partition the survivors into Resuming/Sleeping.
	var stillSleeping []*bthread.Handle
	for _, h := range sleeping {
		stmt := h.Statement()
		match, err := matchesRequestOrWaitFor(stmt, selected)
		if err != nil {
			return Result{}, err
		}
		if match {
			resuming = append(resuming, h)
		} else {
			stillSleeping = append(stillSleeping, h)
		}
	}

	// Step 4: resume.
	var resumed []*bthread.Handle
	for _, h := range resuming {
		h.Resume(selected)
		if h.Terminated() {
			if err := h.Err(); err != nil {
				return Result{}, err
			}
			notify.BThreadDone(h.Name)
			continue
		}
		resumed = append(resumed, h)
	}

	// Step 5: drain newly registered b-threads (may itself register more).
	started, err := drainPending(host, notify)
	if err != nil {
		return Result{}, err
	}

	// Step 6: drain external events accumulated mid-cycle.
	queued := host.TakeQueued()

	// Step 7: assemble, keeping the surviving b-threads in the order of
	// handles (registration order) and appending the newly started ones.
	survivors := make(map[*bthread.Handle]bool, len(resumed)+len(stillSleeping))
	for _, h := range resumed {
		survivors[h] = true
	}
	for _, h := range stillSleeping {
		survivors[h] = true
	}
	next := make([]*bthread.Handle, 0, len(survivors)+len(started))
	for _, h := range handles {
		if survivors[h] {
			next = append(next, h)
		}
	}
	next = append(next, started...)

	return Result{Handles: next, Queue: queued}, nil
}

func matchesRequestOrWaitFor(stmt *bthread.Statement, e event.Event) (bool, error) {
	if stmt == nil {
		return false, nil
	}
	if event.Contains(stmt.Request, e) {
		return true, nil
	}
	ok, err := stmt.WaitFor.Contains(e)
	if err != nil {
		return false, errkind.HostPredicateFailure(stmt.WaitFor.String(), err)
	}
	return ok, nil
}

// drainPending repeatedly takes whatever is pending registration and
// starts it, looping until the pending set is empty, preserving
// discovery order (spec.md §4.4 step 5).
func drainPending(host Host, notify Notifier) ([]*bthread.Handle, error) {
	var started []*bthread.Handle
	for {
		pending := host.TakePending()
		if len(pending) == 0 {
			break
		}
		for _, p := range pending {
			h := bthread.Start(p.Name, p.Body, host, host.NewScope())
			if h.Terminated() {
				if err := h.Err(); err != nil {
					return nil, err
				}
				notify.BThreadDone(h.Name)
				continue
			}
			started = append(started, h)
			notify.BThreadAdded(h.Name)
		}
	}
	return started, nil
}
