// Package selection implements the event-selection strategies of
// spec.md §4.5 (C8): computing the selectable set from the current
// snapshot and picking one event from it.
package selection

import (
	"math/rand"

	"github.com/nmxmxh/bp-runtime/engine/bthread"
	"github.com/nmxmxh/bp-runtime/engine/errkind"
	"github.com/nmxmxh/bp-runtime/engine/event"
)

// Outcome classifies what a Strategy decided for a cycle.
type Outcome int

const (
	// Selected means Event holds the chosen event; the cycle proceeds.
	Selected Outcome = iota
	// NoBThreads means the live set was already empty; normal end.
	NoBThreads
	// Deadlock means nothing was selectable, the program is not in
	// daemon mode, and at least one live b-thread had a non-trivial
	// waitFor (spec.md §4.5, §7).
	Deadlock
	// Normal means nothing was selectable, not daemon, but no b-thread
	// was genuinely waiting (a degenerate but non-deadlock end).
	Normal
	// WaitExternal means nothing was selectable but the program is in
	// daemon mode: the caller must wait for an external enqueue and
	// re-evaluate.
	WaitExternal
)

// candidate pairs an event with its tie-break coordinates: the
// registration index of the b-thread that requested it and its position
// within that request list. Only requested events become candidates;
// the external queue is checked separately.
type candidate struct {
	event    event.Event
	bIndex   int
	reqIndex int
	external bool
}

// Strategy computes and picks from the selectable set of a cycle.
type Strategy interface {
	Select(handles []*bthread.Handle, queue []event.Event, daemon bool) (event.Event, Outcome, error)
}

func blockedBy(handles []*bthread.Handle, e event.Event) (bool, error) {
	for _, h := range handles {
		stmt := h.Statement()
		if stmt == nil {
			continue
		}
		ok, err := stmt.Block.Contains(e)
		if err != nil {
			return false, errkind.HostPredicateFailure(stmt.Block.String(), err)
		}
		if ok {
			return true, nil
		}
	}
	return false, nil
}

func requestedCandidates(handles []*bthread.Handle) []candidate {
	var out []candidate
	for bi, h := range handles {
		stmt := h.Statement()
		if stmt == nil {
			continue
		}
		for ri, e := range stmt.Request {
			out = append(out, candidate{event: e, bIndex: bi, reqIndex: ri})
		}
	}
	return out
}

func anyGenuinelyWaiting(handles []*bthread.Handle) bool {
	for _, h := range handles {
		stmt := h.Statement()
		if stmt != nil && !event.IsNone(stmt.WaitFor) {
			return true
		}
	}
	return false
}

func classifyEmpty(handles []*bthread.Handle, daemon bool) Outcome {
	if len(handles) == 0 {
		return NoBThreads
	}
	if daemon {
		return WaitExternal
	}
	if anyGenuinelyWaiting(handles) {
		return Deadlock
	}
	return Normal
}

// SimplePriority implements spec.md §4.5's deterministic strategy:
// the first requested event (registration order, then request-list
// order) that no b-thread blocks; falling back to the queue head only
// if no internal request is selectable.
type SimplePriority struct{}

func (SimplePriority) Select(handles []*bthread.Handle, queue []event.Event, daemon bool) (event.Event, Outcome, error) {
	if len(handles) == 0 {
		return event.Event{}, NoBThreads, nil
	}
	for _, c := range requestedCandidates(handles) {
		blocked, err := blockedBy(handles, c.event)
		if err != nil {
			return event.Event{}, 0, err
		}
		if !blocked {
			return c.event, Selected, nil
		}
	}
	if len(queue) > 0 {
		head := queue[0]
		blocked, err := blockedBy(handles, head)
		if err != nil {
			return event.Event{}, 0, err
		}
		if !blocked {
			return head, Selected, nil
		}
	}
	return event.Event{}, classifyEmpty(handles, daemon), nil
}

// Oracle picks one index out of n nonzero candidates.
type Oracle func(n int) int

// RandomOracle returns an Oracle drawing uniformly from r.
func RandomOracle(r *rand.Rand) Oracle {
	return func(n int) int { return r.Intn(n) }
}

// Arbitrary implements spec.md §4.5's pluggable strategy: it computes
// the full Selectable set (internal requests deduplicated with the
// external queue, minus anything blocked) and defers the pick to an
// Oracle, letting model-checking exploration branch over every choice
// instead of always taking the simple-priority winner.
type Arbitrary struct {
	Oracle Oracle
}

func (a Arbitrary) Select(handles []*bthread.Handle, queue []event.Event, daemon bool) (event.Event, Outcome, error) {
	if len(handles) == 0 {
		return event.Event{}, NoBThreads, nil
	}
	seen := map[string]bool{}
	var pool []event.Event
	for _, c := range requestedCandidates(handles) {
		key := c.event.String()
		if seen[key] {
			continue
		}
		blocked, err := blockedBy(handles, c.event)
		if err != nil {
			return event.Event{}, 0, err
		}
		if blocked {
			continue
		}
		seen[key] = true
		pool = append(pool, c.event)
	}
	for _, e := range queue {
		key := e.String()
		if seen[key] {
			continue
		}
		blocked, err := blockedBy(handles, e)
		if err != nil {
			return event.Event{}, 0, err
		}
		if blocked {
			continue
		}
		seen[key] = true
		pool = append(pool, e)
	}
	if len(pool) == 0 {
		return event.Event{}, classifyEmpty(handles, daemon), nil
	}
	oracle := a.Oracle
	if oracle == nil {
		oracle = RandomOracle(rand.New(rand.NewSource(1)))
	}
	idx := oracle(len(pool))
	if idx < 0 || idx >= len(pool) {
		idx = 0
	}
	return pool[idx], Selected, nil
}
