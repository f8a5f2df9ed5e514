// Package explore implements trace-replay model-checking: since a live
// Snapshot owns real goroutines and cannot be forked (engine/program's
// Snapshot doc comment explains why), exploring the state space branches
// by re-running a fresh program from Start() and replaying a prefix of
// previously chosen events, then trying every still-selectable event at
// the frontier. engine/dedup's bloom-filter-backed Deduper prunes
// program shapes already visited by an earlier branch.
package explore

import (
	"fmt"

	"github.com/nmxmxh/bp-runtime/engine/bthread"
	"github.com/nmxmxh/bp-runtime/engine/dedup"
	"github.com/nmxmxh/bp-runtime/engine/event"
	"github.com/nmxmxh/bp-runtime/engine/program"
	"github.com/nmxmxh/bp-runtime/engine/selection"
)

// Factory builds a fresh, unstarted Program with the same b-threads
// registered every time it is called; callers supply it because only
// they know which bodies to register (the bodies themselves are
// opaque to this package, per spec.md §1's "opaque suspendable
// procedures").
type Factory func() *program.Program

// Outcome is one discovered terminal state.
type Outcome struct {
	Trace  []event.Event
	Reason string // "normal", "deadlock", "depth-limit", or the error string
}

// Explorer walks every branch reachable from a fresh program, up to
// maxDepth cycles per branch, deduplicating visited shapes so a branch
// that reaches an already-seen shape stops early instead of re-walking
// it.
type Explorer struct {
	factory  Factory
	maxDepth int
	dedup    *dedup.Deduper
}

// New builds an Explorer. maxDepth bounds how many cycles a single
// branch may run before being cut off (state spaces with cycles are
// otherwise unbounded); budget sizes the deduper.
func New(factory Factory, maxDepth int, budget uint) *Explorer {
	if maxDepth <= 0 {
		maxDepth = 50
	}
	return &Explorer{factory: factory, maxDepth: maxDepth, dedup: dedup.New(budget, 0.01)}
}

// Run walks every branch from a fresh Start(), returning one Outcome
// per terminal state reached (not pruned by dedup).
func (ex *Explorer) Run() ([]Outcome, error) {
	p := ex.factory()
	snap, err := p.Start()
	if err != nil {
		return nil, fmt.Errorf("starting exploration program: %w", err)
	}
	var outcomes []Outcome
	ex.walk(p, snap, nil, 0, &outcomes)
	return outcomes, nil
}

func (ex *Explorer) walk(p *program.Program, snap *program.Snapshot, trace []event.Event, depth int, out *[]Outcome) {
	shape := shapeOf(snap)
	if ex.dedup.SeenOrRecord(shape) {
		return
	}
	if depth >= ex.maxDepth {
		*out = append(*out, Outcome{Trace: trace, Reason: "depth-limit"})
		return
	}

	handles, queue, daemon := program.SelectionInput(snap)
	strategy := selection.Arbitrary{}
	candidates, err := enumerateSelectable(handles, queue)
	if err != nil {
		*out = append(*out, Outcome{Trace: trace, Reason: err.Error()})
		return
	}
	if len(candidates) == 0 {
		_, outcome, err := strategy.Select(handles, queue, daemon)
		reason := "normal"
		if err != nil {
			reason = err.Error()
		} else if outcome == selection.Deadlock {
			reason = "deadlock"
		}
		*out = append(*out, Outcome{Trace: trace, Reason: reason})
		return
	}

	for _, e := range candidates {
		branch := ex.factory()
		replayed, ok := replay(branch, trace, e)
		if !ok {
			continue
		}
		nextTrace := append(append([]event.Event{}, trace...), e)
		ex.walk(branch, replayed, nextTrace, depth+1, out)
	}
}

// replay re-runs branch from Start(), feeding it prior events then the
// next candidate, returning the resulting snapshot.
func replay(branch *program.Program, prior []event.Event, next event.Event) (*program.Snapshot, bool) {
	snap, err := branch.Start()
	if err != nil {
		return nil, false
	}
	for _, e := range prior {
		snap, err = branch.Advance(snap, e)
		if err != nil {
			return nil, false
		}
	}
	snap, err = branch.Advance(snap, next)
	if err != nil {
		return nil, false
	}
	return snap, true
}

// enumerateSelectable mirrors selection.Arbitrary's pool-building
// exactly (request candidates then the external queue, deduplicated,
// minus anything blocked): the explorer must only ever branch into
// events the real arbiter could actually have selected.
func enumerateSelectable(handles []*bthread.Handle, queue []event.Event) ([]event.Event, error) {
	seen := map[string]bool{}
	var out []event.Event
	for _, h := range handles {
		stmt := h.Statement()
		if stmt == nil {
			continue
		}
		for _, e := range stmt.Request {
			key := e.String()
			if seen[key] {
				continue
			}
			blocked, err := blockedBy(handles, e)
			if err != nil {
				return nil, err
			}
			if blocked {
				continue
			}
			seen[key] = true
			out = append(out, e)
		}
	}
	for _, e := range queue {
		key := e.String()
		if seen[key] {
			continue
		}
		blocked, err := blockedBy(handles, e)
		if err != nil {
			return nil, err
		}
		if blocked {
			continue
		}
		seen[key] = true
		out = append(out, e)
	}
	return out, nil
}

func blockedBy(handles []*bthread.Handle, e event.Event) (bool, error) {
	for _, h := range handles {
		stmt := h.Statement()
		if stmt == nil {
			continue
		}
		ok, err := stmt.Block.Contains(e)
		if err != nil {
			return false, fmt.Errorf("evaluating block set for %q: %w", e.Name, err)
		}
		if ok {
			return true, nil
		}
	}
	return false, nil
}

func shapeOf(snap *program.Snapshot) dedup.Shape {
	handles, queue, daemon := program.SelectionInput(snap)
	shapes := make([]dedup.BThreadShape, 0, len(handles))
	for _, h := range handles {
		stmt := ""
		if s := h.Statement(); s != nil {
			stmt = s.String()
		}
		shapes = append(shapes, dedup.BThreadShape{Name: h.Name, Statement: stmt})
	}
	return dedup.Compute(shapes, queue, daemon, true)
}
