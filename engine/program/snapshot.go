package program

import (
	"sync/atomic"

	"github.com/nmxmxh/bp-runtime/engine/bthread"
	"github.com/nmxmxh/bp-runtime/engine/event"
)

// Snapshot is the immutable tuple of spec.md §3 ("ProgramSnapshot"):
// the live b-threads, the external queue as it stood at the cycle
// boundary, the daemon flag, and the one-shot triggered guard.
//
// Each live b-thread in practice owns a running goroutine (Design Notes
// §9 option (b)), so a Snapshot is not a value that can be forked and
// driven twice concurrently the way a purely data-structural snapshot
// could be — advancing it consumes its handles' next suspension.
// Replay and model-checking exploration are built instead on recorded
// event traces replayed against a fresh Start() (engine/explore), which
// is how this runtime resolves the tension the spec names without
// contradicting the "immutable once produced" and "triggered is
// one-shot" invariants: a Snapshot's own fields never change after
// construction, and the SAME Snapshot value can never be Advance()'d
// twice.
type Snapshot struct {
	handles   []*bthread.Handle
	queue     []event.Event
	daemon    bool
	triggered int32
}

// BThreadNames returns the names of every live b-thread in registration
// order.
func (s *Snapshot) BThreadNames() []string {
	names := make([]string, len(s.handles))
	for i, h := range s.handles {
		names[i] = h.Name
	}
	return names
}

// Queue returns a copy of the pending external-event queue.
func (s *Snapshot) Queue() []event.Event {
	q := make([]event.Event, len(s.queue))
	copy(q, s.queue)
	return q
}

// Daemon reports whether the program was in daemon mode at this
// boundary.
func (s *Snapshot) Daemon() bool { return s.daemon }

// Len reports how many b-threads are live.
func (s *Snapshot) Len() int { return len(s.handles) }

// markTriggered flips the one-shot guard and reports whether it was
// already set, implementing spec.md §4.4 step 1 and §7's
// SnapshotReused.
func (s *Snapshot) markTriggered() (alreadyTriggered bool) {
	return !atomic.CompareAndSwapInt32(&s.triggered, 0, 1)
}

// SelectionInput exposes exactly what engine/selection needs off a
// snapshot without making its fields public, keeping the live handle
// slice from being mutated by anything outside this package.
func SelectionInput(s *Snapshot) ([]*bthread.Handle, []event.Event, bool) {
	return s.handles, s.queue, s.daemon
}

// AbsorbExternal folds whatever has accumulated in the program's
// external queue since the last drain into a fresh, not-yet-triggered
// snapshot sharing s's live handles. Used by engine/runner while
// waiting in daemon mode (spec.md §4.5: "wait for external enqueue;
// once queue is non-empty, re-evaluate") so the wait loop observes new
// arrivals without running a full, event-less cycle.
func (p *Program) AbsorbExternal(s *Snapshot) *Snapshot {
	newly := p.TakeQueued()
	if len(newly) == 0 {
		return s
	}
	merged := make([]event.Event, 0, len(s.queue)+len(newly))
	merged = append(merged, s.queue...)
	merged = append(merged, newly...)
	return &Snapshot{handles: s.handles, queue: merged, daemon: s.daemon}
}
