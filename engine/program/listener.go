package program

import "github.com/nmxmxh/bp-runtime/engine/event"

// Listener receives the lifecycle callbacks of spec.md §6 ("Listener
// callbacks"). Implementations must return quickly: they run inline on
// the goroutine calling Start/Advance, and BThreadAdded, BThreadDone and
// BThreadRemoved fire in the middle of a super-step.
type Listener interface {
	Started()
	SuperstepDone(s *Snapshot)
	EventSelected(s *Snapshot, e event.Event)
	BThreadAdded(name string)
	BThreadDone(name string)
	BThreadRemoved(name string)
	AssertionFailed(reason string)
	Ended()
	Halted(reason string)
}

// Closer is an optional interface a Listener may additionally implement
// when it owns something that needs draining at the end of a run (a
// file, a network connection, a buffered sink). engine/runner registers
// every configured Listener satisfying it with its GracefulShutdown, so
// Close runs as part of the run's shutdown sequence rather than being
// left to the caller.
type Closer interface {
	Close() error
}

// BaseListener gives every callback a no-op body so callers only
// override the ones they care about, the same "embed and override"
// shape the teacher uses for its engine interfaces.
type BaseListener struct{}

func (BaseListener) Started()                                  {}
func (BaseListener) SuperstepDone(s *Snapshot)                  {}
func (BaseListener) EventSelected(s *Snapshot, e event.Event)   {}
func (BaseListener) BThreadAdded(name string)                   {}
func (BaseListener) BThreadDone(name string)                    {}
func (BaseListener) BThreadRemoved(name string)                 {}
func (BaseListener) AssertionFailed(reason string)              {}
func (BaseListener) Ended()                                     {}
func (BaseListener) Halted(reason string)                       {}
