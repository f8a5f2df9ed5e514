package bthread

import (
	"math/rand"
	"time"

	"github.com/nmxmxh/bp-runtime/engine/event"
)

// Host is the stateful surface exposed to both b-thread bodies and
// break-upon handlers (spec.md §6 "Engine-to-body"): registering more
// b-threads, enqueueing external events, reading daemon mode, reading
// time, and reading a seeded pseudorandom source. It deliberately does
// not expose Sync: break-upon handlers must not suspend.
type Host interface {
	// RegisterBThread registers a new b-thread. An empty name gets an
	// auto-generated one ("autoadded-<n>").
	RegisterBThread(name string, body Body) (string, error)
	// EnqueueExternalEvent thread-safely appends e to the program's
	// external queue.
	EnqueueExternalEvent(e event.Event) error
	// IsDaemonMode reports whether the program waits for external
	// events instead of terminating when nothing is selectable.
	IsDaemonMode() bool
	// SetDaemonMode toggles daemon mode.
	SetDaemonMode(daemon bool)
	// Now returns the current wall-clock time.
	Now() time.Time
	// Rand returns the program's seeded pseudorandom source. Bodies
	// must never reach for the platform default random generator if
	// they want their trace to replay deterministically.
	Rand() *rand.Rand
	// LoadResource reads a named resource (e.g. a bundled file or a
	// configured URL) through the program's resource loader.
	LoadResource(path string) ([]byte, error)
	// Global returns the program-wide scope, readable and writable by
	// every b-thread and the host program alike (spec.md §6, the
	// globalScope.get test hook used by scenario 5 in §8).
	Global() *Scope
	// Scope returns this b-thread's own private scope.
	Scope() *Scope
}

// Runner is the interface a b-thread body actually runs against: Host
// plus the single suspension primitive, bsync.
type Runner interface {
	Host
	// Sync publishes stmt as the b-thread's current statement, suspends
	// until the arbiter resumes it with the selected event, and returns
	// that event. Calling Sync from within a break-upon handler returns
	// errkind.BreakUponMisuse; an interrupted b-thread never returns from
	// its pending Sync.
	Sync(stmt Statement) (event.Event, error)
}

// Body is an opaque suspendable b-thread procedure. It runs until it
// returns (termination) or is interrupted (in which case it never
// regains control past its last Sync call).
type Body func(r Runner) error
