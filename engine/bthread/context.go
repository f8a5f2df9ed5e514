package bthread

import (
	"math/rand"
	"runtime"
	"time"

	"github.com/nmxmxh/bp-runtime/engine/errkind"
	"github.com/nmxmxh/bp-runtime/engine/event"
)

// ProgramHost is the surface the owning program exposes to a b-thread's
// Context. It is declared here (rather than imported from engine/program)
// so engine/bthread has no dependency on engine/program; engine/program
// depends on engine/bthread, not the reverse.
type ProgramHost interface {
	RegisterPending(name string, body Body) (string, error)
	EnqueueExternal(e event.Event) error
	Daemon() bool
	SetDaemon(bool)
	Rand() *rand.Rand
	LoadResource(path string) ([]byte, error)
	GlobalScope() *Scope
}

// Context is the concrete Runner a b-thread body executes against. Its
// Sync method is the only suspension point: it hands the statement to
// the executor goroutine over stmtCh and parks on resumeCh (or quitCh,
// if interrupted) until the arbiter decides the b-thread's fate.
type Context struct {
	name              string
	host              ProgramHost
	scope             *Scope
	stmtCh            chan Statement
	resumeCh          chan event.Event
	quitCh            chan struct{}
	suspensionAllowed bool
}

func newContext(name string, host ProgramHost, scope *Scope) *Context {
	return &Context{
		name:              name,
		host:              host,
		scope:             scope,
		stmtCh:            make(chan Statement),
		resumeCh:          make(chan event.Event),
		quitCh:            make(chan struct{}),
		suspensionAllowed: true,
	}
}

// NewBreakUponHost builds the Host a break-upon handler runs against:
// it can still read time/rand, read/write scope, register b-threads and
// enqueue external events, but any attempted Sync (reached only via a
// type assertion back to Runner, which a well-behaved handler never
// does) fails with BreakUponMisuse.
func NewBreakUponHost(host ProgramHost) Host {
	return breakContext("break-upon", host, NewScope())
}

// breakContext builds a throwaway Context for a break-upon invocation:
// it shares the owning program's host surface (so a handler can still
// register b-threads or enqueue events) but its Sync always fails, since
// suspensionAllowed is permanently false and it owns no executor
// goroutine to hand statements to.
func breakContext(name string, host ProgramHost, scope *Scope) *Context {
	c := newContext(name, host, scope)
	c.suspensionAllowed = false
	return c
}

// Sync implements Runner.
func (c *Context) Sync(stmt Statement) (event.Event, error) {
	if !c.suspensionAllowed {
		return event.Event{}, errkind.BreakUponMisuse(c.name)
	}
	if err := stmt.Validate(); err != nil {
		return event.Event{}, errkind.InvalidStatement(c.name, err)
	}
	c.stmtCh <- stmt
	select {
	case e := <-c.resumeCh:
		return e, nil
	case <-c.quitCh:
		// Interrupted: never regain control past this point.
		runtime.Goexit()
		return event.Event{}, nil // unreachable
	}
}

func (c *Context) RegisterBThread(name string, body Body) (string, error) {
	return c.host.RegisterPending(name, body)
}

func (c *Context) EnqueueExternalEvent(e event.Event) error {
	return c.host.EnqueueExternal(e)
}

func (c *Context) IsDaemonMode() bool { return c.host.Daemon() }

func (c *Context) SetDaemonMode(daemon bool) { c.host.SetDaemon(daemon) }

func (c *Context) Now() time.Time { return time.Now() }

func (c *Context) Rand() *rand.Rand { return c.host.Rand() }

func (c *Context) LoadResource(path string) ([]byte, error) { return c.host.LoadResource(path) }

// Global returns the program-wide scope bodies can publish test-visible
// bindings into (spec.md §6 globalScope.get test hook).
func (c *Context) Global() *Scope { return c.host.GlobalScope() }

// Scope returns this b-thread's own private scope.
func (c *Context) Scope() *Scope { return c.scope }
