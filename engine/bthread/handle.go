package bthread

import (
	"github.com/nmxmxh/bp-runtime/engine/errkind"
	"github.com/nmxmxh/bp-runtime/engine/event"
)

// Handle is the executor side of a running b-thread: the goroutine
// hosting its Body, and the channel plumbing the arbiter drives it
// through. Grounded on the waiter-channel notify pattern of
// EnhancedEpoch (kernel/threads/foundation/epoch.go) and the
// Submit/result-channel idiom of the supervisor base
// (kernel/threads/supervisor/base.go), adapted from one-shot async
// jobs to a long-lived suspend/resume continuation.
type Handle struct {
	Name string

	ctx        *Context
	doneCh     chan error
	terminated bool
	err        error
	current    *Statement
}

// Start spawns name's body in its own goroutine and blocks until the
// body either publishes its first statement (the common case) or
// terminates immediately without ever syncing.
func Start(name string, body Body, host ProgramHost, scope *Scope) *Handle {
	ctx := newContext(name, host, scope)
	h := &Handle{
		Name:   name,
		ctx:    ctx,
		doneCh: make(chan error, 1),
	}

	go func() {
		sent := false
		send := func(err error) {
			if sent {
				return
			}
			sent = true
			h.doneCh <- err
		}
		// This defer also covers the runtime.Goexit() path taken by
		// Context.Sync when interrupted: Goexit runs deferred calls
		// without resuming past the body(ctx) call below, and recover
		// returns nil there, so send(nil) below reports a clean exit.
		defer func() {
			if r := recover(); r != nil {
				send(errkind.BodyFailure(name, panicToError(r)))
				return
			}
			send(nil)
		}()
		err := body(ctx)
		send(err)
	}()

	h.pump()
	return h
}

// pump waits for the body to either publish a statement on stmtCh or
// finish (successfully, with an error, or by panicking) on doneCh, and
// updates the handle's terminal state accordingly.
func (h *Handle) pump() {
	select {
	case stmt := <-h.ctx.stmtCh:
		h.current = &stmt
	case err := <-h.doneCh:
		h.terminated = true
		if err != nil {
			h.err = errkind.BodyFailure(h.Name, err)
		}
	}
}

// Statement returns the b-thread's currently published statement, or
// nil if it has already terminated.
func (h *Handle) Statement() *Statement { return h.current }

// Terminated reports whether the body has returned (or errored/panicked).
func (h *Handle) Terminated() bool { return h.terminated }

// Err returns the body's terminal error, if any.
func (h *Handle) Err() error { return h.err }

// Resume hands the arbiter's selected event to the suspended body and
// blocks until it either republishes a new statement or terminates.
func (h *Handle) Resume(e event.Event) {
	if h.terminated {
		return
	}
	h.ctx.resumeCh <- e
	h.pump()
}

// Interrupt tears down the b-thread: it will never regain control past
// its last Sync call. The body's goroutine unwinds via runtime.Goexit
// inside Context.Sync once quitCh is closed.
func (h *Handle) Interrupt() {
	if h.terminated {
		return
	}
	close(h.ctx.quitCh)
	<-h.doneCh // Goexit still runs deferred recover, which sends nil
	h.terminated = true
}

func panicToError(r any) error {
	if err, ok := r.(error); ok {
		return err
	}
	return &panicValue{v: r}
}

type panicValue struct{ v any }

func (p *panicValue) Error() string { return "panic: " + toString(p.v) }

func toString(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	if s, ok := v.(interface{ String() string }); ok {
		return s.String()
	}
	return "non-string panic value"
}
