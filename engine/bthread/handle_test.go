package bthread

import (
	"errors"
	"math/rand"
	"testing"
	"time"

	"github.com/nmxmxh/bp-runtime/engine/event"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeHost is a minimal ProgramHost for exercising Handle/Context in
// isolation, without a full Program.
type fakeHost struct {
	global *Scope
	daemon bool
}

func newFakeHost() *fakeHost { return &fakeHost{global: NewScope()} }

func (f *fakeHost) RegisterPending(name string, body Body) (string, error) { return name, nil }
func (f *fakeHost) EnqueueExternal(e event.Event) error                    { return nil }
func (f *fakeHost) Daemon() bool                                           { return f.daemon }
func (f *fakeHost) SetDaemon(d bool)                                       { f.daemon = d }
func (f *fakeHost) Rand() *rand.Rand                                       { return rand.New(rand.NewSource(1)) }
func (f *fakeHost) LoadResource(path string) ([]byte, error)               { return nil, nil }
func (f *fakeHost) GlobalScope() *Scope                                    { return f.global }

func TestHandleStartPublishesFirstStatement(t *testing.T) {
	host := newFakeHost()
	h := Start("greeter", func(r Runner) error {
		_, err := r.Sync(NewStatement(WithRequest(event.Named("hello"))))
		return err
	}, host, NewScope())

	require.False(t, h.Terminated())
	require.NotNil(t, h.Statement())
	assert.Equal(t, "hello", h.Statement().Request[0].Name)
}

func TestHandleResumeAdvancesToNextStatement(t *testing.T) {
	host := newFakeHost()
	seen := make(chan event.Event, 1)
	h := Start("echo", func(r Runner) error {
		e, err := r.Sync(NewStatement(WithWaitFor(event.All())))
		if err != nil {
			return err
		}
		seen <- e
		return nil
	}, host, NewScope())

	h.Resume(event.Named("tick"))
	assert.True(t, h.Terminated())
	assert.NoError(t, h.Err())
	select {
	case e := <-seen:
		assert.Equal(t, "tick", e.Name)
	case <-time.After(time.Second):
		t.Fatal("body never observed resumed event")
	}
}

func TestHandleTerminatesImmediatelyWithoutSync(t *testing.T) {
	host := newFakeHost()
	h := Start("noop", func(r Runner) error { return nil }, host, NewScope())
	assert.True(t, h.Terminated())
	assert.Nil(t, h.Statement())
	assert.NoError(t, h.Err())
}

func TestHandleBodyErrorSurfacesAsBodyFailure(t *testing.T) {
	host := newFakeHost()
	boom := errors.New("boom")
	h := Start("failer", func(r Runner) error { return boom }, host, NewScope())
	assert.True(t, h.Terminated())
	require.Error(t, h.Err())
	assert.ErrorIs(t, h.Err(), boom)
}

func TestHandleBodyPanicSurfacesAsBodyFailure(t *testing.T) {
	host := newFakeHost()
	h := Start("panicker", func(r Runner) error {
		panic("kaboom")
	}, host, NewScope())
	assert.True(t, h.Terminated())
	require.Error(t, h.Err())
}

func TestHandleInterruptUnwindsGoroutine(t *testing.T) {
	host := newFakeHost()
	ranPastSync := false
	h := Start("interruptible", func(r Runner) error {
		_, err := r.Sync(NewStatement(WithWaitFor(event.All())))
		if err != nil {
			return err
		}
		ranPastSync = true
		return nil
	}, host, NewScope())

	h.Interrupt()
	assert.True(t, h.Terminated())
	assert.False(t, ranPastSync, "body must not resume past an interrupted sync")
}

func TestBreakUponHandlerCannotSync(t *testing.T) {
	host := newFakeHost()
	bc := breakContext("handler", host, NewScope())
	_, err := bc.Sync(NewStatement())
	require.Error(t, err)
}

func TestContextInvalidStatementRejected(t *testing.T) {
	host := newFakeHost()
	tick := event.Named("tick")
	h := Start("bad", func(r Runner) error {
		_, err := r.Sync(NewStatement(
			WithRequest(tick),
			WithBlock(event.Singleton(tick)),
		))
		return err
	}, host, NewScope())
	require.True(t, h.Terminated())
	require.Error(t, h.Err())
}

func TestScopeGlobalAndLocalAreIndependent(t *testing.T) {
	host := newFakeHost()
	local := NewScope()
	h := Start("scoped", func(r Runner) error {
		r.Scope().Set("x", 1)
		r.Global().Set("y", 2)
		return nil
	}, host, local)
	require.True(t, h.Terminated())

	v, ok := local.Get("x")
	assert.True(t, ok)
	assert.Equal(t, 1, v)

	_, ok = local.Get("y")
	assert.False(t, ok)

	v, ok = host.GlobalScope().Get("y")
	assert.True(t, ok)
	assert.Equal(t, 2, v)
}
