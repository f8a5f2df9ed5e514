package arbiter

import (
	"math/rand"
	"testing"

	"github.com/nmxmxh/bp-runtime/engine/bthread"
	"github.com/nmxmxh/bp-runtime/engine/event"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeHost is a minimal arbiter.Host: it tracks pending registrations
// and a queued-external list the test can seed directly, alongside the
// bthread.ProgramHost surface every started Handle needs.
type fakeHost struct {
	global  *bthread.Scope
	daemon  bool
	pending []Registration
	queued  []event.Event
}

func newFakeHost() *fakeHost { return &fakeHost{global: bthread.NewScope()} }

func (f *fakeHost) RegisterPending(name string, body bthread.Body) (string, error) {
	f.pending = append(f.pending, Registration{Name: name, Body: body})
	return name, nil
}
func (f *fakeHost) EnqueueExternal(e event.Event) error {
	f.queued = append(f.queued, e)
	return nil
}
func (f *fakeHost) Daemon() bool                            { return f.daemon }
func (f *fakeHost) SetDaemon(d bool)                        { f.daemon = d }
func (f *fakeHost) Rand() *rand.Rand                        { return rand.New(rand.NewSource(1)) }
func (f *fakeHost) LoadResource(path string) ([]byte, error) { return nil, nil }
func (f *fakeHost) GlobalScope() *bthread.Scope              { return f.global }
func (f *fakeHost) NewScope() *bthread.Scope                 { return bthread.NewScope() }

func (f *fakeHost) TakePending() []Registration {
	out := f.pending
	f.pending = nil
	return out
}
func (f *fakeHost) TakeQueued() []event.Event {
	out := f.queued
	f.queued = nil
	return out
}

// recordingNotifier captures every lifecycle callback in call order.
type recordingNotifier struct {
	events []string
}

func (r *recordingNotifier) BThreadRemoved(name string) { r.events = append(r.events, "removed:"+name) }
func (r *recordingNotifier) BThreadDone(name string)    { r.events = append(r.events, "done:"+name) }
func (r *recordingNotifier) BThreadAdded(name string)   { r.events = append(r.events, "added:"+name) }

func TestStartRunsEveryRegisteredBThreadToItsFirstStatement(t *testing.T) {
	host := newFakeHost()
	host.pending = []Registration{
		{Name: "a", Body: func(r bthread.Runner) error {
			_, err := r.Sync(bthread.NewStatement(bthread.WithRequest(event.Named("x"))))
			return err
		}},
		{Name: "b", Body: func(r bthread.Runner) error { return nil }},
	}
	notify := &recordingNotifier{}

	res, err := Start(host, notify)
	require.NoError(t, err)
	require.Len(t, res.Handles, 1)
	assert.Equal(t, "a", res.Handles[0].Name)
	assert.Equal(t, []string{"added:a", "done:b"}, notify.events)
}

func TestCycleResumesMatchingAndSleepsNonMatching(t *testing.T) {
	host := newFakeHost()
	x := event.Named("x")
	y := event.Named("y")

	matching := bthread.Start("matches", func(r bthread.Runner) error {
		_, err := r.Sync(bthread.NewStatement(bthread.WithWaitFor(event.Singleton(x))))
		if err != nil {
			return err
		}
		_, err = r.Sync(bthread.NewStatement(bthread.WithRequest(y)))
		return err
	}, host, host.NewScope())

	notMatching := bthread.Start("waits", func(r bthread.Runner) error {
		_, err := r.Sync(bthread.NewStatement(bthread.WithWaitFor(event.Singleton(y))))
		return err
	}, host, host.NewScope())
	t.Cleanup(notMatching.Interrupt)

	notify := &recordingNotifier{}
	res, err := Cycle(host, notify, []*bthread.Handle{matching, notMatching}, x)
	require.NoError(t, err)

	names := make([]string, len(res.Handles))
	for i, h := range res.Handles {
		names[i] = h.Name
	}
	assert.ElementsMatch(t, []string{"matches", "waits"}, names)
	for _, h := range res.Handles {
		if h.Name == "matches" {
			require.NotNil(t, h.Statement())
			assert.Equal(t, "y", h.Statement().Request[0].Name)
		}
	}
}

func TestCycleFiresBreakUponAndRemovesInterruptedBThread(t *testing.T) {
	host := newFakeHost()
	a := event.Named("a")
	b := event.Named("b")

	var fired bool
	interruptible := bthread.Start("interruptible", func(r bthread.Runner) error {
		_, err := r.Sync(bthread.NewStatement(
			bthread.WithRequest(a),
			bthread.WithInterrupt(event.Singleton(b)),
			bthread.WithBreakUpon(func(host bthread.Host, selected event.Event) {
				fired = true
				assert.Equal(t, "b", selected.Name)
			}),
		))
		return err
	}, host, host.NewScope())

	notify := &recordingNotifier{}
	res, err := Cycle(host, notify, []*bthread.Handle{interruptible}, b)
	require.NoError(t, err)

	assert.True(t, fired)
	assert.Empty(t, res.Handles)
	assert.Contains(t, notify.events, "removed:interruptible")
}

func TestCycleDrainsBThreadsRegisteredDuringResume(t *testing.T) {
	host := newFakeHost()
	e1 := event.Named("e1")

	parent := bthread.Start("parent", func(r bthread.Runner) error {
		_, err := r.Sync(bthread.NewStatement(bthread.WithWaitFor(event.Singleton(e1))))
		if err != nil {
			return err
		}
		_, err = r.RegisterBThread("child", func(cr bthread.Runner) error {
			_, err := cr.Sync(bthread.NewStatement(bthread.WithRequest(event.Named("e2"))))
			return err
		})
		return err
	}, host, host.NewScope())

	notify := &recordingNotifier{}
	res, err := Cycle(host, notify, []*bthread.Handle{parent}, e1)
	require.NoError(t, err)

	names := make([]string, len(res.Handles))
	for i, h := range res.Handles {
		names[i] = h.Name
	}
	assert.ElementsMatch(t, []string{"child"}, names)
	assert.Contains(t, notify.events, "done:parent")
	assert.Contains(t, notify.events, "added:child")
}

func TestCycleDrainsExternalQueueAccumulatedMidCycle(t *testing.T) {
	host := newFakeHost()
	x := event.Named("x")

	waiter := bthread.Start("waiter", func(r bthread.Runner) error {
		_, err := r.Sync(bthread.NewStatement(bthread.WithWaitFor(event.Singleton(x))))
		if err != nil {
			return err
		}
		return r.EnqueueExternalEvent(event.Named("ext"))
	}, host, host.NewScope())

	notify := &recordingNotifier{}
	res, err := Cycle(host, notify, []*bthread.Handle{waiter}, x)
	require.NoError(t, err)

	require.Len(t, res.Queue, 1)
	assert.Equal(t, "ext", res.Queue[0].Name)
}
