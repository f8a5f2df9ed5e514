package selection

import (
	"math/rand"
	"testing"

	"github.com/nmxmxh/bp-runtime/engine/bthread"
	"github.com/nmxmxh/bp-runtime/engine/event"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeHost is a minimal bthread.ProgramHost for starting real Handles
// in isolation, mirroring engine/bthread's own test helper.
type fakeHost struct {
	global *bthread.Scope
	daemon bool
}

func newFakeHost() *fakeHost { return &fakeHost{global: bthread.NewScope()} }

func (f *fakeHost) RegisterPending(name string, body bthread.Body) (string, error) {
	return name, nil
}
func (f *fakeHost) EnqueueExternal(e event.Event) error     { return nil }
func (f *fakeHost) Daemon() bool                            { return f.daemon }
func (f *fakeHost) SetDaemon(d bool)                        { f.daemon = d }
func (f *fakeHost) Rand() *rand.Rand                        { return rand.New(rand.NewSource(1)) }
func (f *fakeHost) LoadResource(path string) ([]byte, error) { return nil, nil }
func (f *fakeHost) GlobalScope() *bthread.Scope              { return f.global }

// parked starts a b-thread that issues exactly one statement and never
// advances past it (the test interrupts it during cleanup).
func parked(t *testing.T, name string, stmt bthread.Statement) *bthread.Handle {
	t.Helper()
	host := newFakeHost()
	h := bthread.Start(name, func(r bthread.Runner) error {
		_, err := r.Sync(stmt)
		return err
	}, host, bthread.NewScope())
	t.Cleanup(h.Interrupt)
	require.NotNil(t, h.Statement())
	return h
}

func TestSimplePriorityPicksFirstRegisteredUnblockedRequest(t *testing.T) {
	a := parked(t, "A", bthread.NewStatement(bthread.WithRequest(event.Named("x"))))
	b := parked(t, "B", bthread.NewStatement(bthread.WithRequest(event.Named("y"))))

	e, outcome, err := (SimplePriority{}).Select([]*bthread.Handle{a, b}, nil, false)
	require.NoError(t, err)
	assert.Equal(t, Selected, outcome)
	assert.Equal(t, "x", e.Name)
}

func TestSimplePriorityHonorsBlock(t *testing.T) {
	a := parked(t, "A", bthread.NewStatement(bthread.WithRequest(event.Named("x"))))
	b := parked(t, "B", bthread.NewStatement(
		bthread.WithWaitFor(event.Singleton(event.Named("z"))),
		bthread.WithBlock(event.Singleton(event.Named("x"))),
	))

	e, outcome, err := (SimplePriority{}).Select([]*bthread.Handle{a, b}, nil, false)
	require.NoError(t, err)
	assert.Equal(t, Deadlock, outcome)
	assert.Equal(t, event.Event{}, e)
}

func TestSimplePriorityFallsBackToExternalQueueWhenNothingRequested(t *testing.T) {
	a := parked(t, "A", bthread.NewStatement(bthread.WithWaitFor(event.Singleton(event.Named("z")))))
	queue := []event.Event{event.Named("ext")}

	e, outcome, err := (SimplePriority{}).Select([]*bthread.Handle{a}, queue, false)
	require.NoError(t, err)
	assert.Equal(t, Selected, outcome)
	assert.Equal(t, "ext", e.Name)
}

func TestClassifyEmptyNoBThreads(t *testing.T) {
	e, outcome, err := (SimplePriority{}).Select(nil, nil, false)
	require.NoError(t, err)
	assert.Equal(t, NoBThreads, outcome)
	assert.Equal(t, event.Event{}, e)
}

func TestClassifyEmptyWaitExternalWhenDaemon(t *testing.T) {
	a := parked(t, "A", bthread.NewStatement(bthread.WithWaitFor(event.Singleton(event.Named("z")))))

	_, outcome, err := (SimplePriority{}).Select([]*bthread.Handle{a}, nil, true)
	require.NoError(t, err)
	assert.Equal(t, WaitExternal, outcome)
}

func TestClassifyEmptyNormalWhenNoOneGenuinelyWaiting(t *testing.T) {
	a := parked(t, "A", bthread.NewStatement(bthread.WithBlock(event.Singleton(event.Named("z")))))

	_, outcome, err := (SimplePriority{}).Select([]*bthread.Handle{a}, nil, false)
	require.NoError(t, err)
	assert.Equal(t, Normal, outcome)
}

func TestArbitraryOracleDrivesThePick(t *testing.T) {
	a := parked(t, "A", bthread.NewStatement(bthread.WithRequest(event.Named("x"))))
	b := parked(t, "B", bthread.NewStatement(bthread.WithRequest(event.Named("y"))))

	strategy := Arbitrary{Oracle: func(n int) int { return n - 1 }}
	e, outcome, err := strategy.Select([]*bthread.Handle{a, b}, nil, false)
	require.NoError(t, err)
	assert.Equal(t, Selected, outcome)
	assert.Equal(t, "y", e.Name)
}
