package program

import (
	"errors"
	"testing"
	"time"

	"github.com/nmxmxh/bp-runtime/engine/bthread"
	"github.com/nmxmxh/bp-runtime/engine/errkind"
	"github.com/nmxmxh/bp-runtime/engine/event"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestZeroBThreadsTerminatesImmediately(t *testing.T) {
	p := New(NewConfig())
	s, err := p.Start()
	require.NoError(t, err)
	assert.Equal(t, 0, s.Len())
}

func TestSingleBThreadThatReturnsImmediately(t *testing.T) {
	p := New(NewConfig())
	_, err := p.RegisterBThread("once", func(r bthread.Runner) error { return nil })
	require.NoError(t, err)

	s, err := p.Start()
	require.NoError(t, err)
	assert.Equal(t, 0, s.Len())
}

func TestAdvanceTwiceOnSameSnapshotFails(t *testing.T) {
	p := New(NewConfig())
	_, err := p.RegisterBThread("waiter", func(r bthread.Runner) error {
		_, err := r.Sync(bthread.NewStatement(bthread.WithWaitFor(event.All())))
		return err
	})
	require.NoError(t, err)

	s, err := p.Start()
	require.NoError(t, err)
	require.Equal(t, 1, s.Len())

	_, err = p.Advance(s, event.Named("tick"))
	require.NoError(t, err)

	_, err = p.Advance(s, event.Named("anything"))
	require.Error(t, err)
	var kindErr *errkind.Error
	require.ErrorAs(t, err, &kindErr)
	assert.Equal(t, errkind.KindSnapshotReused, kindErr.Kind())
}

func TestRequestAlsoBlockedIsInvalidStatement(t *testing.T) {
	p := New(NewConfig())
	tick := event.Named("tick")
	_, err := p.RegisterBThread("bad", func(r bthread.Runner) error {
		_, err := r.Sync(bthread.NewStatement(
			bthread.WithRequest(tick),
			bthread.WithBlock(event.Singleton(tick)),
		))
		return err
	})
	require.NoError(t, err)

	_, err = p.Start()
	require.Error(t, err)
	var kindErr *errkind.Error
	require.ErrorAs(t, err, &kindErr)
	assert.Equal(t, errkind.KindBodyFailure, kindErr.Kind())
	var inner *errkind.Error
	require.ErrorAs(t, kindErr.Cause, &inner)
	assert.Equal(t, errkind.KindInvalidStatement, inner.Kind())
}

func TestGetTimeScenario(t *testing.T) {
	p := New(NewConfig())
	_, err := p.RegisterBThread("clock", func(r bthread.Runner) error {
		r.Global().Set("t", r.Now())
		return nil
	})
	require.NoError(t, err)

	tPre := time.Now()
	_, err = p.Start()
	require.NoError(t, err)
	tPost := time.Now()

	v, ok := p.GlobalScope().Get("t")
	require.True(t, ok)
	stored, ok := v.(time.Time)
	require.True(t, ok)
	assert.False(t, stored.Before(tPre))
	assert.False(t, stored.After(tPost))
}

func TestBodyErrorPropagatesFromStart(t *testing.T) {
	p := New(NewConfig())
	boom := errors.New("boom")
	_, err := p.RegisterBThread("noop", func(r bthread.Runner) error { return boom })
	require.NoError(t, err)
	_, err = p.Start()
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
}
