package event_test

import (
	"errors"
	"testing"

	"github.com/nmxmxh/bp-runtime/engine/event"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAllAndNone(t *testing.T) {
	hot := event.Named("hot")

	ok, err := event.All().Contains(hot)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = event.None().Contains(hot)
	require.NoError(t, err)
	assert.False(t, ok)

	assert.True(t, event.IsNone(event.None()))
	assert.False(t, event.IsNone(event.All()))
}

func TestAllExceptIsComplement(t *testing.T) {
	hot := event.Named("hot")
	cold := event.Named("cold")
	s := event.AllExcept(event.Singleton(hot))

	ok, err := s.Contains(hot)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = s.Contains(cold)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestEnumeratedUnionIntersection(t *testing.T) {
	hot := event.Named("hot")
	cold := event.Named("cold")
	allDone := event.Named("allDone")

	enum := event.Enumerated(hot, cold)
	ok, _ := enum.Contains(hot)
	assert.True(t, ok)
	ok, _ = enum.Contains(allDone)
	assert.False(t, ok)

	u := event.Union(event.Singleton(hot), event.Singleton(allDone))
	ok, _ = u.Contains(cold)
	assert.False(t, ok)
	ok, _ = u.Contains(allDone)
	assert.True(t, ok)

	i := event.Intersection(event.Enumerated(hot, cold), event.Singleton(hot))
	ok, _ = i.Contains(hot)
	assert.True(t, ok)
	ok, _ = i.Contains(cold)
	assert.False(t, ok)
}

func TestHostPredicateFailurePropagates(t *testing.T) {
	boom := errors.New("boom")
	s := event.HostPredicate("always-fails", func(event.Event) (bool, error) {
		return false, boom
	})

	ok, err := s.Contains(event.Named("anything"))
	assert.False(t, ok)
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
}

func TestEventEquality(t *testing.T) {
	a := event.New("job", map[string]int{"id": 1})
	b := event.New("job", map[string]int{"id": 1})
	c := event.New("job", map[string]int{"id": 2})

	assert.True(t, a.Equal(b))
	assert.False(t, a.Equal(c))
}
