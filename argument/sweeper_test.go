package argument

import (
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestSweepEvictsStaleSentinels(t *testing.T) {
	reg := newTestRegistry(WithSentinelMaxAge(2))
	t.Cleanup(func() { reg.Close() })
	rec := reg.NewRecorder()
	sw := reg.Sweeper()

	p := On[*Person](rec)
	age := MustCall[int](rec, p, "Age")
	name := MustCall[string](rec, p, "GetName")
	require.Equal(t, 3, reg.Len())

	stats := sw.Sweep()
	require.Equal(t, uint64(1), stats.Generation)
	require.Zero(t, stats.Total())
	require.Equal(t, 3, stats.Live)

	// Resolving a sentinel keeps it alive for another maxAge sweeps.
	_, err := rec.Resolve(age)
	require.NoError(t, err)

	stats = sw.Sweep()
	require.Equal(t, 1, stats.Evicted)
	require.Equal(t, 2, stats.Live)
	_, err = rec.Resolve(name)
	require.ErrorIs(t, err, ErrConversion)

	stats = sw.Sweep()
	require.Equal(t, 1, stats.Evicted)
	_, err = rec.Resolve(age)
	require.ErrorIs(t, err, ErrConversion)

	// The pointer placeholder is still reachable and stays bound.
	seq, err := rec.Resolve(p)
	require.NoError(t, err)
	require.Equal(t, 0, seq.Len())

	require.Equal(t, uint64(3), sw.Passes())
	require.Same(t, stats, sw.Last())
	runtime.KeepAlive(p)
}

func TestSweepRecreatesEvictedSentinel(t *testing.T) {
	reg := newTestRegistry(WithSentinelMaxAge(1))
	t.Cleanup(func() { reg.Close() })
	rec := reg.NewRecorder()
	p := On[*Person](rec)

	first := MustCall[int](rec, p, "Age")
	require.Equal(t, first, MustCall[int](rec, p, "Age"))

	reg.Sweeper().Sweep()
	_, err := rec.Resolve(first)
	require.ErrorIs(t, err, ErrConversion)

	second := MustCall[int](rec, p, "Age")
	require.NotEqual(t, first, second)
	seq, err := rec.Resolve(second)
	require.NoError(t, err)
	require.Equal(t, "age", seq.PropertyPath())
	runtime.KeepAlive(p)
}

func TestSweeperLifecycle(t *testing.T) {
	reg := newTestRegistry()
	t.Cleanup(func() { reg.Close() })

	idle := NewSweeper(reg, 0, 0)
	idle.Start()
	require.False(t, idle.Running())
	require.Equal(t, uint64(1), idle.MaxAge())
	require.Nil(t, idle.Last())

	sw := NewSweeper(reg, 5*time.Millisecond, 2)
	sw.Start()
	sw.Start()
	require.True(t, sw.Running())
	require.Equal(t, 5*time.Millisecond, sw.Interval())
	require.Eventually(t, func() bool { return sw.Passes() >= 2 }, 5*time.Second, 5*time.Millisecond)

	sw.Pause()
	require.True(t, sw.Paused())
	sw.Stop()
	sw.Stop()
	require.False(t, sw.Running())

	passes := sw.Passes()
	time.Sleep(20 * time.Millisecond)
	require.Equal(t, passes, sw.Passes())

	// Sweep ignores Pause.
	sw.Sweep()
	require.Equal(t, passes+1, sw.Passes())
	sw.Resume()
	require.False(t, sw.Paused())
}

func TestSweeperStartsWithFirstSentinel(t *testing.T) {
	reg := NewRegistry(WithSweepInterval(time.Hour), WithAsyncCompile(false))
	t.Cleanup(func() { reg.Close() })
	rec := reg.NewRecorder()

	p := On[*Person](rec)
	require.False(t, reg.Sweeper().Running())
	MustCall[int](rec, p, "Age")
	require.True(t, reg.Sweeper().Running())

	require.NoError(t, reg.Close())
	require.False(t, reg.Sweeper().Running())
}
