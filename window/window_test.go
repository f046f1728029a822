package window

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestFanoutPushDeliversToAllConsumers(t *testing.T) {
	require := require.New(t)
	f := New()

	q1 := f.Acquire(nil)
	q2 := f.Acquire(nil)
	require.Equal(2, f.Len())

	f.Push(Batch{Offs: 1, Changes: "x"})

	b1 := <-q1.Recv()
	b2 := <-q2.Recv()
	require.Equal(uint64(1), b1.Offs)
	require.Equal(uint64(1), b2.Offs)
}

func TestFanoutCloseUnregisters(t *testing.T) {
	require := require.New(t)
	f := New()

	q := f.Acquire(nil)
	require.Equal(1, f.Len())
	q.Close()
	require.Equal(0, f.Len())

	_, ok := <-q.Recv()
	require.False(ok, "channel should be closed on release")

	q.Close() // must be safe to call twice
}

func TestFanoutAcquireContextCancelUnregisters(t *testing.T) {
	require := require.New(t)
	f := New()

	ctx, cancel := context.WithCancel(context.Background())
	f.Acquire(ctx)
	require.Equal(1, f.Len())

	cancel()
	require.Eventually(func() bool { return f.Len() == 0 }, time.Second, time.Millisecond)
}

func TestFanoutDropsSlowConsumerWhenFull(t *testing.T) {
	require := require.New(t)
	f := NewWithCapacity(1)

	q := f.Acquire(nil)
	f.Push(Batch{Offs: 1})
	require.Equal(1, f.Len())

	// The consumer's queue is now full (capacity 1, nothing drained); the
	// next push must drop it rather than block.
	f.Push(Batch{Offs: 2})
	require.Equal(0, f.Len())

	_, ok := <-q.Recv()
	require.True(ok)
	_, ok = <-q.Recv()
	require.False(ok)
}

func TestNewWithCapacityNonPositiveFallsBackToDefault(t *testing.T) {
	require := require.New(t)
	f := NewWithCapacity(0)
	require.Equal(defaultCapacity, f.capacity)
}
