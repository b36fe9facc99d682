package zokio

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestOpCellCompleteWakesStoredWaker(t *testing.T) {
	c := newOpCell(1, opRead, time.Time{})
	target := &fakeWakerTarget{}
	c.storeWaker(Waker{target: target})

	require.False(t, c.settled())
	c.complete("hello", nil)
	require.True(t, c.settled())
	require.Equal(t, 1, target.wakes)
	require.Equal(t, opReady, opState(c.state.Load()))

	// A second, late completion after settling must be a no-op.
	c.complete("world", nil)
	require.Equal(t, "hello", c.result)
}

func TestOpCellCompleteWithErrorIsOpError(t *testing.T) {
	c := newOpCell(1, opConnect, time.Time{})
	c.complete(nil, ErrOpTimeout)
	require.Equal(t, opError, opState(c.state.Load()))
	require.ErrorIs(t, c.err, ErrOpTimeout)
}

func TestOpCellCancelWithdrawsAndWakes(t *testing.T) {
	c := newOpCell(1, opRead, time.Time{})
	withdrawn := false
	c.setWithdraw(func() { withdrawn = true })
	target := &fakeWakerTarget{}
	c.storeWaker(Waker{target: target})

	c.cancel()
	require.True(t, withdrawn)
	require.Equal(t, 1, target.wakes)
	require.Equal(t, opCancelled, opState(c.state.Load()))

	// Cancelling an already-settled cell is a no-op.
	c.cancel()
	require.Equal(t, opCancelled, opState(c.state.Load()))
}

func TestOpCellTimeoutFireTransitionsOnce(t *testing.T) {
	c := newOpCell(1, opRead, time.Now())
	target := &fakeWakerTarget{}
	c.storeWaker(Waker{target: target})

	require.True(t, c.timeoutFire())
	require.Equal(t, opTimeout, opState(c.state.Load()))
	require.Equal(t, 1, target.wakes)

	// A second timeoutFire on the already-timed-out cell is a no-op.
	require.False(t, c.timeoutFire())
}

func TestOpCellCompleteShutdownForcesError(t *testing.T) {
	c := newOpCell(1, opTimer, time.Time{})
	target := &fakeWakerTarget{}
	c.storeWaker(Waker{target: target})

	c.completeShutdown(ErrShutdown)
	require.Equal(t, opError, opState(c.state.Load()))
	require.ErrorIs(t, c.err, ErrShutdown)
	require.Equal(t, 1, target.wakes)
}

func TestOpRegistryRegisterUnregisterScavenge(t *testing.T) {
	r := newOpRegistry()
	c1 := newOpCell(0, opTimer, time.Time{})
	c2 := newOpCell(0, opTimer, time.Time{})
	r.register(c1)
	r.register(c2)
	require.Equal(t, 2, r.len())

	c1.complete(struct{}{}, nil)
	r.scavenge(10)
	require.Equal(t, 1, r.len())

	r.unregister(c2.id)
	require.Equal(t, 0, r.len())
}

func TestOpRegistryRejectAll(t *testing.T) {
	r := newOpRegistry()
	c1 := newOpCell(0, opTimer, time.Time{})
	c2 := newOpCell(0, opTimer, time.Time{})
	r.register(c1)
	r.register(c2)

	r.rejectAll(ErrShutdown)
	require.True(t, c1.settled())
	require.True(t, c2.settled())
	require.ErrorIs(t, c1.err, ErrShutdown)
	require.ErrorIs(t, c2.err, ErrShutdown)
}
