package zokio

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func newTestScheduler(t *testing.T, workers int) *scheduler {
	t.Helper()
	cfg := defaultConfig()
	cfg.WorkerThreads = workers
	metrics := newMetrics(false, workers)
	sched := newScheduler(cfg, metrics, nil, nil)
	sched.start()
	t.Cleanup(func() { sched.shutdown() })
	return sched
}

func TestJoinHandleAwaitConsumedOnce(t *testing.T) {
	sched := newTestScheduler(t, 1)
	fut := FutureFunc[int](func(ctx *Context) Poll[int] { return Ready(7) })
	h := spawnTask[int](sched.nextTaskID(), fut, sched, nil)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	v, err := h.Await(ctx)
	require.NoError(t, err)
	require.Equal(t, 7, v)

	// Polling/awaiting a Ready result again has
	// implementation-defined behaviour; this runtime treats it as
	// consumed and reports ErrTaskConsumed.
	_, err = h.Await(ctx)
	require.ErrorIs(t, err, ErrTaskConsumed)
}

// TestJoinHandleAwaitSurvivesCancelledRetry checks that a ctx
// cancellation/timeout racing the task's completion does not burn the
// handle's one-shot consumption: a caller retrying Await with a fresh
// context after a timeout must still be able to observe the real
// output once the task actually completes.
func TestJoinHandleAwaitSurvivesCancelledRetry(t *testing.T) {
	sched := newTestScheduler(t, 1)
	release := make(chan struct{})
	wakerCh := make(chan Waker, 1)
	var once sync.Once
	fut := FutureFunc[int](func(ctx *Context) Poll[int] {
		select {
		case <-release:
			return Ready(42)
		default:
		}
		once.Do(func() { wakerCh <- ctx.Waker.Clone() })
		return Pending[int]()
	})
	h := spawnTask[int](sched.nextTaskID(), fut, sched, nil)

	expired, cancel := context.WithTimeout(context.Background(), time.Millisecond)
	defer cancel()
	_, err := h.Await(expired)
	require.ErrorIs(t, err, context.DeadlineExceeded)

	w := <-wakerCh
	close(release)
	w.WakeByRef()

	ctx, cancel2 := context.WithTimeout(context.Background(), time.Second)
	defer cancel2()
	v, err := h.Await(ctx)
	require.NoError(t, err)
	require.Equal(t, 42, v)
}

func TestJoinHandlePollAfterConsumedReturnsZero(t *testing.T) {
	sched := newTestScheduler(t, 1)
	fut := FutureFunc[int](func(ctx *Context) Poll[int] { return Ready(9) })
	h := spawnTask[int](sched.nextTaskID(), fut, sched, nil)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_, err := h.Await(ctx)
	require.NoError(t, err)

	p := h.Poll(&Context{Waker: NoopWaker()})
	v, ok := p.Value()
	require.True(t, ok)
	require.Zero(t, v)
}

func TestJoinHandleIsFinished(t *testing.T) {
	sched := newTestScheduler(t, 1)
	ready := make(chan struct{})
	wakerCh := make(chan Waker, 1)
	var once sync.Once
	fut := FutureFunc[int](func(ctx *Context) Poll[int] {
		select {
		case <-ready:
			return Ready(1)
		default:
		}
		once.Do(func() { wakerCh <- ctx.Waker.Clone() })
		return Pending[int]()
	})
	h := spawnTask[int](sched.nextTaskID(), fut, sched, nil)
	require.False(t, h.IsFinished())

	w := <-wakerCh
	close(ready)
	w.WakeByRef()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_, err := h.Await(ctx)
	require.NoError(t, err)
	require.True(t, h.IsFinished())
}

// TestMultipleJoinHandlesObserveSameOutput checks that every spawned
// task that terminates causes all join handles on it to return the
// same output exactly once.
func TestMultipleJoinHandlesObserveSameOutput(t *testing.T) {
	sched := newTestScheduler(t, 1)
	fut := FutureFunc[int](func(ctx *Context) Poll[int] { return Ready(99) })

	tk := newTask[int](sched.nextTaskID(), fut, sched, nil)
	h1 := newJoinHandle(tk)
	tk.cell.retain()
	h2 := newJoinHandle(tk)
	sched.enqueueExternal(&tk.cell)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	v1, err1 := h1.Await(ctx)
	v2, err2 := h2.Await(ctx)
	require.NoError(t, err1)
	require.NoError(t, err2)
	require.Equal(t, 99, v1)
	require.Equal(t, v1, v2)
}

func TestJoinHandleDetachIdempotent(t *testing.T) {
	sched := newTestScheduler(t, 1)
	fut := FutureFunc[int](func(ctx *Context) Poll[int] { return Ready(1) })
	h := spawnTask[int](sched.nextTaskID(), fut, sched, nil)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_, err := h.Await(ctx)
	require.NoError(t, err)

	h.Detach()
	require.Equal(t, int32(0), h.t.cell.refs.Load())
	// Must not panic or double-free on a second call.
	h.Detach()
	require.Equal(t, int32(0), h.t.cell.refs.Load())
}
