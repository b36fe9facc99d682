package zokio

import (
	"context"
	"runtime"
	"sync"
	"sync/atomic"
)

// JoinHandle is a detachable, awaitable view of a spawned task's
// eventual result. It does not own the task cell exclusively: the
// scheduler also holds a reference from spawn until completion.
//
// Dropping a JoinHandle without calling Detach or Abort still detaches
// it (decrements its reference without cancelling the task), enforced
// here with a runtime.SetFinalizer standing in for Go's lack of
// deterministic destructors.
type JoinHandle[T any] struct {
	t        *task[T]
	consumed atomic.Bool
	detached atomic.Bool
}

func newJoinHandle[T any](t *task[T]) *JoinHandle[T] {
	h := &JoinHandle[T]{t: t}
	runtime.SetFinalizer(h, func(h *JoinHandle[T]) { h.Detach() })
	return h
}

// chanWakerTarget is a wakerTarget that closes a channel exactly once;
// used to park a plain goroutine (one not driven by a scheduler worker)
// on a notifier without busy-waiting.
type chanWakerTarget struct {
	once sync.Once
	ch   chan struct{}
}

func (c *chanWakerTarget) wake() {
	c.once.Do(func() { close(c.ch) })
}

func newChanWaker() (Waker, <-chan struct{}) {
	t := &chanWakerTarget{ch: make(chan struct{})}
	return Waker{target: t}, t.ch
}

// IsFinished reports whether the task has produced a result.
func (h *JoinHandle[T]) IsFinished() bool {
	return h.t.cell.state.isComplete()
}

// Poll lets a JoinHandle be awaited from inside another future,
// composing with the same poll protocol every other future uses.
func (h *JoinHandle[T]) Poll(ctx *Context) Poll[T] {
	var zero T
	if h.consumed.Load() {
		return Ready(zero)
	}
	if h.t.cell.notifier.poll(ctx.Waker.Clone()) {
		h.consumed.Store(true)
		return Ready(h.t.output)
	}
	return Pending[T]()
}

// Await blocks the calling goroutine until the task completes or ctx is
// cancelled, parking via a channel-backed waker rather than polling.
// Returns ErrTaskConsumed if the handle's result has already been
// observed by a prior Await or Poll call. consumed is only set once the
// result is actually extracted, so a retry after a cancelled/timed-out
// ctx (an ordinary "await with deadline, retry on timeout" pattern)
// still observes the real output once the task completes.
func (h *JoinHandle[T]) Await(ctx context.Context) (T, error) {
	var zero T
	if h.consumed.Load() {
		return zero, ErrTaskConsumed
	}

	waker, done := newChanWaker()
	if h.t.cell.notifier.poll(waker) {
		return h.consumeAndExtract()
	}

	select {
	case <-done:
		return h.consumeAndExtract()
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}

func (h *JoinHandle[T]) consumeAndExtract() (T, error) {
	if h.consumed.Swap(true) {
		var zero T
		return zero, ErrTaskConsumed
	}
	return h.extract()
}

func (h *JoinHandle[T]) extract() (T, error) {
	if v := h.t.cell.panicVal.Load(); v != nil {
		var zero T
		return zero, (*v).(error)
	}
	return h.t.output, nil
}

// Detach releases this handle's reference without cancelling the task.
// Idempotent; safe to call more than once and safe to call from the
// finalizer after an explicit call already ran.
func (h *JoinHandle[T]) Detach() {
	if h.detached.Swap(true) {
		return
	}
	runtime.SetFinalizer(h, nil)
	h.t.cell.release()
}

// Abort requests cancellation: sets the task's CANCELLED bit and, if
// the task is currently parked on a cancellable reactor operation,
// cancels that operation so the task is woken promptly.
// Abort does not itself detach the handle.
func (h *JoinHandle[T]) Abort() {
	h.t.cell.abort()
}

// spawnTask allocates a task cell for fut on sched/reactor and enqueues
// it, returning the join handle. Kept free of Runtime specifics for
// testability; Runtime.Spawn does not use it, since it needs
// tryEnqueueExternal to report ErrInjectorFull.
func spawnTask[T any](id uint64, fut Future[T], sched *scheduler, reactor *Reactor) *JoinHandle[T] {
	t := newTask(id, fut, sched, reactor)
	h := newJoinHandle(t)
	sched.enqueueExternal(&t.cell)
	return h
}
