package zokio

import (
	"fmt"
	"sync/atomic"
)

// taskVTable is a fat-pointer v-table: it lets the scheduler's queues
// hold one non-generic *taskCell
// type regardless of the concrete Future[T] each cell wraps. Closures
// bound at construction time (in newTask) stand in for a tagged
// pointer or inheritance hierarchy.
type taskVTable struct {
	// poll invokes the concrete future's Poll and reports whether it
	// returned Ready (storing the value into the concrete task's output
	// slot is poll's responsibility; runPoll notifies completion).
	poll func(ctx *Context) (ready bool)
	// drop releases the concrete future and the output slot, run once
	// when the cell's reference count reaches zero.
	drop func()
}

// taskCell is the heap-allocated, type-erased unit of scheduling: one
// reference count, one state word, one task id, one v-table, and a
// pointer to the completion notifier. The concrete Future[T] and output
// T live in the generic task[T] that embeds this cell; only cell is
// placed in scheduler queues and referenced by wakers.
type taskCell struct {
	id       uint64
	state    taskState
	refs     atomic.Int32
	sched    *scheduler
	reactor  *Reactor
	notifier *notifier
	vtable   taskVTable

	// runningOn holds the id of the worker currently polling this cell;
	// meaningful only while RUNNING is set, written solely by that
	// worker, used to put a self-wake's re-enqueue onto the same
	// worker's own deque (tail-bias yield semantics).
	runningOn int

	// cancelOp, if non-nil, cancels whatever reactor operation the task
	// is currently parked on; set by a future's poll just before it
	// returns Pending on a reactor wait, cleared on the next poll.
	// Guarded by state's RUNNING bit: only the active poller writes it.
	cancelOp atomic.Pointer[func()]

	// panicVal records a recovered panic from the future's Poll, so it
	// can be surfaced through the join handle rather than crashing the
	// worker. See errors.go's ErrTaskPanicked.
	// Shutdown draining also uses this slot to carry ErrShutdown.
	panicVal atomic.Pointer[any]

	// onDone, if set, runs once after this cell completes (by a normal
	// Ready poll or by forceShutdown), letting Runtime track outstanding
	// spawned tasks without a generic completion channel per task.
	onDone atomic.Pointer[func()]
}

// task[T] is the concrete, generic task wrapper: one Future[T], its
// output slot, and the embedded type-erased cell.
type task[T any] struct {
	cell   taskCell
	future Future[T]
	output T
}

// newTask allocates a task cell for fut, wiring the v-table, state, and
// notifier: state idle with JOIN_INTEREST set, reference count 2
// (scheduler + handle).
func newTask[T any](id uint64, fut Future[T], sched *scheduler, reactor *Reactor) *task[T] {
	t := &task[T]{future: fut}
	t.cell.id = id
	t.cell.sched = sched
	t.cell.reactor = reactor
	t.cell.notifier = newNotifier()
	t.cell.state.init(stateJoinInterest)
	t.cell.refs.Store(2)
	t.cell.vtable = taskVTable{
		poll: func(ctx *Context) bool { return t.pollOnce(ctx) },
		drop: func() {
			t.future = nil
			var zero T
			t.output = zero
		},
	}
	return t
}

// pollOnce runs the concrete future's Poll exactly once, recovering a
// panic into the cell's panicVal (leaving the output slot zero) rather
// than letting it escape the worker: join handles must never observe
// undefined behaviour.
// It stores the output and returns true on Ready.
func (t *task[T]) pollOnce(ctx *Context) (ready bool) {
	if t.future == nil {
		// Already completed; defensive no-op for a stray re-poll.
		return true
	}
	defer func() {
		if r := recover(); r != nil {
			v := any(fmt.Errorf("%w: %v", ErrTaskPanicked, r))
			t.cell.panicVal.Store(&v)
			var zero T
			t.output = zero
			t.future = nil
			ready = true
		}
	}()
	p := t.future.Poll(ctx)
	if val, ok := p.Value(); ok {
		t.output = val
		t.future = nil
		return true
	}
	return false
}

// runPoll implements the per-poll protocol:
// CAS into RUNNING (returning immediately, without re-running, if
// already running - another waker beat us to it), run the concrete
// poll, then on Ready publish completion or on Pending re-enqueue if a
// wake landed mid-poll.
func (c *taskCell) runPoll(workerID int) {
	if !c.state.tryAcquireRunning() {
		return
	}
	c.runningOn = workerID
	waker := newCellWaker(c)
	ctx := newContext(waker, c.reactor, c.id)
	ctx.cell = c
	c.clearCancelOp()

	ready := c.vtable.poll(ctx)

	if ready {
		c.state.markComplete()
		c.state.releaseRunning()
		c.notifier.Notify()
		c.runOnDone()
		c.releaseSchedulerRef()
		return
	}

	if c.state.releaseRunning() {
		// NOTIFIED was set during this poll: preserve the wake edge by
		// re-enqueueing now, instead of relying on the wake() call that
		// raced us (it saw RUNNING and trusted us to do this).
		c.sched.enqueueLocalOrInjector(c, workerID)
	}
}

// wake implements wakerTarget: schedule this cell if it is not already
// running (the active poller, if any, will observe NOTIFIED itself).
// Counted against the worker that last ran this cell (or worker 0 for a
// task never yet polled), the closest attribution available for a
// per-worker wake counter when the waking goroutine need not be a
// worker at all.
func (c *taskCell) wake() {
	c.sched.metrics.worker(c.runningOn).wakes.Add(1)
	wasRunning := c.state.markNotified()
	if !wasRunning && !c.state.isComplete() {
		c.sched.enqueueExternal(c)
	}
}

// retain increments the cell's reference count. Called once per
// JoinHandle constructed for this cell beyond the first (the first is
// accounted for at spawn time, per newTask's initial count of 2).
func (c *taskCell) retain() {
	c.refs.Add(1)
}

// release decrements the cell's reference count, running the v-table
// drop and freeing associated resources when it reaches zero.
func (c *taskCell) release() {
	if c.refs.Add(-1) == 0 {
		c.vtable.drop()
	}
}

// releaseSchedulerRef drops the single continuous reference the
// scheduler has held since spawn. See DESIGN.md for why this
// runs-to-completion single reference is equivalent to a literal
// per-enqueue-increment accounting scheme.
func (c *taskCell) releaseSchedulerRef() {
	c.release()
}

// setOnDone installs the completion callback; see the onDone field doc.
func (c *taskCell) setOnDone(fn func()) {
	c.onDone.Store(&fn)
}

func (c *taskCell) runOnDone() {
	if p := c.onDone.Load(); p != nil {
		(*p)()
	}
}

// forceShutdown completes a still-pending cell (one left over in a
// scheduler queue when shutdown drains it) with err, surfaced through
// the join handle exactly like a recovered panic. Never called on a
// cell that is currently RUNNING: shutdown only drains queues after
// every worker goroutine has already exited.
func (c *taskCell) forceShutdown(err error) {
	if c.state.isComplete() {
		return
	}
	v := any(err)
	c.panicVal.Store(&v)
	c.state.markCancelled()
	c.state.markComplete()
	c.notifier.Notify()
	c.runOnDone()
	c.releaseSchedulerRef()
}

func (c *taskCell) setCancelOp(cancel func()) {
	if cancel == nil {
		c.cancelOp.Store(nil)
		return
	}
	f := cancel
	c.cancelOp.Store(&f)
}

func (c *taskCell) clearCancelOp() {
	c.cancelOp.Store(nil)
}

// abort sets CANCELLED and, if the task is currently parked on a
// reactor operation, cancels that operation so the task is woken and
// observes cancellation on its next poll.
func (c *taskCell) abort() {
	c.state.markCancelled()
	if p := c.cancelOp.Load(); p != nil {
		(*p)()
	}
}
