package zokio

// Context is the per-poll argument passed to Future.Poll. It carries
// the waker that must be retained (cloned) if the future returns
// Pending, a handle to the reactor for I/O/timer registration, and the
// id of the task currently being polled, for diagnostics and
// cancellation-token propagation.
//
// A Context is constructed fresh for every poll call and must not be
// retained past it; futures that need to act after returning must clone
// ctx.Waker explicitly (Waker.Clone), never store the Context itself.
type Context struct {
	Waker   Waker
	Reactor *Reactor
	TaskID  uint64

	cell *taskCell
}

// newContext builds the Context passed to a single poll invocation.
func newContext(waker Waker, reactor *Reactor, taskID uint64) *Context {
	return &Context{Waker: waker, Reactor: reactor, TaskID: taskID}
}

// Cancelled reports whether the task currently being polled has an
// outstanding abort request (its CANCELLED bit is set). Cooperative
// futures poll this to decide whether to return a cancellation-sentinel
// output instead of continuing their normal work.
func (c *Context) Cancelled() bool {
	return c.cell != nil && c.cell.state.isCancelled()
}

// SetCancelFunc registers cancel as the function the task's join handle
// Abort will invoke if called while this poll's Pending return is
// outstanding. Futures that park on a cancellable reactor operation
// should call this just before returning Pending, and callers should
// expect it to be overwritten or cleared on the task's next poll.
func (c *Context) SetCancelFunc(cancel func()) {
	if c.cell != nil {
		c.cell.setCancelOp(cancel)
	}
}
