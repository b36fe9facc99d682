package zokio

// Waker is an erased, cheaply-cloneable handle that marks a task
// runnable. Waking a task that is not currently scheduled
// transitions it to runnable; waking one already runnable is
// idempotent (collapsed wakes still guarantee at least one future
// poll).
//
// Wake and WakeByRef are kept as distinct methods to mirror the
// protocol's vocabulary at call sites even though, in Go, a Waker value
// carries no unique-ownership marker to actually consume on Wake.
type Waker struct {
	target wakerTarget
}

// wakerTarget is implemented by *taskCell; kept as an interface rather
// than a direct *taskCell field so NoopWaker can exist without a nil
// *taskCell sentinel.
type wakerTarget interface {
	wake()
}

// Wake consumes the waker, scheduling its task. Identical to
// WakeByRef for values of this type; see the type doc.
func (w Waker) Wake() {
	w.WakeByRef()
}

// WakeByRef schedules the task without consuming the waker.
func (w Waker) WakeByRef() {
	if w.target != nil {
		w.target.wake()
	}
}

// Clone produces an independent handle targeting the same task.
func (w Waker) Clone() Waker {
	return w
}

// IsNoop reports whether w is the sentinel that ignores all operations.
func (w Waker) IsNoop() bool {
	return w.target == nil
}

// NoopWaker returns a waker that ignores Wake/WakeByRef, for use by
// synchronous drivers such as BlockOn's first poll before any reactor
// registration has happened, and by tests.
func NoopWaker() Waker {
	return Waker{}
}

// newCellWaker builds the waker a task's own poll context carries: one
// that, when fired, re-enqueues that same cell.
func newCellWaker(c *taskCell) Waker {
	return Waker{target: c}
}
