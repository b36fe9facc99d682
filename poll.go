package zokio

// Poll is the outcome of one Future.Poll call: either Ready, carrying
// the future's output, or Pending, obliging the callee to have
// registered a waker (or to be otherwise guaranteed re-polling).
type Poll[T any] struct {
	val   T
	ready bool
}

// Ready constructs a terminal Poll outcome carrying val.
func Ready[T any](val T) Poll[T] {
	return Poll[T]{val: val, ready: true}
}

// Pending constructs the non-terminal Poll outcome. The zero value of
// Poll[T] is already Pending; this constructor exists for call-site
// clarity.
func Pending[T any]() Poll[T] {
	return Poll[T]{}
}

// IsReady reports whether p carries a terminal value.
func (p Poll[T]) IsReady() bool {
	return p.ready
}

// Value returns the terminal value and true if p is Ready, or the zero
// value and false otherwise.
func (p Poll[T]) Value() (T, bool) {
	return p.val, p.ready
}

// Future is a resumable computation that produces a T, one poll at a
// time. Poll must be called under the single-poller invariant: at most
// one goroutine polls a given Future at a time. The runtime enforces
// this for task futures via the task cell's RUNNING bit; combinators
// built on top of Future inherit exclusivity from whatever owns them.
//
// A Future whose Poll returns Pending must ensure that ctx.Waker (or a
// clone taken from it) will eventually be woken once progress is
// possible, or that it will otherwise be re-polled (e.g. a yield-once
// future that self-wakes). Polling a Future again after it has returned
// Ready has implementation-defined behaviour; this runtime's own task
// futures treat Ready as consumed and will not poll again.
type Future[T any] interface {
	Poll(ctx *Context) Poll[T]
}

// FutureFunc adapts a plain poll function to the Future interface.
type FutureFunc[T any] func(ctx *Context) Poll[T]

func (f FutureFunc[T]) Poll(ctx *Context) Poll[T] {
	return f(ctx)
}
