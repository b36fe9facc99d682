package zokio

import (
	"sync"
	"sync/atomic"
	"time"
)

// IOResult is what an OpHandle's Future produces: either a decoded
// value or the error the operation settled with (a timeout, an explicit
// cancellation, or whatever the submitted action returned). Kept as a
// struct rather than letting Poll itself carry an error, since Poll's
// shape is fixed to one value per the Future contract.
type IOResult[R any] struct {
	Value R
	Err   error
}

// Reactor bridges OS-level readiness notification (or, for the portable
// fallback, a ticker) to the poll protocol every other future in this
// runtime uses. It owns the platform poller backend, the timer heap, the
// live-operation registry, and the cross-thread wakeup source needed to
// interrupt a blocked poll when a new deadline is submitted.
//
// Readiness and completion are unified here: the poller backend only
// ever reports that a descriptor is ready, and the action supplied at
// submission time (the actual read/write/accept/connect syscall) is what
// the reactor runs to produce the opCell's typed result. Callers always
// observe a completion-shaped outcome regardless of which OS primitive
// produced it.
type Reactor struct {
	poller           pollerBackend
	timers           *timerHeap
	ops              *opRegistry
	wake             wakeupSource
	metrics          *Metrics
	logger           Logger
	limiter          *rateLimiter
	defaultOpTimeout time.Duration

	closed atomic.Bool
	done   chan struct{}

	closeOnce sync.Once
}

// newReactor builds and starts a Reactor's background loop.
func newReactor(cfg *Config, metrics *Metrics, logger Logger, limiter *rateLimiter) (*Reactor, error) {
	poller := newPollerBackend(cfg.Backend)
	if err := poller.init(); err != nil {
		return nil, err
	}

	wake, err := newWakeupSource()
	if err != nil {
		_ = poller.close()
		return nil, err
	}

	r := &Reactor{
		poller:           poller,
		timers:           newTimerHeap(),
		ops:              newOpRegistry(),
		wake:             wake,
		metrics:          metrics,
		logger:           logger,
		limiter:          limiter,
		defaultOpTimeout: cfg.DefaultOpTimeout,
		done:             make(chan struct{}),
	}

	if fd := wake.fd(); fd >= 0 {
		if err := poller.registerFD(fd, evRead, func(ioEvents) { wake.drain() }); err != nil {
			_ = poller.close()
			_ = wake.close()
			return nil, err
		}
	}

	go r.loop()
	return r, nil
}

// SubmitTimer schedules a wakeup after d and returns a handle resolving
// once it fires.
func (r *Reactor) SubmitTimer(d time.Duration) *OpHandle[struct{}] {
	deadline := time.Now().Add(d)
	cell := newOpCell(0, opTimer, deadline)
	r.ops.register(cell)
	r.timers.push(cell, deadline)
	r.metrics.recordOpSubmitted()
	r.wake.wake()
	return newOpHandle[struct{}](cell, decodeUnit)
}

func decodeUnit(any) (struct{}, error) { return struct{}{}, nil }

// SubmitIO registers fd for events and returns a handle that resolves
// once the descriptor becomes ready and action has run, or once deadline
// (if non-zero) passes first. action performs the actual syscall (read,
// write, accept, connect, ...); the reactor only arranges for it to run
// exactly once, on the goroutine driving the poll loop. A zero deadline
// falls back to Config.DefaultOpTimeout when one is configured.
func (r *Reactor) SubmitIO(kind opKind, fd int, events ioEvents, deadline time.Time, action func() (any, error)) *OpHandle[any] {
	if deadline.IsZero() && r.defaultOpTimeout > 0 {
		deadline = time.Now().Add(r.defaultOpTimeout)
	}
	cell := newOpCell(0, kind, deadline)
	r.ops.register(cell)

	cb := func(ev ioEvents) {
		if cell.settled() {
			return
		}
		var completed bool
		if ev&evError != 0 && action == nil {
			completed = cell.complete(nil, ErrVTableMismatch)
		} else {
			var val any
			var err error
			if action != nil {
				val, err = action()
			}
			completed = cell.complete(val, err)
		}
		if completed {
			r.metrics.recordOpCompleted(time.Since(cell.subAt))
		}
		_ = r.poller.unregisterFD(fd)
	}

	if err := r.poller.registerFD(fd, events, cb); err != nil {
		if cell.complete(nil, err) {
			r.metrics.recordOpCompleted(time.Since(cell.subAt))
		}
		return newOpHandle[any](cell, identityDecode)
	}
	cell.setWithdraw(func() { _ = r.poller.unregisterFD(fd) })
	if !deadline.IsZero() {
		r.timers.push(cell, deadline)
	}
	r.metrics.recordOpSubmitted()
	return newOpHandle[any](cell, identityDecode)
}

// SubmitRead, SubmitWrite, SubmitAccept and SubmitConnect are thin
// opKind-tagged wrappers over SubmitIO, for callers that want their
// logs/metrics to classify operations by shape.
func (r *Reactor) SubmitRead(fd int, deadline time.Time, action func() (any, error)) *OpHandle[any] {
	return r.SubmitIO(opRead, fd, evRead, deadline, action)
}

func (r *Reactor) SubmitWrite(fd int, deadline time.Time, action func() (any, error)) *OpHandle[any] {
	return r.SubmitIO(opWrite, fd, evWrite, deadline, action)
}

func (r *Reactor) SubmitAccept(fd int, deadline time.Time, action func() (any, error)) *OpHandle[any] {
	return r.SubmitIO(opAccept, fd, evRead, deadline, action)
}

func (r *Reactor) SubmitConnect(fd int, deadline time.Time, action func() (any, error)) *OpHandle[any] {
	return r.SubmitIO(opConnect, fd, evWrite, deadline, action)
}

// SubmitClose runs action (typically closing fd) and returns a handle
// resolving with its outcome. Unlike read/write/accept/connect, a close
// has no readiness to wait on, so the cell completes synchronously at
// submission time rather than through a poller callback; it is still
// routed through the same opCell/OpHandle machinery so it composes with
// the poll protocol identically to every other reactor operation.
func (r *Reactor) SubmitClose(fd int, action func() error) *OpHandle[struct{}] {
	cell := newOpCell(0, opClose, time.Time{})
	r.ops.register(cell)
	r.metrics.recordOpSubmitted()

	var err error
	if action != nil {
		err = action()
	}
	if cell.complete(struct{}{}, err) {
		r.metrics.recordOpCompleted(time.Since(cell.subAt))
	}
	return newOpHandle[struct{}](cell, decodeUnit)
}

func identityDecode(v any) (any, error) { return v, nil }

// processExpired pops every timer-heap entry whose deadline has passed
// and resolves it: timer ops complete with their sentinel value, other
// ops transition to opTimeout and are withdrawn from the poller.
func (r *Reactor) processExpired(now time.Time) {
	for _, c := range r.timers.popExpired(now) {
		if c.kind == opTimer {
			if c.complete(struct{}{}, nil) {
				r.metrics.recordOpCompleted(time.Since(c.subAt))
			}
		} else {
			if c.timeoutFire() {
				r.metrics.recordOpTimedOut()
			}
		}
		r.ops.unregister(c.id)
	}
}

// computeTimeout bounds how long pollIO may block: until the next timer
// deadline if one exists, or a short default on backends with no
// fd-based wakeup source (so submissions still get noticed promptly)
// otherwise indefinitely.
func (r *Reactor) computeTimeout() int {
	if dl, ok := r.timers.nextDeadline(); ok {
		d := time.Until(dl)
		if d <= 0 {
			return 0
		}
		return int(d.Milliseconds()) + 1
	}
	if r.wake.fd() < 0 {
		return 250
	}
	return -1
}

func (r *Reactor) loop() {
	defer close(r.done)
	for {
		r.processExpired(time.Now())
		if r.closed.Load() {
			return
		}
		_, err := r.poller.pollIO(r.computeTimeout())
		if err != nil && !r.closed.Load() {
			if r.logger != nil && r.limiter.Allow("poll-error") {
				r.logger.Err().Str("event", "poll_error").Log(err.Error())
			}
		}
	}
}

// shutdown stops the reactor loop, force-completes every still-pending
// operation (including scheduled timers) with err, and releases the
// poller and wakeup source. Returns the backend teardown errors, if
// any: a single error when only one of poller.close/wake.close failed,
// or an *AggregateError when both did, so a caller can distinguish
// "drained fine but a backend fd leaked" from a clean shutdown.
func (r *Reactor) shutdown(err error) error {
	var closeErr error
	r.closeOnce.Do(func() {
		r.closed.Store(true)
		r.wake.wake()
	})
	<-r.done

	r.ops.rejectAll(err)
	for _, c := range r.timers.drainAll() {
		c.completeShutdown(err)
	}

	var closeErrs []error
	if e := r.poller.close(); e != nil {
		closeErrs = append(closeErrs, e)
	}
	if e := r.wake.close(); e != nil {
		closeErrs = append(closeErrs, e)
	}
	switch len(closeErrs) {
	case 0:
	case 1:
		closeErr = closeErrs[0]
	default:
		closeErr = &AggregateError{Errors: closeErrs}
	}
	return closeErr
}

// OpHandle is the Future side of a reactor operation cell: it implements
// Future[IOResult[R]], so it composes with the same poll protocol every
// other future in this runtime uses.
type OpHandle[R any] struct {
	cell    *opCell
	decode  func(any) (R, error)
	release atomic.Bool
}

func newOpHandle[R any](cell *opCell, decode func(any) (R, error)) *OpHandle[R] {
	return &OpHandle[R]{cell: cell, decode: decode}
}

// Poll implements the reactor side of the poll protocol: check whether
// the cell has already settled; if not, store (replacing) this poll's
// waker and register a cancel function, then re-check once more before
// committing to Pending, so a completion racing the waker store is never
// lost.
func (h *OpHandle[R]) Poll(ctx *Context) Poll[IOResult[R]] {
	if !h.cell.settled() {
		ctx.SetCancelFunc(h.cell.cancel)
		h.cell.storeWaker(ctx.Waker.Clone())
		if !h.cell.settled() {
			return Pending[IOResult[R]]()
		}
	}
	out := h.extract()
	if h.release.CompareAndSwap(false, true) {
		h.cell.release()
	}
	return Ready(out)
}

func (h *OpHandle[R]) extract() IOResult[R] {
	st := opState(h.cell.state.Load())
	h.cell.mu.Lock()
	res, err := h.cell.result, h.cell.err
	h.cell.mu.Unlock()

	var out IOResult[R]
	switch st {
	case opReady:
		if h.decode != nil {
			out.Value, out.Err = h.decode(res)
		} else if v, ok := res.(R); ok {
			out.Value = v
		} else if res != nil {
			out.Err = ErrVTableMismatch
		}
	case opError:
		out.Err = err
	case opTimeout:
		out.Err = ErrOpTimeout
	case opCancelled:
		out.Err = ErrOpCancelled
	default:
		out.Err = err
	}
	return out
}

// Cancel withdraws the operation if it is still pending, completing it
// with ErrOpCancelled.
func (h *OpHandle[R]) Cancel() {
	h.cell.cancel()
}
