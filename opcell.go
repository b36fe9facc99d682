package zokio

import (
	"sync"
	"sync/atomic"
	"time"
	"weak"
)

// opKind identifies a reactor operation's shape.
type opKind int

const (
	opRead opKind = iota
	opWrite
	opAccept
	opConnect
	opTimer
	opClose
)

// opState is the reactor operation cell's lifecycle state.
type opState int32

const (
	opPending opState = iota
	opReady
	opError
	opTimeout
	opCancelled
)

// opCell is the reactor's per-operation state cell: operation id, kind,
// state, a typed result (kept as `any`, decoded by the owning
// OpHandle[R]), the stored waker, submission time, and deadline.
// Reference counted at exactly 2 (future side + completion side). A
// late completion after cancellation/timeout safely no-ops because
// every settling path first wins a CAS out of opPending.
type opCell struct {
	id      uint64
	kind    opKind
	state   atomic.Int32
	refs    atomic.Int32
	mu      sync.Mutex
	waker   Waker
	result  any
	err     error
	subAt   time.Time
	deadline time.Time // zero means no deadline

	// withdraw, if set, asks the poller backend to de-register this
	// cell's fd/timer. Nil for already-fired completions.
	withdraw func()
}

func newOpCell(id uint64, kind opKind, deadline time.Time) *opCell {
	c := &opCell{id: id, kind: kind, subAt: time.Now(), deadline: deadline}
	c.refs.Store(2)
	c.state.Store(int32(opPending))
	return c
}

func (c *opCell) settled() bool {
	return opState(c.state.Load()) != opPending
}

// storeWaker replaces any previously stored waker with w: only the
// waker from the most recent poll of this operation should ever fire.
func (c *opCell) storeWaker(w Waker) {
	c.mu.Lock()
	c.waker = w
	c.mu.Unlock()
}

// complete transitions pending -> ready/error with release-ordered
// result/err writes, then wakes the stored waker. A cell already past
// pending (timeout/cancelled) discards the result instead: late
// completions after a timeout are discarded safely. Reports whether
// this call actually won the transition, so callers can attribute
// observability counters (ops completed, latency) only to the call
// that settled the cell.
func (c *opCell) complete(result any, err error) bool {
	target := opReady
	if err != nil {
		target = opError
	}
	if !c.state.CompareAndSwap(int32(opPending), int32(target)) {
		return false
	}
	c.mu.Lock()
	c.result, c.err = result, err
	w := c.waker
	c.waker = Waker{}
	c.mu.Unlock()
	c.release()
	w.WakeByRef()
	return true
}

// expireTimeout transitions pending -> timeout; called by the reactor
// tick when the deadline has passed and no completion arrived first.
func (c *opCell) expireTimeout() bool {
	return c.state.CompareAndSwap(int32(opPending), int32(opTimeout))
}

// cancel transitions pending -> cancelled, withdraws from the poller if
// possible, and wakes any stored waker so the owning task observes
// cancellation promptly.
func (c *opCell) cancel() {
	if c.state.CompareAndSwap(int32(opPending), int32(opCancelled)) {
		c.mu.Lock()
		w := c.waker
		c.waker = Waker{}
		wd := c.withdraw
		c.mu.Unlock()
		if wd != nil {
			wd()
		}
		w.WakeByRef()
	}
}

// completeShutdown forces a pending cell to resolve with a shutdown
// error, used when draining during Runtime.Shutdown.
func (c *opCell) completeShutdown(err error) {
	if c.state.CompareAndSwap(int32(opPending), int32(opError)) {
		c.mu.Lock()
		c.err = err
		w := c.waker
		c.waker = Waker{}
		c.mu.Unlock()
		c.release()
		w.WakeByRef()
	}
}

// setWithdraw installs the function the reactor calls to de-register
// this cell's fd (or drop its timer entry) on cancellation or timeout.
func (c *opCell) setWithdraw(fn func()) {
	c.mu.Lock()
	c.withdraw = fn
	c.mu.Unlock()
}

// timeoutFire transitions a pending non-timer op to opTimeout, withdraws
// its registration, and wakes any stored waker. Returns false if the
// cell had already settled by the time the deadline was observed.
func (c *opCell) timeoutFire() bool {
	if !c.expireTimeout() {
		return false
	}
	c.mu.Lock()
	w := c.waker
	c.waker = Waker{}
	wd := c.withdraw
	c.mu.Unlock()
	if wd != nil {
		wd()
	}
	c.release()
	w.WakeByRef()
	return true
}

// release drops one of the cell's two references (future-side or
// completion-side); the allocator reclaims once both are gone. Since Go
// is garbage collected there is no explicit free, and nothing reads the
// count: the registry drops entries by settled state or collection (see
// opRegistry.scavenge).
func (c *opCell) release() {
	c.refs.Add(-1)
}

// opRegistry tracks live operation cells with weak pointers, scavenging
// settled or collected entries in bounded batches per call rather than
// eagerly on every completion, using a bounded map scan rather than a
// ring-buffer cursor (map iteration order is randomised per call,
// which serves the same "eventually cover everything" goal as a ring
// cursor without index arithmetic this project cannot exercise).
type opRegistry struct {
	mu     sync.Mutex
	data   map[uint64]weak.Pointer[opCell]
	nextID uint64
}

func newOpRegistry() *opRegistry {
	return &opRegistry{data: make(map[uint64]weak.Pointer[opCell])}
}

func (r *opRegistry) register(c *opCell) uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	id := r.nextID
	c.id = id
	r.data[id] = weak.Make(c)
	return id
}

func (r *opRegistry) unregister(id uint64) {
	r.mu.Lock()
	delete(r.data, id)
	r.mu.Unlock()
}

func (r *opRegistry) scavenge(batchSize int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	examined := 0
	for id, wp := range r.data {
		if examined >= batchSize {
			break
		}
		examined++
		c := wp.Value()
		if c == nil || c.settled() {
			delete(r.data, id)
		}
	}
}

// rejectAll force-completes every still-pending cell with err, for
// shutdown drain.
func (r *opRegistry) rejectAll(err error) {
	r.mu.Lock()
	cells := make([]*opCell, 0, len(r.data))
	for _, wp := range r.data {
		if c := wp.Value(); c != nil {
			cells = append(cells, c)
		}
	}
	r.mu.Unlock()
	for _, c := range cells {
		c.completeShutdown(err)
	}
}

func (r *opRegistry) len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.data)
}
