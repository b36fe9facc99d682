package zokio

import "sync/atomic"

// Task state bits: RUNNING, COMPLETE, NOTIFIED, CANCELLED,
// JOIN_INTEREST, packed into one word so every transition is a single
// CAS, keeping the whole state machine in one atomic word rather than a
// struct of separate flags, so that "only the running worker may clear
// RUNNING" and "any thread may set NOTIFIED" compose without extra
// locking.
const (
	stateRunning uint32 = 1 << iota
	stateComplete
	stateNotified
	stateCancelled
	stateJoinInterest
)

// taskState is the task cell's atomic state word. Cache-line padding
// guards against false sharing: a hot CAS word that many goroutines
// (pollers, wakers, the join handle) contend on benefits from not
// sharing a cache line with neighbouring fields.
type taskState struct {
	_    [64]byte
	bits atomic.Uint32
	_    [60]byte
}

func (s *taskState) init(flags uint32) {
	s.bits.Store(flags)
}

func (s *taskState) load() uint32 {
	return s.bits.Load()
}

// tryAcquireRunning attempts to transition the cell into RUNNING,
// atomically clearing NOTIFIED in the same CAS (a wake that arrived
// before this poll started is folded into the poll about to happen, so
// it is not lost and does not need a second wake to take effect). It
// returns false if the cell is already RUNNING (another waker's poll
// request lost the race; the active poller will observe NOTIFIED on
// exit per the re-enqueue rule in releaseRunning).
func (s *taskState) tryAcquireRunning() bool {
	for {
		old := s.bits.Load()
		if old&stateRunning != 0 {
			return false
		}
		next := (old | stateRunning) &^ stateNotified
		if s.bits.CompareAndSwap(old, next) {
			return true
		}
	}
}

// releaseRunning clears RUNNING and, if present, COMPLETE is set by the
// caller beforehand via markComplete. It reports whether NOTIFIED was
// observed set at the moment RUNNING was cleared, in which case the
// caller must re-enqueue the cell before anyone else can observe it as
// idle-and-not-scheduled.
func (s *taskState) releaseRunning() (wasNotified bool) {
	for {
		old := s.bits.Load()
		next := old &^ stateRunning
		notified := old&stateNotified != 0
		next &^= stateNotified
		if s.bits.CompareAndSwap(old, next) {
			return notified
		}
	}
}

// markComplete sets COMPLETE. Must be called by the running poller only,
// before releaseRunning.
func (s *taskState) markComplete() {
	for {
		old := s.bits.Load()
		next := old | stateComplete
		if s.bits.CompareAndSwap(old, next) {
			return
		}
	}
}

// markNotified sets NOTIFIED and reports whether the cell was RUNNING at
// that moment (if so, the active poller is responsible for observing
// NOTIFIED itself; if not, the caller must enqueue the cell).
func (s *taskState) markNotified() (wasRunning bool) {
	for {
		old := s.bits.Load()
		if old&stateComplete != 0 {
			// Waking a completed task is a harmless no-op.
			return true
		}
		next := old | stateNotified
		if old == next {
			return old&stateRunning != 0
		}
		if s.bits.CompareAndSwap(old, next) {
			return old&stateRunning != 0
		}
	}
}

// markCancelled sets CANCELLED. Idempotent; observable on the task's
// next poll.
func (s *taskState) markCancelled() {
	for {
		old := s.bits.Load()
		next := old | stateCancelled
		if old == next {
			return
		}
		if s.bits.CompareAndSwap(old, next) {
			return
		}
	}
}

func (s *taskState) isCancelled() bool {
	return s.bits.Load()&stateCancelled != 0
}

func (s *taskState) isComplete() bool {
	return s.bits.Load()&stateComplete != 0
}

func (s *taskState) clearJoinInterest() {
	for {
		old := s.bits.Load()
		next := old &^ stateJoinInterest
		if old == next {
			return
		}
		if s.bits.CompareAndSwap(old, next) {
			return
		}
	}
}

func (s *taskState) hasJoinInterest() bool {
	return s.bits.Load()&stateJoinInterest != 0
}
