package zokio

import "sync"

// notifier is the task cell's one-shot completion synchronisation
// primitive: Notify is idempotent and publishes all writes the notifying
// poller made (the output slot) to every waiter; poll registers a waker
// to be fired on completion, or reports completion immediately if it
// already happened.
//
// Lifetime: owned by the task cell, retained by join handles through
// the cell's reference count.
type notifier struct {
	mu     sync.Mutex
	done   bool
	wakers []Waker
}

func newNotifier() *notifier {
	return &notifier{}
}

// Notify marks the notifier complete and wakes every registered waiter.
// Redundant calls are no-ops, per the round-trip law "notify + notify
// leaves the notifier complete".
func (n *notifier) Notify() {
	n.mu.Lock()
	if n.done {
		n.mu.Unlock()
		return
	}
	n.done = true
	wakers := n.wakers
	n.wakers = nil
	n.mu.Unlock()

	for _, w := range wakers {
		w.WakeByRef()
	}
}

// IsDone reports whether Notify has already run.
func (n *notifier) IsDone() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.done
}

// poll registers w to be woken on completion, returning true if the
// notifier is already complete (in which case w is not retained).
func (n *notifier) poll(w Waker) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.done {
		return true
	}
	n.wakers = append(n.wakers, w)
	return false
}
