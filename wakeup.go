package zokio

// wakeupSource lets the reactor interrupt a blocked pollIO call from
// another goroutine, e.g. when a new operation is submitted with a
// sooner deadline than whatever the poller is currently blocked on.
// Implementations: eventfd on Linux (wakeup_linux.go), a self-pipe on
// Darwin (wakeup_darwin.go), and a buffered channel elsewhere
// (wakeup_other.go) for backends that don't register real fds.
type wakeupSource interface {
	// fd returns the descriptor to register with the poller backend, or
	// -1 if this wakeup source isn't fd-based (the channel fallback).
	fd() int
	// wake signals the poller to return from its current or next block.
	// Safe to call from any goroutine, including concurrently.
	wake()
	// drain clears any pending wake signal after the poller observes it.
	drain()
	close() error
}
