// Package zokio implements an asynchronous task runtime: a cooperative
// future/poll protocol, a reference-counted task lifecycle, a
// work-stealing scheduler, and a reactor bridging OS readiness events
// into the poll protocol.
//
// The four layers compose bottom-up: Future/Poll/Waker/Context (the
// protocol every task and combinator obeys), the task cell and join
// handle (lifecycle and result propagation), the scheduler (per-worker
// deques, a global injector, work stealing, park/unpark), and the
// reactor (submits timers and I/O to the OS event loop and wakes the
// originating task on completion).
package zokio
