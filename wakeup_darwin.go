//go:build darwin

package zokio

import (
	"sync/atomic"
	"syscall"
)

// pipeWakeup is the Darwin wakeupSource: a self-pipe implementation, a
// non-blocking pipe whose read end is registered with kqueue and whose
// write end is poked to interrupt a blocked kevent call.
type pipeWakeup struct {
	readFD  int
	writeFD int
	closed  atomic.Bool
}

func newWakeupSource() (wakeupSource, error) {
	var fds [2]int
	if err := syscall.Pipe(fds[:]); err != nil {
		return nil, err
	}
	syscall.CloseOnExec(fds[0])
	syscall.CloseOnExec(fds[1])
	if err := syscall.SetNonblock(fds[0], true); err != nil {
		syscall.Close(fds[0])
		syscall.Close(fds[1])
		return nil, err
	}
	if err := syscall.SetNonblock(fds[1], true); err != nil {
		syscall.Close(fds[0])
		syscall.Close(fds[1])
		return nil, err
	}
	return &pipeWakeup{readFD: fds[0], writeFD: fds[1]}, nil
}

func (w *pipeWakeup) fd() int { return w.readFD }

func (w *pipeWakeup) wake() {
	if w.closed.Load() {
		return
	}
	var buf [1]byte
	_, _ = syscall.Write(w.writeFD, buf[:])
}

func (w *pipeWakeup) drain() {
	var buf [64]byte
	for {
		_, err := syscall.Read(w.readFD, buf[:])
		if err != nil {
			return
		}
	}
}

func (w *pipeWakeup) close() error {
	w.closed.Store(true)
	_ = syscall.Close(w.writeFD)
	return syscall.Close(w.readFD)
}
