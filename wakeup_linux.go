//go:build linux

package zokio

import (
	"sync/atomic"

	"golang.org/x/sys/unix"
)

// eventfdWakeup is the Linux wakeupSource: a single eventfd serves as
// both read and write end.
type eventfdWakeup struct {
	wfd    int32
	closed atomic.Bool
}

func newWakeupSource() (wakeupSource, error) {
	fd, err := unix.Eventfd(0, unix.EFD_CLOEXEC|unix.EFD_NONBLOCK)
	if err != nil {
		return nil, err
	}
	return &eventfdWakeup{wfd: int32(fd)}, nil
}

func (w *eventfdWakeup) fd() int { return int(w.wfd) }

func (w *eventfdWakeup) wake() {
	if w.closed.Load() {
		return
	}
	var buf [8]byte
	buf[7] = 1
	_, _ = unix.Write(int(w.wfd), buf[:])
}

func (w *eventfdWakeup) drain() {
	var buf [8]byte
	for {
		_, err := unix.Read(int(w.wfd), buf[:])
		if err != nil {
			return
		}
	}
}

func (w *eventfdWakeup) close() error {
	w.closed.Store(true)
	return unix.Close(int(w.wfd))
}
