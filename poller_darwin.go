//go:build darwin

package zokio

import (
	"sync"
	"sync/atomic"

	"golang.org/x/sys/unix"
)

// kqueuePoller is the Darwin pollerBackend: a kqueue fd, a
// preallocated event buffer, and a dynamically growing fd table (unlike
// Linux's fixed array, since kqueue doesn't bound descriptors the way
// epoll's direct-indexed table assumes).
type kqueuePoller struct {
	kq       int32
	eventBuf [256]unix.Kevent_t
	fds      []fdInfo
	fdMu     sync.RWMutex
	closed   atomic.Bool
}

func newPlatformPoller(_ Backend) pollerBackend {
	return &kqueuePoller{}
}

func (p *kqueuePoller) init() error {
	kq, err := unix.Kqueue()
	if err != nil {
		return err
	}
	unix.CloseOnExec(kq)
	p.kq = int32(kq)
	return nil
}

func (p *kqueuePoller) close() error {
	p.closed.Store(true)
	if p.kq > 0 {
		return unix.Close(int(p.kq))
	}
	return nil
}

func (p *kqueuePoller) ensureCapacity(fd int) {
	if fd < len(p.fds) {
		return
	}
	grown := make([]fdInfo, fd+1)
	copy(grown, p.fds)
	p.fds = grown
}

func (p *kqueuePoller) registerFD(fd int, events ioEvents, cb ioCallback) error {
	if p.closed.Load() {
		return ErrPollerClosed
	}
	if fd < 0 {
		return ErrFDOutOfRange
	}

	p.fdMu.Lock()
	p.ensureCapacity(fd)
	if p.fds[fd].active {
		p.fdMu.Unlock()
		return ErrFDAlreadyRegistered
	}
	p.fds[fd] = fdInfo{callback: cb, events: events, active: true}
	p.fdMu.Unlock()

	changes := eventsToKevents(fd, events, unix.EV_ADD|unix.EV_ENABLE)
	if len(changes) == 0 {
		return nil
	}
	if _, err := unix.Kevent(int(p.kq), changes, nil, nil); err != nil {
		p.fdMu.Lock()
		p.fds[fd] = fdInfo{}
		p.fdMu.Unlock()
		return err
	}
	return nil
}

func (p *kqueuePoller) unregisterFD(fd int) error {
	if fd < 0 {
		return ErrFDOutOfRange
	}
	p.fdMu.Lock()
	if fd >= len(p.fds) || !p.fds[fd].active {
		p.fdMu.Unlock()
		return ErrFDNotRegistered
	}
	events := p.fds[fd].events
	p.fds[fd] = fdInfo{}
	p.fdMu.Unlock()

	changes := eventsToKevents(fd, events, unix.EV_DELETE)
	if len(changes) == 0 {
		return nil
	}
	_, err := unix.Kevent(int(p.kq), changes, nil, nil)
	return err
}

func (p *kqueuePoller) modifyFD(fd int, events ioEvents) error {
	if fd < 0 {
		return ErrFDOutOfRange
	}
	p.fdMu.Lock()
	if fd >= len(p.fds) || !p.fds[fd].active {
		p.fdMu.Unlock()
		return ErrFDNotRegistered
	}
	old := p.fds[fd].events
	p.fds[fd].events = events
	p.fdMu.Unlock()

	var changes []unix.Kevent_t
	changes = append(changes, eventsToKevents(fd, old, unix.EV_DELETE)...)
	changes = append(changes, eventsToKevents(fd, events, unix.EV_ADD|unix.EV_ENABLE)...)
	if len(changes) == 0 {
		return nil
	}
	_, err := unix.Kevent(int(p.kq), changes, nil, nil)
	return err
}

func (p *kqueuePoller) pollIO(timeoutMs int) (int, error) {
	if p.closed.Load() {
		return 0, ErrPollerClosed
	}

	var ts *unix.Timespec
	if timeoutMs >= 0 {
		t := unix.NsecToTimespec(int64(timeoutMs) * 1e6)
		ts = &t
	}

	n, err := unix.Kevent(int(p.kq), nil, p.eventBuf[:], ts)
	if err != nil {
		if err == unix.EINTR {
			return 0, nil
		}
		return 0, err
	}

	for i := 0; i < n; i++ {
		ev := &p.eventBuf[i]
		fd := int(ev.Ident)

		p.fdMu.RLock()
		var info fdInfo
		if fd >= 0 && fd < len(p.fds) {
			info = p.fds[fd]
		}
		p.fdMu.RUnlock()
		if !info.active || info.callback == nil {
			continue
		}

		var out ioEvents
		if ev.Flags&unix.EV_ERROR != 0 {
			out |= evError
		}
		if ev.Flags&unix.EV_EOF != 0 {
			out |= evHangup
		}
		switch ev.Filter {
		case unix.EVFILT_READ:
			out |= evRead
		case unix.EVFILT_WRITE:
			out |= evWrite
		}
		info.callback(out)
	}
	return n, nil
}

// eventsToKevents builds the kevent change list registering/deleting the
// filters matching events, since kqueue tracks read and write readiness
// as two independent filters rather than one bitmask.
func eventsToKevents(fd int, events ioEvents, flags uint16) []unix.Kevent_t {
	var out []unix.Kevent_t
	if events&evRead != 0 {
		out = append(out, unix.Kevent_t{
			Ident:  uint64(fd),
			Filter: unix.EVFILT_READ,
			Flags:  flags,
		})
	}
	if events&evWrite != 0 {
		out = append(out, unix.Kevent_t{
			Ident:  uint64(fd),
			Filter: unix.EVFILT_WRITE,
			Flags:  flags,
		})
	}
	return out
}
