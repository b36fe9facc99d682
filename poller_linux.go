//go:build linux

package zokio

import (
	"sync"
	"sync/atomic"

	"golang.org/x/sys/unix"
)

// maxDirectFDs bounds the directly-indexed fd table; descriptors at or
// above it are rejected with ErrFDOutOfRange.
const maxDirectFDs = 65536

// epollPoller is the Linux pollerBackend: one epoll fd, a preallocated
// event buffer, and a version counter so a poll that raced a concurrent
// (un)register discards possibly-stale dispatch rather than indexing
// into a half-updated table.
type epollPoller struct {
	epfd     int32
	version  atomic.Uint64
	eventBuf [256]unix.EpollEvent
	fds      [maxDirectFDs]fdInfo
	fdMu     sync.RWMutex
	closed   atomic.Bool
}

func newPlatformPoller(_ Backend) pollerBackend {
	return &epollPoller{}
}

func (p *epollPoller) init() error {
	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return err
	}
	p.epfd = int32(epfd)
	return nil
}

func (p *epollPoller) close() error {
	p.closed.Store(true)
	if p.epfd > 0 {
		return unix.Close(int(p.epfd))
	}
	return nil
}

func (p *epollPoller) registerFD(fd int, events ioEvents, cb ioCallback) error {
	if p.closed.Load() {
		return ErrPollerClosed
	}
	if fd < 0 || fd >= maxDirectFDs {
		return ErrFDOutOfRange
	}

	p.fdMu.Lock()
	if p.fds[fd].active {
		p.fdMu.Unlock()
		return ErrFDAlreadyRegistered
	}
	p.fds[fd] = fdInfo{callback: cb, events: events, active: true}
	p.version.Add(1)
	p.fdMu.Unlock()

	ev := &unix.EpollEvent{Events: eventsToEpoll(events), Fd: int32(fd)}
	if err := unix.EpollCtl(int(p.epfd), unix.EPOLL_CTL_ADD, fd, ev); err != nil {
		p.fdMu.Lock()
		p.fds[fd] = fdInfo{}
		p.fdMu.Unlock()
		return err
	}
	return nil
}

func (p *epollPoller) unregisterFD(fd int) error {
	if fd < 0 || fd >= maxDirectFDs {
		return ErrFDOutOfRange
	}
	p.fdMu.Lock()
	if !p.fds[fd].active {
		p.fdMu.Unlock()
		return ErrFDNotRegistered
	}
	p.fds[fd] = fdInfo{}
	p.version.Add(1)
	p.fdMu.Unlock()
	return unix.EpollCtl(int(p.epfd), unix.EPOLL_CTL_DEL, fd, nil)
}

func (p *epollPoller) modifyFD(fd int, events ioEvents) error {
	if fd < 0 || fd >= maxDirectFDs {
		return ErrFDOutOfRange
	}
	p.fdMu.Lock()
	if !p.fds[fd].active {
		p.fdMu.Unlock()
		return ErrFDNotRegistered
	}
	p.fds[fd].events = events
	p.version.Add(1)
	p.fdMu.Unlock()

	ev := &unix.EpollEvent{Events: eventsToEpoll(events), Fd: int32(fd)}
	return unix.EpollCtl(int(p.epfd), unix.EPOLL_CTL_MOD, fd, ev)
}

func (p *epollPoller) pollIO(timeoutMs int) (int, error) {
	if p.closed.Load() {
		return 0, ErrPollerClosed
	}
	v := p.version.Load()

	n, err := unix.EpollWait(int(p.epfd), p.eventBuf[:], timeoutMs)
	if err != nil {
		if err == unix.EINTR {
			return 0, nil
		}
		return 0, err
	}

	if p.version.Load() != v {
		return 0, nil
	}

	for i := 0; i < n; i++ {
		fd := int(p.eventBuf[i].Fd)
		if fd < 0 || fd >= maxDirectFDs {
			continue
		}
		p.fdMu.RLock()
		info := p.fds[fd]
		p.fdMu.RUnlock()
		if info.active && info.callback != nil {
			info.callback(epollToEvents(p.eventBuf[i].Events))
		}
	}
	return n, nil
}

func eventsToEpoll(events ioEvents) uint32 {
	var out uint32
	if events&evRead != 0 {
		out |= unix.EPOLLIN
	}
	if events&evWrite != 0 {
		out |= unix.EPOLLOUT
	}
	return out
}

func epollToEvents(e uint32) ioEvents {
	var out ioEvents
	if e&unix.EPOLLIN != 0 {
		out |= evRead
	}
	if e&unix.EPOLLOUT != 0 {
		out |= evWrite
	}
	if e&unix.EPOLLERR != 0 {
		out |= evError
	}
	if e&unix.EPOLLHUP != 0 {
		out |= evHangup
	}
	return out
}
