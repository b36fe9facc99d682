package zokio

import (
	"sync"
	"sync/atomic"
)

// parkGroup coordinates worker park/unpark via a shared
// "parked worker" bitset and condition. Workers spin a bounded count
// before calling Park; Park double-checks the recheck predicate under
// the group's lock immediately before blocking, to avoid a lost wakeup
// between the caller's own double-check of the injector/peers and
// entering the wait.
type parkGroup struct {
	mu          sync.Mutex
	cond        *sync.Cond
	parked      []bool
	parkedCount atomic.Int32
}

func newParkGroup(n int) *parkGroup {
	p := &parkGroup{parked: make([]bool, n)}
	p.cond = sync.NewCond(&p.mu)
	return p
}

// Park blocks worker id until Unpark(id)/UnparkOne wakes it, unless
// recheck (called under the lock, just before blocking) reports true,
// in which case Park returns immediately without sleeping.
func (p *parkGroup) Park(id int, recheck func() bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if recheck() {
		return
	}
	p.parked[id] = true
	p.parkedCount.Add(1)
	for p.parked[id] {
		p.cond.Wait()
	}
}

// Unpark wakes worker id specifically, if parked.
func (p *parkGroup) Unpark(id int) {
	p.mu.Lock()
	woke := p.parked[id]
	if woke {
		p.parked[id] = false
		p.parkedCount.Add(-1)
	}
	p.mu.Unlock()
	if woke {
		p.cond.Broadcast()
	}
}

// UnparkOne wakes exactly one arbitrary parked worker: after any
// enqueue that grows work, if any worker is parked, exactly one should
// be unparked. Reports whether a parked worker was found.
func (p *parkGroup) UnparkOne() bool {
	if p.parkedCount.Load() == 0 {
		return false
	}
	p.mu.Lock()
	for i, parked := range p.parked {
		if parked {
			p.parked[i] = false
			p.parkedCount.Add(-1)
			p.mu.Unlock()
			p.cond.Broadcast()
			return true
		}
	}
	p.mu.Unlock()
	return false
}

// UnparkAll wakes every parked worker, used during shutdown.
func (p *parkGroup) UnparkAll() {
	p.mu.Lock()
	for i := range p.parked {
		p.parked[i] = false
	}
	p.parkedCount.Store(0)
	p.mu.Unlock()
	p.cond.Broadcast()
}

func (p *parkGroup) AnyParked() bool {
	return p.parkedCount.Load() > 0
}
