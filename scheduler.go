package zokio

import (
	"math/rand"
	"sync"
	"sync/atomic"
	"time"
)

// scheduler owns the per-worker deques, the global injector, and the
// park coordinator, and runs the worker loop.
type scheduler struct {
	cfg    *Config
	deques []*workerDeque
	inj    *injector
	park   *parkGroup

	nextID  atomic.Uint64
	wg      sync.WaitGroup
	closing atomic.Bool
	closed  chan struct{}

	// workerGIDs records each worker goroutine's id, populated at the
	// top of workerLoop, so BlockOn can reject calls made from inside a
	// worker: one slot per worker rather than a single shared field,
	// since there can be more than one.
	workerGIDs []atomic.Uint64

	metrics *Metrics
	logger  Logger
	limiter *rateLimiter
}

func newScheduler(cfg *Config, metrics *Metrics, logger Logger, limiter *rateLimiter) *scheduler {
	n := cfg.WorkerThreads
	s := &scheduler{
		cfg:        cfg,
		deques:     make([]*workerDeque, n),
		inj:        newInjector(cfg.InjectorCapacity),
		park:       newParkGroup(n),
		closed:     make(chan struct{}),
		workerGIDs: make([]atomic.Uint64, n),
		metrics:    metrics,
		logger:     logger,
		limiter:    limiter,
	}
	for i := range s.deques {
		s.deques[i] = newWorkerDeque(cfg.QueueCapacity)
	}
	return s
}

// isWorkerGoroutine reports whether the calling goroutine is one of
// this scheduler's own worker loops.
func (s *scheduler) isWorkerGoroutine() bool {
	gid := getGoroutineID()
	for i := range s.workerGIDs {
		if s.workerGIDs[i].Load() == gid {
			return true
		}
	}
	return false
}

func (s *scheduler) start() {
	for i := 0; i < s.cfg.WorkerThreads; i++ {
		s.wg.Add(1)
		go s.workerLoop(i)
	}
}

// nextTaskID returns a monotone id for a newly spawned task.
func (s *scheduler) nextTaskID() uint64 {
	return s.nextID.Add(1)
}

// tryEnqueueExternal attempts a single push onto the injector and
// unparks one idle worker on success, without retrying. Used directly
// by Spawn's first-time admission path, where a bounded injector full
// is resource exhaustion that must be surfaced to the caller as
// ErrInjectorFull (spec.md §7) rather than absorbed silently.
func (s *scheduler) tryEnqueueExternal(c *taskCell) bool {
	if !s.inj.Push(c) {
		return false
	}
	s.park.UnparkOne()
	return true
}

// enqueueExternal enqueues c from outside any worker — a wake
// delivered from the reactor or another goroutine for a task the
// scheduler already owns. Unlike tryEnqueueExternal, this path must
// never drop the enqueue: losing a wake edge here would violate the
// protocol's liveness invariant, since the task is already committed to
// running again. A bounded injector momentarily full is logged (rate
// limited) and retried until it succeeds.
func (s *scheduler) enqueueExternal(c *taskCell) {
	if s.tryEnqueueExternal(c) {
		return
	}
	if s.logger != nil && s.limiter.Allow("injector-full") {
		s.logger.Warning().Str("event", "injector_full").Log("injector full, retrying enqueue")
	}
	for !s.tryEnqueueExternal(c) {
		time.Sleep(time.Microsecond)
	}
}

// enqueueLocalOrInjector re-enqueues c from inside the poll that just
// ran it, preferring the same worker's own deque bottom for the
// tail-bias yield semantics, spilling to the injector if
// that deque is full.
func (s *scheduler) enqueueLocalOrInjector(c *taskCell, workerID int) {
	if workerID >= 0 && workerID < len(s.deques) && s.deques[workerID].PushBottom(c) {
		s.park.UnparkOne()
		return
	}
	s.enqueueExternal(c)
}

// shutdown stops accepting the worker loops' normal operation and
// drains remaining queues. It returns the task cells left un-run so the
// caller (Runtime.Shutdown) can complete them with a shutdown error.
func (s *scheduler) shutdown() []*taskCell {
	if s.closing.Swap(true) {
		return nil
	}
	close(s.closed)
	s.park.UnparkAll()
	s.wg.Wait()

	var leftover []*taskCell
	leftover = append(leftover, s.inj.RejectAll()...)
	for _, d := range s.deques {
		for {
			c, ok := d.PopBottom()
			if !ok {
				break
			}
			leftover = append(leftover, c)
		}
	}
	return leftover
}

func (s *scheduler) workerLoop(id int) {
	defer s.wg.Done()

	s.workerGIDs[id].Store(getGoroutineID())
	defer s.workerGIDs[id].Store(0)

	spin := 0
	localIter := 0
	rng := rand.New(rand.NewSource(time.Now().UnixNano() ^ int64(id)*2654435761))
	deque := s.deques[id]

	for {
		select {
		case <-s.closed:
			return
		default:
		}

		localIter++
		if localIter%injectorPollInterval == 0 {
			if c, ok := s.inj.Pop(); ok {
				s.runAndCount(c, id)
				spin = 0
				continue
			}
		}

		if c, ok := deque.PopBottom(); ok {
			s.runAndCount(c, id)
			spin = 0
			continue
		}

		if c, ok := s.tryStealInto(id, rng); ok {
			s.runAndCount(c, id)
			spin = 0
			continue
		}

		if spin < s.cfg.SpinBeforePark {
			spin++
			continue
		}
		spin = 0

		s.metrics.worker(id).parks.Add(1)
		s.park.Park(id, func() bool {
			select {
			case <-s.closed:
				return true
			default:
			}
			if deque.len() > 0 || s.inj.Len() > 0 {
				return true
			}
			return false
		})
	}
}

// tryStealInto attempts to steal one task (plus an opportunistic batch)
// from a randomised order of peer workers.
func (s *scheduler) tryStealInto(id int, rng *rand.Rand) (*taskCell, bool) {
	n := len(s.deques)
	if n <= 1 {
		return nil, false
	}
	order := rng.Perm(n)
	for _, peer := range order {
		if peer == id {
			continue
		}
		s.metrics.worker(id).stealsAttempted.Add(1)
		c, ok := s.deques[peer].PopTop()
		if !ok {
			continue
		}
		s.metrics.worker(id).stealsSucceeded.Add(1)
		if s.cfg.StealBatchSize > 1 {
			extra := s.deques[peer].PopTopN(s.cfg.StealBatchSize - 1)
			for _, ec := range extra {
				if !s.deques[id].PushBottom(ec) {
					s.inj.Push(ec)
				}
			}
		}
		return c, true
	}
	return nil, false
}

func (s *scheduler) runAndCount(c *taskCell, workerID int) {
	s.metrics.worker(workerID).polls.Add(1)
	c.runPoll(workerID)
}

// injectorPollInterval is the small integer count of worker-loop
// iterations between forced injector checks (made before the local
// pop), chosen to bias against injector starvation without
// checking it on every single local pop.
const injectorPollInterval = 61
