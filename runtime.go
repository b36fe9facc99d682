package zokio

import (
	"sync"
	"time"
)

// Runtime composes the scheduler, the reactor, and the ambient
// collaborators (logger, rate limiter, metrics) behind Build, Spawn,
// BlockOn, and Shutdown. A Runtime is a value that owns pointers to its
// scheduler and reactor; there is no implicit global state.
type Runtime struct {
	cfg     *Config
	sched   *scheduler
	reactor *Reactor
	metrics *Metrics
	logger  Logger
	limiter *rateLimiter

	mu       sync.Mutex
	stopping bool
	tasksWG  sync.WaitGroup
	shutOnce sync.Once
}

// Build constructs a Runtime and starts its worker pool and reactor
// loop. It returns an error only if the reactor's platform backend
// failed to initialise (e.g. the process is out of file descriptors for
// epoll_create1).
func Build(opts ...Option) (*Runtime, error) {
	cfg := resolveConfig(opts...)

	var limiter *rateLimiter
	if !cfg.RateLimiterDisabled {
		limiter = newRateLimiter()
	}
	metrics := newMetrics(cfg.MetricsEnabled, cfg.WorkerThreads)

	reactor, err := newReactor(cfg, metrics, cfg.Logger, limiter)
	if err != nil {
		return nil, err
	}

	sched := newScheduler(cfg, metrics, cfg.Logger, limiter)
	sched.start()

	return &Runtime{
		cfg:     cfg,
		sched:   sched,
		reactor: reactor,
		metrics: metrics,
		logger:  cfg.Logger,
		limiter: limiter,
	}, nil
}

// Reactor exposes the runtime's reactor, for a spawned future's Poll to
// submit I/O or timers through ctx.Reactor.
func (rt *Runtime) Reactor() *Reactor { return rt.reactor }

// Metrics exposes the runtime's observability counters.
func (rt *Runtime) Metrics() *Metrics { return rt.metrics }

// WorkerCount reports the number of worker goroutines this runtime
// started with.
func (rt *Runtime) WorkerCount() int { return rt.cfg.WorkerThreads }

// Spawn schedules fut onto rt and returns a handle to its eventual
// result. Returns ErrRuntimeStopped instead of a handle once Shutdown
// has begun, or ErrInjectorFull if the scheduler's injector is bounded
// (Config.InjectorCapacity) and currently full — a resource-exhaustion
// condition surfaced at the spawn call site per spec.md §7, rather than
// retried indefinitely the way an existing task's wake edge must be.
func Spawn[T any](rt *Runtime, fut Future[T]) (*JoinHandle[T], error) {
	rt.mu.Lock()
	if rt.stopping {
		rt.mu.Unlock()
		return nil, ErrRuntimeStopped
	}
	rt.tasksWG.Add(1)
	rt.mu.Unlock()

	id := rt.sched.nextTaskID()
	t := newTask(id, fut, rt.sched, rt.reactor)
	if !rt.sched.tryEnqueueExternal(&t.cell) {
		// t never entered the scheduler and no JoinHandle was ever
		// created for it, so nothing references it; the garbage
		// collector reclaims it without going through the refcounted
		// release path.
		rt.tasksWG.Done()
		return nil, ErrInjectorFull
	}

	h := newJoinHandle(t)
	h.t.cell.setOnDone(func() { rt.tasksWG.Done() })
	return h, nil
}

// BlockOn drives fut to completion on the calling goroutine, parking it
// between polls (via a channel-backed waker) rather than busy-waiting.
// It must not be called from a goroutine already running as one of
// rt's own workers; doing so returns ErrBlockOnFromWorker, or panics
// with it if Config.PanicOnProgrammingError is set.
func BlockOn[T any](rt *Runtime, fut Future[T]) (T, error) {
	var zero T
	if rt.sched.isWorkerGoroutine() {
		if rt.cfg.PanicOnProgrammingError {
			panic(ErrBlockOnFromWorker)
		}
		return zero, ErrBlockOnFromWorker
	}

	for {
		waker, done := newChanWaker()
		ctx := newContext(waker, rt.reactor, 0)
		if v, ok := fut.Poll(ctx).Value(); ok {
			return v, nil
		}
		<-done
	}
}

// Shutdown initiates a graceful shutdown: stops accepting new spawns,
// force-completes every pending reactor operation (including armed
// timers) with ErrShutdown so parked tasks wake and observe it, waits
// for those tasks to drain (bounded by drainTimeout, or indefinitely if
// drainTimeout <= 0), then stops the worker pool and force-completes
// whatever tasks are still left queued. Idempotent: only the first call
// runs teardown and returns its result, every later call returns nil.
// A non-nil return means the reactor's platform backend failed to
// release a resource (e.g. closing its epoll/kqueue fd, or the
// cross-thread wakeup source) — draining itself still completed.
func (rt *Runtime) Shutdown(drainTimeout time.Duration) error {
	var shutdownErr error
	rt.shutOnce.Do(func() {
		rt.mu.Lock()
		rt.stopping = true
		rt.mu.Unlock()

		shutdownErr = rt.reactor.shutdown(ErrShutdown)

		drained := make(chan struct{})
		go func() {
			rt.tasksWG.Wait()
			close(drained)
		}()
		if drainTimeout > 0 {
			select {
			case <-drained:
			case <-time.After(drainTimeout):
			}
		} else {
			<-drained
		}

		for _, c := range rt.sched.shutdown() {
			c.forceShutdown(ErrShutdown)
		}
	})
	return shutdownErr
}
