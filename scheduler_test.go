package zokio

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// TestScenarioWorkStealing uses two workers and injects 10000 tasks
// onto worker 0's deque directly; worker 1 must steal and complete at
// least a third of them before all finish.
func TestScenarioWorkStealing(t *testing.T) {
	const n = 10000

	cfg := defaultConfig()
	cfg.WorkerThreads = 2
	cfg.QueueCapacity = n + 100
	metrics := newMetrics(true, cfg.WorkerThreads)
	sched := newScheduler(cfg, metrics, nil, nil)

	var wg sync.WaitGroup
	var completed atomic.Int64
	wg.Add(n)

	for i := 0; i < n; i++ {
		fut := FutureFunc[int](func(ctx *Context) Poll[int] {
			completed.Add(1)
			wg.Done()
			return Ready(0)
		})
		tk := newTask[int](uint64(i+1), fut, sched, nil)
		require.True(t, sched.deques[0].PushBottom(&tk.cell))
	}

	sched.start()
	defer sched.shutdown()

	done := make(chan struct{})
	go func() { wg.Wait(); close(done) }()

	select {
	case <-done:
	case <-time.After(15 * time.Second):
		t.Fatalf("only %d/%d tasks completed", completed.Load(), n)
	}

	require.Equal(t, int64(n), completed.Load())

	snaps := metrics.WorkerSnapshots()
	require.GreaterOrEqual(t, int(snaps[1].Polls), n/3)
}

// TestSchedulerTryEnqueueExternalReportsFull checks that a bounded,
// unstarted scheduler's injector rejects a push once at capacity
// rather than blocking, the mechanism Spawn relies on to surface
// ErrInjectorFull.
func TestSchedulerTryEnqueueExternalReportsFull(t *testing.T) {
	cfg := defaultConfig()
	cfg.WorkerThreads = 1
	cfg.InjectorCapacity = 2
	metrics := newMetrics(false, 1)
	sched := newScheduler(cfg, metrics, nil, nil)

	fut := FutureFunc[int](func(ctx *Context) Poll[int] { return Ready(0) })
	require.True(t, sched.tryEnqueueExternal(&newTask[int](1, fut, sched, nil).cell))
	require.True(t, sched.tryEnqueueExternal(&newTask[int](2, fut, sched, nil).cell))
	require.False(t, sched.tryEnqueueExternal(&newTask[int](3, fut, sched, nil).cell))
}

func TestSchedulerIsWorkerGoroutine(t *testing.T) {
	cfg := defaultConfig()
	cfg.WorkerThreads = 1
	metrics := newMetrics(false, 1)
	sched := newScheduler(cfg, metrics, nil, nil)
	sched.start()
	defer sched.shutdown()

	require.False(t, sched.isWorkerGoroutine())

	observed := make(chan bool, 1)
	fut := FutureFunc[int](func(ctx *Context) Poll[int] {
		observed <- sched.isWorkerGoroutine()
		return Ready(0)
	})
	sched.enqueueExternal(&newTask[int](1, fut, sched, nil).cell)

	select {
	case v := <-observed:
		require.True(t, v)
	case <-time.After(time.Second):
		t.Fatal("task never polled")
	}
}

func TestSchedulerEnqueueExternalUnparksWorker(t *testing.T) {
	cfg := defaultConfig()
	cfg.WorkerThreads = 1
	metrics := newMetrics(false, 1)
	sched := newScheduler(cfg, metrics, nil, nil)
	sched.start()
	defer sched.shutdown()

	done := make(chan struct{})
	fut := FutureFunc[int](func(ctx *Context) Poll[int] {
		close(done)
		return Ready(0)
	})
	sched.enqueueExternal(&newTask[int](1, fut, sched, nil).cell)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("externally enqueued task was never polled")
	}
}
