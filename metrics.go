package zokio

import (
	"sync"
	"sync/atomic"
	"time"
)

// workerMetrics holds the per-worker counters the runtime exposes for
// observability: polls, steals-attempted, steals-succeeded, parks, wakes.
type workerMetrics struct {
	polls           atomic.Uint64
	stealsAttempted atomic.Uint64
	stealsSucceeded atomic.Uint64
	parks           atomic.Uint64
	wakes           atomic.Uint64
}

// WorkerSnapshot is a point-in-time copy of one worker's counters.
type WorkerSnapshot struct {
	Polls           uint64
	StealsAttempted uint64
	StealsSucceeded uint64
	Parks           uint64
	Wakes           uint64
}

// reactorMetrics holds the per-reactor counters: ops submitted,
// completed, timed out, and a streaming average/percentile latency.
type reactorMetrics struct {
	mu          sync.Mutex
	submitted   atomic.Uint64
	completed   atomic.Uint64
	timedOut    atomic.Uint64
	latency     *pSquareMultiQuantile
}

// ReactorSnapshot is a point-in-time copy of the reactor's counters.
type ReactorSnapshot struct {
	Submitted   uint64
	Completed   uint64
	TimedOut    uint64
	MeanLatency time.Duration
	P50, P90, P95, P99 time.Duration
}

// Metrics is the runtime-wide observability surface: an external
// collaborator reads Snapshot data; the core only ever writes.
// Disabled entirely (all methods become no-ops) unless
// Config.MetricsEnabled is set.
type Metrics struct {
	enabled bool
	workers []workerMetrics
	reactor reactorMetrics
}

func newMetrics(enabled bool, numWorkers int) *Metrics {
	m := &Metrics{enabled: enabled, workers: make([]workerMetrics, numWorkers)}
	m.reactor.latency = newPSquareMultiQuantile(0.50, 0.90, 0.95, 0.99)
	return m
}

func (m *Metrics) worker(id int) *workerMetrics {
	if !m.enabled || id < 0 || id >= len(m.workers) {
		return &discardWorkerMetrics
	}
	return &m.workers[id]
}

// discardWorkerMetrics absorbs counter updates when metrics are
// disabled or an id is out of range (the latter never observed in
// practice), so callers do not need a nil check on the hot path.
var discardWorkerMetrics workerMetrics

// WorkerSnapshots returns a copy of every worker's counters.
func (m *Metrics) WorkerSnapshots() []WorkerSnapshot {
	out := make([]WorkerSnapshot, len(m.workers))
	for i := range m.workers {
		out[i] = WorkerSnapshot{
			Polls:           m.workers[i].polls.Load(),
			StealsAttempted: m.workers[i].stealsAttempted.Load(),
			StealsSucceeded: m.workers[i].stealsSucceeded.Load(),
			Parks:           m.workers[i].parks.Load(),
			Wakes:           m.workers[i].wakes.Load(),
		}
	}
	return out
}

func (m *Metrics) recordOpSubmitted() {
	if !m.enabled {
		return
	}
	m.reactor.submitted.Add(1)
}

func (m *Metrics) recordOpCompleted(latency time.Duration) {
	if !m.enabled {
		return
	}
	m.reactor.completed.Add(1)
	m.reactor.mu.Lock()
	m.reactor.latency.Update(float64(latency))
	m.reactor.mu.Unlock()
}

func (m *Metrics) recordOpTimedOut() {
	if !m.enabled {
		return
	}
	m.reactor.timedOut.Add(1)
}

// ReactorSnapshotNow returns a copy of the reactor's counters.
func (m *Metrics) ReactorSnapshotNow() ReactorSnapshot {
	m.reactor.mu.Lock()
	defer m.reactor.mu.Unlock()
	return ReactorSnapshot{
		Submitted:   m.reactor.submitted.Load(),
		Completed:   m.reactor.completed.Load(),
		TimedOut:    m.reactor.timedOut.Load(),
		MeanLatency: time.Duration(m.reactor.latency.Mean()),
		P50:         time.Duration(m.reactor.latency.Quantile(0)),
		P90:         time.Duration(m.reactor.latency.Quantile(1)),
		P95:         time.Duration(m.reactor.latency.Quantile(2)),
		P99:         time.Duration(m.reactor.latency.Quantile(3)),
	}
}
