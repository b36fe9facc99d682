package zokio

import (
	"runtime"
	"time"
)

// Backend selects the reactor's event-loop backend.
type Backend int

const (
	// BackendAuto selects epoll on Linux, kqueue on Darwin, and the
	// portable ticker-driven fallback elsewhere.
	BackendAuto Backend = iota
	BackendEpoll
	BackendKqueue
	// BackendSimulated is the degraded/testing mode this runtime allows
	// when no real backend is available: timers still fire, but I/O
	// submissions are registered for bookkeeping only and never become
	// ready; they resolve only through their deadline, cancellation, or
	// shutdown, and no simulated I/O completion is produced. Never
	// selected automatically; must be requested.
	BackendSimulated
)

// Config is the runtime's flat configuration structure. The zero
// Config is not valid; Build resolves Options against the defaults
// from defaultConfig.
type Config struct {
	WorkerThreads      int
	QueueCapacity      int
	InjectorCapacity   int
	StealBatchSize     int
	SpinBeforePark     int
	DefaultOpTimeout   time.Duration
	Backend            Backend
	MetricsEnabled     bool
	PanicOnProgrammingError bool

	Logger  Logger
	RateLimiterDisabled bool
}

// Option configures a Config via the functional-options pattern.
type Option func(*Config)

// WithWorkerThreads sets the fixed worker count; default is the number
// of logical CPUs.
func WithWorkerThreads(n int) Option {
	return func(c *Config) { c.WorkerThreads = n }
}

// WithQueueCapacity sets the per-worker deque size; should be a power
// of two. Default 256.
func WithQueueCapacity(n int) Option {
	return func(c *Config) { c.QueueCapacity = n }
}

// WithInjectorCapacity bounds the global injector; 0 (default) means
// unbounded.
func WithInjectorCapacity(n int) Option {
	return func(c *Config) { c.InjectorCapacity = n }
}

// WithStealBatchSize sets the max tasks opportunistically stolen in one
// successful steal. Default 32.
func WithStealBatchSize(n int) Option {
	return func(c *Config) { c.StealBatchSize = n }
}

// WithSpinBeforePark sets the bounded spin count before a worker parks.
// Default 256.
func WithSpinBeforePark(n int) Option {
	return func(c *Config) { c.SpinBeforePark = n }
}

// WithDefaultOpTimeout sets the default reactor operation deadline; 0
// (default) means no default (submissions must set their own).
func WithDefaultOpTimeout(d time.Duration) Option {
	return func(c *Config) { c.DefaultOpTimeout = d }
}

// WithBackend selects the reactor's event-loop backend.
func WithBackend(b Backend) Option {
	return func(c *Config) { c.Backend = b }
}

// WithMetrics enables or disables the per-worker/per-reactor counters.
func WithMetrics(enabled bool) Option {
	return func(c *Config) { c.MetricsEnabled = enabled }
}

// WithLogger overrides the default stderr JSON logger.
func WithLogger(l Logger) Option {
	return func(c *Config) { c.Logger = l }
}

// WithPanicOnProgrammingError switches ErrBlockOnFromWorker (BlockOn
// called from a worker) from a returned error to a panic, for
// development builds that want to fail loudly rather than propagate a
// recoverable-looking error. Double-await (ErrTaskConsumed) and result
// kind mismatches (ErrVTableMismatch) are returned as errors regardless
// of this setting.
func WithPanicOnProgrammingError(v bool) Option {
	return func(c *Config) { c.PanicOnProgrammingError = v }
}

// defaultConfig returns the baseline Config before Options are applied.
func defaultConfig() *Config {
	return &Config{
		WorkerThreads:    runtime.GOMAXPROCS(0),
		QueueCapacity:    256,
		InjectorCapacity: 0,
		StealBatchSize:   32,
		SpinBeforePark:   256,
		DefaultOpTimeout: 0,
		Backend:          BackendAuto,
		MetricsEnabled:   false,
	}
}

func resolveConfig(opts ...Option) *Config {
	cfg := defaultConfig()
	for _, o := range opts {
		if o != nil {
			o(cfg)
		}
	}
	if cfg.WorkerThreads <= 0 {
		cfg.WorkerThreads = 1
	}
	if cfg.QueueCapacity <= 0 {
		cfg.QueueCapacity = 256
	}
	if cfg.StealBatchSize <= 0 {
		cfg.StealBatchSize = 1
	}
	if cfg.Logger == nil {
		cfg.Logger = defaultLogger()
	}
	return cfg
}
