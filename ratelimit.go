package zokio

import (
	"time"

	"github.com/joeycumines/go-catrate"
)

// rateLimiter gates noisy diagnostic logging (reactor poll errors,
// injector back-pressure) so a pathological
// workload cannot turn logging itself into a bottleneck. Backed by
// catrate.Limiter, a sliding-window multi-rate limiter pulled in
// transitively by logiface.
type rateLimiter struct {
	limiter *catrate.Limiter
}

// newRateLimiter builds a limiter allowing at most one log line per
// category per 500ms, and at most 10 per 10s, a two-window scheme
// mirroring catrate's own doc.go example of combining a tight burst
// window with a looser sustained-rate window.
func newRateLimiter() *rateLimiter {
	return &rateLimiter{
		limiter: catrate.NewLimiter(map[time.Duration]int{
			500 * time.Millisecond: 1,
			10 * time.Second:       10,
		}),
	}
}

// Allow reports whether a diagnostic log line for category should be
// emitted now.
func (r *rateLimiter) Allow(category any) bool {
	if r == nil || r.limiter == nil {
		return true
	}
	_, ok := r.limiter.Allow(category)
	return ok
}
