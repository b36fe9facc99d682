package zokio

import "runtime"

// getGoroutineID returns the calling goroutine's id, parsed out of the
// "goroutine NNN [...]" header runtime.Stack always writes first. It is
// the only portable way to fingerprint a goroutine without cooperation
// from the goroutine itself; used solely for the BlockOn-from-worker
// reentrancy guard (scheduler.isWorkerGoroutine), never on a hot path.
func getGoroutineID() uint64 {
	var buf [64]byte
	n := runtime.Stack(buf[:], false)
	var id uint64
	for i := len("goroutine "); i < n; i++ {
		if buf[i] >= '0' && buf[i] <= '9' {
			id = id*10 + uint64(buf[i]-'0')
		} else {
			break
		}
	}
	return id
}
