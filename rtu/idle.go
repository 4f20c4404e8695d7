package rtu

import (
	"sync"
	"time"
)

// busIdle tracks the last time any byte was observed on the line and
// answers "has the bus been idle for a full frame timeout", mirroring the
// idle_lock/idle_timer pair of the bare-metal driver: there, the lock is
// taken when a byte arrives and released by a timer once frame_timeout
// has elapsed with no further bytes; here the same fact is derived
// directly from a timestamp, which needs no interrupt-context unlock.
type busIdle struct {
	mu           sync.Mutex
	lastActivity time.Time
	frameTimeout time.Duration
}

func newBusIdle(frameTimeout time.Duration) *busIdle {
	return &busIdle{frameTimeout: frameTimeout}
}

func (b *busIdle) markActivity() {
	b.mu.Lock()
	b.lastActivity = time.Now()
	b.mu.Unlock()
}

func (b *busIdle) sinceActivity() time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.lastActivity.IsZero() {
		return b.frameTimeout
	}
	return time.Since(b.lastActivity)
}

// waitIdle blocks until the bus has been idle for a full frame timeout,
// or returns false if that does not happen within budget.
func (b *busIdle) waitIdle(budget time.Duration) bool {
	deadline := time.Now().Add(budget)
	for {
		since := b.sinceActivity()
		if since >= b.frameTimeout {
			return true
		}
		remaining := b.frameTimeout - since
		if time.Now().Add(remaining).After(deadline) {
			return false
		}
		time.Sleep(remaining)
	}
}
