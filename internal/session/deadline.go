package session

import (
	"sync"
	"time"
)

// deadlineGuard bounds how long a session may sit without remote progress.
// At most one deadline is armed at a time; arming again replaces the previous
// one. Expiry is delivered on a channel into the session loop rather than
// invoked as a callback, so transitions stay serialized. A generation counter
// keeps a replaced timer's in-flight callback from delivering a stale expiry.
type deadlineGuard struct {
	clock   Clock
	expired chan string

	mu    sync.Mutex
	timer Timer
	gen   uint64
}

func newDeadlineGuard(clock Clock) *deadlineGuard {
	return &deadlineGuard{clock: clock, expired: make(chan string, 1)}
}

// arm schedules expiry after d for the named purpose, replacing any deadline
// already armed.
func (g *deadlineGuard) arm(purpose string, d time.Duration) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.timer != nil {
		g.timer.Stop()
	}
	g.gen++
	gen := g.gen
	g.drainLocked()
	g.timer = g.clock.AfterFunc(d, func() {
		g.mu.Lock()
		live := gen == g.gen
		g.mu.Unlock()
		if !live {
			return
		}
		select {
		case g.expired <- purpose:
		default:
		}
	})
}

// cancel disarms the pending deadline, if any.
func (g *deadlineGuard) cancel() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.gen++
	if g.timer != nil {
		g.timer.Stop()
		g.timer = nil
	}
	g.drainLocked()
}

// drainLocked discards an expiry that fired before a re-arm or cancel could
// stop it. Callers hold mu.
func (g *deadlineGuard) drainLocked() {
	select {
	case <-g.expired:
	default:
	}
}

// expiries delivers the purpose string of a fired deadline.
func (g *deadlineGuard) expiries() <-chan string { return g.expired }
